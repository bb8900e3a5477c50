// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package orb

import (
	"context"
	"encoding/binary"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gogpu/orb/gpucore"
	"github.com/gogpu/orb/internal/compact"
	"github.com/gogpu/orb/internal/logger"
	"github.com/gogpu/orb/kernels"
	"github.com/gogpu/orb/readback"
	"github.com/gogpu/orb/registry"
)

// Feature is one detected corner in the pixel space of its pyramid level.
type Feature struct {
	X     uint32
	Y     uint32
	Level uint32
}

// Descriptor is a 256-bit binary descriptor.
type Descriptor [kernels.DescriptorWords]uint32

// FeatureSet summarizes one run.
type FeatureSet struct {
	// Count is the number of features written, at most Config.MaxFeatures.
	Count uint32
}

// Pipeline runs the feature pipeline on one device.
//
// All resources are created by New and live until Close. Every Run
// records one command batch against them. Pipeline is safe for concurrent
// use, but runs are serialized.
type Pipeline struct {
	mu sync.Mutex

	cfg    Config
	dev    gpucore.Device
	reg    *registry.Registry
	rd     *readback.Reader
	comp   *compact.Compactor
	levels []LevelSize
	chunks uint32

	features *registry.Buffer
	plan     []step
	trace    []StageRecord
	closed   bool
}

const batchLabel = "orb frame"

// New validates cfg, creates every resource the configured strategies need
// and precomputes the stage plan. dev stays owned by the caller.
func New(dev gpucore.Device, cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:    cfg,
		dev:    dev,
		reg:    registry.New(dev),
		levels: cfg.Levels(),
	}
	p.rd = readback.New(p.reg)
	for _, l := range p.levels {
		x, y := chunkGrid(l)
		p.chunks += x * y
	}

	if err := p.build(); err != nil {
		if cerr := p.reg.Close(); cerr != nil {
			logger.L().Warn("orb: release after failed construction", "err", cerr)
		}
		return nil, err
	}

	logger.L().Info("orb: pipeline ready",
		"size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"levels", cfg.PyramidDepth,
		"pyramid", cfg.PyramidStrategy,
		"compaction", cfg.CompactionStrategy,
		"chunks", p.chunks,
		"steps", len(p.plan))
	return p, nil
}

// Config returns the configuration the pipeline was built with.
func (p *Pipeline) Config() Config { return p.cfg }

// Levels returns the dimensions of every pyramid level.
func (p *Pipeline) Levels() []LevelSize { return slices.Clone(p.levels) }

// Chunks returns the number of corner detection chunks over all levels.
func (p *Pipeline) Chunks() uint32 { return p.chunks }

// Registry returns the registry that owns the pipeline's resources.
func (p *Pipeline) Registry() *registry.Registry { return p.reg }

// Output returns the dense feature buffer. Its first Count entries hold
// the features of the last run, FeatureSize bytes each.
func (p *Pipeline) Output() *registry.Buffer { return p.features }

// Run records the whole stage plan into one batch, submits it and waits
// for the feature count. ctx bounds only the wait.
func (p *Pipeline) Run(ctx context.Context) (FeatureSet, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return FeatureSet{}, fmt.Errorf("orb: run: %w", ErrClosed)
	}

	start := time.Now()
	count, err := p.run(ctx)
	p.cfg.Metrics.ObserveRun(p.cfg.PyramidStrategy.String(), p.cfg.CompactionStrategy.String(),
		time.Since(start), count, err)
	if err != nil {
		return FeatureSet{}, err
	}
	return FeatureSet{Count: count}, nil
}

func (p *Pipeline) run(ctx context.Context) (uint32, error) {
	p.trace = p.trace[:0]

	enc, err := p.dev.CreateCommandEncoder(batchLabel)
	if err != nil {
		return 0, &DeviceError{Op: "submit", Label: batchLabel, Err: err}
	}
	if err := p.record(enc); err != nil {
		return 0, err
	}
	cmd, err := enc.Finish()
	if err != nil {
		return 0, &DeviceError{Op: "submit", Label: batchLabel, Err: err}
	}
	if err := p.dev.Submit(cmd); err != nil {
		return 0, &DeviceError{Op: "submit", Label: batchLabel, Err: err}
	}

	data, err := p.rd.Await(ctx, compact.FeatureTotal)
	if err != nil {
		return 0, err
	}
	count := min(binary.LittleEndian.Uint32(data), p.cfg.MaxFeatures)

	p.trace = append(p.trace, StageRecord{Stage: StageDone})
	logger.L().Debug("orb: run done", "features", count)
	return count, nil
}

// Trace returns the steps recorded by the last run, ending with
// StageDone if the run completed.
func (p *Pipeline) Trace() []StageRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.trace)
}

// Features reads back the features of the last run.
func (p *Pipeline) Features(ctx context.Context) ([]Feature, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("orb: features: %w", ErrClosed)
	}
	n, err := p.count(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Feature, p.cfg.MaxFeatures)
	if err := p.rd.ReadInto(ctx, compact.Features, out); err != nil {
		return nil, err
	}
	return out[:n], nil
}

// Descriptors reads back the descriptors of the last run. Descriptor i
// belongs to feature i.
func (p *Pipeline) Descriptors(ctx context.Context) ([]Descriptor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, fmt.Errorf("orb: descriptors: %w", ErrClosed)
	}
	if !p.cfg.Descriptors {
		return nil, ErrDescriptorsDisabled
	}
	n, err := p.count(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Descriptor, p.cfg.MaxFeatures)
	if err := p.rd.ReadInto(ctx, labelDescriptors, out); err != nil {
		return nil, err
	}
	return out[:n], nil
}

func (p *Pipeline) count(ctx context.Context) (uint32, error) {
	n, err := p.rd.ReadU32(ctx, compact.FeatureTotal)
	if err != nil {
		return 0, err
	}
	return min(n, p.cfg.MaxFeatures), nil
}

// Close destroys every resource. Close is idempotent.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.plan = nil
	if err := p.reg.Close(); err != nil {
		logger.L().Warn("orb: release resources", "err", err)
		return err
	}
	return nil
}
