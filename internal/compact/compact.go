// Package compact records the two-phase stream compaction that gathers the
// per-chunk corner lists into one dense feature array.
//
// Phase one is an inclusive Hillis-Steele scan over the chunk counters:
// ceil(log2 n) rounds ping-pong between the global counter table and a
// scratch table so no round reads what it writes. A finalize pass turns
// the inclusive sums into exclusive offsets and writes the clamped total.
// Phase two scatters each chunk's corners to its offset. The raw counter
// table is never written by the scan, so the scatter still sees the local
// counts.
package compact

import (
	"fmt"
	"math/bits"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/orb/gpucore"
	"github.com/gogpu/orb/kernels"
	"github.com/gogpu/orb/registry"
)

// Labels of the buffers the compactor reads and writes. ChunkCounters,
// ChunkCorners, Features and FeatureTotal are shared with the corner
// detector and must exist before New; the scan tables are created by New.
const (
	ChunkCounters       = "chunk_counters"
	ChunkCountersGlobal = "chunk_counters_global"
	ChunkScanScratch    = "chunk_scan_scratch"
	ChunkCorners        = "chunk_corners"
	Features            = "features"
	FeatureTotal        = "feature_total"
)

// Binding set and pipeline labels.
const (
	SetScanPing     = "scan_ping"
	SetScanPong     = "scan_pong"
	SetScanFinalize = "scan_finalize"
	SetScatter      = "scatter"

	pipeRound    = "scan_round"
	pipeFinalize = "scan_finalize"
	pipeScatter  = "scatter"
)

// Step identifies one recorded compaction step.
type Step int

const (
	StepCounterCopy Step = iota
	StepRound
	StepParityCopy
	StepFinalize
	StepScatter
)

// String returns the string representation of Step.
func (s Step) String() string {
	switch s {
	case StepCounterCopy:
		return "CounterCopy"
	case StepRound:
		return "CompactionRound"
	case StepParityCopy:
		return "ParityCopy"
	case StepFinalize:
		return "Finalize"
	case StepScatter:
		return "Scatter"
	default:
		return fmt.Sprintf("Step(%d)", int(s))
	}
}

// Config sizes the compaction.
type Config struct {
	// Chunks is the total number of chunks over all levels.
	Chunks uint32

	// Capacity is the per-chunk corner capacity K.
	Capacity uint32

	// MaxFeatures bounds the dense feature array.
	MaxFeatures uint32
}

// Rounds returns the number of scan rounds for n counters: ceil(log2 n).
func Rounds(n uint32) int {
	if n <= 1 {
		return 0
	}
	return bits.Len32(n - 1)
}

// TraceFunc observes every recorded step. index is the round for
// StepRound and 0 otherwise; groups is the number of workgroups, 0 for
// copies.
type TraceFunc func(step Step, index int, groups uint32)

// Compactor records the compaction into a command batch.
type Compactor struct {
	cfg    Config
	rounds int

	counters *registry.Buffer
	global   *registry.Buffer
	scratch  *registry.Buffer

	ping, pong, finalize, scatter *registry.BindingSet
	roundPipe                     *registry.Pipeline
	finalizePipe                  *registry.Pipeline
	scatterPipe                   *registry.Pipeline
}

// New creates the scan tables, binding sets and pipelines. The scan
// program must already be loaded under kernels.Scan.
func New(reg *registry.Registry, cfg Config) (*Compactor, error) {
	if cfg.Chunks == 0 || cfg.Capacity == 0 || cfg.Capacity > kernels.MaxChunkCapacity || cfg.MaxFeatures == 0 {
		return nil, fmt.Errorf("compact: invalid config %+v", cfg)
	}

	c := &Compactor{cfg: cfg, rounds: Rounds(cfg.Chunks)}
	var err error
	if c.counters, err = reg.Buffer(ChunkCounters); err != nil {
		return nil, err
	}

	tableSize := uint64(cfg.Chunks) * 4
	usage := gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	if c.global, err = reg.CreateBuffer(ChunkCountersGlobal, tableSize, usage); err != nil {
		return nil, err
	}
	if c.scratch, err = reg.CreateBuffer(ChunkScanScratch, tableSize, usage); err != nil {
		return nil, err
	}

	cornersSize := uint64(cfg.Chunks) * uint64(cfg.Capacity) * kernels.FeatureSize
	featuresSize := uint64(cfg.MaxFeatures) * kernels.FeatureSize

	if c.ping, err = reg.BuildBindingSet(SetScanPing,
		registry.StorageBuffer{Label: ChunkCountersGlobal, MinSize: tableSize, ReadOnly: true},
		registry.StorageBuffer{Label: ChunkScanScratch, MinSize: tableSize},
	); err != nil {
		return nil, err
	}
	if c.pong, err = reg.BuildBindingSet(SetScanPong,
		registry.StorageBuffer{Label: ChunkScanScratch, MinSize: tableSize, ReadOnly: true},
		registry.StorageBuffer{Label: ChunkCountersGlobal, MinSize: tableSize},
	); err != nil {
		return nil, err
	}
	if c.finalize, err = reg.BuildBindingSet(SetScanFinalize,
		registry.StorageBuffer{Label: ChunkScanScratch, MinSize: tableSize, ReadOnly: true},
		registry.StorageBuffer{Label: ChunkCounters, MinSize: tableSize, ReadOnly: true},
		registry.StorageBuffer{Label: ChunkCountersGlobal, MinSize: tableSize},
		registry.StorageBuffer{Label: FeatureTotal, MinSize: 4},
	); err != nil {
		return nil, err
	}
	if c.scatter, err = reg.BuildBindingSet(SetScatter,
		registry.StorageBuffer{Label: ChunkCounters, MinSize: tableSize, ReadOnly: true},
		registry.StorageBuffer{Label: ChunkCountersGlobal, MinSize: tableSize, ReadOnly: true},
		registry.StorageBuffer{Label: ChunkCorners, MinSize: cornersSize, ReadOnly: true},
		registry.StorageBuffer{Label: Features, MinSize: featuresSize},
	); err != nil {
		return nil, err
	}

	// scan_ping and scan_pong share one layout shape; the pipeline is
	// built against scan_ping and bound with either.
	if c.roundPipe, err = reg.BuildComputePipeline(pipeRound, kernels.Scan, kernels.ScanRound,
		[]string{SetScanPing}, kernels.ScanParamsSize); err != nil {
		return nil, err
	}
	if c.finalizePipe, err = reg.BuildComputePipeline(pipeFinalize, kernels.Scan, kernels.ScanFinalize,
		[]string{SetScanFinalize}, kernels.ScanParamsSize); err != nil {
		return nil, err
	}
	if c.scatterPipe, err = reg.BuildComputePipeline(pipeScatter, kernels.Scan, kernels.Scatter,
		[]string{SetScatter}, kernels.ScanParamsSize); err != nil {
		return nil, err
	}
	return c, nil
}

// Rounds returns the number of scan rounds the compactor records.
func (c *Compactor) Rounds() int { return c.rounds }

// FoldGrid lays out groups workgroups as x*y >= groups, folding into a
// second dimension past the per-axis limit. Kernels recover the linear
// workgroup index as wid.y*nwg.x + wid.x.
func FoldGrid(groups uint32) (x, y uint32) {
	x = min(max(groups, 1), kernels.MaxWorkgroupsPerDimension)
	return x, (max(groups, 1) + x - 1) / x
}

// ScatterGrid returns the workgroup grid of the scatter pass: one
// workgroup per chunk.
func ScatterGrid(chunks uint32) (x, y uint32) { return FoldGrid(chunks) }

// ScanGrid returns the workgroup grid of the scan round and finalize
// passes: one invocation per chunk counter.
func ScanGrid(chunks uint32) (x, y uint32) {
	return FoldGrid((chunks + kernels.LinearWorkgroup - 1) / kernels.LinearWorkgroup)
}

func (c *Compactor) params(stride uint32) []byte {
	return kernels.ScanParams{
		Stride:      stride,
		Count:       c.cfg.Chunks,
		MaxFeatures: c.cfg.MaxFeatures,
		Capacity:    c.cfg.Capacity,
	}.Bytes()
}

func (c *Compactor) dispatch(enc gpucore.CommandEncoder, label string, p *registry.Pipeline,
	set *registry.BindingSet, params []byte, x, y uint32) {
	pass := enc.BeginComputePass(label)
	pass.SetPipeline(p.Compute)
	pass.SetBindGroup(0, set.ID)
	pass.SetParams(params)
	pass.Dispatch(x, y, 1)
	pass.End()
}

// Encode records the whole compaction. trace may be nil.
func (c *Compactor) Encode(enc gpucore.CommandEncoder, trace TraceFunc) {
	if trace == nil {
		trace = func(Step, int, uint32) {}
	}
	n := c.cfg.Chunks
	tableSize := uint64(n) * 4
	sx, sy := ScanGrid(n)

	enc.CopyBufferToBuffer(c.counters.ID, 0, c.global.ID, 0, tableSize)
	trace(StepCounterCopy, 0, 0)

	for r := range c.rounds {
		set := c.ping
		if r%2 == 1 {
			set = c.pong
		}
		c.dispatch(enc, fmt.Sprintf("scan round %d", r), c.roundPipe, set, c.params(1<<r), sx, sy)
		trace(StepRound, r, sx*sy)
	}

	// Finalize always reads the inclusive sums from scratch.
	if c.rounds%2 == 0 {
		enc.CopyBufferToBuffer(c.global.ID, 0, c.scratch.ID, 0, tableSize)
		trace(StepParityCopy, 0, 0)
	}

	c.dispatch(enc, "scan finalize", c.finalizePipe, c.finalize, c.params(0), sx, sy)
	trace(StepFinalize, 0, sx*sy)

	gx, gy := ScatterGrid(n)
	c.dispatch(enc, "scatter", c.scatterPipe, c.scatter, c.params(0), gx, gy)
	trace(StepScatter, 0, gx*gy)
}
