// Package software implements gpucore.Device on the CPU.
//
// Programs are resolved by entry point name against a table of Go kernels
// (see [Kernels]); the program source itself is opaque and only kept as a
// label. Dispatches run their workgroups in parallel on a worker pool,
// submissions execute synchronously, and MapAsync callbacks are delivered
// from Poll, so the device honours the same completion protocol as a real
// GPU backend.
//
// The device doubles as a test fixture: [WithMapLatency] delays map
// completion by a number of Poll calls and [Device.Lose] simulates device
// loss.
package software

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/orb/gpucore"
	"github.com/gogpu/orb/internal/logger"
	"github.com/gogpu/orb/internal/parallel"
)

// Device is a CPU implementation of gpucore.Device.
type Device struct {
	kernels    Kernels
	workers    int
	mapLatency int
	pool       *parallel.WorkerPool

	nextID atomic.Uint64
	lost   atomic.Bool
	polls  atomic.Uint64

	// mu guards the resource maps and buffer map state.
	mu               sync.Mutex
	buffers          map[gpucore.BufferID]*buffer
	textures         map[gpucore.TextureID]*texture
	views            map[gpucore.TextureViewID]*textureView
	samplers         map[gpucore.SamplerID]*sampler
	modules          map[gpucore.ShaderModuleID]*shaderModule
	bgLayouts        map[gpucore.BindGroupLayoutID]*bindGroupLayout
	bindGroups       map[gpucore.BindGroupID]*bindGroup
	pipeLayouts      map[gpucore.PipelineLayoutID]*pipelineLayout
	computePipelines map[gpucore.ComputePipelineID]*computePipeline
	renderPipelines  map[gpucore.RenderPipelineID]*renderPipeline
	pendingMaps      []*pendingMap

	// execMu serialises submissions.
	execMu sync.Mutex
}

var _ gpucore.Device = (*Device)(nil)

type pendingMap struct {
	id        gpucore.BufferID
	remaining int
	status    gpucore.MapStatus
	callback  func(gpucore.MapStatus)
}

// New creates a software device executing the given kernels.
func New(kernels Kernels, opts ...Option) *Device {
	d := &Device{
		kernels:          kernels,
		mapLatency:       1,
		buffers:          make(map[gpucore.BufferID]*buffer),
		textures:         make(map[gpucore.TextureID]*texture),
		views:            make(map[gpucore.TextureViewID]*textureView),
		samplers:         make(map[gpucore.SamplerID]*sampler),
		modules:          make(map[gpucore.ShaderModuleID]*shaderModule),
		bgLayouts:        make(map[gpucore.BindGroupLayoutID]*bindGroupLayout),
		bindGroups:       make(map[gpucore.BindGroupID]*bindGroup),
		pipeLayouts:      make(map[gpucore.PipelineLayoutID]*pipelineLayout),
		computePipelines: make(map[gpucore.ComputePipelineID]*computePipeline),
		renderPipelines:  make(map[gpucore.RenderPipelineID]*renderPipeline),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.pool = parallel.NewWorkerPool(d.workers)

	logger.L().Debug("software: device created",
		"kernels", len(kernels),
		"workers", d.pool.Workers(),
		"mapLatency", d.mapLatency)
	return d
}

func (d *Device) newID() uint64 { return d.nextID.Add(1) }

func (d *Device) alive() error {
	if d.lost.Load() {
		return ErrDeviceLost
	}
	return nil
}

// Lose simulates device loss. Every later submission fails with
// ErrDeviceLost and pending maps complete with MapStatusDeviceLost.
func (d *Device) Lose() {
	if d.lost.CompareAndSwap(false, true) {
		logger.L().Warn("software: device lost")
	}
}

// Destroy loses the device and stops its workers.
func (d *Device) Destroy() {
	d.Lose()
	d.pool.Close()
}

// PollCount returns the number of Poll calls made so far.
func (d *Device) PollCount() uint64 { return d.polls.Load() }

// Poll advances pending map requests by one step and delivers the
// callbacks of those that completed. wait is accepted for interface
// compatibility: submissions already run to completion synchronously.
func (d *Device) Poll(wait bool) {
	d.polls.Add(1)
	lost := d.lost.Load()

	d.mu.Lock()
	var ready []*pendingMap
	keep := d.pendingMaps[:0]
	for _, pm := range d.pendingMaps {
		pm.remaining--
		if pm.remaining > 0 && !lost {
			keep = append(keep, pm)
			continue
		}
		if lost && pm.status == gpucore.MapStatusSuccess {
			pm.status = gpucore.MapStatusDeviceLost
		}
		// A request cancelled by Unmap no longer owns the buffer state.
		if b, ok := d.buffers[pm.id]; ok && pm.status != gpucore.MapStatusUnmappedBeforeCallback {
			if pm.status == gpucore.MapStatusSuccess {
				b.state = mapMapped
			} else {
				b.state = mapUnmapped
			}
		}
		ready = append(ready, pm)
	}
	d.pendingMaps = keep
	d.mu.Unlock()

	for _, pm := range ready {
		pm.callback(pm.status)
	}
}

// MapAsync requests host access to a buffer range; the callback fires from
// a later Poll.
func (d *Device) MapAsync(id gpucore.BufferID, mode gpucore.MapMode, offset, size uint64, callback func(gpucore.MapStatus)) error {
	if callback == nil {
		return fmt.Errorf("software: map buffer %d: %w: nil callback", id, ErrInvalidDescriptor)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("software: map buffer %d: %w", id, ErrUnknownResource)
	}
	if b.state != mapUnmapped {
		return fmt.Errorf("software: map buffer %q: %w", b.desc.Label, ErrBufferMapped)
	}
	want := gputypes.BufferUsageMapRead
	if mode == gpucore.MapModeWrite {
		want = gputypes.BufferUsageMapWrite
	}
	if b.desc.Usage&want == 0 {
		return fmt.Errorf("software: map buffer %q: %w: map mode %d", b.desc.Label, ErrUsage, mode)
	}
	if size == 0 {
		size = b.desc.Size - min(offset, b.desc.Size)
	}
	if offset+size > b.desc.Size {
		return fmt.Errorf("software: map buffer %q: %w: %d+%d > %d", b.desc.Label, ErrOutOfRange, offset, size, b.desc.Size)
	}

	b.state = mapPending
	b.mapOffset, b.mapSize = offset, size
	d.pendingMaps = append(d.pendingMaps, &pendingMap{
		id:        id,
		remaining: d.mapLatency,
		status:    gpucore.MapStatusSuccess,
		callback:  callback,
	})
	return nil
}

// MappedRange returns a view of the mapped bytes.
func (d *Device) MappedRange(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("software: mapped range %d: %w", id, ErrUnknownResource)
	}
	if b.state != mapMapped {
		return nil, fmt.Errorf("software: mapped range %q: %w", b.desc.Label, ErrBufferNotMapped)
	}
	if offset < b.mapOffset || offset+size > b.mapOffset+b.mapSize {
		return nil, fmt.Errorf("software: mapped range %q: %w", b.desc.Label, ErrOutOfRange)
	}
	return b.data[offset : offset+size], nil
}

// Unmap releases host access. Unmapping a pending buffer completes its
// callback with MapStatusUnmappedBeforeCallback on the next Poll.
func (d *Device) Unmap(id gpucore.BufferID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("software: unmap %d: %w", id, ErrUnknownResource)
	}
	switch b.state {
	case mapUnmapped:
		return fmt.Errorf("software: unmap %q: %w", b.desc.Label, ErrBufferNotMapped)
	case mapPending:
		for _, pm := range d.pendingMaps {
			if pm.id == id {
				pm.status = gpucore.MapStatusUnmappedBeforeCallback
				pm.remaining = 0
			}
		}
	}
	b.state = mapUnmapped
	return nil
}
