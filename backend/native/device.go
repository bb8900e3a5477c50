//go:build !nogpu

// Package native implements gpucore.Device on the gogpu/wgpu HAL.
//
// WGSL programs are compiled to SPIR-V with naga. Submit blocks until the
// queue reports the submission complete, so MapAsync maps the buffer once
// the callback is due and delivers a host copy from the next Poll.
//
// Parameter blocks are not part of the HAL: a pipeline layout with a
// non-zero ParamBlockSize gets an extra uniform bind group at index
// len(BindGroupLayouts), and every SetParams call before a dispatch or
// draw uploads a fresh uniform buffer that lives until its submission
// completes.
package native

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/orb/gpucore"
	"github.com/gogpu/orb/internal/logger"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan" // register the Vulkan backend
)

const (
	defaultSubmitTimeout = 5 * time.Second
	submitPollInterval  = 100 * time.Microsecond
)

// Device is a gpucore.Device backed by a HAL device and queue.
//
// Thread Safety: Device is safe for concurrent use. Submissions are
// serialized.
type Device struct {
	device   hal.Device
	queue    hal.Queue
	instance hal.Instance
	owned    bool
	adapter  string
	timeout  time.Duration

	nextID atomic.Uint64
	lost   atomic.Bool

	// mu guards the resource maps and buffer map state.
	mu               sync.Mutex
	buffers          map[gpucore.BufferID]*buffer
	textures         map[gpucore.TextureID]*texture
	views            map[gpucore.TextureViewID]*textureView
	samplers         map[gpucore.SamplerID]hal.Sampler
	modules          map[gpucore.ShaderModuleID]*shaderModule
	bgLayouts        map[gpucore.BindGroupLayoutID]hal.BindGroupLayout
	bindGroups       map[gpucore.BindGroupID]hal.BindGroup
	pipeLayouts      map[gpucore.PipelineLayoutID]*pipelineLayout
	computePipelines map[gpucore.ComputePipelineID]*computePipeline
	renderPipelines  map[gpucore.RenderPipelineID]*renderPipeline
	pendingMaps      []*pendingMap

	submitMu sync.Mutex
}

var _ gpucore.Device = (*Device)(nil)

type pendingMap struct {
	id       gpucore.BufferID
	status   gpucore.MapStatus
	callback func(gpucore.MapStatus)
}

// Open acquires a GPU: it creates an instance of the configured backend,
// prefers a discrete or integrated adapter and opens it with default
// limits. The device owns the instance and releases it in Destroy.
func Open(opts ...Option) (*Device, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	backend, ok := hal.GetBackend(o.backend)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, o.backend)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("native: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoGPU
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("native: open device: %w", err)
	}

	d := newDevice(openDev.Device, openDev.Queue, o)
	d.instance = instance
	d.owned = true
	d.adapter = selected.Info.Name
	logger.L().Info("native: device ready", "adapter", d.adapter, "backend", o.backend)
	return d, nil
}

// FromProvider wraps a GPU shared by another gogpu component. The
// provider must implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue. Destroy does not release a shared device.
func FromProvider(provider any, opts ...Option) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrProvider)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrProvider)
	}
	return Wrap(device, queue, opts...), nil
}

// Wrap builds a Device over an existing HAL device and queue. The caller
// keeps ownership of both.
func Wrap(device hal.Device, queue hal.Queue, opts ...Option) *Device {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	d := newDevice(device, queue, o)
	logger.L().Debug("native: wrapped shared device")
	return d
}

func newDevice(device hal.Device, queue hal.Queue, o options) *Device {
	return &Device{
		device:           device,
		queue:            queue,
		timeout:          o.submitTimeout,
		buffers:          make(map[gpucore.BufferID]*buffer),
		textures:         make(map[gpucore.TextureID]*texture),
		views:            make(map[gpucore.TextureViewID]*textureView),
		samplers:         make(map[gpucore.SamplerID]hal.Sampler),
		modules:          make(map[gpucore.ShaderModuleID]*shaderModule),
		bgLayouts:        make(map[gpucore.BindGroupLayoutID]hal.BindGroupLayout),
		bindGroups:       make(map[gpucore.BindGroupID]hal.BindGroup),
		pipeLayouts:      make(map[gpucore.PipelineLayoutID]*pipelineLayout),
		computePipelines: make(map[gpucore.ComputePipelineID]*computePipeline),
		renderPipelines:  make(map[gpucore.RenderPipelineID]*renderPipeline),
	}
}

// Adapter returns the adapter name, empty for wrapped devices.
func (d *Device) Adapter() string { return d.adapter }

func (d *Device) newID() uint64 { return d.nextID.Add(1) }

func (d *Device) alive() error {
	if d.lost.Load() {
		return ErrDeviceLost
	}
	return nil
}

// Lose marks the device lost. Later submissions fail with ErrDeviceLost
// and pending maps complete with MapStatusDeviceLost.
func (d *Device) Lose() {
	if d.lost.CompareAndSwap(false, true) {
		logger.L().Warn("native: device lost")
	}
}

// Destroy releases every resource still alive and, for devices created
// by Open, the HAL device and instance.
func (d *Device) Destroy() {
	d.Lose()

	d.mu.Lock()
	for id, p := range d.computePipelines {
		d.device.DestroyComputePipeline(p.raw)
		delete(d.computePipelines, id)
	}
	for id, p := range d.renderPipelines {
		d.device.DestroyRenderPipeline(p.raw)
		delete(d.renderPipelines, id)
	}
	for id, l := range d.pipeLayouts {
		d.destroyPipelineLayout(l)
		delete(d.pipeLayouts, id)
	}
	for id, g := range d.bindGroups {
		d.device.DestroyBindGroup(g)
		delete(d.bindGroups, id)
	}
	for id, l := range d.bgLayouts {
		d.device.DestroyBindGroupLayout(l)
		delete(d.bgLayouts, id)
	}
	for id, m := range d.modules {
		d.device.DestroyShaderModule(m.raw)
		delete(d.modules, id)
	}
	for id, s := range d.samplers {
		d.device.DestroySampler(s)
		delete(d.samplers, id)
	}
	for id, v := range d.views {
		d.device.DestroyTextureView(v.raw)
		delete(d.views, id)
	}
	for id, t := range d.textures {
		d.device.DestroyTexture(t.raw)
		delete(d.textures, id)
	}
	for id, b := range d.buffers {
		d.device.DestroyBuffer(b.raw)
		delete(d.buffers, id)
	}
	d.mu.Unlock()

	if d.owned {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
		d.owned = false
	}
}

// Poll delivers the callbacks of pending map requests. Submit waits for
// its submission to complete, so every pending map is ready by the next
// Poll.
func (d *Device) Poll(_ bool) {
	lost := d.lost.Load()

	d.mu.Lock()
	ready := d.pendingMaps
	d.pendingMaps = nil
	for _, pm := range ready {
		// A request cancelled by Unmap no longer owns the buffer state.
		if pm.status == gpucore.MapStatusUnmappedBeforeCallback {
			continue
		}
		b, ok := d.buffers[pm.id]
		if !ok {
			pm.status = gpucore.MapStatusDestroyedBeforeCallback
			continue
		}
		if lost && pm.status == gpucore.MapStatusSuccess {
			pm.status = gpucore.MapStatusDeviceLost
		}
		if pm.status == gpucore.MapStatusSuccess {
			data, err := d.readBuffer(b)
			if err != nil {
				logger.L().Warn("native: read buffer", "label", b.desc.Label, "err", err)
				pm.status = gpucore.MapStatusValidationError
			} else {
				b.mapped = data
			}
		}
		if pm.status == gpucore.MapStatusSuccess {
			b.state = mapMapped
		} else {
			b.state = mapUnmapped
		}
	}
	d.mu.Unlock()

	for _, pm := range ready {
		pm.callback(pm.status)
	}
}

// MapAsync requests host access to a buffer range; the callback fires from
// the next Poll.
func (d *Device) MapAsync(id gpucore.BufferID, mode gpucore.MapMode, offset, size uint64, callback func(gpucore.MapStatus)) error {
	if callback == nil {
		return fmt.Errorf("native: map buffer %d: %w: nil callback", id, ErrInvalidDescriptor)
	}
	if mode != gpucore.MapModeRead {
		return fmt.Errorf("native: map buffer %d: %w: only read mapping is supported", id, ErrInvalidDescriptor)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("native: map buffer %d: %w", id, ErrUnknownResource)
	}
	if b.state != mapUnmapped {
		return fmt.Errorf("native: map buffer %q: %w", b.desc.Label, ErrBufferMapped)
	}
	if b.desc.Usage&gputypes.BufferUsageMapRead == 0 {
		return fmt.Errorf("native: map buffer %q: %w: MapRead", b.desc.Label, ErrUsage)
	}
	if size == 0 {
		size = b.desc.Size - min(offset, b.desc.Size)
	}
	if offset+size > b.desc.Size {
		return fmt.Errorf("native: map buffer %q: %w: %d+%d > %d", b.desc.Label, ErrInvalidDescriptor, offset, size, b.desc.Size)
	}

	b.state = mapPending
	b.mapOffset, b.mapSize = offset, size
	d.pendingMaps = append(d.pendingMaps, &pendingMap{
		id:       id,
		status:   gpucore.MapStatusSuccess,
		callback: callback,
	})
	return nil
}

// MappedRange returns the host copy of the mapped bytes.
func (d *Device) MappedRange(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("native: mapped range %d: %w", id, ErrUnknownResource)
	}
	if b.state != mapMapped {
		return nil, fmt.Errorf("native: mapped range %q: %w", b.desc.Label, ErrBufferNotMapped)
	}
	if offset < b.mapOffset || offset+size > b.mapOffset+b.mapSize {
		return nil, fmt.Errorf("native: mapped range %q: %w: %d+%d", b.desc.Label, ErrInvalidDescriptor, offset, size)
	}
	start := offset - b.mapOffset
	return b.mapped[start : start+size], nil
}

// Unmap releases host access. Unmapping a pending buffer completes its
// callback with MapStatusUnmappedBeforeCallback on the next Poll.
func (d *Device) Unmap(id gpucore.BufferID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("native: unmap %d: %w", id, ErrUnknownResource)
	}
	switch b.state {
	case mapUnmapped:
		return fmt.Errorf("native: unmap %q: %w", b.desc.Label, ErrBufferNotMapped)
	case mapPending:
		for _, pm := range d.pendingMaps {
			if pm.id == id {
				pm.status = gpucore.MapStatusUnmappedBeforeCallback
			}
		}
	}
	b.state = mapUnmapped
	b.mapped = nil
	return nil
}

// readBuffer copies the mapped range of b to host memory. Caller holds d.mu.
func (d *Device) readBuffer(b *buffer) ([]byte, error) {
	if b.mapSize == 0 {
		return []byte{}, nil
	}
	m, err := d.device.MapBuffer(b.raw, b.mapOffset, b.mapSize)
	if err != nil {
		return nil, err
	}
	data := make([]byte, b.mapSize)
	copy(data, unsafe.Slice((*byte)(m.Ptr), b.mapSize))
	if err := d.device.UnmapBuffer(b.raw); err != nil {
		return nil, err
	}
	return data, nil
}
