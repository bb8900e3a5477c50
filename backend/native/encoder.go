//go:build !nogpu

package native

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/orb/gpucore"
	"github.com/gogpu/orb/internal/logger"
	"github.com/gogpu/wgpu/hal"
)

// paramAlignment is the uniform buffer size granularity.
const paramAlignment = 16

// transients are the per-dispatch parameter buffers and bind groups of one
// batch, released once the batch completes.
type transients struct {
	buffers []hal.Buffer
	groups  []hal.BindGroup
}

func (t *transients) release(device hal.Device) {
	for _, g := range t.groups {
		device.DestroyBindGroup(g)
	}
	for _, b := range t.buffers {
		device.DestroyBuffer(b)
	}
	t.groups, t.buffers = nil, nil
}

// commandBuffer is a finished batch.
type commandBuffer struct {
	label string
	raw   hal.CommandBuffer
	tmp   transients

	mu        sync.Mutex
	submitted bool
}

func (c *commandBuffer) Label() string { return c.label }

// commandEncoder records straight into a HAL encoder. The first recording
// error sticks and is returned from Finish.
type commandEncoder struct {
	dev      *Device
	label    string
	raw      hal.CommandEncoder
	tmp      transients
	err      error
	passOpen bool
	finished bool
}

// CreateCommandEncoder starts a new batch.
func (d *Device) CreateCommandEncoder(label string) (gpucore.CommandEncoder, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	raw, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("native: create command encoder %q: %w", label, err)
	}
	if err := raw.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("native: begin encoding %q: %w", label, err)
	}
	return &commandEncoder{dev: d, label: label, raw: raw}, nil
}

func (e *commandEncoder) fail(err error) {
	if e.err == nil {
		e.err = fmt.Errorf("native: encoder %q: %w", e.label, err)
	}
}

func (e *commandEncoder) beginPass() bool {
	switch {
	case e.err != nil:
		return false
	case e.finished:
		e.fail(fmt.Errorf("%w: encoder already finished", ErrEncoderState))
		return false
	case e.passOpen:
		e.fail(fmt.Errorf("%w: previous pass not ended", ErrEncoderState))
		return false
	}
	e.passOpen = true
	return true
}

// bindParams uploads a parameter block and returns the bind group for
// index layout.sets. It returns nil for layouts without parameters.
func (e *commandEncoder) bindParams(layout *pipelineLayout, data []byte) hal.BindGroup {
	if layout.paramSize == 0 {
		return nil
	}
	if uint32(len(data)) < layout.paramSize {
		e.fail(fmt.Errorf("%w: %d parameter bytes, pipeline expects %d", ErrEncoderState, len(data), layout.paramSize))
		return nil
	}
	size := uint64((layout.paramSize + paramAlignment - 1) &^ (paramAlignment - 1))
	device := e.dev.device

	ub, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: e.label + " params",
		Size:  size,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		e.fail(fmt.Errorf("params buffer: %w", err))
		return nil
	}
	e.tmp.buffers = append(e.tmp.buffers, ub)

	block := make([]byte, size)
	copy(block, data[:layout.paramSize])
	if err := e.dev.queue.WriteBuffer(ub, 0, block); err != nil {
		e.fail(fmt.Errorf("params upload: %w", err))
		return nil
	}

	bg, err := device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  e.label + " params",
		Layout: layout.params,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: ub.NativeHandle(), Offset: 0, Size: size}},
		},
	})
	if err != nil {
		e.fail(fmt.Errorf("params bind group: %w", err))
		return nil
	}
	e.tmp.groups = append(e.tmp.groups, bg)
	return bg
}

// BeginComputePass opens a compute pass.
func (e *commandEncoder) BeginComputePass(label string) gpucore.ComputePassEncoder {
	p := &computePass{enc: e}
	if !e.beginPass() {
		p.ended = true
		return p
	}
	p.raw = e.raw.BeginComputePass(&hal.ComputePassDescriptor{Label: label})
	return p
}

// BeginRenderPass opens a render pass against one single-level color
// target.
func (e *commandEncoder) BeginRenderPass(desc *gpucore.RenderPassDesc) gpucore.RenderPassEncoder {
	p := &renderPass{enc: e}
	if !e.beginPass() {
		p.ended = true
		return p
	}
	if desc == nil {
		e.fail(fmt.Errorf("%w: nil render pass descriptor", ErrInvalidDescriptor))
		p.ended = true
		return p
	}

	e.dev.mu.Lock()
	v, ok := e.dev.views[desc.Target]
	e.dev.mu.Unlock()
	switch {
	case !ok:
		e.fail(fmt.Errorf("render pass %q: target %d: %w", desc.Label, desc.Target, ErrUnknownResource))
		p.ended = true
		return p
	case v.texture.desc.Usage&gputypes.TextureUsageRenderAttachment == 0:
		e.fail(fmt.Errorf("render pass %q: %w: %q is not a render attachment", desc.Label, ErrUsage, v.texture.desc.Label))
		p.ended = true
		return p
	}

	load := gputypes.LoadOpLoad
	if desc.Clear {
		load = gputypes.LoadOpClear
	}
	p.target = v.texture
	p.raw = e.raw.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: desc.Label,
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       v.raw,
			LoadOp:     load,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: desc.ClearColor,
		}},
	})
	return p
}

// CopyBufferToBuffer records a copy between buffers.
func (e *commandEncoder) CopyBufferToBuffer(src gpucore.BufferID, srcOffset uint64, dst gpucore.BufferID, dstOffset uint64, size uint64) {
	switch {
	case e.err != nil:
		return
	case e.finished || e.passOpen:
		e.fail(fmt.Errorf("%w: copy outside of an open encoder", ErrEncoderState))
		return
	case srcOffset%4 != 0 || dstOffset%4 != 0 || size%4 != 0:
		e.fail(fmt.Errorf("%w: copy %d+%d -> %d not 4-byte aligned", ErrInvalidDescriptor, srcOffset, size, dstOffset))
		return
	}

	e.dev.mu.Lock()
	s, sok := e.dev.buffers[src]
	t, tok := e.dev.buffers[dst]
	e.dev.mu.Unlock()
	switch {
	case !sok || !tok:
		e.fail(fmt.Errorf("copy %d -> %d: %w", src, dst, ErrUnknownResource))
	case s.desc.Usage&gputypes.BufferUsageCopySrc == 0:
		e.fail(fmt.Errorf("copy: %w: %q lacks CopySrc", ErrUsage, s.desc.Label))
	case t.desc.Usage&gputypes.BufferUsageCopyDst == 0:
		e.fail(fmt.Errorf("copy: %w: %q lacks CopyDst", ErrUsage, t.desc.Label))
	case srcOffset+size > s.desc.Size || dstOffset+size > t.desc.Size:
		e.fail(fmt.Errorf("copy %q -> %q: %w: %d bytes", s.desc.Label, t.desc.Label, ErrInvalidDescriptor, size))
	default:
		e.raw.CopyBufferToBuffer(s.raw, t.raw, []hal.BufferCopy{
			{SrcOffset: srcOffset, DstOffset: dstOffset, Size: size},
		})
	}
}

// Finish ends encoding. On a recording error the HAL encoding is discarded
// and the error returned.
func (e *commandEncoder) Finish() (gpucore.CommandBuffer, error) {
	if e.finished {
		return nil, fmt.Errorf("native: encoder %q: %w: already finished", e.label, ErrEncoderState)
	}
	e.finished = true
	if e.err == nil && e.passOpen {
		e.fail(fmt.Errorf("%w: pass not ended", ErrEncoderState))
	}
	if e.err != nil {
		e.raw.DiscardEncoding()
		e.tmp.release(e.dev.device)
		return nil, e.err
	}
	raw, err := e.raw.EndEncoding()
	if err != nil {
		e.tmp.release(e.dev.device)
		return nil, fmt.Errorf("native: end encoding %q: %w", e.label, err)
	}
	return &commandBuffer{label: e.label, raw: raw, tmp: e.tmp}, nil
}

// =============================================================================
// Passes
// =============================================================================

type computePass struct {
	enc      *commandEncoder
	raw      hal.ComputePassEncoder
	pipeline *computePipeline
	params   []byte
	ended    bool
}

func (p *computePass) active() bool { return !p.ended && p.enc.err == nil }

// SetPipeline binds a compute pipeline.
func (p *computePass) SetPipeline(id gpucore.ComputePipelineID) {
	if !p.active() {
		return
	}
	p.enc.dev.mu.Lock()
	cp, ok := p.enc.dev.computePipelines[id]
	p.enc.dev.mu.Unlock()
	if !ok {
		p.enc.fail(fmt.Errorf("compute pipeline %d: %w", id, ErrUnknownResource))
		return
	}
	p.pipeline = cp
	p.raw.SetPipeline(cp.raw)
}

// SetBindGroup binds a bind group at index.
func (p *computePass) SetBindGroup(index uint32, group gpucore.BindGroupID) {
	if !p.active() {
		return
	}
	p.enc.dev.mu.Lock()
	bg, ok := p.enc.dev.bindGroups[group]
	p.enc.dev.mu.Unlock()
	if !ok {
		p.enc.fail(fmt.Errorf("bind group %d: %w", group, ErrUnknownResource))
		return
	}
	p.raw.SetBindGroup(index, bg, nil)
}

// SetParams stages the parameter block used by following dispatches.
func (p *computePass) SetParams(data []byte) {
	p.params = append(p.params[:0], data...)
}

// Dispatch records a dispatch with the staged parameters.
func (p *computePass) Dispatch(x, y, z uint32) {
	if !p.active() {
		return
	}
	if p.pipeline == nil {
		p.enc.fail(fmt.Errorf("%w: dispatch without pipeline", ErrEncoderState))
		return
	}
	if bg := p.enc.bindParams(p.pipeline.layout, p.params); bg != nil {
		p.raw.SetBindGroup(p.pipeline.layout.sets, bg, nil)
	}
	if p.enc.err != nil {
		return
	}
	p.raw.Dispatch(x, y, z)
}

// End closes the pass.
func (p *computePass) End() {
	if p.ended {
		return
	}
	p.ended = true
	p.enc.passOpen = false
	p.raw.End()
}

type renderPass struct {
	enc      *commandEncoder
	raw      hal.RenderPassEncoder
	target   *texture
	pipeline *renderPipeline
	params   []byte
	ended    bool
}

func (p *renderPass) active() bool { return !p.ended && p.enc.err == nil }

// SetPipeline binds a render pipeline.
func (p *renderPass) SetPipeline(id gpucore.RenderPipelineID) {
	if !p.active() {
		return
	}
	p.enc.dev.mu.Lock()
	rp, ok := p.enc.dev.renderPipelines[id]
	p.enc.dev.mu.Unlock()
	if !ok {
		p.enc.fail(fmt.Errorf("render pipeline %d: %w", id, ErrUnknownResource))
		return
	}
	p.pipeline = rp
	p.raw.SetPipeline(rp.raw)
}

// SetBindGroup binds a bind group at index.
func (p *renderPass) SetBindGroup(index uint32, group gpucore.BindGroupID) {
	if !p.active() {
		return
	}
	p.enc.dev.mu.Lock()
	bg, ok := p.enc.dev.bindGroups[group]
	p.enc.dev.mu.Unlock()
	if !ok {
		p.enc.fail(fmt.Errorf("bind group %d: %w", group, ErrUnknownResource))
		return
	}
	p.raw.SetBindGroup(index, bg, nil)
}

// SetParams stages the parameter block used by following draws.
func (p *renderPass) SetParams(data []byte) {
	p.params = append(p.params[:0], data...)
}

// SetVertexBuffer binds a vertex buffer.
func (p *renderPass) SetVertexBuffer(slot uint32, buffer gpucore.BufferID, offset uint64) {
	if !p.active() {
		return
	}
	p.enc.dev.mu.Lock()
	b, ok := p.enc.dev.buffers[buffer]
	p.enc.dev.mu.Unlock()
	if !ok {
		p.enc.fail(fmt.Errorf("vertex buffer %d: %w", buffer, ErrUnknownResource))
		return
	}
	p.raw.SetVertexBuffer(slot, b.raw, offset)
}

// Draw records a draw with the staged parameters.
func (p *renderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if !p.active() {
		return
	}
	if p.pipeline == nil {
		p.enc.fail(fmt.Errorf("%w: draw without pipeline", ErrEncoderState))
		return
	}
	if bg := p.enc.bindParams(p.pipeline.layout, p.params); bg != nil {
		p.raw.SetBindGroup(p.pipeline.layout.sets, bg, nil)
	}
	if p.enc.err != nil {
		return
	}
	p.raw.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

// End closes the pass and transitions the target for sampling.
func (p *renderPass) End() {
	if p.ended {
		return
	}
	p.ended = true
	p.enc.passOpen = false
	p.raw.End()
	p.enc.raw.TransitionTextures([]hal.TextureBarrier{{
		Texture: p.target.raw,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageTextureBinding,
		},
	}})
}

// =============================================================================
// Submission
// =============================================================================

// Submit submits command buffers in one queue submission and waits until
// the queue reports it complete. A command buffer can be submitted once.
// A timeout marks the device lost.
func (d *Device) Submit(cmds ...gpucore.CommandBuffer) error {
	if err := d.alive(); err != nil {
		return fmt.Errorf("native: submit: %w", err)
	}

	d.submitMu.Lock()
	defer d.submitMu.Unlock()

	batch := make([]*commandBuffer, 0, len(cmds))
	raws := make([]hal.CommandBuffer, 0, len(cmds))
	for _, c := range cmds {
		cb, ok := c.(*commandBuffer)
		if !ok {
			return fmt.Errorf("native: submit: %w: foreign command buffer %T", ErrInvalidDescriptor, c)
		}
		cb.mu.Lock()
		already := cb.submitted
		cb.submitted = true
		cb.mu.Unlock()
		if already {
			return fmt.Errorf("native: submit %q: %w: already submitted", cb.label, ErrEncoderState)
		}
		batch = append(batch, cb)
		raws = append(raws, cb.raw)
	}
	defer func() {
		for _, cb := range batch {
			d.device.FreeCommandBuffer(cb.raw)
			cb.tmp.release(d.device)
		}
	}()

	idx, err := d.queue.Submit(raws)
	if err != nil {
		return fmt.Errorf("native: submit: %w", err)
	}
	if !d.waitSubmission(idx) {
		d.Lose()
		return fmt.Errorf("native: wait for GPU: %w after %v", ErrTimeout, d.timeout)
	}
	logger.L().Debug("native: batch complete", "buffers", len(batch))
	return nil
}

// waitSubmission polls the queue until submission idx has completed or the
// device timeout elapses.
func (d *Device) waitSubmission(idx uint64) bool {
	deadline := time.Now().Add(d.timeout)
	for d.queue.PollCompleted() < idx {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(submitPollInterval)
	}
	return true
}
