package software

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/orb/gpucore"
	"github.com/gogpu/orb/internal/logger"
)

// command is one recorded operation, executed at Submit.
type command func(d *Device) error

// commandBuffer is a finished batch.
type commandBuffer struct {
	label string
	cmds  []command

	mu        sync.Mutex
	submitted bool
}

func (c *commandBuffer) Label() string { return c.label }

// commandEncoder records commands. The first recording error sticks and is
// returned from Finish.
type commandEncoder struct {
	dev      *Device
	label    string
	cmds     []command
	err      error
	passOpen bool
	finished bool
}

// CreateCommandEncoder starts a new batch.
func (d *Device) CreateCommandEncoder(label string) (gpucore.CommandEncoder, error) {
	if err := d.alive(); err != nil {
		return nil, err
	}
	return &commandEncoder{dev: d, label: label}, nil
}

func (e *commandEncoder) fail(err error) {
	if e.err == nil {
		e.err = fmt.Errorf("software: encoder %q: %w", e.label, err)
	}
}

func (e *commandEncoder) record(cmd command) {
	if e.err != nil {
		return
	}
	e.cmds = append(e.cmds, cmd)
}

func (e *commandEncoder) beginPass() bool {
	switch {
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

// BeginComputePass opens a compute pass.
func (e *commandEncoder) BeginComputePass(label string) gpucore.ComputePassEncoder {
	p := &computePass{enc: e, label: label}
	if !e.beginPass() {
		p.ended = true
	}
	return p
}

// BeginRenderPass opens a render pass against one color target.
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
	p.label = desc.Label

	e.dev.mu.Lock()
	v, ok := e.dev.views[desc.Target]
	e.dev.mu.Unlock()
	switch {
	case !ok:
		e.fail(fmt.Errorf("render pass %q: target %d: %w", desc.Label, desc.Target, ErrUnknownResource))
	case v.count != 1:
		e.fail(fmt.Errorf("render pass %q: %w: target view spans %d levels", desc.Label, ErrBindingMismatch, v.count))
	case v.tex.desc.Usage&gputypes.TextureUsageRenderAttachment == 0:
		e.fail(fmt.Errorf("render pass %q: %w: %q is not a render attachment", desc.Label, ErrUsage, v.tex.desc.Label))
	default:
		p.target = v
		if desc.Clear {
			c := desc.ClearColor
			color := [4]float32{float32(c.R), float32(c.G), float32(c.B), float32(c.A)}
			e.record(func(*Device) error {
				lv := &v.tex.levels[v.base]
				for y := range lv.h {
					for x := range lv.w {
						lv.store(x, y, color, v.tex.desc.Format)
					}
				}
				return nil
			})
		}
	}
	return p
}

// CopyBufferToBuffer records a copy between buffers.
func (e *commandEncoder) CopyBufferToBuffer(src gpucore.BufferID, srcOffset uint64, dst gpucore.BufferID, dstOffset uint64, size uint64) {
	if e.finished || e.passOpen {
		e.fail(fmt.Errorf("%w: copy outside of encoder top level", ErrEncoderState))
		return
	}

	e.dev.mu.Lock()
	sb, sok := e.dev.buffers[src]
	db, dok := e.dev.buffers[dst]
	e.dev.mu.Unlock()

	switch {
	case !sok || !dok:
		e.fail(fmt.Errorf("copy %d -> %d: %w", src, dst, ErrUnknownResource))
		return
	case sb.desc.Usage&gputypes.BufferUsageCopySrc == 0:
		e.fail(fmt.Errorf("copy from %q: %w: CopySrc", sb.desc.Label, ErrUsage))
		return
	case db.desc.Usage&gputypes.BufferUsageCopyDst == 0:
		e.fail(fmt.Errorf("copy to %q: %w: CopyDst", db.desc.Label, ErrUsage))
		return
	case size%4 != 0 || srcOffset%4 != 0 || dstOffset%4 != 0:
		e.fail(fmt.Errorf("copy %q -> %q: %w: unaligned copy", sb.desc.Label, db.desc.Label, ErrInvalidDescriptor))
		return
	case srcOffset+size > sb.desc.Size || dstOffset+size > db.desc.Size:
		e.fail(fmt.Errorf("copy %q -> %q: %w", sb.desc.Label, db.desc.Label, ErrOutOfRange))
		return
	case sb == db:
		e.fail(fmt.Errorf("copy %q onto itself: %w", sb.desc.Label, ErrInvalidDescriptor))
		return
	}

	e.record(func(d *Device) error {
		d.mu.Lock()
		busy := sb.state != mapUnmapped || db.state != mapUnmapped
		d.mu.Unlock()
		if busy {
			return fmt.Errorf("copy %q -> %q: %w", sb.desc.Label, db.desc.Label, ErrBufferMapped)
		}
		copy(db.data[dstOffset:dstOffset+size], sb.data[srcOffset:srcOffset+size])
		return nil
	})
}

// Finish returns the recorded batch.
func (e *commandEncoder) Finish() (gpucore.CommandBuffer, error) {
	if e.passOpen {
		e.fail(fmt.Errorf("%w: pass not ended", ErrEncoderState))
	}
	if e.finished {
		e.fail(fmt.Errorf("%w: already finished", ErrEncoderState))
	}
	e.finished = true
	if e.err != nil {
		return nil, e.err
	}
	return &commandBuffer{label: e.label, cmds: e.cmds}, nil
}

// =============================================================================
// Pass state shared by compute and render passes
// =============================================================================

type passState struct {
	groups []*bindGroup
	params []byte
}

func (s *passState) setBindGroup(e *commandEncoder, index uint32, id gpucore.BindGroupID) {
	e.dev.mu.Lock()
	bg, ok := e.dev.bindGroups[id]
	e.dev.mu.Unlock()
	if !ok {
		e.fail(fmt.Errorf("bind group %d: %w", id, ErrUnknownResource))
		return
	}
	for int(index) >= len(s.groups) {
		s.groups = append(s.groups, nil)
	}
	s.groups[index] = bg
}

// validate checks the bound state against a pipeline layout.
func (s *passState) validate(layout *pipelineLayout) error {
	for i, want := range layout.groups {
		if i >= len(s.groups) || s.groups[i] == nil {
			return fmt.Errorf("%w: bind group %d not set", ErrBindingMismatch, i)
		}
		if !s.groups[i].layout.equivalent(want) {
			return fmt.Errorf("%w: bind group %d was created for an incompatible layout", ErrBindingMismatch, i)
		}
	}
	if len(s.params) > int(layout.paramSize) {
		return fmt.Errorf("%w: %d-byte params exceed the %d-byte block", ErrBindingMismatch, len(s.params), layout.paramSize)
	}
	return nil
}

// snapshot copies the bound state so later Set* calls do not affect an
// already recorded command.
func (s *passState) snapshot(layout *pipelineLayout) ([]*bindGroup, []byte) {
	groups := slices.Clone(s.groups[:len(layout.groups)])
	params := make([]byte, layout.paramSize)
	copy(params, s.params)
	return groups, params
}

// =============================================================================
// Compute pass
// =============================================================================

type computePass struct {
	enc      *commandEncoder
	label    string
	pipeline *computePipeline
	state    passState
	ended    bool
}

func (p *computePass) SetPipeline(id gpucore.ComputePipelineID) {
	if p.ended {
		return
	}
	p.enc.dev.mu.Lock()
	cp, ok := p.enc.dev.computePipelines[id]
	p.enc.dev.mu.Unlock()
	if !ok {
		p.enc.fail(fmt.Errorf("compute pass %q: pipeline %d: %w", p.label, id, ErrUnknownResource))
		return
	}
	p.pipeline = cp
}

func (p *computePass) SetBindGroup(index uint32, group gpucore.BindGroupID) {
	if p.ended {
		return
	}
	p.state.setBindGroup(p.enc, index, group)
}

func (p *computePass) SetParams(data []byte) {
	if p.ended {
		return
	}
	p.state.params = slices.Clone(data)
}

func (p *computePass) Dispatch(x, y, z uint32) {
	if p.ended {
		return
	}
	if p.pipeline == nil {
		p.enc.fail(fmt.Errorf("compute pass %q: %w: no pipeline set", p.label, ErrEncoderState))
		return
	}
	if err := p.state.validate(p.pipeline.layout); err != nil {
		p.enc.fail(fmt.Errorf("compute pass %q (%s): %w", p.label, p.pipeline.label, err))
		return
	}
	if x == 0 || y == 0 || z == 0 {
		return
	}

	pipeline := p.pipeline
	groups, params := p.state.snapshot(pipeline.layout)
	p.enc.record(func(d *Device) error {
		return d.runCompute(pipeline, groups, params, [3]uint32{x, y, z})
	})
}

func (p *computePass) End() {
	if p.ended {
		return
	}
	p.ended = true
	p.enc.passOpen = false
}

// =============================================================================
// Render pass
// =============================================================================

type renderPass struct {
	enc          *commandEncoder
	label        string
	target       *textureView
	pipeline     *renderPipeline
	state        passState
	vertexBuffer bool
	ended        bool
}

func (p *renderPass) SetPipeline(id gpucore.RenderPipelineID) {
	if p.ended {
		return
	}
	p.enc.dev.mu.Lock()
	rp, ok := p.enc.dev.renderPipelines[id]
	p.enc.dev.mu.Unlock()
	if !ok {
		p.enc.fail(fmt.Errorf("render pass %q: pipeline %d: %w", p.label, id, ErrUnknownResource))
		return
	}
	p.pipeline = rp
}

func (p *renderPass) SetBindGroup(index uint32, group gpucore.BindGroupID) {
	if p.ended {
		return
	}
	p.state.setBindGroup(p.enc, index, group)
}

func (p *renderPass) SetParams(data []byte) {
	if p.ended {
		return
	}
	p.state.params = slices.Clone(data)
}

func (p *renderPass) SetVertexBuffer(_ uint32, buffer gpucore.BufferID, _ uint64) {
	if p.ended {
		return
	}
	p.enc.dev.mu.Lock()
	_, ok := p.enc.dev.buffers[buffer]
	p.enc.dev.mu.Unlock()
	if !ok {
		p.enc.fail(fmt.Errorf("render pass %q: vertex buffer %d: %w", p.label, buffer, ErrUnknownResource))
		return
	}
	p.vertexBuffer = true
}

// Draw covers the whole target. vertexCount must describe at least one
// triangle.
func (p *renderPass) Draw(vertexCount, instanceCount, _, _ uint32) {
	if p.ended || p.target == nil {
		return
	}
	switch {
	case p.pipeline == nil:
		p.enc.fail(fmt.Errorf("render pass %q: %w: no pipeline set", p.label, ErrEncoderState))
		return
	case p.pipeline.needsVertex && !p.vertexBuffer:
		p.enc.fail(fmt.Errorf("render pass %q: %w: vertex buffer not set", p.label, ErrBindingMismatch))
		return
	case p.pipeline.format != p.target.tex.desc.Format:
		p.enc.fail(fmt.Errorf("render pass %q: %w: pipeline targets %v, view is %v",
			p.label, ErrBindingMismatch, p.pipeline.format, p.target.tex.desc.Format))
		return
	}
	if err := p.state.validate(p.pipeline.layout); err != nil {
		p.enc.fail(fmt.Errorf("render pass %q (%s): %w", p.label, p.pipeline.label, err))
		return
	}
	if vertexCount < 3 || instanceCount == 0 {
		return
	}

	pipeline, target := p.pipeline, p.target
	groups, params := p.state.snapshot(pipeline.layout)
	p.enc.record(func(d *Device) error {
		return d.runDraw(pipeline, target, groups, params)
	})
}

func (p *renderPass) End() {
	if p.ended {
		return
	}
	p.ended = true
	p.enc.passOpen = false
}

// =============================================================================
// Execution
// =============================================================================

// Submit executes command buffers in order. A command buffer can be
// submitted once.
func (d *Device) Submit(cmds ...gpucore.CommandBuffer) error {
	if err := d.alive(); err != nil {
		return fmt.Errorf("software: submit: %w", err)
	}

	d.execMu.Lock()
	defer d.execMu.Unlock()

	for _, c := range cmds {
		cb, ok := c.(*commandBuffer)
		if !ok {
			return fmt.Errorf("software: submit: %w: foreign command buffer %T", ErrInvalidDescriptor, c)
		}
		cb.mu.Lock()
		already := cb.submitted
		cb.submitted = true
		cb.mu.Unlock()
		if already {
			return fmt.Errorf("software: submit %q: %w: already submitted", cb.label, ErrEncoderState)
		}

		for i, cmd := range cb.cmds {
			if d.lost.Load() {
				return fmt.Errorf("software: submit %q: %w", cb.label, ErrDeviceLost)
			}
			if err := cmd(d); err != nil {
				return fmt.Errorf("software: submit %q command %d: %w", cb.label, i, err)
			}
		}
		logger.L().Debug("software: batch executed", "label", cb.label, "commands", len(cb.cmds))
	}
	return nil
}

// guard converts a kernel panic into an error.
func guard(errp *error, mu *sync.Mutex) {
	if r := recover(); r != nil {
		mu.Lock()
		if *errp == nil {
			*errp = fmt.Errorf("%w: %v", ErrKernelPanic, r)
		}
		mu.Unlock()
	}
}

func (d *Device) runCompute(p *computePipeline, groups []*bindGroup, params []byte, n [3]uint32) error {
	total := int(n[0] * n[1] * n[2])
	var (
		mu  sync.Mutex
		err error
	)
	d.pool.Range(total, func(i int) {
		defer guard(&err, &mu)
		id := uint32(i)
		inv := &Invocation{
			WorkgroupID:   [3]uint32{id % n[0], (id / n[0]) % n[1], id / (n[0] * n[1])},
			NumWorkgroups: n,
			groups:        groups,
			params:        params,
		}
		p.kernel.Compute(inv)
	})
	if err != nil {
		return fmt.Errorf("dispatch %q: %w", p.label, err)
	}
	return nil
}

func (d *Device) runDraw(p *renderPipeline, target *textureView, groups []*bindGroup, params []byte) error {
	lv := &target.tex.levels[target.base]
	format := target.tex.desc.Format
	var (
		mu  sync.Mutex
		err error
	)
	d.pool.Range(lv.h, func(y int) {
		defer guard(&err, &mu)
		inv := &Invocation{TargetWidth: lv.w, TargetHeight: lv.h, groups: groups, params: params}
		for x := range lv.w {
			lv.store(x, y, p.fragment.Fragment(inv, x, y), format)
		}
	})
	if err != nil {
		return fmt.Errorf("draw %q: %w", p.label, err)
	}
	return nil
}
