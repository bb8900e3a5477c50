package registry

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/orb/gpucore"
)

// Pipeline is a compute or draw pipeline. Binding set index i is bound to
// the layout of BindingSets[i].
type Pipeline struct {
	label          string
	Program        *Program
	EntryPoints    []string
	BindingSets    []string
	Layouts        []*BindingSetLayout
	ParamBlockSize uint32

	LayoutID gpucore.PipelineLayoutID
	Compute  gpucore.ComputePipelineID
	Render   gpucore.RenderPipelineID
}

func (p *Pipeline) Label() string { return p.label }
func (p *Pipeline) Kind() Kind    { return KindPipeline }

// IsCompute reports whether p is a compute pipeline.
func (p *Pipeline) IsCompute() bool { return p.Compute != gpucore.InvalidID }

// DrawPipelineDesc describes a draw pipeline.
type DrawPipelineDesc struct {
	Label          string
	Program        string
	VertexEntry    string
	FragmentEntry  string
	BindingSets    []string
	ColorTargets   []gputypes.TextureFormat
	VertexLayout   *gpucore.VertexLayout
	ParamBlockSize uint32
}

// composeLayout resolves a program, its entry points and the named binding
// set layouts. Must be called with mu held.
func (r *Registry) composeLayout(label, program string, entries []string, sets []string) (*Program, []*BindingSetLayout, error) {
	if err := r.checkNew("build", KindPipeline, label); err != nil {
		return nil, nil, err
	}
	prog, ok := r.programs[program]
	if !ok {
		return nil, nil, configErr("build pipeline", KindProgram, program, ErrLabelNotFound)
	}
	for _, e := range entries {
		if !prog.HasEntryPoint(e) {
			return nil, nil, configErr("build", KindPipeline, label,
				fmt.Errorf("%w: entry point %q not declared by program %q", ErrLayoutMismatch, e, program))
		}
	}
	layouts := make([]*BindingSetLayout, 0, len(sets))
	for _, s := range sets {
		l, ok := r.layouts[LayoutLabel(s)]
		if !ok {
			return nil, nil, configErr("build pipeline", KindBindingSetLayout, LayoutLabel(s), ErrLabelNotFound)
		}
		layouts = append(layouts, l)
	}
	return prog, layouts, nil
}

func (r *Registry) createPipelineLayout(label string, layouts []*BindingSetLayout, paramSize uint32) (gpucore.PipelineLayoutID, error) {
	ids := make([]gpucore.BindGroupLayoutID, len(layouts))
	for i, l := range layouts {
		ids[i] = l.ID
	}
	return r.dev.CreatePipelineLayout(&gpucore.PipelineLayoutDesc{
		Label:            label + "/pipeline_layout",
		BindGroupLayouts: ids,
		ParamBlockSize:   paramSize,
	})
}

// BuildComputePipeline creates a compute pipeline running entryPoint of
// program with the given binding sets.
func (r *Registry) BuildComputePipeline(label, program, entryPoint string, bindingSets []string, paramBlockSize uint32) (*Pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prog, layouts, err := r.composeLayout(label, program, []string{entryPoint}, bindingSets)
	if err != nil {
		return nil, err
	}

	layoutID, err := r.createPipelineLayout(label, layouts, paramBlockSize)
	if err != nil {
		return nil, fmt.Errorf("registry: build pipeline %q layout: %w", label, err)
	}
	id, err := r.dev.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label:        label,
		Layout:       layoutID,
		ShaderModule: prog.ID,
		EntryPoint:   entryPoint,
	})
	if err != nil {
		r.dev.DestroyPipelineLayout(layoutID)
		return nil, fmt.Errorf("registry: build compute pipeline %q: %w", label, err)
	}

	p := &Pipeline{
		label:          label,
		Program:        prog,
		EntryPoints:    []string{entryPoint},
		BindingSets:    append([]string(nil), bindingSets...),
		Layouts:        layouts,
		ParamBlockSize: paramBlockSize,
		LayoutID:       layoutID,
		Compute:        id,
	}
	r.pipelines[label] = p
	r.remember(KindPipeline, label)
	return p, nil
}

// BuildDrawPipeline creates a draw pipeline rendering into the given color
// targets.
func (r *Registry) BuildDrawPipeline(desc DrawPipelineDesc) (*Pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := []string{desc.VertexEntry, desc.FragmentEntry}
	prog, layouts, err := r.composeLayout(desc.Label, desc.Program, entries, desc.BindingSets)
	if err != nil {
		return nil, err
	}
	if len(desc.ColorTargets) == 0 {
		return nil, configErr("build", KindPipeline, desc.Label, fmt.Errorf("%w: no color targets", ErrLayoutMismatch))
	}

	layoutID, err := r.createPipelineLayout(desc.Label, layouts, desc.ParamBlockSize)
	if err != nil {
		return nil, fmt.Errorf("registry: build pipeline %q layout: %w", desc.Label, err)
	}
	id, err := r.dev.CreateRenderPipeline(&gpucore.RenderPipelineDesc{
		Label:         desc.Label,
		Layout:        layoutID,
		ShaderModule:  prog.ID,
		VertexEntry:   desc.VertexEntry,
		FragmentEntry: desc.FragmentEntry,
		ColorTargets:  desc.ColorTargets,
		VertexLayout:  desc.VertexLayout,
	})
	if err != nil {
		r.dev.DestroyPipelineLayout(layoutID)
		return nil, fmt.Errorf("registry: build draw pipeline %q: %w", desc.Label, err)
	}

	p := &Pipeline{
		label:          desc.Label,
		Program:        prog,
		EntryPoints:    entries,
		BindingSets:    append([]string(nil), desc.BindingSets...),
		Layouts:        layouts,
		ParamBlockSize: desc.ParamBlockSize,
		LayoutID:       layoutID,
		Render:         id,
	}
	r.pipelines[desc.Label] = p
	r.remember(KindPipeline, desc.Label)
	return p, nil
}
