//go:build !nogpu

package native

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/orb/gpucore"
	"github.com/gogpu/wgpu/hal"
)

// =============================================================================
// Resource records
// =============================================================================

type mapState int

const (
	mapUnmapped mapState = iota
	mapPending
	mapMapped
)

type buffer struct {
	raw  hal.Buffer
	desc gpucore.BufferDesc

	// Guarded by Device.mu.
	state     mapState
	mapOffset uint64
	mapSize   uint64
	mapped    []byte
}

type texture struct {
	raw  hal.Texture
	desc gpucore.TextureDesc
}

type textureView struct {
	raw     hal.TextureView
	texture *texture
}

type shaderModule struct {
	raw         hal.ShaderModule
	entryPoints []string
}

type pipelineLayout struct {
	raw       hal.PipelineLayout
	sets      uint32
	paramSize uint32
	params    hal.BindGroupLayout
}

type computePipeline struct {
	raw    hal.ComputePipeline
	layout *pipelineLayout
}

type renderPipeline struct {
	raw    hal.RenderPipeline
	layout *pipelineLayout
}

// levelExtent returns the size of one mip level.
func levelExtent(desc *gpucore.TextureDesc, level uint32) (w, h uint32) {
	return max(desc.Width>>level, 1), max(desc.Height>>level, 1)
}

// =============================================================================
// Buffers
// =============================================================================

// CreateBuffer allocates a buffer. The size is rounded up to four bytes.
func (d *Device) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if err := d.alive(); err != nil {
		return gpucore.InvalidID, err
	}
	if desc == nil || desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("native: create buffer: %w: zero size", ErrInvalidDescriptor)
	}
	size := (desc.Size + 3) &^ 3
	raw, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  size,
		Usage: desc.Usage,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create buffer %q: %w", desc.Label, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.BufferID(d.newID())
	d.buffers[id] = &buffer{raw: raw, desc: *desc}
	return id, nil
}

// DestroyBuffer releases a buffer. A pending map completes with
// MapStatusDestroyedBeforeCallback on the next Poll.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	if !ok {
		return
	}
	d.device.DestroyBuffer(b.raw)
	delete(d.buffers, id)
}

// WriteBuffer uploads data through the queue.
func (d *Device) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	if err := d.alive(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("native: write buffer %d: %w", id, ErrUnknownResource)
	}
	if b.state != mapUnmapped {
		return fmt.Errorf("native: write buffer %q: %w", b.desc.Label, ErrBufferMapped)
	}
	if b.desc.Usage&gputypes.BufferUsageCopyDst == 0 {
		return fmt.Errorf("native: write buffer %q: %w: CopyDst", b.desc.Label, ErrUsage)
	}
	if offset%4 != 0 || offset+uint64(len(data)) > b.desc.Size {
		return fmt.Errorf("native: write buffer %q: %w: %d+%d of %d",
			b.desc.Label, ErrInvalidDescriptor, offset, len(data), b.desc.Size)
	}
	if err := d.queue.WriteBuffer(b.raw, offset, data); err != nil {
		return fmt.Errorf("native: write buffer %q: %w", b.desc.Label, err)
	}
	return nil
}

// =============================================================================
// Textures, views and samplers
// =============================================================================

// CreateTexture allocates a 2D texture with all its mip levels.
func (d *Device) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if err := d.alive(); err != nil {
		return gpucore.InvalidID, err
	}
	if desc == nil || desc.Width == 0 || desc.Height == 0 || desc.MipLevelCount == 0 {
		return gpucore.InvalidID, fmt.Errorf("native: create texture: %w: empty extent or no levels", ErrInvalidDescriptor)
	}
	raw, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: desc.MipLevelCount,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create texture %q: %w", desc.Label, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.TextureID(d.newID())
	d.textures[id] = &texture{raw: raw, desc: *desc}
	return id, nil
}

// DestroyTexture releases a texture.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.textures[id]; ok {
		d.device.DestroyTexture(t.raw)
		delete(d.textures, id)
	}
}

// WriteTexture uploads one mip level of four-byte texels.
func (d *Device) WriteTexture(id gpucore.TextureID, level uint32, data []byte, bytesPerRow uint32) error {
	if err := d.alive(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.textures[id]
	if !ok {
		return fmt.Errorf("native: write texture %d: %w", id, ErrUnknownResource)
	}
	if level >= t.desc.MipLevelCount {
		return fmt.Errorf("native: write texture %q: %w: level %d of %d", t.desc.Label, ErrInvalidDescriptor, level, t.desc.MipLevelCount)
	}
	w, h := levelExtent(&t.desc, level)
	if bytesPerRow < w*4 || uint64(len(data)) < uint64(bytesPerRow)*uint64(h-1)+uint64(w)*4 {
		return fmt.Errorf("native: write texture %q: %w: %d bytes at stride %d for %dx%d",
			t.desc.Label, ErrInvalidDescriptor, len(data), bytesPerRow, w, h)
	}
	err := d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.raw, MipLevel: level},
		data,
		&hal.ImageDataLayout{Offset: 0, BytesPerRow: bytesPerRow, RowsPerImage: h},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
	if err != nil {
		return fmt.Errorf("native: write texture %q: %w", t.desc.Label, err)
	}
	return nil
}

// CreateTextureView creates a 2D view over a range of mip levels.
func (d *Device) CreateTextureView(texID gpucore.TextureID, desc *gpucore.TextureViewDesc) (gpucore.TextureViewID, error) {
	if err := d.alive(); err != nil {
		return gpucore.InvalidID, err
	}
	if desc == nil {
		desc = &gpucore.TextureViewDesc{}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.textures[texID]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("native: create texture view %q: texture %d: %w", desc.Label, texID, ErrUnknownResource)
	}
	if desc.BaseMipLevel >= t.desc.MipLevelCount ||
		desc.BaseMipLevel+desc.MipLevelCount > t.desc.MipLevelCount {
		return gpucore.InvalidID, fmt.Errorf("native: create texture view %q: %w: levels %d+%d of %d",
			desc.Label, ErrInvalidDescriptor, desc.BaseMipLevel, desc.MipLevelCount, t.desc.MipLevelCount)
	}
	raw, err := d.device.CreateTextureView(t.raw, &hal.TextureViewDescriptor{
		Label:         desc.Label,
		Format:        t.desc.Format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		BaseMipLevel:  desc.BaseMipLevel,
		MipLevelCount: desc.MipLevelCount,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create texture view %q: %w", desc.Label, err)
	}
	id := gpucore.TextureViewID(d.newID())
	d.views[id] = &textureView{raw: raw, texture: t}
	return id, nil
}

// DestroyTextureView releases a view.
func (d *Device) DestroyTextureView(id gpucore.TextureViewID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if v, ok := d.views[id]; ok {
		d.device.DestroyTextureView(v.raw)
		delete(d.views, id)
	}
}

// CreateSampler creates a sampler with the same address mode on every axis.
func (d *Device) CreateSampler(desc *gpucore.SamplerDesc) (gpucore.SamplerID, error) {
	if err := d.alive(); err != nil {
		return gpucore.InvalidID, err
	}
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("native: create sampler: %w", ErrInvalidDescriptor)
	}
	raw, err := d.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        desc.Label,
		AddressModeU: desc.AddressMode,
		AddressModeV: desc.AddressMode,
		AddressModeW: desc.AddressMode,
		MagFilter:    desc.MagFilter,
		MinFilter:    desc.MinFilter,
		MipmapFilter: desc.MipmapFilter,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create sampler %q: %w", desc.Label, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.SamplerID(d.newID())
	d.samplers[id] = raw
	return id, nil
}

// DestroySampler releases a sampler.
func (d *Device) DestroySampler(id gpucore.SamplerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.samplers[id]; ok {
		d.device.DestroySampler(s)
		delete(d.samplers, id)
	}
}

// =============================================================================
// Programs and bindings
// =============================================================================

// CreateShaderModule compiles WGSL to SPIR-V with naga.
func (d *Device) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	if err := d.alive(); err != nil {
		return gpucore.InvalidID, err
	}
	if desc == nil || desc.Source == "" {
		return gpucore.InvalidID, fmt.Errorf("native: create shader module: %w: empty source", ErrInvalidDescriptor)
	}
	spirv, err := compileWGSL(desc.Source)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: shader module %q: %w", desc.Label, err)
	}
	raw, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: shader module %q: %w", desc.Label, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.ShaderModuleID(d.newID())
	d.modules[id] = &shaderModule{raw: raw, entryPoints: slices.Clone(desc.EntryPoints)}
	return id, nil
}

// compileWGSL returns the SPIR-V words of a WGSL program.
func compileWGSL(src string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("compile WGSL: %w", err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("compile WGSL: SPIR-V length %d is not word aligned", len(spirvBytes))
	}
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return words, nil
}

// DestroyShaderModule releases a program.
func (d *Device) DestroyShaderModule(id gpucore.ShaderModuleID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m, ok := d.modules[id]; ok {
		d.device.DestroyShaderModule(m.raw)
		delete(d.modules, id)
	}
}

// CreateBindGroupLayout converts a layout to its HAL form.
func (d *Device) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	if err := d.alive(); err != nil {
		return gpucore.InvalidID, err
	}
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("native: create bind group layout: %w", ErrInvalidDescriptor)
	}
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(desc.Entries))
	for _, e := range desc.Entries {
		le, err := convertLayoutEntry(e)
		if err != nil {
			return gpucore.InvalidID, fmt.Errorf("native: bind group layout %q: %w", desc.Label, err)
		}
		entries = append(entries, le)
	}
	raw, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: entries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: bind group layout %q: %w", desc.Label, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.BindGroupLayoutID(d.newID())
	d.bgLayouts[id] = raw
	return id, nil
}

// convertLayoutEntry maps a binding to the stages that can use it:
// storage textures and writable buffers are compute only, everything else
// is also visible to the fragment stage.
func convertLayoutEntry(e gpucore.BindGroupLayoutEntry) (gputypes.BindGroupLayoutEntry, error) {
	out := gputypes.BindGroupLayoutEntry{
		Binding:    e.Binding,
		Visibility: gputypes.ShaderStageCompute | gputypes.ShaderStageFragment,
	}
	switch e.Type {
	case gpucore.BindingTypeUniformBuffer:
		out.Visibility |= gputypes.ShaderStageVertex
		out.Buffer = &gputypes.BufferBindingLayout{
			Type:           gputypes.BufferBindingTypeUniform,
			MinBindingSize: e.MinBindingSize,
		}
	case gpucore.BindingTypeStorageBuffer:
		out.Visibility = gputypes.ShaderStageCompute
		out.Buffer = &gputypes.BufferBindingLayout{
			Type:           gputypes.BufferBindingTypeStorage,
			MinBindingSize: e.MinBindingSize,
		}
	case gpucore.BindingTypeReadOnlyStorageBuffer:
		out.Buffer = &gputypes.BufferBindingLayout{
			Type:           gputypes.BufferBindingTypeReadOnlyStorage,
			MinBindingSize: e.MinBindingSize,
		}
	case gpucore.BindingTypeSampler:
		out.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
	case gpucore.BindingTypeSampledTexture:
		out.Texture = &gputypes.TextureBindingLayout{
			SampleType:    sampleType(e.SampleKind),
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	case gpucore.BindingTypeStorageTexture:
		out.Visibility = gputypes.ShaderStageCompute
		out.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        storageAccess(e.Access),
			Format:        e.Format,
			ViewDimension: gputypes.TextureViewDimension2D,
		}
	default:
		return out, fmt.Errorf("%w: binding %d has type %s", ErrInvalidDescriptor, e.Binding, e.Type)
	}
	return out, nil
}

func sampleType(k gpucore.SampleKind) gputypes.TextureSampleType {
	switch k {
	case gpucore.SampleKindUnfilterableFloat:
		return gputypes.TextureSampleTypeUnfilterableFloat
	case gpucore.SampleKindUint:
		return gputypes.TextureSampleTypeUint
	default:
		return gputypes.TextureSampleTypeFloat
	}
}

func storageAccess(a gpucore.StorageAccess) gputypes.StorageTextureAccess {
	switch a {
	case gpucore.StorageAccessReadOnly:
		return gputypes.StorageTextureAccessReadOnly
	case gpucore.StorageAccessReadWrite:
		return gputypes.StorageTextureAccessReadWrite
	default:
		return gputypes.StorageTextureAccessWriteOnly
	}
}

// DestroyBindGroupLayout releases a layout.
func (d *Device) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.bgLayouts[id]; ok {
		d.device.DestroyBindGroupLayout(l)
		delete(d.bgLayouts, id)
	}
}

// CreateBindGroup resolves every entry to its HAL handle.
func (d *Device) CreateBindGroup(desc *gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	if err := d.alive(); err != nil {
		return gpucore.InvalidID, err
	}
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("native: create bind group: %w", ErrInvalidDescriptor)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	layout, ok := d.bgLayouts[desc.Layout]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("native: bind group %q: layout %d: %w", desc.Label, desc.Layout, ErrUnknownResource)
	}
	entries := make([]gputypes.BindGroupEntry, 0, len(desc.Entries))
	for _, e := range desc.Entries {
		be, err := d.resolveEntry(e)
		if err != nil {
			return gpucore.InvalidID, fmt.Errorf("native: bind group %q binding %d: %w", desc.Label, e.Binding, err)
		}
		entries = append(entries, be)
	}
	raw, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: bind group %q: %w", desc.Label, err)
	}
	id := gpucore.BindGroupID(d.newID())
	d.bindGroups[id] = raw
	return id, nil
}

// resolveEntry must be called with mu held.
func (d *Device) resolveEntry(e gpucore.BindGroupEntry) (gputypes.BindGroupEntry, error) {
	out := gputypes.BindGroupEntry{Binding: e.Binding}
	switch {
	case e.Buffer != gpucore.InvalidID:
		b, ok := d.buffers[e.Buffer]
		if !ok {
			return out, fmt.Errorf("buffer %d: %w", e.Buffer, ErrUnknownResource)
		}
		size := e.Size
		if size == 0 {
			size = b.desc.Size - min(e.Offset, b.desc.Size)
		}
		out.Resource = gputypes.BufferBinding{Buffer: b.raw.NativeHandle(), Offset: e.Offset, Size: size}
	case e.TextureView != gpucore.InvalidID:
		v, ok := d.views[e.TextureView]
		if !ok {
			return out, fmt.Errorf("texture view %d: %w", e.TextureView, ErrUnknownResource)
		}
		out.Resource = gputypes.TextureViewBinding{TextureView: v.raw.NativeHandle()}
	case e.Sampler != gpucore.InvalidID:
		s, ok := d.samplers[e.Sampler]
		if !ok {
			return out, fmt.Errorf("sampler %d: %w", e.Sampler, ErrUnknownResource)
		}
		out.Resource = gputypes.SamplerBinding{Sampler: s.NativeHandle()}
	default:
		return out, fmt.Errorf("%w: no resource", ErrInvalidDescriptor)
	}
	return out, nil
}

// DestroyBindGroup releases a bind group.
func (d *Device) DestroyBindGroup(id gpucore.BindGroupID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if g, ok := d.bindGroups[id]; ok {
		d.device.DestroyBindGroup(g)
		delete(d.bindGroups, id)
	}
}

// =============================================================================
// Pipelines
// =============================================================================

// CreatePipelineLayout composes bind group layouts in order and appends
// the parameter block layout when ParamBlockSize is non-zero.
func (d *Device) CreatePipelineLayout(desc *gpucore.PipelineLayoutDesc) (gpucore.PipelineLayoutID, error) {
	if err := d.alive(); err != nil {
		return gpucore.InvalidID, err
	}
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("native: create pipeline layout: %w", ErrInvalidDescriptor)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	layouts := make([]hal.BindGroupLayout, 0, len(desc.BindGroupLayouts)+1)
	for _, lid := range desc.BindGroupLayouts {
		l, ok := d.bgLayouts[lid]
		if !ok {
			return gpucore.InvalidID, fmt.Errorf("native: pipeline layout %q: layout %d: %w", desc.Label, lid, ErrUnknownResource)
		}
		layouts = append(layouts, l)
	}
	pl := &pipelineLayout{sets: uint32(len(layouts)), paramSize: desc.ParamBlockSize}
	if desc.ParamBlockSize > 0 {
		params, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label: desc.Label + " params",
			Entries: []gputypes.BindGroupLayoutEntry{{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment | gputypes.ShaderStageCompute,
				Buffer: &gputypes.BufferBindingLayout{
					Type:           gputypes.BufferBindingTypeUniform,
					MinBindingSize: uint64(desc.ParamBlockSize),
				},
			}},
		})
		if err != nil {
			return gpucore.InvalidID, fmt.Errorf("native: pipeline layout %q params: %w", desc.Label, err)
		}
		pl.params = params
		layouts = append(layouts, params)
	}
	raw, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: layouts,
	})
	if err != nil {
		if pl.params != nil {
			d.device.DestroyBindGroupLayout(pl.params)
		}
		return gpucore.InvalidID, fmt.Errorf("native: pipeline layout %q: %w", desc.Label, err)
	}
	pl.raw = raw
	id := gpucore.PipelineLayoutID(d.newID())
	d.pipeLayouts[id] = pl
	return id, nil
}

func (d *Device) destroyPipelineLayout(l *pipelineLayout) {
	d.device.DestroyPipelineLayout(l.raw)
	if l.params != nil {
		d.device.DestroyBindGroupLayout(l.params)
	}
}

// DestroyPipelineLayout releases a pipeline layout.
func (d *Device) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.pipeLayouts[id]; ok {
		d.destroyPipelineLayout(l)
		delete(d.pipeLayouts, id)
	}
}

// lookupProgram must be called with mu held.
func (d *Device) lookupProgram(label string, layoutID gpucore.PipelineLayoutID, moduleID gpucore.ShaderModuleID, entries ...string) (*pipelineLayout, *shaderModule, error) {
	layout, ok := d.pipeLayouts[layoutID]
	if !ok {
		return nil, nil, fmt.Errorf("native: pipeline %q: layout %d: %w", label, layoutID, ErrUnknownResource)
	}
	module, ok := d.modules[moduleID]
	if !ok {
		return nil, nil, fmt.Errorf("native: pipeline %q: shader module %d: %w", label, moduleID, ErrUnknownResource)
	}
	for _, ep := range entries {
		if !slices.Contains(module.entryPoints, ep) {
			return nil, nil, fmt.Errorf("native: pipeline %q: %w: entry point %q not declared", label, ErrInvalidDescriptor, ep)
		}
	}
	return layout, module, nil
}

// CreateComputePipeline creates a compute pipeline.
func (d *Device) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	if err := d.alive(); err != nil {
		return gpucore.InvalidID, err
	}
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("native: create compute pipeline: %w", ErrInvalidDescriptor)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	layout, module, err := d.lookupProgram(desc.Label, desc.Layout, desc.ShaderModule, desc.EntryPoint)
	if err != nil {
		return gpucore.InvalidID, err
	}
	raw, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: layout.raw,
		Compute: hal.ComputeState{
			Module:     module.raw,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: compute pipeline %q: %w", desc.Label, err)
	}
	id := gpucore.ComputePipelineID(d.newID())
	d.computePipelines[id] = &computePipeline{raw: raw, layout: layout}
	return id, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (d *Device) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.computePipelines[id]; ok {
		d.device.DestroyComputePipeline(p.raw)
		delete(d.computePipelines, id)
	}
}

// CreateRenderPipeline creates a triangle-list pipeline without blending.
func (d *Device) CreateRenderPipeline(desc *gpucore.RenderPipelineDesc) (gpucore.RenderPipelineID, error) {
	if err := d.alive(); err != nil {
		return gpucore.InvalidID, err
	}
	if desc == nil || len(desc.ColorTargets) == 0 {
		return gpucore.InvalidID, fmt.Errorf("native: create render pipeline: %w: no color targets", ErrInvalidDescriptor)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	layout, module, err := d.lookupProgram(desc.Label, desc.Layout, desc.ShaderModule, desc.VertexEntry, desc.FragmentEntry)
	if err != nil {
		return gpucore.InvalidID, err
	}

	targets := make([]gputypes.ColorTargetState, len(desc.ColorTargets))
	for i, f := range desc.ColorTargets {
		targets[i] = gputypes.ColorTargetState{Format: f, WriteMask: gputypes.ColorWriteMaskAll}
	}
	var buffers []gputypes.VertexBufferLayout
	if desc.VertexLayout != nil {
		buffers = []gputypes.VertexBufferLayout{{
			ArrayStride: desc.VertexLayout.ArrayStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes:  desc.VertexLayout.Attributes,
		}}
	}

	raw, err := d.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: layout.raw,
		Vertex: hal.VertexState{
			Module:     module.raw,
			EntryPoint: desc.VertexEntry,
			Buffers:    buffers,
		},
		Fragment: &hal.FragmentState{
			Module:     module.raw,
			EntryPoint: desc.FragmentEntry,
			Targets:    targets,
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: render pipeline %q: %w", desc.Label, err)
	}
	id := gpucore.RenderPipelineID(d.newID())
	d.renderPipelines[id] = &renderPipeline{raw: raw, layout: layout}
	return id, nil
}

// DestroyRenderPipeline releases a render pipeline.
func (d *Device) DestroyRenderPipeline(id gpucore.RenderPipelineID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.renderPipelines[id]; ok {
		d.device.DestroyRenderPipeline(p.raw)
		delete(d.renderPipelines, id)
	}
}
