package software

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/orb/gpucore"
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
	desc gpucore.BufferDesc
	data []byte

	atomicMu sync.Mutex

	// Guarded by Device.mu.
	state     mapState
	mapOffset uint64
	mapSize   uint64
}

type mipLevel struct {
	w, h int
	px   []float32 // RGBA per texel
}

func (l *mipLevel) load(x, y int) [4]float32 {
	x = min(max(x, 0), l.w-1)
	y = min(max(y, 0), l.h-1)
	i := (y*l.w + x) * 4
	return [4]float32{l.px[i], l.px[i+1], l.px[i+2], l.px[i+3]}
}

func (l *mipLevel) store(x, y int, v [4]float32, format gputypes.TextureFormat) {
	if x < 0 || y < 0 || x >= l.w || y >= l.h {
		return
	}
	i := (y*l.w + x) * 4
	if format == gputypes.TextureFormatR8Unorm {
		v = [4]float32{v[0], 0, 0, 1}
	}
	for c := range 4 {
		l.px[i+c] = quantizeUnorm8(v[c])
	}
}

func quantizeUnorm8(v float32) float32 {
	v = min(max(v, 0), 1)
	return float32(math.Round(float64(v)*255)) / 255
}

type texture struct {
	desc   gpucore.TextureDesc
	levels []mipLevel
}

type textureView struct {
	tex   *texture
	texID gpucore.TextureID
	base  int
	count int
}

type sampler struct {
	desc gpucore.SamplerDesc
}

type shaderModule struct {
	desc gpucore.ShaderModuleDesc
}

type bindGroupLayout struct {
	desc gpucore.BindGroupLayoutDesc
}

// equivalent reports whether bind groups created for l may be used where
// o is expected: identical entries, labels aside.
func (l *bindGroupLayout) equivalent(o *bindGroupLayout) bool {
	return l == o || slices.Equal(l.desc.Entries, o.desc.Entries)
}

type bindGroup struct {
	layout  *bindGroupLayout
	entries map[uint32]*boundResource
}

type pipelineLayout struct {
	groups    []*bindGroupLayout
	paramSize uint32
}

type computePipeline struct {
	label  string
	layout *pipelineLayout
	kernel Kernel
}

type renderPipeline struct {
	label       string
	layout      *pipelineLayout
	fragment    Kernel
	format      gputypes.TextureFormat
	needsVertex bool
}

// =============================================================================
// Formats
// =============================================================================

func bytesPerPixel(format gputypes.TextureFormat) (int, error) {
	switch format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm:
		return 4, nil
	case gputypes.TextureFormatR8Unorm:
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: unsupported texture format %v", ErrInvalidDescriptor, format)
	}
}

func decodeTexel(format gputypes.TextureFormat, p []byte) [4]float32 {
	switch format {
	case gputypes.TextureFormatBGRA8Unorm:
		return [4]float32{float32(p[2]) / 255, float32(p[1]) / 255, float32(p[0]) / 255, float32(p[3]) / 255}
	case gputypes.TextureFormatR8Unorm:
		return [4]float32{float32(p[0]) / 255, 0, 0, 1}
	default:
		return [4]float32{float32(p[0]) / 255, float32(p[1]) / 255, float32(p[2]) / 255, float32(p[3]) / 255}
	}
}

// =============================================================================
// Buffers
// =============================================================================

// CreateBuffer allocates a zero-filled buffer.
func (d *Device) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if err := d.alive(); err != nil {
		return gpucore.InvalidID, err
	}
	if desc == nil || desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("software: create buffer: %w: zero size", ErrInvalidDescriptor)
	}
	if desc.Size%4 != 0 {
		return gpucore.InvalidID, fmt.Errorf("software: create buffer %q: %w: size %d not a multiple of 4",
			desc.Label, ErrInvalidDescriptor, desc.Size)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.BufferID(d.newID())
	d.buffers[id] = &buffer{desc: *desc, data: make([]byte, desc.Size)}
	return id, nil
}

// DestroyBuffer releases a buffer. A pending map completes with
// MapStatusDestroyedBeforeCallback on the next Poll.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.buffers[id]; !ok {
		return
	}
	for _, pm := range d.pendingMaps {
		if pm.id == id {
			pm.status = gpucore.MapStatusDestroyedBeforeCallback
			pm.remaining = 0
		}
	}
	delete(d.buffers, id)
}

// WriteBuffer copies data into a buffer.
func (d *Device) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	if err := d.alive(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("software: write buffer %d: %w", id, ErrUnknownResource)
	}
	if b.state != mapUnmapped {
		return fmt.Errorf("software: write buffer %q: %w", b.desc.Label, ErrBufferMapped)
	}
	if b.desc.Usage&gputypes.BufferUsageCopyDst == 0 {
		return fmt.Errorf("software: write buffer %q: %w: CopyDst", b.desc.Label, ErrUsage)
	}
	if offset+uint64(len(data)) > b.desc.Size {
		return fmt.Errorf("software: write buffer %q: %w: %d+%d > %d",
			b.desc.Label, ErrOutOfRange, offset, len(data), b.desc.Size)
	}
	copy(b.data[offset:], data)
	return nil
}

// =============================================================================
// Textures, views and samplers
// =============================================================================

// CreateTexture allocates a zero-filled texture with all its mip levels.
func (d *Device) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if err := d.alive(); err != nil {
		return gpucore.InvalidID, err
	}
	if desc == nil || desc.Width == 0 || desc.Height == 0 || desc.MipLevelCount == 0 {
		return gpucore.InvalidID, fmt.Errorf("software: create texture: %w: empty extent or no levels", ErrInvalidDescriptor)
	}
	if _, err := bytesPerPixel(desc.Format); err != nil {
		return gpucore.InvalidID, fmt.Errorf("software: create texture %q: %w", desc.Label, err)
	}
	maxLevels := uint32(bitsLen(max(desc.Width, desc.Height)))
	if desc.MipLevelCount > maxLevels {
		return gpucore.InvalidID, fmt.Errorf("software: create texture %q: %w: %d levels exceeds %d",
			desc.Label, ErrInvalidDescriptor, desc.MipLevelCount, maxLevels)
	}

	t := &texture{desc: *desc, levels: make([]mipLevel, desc.MipLevelCount)}
	for i := range t.levels {
		w := max(int(desc.Width)>>i, 1)
		h := max(int(desc.Height)>>i, 1)
		t.levels[i] = mipLevel{w: w, h: h, px: make([]float32, w*h*4)}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.TextureID(d.newID())
	d.textures[id] = t
	return id, nil
}

func bitsLen(v uint32) int {
	n := 0
	for ; v > 0; v >>= 1 {
		n++
	}
	return n
}

// DestroyTexture releases a texture.
func (d *Device) DestroyTexture(id gpucore.TextureID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.textures, id)
}

// WriteTexture uploads rows into one mip level.
func (d *Device) WriteTexture(id gpucore.TextureID, level uint32, data []byte, bytesPerRow uint32) error {
	if err := d.alive(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.textures[id]
	if !ok {
		return fmt.Errorf("software: write texture %d: %w", id, ErrUnknownResource)
	}
	if t.desc.Usage&gputypes.TextureUsageCopyDst == 0 {
		return fmt.Errorf("software: write texture %q: %w: CopyDst", t.desc.Label, ErrUsage)
	}
	if int(level) >= len(t.levels) {
		return fmt.Errorf("software: write texture %q: %w: level %d", t.desc.Label, ErrOutOfRange, level)
	}
	lv := &t.levels[level]
	bpp, _ := bytesPerPixel(t.desc.Format)
	if int(bytesPerRow) < lv.w*bpp || len(data) != int(bytesPerRow)*lv.h {
		return fmt.Errorf("software: write texture %q: %w: %d bytes with row stride %d for %dx%d",
			t.desc.Label, ErrOutOfRange, len(data), bytesPerRow, lv.w, lv.h)
	}

	for y := range lv.h {
		row := data[y*int(bytesPerRow):]
		for x := range lv.w {
			v := decodeTexel(t.desc.Format, row[x*bpp:])
			copy(lv.px[(y*lv.w+x)*4:], v[:])
		}
	}
	return nil
}

// CreateTextureView creates a view over a range of mip levels.
func (d *Device) CreateTextureView(texID gpucore.TextureID, desc *gpucore.TextureViewDesc) (gpucore.TextureViewID, error) {
	if err := d.alive(); err != nil {
		return gpucore.InvalidID, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.textures[texID]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("software: create texture view: texture %d: %w", texID, ErrUnknownResource)
	}
	var base, count uint32
	if desc != nil {
		base, count = desc.BaseMipLevel, desc.MipLevelCount
	}
	total := uint32(len(t.levels))
	if count == 0 && base < total {
		count = total - base
	}
	if base >= total || base+count > total {
		return gpucore.InvalidID, fmt.Errorf("software: create texture view of %q: %w: levels [%d,%d) of %d",
			t.desc.Label, ErrOutOfRange, base, base+count, total)
	}

	id := gpucore.TextureViewID(d.newID())
	d.views[id] = &textureView{tex: t, texID: texID, base: int(base), count: int(count)}
	return id, nil
}

// DestroyTextureView releases a view.
func (d *Device) DestroyTextureView(id gpucore.TextureViewID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.views, id)
}

// CreateSampler creates a sampler.
func (d *Device) CreateSampler(desc *gpucore.SamplerDesc) (gpucore.SamplerID, error) {
	if err := d.alive(); err != nil {
		return gpucore.InvalidID, err
	}
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("software: create sampler: %w", ErrInvalidDescriptor)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.SamplerID(d.newID())
	d.samplers[id] = &sampler{desc: *desc}
	return id, nil
}

// DestroySampler releases a sampler.
func (d *Device) DestroySampler(id gpucore.SamplerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.samplers, id)
}

// =============================================================================
// Programs, layouts and bind groups
// =============================================================================

// CreateShaderModule resolves every declared entry point against the
// kernel table. The source itself is kept only for labelling.
func (d *Device) CreateShaderModule(desc *gpucore.ShaderModuleDesc) (gpucore.ShaderModuleID, error) {
	if err := d.alive(); err != nil {
		return gpucore.InvalidID, err
	}
	if desc == nil || len(desc.EntryPoints) == 0 {
		return gpucore.InvalidID, fmt.Errorf("software: create shader module: %w: no entry points", ErrInvalidDescriptor)
	}
	for _, ep := range desc.EntryPoints {
		if _, ok := d.kernels[ep]; !ok {
			return gpucore.InvalidID, fmt.Errorf("software: shader module %q: %w: %s", desc.Label, ErrEntryPointNotFound, ep)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.ShaderModuleID(d.newID())
	d.modules[id] = &shaderModule{desc: *desc}
	return id, nil
}

// DestroyShaderModule releases a program.
func (d *Device) DestroyShaderModule(id gpucore.ShaderModuleID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.modules, id)
}

// CreateBindGroupLayout records a layout.
func (d *Device) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	if err := d.alive(); err != nil {
		return gpucore.InvalidID, err
	}
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("software: create bind group layout: %w", ErrInvalidDescriptor)
	}
	seen := make(map[uint32]bool, len(desc.Entries))
	for _, e := range desc.Entries {
		if seen[e.Binding] {
			return gpucore.InvalidID, fmt.Errorf("software: bind group layout %q: %w: binding %d repeated",
				desc.Label, ErrInvalidDescriptor, e.Binding)
		}
		seen[e.Binding] = true
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id := gpucore.BindGroupLayoutID(d.newID())
	l := &bindGroupLayout{desc: *desc}
	l.desc.Entries = slices.Clone(desc.Entries)
	d.bgLayouts[id] = l
	return id, nil
}

// DestroyBindGroupLayout releases a layout.
func (d *Device) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.bgLayouts, id)
}

// CreateBindGroup resolves and validates every entry against the layout.
func (d *Device) CreateBindGroup(desc *gpucore.BindGroupDesc) (gpucore.BindGroupID, error) {
	if err := d.alive(); err != nil {
		return gpucore.InvalidID, err
	}
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("software: create bind group: %w", ErrInvalidDescriptor)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	layout, ok := d.bgLayouts[desc.Layout]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("software: bind group %q: layout %d: %w", desc.Label, desc.Layout, ErrUnknownResource)
	}
	if len(desc.Entries) != len(layout.desc.Entries) {
		return gpucore.InvalidID, fmt.Errorf("software: bind group %q: %w: %d entries for %d layout entries",
			desc.Label, ErrBindingMismatch, len(desc.Entries), len(layout.desc.Entries))
	}

	bg := &bindGroup{layout: layout, entries: make(map[uint32]*boundResource, len(desc.Entries))}
	for i, e := range desc.Entries {
		le := layout.desc.Entries[i]
		if le.Binding != e.Binding {
			return gpucore.InvalidID, fmt.Errorf("software: bind group %q: %w: slot %d binds %d, layout declares %d",
				desc.Label, ErrBindingMismatch, i, e.Binding, le.Binding)
		}
		r, err := d.resolveEntry(le, e)
		if err != nil {
			return gpucore.InvalidID, fmt.Errorf("software: bind group %q binding %d: %w", desc.Label, e.Binding, err)
		}
		bg.entries[e.Binding] = r
	}

	id := gpucore.BindGroupID(d.newID())
	d.bindGroups[id] = bg
	return id, nil
}

// resolveEntry must be called with mu held.
func (d *Device) resolveEntry(le gpucore.BindGroupLayoutEntry, e gpucore.BindGroupEntry) (*boundResource, error) {
	r := &boundResource{kind: le.Type}
	switch le.Type {
	case gpucore.BindingTypeUniformBuffer, gpucore.BindingTypeStorageBuffer, gpucore.BindingTypeReadOnlyStorageBuffer:
		b, ok := d.buffers[e.Buffer]
		if !ok {
			return nil, fmt.Errorf("buffer %d: %w", e.Buffer, ErrUnknownResource)
		}
		want := gputypes.BufferUsageStorage
		if le.Type == gpucore.BindingTypeUniformBuffer {
			want = gputypes.BufferUsageUniform
		}
		if b.desc.Usage&want == 0 {
			return nil, fmt.Errorf("%w: %q bound as %s", ErrUsage, b.desc.Label, le.Type)
		}
		size := e.Size
		if size == 0 {
			if e.Offset > b.desc.Size {
				return nil, fmt.Errorf("%w: offset %d", ErrOutOfRange, e.Offset)
			}
			size = b.desc.Size - e.Offset
		}
		if e.Offset+size > b.desc.Size {
			return nil, fmt.Errorf("%w: %d+%d > %d", ErrOutOfRange, e.Offset, size, b.desc.Size)
		}
		if size < le.MinBindingSize {
			return nil, fmt.Errorf("%w: %d bytes below minimum %d", ErrBindingMismatch, size, le.MinBindingSize)
		}
		r.buffer = &BufferBinding{
			buf:      b,
			offset:   e.Offset,
			size:     size,
			readOnly: le.Type != gpucore.BindingTypeStorageBuffer,
		}

	case gpucore.BindingTypeSampledTexture, gpucore.BindingTypeStorageTexture:
		v, ok := d.views[e.TextureView]
		if !ok {
			return nil, fmt.Errorf("texture view %d: %w", e.TextureView, ErrUnknownResource)
		}
		storage := le.Type == gpucore.BindingTypeStorageTexture
		want := gputypes.TextureUsageTextureBinding
		if storage {
			want = gputypes.TextureUsageStorageBinding
			if v.count != 1 {
				return nil, fmt.Errorf("%w: storage view spans %d levels", ErrBindingMismatch, v.count)
			}
		}
		if v.tex.desc.Usage&want == 0 {
			return nil, fmt.Errorf("%w: %q bound as %s", ErrUsage, v.tex.desc.Label, le.Type)
		}
		r.texture = &TextureBinding{tex: v.tex, base: v.base, count: v.count, writeable: storage && le.Access != gpucore.StorageAccessReadOnly}

	case gpucore.BindingTypeSampler:
		s, ok := d.samplers[e.Sampler]
		if !ok {
			return nil, fmt.Errorf("sampler %d: %w", e.Sampler, ErrUnknownResource)
		}
		r.sampler = &SamplerBinding{desc: s.desc}

	default:
		return nil, fmt.Errorf("%w: binding type %s", ErrInvalidDescriptor, le.Type)
	}
	return r, nil
}

// DestroyBindGroup releases a bind group.
func (d *Device) DestroyBindGroup(id gpucore.BindGroupID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.bindGroups, id)
}

// =============================================================================
// Pipelines
// =============================================================================

// CreatePipelineLayout composes bind group layouts in order.
func (d *Device) CreatePipelineLayout(desc *gpucore.PipelineLayoutDesc) (gpucore.PipelineLayoutID, error) {
	if err := d.alive(); err != nil {
		return gpucore.InvalidID, err
	}
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("software: create pipeline layout: %w", ErrInvalidDescriptor)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	pl := &pipelineLayout{paramSize: desc.ParamBlockSize}
	for _, lid := range desc.BindGroupLayouts {
		l, ok := d.bgLayouts[lid]
		if !ok {
			return gpucore.InvalidID, fmt.Errorf("software: pipeline layout %q: layout %d: %w", desc.Label, lid, ErrUnknownResource)
		}
		pl.groups = append(pl.groups, l)
	}
	id := gpucore.PipelineLayoutID(d.newID())
	d.pipeLayouts[id] = pl
	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (d *Device) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pipeLayouts, id)
}

// lookupEntry must be called with mu held.
func (d *Device) lookupEntry(module gpucore.ShaderModuleID, entry string, stage Stage) (Kernel, error) {
	m, ok := d.modules[module]
	if !ok {
		return Kernel{}, fmt.Errorf("module %d: %w", module, ErrUnknownResource)
	}
	if !slices.Contains(m.desc.EntryPoints, entry) {
		return Kernel{}, fmt.Errorf("%w: %s not declared by %q", ErrEntryPointNotFound, entry, m.desc.Label)
	}
	k := d.kernels[entry]
	if k.Stage != stage {
		return Kernel{}, fmt.Errorf("%w: %s is a %s kernel, want %s", ErrInvalidDescriptor, entry, k.Stage, stage)
	}
	return k, nil
}

// CreateComputePipeline binds a compute kernel to a layout.
func (d *Device) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	if err := d.alive(); err != nil {
		return gpucore.InvalidID, err
	}
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("software: create compute pipeline: %w", ErrInvalidDescriptor)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	pl, ok := d.pipeLayouts[desc.Layout]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("software: compute pipeline %q: layout %d: %w", desc.Label, desc.Layout, ErrUnknownResource)
	}
	k, err := d.lookupEntry(desc.ShaderModule, desc.EntryPoint, StageCompute)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("software: compute pipeline %q: %w", desc.Label, err)
	}
	if k.Compute == nil {
		return gpucore.InvalidID, fmt.Errorf("software: compute pipeline %q: %w: %s has no body", desc.Label, ErrInvalidDescriptor, desc.EntryPoint)
	}

	id := gpucore.ComputePipelineID(d.newID())
	d.computePipelines[id] = &computePipeline{label: desc.Label, layout: pl, kernel: k}
	return id, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (d *Device) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.computePipelines, id)
}

// CreateRenderPipeline binds a vertex and fragment kernel pair to a layout.
// The software rasterizer supports exactly one color target.
func (d *Device) CreateRenderPipeline(desc *gpucore.RenderPipelineDesc) (gpucore.RenderPipelineID, error) {
	if err := d.alive(); err != nil {
		return gpucore.InvalidID, err
	}
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("software: create render pipeline: %w", ErrInvalidDescriptor)
	}
	if len(desc.ColorTargets) != 1 {
		return gpucore.InvalidID, fmt.Errorf("software: render pipeline %q: %w: %d color targets",
			desc.Label, ErrInvalidDescriptor, len(desc.ColorTargets))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	pl, ok := d.pipeLayouts[desc.Layout]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("software: render pipeline %q: layout %d: %w", desc.Label, desc.Layout, ErrUnknownResource)
	}
	if _, err := d.lookupEntry(desc.ShaderModule, desc.VertexEntry, StageVertex); err != nil {
		return gpucore.InvalidID, fmt.Errorf("software: render pipeline %q: %w", desc.Label, err)
	}
	frag, err := d.lookupEntry(desc.ShaderModule, desc.FragmentEntry, StageFragment)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("software: render pipeline %q: %w", desc.Label, err)
	}
	if frag.Fragment == nil {
		return gpucore.InvalidID, fmt.Errorf("software: render pipeline %q: %w: %s has no body", desc.Label, ErrInvalidDescriptor, desc.FragmentEntry)
	}

	id := gpucore.RenderPipelineID(d.newID())
	d.renderPipelines[id] = &renderPipeline{
		label:       desc.Label,
		layout:      pl,
		fragment:    frag,
		format:      desc.ColorTargets[0],
		needsVertex: desc.VertexLayout != nil,
	}
	return id, nil
}

// DestroyRenderPipeline releases a render pipeline.
func (d *Device) DestroyRenderPipeline(id gpucore.RenderPipelineID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.renderPipelines, id)
}
