package registry

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/orb/gpucore"
)

// Item is one entry of a binding set declaration. Its slot is its
// position in the list passed to BuildBindingSet.
type Item interface {
	resolve(r *Registry, slot uint32) (resolved, error)
}

type resolved struct {
	layout gpucore.BindGroupLayoutEntry
	entry  gpucore.BindGroupEntry
	slot   Slot
}

// StorageBuffer binds a buffer as a storage buffer. The binding type is
// inferred from the buffer's usage: a uniform buffer is bound as uniform
// regardless of ReadOnly.
type StorageBuffer struct {
	Label    string
	MinSize  uint64
	ReadOnly bool
}

// UniformBuffer binds a buffer created with BufferUsageUniform.
type UniformBuffer struct {
	Label   string
	MinSize uint64
}

// SampledImage binds the default full view of an image for sampling.
type SampledImage struct {
	Label string
}

// SamplerItem binds a registered sampler.
type SamplerItem struct {
	Label string
}

// ImageViewItem binds a registered view for sampling.
type ImageViewItem struct {
	Label      string
	SampleKind gpucore.SampleKind
}

// StorageImage binds a single-level view for storage access.
type StorageImage struct {
	Label  string
	Access gpucore.StorageAccess
}

// Slot records what a binding set binds at one index.
type Slot struct {
	Index  uint32
	Label  string
	Type   gpucore.BindingType
	Access gpucore.StorageAccess
}

// BindingSetLayout is the layout derived from a binding set declaration.
type BindingSetLayout struct {
	label   string
	ID      gpucore.BindGroupLayoutID
	Entries []gpucore.BindGroupLayoutEntry
}

func (l *BindingSetLayout) Label() string { return l.label }
func (l *BindingSetLayout) Kind() Kind    { return KindBindingSetLayout }

// BindingSet is an immutable group of bound resources.
type BindingSet struct {
	label  string
	ID     gpucore.BindGroupID
	Layout *BindingSetLayout
	Slots  []Slot
}

func (s *BindingSet) Label() string { return s.label }
func (s *BindingSet) Kind() Kind    { return KindBindingSet }

// LayoutLabel returns the label a binding set's layout is registered
// under.
func LayoutLabel(setLabel string) string { return setLabel + "/layout" }

func (it StorageBuffer) resolve(r *Registry, slot uint32) (resolved, error) {
	return r.resolveBuffer(it.Label, slot, it.MinSize, it.ReadOnly, false)
}

func (it UniformBuffer) resolve(r *Registry, slot uint32) (resolved, error) {
	return r.resolveBuffer(it.Label, slot, it.MinSize, true, true)
}

// resolveBuffer must be called with mu held.
func (r *Registry) resolveBuffer(label string, slot uint32, minSize uint64, readOnly, wantUniform bool) (resolved, error) {
	b, ok := r.buffers[label]
	if !ok {
		return resolved{}, configErr("bind", KindBuffer, label, ErrLabelNotFound)
	}

	var typ gpucore.BindingType
	switch {
	case b.Usage&gputypes.BufferUsageUniform != 0:
		typ = gpucore.BindingTypeUniformBuffer
	case wantUniform:
		return resolved{}, configErr("bind", KindBuffer, label,
			fmt.Errorf("%w: uniform binding over a buffer without uniform usage", ErrLayoutMismatch))
	case b.Usage&gputypes.BufferUsageStorage == 0:
		return resolved{}, configErr("bind", KindBuffer, label,
			fmt.Errorf("%w: buffer has neither storage nor uniform usage", ErrLayoutMismatch))
	case readOnly:
		typ = gpucore.BindingTypeReadOnlyStorageBuffer
	default:
		typ = gpucore.BindingTypeStorageBuffer
	}
	if b.Size < minSize {
		return resolved{}, configErr("bind", KindBuffer, label,
			fmt.Errorf("%w: %d bytes, binding needs %d", ErrSizeMismatch, b.Size, minSize))
	}

	access := gpucore.StorageAccessReadWrite
	if typ != gpucore.BindingTypeStorageBuffer {
		access = gpucore.StorageAccessReadOnly
	}
	return resolved{
		layout: gpucore.BindGroupLayoutEntry{Binding: slot, Type: typ, MinBindingSize: minSize},
		entry:  gpucore.BindGroupEntry{Binding: slot, Buffer: b.ID},
		slot:   Slot{Index: slot, Label: label, Type: typ, Access: access},
	}, nil
}

func (it SampledImage) resolve(r *Registry, slot uint32) (resolved, error) {
	img, ok := r.images[it.Label]
	if !ok {
		return resolved{}, configErr("bind", KindImage, it.Label, ErrLabelNotFound)
	}
	return sampled(img.View, slot, gpucore.SampleKindFloat)
}

func (it ImageViewItem) resolve(r *Registry, slot uint32) (resolved, error) {
	v, ok := r.views[it.Label]
	if !ok {
		return resolved{}, configErr("bind", KindImageView, it.Label, ErrLabelNotFound)
	}
	return sampled(v, slot, it.SampleKind)
}

func sampled(v *ImageView, slot uint32, kind gpucore.SampleKind) (resolved, error) {
	if v.Image.Usage&gputypes.TextureUsageTextureBinding == 0 {
		return resolved{}, configErr("bind", KindImageView, v.label,
			fmt.Errorf("%w: image %q is not sampleable", ErrLayoutMismatch, v.Image.label))
	}
	return resolved{
		layout: gpucore.BindGroupLayoutEntry{
			Binding:    slot,
			Type:       gpucore.BindingTypeSampledTexture,
			SampleKind: kind,
			MultiLevel: v.LevelCount > 1,
		},
		entry: gpucore.BindGroupEntry{Binding: slot, TextureView: v.ID},
		slot:  Slot{Index: slot, Label: v.label, Type: gpucore.BindingTypeSampledTexture, Access: gpucore.StorageAccessReadOnly},
	}, nil
}

func (it StorageImage) resolve(r *Registry, slot uint32) (resolved, error) {
	v, ok := r.views[it.Label]
	if !ok {
		return resolved{}, configErr("bind", KindImageView, it.Label, ErrLabelNotFound)
	}
	if v.LevelCount != 1 {
		return resolved{}, configErr("bind", KindImageView, it.Label,
			fmt.Errorf("%w: storage view spans %d levels", ErrLayoutMismatch, v.LevelCount))
	}
	if v.Image.Usage&gputypes.TextureUsageStorageBinding == 0 {
		return resolved{}, configErr("bind", KindImageView, it.Label,
			fmt.Errorf("%w: image %q has no storage usage", ErrLayoutMismatch, v.Image.label))
	}
	return resolved{
		layout: gpucore.BindGroupLayoutEntry{
			Binding: slot,
			Type:    gpucore.BindingTypeStorageTexture,
			Access:  it.Access,
			Format:  v.Image.Format,
		},
		entry: gpucore.BindGroupEntry{Binding: slot, TextureView: v.ID},
		slot:  Slot{Index: slot, Label: it.Label, Type: gpucore.BindingTypeStorageTexture, Access: it.Access},
	}, nil
}

func (it SamplerItem) resolve(r *Registry, slot uint32) (resolved, error) {
	s, ok := r.samplers[it.Label]
	if !ok {
		return resolved{}, configErr("bind", KindSampler, it.Label, ErrLabelNotFound)
	}
	return resolved{
		layout: gpucore.BindGroupLayoutEntry{Binding: slot, Type: gpucore.BindingTypeSampler},
		entry:  gpucore.BindGroupEntry{Binding: slot, Sampler: s.ID},
		slot:   Slot{Index: slot, Label: it.Label, Type: gpucore.BindingTypeSampler, Access: gpucore.StorageAccessReadOnly},
	}, nil
}

// BuildBindingSet declares an ordered binding set and derives its layout,
// registered under LayoutLabel(label). Every item is resolved before any
// device object is created.
func (r *Registry) BuildBindingSet(label string, items ...Item) (*BindingSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkNew("build", KindBindingSet, label); err != nil {
		return nil, err
	}
	layoutLabel := LayoutLabel(label)
	if err := r.checkNew("build", KindBindingSetLayout, layoutLabel); err != nil {
		return nil, err
	}

	layoutEntries := make([]gpucore.BindGroupLayoutEntry, 0, len(items))
	setEntries := make([]gpucore.BindGroupEntry, 0, len(items))
	slots := make([]Slot, 0, len(items))
	for i, it := range items {
		res, err := it.resolve(r, uint32(i))
		if err != nil {
			return nil, err
		}
		layoutEntries = append(layoutEntries, res.layout)
		setEntries = append(setEntries, res.entry)
		slots = append(slots, res.slot)
	}

	layoutID, err := r.dev.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label:   layoutLabel,
		Entries: layoutEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: build binding set %q layout: %w", label, err)
	}
	setID, err := r.dev.CreateBindGroup(&gpucore.BindGroupDesc{
		Label:   label,
		Layout:  layoutID,
		Entries: setEntries,
	})
	if err != nil {
		r.dev.DestroyBindGroupLayout(layoutID)
		return nil, fmt.Errorf("registry: build binding set %q: %w", label, err)
	}

	layout := &BindingSetLayout{label: layoutLabel, ID: layoutID, Entries: layoutEntries}
	set := &BindingSet{label: label, ID: setID, Layout: layout, Slots: slots}
	r.layouts[layoutLabel] = layout
	r.sets[label] = set
	r.remember(KindBindingSetLayout, layoutLabel)
	r.remember(KindBindingSet, label)
	return set, nil
}
