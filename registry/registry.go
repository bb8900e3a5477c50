// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package registry owns and names every device resource of one pipeline
// instance.
//
// A Registry maps string labels to typed resources (buffers, images, image
// views, samplers, programs, binding sets and their layouts, pipelines).
// Labels are unique per kind. Creation allocates device memory immediately
// and returns a typed handle; label lookups are meant for construction
// time, while per-frame code threads the returned handles.
//
// All configuration failures are reported as *ConfigError wrapping one of
// ErrDuplicateLabel, ErrLabelNotFound, ErrSizeMismatch or
// ErrLayoutMismatch. A failed creation never leaves a partial entry behind.
package registry

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/orb/gpucore"
	"github.com/gogpu/orb/internal/logger"
)

// Kind identifies the type of a registered resource.
type Kind int

const (
	KindBuffer Kind = iota
	KindImage
	KindImageView
	KindSampler
	KindBindingSet
	KindBindingSetLayout
	KindPipeline
	KindProgram
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindBuffer:
		return "buffer"
	case KindImage:
		return "image"
	case KindImageView:
		return "image view"
	case KindSampler:
		return "sampler"
	case KindBindingSet:
		return "binding set"
	case KindBindingSetLayout:
		return "binding set layout"
	case KindPipeline:
		return "pipeline"
	case KindProgram:
		return "program"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Resource is implemented by every typed handle.
type Resource interface {
	Label() string
	Kind() Kind
}

// Buffer is a registered device buffer.
type Buffer struct {
	label string
	ID    gpucore.BufferID
	Size  uint64
	Usage gputypes.BufferUsage
}

func (b *Buffer) Label() string { return b.label }
func (b *Buffer) Kind() Kind    { return KindBuffer }

// Image is a registered texture with one or more mip levels.
type Image struct {
	label     string
	ID        gpucore.TextureID
	Width     uint32
	Height    uint32
	MipLevels uint32
	Format    gputypes.TextureFormat
	Usage     gputypes.TextureUsage

	// View is the default view spanning every level, registered under the
	// image's own label.
	View *ImageView
}

func (i *Image) Label() string { return i.label }
func (i *Image) Kind() Kind    { return KindImage }

// LevelSize returns the dimensions of a mip level: each level halves the
// previous one, rounding down, and never drops below 1.
func (i *Image) LevelSize(level uint32) (w, h uint32) {
	return LevelSize(i.Width, i.Height, level)
}

// LevelSize returns floor(w/2^level) x floor(h/2^level), clamped to 1.
func LevelSize(w, h, level uint32) (uint32, uint32) {
	return max(w>>level, 1), max(h>>level, 1)
}

// ImageView is a registered view over a range of an image's levels.
type ImageView struct {
	label      string
	ID         gpucore.TextureViewID
	Image      *Image
	BaseLevel  uint32
	LevelCount uint32
}

func (v *ImageView) Label() string { return v.label }
func (v *ImageView) Kind() Kind    { return KindImageView }

// Size returns the dimensions of the view's base level.
func (v *ImageView) Size() (w, h uint32) { return v.Image.LevelSize(v.BaseLevel) }

// SamplerConfig selects filtering and addressing for a sampler.
type SamplerConfig struct {
	MagFilter    gputypes.FilterMode
	MinFilter    gputypes.FilterMode
	MipmapFilter gputypes.FilterMode
	AddressMode  gputypes.AddressMode
}

// LinearClamp is the bilinear, clamp-to-edge sampler used by the pyramid.
var LinearClamp = SamplerConfig{
	MagFilter:    gputypes.FilterModeLinear,
	MinFilter:    gputypes.FilterModeLinear,
	MipmapFilter: gputypes.FilterModeLinear,
	AddressMode:  gputypes.AddressModeClampToEdge,
}

// Sampler is a registered sampler.
type Sampler struct {
	label  string
	ID     gpucore.SamplerID
	Config SamplerConfig
}

func (s *Sampler) Label() string { return s.label }
func (s *Sampler) Kind() Kind    { return KindSampler }

// Program is a loaded shader program with its declared entry points.
type Program struct {
	label       string
	ID          gpucore.ShaderModuleID
	EntryPoints []string
}

func (p *Program) Label() string { return p.label }
func (p *Program) Kind() Kind    { return KindProgram }

// HasEntryPoint reports whether the program declared the entry point.
func (p *Program) HasEntryPoint(name string) bool { return slices.Contains(p.EntryPoints, name) }

// Registry is the catalogue of every resource owned by one pipeline
// instance. It is safe for concurrent use, though construction normally
// happens on a single goroutine.
type Registry struct {
	dev gpucore.Device

	mu        sync.Mutex
	closed    bool
	buffers   map[string]*Buffer
	images    map[string]*Image
	views     map[string]*ImageView
	samplers  map[string]*Sampler
	programs  map[string]*Program
	layouts   map[string]*BindingSetLayout
	sets      map[string]*BindingSet
	pipelines map[string]*Pipeline

	// order records creation order per kind so Close can release in
	// reverse.
	order map[Kind][]string
}

// New creates an empty registry on dev.
func New(dev gpucore.Device) *Registry {
	return &Registry{
		dev:       dev,
		buffers:   make(map[string]*Buffer),
		images:    make(map[string]*Image),
		views:     make(map[string]*ImageView),
		samplers:  make(map[string]*Sampler),
		programs:  make(map[string]*Program),
		layouts:   make(map[string]*BindingSetLayout),
		sets:      make(map[string]*BindingSet),
		pipelines: make(map[string]*Pipeline),
		order:     make(map[Kind][]string),
	}
}

// Device returns the device the registry allocates on.
func (r *Registry) Device() gpucore.Device { return r.dev }

// exists must be called with mu held.
func (r *Registry) exists(kind Kind, label string) bool {
	var ok bool
	switch kind {
	case KindBuffer:
		_, ok = r.buffers[label]
	case KindImage:
		_, ok = r.images[label]
	case KindImageView:
		_, ok = r.views[label]
	case KindSampler:
		_, ok = r.samplers[label]
	case KindProgram:
		_, ok = r.programs[label]
	case KindBindingSetLayout:
		_, ok = r.layouts[label]
	case KindBindingSet:
		_, ok = r.sets[label]
	case KindPipeline:
		_, ok = r.pipelines[label]
	}
	return ok
}

// checkNew must be called with mu held.
func (r *Registry) checkNew(op string, kind Kind, label string) error {
	if r.closed {
		return configErr(op, kind, label, ErrClosed)
	}
	if label == "" {
		return configErr(op, kind, label, fmt.Errorf("%w: empty label", ErrLayoutMismatch))
	}
	if r.exists(kind, label) {
		return configErr(op, kind, label, ErrDuplicateLabel)
	}
	return nil
}

func (r *Registry) remember(kind Kind, label string) {
	r.order[kind] = append(r.order[kind], label)
}

// CreateBuffer allocates a buffer of size bytes.
func (r *Registry) CreateBuffer(label string, size uint64, usage gputypes.BufferUsage) (*Buffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkNew("create", KindBuffer, label); err != nil {
		return nil, err
	}
	id, err := r.dev.CreateBuffer(&gpucore.BufferDesc{Label: label, Size: size, Usage: usage})
	if err != nil {
		return nil, fmt.Errorf("registry: create buffer %q: %w", label, err)
	}

	b := &Buffer{label: label, ID: id, Size: size, Usage: usage}
	r.buffers[label] = b
	r.remember(KindBuffer, label)
	logger.L().Debug("registry: buffer created", "label", label, "size", size)
	return b, nil
}

// CreateImage allocates an image with mipLevels levels and registers its
// default full view under the same label.
func (r *Registry) CreateImage(label string, width, height, mipLevels uint32, format gputypes.TextureFormat, usage gputypes.TextureUsage) (*Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkNew("create", KindImage, label); err != nil {
		return nil, err
	}
	if err := r.checkNew("create", KindImageView, label); err != nil {
		return nil, err
	}
	if width == 0 || height == 0 || mipLevels == 0 {
		return nil, configErr("create", KindImage, label,
			fmt.Errorf("%w: %dx%d with %d levels", ErrSizeMismatch, width, height, mipLevels))
	}

	tex, err := r.dev.CreateTexture(&gpucore.TextureDesc{
		Label:         label,
		Width:         width,
		Height:        height,
		MipLevelCount: mipLevels,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: create image %q: %w", label, err)
	}
	view, err := r.dev.CreateTextureView(tex, &gpucore.TextureViewDesc{Label: label})
	if err != nil {
		r.dev.DestroyTexture(tex)
		return nil, fmt.Errorf("registry: create image %q default view: %w", label, err)
	}

	img := &Image{
		label:     label,
		ID:        tex,
		Width:     width,
		Height:    height,
		MipLevels: mipLevels,
		Format:    format,
		Usage:     usage,
	}
	img.View = &ImageView{label: label, ID: view, Image: img, LevelCount: mipLevels}

	r.images[label] = img
	r.views[label] = img.View
	r.remember(KindImage, label)
	r.remember(KindImageView, label)
	logger.L().Debug("registry: image created", "label", label, "width", width, "height", height, "levels", mipLevels)
	return img, nil
}

// CreateImageView creates a view over levels [baseLevel, baseLevel+levelCount)
// of a registered image. levelCount 0 means all remaining levels.
func (r *Registry) CreateImageView(label, imageLabel string, baseLevel, levelCount uint32) (*ImageView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkNew("create", KindImageView, label); err != nil {
		return nil, err
	}
	img, ok := r.images[imageLabel]
	if !ok {
		return nil, configErr("create view of", KindImage, imageLabel, ErrLabelNotFound)
	}
	if levelCount == 0 && baseLevel < img.MipLevels {
		levelCount = img.MipLevels - baseLevel
	}
	if baseLevel >= img.MipLevels || baseLevel+levelCount > img.MipLevels {
		return nil, configErr("create", KindImageView, label,
			fmt.Errorf("%w: levels [%d,%d) of %d", ErrSizeMismatch, baseLevel, baseLevel+levelCount, img.MipLevels))
	}

	id, err := r.dev.CreateTextureView(img.ID, &gpucore.TextureViewDesc{
		Label:         label,
		BaseMipLevel:  baseLevel,
		MipLevelCount: levelCount,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: create image view %q: %w", label, err)
	}

	v := &ImageView{label: label, ID: id, Image: img, BaseLevel: baseLevel, LevelCount: levelCount}
	r.views[label] = v
	r.remember(KindImageView, label)
	return v, nil
}

// CreateSampler creates a sampler.
func (r *Registry) CreateSampler(label string, cfg SamplerConfig) (*Sampler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkNew("create", KindSampler, label); err != nil {
		return nil, err
	}
	id, err := r.dev.CreateSampler(&gpucore.SamplerDesc{
		Label:        label,
		AddressMode:  cfg.AddressMode,
		MagFilter:    cfg.MagFilter,
		MinFilter:    cfg.MinFilter,
		MipmapFilter: cfg.MipmapFilter,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: create sampler %q: %w", label, err)
	}

	s := &Sampler{label: label, ID: id, Config: cfg}
	r.samplers[label] = s
	r.remember(KindSampler, label)
	return s, nil
}

// LoadProgram loads an opaque program source. The entry points are
// declared by the caller; they are not introspected.
func (r *Registry) LoadProgram(label, source string, entryPoints ...string) (*Program, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkNew("load", KindProgram, label); err != nil {
		return nil, err
	}
	if len(entryPoints) == 0 {
		return nil, configErr("load", KindProgram, label, fmt.Errorf("%w: no entry points", ErrLayoutMismatch))
	}
	id, err := r.dev.CreateShaderModule(&gpucore.ShaderModuleDesc{
		Label:       label,
		Source:      source,
		EntryPoints: entryPoints,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: load program %q: %w", label, err)
	}

	p := &Program{label: label, ID: id, EntryPoints: slices.Clone(entryPoints)}
	r.programs[label] = p
	r.remember(KindProgram, label)
	logger.L().Debug("registry: program loaded", "label", label, "entryPoints", entryPoints)
	return p, nil
}

// =============================================================================
// Lookup
// =============================================================================

// Lookup returns the resource registered under label for kind.
func (r *Registry) Lookup(kind Kind, label string) (Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		res Resource
		ok  bool
	)
	switch kind {
	case KindBuffer:
		res, ok = lookup(r.buffers, label)
	case KindImage:
		res, ok = lookup(r.images, label)
	case KindImageView:
		res, ok = lookup(r.views, label)
	case KindSampler:
		res, ok = lookup(r.samplers, label)
	case KindProgram:
		res, ok = lookup(r.programs, label)
	case KindBindingSetLayout:
		res, ok = lookup(r.layouts, label)
	case KindBindingSet:
		res, ok = lookup(r.sets, label)
	case KindPipeline:
		res, ok = lookup(r.pipelines, label)
	}
	if !ok {
		return nil, configErr("lookup", kind, label, ErrLabelNotFound)
	}
	return res, nil
}

func lookup[T Resource](m map[string]T, label string) (Resource, bool) {
	v, ok := m[label]
	if !ok {
		return nil, false
	}
	return v, true
}

func get[T Resource](r *Registry, kind Kind, label string) (T, error) {
	res, err := r.Lookup(kind, label)
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

// Buffer returns the buffer registered under label.
func (r *Registry) Buffer(label string) (*Buffer, error) { return get[*Buffer](r, KindBuffer, label) }

// Image returns the image registered under label.
func (r *Registry) Image(label string) (*Image, error) { return get[*Image](r, KindImage, label) }

// ImageView returns the view registered under label.
func (r *Registry) ImageView(label string) (*ImageView, error) {
	return get[*ImageView](r, KindImageView, label)
}

// Sampler returns the sampler registered under label.
func (r *Registry) Sampler(label string) (*Sampler, error) { return get[*Sampler](r, KindSampler, label) }

// Program returns the program registered under label.
func (r *Registry) Program(label string) (*Program, error) { return get[*Program](r, KindProgram, label) }

// Layout returns the binding set layout registered under label.
func (r *Registry) Layout(label string) (*BindingSetLayout, error) {
	return get[*BindingSetLayout](r, KindBindingSetLayout, label)
}

// BindingSet returns the binding set registered under label.
func (r *Registry) BindingSet(label string) (*BindingSet, error) {
	return get[*BindingSet](r, KindBindingSet, label)
}

// Pipeline returns the pipeline registered under label.
func (r *Registry) Pipeline(label string) (*Pipeline, error) {
	return get[*Pipeline](r, KindPipeline, label)
}

// =============================================================================
// Uploads
// =============================================================================

// WriteBuffer writes bytes into a registered buffer at offset.
func (r *Registry) WriteBuffer(label string, offset uint64, data []byte) error {
	b, err := r.Buffer(label)
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > b.Size {
		return configErr("write", KindBuffer, label,
			fmt.Errorf("%w: %d bytes at offset %d into %d", ErrSizeMismatch, len(data), offset, b.Size))
	}
	if err := r.dev.WriteBuffer(b.ID, offset, data); err != nil {
		return fmt.Errorf("registry: write buffer %q: %w", label, err)
	}
	return nil
}

// WriteImage writes raw pixels into level 0 of a registered image.
// len(data) must equal rowStride*height and rowStride must cover a full
// row of pixels.
func (r *Registry) WriteImage(label string, data []byte, rowStride int) error {
	img, err := r.Image(label)
	if err != nil {
		return err
	}
	bpp := BytesPerPixel(img.Format)
	if bpp == 0 {
		return configErr("write", KindImage, label, fmt.Errorf("%w: format %v", ErrLayoutMismatch, img.Format))
	}
	if rowStride < int(img.Width)*bpp {
		return configErr("write", KindImage, label,
			fmt.Errorf("%w: row stride %d below %d", ErrSizeMismatch, rowStride, int(img.Width)*bpp))
	}
	if len(data) != rowStride*int(img.Height) {
		return configErr("write", KindImage, label,
			fmt.Errorf("%w: %d bytes, want %d", ErrSizeMismatch, len(data), rowStride*int(img.Height)))
	}
	if err := r.dev.WriteTexture(img.ID, 0, data, uint32(rowStride)); err != nil {
		return fmt.Errorf("registry: write image %q: %w", label, err)
	}
	return nil
}

// BytesPerPixel returns the texel size of formats the registry can upload,
// or 0.
func BytesPerPixel(format gputypes.TextureFormat) int {
	switch format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm:
		return 4
	case gputypes.TextureFormatR8Unorm:
		return 1
	default:
		return 0
	}
}

// =============================================================================
// Teardown
// =============================================================================

// Close destroys every resource in reverse dependency order. The registry
// cannot be used afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	released := 0
	each := func(kind Kind, destroy func(label string)) {
		labels := r.order[kind]
		for i := len(labels) - 1; i >= 0; i-- {
			destroy(labels[i])
			released++
		}
	}

	each(KindPipeline, func(l string) {
		p := r.pipelines[l]
		if p.Compute != gpucore.InvalidID {
			r.dev.DestroyComputePipeline(p.Compute)
		}
		if p.Render != gpucore.InvalidID {
			r.dev.DestroyRenderPipeline(p.Render)
		}
		r.dev.DestroyPipelineLayout(p.LayoutID)
	})
	each(KindBindingSet, func(l string) { r.dev.DestroyBindGroup(r.sets[l].ID) })
	each(KindBindingSetLayout, func(l string) { r.dev.DestroyBindGroupLayout(r.layouts[l].ID) })
	each(KindProgram, func(l string) { r.dev.DestroyShaderModule(r.programs[l].ID) })
	each(KindSampler, func(l string) { r.dev.DestroySampler(r.samplers[l].ID) })
	each(KindImageView, func(l string) { r.dev.DestroyTextureView(r.views[l].ID) })
	each(KindImage, func(l string) { r.dev.DestroyTexture(r.images[l].ID) })
	each(KindBuffer, func(l string) { r.dev.DestroyBuffer(r.buffers[l].ID) })

	clear(r.order)
	logger.L().Debug("registry: closed", "released", released)
	return nil
}
