package gpucore

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Resource IDs
//
// These opaque IDs represent device resources. Each backend maintains a
// mapping between IDs and its own resource objects.

// BufferID is an opaque handle to a device buffer.
type BufferID uint64

// TextureID is an opaque handle to a texture with one or more mip levels.
type TextureID uint64

// TextureViewID is an opaque handle to a view over a range of mip levels.
type TextureViewID uint64

// SamplerID is an opaque handle to a sampler.
type SamplerID uint64

// ShaderModuleID is an opaque handle to a loaded program.
type ShaderModuleID uint64

// BindGroupLayoutID is an opaque handle to a bind group layout.
type BindGroupLayoutID uint64

// BindGroupID is an opaque handle to a bind group.
type BindGroupID uint64

// PipelineLayoutID is an opaque handle to a pipeline layout.
type PipelineLayoutID uint64

// ComputePipelineID is an opaque handle to a compute pipeline.
type ComputePipelineID uint64

// RenderPipelineID is an opaque handle to a render pipeline.
type RenderPipelineID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// BindingType specifies the type of a shader binding.
type BindingType uint32

// Binding types.
const (
	// BindingTypeUniformBuffer is a uniform buffer binding.
	BindingTypeUniformBuffer BindingType = iota + 1

	// BindingTypeStorageBuffer is a storage buffer binding (read-write).
	BindingTypeStorageBuffer

	// BindingTypeReadOnlyStorageBuffer is a read-only storage buffer binding.
	BindingTypeReadOnlyStorageBuffer

	// BindingTypeSampler is a texture sampler binding.
	BindingTypeSampler

	// BindingTypeSampledTexture is a sampled texture binding.
	BindingTypeSampledTexture

	// BindingTypeStorageTexture is a storage texture binding.
	BindingTypeStorageTexture
)

// String returns the string representation of BindingType.
func (t BindingType) String() string {
	switch t {
	case BindingTypeUniformBuffer:
		return "UniformBuffer"
	case BindingTypeStorageBuffer:
		return "StorageBuffer"
	case BindingTypeReadOnlyStorageBuffer:
		return "ReadOnlyStorageBuffer"
	case BindingTypeSampler:
		return "Sampler"
	case BindingTypeSampledTexture:
		return "SampledTexture"
	case BindingTypeStorageTexture:
		return "StorageTexture"
	default:
		return fmt.Sprintf("Unknown(%d)", int(t))
	}
}

// IsBuffer reports whether the binding refers to a buffer.
func (t BindingType) IsBuffer() bool {
	return t == BindingTypeUniformBuffer || t == BindingTypeStorageBuffer || t == BindingTypeReadOnlyStorageBuffer
}

// SampleKind selects how a sampled texture is read by a program.
type SampleKind uint32

// Sample kinds.
const (
	// SampleKindFloat is a filterable float texture.
	SampleKindFloat SampleKind = iota
	// SampleKindUnfilterableFloat is a float texture read with textureLoad only.
	SampleKindUnfilterableFloat
	// SampleKindUint is an unsigned integer texture.
	SampleKindUint
)

// StorageAccess is the access mode of a storage texture binding.
type StorageAccess uint32

// Storage access modes.
const (
	StorageAccessWriteOnly StorageAccess = iota
	StorageAccessReadOnly
	StorageAccessReadWrite
)

// MapMode selects host access for MapAsync.
type MapMode uint32

// Map modes.
const (
	MapModeRead MapMode = 1 << iota
	MapModeWrite
)

// MapStatus is the result delivered to a MapAsync callback.
type MapStatus int

const (
	// MapStatusSuccess indicates mapping completed successfully.
	MapStatusSuccess MapStatus = iota
	// MapStatusValidationError indicates the request was invalid.
	MapStatusValidationError
	// MapStatusDeviceLost indicates the device was lost before completion.
	MapStatusDeviceLost
	// MapStatusDestroyedBeforeCallback indicates the buffer was destroyed.
	MapStatusDestroyedBeforeCallback
	// MapStatusUnmappedBeforeCallback indicates the buffer was unmapped.
	MapStatusUnmappedBeforeCallback
	// MapStatusAlreadyPending indicates another map is pending on the buffer.
	MapStatusAlreadyPending
)

// String returns the string representation of MapStatus.
func (s MapStatus) String() string {
	switch s {
	case MapStatusSuccess:
		return "Success"
	case MapStatusValidationError:
		return "ValidationError"
	case MapStatusDeviceLost:
		return "DeviceLost"
	case MapStatusDestroyedBeforeCallback:
		return "DestroyedBeforeCallback"
	case MapStatusUnmappedBeforeCallback:
		return "UnmappedBeforeCallback"
	case MapStatusAlreadyPending:
		return "AlreadyPending"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// BufferDesc describes a buffer.
type BufferDesc struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
}

// TextureDesc describes a 2D texture.
type TextureDesc struct {
	Label         string
	Width         uint32
	Height        uint32
	MipLevelCount uint32
	Format        gputypes.TextureFormat
	Usage         gputypes.TextureUsage
}

// TextureViewDesc describes a view over a range of mip levels.
type TextureViewDesc struct {
	Label        string
	BaseMipLevel uint32

	// MipLevelCount is the number of levels in the view. 0 means all
	// remaining levels.
	MipLevelCount uint32
}

// SamplerDesc describes a sampler.
type SamplerDesc struct {
	Label        string
	AddressMode  gputypes.AddressMode
	MagFilter    gputypes.FilterMode
	MinFilter    gputypes.FilterMode
	MipmapFilter gputypes.FilterMode
}

// ShaderModuleDesc describes a program. Source is opaque to the caller;
// EntryPoints lists the entry points the caller intends to use.
type ShaderModuleDesc struct {
	Label       string
	Source      string
	EntryPoints []string
}

// BindGroupLayoutDesc describes a bind group layout.
type BindGroupLayoutDesc struct {
	Label   string
	Entries []BindGroupLayoutEntry
}

// BindGroupLayoutEntry describes a single binding in a bind group layout.
type BindGroupLayoutEntry struct {
	// Binding is the binding index.
	Binding uint32

	// Type is the type of resource bound at this index.
	Type BindingType

	// MinBindingSize is the minimum buffer size for buffer bindings.
	MinBindingSize uint64

	// SampleKind applies to sampled textures.
	SampleKind SampleKind

	// Access and Format apply to storage textures.
	Access StorageAccess
	Format gputypes.TextureFormat

	// MultiLevel marks a sampled texture binding that spans several mip levels.
	MultiLevel bool
}

// BindGroupEntry describes a single binding in a bind group.
// Exactly one of Buffer, TextureView and Sampler is set.
type BindGroupEntry struct {
	Binding uint32

	Buffer BufferID
	Offset uint64
	// Size of the bound range. 0 binds the entire buffer from Offset.
	Size uint64

	TextureView TextureViewID
	Sampler     SamplerID
}

// BindGroupDesc describes a bind group.
type BindGroupDesc struct {
	Label   string
	Layout  BindGroupLayoutID
	Entries []BindGroupEntry
}

// PipelineLayoutDesc describes a pipeline layout. Bind group index equals
// the position in BindGroupLayouts.
type PipelineLayoutDesc struct {
	Label            string
	BindGroupLayouts []BindGroupLayoutID

	// ParamBlockSize is the size of the per-dispatch parameter block in
	// bytes. 0 disables SetParams for pipelines using this layout.
	ParamBlockSize uint32
}

// ComputePipelineDesc describes a compute pipeline.
type ComputePipelineDesc struct {
	Label        string
	Layout       PipelineLayoutID
	ShaderModule ShaderModuleID
	EntryPoint   string
}

// VertexLayout describes one vertex buffer consumed by a draw pipeline.
type VertexLayout struct {
	ArrayStride uint64
	Attributes  []gputypes.VertexAttribute
}

// RenderPipelineDesc describes a draw pipeline with a vertex and a
// fragment stage.
type RenderPipelineDesc struct {
	Label         string
	Layout        PipelineLayoutID
	ShaderModule  ShaderModuleID
	VertexEntry   string
	FragmentEntry string
	ColorTargets  []gputypes.TextureFormat
	VertexLayout  *VertexLayout
}

// RenderPassDesc describes a render pass with a single color target.
type RenderPassDesc struct {
	Label  string
	Target TextureViewID

	// Clear, when true, clears the target to ClearColor before drawing.
	Clear      bool
	ClearColor gputypes.Color
}
