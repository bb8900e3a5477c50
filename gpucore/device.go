package gpucore

import "github.com/gogpu/gpucontext"

// Device abstracts over compute-device backends.
//
// Poll drives the backend's progress loop and is where MapAsync callbacks
// are delivered. Destroy releases the device itself. Implementations must
// be safe for concurrent use. Device also satisfies gpucontext.Device, so
// it can be handed to gogpu code that accepts one.
//
// Resource lifecycle:
//   - Resources are created via Create* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - IDs become invalid after destruction and are never reused
type Device interface {
	gpucontext.Device

	// Poll advances the device. With wait set it may block until queued
	// work makes progress.
	Poll(wait bool)

	// Destroy releases the device and every resource it still owns.
	Destroy()

	// === Buffers ===

	CreateBuffer(desc *BufferDesc) (BufferID, error)
	DestroyBuffer(id BufferID)

	// WriteBuffer writes data into a buffer. The write is ordered before
	// any batch submitted afterwards.
	WriteBuffer(id BufferID, offset uint64, data []byte) error

	// === Textures ===

	CreateTexture(desc *TextureDesc) (TextureID, error)
	DestroyTexture(id TextureID)

	// WriteTexture writes tightly described rows into one mip level.
	// len(data) must equal bytesPerRow * level height.
	WriteTexture(id TextureID, level uint32, data []byte, bytesPerRow uint32) error

	CreateTextureView(texture TextureID, desc *TextureViewDesc) (TextureViewID, error)
	DestroyTextureView(id TextureViewID)

	CreateSampler(desc *SamplerDesc) (SamplerID, error)
	DestroySampler(id SamplerID)

	// === Programs and pipelines ===

	// CreateShaderModule loads a program. It fails if any declared entry
	// point cannot be resolved.
	CreateShaderModule(desc *ShaderModuleDesc) (ShaderModuleID, error)
	DestroyShaderModule(id ShaderModuleID)

	CreateBindGroupLayout(desc *BindGroupLayoutDesc) (BindGroupLayoutID, error)
	DestroyBindGroupLayout(id BindGroupLayoutID)

	CreateBindGroup(desc *BindGroupDesc) (BindGroupID, error)
	DestroyBindGroup(id BindGroupID)

	CreatePipelineLayout(desc *PipelineLayoutDesc) (PipelineLayoutID, error)
	DestroyPipelineLayout(id PipelineLayoutID)

	CreateComputePipeline(desc *ComputePipelineDesc) (ComputePipelineID, error)
	DestroyComputePipeline(id ComputePipelineID)

	CreateRenderPipeline(desc *RenderPipelineDesc) (RenderPipelineID, error)
	DestroyRenderPipeline(id RenderPipelineID)

	// === Command recording and execution ===

	// CreateCommandEncoder starts recording a new command batch.
	CreateCommandEncoder(label string) (CommandEncoder, error)

	// Submit executes finished command buffers in order.
	Submit(cmds ...CommandBuffer) error

	// === Host mapping ===

	// MapAsync requests host access to a buffer range. The callback is
	// invoked exactly once, from within Poll.
	MapAsync(id BufferID, mode MapMode, offset, size uint64, callback func(MapStatus)) error

	// MappedRange returns the mapped bytes. Valid until Unmap.
	MappedRange(id BufferID, offset, size uint64) ([]byte, error)

	Unmap(id BufferID) error
}

// CommandEncoder records commands into a batch.
//
// Recording methods do not return errors; the first recording error is
// reported by Finish, matching WebGPU semantics.
type CommandEncoder interface {
	BeginComputePass(label string) ComputePassEncoder
	BeginRenderPass(desc *RenderPassDesc) RenderPassEncoder

	CopyBufferToBuffer(src BufferID, srcOffset uint64, dst BufferID, dstOffset uint64, size uint64)

	// Finish ends recording and returns the command buffer, or the first
	// error recorded.
	Finish() (CommandBuffer, error)
}

// ComputePassEncoder records compute commands.
//
// The encoder is single-use and cannot be reused after End().
type ComputePassEncoder interface {
	// SetPipeline sets the active compute pipeline.
	SetPipeline(pipeline ComputePipelineID)

	// SetBindGroup sets a bind group at the specified index.
	SetBindGroup(index uint32, group BindGroupID)

	// SetParams sets the parameter block for subsequent dispatches.
	SetParams(data []byte)

	// Dispatch dispatches compute workgroups.
	Dispatch(x, y, z uint32)

	// End finishes the compute pass.
	End()
}

// RenderPassEncoder records draw commands against one color target.
type RenderPassEncoder interface {
	SetPipeline(pipeline RenderPipelineID)
	SetBindGroup(index uint32, group BindGroupID)
	SetParams(data []byte)
	SetVertexBuffer(slot uint32, buffer BufferID, offset uint64)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	End()
}

// CommandBuffer is a finished, submittable batch.
type CommandBuffer interface {
	Label() string
}
