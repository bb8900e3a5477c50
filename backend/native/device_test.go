//go:build !nogpu

package native

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/orb/gpucore"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// createNoopDevice wraps a noop HAL device for testing.
func createNoopDevice(t *testing.T) *Device {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	d := Wrap(openDev.Device, openDev.Queue)
	t.Cleanup(func() {
		d.Destroy()
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return d
}

type halProvider struct {
	device hal.Device
	queue  hal.Queue
}

func (p halProvider) HalDevice() any { return p.device }
func (p halProvider) HalQueue() any  { return p.queue }

func TestFromProvider(t *testing.T) {
	d := createNoopDevice(t)

	shared, err := FromProvider(halProvider{device: d.device, queue: d.queue})
	if err != nil {
		t.Fatalf("FromProvider() error = %v", err)
	}
	if shared.owned {
		t.Error("FromProvider() device claims ownership of a shared device")
	}

	if _, err := FromProvider(struct{}{}); !errors.Is(err, ErrProvider) {
		t.Errorf("FromProvider(struct{}) error = %v, want %v", err, ErrProvider)
	}
	if _, err := FromProvider(halProvider{}); !errors.Is(err, ErrProvider) {
		t.Errorf("FromProvider(nil HAL) error = %v, want %v", err, ErrProvider)
	}
}

func TestBufferValidation(t *testing.T) {
	d := createNoopDevice(t)

	if _, err := d.CreateBuffer(&gpucore.BufferDesc{Label: "empty"}); !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("CreateBuffer(size 0) error = %v, want %v", err, ErrInvalidDescriptor)
	}

	id, err := d.CreateBuffer(&gpucore.BufferDesc{Label: "storage", Size: 64, Usage: gputypes.BufferUsageStorage})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	if err := d.WriteBuffer(id, 0, make([]byte, 16)); !errors.Is(err, ErrUsage) {
		t.Errorf("WriteBuffer(no CopyDst) error = %v, want %v", err, ErrUsage)
	}
	if err := d.WriteBuffer(gpucore.BufferID(999), 0, nil); !errors.Is(err, ErrUnknownResource) {
		t.Errorf("WriteBuffer(unknown) error = %v, want %v", err, ErrUnknownResource)
	}

	dst, err := d.CreateBuffer(&gpucore.BufferDesc{Label: "dst", Size: 64, Usage: gputypes.BufferUsageCopyDst})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	if err := d.WriteBuffer(dst, 60, make([]byte, 8)); !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("WriteBuffer(past end) error = %v, want %v", err, ErrInvalidDescriptor)
	}
	if err := d.WriteBuffer(dst, 0, make([]byte, 64)); err != nil {
		t.Errorf("WriteBuffer() error = %v", err)
	}

	d.DestroyBuffer(id)
	d.DestroyBuffer(id)
	if len(d.buffers) != 1 {
		t.Errorf("live buffers = %d, want 1", len(d.buffers))
	}
}

func TestMapAsyncStatus(t *testing.T) {
	tests := []struct {
		name  string
		after func(d *Device, id gpucore.BufferID)
		want  gpucore.MapStatus
	}{
		{
			name:  "unmapped before callback",
			after: func(d *Device, id gpucore.BufferID) { _ = d.Unmap(id) },
			want:  gpucore.MapStatusUnmappedBeforeCallback,
		},
		{
			name:  "destroyed before callback",
			after: func(d *Device, id gpucore.BufferID) { d.DestroyBuffer(id) },
			want:  gpucore.MapStatusDestroyedBeforeCallback,
		},
		{
			name:  "device lost",
			after: func(d *Device, _ gpucore.BufferID) { d.Lose() },
			want:  gpucore.MapStatusDeviceLost,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := createNoopDevice(t)
			id, err := d.CreateBuffer(&gpucore.BufferDesc{
				Label: "staging",
				Size:  16,
				Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
			})
			if err != nil {
				t.Fatalf("CreateBuffer() error = %v", err)
			}

			var got []gpucore.MapStatus
			if err := d.MapAsync(id, gpucore.MapModeRead, 0, 0, func(s gpucore.MapStatus) { got = append(got, s) }); err != nil {
				t.Fatalf("MapAsync() error = %v", err)
			}
			if err := d.MapAsync(id, gpucore.MapModeRead, 0, 0, func(gpucore.MapStatus) {}); !errors.Is(err, ErrBufferMapped) {
				t.Errorf("second MapAsync() error = %v, want %v", err, ErrBufferMapped)
			}
			tt.after(d, id)
			if len(got) != 0 {
				t.Fatalf("callback fired before Poll: %v", got)
			}

			d.Poll(false)
			if len(got) != 1 || got[0] != tt.want {
				t.Errorf("callbacks = %v, want [%v]", got, tt.want)
			}
			d.Poll(false)
			if len(got) != 1 {
				t.Errorf("callback fired %d times, want 1", len(got))
			}
			if _, err := d.MappedRange(id, 0, 4); err == nil {
				t.Error("MappedRange() after failed map error = nil")
			}
		})
	}
}

func TestMapAsyncValidation(t *testing.T) {
	d := createNoopDevice(t)
	id, err := d.CreateBuffer(&gpucore.BufferDesc{Label: "storage", Size: 16, Usage: gputypes.BufferUsageStorage})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	cb := func(gpucore.MapStatus) {}

	if err := d.MapAsync(id, gpucore.MapModeRead, 0, 0, cb); !errors.Is(err, ErrUsage) {
		t.Errorf("MapAsync(no MapRead) error = %v, want %v", err, ErrUsage)
	}
	if err := d.MapAsync(id, gpucore.MapModeWrite, 0, 0, cb); !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("MapAsync(write) error = %v, want %v", err, ErrInvalidDescriptor)
	}
	if err := d.MapAsync(id, gpucore.MapModeRead, 0, 0, nil); !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("MapAsync(nil callback) error = %v, want %v", err, ErrInvalidDescriptor)
	}
	if err := d.Unmap(id); !errors.Is(err, ErrBufferNotMapped) {
		t.Errorf("Unmap(unmapped) error = %v, want %v", err, ErrBufferNotMapped)
	}
}

func TestTextureViewLevels(t *testing.T) {
	d := createNoopDevice(t)
	tex, err := d.CreateTexture(&gpucore.TextureDesc{
		Label:         "pyramid",
		Width:         64,
		Height:        32,
		MipLevelCount: 3,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		t.Fatalf("CreateTexture() error = %v", err)
	}

	tests := []struct {
		base, count uint32
		wantErr     bool
	}{
		{0, 0, false},
		{0, 3, false},
		{2, 1, false},
		{3, 1, true},
		{1, 3, true},
	}
	for _, tt := range tests {
		_, err := d.CreateTextureView(tex, &gpucore.TextureViewDesc{BaseMipLevel: tt.base, MipLevelCount: tt.count})
		if (err != nil) != tt.wantErr {
			t.Errorf("CreateTextureView(base %d, count %d) error = %v, wantErr %v", tt.base, tt.count, err, tt.wantErr)
		}
	}

	if err := d.WriteTexture(tex, 2, make([]byte, 16*8*4), 16*4); err != nil {
		t.Errorf("WriteTexture(level 2) error = %v", err)
	}
	if err := d.WriteTexture(tex, 0, make([]byte, 16), 64*4); !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("WriteTexture(short) error = %v, want %v", err, ErrInvalidDescriptor)
	}
	if err := d.WriteTexture(tex, 3, nil, 0); !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("WriteTexture(level 3) error = %v, want %v", err, ErrInvalidDescriptor)
	}
}

func TestConvertLayoutEntry(t *testing.T) {
	tests := []struct {
		name  string
		entry gpucore.BindGroupLayoutEntry
		check func(gputypes.BindGroupLayoutEntry) bool
	}{
		{
			name:  "uniform",
			entry: gpucore.BindGroupLayoutEntry{Binding: 0, Type: gpucore.BindingTypeUniformBuffer, MinBindingSize: 16},
			check: func(e gputypes.BindGroupLayoutEntry) bool {
				return e.Buffer != nil && e.Buffer.Type == gputypes.BufferBindingTypeUniform &&
					e.Buffer.MinBindingSize == 16 && e.Visibility&gputypes.ShaderStageVertex != 0
			},
		},
		{
			name:  "storage",
			entry: gpucore.BindGroupLayoutEntry{Binding: 1, Type: gpucore.BindingTypeStorageBuffer},
			check: func(e gputypes.BindGroupLayoutEntry) bool {
				return e.Buffer != nil && e.Buffer.Type == gputypes.BufferBindingTypeStorage &&
					e.Visibility == gputypes.ShaderStageCompute
			},
		},
		{
			name:  "read only storage",
			entry: gpucore.BindGroupLayoutEntry{Binding: 2, Type: gpucore.BindingTypeReadOnlyStorageBuffer},
			check: func(e gputypes.BindGroupLayoutEntry) bool {
				return e.Buffer != nil && e.Buffer.Type == gputypes.BufferBindingTypeReadOnlyStorage
			},
		},
		{
			name:  "sampler",
			entry: gpucore.BindGroupLayoutEntry{Binding: 3, Type: gpucore.BindingTypeSampler},
			check: func(e gputypes.BindGroupLayoutEntry) bool {
				return e.Sampler != nil && e.Sampler.Type == gputypes.SamplerBindingTypeFiltering
			},
		},
		{
			name:  "unfilterable texture",
			entry: gpucore.BindGroupLayoutEntry{Binding: 4, Type: gpucore.BindingTypeSampledTexture, SampleKind: gpucore.SampleKindUnfilterableFloat},
			check: func(e gputypes.BindGroupLayoutEntry) bool {
				return e.Texture != nil && e.Texture.SampleType == gputypes.TextureSampleTypeUnfilterableFloat
			},
		},
		{
			name: "storage texture",
			entry: gpucore.BindGroupLayoutEntry{
				Binding: 5,
				Type:    gpucore.BindingTypeStorageTexture,
				Access:  gpucore.StorageAccessWriteOnly,
				Format:  gputypes.TextureFormatRGBA8Unorm,
			},
			check: func(e gputypes.BindGroupLayoutEntry) bool {
				return e.StorageTexture != nil && e.StorageTexture.Access == gputypes.StorageTextureAccessWriteOnly &&
					e.StorageTexture.Format == gputypes.TextureFormatRGBA8Unorm &&
					e.Visibility == gputypes.ShaderStageCompute
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convertLayoutEntry(tt.entry)
			if err != nil {
				t.Fatalf("convertLayoutEntry() error = %v", err)
			}
			if got.Binding != tt.entry.Binding {
				t.Errorf("Binding = %d, want %d", got.Binding, tt.entry.Binding)
			}
			if !tt.check(got) {
				t.Errorf("convertLayoutEntry() = %+v", got)
			}
		})
	}

	if _, err := convertLayoutEntry(gpucore.BindGroupLayoutEntry{}); !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("convertLayoutEntry(zero) error = %v, want %v", err, ErrInvalidDescriptor)
	}
}

const testComputeWGSL = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
	data[id.x] = data[id.x] + 1u;
}
`

func TestCompileWGSL(t *testing.T) {
	words, err := compileWGSL(testComputeWGSL)
	if err != nil {
		t.Fatalf("compileWGSL() error = %v", err)
	}
	const spirvMagic = 0x07230203
	if len(words) == 0 {
		t.Fatal("compileWGSL() returned no words")
	}
	if words[0] != spirvMagic {
		t.Errorf("compileWGSL() first word = %#x, want SPIR-V magic %#x", words[0], spirvMagic)
	}
	if _, err := compileWGSL("fn broken("); err == nil {
		t.Error("compileWGSL(invalid) error = nil")
	}
}

func TestPipelineLayoutParams(t *testing.T) {
	d := createNoopDevice(t)
	bgl, err := d.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Label:   "data",
		Entries: []gpucore.BindGroupLayoutEntry{{Binding: 0, Type: gpucore.BindingTypeStorageBuffer}},
	})
	if err != nil {
		t.Fatalf("CreateBindGroupLayout() error = %v", err)
	}

	tests := []struct {
		name       string
		paramSize  uint32
		wantParams bool
	}{
		{"without params", 0, false},
		{"with params", 12, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := d.CreatePipelineLayout(&gpucore.PipelineLayoutDesc{
				Label:            tt.name,
				BindGroupLayouts: []gpucore.BindGroupLayoutID{bgl},
				ParamBlockSize:   tt.paramSize,
			})
			if err != nil {
				t.Fatalf("CreatePipelineLayout() error = %v", err)
			}
			pl := d.pipeLayouts[id]
			if pl.sets != 1 {
				t.Errorf("sets = %d, want 1", pl.sets)
			}
			if (pl.params != nil) != tt.wantParams {
				t.Errorf("params layout present = %v, want %v", pl.params != nil, tt.wantParams)
			}
			d.DestroyPipelineLayout(id)
		})
	}

	if _, err := d.CreatePipelineLayout(&gpucore.PipelineLayoutDesc{
		BindGroupLayouts: []gpucore.BindGroupLayoutID{999},
	}); !errors.Is(err, ErrUnknownResource) {
		t.Errorf("CreatePipelineLayout(unknown) error = %v, want %v", err, ErrUnknownResource)
	}
}

func TestComputePipelineEntryPoint(t *testing.T) {
	d := createNoopDevice(t)
	module, err := d.CreateShaderModule(&gpucore.ShaderModuleDesc{
		Label:       "increment",
		Source:      testComputeWGSL,
		EntryPoints: []string{"main"},
	})
	if err != nil {
		t.Fatalf("CreateShaderModule() error = %v", err)
	}
	layout, err := d.CreatePipelineLayout(&gpucore.PipelineLayoutDesc{Label: "empty"})
	if err != nil {
		t.Fatalf("CreatePipelineLayout() error = %v", err)
	}

	if _, err := d.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label: "increment", Layout: layout, ShaderModule: module, EntryPoint: "main",
	}); err != nil {
		t.Errorf("CreateComputePipeline() error = %v", err)
	}
	if _, err := d.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label: "missing", Layout: layout, ShaderModule: module, EntryPoint: "other",
	}); !errors.Is(err, ErrInvalidDescriptor) {
		t.Errorf("CreateComputePipeline(undeclared) error = %v, want %v", err, ErrInvalidDescriptor)
	}
}

func TestEncoderState(t *testing.T) {
	d := createNoopDevice(t)

	tests := []struct {
		name   string
		record func(enc gpucore.CommandEncoder)
		want   error
	}{
		{
			name: "nested pass",
			record: func(enc gpucore.CommandEncoder) {
				enc.BeginComputePass("outer")
				enc.BeginComputePass("inner")
			},
			want: ErrEncoderState,
		},
		{
			name: "pass not ended",
			record: func(enc gpucore.CommandEncoder) {
				enc.BeginComputePass("open")
			},
			want: ErrEncoderState,
		},
		{
			name: "dispatch without pipeline",
			record: func(enc gpucore.CommandEncoder) {
				p := enc.BeginComputePass("bare")
				p.Dispatch(1, 1, 1)
				p.End()
			},
			want: ErrEncoderState,
		},
		{
			name: "unknown bind group",
			record: func(enc gpucore.CommandEncoder) {
				p := enc.BeginComputePass("bind")
				p.SetBindGroup(0, 999)
				p.End()
			},
			want: ErrUnknownResource,
		},
		{
			name: "unaligned copy",
			record: func(enc gpucore.CommandEncoder) {
				enc.CopyBufferToBuffer(1, 2, 3, 0, 4)
			},
			want: ErrInvalidDescriptor,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := d.CreateCommandEncoder(tt.name)
			if err != nil {
				t.Fatalf("CreateCommandEncoder() error = %v", err)
			}
			tt.record(enc)
			if _, err := enc.Finish(); !errors.Is(err, tt.want) {
				t.Errorf("Finish() error = %v, want %v", err, tt.want)
			}
			if _, err := enc.Finish(); !errors.Is(err, ErrEncoderState) {
				t.Errorf("second Finish() error = %v, want %v", err, ErrEncoderState)
			}
		})
	}
}

func TestSubmitLostDevice(t *testing.T) {
	d := createNoopDevice(t)
	enc, err := d.CreateCommandEncoder("frame")
	if err != nil {
		t.Fatalf("CreateCommandEncoder() error = %v", err)
	}
	cmd, err := enc.Finish()
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	d.Lose()
	if err := d.Submit(cmd); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("Submit() error = %v, want %v", err, ErrDeviceLost)
	}
	if _, err := d.CreateCommandEncoder("after"); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("CreateCommandEncoder() error = %v, want %v", err, ErrDeviceLost)
	}
	if _, err := d.CreateBuffer(&gpucore.BufferDesc{Size: 4}); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("CreateBuffer() error = %v, want %v", err, ErrDeviceLost)
	}
}

func TestSubmitOnce(t *testing.T) {
	d := createNoopDevice(t)
	enc, err := d.CreateCommandEncoder("frame")
	if err != nil {
		t.Fatalf("CreateCommandEncoder() error = %v", err)
	}
	cmd, err := enc.Finish()
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if err := d.Submit(cmd); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := d.Submit(cmd); !errors.Is(err, ErrEncoderState) {
		t.Errorf("second Submit() error = %v, want %v", err, ErrEncoderState)
	}
}

func TestMapAsyncReadsBack(t *testing.T) {
	d := createNoopDevice(t)
	id, err := d.CreateBuffer(&gpucore.BufferDesc{
		Label: "staging",
		Size:  8,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := d.WriteBuffer(id, 0, want); err != nil {
		t.Fatalf("WriteBuffer() error = %v", err)
	}

	got := gpucore.MapStatus(-1)
	if err := d.MapAsync(id, gpucore.MapModeRead, 4, 4, func(s gpucore.MapStatus) { got = s }); err != nil {
		t.Fatalf("MapAsync() error = %v", err)
	}
	d.Poll(true)
	if got != gpucore.MapStatusSuccess {
		t.Fatalf("callback status = %v, want %v", got, gpucore.MapStatusSuccess)
	}
	data, err := d.MappedRange(id, 4, 4)
	if err != nil {
		t.Fatalf("MappedRange() error = %v", err)
	}
	if !bytes.Equal(data, want[4:]) {
		t.Errorf("MappedRange() = %v, want %v", data, want[4:])
	}
}

func TestRemapAfterUnmap(t *testing.T) {
	d := createNoopDevice(t)
	id, err := d.CreateBuffer(&gpucore.BufferDesc{
		Label: "staging",
		Size:  4,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}

	var first, second []gpucore.MapStatus
	if err := d.MapAsync(id, gpucore.MapModeRead, 0, 0, func(s gpucore.MapStatus) { first = append(first, s) }); err != nil {
		t.Fatalf("MapAsync() error = %v", err)
	}
	if err := d.Unmap(id); err != nil {
		t.Fatalf("Unmap() error = %v", err)
	}
	if err := d.MapAsync(id, gpucore.MapModeRead, 0, 0, func(s gpucore.MapStatus) { second = append(second, s) }); err != nil {
		t.Fatalf("MapAsync() after Unmap error = %v", err)
	}

	d.Poll(true)
	if len(first) != 1 || first[0] != gpucore.MapStatusUnmappedBeforeCallback {
		t.Errorf("first callbacks = %v, want [%v]", first, gpucore.MapStatusUnmappedBeforeCallback)
	}
	if len(second) != 1 || second[0] != gpucore.MapStatusSuccess {
		t.Errorf("second callbacks = %v, want [%v]", second, gpucore.MapStatusSuccess)
	}
	if _, err := d.MappedRange(id, 0, 4); err != nil {
		t.Errorf("MappedRange() after remap error = %v", err)
	}
}

// stalledQueue never reports a submission complete.
type stalledQueue struct {
	hal.Queue
}

func (stalledQueue) PollCompleted() uint64 { return 0 }

func TestSubmitTimeout(t *testing.T) {
	base := createNoopDevice(t)
	d := Wrap(base.device, stalledQueue{Queue: base.queue}, WithSubmitTimeout(time.Millisecond))
	defer d.Destroy()

	enc, err := d.CreateCommandEncoder("frame")
	if err != nil {
		t.Fatalf("CreateCommandEncoder() error = %v", err)
	}
	cmd, err := enc.Finish()
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if err := d.Submit(cmd); !errors.Is(err, ErrTimeout) {
		t.Errorf("Submit() error = %v, want %v", err, ErrTimeout)
	}
	if !d.lost.Load() {
		t.Error("device not lost after submit timeout")
	}
}
