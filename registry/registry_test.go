package registry

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/orb/backend/software"
	"github.com/gogpu/orb/gpucore"
)

func testKernels() software.Kernels {
	return software.Kernels{
		"cs_main": {Stage: software.StageCompute, Compute: func(*software.Invocation) {}},
		"vs_main": {Stage: software.StageVertex},
		"fs_main": {Stage: software.StageFragment, Fragment: func(*software.Invocation, int, int) [4]float32 {
			return [4]float32{}
		}},
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dev := software.New(testKernels(), software.WithWorkers(2))
	r := New(dev)
	t.Cleanup(func() {
		r.Close()
		dev.Destroy()
	})
	return r
}

const storageUsage = gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindBuffer, "buffer"},
		{KindImage, "image"},
		{KindImageView, "image view"},
		{KindSampler, "sampler"},
		{KindBindingSet, "binding set"},
		{KindBindingSetLayout, "binding set layout"},
		{KindPipeline, "pipeline"},
		{KindProgram, "program"},
		{Kind(42), "kind(42)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLevelSize(t *testing.T) {
	tests := []struct {
		w, h, level  uint32
		wantW, wantH uint32
	}{
		{640, 480, 0, 640, 480},
		{640, 480, 1, 320, 240},
		{640, 480, 3, 80, 60},
		{65, 33, 1, 32, 16},
		{65, 33, 5, 2, 1},
		{65, 33, 9, 1, 1},
		{1, 1, 4, 1, 1},
	}
	for _, tt := range tests {
		w, h := LevelSize(tt.w, tt.h, tt.level)
		if w != tt.wantW || h != tt.wantH {
			t.Errorf("LevelSize(%d, %d, %d) = %dx%d, want %dx%d", tt.w, tt.h, tt.level, w, h, tt.wantW, tt.wantH)
		}
	}
}

func TestCreateDuplicateLabel(t *testing.T) {
	r := newTestRegistry(t)

	if _, err := r.CreateBuffer("counters", 64, storageUsage); err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	_, err := r.CreateBuffer("counters", 128, storageUsage)
	if !errors.Is(err, ErrDuplicateLabel) {
		t.Fatalf("CreateBuffer() duplicate error = %v, want ErrDuplicateLabel", err)
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error %T is not *ConfigError", err)
	}
	if cfgErr.Kind != KindBuffer || cfgErr.Label != "counters" {
		t.Errorf("ConfigError = {%v %q}, want {buffer counters}", cfgErr.Kind, cfgErr.Label)
	}

	// Labels are unique per kind only.
	if _, err := r.CreateSampler("counters", LinearClamp); err != nil {
		t.Errorf("CreateSampler() with a buffer's label error = %v", err)
	}

	b, err := r.Buffer("counters")
	if err != nil {
		t.Fatalf("Buffer() error = %v", err)
	}
	if b.Size != 64 {
		t.Errorf("Buffer().Size = %d, want 64 (original kept)", b.Size)
	}
}

func TestLookupNotFound(t *testing.T) {
	r := newTestRegistry(t)

	for _, kind := range []Kind{KindBuffer, KindImage, KindImageView, KindSampler, KindBindingSet, KindBindingSetLayout, KindPipeline, KindProgram} {
		t.Run(kind.String(), func(t *testing.T) {
			if _, err := r.Lookup(kind, "missing"); !errors.Is(err, ErrLabelNotFound) {
				t.Errorf("Lookup() error = %v, want ErrLabelNotFound", err)
			}
		})
	}
}

func TestCreateImageRegistersDefaultView(t *testing.T) {
	r := newTestRegistry(t)

	img, err := r.CreateImage("pyramid", 64, 32, 4, gputypes.TextureFormatRGBA8Unorm,
		gputypes.TextureUsageTextureBinding|gputypes.TextureUsageRenderAttachment)
	if err != nil {
		t.Fatalf("CreateImage() error = %v", err)
	}
	v, err := r.ImageView("pyramid")
	if err != nil {
		t.Fatalf("ImageView() error = %v", err)
	}
	if v != img.View || v.LevelCount != 4 || v.BaseLevel != 0 {
		t.Errorf("default view = %+v, want levels [0,4)", v)
	}

	lv, err := r.CreateImageView("pyramid/level2", "pyramid", 2, 1)
	if err != nil {
		t.Fatalf("CreateImageView() error = %v", err)
	}
	if w, h := lv.Size(); w != 16 || h != 8 {
		t.Errorf("Size() = %dx%d, want 16x8", w, h)
	}

	rest, err := r.CreateImageView("pyramid/tail", "pyramid", 1, 0)
	if err != nil {
		t.Fatalf("CreateImageView(levelCount 0) error = %v", err)
	}
	if rest.LevelCount != 3 {
		t.Errorf("LevelCount = %d, want 3", rest.LevelCount)
	}

	if _, err := r.CreateImageView("bad", "pyramid", 3, 2); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("CreateImageView() past last level error = %v, want ErrSizeMismatch", err)
	}
	if _, err := r.CreateImageView("orphan", "nope", 0, 1); !errors.Is(err, ErrLabelNotFound) {
		t.Errorf("CreateImageView() unknown image error = %v, want ErrLabelNotFound", err)
	}
}

func TestCreateImageTooManyLevels(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.CreateImage("tiny", 4, 4, 8, gputypes.TextureFormatRGBA8Unorm, gputypes.TextureUsageTextureBinding)
	if err == nil {
		t.Fatal("CreateImage() with more levels than the size allows: want error")
	}
	if _, err := r.Image("tiny"); !errors.Is(err, ErrLabelNotFound) {
		t.Errorf("failed CreateImage() left an entry: %v", err)
	}
	if _, err := r.ImageView("tiny"); !errors.Is(err, ErrLabelNotFound) {
		t.Errorf("failed CreateImage() left a view: %v", err)
	}
}

func TestWriteBufferBounds(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.CreateBuffer("params", 16, storageUsage); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		offset  uint64
		size    int
		wantErr error
	}{
		{"fits", 0, 16, nil},
		{"tail", 12, 4, nil},
		{"overflow", 12, 8, ErrSizeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.WriteBuffer("params", tt.offset, make([]byte, tt.size))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("WriteBuffer() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if err := r.WriteBuffer("nope", 0, nil); !errors.Is(err, ErrLabelNotFound) {
		t.Errorf("WriteBuffer() unknown error = %v, want ErrLabelNotFound", err)
	}
}

func TestWriteImageSize(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.CreateImage("input", 8, 4, 1, gputypes.TextureFormatRGBA8Unorm,
		gputypes.TextureUsageTextureBinding|gputypes.TextureUsageCopyDst); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		stride  int
		size    int
		wantErr error
	}{
		{"tight", 32, 128, nil},
		{"padded", 40, 160, nil},
		{"short stride", 28, 112, ErrSizeMismatch},
		{"short data", 32, 100, ErrSizeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.WriteImage("input", make([]byte, tt.size), tt.stride)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("WriteImage() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadProgram(t *testing.T) {
	r := newTestRegistry(t)

	p, err := r.LoadProgram("grayscale", "// opaque", "vs_main", "fs_main")
	if err != nil {
		t.Fatalf("LoadProgram() error = %v", err)
	}
	if !p.HasEntryPoint("fs_main") || p.HasEntryPoint("cs_main") {
		t.Errorf("EntryPoints = %v", p.EntryPoints)
	}
	if _, err := r.LoadProgram("grayscale", "", "cs_main"); !errors.Is(err, ErrDuplicateLabel) {
		t.Errorf("LoadProgram() duplicate error = %v, want ErrDuplicateLabel", err)
	}
	if _, err := r.LoadProgram("broken", "", "no_such_kernel"); err == nil {
		t.Error("LoadProgram() with an unknown entry point: want error")
	}
}

func TestCloseIsFinal(t *testing.T) {
	dev := software.New(testKernels())
	defer dev.Destroy()
	r := New(dev)

	if _, err := r.CreateBuffer("a", 16, storageUsage); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := r.CreateBuffer("b", 16, storageUsage); !errors.Is(err, ErrClosed) {
		t.Errorf("CreateBuffer() after Close error = %v, want ErrClosed", err)
	}
}

func TestResourceInterface(t *testing.T) {
	r := newTestRegistry(t)
	b, err := r.CreateBuffer("features", 12, storageUsage)
	if err != nil {
		t.Fatal(err)
	}

	res, err := r.Lookup(KindBuffer, "features")
	if err != nil {
		t.Fatal(err)
	}
	if res != Resource(b) || res.Label() != "features" || res.Kind() != KindBuffer {
		t.Errorf("Lookup() = %v (%s %q), want the created buffer", res, res.Kind(), res.Label())
	}
	if b.ID == gpucore.InvalidID {
		t.Error("buffer has an invalid ID")
	}
}
