package registry

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/orb/gpucore"
)

func setupBindingResources(t *testing.T) *Registry {
	t.Helper()
	r := newTestRegistry(t)

	steps := []error{
		func() error { _, err := r.CreateBuffer("counters", 256, storageUsage); return err }(),
		func() error {
			_, err := r.CreateBuffer("params", 16, gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
			return err
		}(),
		func() error { _, err := r.CreateBuffer("staging", 256, gputypes.BufferUsageMapRead|gputypes.BufferUsageCopyDst); return err }(),
		func() error {
			_, err := r.CreateImage("pyramid", 32, 32, 3, gputypes.TextureFormatRGBA8Unorm,
				gputypes.TextureUsageTextureBinding|gputypes.TextureUsageStorageBinding)
			return err
		}(),
		func() error { _, err := r.CreateImageView("pyramid/level1", "pyramid", 1, 1); return err }(),
		func() error { _, err := r.CreateSampler("linear", LinearClamp); return err }(),
	}
	for i, err := range steps {
		if err != nil {
			t.Fatalf("setup step %d: %v", i, err)
		}
	}
	return r
}

func TestBuildBindingSetInference(t *testing.T) {
	r := setupBindingResources(t)

	set, err := r.BuildBindingSet("corners",
		SampledImage{Label: "pyramid"},
		SamplerItem{Label: "linear"},
		StorageBuffer{Label: "counters", MinSize: 64},
		StorageBuffer{Label: "counters", ReadOnly: true},
		StorageBuffer{Label: "params"},
		UniformBuffer{Label: "params", MinSize: 16},
		StorageImage{Label: "pyramid/level1", Access: gpucore.StorageAccessWriteOnly},
		ImageViewItem{Label: "pyramid/level1", SampleKind: gpucore.SampleKindFloat},
	)
	if err != nil {
		t.Fatalf("BuildBindingSet() error = %v", err)
	}

	want := []struct {
		typ        gpucore.BindingType
		label      string
		multiLevel bool
	}{
		{gpucore.BindingTypeSampledTexture, "pyramid", true},
		{gpucore.BindingTypeSampler, "linear", false},
		{gpucore.BindingTypeStorageBuffer, "counters", false},
		{gpucore.BindingTypeReadOnlyStorageBuffer, "counters", false},
		{gpucore.BindingTypeUniformBuffer, "params", false},
		{gpucore.BindingTypeUniformBuffer, "params", false},
		{gpucore.BindingTypeStorageTexture, "pyramid/level1", false},
		{gpucore.BindingTypeSampledTexture, "pyramid/level1", false},
	}
	if len(set.Slots) != len(want) || len(set.Layout.Entries) != len(want) {
		t.Fatalf("slots = %d, layout entries = %d, want %d", len(set.Slots), len(set.Layout.Entries), len(want))
	}
	for i, w := range want {
		s := set.Slots[i]
		le := set.Layout.Entries[i]
		if s.Index != uint32(i) || le.Binding != uint32(i) {
			t.Errorf("slot %d: index %d, layout binding %d", i, s.Index, le.Binding)
		}
		if s.Type != w.typ || le.Type != w.typ {
			t.Errorf("slot %d: type %s / layout %s, want %s", i, s.Type, le.Type, w.typ)
		}
		if s.Label != w.label {
			t.Errorf("slot %d: label %q, want %q", i, s.Label, w.label)
		}
		if le.MultiLevel != w.multiLevel {
			t.Errorf("slot %d: MultiLevel = %v, want %v", i, le.MultiLevel, w.multiLevel)
		}
	}

	layout, err := r.Layout("corners/layout")
	if err != nil {
		t.Fatalf("Layout() error = %v", err)
	}
	if layout != set.Layout {
		t.Error("registered layout differs from the set's layout")
	}
}

func TestBuildBindingSetErrors(t *testing.T) {
	tests := []struct {
		name    string
		items   []Item
		wantErr error
	}{
		{"missing buffer", []Item{StorageBuffer{Label: "nope"}}, ErrLabelNotFound},
		{"missing image", []Item{SampledImage{Label: "nope"}}, ErrLabelNotFound},
		{"missing view", []Item{StorageImage{Label: "nope"}}, ErrLabelNotFound},
		{"missing sampler", []Item{SamplerItem{Label: "nope"}}, ErrLabelNotFound},
		{"too small", []Item{StorageBuffer{Label: "counters", MinSize: 1024}}, ErrSizeMismatch},
		{"uniform over storage", []Item{UniformBuffer{Label: "counters"}}, ErrLayoutMismatch},
		{"no binding usage", []Item{StorageBuffer{Label: "staging"}}, ErrLayoutMismatch},
		{"multi-level storage", []Item{StorageImage{Label: "pyramid"}}, ErrLayoutMismatch},
		{"late failure", []Item{
			StorageBuffer{Label: "counters"},
			SamplerItem{Label: "linear"},
			StorageBuffer{Label: "nope"},
		}, ErrLabelNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupBindingResources(t)
			_, err := r.BuildBindingSet("set", tt.items...)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("BuildBindingSet() error = %v, want %v", err, tt.wantErr)
			}
			if _, err := r.BindingSet("set"); !errors.Is(err, ErrLabelNotFound) {
				t.Errorf("failed build left a binding set: %v", err)
			}
			if _, err := r.Layout("set/layout"); !errors.Is(err, ErrLabelNotFound) {
				t.Errorf("failed build left a layout: %v", err)
			}
		})
	}
}

func TestBuildBindingSetPingPong(t *testing.T) {
	r := setupBindingResources(t)
	if _, err := r.CreateBuffer("scratch", 256, storageUsage); err != nil {
		t.Fatal(err)
	}

	ping, err := r.BuildBindingSet("scan_ping",
		StorageBuffer{Label: "counters", ReadOnly: true},
		StorageBuffer{Label: "scratch"})
	if err != nil {
		t.Fatal(err)
	}
	pong, err := r.BuildBindingSet("scan_pong",
		StorageBuffer{Label: "scratch", ReadOnly: true},
		StorageBuffer{Label: "counters"})
	if err != nil {
		t.Fatal(err)
	}
	if ping.ID == pong.ID {
		t.Error("ping and pong share a device binding set")
	}
	if ping.Slots[1].Access != gpucore.StorageAccessReadWrite || pong.Slots[0].Access != gpucore.StorageAccessReadOnly {
		t.Errorf("access = %v/%v", ping.Slots[1].Access, pong.Slots[0].Access)
	}
	if _, err := r.BuildBindingSet("scan_ping", StorageBuffer{Label: "counters"}); !errors.Is(err, ErrDuplicateLabel) {
		t.Errorf("rebuilding scan_ping error = %v, want ErrDuplicateLabel", err)
	}
}

func TestBuildPipelines(t *testing.T) {
	r := setupBindingResources(t)
	if _, err := r.LoadProgram("prog", "", "cs_main", "vs_main", "fs_main"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.LoadProgram("compute_only", "", "cs_main"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.BuildBindingSet("a", StorageBuffer{Label: "counters"}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.BuildBindingSet("b", SampledImage{Label: "pyramid"}, SamplerItem{Label: "linear"}); err != nil {
		t.Fatal(err)
	}

	cp, err := r.BuildComputePipeline("count", "prog", "cs_main", []string{"a", "b"}, 8)
	if err != nil {
		t.Fatalf("BuildComputePipeline() error = %v", err)
	}
	if !cp.IsCompute() || len(cp.Layouts) != 2 || cp.Layouts[1].Label() != "b/layout" {
		t.Errorf("compute pipeline = %+v", cp)
	}

	dp, err := r.BuildDrawPipeline(DrawPipelineDesc{
		Label:         "draw",
		Program:       "prog",
		VertexEntry:   "vs_main",
		FragmentEntry: "fs_main",
		BindingSets:   []string{"b"},
		ColorTargets:  []gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm},
	})
	if err != nil {
		t.Fatalf("BuildDrawPipeline() error = %v", err)
	}
	if dp.IsCompute() {
		t.Error("draw pipeline reports IsCompute")
	}

	errTests := []struct {
		name    string
		build   func() error
		wantErr error
	}{
		{"undeclared entry", func() error {
			_, err := r.BuildComputePipeline("x1", "compute_only", "fs_main", nil, 0)
			return err
		}, ErrLayoutMismatch},
		{"unknown program", func() error {
			_, err := r.BuildComputePipeline("x2", "nope", "cs_main", nil, 0)
			return err
		}, ErrLabelNotFound},
		{"unknown set", func() error {
			_, err := r.BuildComputePipeline("x3", "prog", "cs_main", []string{"zzz"}, 0)
			return err
		}, ErrLabelNotFound},
		{"duplicate", func() error {
			_, err := r.BuildComputePipeline("count", "prog", "cs_main", nil, 0)
			return err
		}, ErrDuplicateLabel},
		{"no targets", func() error {
			_, err := r.BuildDrawPipeline(DrawPipelineDesc{Label: "x4", Program: "prog", VertexEntry: "vs_main", FragmentEntry: "fs_main"})
			return err
		}, ErrLayoutMismatch},
	}
	for _, tt := range errTests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.build(); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
