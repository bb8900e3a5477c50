package kernels

import (
	"strings"
	"testing"

	"github.com/gogpu/orb/backend/software"
)

func TestProgramsHaveSourceAndKernels(t *testing.T) {
	cpu := CPU()
	for _, prog := range Programs() {
		t.Run(prog, func(t *testing.T) {
			src, err := Source(prog)
			if err != nil {
				t.Fatalf("Source() error = %v", err)
			}
			for _, ep := range EntryPoints(prog) {
				if !strings.Contains(src, "fn "+ep+"(") {
					t.Errorf("WGSL does not define entry point %s", ep)
				}
				if _, ok := cpu[ep]; !ok {
					t.Errorf("no CPU kernel for %s", ep)
				}
			}
		})
	}
}

func TestSourceUnknownProgram(t *testing.T) {
	if _, err := Source("orb"); err == nil {
		t.Error("Source(unknown) error = nil, want error")
	}
}

func TestKernelStages(t *testing.T) {
	cpu := CPU()
	tests := []struct {
		entry string
		want  software.Stage
	}{
		{VSMain, software.StageVertex},
		{FSGrayscale, software.StageFragment},
		{FSBlurH, software.StageFragment},
		{CSGrayscale, software.StageCompute},
		{IntegralRound, software.StageCompute},
		{Scatter, software.StageCompute},
	}
	for _, tt := range tests {
		if got := cpu[tt.entry].Stage; got != tt.want {
			t.Errorf("%s stage = %s, want %s", tt.entry, got, tt.want)
		}
	}
}

func TestParamSizes(t *testing.T) {
	tests := []struct {
		name string
		got  int
		want int
	}{
		{"ImageParams", len(ImageParams{Width: 1}.Bytes()), ImageParamsSize},
		{"RoundParams", len(RoundParams{Stride: 1}.Bytes()), RoundParamsSize},
		{"FastParams", len(FastParams{Threshold: 0.1}.Bytes()), FastParamsSize},
		{"ScanParams", len(ScanParams{Count: 4}.Bytes()), ScanParamsSize},
		{"BriefParams", len(BriefParams{MaxFeatures: 8}.Bytes()), BriefParamsSize},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s encodes to %d bytes, want %d", tt.name, tt.got, tt.want)
		}
		if tt.want%16 != 0 {
			t.Errorf("%s size %d is not a multiple of 16", tt.name, tt.want)
		}
	}
}

func TestIsCorner(t *testing.T) {
	ring := func(pattern string) [16]float32 {
		var r [16]float32
		for i, c := range pattern {
			switch c {
			case 'b':
				r[i] = 1
			case 'd':
				r[i] = 0
			default:
				r[i] = 0.5
			}
		}
		return r
	}
	tests := []struct {
		name string
		ring string
		want bool
	}{
		{"flat", "................", false},
		{"all darker", "dddddddddddddddd", true},
		{"nine brighter", "bbbbbbbbb.......", true},
		{"eight brighter", "bbbbbbbb........", false},
		{"wrapping arc", "bbbbb.......bbbb", true},
		{"broken arc", "bbbbdbbbbb......", false},
		{"alternating", "bdbdbdbdbdbdbdbd", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCorner(0.5, ring(tt.ring), 0.1); got != tt.want {
				t.Errorf("IsCorner() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBriefPattern(t *testing.T) {
	seen := make(map[[4]int]bool)
	for b := range DescriptorWords * 32 {
		dx1, dy1, dx2, dy2 := BriefPair(b)
		for _, o := range []int{dx1, dy1, dx2, dy2} {
			if o < -PatchRadius || o > PatchRadius {
				t.Fatalf("BriefPair(%d) offset %d outside the patch", b, o)
			}
		}
		seen[[4]int{dx1, dy1, dx2, dy2}] = true

		a1, b1, a2, b2 := BriefPair(b)
		if a1 != dx1 || b1 != dy1 || a2 != dx2 || b2 != dy2 {
			t.Fatalf("BriefPair(%d) is not deterministic", b)
		}
	}
	if len(seen) < 250 {
		t.Errorf("only %d distinct pairs out of 256", len(seen))
	}
}

func TestCircleRadius(t *testing.T) {
	for i, o := range Circle {
		d2 := o[0]*o[0] + o[1]*o[1]
		if d2 < 8 || d2 > 10 {
			t.Errorf("Circle[%d] = %v, squared distance %d", i, o, d2)
		}
	}
}

func TestForEachIndexFoldedGrid(t *testing.T) {
	const n = 200
	// Four workgroups folded into a 2x2 grid.
	seen := make([]int, n)
	for y := range uint32(2) {
		for x := range uint32(2) {
			inv := &software.Invocation{
				WorkgroupID:   [3]uint32{x, y, 0},
				NumWorkgroups: [3]uint32{2, 2, 1},
			}
			forEachIndex(inv, n, func(i int) { seen[i]++ })
		}
	}
	for i, c := range seen {
		if c != 1 {
			t.Errorf("index %d visited %d times, want 1", i, c)
		}
	}
}
