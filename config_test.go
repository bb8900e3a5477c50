package orb

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestLevels(t *testing.T) {
	tests := []struct {
		w, h uint32
	}{
		{1024, 768},
		{1000, 1000},
		{640, 480},
		{1023, 513},
	}
	for _, tt := range tests {
		for depth := 1; depth <= MaxPyramidDepth; depth++ {
			cfg := testConfig(tt.w, tt.h, depth)
			levels := cfg.Levels()
			if len(levels) != depth {
				t.Fatalf("%dx%d depth %d: len(Levels()) = %d", tt.w, tt.h, depth, len(levels))
			}
			for i, l := range levels {
				wantW, wantH := max(tt.w>>i, 1), max(tt.h>>i, 1)
				if l.Width != wantW || l.Height != wantH {
					t.Errorf("%dx%d level %d = %dx%d, want %dx%d", tt.w, tt.h, i, l.Width, l.Height, wantW, wantH)
				}
			}
		}
	}
}

func TestLevelsClampToOnePixel(t *testing.T) {
	cfg := testConfig(640, 480, MaxPyramidDepth)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	levels := cfg.Levels()
	if got, want := levels[len(levels)-1], (LevelSize{1, 1}); got != want {
		t.Errorf("last level = %v, want %v", got, want)
	}
}

func TestLevelsMatchPipeline(t *testing.T) {
	p, _ := newTestPipeline(t, testConfig(100, 37, 4))
	want := []LevelSize{{100, 37}, {50, 18}, {25, 9}, {12, 4}}
	got := p.Levels()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Levels()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	img, err := p.Registry().Image(labelPyramid)
	if err != nil {
		t.Fatal(err)
	}
	for i, l := range want {
		w, h := img.LevelSize(uint32(i))
		if w != l.Width || h != l.Height {
			t.Errorf("pyramid level %d = %dx%d, want %v", i, w, h, l)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"zero width", func(c *Config) { c.Width = 0 }, true},
		{"zero height", func(c *Config) { c.Height = 0 }, true},
		{"depth 0", func(c *Config) { c.PyramidDepth = 0 }, true},
		{"depth 10", func(c *Config) { c.PyramidDepth = 10 }, false},
		{"depth 11", func(c *Config) { c.PyramidDepth = 11 }, true},
		{"levels clamp to 1 px", func(c *Config) { c.Width, c.PyramidDepth = 4, 4 }, false},
		{"smallest level 1 px", func(c *Config) { c.Width, c.Height, c.PyramidDepth = 8, 8, 4 }, false},
		{"zero max features", func(c *Config) { c.MaxFeatures = 0 }, true},
		{"threshold 0", func(c *Config) { c.CornerThreshold = 0 }, true},
		{"threshold 1", func(c *Config) { c.CornerThreshold = 1 }, true},
		{"threshold NaN", func(c *Config) { c.CornerThreshold = float32(math.NaN()) }, true},
		{"capacity 0", func(c *Config) { c.ChunkCapacity = 0 }, true},
		{"capacity 1", func(c *Config) { c.ChunkCapacity = 1 }, false},
		{"capacity 65", func(c *Config) { c.ChunkCapacity = 65 }, true},
		{"unknown pyramid", func(c *Config) { c.PyramidStrategy = 7 }, true},
		{"unknown compaction", func(c *Config) { c.CompactionStrategy = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Width, cfg.Height = 640, 480
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestStrategyString(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{BlitBlur.String(), "BlitBlur"},
		{IntegralImage.String(), "IntegralImage"},
		{PyramidStrategy(9).String(), "Unknown"},
		{ChunkedScan.String(), "ChunkedScan"},
		{SingleAtomic.String(), "SingleAtomic"},
		{CompactionStrategy(9).String(), "Unknown"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestStageString(t *testing.T) {
	for s := StageReset; s <= StageDone; s++ {
		if name := s.String(); name == "" || strings.HasPrefix(name, "Stage(") {
			t.Errorf("Stage(%d).String() = %q", int(s), name)
		}
	}
	if got := Stage(99).String(); got != "Stage(99)" {
		t.Errorf("Stage(99).String() = %q, want Stage(99)", got)
	}
	if got := StageCompactionRound.String(); got != "CompactionRound" {
		t.Errorf("StageCompactionRound.String() = %q", got)
	}
}
