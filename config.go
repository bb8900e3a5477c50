package orb

import (
	"errors"
	"fmt"

	"github.com/gogpu/orb/kernels"
	"github.com/gogpu/orb/metrics"
	"github.com/gogpu/orb/registry"
)

// MaxPyramidDepth is the deepest supported pyramid.
const MaxPyramidDepth = 10

// ErrInvalidConfig is returned by Config.Validate and New.
var ErrInvalidConfig = errors.New("orb: invalid config")

// PyramidStrategy selects how pyramid levels are built and smoothed.
type PyramidStrategy int

const (
	// BlitBlur builds levels with bilinear draws and smooths them with a
	// separable 5-tap blur.
	BlitBlur PyramidStrategy = iota

	// IntegralImage builds levels in compute and smooths them with a 5x5
	// box filter read from a summed-area table.
	IntegralImage
)

// String returns the strategy name.
func (s PyramidStrategy) String() string {
	switch s {
	case BlitBlur:
		return "BlitBlur"
	case IntegralImage:
		return "IntegralImage"
	default:
		return "Unknown"
	}
}

// CompactionStrategy selects how detected corners are gathered.
type CompactionStrategy int

const (
	// ChunkedScan records corners per 8x8 chunk and compacts them with a
	// parallel prefix sum and scatter. Output order is deterministic.
	ChunkedScan CompactionStrategy = iota

	// SingleAtomic appends corners through one atomic counter. Output
	// order is unspecified.
	SingleAtomic
)

// String returns the strategy name.
func (s CompactionStrategy) String() string {
	switch s {
	case ChunkedScan:
		return "ChunkedScan"
	case SingleAtomic:
		return "SingleAtomic"
	default:
		return "Unknown"
	}
}

// Config configures a Pipeline.
type Config struct {
	// Width and Height are the input image dimensions.
	Width  uint32
	Height uint32

	// PyramidDepth is the number of pyramid levels, 1..MaxPyramidDepth.
	PyramidDepth int

	// MaxFeatures bounds the feature and descriptor arrays.
	MaxFeatures uint32

	// CornerThreshold is the FAST intensity threshold in (0, 1).
	CornerThreshold float32

	// ChunkCapacity is the number of corners kept per 8x8 chunk, 1..64.
	// Corners past the capacity are dropped silently.
	ChunkCapacity uint32

	PyramidStrategy    PyramidStrategy
	CompactionStrategy CompactionStrategy

	// Descriptors enables the BRIEF stage.
	Descriptors bool

	// Metrics receives run metrics. May be nil.
	Metrics *metrics.Collector
}

// DefaultConfig returns the default configuration. Width and Height must
// still be set.
func DefaultConfig() Config {
	return Config{
		PyramidDepth:       4,
		MaxFeatures:        1024,
		CornerThreshold:    0.1,
		ChunkCapacity:      kernels.MaxChunkCapacity,
		PyramidStrategy:    BlitBlur,
		CompactionStrategy: ChunkedScan,
		Descriptors:        true,
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if c.Width == 0 || c.Height == 0 {
		return fmt.Errorf("%w: image size %dx%d", ErrInvalidConfig, c.Width, c.Height)
	}
	if c.PyramidDepth < 1 || c.PyramidDepth > MaxPyramidDepth {
		return fmt.Errorf("%w: pyramid depth %d outside [1, %d]", ErrInvalidConfig, c.PyramidDepth, MaxPyramidDepth)
	}
	if c.MaxFeatures == 0 {
		return fmt.Errorf("%w: max features is 0", ErrInvalidConfig)
	}
	if !(c.CornerThreshold > 0 && c.CornerThreshold < 1) {
		return fmt.Errorf("%w: corner threshold %v outside (0, 1)", ErrInvalidConfig, c.CornerThreshold)
	}
	if c.ChunkCapacity == 0 || c.ChunkCapacity > kernels.MaxChunkCapacity {
		return fmt.Errorf("%w: chunk capacity %d outside [1, %d]", ErrInvalidConfig, c.ChunkCapacity, kernels.MaxChunkCapacity)
	}
	if c.PyramidStrategy != BlitBlur && c.PyramidStrategy != IntegralImage {
		return fmt.Errorf("%w: pyramid strategy %d", ErrInvalidConfig, int(c.PyramidStrategy))
	}
	if c.CompactionStrategy != ChunkedScan && c.CompactionStrategy != SingleAtomic {
		return fmt.Errorf("%w: compaction strategy %d", ErrInvalidConfig, int(c.CompactionStrategy))
	}
	return nil
}

// LevelSize is the size of one pyramid level.
type LevelSize struct {
	Width  uint32
	Height uint32
}

// Levels returns the dimensions of every pyramid level:
// floor(w/2^i) x floor(h/2^i), clamped to 1.
func (c *Config) Levels() []LevelSize {
	out := make([]LevelSize, c.PyramidDepth)
	for i := range out {
		w, h := registry.LevelSize(c.Width, c.Height, uint32(i))
		out[i] = LevelSize{Width: w, Height: h}
	}
	return out
}
