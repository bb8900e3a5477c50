package software

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/orb/gpucore"
)

// Stage is the pipeline stage a kernel implements.
type Stage int

const (
	StageCompute Stage = iota
	StageVertex
	StageFragment
)

// String returns the string representation of Stage.
func (s Stage) String() string {
	switch s {
	case StageCompute:
		return "Compute"
	case StageVertex:
		return "Vertex"
	case StageFragment:
		return "Fragment"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Kernel is the Go implementation of one program entry point.
//
// Compute kernels are invoked once per workgroup and iterate their own
// local invocations, so workgroup-shared state is ordinary local
// variables. Fragment kernels are invoked once per target pixel. Vertex
// kernels carry no code: the software rasterizer only supports draws that
// cover the whole color target.
type Kernel struct {
	Stage    Stage
	Compute  func(inv *Invocation)
	Fragment func(inv *Invocation, x, y int) [4]float32
}

// Kernels maps entry point names to kernels.
type Kernels map[string]Kernel

// Invocation is the execution context handed to a kernel.
type Invocation struct {
	// WorkgroupID and NumWorkgroups are set for compute kernels.
	WorkgroupID   [3]uint32
	NumWorkgroups [3]uint32

	// TargetWidth and TargetHeight are set for fragment kernels.
	TargetWidth  int
	TargetHeight int

	groups []*bindGroup
	params []byte
}

// Params returns the parameter block set for the dispatch.
func (inv *Invocation) Params() []byte { return inv.params }

// ParamU32 returns the i-th 32-bit word of the parameter block.
func (inv *Invocation) ParamU32(i int) uint32 {
	return binary.LittleEndian.Uint32(inv.params[i*4:])
}

// ParamF32 returns the i-th 32-bit word of the parameter block as a float.
func (inv *Invocation) ParamF32(i int) float32 {
	return math.Float32frombits(inv.ParamU32(i))
}

func (inv *Invocation) entry(group, binding uint32) *boundResource {
	if int(group) >= len(inv.groups) || inv.groups[group] == nil {
		panic(fmt.Sprintf("software: bind group %d not set", group))
	}
	r, ok := inv.groups[group].entries[binding]
	if !ok {
		panic(fmt.Sprintf("software: binding %d missing in group %d", binding, group))
	}
	return r
}

// Buffer returns the buffer bound at (group, binding).
func (inv *Invocation) Buffer(group, binding uint32) *BufferBinding {
	r := inv.entry(group, binding)
	if r.buffer == nil {
		panic(fmt.Sprintf("software: binding %d/%d is not a buffer", group, binding))
	}
	return r.buffer
}

// Texture returns the texture view bound at (group, binding).
func (inv *Invocation) Texture(group, binding uint32) *TextureBinding {
	r := inv.entry(group, binding)
	if r.texture == nil {
		panic(fmt.Sprintf("software: binding %d/%d is not a texture", group, binding))
	}
	return r.texture
}

// Sampler returns the sampler bound at (group, binding).
func (inv *Invocation) Sampler(group, binding uint32) *SamplerBinding {
	r := inv.entry(group, binding)
	if r.sampler == nil {
		panic(fmt.Sprintf("software: binding %d/%d is not a sampler", group, binding))
	}
	return r.sampler
}

// boundResource is one resolved bind group entry.
type boundResource struct {
	kind    gpucore.BindingType
	buffer  *BufferBinding
	texture *TextureBinding
	sampler *SamplerBinding
}

// =============================================================================
// Buffer bindings
// =============================================================================

// BufferBinding is a bound range of a buffer as seen by a kernel.
type BufferBinding struct {
	buf      *buffer
	offset   uint64
	size     uint64
	readOnly bool
}

// Len returns the bound size in bytes.
func (b *BufferBinding) Len() int { return int(b.size) }

// Words returns the number of 32-bit words in the bound range.
func (b *BufferBinding) Words() int { return int(b.size / 4) }

func (b *BufferBinding) word(i int) []byte {
	off := b.offset + uint64(i)*4
	if i < 0 || uint64(i)*4+4 > b.size {
		panic(fmt.Sprintf("software: word %d outside binding of %d bytes", i, b.size))
	}
	return b.buf.data[off : off+4]
}

// U32 reads the i-th word.
func (b *BufferBinding) U32(i int) uint32 {
	return binary.LittleEndian.Uint32(b.word(i))
}

// SetU32 writes the i-th word.
func (b *BufferBinding) SetU32(i int, v uint32) {
	if b.readOnly {
		panic("software: write to read-only binding")
	}
	binary.LittleEndian.PutUint32(b.word(i), v)
}

// F32 reads the i-th word as a float.
func (b *BufferBinding) F32(i int) float32 {
	return math.Float32frombits(b.U32(i))
}

// SetF32 writes the i-th word as a float.
func (b *BufferBinding) SetF32(i int, v float32) {
	b.SetU32(i, math.Float32bits(v))
}

// AtomicAddU32 adds delta to the i-th word and returns the previous value.
// Atomics on one buffer are serialised.
func (b *BufferBinding) AtomicAddU32(i int, delta uint32) uint32 {
	if b.readOnly {
		panic("software: atomic on read-only binding")
	}
	b.buf.atomicMu.Lock()
	defer b.buf.atomicMu.Unlock()
	w := b.word(i)
	old := binary.LittleEndian.Uint32(w)
	binary.LittleEndian.PutUint32(w, old+delta)
	return old
}

// AtomicLoadU32 reads the i-th word under the buffer's atomic lock.
func (b *BufferBinding) AtomicLoadU32(i int) uint32 {
	b.buf.atomicMu.Lock()
	defer b.buf.atomicMu.Unlock()
	return binary.LittleEndian.Uint32(b.word(i))
}

// =============================================================================
// Texture bindings
// =============================================================================

// TextureBinding is a bound texture view as seen by a kernel. Level
// arguments are relative to the view's base level.
type TextureBinding struct {
	tex       *texture
	base      int
	count     int
	writeable bool
}

// Levels returns the number of mip levels visible through the view.
func (t *TextureBinding) Levels() int { return t.count }

// Size returns the dimensions of a view-relative level.
func (t *TextureBinding) Size(level int) (w, h int) {
	lv := t.level(level)
	return lv.w, lv.h
}

func (t *TextureBinding) level(level int) *mipLevel {
	if level < 0 || level >= t.count {
		panic(fmt.Sprintf("software: level %d outside view of %d levels", level, t.count))
	}
	return &t.tex.levels[t.base+level]
}

// Load reads a texel. Coordinates are clamped to the level.
func (t *TextureBinding) Load(x, y, level int) [4]float32 {
	return t.level(level).load(x, y)
}

// Store writes a texel into the view's base level. Out-of-range writes
// are discarded.
func (t *TextureBinding) Store(x, y int, v [4]float32) {
	if !t.writeable {
		panic("software: store to non-storage texture binding")
	}
	t.level(0).store(x, y, v, t.tex.desc.Format)
}

// Sample reads the texture at normalized coordinates with the sampler's
// filter, clamping to edge.
func (t *TextureBinding) Sample(s *SamplerBinding, u, v float32, level int) [4]float32 {
	lv := t.level(level)
	if s.desc.MagFilter != gputypes.FilterModeLinear {
		x := int(math.Floor(float64(u) * float64(lv.w)))
		y := int(math.Floor(float64(v) * float64(lv.h)))
		return lv.load(x, y)
	}

	fx := float64(u)*float64(lv.w) - 0.5
	fy := float64(v)*float64(lv.h) - 0.5
	x0 := math.Floor(fx)
	y0 := math.Floor(fy)
	ax := float32(fx - x0)
	ay := float32(fy - y0)
	ix, iy := int(x0), int(y0)

	c00 := lv.load(ix, iy)
	c10 := lv.load(ix+1, iy)
	c01 := lv.load(ix, iy+1)
	c11 := lv.load(ix+1, iy+1)

	var out [4]float32
	for c := range 4 {
		top := c00[c]*(1-ax) + c10[c]*ax
		bottom := c01[c]*(1-ax) + c11[c]*ax
		out[c] = top*(1-ay) + bottom*ay
	}
	return out
}

// SamplerBinding is a bound sampler.
type SamplerBinding struct {
	desc gpucore.SamplerDesc
}
