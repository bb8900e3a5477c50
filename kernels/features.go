package kernels

import (
	"github.com/gogpu/orb/backend/software"
)

// CPU versions of fast.wgsl, scan.wgsl and brief.wgsl.

// Circle is the 16-pixel Bresenham circle of radius 3 used by FAST,
// clockwise from the top.
var Circle = [16][2]int{
	{0, -3}, {1, -3}, {2, -2}, {3, -1},
	{3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1},
	{-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

// IsCorner applies the FAST-9 test: at least FastArc contiguous circle
// pixels are all brighter than center+t or all darker than center-t.
func IsCorner(center float32, ring [16]float32, t float32) bool {
	brighter, darker := 0, 0
	// Two laps so that arcs wrapping past index 15 are counted.
	for i := range 2 * len(ring) {
		v := ring[i%len(ring)]
		switch {
		case v > center+t:
			brighter++
			darker = 0
		case v < center-t:
			darker++
			brighter = 0
		default:
			brighter, darker = 0, 0
		}
		if brighter >= FastArc || darker >= FastArc {
			return true
		}
	}
	return false
}

func cornerAt(src *software.TextureBinding, x, y, w, h int, t float32) bool {
	if x < FastRadius || y < FastRadius || x >= w-FastRadius || y >= h-FastRadius {
		return false
	}
	var ring [16]float32
	for i, o := range Circle {
		ring[i] = src.Load(x+o[0], y+o[1], 0)[0]
	}
	return IsCorner(src.Load(x, y, 0)[0], ring, t)
}

func putFeature(b *software.BufferBinding, slot, x, y, level int) {
	b.SetU32(slot*FeatureWords, uint32(x))
	b.SetU32(slot*FeatureWords+1, uint32(y))
	b.SetU32(slot*FeatureWords+2, uint32(level))
}

// group 0: level view; group 1: chunk counters, chunk corners.
// One workgroup is one chunk. Corners are kept in row-major order and
// anything past the chunk capacity is dropped.
func fastCornersChunked(inv *software.Invocation) {
	src := inv.Texture(0, 0)
	counters := inv.Buffer(1, 0)
	corners := inv.Buffer(1, 1)

	level := int(inv.ParamU32(pFastLevel))
	capacity := int(inv.ParamU32(pFastCapacity))
	t := inv.ParamF32(pFastThreshold)
	chunk := int(inv.ParamU32(pFastChunkBase)) +
		int(inv.WorkgroupID[1])*int(inv.ParamU32(pFastChunksX)) + int(inv.WorkgroupID[0])

	w, h := src.Size(0)
	found := 0
	forEachPixel(inv, w, h, func(x, y int) {
		if !cornerAt(src, x, y, w, h, t) {
			return
		}
		if found < capacity {
			putFeature(corners, chunk*capacity+found, x, y, level)
		}
		found++
	})
	counters.SetU32(chunk, uint32(min(found, capacity)))
}

// group 0: level view; group 1: features, feature counter.
func fastCornersAtomic(inv *software.Invocation) {
	src := inv.Texture(0, 0)
	features := inv.Buffer(1, 0)
	counter := inv.Buffer(1, 1)

	level := int(inv.ParamU32(pFastLevel))
	limit := inv.ParamU32(pFastMaxFeatures)
	t := inv.ParamF32(pFastThreshold)

	w, h := src.Size(0)
	forEachPixel(inv, w, h, func(x, y int) {
		if !cornerAt(src, x, y, w, h, t) {
			return
		}
		if slot := counter.AtomicAddU32(0, 1); slot < limit {
			putFeature(features, int(slot), x, y, level)
		}
	})
}

// group 0: feature counter (read-only), feature total.
func clampCount(inv *software.Invocation) {
	counter := inv.Buffer(0, 0)
	total := inv.Buffer(0, 1)
	total.SetU32(0, min(counter.U32(0), inv.ParamU32(pFastMaxFeatures)))
}

// forEachIndex runs fn for every linear invocation of the workgroup below n.
// A grid folded into the second dimension continues the index row by row.
func forEachIndex(inv *software.Invocation, n int, fn func(i int)) {
	group := int(inv.WorkgroupID[1])*int(inv.NumWorkgroups[0]) + int(inv.WorkgroupID[0])
	base := group * LinearWorkgroup
	for l := range LinearWorkgroup {
		i := base + l
		if i >= n {
			return
		}
		fn(i)
	}
}

// group 0: input (read-only), output.
// One Hillis-Steele step: out[i] = in[i] + in[i-stride].
func scanRound(inv *software.Invocation) {
	in := inv.Buffer(0, 0)
	out := inv.Buffer(0, 1)
	stride := int(inv.ParamU32(pScanStride))
	forEachIndex(inv, int(inv.ParamU32(pScanCount)), func(i int) {
		v := in.U32(i)
		if i >= stride {
			v += in.U32(i - stride)
		}
		out.SetU32(i, v)
	})
}

// group 0: inclusive sums (read-only), local counts (read-only), offsets,
// feature total.
func scanFinalize(inv *software.Invocation) {
	incl := inv.Buffer(0, 0)
	local := inv.Buffer(0, 1)
	offsets := inv.Buffer(0, 2)
	total := inv.Buffer(0, 3)
	n := int(inv.ParamU32(pScanCount))
	limit := inv.ParamU32(pScanMaxFeatures)
	forEachIndex(inv, n, func(i int) {
		offsets.SetU32(i, incl.U32(i)-local.U32(i))
		if i == n-1 {
			total.SetU32(0, min(incl.U32(i), limit))
		}
	})
}

// group 0: local counts (read-only), offsets (read-only), chunk corners
// (read-only), features. One workgroup is one chunk; the grid may be two
// dimensional when there are more chunks than one dimension allows.
func scatter(inv *software.Invocation) {
	local := inv.Buffer(0, 0)
	offsets := inv.Buffer(0, 1)
	corners := inv.Buffer(0, 2)
	features := inv.Buffer(0, 3)

	chunk := int(inv.WorkgroupID[1]*inv.NumWorkgroups[0] + inv.WorkgroupID[0])
	if chunk >= int(inv.ParamU32(pScanCount)) {
		return
	}
	capacity := int(inv.ParamU32(pScanCapacity))
	limit := int(inv.ParamU32(pScanMaxFeatures))

	count := min(int(local.U32(chunk)), capacity)
	offset := int(offsets.U32(chunk))
	for j := range count {
		dst := offset + j
		if dst >= limit {
			return
		}
		src := (chunk*capacity + j) * FeatureWords
		for k := range FeatureWords {
			features.SetU32(dst*FeatureWords+k, corners.U32(src+k))
		}
	}
}

// pcg is the PCG hash used to derive the BRIEF sampling pattern.
func pcg(v uint32) uint32 {
	state := v*747796405 + 2891336453
	word := ((state >> ((state >> 28) + 4)) ^ state) * 277803737
	return (word >> 22) ^ word
}

// BriefPair returns the two sample offsets compared for descriptor bit b.
// Offsets lie in [-PatchRadius, PatchRadius].
func BriefPair(b int) (dx1, dy1, dx2, dy2 int) {
	off := func(k int) int {
		return int(pcg(uint32(b*4+k))%(2*PatchRadius+1)) - PatchRadius
	}
	return off(0), off(1), off(2), off(3)
}

// group 0: blurred pyramid (all levels), features (read-only), feature
// total (read-only), descriptors.
func briefDescriptors(inv *software.Invocation) {
	tex := inv.Texture(0, 0)
	features := inv.Buffer(0, 1)
	total := inv.Buffer(0, 2)
	descriptors := inv.Buffer(0, 3)

	n := int(min(total.U32(0), inv.ParamU32(pBriefMaxFeatures)))
	forEachIndex(inv, n, func(i int) {
		x := int(features.U32(i * FeatureWords))
		y := int(features.U32(i*FeatureWords + 1))
		level := int(features.U32(i*FeatureWords + 2))

		var words [DescriptorWords]uint32
		for b := range DescriptorWords * 32 {
			dx1, dy1, dx2, dy2 := BriefPair(b)
			if tex.Load(x+dx1, y+dy1, level)[0] < tex.Load(x+dx2, y+dy2, level)[0] {
				words[b/32] |= 1 << (b % 32)
			}
		}
		for k, v := range words {
			descriptors.SetU32(i*DescriptorWords+k, v)
		}
	})
}
