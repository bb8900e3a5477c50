package kernels

import (
	"math"

	"github.com/gogpu/orb/backend/software"
)

// CPU versions of grayscale.wgsl, pyramid.wgsl and integral.wgsl.

// Luma converts linear RGB to intensity with Rec. 601 weights.
func Luma(c [4]float32) float32 {
	return 0.299*c[0] + 0.587*c[1] + 0.114*c[2]
}

func gray(v float32) [4]float32 { return [4]float32{v, v, v, 1} }

// texCoord returns the normalized coordinate of a pixel center.
func texCoord(inv *software.Invocation, x, y int) (u, v float32) {
	return (float32(x) + 0.5) / float32(inv.TargetWidth), (float32(y) + 0.5) / float32(inv.TargetHeight)
}

// forEachPixel runs fn for every pixel of an 8x8 workgroup tile that lies
// inside a w x h image.
func forEachPixel(inv *software.Invocation, w, h int, fn func(x, y int)) {
	x0 := int(inv.WorkgroupID[0]) * ChunkSize
	y0 := int(inv.WorkgroupID[1]) * ChunkSize
	for ly := range ChunkSize {
		y := y0 + ly
		if y >= h {
			return
		}
		for lx := range ChunkSize {
			x := x0 + lx
			if x >= w {
				break
			}
			fn(x, y)
		}
	}
}

// group 0: source image, sampler.
func fsGrayscale(inv *software.Invocation, x, y int) [4]float32 {
	src := inv.Texture(0, 0)
	u, v := texCoord(inv, x, y)
	return gray(Luma(src.Sample(inv.Sampler(0, 1), u, v, 0)))
}

// group 0: source image, storage target.
func csGrayscale(inv *software.Invocation) {
	src := inv.Texture(0, 0)
	dst := inv.Texture(0, 1)
	w, h := dst.Size(0)
	forEachPixel(inv, w, h, func(x, y int) {
		dst.Store(x, y, gray(Luma(src.Load(x, y, 0))))
	})
}

// group 0: previous level, sampler. Bilinear sampling at the center of a
// half-size pixel averages the 2x2 source block.
func fsDownsample(inv *software.Invocation, x, y int) [4]float32 {
	src := inv.Texture(0, 0)
	u, v := texCoord(inv, x, y)
	return src.Sample(inv.Sampler(0, 1), u, v, 0)
}

var blurWeights = [5]float32{1.0 / 16, 4.0 / 16, 6.0 / 16, 4.0 / 16, 1.0 / 16}

func blur(src *software.TextureBinding, x, y, dx, dy int) [4]float32 {
	var sum float32
	for i, w := range blurWeights {
		o := i - 2
		sum += w * src.Load(x+o*dx, y+o*dy, 0)[0]
	}
	return gray(sum)
}

// group 0: level view, sampler.
func fsBlurH(inv *software.Invocation, x, y int) [4]float32 {
	return blur(inv.Texture(0, 0), x, y, 1, 0)
}

// group 0: horizontally blurred level view, sampler.
func fsBlurV(inv *software.Invocation, x, y int) [4]float32 {
	return blur(inv.Texture(0, 0), x, y, 0, 1)
}

// group 0: previous level, storage target.
func csDownsample(inv *software.Invocation) {
	src := inv.Texture(0, 0)
	dst := inv.Texture(0, 1)
	w, h := dst.Size(0)
	forEachPixel(inv, w, h, func(x, y int) {
		sx, sy := 2*x, 2*y
		v := (src.Load(sx, sy, 0)[0] + src.Load(sx+1, sy, 0)[0] +
			src.Load(sx, sy+1, 0)[0] + src.Load(sx+1, sy+1, 0)[0]) / 4
		dst.Store(x, y, gray(v))
	})
}

// group 0: level view, integral buffer.
func integralSeed(inv *software.Invocation) {
	src := inv.Texture(0, 0)
	out := inv.Buffer(0, 1)
	w := int(inv.ParamU32(pImageWidth))
	h := int(inv.ParamU32(pImageHeight))
	forEachPixel(inv, w, h, func(x, y int) {
		out.SetU32(y*w+x, uint32(math.Round(float64(src.Load(x, y, 0)[0])*255)))
	})
}

// group 0: input integral (read-only), output integral.
func integralRound(inv *software.Invocation) {
	in := inv.Buffer(0, 0)
	out := inv.Buffer(0, 1)
	stride := int(inv.ParamU32(pRoundStride))
	axis := inv.ParamU32(pRoundAxis)
	w := int(inv.ParamU32(pRoundWidth))
	h := int(inv.ParamU32(pRoundHeight))
	forEachPixel(inv, w, h, func(x, y int) {
		idx := y*w + x
		coord, step := x, stride
		if axis == 1 {
			coord, step = y, stride*w
		}
		v := in.U32(idx)
		if coord >= stride {
			v += in.U32(idx - step)
		}
		out.SetU32(idx, v)
	})
}

// group 0: final integral (read-only); group 1: storage target.
func boxBlur(inv *software.Invocation) {
	sat := inv.Buffer(0, 0)
	dst := inv.Texture(1, 0)
	w := int(inv.ParamU32(pImageWidth))
	h := int(inv.ParamU32(pImageHeight))

	at := func(x, y int) uint32 {
		if x < 0 || y < 0 {
			return 0
		}
		return sat.U32(y*w + x)
	}
	forEachPixel(inv, w, h, func(x, y int) {
		x0, x1 := max(x-BoxRadius, 0), min(x+BoxRadius, w-1)
		y0, y1 := max(y-BoxRadius, 0), min(y+BoxRadius, h-1)
		sum := at(x1, y1) - at(x0-1, y1) - at(x1, y0-1) + at(x0-1, y0-1)
		n := (x1 - x0 + 1) * (y1 - y0 + 1)
		dst.Store(x, y, gray(float32(sum)/float32(n*255)))
	})
}
