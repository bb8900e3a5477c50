package orb

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// WriteImage uploads RGBA8 pixels of exactly Width x Height into the input
// image. rowStride is the distance between rows in bytes.
func (p *Pipeline) WriteImage(rgba []byte, rowStride int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("orb: write image: %w", ErrClosed)
	}
	return p.reg.WriteImage(labelInput, rgba, rowStride)
}

// WriteRGBA uploads img into the input image. Images of another size are
// scaled with bilinear filtering and other color models are converted.
func (p *Pipeline) WriteRGBA(img image.Image) error {
	dst := toRGBA(img, int(p.cfg.Width), int(p.cfg.Height))
	return p.WriteImage(dst.Pix, dst.Stride)
}

// toRGBA returns img as a w x h *image.RGBA anchored at the origin,
// reusing img when it already is one.
func toRGBA(img image.Image, w, h int) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) && b.Dx() == w && b.Dy() == h {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if b.Dx() == w && b.Dy() == h {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	} else {
		draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	}
	return dst
}
