package main

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/orb"
)

func TestParseStrategies(t *testing.T) {
	pyramids := []struct {
		in      string
		want    orb.PyramidStrategy
		wantErr bool
	}{
		{"blit", orb.BlitBlur, false},
		{"integral", orb.IntegralImage, false},
		{"mipmap", 0, true},
	}
	for _, tt := range pyramids {
		got, err := parsePyramid(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parsePyramid(%q) = %v, %v, want %v, wantErr %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}

	compactions := []struct {
		in      string
		want    orb.CompactionStrategy
		wantErr bool
	}{
		{"chunked", orb.ChunkedScan, false},
		{"atomic", orb.SingleAtomic, false},
		{"", 0, true},
	}
	for _, tt := range compactions {
		got, err := parseCompaction(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseCompaction(%q) = %v, %v, want %v, wantErr %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestHexDescriptor(t *testing.T) {
	var d orb.Descriptor
	d[0] = 0xdeadbeef
	d[len(d)-1] = 1
	got := hexDescriptor(d)
	if len(got) != len(d)*8 {
		t.Fatalf("len(hexDescriptor()) = %d, want %d", len(got), len(d)*8)
	}
	if !strings.HasPrefix(got, "deadbeef") || !strings.HasSuffix(got, "00000001") {
		t.Errorf("hexDescriptor() = %s", got)
	}
}

func TestWriteOverlay(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 32, 32))
	path := filepath.Join(t.TempDir(), "overlay.png")
	features := []orb.Feature{{X: 4, Y: 4, Level: 0}, {X: 8, Y: 2, Level: 1}, {X: 0, Y: 0, Level: 0}}
	if err := writeOverlay(path, src, features); err != nil {
		t.Fatalf("writeOverlay() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	red := color.RGBAModel.Convert(color.RGBA{R: 255, A: 255})
	for _, pt := range []image.Point{{4, 4}, {16, 4}, {0, 0}} {
		if got := color.RGBAModel.Convert(img.At(pt.X, pt.Y)); got != red {
			t.Errorf("pixel %v = %v, want marker", pt, got)
		}
	}
	if got := color.RGBAModel.Convert(img.At(30, 30)); got == red {
		t.Error("unmarked pixel (30,30) is red")
	}
}
