// Command orbdetect detects ORB features in an image and prints them.
//
// Usage:
//
//	orbdetect [flags] image
//
// Each feature is printed as "x y level", followed by its descriptor in
// hex when -descriptors is set. With -overlay the detected corners are
// marked on a copy of the input, scaled back to level 0.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/gogpu/orb"
	"github.com/gogpu/orb/backend/software"
	"github.com/gogpu/orb/gpucore"
	"github.com/gogpu/orb/kernels"
	"github.com/gogpu/orb/metrics"
)

func main() {
	var (
		depth       = flag.Int("depth", 4, "pyramid depth")
		maxFeatures = flag.Uint("max", 1024, "maximum number of features")
		threshold   = flag.Float64("threshold", 0.1, "FAST threshold in (0, 1)")
		capacity    = flag.Uint("capacity", uint(kernels.MaxChunkCapacity), "corners kept per 8x8 chunk")
		pyramid     = flag.String("pyramid", "blit", "pyramid strategy: blit or integral")
		compaction  = flag.String("compaction", "chunked", "compaction strategy: chunked or atomic")
		descriptors = flag.Bool("descriptors", false, "print descriptors")
		useGPU      = flag.Bool("gpu", false, "run on the GPU instead of the software device")
		overlay     = flag.String("overlay", "", "write the image with marked corners to this PNG file")
		showMetrics = flag.Bool("metrics", false, "print run metrics to stderr")
		verbose     = flag.Bool("v", false, "log pipeline stages")
		timeout     = flag.Duration("timeout", 30*time.Second, "run timeout")
	)
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: orbdetect [flags] image")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if *verbose {
		orb.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	img, err := loadImage(flag.Arg(0))
	if err != nil {
		log.Fatalf("Failed to load image: %v", err)
	}
	b := img.Bounds()

	cfg := orb.DefaultConfig()
	cfg.Width, cfg.Height = uint32(b.Dx()), uint32(b.Dy())
	cfg.PyramidDepth = *depth
	cfg.MaxFeatures = uint32(*maxFeatures)
	cfg.CornerThreshold = float32(*threshold)
	cfg.ChunkCapacity = uint32(*capacity)
	cfg.Descriptors = *descriptors
	if cfg.PyramidStrategy, err = parsePyramid(*pyramid); err != nil {
		log.Fatal(err)
	}
	if cfg.CompactionStrategy, err = parseCompaction(*compaction); err != nil {
		log.Fatal(err)
	}
	reg := prometheus.NewRegistry()
	cfg.Metrics = metrics.New(reg)

	dev, err := openDevice(*useGPU)
	if err != nil {
		log.Fatalf("Failed to open device: %v", err)
	}
	defer dev.Destroy()

	p, err := orb.New(dev, cfg)
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}
	defer p.Close()

	if err := p.WriteRGBA(img); err != nil {
		log.Fatalf("Failed to upload image: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	fs, err := p.Run(ctx)
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}
	elapsed := time.Since(start)

	features, err := p.Features(ctx)
	if err != nil {
		log.Fatalf("Failed to read features: %v", err)
	}
	var descs []orb.Descriptor
	if *descriptors {
		if descs, err = p.Descriptors(ctx); err != nil {
			log.Fatalf("Failed to read descriptors: %v", err)
		}
	}

	for i, f := range features {
		if descs != nil {
			fmt.Printf("%d %d %d %s\n", f.X, f.Y, f.Level, hexDescriptor(descs[i]))
			continue
		}
		fmt.Printf("%d %d %d\n", f.X, f.Y, f.Level)
	}
	log.Printf("%d features in %v (%dx%d, %s/%s)", fs.Count, elapsed, cfg.Width, cfg.Height,
		cfg.PyramidStrategy, cfg.CompactionStrategy)

	if *overlay != "" {
		if err := writeOverlay(*overlay, img, features); err != nil {
			log.Fatalf("Failed to write overlay: %v", err)
		}
	}
	if *showMetrics {
		if err := dumpMetrics(reg); err != nil {
			log.Fatalf("Failed to print metrics: %v", err)
		}
	}
}

func openDevice(gpu bool) (gpucore.Device, error) {
	if gpu {
		return openGPU()
	}
	return software.New(kernels.CPU()), nil
}

func parsePyramid(s string) (orb.PyramidStrategy, error) {
	switch s {
	case "blit":
		return orb.BlitBlur, nil
	case "integral":
		return orb.IntegralImage, nil
	}
	return 0, fmt.Errorf("unknown pyramid strategy %q", s)
}

func parseCompaction(s string) (orb.CompactionStrategy, error) {
	switch s {
	case "chunked":
		return orb.ChunkedScan, nil
	case "atomic":
		return orb.SingleAtomic, nil
	}
	return 0, fmt.Errorf("unknown compaction strategy %q", s)
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

func hexDescriptor(d orb.Descriptor) string {
	var s []byte
	for _, w := range d {
		s = fmt.Appendf(s, "%08x", w)
	}
	return string(s)
}

// writeOverlay marks every feature with a small square scaled to level 0.
func writeOverlay(path string, src image.Image, features []orb.Feature) error {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	marker := image.NewUniform(color.RGBA{R: 255, A: 255})
	for _, f := range features {
		scale := 1 << f.Level
		x, y := int(f.X)*scale, int(f.Y)*scale
		r := image.Rect(x-scale, y-scale, x+scale+1, y+scale+1).Intersect(dst.Bounds())
		draw.Draw(dst, r, marker, image.Point{}, draw.Src)
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(out, dst); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func dumpMetrics(reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(os.Stderr, mf); err != nil {
			return err
		}
	}
	return nil
}
