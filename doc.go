// Package orb runs an ORB-style visual feature pipeline on a compute
// device.
//
// # Overview
//
// A Pipeline turns an RGBA image into a dense list of corner features and
// optional 256-bit binary descriptors. Every frame is one command batch
// recorded against resources created once by New:
//
//	grayscale -> pyramid -> smoothing -> corner detection -> compaction -> descriptors -> readback
//
// # Quick Start
//
//	dev := software.New(kernels.CPU())
//	defer dev.Destroy()
//
//	cfg := orb.DefaultConfig()
//	cfg.Width, cfg.Height = 640, 480
//	p, err := orb.New(dev, cfg)
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	if err := p.WriteRGBA(img); err != nil {
//	    return err
//	}
//	set, err := p.Run(ctx)
//	features, err := p.Features(ctx)
//
// # Strategies
//
// PyramidStrategy selects between bilinear draws with a separable blur
// (BlitBlur) and compute downsampling with a summed-area box filter
// (IntegralImage). CompactionStrategy selects between a deterministic
// chunked prefix-sum compaction (ChunkedScan) and a single atomic append
// counter (SingleAtomic).
//
// # Devices
//
// Any gpucore.Device works. backend/software runs the Go kernels from the
// kernels package on the CPU; backend/native runs the WGSL kernels through
// a HAL device.
//
// # Logging
//
// orb is silent by default. Use SetLogger to receive construction and
// per-stage diagnostics.
package orb
