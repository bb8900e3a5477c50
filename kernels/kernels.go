// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package kernels holds the programs of the feature pipeline.
//
// Every program exists twice: as WGSL for native devices, embedded from
// the wgsl directory, and as Go kernels for the software device, keyed by
// the same entry point names. The Go kernels are CPU versions of the WGSL
// and follow the same binding layouts, so a pipeline built against one
// runs unchanged against the other.
//
// Binding layout convention: a pipeline's binding sets occupy bind groups
// 0..n-1 in the order they are named, and its parameter block (if any) is
// the uniform at group n, binding 0.
package kernels

import (
	"embed"
	"fmt"
	"slices"

	"github.com/gogpu/orb/backend/software"
)

//go:embed wgsl/*.wgsl
var wgslFS embed.FS

// Program names.
const (
	Grayscale = "grayscale"
	Pyramid   = "pyramid"
	Integral  = "integral"
	Fast      = "fast"
	Scan      = "scan"
	Brief     = "brief"
)

// Entry point names.
const (
	VSMain             = "vs_main"
	FSGrayscale        = "fs_main"
	CSGrayscale        = "cs_main"
	FSDownsample       = "fs_downsample"
	FSBlurH            = "fs_blur_h"
	FSBlurV            = "fs_blur_v"
	CSDownsample       = "cs_downsample"
	IntegralSeed       = "integral_seed"
	IntegralRound      = "integral_round"
	BoxBlur            = "box_blur"
	FastCornersChunked = "fast_corners_chunked"
	FastCornersAtomic  = "fast_corners_atomic"
	ClampCount         = "clamp_count"
	ScanRound          = "scan_round"
	ScanFinalize       = "scan_finalize"
	Scatter            = "scatter"
	BriefDescriptors   = "brief_descriptors"
)

var entryPoints = map[string][]string{
	Grayscale: {VSMain, FSGrayscale, CSGrayscale},
	Pyramid:   {VSMain, FSDownsample, FSBlurH, FSBlurV, CSDownsample},
	Integral:  {IntegralSeed, IntegralRound, BoxBlur},
	Fast:      {FastCornersChunked, FastCornersAtomic, ClampCount},
	Scan:      {ScanRound, ScanFinalize, Scatter},
	Brief:     {BriefDescriptors},
}

// Programs returns the names of every program, sorted.
func Programs() []string {
	names := make([]string, 0, len(entryPoints))
	for name := range entryPoints {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Source returns the WGSL source of a program.
func Source(program string) (string, error) {
	if _, ok := entryPoints[program]; !ok {
		return "", fmt.Errorf("kernels: unknown program %q", program)
	}
	b, err := wgslFS.ReadFile("wgsl/" + program + ".wgsl")
	if err != nil {
		return "", fmt.Errorf("kernels: read %s: %w", program, err)
	}
	return string(b), nil
}

// EntryPoints returns the entry points a program declares.
func EntryPoints(program string) []string {
	return slices.Clone(entryPoints[program])
}

// CPU returns the Go kernels for every entry point of every program.
func CPU() software.Kernels {
	frag := func(f func(*software.Invocation, int, int) [4]float32) software.Kernel {
		return software.Kernel{Stage: software.StageFragment, Fragment: f}
	}
	comp := func(f func(*software.Invocation)) software.Kernel {
		return software.Kernel{Stage: software.StageCompute, Compute: f}
	}
	return software.Kernels{
		VSMain:             {Stage: software.StageVertex},
		FSGrayscale:        frag(fsGrayscale),
		CSGrayscale:        comp(csGrayscale),
		FSDownsample:       frag(fsDownsample),
		FSBlurH:            frag(fsBlurH),
		FSBlurV:            frag(fsBlurV),
		CSDownsample:       comp(csDownsample),
		IntegralSeed:       comp(integralSeed),
		IntegralRound:      comp(integralRound),
		BoxBlur:            comp(boxBlur),
		FastCornersChunked: comp(fastCornersChunked),
		FastCornersAtomic:  comp(fastCornersAtomic),
		ClampCount:         comp(clampCount),
		ScanRound:          comp(scanRound),
		ScanFinalize:       comp(scanFinalize),
		Scatter:            comp(scatter),
		BriefDescriptors:   comp(briefDescriptors),
	}
}
