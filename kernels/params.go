package kernels

import (
	"encoding/binary"
)

// Layout constants shared by the WGSL and Go kernels.
const (
	// ChunkSize is the side of a corner detection chunk. One chunk is one
	// workgroup of ChunkSize x ChunkSize invocations.
	ChunkSize = 8

	// MaxChunkCapacity bounds the per-chunk corner capacity K.
	MaxChunkCapacity = ChunkSize * ChunkSize

	// LinearWorkgroup is the workgroup size of one-dimensional kernels.
	LinearWorkgroup = 64

	// MaxWorkgroupsPerDimension is the portable dispatch limit per axis.
	MaxWorkgroupsPerDimension = 65535

	// FeatureWords is the number of u32 words per feature: x, y, level.
	FeatureWords = 3
	FeatureSize  = FeatureWords * 4

	// DescriptorWords is the number of u32 words per descriptor (256 bits).
	DescriptorWords = 8
	DescriptorSize  = DescriptorWords * 4

	// FastRadius is the radius of the FAST circle; pixels closer than this
	// to the border are never corners.
	FastRadius = 3

	// FastArc is the number of contiguous circle pixels a corner needs.
	FastArc = 9

	// PatchRadius bounds BRIEF sample offsets (31x31 patch).
	PatchRadius = 15

	// BoxRadius is the radius of the integral-image box blur (5x5).
	BoxRadius = 2
)

// Parameter block sizes in bytes.
const (
	ImageParamsSize = 16
	RoundParamsSize = 16
	FastParamsSize  = 32
	ScanParamsSize  = 16
	BriefParamsSize = 16
)

// ImageParams is the parameter block of integral_seed and box_blur.
type ImageParams struct {
	Width  uint32
	Height uint32
	_      [2]uint32
}

// RoundParams is the parameter block of integral_round. Axis 0 scans rows,
// axis 1 scans columns.
type RoundParams struct {
	Stride uint32
	Axis   uint32
	Width  uint32
	Height uint32
}

// FastParams is the parameter block of the fast program.
type FastParams struct {
	Level       uint32
	ChunkBase   uint32
	ChunksX     uint32
	Capacity    uint32
	Threshold   float32
	MaxFeatures uint32
	_           [2]uint32
}

// ScanParams is the parameter block of the scan program. Count is the
// number of chunks.
type ScanParams struct {
	Stride      uint32
	Count       uint32
	MaxFeatures uint32
	Capacity    uint32
}

// BriefParams is the parameter block of brief_descriptors.
type BriefParams struct {
	MaxFeatures uint32
	_           [3]uint32
}

func encode(v any) []byte {
	b, err := binary.Append(nil, binary.LittleEndian, v)
	if err != nil {
		panic("kernels: encode params: " + err.Error())
	}
	return b
}

// Bytes encodes the parameter block.
func (p ImageParams) Bytes() []byte { return encode(p) }

// Bytes encodes the parameter block.
func (p RoundParams) Bytes() []byte { return encode(p) }

// Bytes encodes the parameter block.
func (p FastParams) Bytes() []byte { return encode(p) }

// Bytes encodes the parameter block.
func (p ScanParams) Bytes() []byte { return encode(p) }

// Bytes encodes the parameter block.
func (p BriefParams) Bytes() []byte { return encode(p) }

// Word indices into the parameter blocks, as read by the Go kernels.
const (
	pImageWidth  = 0
	pImageHeight = 1

	pRoundStride = 0
	pRoundAxis   = 1
	pRoundWidth  = 2
	pRoundHeight = 3

	pFastLevel       = 0
	pFastChunkBase   = 1
	pFastChunksX     = 2
	pFastCapacity    = 3
	pFastThreshold   = 4
	pFastMaxFeatures = 5

	pScanStride      = 0
	pScanCount       = 1
	pScanMaxFeatures = 2
	pScanCapacity    = 3

	pBriefMaxFeatures = 0
)
