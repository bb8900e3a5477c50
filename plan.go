package orb

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/orb/gpucore"
	"github.com/gogpu/orb/internal/compact"
	"github.com/gogpu/orb/internal/logger"
	"github.com/gogpu/orb/kernels"
	"github.com/gogpu/orb/registry"
)

// Resource labels. Buffers shared with the compactor use the compact
// labels.
const (
	labelInput          = "input"
	labelPyramid        = "pyramid"
	labelBlurTmp        = "blur_tmp"
	labelPyramidBlurred = "pyramid_blurred"
	labelSampler        = "linear"
	labelIntegralA      = "integral_a"
	labelIntegralB      = "integral_b"
	labelFeatureCounter = "feature_counter"
	labelDescriptors    = "descriptors"
	labelZeros          = "zeros"
)

const imageFormat = gputypes.TextureFormatRGBA8Unorm

const storageUsage = gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst

func levelLabel(image string, level int) string { return fmt.Sprintf("%s/level%d", image, level) }

func perLevel(set string, level int) string { return fmt.Sprintf("%s/%d", set, level) }

func ceilDiv(a, b uint32) uint32 { return (a + b - 1) / b }

// chunkGrid returns the chunk grid of a level.
func chunkGrid(l LevelSize) (x, y uint32) {
	return ceilDiv(l.Width, kernels.ChunkSize), ceilDiv(l.Height, kernels.ChunkSize)
}

type stepKind int

const (
	stepCopy stepKind = iota
	stepDraw
	stepDispatch
	stepCompact
	stepReadback
)

// step is one entry of the precomputed plan. Only the fields of its kind
// are set.
type step struct {
	stage Stage
	index int
	kind  stepKind
	label string

	pipe   *registry.Pipeline
	sets   []*registry.BindingSet
	params []byte
	groups [3]uint32
	target *registry.ImageView

	src, dst *registry.Buffer
	size     uint64
}

func (s *step) workgroups() uint32 {
	if s.kind != stepDispatch {
		return 0
	}
	return s.groups[0] * s.groups[1] * s.groups[2]
}

// record replays the plan into enc.
func (p *Pipeline) record(enc gpucore.CommandEncoder) error {
	for i := range p.plan {
		s := &p.plan[i]
		switch s.kind {
		case stepCopy:
			enc.CopyBufferToBuffer(s.src.ID, 0, s.dst.ID, 0, s.size)
		case stepDraw:
			pass := enc.BeginRenderPass(&gpucore.RenderPassDesc{Label: s.label, Target: s.target.ID})
			pass.SetPipeline(s.pipe.Render)
			for g, set := range s.sets {
				pass.SetBindGroup(uint32(g), set.ID)
			}
			if len(s.params) > 0 {
				pass.SetParams(s.params)
			}
			pass.Draw(3, 1, 0, 0)
			pass.End()
		case stepDispatch:
			pass := enc.BeginComputePass(s.label)
			pass.SetPipeline(s.pipe.Compute)
			for g, set := range s.sets {
				pass.SetBindGroup(uint32(g), set.ID)
			}
			if len(s.params) > 0 {
				pass.SetParams(s.params)
			}
			pass.Dispatch(s.groups[0], s.groups[1], s.groups[2])
			pass.End()
		case stepCompact:
			p.comp.Encode(enc, func(cs compact.Step, index int, groups uint32) {
				p.observe(compactStage(cs), index, groups)
			})
			continue
		case stepReadback:
			if err := p.rd.Record(enc, compact.FeatureTotal); err != nil {
				return err
			}
		}
		p.observe(s.stage, s.index, s.workgroups())
	}
	return nil
}

func (p *Pipeline) observe(stage Stage, index int, groups uint32) {
	p.trace = append(p.trace, StageRecord{Stage: stage, Index: index, Workgroups: groups})
	p.cfg.Metrics.Dispatch(stage.String())
	logger.L().Debug("orb: record", "stage", stage, "index", index, "workgroups", groups)
}

// compactStage maps compaction steps onto stages. The parity copy feeds
// the finalize pass and is reported with it.
func compactStage(s compact.Step) Stage {
	switch s {
	case compact.StepCounterCopy:
		return StageCounterCopy
	case compact.StepRound:
		return StageCompactionRound
	case compact.StepScatter:
		return StageScatter
	default:
		return StageFinalize
	}
}

// =============================================================================
// Construction
// =============================================================================

func (p *Pipeline) build() error {
	steps := []func() error{
		p.loadPrograms,
		p.createImages,
		p.createBuffers,
		p.planReset,
	}
	if p.cfg.PyramidStrategy == BlitBlur {
		steps = append(steps, p.planBlitPyramid, p.planBlitBlur)
	} else {
		steps = append(steps, p.planComputePyramid, p.planIntegralBlur)
	}
	steps = append(steps, p.planCorners)
	if p.cfg.Descriptors {
		steps = append(steps, p.planDescriptors)
	}
	steps = append(steps, p.planReadback)

	for _, fn := range steps {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) loadPrograms() error {
	for _, name := range kernels.Programs() {
		src, err := kernels.Source(name)
		if err != nil {
			return err
		}
		if _, err := p.reg.LoadProgram(name, src, kernels.EntryPoints(name)...); err != nil {
			return err
		}
	}
	return nil
}

type imageSpec struct {
	label string
	mips  uint32
	usage gputypes.TextureUsage
}

type bufferSpec struct {
	label string
	size  uint64
}

func (p *Pipeline) createImages() error {
	sampled := gputypes.TextureUsageTextureBinding
	target := sampled | gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageStorageBinding
	depth := uint32(p.cfg.PyramidDepth)

	images := []imageSpec{
		{labelInput, 1, sampled | gputypes.TextureUsageCopyDst},
		{labelPyramid, depth, target},
		{labelPyramidBlurred, depth, target},
	}
	if p.cfg.PyramidStrategy == BlitBlur {
		images = append(images, imageSpec{labelBlurTmp, depth, sampled | gputypes.TextureUsageRenderAttachment})
	}

	for _, img := range images {
		if _, err := p.reg.CreateImage(img.label, p.cfg.Width, p.cfg.Height, img.mips, imageFormat, img.usage); err != nil {
			return err
		}
		if img.label == labelInput {
			continue
		}
		for i := range int(img.mips) {
			if _, err := p.reg.CreateImageView(levelLabel(img.label, i), img.label, uint32(i), 1); err != nil {
				return err
			}
		}
	}
	_, err := p.reg.CreateSampler(labelSampler, registry.LinearClamp)
	return err
}

// resetTargets lists the buffers cleared at the start of every run.
func (p *Pipeline) resetTargets() []string {
	labels := []string{compact.FeatureTotal, compact.Features}
	if p.cfg.CompactionStrategy == ChunkedScan {
		labels = append(labels, compact.ChunkCounters)
	} else {
		labels = append(labels, labelFeatureCounter)
	}
	if p.cfg.Descriptors {
		labels = append(labels, labelDescriptors)
	}
	return labels
}

func (p *Pipeline) createBuffers() error {
	maxF := uint64(p.cfg.MaxFeatures)
	buffers := []bufferSpec{
		{compact.Features, maxF * kernels.FeatureSize},
		{compact.FeatureTotal, 4},
	}
	if p.cfg.CompactionStrategy == ChunkedScan {
		n := uint64(p.chunks)
		buffers = append(buffers,
			bufferSpec{compact.ChunkCounters, n * 4},
			bufferSpec{compact.ChunkCorners, n * uint64(p.cfg.ChunkCapacity) * kernels.FeatureSize},
		)
	} else {
		buffers = append(buffers, bufferSpec{labelFeatureCounter, 4})
	}
	if p.cfg.Descriptors {
		buffers = append(buffers, bufferSpec{labelDescriptors, maxF * kernels.DescriptorSize})
	}

	var zeros uint64
	for _, b := range buffers {
		if _, err := p.reg.CreateBuffer(b.label, b.size, storageUsage); err != nil {
			return err
		}
		zeros = max(zeros, b.size)
	}
	if _, err := p.reg.CreateBuffer(labelZeros, zeros,
		gputypes.BufferUsageCopySrc|gputypes.BufferUsageCopyDst); err != nil {
		return err
	}
	if err := p.reg.WriteBuffer(labelZeros, 0, make([]byte, zeros)); err != nil {
		return err
	}

	var err error
	p.features, err = p.reg.Buffer(compact.Features)
	return err
}

func (p *Pipeline) planReset() error {
	zeros, err := p.reg.Buffer(labelZeros)
	if err != nil {
		return err
	}
	for _, label := range p.resetTargets() {
		dst, err := p.reg.Buffer(label)
		if err != nil {
			return err
		}
		p.plan = append(p.plan, step{
			stage: StageReset,
			kind:  stepCopy,
			label: "reset " + label,
			src:   zeros,
			dst:   dst,
			size:  dst.Size,
		})
	}
	return nil
}

// sets builds binding sets and returns them in order.
func (p *Pipeline) sets(labels ...string) ([]*registry.BindingSet, error) {
	out := make([]*registry.BindingSet, len(labels))
	for i, l := range labels {
		s, err := p.reg.BindingSet(l)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func (p *Pipeline) view(image string, level int) (*registry.ImageView, error) {
	return p.reg.ImageView(levelLabel(image, level))
}

func (p *Pipeline) addDraw(stage Stage, level int, pipe *registry.Pipeline, target string, sets ...string) error {
	bound, err := p.sets(sets...)
	if err != nil {
		return err
	}
	view, err := p.view(target, level)
	if err != nil {
		return err
	}
	p.plan = append(p.plan, step{
		stage:  stage,
		index:  level,
		kind:   stepDraw,
		label:  fmt.Sprintf("%s %d", stage, level),
		pipe:   pipe,
		sets:   bound,
		target: view,
	})
	return nil
}

func (p *Pipeline) addDispatch(stage Stage, index int, pipe *registry.Pipeline, params []byte, groups [3]uint32, sets ...string) error {
	bound, err := p.sets(sets...)
	if err != nil {
		return err
	}
	p.plan = append(p.plan, step{
		stage:  stage,
		index:  index,
		kind:   stepDispatch,
		label:  fmt.Sprintf("%s %d", stage, index),
		pipe:   pipe,
		sets:   bound,
		params: params,
		groups: groups,
	})
	return nil
}

func tileGroups(l LevelSize) [3]uint32 {
	x, y := chunkGrid(l)
	return [3]uint32{x, y, 1}
}

// planBlitPyramid draws grayscale into level 0 and each level i from
// level i-1 through the linear sampler.
func (p *Pipeline) planBlitPyramid() error {
	sampler := registry.SamplerItem{Label: labelSampler}
	colorTargets := []gputypes.TextureFormat{imageFormat}

	if _, err := p.reg.BuildBindingSet("grayscale", registry.SampledImage{Label: labelInput}, sampler); err != nil {
		return err
	}
	gray, err := p.reg.BuildDrawPipeline(registry.DrawPipelineDesc{
		Label:         "grayscale",
		Program:       kernels.Grayscale,
		VertexEntry:   kernels.VSMain,
		FragmentEntry: kernels.FSGrayscale,
		BindingSets:   []string{"grayscale"},
		ColorTargets:  colorTargets,
	})
	if err != nil {
		return err
	}
	if err := p.addDraw(StageGrayscale, 0, gray, labelPyramid, "grayscale"); err != nil {
		return err
	}

	var down *registry.Pipeline
	for i := 1; i < len(p.levels); i++ {
		set := perLevel("downsample", i)
		if _, err := p.reg.BuildBindingSet(set,
			registry.ImageViewItem{Label: levelLabel(labelPyramid, i-1)}, sampler); err != nil {
			return err
		}
		if down == nil {
			if down, err = p.reg.BuildDrawPipeline(registry.DrawPipelineDesc{
				Label:         "downsample",
				Program:       kernels.Pyramid,
				VertexEntry:   kernels.VSMain,
				FragmentEntry: kernels.FSDownsample,
				BindingSets:   []string{set},
				ColorTargets:  colorTargets,
			}); err != nil {
				return err
			}
		}
		if err := p.addDraw(StagePyramidLevel, i, down, labelPyramid, set); err != nil {
			return err
		}
	}
	return nil
}

// planBlitBlur smooths every level with a horizontal pass into blur_tmp
// and a vertical pass into pyramid_blurred.
func (p *Pipeline) planBlitBlur() error {
	sampler := registry.SamplerItem{Label: labelSampler}
	var blurH, blurV *registry.Pipeline
	var err error
	for i := range p.levels {
		h, v := perLevel("blur_h", i), perLevel("blur_v", i)
		if _, err := p.reg.BuildBindingSet(h, registry.ImageViewItem{Label: levelLabel(labelPyramid, i)}, sampler); err != nil {
			return err
		}
		if _, err := p.reg.BuildBindingSet(v, registry.ImageViewItem{Label: levelLabel(labelBlurTmp, i)}, sampler); err != nil {
			return err
		}
		if blurH == nil {
			if blurH, err = p.blurPipeline("blur_h", kernels.FSBlurH, h); err != nil {
				return err
			}
			if blurV, err = p.blurPipeline("blur_v", kernels.FSBlurV, v); err != nil {
				return err
			}
		}
		if err := p.addDraw(StageBlurH, i, blurH, labelBlurTmp, h); err != nil {
			return err
		}
		if err := p.addDraw(StageBlurV, i, blurV, labelPyramidBlurred, v); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) blurPipeline(label, entry, set string) (*registry.Pipeline, error) {
	return p.reg.BuildDrawPipeline(registry.DrawPipelineDesc{
		Label:         label,
		Program:       kernels.Pyramid,
		VertexEntry:   kernels.VSMain,
		FragmentEntry: entry,
		BindingSets:   []string{set},
		ColorTargets:  []gputypes.TextureFormat{imageFormat},
	})
}

// planComputePyramid converts to grayscale and downsamples in compute,
// writing each level through a storage view.
func (p *Pipeline) planComputePyramid() error {
	if _, err := p.reg.BuildBindingSet("compute_grayscale",
		registry.SampledImage{Label: labelInput},
		registry.StorageImage{Label: levelLabel(labelPyramid, 0)},
	); err != nil {
		return err
	}
	gray, err := p.reg.BuildComputePipeline("compute_grayscale", kernels.Grayscale, kernels.CSGrayscale,
		[]string{"compute_grayscale"}, 0)
	if err != nil {
		return err
	}
	if err := p.addDispatch(StageGrayscale, 0, gray, nil, tileGroups(p.levels[0]), "compute_grayscale"); err != nil {
		return err
	}

	var down *registry.Pipeline
	for i := 1; i < len(p.levels); i++ {
		set := perLevel("compute_downsample", i)
		if _, err := p.reg.BuildBindingSet(set,
			registry.ImageViewItem{Label: levelLabel(labelPyramid, i-1)},
			registry.StorageImage{Label: levelLabel(labelPyramid, i)},
		); err != nil {
			return err
		}
		if down == nil {
			if down, err = p.reg.BuildComputePipeline("compute_downsample", kernels.Pyramid, kernels.CSDownsample,
				[]string{set}, 0); err != nil {
				return err
			}
		}
		if err := p.addDispatch(StagePyramidLevel, i, down, nil, tileGroups(p.levels[i]), set); err != nil {
			return err
		}
	}
	return nil
}

// planIntegralBlur builds a summed-area table per level by ping-ponging
// between two buffers, rows first then columns, and box-filters the level
// into pyramid_blurred from whichever buffer holds the final table.
func (p *Pipeline) planIntegralBlur() error {
	size := uint64(p.cfg.Width) * uint64(p.cfg.Height) * 4
	for _, label := range []string{labelIntegralA, labelIntegralB} {
		if _, err := p.reg.CreateBuffer(label, size, storageUsage); err != nil {
			return err
		}
	}

	pairs := []struct {
		label   string
		in, out string
	}{
		{"integral_image", labelIntegralA, labelIntegralB},
		{"integral_image_2", labelIntegralB, labelIntegralA},
	}
	for _, pr := range pairs {
		if _, err := p.reg.BuildBindingSet(pr.label,
			registry.StorageBuffer{Label: pr.in, MinSize: size, ReadOnly: true},
			registry.StorageBuffer{Label: pr.out, MinSize: size},
		); err != nil {
			return err
		}
	}
	if _, err := p.reg.BuildBindingSet("integral_blur",
		registry.StorageBuffer{Label: labelIntegralA, MinSize: size, ReadOnly: true}); err != nil {
		return err
	}
	if _, err := p.reg.BuildBindingSet("integral_blur_2",
		registry.StorageBuffer{Label: labelIntegralB, MinSize: size, ReadOnly: true}); err != nil {
		return err
	}
	for i := range p.levels {
		if _, err := p.reg.BuildBindingSet(perLevel("integral_seed", i),
			registry.ImageViewItem{Label: levelLabel(labelPyramid, i)},
			registry.StorageBuffer{Label: labelIntegralA, MinSize: size},
		); err != nil {
			return err
		}
		if _, err := p.reg.BuildBindingSet(perLevel("box_blur", i),
			registry.StorageImage{Label: levelLabel(labelPyramidBlurred, i)}); err != nil {
			return err
		}
	}

	seed, err := p.reg.BuildComputePipeline("integral_seed", kernels.Integral, kernels.IntegralSeed,
		[]string{perLevel("integral_seed", 0)}, kernels.ImageParamsSize)
	if err != nil {
		return err
	}
	round, err := p.reg.BuildComputePipeline("integral_round", kernels.Integral, kernels.IntegralRound,
		[]string{"integral_image"}, kernels.RoundParamsSize)
	if err != nil {
		return err
	}
	box, err := p.reg.BuildComputePipeline("box_blur", kernels.Integral, kernels.BoxBlur,
		[]string{"integral_blur", perLevel("box_blur", 0)}, kernels.ImageParamsSize)
	if err != nil {
		return err
	}

	for i, l := range p.levels {
		groups := tileGroups(l)
		img := kernels.ImageParams{Width: l.Width, Height: l.Height}.Bytes()
		if err := p.addDispatch(StageIntegralSeed, i, seed, img, groups, perLevel("integral_seed", i)); err != nil {
			return err
		}

		r := 0
		for axis, extent := range [2]uint32{l.Width, l.Height} {
			for stride := uint32(1); stride < extent; stride <<= 1 {
				set := "integral_image"
				if r%2 == 1 {
					set = "integral_image_2"
				}
				params := kernels.RoundParams{Stride: stride, Axis: uint32(axis), Width: l.Width, Height: l.Height}.Bytes()
				if err := p.addDispatch(StageIntegralRound, r, round, params, groups, set); err != nil {
					return err
				}
				r++
			}
		}

		final := "integral_blur"
		if r%2 == 1 {
			final = "integral_blur_2"
		}
		if err := p.addDispatch(StageBoxBlur, i, box, img, groups, final, perLevel("box_blur", i)); err != nil {
			return err
		}
	}
	return nil
}

// planCorners records corner detection on every unsmoothed level followed
// by the compaction of the configured strategy.
func (p *Pipeline) planCorners() error {
	for i := range p.levels {
		if _, err := p.reg.BuildBindingSet(perLevel("fast_src", i),
			registry.ImageViewItem{Label: levelLabel(labelPyramid, i)}); err != nil {
			return err
		}
	}

	out, entry := "fast_chunked_out", kernels.FastCornersChunked
	if p.cfg.CompactionStrategy == ChunkedScan {
		cornersSize := uint64(p.chunks) * uint64(p.cfg.ChunkCapacity) * kernels.FeatureSize
		if _, err := p.reg.BuildBindingSet(out,
			registry.StorageBuffer{Label: compact.ChunkCounters, MinSize: uint64(p.chunks) * 4},
			registry.StorageBuffer{Label: compact.ChunkCorners, MinSize: cornersSize},
		); err != nil {
			return err
		}
	} else {
		out, entry = "fast_atomic_out", kernels.FastCornersAtomic
		if _, err := p.reg.BuildBindingSet(out,
			registry.StorageBuffer{Label: compact.Features, MinSize: p.features.Size},
			registry.StorageBuffer{Label: labelFeatureCounter, MinSize: 4},
		); err != nil {
			return err
		}
	}
	fast, err := p.reg.BuildComputePipeline("fast_corners", kernels.Fast, entry,
		[]string{perLevel("fast_src", 0), out}, kernels.FastParamsSize)
	if err != nil {
		return err
	}

	var base uint32
	for i, l := range p.levels {
		cx, cy := chunkGrid(l)
		params := p.fastParams(i, base, cx)
		if err := p.addDispatch(StageCornerDetect, i, fast, params, [3]uint32{cx, cy, 1},
			perLevel("fast_src", i), out); err != nil {
			return err
		}
		base += cx * cy
	}

	if p.cfg.CompactionStrategy == SingleAtomic {
		return p.planClamp()
	}
	p.comp, err = compact.New(p.reg, compact.Config{
		Chunks:      p.chunks,
		Capacity:    p.cfg.ChunkCapacity,
		MaxFeatures: p.cfg.MaxFeatures,
	})
	if err != nil {
		return err
	}
	p.plan = append(p.plan, step{kind: stepCompact, label: "compaction"})
	return nil
}

func (p *Pipeline) fastParams(level int, base, chunksX uint32) []byte {
	return kernels.FastParams{
		Level:       uint32(level),
		ChunkBase:   base,
		ChunksX:     chunksX,
		Capacity:    p.cfg.ChunkCapacity,
		Threshold:   p.cfg.CornerThreshold,
		MaxFeatures: p.cfg.MaxFeatures,
	}.Bytes()
}

func (p *Pipeline) planClamp() error {
	if _, err := p.reg.BuildBindingSet("clamp_count",
		registry.StorageBuffer{Label: labelFeatureCounter, MinSize: 4, ReadOnly: true},
		registry.StorageBuffer{Label: compact.FeatureTotal, MinSize: 4},
	); err != nil {
		return err
	}
	clamp, err := p.reg.BuildComputePipeline("clamp_count", kernels.Fast, kernels.ClampCount,
		[]string{"clamp_count"}, kernels.FastParamsSize)
	if err != nil {
		return err
	}
	return p.addDispatch(StageClamp, 0, clamp, p.fastParams(0, 0, 0), [3]uint32{1, 1, 1}, "clamp_count")
}

// planDescriptors computes one descriptor per output slot on the smoothed
// pyramid through its aggregate view.
func (p *Pipeline) planDescriptors() error {
	if _, err := p.reg.BuildBindingSet("brief",
		registry.SampledImage{Label: labelPyramidBlurred},
		registry.StorageBuffer{Label: compact.Features, MinSize: p.features.Size, ReadOnly: true},
		registry.StorageBuffer{Label: compact.FeatureTotal, MinSize: 4, ReadOnly: true},
		registry.StorageBuffer{Label: labelDescriptors, MinSize: uint64(p.cfg.MaxFeatures) * kernels.DescriptorSize},
	); err != nil {
		return err
	}
	brief, err := p.reg.BuildComputePipeline("brief_descriptors", kernels.Brief, kernels.BriefDescriptors,
		[]string{"brief"}, kernels.BriefParamsSize)
	if err != nil {
		return err
	}
	params := kernels.BriefParams{MaxFeatures: p.cfg.MaxFeatures}.Bytes()
	gx, gy := compact.FoldGrid(ceilDiv(p.cfg.MaxFeatures, kernels.LinearWorkgroup))
	return p.addDispatch(StageDescriptors, 0, brief, params, [3]uint32{gx, gy, 1}, "brief")
}

func (p *Pipeline) planReadback() error {
	for _, label := range []string{compact.FeatureTotal, compact.Features} {
		if err := p.rd.Prepare(label); err != nil {
			return err
		}
	}
	if p.cfg.Descriptors {
		if err := p.rd.Prepare(labelDescriptors); err != nil {
			return err
		}
	}
	p.plan = append(p.plan, step{stage: StageReadback, kind: stepReadback, label: "readback"})
	return nil
}
