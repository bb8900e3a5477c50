package orb

import "fmt"

// Stage identifies one step of a pipeline run.
type Stage int

// Stages in recording order. Which of them a run records depends on the
// configured strategies.
const (
	StageReset Stage = iota
	StageGrayscale
	StagePyramidLevel
	StageBlurH
	StageBlurV
	StageIntegralSeed
	StageIntegralRound
	StageBoxBlur
	StageCornerDetect
	StageCounterCopy
	StageCompactionRound
	StageFinalize
	StageScatter
	StageClamp
	StageDescriptors
	StageReadback
	StageDone
)

var stageNames = [...]string{
	StageReset:           "Reset",
	StageGrayscale:       "Grayscale",
	StagePyramidLevel:    "PyramidLevel",
	StageBlurH:           "BlurH",
	StageBlurV:           "BlurV",
	StageIntegralSeed:    "IntegralSeed",
	StageIntegralRound:   "IntegralRound",
	StageBoxBlur:         "BoxBlur",
	StageCornerDetect:    "CornerDetect",
	StageCounterCopy:     "CounterCopy",
	StageCompactionRound: "CompactionRound",
	StageFinalize:        "Finalize",
	StageScatter:         "Scatter",
	StageClamp:           "Clamp",
	StageDescriptors:     "Descriptors",
	StageReadback:        "Readback",
	StageDone:            "Done",
}

// String returns the string representation of Stage.
func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// StageRecord describes one recorded step of the last run.
type StageRecord struct {
	Stage Stage

	// Index is the pyramid level for per-level stages, the round for
	// IntegralRound and CompactionRound, and 0 otherwise.
	Index int

	// Workgroups is the number of dispatched workgroups, or 0 for copies
	// and draws.
	Workgroups uint32
}
