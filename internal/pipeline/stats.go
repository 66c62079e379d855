package pipeline

import (
	"time"

	"github.com/backmassage/sfmrunner/internal/colmap"
)

// StepResult is the outcome of one step. It only lives until the runner
// decides whether to continue.
type StepResult struct {
	Name       string
	Invocation colmap.Invocation
	ExitCode   int
	Duration   time.Duration
	Output     string // Tail of the tool's combined output.
	DryRun     bool
}

// RunStats summarizes a pipeline run.
type RunStats struct {
	Steps     []StepResult
	Images    int
	OutputDir string
	Total     time.Duration
	Completed bool
}

// StepDuration returns the summed duration of the executed steps.
func (s *RunStats) StepDuration() time.Duration {
	var d time.Duration
	for _, st := range s.Steps {
		d += st.Duration
	}
	return d
}
