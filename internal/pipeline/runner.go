package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/backmassage/sfmrunner/internal/colmap"
	"github.com/backmassage/sfmrunner/internal/config"
	"github.com/backmassage/sfmrunner/internal/display"
	"github.com/backmassage/sfmrunner/internal/logging"
)

// outputTailLines is how many lines of tool output are echoed on failure.
const outputTailLines = 20

const noModelHint = "no image pairs could be registered"

// step is one gated stage of the pipeline. before runs ahead of the
// invocation, after runs once it exited 0.
type step struct {
	name   string
	build  func(l Layout) colmap.Invocation
	before func(l Layout) error
	after  func(l Layout, res StepResult) error
}

// Runner executes the reconstruction pipeline for one immutable Config.
type Runner struct {
	cfg  config.Config
	exec colmap.Executor
	log  *logging.Logger
}

// New returns a Runner. cfg is copied; later changes by the caller have no
// effect.
func New(cfg config.Config, exec colmap.Executor, log *logging.Logger) *Runner {
	return &Runner{cfg: cfg, exec: exec, log: log}
}

// Run validates the dataset, runs every step in order and reports the
// converted model location. It stops at the first failure and returns it as
// a *Error; stats describe the steps that ran.
func (r *Runner) Run(ctx context.Context) (stats RunStats, err error) {
	start := time.Now()
	defer func() { stats.Total = time.Since(start) }()

	layout, err := NewLayout(r.cfg.DatasetRoot, r.cfg.OutputFormat)
	if err != nil {
		r.log.Error("%v", err)
		return stats, &Error{Kind: KindFilesystem, Path: r.cfg.DatasetRoot, Err: err}
	}
	stats.OutputDir = layout.ModelOutputDir

	if !isDir(layout.ImagesDir) {
		r.log.Error("No 'images' folder found under %s", layout.Root)
		return stats, &Error{Kind: KindPrecondition, Path: layout.ImagesDir}
	}
	stats.Images = r.inventory(layout)

	if err := r.ensureDir(layout.SparseDir); err != nil {
		return stats, err
	}

	for i, s := range r.steps() {
		label := fmt.Sprintf("%d. %s", i+1, s.name)

		if ctx.Err() != nil {
			r.log.Warn("Interrupted before %s", s.name)
			return stats, &Error{Kind: KindInterrupted, Step: s.name, Err: ctx.Err()}
		}

		if s.before != nil {
			if err := s.before(layout); err != nil {
				return stats, err
			}
		}

		res, err := r.RunStep(ctx, s.build(layout), label)
		stats.Steps = append(stats.Steps, res)
		if err != nil {
			return stats, err
		}

		if s.after != nil && !r.cfg.DryRun {
			if err := s.after(layout, res); err != nil {
				return stats, err
			}
		}
	}

	stats.Completed = true
	r.logReport(layout, &stats)
	return stats, nil
}

// steps is the fixed, ordered step table.
func (r *Runner) steps() []step {
	tool := r.cfg.ToolExecutable
	return []step{
		{
			name: "feature extraction",
			build: func(l Layout) colmap.Invocation {
				return colmap.FeatureExtraction(tool, l.DatabaseFile, l.ImagesDir)
			},
		},
		{
			name: "feature matching",
			build: func(l Layout) colmap.Invocation {
				return colmap.ExhaustiveMatching(tool, l.DatabaseFile)
			},
		},
		{
			name: "sparse reconstruction",
			build: func(l Layout) colmap.Invocation {
				return colmap.SparseReconstruction(tool, l.DatabaseFile, l.ImagesDir, l.SparseDir, r.cfg.Mapper)
			},
			after: r.requireModel,
		},
		{
			name: "format conversion",
			before: func(l Layout) error {
				return r.ensureDir(l.ModelOutputDir)
			},
			build: func(l Layout) colmap.Invocation {
				return colmap.ModelConversion(tool, l.ModelInputDir, l.ModelOutputDir, l.Format.ConverterType())
			},
		},
	}
}

// RunStep runs one invocation and logs progress around it. A launch failure
// and a non-zero exit are both returned as a *Error; nothing is retried.
func (r *Runner) RunStep(ctx context.Context, inv colmap.Invocation, name string) (StepResult, error) {
	res := StepResult{Name: name, Invocation: inv, DryRun: r.cfg.DryRun}

	r.log.Info("==================== Step: %s ====================", name)
	r.log.Info("Command: %s", inv)

	if r.cfg.DryRun {
		r.log.Success("[DRY] Would run %s", name)
		return res, nil
	}

	out := r.exec.Run(ctx, inv)
	res.ExitCode = out.ExitCode
	res.Duration = out.Duration
	res.Output = out.Output

	switch {
	case out.OK():
		r.log.Success("%s done in %s", name, display.FormatDuration(out.Duration))
		return res, nil

	case ctx.Err() != nil:
		r.log.Warn("%s interrupted", name)
		return res, &Error{Kind: KindInterrupted, Step: name, Err: out.Err}

	case !out.Started:
		r.log.Error("%s could not start %s: %v", name, inv.Executable, out.Err)
		return res, &Error{Kind: KindLaunch, Step: name, Path: inv.Executable, ExitCode: -1, Err: out.Err}

	default:
		r.log.Error("%s failed! Exit code: %d", name, out.ExitCode)
		hint := colmap.Diagnose(out.Output)
		r.logToolOutput(out.Output)
		if hint != "" {
			r.log.Warn("Hint: %s", hint)
		}
		return res, &Error{Kind: KindProcess, Step: name, ExitCode: out.ExitCode, Hint: hint, Err: out.Err}
	}
}

// requireModel is the mapper postcondition: a zero exit is not enough, the
// first model directory must exist.
func (r *Runner) requireModel(l Layout, res StepResult) error {
	if isDir(l.ModelInputDir) {
		return nil
	}
	hint := colmap.Diagnose(res.Output)
	if hint == "" {
		hint = noModelHint
	}
	r.log.Error("Sparse reconstruction did not create model folder '0'; the images probably could not be matched")
	r.logToolOutput(res.Output)
	return &Error{Kind: KindPostcondition, Step: "sparse reconstruction", Path: l.ModelInputDir, Hint: hint}
}

// ensureDir creates dir and its parents. Existing directories are fine.
func (r *Runner) ensureDir(dir string) error {
	if r.cfg.DryRun {
		r.log.Debug("[DRY] Would create %s", dir)
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.log.Error("Cannot create directory: %s", dir)
		return &Error{Kind: KindFilesystem, Path: dir, Err: err}
	}
	return nil
}

// inventory counts input images and warns about empty or very large sets.
// A failure to list them is only logged; the extractor is the authority.
func (r *Runner) inventory(l Layout) int {
	images, err := DiscoverImages(l.ImagesDir)
	if err != nil {
		r.log.Warn("Cannot list images in %s: %v", l.ImagesDir, err)
		return 0
	}
	n := len(images)
	switch {
	case n == 0:
		r.log.Warn("No image files found in %s", l.ImagesDir)
	case n > largeImageSet:
		r.log.Warn("%d images: exhaustive matching grows quadratically and may take very long", n)
	default:
		r.log.Info("Images: %d", n)
	}
	return n
}

// logToolOutput echoes the tail of the tool's output when it was not already
// streamed to the terminal. The JSON log always receives it.
func (r *Runner) logToolOutput(output string) {
	lines := colmap.LastLines(output, outputTailLines)
	if len(lines) == 0 {
		return
	}
	r.log.Structured().Info("tool.output", "tail", strings.Join(lines, "\n"))
	if r.cfg.TeeToolOutput {
		return
	}
	r.log.Error("Last tool output:")
	for _, l := range lines {
		r.log.Error("  %s", l)
	}
}

func (r *Runner) logReport(l Layout, stats *RunStats) {
	r.log.Blank()
	if r.cfg.DryRun {
		r.log.Success("Dry run complete; nothing was executed")
		r.log.Info("Model would be saved in: %s", l.ModelOutputDir)
		return
	}

	r.log.Success("All steps complete!")
	r.log.Info("Final model saved in: %s", l.ModelOutputDir)
	r.log.Info("  Contains: %s", strings.Join(l.Format.ModelFiles(), ", "))

	for _, p := range l.ModelFiles() {
		if _, err := os.Stat(p); err != nil {
			r.log.Warn("  Expected file missing: %s", filepath.Base(p))
		}
	}

	for _, s := range stats.Steps {
		r.log.Info("  %-28s %s", s.Name, display.FormatDuration(s.Duration))
	}
	if fi, err := os.Stat(l.DatabaseFile); err == nil {
		r.log.Info("  Database: %s", display.FormatBytes(fi.Size()))
	}
	r.log.Info("  Total: %s", display.FormatDuration(stats.StepDuration()))
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
