package colmap

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"time"

	"github.com/backmassage/sfmrunner/internal/logging"
)

const (
	// defaultTailBytes bounds how much tool output is kept for diagnostics.
	defaultTailBytes = 64 << 10
	// waitDelay caps how long Wait blocks on output pipes after the child is
	// killed, in case a grandchild still holds them open.
	waitDelay = 5 * time.Second
)

// Result is the outcome of one invocation.
type Result struct {
	// Started is false when the process could not be launched at all
	// (executable missing, permission denied, ...).
	Started bool
	// ExitCode is the process exit status, or -1 when it never started or
	// was killed by a signal.
	ExitCode int
	// Output is the tail of the combined stdout/stderr stream.
	Output   string
	Duration time.Duration
	// Err is nil on success. On failure it is the launch error, the
	// *exec.ExitError, or the context error when the run was interrupted.
	Err error
}

// OK reports whether the process ran and exited 0.
func (r Result) OK() bool { return r.Err == nil }

// Executor runs invocations. The pipeline depends on this interface so the
// step logic can be driven by fakes in tests.
type Executor interface {
	Run(ctx context.Context, inv Invocation) Result
}

// ProcessExecutor runs invocations as child processes. When Stdout/Stderr
// are set the tool's own output is streamed there in real time; it is always
// captured into a bounded tail for diagnosis.
type ProcessExecutor struct {
	Stdout    io.Writer
	Stderr    io.Writer
	TailBytes int
	Dir       string
}

// NewProcessExecutor returns an executor that tees to stdout/stderr when
// they are non-nil.
func NewProcessExecutor(stdout, stderr io.Writer) *ProcessExecutor {
	return &ProcessExecutor{Stdout: stdout, Stderr: stderr, TailBytes: defaultTailBytes}
}

// Run starts inv and blocks until it exits or ctx is cancelled, in which
// case the child is killed.
func (e *ProcessExecutor) Run(ctx context.Context, inv Invocation) Result {
	log := logging.FromContext(ctx)

	limit := e.TailBytes
	if limit <= 0 {
		limit = defaultTailBytes
	}
	tail := newTailBuffer(limit)

	cmd := exec.CommandContext(ctx, inv.Executable, inv.Args...)
	cmd.Dir = e.Dir
	cmd.WaitDelay = waitDelay
	cmd.Stdout = teeTo(tail, e.Stdout)
	cmd.Stderr = teeTo(tail, e.Stderr)

	log.Debug("exec.start", "subcommand", inv.Subcommand(), "argv", inv.Argv())
	start := time.Now()
	err := cmd.Run()
	res := Result{
		Output:   tail.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Started = true
	case errors.As(err, &exitErr):
		res.Started = true
		res.ExitCode = exitErr.ExitCode()
		res.Err = err
	default:
		res.ExitCode = -1
		res.Err = err
	}
	if err != nil && ctx.Err() != nil {
		res.Err = ctx.Err()
	}

	log.Debug("exec.done",
		"subcommand", inv.Subcommand(),
		"started", res.Started,
		"exit_code", res.ExitCode,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res
}

func teeTo(tail io.Writer, w io.Writer) io.Writer {
	if w == nil {
		return tail
	}
	return io.MultiWriter(tail, w)
}
