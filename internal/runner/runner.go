// Package runner executes measurement commands through the host shell.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"time"
)

// ErrTimeout is reported when a command does not finish within its budget.
var ErrTimeout = errors.New("command timed out")

const defaultWaitDelay = time.Second

// Result is the outcome of one command invocation.
type Result struct {
	Stdout   string
	Stderr   string
	Err      error
	Duration time.Duration
}

// Runner executes a single shell command. Implementations must return once
// ctx is done.
type Runner interface {
	Run(ctx context.Context, command string) Result
}

// ExecError describes a command that could not be started or exited non-zero.
type ExecError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("command %q exited with status %d: %v", e.Command, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("command %q failed: %v", e.Command, e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// Shell runs commands with sh -c, or cmd /C on Windows.
type Shell struct {
	// GOOS selects the shell; empty means runtime.GOOS.
	GOOS string
	// WaitDelay bounds how long Run waits for I/O after the process is
	// killed. Zero means one second.
	WaitDelay time.Duration
}

// NewShell returns a Shell for the given platform.
func NewShell(goos string) *Shell {
	return &Shell{GOOS: goos}
}

// Run executes command and captures both output streams.
func (s *Shell) Run(ctx context.Context, command string) Result {
	start := time.Now()

	name, args := s.shell(command)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = s.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = defaultWaitDelay
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err == nil {
		return res
	}

	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
		res.Err = fmt.Errorf("%w after %s: %q", ErrTimeout, res.Duration.Round(time.Millisecond), command)
		return res
	}

	execErr := &ExecError{Command: command, Stderr: res.Stderr, Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		execErr.ExitCode = exitErr.ExitCode()
	}
	res.Err = execErr
	return res
}

func (s *Shell) shell(command string) (string, []string) {
	goos := s.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	if goos == "windows" {
		return "cmd", []string{"/C", command}
	}
	return "sh", []string{"-c", command}
}

// Func adapts a plain function to the Runner interface.
type Func func(ctx context.Context, command string) Result

// Run calls f.
func (f Func) Run(ctx context.Context, command string) Result {
	return f(ctx, command)
}
