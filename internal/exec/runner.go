// Package exec runs the external programs behind remote commands and
// captures a bounded amount of their output.
package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a single program run
	DefaultTimeout = 15 * time.Second
	// MaxOutputSize caps captured output (64KB)
	MaxOutputSize = 64 * 1024
)

// Invocation is one program with its arguments.
type Invocation struct {
	Program string
	Args    []string
	// Detach starts the program and returns without waiting, for
	// interactive applications that stay open.
	Detach bool
}

func (i Invocation) String() string {
	if len(i.Args) == 0 {
		return i.Program
	}
	return i.Program + " " + strings.Join(i.Args, " ")
}

// Result holds the outcome of one run
type Result struct {
	Invocation Invocation
	// ExitCode is -1 when the program never ran or was killed
	ExitCode int
	Output   string
	Duration time.Duration
	Err      error
	TimedOut bool
}

// OK returns true if the program exited 0 (or was started detached)
func (r *Result) OK() bool {
	return r.ExitCode == 0 && r.Err == nil
}

func (r *Result) String() string {
	status := "OK"
	switch {
	case r.TimedOut:
		status = "TIMEOUT"
	case !r.OK():
		status = fmt.Sprintf("FAILED (exit %d)", r.ExitCode)
	}
	return fmt.Sprintf("%s [%s] (%s)", r.Invocation, status, r.Duration.Round(time.Millisecond))
}

// Runner executes invocations with a timeout and output capture
type Runner struct {
	Timeout time.Duration
	// Env is appended to the inherited environment
	Env []string
	Dir string
}

// NewRunner creates a Runner with DefaultTimeout
func NewRunner() *Runner {
	return &Runner{Timeout: DefaultTimeout}
}

// Run executes inv. Detached invocations return as soon as the process has started.
func (r *Runner) Run(ctx context.Context, inv Invocation) *Result {
	if inv.Detach {
		return r.start(inv)
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res := &Result{Invocation: inv}

	cmd := r.command(ctx, inv)
	var out bytes.Buffer
	w := &limitedWriter{w: &out, limit: MaxOutputSize}
	cmd.Stdout = w
	cmd.Stderr = w

	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Output = strings.TrimSpace(out.String())

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
		res.ExitCode = -1
		res.Err = fmt.Errorf("%s timed out after %s", inv.Program, timeout)
	case err != nil:
		res.Err = err
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
	}
	return res
}

func (r *Runner) start(inv Invocation) *Result {
	start := time.Now()
	res := &Result{Invocation: inv}

	// not tied to a context: the application outlives the request
	cmd := r.command(context.Background(), inv)
	if err := cmd.Start(); err != nil {
		res.Err = err
		res.ExitCode = -1
		return res
	}
	go cmd.Wait()
	res.Duration = time.Since(start)
	return res
}

func (r *Runner) command(ctx context.Context, inv Invocation) *exec.Cmd {
	cmd := exec.CommandContext(ctx, inv.Program, inv.Args...)
	// children that inherit stdout must not keep Run waiting past the kill
	cmd.WaitDelay = time.Second
	if r.Dir != "" {
		cmd.Dir = r.Dir
	}
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}
	return cmd
}

// Available reports whether program can be found in PATH
func Available(program string) bool {
	_, err := exec.LookPath(program)
	return err == nil
}

// limitedWriter discards output past limit while reporting full writes
type limitedWriter struct {
	w       *bytes.Buffer
	limit   int
	written int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.written >= lw.limit {
		return len(p), nil
	}
	keep := p
	if remaining := lw.limit - lw.written; len(keep) > remaining {
		keep = keep[:remaining]
	}
	n, err := lw.w.Write(keep)
	lw.written += n
	return len(p), err
}
