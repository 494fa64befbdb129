package harvest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// Runner executes a command and returns its combined output
type Runner interface {
	Run(ctx context.Context, path string, args []string) (out []byte, exitCode int, err error)
}

// ExecRunner runs real processes with a hard timeout and a capped output buffer
type ExecRunner struct {
	Timeout        time.Duration
	MaxOutputBytes int
}

// helpEnv keeps tools from paging, colouring or localizing their help
var helpEnv = []string{
	"LANG=C",
	"LC_ALL=C",
	"COLUMNS=120",
	"NO_COLOR=1",
	"PAGER=cat",
	"MANPAGER=cat",
	"GIT_PAGER=cat",
	"TERM=dumb",
}

// NewExecRunner creates an ExecRunner
func NewExecRunner(timeout time.Duration, maxOutputBytes int) *ExecRunner {
	return &ExecRunner{Timeout: timeout, MaxOutputBytes: maxOutputBytes}
}

// Run implements Runner
func (r *ExecRunner) Run(ctx context.Context, path string, args []string) ([]byte, int, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = append(os.Environ(), helpEnv...)
	cmd.Stdin = nil // reads from os.DevNull
	cmd.WaitDelay = time.Second

	out := &limitedBuffer{max: r.MaxOutputBytes}
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	if ctx.Err() != nil {
		return out.Bytes(), -1, fmt.Errorf("%s %v: %w", path, args, ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// many tools exit non-zero after printing help
		return out.Bytes(), exitErr.ExitCode(), nil
	}
	if err != nil {
		return out.Bytes(), -1, fmt.Errorf("failed to run %s: %w", path, err)
	}
	return out.Bytes(), 0, nil
}

// limitedBuffer silently drops writes past max bytes
type limitedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if b.max > 0 {
		remaining := b.max - b.buf.Len()
		if remaining <= 0 {
			return n, nil
		}
		if len(p) > remaining {
			p = p[:remaining]
		}
	}
	b.buf.Write(p)
	return n, nil
}

func (b *limitedBuffer) Bytes() []byte {
	return b.buf.Bytes()
}
