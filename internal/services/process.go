package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
)

const maxStderrCapture = 8 * 1024

// Command describes one external tool invocation: an argv, optional extra
// environment, and optional stdin/stdout streams.
type Command struct {
	Name   string
	Args   []string
	Env    []string // extra KEY=VALUE entries appended to the process environment
	Stdin  io.Reader
	Stdout io.Writer
}

// CommandRunner spawns an external process and waits for it. The only judged
// outputs are the exit status and captured stderr, so strategies stay
// portable across dump/archive tool implementations.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExecRunner runs commands with os/exec. The caller bounds each invocation
// with a context deadline; a killed process surfaces as a ProcessError.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, c Command) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdin = c.Stdin
	cmd.Stdout = c.Stdout

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		perr := &ProcessError{Name: c.Name, ExitCode: -1, Stderr: trimStderr(stderr.String())}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			perr.ExitCode = exitErr.ExitCode()
		}
		if perr.Stderr == "" {
			perr.Stderr = err.Error()
		}
		return perr
	}
	return nil
}

func trimStderr(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderrCapture {
		s = s[:maxStderrCapture]
	}
	return s
}
