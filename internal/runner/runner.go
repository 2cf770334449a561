// Package runner executes external command-line tools such as docker,
// kubectl, kind and minikube.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"coffeectl/pkg/logging"
)

// Result holds the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner runs external tools. Implementations must honor ctx cancellation.
type Runner interface {
	// Run executes name with args and captures its output.
	Run(ctx context.Context, name string, args ...string) (Result, error)
	// RunWithStdin is Run with stdin attached.
	RunWithStdin(ctx context.Context, stdin io.Reader, name string, args ...string) (Result, error)
	// Stream executes name with args, copying output to the given writers as it arrives.
	Stream(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) error
	// LookPath reports where name is found on PATH.
	LookPath(name string) (string, error)
}

// ExitError is returned when a command ran but exited non-zero.
type ExitError struct {
	Name   string
	Args   []string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s %s: exit status %d", e.Name, strings.Join(e.Args, " "), e.Code)
	}
	return fmt.Sprintf("%s %s: exit status %d: %s", e.Name, strings.Join(e.Args, " "), e.Code, msg)
}

// ExitCode returns the exit code carried by err, or -1 when err is not an ExitError.
func ExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}

// Exec runs commands on the local machine.
type Exec struct{}

var _ Runner = Exec{}

// New returns the default Runner, which logs every invocation at debug level.
func New() Runner {
	return Logging{Runner: Exec{}}
}

func (Exec) Run(ctx context.Context, name string, args ...string) (Result, error) {
	return Exec{}.RunWithStdin(ctx, nil, name, args...)
}

func (Exec) RunWithStdin(ctx context.Context, stdin io.Reader, name string, args ...string) (Result, error) {
	c := exec.CommandContext(ctx, name, args...)
	if stdin != nil {
		c.Stdin = stdin
	}

	stdoutBuf := &bytes.Buffer{}
	stderrBuf := &bytes.Buffer{}
	c.Stdout = stdoutBuf
	c.Stderr = stderrBuf

	err := c.Run()
	res := Result{Stdout: stdoutBuf.String(), Stderr: stderrBuf.String()}
	return res, wrapErr(ctx, &res, name, args, err)
}

func (Exec) Stream(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) error {
	c := exec.CommandContext(ctx, name, args...)
	stderrBuf := &bytes.Buffer{}
	c.Stdout = stdout
	if stderr != nil {
		c.Stderr = io.MultiWriter(stderr, stderrBuf)
	} else {
		c.Stderr = stderrBuf
	}
	err := c.Run()
	res := Result{Stderr: stderrBuf.String()}
	return wrapErr(ctx, &res, name, args, err)
}

func (Exec) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func wrapErr(ctx context.Context, res *Result, name string, args []string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return &ExitError{Name: name, Args: args, Code: res.ExitCode, Stderr: res.Stderr}
	}
	return fmt.Errorf("running %s: %w", name, err)
}

// Logging wraps a Runner and logs each command and its outcome.
type Logging struct {
	Runner Runner
}

var _ Runner = Logging{}

func (l Logging) Run(ctx context.Context, name string, args ...string) (Result, error) {
	logging.Debug("Runner", "Running: %q", append([]string{name}, args...))
	res, err := l.Runner.Run(ctx, name, args...)
	l.logStop(name, res, err)
	return res, err
}

func (l Logging) RunWithStdin(ctx context.Context, stdin io.Reader, name string, args ...string) (Result, error) {
	logging.Debug("Runner", "Running with stdin: %q", append([]string{name}, args...))
	res, err := l.Runner.RunWithStdin(ctx, stdin, name, args...)
	l.logStop(name, res, err)
	return res, err
}

func (l Logging) Stream(ctx context.Context, stdout, stderr io.Writer, name string, args ...string) error {
	logging.Debug("Runner", "Streaming: %q", append([]string{name}, args...))
	err := l.Runner.Stream(ctx, stdout, stderr, name, args...)
	if err != nil {
		logging.Debug("Runner", "%s failed: %v", name, err)
	}
	return err
}

func (l Logging) LookPath(name string) (string, error) {
	return l.Runner.LookPath(name)
}

func (l Logging) logStop(name string, res Result, err error) {
	if err != nil {
		logging.Debug("Runner", "%s failed: %v", name, err)
		return
	}
	logging.Debug("Runner", "%s stdout: '%s' stderr: '%s'", name, strings.TrimSpace(res.Stdout), strings.TrimSpace(res.Stderr))
}
