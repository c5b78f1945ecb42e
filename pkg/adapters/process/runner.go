// Package process runs allow-listed external programs and builds the git
// working copy adapter on top of them.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"

	"github.com/aretw0/flowforge/internal/logging"
)

// ErrNotRegistered is returned for a program missing from the allow-list.
var ErrNotRegistered = errors.New("process not registered")

// Program is one allowed executable. Args are prepended to every call.
type Program struct {
	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args" json:"args"`
	Env     map[string]string `yaml:"env" json:"env"`
}

// Runner executes registered programs only.
type Runner struct {
	registry map[string]Program
	logger   *slog.Logger
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithRegistry adds programs to the allow-list.
func WithRegistry(programs map[string]Program) RunnerOption {
	return func(r *Runner) {
		for name, p := range programs {
			r.registry[name] = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: make(map[string]Program),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list.
func (r *Runner) Register(name, command string, args ...string) {
	r.registry[name] = Program{Command: command, Args: args}
}

// ExitError carries the output of a failed run.
type ExitError struct {
	Program string
	Args    []string
	Stderr  string
	Err     error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Program, strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

// Run executes the program registered as name in dir and returns its
// standard output.
func (r *Runner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	p, ok := r.registry[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	argv := append(append([]string(nil), p.Args...), args...)
	cmd := exec.CommandContext(ctx, p.Command, argv...)
	cmd.Dir = dir
	cmd.Env = append(cmd.Environ(), envList(p.Env)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("running process", "program", name, "args", argv, "dir", dir)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return stdout.String(), &ExitError{Program: name, Args: argv, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return stdout.String(), nil
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
