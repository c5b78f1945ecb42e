package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/aretw0/flowforge/pkg/ports"
)

// Toolchain is a scripted stand-in for the vendor build tool. It serves as
// both factory and session and records every call it receives, including
// calls rejected as busy.
type Toolchain struct {
	mu        sync.Mutex
	busy      map[string]int
	delay     map[string]time.Duration
	fail      map[string]error
	diags     ports.Diagnostics
	calls     []string
	version   string
	units     []ports.UnitSpec
	tasks     []ports.TaskSpec
	activated []string
	closed    bool
}

var (
	_ ports.ToolchainFactory = (*Toolchain)(nil)
	_ ports.ToolchainSession = (*Toolchain)(nil)
)

// ToolchainOption configures a Toolchain.
type ToolchainOption func(*Toolchain)

// WithBusy makes the next n calls of op fail with domain.ErrToolchainBusy.
func WithBusy(op string, n int) ToolchainOption {
	return func(t *Toolchain) { t.busy[op] = n }
}

// WithDelay makes every call of op take d, or until its context ends.
func WithDelay(op string, d time.Duration) ToolchainOption {
	return func(t *Toolchain) { t.delay[op] = d }
}

// WithFailure makes every call of op fail with err.
func WithFailure(op string, err error) ToolchainOption {
	return func(t *Toolchain) { t.fail[op] = err }
}

// WithDiagnostics sets what Compile reports.
func WithDiagnostics(d ports.Diagnostics) ToolchainOption {
	return func(t *Toolchain) { t.diags = d }
}

// NewToolchain creates a toolchain that accepts every call.
func NewToolchain(opts ...ToolchainOption) *Toolchain {
	t := &Toolchain{
		busy:  make(map[string]int),
		delay: make(map[string]time.Duration),
		fail:  make(map[string]error),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// call records op and applies the scripted behavior for it.
func (t *Toolchain) call(ctx context.Context, op string) error {
	t.mu.Lock()
	t.calls = append(t.calls, op)
	d := t.delay[op]
	if t.busy[op] > 0 {
		t.busy[op]--
		t.mu.Unlock()
		return domain.ErrToolchainBusy
	}
	err := t.fail[op]
	t.mu.Unlock()

	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (t *Toolchain) Open(ctx context.Context, version string) (ports.ToolchainSession, error) {
	if err := t.call(ctx, "Open"); err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.version = version
	t.mu.Unlock()
	return t, nil
}

func (t *Toolchain) CreateSolution(ctx context.Context, dir, name string) error {
	return t.call(ctx, "CreateSolution")
}

func (t *Toolchain) CreateProject(ctx context.Context, name, template string) error {
	return t.call(ctx, "CreateProject")
}

func (t *Toolchain) AddUnit(ctx context.Context, unit ports.UnitSpec) error {
	if err := t.call(ctx, "AddUnit"); err != nil {
		return err
	}
	t.mu.Lock()
	t.units = append(t.units, unit)
	t.mu.Unlock()
	return nil
}

func (t *Toolchain) CreateTask(ctx context.Context, task ports.TaskSpec) error {
	if err := t.call(ctx, "CreateTask"); err != nil {
		return err
	}
	t.mu.Lock()
	t.tasks = append(t.tasks, task)
	t.mu.Unlock()
	return nil
}

func (t *Toolchain) Compile(ctx context.Context) (ports.Diagnostics, error) {
	if err := t.call(ctx, "Compile"); err != nil {
		return ports.Diagnostics{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return ports.Diagnostics{
		Errors:   append([]string(nil), t.diags.Errors...),
		Warnings: append([]string(nil), t.diags.Warnings...),
	}, nil
}

func (t *Toolchain) GenerateBootProject(ctx context.Context, netID string) error {
	return t.call(ctx, "GenerateBootProject")
}

func (t *Toolchain) ActivateConfiguration(ctx context.Context, netID string) error {
	if err := t.call(ctx, "ActivateConfiguration"); err != nil {
		return err
	}
	t.mu.Lock()
	t.activated = append(t.activated, netID)
	t.mu.Unlock()
	return nil
}

func (t *Toolchain) Close(ctx context.Context) error {
	t.mu.Lock()
	t.calls = append(t.calls, "Close")
	t.closed = true
	t.mu.Unlock()
	return nil
}

// Calls returns every recorded call in order.
func (t *Toolchain) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

// Count returns how often op was called.
func (t *Toolchain) Count(op string) int {
	n := 0
	for _, c := range t.Calls() {
		if c == op {
			n++
		}
	}
	return n
}

// Units returns the units added to the project.
func (t *Toolchain) Units() []ports.UnitSpec {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ports.UnitSpec(nil), t.units...)
}

// Tasks returns the tasks created in the project.
func (t *Toolchain) Tasks() []ports.TaskSpec {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ports.TaskSpec(nil), t.tasks...)
}

// Activated returns the NetIds configurations were activated on.
func (t *Toolchain) Activated() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.activated...)
}

// Version returns the version the last session was opened for.
func (t *Toolchain) Version() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.version
}

// Closed reports whether the session was closed.
func (t *Toolchain) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
