// Package automation drives the vendor build tool through a
// ports.ToolchainSession: project creation, code import, task setup,
// compilation and activation.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/aretw0/flowforge/internal/logging"
	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/aretw0/flowforge/pkg/ports"
)

// ErrBridgeBusy is returned when a bridge is called while another call on it
// is still running.
var ErrBridgeBusy = errors.New("automation bridge is already in use")

// Bridge is the single owner of one toolchain session. It is not reentrant.
type Bridge struct {
	session ports.ToolchainSession
	policy  Policy
	layout  Layout
	logger  *slog.Logger
	inUse   atomic.Bool
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLayout overrides tree placements of the default layout.
func WithLayout(l Layout) Option {
	return func(b *Bridge) { b.layout = b.layout.Merge(l) }
}

// WithPolicy sets the busy retry policy.
func WithPolicy(p Policy) Option {
	return func(b *Bridge) { b.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// New creates a bridge over session. Every call on the session goes through
// the retry policy.
func New(session ports.ToolchainSession, opts ...Option) *Bridge {
	b := &Bridge{
		policy: DefaultPolicy(),
		layout: DefaultLayout(),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.session = WithRetry(session, b.policy)
	return b
}

func (b *Bridge) enter() (func(), error) {
	if !b.inUse.CompareAndSwap(false, true) {
		return nil, ErrBridgeBusy
	}
	return func() { b.inUse.Store(false) }, nil
}

// CreateProject creates the solution in dir and a PLC project in it. An
// empty template selects the tool's standard template.
func (b *Bridge) CreateProject(ctx context.Context, dir, name, template string) error {
	leave, err := b.enter()
	if err != nil {
		return err
	}
	defer leave()

	if err := b.session.CreateSolution(ctx, dir, name); err != nil {
		return fmt.Errorf("create solution: %w", err)
	}
	if err := b.session.CreateProject(ctx, name, template); err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	b.logger.Debug("project created", "name", name, "template", template)
	return nil
}

// AddArtifacts imports generated code. Data types and global lists are added
// before the programs that use them, and programs before their methods.
func (b *Bridge) AddArtifacts(ctx context.Context, arts []domain.GeneratedArtifact) error {
	leave, err := b.enter()
	if err != nil {
		return err
	}
	defer leave()

	sorted := append([]domain.GeneratedArtifact(nil), arts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return kindRank[sorted[i].Kind] < kindRank[sorted[j].Kind]
	})
	for _, a := range sorted {
		unit, err := b.layout.Unit(a)
		if err != nil {
			return err
		}
		if err := b.session.AddUnit(ctx, unit); err != nil {
			return fmt.Errorf("add %s %s: %w", a.Kind, a.Name, err)
		}
	}
	return nil
}

// ConfigureTasks creates one real-time task per spec.
func (b *Bridge) ConfigureTasks(ctx context.Context, tasks []ports.TaskSpec) error {
	leave, err := b.enter()
	if err != nil {
		return err
	}
	defer leave()

	for _, t := range tasks {
		if err := b.session.CreateTask(ctx, t); err != nil {
			return fmt.Errorf("create task %s: %w", t.Name, err)
		}
	}
	return nil
}

// Compile builds the project. Reported errors come back verbatim as a
// *domain.CompileError; the session stays open either way.
func (b *Bridge) Compile(ctx context.Context) (ports.Diagnostics, error) {
	leave, err := b.enter()
	if err != nil {
		return ports.Diagnostics{}, err
	}
	defer leave()

	diags, err := b.session.Compile(ctx)
	if err != nil {
		return diags, err
	}
	for _, w := range diags.Warnings {
		b.logger.Warn("compiler warning", "message", w)
	}
	if len(diags.Errors) > 0 {
		return diags, &domain.CompileError{Diagnostics: diags.Errors}
	}
	return diags, nil
}

// GenerateBootProject produces the boot image for the target.
func (b *Bridge) GenerateBootProject(ctx context.Context, netID string) error {
	leave, err := b.enter()
	if err != nil {
		return err
	}
	defer leave()
	return b.session.GenerateBootProject(ctx, netID)
}

// ActivateConfiguration transfers and activates the configuration on the
// target.
func (b *Bridge) ActivateConfiguration(ctx context.Context, netID string) error {
	leave, err := b.enter()
	if err != nil {
		return err
	}
	defer leave()
	return b.session.ActivateConfiguration(ctx, netID)
}

// Close ends the session.
func (b *Bridge) Close(ctx context.Context) error {
	leave, err := b.enter()
	if err != nil {
		return err
	}
	defer leave()
	return b.session.Close(ctx)
}
