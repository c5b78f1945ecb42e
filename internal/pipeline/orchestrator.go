// Package pipeline runs the ordered build steps of a claimed job.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/flowforge/internal/logging"
	"github.com/aretw0/flowforge/pkg/domain"
)

// Step is one named stage of the build.
type Step interface {
	Name() string
	Execute(ctx context.Context, bc *BuildContext) error
}

// StepFunc adapts a function to Step.
type StepFunc struct {
	StepName string
	Fn       func(ctx context.Context, bc *BuildContext) error
}

func (s StepFunc) Name() string { return s.StepName }

func (s StepFunc) Execute(ctx context.Context, bc *BuildContext) error { return s.Fn(ctx, bc) }

// Orchestrator executes steps one after another and stops at the first
// failure. It never repeats a step.
type Orchestrator struct {
	steps  []Step
	hooks  domain.LifecycleHooks
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHooks sets the step lifecycle hooks.
func WithHooks(h domain.LifecycleHooks) Option {
	return func(o *Orchestrator) { o.hooks = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an orchestrator over steps.
func New(steps []Step, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		steps:  steps,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Steps returns the step names in execution order.
func (o *Orchestrator) Steps() []string {
	names := make([]string, len(o.steps))
	for i, s := range o.steps {
		names[i] = s.Name()
	}
	return names
}

// Execute runs the pipeline on bc. Every step that started has its elapsed
// time in bc.Timings. The first failure is appended to bc.Errors as
// "<step>: <message>" and returned as a *domain.StepError. Cleanups
// registered on bc are released before Execute returns.
func (o *Orchestrator) Execute(ctx context.Context, bc *BuildContext) error {
	defer func() {
		if rerr := bc.Release(context.WithoutCancel(ctx)); rerr != nil {
			o.logger.Warn("releasing build resources", "job_id", bc.Job.ID, "err", rerr)
		}
	}()

	for i, step := range o.steps {
		name := step.Name()
		bc.Progress = Progress{Phase: Running, Step: i}

		if cerr := ctx.Err(); cerr != nil {
			return o.fail(bc, i, name, interrupted(ctx, cerr))
		}

		ev := &domain.StepEvent{
			EventBase: domain.EventBase{Timestamp: o.now(), Type: domain.EventStepStart, JobID: bc.Job.ID},
			Step:      name,
			Index:     i,
		}
		if o.hooks.OnStepStart != nil {
			o.hooks.OnStepStart(ctx, ev)
		}
		o.logger.Info("step started", "job_id", bc.Job.ID, "step", name)

		start := o.now()
		serr := step.Execute(ctx, bc)
		elapsed := o.now().Sub(start)
		bc.Timings[name] = elapsed

		end := *ev
		end.Timestamp = o.now()
		end.Type = domain.EventStepEnd
		end.Elapsed = elapsed
		end.Err = serr
		if o.hooks.OnStepEnd != nil {
			o.hooks.OnStepEnd(ctx, &end)
		}

		if serr != nil {
			return o.fail(bc, i, name, interrupted(ctx, serr))
		}
		o.logger.Info("step finished", "job_id", bc.Job.ID, "step", name, "elapsed", elapsed)
	}

	bc.Progress = Progress{Phase: Succeeded, Step: -1}
	return nil
}

func (o *Orchestrator) fail(bc *BuildContext, i int, name string, err error) error {
	bc.Progress = Progress{Phase: Failed, Step: i}
	bc.Errors = append(bc.Errors, fmt.Sprintf("%s: %s", name, err))
	o.logger.Error("step failed", "job_id", bc.Job.ID, "step", name, "err", err)
	return &domain.StepError{Step: name, Err: err}
}

// interrupted attaches the cause of an ended ctx to err, so a job deadline
// set by the caller reads as domain.ErrTimeout rather than a bare context
// error.
func interrupted(ctx context.Context, err error) error {
	if ctx.Err() == nil {
		return err
	}
	cause := context.Cause(ctx)
	if cause == nil || errors.Is(err, cause) {
		return err
	}
	return fmt.Errorf("%w: %w", cause, err)
}
