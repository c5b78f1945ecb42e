package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/aretw0/flowforge/pkg/ports"
)

// Policy bounds how toolchain calls are repeated.
type Policy struct {
	// Interval is the pause between a busy answer and the next attempt.
	Interval time.Duration
	// MaxAttempts counts the first call. Values below 1 mean 1.
	MaxAttempts int
	// CallTimeout bounds each attempt. Zero means no bound.
	CallTimeout time.Duration
	// OnRetry is called before every repeated attempt.
	OnRetry func(op string, attempt int)
}

// DefaultPolicy retries a busy tool every 100ms for about ten seconds.
func DefaultPolicy() Policy {
	return Policy{Interval: 100 * time.Millisecond, MaxAttempts: 100, CallTimeout: 10 * time.Minute}
}

// Retry calls fn until it succeeds, fails with anything but
// domain.ErrToolchainBusy, or runs out of attempts.
//
// Exhaustion yields *domain.ToolchainUnavailable. An attempt that exceeds
// CallTimeout yields domain.ErrTimeout and is not repeated.
func Retry[T any](ctx context.Context, p Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(p.MaxAttempts, 1)

	for attempt := 1; ; attempt++ {
		v, err := call(ctx, p.CallTimeout, fn)
		switch {
		case err == nil:
			return v, nil
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			return zero, fmt.Errorf("%s: %w after %s", op, domain.ErrTimeout, p.CallTimeout)
		case !errors.Is(err, domain.ErrToolchainBusy):
			return zero, err
		case attempt >= attempts:
			return zero, &domain.ToolchainUnavailable{Op: op, Attempts: attempt, Err: err}
		}

		if p.OnRetry != nil {
			p.OnRetry(op, attempt+1)
		}
		timer := time.NewTimer(p.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}

func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

// RetryDo is Retry for calls without a result.
func RetryDo(ctx context.Context, p Policy, op string, fn func(context.Context) error) error {
	_, err := Retry(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// retrying decorates a session so that every call follows a Policy.
type retrying struct {
	next   ports.ToolchainSession
	policy Policy
}

// WithRetry wraps s so every call is repeated while the tool is busy.
func WithRetry(s ports.ToolchainSession, p Policy) ports.ToolchainSession {
	return &retrying{next: s, policy: p}
}

func (r *retrying) CreateSolution(ctx context.Context, dir, name string) error {
	return RetryDo(ctx, r.policy, "CreateSolution", func(ctx context.Context) error {
		return r.next.CreateSolution(ctx, dir, name)
	})
}

func (r *retrying) CreateProject(ctx context.Context, name, template string) error {
	return RetryDo(ctx, r.policy, "CreateProject", func(ctx context.Context) error {
		return r.next.CreateProject(ctx, name, template)
	})
}

func (r *retrying) AddUnit(ctx context.Context, unit ports.UnitSpec) error {
	return RetryDo(ctx, r.policy, "AddUnit", func(ctx context.Context) error {
		return r.next.AddUnit(ctx, unit)
	})
}

func (r *retrying) CreateTask(ctx context.Context, task ports.TaskSpec) error {
	return RetryDo(ctx, r.policy, "CreateTask", func(ctx context.Context) error {
		return r.next.CreateTask(ctx, task)
	})
}

func (r *retrying) Compile(ctx context.Context) (ports.Diagnostics, error) {
	return Retry(ctx, r.policy, "Compile", r.next.Compile)
}

func (r *retrying) GenerateBootProject(ctx context.Context, netID string) error {
	return RetryDo(ctx, r.policy, "GenerateBootProject", func(ctx context.Context) error {
		return r.next.GenerateBootProject(ctx, netID)
	})
}

func (r *retrying) ActivateConfiguration(ctx context.Context, netID string) error {
	return RetryDo(ctx, r.policy, "ActivateConfiguration", func(ctx context.Context) error {
		return r.next.ActivateConfiguration(ctx, netID)
	})
}

func (r *retrying) Close(ctx context.Context) error {
	return RetryDo(ctx, r.policy, "Close", r.next.Close)
}
