// Package deploy puts a compiled configuration onto a controller without
// ever interrupting a running one.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/flowforge/internal/logging"
	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/aretw0/flowforge/pkg/ports"
)

// ErrRestartFailed is returned when the controller does not report Run after
// the restart.
var ErrRestartFailed = errors.New("controller did not reach Run after restart")

// Activator activates a compiled configuration on a target. The automation
// bridge that compiled the project implements it.
type Activator interface {
	ActivateConfiguration(ctx context.Context, netID string) error
}

// Stage names one step of a deploy.
type Stage string

const (
	StageConnect  Stage = "connect"
	StageCheck    Stage = "check_state"
	StageConfig   Stage = "config_mode"
	StageActivate Stage = "activate"
	StageRestart  Stage = "restart"
	StageVerify   Stage = "verify"
)

// StageError attributes a deploy failure to the stage it happened in.
type StageError struct {
	Stage Stage
	NetID string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("deploy to %s failed at %s: %v", e.NetID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Machine runs the deploy sequence against one controller at a time.
type Machine struct {
	dialer      ports.ControllerDialer
	logger      *slog.Logger
	settleEvery time.Duration
	settleReads int
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// WithSettle lets the verification read the state up to reads times, every
// interval, while the controller is still starting up.
func WithSettle(interval time.Duration, reads int) Option {
	return func(m *Machine) {
		m.settleEvery = interval
		m.settleReads = reads
	}
}

// NewMachine creates a deploy machine that reaches controllers through dialer.
func NewMachine(dialer ports.ControllerDialer, opts ...Option) *Machine {
	m := &Machine{
		dialer:      dialer,
		logger:      logging.NewNop(),
		settleEvery: 500 * time.Millisecond,
		settleReads: 10,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run deploys to the controller at info. A nil info means nothing to deploy
// and succeeds without touching any device.
//
// Cancellation is honored between stages only: a call that changes the
// controller state always runs to completion. The connection is closed on
// every path.
func (m *Machine) Run(ctx context.Context, info *domain.ConnectionInfo, act Activator) (err error) {
	if info == nil {
		m.logger.Debug("deploy skipped, no target")
		return nil
	}
	netID := info.NetID
	fail := func(stage Stage, err error) error {
		return &StageError{Stage: stage, NetID: netID, Err: err}
	}
	log := m.logger.With("net_id", netID)

	if err := ctx.Err(); err != nil {
		return fail(StageConnect, err)
	}
	conn, err := m.dialer.Dial(ctx, *info)
	if err != nil {
		return fail(StageConnect, err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Warn("closing controller connection", "err", cerr)
		}
	}()

	status, err := conn.ReadState(ctx)
	if err != nil {
		return fail(StageCheck, err)
	}
	log.Info("controller state read", "state", status.State)
	if !status.IsSafeForDeploy() {
		return fail(StageCheck, &domain.DeployUnsafeState{NetID: netID, State: status.State})
	}

	// From here on the controller is being changed. Each change finishes even
	// if the job is canceled; the next stage is not started.
	steady := context.WithoutCancel(ctx)

	if err := ctx.Err(); err != nil {
		return fail(StageConfig, err)
	}
	if err := conn.SwitchToConfigMode(steady); err != nil {
		return fail(StageConfig, err)
	}

	if err := ctx.Err(); err != nil {
		return fail(StageActivate, err)
	}
	if err := act.ActivateConfiguration(steady, netID); err != nil {
		return fail(StageActivate, err)
	}
	log.Info("configuration activated")

	if err := ctx.Err(); err != nil {
		return fail(StageRestart, err)
	}
	if err := conn.StartRestart(steady); err != nil {
		return fail(StageRestart, err)
	}

	if err := m.verify(steady, conn); err != nil {
		return fail(StageVerify, err)
	}
	log.Info("controller running")
	return nil
}

// verify reads the state until the controller leaves its start-up states and
// requires it to end in Run.
func (m *Machine) verify(ctx context.Context, conn ports.ControllerConn) error {
	reads := max(m.settleReads, 1)
	for i := 1; ; i++ {
		status, err := conn.ReadState(ctx)
		if err != nil {
			return err
		}
		if status.IsRunning() {
			return nil
		}
		starting := status.State == domain.StateStart || status.State == domain.StateInit || status.State == domain.StateReconfig
		if !starting || i >= reads {
			return fmt.Errorf("%w: state is %s", ErrRestartFailed, status.State)
		}
		time.Sleep(m.settleEvery)
	}
}
