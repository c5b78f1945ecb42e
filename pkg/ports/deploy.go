package ports

import (
	"context"

	"github.com/aretw0/flowforge/pkg/domain"
)

// DeployRecordStore persists deploy records.
type DeployRecordStore interface {
	// Create stores a new record. The record ID must be set.
	Create(ctx context.Context, rec *domain.DeployRecord) error

	// Get returns the record with the given ID.
	// Returns domain.ErrDeployNotFound if it does not exist.
	Get(ctx context.Context, id string) (*domain.DeployRecord, error)

	// FindByJob returns the record linked to a build job.
	// Returns domain.ErrDeployNotFound if there is none.
	FindByJob(ctx context.Context, jobID string) (*domain.DeployRecord, error)

	// Update applies fn to the stored record and saves the result. Updates to
	// one record are serialized.
	Update(ctx context.Context, id string, fn func(*domain.DeployRecord) error) error
}

// TargetRegistry resolves controllers by AMS NetId.
type TargetRegistry interface {
	// Target returns the target with the given NetId.
	// Returns domain.ErrTargetNotFound if it is not registered.
	Target(ctx context.Context, netID string) (domain.Target, error)
}

// ControllerDialer opens connections to controllers.
type ControllerDialer interface {
	Dial(ctx context.Context, info domain.ConnectionInfo) (ControllerConn, error)
}

// ControllerConn is an open connection to one controller. It is used by one
// goroutine at a time and must be closed on every path.
type ControllerConn interface {
	// ReadState reads the current run state from the device.
	ReadState(ctx context.Context) (domain.ControllerStatus, error)

	// SwitchToConfigMode requests the configuration (Reconfig) mode.
	SwitchToConfigMode(ctx context.Context) error

	// StartRestart requests a (re)start into Run.
	StartRestart(ctx context.Context) error

	Close() error
}
