package ports

import (
	"context"

	"github.com/aretw0/flowforge/pkg/domain"
)

// JobClaimer is the part of the queue a build worker needs.
type JobClaimer interface {
	// ClaimNext atomically takes the oldest Pending job built with
	// toolchainVersion, marks it Claimed by workerID and returns it.
	// No two concurrent callers receive the same job.
	// Returns domain.ErrClaimConflict when nothing is claimable.
	ClaimNext(ctx context.Context, toolchainVersion, workerID string) (*domain.BuildJob, error)

	// MarkInProgress moves a Claimed job to InProgress.
	MarkInProgress(ctx context.Context, jobID string) error

	// ReportResult moves a Claimed or InProgress job to Completed or Failed.
	// Reporting a job that is already terminal is a no-op.
	// Returns domain.ErrJobNotFound for unknown jobs and
	// domain.ErrInvalidTransition for jobs that were never claimed.
	ReportResult(ctx context.Context, jobID string, result domain.BuildResult) error
}

// ResultRecorder is implemented by queues that can tell the report that
// finished a job from a repeated one.
type ResultRecorder interface {
	// RecordResult behaves as ReportResult and also reports whether this
	// call moved the job to its terminal status.
	RecordResult(ctx context.Context, jobID string, result domain.BuildResult) (bool, error)
}

// JobQueue is the durable store of build jobs.
type JobQueue interface {
	JobClaimer

	// Enqueue stores a new Pending job.
	Enqueue(ctx context.Context, job *domain.BuildJob) error

	// Get returns a snapshot of a job.
	// Returns domain.ErrJobNotFound if the job does not exist.
	Get(ctx context.Context, jobID string) (*domain.BuildJob, error)
}
