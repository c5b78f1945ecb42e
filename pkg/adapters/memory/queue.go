package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/aretw0/flowforge/pkg/ports"
)

// Queue implements ports.JobQueue in memory.
// Safe for concurrent use; the mutex makes each claim indivisible.
type Queue struct {
	mu   sync.Mutex
	jobs map[string]*domain.BuildJob
	now  func() time.Time
}

var _ ports.JobQueue = (*Queue)(nil)

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		jobs: make(map[string]*domain.BuildJob),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue stores a copy of job as Pending.
func (q *Queue) Enqueue(ctx context.Context, job *domain.BuildJob) error {
	if job.ID == "" {
		return errors.New("enqueue: job id is required")
	}
	j := job.Snapshot()
	j.Status = domain.BuildPending
	if j.CreatedAt.IsZero() {
		j.CreatedAt = q.now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.jobs[j.ID]; ok {
		return fmt.Errorf("enqueue: job %s already exists", j.ID)
	}
	q.jobs[j.ID] = j
	return nil
}

// ClaimNext claims the oldest pending job of toolchainVersion.
func (q *Queue) ClaimNext(ctx context.Context, toolchainVersion, workerID string) (*domain.BuildJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var next *domain.BuildJob
	for _, j := range q.jobs {
		if j.Status != domain.BuildPending || j.ToolchainVersion != toolchainVersion {
			continue
		}
		if next == nil || j.CreatedAt.Before(next.CreatedAt) ||
			(j.CreatedAt.Equal(next.CreatedAt) && j.ID < next.ID) {
			next = j
		}
	}
	if next == nil {
		return nil, domain.ErrClaimConflict
	}

	now := q.now()
	next.Status = domain.BuildClaimed
	next.ClaimedBy = workerID
	next.StartedAt = &now
	return next.Snapshot(), nil
}

// MarkInProgress moves a claimed job to InProgress.
func (q *Queue) MarkInProgress(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if j.Status != domain.BuildClaimed {
		return fmt.Errorf("%w: job %s is %s", domain.ErrInvalidTransition, jobID, j.Status)
	}
	j.Status = domain.BuildInProgress
	return nil
}

// ReportResult records the outcome of a claimed job.
func (q *Queue) ReportResult(ctx context.Context, jobID string, result domain.BuildResult) error {
	_, err := q.RecordResult(ctx, jobID, result)
	return err
}

// RecordResult is ReportResult that tells whether the job changed.
func (q *Queue) RecordResult(ctx context.Context, jobID string, result domain.BuildResult) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[jobID]
	if !ok {
		return false, domain.ErrJobNotFound
	}
	switch {
	case j.Status.Terminal():
		return false, nil
	case j.Status == domain.BuildPending:
		return false, fmt.Errorf("%w: job %s is %s", domain.ErrInvalidTransition, jobID, j.Status)
	}

	completed := result.CompletedAt
	if completed.IsZero() {
		completed = q.now()
	}
	j.Status = result.Status()
	j.CommitSHA = result.CommitSHA
	j.Errors = append([]string(nil), result.Errors...)
	j.CompletedAt = &completed
	return true, nil
}

// Get returns a copy of the job.
func (q *Queue) Get(ctx context.Context, jobID string) (*domain.BuildJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	j, ok := q.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return j.Snapshot(), nil
}
