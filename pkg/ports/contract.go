package ports

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunJobQueueContract runs a suite of tests to verify that a JobQueue
// implementation adheres to the defined interface contract. newQueue must
// return an empty queue on every call.
func RunJobQueueContract(t *testing.T, newQueue func(t *testing.T) JobQueue) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	job := func(id, version string, created time.Time) *domain.BuildJob {
		return &domain.BuildJob{
			ID:               id,
			ProjectID:        "proj-" + id,
			ToolchainVersion: version,
			RequestedBy:      "alice",
			CreatedAt:        created,
		}
	}

	t.Run("Claim Empty", func(t *testing.T) {
		q := newQueue(t)
		_, err := q.ClaimNext(ctx, "4024.56", "w1")
		assert.ErrorIs(t, err, domain.ErrClaimConflict)
	})

	t.Run("Claim Oldest First", func(t *testing.T) {
		q := newQueue(t)
		require.NoError(t, q.Enqueue(ctx, job("late", "4024.56", base.Add(time.Minute))))
		require.NoError(t, q.Enqueue(ctx, job("early", "4024.56", base)))
		require.NoError(t, q.Enqueue(ctx, job("other", "4026.1", base.Add(-time.Hour))))

		got, err := q.ClaimNext(ctx, "4024.56", "w1")
		require.NoError(t, err)
		assert.Equal(t, "early", got.ID)
		assert.Equal(t, domain.BuildClaimed, got.Status)
		assert.Equal(t, "w1", got.ClaimedBy)
		assert.NotNil(t, got.StartedAt)

		got, err = q.ClaimNext(ctx, "4024.56", "w2")
		require.NoError(t, err)
		assert.Equal(t, "late", got.ID)

		_, err = q.ClaimNext(ctx, "4024.56", "w3")
		assert.ErrorIs(t, err, domain.ErrClaimConflict)

		got, err = q.ClaimNext(ctx, "4026.1", "w3")
		require.NoError(t, err)
		assert.Equal(t, "other", got.ID)

		stored, err := q.Get(ctx, "early")
		require.NoError(t, err)
		assert.Equal(t, domain.BuildClaimed, stored.Status)
		assert.Equal(t, "w1", stored.ClaimedBy)
	})

	t.Run("Concurrent Claims Are Exclusive", func(t *testing.T) {
		q := newQueue(t)
		const jobs, workers = 20, 50
		for i := 0; i < jobs; i++ {
			require.NoError(t, q.Enqueue(ctx, job(fmt.Sprintf("job-%02d", i), "4024.56", base.Add(time.Duration(i)*time.Second))))
		}

		var (
			mu        sync.Mutex
			claimed   = make(map[string]string)
			conflicts int
			wg        sync.WaitGroup
		)
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(worker string) {
				defer wg.Done()
				got, err := q.ClaimNext(ctx, "4024.56", worker)
				mu.Lock()
				defer mu.Unlock()
				if errors.Is(err, domain.ErrClaimConflict) {
					conflicts++
					return
				}
				if !assert.NoError(t, err) {
					return
				}
				prev, dup := claimed[got.ID]
				assert.False(t, dup, "job %s claimed by %s and %s", got.ID, prev, worker)
				claimed[got.ID] = worker
			}(fmt.Sprintf("w%d", w))
		}
		wg.Wait()

		assert.Len(t, claimed, jobs)
		assert.Equal(t, workers-jobs, conflicts)
		for id, worker := range claimed {
			stored, err := q.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, worker, stored.ClaimedBy)
		}
	})

	t.Run("Report Result", func(t *testing.T) {
		q := newQueue(t)
		require.NoError(t, q.Enqueue(ctx, job("j1", "4024.56", base)))

		err := q.ReportResult(ctx, "j1", domain.BuildResult{Success: true})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition, "pending job cannot be reported")
		assert.ErrorIs(t, q.ReportResult(ctx, "missing", domain.BuildResult{}), domain.ErrJobNotFound)

		_, err = q.ClaimNext(ctx, "4024.56", "w1")
		require.NoError(t, err)
		require.NoError(t, q.MarkInProgress(ctx, "j1"))

		done := base.Add(time.Hour)
		require.NoError(t, q.ReportResult(ctx, "j1", domain.BuildResult{
			Success:     false,
			Errors:      []string{"Compile: 2 errors"},
			CompletedAt: done,
		}))

		// A duplicate report is a no-op.
		require.NoError(t, q.ReportResult(ctx, "j1", domain.BuildResult{Success: true, CommitSHA: "abc"}))

		stored, err := q.Get(ctx, "j1")
		require.NoError(t, err)
		assert.Equal(t, domain.BuildFailed, stored.Status)
		assert.Equal(t, []string{"Compile: 2 errors"}, stored.Errors)
		assert.Empty(t, stored.CommitSHA)
		require.NotNil(t, stored.CompletedAt)
		assert.True(t, done.Equal(*stored.CompletedAt))
	})

	t.Run("Record Result Reports First Transition Only", func(t *testing.T) {
		q := newQueue(t)
		rec, ok := q.(ResultRecorder)
		if !ok {
			t.Skip("queue does not implement ResultRecorder")
		}
		require.NoError(t, q.Enqueue(ctx, job("j1", "4024.56", base)))
		_, err := q.ClaimNext(ctx, "4024.56", "w1")
		require.NoError(t, err)

		changed, err := rec.RecordResult(ctx, "j1", domain.BuildResult{Success: true})
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = rec.RecordResult(ctx, "j1", domain.BuildResult{Success: true})
		require.NoError(t, err)
		assert.False(t, changed, "a repeated report changes nothing")
	})

	t.Run("Mark In Progress", func(t *testing.T) {
		q := newQueue(t)
		require.NoError(t, q.Enqueue(ctx, job("j1", "4024.56", base)))
		assert.ErrorIs(t, q.MarkInProgress(ctx, "j1"), domain.ErrInvalidTransition)
		assert.ErrorIs(t, q.MarkInProgress(ctx, "missing"), domain.ErrJobNotFound)

		_, err := q.ClaimNext(ctx, "4024.56", "w1")
		require.NoError(t, err)
		require.NoError(t, q.MarkInProgress(ctx, "j1"))

		stored, err := q.Get(ctx, "j1")
		require.NoError(t, err)
		assert.Equal(t, domain.BuildInProgress, stored.Status)

		require.NoError(t, q.ReportResult(ctx, "j1", domain.BuildResult{Success: true, CommitSHA: "abc"}))
		stored, err = q.Get(ctx, "j1")
		require.NoError(t, err)
		assert.Equal(t, domain.BuildCompleted, stored.Status)
		assert.Equal(t, "abc", stored.CommitSHA)
	})

	t.Run("Enqueue", func(t *testing.T) {
		q := newQueue(t)
		j := job("j1", "4024.56", time.Time{})
		j.Status = domain.BuildCompleted
		require.NoError(t, q.Enqueue(ctx, j))
		assert.Error(t, q.Enqueue(ctx, job("j1", "4024.56", base)), "duplicate id")
		assert.Error(t, q.Enqueue(ctx, job("", "4024.56", base)), "missing id")

		stored, err := q.Get(ctx, "j1")
		require.NoError(t, err)
		assert.Equal(t, domain.BuildPending, stored.Status)
		assert.False(t, stored.CreatedAt.IsZero())

		_, err = q.Get(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrJobNotFound)
	})
}

// RunDeployStoreContract verifies a DeployRecordStore implementation.
func RunDeployStoreContract(t *testing.T, store DeployRecordStore) {
	ctx := context.Background()
	id := "deploy-" + time.Now().Format("20060102150405.000000000")

	t.Run("Create and Get", func(t *testing.T) {
		rec := &domain.DeployRecord{
			ID:          id,
			BuildJobID:  "job-" + id,
			TargetNetID: "5.1.2.3.1.1",
			Status:      domain.DeployAwaitingApproval,
			RequestedBy: "alice",
			CreatedAt:   time.Now().UTC(),
		}
		require.NoError(t, store.Create(ctx, rec))
		assert.Error(t, store.Create(ctx, rec), "duplicate id")

		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, rec.BuildJobID, got.BuildJobID)
		assert.Equal(t, domain.DeployAwaitingApproval, got.Status)

		byJob, err := store.FindByJob(ctx, "job-"+id)
		require.NoError(t, err)
		assert.Equal(t, id, byJob.ID)
	})

	t.Run("Update", func(t *testing.T) {
		err := store.Update(ctx, id, func(r *domain.DeployRecord) error {
			r.Status = domain.DeployApproved
			r.ApprovedBy = "bob"
			return nil
		})
		require.NoError(t, err)

		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.DeployApproved, got.Status)
		assert.Equal(t, "bob", got.ApprovedBy)

		boom := errors.New("boom")
		err = store.Update(ctx, id, func(r *domain.DeployRecord) error {
			r.Status = domain.DeployFailed
			return boom
		})
		assert.ErrorIs(t, err, boom)
		got, _ = store.Get(ctx, id)
		assert.Equal(t, domain.DeployApproved, got.Status, "failed update must not be saved")
	})

	t.Run("Not Found", func(t *testing.T) {
		_, err := store.Get(ctx, "missing-"+id)
		assert.ErrorIs(t, err, domain.ErrDeployNotFound)
		_, err = store.FindByJob(ctx, "missing-"+id)
		assert.ErrorIs(t, err, domain.ErrDeployNotFound)
		err = store.Update(ctx, "missing-"+id, func(*domain.DeployRecord) error { return nil })
		assert.ErrorIs(t, err, domain.ErrDeployNotFound)
	})
}
