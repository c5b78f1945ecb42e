package worker_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/flowforge/internal/metrics"
	"github.com/aretw0/flowforge/internal/pipeline"
	"github.com/aretw0/flowforge/internal/worker"
	"github.com/aretw0/flowforge/pkg/adapters/memory"
	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enqueue(t *testing.T, q *memory.Queue, id, version string) {
	t.Helper()
	require.NoError(t, q.Enqueue(context.Background(), &domain.BuildJob{
		ID: id, ProjectID: "p1", ToolchainVersion: version, RequestedBy: "alice",
		CreatedAt: time.Now().Add(-time.Minute),
	}))
}

func TestWorker_PollRunsAndReports(t *testing.T) {
	q := memory.NewQueue()
	enqueue(t, q, "job-1", "3.1")
	base := t.TempDir()
	ws := pipeline.NewWorkspaceManager(base)
	m := metrics.New(prometheus.NewRegistry())

	var sawStatus domain.BuildStatus
	steps := []pipeline.Step{
		pipeline.StepFunc{StepName: "Workspace", Fn: func(ctx context.Context, bc *pipeline.BuildContext) error {
			dir, err := ws.Create(bc.Job.ID)
			bc.Workspace = dir
			return err
		}},
		pipeline.StepFunc{StepName: "Inspect", Fn: func(ctx context.Context, bc *pipeline.BuildContext) error {
			job, err := q.Get(ctx, bc.Job.ID)
			sawStatus = job.Status
			bc.CommitSHA = "abc123"
			return err
		}},
	}
	w := worker.New(q, pipeline.New(steps), "3.1", worker.WithID("w1"), worker.WithWorkspaces(ws), worker.WithMetrics(m))

	ran, err := w.Poll(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, domain.BuildInProgress, sawStatus)

	job, err := q.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BuildCompleted, job.Status)
	assert.Equal(t, "w1", job.ClaimedBy)
	assert.Equal(t, "abc123", job.CommitSHA)

	_, err = os.Stat(filepath.Join(base, "job-1"))
	assert.True(t, os.IsNotExist(err), "workspace is removed after reporting")

	ran, err = w.Poll(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Claims.WithLabelValues("claimed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Claims.WithLabelValues("empty")))
}

func TestWorker_FailedBuildIsReported(t *testing.T) {
	q := memory.NewQueue()
	enqueue(t, q, "job-1", "3.1")
	steps := []pipeline.Step{
		pipeline.StepFunc{StepName: "Compile", Fn: func(context.Context, *pipeline.BuildContext) error {
			return errors.New("3 errors")
		}},
	}
	w := worker.New(q, pipeline.New(steps), "3.1")

	ran, err := w.Poll(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)

	job, err := q.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BuildFailed, job.Status)
	assert.Equal(t, []string{"Compile: 3 errors"}, job.Errors)
}

func TestWorker_OnlyClaimsItsVersion(t *testing.T) {
	q := memory.NewQueue()
	enqueue(t, q, "job-1", "3.1.4026")
	w := worker.New(q, pipeline.New(nil), "3.1.4024")

	ran, err := w.Poll(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)

	job, err := q.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BuildPending, job.Status)
}

func TestWorker_ShutdownStillReports(t *testing.T) {
	q := memory.NewQueue()
	enqueue(t, q, "job-1", "3.1")

	ctx, cancel := context.WithCancel(context.Background())
	steps := []pipeline.Step{
		pipeline.StepFunc{StepName: "Clone", Fn: func(context.Context, *pipeline.BuildContext) error {
			cancel()
			return nil
		}},
		pipeline.StepFunc{StepName: "Parse", Fn: func(context.Context, *pipeline.BuildContext) error { return nil }},
	}
	w := worker.New(q, pipeline.New(steps), "3.1")

	ran, err := w.Poll(ctx)
	require.NoError(t, err)
	assert.True(t, ran)

	job, err := q.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BuildFailed, job.Status)
	assert.Equal(t, []string{"Parse: context canceled"}, job.Errors)
}

func TestWorker_RunDrainsQueueUntilCanceled(t *testing.T) {
	q := memory.NewQueue()
	for _, id := range []string{"a", "b", "c"} {
		enqueue(t, q, id, "3.1")
	}
	var built atomic.Int32
	steps := []pipeline.Step{
		pipeline.StepFunc{StepName: "Build", Fn: func(context.Context, *pipeline.BuildContext) error {
			built.Add(1)
			return nil
		}},
	}
	w := worker.New(q, pipeline.New(steps), "3.1", worker.WithPollInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return built.Load() == 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

// hangingRepository never finishes a clone on its own.
type hangingRepository struct{}

func (hangingRepository) Clone(ctx context.Context, _, _, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func (hangingRepository) Commit(context.Context, string, string, string) (string, error) {
	return "", errors.New("not reached")
}

func TestWorker_JobTimeoutEndsHungClone(t *testing.T) {
	q := memory.NewQueue()
	require.NoError(t, q.Enqueue(context.Background(), &domain.BuildJob{
		ID: "job-1", ProjectID: "p1", RepoURL: "https://git.example/line1.git",
		ToolchainVersion: "3.1", RequestedBy: "alice", CreatedAt: time.Now().Add(-time.Minute),
	}))
	ws := pipeline.NewWorkspaceManager(t.TempDir())
	steps := pipeline.DefaultSteps(pipeline.Deps{Repository: hangingRepository{}, Workspaces: ws})
	w := worker.New(q, pipeline.New(steps), "3.1", worker.WithJobTimeout(50*time.Millisecond), worker.WithWorkspaces(ws))

	done := make(chan error, 1)
	go func() {
		_, err := w.Poll(context.Background())
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not bounded by its timeout")
	}

	job, err := q.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.BuildFailed, job.Status)
	require.Len(t, job.Errors, 1)
	assert.Equal(t, "Clone: timeout: job ran longer than 50ms: context deadline exceeded", job.Errors[0])
}
