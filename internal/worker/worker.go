// Package worker runs the claim, build and report loop of a build server.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/flowforge/internal/logging"
	"github.com/aretw0/flowforge/internal/metrics"
	"github.com/aretw0/flowforge/internal/pipeline"
	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/aretw0/flowforge/pkg/ports"
	"github.com/google/uuid"
)

// Worker builds jobs of one toolchain version, one at a time.
type Worker struct {
	claimer    ports.JobClaimer
	pipeline   *pipeline.Orchestrator
	version    string
	id         string
	interval   time.Duration
	jobTimeout time.Duration
	workspaces *pipeline.WorkspaceManager
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Worker.
type Option func(*Worker)

// WithID sets the worker id recorded on claimed jobs.
func WithID(id string) Option {
	return func(w *Worker) { w.id = id }
}

// WithPollInterval sets the wait after an empty claim.
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) { w.interval = d }
}

// WithJobTimeout bounds the pipeline run of each job. When it expires the
// failing step reports domain.ErrTimeout. Zero means no bound.
func WithJobTimeout(d time.Duration) Option {
	return func(w *Worker) { w.jobTimeout = d }
}

// WithWorkspaces removes each job's workspace once its result is reported.
func WithWorkspaces(m *pipeline.WorkspaceManager) Option {
	return func(w *Worker) { w.workspaces = m }
}

// WithMetrics counts claim attempts. Results are counted by the claimer
// that records them.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// New creates a worker for toolchainVersion.
func New(claimer ports.JobClaimer, p *pipeline.Orchestrator, toolchainVersion string, opts ...Option) *Worker {
	w := &Worker{
		claimer:  claimer,
		pipeline: p,
		version:  toolchainVersion,
		id:       "worker-" + uuid.NewString()[:8],
		interval: 10 * time.Second,
		logger:   logging.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ID returns the worker id.
func (w *Worker) ID() string { return w.id }

// Run polls until ctx is done. After a job ran the next claim is attempted
// at once; after an empty or failed claim the worker waits one interval.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "worker_id", w.id, "toolchain_version", w.version, "interval", w.interval)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped", "worker_id", w.id)
			return nil
		case <-timer.C:
		}

		ran, err := w.Poll(ctx)
		if err != nil && ctx.Err() == nil {
			w.logger.Error("poll failed", "worker_id", w.id, "err", err)
		}
		wait := w.interval
		if ran {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// Poll claims at most one job and runs it to completion. It reports whether
// a job was claimed.
func (w *Worker) Poll(ctx context.Context) (bool, error) {
	job, err := w.claimer.ClaimNext(ctx, w.version, w.id)
	switch {
	case errors.Is(err, domain.ErrClaimConflict):
		w.countClaim("empty")
		return false, nil
	case err != nil:
		w.countClaim("error")
		return false, err
	}
	w.countClaim("claimed")
	log := w.logger.With("job_id", job.ID, "worker_id", w.id)
	log.Info("job claimed", "project", job.ProjectName, "deploy", job.IncludeDeploy)

	// Reporting and cleanup outlive a shutdown so the job is never left
	// claimed by a worker that is gone.
	rctx := context.WithoutCancel(ctx)

	jctx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jctx, cancel = context.WithTimeoutCause(ctx, w.jobTimeout,
			fmt.Errorf("%w: job ran longer than %s", domain.ErrTimeout, w.jobTimeout))
		defer cancel()
	}

	bc := pipeline.NewBuildContext(job)
	if err := w.claimer.MarkInProgress(jctx, job.ID); err != nil {
		bc.Errors = append(bc.Errors, "start: "+err.Error())
		bc.Progress = pipeline.Progress{Phase: pipeline.Failed, Step: -1}
	} else if err := w.pipeline.Execute(jctx, bc); err != nil {
		log.Warn("build failed", "err", err)
	}

	res := bc.Result(w.now())
	if err := w.claimer.ReportResult(rctx, job.ID, res); err != nil {
		w.cleanup(log, job.ID)
		return true, err
	}
	log.Info("job reported", "status", res.Status(), "commit", res.CommitSHA)
	w.cleanup(log, job.ID)
	return true, nil
}

func (w *Worker) cleanup(log *slog.Logger, jobID string) {
	if w.workspaces == nil {
		return
	}
	if err := w.workspaces.Remove(jobID); err != nil {
		log.Warn("removing workspace", "err", err)
	}
}

func (w *Worker) countClaim(result string) {
	if w.metrics != nil {
		w.metrics.Claims.WithLabelValues(result).Inc()
	}
}
