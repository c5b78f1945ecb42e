package deploy

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aretw0/flowforge/internal/logging"
	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/aretw0/flowforge/pkg/ports"
)

// Records keeps deploy records in step with the jobs they belong to. It
// wraps the claiming side of a queue: claimed jobs get their authorization
// snapshot attached and reported results close their deploy record.
type Records struct {
	claimer ports.JobClaimer
	deploys ports.DeployRecordStore
	targets ports.TargetRegistry
	logger  *slog.Logger
	observe func(domain.BuildResult)
}

var _ ports.JobClaimer = (*Records)(nil)

// RecordsOption configures Records.
type RecordsOption func(*Records)

// ObserveResults calls fn once for every job a reported result finishes.
// Repeated reports of a finished job are not observed.
func ObserveResults(fn func(domain.BuildResult)) RecordsOption {
	return func(r *Records) { r.observe = fn }
}

// NewRecords wraps claimer. A nil logger discards output.
func NewRecords(claimer ports.JobClaimer, deploys ports.DeployRecordStore, targets ports.TargetRegistry, logger *slog.Logger, opts ...RecordsOption) *Records {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Records{claimer: claimer, deploys: deploys, targets: targets, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Records) ClaimNext(ctx context.Context, toolchainVersion, workerID string) (*domain.BuildJob, error) {
	job, err := r.claimer.ClaimNext(ctx, toolchainVersion, workerID)
	if err != nil {
		return nil, err
	}
	if job.IncludeDeploy {
		job.Deploy = r.Authorization(ctx, job)
	}
	return job, nil
}

func (r *Records) MarkInProgress(ctx context.Context, jobID string) error {
	return r.claimer.MarkInProgress(ctx, jobID)
}

// ReportResult stores the result and then settles the deploy record. A
// failure to settle is logged, the result itself is already accepted.
// When the queue tells repeated reports apart, only the report that
// finished the job is settled and observed.
func (r *Records) ReportResult(ctx context.Context, jobID string, res domain.BuildResult) error {
	changed := true
	var err error
	if rec, ok := r.claimer.(ports.ResultRecorder); ok {
		changed, err = rec.RecordResult(ctx, jobID, res)
	} else {
		err = r.claimer.ReportResult(ctx, jobID, res)
	}
	if err != nil {
		return err
	}
	if !changed {
		r.logger.Debug("repeated result ignored", "job_id", jobID)
		return nil
	}
	if err := r.Settle(ctx, jobID, res); err != nil {
		r.logger.Error("updating deploy record", "job_id", jobID, "err", err)
	}
	if r.observe != nil {
		r.observe(res)
	}
	return nil
}

// Authorization snapshots the deploy inputs of a job. A job whose record or
// target cannot be read gets none, which fails its deploy.
func (r *Records) Authorization(ctx context.Context, job *domain.BuildJob) *domain.DeployAuthorization {
	rec, err := r.deploys.FindByJob(ctx, job.ID)
	if err != nil {
		r.logger.Warn("no deploy record for claimed job", "job_id", job.ID, "err", err)
		return nil
	}
	target, err := r.targets.Target(ctx, rec.TargetNetID)
	if err != nil {
		r.logger.Warn("deploy target not resolvable", "job_id", job.ID, "net_id", rec.TargetNetID, "err", err)
		return nil
	}
	return &domain.DeployAuthorization{
		DeployID:   rec.ID,
		Target:     target,
		ApprovedBy: rec.ApprovedBy,
		Rejected:   rec.Status == domain.DeployRejected,
	}
}

// Settle closes the deploy record of a finished job. Jobs without a record
// and records already closed are left alone.
func (r *Records) Settle(ctx context.Context, jobID string, res domain.BuildResult) error {
	rec, err := r.deploys.FindByJob(ctx, jobID)
	if errors.Is(err, domain.ErrDeployNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return r.deploys.Update(ctx, rec.ID, func(rec *domain.DeployRecord) error {
		if rec.Status.Terminal() {
			return nil
		}
		switch {
		case res.Deploy != nil && res.Deploy.Success:
			rec.Status = domain.DeployCompleted
		case res.Deploy != nil:
			rec.Status = domain.DeployFailed
			rec.Error = res.Deploy.Error
		case !res.Success:
			rec.Status = domain.DeployFailed
			rec.Error = "build failed before deploy"
		default:
			return nil
		}
		completed := res.CompletedAt
		rec.CompletedAt = &completed
		return nil
	})
}
