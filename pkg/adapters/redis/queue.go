package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/aretw0/flowforge/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// Each job is a hash holding the original request as JSON under "job" plus
// one field per mutable attribute. Pending job ids sit in one sorted set per
// toolchain version, scored by creation time in microseconds.

var enqueueScript = backend.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], "job", ARGV[1], "status", "pending")
redis.call("ZADD", KEYS[2], ARGV[2], ARGV[3])
return 1
`)

// claimScript pops the oldest pending id and marks the job claimed. Redis runs
// scripts one at a time, so two claimants can never pop the same id.
var claimScript = backend.NewScript(`
local ids = redis.call("ZRANGE", KEYS[1], 0, 0)
if #ids == 0 then
	return false
end
local id = ids[1]
redis.call("ZREM", KEYS[1], id)
redis.call("HSET", ARGV[1] .. id, "status", "claimed", "claimedBy", ARGV[2], "startedAt", ARGV[3])
return id
`)

var startScript = backend.NewScript(`
local status = redis.call("HGET", KEYS[1], "status")
if not status then
	return "missing"
end
if status ~= "claimed" then
	return status
end
redis.call("HSET", KEYS[1], "status", "in_progress")
return "ok"
`)

var reportScript = backend.NewScript(`
local status = redis.call("HGET", KEYS[1], "status")
if not status then
	return "missing"
end
if status ~= "claimed" and status ~= "in_progress" then
	return status
end
redis.call("HSET", KEYS[1], "status", ARGV[1], "completedAt", ARGV[2], "commitSha", ARGV[3], "errors", ARGV[4])
if tonumber(ARGV[5]) > 0 then
	redis.call("EXPIRE", KEYS[1], ARGV[5])
end
return "ok"
`)

// Queue implements ports.JobQueue on Redis.
type Queue struct {
	client *backend.Client
	opts   options
}

var _ ports.JobQueue = (*Queue)(nil)

// NewQueue creates a job queue on an existing client.
func NewQueue(client *backend.Client, opts ...Option) *Queue {
	return &Queue{client: client, opts: buildOptions(opts)}
}

func (q *Queue) jobPrefix() string { return q.opts.prefix + "job:" }

func (q *Queue) jobKey(id string) string { return q.jobPrefix() + id }

func (q *Queue) pendingKey(version string) string {
	return q.opts.prefix + "pending:" + version
}

// Enqueue stores job as Pending.
func (q *Queue) Enqueue(ctx context.Context, job *domain.BuildJob) error {
	if job.ID == "" {
		return errors.New("enqueue: job id is required")
	}
	j := job.Snapshot()
	j.Status = domain.BuildPending
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	added, err := enqueueScript.Run(ctx, q.client,
		[]string{q.jobKey(j.ID), q.pendingKey(j.ToolchainVersion)},
		data, j.CreatedAt.UnixMicro(), j.ID,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", j.ID, err)
	}
	if added == 0 {
		return fmt.Errorf("enqueue: job %s already exists", j.ID)
	}
	return nil
}

// ClaimNext atomically claims the oldest pending job of toolchainVersion.
func (q *Queue) ClaimNext(ctx context.Context, toolchainVersion, workerID string) (*domain.BuildJob, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	id, err := claimScript.Run(ctx, q.client,
		[]string{q.pendingKey(toolchainVersion)},
		q.jobPrefix(), workerID, now,
	).Text()
	if errors.Is(err, backend.Nil) {
		return nil, domain.ErrClaimConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return q.Get(ctx, id)
}

// MarkInProgress moves a claimed job to InProgress.
func (q *Queue) MarkInProgress(ctx context.Context, jobID string) error {
	res, err := startScript.Run(ctx, q.client, []string{q.jobKey(jobID)}).Text()
	if err != nil {
		return fmt.Errorf("failed to start job %s: %w", jobID, err)
	}
	switch res {
	case "ok":
		return nil
	case "missing":
		return domain.ErrJobNotFound
	}
	return fmt.Errorf("%w: job %s is %s", domain.ErrInvalidTransition, jobID, res)
}

// ReportResult records the final outcome of a claimed job.
func (q *Queue) ReportResult(ctx context.Context, jobID string, result domain.BuildResult) error {
	_, err := q.RecordResult(ctx, jobID, result)
	return err
}

// RecordResult is ReportResult that tells whether the job changed.
func (q *Queue) RecordResult(ctx context.Context, jobID string, result domain.BuildResult) (bool, error) {
	completed := result.CompletedAt
	if completed.IsZero() {
		completed = time.Now().UTC()
	}
	errs, err := json.Marshal(result.Errors)
	if err != nil {
		return false, fmt.Errorf("failed to marshal errors: %w", err)
	}

	res, err := reportScript.Run(ctx, q.client, []string{q.jobKey(jobID)},
		string(result.Status()),
		completed.Format(time.RFC3339Nano),
		result.CommitSHA,
		errs,
		int64(q.opts.retention/time.Second),
	).Text()
	if err != nil {
		return false, fmt.Errorf("failed to report job %s: %w", jobID, err)
	}
	switch res {
	case "ok":
		return true, nil
	case "missing":
		return false, domain.ErrJobNotFound
	}
	if domain.BuildStatus(res).Terminal() {
		return false, nil
	}
	return false, fmt.Errorf("%w: job %s is %s", domain.ErrInvalidTransition, jobID, res)
}

// Get returns the current state of a job.
func (q *Queue) Get(ctx context.Context, jobID string) (*domain.BuildJob, error) {
	fields, err := q.client.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	raw, ok := fields["job"]
	if !ok {
		return nil, domain.ErrJobNotFound
	}

	var job domain.BuildJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}
	job.Status = domain.BuildStatus(fields["status"])
	job.ClaimedBy = fields["claimedBy"]
	job.CommitSHA = fields["commitSha"]
	if job.StartedAt, err = parseTime(fields["startedAt"]); err != nil {
		return nil, err
	}
	if job.CompletedAt, err = parseTime(fields["completedAt"]); err != nil {
		return nil, err
	}
	if e := fields["errors"]; e != "" && e != "null" {
		if err := json.Unmarshal([]byte(e), &job.Errors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal errors of job %s: %w", jobID, err)
		}
	}
	return &job, nil
}

// Pending returns the number of jobs waiting for toolchainVersion.
func (q *Queue) Pending(ctx context.Context, toolchainVersion string) (int64, error) {
	return q.client.ZCard(ctx, q.pendingKey(toolchainVersion)).Result()
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %s: %w", strconv.Quote(s), err)
	}
	return &t, nil
}
