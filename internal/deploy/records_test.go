package deploy_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/flowforge/internal/deploy"
	"github.com/aretw0/flowforge/pkg/adapters/memory"
	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordsFixture struct {
	queue   *memory.Queue
	deploys *memory.DeployStore
	records *deploy.Records
}

func newRecordsFixture(t *testing.T, target domain.Target, status domain.DeployStatus) *recordsFixture {
	t.Helper()
	ctx := context.Background()
	f := &recordsFixture{queue: memory.NewQueue(), deploys: memory.NewDeployStore()}
	f.records = deploy.NewRecords(f.queue, f.deploys, memory.NewTargets(target), nil)

	require.NoError(t, f.queue.Enqueue(ctx, &domain.BuildJob{
		ID: "job-1", ProjectID: "p", ToolchainVersion: "3.1", RequestedBy: "alice",
		IncludeDeploy: true, TargetNetID: target.NetID, CreatedAt: time.Now(),
	}))
	require.NoError(t, f.deploys.Create(ctx, &domain.DeployRecord{
		ID: "dep-1", BuildJobID: "job-1", TargetNetID: target.NetID, Status: status,
		RequestedBy: "alice", ApprovedBy: "bob", CreatedAt: time.Now(),
	}))
	return f
}

func TestRecords_ClaimAttachesAuthorization(t *testing.T) {
	line := domain.Target{NetID: "5.1.2.3.1.1", Name: "line", Production: true}
	f := newRecordsFixture(t, line, domain.DeployApproved)

	job, err := f.records.ClaimNext(context.Background(), "3.1", "w1")
	require.NoError(t, err)
	require.NotNil(t, job.Deploy)
	assert.Equal(t, "dep-1", job.Deploy.DeployID)
	assert.Equal(t, "bob", job.Deploy.ApprovedBy)
	assert.Equal(t, line, job.Deploy.Target)
	assert.False(t, job.Deploy.Rejected)
	assert.NoError(t, deploy.Authorize(job))
}

func TestRecords_ResultSettlesDeploy(t *testing.T) {
	tests := []struct {
		name   string
		result domain.BuildResult
		status domain.DeployStatus
		errMsg string
	}{
		{"deployed", domain.BuildResult{Success: true, Deploy: &domain.DeployOutcome{Success: true}}, domain.DeployCompleted, ""},
		{"deploy failed", domain.BuildResult{Deploy: &domain.DeployOutcome{Error: "unsafe state"}}, domain.DeployFailed, "unsafe state"},
		{"build failed", domain.BuildResult{Errors: []string{"Compile: boom"}}, domain.DeployFailed, "build failed before deploy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newRecordsFixture(t, domain.Target{NetID: "5.1.2.3.1.1"}, domain.DeployPending)
			_, err := f.records.ClaimNext(ctx, "3.1", "w1")
			require.NoError(t, err)

			tt.result.CompletedAt = time.Now()
			require.NoError(t, f.records.ReportResult(ctx, "job-1", tt.result))

			rec, err := f.deploys.Get(ctx, "dep-1")
			require.NoError(t, err)
			assert.Equal(t, tt.status, rec.Status)
			assert.Equal(t, tt.errMsg, rec.Error)
			assert.NotNil(t, rec.CompletedAt)
		})
	}
}

func TestRecords_TerminalRecordIsKept(t *testing.T) {
	ctx := context.Background()
	f := newRecordsFixture(t, domain.Target{NetID: "5.1.2.3.1.1"}, domain.DeployRejected)
	job, err := f.records.ClaimNext(ctx, "3.1", "w1")
	require.NoError(t, err)
	assert.True(t, job.Deploy.Rejected)

	require.NoError(t, f.records.ReportResult(ctx, "job-1", domain.BuildResult{Success: true}))
	rec, err := f.deploys.Get(ctx, "dep-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DeployRejected, rec.Status)
}

func TestRecords_RepeatedReportObservedOnce(t *testing.T) {
	ctx := context.Background()
	queue, deploys := memory.NewQueue(), memory.NewDeployStore()
	var observed []domain.BuildResult
	records := deploy.NewRecords(queue, deploys, memory.NewTargets(), nil,
		deploy.ObserveResults(func(r domain.BuildResult) { observed = append(observed, r) }))

	require.NoError(t, queue.Enqueue(ctx, &domain.BuildJob{
		ID: "job-1", ProjectID: "p", ToolchainVersion: "3.1", RequestedBy: "alice", CreatedAt: time.Now(),
	}))
	_, err := records.ClaimNext(ctx, "3.1", "w1")
	require.NoError(t, err)

	res := domain.BuildResult{Success: true, CompletedAt: time.Now()}
	require.NoError(t, records.ReportResult(ctx, "job-1", res))
	require.NoError(t, records.ReportResult(ctx, "job-1", res))
	assert.Len(t, observed, 1)
}
