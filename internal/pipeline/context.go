package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/aretw0/flowforge/internal/automation"
	"github.com/aretw0/flowforge/internal/compiler"
	"github.com/aretw0/flowforge/internal/deploy"
	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/aretw0/flowforge/pkg/flow"
	"github.com/aretw0/flowforge/pkg/ports"
)

// Phase is the coarse state of a pipeline run.
type Phase int

const (
	NotStarted Phase = iota
	Running
	Succeeded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return "not_started"
}

// Progress tells where a run is. Step is the index of the running or failed
// step and -1 otherwise.
type Progress struct {
	Phase Phase
	Step  int
}

// BuildContext is the working state of one job. It belongs to a single run
// and is discarded once the result is reported.
type BuildContext struct {
	Job       *domain.BuildJob
	Workspace string

	Flow     *flow.Document
	FlowName string

	// Connection is nil unless the job deploys to a resolved target.
	Connection *domain.ConnectionInfo

	Compiled       *compiler.Result
	GeneratedFiles []string
	Bridge         *automation.Bridge
	Diagnostics    ports.Diagnostics
	CommitSHA      string
	Deploy         *domain.DeployOutcome

	Errors   []string
	Timings  map[string]time.Duration
	Progress Progress

	cleanups []func(context.Context) error
}

// NewBuildContext prepares the context for a claimed job.
func NewBuildContext(job *domain.BuildJob) *BuildContext {
	return &BuildContext{
		Job:        job,
		Connection: deploy.Connection(job),
		Timings:    make(map[string]time.Duration),
		Progress:   Progress{Phase: NotStarted, Step: -1},
	}
}

// AddCleanup registers a release function for a resource acquired during the
// run. Cleanups run in reverse order of registration.
func (bc *BuildContext) AddCleanup(fn func(context.Context) error) {
	bc.cleanups = append(bc.cleanups, fn)
}

// Release runs and forgets every registered cleanup.
func (bc *BuildContext) Release(ctx context.Context) error {
	var errs []error
	for i := len(bc.cleanups) - 1; i >= 0; i-- {
		if err := bc.cleanups[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	bc.cleanups = nil
	return errors.Join(errs...)
}

// Result summarizes the run for reporting.
func (bc *BuildContext) Result(completed time.Time) domain.BuildResult {
	timings := make(map[string]time.Duration, len(bc.Timings))
	for k, v := range bc.Timings {
		timings[k] = v
	}
	return domain.BuildResult{
		Success:     bc.Progress.Phase == Succeeded && len(bc.Errors) == 0,
		Errors:      append([]string{}, bc.Errors...),
		CommitSHA:   bc.CommitSHA,
		CompletedAt: completed,
		Timings:     timings,
		Deploy:      bc.Deploy,
	}
}
