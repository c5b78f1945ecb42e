package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/flowforge/internal/pipeline"
	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingSteps(n, failAt int, ran *[]string) []pipeline.Step {
	steps := make([]pipeline.Step, n)
	for i := range steps {
		name := fmt.Sprintf("step%d", i+1)
		fail := i+1 == failAt
		steps[i] = pipeline.StepFunc{StepName: name, Fn: func(ctx context.Context, bc *pipeline.BuildContext) error {
			*ran = append(*ran, name)
			if fail {
				return errors.New("boom")
			}
			return nil
		}}
	}
	return steps
}

func TestOrchestrator_StopsAtFirstFailure(t *testing.T) {
	var ran []string
	var started, ended []string
	hooks := domain.LifecycleHooks{
		OnStepStart: func(_ context.Context, e *domain.StepEvent) { started = append(started, e.Step) },
		OnStepEnd:   func(_ context.Context, e *domain.StepEvent) { ended = append(ended, e.Step) },
	}
	o := pipeline.New(recordingSteps(5, 3, &ran), pipeline.WithHooks(hooks))
	bc := pipeline.NewBuildContext(&domain.BuildJob{ID: "job-1"})

	err := o.Execute(context.Background(), bc)

	var stepErr *domain.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "step3", stepErr.Step)
	assert.Equal(t, []string{"step1", "step2", "step3"}, ran)
	assert.Equal(t, ran, started)
	assert.Equal(t, ran, ended)

	for _, name := range []string{"step1", "step2", "step3"} {
		assert.Contains(t, bc.Timings, name)
	}
	assert.NotContains(t, bc.Timings, "step4")
	assert.NotContains(t, bc.Timings, "step5")
	assert.Equal(t, []string{"step3: boom"}, bc.Errors)
	assert.Equal(t, pipeline.Progress{Phase: pipeline.Failed, Step: 2}, bc.Progress)

	res := bc.Result(bc.Job.CreatedAt)
	assert.False(t, res.Success)
	assert.Equal(t, domain.BuildFailed, res.Status())
}

func TestOrchestrator_Succeeds(t *testing.T) {
	var ran []string
	o := pipeline.New(recordingSteps(4, 0, &ran))
	bc := pipeline.NewBuildContext(&domain.BuildJob{ID: "job-1"})

	require.NoError(t, o.Execute(context.Background(), bc))
	assert.Len(t, ran, 4)
	assert.Len(t, bc.Timings, 4)
	assert.Equal(t, pipeline.Succeeded, bc.Progress.Phase)
	assert.True(t, bc.Result(bc.Job.CreatedAt).Success)
	assert.Equal(t, []string{"step1", "step2", "step3", "step4"}, o.Steps())
}

func TestOrchestrator_CancellationIsCheckedBeforeEachStep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ran []string
	steps := []pipeline.Step{
		pipeline.StepFunc{StepName: "first", Fn: func(context.Context, *pipeline.BuildContext) error {
			ran = append(ran, "first")
			cancel()
			return nil
		}},
		pipeline.StepFunc{StepName: "second", Fn: func(context.Context, *pipeline.BuildContext) error {
			ran = append(ran, "second")
			return nil
		}},
	}
	bc := pipeline.NewBuildContext(&domain.BuildJob{ID: "job-1"})

	err := pipeline.New(steps).Execute(ctx, bc)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"first"}, ran)
	assert.Equal(t, []string{"second: context canceled"}, bc.Errors)
	assert.NotContains(t, bc.Timings, "second")
}

func TestOrchestrator_DeadlineCauseIsReported(t *testing.T) {
	deadline := fmt.Errorf("%w: job ran longer than 10ms", domain.ErrTimeout)
	ctx, cancel := context.WithTimeoutCause(context.Background(), 10*time.Millisecond, deadline)
	defer cancel()
	steps := []pipeline.Step{
		pipeline.StepFunc{StepName: "Clone", Fn: func(ctx context.Context, _ *pipeline.BuildContext) error {
			<-ctx.Done()
			return errors.New("git clone: signal: killed")
		}},
	}
	bc := pipeline.NewBuildContext(&domain.BuildJob{ID: "job-1"})

	err := pipeline.New(steps).Execute(ctx, bc)

	var serr *domain.StepError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "Clone", serr.Step)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	require.Len(t, bc.Errors, 1)
	assert.Equal(t, "Clone: timeout: job ran longer than 10ms: git clone: signal: killed", bc.Errors[0])
}

func TestOrchestrator_ReleasesResourcesInReverseOrder(t *testing.T) {
	var released []string
	acquire := func(name string) pipeline.Step {
		return pipeline.StepFunc{StepName: name, Fn: func(_ context.Context, bc *pipeline.BuildContext) error {
			bc.AddCleanup(func(context.Context) error {
				released = append(released, name)
				return nil
			})
			if name == "device" {
				return errors.New("unreachable")
			}
			return nil
		}}
	}
	bc := pipeline.NewBuildContext(&domain.BuildJob{ID: "job-1"})

	err := pipeline.New([]pipeline.Step{acquire("session"), acquire("device")}).Execute(context.Background(), bc)

	require.Error(t, err)
	assert.Equal(t, []string{"device", "session"}, released)
	assert.NoError(t, bc.Release(context.Background()), "cleanups run once")
	assert.Len(t, released, 2)
}
