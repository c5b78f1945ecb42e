package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/flowforge/internal/automation"
	"github.com/aretw0/flowforge/internal/compiler"
	"github.com/aretw0/flowforge/internal/deploy"
	"github.com/aretw0/flowforge/internal/logging"
	"github.com/aretw0/flowforge/internal/pipeline"
	"github.com/aretw0/flowforge/pkg/adapters/memory"
	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/aretw0/flowforge/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const motorFlow = `{
  "name": "Motor",
  "nodes": [
    {"id": "entry", "type": "entry", "parameters": {}},
    {"id": "start", "type": "input", "parameters": {"variable": "bStart", "dataType": "BOOL"}},
    {"id": "delay", "type": "timer", "parameters": {"timerType": "TON", "presetMs": 500}},
    {"id": "motor", "type": "output", "parameters": {"variable": "bMotor", "dataType": "BOOL"}}
  ],
  "connections": [
    {"from": {"nodeId": "entry", "portName": "ENO"}, "to": {"nodeId": "delay", "portName": "EN"}},
    {"from": {"nodeId": "start", "portName": "OUT"}, "to": {"nodeId": "delay", "portName": "IN"}},
    {"from": {"nodeId": "delay", "portName": "Q"}, "to": {"nodeId": "motor", "portName": "IN"}}
  ]
}`

type fixture struct {
	repo   *memory.Repository
	tc     *memory.Toolchain
	device *memory.Device
	deps   pipeline.Deps
}

func newFixture(t *testing.T, flowJSON string, state domain.ControllerState, tcOpts ...memory.ToolchainOption) *fixture {
	f := &fixture{
		repo:   memory.NewRepository(map[string][]byte{pipeline.DefaultFlowFile: []byte(flowJSON)}),
		tc:     memory.NewToolchain(tcOpts...),
		device: memory.NewDevice(state),
	}
	f.deps = pipeline.Deps{
		Repository:    f.repo,
		Compiler:      compiler.New(),
		Toolchain:     f.tc,
		BridgeOptions: []automation.Option{automation.WithPolicy(automation.Policy{Interval: 20 * time.Millisecond, MaxAttempts: 5})},
		Workspaces:    pipeline.NewWorkspaceManager(t.TempDir()),
		Machine:       deploy.NewMachine(f.device),
		Locker:        memory.NewLocker(),
	}
	return f
}

func (f *fixture) run(t *testing.T, job *domain.BuildJob) (*pipeline.BuildContext, error) {
	bc := pipeline.NewBuildContext(job)
	err := pipeline.New(pipeline.DefaultSteps(f.deps)).Execute(context.Background(), bc)
	return bc, err
}

func buildJob(includeDeploy bool, target domain.Target) *domain.BuildJob {
	job := &domain.BuildJob{
		ID:               "job-42",
		ProjectID:        "proj-1",
		RepoURL:          "https://git.example.com/line1.git",
		ToolchainVersion: "4024.56",
		RequestedBy:      "alice",
		IncludeDeploy:    includeDeploy,
		TargetNetID:      target.NetID,
		Status:           domain.BuildInProgress,
	}
	if includeDeploy {
		job.Deploy = &domain.DeployAuthorization{DeployID: "dep-1", Target: target}
	}
	return job
}

func TestPipeline_BuildWithoutDeploy(t *testing.T) {
	f := newFixture(t, motorFlow, domain.StateRun)

	bc, err := f.run(t, buildJob(false, domain.Target{}))

	require.NoError(t, err)
	assert.Empty(t, bc.Errors)
	assert.Len(t, bc.Timings, 10)
	assert.Contains(t, bc.Timings, pipeline.StepDeploy)
	assert.Empty(t, f.device.Calls(), "no deploy requested")
	assert.Nil(t, bc.Deploy)

	assert.Equal(t, "Motor", bc.FlowName)
	assert.Contains(t, bc.GeneratedFiles, "plc/POUs/MAIN.st")
	assert.Contains(t, bc.GeneratedFiles, "plc/GVLs/GVL_Flow.st")
	assert.Contains(t, bc.GeneratedFiles, "plc/libraries.yaml")
	main, err := os.ReadFile(filepath.Join(bc.Workspace, "plc", "POUs", "MAIN.st"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(main), "PROGRAM MAIN\n"))

	assert.Equal(t, "4024.56", f.tc.Version())
	require.Len(t, f.tc.Tasks(), 1)
	assert.Equal(t, ports.TaskSpec{Name: "MAIN_Task", CycleTime: 10 * time.Millisecond, Priority: 20, Program: "MAIN"}, f.tc.Tasks()[0])
	assert.True(t, f.tc.Closed(), "session is released when the run ends")

	commits := f.repo.Commits()
	require.Len(t, commits, 1)
	assert.Equal(t, commits[0].SHA, bc.CommitSHA)
	assert.Equal(t, "alice", commits[0].Author)
	assert.Contains(t, commits[0].Files, "plc/POUs/MAIN.st")

	res := bc.Result(time.Now())
	assert.True(t, res.Success)
	assert.Equal(t, bc.CommitSHA, res.CommitSHA)
}

func TestPipeline_RunningControllerBlocksDeploy(t *testing.T) {
	f := newFixture(t, motorFlow, domain.StateRun)

	bc, err := f.run(t, buildJob(true, domain.Target{NetID: "5.1.2.3.1.1"}))

	var unsafe *domain.DeployUnsafeState
	require.ErrorAs(t, err, &unsafe)
	assert.NotContains(t, f.device.Calls(), "SwitchToConfigMode")
	assert.Equal(t, 0, f.device.OpenConns())
	require.Len(t, bc.Errors, 1)
	assert.True(t, strings.HasPrefix(bc.Errors[0], "Deploy: "))

	require.NotNil(t, bc.Deploy)
	assert.Equal(t, "dep-1", bc.Deploy.DeployID)
	assert.False(t, bc.Deploy.Success)
	assert.NotEmpty(t, bc.Deploy.Error)
	assert.NotEmpty(t, bc.CommitSHA, "steps before the failure keep their results")
}

func TestPipeline_DeploysToStoppedController(t *testing.T) {
	f := newFixture(t, motorFlow, domain.StateStop)

	bc, err := f.run(t, buildJob(true, domain.Target{NetID: "5.1.2.3.1.1", Host: "10.0.0.5"}))

	require.NoError(t, err)
	assert.Equal(t, []string{"5.1.2.3.1.1"}, f.tc.Activated())
	assert.Equal(t, domain.StateRun, f.device.State())
	assert.Equal(t, "10.0.0.5", f.device.LastDial().Host)
	require.NotNil(t, bc.Deploy)
	assert.True(t, bc.Deploy.Success)
}

// expiringLocker grants every lock but fails to release it, as when the
// lease lapsed during a long deploy.
type expiringLocker struct{}

func (expiringLocker) Lock(context.Context, string, time.Duration) (ports.UnlockFunc, error) {
	return func(context.Context) error { return errors.New("lock expired") }, nil
}

func TestPipeline_UnlockFailureIsLogged(t *testing.T) {
	f := newFixture(t, motorFlow, domain.StateStop)
	var buf bytes.Buffer
	f.deps.Locker = expiringLocker{}
	f.deps.Logger = logging.NewWithFormat(&buf, slog.LevelDebug, logging.FormatText)

	bc, err := f.run(t, buildJob(true, domain.Target{NetID: "5.1.2.3.1.1", Host: "10.0.0.5"}))

	require.NoError(t, err)
	require.NotNil(t, bc.Deploy)
	assert.True(t, bc.Deploy.Success)
	assert.Contains(t, buf.String(), `msg="releasing deploy lock"`)
	assert.Contains(t, buf.String(), "net_id=5.1.2.3.1.1")
	assert.Contains(t, buf.String(), `err="lock expired"`)
}

func TestPipeline_LockedTargetIsNeverDialed(t *testing.T) {
	f := newFixture(t, motorFlow, domain.StateStop)

	_, err := f.run(t, buildJob(true, domain.Target{NetID: "5.1.2.3.1.1", DeployLocked: true}))

	var locked *domain.DeployLocked
	require.ErrorAs(t, err, &locked)
	assert.Empty(t, f.device.Calls())
}

func TestPipeline_InvalidFlowStopsBeforeToolchain(t *testing.T) {
	broken := strings.Replace(motorFlow, `"nodeId": "motor", "portName": "IN"`, `"nodeId": "ghost", "portName": "IN"`, 1)
	f := newFixture(t, broken, domain.StateStop)

	bc, err := f.run(t, buildJob(false, domain.Target{}))

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	var dangling *domain.DanglingConnection
	require.ErrorAs(t, verr.Errors[0], &dangling)
	assert.Equal(t, "ghost", dangling.ToNode)

	assert.Empty(t, f.tc.Calls())
	assert.NotContains(t, bc.Timings, pipeline.StepGenerate)
	assert.True(t, strings.HasPrefix(bc.Errors[0], "Validate: invalid flow"))
}

func TestPipeline_BusyToolchainIsRetried(t *testing.T) {
	f := newFixture(t, motorFlow, domain.StateStop, memory.WithBusy("Compile", 3))

	bc, err := f.run(t, buildJob(false, domain.Target{}))

	require.NoError(t, err)
	assert.Equal(t, 4, f.tc.Count("Compile"))
	assert.GreaterOrEqual(t, bc.Timings[pipeline.StepCompile], 60*time.Millisecond)
}

func TestPipeline_CompileErrorKeepsDiagnostics(t *testing.T) {
	diags := []string{"MAIN (7): C0077: Unknown type: 'TONX'"}
	f := newFixture(t, motorFlow, domain.StateStop, memory.WithDiagnostics(ports.Diagnostics{Errors: diags}))

	bc, err := f.run(t, buildJob(false, domain.Target{}))

	var compileErr *domain.CompileError
	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, diags, compileErr.Diagnostics)
	assert.Equal(t, diags, bc.Diagnostics.Errors)
	assert.Empty(t, f.repo.Commits())
	assert.True(t, f.tc.Closed())
}

func TestWorkspaceManager(t *testing.T) {
	base := t.TempDir()
	m := pipeline.NewWorkspaceManager(base)

	ws, err := m.Create("job-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "job-1"), ws)
	require.NoError(t, os.WriteFile(filepath.Join(ws, "stale"), nil, 0o644))

	ws, err = m.Create("job-1")
	require.NoError(t, err)
	entries, err := os.ReadDir(ws)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, m.Remove("job-1"))
	assert.NoDirExists(t, ws)
	require.NoError(t, m.Remove("job-1"))

	_, err = m.Create("../escape")
	assert.Error(t, err)
}

func TestTemplateManager(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "3-axis-standalone.tpzip"), []byte("zip"), 0o644))
	m := pipeline.NewTemplateManager(base)

	assert.Equal(t, filepath.Join(base, "3-axis-standalone.tpzip"), m.Resolve("3-axis-standalone"))
	assert.Empty(t, m.Resolve("press"))
	assert.Empty(t, m.Resolve(""))
	assert.Empty(t, (*pipeline.TemplateManager)(nil).Resolve("press"))
}
