package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/flowforge/internal/automation"
	"github.com/aretw0/flowforge/internal/compiler"
	"github.com/aretw0/flowforge/internal/deploy"
	"github.com/aretw0/flowforge/internal/logging"
	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/aretw0/flowforge/pkg/flow"
	"github.com/aretw0/flowforge/pkg/ports"
)

// Step names, in pipeline order.
const (
	StepClone          = "Clone"
	StepParse          = "Parse"
	StepValidate       = "Validate"
	StepGenerate       = "Generate"
	StepCreateProject  = "CreateProject"
	StepConfigureTasks = "ConfigureTasks"
	StepCompile        = "Compile"
	StepBootArtifact   = "GenerateBootArtifact"
	StepCommit         = "Commit"
	StepDeploy         = "Deploy"
)

// DefaultFlowFile is where the flow document lives in a project repository.
const DefaultFlowFile = "flow.json"

// errNoSession is returned by steps that need the toolchain before
// CreateProject opened it.
var errNoSession = errors.New("no toolchain session open")

// TaskConfig shapes the real-time tasks created for generated programs.
type TaskConfig struct {
	CycleTime time.Duration
	Priority  int
}

// Deps are the collaborators of the standard steps.
type Deps struct {
	Repository    ports.Repository
	Compiler      *compiler.Compiler
	Toolchain     ports.ToolchainFactory
	BridgeOptions []automation.Option
	Templates     *TemplateManager
	Workspaces    *WorkspaceManager
	Machine       *deploy.Machine
	// Locker serializes deploys per target across workers. Optional.
	Locker  ports.DistributedLocker
	LockTTL time.Duration
	// FlowFile is the path of the flow document inside the repository.
	FlowFile string
	Tasks    TaskConfig
	Logger   *slog.Logger
}

// DefaultSteps builds the standard build pipeline.
func DefaultSteps(d Deps) []Step {
	if d.FlowFile == "" {
		d.FlowFile = DefaultFlowFile
	}
	if d.Tasks.CycleTime == 0 {
		d.Tasks.CycleTime = 10 * time.Millisecond
	}
	if d.Tasks.Priority == 0 {
		d.Tasks.Priority = 20
	}
	if d.LockTTL == 0 {
		d.LockTTL = 15 * time.Minute
	}
	if d.Logger == nil {
		d.Logger = logging.NewNop()
	}
	return []Step{
		StepFunc{StepClone, d.clone},
		StepFunc{StepParse, d.parse},
		StepFunc{StepValidate, d.validate},
		StepFunc{StepGenerate, d.generate},
		StepFunc{StepCreateProject, d.createProject},
		StepFunc{StepConfigureTasks, d.configureTasks},
		StepFunc{StepCompile, d.compile},
		StepFunc{StepBootArtifact, d.bootArtifact},
		StepFunc{StepCommit, d.commit},
		StepFunc{StepDeploy, d.deploy},
	}
}

func (d Deps) clone(ctx context.Context, bc *BuildContext) error {
	job := bc.Job
	if job.RepoURL == "" {
		return fmt.Errorf("job %s has no repository", job.ID)
	}
	if bc.Workspace == "" {
		ws, err := d.Workspaces.Create(job.ID)
		if err != nil {
			return err
		}
		bc.Workspace = ws
	}
	branch := job.Branch
	if branch == "" {
		branch = domain.DefaultBranch
	}
	return d.Repository.Clone(ctx, job.RepoURL, branch, bc.Workspace)
}

func (d Deps) parse(ctx context.Context, bc *BuildContext) error {
	data, err := os.ReadFile(filepath.Join(bc.Workspace, filepath.FromSlash(d.FlowFile)))
	if err != nil {
		return fmt.Errorf("read flow: %w", err)
	}
	doc, err := flow.Parse(data)
	if err != nil {
		return err
	}
	bc.Flow = doc
	bc.FlowName = flowName(bc.Job, doc, d.FlowFile)
	if doc.Name == "" {
		doc.Name = bc.FlowName
	}
	return nil
}

func flowName(job *domain.BuildJob, doc *flow.Document, file string) string {
	switch {
	case job.ProjectName != "":
		return job.ProjectName
	case doc.Name != "":
		return doc.Name
	}
	return strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
}

func (d Deps) validate(ctx context.Context, bc *BuildContext) error {
	return d.Compiler.Validate(bc.Flow)
}

func (d Deps) generate(ctx context.Context, bc *BuildContext) error {
	res, err := d.Compiler.Compile(bc.Flow)
	if err != nil {
		return err
	}
	bc.Compiled = res

	files, err := res.Files(bc.FlowName)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		path := filepath.Join(bc.Workspace, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, files[name], 0o644); err != nil {
			return err
		}
		bc.GeneratedFiles = append(bc.GeneratedFiles, name)
	}
	return nil
}

func (d Deps) createProject(ctx context.Context, bc *BuildContext) error {
	session, err := d.Toolchain.Open(ctx, bc.Job.ToolchainVersion)
	if err != nil {
		return fmt.Errorf("open toolchain %s: %w", bc.Job.ToolchainVersion, err)
	}
	b := automation.New(session, d.BridgeOptions...)
	bc.Bridge = b
	bc.AddCleanup(b.Close)

	template := d.Templates.Resolve(bc.Job.MachineType)
	if err := b.CreateProject(ctx, bc.Workspace, bc.FlowName, template); err != nil {
		return err
	}
	return b.AddArtifacts(ctx, bc.Compiled.Artifacts)
}

func (d Deps) configureTasks(ctx context.Context, bc *BuildContext) error {
	if bc.Bridge == nil {
		return errNoSession
	}
	var tasks []ports.TaskSpec
	for _, a := range bc.Compiled.Artifacts {
		if a.Kind != domain.ArtifactProgram {
			continue
		}
		tasks = append(tasks, ports.TaskSpec{
			Name:      a.Name + "_Task",
			CycleTime: d.Tasks.CycleTime,
			Priority:  d.Tasks.Priority + len(tasks),
			Program:   a.Name,
		})
	}
	return bc.Bridge.ConfigureTasks(ctx, tasks)
}

func (d Deps) compile(ctx context.Context, bc *BuildContext) error {
	if bc.Bridge == nil {
		return errNoSession
	}
	diags, err := bc.Bridge.Compile(ctx)
	bc.Diagnostics = diags
	return err
}

func (d Deps) bootArtifact(ctx context.Context, bc *BuildContext) error {
	if bc.Bridge == nil {
		return errNoSession
	}
	var netID string
	if bc.Connection != nil {
		netID = bc.Connection.NetID
	}
	return bc.Bridge.GenerateBootProject(ctx, netID)
}

func (d Deps) commit(ctx context.Context, bc *BuildContext) error {
	sha, err := d.Repository.Commit(ctx, bc.Workspace, "FlowForge build "+bc.Job.ID, bc.Job.RequestedBy)
	if err != nil {
		return err
	}
	bc.CommitSHA = sha
	return nil
}

func (d Deps) deploy(ctx context.Context, bc *BuildContext) (err error) {
	job := bc.Job
	if !job.IncludeDeploy {
		return nil
	}
	outcome := &domain.DeployOutcome{}
	if job.Deploy != nil {
		outcome.DeployID = job.Deploy.DeployID
	}
	bc.Deploy = outcome
	defer func() {
		outcome.Success = err == nil
		if err != nil {
			outcome.Error = err.Error()
		}
	}()

	if err := deploy.Authorize(job); err != nil {
		return err
	}
	if bc.Connection == nil {
		bc.Deploy = nil
		return nil
	}
	if bc.Bridge == nil {
		return errNoSession
	}

	if d.Locker != nil {
		unlock, err := d.Locker.Lock(ctx, bc.Connection.NetID, d.LockTTL)
		if err != nil {
			return fmt.Errorf("lock target %s: %w", bc.Connection.NetID, err)
		}
		defer func() {
			if uerr := unlock(context.WithoutCancel(ctx)); uerr != nil {
				d.Logger.Warn("releasing deploy lock", "job_id", job.ID, "net_id", bc.Connection.NetID, "err", uerr)
			}
		}()
	}
	return d.Machine.Run(ctx, bc.Connection, bc.Bridge)
}
