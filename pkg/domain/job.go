package domain

import "time"

// BuildStatus is the lifecycle state of a build job.
type BuildStatus string

const (
	BuildPending    BuildStatus = "pending"
	BuildClaimed    BuildStatus = "claimed"
	BuildInProgress BuildStatus = "in_progress"
	BuildCompleted  BuildStatus = "completed"
	BuildFailed     BuildStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s BuildStatus) Terminal() bool {
	return s == BuildCompleted || s == BuildFailed
}

// Valid reports whether s is one of the known statuses.
func (s BuildStatus) Valid() bool {
	switch s {
	case BuildPending, BuildClaimed, BuildInProgress, BuildCompleted, BuildFailed:
		return true
	}
	return false
}

// BuildJob is a request to compile (and optionally deploy) one project.
//
// A job is created Pending by a build request. Only the claim operation and
// result reporting mutate it afterwards, and it is immutable once terminal.
type BuildJob struct {
	ID               string      `json:"id"`
	ProjectID        string      `json:"projectId"`
	ProjectName      string      `json:"projectName,omitempty"`
	RepoURL          string      `json:"repoUrl,omitempty"`
	Branch           string      `json:"branch,omitempty"`
	MachineType      string      `json:"machineType,omitempty"`
	ToolchainVersion string      `json:"toolchainVersion"`
	RequestedBy      string      `json:"requestedBy"`
	IncludeDeploy    bool        `json:"includeDeploy"`
	TargetNetID      string      `json:"targetNetId,omitempty"`
	Status           BuildStatus `json:"status"`
	ClaimedBy        string      `json:"claimedBy,omitempty"`
	CommitSHA        string      `json:"commitSha,omitempty"`
	Errors           []string    `json:"errors,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	StartedAt        *time.Time  `json:"startedAt,omitempty"`
	CompletedAt      *time.Time  `json:"completedAt,omitempty"`

	// Deploy is attached by the queue owner when the job is claimed. The
	// engine treats it as read-only input.
	Deploy *DeployAuthorization `json:"deploy,omitempty"`
}

// Snapshot returns a deep copy of the job.
func (j *BuildJob) Snapshot() *BuildJob {
	if j == nil {
		return nil
	}
	c := *j
	if j.Errors != nil {
		c.Errors = append([]string(nil), j.Errors...)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.Deploy != nil {
		d := *j.Deploy
		c.Deploy = &d
	}
	return &c
}

// BuildRequest is the payload accepted when a build is requested.
type BuildRequest struct {
	ProjectID        string `json:"projectId"`
	ProjectName      string `json:"projectName,omitempty"`
	RepoURL          string `json:"repoUrl"`
	Branch           string `json:"branch,omitempty"`
	MachineType      string `json:"machineType,omitempty"`
	ToolchainVersion string `json:"toolchainVersion"`
	RequestedBy      string `json:"requestedBy"`
	IncludeDeploy    bool   `json:"includeDeploy"`
	TargetNetID      string `json:"targetNetId,omitempty"`
}

// BuildResult is reported by a worker once the pipeline has finished.
type BuildResult struct {
	Success     bool                     `json:"success"`
	Errors      []string                 `json:"errors"`
	CommitSHA   string                   `json:"commitSha,omitempty"`
	CompletedAt time.Time                `json:"completedAt"`
	Timings     map[string]time.Duration `json:"timings,omitempty"`
	Deploy      *DeployOutcome           `json:"deploy,omitempty"`
}

// Status maps the result onto the terminal job status.
func (r BuildResult) Status() BuildStatus {
	if r.Success {
		return BuildCompleted
	}
	return BuildFailed
}
