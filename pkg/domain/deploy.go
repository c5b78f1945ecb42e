package domain

import "time"

// DeployStatus is the lifecycle state of a deploy record.
type DeployStatus string

const (
	DeployPending          DeployStatus = "pending"
	DeployAwaitingApproval DeployStatus = "awaiting_approval"
	DeployApproved         DeployStatus = "approved"
	DeployInProgress       DeployStatus = "in_progress"
	DeployCompleted        DeployStatus = "completed"
	DeployFailed           DeployStatus = "failed"
	DeployRejected         DeployStatus = "rejected"
)

// Terminal reports whether the record can no longer change.
func (s DeployStatus) Terminal() bool {
	return s == DeployCompleted || s == DeployFailed || s == DeployRejected
}

// DeployRecord tracks one attempt to put a build onto a controller.
type DeployRecord struct {
	ID          string       `json:"id"`
	BuildJobID  string       `json:"buildJobId"`
	TargetNetID string       `json:"targetNetId"`
	Status      DeployStatus `json:"status"`
	RequestedBy string       `json:"requestedBy"`
	ApprovedBy  string       `json:"approvedBy,omitempty"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
}

// Target describes a controller that builds can be deployed to. It is owned
// by an external registry and read-only to the engine.
type Target struct {
	NetID            string `json:"netId" yaml:"net_id"`
	Name             string `json:"name" yaml:"name"`
	Host             string `json:"host,omitempty" yaml:"host"`
	Port             int    `json:"port,omitempty" yaml:"port"`
	TCPPort          int    `json:"tcpPort,omitempty" yaml:"tcp_port"`
	ToolchainVersion string `json:"toolchainVersion,omitempty" yaml:"toolchain_version"`
	Production       bool   `json:"production" yaml:"production"`
	DeployLocked     bool   `json:"deployLocked" yaml:"deploy_locked"`
}

// Connection resolves the device connection parameters of the target.
func (t Target) Connection() ConnectionInfo {
	info := ConnectionInfo{
		NetID:   t.NetID,
		Port:    t.Port,
		Host:    t.Host,
		TCPPort: t.TCPPort,
	}
	return info.WithDefaults()
}

// DeployAuthorization is the snapshot of authorization inputs the queue owner
// attaches to a claimed job.
type DeployAuthorization struct {
	DeployID   string `json:"deployId"`
	Target     Target `json:"target"`
	ApprovedBy string `json:"approvedBy,omitempty"`
	Rejected   bool   `json:"rejected,omitempty"`
}

// DeployOutcome is reported back with the build result when a deploy ran.
type DeployOutcome struct {
	DeployID string `json:"deployId"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}
