package ports

import (
	"context"
	"time"
)

// UnitSpec describes a node to add to the toolchain project tree.
type UnitSpec struct {
	// ParentPath is the tree path of the parent item.
	ParentPath string
	Name       string
	// SubType is the vendor item sub type code.
	SubType        int
	Declaration    string
	Implementation string
}

// TaskSpec describes a real-time task and the program it runs.
type TaskSpec struct {
	Name      string
	CycleTime time.Duration
	Priority  int
	Program   string
}

// Diagnostics is the message list of a build.
type Diagnostics struct {
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ToolchainSession is one stateful session with the vendor build tool. It is
// not safe for concurrent use: calls are made strictly one after another.
//
// Calls may fail with domain.ErrToolchainBusy while the tool is busy; such
// calls can be repeated.
type ToolchainSession interface {
	CreateSolution(ctx context.Context, dir, name string) error
	CreateProject(ctx context.Context, name, template string) error
	AddUnit(ctx context.Context, unit UnitSpec) error
	CreateTask(ctx context.Context, task TaskSpec) error

	// Compile builds the project. A build that ran but reported errors
	// returns them in Diagnostics with a nil error.
	Compile(ctx context.Context) (Diagnostics, error)

	GenerateBootProject(ctx context.Context, netID string) error
	ActivateConfiguration(ctx context.Context, netID string) error
	Close(ctx context.Context) error
}

// ToolchainFactory opens sessions for a given toolchain version.
type ToolchainFactory interface {
	Open(ctx context.Context, version string) (ToolchainSession, error)
}
