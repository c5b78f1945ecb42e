package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrClaimConflict is returned by a claim when no job is available. It is soft:
// the caller retries later.
var ErrClaimConflict = errors.New("no claimable build job")

// ErrJobNotFound is returned when a build job id is unknown.
var ErrJobNotFound = errors.New("build job not found")

// ErrDeployNotFound is returned when a deploy record id is unknown.
var ErrDeployNotFound = errors.New("deploy record not found")

// ErrTargetNotFound is returned when a controller NetId is not registered.
var ErrTargetNotFound = errors.New("target not found")

// ErrInvalidTransition is returned when a status change is not allowed from
// the current status.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrToolchainBusy signals that the automation host rejected a call because it
// is busy. Calls failing with it may be retried.
var ErrToolchainBusy = errors.New("toolchain busy")

// ErrTimeout is returned when a bounded wait on an external call is exceeded.
var ErrTimeout = errors.New("timeout")

// ErrConnectionLost is returned when the device cannot be reached. The device
// state must be treated as unknown afterwards.
var ErrConnectionLost = errors.New("device connection lost")

// ToolchainUnavailable is returned once busy retries are exhausted.
type ToolchainUnavailable struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ToolchainUnavailable) Error() string {
	return fmt.Sprintf("toolchain unavailable: %s still busy after %d attempts", e.Op, e.Attempts)
}

func (e *ToolchainUnavailable) Unwrap() error { return e.Err }

// CompileError carries the toolchain diagnostics verbatim.
type CompileError struct {
	Diagnostics []string
}

func (e *CompileError) Error() string {
	if len(e.Diagnostics) == 0 {
		return "compilation failed"
	}
	return fmt.Sprintf("compilation failed with %d diagnostics: %s", len(e.Diagnostics), strings.Join(e.Diagnostics, "; "))
}

// DeployUnsafeState is returned when the controller is not in a state that
// allows activating a new configuration.
type DeployUnsafeState struct {
	NetID string
	State ControllerState
}

func (e *DeployUnsafeState) Error() string {
	return fmt.Sprintf("controller %s is in state %s, deploy requires Stop or Config", e.NetID, e.State)
}

// DeployLocked is returned when the target carries a manual deploy lock.
type DeployLocked struct {
	NetID string
}

func (e *DeployLocked) Error() string {
	return fmt.Sprintf("target %s is locked for deploy", e.NetID)
}

// ApprovalRequired is returned when a production target has no recorded
// second approver (or the deploy was rejected).
type ApprovalRequired struct {
	NetID    string
	DeployID string
	Rejected bool
}

func (e *ApprovalRequired) Error() string {
	if e.Rejected {
		return fmt.Sprintf("deploy %s to production target %s was rejected", e.DeployID, e.NetID)
	}
	return fmt.Sprintf("deploy %s to production target %s requires approval", e.DeployID, e.NetID)
}

// DanglingConnection is a connection whose endpoint does not exist.
type DanglingConnection struct {
	FromNode string
	FromPort string
	ToNode   string
	ToPort   string
	Reason   string
}

func (e *DanglingConnection) Error() string {
	return fmt.Sprintf("dangling connection %s.%s -> %s.%s: %s", e.FromNode, e.FromPort, e.ToNode, e.ToPort, e.Reason)
}

// NodeIDs returns the nodes involved.
func (e *DanglingConnection) NodeIDs() []string { return []string{e.FromNode, e.ToNode} }

// CycleDetected is an execution-control loop. Entry is the node the closing
// connection leads back to, Closing the node it leaves from.
type CycleDetected struct {
	Entry   string
	Closing string
}

func (e *CycleDetected) Error() string {
	return fmt.Sprintf("execution cycle detected: %s -> %s", e.Closing, e.Entry)
}

// NodeIDs returns the nodes involved, entry side first.
func (e *CycleDetected) NodeIDs() []string { return []string{e.Entry, e.Closing} }

// UnknownNodeKind is a node whose kind has no definition.
type UnknownNodeKind struct {
	NodeID string
	Kind   string
}

func (e *UnknownNodeKind) Error() string {
	return fmt.Sprintf("node %s has unknown kind %q", e.NodeID, e.Kind)
}

// NodeIDs returns the nodes involved.
func (e *UnknownNodeKind) NodeIDs() []string { return []string{e.NodeID} }

// GraphFault is any other structural defect tied to a set of nodes.
type GraphFault struct {
	Nodes  []string
	Reason string
}

func (e *GraphFault) Error() string {
	return fmt.Sprintf("%s (nodes: %s)", e.Reason, strings.Join(e.Nodes, ", "))
}

// NodeIDs returns the nodes involved.
func (e *GraphFault) NodeIDs() []string { return e.Nodes }

// ValidationError aggregates structural graph faults.
type ValidationError struct {
	Errors []error
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "invalid flow: " + e.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "invalid flow: %d errors:", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  %d. %s", i+1, err.Error())
	}
	return sb.String()
}

// Unwrap exposes the individual faults to errors.Is and errors.As.
func (e *ValidationError) Unwrap() []error { return e.Errors }

// StepError attributes a failure to a pipeline step.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error { return e.Err }

// PortTypeMismatch is a connection between ports whose types or directions do
// not fit together.
type PortTypeMismatch struct {
	FromNode string
	FromPort string
	FromType string
	ToNode   string
	ToPort   string
	ToType   string
}

func (e *PortTypeMismatch) Error() string {
	return fmt.Sprintf("port type mismatch %s.%s (%s) -> %s.%s (%s)",
		e.FromNode, e.FromPort, e.FromType, e.ToNode, e.ToPort, e.ToType)
}

// NodeIDs returns the nodes involved.
func (e *PortTypeMismatch) NodeIDs() []string { return []string{e.FromNode, e.ToNode} }
