package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestControllerStatus_IsSafeForDeploy(t *testing.T) {
	safe := map[ControllerState]bool{
		StateStop:   true,
		StateConfig: true,
	}
	for s := StateInvalid; s <= StateReconfig; s++ {
		status := ControllerStatus{State: s}
		assert.Equal(t, safe[s], status.IsSafeForDeploy(), "state %s", s)
	}
	assert.True(t, ControllerStatus{State: StateRun}.IsRunning())
	assert.True(t, ControllerStatus{State: StateReconfig}.IsInConfigMode())
	assert.False(t, ControllerStatus{State: StateReconfig}.IsSafeForDeploy())
}

func TestControllerState_String(t *testing.T) {
	assert.Equal(t, "Run", StateRun.String())
	assert.Equal(t, "ControllerState(99)", ControllerState(99).String())
}

func TestBuildJob_Snapshot(t *testing.T) {
	now := time.Now()
	job := &BuildJob{ID: "j1", Errors: []string{"a"}, StartedAt: &now, Deploy: &DeployAuthorization{DeployID: "d1"}}
	c := job.Snapshot()
	c.Errors[0] = "b"
	*c.StartedAt = now.Add(time.Hour)
	c.Deploy.DeployID = "d2"

	assert.Equal(t, "a", job.Errors[0])
	assert.Equal(t, now, *job.StartedAt)
	assert.Equal(t, "d1", job.Deploy.DeployID)
}

func TestValidationError_Unwrap(t *testing.T) {
	cycle := &CycleDetected{Entry: "entry", Closing: "if_1"}
	err := fmt.Errorf("validate: %w", &ValidationError{Errors: []error{cycle}})

	var got *CycleDetected
	assert.True(t, errors.As(err, &got))
	assert.Equal(t, []string{"entry", "if_1"}, got.NodeIDs())
}

func TestConnectionInfo_WithDefaults(t *testing.T) {
	info := ConnectionInfo{NetID: "5.1.2.3.1.1"}.WithDefaults()
	assert.Equal(t, DefaultRuntimePort, info.Port)
	assert.Equal(t, DefaultRouterPort, info.TCPPort)
	assert.Equal(t, "5.1.2.3.1.1:851", info.String())
}
