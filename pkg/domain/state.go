package domain

import (
	"fmt"
	"time"
)

// ControllerState mirrors the ADS device state codes.
type ControllerState uint16

const (
	StateInvalid      ControllerState = 0
	StateIdle         ControllerState = 1
	StateReset        ControllerState = 2
	StateInit         ControllerState = 3
	StateStart        ControllerState = 4
	StateRun          ControllerState = 5
	StateStop         ControllerState = 6
	StateSaveConfig   ControllerState = 7
	StateLoadConfig   ControllerState = 8
	StatePowerFailure ControllerState = 9
	StatePowerGood    ControllerState = 10
	StateError        ControllerState = 11
	StateShutdown     ControllerState = 12
	StateSuspend      ControllerState = 13
	StateResume       ControllerState = 14
	StateConfig       ControllerState = 15
	StateReconfig     ControllerState = 16
)

var stateNames = map[ControllerState]string{
	StateInvalid:      "Invalid",
	StateIdle:         "Idle",
	StateReset:        "Reset",
	StateInit:         "Init",
	StateStart:        "Start",
	StateRun:          "Run",
	StateStop:         "Stop",
	StateSaveConfig:   "SaveConfig",
	StateLoadConfig:   "LoadConfig",
	StatePowerFailure: "PowerFailure",
	StatePowerGood:    "PowerGood",
	StateError:        "Error",
	StateShutdown:     "Shutdown",
	StateSuspend:      "Suspend",
	StateResume:       "Resume",
	StateConfig:       "Config",
	StateReconfig:     "Reconfig",
}

func (s ControllerState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ControllerState(%d)", uint16(s))
}

// ControllerStatus is one state reading taken from a device.
type ControllerStatus struct {
	NetID     string          `json:"netId"`
	State     ControllerState `json:"state"`
	Timestamp time.Time       `json:"timestamp"`
}

// IsRunning reports whether the controller executes its program.
func (s ControllerStatus) IsRunning() bool {
	return s.State == StateRun
}

// IsInConfigMode reports whether the controller is in (or entering) config mode.
func (s ControllerStatus) IsInConfigMode() bool {
	return s.State == StateConfig || s.State == StateReconfig
}

// IsSafeForDeploy holds only in Stop or Config. Activating a configuration in
// any other state could interrupt an operation in progress.
func (s ControllerStatus) IsSafeForDeploy() bool {
	return s.State == StateStop || s.State == StateConfig
}

// ConnectionInfo identifies a device on the ADS network.
type ConnectionInfo struct {
	NetID   string `json:"netId"`
	Port    int    `json:"port"`
	Host    string `json:"host,omitempty"`
	TCPPort int    `json:"tcpPort,omitempty"`
}

// WithDefaults fills unset ports.
func (c ConnectionInfo) WithDefaults() ConnectionInfo {
	if c.Port == 0 {
		c.Port = DefaultRuntimePort
	}
	if c.TCPPort == 0 {
		c.TCPPort = DefaultRouterPort
	}
	return c
}

func (c ConnectionInfo) String() string {
	return fmt.Sprintf("%s:%d", c.NetID, c.Port)
}
