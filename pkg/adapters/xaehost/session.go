package xaehost

import (
	"context"
	"net/http"

	"github.com/aretw0/flowforge/pkg/ports"
)

// Session is one IDE instance on the host.
type Session struct {
	client *Client
	path   string
	ID     string
}

var _ ports.ToolchainSession = (*Session)(nil)

type solutionRequest struct {
	Dir  string `json:"dir"`
	Name string `json:"name"`
}

type projectRequest struct {
	Name     string `json:"name"`
	Template string `json:"template,omitempty"`
}

type unitRequest struct {
	ParentPath     string `json:"parentPath"`
	Name           string `json:"name"`
	SubType        int    `json:"subType"`
	Declaration    string `json:"declaration"`
	Implementation string `json:"implementation,omitempty"`
}

type taskRequest struct {
	Name            string `json:"name"`
	CycleTimeMicros int64  `json:"cycleTimeUs"`
	Priority        int    `json:"priority"`
	Program         string `json:"program"`
}

type targetRequest struct {
	NetID string `json:"netId"`
}

func (s *Session) CreateSolution(ctx context.Context, dir, name string) error {
	return s.client.call(ctx, http.MethodPost, s.path+"/solution", solutionRequest{Dir: dir, Name: name}, nil)
}

func (s *Session) CreateProject(ctx context.Context, name, template string) error {
	return s.client.call(ctx, http.MethodPost, s.path+"/project", projectRequest{Name: name, Template: template}, nil)
}

func (s *Session) AddUnit(ctx context.Context, unit ports.UnitSpec) error {
	return s.client.call(ctx, http.MethodPost, s.path+"/units", unitRequest{
		ParentPath:     unit.ParentPath,
		Name:           unit.Name,
		SubType:        unit.SubType,
		Declaration:    unit.Declaration,
		Implementation: unit.Implementation,
	}, nil)
}

func (s *Session) CreateTask(ctx context.Context, task ports.TaskSpec) error {
	return s.client.call(ctx, http.MethodPost, s.path+"/tasks", taskRequest{
		Name:            task.Name,
		CycleTimeMicros: task.CycleTime.Microseconds(),
		Priority:        task.Priority,
		Program:         task.Program,
	}, nil)
}

func (s *Session) Compile(ctx context.Context) (ports.Diagnostics, error) {
	var d ports.Diagnostics
	err := s.client.call(ctx, http.MethodPost, s.path+"/compile", nil, &d)
	return d, err
}

func (s *Session) GenerateBootProject(ctx context.Context, netID string) error {
	return s.client.call(ctx, http.MethodPost, s.path+"/boot", targetRequest{NetID: netID}, nil)
}

func (s *Session) ActivateConfiguration(ctx context.Context, netID string) error {
	return s.client.call(ctx, http.MethodPost, s.path+"/activate", targetRequest{NetID: netID}, nil)
}

// Close shuts the IDE instance down.
func (s *Session) Close(ctx context.Context) error {
	return s.client.call(ctx, http.MethodDelete, s.path, nil, nil)
}
