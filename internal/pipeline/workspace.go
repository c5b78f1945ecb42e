package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WorkspaceManager hands out one working directory per job below a base path.
type WorkspaceManager struct {
	base string
}

// NewWorkspaceManager creates a manager rooted at base.
func NewWorkspaceManager(base string) *WorkspaceManager {
	return &WorkspaceManager{base: base}
}

// Create makes an empty directory for the job. A leftover directory from an
// earlier attempt is removed first.
func (m *WorkspaceManager) Create(jobID string) (string, error) {
	path, err := m.path(jobID)
	if err != nil {
		return "", err
	}
	if err := os.RemoveAll(path); err != nil {
		return "", fmt.Errorf("clear workspace: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	return path, nil
}

// Remove deletes the job directory. Removing a missing directory is not an
// error.
func (m *WorkspaceManager) Remove(jobID string) error {
	path, err := m.path(jobID)
	if err != nil {
		return err
	}
	return os.RemoveAll(path)
}

func (m *WorkspaceManager) path(jobID string) (string, error) {
	if jobID == "" || jobID != filepath.Base(jobID) || strings.HasPrefix(jobID, ".") {
		return "", fmt.Errorf("invalid workspace name %q", jobID)
	}
	return filepath.Join(m.base, jobID), nil
}

// TemplateManager resolves project templates by machine type.
type TemplateManager struct {
	base string
}

// TemplateExt is the file extension of project templates.
const TemplateExt = ".tpzip"

// NewTemplateManager creates a manager reading templates from base.
func NewTemplateManager(base string) *TemplateManager {
	return &TemplateManager{base: base}
}

// Resolve returns the template for machineType, or "" to use the standard
// template.
func (m *TemplateManager) Resolve(machineType string) string {
	if m == nil || m.base == "" || machineType == "" || machineType != filepath.Base(machineType) {
		return ""
	}
	path := filepath.Join(m.base, machineType+TemplateExt)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return ""
	}
	return path
}
