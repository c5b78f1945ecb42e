package process

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/aretw0/flowforge/pkg/ports"
)

// Git is the working copy adapter backed by the git command line.
type Git struct {
	runner *Runner
	push   bool
}

var _ ports.Repository = (*Git)(nil)

// GitOption configures Git.
type GitOption func(*Git)

// WithoutPush keeps commits local.
func WithoutPush() GitOption {
	return func(g *Git) { g.push = false }
}

// NewGit uses the program registered as "git" in runner, registering the
// plain git binary when none is.
func NewGit(runner *Runner, opts ...GitOption) *Git {
	if _, ok := runner.registry["git"]; !ok {
		runner.Register("git", "git")
	}
	g := &Git{runner: runner, push: true}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Clone makes a shallow checkout of branch.
func (g *Git) Clone(ctx context.Context, url, branch, dir string) error {
	args := []string{"clone", "--depth", "1"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, "--", url, dir)
	if _, err := g.runner.Run(ctx, "", "git", args...); err != nil {
		return fmt.Errorf("clone %s: %w", url, err)
	}
	return nil
}

// Commit stages every change below dir and records it. Nothing staged
// returns an empty hash.
func (g *Git) Commit(ctx context.Context, dir, message, author string) (string, error) {
	if _, err := g.runner.Run(ctx, dir, "git", "add", "-A"); err != nil {
		return "", err
	}
	status, err := g.runner.Run(ctx, dir, "git", "status", "--porcelain")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(status) == "" {
		return "", nil
	}

	args := []string{"-c", "user.name=" + nameOf(author), "-c", "user.email=" + emailOf(author),
		"commit", "-m", message}
	if _, err := g.runner.Run(ctx, dir, "git", args...); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	sha, err := g.runner.Run(ctx, dir, "git", "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	if g.push {
		if _, err := g.runner.Run(ctx, dir, "git", "push", "origin", "HEAD"); err != nil {
			return "", fmt.Errorf("push: %w", err)
		}
	}
	return strings.TrimSpace(sha), nil
}

// nameOf and emailOf accept either "Name <mail>" or a bare user name.
func nameOf(author string) string {
	if a, err := mail.ParseAddress(author); err == nil && a.Name != "" {
		return a.Name
	}
	if author == "" {
		return "flowforge"
	}
	return author
}

func emailOf(author string) string {
	if a, err := mail.ParseAddress(author); err == nil {
		return a.Address
	}
	return nameOf(author) + "@flowforge.local"
}
