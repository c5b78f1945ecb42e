package ports

import "context"

// Repository is the version control working copy of a project.
type Repository interface {
	// Clone checks out branch of url into dir.
	Clone(ctx context.Context, url, branch, dir string) error

	// Commit records every change below dir, pushes it and returns the new
	// commit hash. It returns an empty hash when there was nothing to commit.
	Commit(ctx context.Context, dir, message, author string) (string, error)
}
