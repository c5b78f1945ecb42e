package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/aretw0/flowforge/pkg/ports"
)

// Repository serves a fixed file tree as the contents of every clone and
// records commits instead of pushing them.
type Repository struct {
	mu      sync.Mutex
	files   map[string][]byte
	commits []Commit
}

// Commit is one commit recorded by Repository.
type Commit struct {
	SHA     string
	Message string
	Author  string
	Files   []string
}

var _ ports.Repository = (*Repository)(nil)

// NewRepository creates a repository whose clones contain files, keyed by
// slash-separated relative path.
func NewRepository(files map[string][]byte) *Repository {
	return &Repository{files: files}
}

func (r *Repository) Clone(ctx context.Context, url, branch, dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, data := range r.files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) Commit(ctx context.Context, dir, message, author string) (string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(files)

	r.mu.Lock()
	defer r.mu.Unlock()
	sha := fmt.Sprintf("%040x", len(r.commits)+1)
	r.commits = append(r.commits, Commit{SHA: sha, Message: message, Author: author, Files: files})
	return sha, nil
}

// Commits returns the recorded commits.
func (r *Repository) Commits() []Commit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Commit(nil), r.commits...)
}
