package process

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
}

func TestRunner_Run(t *testing.T) {
	requireShell(t)
	r := NewRunner(WithRegistry(map[string]Program{
		"echo_env": {Command: "sh", Args: []string{"-c", `echo "$FF_MSG $0"`}, Env: map[string]string{"FF_MSG": "hello"}},
		"fail":     {Command: "sh", Args: []string{"-c", "echo broken >&2; exit 3"}},
		"sleep":    {Command: "sleep"},
	}))
	ctx := context.Background()

	t.Run("passes env and args", func(t *testing.T) {
		out, err := r.Run(ctx, "", "echo_env", "world")
		require.NoError(t, err)
		assert.Equal(t, "hello world\n", out)
	})

	t.Run("rejects unregistered programs", func(t *testing.T) {
		_, err := r.Run(ctx, "", "rm", "-rf", "/")
		assert.ErrorIs(t, err, ErrNotRegistered)
	})

	t.Run("keeps stderr on failure", func(t *testing.T) {
		_, err := r.Run(ctx, "", "fail")
		var exit *ExitError
		require.ErrorAs(t, err, &exit)
		assert.Equal(t, "broken", exit.Stderr)
		var ee *exec.ExitError
		require.True(t, errors.As(err, &ee))
		assert.Equal(t, 3, ee.ExitCode())
	})

	t.Run("honors context", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err := r.Run(ctx, "", "sleep", "5")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestAuthor(t *testing.T) {
	assert.Equal(t, "Ada", nameOf("Ada <ada@example.com>"))
	assert.Equal(t, "ada@example.com", emailOf("Ada <ada@example.com>"))
	assert.Equal(t, "jdoe", nameOf("jdoe"))
	assert.Equal(t, "jdoe@flowforge.local", emailOf("jdoe"))
	assert.Equal(t, "flowforge", nameOf(""))
}

func TestGit_CloneAndCommit(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	ctx := context.Background()
	r := NewRunner(WithRegistry(map[string]Program{"git": {Command: "git", Env: map[string]string{
		"GIT_CONFIG_GLOBAL":   os.DevNull,
		"GIT_CONFIG_NOSYSTEM": "1",
	}}}))

	origin := filepath.Join(t.TempDir(), "origin")
	require.NoError(t, os.MkdirAll(origin, 0o755))
	_, err := r.Run(ctx, origin, "git", "init", "-b", "main")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(origin, "flow.json"), []byte(`{"nodes":[]}`), 0o644))
	_, err = r.Run(ctx, origin, "git", "add", "-A")
	require.NoError(t, err)
	_, err = r.Run(ctx, origin, "git", "-c", "user.name=t", "-c", "user.email=t@t", "commit", "-m", "init")
	require.NoError(t, err)

	g := NewGit(r, WithoutPush())
	work := filepath.Join(t.TempDir(), "work")
	require.NoError(t, g.Clone(ctx, "file://"+origin, "main", work))
	assert.FileExists(t, filepath.Join(work, "flow.json"))

	sha, err := g.Commit(ctx, work, "nothing", "jdoe")
	require.NoError(t, err)
	assert.Empty(t, sha)

	require.NoError(t, os.MkdirAll(filepath.Join(work, "plc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(work, "plc", "MAIN.st"), []byte("PROGRAM MAIN"), 0o644))
	sha, err = g.Commit(ctx, work, "FlowForge build 1", "Ada <ada@example.com>")
	require.NoError(t, err)
	assert.Len(t, sha, 40)

	log, err := r.Run(ctx, work, "git", "log", "-1", "--format=%an|%ae|%s")
	require.NoError(t, err)
	assert.Equal(t, "Ada|ada@example.com|FlowForge build 1\n", log)

	err = g.Clone(ctx, "file://"+filepath.Join(t.TempDir(), "missing"), "main", filepath.Join(t.TempDir(), "x"))
	assert.ErrorContains(t, err, "clone")
}
