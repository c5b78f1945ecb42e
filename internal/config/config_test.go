package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/flowforge/internal/config"
	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, config.StoreMemory, cfg.Server.Store)
	assert.Equal(t, 10*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, time.Hour, cfg.Worker.JobTimeout)
	assert.Equal(t, 100, cfg.Toolchain.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Toolchain.RetryInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.RetryPolicy().Interval)
}

func TestLoad_YAML(t *testing.T) {
	path := write(t, "flowforge.yaml", `
log:
  level: debug
  format: json
server:
  store: redis
redis:
  addr: localhost:6379
  retention: 72h
worker:
  toolchain_version: 3.1.4026
  poll_interval: 2s
  job_timeout: 20m
toolchain:
  max_attempts: 5
  layout:
    program:
      path: "TIPC^Machine^POUs"
      sub_type: 604
targets:
  - net_id: 5.1.2.3.1.1
    name: line-1
    host: 10.0.0.5
    production: true
programs:
  git:
    command: /usr/bin/git
    env:
      GIT_SSH_COMMAND: ssh -i /keys/deploy
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, config.StoreRedis, cfg.Server.Store)
	assert.Equal(t, 72*time.Hour, cfg.Redis.Retention)
	assert.Equal(t, "3.1.4026", cfg.Worker.ToolchainVersion)
	assert.Equal(t, 2*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 20*time.Minute, cfg.Worker.JobTimeout)
	assert.Equal(t, "flow.json", cfg.Worker.FlowFile, "unset keys keep their defaults")
	assert.Equal(t, 5, cfg.Toolchain.MaxAttempts)
	assert.Equal(t, "TIPC^Machine^POUs", cfg.Toolchain.Layout[domain.ArtifactProgram].Path)
	require.Len(t, cfg.Targets, 1)
	assert.Equal(t, domain.Target{NetID: "5.1.2.3.1.1", Name: "line-1", Host: "10.0.0.5", Production: true}, cfg.Targets[0])
	assert.Equal(t, "/usr/bin/git", cfg.Programs["git"].Command)
	assert.Equal(t, "ssh -i /keys/deploy", cfg.Programs["git"].Env["GIT_SSH_COMMAND"])
}

func TestLoad_JSON(t *testing.T) {
	path := write(t, "flowforge.json", `{
		"server": {"addr": ":9090"},
		"worker": {"poll_interval": "500ms", "task_priority": 5},
		"ads": {"settle_reads": 3}
	}`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 500*time.Millisecond, cfg.Worker.PollInterval)
	assert.Equal(t, 5, cfg.Worker.TaskPriority)
	assert.Equal(t, 3, cfg.ADS.SettleReads)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown key", "server:\n  adress: \":80\"\n", "adress"},
		{"redis without addr", "server:\n  store: redis\n", "redis.addr"},
		{"unknown store", "server:\n  store: etcd\n", "unknown store"},
		{"bad level", "log:\n  level: loud\n", "loud"},
		{"duplicate target", "targets:\n  - net_id: 1.1.1.1.1.1\n  - net_id: 1.1.1.1.1.1\n", "duplicate net_id"},
		{"bad duration", "worker:\n  poll_interval: soon\n", "poll_interval"},
		{"negative job timeout", "worker:\n  job_timeout: -1m\n", "job_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(write(t, "c.yaml", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")
}
