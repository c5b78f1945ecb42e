package memory_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/flowforge/pkg/adapters/memory"
	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/aretw0/flowforge/pkg/ports"
	"github.com/aretw0/flowforge/pkg/ports/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_Contract(t *testing.T) {
	ports.RunJobQueueContract(t, func(t *testing.T) ports.JobQueue {
		return memory.NewQueue()
	})
}

func TestMemoryDeployStore_Contract(t *testing.T) {
	ports.RunDeployStoreContract(t, memory.NewDeployStore())
}

func TestMemoryLocker_Contract(t *testing.T) {
	tests.LockerContractTest(t, memory.NewLocker())
}

func TestMemoryLocker_HonorsContext(t *testing.T) {
	l := memory.NewLocker()
	unlock, err := l.Lock(context.Background(), "5.1.2.3.1.1", time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "5.1.2.3.1.1", time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock(context.Background()))
	require.NoError(t, unlock(context.Background()), "second unlock is a no-op")

	unlock, err = l.Lock(context.Background(), "5.1.2.3.1.1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, unlock(context.Background()))
}

func TestTargets(t *testing.T) {
	r := memory.NewTargets(domain.Target{NetID: "5.1.2.3.1.1", Name: "press-1"})
	got, err := r.Target(context.Background(), "5.1.2.3.1.1")
	require.NoError(t, err)
	assert.Equal(t, "press-1", got.Name)

	_, err = r.Target(context.Background(), "9.9.9.9.1.1")
	assert.ErrorIs(t, err, domain.ErrTargetNotFound)

	r.Put(domain.Target{NetID: "9.9.9.9.1.1", DeployLocked: true})
	got, err = r.Target(context.Background(), "9.9.9.9.1.1")
	require.NoError(t, err)
	assert.True(t, got.DeployLocked)
}

func TestToolchain_BusyThenAccept(t *testing.T) {
	ctx := context.Background()
	tc := memory.NewToolchain(memory.WithBusy("Compile", 2), memory.WithDiagnostics(ports.Diagnostics{Warnings: []string{"unused"}}))
	s, err := tc.Open(ctx, "4024.56")
	require.NoError(t, err)
	assert.Equal(t, "4024.56", tc.Version())

	_, err = s.Compile(ctx)
	assert.ErrorIs(t, err, domain.ErrToolchainBusy)
	_, err = s.Compile(ctx)
	assert.ErrorIs(t, err, domain.ErrToolchainBusy)
	diags, err := s.Compile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"unused"}, diags.Warnings)
	assert.Equal(t, 3, tc.Count("Compile"))

	require.NoError(t, s.Close(ctx))
	assert.True(t, tc.Closed())
}

func TestToolchain_DelayHonorsContext(t *testing.T) {
	tc := memory.NewToolchain(memory.WithDelay("ActivateConfiguration", time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := tc.ActivateConfiguration(ctx, "5.1.2.3.1.1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, tc.Activated())
}

func TestDevice_Transitions(t *testing.T) {
	ctx := context.Background()
	d := memory.NewDevice(domain.StateStop)
	conn, err := d.Dial(ctx, domain.ConnectionInfo{NetID: "5.1.2.3.1.1", Port: 851})
	require.NoError(t, err)
	assert.Equal(t, 1, d.OpenConns())

	st, err := conn.ReadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StateStop, st.State)
	assert.Equal(t, "5.1.2.3.1.1", st.NetID)

	require.NoError(t, conn.SwitchToConfigMode(ctx))
	assert.Equal(t, domain.StateConfig, d.State())
	require.NoError(t, conn.StartRestart(ctx))
	assert.Equal(t, domain.StateRun, d.State())

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.Equal(t, 0, d.OpenConns())
	_, err = conn.ReadState(ctx)
	assert.ErrorIs(t, err, domain.ErrConnectionLost)

	assert.Equal(t, []string{"Dial", "ReadState", "SwitchToConfigMode", "StartRestart", "Close", "ReadState"}, d.Calls())
}

func TestRepository_CloneAndCommit(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository(map[string][]byte{"flows/main.json": []byte(`{"nodes":[]}`)})
	dir := t.TempDir()

	require.NoError(t, repo.Clone(ctx, "https://git.example.com/line.git", "main", dir))
	data, err := os.ReadFile(filepath.Join(dir, "flows", "main.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes":[]}`, string(data))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "plc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plc", "libraries.yaml"), []byte("flow: main\n"), 0o644))

	sha, err := repo.Commit(ctx, dir, "build job-1", "alice")
	require.NoError(t, err)
	assert.Len(t, sha, 40)
	commits := repo.Commits()
	require.Len(t, commits, 1)
	assert.Equal(t, []string{"flows/main.json", "plc/libraries.yaml"}, commits[0].Files)
}
