package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/flowforge/pkg/adapters/redis"
	"github.com/aretw0/flowforge/pkg/domain"
	"github.com/aretw0/flowforge/pkg/ports"
	"github.com/aretw0/flowforge/pkg/ports/tests"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisQueue_Contract(t *testing.T) {
	ports.RunJobQueueContract(t, func(t *testing.T) ports.JobQueue {
		_, client := newClient(t)
		return redis.NewQueue(client)
	})
}

func TestRedisQueue_Layout(t *testing.T) {
	mr, client := newClient(t)
	q := redis.NewQueue(client, redis.WithPrefix("ff:"), redis.WithRetention(time.Hour))
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, &domain.BuildJob{ID: "j1", ToolchainVersion: "4024.56"}))
	assert.True(t, mr.Exists("ff:job:j1"))
	members, err := mr.ZMembers("ff:pending:4024.56")
	require.NoError(t, err)
	assert.Equal(t, []string{"j1"}, members)

	n, err := q.Pending(ctx, "4024.56")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = q.ClaimNext(ctx, "4024.56", "w1")
	require.NoError(t, err)
	assert.False(t, mr.Exists("ff:pending:4024.56"), "claimed id leaves the pending set")
	assert.Equal(t, "claimed", mr.HGet("ff:job:j1", "status"))

	require.NoError(t, q.ReportResult(ctx, "j1", domain.BuildResult{Success: true}))
	assert.Equal(t, time.Hour, mr.TTL("ff:job:j1"))

	mr.FastForward(2 * time.Hour)
	_, err = q.Get(ctx, "j1")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestRedisDeployStore_Contract(t *testing.T) {
	_, client := newClient(t)
	ports.RunDeployStoreContract(t, redis.NewDeployStore(client))
}

func TestRedisLocker_Contract(t *testing.T) {
	_, client := newClient(t)
	tests.LockerContractTest(t, redis.NewLocker(client))
}

func TestRedisLocker_LockUnlock(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client, redis.WithPrefix("test:"))
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "5.1.2.3.1.1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:5.1.2.3.1.1"), "Lock key should be set in Redis")

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:5.1.2.3.1.1"), "Lock key should be removed after unlock")
}

func TestRedisLocker_ExpiredLockIsNotReleasedByOldOwner(t *testing.T) {
	mr, client := newClient(t)
	locker := redis.NewLocker(client)
	ctx := context.Background()

	unlockOld, err := locker.Lock(ctx, "plc-1", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	unlockNew, err := locker.Lock(ctx, "plc-1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, unlockOld(ctx))
	assert.True(t, mr.Exists("flowforge:lock:plc-1"), "stale owner must not release the new lock")
	require.NoError(t, unlockNew(ctx))
	assert.False(t, mr.Exists("flowforge:lock:plc-1"))
}
