package tests

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/flowforge/pkg/ports"
)

// LockerContractTest is a reusable test suite that verifies if an adapter complies with ports.DistributedLocker.
func LockerContractTest(t *testing.T, locker ports.DistributedLocker) {
	t.Helper()
	ctx := context.Background()

	// 1. Exclusive per key
	t.Run("Lock_Exclusive", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, "5.1.2.3.1.1", time.Minute)
		if err != nil {
			t.Fatalf("unexpected error acquiring lock: %v", err)
		}

		waitCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
		defer cancel()
		if _, err := locker.Lock(waitCtx, "5.1.2.3.1.1", time.Minute); err == nil {
			t.Fatal("second Lock on a held key should block until the context ends")
		}

		if err := unlock(ctx); err != nil {
			t.Fatalf("unexpected error releasing lock: %v", err)
		}

		again, err := locker.Lock(ctx, "5.1.2.3.1.1", time.Minute)
		if err != nil {
			t.Fatalf("lock should be free after release: %v", err)
		}
		_ = again(ctx)
	})

	// 2. Independent keys
	t.Run("Lock_IndependentKeys", func(t *testing.T) {
		a, err := locker.Lock(ctx, "10.0.0.1.1.1", time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer a(ctx)

		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		b, err := locker.Lock(waitCtx, "10.0.0.2.1.1", time.Minute)
		if err != nil {
			t.Fatalf("different key should not block: %v", err)
		}
		_ = b(ctx)
	})
}
