package cache_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/p-n-ai/pai-learn/internal/platform/cache"
	"github.com/p-n-ai/pai-learn/internal/platform/config"
)

func newRedis(t *testing.T) config.CacheConfig {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := t.Context()
	ctr, err := testcontainers.Run(ctx, "redis:7-alpine",
		testcontainers.WithExposedPorts("6379/tcp"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("6379/tcp")),
	)
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminating redis container: %v", err)
		}
	})

	endpoint, err := ctr.Endpoint(ctx, "redis")
	if err != nil {
		t.Fatalf("redis endpoint: %v", err)
	}
	return config.CacheConfig{URL: endpoint, KeyPrefix: "test:", DialTimeout: 5 * time.Second}
}

func connect(t *testing.T, cfg config.CacheConfig) *cache.Cache {
	t.Helper()
	c, err := cache.New(t.Context(), cfg)
	if err != nil {
		t.Fatalf("connecting to redis: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestLocker_Redis(t *testing.T) {
	cfg := newRedis(t)
	c := connect(t, cfg)

	t.Run("exclusive", func(t *testing.T) {
		locker := c.Locker(5*time.Second, 5*time.Second)

		var inside, maxInside atomic.Int32
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := locker.Lock(t.Context(), "review:1:1")
				if err != nil {
					t.Errorf("Lock() error = %v", err)
					return
				}
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				inside.Add(-1)
				unlock()
			}()
		}
		wg.Wait()

		if got := maxInside.Load(); got != 1 {
			t.Errorf("max concurrent holders = %d, want 1", got)
		}
	})

	t.Run("wait deadline", func(t *testing.T) {
		locker := c.Locker(5*time.Second, 200*time.Millisecond)

		unlock, err := locker.Lock(t.Context(), "review:2:2")
		if err != nil {
			t.Fatalf("Lock() error = %v", err)
		}
		defer unlock()

		_, err = locker.Lock(t.Context(), "review:2:2")
		if !errors.Is(err, cache.ErrLockHeld) {
			t.Errorf("second Lock() error = %v, want ErrLockHeld", err)
		}
	})

	t.Run("expires after ttl", func(t *testing.T) {
		locker := c.Locker(300*time.Millisecond, 2*time.Second)

		if _, err := locker.Lock(t.Context(), "review:3:3"); err != nil {
			t.Fatalf("Lock() error = %v", err)
		}
		unlock, err := locker.Lock(t.Context(), "review:3:3")
		if err != nil {
			t.Fatalf("Lock() after ttl error = %v", err)
		}
		unlock()
	})

	t.Run("stale unlock keeps new holder", func(t *testing.T) {
		locker := c.Locker(300*time.Millisecond, 2*time.Second)

		stale, err := locker.Lock(t.Context(), "review:4:4")
		if err != nil {
			t.Fatalf("Lock() error = %v", err)
		}
		time.Sleep(400 * time.Millisecond)

		unlock, err := locker.Lock(t.Context(), "review:4:4")
		if err != nil {
			t.Fatalf("Lock() error = %v", err)
		}
		defer unlock()
		stale()

		n, err := c.Client.Exists(t.Context(), "test:lock:review:4:4").Result()
		if err != nil {
			t.Fatalf("Exists() error = %v", err)
		}
		if n != 1 {
			t.Error("stale unlock released the current holder's lock")
		}
	})
	t.Run("failed release is logged", func(t *testing.T) {
		var buf bytes.Buffer
		prev := slog.Default()
		slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
		t.Cleanup(func() { slog.SetDefault(prev) })

		own, err := cache.New(t.Context(), cfg)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		unlock, err := own.Locker(300*time.Millisecond, time.Second).Lock(t.Context(), "review:5:5")
		if err != nil {
			t.Fatalf("Lock() error = %v", err)
		}
		own.Close()
		unlock()

		if !strings.Contains(buf.String(), "failed to release lock") {
			t.Errorf("log = %q, want a release warning", buf.String())
		}
	})
}
