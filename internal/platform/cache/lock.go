package cache

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lockRetryInterval = 50 * time.Millisecond
	releaseTimeout    = 3 * time.Second
)

// ErrLockHeld is returned when a lock stays held past the wait deadline.
var ErrLockHeld = errors.New("lock is held by another holder")

// releaseScript deletes the key only if it still carries the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out short-lived exclusive locks stored in Redis/Dragonfly.
// Create one with Cache.Locker.
type Locker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
}

// Lock acquires key and returns the function releasing it. It fails with
// ErrLockHeld when the wait deadline passes, and with ctx's error when ctx
// is done first.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	token := newToken()
	fullKey := l.prefix + key

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	for {
		ok, err := l.client.SetNX(waitCtx, fullKey, token, l.ttl).Result()
		if err != nil {
			return nil, l.acquireError(ctx, key, err)
		}
		if ok {
			break
		}

		select {
		case <-waitCtx.Done():
			return nil, l.acquireError(ctx, key, waitCtx.Err())
		case <-time.After(lockRetryInterval):
		}
	}

	unlock := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{fullKey}, token).Err(); err != nil {
			slog.Warn("failed to release lock, it expires after its ttl",
				"key", fullKey,
				"ttl", l.ttl,
				"error", err,
			)
		}
	}
	return unlock, nil
}

// acquireError tells the caller's cancellation apart from the wait deadline.
func (l *Locker) acquireError(ctx context.Context, key string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("acquire %s: %w", key, ctx.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("acquire %s: %w", key, ErrLockHeld)
	}
	return fmt.Errorf("acquire %s: %w", key, err)
}

func newToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}
