package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	redsyncgoredis "github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredis "github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("lock not acquired")

const activationLockPrefix = "billing:activation:"

// LockRepo hands out per-order activation mutexes backed by redsync.
// The lock is optional for callers, so acquisition is capped by wait
// regardless of tries or per-attempt redis latency.
type LockRepo struct {
	rs      *redsync.Redsync
	ttl     time.Duration
	tries   int
	backoff time.Duration
	wait    time.Duration
}

func NewLockRepo(client *goredis.Client, ttl time.Duration) *LockRepo {
	if client == nil {
		return &LockRepo{}
	}
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &LockRepo{
		rs:      redsync.New(redsyncgoredis.NewPool(client)),
		ttl:     ttl,
		tries:   4,
		backoff: 50 * time.Millisecond,
		wait:    300 * time.Millisecond,
	}
}

// Lock blocks until the order's activation lock is held, tries run out or
// the wait budget lapses.
// The returned func releases it; release errors only mean the ttl already lapsed.
func (r *LockRepo) Lock(ctx context.Context, orderID string) (func(), error) {
	if r.rs == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if orderID == "" {
		return nil, fmt.Errorf("order id is required")
	}

	mutex := r.rs.NewMutex(
		activationLockPrefix+orderID,
		redsync.WithExpiry(r.ttl),
		redsync.WithTries(r.tries),
		redsync.WithRetryDelay(r.backoff),
	)
	lockCtx := ctx
	if r.wait > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, r.wait)
		defer cancel()
	}
	if err := mutex.LockContext(lockCtx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLockNotAcquired, orderID, err)
	}

	return func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, _ = mutex.UnlockContext(unlockCtx)
	}, nil
}
