package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func TestLockRepoExcludesSecondHolder(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	repo := NewLockRepo(client, 5*time.Second)
	repo.tries = 2
	repo.backoff = 10 * time.Millisecond

	ctx := context.Background()
	unlock, err := repo.Lock(ctx, "ORD1")
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}

	if _, err := repo.Lock(ctx, "ORD1"); !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("expected ErrLockNotAcquired, got %v", err)
	}

	other, err := repo.Lock(ctx, "ORD2")
	if err != nil {
		t.Fatalf("lock on another order: %v", err)
	}
	other()

	unlock()

	again, err := repo.Lock(ctx, "ORD1")
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	again()
}

func TestLockRepoGivesUpQuicklyWhenRedisIsDown(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer func() { _ = client.Close() }()
	mr.Close()

	repo := NewLockRepo(client, 5*time.Second)

	start := time.Now()
	_, err := repo.Lock(context.Background(), "ORD1")
	if !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("expected ErrLockNotAcquired, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("lock attempt took %s with redis down", elapsed)
	}
}

func TestLockRepoWaitCapsContendedLock(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	repo := NewLockRepo(client, 5*time.Second)
	repo.tries = 100
	repo.wait = 50 * time.Millisecond

	unlock, err := repo.Lock(context.Background(), "ORD1")
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	defer unlock()

	start := time.Now()
	if _, err := repo.Lock(context.Background(), "ORD1"); !errors.Is(err, ErrLockNotAcquired) {
		t.Fatalf("expected ErrLockNotAcquired, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("contended lock waited %s despite wait budget", elapsed)
	}
}

func TestLockRepoWithoutClient(t *testing.T) {
	repo := NewLockRepo(nil, time.Second)
	if _, err := repo.Lock(context.Background(), "ORD1"); err == nil {
		t.Fatalf("expected error without redis client")
	}
}

func TestRateRepoWindowExpires(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	repo := NewRateRepo(client)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		count, ttl, err := repo.IncrementWindow(ctx, "k", time.Minute)
		if err != nil {
			t.Fatalf("increment #%d: %v", i, err)
		}
		if count != i {
			t.Fatalf("unexpected count: got %d want %d", count, i)
		}
		if ttl <= 0 || ttl > time.Minute {
			t.Fatalf("unexpected ttl: %s", ttl)
		}
	}

	mr.FastForward(61 * time.Second)

	count, _, err := repo.IncrementWindow(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("increment after window: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected fresh window, got %d", count)
	}
}

func newMiniRedisClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return mr, client
}
