package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// Locker serializes Create calls for the same dedup key.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// StripedLocker is an in-process Locker: keys hash onto a fixed set of mutexes.
// Distinct keys may share a stripe; that only costs parallelism.
type StripedLocker struct {
	stripes []sync.Mutex
}

func NewStripedLocker(n int) *StripedLocker {
	if n <= 0 {
		n = 64
	}
	return &StripedLocker{stripes: make([]sync.Mutex, n)}
}

func (s *StripedLocker) Lock(_ context.Context, key string) (func(), error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &s.stripes[h.Sum32()%uint32(len(s.stripes))]
	m.Lock()
	return m.Unlock, nil
}

// RedisLocker holds the per-key lock in Redis so several server instances
// sharing one Postgres ledger agree on who inserts.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl}
}

func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	// keys carry phone numbers; hash them before they leave the process
	sum := sha256.Sum256([]byte(key))
	name := "claimlock:" + hex.EncodeToString(sum[:16])

	wctx, cancel := context.WithTimeout(ctx, r.ttl)
	defer cancel()
	lock, err := r.client.Obtain(wctx, name, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(50 * time.Millisecond),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("claim lock busy: %w", err)
	}
	if err != nil {
		return nil, err
	}
	return func() {
		rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer rcancel()
		_ = lock.Release(rctx)
	}, nil
}
