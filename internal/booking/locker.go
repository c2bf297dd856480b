// Package booking contains the slot booking coordinator: the single
// place that may create or transition bookings.  It serializes
// competing reservation attempts on the same (slot, date) key with a
// keyed lock on top of the repository's row locks.
package booking

import (
    "context"
    "errors"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when a per-key lock could not be
// acquired within the bounded wait.  Callers should surface it as a
// retryable contention error rather than blocking further.
var ErrLockTimeout = errors.New("timed out waiting for slot lock")

// Locker grants exclusive access to a string key.  Acquire blocks up
// to the locker's configured wait and returns a release function that
// must be called exactly once.
type Locker interface {
    Acquire(ctx context.Context, key string) (release func(), err error)
}

// RedisLocker implements Locker as a redis lease (SET NX PX) so that
// exclusivity holds across multiple server instances sharing one
// redis.  The lease carries a random token and release only deletes
// the key when the token still matches, so an expired lease cannot
// release someone else's lock.
type RedisLocker struct {
    rdb  *redis.Client
    ttl  time.Duration // lease lifetime; bounds damage if a holder dies
    wait time.Duration // how long Acquire may block
    poll time.Duration // retry interval while the key is held
}

// NewRedisLocker builds a RedisLocker with the given lease TTL and
// bounded wait.  Poll interval is fixed at 50ms.
func NewRedisLocker(rdb *redis.Client, ttl, wait time.Duration) *RedisLocker {
    return &RedisLocker{rdb: rdb, ttl: ttl, wait: wait, poll: 50 * time.Millisecond}
}

// releaseScript deletes the lease only when the stored token matches.
var releaseScript = redis.NewScript(`
    if redis.call('GET', KEYS[1]) == ARGV[1] then
        return redis.call('DEL', KEYS[1])
    end
    return 0
`)

// Acquire takes the lease for key, retrying until the wait deadline.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
    token := uuid.NewString()
    deadline := time.Now().Add(l.wait)
    for {
        ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
        if err != nil {
            return nil, err
        }
        if ok {
            return func() {
                _, _ = releaseScript.Run(context.Background(), l.rdb, []string{key}, token).Result()
            }, nil
        }
        if time.Now().After(deadline) {
            return nil, ErrLockTimeout
        }
        select {
        case <-ctx.Done():
            return nil, ctx.Err()
        case <-time.After(l.poll):
        }
    }
}

// LocalLocker implements Locker with in-process keyed mutexes.  It is
// the fallback when redis is unavailable and is only correct for a
// single-instance deployment, which mirrors how the rest of the
// application degrades when redis is down.
type LocalLocker struct {
    mu    sync.Mutex
    locks map[string]chan struct{}
    wait  time.Duration
}

// NewLocalLocker builds a LocalLocker with the given bounded wait.
func NewLocalLocker(wait time.Duration) *LocalLocker {
    return &LocalLocker{locks: make(map[string]chan struct{}), wait: wait}
}

func (l *LocalLocker) slot(key string) chan struct{} {
    l.mu.Lock()
    defer l.mu.Unlock()
    ch, ok := l.locks[key]
    if !ok {
        ch = make(chan struct{}, 1)
        l.locks[key] = ch
    }
    return ch
}

// Acquire takes the key's channel slot, waiting at most the
// configured bound.
func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
    ch := l.slot(key)
    timer := time.NewTimer(l.wait)
    defer timer.Stop()
    select {
    case ch <- struct{}{}:
        return func() { <-ch }, nil
    case <-timer.C:
        return nil, ErrLockTimeout
    case <-ctx.Done():
        return nil, ctx.Err()
    }
}
