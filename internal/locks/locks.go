// Package locks provides per-key mutual exclusion, in process and across
// replicas through Redis.
package locks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// ErrNotAcquired means the lock could not be taken before ctx ended.
var ErrNotAcquired = errors.New("locks: lock not acquired")

// Release gives the lock back. It is safe to call once.
type Release func()

// Locker grants exclusive access to a key until the returned Release runs.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// LocalLocker is a keyed mutex. Entries are dropped when no goroutine holds
// or waits on them.
type LocalLocker struct {
	mu   sync.Mutex
	keys map[string]*localEntry
}

type localEntry struct {
	sem  chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{keys: make(map[string]*localEntry)}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (Release, error) {
	l.mu.Lock()
	e, ok := l.keys[key]
	if !ok {
		e = &localEntry{sem: make(chan struct{}, 1)}
		l.keys[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, e)
		return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.drop(key, e)
		})
	}, nil
}

func (l *LocalLocker) drop(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.keys, key)
	}
}

// held reports the number of tracked keys.
func (l *LocalLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a SET NX PX lock. The TTL bounds how long a crashed holder
// can block others.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
	logger *logging.Logger
}

func NewRedisLocker(client redis.UniversalClient, prefix string, ttl time.Duration, logger *logging.Logger) *RedisLocker {
	if client == nil {
		panic("locks: redis client required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl, retry: 25 * time.Millisecond, logger: logger}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string) (Release, error) {
	k := r.prefix + key
	token := uuid.NewString()
	for {
		ok, err := r.client.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
			}
			return nil, fmt.Errorf("locks: acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
		case <-time.After(r.retry):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, r.client, []string{k}, token).Err(); err != nil {
				r.logger.Warn("failed to release redis lock", "key", k, "error", err)
			}
		})
	}, nil
}

// Chain acquires every locker in order and releases them in reverse.
type Chain []Locker

func (c Chain) Acquire(ctx context.Context, key string) (Release, error) {
	releases := make([]Release, 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, l := range c {
		rel, err := l.Acquire(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, rel)
	}
	return releaseAll, nil
}
