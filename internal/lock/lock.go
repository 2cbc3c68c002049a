// Package lock provides short-lived, token-owned locks shared by every
// instance that talks to the same Redis, with an in-process fallback.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// Locker grants exclusive, expiring ownership of a key.
type Locker interface {
	// Acquire reports whether token now owns key for ttl.
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	// Release drops key if token still owns it.
	Release(ctx context.Context, key, token string) error
}

// releaseScript deletes the key only when it still holds the caller's token,
// so an expired holder cannot free a lock someone else re-acquired.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisLocker(client redis.UniversalClient, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix}
}

func (l *RedisLocker) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "redis lock %s", key)
	}
	return ok, nil
}

func (l *RedisLocker) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.prefix + key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return errors.Wrapf(err, "redis unlock %s", key)
	}
	return nil
}

type entry struct {
	token   string
	expires time.Time
}

// MemoryLocker implements Locker inside one process.
type MemoryLocker struct {
	mu     sync.Mutex
	held   map[string]entry
	nextGC time.Time
	now    func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		held: make(map[string]entry),
		now:  time.Now,
	}
}

func (l *MemoryLocker) Acquire(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.held[key]; ok && e.expires.After(now) {
		return false, nil
	}
	l.held[key] = entry{token: token, expires: now.Add(ttl)}

	if now.After(l.nextGC) {
		for k, e := range l.held {
			if !e.expires.After(now) {
				delete(l.held, k)
			}
		}
		l.nextGC = now.Add(time.Minute)
	}
	return true, nil
}

func (l *MemoryLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.held[key]; ok && e.token == token {
		delete(l.held, key)
	}
	return nil
}

// New builds a Redis locker and falls back to in-memory when addr is empty
// or Redis is unreachable. The returned error reports the fallback reason.
func New(addr, pass string, db int) (Locker, error) {
	if addr == "" {
		return NewMemoryLocker(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pass,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return NewMemoryLocker(), errors.Wrap(err, "redis unavailable, using in-memory locks")
	}

	return NewRedisLocker(client, "bizdesk:lock:"), nil
}
