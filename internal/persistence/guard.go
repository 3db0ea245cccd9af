package persistence

import (
	"context"
	"sync"
	"time"
)

// Guard hands out short-lived exclusive keys: the one-shot archive flag of a
// ticket and the expiry sweep run lock.
type Guard interface {
	// Acquire returns true when the caller now owns key.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

const guardPrefix = "tradebot:guard:"

// RedisGuard shares keys across process instances with SET NX.
type RedisGuard struct {
	redis *Redis
}

// NewRedisGuard builds a guard on top of a connected client.
func NewRedisGuard(r *Redis) *RedisGuard {
	return &RedisGuard{redis: r}
}

func (g *RedisGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return g.redis.Client.SetNX(ctx, guardPrefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	return g.redis.Client.Del(ctx, guardPrefix+key).Err()
}

// MemoryGuard is the single-process fallback.
type MemoryGuard struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

// NewMemoryGuard builds an empty in-process guard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{keys: make(map[string]time.Time), now: time.Now}
}

func (g *MemoryGuard) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if exp, ok := g.keys[key]; ok && now.Before(exp) {
		return false, nil
	}
	g.keys[key] = now.Add(ttl)
	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
	return nil
}

// SelectGuard prefers redis when it answered at startup.
func SelectGuard(r *Redis) Guard {
	if r.Reachable() {
		return NewRedisGuard(r)
	}
	return NewMemoryGuard()
}
