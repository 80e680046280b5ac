package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisGuard suppresses duplicate in-flight requests across instances using
// SET NX with a short TTL. The TTL bounds how long a crashed instance can
// hold a key.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) Begin(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, key, 1, g.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (g *RedisGuard) End(ctx context.Context, key string) {
	if err := g.client.Del(ctx, key).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to release dedup key")
	}
}

// MemoryGuard is a single-process guard for deployments without redis and
// for tests.
type MemoryGuard struct {
	mu       sync.Mutex
	inFlight map[string]time.Time
	ttl      time.Duration
}

func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &MemoryGuard{
		inFlight: make(map[string]time.Time),
		ttl:      ttl,
	}
}

func (g *MemoryGuard) Begin(ctx context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if expiry, ok := g.inFlight[key]; ok && time.Now().Before(expiry) {
		return false, nil
	}
	g.inFlight[key] = time.Now().Add(g.ttl)
	return true, nil
}

func (g *MemoryGuard) End(ctx context.Context, key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, key)
}
