package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis caches report payloads in a shared redis instance. Keys embed a
// per-tenant generation counter, so InvalidateAll is a single INCR: old
// generations become unreachable and age out via their TTLs.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: "report"}
}

func (r *Redis) generationKey(tenant string) string {
	return fmt.Sprintf("%s:gen:%s", r.prefix, tenant)
}

func (r *Redis) entryKey(ctx context.Context, key string) (string, error) {
	tenant := key
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			tenant = key[:i]
			break
		}
	}
	gen, err := r.client.Get(ctx, r.generationKey(tenant)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("read cache generation: %w", err)
	}
	return fmt.Sprintf("%s:g%d:%s", r.prefix, gen, key), nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entryKey, err := r.entryKey(ctx, key)
	if err != nil {
		return nil, false, err
	}
	payload, err := r.client.Get(ctx, entryKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	return payload, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	entryKey, err := r.entryKey(ctx, key)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, entryKey, payload, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (r *Redis) InvalidateAll(ctx context.Context, tenant string) error {
	if err := r.client.Incr(ctx, r.generationKey(tenant)).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}
