package keeper

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisLeaseGuarantee holds the execution guarantee as a redis key with a
// TTL equal to the bounded maximum hold. If the release path crashes, the
// lease expires on its own instead of wedging. Refresh re-SETs the key in a
// single operation, so the hold never lapses between release and re-acquire.
type RedisLeaseGuarantee struct {
	client *redis.Client
	key    string
	holder string
}

var _ ExecutionGuarantee = &RedisLeaseGuarantee{}

func NewRedisLeaseGuarantee(client *redis.Client, key, holder string) (*RedisLeaseGuarantee, error) {
	if client == nil {
		return nil, errors.New("redis lease guarantee: client is nil")
	}
	if key == "" {
		return nil, errors.New("redis lease guarantee: key is empty")
	}
	if holder == "" {
		return nil, errors.New("redis lease guarantee: holder is empty")
	}
	return &RedisLeaseGuarantee{client: client, key: key, holder: holder}, nil
}

func (g *RedisLeaseGuarantee) Acquire(ctx context.Context, hint GuaranteeHint) error {
	if err := g.client.Set(ctx, g.key, g.holder, hint.MaxHold).Err(); err != nil {
		return errors.Wrap(err, "redis lease guarantee: acquire")
	}
	return nil
}

func (g *RedisLeaseGuarantee) Release(ctx context.Context) error {
	if err := g.client.Del(ctx, g.key).Err(); err != nil {
		return errors.Wrap(err, "redis lease guarantee: release")
	}
	return nil
}

func (g *RedisLeaseGuarantee) Refresh(ctx context.Context, hint GuaranteeHint) error {
	if err := g.client.Set(ctx, g.key, g.holder, hint.MaxHold).Err(); err != nil {
		return errors.Wrap(err, "redis lease guarantee: refresh")
	}
	return nil
}

// RedisIndicator publishes the user-visible indicator as a presence key so
// operators (or a supervising process) can observe background streaming
// activity. The key carries the same TTL bound as the lease.
type RedisIndicator struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

var _ Indicator = &RedisIndicator{}

func NewRedisIndicator(client *redis.Client, key string, ttl time.Duration) *RedisIndicator {
	return &RedisIndicator{client: client, key: key, ttl: ttl}
}

func (i *RedisIndicator) Show(ctx context.Context, text string) error {
	return i.client.Set(ctx, i.key, text, i.ttl).Err()
}

func (i *RedisIndicator) Clear(ctx context.Context) error {
	return i.client.Del(ctx, i.key).Err()
}
