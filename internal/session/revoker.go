package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revoker remembers token ids that were signed out before they expired.
type Revoker interface {
	// Revoke denylists tokenID for ttl, the token's remaining lifetime.
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	Revoked(ctx context.Context, tokenID string) (bool, error)
}

// RedisRevoker keeps revoked token ids as keys that expire together with
// the token, so the set never outgrows the live sessions.
type RedisRevoker struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRevoker(client redis.UniversalClient) *RedisRevoker {
	return &RedisRevoker{
		client: client,
		prefix: "session:revoked:",
	}
}

func (r *RedisRevoker) key(tokenID string) string {
	return r.prefix + tokenID
}

func (r *RedisRevoker) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" {
		return errors.New("session: missing token id")
	}
	if ttl <= 0 {
		return nil // already expired
	}
	if err := r.client.Set(ctx, r.key(tokenID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("session: revoke: %w", err)
	}
	return nil
}

func (r *RedisRevoker) Revoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("session: revoked lookup: %w", err)
	}
	return n > 0, nil
}
