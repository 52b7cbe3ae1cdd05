/**
 * @description
 * This file implements the replay guard for signed protocol requests. Each
 * request carries a nonce; the guard remembers every nonce seen within the
 * signature timestamp tolerance window, so a captured request cannot be
 * replayed while its timestamp is still fresh. Nonces self-expire with the
 * window, keeping the set bounded.
 *
 * @dependencies
 * - context, fmt, time: Standard Go libraries.
 * - github.com/redis/go-redis/v9: Shared nonce set across instances.
 */

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NonceGuard records protocol nonces and reports whether a nonce is fresh.
type NonceGuard interface {
	// Remember returns true if the nonce has not been seen within the
	// tolerance window, and marks it as seen.
	Remember(ctx context.Context, nonce string) (bool, error)
}

// RedisNonceGuard backs the nonce set with Redis SET NX + TTL. A nil client
// degrades to pass-through: the signature timestamp check still bounds replay.
type RedisNonceGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisNonceGuard creates a nonce guard over the given Redis client. The ttl
// should equal the signature timestamp tolerance.
func NewRedisNonceGuard(client *redis.Client, prefix string, ttl time.Duration) *RedisNonceGuard {
	return &RedisNonceGuard{client: client, prefix: prefix, ttl: ttl}
}

func (g *RedisNonceGuard) Remember(ctx context.Context, nonce string) (bool, error) {
	if g == nil || g.client == nil {
		return true, nil
	}
	key := fmt.Sprintf("%s:%s", g.prefix, nonce)
	fresh, err := g.client.SetNX(ctx, key, 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("nonce guard: %w", err)
	}
	return fresh, nil
}
