// Package ratelimit provides Redis-backed rate limiting using the INCR +
// EXPIRE sliding window algorithm, keyed by (fingerprint, category). Every
// queue and relay action is gated through a category before it runs.
package ratelimit

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Category is a named rate-limit bucket with its own threshold.
type Category struct {
	Name   string        // key segment, e.g. "chat_message"
	Limit  int           // max count in the window
	Window time.Duration // time window
}

// Default categories and thresholds.
var (
	// CategoryAuth covers authentication and connection-open attempts.
	CategoryAuth = Category{Name: "auth", Limit: 20, Window: time.Minute}

	// CategoryGeneral covers queue operations (find_match, cancel, skip).
	CategoryGeneral = Category{Name: "general", Limit: 60, Window: time.Minute}

	// CategoryChatMessage covers in-session chat messages.
	CategoryChatMessage = Category{Name: "chat_message", Limit: 100, Window: time.Minute}

	// CategoryAdmin covers administrative endpoints.
	CategoryAdmin = Category{Name: "admin", Limit: 200, Window: time.Minute}
)

const keyPrefix = "rl:"

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client *redis.Client
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Allow checks whether the given fingerprint is within the limit for the
// category. It increments the counter and sets the expiry on first access.
// When the limit is exceeded it returns allowed=false together with the
// remaining window duration (retry-after) read from the key's TTL.
//
// On Redis errors the limiter fails open (returns allowed=true) so that a
// Redis outage does not block legitimate traffic; the moderation gate in the
// message pipeline is the fail-closed one.
func (l *Limiter) Allow(ctx context.Context, fingerprint string, cat Category) (bool, time.Duration, error) {
	key := keyPrefix + cat.Name + ":" + fingerprint

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[ratelimit] redis INCR error key=%s: %v (failing open)", key, err)
		return true, 0, err
	}

	// On the first increment, set the expiry to define the window boundary.
	if count == 1 {
		if err := l.client.Expire(ctx, key, cat.Window).Err(); err != nil {
			log.Printf("[ratelimit] redis EXPIRE error key=%s: %v (failing open)", key, err)
			// The key exists but has no TTL and would persist. Best effort:
			// delete it so it doesn't throttle the fingerprint forever.
			l.client.Del(ctx, key)
			return true, 0, err
		}
	}

	if int(count) > cat.Limit {
		retryAfter := cat.Window
		if ttl, err := l.client.TTL(ctx, key).Result(); err == nil && ttl > 0 {
			retryAfter = ttl
		}
		return false, retryAfter, nil
	}

	return true, 0, nil
}

// Remaining returns the number of actions the fingerprint has left in the
// current window for the category. Returns the full limit if the key does
// not exist yet. On Redis errors it returns the full limit (fail open).
func (l *Limiter) Remaining(ctx context.Context, fingerprint string, cat Category) (int, error) {
	key := keyPrefix + cat.Name + ":" + fingerprint

	count, err := l.client.Get(ctx, key).Int()
	if err == redis.Nil {
		return cat.Limit, nil
	}
	if err != nil {
		log.Printf("[ratelimit] redis GET error key=%s: %v (failing open)", key, err)
		return cat.Limit, err
	}

	remaining := cat.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
