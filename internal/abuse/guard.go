// Package abuse provides fingerprint-based abuse tracking backed by Redis.
// Each fingerprint carries a violation score that decays linearly over time;
// crossing a threshold installs a temporary block enforced before every
// gated queue or relay action.
//
// Storage layout:
//
//	Key:   abuse:<fingerprint>   Hash {score, updated_at}
//	Key:   block:<fingerprint>   Value <reason>, TTL = block duration
//
// Decay is linear: effective = stored - DecayPerMinute * minutes elapsed,
// floored at zero. Records are pruned lazily on access (an expired score is
// simply overwritten or read as zero, never swept).
package abuse

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	scorePrefix = "abuse:"
	blockPrefix = "block:"

	// scoreTTL bounds the lifetime of idle score records so the keyspace
	// stays low-cardinality without an explicit sweeper.
	scoreTTL = 24 * time.Hour
)

// Default violation weights. All tunable via Config.
const (
	WeightFlaggedMessage    = 2.0 // moderation-flagged chat message
	WeightReport            = 2.0 // report filed against the fingerprint
	WeightModerationTimeout = 1.0 // fail-closed moderation timeout
	WeightRateLimitBurst    = 1.0 // repeated rate-limit violations
)

// Config holds the guard's tunable thresholds.
type Config struct {
	BlockThreshold  float64       // score at which a short block is installed
	HardThreshold   float64       // score at which a long block is installed
	BlockDuration   time.Duration // block length at BlockThreshold
	HardDuration    time.Duration // block length at HardThreshold
	DecayPerMinute  float64       // linear score decay per elapsed minute
}

// DefaultConfig returns the production thresholds: score >= 5 blocks for
// 10 minutes, score >= 10 blocks for 60 minutes, decaying 0.5 points per
// minute so five one-point violations fully decay in ten minutes.
func DefaultConfig() Config {
	return Config{
		BlockThreshold: 5,
		HardThreshold:  10,
		BlockDuration:  10 * time.Minute,
		HardDuration:   60 * time.Minute,
		DecayPerMinute: 0.5,
	}
}

// Guard tracks violation scores and blocks per fingerprint.
type Guard struct {
	client *redis.Client
	cfg    Config
	now    func() time.Time // overridable in tests
}

// NewGuard creates a Guard using the provided Redis client and config.
func NewGuard(client *redis.Client, cfg Config) *Guard {
	return &Guard{client: client, cfg: cfg, now: time.Now}
}

// Check reports whether the fingerprint is currently blocked and, if so,
// the remaining block duration and the recorded reason. Redis errors fail
// open (not blocked): the guard protects the queue from abusers, not the
// service from Redis outages.
func (g *Guard) Check(ctx context.Context, fingerprint string) (bool, time.Duration, string, error) {
	key := blockPrefix + fingerprint

	reason, err := g.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, 0, "", nil
	}
	if err != nil {
		return false, 0, "", err
	}

	ttl, err := g.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		// The block exists but the TTL is unreadable. Report blocked with
		// zero remaining rather than swallowing the block.
		return true, 0, reason, nil
	}

	return true, ttl, reason, nil
}

// Violation applies linear decay to the stored score, adds weight, persists
// the result, and installs a block if a threshold was crossed. It returns
// the new effective score and the applied block duration (zero when no
// threshold was crossed).
func (g *Guard) Violation(ctx context.Context, fingerprint string, weight float64, reason string) (float64, time.Duration, error) {
	score, err := g.Score(ctx, fingerprint)
	if err != nil {
		return 0, 0, fmt.Errorf("abuse: read score: %w", err)
	}

	score += weight
	now := g.now()

	key := scorePrefix + fingerprint
	pipe := g.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"score":      strconv.FormatFloat(score, 'f', -1, 64),
		"updated_at": strconv.FormatInt(now.UnixMilli(), 10),
	})
	pipe.Expire(ctx, key, scoreTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("abuse: write score: %w", err)
	}

	var blockFor time.Duration
	switch {
	case score >= g.cfg.HardThreshold:
		blockFor = g.cfg.HardDuration
	case score >= g.cfg.BlockThreshold:
		blockFor = g.cfg.BlockDuration
	}

	if blockFor > 0 {
		if err := g.client.Set(ctx, blockPrefix+fingerprint, reason, blockFor).Err(); err != nil {
			return score, 0, fmt.Errorf("abuse: install block: %w", err)
		}
	}

	return score, blockFor, nil
}

// Score returns the fingerprint's current effective score after linear
// decay. A missing record reads as zero.
func (g *Guard) Score(ctx context.Context, fingerprint string) (float64, error) {
	key := scorePrefix + fingerprint

	fields, err := g.client.HGetAll(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if len(fields) == 0 {
		return 0, nil
	}

	stored, err := strconv.ParseFloat(fields["score"], 64)
	if err != nil {
		return 0, fmt.Errorf("abuse: corrupt score for %s: %w", fingerprint, err)
	}
	updatedMilli, err := strconv.ParseInt(fields["updated_at"], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("abuse: corrupt timestamp for %s: %w", fingerprint, err)
	}

	elapsed := g.now().Sub(time.UnixMilli(updatedMilli))
	score := stored - g.cfg.DecayPerMinute*elapsed.Minutes()
	if score < 0 {
		score = 0
	}
	return score, nil
}

// Unblock removes a block and resets the score for a fingerprint. Used by
// administrative tooling.
func (g *Guard) Unblock(ctx context.Context, fingerprint string) error {
	pipe := g.client.Pipeline()
	pipe.Del(ctx, blockPrefix+fingerprint)
	pipe.Del(ctx, scorePrefix+fingerprint)
	_, err := pipe.Exec(ctx)
	return err
}
