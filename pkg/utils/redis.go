package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNilRedis = errors.New("utils: redis client is nil")

// RedisConfig controls redis client behavior. Zero values get conservative defaults.
type RedisConfig struct {
	Addr string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	PoolSize    int
	PingTimeout time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	out := c
	if out.DialTimeout <= 0 {
		out.DialTimeout = 3 * time.Second
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = 2 * time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 2 * time.Second
	}
	if out.PoolSize <= 0 {
		out.PoolSize = 10
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 2 * time.Second
	}
	return out
}

// OpenRedis initializes a Redis client and validates connectivity via PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// KEYS[1] slot counter, ARGV[1] limit, ARGV[2] ttl ms. Returns the new count, or -1 when full.
var slotAcquireScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current > tonumber(ARGV[1]) then
  redis.call('DECR', KEYS[1])
  return -1
end
redis.call('PEXPIRE', KEYS[1], ARGV[2])
return current
`)

// KEYS[1] slot counter. Never goes below zero.
var slotReleaseScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current <= 1 then
  redis.call('DEL', KEYS[1])
  return 0
end
return redis.call('DECR', KEYS[1])
`)

// CallSlots caps the number of concurrently live calls per campaign.
// The TTL is refreshed on each acquire so a crashed dialer cannot hold slots forever.
type CallSlots struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewCallSlots(rdb *redis.Client, prefix string, ttl time.Duration) *CallSlots {
	if prefix == "" {
		prefix = "console:calls:live"
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &CallSlots{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *CallSlots) key(campaignID string) string {
	return s.prefix + ":" + campaignID
}

func (s *CallSlots) check(campaignID string) error {
	if s == nil || s.rdb == nil {
		return ErrNilRedis
	}
	if campaignID == "" {
		return fmt.Errorf("campaign id is required")
	}
	return nil
}

// Acquire takes one slot for campaignID. It reports false when limit slots are in use.
func (s *CallSlots) Acquire(ctx context.Context, campaignID string, limit int) (bool, error) {
	if err := s.check(campaignID); err != nil {
		return false, err
	}
	if limit <= 0 {
		return false, fmt.Errorf("limit must be > 0")
	}
	n, err := slotAcquireScript.Run(ctx, s.rdb, []string{s.key(campaignID)}, limit, s.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("acquire call slot: %w", err)
	}
	return n > 0, nil
}

// Release frees one slot for campaignID.
func (s *CallSlots) Release(ctx context.Context, campaignID string) error {
	if err := s.check(campaignID); err != nil {
		return err
	}
	if err := slotReleaseScript.Run(ctx, s.rdb, []string{s.key(campaignID)}).Err(); err != nil {
		return fmt.Errorf("release call slot: %w", err)
	}
	return nil
}

// InUse reports how many slots campaignID currently holds.
func (s *CallSlots) InUse(ctx context.Context, campaignID string) (int, error) {
	if err := s.check(campaignID); err != nil {
		return 0, err
	}
	n, err := s.rdb.Get(ctx, s.key(campaignID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}
