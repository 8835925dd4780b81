package calendly

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dedupeKeyPrefix  = "calendly:delivery:"
	defaultDedupeTTL = 72 * time.Hour
)

// Deduper remembers deliveries that were already accepted.
type Deduper interface {
	// FirstDelivery returns true only for the first call with key within the TTL.
	FirstDelivery(ctx context.Context, key string) (bool, error)
	// Forget drops key so a later redelivery is processed again.
	Forget(ctx context.Context, key string) error
}

// RedisDeduper keeps delivery keys in Redis with SETNX.
type RedisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = defaultDedupeTTL
	}
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

// NewRedisClient opens a go-redis client from a redis:// URL.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed parsing redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (d *RedisDeduper) FirstDelivery(ctx context.Context, key string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, redisKey(key), time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe delivery: %w", err)
	}
	return ok, nil
}

func (d *RedisDeduper) Forget(ctx context.Context, key string) error {
	if err := d.rdb.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("forget delivery: %w", err)
	}
	return nil
}

func redisKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return dedupeKeyPrefix + hex.EncodeToString(sum[:])
}
