// Package counters records delivery analytics for the external billing
// collaborator.
package counters

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// counterTTL keeps daily buckets around long enough for the analytics job
// to collect them.
const counterTTL = 45 * 24 * time.Hour

const dayFormat = "2006-01-02"

// RedisSink implements dispatch.CounterSink on Redis: one INCR bucket per
// realm per UTC day, counting devices that accepted a payload.
type RedisSink struct {
	rdb *redis.Client
}

func NewRedisSink(addr, password string, db int) (*RedisSink, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Fail fast if connection is bad
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisSink{rdb: rdb}, nil
}

// AddDelivered adds devices to the realm's bucket for the given day.
func (s *RedisSink) AddDelivered(ctx context.Context, realm int64, day time.Time, devices int) error {
	if devices <= 0 {
		return nil
	}
	key := counterKey(realm, day)

	pipe := s.rdb.TxPipeline()
	pipe.IncrBy(ctx, key, int64(devices))
	pipe.Expire(ctx, key, counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("increment counter %s: %w", key, err)
	}
	return nil
}

// Delivered reads a realm's bucket; zero when the bucket does not exist.
func (s *RedisSink) Delivered(ctx context.Context, realm int64, day time.Time) (int64, error) {
	n, err := s.rdb.Get(ctx, counterKey(realm, day)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (s *RedisSink) Close() error {
	return s.rdb.Close()
}

func counterKey(realm int64, day time.Time) string {
	return fmt.Sprintf("counters:mobile_pushes_delivered:%d:%s", realm, day.UTC().Format(dayFormat))
}
