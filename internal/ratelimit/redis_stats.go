package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRecorder keeps allowed/denied counters in Redis hashes: a running total,
// one hash per minute bucket (expiring after ttl) and one per route.
type RedisRecorder struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisRecorder builds a recorder writing under prefix.
func NewRedisRecorder(rdb redis.Cmdable, prefix string, ttl time.Duration) *RedisRecorder {
	prefix = strings.Trim(prefix, ":")
	if prefix == "" {
		prefix = "enrollment:ratelimit"
	}
	return &RedisRecorder{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Record implements Recorder.
func (s *RedisRecorder) Record(ctx context.Context, d Decision) error {
	at := d.At
	if at.IsZero() {
		at = time.Now()
	}
	field := "denied"
	if d.Allowed {
		field = "allowed"
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, bucketKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucketKey, s.ttl)
	}

	if route := strings.TrimSpace(d.Method + " " + d.Path); route != "" {
		pipe.HIncrBy(ctx, s.prefix+":route", route+":"+field, 1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record rate limit decision: %w", err)
	}
	return nil
}
