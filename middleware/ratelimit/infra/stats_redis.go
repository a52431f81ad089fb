package infra

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

// Layouts de bucket de série temporal aceitos por WithStatsBucket.
var statsBucketLayouts = map[string]string{
	"minute": "200601021504",
	"hour":   "2006010215",
}

// RedisStatsStore grava as decisões em hashes cujo campo é a Reason:
//
//	<prefix>:total               cumulativo, sem TTL
//	<prefix>:<bucket>:<instante> série temporal, com TTL
//	<prefix>:route               campo "<METHOD padrão>|<reason>"
//	<prefix>:key:<key>           opcional (WithStatsTrackKeys), com TTL
type RedisStatsStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration

	bucket string // "minute", "hour" ou "none"
	layout string

	trackKeys bool
	now       func() time.Time
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

// WithStatsBucket escolhe a granularidade da série; valor desconhecido desliga.
func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.layout = statsBucketLayouts[s.bucket]
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = s.now()
	}
	field := string(ev.Reason)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)
	pipe.HIncrBy(ctx, s.prefix+":route", statsRoute(ev)+"|"+field, 1)

	if s.layout != "" {
		s.incrExpiring(ctx, pipe, s.prefix+":"+s.bucket+":"+at.UTC().Format(s.layout), field)
	}
	if s.trackKeys && ev.Key != "" {
		s.incrExpiring(ctx, pipe, s.prefix+":key:"+string(ev.Key), field)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStatsStore) incrExpiring(ctx context.Context, pipe redis.Pipeliner, key, field string) {
	pipe.HIncrBy(ctx, key, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}
