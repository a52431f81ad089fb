package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

// incrementScript incrementa e define PEXPIRE só quando a chave não tem TTL
// (primeiro hit da janela, ou chave órfã sem expiração). Retorna {count, pttl_ms}.
var incrementScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisCounterStore implementa domain.CounterStore sobre Redis.
// O pool de conexões do go-redis é seguro para uso concorrente.
type RedisCounterStore struct {
	rdb    redis.UniversalClient
	tracer trace.Tracer
}

var _ domain.CounterStore = (*RedisCounterStore)(nil)

func NewRedisCounterStore(rdb redis.UniversalClient) *RedisCounterStore {
	return &RedisCounterStore{
		rdb:    rdb,
		tracer: otel.Tracer("ratelimit-gateway/infra"),
	}
}

func (s *RedisCounterStore) IncrementWithExpiry(ctx context.Context, key string, window time.Duration) (domain.Counter, error) {
	ctx, span := s.tracer.Start(ctx, "ratelimit.redis.increment",
		trace.WithAttributes(attribute.String("ratelimit.key", key), attribute.Int64("ratelimit.window_ms", window.Milliseconds())))
	defer span.End()

	windowMs := window.Milliseconds()
	if windowMs <= 0 {
		windowMs = 1
	}

	res, err := incrementScript.Run(ctx, s.rdb, []string{key}, windowMs).Int64Slice()
	if err != nil {
		return domain.Counter{}, spanError(span, err)
	}
	if len(res) != 2 {
		return domain.Counter{}, spanError(span, fmt.Errorf("unexpected script reply: %v", res))
	}

	span.SetAttributes(attribute.Int64("ratelimit.count", res[0]))
	return domain.Counter{Count: res[0], TTL: time.Duration(res[1]) * time.Millisecond}, nil
}

// TTL devolve 0 para chave inexistente ou sem expiração.
func (s *RedisCounterStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, span := s.tracer.Start(ctx, "ratelimit.redis.ttl")
	defer span.End()

	ttl, err := s.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return 0, spanError(span, err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (s *RedisCounterStore) Get(ctx context.Context, key string) (domain.Counter, error) {
	ctx, span := s.tracer.Start(ctx, "ratelimit.redis.get")
	defer span.End()

	pipe := s.rdb.Pipeline()
	get := pipe.Get(ctx, key)
	pttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.Counter{}, spanError(span, err)
	}

	count, err := get.Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Counter{}, nil
		}
		return domain.Counter{}, spanError(span, err)
	}

	ttl := pttl.Val()
	if ttl < 0 {
		ttl = 0
	}
	return domain.Counter{Count: count, TTL: ttl}, nil
}

func (s *RedisCounterStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "ratelimit.redis.delete")
	defer span.End()

	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return spanError(span, err)
	}
	return nil
}

// Keys lista as chaves com o prefixo via SCAN (não bloqueia o Redis como KEYS).
func (s *RedisCounterStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	pattern := strings.TrimRight(prefix, ":") + ":*"

	var keys []string
	iter := s.rdb.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *RedisCounterStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
