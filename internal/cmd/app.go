package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"ratelimit-gateway/internal/config"
	"ratelimit-gateway/internal/observability"
	"ratelimit-gateway/internal/server"
	"ratelimit-gateway/middleware/ratelimit/application"
	"ratelimit-gateway/middleware/ratelimit/domain"
	"ratelimit-gateway/middleware/ratelimit/infra"
)

// counterAdmin é a parte do store usada pelos comandos de operação.
type counterAdmin interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) (domain.Counter, error)
	Delete(ctx context.Context, keys ...string) error
}

type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	policies domain.PolicySet
	svc      *application.Service

	// admin é nil com store=memory: os contadores vivem no processo do serve.
	admin counterAdmin
	ready server.Pinger
	stats domain.StatsStore

	registry *prometheus.Registry
	rdb      *redis.Client
}

// loadApp monta as dependências a partir da config. strictRedis exige Redis
// acessível mesmo com fail-open (comandos de operação).
func loadApp(ctx context.Context, configPath string, strictRedis bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	policies, err := cfg.PolicySet()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		policies: policies,
		registry: prometheus.NewRegistry(),
	}

	var base domain.CounterStore
	switch cfg.RateLimit.Store {
	case config.StoreRedis:
		rdb, err := a.redisClient(ctx, strictRedis)
		if err != nil {
			return nil, err
		}
		rs := infra.NewRedisCounterStore(rdb)
		base, a.admin, a.ready = rs, rs, rs
	case config.StoreMemory:
		ms := infra.NewMemoryCounterStore()
		ms.StartJanitor(ctx)
		base, a.ready = ms, ms
	default:
		return nil, fmt.Errorf("unsupported store %q", cfg.RateLimit.Store)
	}

	if cfg.Breaker.Enabled {
		base = infra.NewBreakerCounterStore(base, infra.BreakerOptions{
			ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
			OpenTimeout:         cfg.Breaker.OpenTimeout,
			HalfOpenRequests:    cfg.Breaker.HalfOpenRequests,
			Logger:              logger,
		})
	}

	failure := cfg.RateLimit.FailurePolicy
	if !cfg.RateLimit.Enabled && !failure.Valid() {
		// sem tráfego limitado a política não é exercida
		failure = domain.FailOpen
	}
	a.svc, err = application.NewService(application.Config{
		Store:         base,
		FailurePolicy: failure,
		StoreTimeout:  cfg.RateLimit.StoreTimeout,
		KeyPrefix:     cfg.RateLimit.KeyPrefix,
		Logger:        logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	if a.stats, err = a.statsStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) redisClient(ctx context.Context, strict bool) (*redis.Client, error) {
	if a.rdb != nil {
		return a.rdb, nil
	}

	r := a.cfg.Redis
	opts := infra.RedisOptions{
		Addr:         r.Addr,
		Password:     r.Password,
		DB:           r.DB,
		PoolSize:     r.PoolSize,
		DialTimeout:  r.DialTimeout,
		ReadTimeout:  r.ReadTimeout,
		WriteTimeout: r.WriteTimeout,
	}

	rdb, err := infra.NewRedisClient(ctx, opts)
	if err != nil {
		if strict || a.cfg.RateLimit.FailurePolicy != domain.FailOpen {
			return nil, err
		}
		a.logger.Warn("redis unreachable at startup, continuing in fail-open mode",
			zap.String("addr", r.Addr), zap.Error(err))
		opts.SkipPing = true
		if rdb, err = infra.NewRedisClient(ctx, opts); err != nil {
			return nil, err
		}
	}
	a.rdb = rdb
	return rdb, nil
}

func (a *app) statsStore(ctx context.Context) (domain.StatsStore, error) {
	s := a.cfg.Stats
	switch s.Backend {
	case config.StatsNone, "":
		return nil, nil
	case config.StatsMemory:
		return infra.NewMemoryStatsStore(infra.WithTrackKeys(s.TrackKeys)), nil
	case config.StatsRedis:
		rdb, err := a.redisClient(ctx, false)
		if err != nil {
			return nil, err
		}
		return infra.NewRedisStatsStore(rdb,
			infra.WithStatsPrefix(s.Prefix),
			infra.WithStatsTTL(s.TTL),
			infra.WithStatsBucket(s.Bucket),
			infra.WithStatsTrackKeys(s.TrackKeys),
		), nil
	case config.StatsPrometheus:
		return infra.NewPrometheusStatsStore(a.registry)
	default:
		return nil, fmt.Errorf("unsupported stats backend %q", s.Backend)
	}
}

func (a *app) requireAdmin() (counterAdmin, error) {
	if a.admin == nil {
		return nil, errors.New("counters commands need ratelimit.store=redis (memory counters live inside the serving process)")
	}
	return a.admin, nil
}

func (a *app) Close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Debug("redis close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
