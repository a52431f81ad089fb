package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

type BreakerOptions struct {
	Name string
	// ConsecutiveFailures abre o circuito.
	ConsecutiveFailures uint32
	// OpenTimeout é quanto tempo o circuito fica aberto antes de half-open.
	OpenTimeout time.Duration
	// HalfOpenRequests é o número de chamadas de teste em half-open.
	HalfOpenRequests uint32
	Logger           *zap.Logger
}

// BreakerCounterStore passa cada chamada por um circuit breaker.
//
// Com o circuito aberto as chamadas falham na hora com
// domain.ErrBackendUnavailable, sem esperar o timeout do store.
type BreakerCounterStore struct {
	next    domain.CounterStore
	breaker *gobreaker.CircuitBreaker
}

var _ domain.CounterStore = (*BreakerCounterStore)(nil)

func NewBreakerCounterStore(next domain.CounterStore, opts BreakerOptions) *BreakerCounterStore {
	if opts.Name == "" {
		opts.Name = "ratelimit-store"
	}
	if opts.ConsecutiveFailures == 0 {
		opts.ConsecutiveFailures = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 5 * time.Second
	}
	if opts.HalfOpenRequests == 0 {
		opts.HalfOpenRequests = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	settings := gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: opts.HalfOpenRequests,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.ConsecutiveFailures
		},
		// cancelamento vem do cliente, não diz nada sobre a saúde do store
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("rate limit store circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &BreakerCounterStore{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (s *BreakerCounterStore) State() string { return s.breaker.State().String() }

func (s *BreakerCounterStore) IncrementWithExpiry(ctx context.Context, key string, window time.Duration) (domain.Counter, error) {
	res, err := s.breaker.Execute(func() (any, error) {
		return s.next.IncrementWithExpiry(ctx, key, window)
	})
	if err != nil {
		return domain.Counter{}, classifyBreakerError(err)
	}
	return res.(domain.Counter), nil
}

func (s *BreakerCounterStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	res, err := s.breaker.Execute(func() (any, error) {
		return s.next.TTL(ctx, key)
	})
	if err != nil {
		return 0, classifyBreakerError(err)
	}
	return res.(time.Duration), nil
}

func (s *BreakerCounterStore) Get(ctx context.Context, key string) (domain.Counter, error) {
	res, err := s.breaker.Execute(func() (any, error) {
		return s.next.Get(ctx, key)
	})
	if err != nil {
		return domain.Counter{}, classifyBreakerError(err)
	}
	return res.(domain.Counter), nil
}

func (s *BreakerCounterStore) Delete(ctx context.Context, keys ...string) error {
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.next.Delete(ctx, keys...)
	})
	if err != nil {
		return classifyBreakerError(err)
	}
	return nil
}

// Ping não passa pelo breaker: o readiness precisa ver o estado real.
func (s *BreakerCounterStore) Ping(ctx context.Context) error {
	if p, ok := s.next.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func classifyBreakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: circuit breaker %v", domain.ErrBackendUnavailable, err)
	}
	return err
}
