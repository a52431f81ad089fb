package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

const (
	DefaultKeyPrefix    = "ratelimit"
	DefaultStoreTimeout = 100 * time.Millisecond
	// DefaultUnavailableRetryAfter é sugerido no fail-closed, quando não há TTL.
	DefaultUnavailableRetryAfter = time.Second
)

type Config struct {
	Store         domain.CounterStore
	FailurePolicy domain.FailurePolicy
	// StoreTimeout limita cada chamada ao store. Estourar conta como indisponível.
	StoreTimeout time.Duration
	KeyPrefix    string
	Logger       *zap.Logger
}

// Service concentra a regra de aplicação do rate limit (janela fixa).
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Não guarda contadores em memória: toda a contagem é do CounterStore.
type Service struct {
	store        domain.CounterStore
	failure      domain.FailurePolicy
	storeTimeout time.Duration
	prefix       string
	logger       *zap.Logger

	// outageLog evita um warn por request durante uma queda do Redis.
	outageLog *rate.Limiter
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("counter store is required")
	}
	if !cfg.FailurePolicy.Valid() {
		return nil, fmt.Errorf("failure policy must be set explicitly (open or closed), got %s", cfg.FailurePolicy)
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Service{
		store:        cfg.Store,
		failure:      cfg.FailurePolicy,
		storeTimeout: cfg.StoreTimeout,
		prefix:       strings.TrimRight(cfg.KeyPrefix, ":"),
		logger:       cfg.Logger,
		outageLog:    rate.NewLimiter(rate.Every(10*time.Second), 1),
	}, nil
}

func (s *Service) FailurePolicy() domain.FailurePolicy { return s.failure }

func (s *Service) KeyPrefix() string { return s.prefix }

// Key deriva a chave composta hash(identity, route_pattern).
func (s *Service) Key(identity, routePattern string) string {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		identity = "anonymous"
	}
	sum := sha256.Sum256([]byte(identity + "\x1f" + routePattern))
	return s.prefix + ":" + hex.EncodeToString(sum[:16])
}

// OwnsKey diz se a chave tem o formato das geradas por Key com este prefixo
// (o prefixo pode ser compartilhado com outras chaves, ex.: estatísticas).
func (s *Service) OwnsKey(key string) bool {
	rest, ok := strings.CutPrefix(key, s.prefix+":")
	if !ok || len(rest) != 32 {
		return false
	}
	_, err := hex.DecodeString(rest)
	return err == nil
}

// Check incrementa o contador da chave e decide. Nunca retorna erro:
// falhas do store viram decisão conforme a FailurePolicy.
func (s *Service) Check(ctx context.Context, identity string, policy domain.Policy) domain.Decision {
	key := s.Key(identity, policy.RoutePattern)

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	counter, err := s.store.IncrementWithExpiry(ctx, key, policy.Window)
	if err != nil {
		return s.unavailable(policy, key, err)
	}

	if counter.Count <= int64(policy.MaxRequests) {
		return domain.Decision{
			Allowed:    true,
			Reason:     domain.ReasonAllowed,
			Limit:      policy.MaxRequests,
			Remaining:  policy.MaxRequests - int(counter.Count),
			ResetAfter: counter.TTL,
		}
	}

	ttl := counter.TTL
	if ttl <= 0 {
		if reported, err := s.store.TTL(ctx, key); err == nil && reported > 0 {
			ttl = reported
		} else {
			ttl = policy.Window
		}
	}

	return domain.Decision{
		Allowed:    false,
		Reason:     domain.ReasonRateLimited,
		Limit:      policy.MaxRequests,
		Remaining:  0,
		RetryAfter: ttl,
		ResetAfter: ttl,
	}
}

func (s *Service) unavailable(policy domain.Policy, key string, cause error) domain.Decision {
	if s.outageLog.Allow() {
		s.logger.Warn("rate limit store unavailable",
			zap.String("route", policy.RoutePattern),
			zap.String("key", key),
			zap.Stringer("failure_policy", s.failure),
			zap.Error(cause))
	}

	if s.failure == domain.FailOpen {
		return domain.Decision{
			Allowed:   true,
			Reason:    domain.ReasonBackendUnavailable,
			Limit:     policy.MaxRequests,
			Remaining: policy.MaxRequests,
		}
	}
	return domain.Decision{
		Allowed:    false,
		Reason:     domain.ReasonBackendUnavailable,
		Limit:      policy.MaxRequests,
		RetryAfter: DefaultUnavailableRetryAfter,
	}
}

// Peek lê o contador atual sem incrementar.
func (s *Service) Peek(ctx context.Context, identity string, policy domain.Policy) (domain.Counter, error) {
	key := s.Key(identity, policy.RoutePattern)

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	counter, err := s.store.Get(ctx, key)
	if err != nil {
		return domain.Counter{}, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	return counter, nil
}

// Reset apaga o contador da identidade para a rota.
func (s *Service) Reset(ctx context.Context, identity string, policy domain.Policy) error {
	key := s.Key(identity, policy.RoutePattern)

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}
	return nil
}
