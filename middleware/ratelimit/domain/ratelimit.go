package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"math"
	"time"
)

type Key string

// Counter é a visão de um contador de janela fixa como reportada pelo store.
// TTL <= 0 significa que o store não soube informar a expiração.
type Counter struct {
	Count int64
	TTL   time.Duration
}

// CounterStore é o store externo com incremento atômico.
//
// IncrementWithExpiry incrementa a chave e define a expiração apenas quando
// ela ainda não existe (primeiro hit da janela). Leituras nunca estendem a TTL.
// Implementações devem ser seguras para uso concorrente.
type CounterStore interface {
	IncrementWithExpiry(ctx context.Context, key string, window time.Duration) (Counter, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Get(ctx context.Context, key string) (Counter, error)
	Delete(ctx context.Context, keys ...string) error
}

type Reason string

const (
	ReasonAllowed            Reason = "allowed"
	ReasonRateLimited        Reason = "rate_limited"
	ReasonBackendUnavailable Reason = "backend_unavailable"
)

type Decision struct {
	Allowed bool
	Reason  Reason

	Limit     int
	Remaining int

	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	RetryAfter time.Duration
	// ResetAfter é o tempo até o fim da janela atual, quando conhecido.
	ResetAfter time.Duration
}

// RetryAfterSeconds arredonda para cima; uma rejeição nunca reporta 0.
func (d Decision) RetryAfterSeconds() int {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 0 {
		secs = 0
	}
	if !d.Allowed && secs == 0 {
		secs = 1
	}
	return secs
}

// Err traduz a decisão para os erros sentinela do pacote.
// Fail-open devolve nil mesmo com Reason == ReasonBackendUnavailable.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	if d.Reason == ReasonBackendUnavailable {
		return ErrBackendUnavailable
	}
	return ErrRateLimited
}
