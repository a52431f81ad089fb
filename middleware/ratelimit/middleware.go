package ratelimit

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"ratelimit-gateway/middleware/ratelimit/application"
	"ratelimit-gateway/middleware/ratelimit/domain"
)

// Checker é o caso de uso consumido pelo middleware (application.Service).
type Checker interface {
	Check(ctx context.Context, identity string, policy domain.Policy) domain.Decision
	Key(identity, routePattern string) string
}

type Options struct {
	Checker  Checker
	Policies domain.PolicySet
	Stats    domain.StatsStore
	Logger   *zap.Logger
	// StatsTimeout limita a gravação de estatísticas no caminho da request.
	// Zero usa application.DefaultStoreTimeout.
	StatsTimeout time.Duration

	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool
	RouteFn            RouteFunc
	// Skip devolve true para requests que nunca são limitadas (ex.: estáticos).
	Skip func(r *http.Request) bool

	RejectStatus      int
	UnavailableStatus int

	AddRateLimitHeaders bool

	now func() time.Time
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.UnavailableStatus == 0 {
		opts.UnavailableStatus = http.StatusServiceUnavailable
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.RouteFn == nil {
		opts.RouteFn = PathRouteFunc
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	if opts.StatsTimeout <= 0 {
		opts.StatsTimeout = application.DefaultStoreTimeout
	}

	return func(next http.Handler) http.Handler {
		if opts.Checker == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.Skip != nil && opts.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			policy, ok := opts.Policies.Match(opts.RouteFn(r))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			identity := opts.KeyFn(r)
			dec := opts.Checker.Check(r.Context(), identity, policy)
			now := opts.now()

			if opts.Stats != nil {
				ev := domain.StatsEvent{
					Key:     domain.Key(opts.Checker.Key(identity, policy.RoutePattern)),
					Route:   policy.RoutePattern,
					Allowed: dec.Allowed,
					Reason:  dec.Reason,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      now,
				}
				recordStats(r.Context(), opts, ev)
			}

			if opts.AddRateLimitHeaders {
				h := w.Header()
				h.Set("X-RateLimit-Limit", formatInt(dec.Limit))
				h.Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
				if dec.ResetAfter > 0 {
					h.Set("X-RateLimit-Reset", formatReset(now, dec.ResetAfter))
				}
			}

			if !dec.Allowed {
				status := opts.RejectStatus
				if dec.Reason == domain.ReasonBackendUnavailable {
					status = opts.UnavailableStatus
				} else {
					opts.Logger.Info("rate limit exceeded",
						zap.String("route", policy.RoutePattern),
						zap.String("identity", identity),
						zap.Int("limit", policy.MaxRequests),
						zap.Int("retry_after", dec.RetryAfterSeconds()))
				}
				writeRejection(w, status, dec, policy, now)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func recordStats(ctx context.Context, opts Options, ev domain.StatsEvent) {
	ctx, cancel := context.WithTimeout(ctx, opts.StatsTimeout)
	defer cancel()
	if err := opts.Stats.Record(ctx, ev); err != nil {
		opts.Logger.Debug("rate limit stats record failed", zap.Error(err))
	}
}
