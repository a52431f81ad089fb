// Package server monta o gateway HTTP: health, readiness, métricas e o
// reverse proxy protegido pelos limitadores.
package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"ratelimit-gateway/internal/config"
	"ratelimit-gateway/middleware/ratelimit"
	"ratelimit-gateway/middleware/ratelimit/infra"
)

// Pinger é o que /readyz consulta (normalmente o Counter Store).
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Upstream *url.URL
	// RateLimit.Checker nil desliga o rate limit.
	RateLimit   ratelimit.Options
	Concurrency ratelimit.ConcurrencyOptions
	Ready       Pinger
	// Registry nil desliga /metrics.
	Registry *prometheus.Registry
	Logger   *zap.Logger
}

type Server struct {
	cfg    config.ServerConfig
	router *chi.Mux
	logger *zap.Logger
}

func New(cfg config.ServerConfig, deps Deps) (*Server, error) {
	if deps.Upstream == nil {
		return nil, errors.New("upstream URL is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	s := &Server{cfg: cfg, router: chi.NewRouter(), logger: deps.Logger}
	if err := s.routes(deps); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) routes(deps Deps) error {
	r := s.router

	if deps.Concurrency.Pool == nil && deps.Concurrency.Max > 0 {
		deps.Concurrency.Pool = infra.NewChanPool(deps.Concurrency.Max)
	}

	var metrics *httpMetrics
	if deps.Registry != nil {
		var err error
		if metrics, err = newHTTPMetrics(deps.Registry, deps.Concurrency.Pool); err != nil {
			return err
		}
	}

	r.Use(RequestID)
	r.Use(AccessLog(deps.Logger, metrics))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz(deps.Ready))
	if deps.Registry != nil {
		r.Handle("/metrics", metricsHandler(deps.Registry))
	}

	proxy := httputil.NewSingleHostReverseProxy(deps.Upstream)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		s.logger.Warn("proxy error",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	rl := deps.RateLimit
	if rl.Logger == nil {
		rl.Logger = deps.Logger
	}
	conc := deps.Concurrency
	if conc.Logger == nil {
		conc.Logger = deps.Logger
	}

	r.Group(func(r chi.Router) {
		r.Use(ratelimit.ConcurrencyMiddleware(conc))
		r.Use(ratelimit.Middleware(rl))
		r.Handle("/*", proxy)
	})
	return nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run escuta até o ctx encerrar e então faz shutdown gracioso.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", zap.Duration("timeout", s.cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
