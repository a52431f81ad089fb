package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ratelimit-gateway/internal/observability"
	"ratelimit-gateway/middleware/ratelimit"
	"ratelimit-gateway/middleware/ratelimit/application"
	"ratelimit-gateway/middleware/ratelimit/domain"
	"ratelimit-gateway/middleware/ratelimit/infra"
)

// Exemplo: middleware direto no webserver (sem proxy), com políticas por
// padrão de rota do chi e store em memória.
func main() {
	logger, err := observability.NewLogger("info", "console")
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := infra.NewMemoryCounterStore()
	store.StartJanitor(ctx)

	svc, err := application.NewService(application.Config{
		Store:         store,
		FailurePolicy: domain.FailOpen,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("service", zap.Error(err))
	}

	policies, err := examplePolicies()
	if err != nil {
		logger.Fatal("policies", zap.Error(err))
	}

	r := chi.NewRouter()
	r.Use(ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{Max: 50, Logger: logger}))
	r.Use(ratelimit.Middleware(ratelimit.Options{
		Checker:             svc,
		Policies:            policies,
		Logger:              logger,
		KeyHeader:           "X-Api-Key", // ou vazio para usar IP
		TrustXForwardedFor:  true,
		RouteFn:             ratelimit.ChiRouteFunc(r),
		AddRateLimitHeaders: true,
	}))

	ok := func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}
	r.Get("/", ok)
	r.Post("/login", ok)
	r.Post("/register", ok)
	r.Get("/users/{id}", ok)
	r.Get("/api/*", ok)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

func examplePolicies() (domain.PolicySet, error) {
	var policies []domain.Policy
	for _, p := range []struct{ preset, route string }{
		{"auth", "/login"},
		{"auth", "/register"},
		{"relaxed", "/users/{id}"},
		{"moderate", "/api/*"},
	} {
		policy, err := domain.Preset(p.preset, p.route)
		if err != nil {
			return domain.PolicySet{}, err
		}
		policies = append(policies, policy)
	}
	return domain.NewPolicySet(policies...)
}
