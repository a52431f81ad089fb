package cmd

import (
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ratelimit-gateway/internal/server"
	"ratelimit-gateway/middleware/ratelimit"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway in front of the upstream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(ctx, opts.configPath, false)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := a.cfg
			target, err := url.Parse(cfg.Upstream.URL)
			if err != nil {
				return fmt.Errorf("invalid upstream.url: %w", err)
			}

			rl := ratelimit.Options{
				Policies:            a.policies,
				Stats:               a.stats,
				Logger:              a.logger,
				StatsTimeout:        cfg.RateLimit.StoreTimeout,
				Skip:                ratelimit.SkipPrefixes(cfg.RateLimit.SkipPaths...),
				KeyHeader:           cfg.RateLimit.KeyHeader,
				TrustXForwardedFor:  cfg.RateLimit.TrustXFF,
				AddRateLimitHeaders: cfg.RateLimit.AddHeaders,
			}
			if cfg.RateLimit.Enabled {
				rl.Checker = a.svc
			}
			if cfg.RateLimit.JWTSecret != "" {
				rl.KeyFn = ratelimit.JWTKeyFunc(
					[]byte(cfg.RateLimit.JWTSecret),
					ratelimit.DefaultKeyFunc(cfg.RateLimit.KeyHeader, cfg.RateLimit.TrustXFF),
				)
			}

			srv, err := server.New(cfg.Server, server.Deps{
				Upstream:  target,
				RateLimit: rl,
				Concurrency: ratelimit.ConcurrencyOptions{
					Max:            cfg.Concurrency.Max,
					AcquireTimeout: cfg.Concurrency.AcquireTimeout,
				},
				Ready:    a.ready,
				Registry: a.registry,
				Logger:   a.logger,
			})
			if err != nil {
				return err
			}

			a.logger.Info("gateway configured",
				zap.String("upstream", target.String()),
				zap.Bool("ratelimit_enabled", cfg.RateLimit.Enabled),
				zap.String("store", cfg.RateLimit.Store),
				zap.Stringer("failure_policy", a.svc.FailurePolicy()),
				zap.Int("policies", a.policies.Len()),
				zap.Bool("breaker", cfg.Breaker.Enabled),
				zap.String("stats", cfg.Stats.Backend),
				zap.Int("concurrency_max", cfg.Concurrency.Max))

			return srv.Run(ctx)
		},
	}
}
