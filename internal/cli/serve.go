package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agenttrail/agenttrail/internal/cache"
	"github.com/agenttrail/agenttrail/internal/config"
	"github.com/agenttrail/agenttrail/internal/logging"
	"github.com/agenttrail/agenttrail/internal/ratelimit"
	"github.com/agenttrail/agenttrail/internal/server"
	"github.com/agenttrail/agenttrail/internal/service"
	"github.com/agenttrail/agenttrail/internal/storage"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the query API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(logger)
	log := logger.With(logging.Component("serve"))

	resultCache := cache.New(cfg.Cache.TTL(), cfg.Cache.MaxSize)

	// The service is built after the manager, so the swap hook resolves
	// it lazily.
	var svc *service.Service
	manager := storage.NewManager(cfg.Log.Dir, func() {
		if svc != nil {
			svc.InvalidateCache()
		}
	}, log.Logger)
	svc = service.New(cfg, manager, resultCache, log.Logger)

	limiter, err := buildLimiter(cfg, log.Logger)
	if err != nil {
		return err
	}

	srv := server.New(cfg, svc, manager, limiter, log)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("signal received", slog.String("signal", sig.String()))
	case <-ctx.Done():
	}

	return srv.Shutdown(context.Background())
}

func buildLimiter(cfg *config.Config, log *slog.Logger) (ratelimit.Limiter, error) {
	if !cfg.RateLimit.Enabled {
		return ratelimit.NoOpLimiter{}, nil
	}
	switch cfg.RateLimit.Backend {
	case "redis":
		limiter, err := ratelimit.NewRedisLimiter(cfg.RateLimit.RedisURL, cfg.RateLimit.Requests, cfg.RateLimit.Window())
		if err != nil {
			return nil, err
		}
		log.Info("admission control via redis")
		return limiter, nil
	default:
		return ratelimit.NewMemoryLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window()), nil
	}
}
