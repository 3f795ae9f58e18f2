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
	"github.com/rs/zerolog"

	"github.com/hackgods/vaccination-booking/internal/appointment"
	"github.com/hackgods/vaccination-booking/internal/config"
	"github.com/hackgods/vaccination-booking/internal/db"
	"github.com/hackgods/vaccination-booking/internal/logging"
	"github.com/hackgods/vaccination-booking/internal/metrics"
	"github.com/hackgods/vaccination-booking/internal/payment"
	redisclient "github.com/hackgods/vaccination-booking/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New("reconcile-worker", cfg.LogLevel, cfg.Env)
	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.ReconcileInterval).
		Dur("lock_ttl", cfg.LockTTL).
		Msg("reconcile-worker starting up")

	if cfg.StoreDriver != config.StorePostgres {
		logger.Fatal().Str("store", cfg.StoreDriver).Msg("reconcile worker needs the postgres store")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, logger)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pool.Close()

	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.ClientConfig{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer redisclient.Close(rdb, logger)

	m := metrics.New("reconcile-worker")
	metricsSrv := serveMetrics(cfg.MetricsPort, m, logger)

	reconciler := payment.NewReconciler(
		payment.NewPgRepository(pool),
		appointment.NewPgRepository(pool),
		m,
		logger,
	)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)

	reconciler.Run(rootCtx, locker, cfg.ReconcileInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown failed")
	}
	logger.Info().Msg("reconcile-worker stopped")
}

// serveMetrics exposes the worker's collector for scraping.
func serveMetrics(port string, m *metrics.Collector, logger zerolog.Logger) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	return srv
}
