package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/vaccination-booking/internal/account"
	"github.com/hackgods/vaccination-booking/internal/api"
	"github.com/hackgods/vaccination-booking/internal/appointment"
	"github.com/hackgods/vaccination-booking/internal/auth"
	"github.com/hackgods/vaccination-booking/internal/config"
	"github.com/hackgods/vaccination-booking/internal/db"
	"github.com/hackgods/vaccination-booking/internal/logging"
	"github.com/hackgods/vaccination-booking/internal/memstore"
	"github.com/hackgods/vaccination-booking/internal/metrics"
	"github.com/hackgods/vaccination-booking/internal/notify"
	"github.com/hackgods/vaccination-booking/internal/payment"
	redisclient "github.com/hackgods/vaccination-booking/internal/redis"
	"github.com/hackgods/vaccination-booking/internal/slot"
)

var version = "dev"

// stores groups the repositories one storage driver provides.
type stores struct {
	appointments appointment.Repository
	payments     payment.Repository
	accounts     account.Repository
	pinger       api.Pinger
	close        func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New("api-server", cfg.LogLevel, cfg.Env)
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("store", cfg.StoreDriver).
		Str("notify", cfg.NotifyDriver).
		Str("timezone", cfg.TimeZone).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("store setup error")
	}
	defer st.close()

	var rdb *redis.Client
	if cfg.NotifyDriver == config.NotifyRedis {
		rdb, err = redisclient.NewRedisClient(rootCtx, redisclient.ClientConfig{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection error")
		}
		defer redisclient.Close(rdb, logger)
	}

	var sender notify.Sender = notify.NewLogMailer(logger)
	if rdb != nil {
		sender = notify.NewRedisOutbox(rdb, cfg.NotifyQueue)
	}

	m := metrics.New("api-server")
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)

	payments := payment.NewService(st.payments, st.appointments, sender, logger, payment.WithMetrics(m))
	appointments := appointment.NewService(st.appointments, slot.NewGrid(cfg.Location()), sender, logger,
		appointment.WithPaymentVoider(payments),
		appointment.WithMetrics(m),
	)
	accounts := account.NewService(st.accounts, tokens, auth.NewPasswordHasher(), m, logger)

	router := api.NewRouter(api.RouterConfig{
		Appointments: appointments,
		Payments:     payments,
		Accounts:     accounts,
		Tokens:       tokens,
		Store:        st.pinger,
		StoreName:    cfg.StoreDriver,
		Redis:        rdb,
		Metrics:      m,
		Logger:       logger,
		Env:          cfg.Env,
		Version:      version,
	})

	// Without a shared database there is no separate reconcile worker; run it here.
	if cfg.StoreDriver == config.StoreMemory {
		reconciler := payment.NewReconciler(st.payments, st.appointments, m, logger)
		go reconciler.Run(rootCtx, redisclient.NewLocalLocker(), cfg.ReconcileInterval)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("api-server stopped")
}

func openStores(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*stores, error) {
	if cfg.StoreDriver == config.StoreMemory {
		logger.Warn().Msg("using in-memory store; data is lost on restart")
		mem := memstore.New()
		return &stores{
			appointments: mem,
			payments:     mem,
			accounts:     mem,
			pinger:       mem,
			close:        func() {},
		}, nil
	}

	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, logger)
	if err != nil {
		return nil, err
	}
	if err := db.CreateSchema(pgCtx, pool, logger); err != nil {
		pool.Close()
		return nil, err
	}
	return &stores{
		appointments: appointment.NewPgRepository(pool),
		payments:     payment.NewPgRepository(pool),
		accounts:     account.NewPgRepository(pool),
		pinger:       pool,
		close:        pool.Close,
	}, nil
}
