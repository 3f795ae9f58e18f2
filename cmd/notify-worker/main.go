package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/hackgods/vaccination-booking/internal/config"
	"github.com/hackgods/vaccination-booking/internal/logging"
	"github.com/hackgods/vaccination-booking/internal/notify"
	redisclient "github.com/hackgods/vaccination-booking/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New("notify-worker", cfg.LogLevel, cfg.Env)
	logger.Info().Str("env", cfg.Env).Str("queue", cfg.NotifyQueue).Msg("notify-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.ClientConfig{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer redisclient.Close(rdb, logger)

	worker := notify.NewWorker(rdb, cfg.NotifyQueue, notify.NewLogMailer(logger), logger)
	worker.Run(rootCtx)

	logger.Info().Msg("notify-worker stopped")
}
