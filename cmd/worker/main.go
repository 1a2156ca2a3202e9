package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"

	"rollcall/internal/config"
	"rollcall/internal/events"
	"rollcall/internal/logger"
	"rollcall/internal/store"
)

// Worker follows the redis change feed and writes an activity log.
func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Logger.Info().Msg("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPrefix)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx); err != nil {
		logger.Logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis not reachable")
	}

	bus := events.NewRedisBus(redisClient.Client, cfg.RedisPrefix+"events")
	messages, err := bus.Subscribe(ctx)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("subscribe failed")
	}

	logger.Logger.Info().Msg("worker started, waiting for changes...")
	for msg := range messages {
		logChange(msg)
	}
	logger.Logger.Info().Msg("worker stopped")
}

func logChange(msg events.Message) {
	var body map[string]any
	if err := json.Unmarshal(msg.Body, &body); err != nil {
		logger.Logger.Warn().Err(err).Str("type", msg.Type).Msg("unreadable change body")
		return
	}
	logger.Logger.Info().Str("type", msg.Type).Fields(body).Msg("change")
}
