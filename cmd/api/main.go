package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/config"
	"rollcall/internal/events"
	"rollcall/internal/httpapi"
	"rollcall/internal/logger"
	"rollcall/internal/store"
	"rollcall/internal/tracker"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg); err != nil {
		logger.Logger.Fatal().Err(err).Msg("http server failed")
	}
}

func run(cfg config.App) error {
	ctx := context.Background()

	kv, err := store.Open(ctx, cfg.StoreBackend, store.Options{
		SQLitePath:  cfg.SQLitePath,
		DatabaseURL: cfg.DatabaseURL,
		RedisAddr:   cfg.RedisAddr,
		RedisPrefix: cfg.RedisPrefix,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logger.Logger.Warn().Err(err).Msg("close store")
		}
	}()
	logger.Logger.Info().Str("backend", cfg.StoreBackend).Msg("store opened")

	bus, closeBus := openBus(cfg, kv)
	defer closeBus()

	tr := tracker.Open(ctx, kv, bus, cfg.PruneOnStart)
	logger.Logger.Info().Int("students", tr.Roster.Len()).Msg("roster loaded")

	r := httpapi.NewRouter(tr, httpapi.RouterConfig{
		RateLimitPerMin: cfg.RateLimitPerMin,
		AllowOrigins:    cfg.CORSOrigins,
	})

	srv := newServer(":"+cfg.HTTPPort, r)

	errCh := make(chan error, 1)
	go func() {
		logger.Logger.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	logger.Logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Warn().Err(err).Msg("server forced shutdown")
	}

	logger.Logger.Info().Msg("server exited")
	return nil
}

// newServer builds the HTTP server. WriteTimeout stays unset so the change
// stream can stay open; request contexts are cancelled once Shutdown starts
// so open streams end instead of holding the drain.
func newServer(addr string, h http.Handler) *http.Server {
	base, cancel := context.WithCancel(context.Background())
	srv := &http.Server{
		Addr:        addr,
		Handler:     h,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(cancel)
	return srv
}

// openBus picks the change-event backend. The redis bus reuses the store's
// client when the store is redis too.
func openBus(cfg config.App, kv store.KV) (events.Bus, func()) {
	if cfg.EventsBackend != "redis" {
		return events.NewInMemory(64), func() {}
	}
	channel := cfg.RedisPrefix + "events"
	if r, ok := kv.(*store.Redis); ok {
		return events.NewRedisBus(r.Client, channel), func() {}
	}
	r := store.NewRedis(cfg.RedisAddr, cfg.RedisPrefix)
	return events.NewRedisBus(r.Client, channel), func() { _ = r.Close() }
}
