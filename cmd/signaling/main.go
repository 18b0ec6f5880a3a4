package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/peercall/config"
	"github.com/mossy-p/peercall/internal/handlers"
	"github.com/mossy-p/peercall/internal/logging"
	"github.com/mossy-p/peercall/internal/redis"
	"github.com/mossy-p/peercall/internal/registry"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger := logging.Init(cfg.LogLevel)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := registry.Options{MaxRoomIDLength: cfg.MaxRoomIDLength, Logger: logger}

	var presence handlers.PresenceReader
	if cfg.Redis.Enabled {
		instance, _ := os.Hostname()
		p, err := redis.Connect(ctx, cfg.Redis, instance, logger)
		if err != nil {
			logger.Error("failed to connect to redis", "err", err)
			os.Exit(1)
		}
		defer p.Close()

		if n, err := p.Reset(ctx); err != nil {
			logger.Warn("failed to clear stale presence", "err", err)
		} else if n > 0 {
			logger.Info("cleared stale presence records", "count", n)
		}
		logger.Info("redis presence mirror enabled", "instance", instance)

		opts.Observer = p
		presence = p
	}

	reg := registry.New(opts)
	router := handlers.NewRouter(handlers.New(cfg, reg, presence, logger))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting signaling server", "port", cfg.Port, "environment", cfg.Environment)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
