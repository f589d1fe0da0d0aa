package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"animaldetect/internal/config"
	"animaldetect/internal/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)
	application := newApp(context.Background(), cfg, logger)

	go func() {
		if err := application.server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(application)
}

func waitForShutdown(a *app) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	a.log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("graceful shutdown failed")
	}

	a.close(shutdownCtx)

	a.log.Info().Msg("server exited cleanly")
}
