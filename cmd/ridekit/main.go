package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrymomot/ridekit/internal/app"
	"github.com/dmitrymomot/ridekit/pkg/config"
	"github.com/dmitrymomot/ridekit/pkg/logger"
	"github.com/dmitrymomot/ridekit/pkg/queue"
	"github.com/dmitrymomot/ridekit/pkg/requestid"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("ridekit exited", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg app.Config
	if err := config.Load(&cfg); err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(cfg.Env, cfg.Name),
		logger.WithConfig(cfg.Log),
		logger.WithContextExtractors(queue.LogExtractor(), requestid.LogExtractor()),
	)
	logger.SetAsDefault(log)

	rt, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	return rt.Run(ctx)
}
