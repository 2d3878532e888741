// The reco binary serves the recommendation API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/app"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/config"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/logger"
)

func main() {
	cfg, err := config.LoadReco()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New("reco", cfg.LogLevel)
	log.Info("starting recommendation service",
		slog.String("env", cfg.Env),
		slog.Int("http_port", cfg.HTTPPort),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		log.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("recommendation service stopped")
}
