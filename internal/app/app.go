// Package app wires together the dependencies of the recommendation server
// and the ETL job runner.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/config"
	handler "github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/handler/http"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/openai"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/reco"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/repository/postgres"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/database"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/health"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/httpclient"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/middleware"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/tracing"
)

// App wires together all dependencies and runs the recommendation server.
type App struct {
	cfg            *config.RecoConfig
	logger         *slog.Logger
	pool           *pgxpool.Pool
	cache          *goredis.Client
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates the application with all dependencies wired.
func NewApp(ctx context.Context, cfg *config.RecoConfig, logger *slog.Logger) (*App, error) {
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:  "reco",
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SampleRate:   1.0,
		Enabled:      cfg.OTLPEndpoint != "",
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	pool, err := database.NewPostgresPoolFromDSN(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	database.RegisterPoolMetrics(pool, "reco")

	var cache *goredis.Client
	if cfg.RedisHost != "" {
		cache, err = database.NewRedisClient(ctx, database.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		logger.Info("context-vector cache enabled",
			slog.String("host", cfg.RedisHost),
		)
	}

	transport := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig("openai"),
		logger,
	)
	embeddingClient := openai.NewClient(openai.Config{
		APIKey: cfg.OpenAIAPIKey,
		Model:  cfg.OpenAIEmbeddingModel,
	}, transport)

	var embedder reco.Embedder = embeddingClient
	if cache != nil {
		ttl := time.Duration(cfg.CacheTTLHours) * time.Hour
		embedder = reco.NewCachedEmbedder(embeddingClient, cache, ttl, logger)
	}

	candidates := postgres.NewCandidateRepository(pool)
	loader := reco.NewLoader(candidates, embeddingClient.Model())
	recommender := reco.NewRecommender(embedder, loader, logger)

	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if cache != nil {
		healthHandler.Register("redis", func(ctx context.Context) error {
			return cache.Ping(ctx).Err()
		})
	}

	corsConfig := middleware.DefaultCORSConfig()
	if cfg.Env == config.EnvProd {
		corsConfig.Environment = "production"
		corsConfig.AllowedOrigins = cfg.AllowedOrigins
	}

	router := handler.NewRouter(recommender, healthHandler, corsConfig, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		cache:          cache,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server, blocking until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.pool.Close()

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
