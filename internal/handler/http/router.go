package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/reco"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/health"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/httputil"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/middleware"
)

// NewRouter creates a chi router with all recommendation service routes
// registered.
func NewRouter(
	recommender *reco.Recommender,
	healthHandler *health.Handler,
	corsConfig middleware.CORSConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.CORS(corsConfig))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Tracing("reco"))
	r.Use(middleware.PrometheusMetrics("reco"))

	r.Get("/health", serviceHealth)
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	recommendationHandler := NewRecommendationHandler(recommender, logger)
	r.Post("/recommendations", recommendationHandler.Recommend)

	return r
}

// serviceHealth is the flat liveness probe the frontend polls.
func serviceHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"service":   "reco",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
