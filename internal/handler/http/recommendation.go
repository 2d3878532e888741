package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/reco"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/httputil"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/validator"
)

// RecommendationHandler handles HTTP requests for the recommendation endpoint.
type RecommendationHandler struct {
	service *reco.Recommender
	logger  *slog.Logger
}

// NewRecommendationHandler creates a recommendation HTTP handler.
func NewRecommendationHandler(svc *reco.Recommender, logger *slog.Logger) *RecommendationHandler {
	return &RecommendationHandler{
		service: svc,
		logger:  logger,
	}
}

// RecommendationRequest is the JSON request body for POST /recommendations.
type RecommendationRequest struct {
	Mode                 string   `json:"mode" validate:"required"`
	EventName            string   `json:"eventName"`
	RecipientDescription string   `json:"recipientDescription"`
	BudgetMin            *int64   `json:"budgetMin" validate:"omitempty,gte=0"`
	BudgetMax            *int64   `json:"budgetMax" validate:"omitempty,gte=0"`
	FeaturesLike         []string `json:"featuresLike"`
	FeaturesNotLike      []string `json:"featuresNotLike"`
	FeaturesNg           []string `json:"featuresNg"`
	AlgorithmOverride    string   `json:"algorithmOverride"`
}

// Recommend handles POST /recommendations
func (h *RecommendationHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req RecommendationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	if req.BudgetMin != nil && req.BudgetMax != nil && *req.BudgetMin > *req.BudgetMax {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "budgetMin must not exceed budgetMax"},
		})
		return
	}

	resp, err := h.service.Recommend(r.Context(), reco.Request{
		Mode:                 req.Mode,
		EventName:            req.EventName,
		RecipientDescription: req.RecipientDescription,
		BudgetMin:            req.BudgetMin,
		BudgetMax:            req.BudgetMax,
		FeaturesLike:         req.FeaturesLike,
		FeaturesNotLike:      req.FeaturesNotLike,
		FeaturesNg:           req.FeaturesNg,
		AlgorithmOverride:    req.AlgorithmOverride,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}
