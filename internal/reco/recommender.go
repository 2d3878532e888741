package reco

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/errors"
)

// embeddingVersion stamps the context block so clients can detect when the
// embedding pipeline changes underneath stored vectors.
const embeddingVersion = 1

// Embedder turns a context text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Model() string
}

// Response is the full recommendation payload.
type Response struct {
	RequestID   string            `json:"requestId"`
	Context     ResponseContext   `json:"context"`
	Resolved    ResolvedAlgorithm `json:"resolved"`
	Items       []RecommendedItem `json:"items"`
	GeneratedAt string            `json:"generatedAt"`
}

// ResponseContext echoes what the request was scored against.
type ResponseContext struct {
	ContextText      string    `json:"contextText"`
	ContextVector    []float64 `json:"contextVector"`
	EmbeddingModel   string    `json:"embeddingModel"`
	EmbeddingVersion int       `json:"embeddingVersion"`
}

// ResolvedAlgorithm names the algorithm that ran and its parameters.
type ResolvedAlgorithm struct {
	Name       string         `json:"name"`
	Params     map[string]any `json:"params"`
	ResolvedBy string         `json:"resolvedBy"`
}

// RecommendedItem is one ranked entry in the response.
type RecommendedItem struct {
	ItemID       string  `json:"itemId"`
	Rank         int     `json:"rank"`
	Score        float64 `json:"score"`
	VectorScore  float64 `json:"vectorScore"`
	RerankScore  float64 `json:"rerankScore"`
	Reason       Reason  `json:"reason"`
	ItemName     string  `json:"itemName"`
	ItemURL      string  `json:"itemUrl"`
	AffiliateURL string  `json:"affiliateUrl"`
	PriceYen     *int64  `json:"priceYen"`
}

// Reason explains a placement; the only type today is the scoring breakdown.
type Reason struct {
	Type   string          `json:"type"`
	Scores ComponentScores `json:"scores"`
}

// Recommender composes the mode resolver, candidate loader, scorer, and MMR
// selector behind one synchronous call.
type Recommender struct {
	embedder Embedder
	loader   *Loader
	logger   *slog.Logger
}

// NewRecommender wires the recommendation pipeline.
func NewRecommender(embedder Embedder, loader *Loader, logger *slog.Logger) *Recommender {
	return &Recommender{
		embedder: embedder,
		loader:   loader,
		logger:   logger,
	}
}

// Recommend runs the full pipeline for one request.
func (s *Recommender) Recommend(ctx context.Context, req Request) (*Response, error) {
	requestID := uuid.NewString()

	resolved, err := ResolveMode(req.Mode, req.AlgorithmOverride)
	if err != nil {
		s.logger.WarnContext(ctx, "mode resolution failed",
			slog.String("request_id", requestID),
			slog.String("mode", req.Mode),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	contextText := BuildContextText(req)
	contextVector, err := s.embedder.Embed(ctx, contextText)
	if err != nil {
		s.logger.ErrorContext(ctx, "context embedding failed",
			slog.String("request_id", requestID),
			slog.Int("context_text_len", len(contextText)),
			slog.String("error", err.Error()),
		)
		return nil, &apperrors.AppError{
			Code:    "EMBEDDING_FAILED",
			Message: "context embedding failed",
			Status:  http.StatusInternalServerError,
			Err:     err,
		}
	}

	candidates, err := s.loader.Load(ctx, contextVector, req.BudgetMin, req.BudgetMax)
	if err != nil {
		s.logger.ErrorContext(ctx, "candidate load failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return nil, &apperrors.AppError{
			Code:    "CANDIDATE_LOAD_FAILED",
			Message: "candidate load failed",
			Status:  http.StatusInternalServerError,
			Err:     err,
		}
	}
	if len(candidates) == 0 {
		return nil, &apperrors.AppError{
			Code:    "NO_CANDIDATES",
			Message: "no active candidates with embeddings",
			Status:  http.StatusInternalServerError,
		}
	}

	scored := ScoreCandidates(candidates, resolved)
	final := rankForAlgorithm(scored, resolved)

	items := make([]RecommendedItem, len(final))
	for i, sc := range final {
		items[i] = RecommendedItem{
			ItemID:       sc.ItemID,
			Rank:         i + 1,
			Score:        sc.Score,
			VectorScore:  sc.VectorScore,
			RerankScore:  sc.RerankScore,
			Reason:       Reason{Type: "scoring", Scores: sc.Scores},
			ItemName:     stringOrEmpty(sc.Row.ItemName),
			ItemURL:      stringOrEmpty(sc.Row.ItemURL),
			AffiliateURL: affiliateOrItemURL(sc.Row.AffiliateURL, sc.Row.ItemURL),
			PriceYen:     sc.Row.ItemPrice,
		}
	}

	s.logger.InfoContext(ctx, "recommendation done",
		slog.String("request_id", requestID),
		slog.String("mode", resolved.Mode),
		slog.String("algorithm", resolved.Algorithm),
		slog.Int("candidates", len(candidates)),
		slog.Int("items", len(items)),
	)

	return &Response{
		RequestID: requestID,
		Context: ResponseContext{
			ContextText:      contextText,
			ContextVector:    contextVector,
			EmbeddingModel:   s.embedder.Model(),
			EmbeddingVersion: embeddingVersion,
		},
		Resolved: ResolvedAlgorithm{
			Name:       resolved.Algorithm,
			Params:     resolved.ResponseParams(),
			ResolvedBy: resolved.ResolvedBy,
		},
		Items:       items,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// rankForAlgorithm applies the final ordering the resolved algorithm asks
// for: vector similarity only, the blended score, or blended score plus MMR
// diversification.
func rankForAlgorithm(scored []Scored, resolved Resolved) []Scored {
	ranked := make([]Scored, len(scored))
	copy(ranked, scored)

	switch resolved.Algorithm {
	case AlgorithmVectorOnly:
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].VectorScore > ranked[j].VectorScore
		})
		return truncate(ranked, resolved.NOut)
	case AlgorithmVectorRanked:
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].Score > ranked[j].Score
		})
		return truncate(ranked, resolved.NOut)
	default:
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].Score > ranked[j].Score
		})
		return MMRSelect(truncate(ranked, resolved.NIn), resolved.NOut, resolved.MMRLambda)
	}
}

func truncate(s []Scored, n int) []Scored {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func affiliateOrItemURL(affiliate, item *string) string {
	if affiliate != nil && *affiliate != "" {
		return *affiliate
	}
	return stringOrEmpty(item)
}
