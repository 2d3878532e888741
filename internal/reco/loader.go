package reco

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/repository/postgres"
)

// candidateSource is the slice of the candidate repository the loader needs.
type candidateSource interface {
	FetchActiveSince(ctx context.Context, since time.Time) ([]postgres.CandidateRow, error)
	FetchVectors(ctx context.Context, model string, itemIDs []string) (map[string][]float64, error)
}

// Candidate is one active item joined with its embedding and the similarity
// against the request context.
type Candidate struct {
	postgres.CandidateRow
	Vector      []float64
	VectorScore float64
}

// Loader joins the feature view with the vector store.
type Loader struct {
	source candidateSource
	model  string
}

// NewLoader creates a candidate loader for the given embedding model.
func NewLoader(source candidateSource, model string) *Loader {
	return &Loader{source: source, model: model}
}

// Load returns the active candidates within the optional budget window,
// each with its vector and cosine similarity against the context vector.
// Items without an embedding or with a mismatched dimension are dropped.
func (l *Loader) Load(ctx context.Context, contextVector []float64, budgetMin, budgetMax *int64) ([]Candidate, error) {
	rows, err := l.source.FetchActiveSince(ctx, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}

	var kept []postgres.CandidateRow
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if !withinBudget(row.ItemPrice, budgetMin, budgetMax) {
			continue
		}
		kept = append(kept, row)
		ids = append(ids, row.ItemID)
	}
	if len(kept) == 0 {
		return nil, nil
	}

	vectors, err := l.source.FetchVectors(ctx, l.model, ids)
	if err != nil {
		return nil, fmt.Errorf("load vectors: %w", err)
	}

	candidates := make([]Candidate, 0, len(kept))
	for _, row := range kept {
		vector, ok := vectors[row.ItemID]
		if !ok {
			continue
		}
		similarity, ok := Cosine(contextVector, vector)
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{
			CandidateRow: row,
			Vector:       vector,
			VectorScore:  similarity,
		})
	}

	return candidates, nil
}

func withinBudget(price, budgetMin, budgetMax *int64) bool {
	if budgetMin != nil && (price == nil || *price < *budgetMin) {
		return false
	}
	if budgetMax != nil && (price == nil || *price > *budgetMax) {
		return false
	}
	return true
}

// Cosine returns the cosine similarity of two vectors. The second return is
// false when the similarity is undefined: empty input, dimension mismatch,
// or a zero-norm vector.
func Cosine(a, b []float64) (float64, bool) {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, false
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}
