package reco

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/repository/postgres"
)

type fakeCandidateSource struct {
	rows    []postgres.CandidateRow
	vectors map[string][]float64
	models  []string
	fetched [][]string
}

func (f *fakeCandidateSource) FetchActiveSince(context.Context, time.Time) ([]postgres.CandidateRow, error) {
	return f.rows, nil
}

func (f *fakeCandidateSource) FetchVectors(_ context.Context, model string, itemIDs []string) (map[string][]float64, error) {
	f.models = append(f.models, model)
	f.fetched = append(f.fetched, itemIDs)
	out := make(map[string][]float64, len(itemIDs))
	for _, id := range itemIDs {
		if v, ok := f.vectors[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func TestLoaderLoad(t *testing.T) {
	source := &fakeCandidateSource{
		rows: []postgres.CandidateRow{
			{ItemID: "item-1", ItemPrice: int64Ptr(3000)},
			{ItemID: "item-2", ItemPrice: int64Ptr(9000)},  // over budget
			{ItemID: "item-3", ItemPrice: int64Ptr(4000)},  // no embedding
			{ItemID: "item-4", ItemPrice: int64Ptr(4500)},  // wrong dimension
			{ItemID: "item-5"},                             // no price, excluded by budget filter
		},
		vectors: map[string][]float64{
			"item-1": {1, 0},
			"item-2": {0, 1},
			"item-4": {1, 0, 0},
		},
	}
	loader := NewLoader(source, "text-embedding-3-small")

	candidates, err := loader.Load(context.Background(), []float64{1, 0}, int64Ptr(1000), int64Ptr(5000))
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.Equal(t, "item-1", candidates[0].ItemID)
	assert.InDelta(t, 1.0, candidates[0].VectorScore, 1e-9)

	require.Len(t, source.fetched, 1)
	assert.Equal(t, []string{"item-1", "item-3", "item-4"}, source.fetched[0])
	assert.Equal(t, []string{"text-embedding-3-small"}, source.models)
}

func TestLoaderLoad_NoBudgetKeepsUnpriced(t *testing.T) {
	source := &fakeCandidateSource{
		rows:    []postgres.CandidateRow{{ItemID: "item-1"}},
		vectors: map[string][]float64{"item-1": {0, 1}},
	}
	loader := NewLoader(source, "m")

	candidates, err := loader.Load(context.Background(), []float64{1, 0}, nil, nil)
	require.NoError(t, err)

	require.Len(t, candidates, 1)
	assert.InDelta(t, 0.0, candidates[0].VectorScore, 1e-9)
}

func TestCosine(t *testing.T) {
	sim, ok := Cosine([]float64{1, 2, 3}, []float64{1, 2, 3})
	require.True(t, ok)
	assert.InDelta(t, 1.0, sim, 1e-9)

	sim, ok = Cosine([]float64{1, 0}, []float64{0, 1})
	require.True(t, ok)
	assert.InDelta(t, 0.0, sim, 1e-9)

	_, ok = Cosine([]float64{1, 0}, []float64{1})
	assert.False(t, ok, "dimension mismatch is undefined")

	_, ok = Cosine([]float64{0, 0}, []float64{1, 0})
	assert.False(t, ok, "zero norm is undefined")

	_, ok = Cosine(nil, nil)
	assert.False(t, ok)
}
