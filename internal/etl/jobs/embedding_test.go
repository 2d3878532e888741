package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/repository/postgres"
)

type fakeEmbedder struct {
	model   string
	vectors map[string][]float64
	errFor  map[string]error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if err := f.errFor[text]; err != nil {
		return nil, err
	}
	return f.vectors[text], nil
}

func (f *fakeEmbedder) Model() string { return f.model }

type fakeVectorStore struct {
	stale     []postgres.EmbeddingSource
	itemIDs   []string
	models    []string
	hashes    []string
	vectors   [][]float64
	upsertErr error
}

func (f *fakeVectorStore) FetchStaleSources(context.Context, string) ([]postgres.EmbeddingSource, error) {
	return f.stale, nil
}

func (f *fakeVectorStore) UpsertVector(_ context.Context, itemID, model, sourceHash string, vector []float64) (string, error) {
	if f.upsertErr != nil {
		return "", f.upsertErr
	}
	f.itemIDs = append(f.itemIDs, itemID)
	f.models = append(f.models, model)
	f.hashes = append(f.hashes, sourceHash)
	f.vectors = append(f.vectors, vector)
	return postgres.UpsertInserted, nil
}

func TestEmbeddingJobRun(t *testing.T) {
	provider := &fakeEmbedder{
		model: "text-embedding-3-small",
		vectors: map[string][]float64{
			"商品名: ギフト券": {0.1, 0.2, 0.3},
		},
		errFor: map[string]error{"商品名: 壊れた": errors.New("rate limited")},
	}
	store := &fakeVectorStore{stale: []postgres.EmbeddingSource{
		{ItemID: "item-1", SourceText: "商品名: ギフト券", SourceHash: "hash-1"},
		{ItemID: "item-2", SourceText: "商品名: 壊れた", SourceHash: "hash-2"},
	}}

	job := NewEmbeddingJob(provider, store, noEvents, quietLogger())

	summary, err := job.Run(context.Background(), testRun("embedding-build"))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalTargets)
	assert.Equal(t, 1, summary.SuccessCount)
	assert.Equal(t, 1, summary.FailureCount, "provider failure isolates to the item")

	require.Len(t, store.itemIDs, 1)
	assert.Equal(t, "item-1", store.itemIDs[0])
	assert.Equal(t, "text-embedding-3-small", store.models[0])
	assert.Equal(t, "hash-1", store.hashes[0])
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, store.vectors[0])
}

func TestEmbeddingJobRun_UpsertFailureIsolates(t *testing.T) {
	provider := &fakeEmbedder{model: "m", vectors: map[string][]float64{"t": {1}}}
	store := &fakeVectorStore{
		stale:     []postgres.EmbeddingSource{{ItemID: "item-1", SourceText: "t", SourceHash: "h"}},
		upsertErr: errors.New("connection reset"),
	}

	job := NewEmbeddingJob(provider, store, noEvents, quietLogger())

	summary, err := job.Run(context.Background(), testRun("embedding-build"))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FailureCount)
}

func TestEmbeddingJobRun_DryRunCallsNoProvider(t *testing.T) {
	provider := &fakeEmbedder{model: "m", errFor: map[string]error{"t": errors.New("must not be called")}}
	store := &fakeVectorStore{stale: []postgres.EmbeddingSource{{ItemID: "item-1", SourceText: "t", SourceHash: "h"}}}

	job := NewEmbeddingJob(provider, store, noEvents, quietLogger())

	run := testRun("embedding-build")
	run.DryRun = true
	summary, err := job.Run(context.Background(), run)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.SuccessCount)
	assert.Empty(t, store.itemIDs)
}
