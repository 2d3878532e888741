package jobs

import (
	"context"
	"log/slog"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/etl"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/event"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/repository/postgres"
)

type embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Model() string
}

type embeddingVectorStore interface {
	FetchStaleSources(ctx context.Context, model string) ([]postgres.EmbeddingSource, error)
	UpsertVector(ctx context.Context, itemID, model, sourceHash string, vector []float64) (string, error)
}

// EmbeddingJob builds vectors for every source text whose hash has no
// up-to-date vector under the configured model.
type EmbeddingJob struct {
	provider embedder
	store    embeddingVectorStore
	events   *event.Producer
	logger   *slog.Logger
}

// NewEmbeddingJob wires the vector build.
func NewEmbeddingJob(provider embedder, store embeddingVectorStore, events *event.Producer, logger *slog.Logger) *EmbeddingJob {
	return &EmbeddingJob{
		provider: provider,
		store:    store,
		events:   events,
		logger:   logger,
	}
}

// Run embeds each stale source and upserts its vector, isolating failures
// per item so one provider hiccup does not lose the batch.
func (j *EmbeddingJob) Run(ctx context.Context, run etl.Run) (etl.Summary, error) {
	model := j.provider.Model()

	stale, err := j.store.FetchStaleSources(ctx, model)
	if err != nil {
		return etl.Summary{}, err
	}

	summary := etl.Summary{TotalTargets: len(stale)}

	for _, src := range stale {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if run.DryRun {
			summary.SuccessCount++
			continue
		}

		vector, err := j.provider.Embed(ctx, src.SourceText)
		if err != nil {
			summary.FailureCount++
			j.logger.ErrorContext(ctx, "embedding call failed",
				slog.String("item_id", src.ItemID),
				slog.String("model", model),
				slog.String("error", err.Error()),
			)
			continue
		}

		if _, err := j.store.UpsertVector(ctx, src.ItemID, model, src.SourceHash, vector); err != nil {
			summary.FailureCount++
			j.logger.ErrorContext(ctx, "vector upsert failed",
				slog.String("item_id", src.ItemID),
				slog.String("error", err.Error()),
			)
			continue
		}
		summary.SuccessCount++
	}

	summary.Finalize()
	publishCompletion(ctx, j.events, j.logger, run, summary)
	return summary, nil
}
