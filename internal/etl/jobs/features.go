package jobs

import (
	"context"
	"log/slog"
	"math"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/etl"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/event"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/repository/postgres"
)

type featureStore interface {
	FetchInputs(ctx context.Context, itemCodes []string) ([]postgres.FeatureInput, error)
	Upsert(ctx context.Context, rec postgres.FeatureRecord) (string, error)
}

// FeatureJob derives the scoring features of every recently staged item.
type FeatureJob struct {
	staged   stagedItemSource
	features featureStore
	events   *event.Producer
	logger   *slog.Logger
	policy   string
}

// NewFeatureJob wires the feature derivation.
func NewFeatureJob(staged stagedItemSource, features featureStore, events *event.Producer, logger *slog.Logger, policy string) *FeatureJob {
	return &FeatureJob{
		staged:   staged,
		features: features,
		events:   events,
		logger:   logger,
		policy:   policy,
	}
}

// Run recomputes and diff-upserts the feature row of each selected item.
func (j *FeatureJob) Run(ctx context.Context, run etl.Run) (etl.Summary, error) {
	since, err := etl.SinceForPolicy(j.policy, run.StartedAt)
	if err != nil {
		return etl.Summary{}, err
	}

	codes, err := j.staged.FetchItemSourceIDsSince(ctx, since)
	if err != nil {
		return etl.Summary{}, err
	}

	inputs, err := j.features.FetchInputs(ctx, codes)
	if err != nil {
		return etl.Summary{}, err
	}

	summary := etl.Summary{TotalTargets: len(inputs)}
	outcomes := map[string]int{}

	for _, input := range inputs {
		rec := DeriveFeatures(input)
		if run.DryRun {
			summary.SuccessCount++
			continue
		}

		result, err := j.features.Upsert(ctx, rec)
		if err != nil {
			summary.FailureCount++
			j.logger.ErrorContext(ctx, "feature upsert failed",
				slog.String("item_id", input.ItemID),
				slog.String("error", err.Error()),
			)
			continue
		}
		summary.SuccessCount++
		outcomes[result]++
	}

	summary.Finalize()
	j.logger.InfoContext(ctx, "feature derivation finished",
		slog.String("run_id", run.RunID),
		slog.Int("inserted", outcomes[postgres.UpsertInserted]),
		slog.Int("updated", outcomes[postgres.UpsertUpdated]),
		slog.Int("skipped", outcomes[postgres.UpsertSkipped]),
	)
	publishCompletion(ctx, j.events, j.logger, run, summary)
	return summary, nil
}

// DeriveFeatures turns one input row into a feature record with the derived
// signals attached.
func DeriveFeatures(input postgres.FeatureInput) postgres.FeatureRecord {
	return postgres.FeatureRecord{
		ItemID:          input.ItemID,
		ItemPrice:       input.ItemPrice,
		PointRate:       input.PointRate,
		Availability:    input.Availability,
		ReviewAverage:   input.ReviewAverage,
		ReviewCount:     input.ReviewCount,
		Rank:            input.Rank,
		RakutenGenreID:  input.RakutenGenreID,
		RakutenTagIDs:   input.RakutenTagIDs,
		PriceLog:        logOfPositive(input.ItemPrice),
		ReviewCountLog:  logOfPositive(input.ReviewCount),
		PopularityScore: popularityScore(input.ReviewAverage, input.ReviewCount),
	}
}

// logOfPositive is ln(v) for positive values, null otherwise.
func logOfPositive(v *int64) *float64 {
	if v == nil || *v <= 0 {
		return nil
	}
	out := math.Log(float64(*v))
	return &out
}

// popularityScore blends the review average and volume: a missing count
// yields null, a non-positive count yields 0, otherwise
// clamp(avg/5, 0, 1) * ln(1+count) with a missing average treated as 0.
func popularityScore(avg *float64, count *int64) *float64 {
	if count == nil {
		return nil
	}
	if *count <= 0 {
		zero := 0.0
		return &zero
	}

	a := 0.0
	if avg != nil {
		a = *avg
	}
	norm := a / 5
	if norm < 0 {
		norm = 0
	}
	if norm > 1 {
		norm = 1
	}

	out := norm * math.Log(1+float64(*count))
	return &out
}
