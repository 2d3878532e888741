package jobs

import (
	"context"
	"log/slog"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/etl"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/event"
)

type activationStore interface {
	RefreshActiveFlags(ctx context.Context) (int64, error)
}

// ActivationJob recomputes item availability flags so the serving view only
// exposes purchasable items.
type ActivationJob struct {
	items  activationStore
	events *event.Producer
	logger *slog.Logger
}

// NewActivationJob wires the availability refresh.
func NewActivationJob(items activationStore, events *event.Producer, logger *slog.Logger) *ActivationJob {
	return &ActivationJob{items: items, events: events, logger: logger}
}

// Run flips is_active wherever the latest market observation disagrees.
func (j *ActivationJob) Run(ctx context.Context, run etl.Run) (etl.Summary, error) {
	summary := etl.Summary{TotalTargets: 1}

	if run.DryRun {
		summary.SuccessCount = 1
		publishCompletion(ctx, j.events, j.logger, run, summary)
		return summary, nil
	}

	flipped, err := j.items.RefreshActiveFlags(ctx)
	if err != nil {
		summary.FailureCount = 1
		summary.Finalize()
		return summary, err
	}

	summary.SuccessCount = 1
	j.logger.InfoContext(ctx, "active flags refreshed",
		slog.String("run_id", run.RunID),
		slog.Int64("flipped", flipped),
	)
	publishCompletion(ctx, j.events, j.logger, run, summary)
	return summary, nil
}
