// Package jobs holds the batch entry points of the catalog pipeline. Each
// job builds its target list, runs it through the staging pipeline, and
// publishes a completion event with the run summary.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/etl"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/event"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/repository/postgres"
)

type rankingFetcher interface {
	FetchRanking(ctx context.Context, genreID int64) (any, error)
}

type targetGenreSource interface {
	FetchActiveGenreIDs(ctx context.Context) ([]int64, error)
}

type rankWriter interface {
	InsertSnapshots(ctx context.Context, genreID int64, lastBuildDate time.Time, entries []postgres.RankEntry) (int64, error)
}

// RankingJob ingests genre rankings for every configured target genre.
type RankingJob struct {
	client   rankingFetcher
	targets  targetGenreSource
	ranks    rankWriter
	pipeline *etl.Pipeline
	events   *event.Producer
	logger   *slog.Logger
}

// NewRankingJob wires the ranking ingest.
func NewRankingJob(client rankingFetcher, targets targetGenreSource, ranks rankWriter, pipeline *etl.Pipeline, events *event.Producer, logger *slog.Logger) *RankingJob {
	return &RankingJob{
		client:   client,
		targets:  targets,
		ranks:    ranks,
		pipeline: pipeline,
		events:   events,
		logger:   logger,
	}
}

// Run fetches and applies the ranking of each active target genre.
func (j *RankingJob) Run(ctx context.Context, run etl.Run) (etl.Summary, error) {
	genreIDs, err := j.targets.FetchActiveGenreIDs(ctx)
	if err != nil {
		return etl.Summary{}, err
	}

	targets := make([]etl.Target, 0, len(genreIDs))
	for _, genreID := range genreIDs {
		id := genreID
		targets = append(targets, etl.Target{
			Entity:   "ranking",
			SourceID: strconv.FormatInt(id, 10),
			Fetch: func(ctx context.Context) (any, error) {
				return j.client.FetchRanking(ctx, id)
			},
		})
	}

	summary := j.pipeline.Run(ctx, run, targets, j.apply)
	publishCompletion(ctx, j.events, j.logger, run, summary)
	return summary, nil
}

// apply projects one ranking payload into rank snapshots. The requested
// genre id comes from the target because the payload does not echo it.
func (j *RankingJob) apply(ctx context.Context, target etl.Target, payload any) error {
	genreID, err := strconv.ParseInt(target.SourceID, 10, 64)
	if err != nil {
		return fmt.Errorf("ranking target id %q: %w", target.SourceID, err)
	}

	m, ok := etl.AsMap(payload)
	if !ok {
		return fmt.Errorf("ranking payload is not an object")
	}

	buildDateText := etl.PickString(m, "lastBuildDate")
	if buildDateText == nil {
		return fmt.Errorf("ranking payload missing lastBuildDate")
	}
	buildDate, err := etl.ParseRakutenTime(*buildDateText)
	if err != nil {
		return fmt.Errorf("ranking lastBuildDate: %w", err)
	}

	title := etl.PickString(m, "title")

	items := etl.ItemsList(m)
	entries := make([]postgres.RankEntry, 0, len(items))
	for _, raw := range items {
		item, ok := etl.AsMap(etl.UnwrapSingleKey(raw))
		if !ok {
			continue
		}
		code := etl.PickString(item, "itemCode")
		rank := etl.PickInt64(item, "rank")
		if code == nil || rank == nil {
			continue
		}
		// The enclosing title only fills entries that lack their own.
		entryTitle := etl.PickString(item, "title")
		if entryTitle == nil {
			entryTitle = title
		}
		entries = append(entries, postgres.RankEntry{
			RakutenItemCode: *code,
			Rank:            *rank,
			Title:           entryTitle,
		})
	}

	if _, err := j.ranks.InsertSnapshots(ctx, genreID, buildDate, entries); err != nil {
		return err
	}
	return nil
}

// publishCompletion emits the job.completed event; a publish failure is
// logged, never fatal to the run.
func publishCompletion(ctx context.Context, events *event.Producer, logger *slog.Logger, run etl.Run, summary etl.Summary) {
	err := events.PublishJobCompleted(ctx, event.JobCompletedData{
		JobID:        run.JobID,
		RunID:        run.RunID,
		Env:          run.Env,
		DryRun:       run.DryRun,
		TotalTargets: summary.TotalTargets,
		SuccessCount: summary.SuccessCount,
		FailureCount: summary.FailureCount,
		FailureRate:  summary.FailureRate,
	})
	if err != nil {
		logger.WarnContext(ctx, "job completion event not published",
			slog.String("job_id", run.JobID),
			slog.String("run_id", run.RunID),
			slog.String("error", err.Error()),
		)
	}
}
