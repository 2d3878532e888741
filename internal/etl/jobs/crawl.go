package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/etl"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/event"
)

var errNotAnObject = errors.New("payload is not an object")

type crawlQueue interface {
	Seed(ctx context.Context, genreID int64) error
	Enqueue(ctx context.Context, genreIDs []int64) (int64, error)
	Claim(ctx context.Context, lockedBy string, limit int) ([]int64, error)
	MarkDone(ctx context.Context, genreID int64) error
	MarkError(ctx context.Context, genreID int64, cause string) error
}

// GenreCrawlJob walks the full genre tree breadth-first through a database
// work queue. Multiple workers can run the job concurrently; SKIP LOCKED
// claims keep them off each other's genres.
type GenreCrawlJob struct {
	client     genreFetcher
	queue      crawlQueue
	genres     genreWriter
	events     *event.Producer
	logger     *slog.Logger
	rootID     int64
	batchSize  int
	maxBatches int
}

// NewGenreCrawlJob wires the crawler. maxBatches bounds one invocation so a
// scheduled run cannot spin forever on a poisoned queue.
func NewGenreCrawlJob(client genreFetcher, queue crawlQueue, genres genreWriter, events *event.Producer, logger *slog.Logger, rootID int64, batchSize, maxBatches int) *GenreCrawlJob {
	if batchSize <= 0 {
		batchSize = 10
	}
	if maxBatches <= 0 {
		maxBatches = 1000
	}
	return &GenreCrawlJob{
		client:     client,
		queue:      queue,
		genres:     genres,
		events:     events,
		logger:     logger,
		rootID:     rootID,
		batchSize:  batchSize,
		maxBatches: maxBatches,
	}
}

// Run seeds the root and drains the queue batch by batch.
func (j *GenreCrawlJob) Run(ctx context.Context, run etl.Run) (etl.Summary, error) {
	summary := etl.Summary{}

	if err := j.queue.Seed(ctx, j.rootID); err != nil {
		return summary, err
	}

	for batch := 0; batch < j.maxBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		ids, err := j.queue.Claim(ctx, run.RunID, j.batchSize)
		if err != nil {
			return summary, err
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			summary.TotalTargets++
			if err := j.crawlOne(ctx, run, id); err != nil {
				summary.FailureCount++
				if markErr := j.queue.MarkError(ctx, id, err.Error()); markErr != nil {
					j.logger.ErrorContext(ctx, "crawl state update failed",
						slog.Int64("genre_id", id),
						slog.String("error", markErr.Error()),
					)
				}
				continue
			}
			summary.SuccessCount++
			if err := j.queue.MarkDone(ctx, id); err != nil {
				j.logger.ErrorContext(ctx, "crawl state update failed",
					slog.Int64("genre_id", id),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	summary.Finalize()
	publishCompletion(ctx, j.events, j.logger, run, summary)
	return summary, nil
}

func (j *GenreCrawlJob) crawlOne(ctx context.Context, run etl.Run, genreID int64) error {
	payload, err := j.client.FetchGenre(ctx, genreID)
	if err != nil {
		return err
	}

	m, ok := etl.AsMap(payload)
	if !ok {
		return errNotAnObject
	}

	if run.DryRun {
		return nil
	}

	if chain := genreChain(m); len(chain) > 0 {
		if _, err := j.genres.UpsertChain(ctx, chain); err != nil {
			return err
		}
	}

	neighbors := neighborGenreIDs(m, genreID)
	if len(neighbors) > 0 {
		if _, err := j.queue.Enqueue(ctx, neighbors); err != nil {
			return err
		}
	}

	return nil
}

// neighborGenreIDs collects the distinct genre ids reachable from one
// payload: current, parents, brothers, and children.
func neighborGenreIDs(m map[string]any, self int64) []int64 {
	seen := map[int64]bool{self: true}
	var ids []int64

	collect := func(v any) {
		node, ok := etl.AsMap(etl.UnwrapSingleKey(v))
		if !ok {
			return
		}
		if id := etl.PickInt64(node, "genreId"); id != nil && !seen[*id] {
			seen[*id] = true
			ids = append(ids, *id)
		}
	}

	collect(m["current"])
	for _, key := range []string{"parents", "brothers", "children"} {
		entries, _ := etl.AsSlice(m[key])
		for _, entry := range entries {
			collect(entry)
		}
	}

	return ids
}
