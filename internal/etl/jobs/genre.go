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

type genreFetcher interface {
	FetchGenre(ctx context.Context, genreID int64) (any, error)
}

type stagedItemSource interface {
	FetchItemSourceIDsSince(ctx context.Context, since time.Time) ([]string, error)
}

type itemGenreSource interface {
	FetchDistinctGenreIDsBySourceIDs(ctx context.Context, itemCodes []string) ([]int64, error)
}

type genreWriter interface {
	UpsertChain(ctx context.Context, chain []postgres.GenreNode) (int, error)
}

// GenreJob ingests the genre chain of every genre referenced by recently
// staged items.
type GenreJob struct {
	client   genreFetcher
	staged   stagedItemSource
	items    itemGenreSource
	genres   genreWriter
	pipeline *etl.Pipeline
	events   *event.Producer
	logger   *slog.Logger
	policy   string
}

// NewGenreJob wires the genre ingest.
func NewGenreJob(client genreFetcher, staged stagedItemSource, items itemGenreSource, genres genreWriter, pipeline *etl.Pipeline, events *event.Producer, logger *slog.Logger, policy string) *GenreJob {
	return &GenreJob{
		client:   client,
		staged:   staged,
		items:    items,
		genres:   genres,
		pipeline: pipeline,
		events:   events,
		logger:   logger,
		policy:   policy,
	}
}

// Run fetches and applies the genre chain of each referenced genre.
func (j *GenreJob) Run(ctx context.Context, run etl.Run) (etl.Summary, error) {
	since, err := etl.SinceForPolicy(j.policy, run.StartedAt)
	if err != nil {
		return etl.Summary{}, err
	}

	sourceIDs, err := j.staged.FetchItemSourceIDsSince(ctx, since)
	if err != nil {
		return etl.Summary{}, err
	}

	genreIDs, err := j.items.FetchDistinctGenreIDsBySourceIDs(ctx, sourceIDs)
	if err != nil {
		return etl.Summary{}, err
	}

	targets := make([]etl.Target, 0, len(genreIDs))
	for _, genreID := range genreIDs {
		id := genreID
		targets = append(targets, etl.Target{
			Entity:   "genre",
			SourceID: strconv.FormatInt(id, 10),
			Fetch: func(ctx context.Context) (any, error) {
				return j.client.FetchGenre(ctx, id)
			},
		})
	}

	summary := j.pipeline.Run(ctx, run, targets, j.apply)
	publishCompletion(ctx, j.events, j.logger, run, summary)
	return summary, nil
}

// apply upserts the payload's parent chain root-first, then the current
// genre as the leaf.
func (j *GenreJob) apply(ctx context.Context, _ etl.Target, payload any) error {
	m, ok := etl.AsMap(payload)
	if !ok {
		return fmt.Errorf("genre payload is not an object")
	}

	chain := genreChain(m)
	if len(chain) == 0 {
		return fmt.Errorf("genre payload carries no current genre")
	}

	if _, err := j.genres.UpsertChain(ctx, chain); err != nil {
		return err
	}
	return nil
}

// genreChain builds the root-to-leaf chain from a genre payload: parents in
// payload order, then current.
func genreChain(m map[string]any) []postgres.GenreNode {
	var chain []postgres.GenreNode

	parents, _ := etl.AsSlice(m["parents"])
	for _, raw := range parents {
		if node, ok := genreNode(raw); ok {
			chain = append(chain, node)
		}
	}

	if node, ok := genreNode(m["current"]); ok {
		chain = append(chain, node)
	}

	return chain
}

func genreNode(v any) (postgres.GenreNode, bool) {
	node, ok := etl.AsMap(etl.UnwrapSingleKey(v))
	if !ok {
		return postgres.GenreNode{}, false
	}
	return postgres.GenreNode{
		RakutenGenreID: etl.PickInt64(node, "genreId"),
		Name:           etl.PickString(node, "genreName"),
		Level:          etl.PickInt64(node, "genreLevel"),
	}, true
}
