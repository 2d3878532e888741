package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/config"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/etl"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/etl/jobs"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/event"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/openai"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/rakuten"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/rawstore"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/repository/postgres"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/migrations"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/database"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/httpclient"
	pkgkafka "github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/kafka"
)

// Job names the ETL runner dispatches on.
const (
	JobRanking         = "ranking"
	JobItem            = "item"
	JobGenre           = "genre"
	JobTag             = "tag"
	JobGenreCrawl      = "genre-crawl"
	JobFeatures        = "features"
	JobEmbeddingSource = "embedding-source"
	JobEmbedding       = "embedding"
	JobActivate        = "activate"
)

// ETLOptions carries the per-invocation knobs of one job run.
type ETLOptions struct {
	RunID  string
	DryRun bool
	Policy string

	// Genre crawler only
	CrawlRootID     int64
	CrawlBatchSize  int
	CrawlMaxBatches int
}

// ETLRunner wires one job by name and runs it to completion.
type ETLRunner struct {
	cfg    *config.ETLConfig
	logger *slog.Logger
	pool   *pgxpool.Pool
	events *event.Producer
	kafka  *pkgkafka.Producer
}

// NewETLRunner connects the shared dependencies: the database pool and,
// when brokers are configured, the completion-event producer.
func NewETLRunner(ctx context.Context, cfg *config.ETLConfig, logger *slog.Logger) (*ETLRunner, error) {
	pool, err := database.NewPostgresPoolFromDSN(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	// The ETL side owns the schema; the serving side only reads it.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	runner := &ETLRunner{cfg: cfg, logger: logger, pool: pool}
	if len(cfg.KafkaBrokers) > 0 {
		runner.kafka = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		runner.events = event.NewProducer(runner.kafka, logger)
	}

	return runner, nil
}

// Close releases the runner's connections.
func (r *ETLRunner) Close() error {
	r.pool.Close()
	if r.kafka != nil {
		return r.kafka.Close()
	}
	return nil
}

// Run dispatches the named job and returns its summary. Per-target failures
// land in the summary, not the error: an error here means the job could not
// run at all.
func (r *ETLRunner) Run(ctx context.Context, jobName string, opts ETLOptions) (etl.Summary, error) {
	run := etl.NewRun(jobName, r.cfg.Env, opts.RunID, opts.DryRun)

	r.logger.InfoContext(ctx, "job starting",
		slog.String("job_id", run.JobID),
		slog.String("run_id", run.RunID),
		slog.String("env", run.Env),
		slog.Bool("dry_run", run.DryRun),
	)

	job, err := r.buildJob(ctx, jobName, opts)
	if err != nil {
		return etl.Summary{}, err
	}

	summary, err := job.Run(ctx, run)
	if err != nil {
		return summary, err
	}

	r.logger.InfoContext(ctx, "job finished",
		slog.String("run_id", run.RunID),
		slog.Int("total_targets", summary.TotalTargets),
		slog.Int("success_count", summary.SuccessCount),
		slog.Int("failure_count", summary.FailureCount),
	)
	return summary, nil
}

// jobRunner is what every job exposes to the dispatcher.
type jobRunner interface {
	Run(ctx context.Context, run etl.Run) (etl.Summary, error)
}

func (r *ETLRunner) buildJob(ctx context.Context, jobName string, opts ETLOptions) (jobRunner, error) {
	staging := postgres.NewStagingRepository(r.pool)
	items := postgres.NewItemRepository(r.pool)

	switch jobName {
	case JobRanking:
		pipeline, err := r.buildPipeline(ctx, staging)
		if err != nil {
			return nil, err
		}
		return jobs.NewRankingJob(
			r.rakutenClient(),
			postgres.NewTargetGenreRepository(r.pool),
			postgres.NewRankRepository(r.pool),
			pipeline, r.events, r.logger,
		), nil

	case JobItem:
		pipeline, err := r.buildPipeline(ctx, staging)
		if err != nil {
			return nil, err
		}
		return jobs.NewItemJob(
			r.rakutenClient(),
			postgres.NewRankRepository(r.pool),
			items,
			postgres.NewItemTagRepository(r.pool),
			pipeline, r.events, r.logger, opts.Policy,
		), nil

	case JobGenre:
		pipeline, err := r.buildPipeline(ctx, staging)
		if err != nil {
			return nil, err
		}
		return jobs.NewGenreJob(
			r.rakutenClient(),
			staging,
			items,
			postgres.NewGenreRepository(r.pool),
			pipeline, r.events, r.logger, opts.Policy,
		), nil

	case JobTag:
		pipeline, err := r.buildPipeline(ctx, staging)
		if err != nil {
			return nil, err
		}
		return jobs.NewTagJob(
			r.rakutenClient(),
			items,
			postgres.NewTagRepository(r.pool),
			pipeline, r.events, r.logger, opts.Policy,
		), nil

	case JobGenreCrawl:
		return jobs.NewGenreCrawlJob(
			r.rakutenClient(),
			postgres.NewGenreFetchStateRepository(r.pool),
			postgres.NewGenreRepository(r.pool),
			r.events, r.logger,
			opts.CrawlRootID, opts.CrawlBatchSize, opts.CrawlMaxBatches,
		), nil

	case JobFeatures:
		return jobs.NewFeatureJob(
			staging,
			postgres.NewFeatureRepository(r.pool),
			r.events, r.logger, opts.Policy,
		), nil

	case JobEmbeddingSource:
		return jobs.NewEmbeddingSourceJob(
			postgres.NewEmbeddingRepository(r.pool),
			r.events, r.logger, opts.Policy,
		), nil

	case JobEmbedding:
		if r.cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the embedding job")
		}
		return jobs.NewEmbeddingJob(
			r.openaiClient(),
			postgres.NewEmbeddingRepository(r.pool),
			r.events, r.logger,
		), nil

	case JobActivate:
		return jobs.NewActivationJob(items, r.events, r.logger), nil

	default:
		return nil, fmt.Errorf("unknown job %q", jobName)
	}
}

// buildPipeline assembles the staging-and-raw-store core the ingest jobs
// share.
func (r *ETLRunner) buildPipeline(ctx context.Context, staging *postgres.StagingRepository) (*etl.Pipeline, error) {
	bucket, err := r.cfg.RawBucket()
	if err != nil {
		return nil, err
	}
	store, err := rawstore.New(ctx, bucket, r.cfg.AWSRegion)
	if err != nil {
		return nil, fmt.Errorf("init raw store: %w", err)
	}
	return etl.NewPipeline(staging, store, int64(r.cfg.ApplyVersion), r.logger), nil
}

func (r *ETLRunner) rakutenClient() *rakuten.Client {
	transport := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig("rakuten"),
		r.logger,
	)
	return rakuten.NewClient(rakuten.Config{
		ApplicationID: r.cfg.RakutenAppID,
		AffiliateID:   r.cfg.RakutenAffiliateID,
	}, transport)
}

func (r *ETLRunner) openaiClient() *openai.Client {
	transport := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig("openai"),
		r.logger,
	)
	return openai.NewClient(openai.Config{
		APIKey: r.cfg.OpenAIAPIKey,
		Model:  r.cfg.OpenAIEmbeddingModel,
	}, transport)
}
