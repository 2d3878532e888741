package etl

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/canonical"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/rawstore"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/repository/postgres"
)

// Source is the upstream identifier recorded in the ledger and object keys.
const Source = "rakuten"

// Target is one unit of pipeline work: something to fetch and apply.
type Target struct {
	Entity   string
	SourceID string
	Fetch    func(ctx context.Context) (any, error)
}

// Applier projects one canonical payload into the relational schema. It
// receives the target because some payloads do not echo the requested id.
// It must be idempotent: the pipeline re-runs it on apply-version mismatch.
type Applier func(ctx context.Context, target Target, payload any) error

// Ledger is the staging surface the pipeline writes through.
type Ledger interface {
	GetLatestStatus(ctx context.Context, source, entity, sourceID string) (*postgres.StagingStatus, error)
	BatchUpsert(ctx context.Context, rows []postgres.StagingRow) (int64, error)
	MarkApplied(ctx context.Context, source, entity, sourceID, contentHash string, appliedVersion int64) (int64, error)
}

// RawStore is the object-store surface the pipeline writes through.
type RawStore interface {
	PutJSON(ctx context.Context, source, entity, sourceID, contentHash string, body []byte) (rawstore.PutResult, error)
}

// Pipeline runs fetch → canonicalize → hash → stage → apply per target.
// ApplyVersion 0 disables version stamping and the re-apply path.
type Pipeline struct {
	ledger       Ledger
	store        RawStore
	logger       *slog.Logger
	applyVersion int64
}

// NewPipeline wires a pipeline over the ledger and raw store.
func NewPipeline(ledger Ledger, store RawStore, applyVersion int64, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		ledger:       ledger,
		store:        store,
		logger:       logger,
		applyVersion: applyVersion,
	}
}

// Run processes every target, isolating failures: one broken target is
// counted and logged, the rest of the list still runs.
func (p *Pipeline) Run(ctx context.Context, run Run, targets []Target, apply Applier) Summary {
	summary := Summary{TotalTargets: len(targets)}

	for _, target := range targets {
		if err := p.runOne(ctx, run, target, apply); err != nil {
			summary.FailureCount++
			p.logger.ErrorContext(ctx, "target failed",
				slog.String("job_id", run.JobID),
				slog.String("run_id", run.RunID),
				slog.String("entity", target.Entity),
				slog.String("source_id", target.SourceID),
				slog.String("error", err.Error()),
			)
			continue
		}
		summary.SuccessCount++
	}

	summary.Finalize()
	return summary
}

func (p *Pipeline) runOne(ctx context.Context, run Run, target Target, apply Applier) error {
	raw, err := target.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	canon := canonical.Canonicalize(target.Entity, raw)
	hash, err := canonical.ContentHash(canon)
	if err != nil {
		return fmt.Errorf("hash payload: %w", err)
	}

	status, err := p.ledger.GetLatestStatus(ctx, Source, target.Entity, target.SourceID)
	if err != nil {
		return err
	}

	if status != nil && status.ContentHash == hash {
		// Unchanged payload: no raw write, no ledger write. The only work
		// left is re-applying when the stored apply version differs.
		if p.needsReapply(status) {
			if run.DryRun {
				return nil
			}
			if err := apply(ctx, target, canon); err != nil {
				return fmt.Errorf("re-apply: %w", err)
			}
			if _, err := p.ledger.MarkApplied(ctx, Source, target.Entity, target.SourceID, hash, p.applyVersion); err != nil {
				return err
			}
		}
		p.logger.DebugContext(ctx, "payload unchanged",
			slog.String("entity", target.Entity),
			slog.String("source_id", target.SourceID),
			slog.String("content_hash", hash),
		)
		return nil
	}

	if run.DryRun {
		p.logger.InfoContext(ctx, "dry run, skipping writes",
			slog.String("entity", target.Entity),
			slog.String("source_id", target.SourceID),
			slog.String("content_hash", hash),
		)
		return nil
	}

	body, err := canonical.Marshal(canon)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	put, err := p.store.PutJSON(ctx, Source, target.Entity, target.SourceID, hash, body)
	if err != nil {
		return err
	}

	etag := put.ETag
	row := postgres.StagingRow{
		Source:      Source,
		Entity:      target.Entity,
		SourceID:    target.SourceID,
		ContentHash: hash,
		S3Key:       put.Key,
		SavedAt:     put.SavedAt,
	}
	if etag != "" {
		row.ETag = &etag
	}
	if _, err := p.ledger.BatchUpsert(ctx, []postgres.StagingRow{row}); err != nil {
		return err
	}

	if err := apply(ctx, target, canon); err != nil {
		return fmt.Errorf("apply: %w", err)
	}

	if p.applyVersion != 0 {
		if _, err := p.ledger.MarkApplied(ctx, Source, target.Entity, target.SourceID, hash, p.applyVersion); err != nil {
			return err
		}
	}

	return nil
}

// needsReapply reports whether an unchanged payload still has to run the
// applier because the stored apply version differs from the pipeline's.
func (p *Pipeline) needsReapply(status *postgres.StagingStatus) bool {
	if p.applyVersion == 0 {
		return false
	}
	return status.AppliedVersion == nil || *status.AppliedVersion != p.applyVersion
}
