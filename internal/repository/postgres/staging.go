// Package postgres holds the relational access layer for schema apl. Every
// repository takes a database.DBTX so tests can run against pgxmock, and
// every upsert is diff-gated where the table allows it, keeping unchanged
// re-applies write-free.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/database"
)

// StagingRow is one ledger entry to upsert after a raw object write.
type StagingRow struct {
	Source      string
	Entity      string
	SourceID    string
	ContentHash string
	S3Key       string
	ETag        *string
	SavedAt     time.Time
}

// StagingStatus is the latest observed state for one (source, entity, source_id).
type StagingStatus struct {
	ContentHash    string
	AppliedVersion *int64
}

// StagingRepository tracks which upstream payloads have been stored and applied.
type StagingRepository struct {
	db database.DBTX
}

// NewStagingRepository creates a PostgreSQL-backed staging ledger.
func NewStagingRepository(db database.DBTX) *StagingRepository {
	return &StagingRepository{db: db}
}

// GetLatestStatus returns the most recent content hash and applied version
// for the key, or nil when the key has never been staged.
func (r *StagingRepository) GetLatestStatus(ctx context.Context, source, entity, sourceID string) (*StagingStatus, error) {
	query := `
		SELECT content_hash, applied_version
		FROM apl.staging
		WHERE source = $1 AND entity = $2 AND source_id = $3
		ORDER BY saved_at DESC
		LIMIT 1`

	var status StagingStatus
	err := r.db.QueryRow(ctx, query, source, entity, sourceID).Scan(&status.ContentHash, &status.AppliedVersion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get staging status: %w", err)
	}

	return &status, nil
}

// BatchUpsert records fresh payload observations. A content change resets
// applied_at and applied_version so the re-apply path can find the row.
func (r *StagingRepository) BatchUpsert(ctx context.Context, rows []StagingRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO apl.staging (source, entity, source_id, content_hash, s3_key, etag, saved_at, applied_at, applied_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, NULL)
		ON CONFLICT (source, entity, source_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			s3_key = excluded.s3_key,
			etag = excluded.etag,
			saved_at = excluded.saved_at,
			applied_at = NULL,
			applied_version = NULL,
			updated_at = now()`

	var affected int64
	for _, row := range rows {
		ct, err := r.db.Exec(ctx, query,
			row.Source,
			row.Entity,
			row.SourceID,
			row.ContentHash,
			row.S3Key,
			row.ETag,
			row.SavedAt,
		)
		if err != nil {
			return affected, fmt.Errorf("upsert staging row %s/%s/%s: %w", row.Source, row.Entity, row.SourceID, err)
		}
		affected += ct.RowsAffected()
	}

	return affected, nil
}

// MarkApplied stamps applied_at/applied_version, but only while the stored
// content hash still matches; a concurrent job that advanced the hash wins.
func (r *StagingRepository) MarkApplied(ctx context.Context, source, entity, sourceID, contentHash string, appliedVersion int64) (int64, error) {
	query := `
		UPDATE apl.staging SET
			applied_at = now(),
			applied_version = $1,
			updated_at = now()
		WHERE source = $2 AND entity = $3 AND source_id = $4 AND content_hash = $5`

	ct, err := r.db.Exec(ctx, query, appliedVersion, source, entity, sourceID, contentHash)
	if err != nil {
		return 0, fmt.Errorf("mark staging applied: %w", err)
	}

	return ct.RowsAffected(), nil
}

// FetchItemSourceIDsSince lists distinct item source ids whose staging rows
// advanced at or after the given time.
func (r *StagingRepository) FetchItemSourceIDsSince(ctx context.Context, since time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT source_id
		FROM apl.staging
		WHERE source = $1 AND entity = $2 AND saved_at >= $3
		ORDER BY source_id`

	rows, err := r.db.Query(ctx, query, "rakuten", "item", since)
	if err != nil {
		return nil, fmt.Errorf("fetch item source ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan source id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source ids: %w", err)
	}

	return ids, nil
}
