package postgres

import (
	"context"
	"fmt"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/database"
)

// Crawl states for genre discovery.
const (
	CrawlStatePending    = "PENDING"
	CrawlStateInProgress = "IN_PROGRESS"
	CrawlStateDone       = "DONE"
	CrawlStateError      = "ERROR"
)

// maxCrawlErrorLen bounds last_error so a huge upstream body cannot bloat
// the state table.
const maxCrawlErrorLen = 2000

// GenreFetchStateRepository is the work queue for the genre tree crawler.
// Claims use FOR UPDATE SKIP LOCKED so concurrent workers never contend on
// the same genre.
type GenreFetchStateRepository struct {
	db database.DBTX
}

// NewGenreFetchStateRepository creates a PostgreSQL-backed crawl queue.
func NewGenreFetchStateRepository(db database.DBTX) *GenreFetchStateRepository {
	return &GenreFetchStateRepository{db: db}
}

// Seed enqueues the crawl root; a known genre id is left untouched.
func (r *GenreFetchStateRepository) Seed(ctx context.Context, genreID int64) error {
	query := `
		INSERT INTO apl.rakuten_genre_fetch_state (genre_id, status)
		VALUES ($1, $2)
		ON CONFLICT (genre_id) DO NOTHING`

	if _, err := r.db.Exec(ctx, query, genreID, CrawlStatePending); err != nil {
		return fmt.Errorf("seed crawl state %d: %w", genreID, err)
	}
	return nil
}

// Enqueue adds newly discovered genre ids as PENDING; ids already tracked
// keep their state.
func (r *GenreFetchStateRepository) Enqueue(ctx context.Context, genreIDs []int64) (int64, error) {
	query := `
		INSERT INTO apl.rakuten_genre_fetch_state (genre_id, status)
		VALUES ($1, $2)
		ON CONFLICT (genre_id) DO NOTHING`

	var enqueued int64
	for _, id := range genreIDs {
		ct, err := r.db.Exec(ctx, query, id, CrawlStatePending)
		if err != nil {
			return enqueued, fmt.Errorf("enqueue crawl state %d: %w", id, err)
		}
		enqueued += ct.RowsAffected()
	}
	return enqueued, nil
}

// Claim atomically takes up to limit PENDING or ERROR genres, oldest
// update first, and marks them IN_PROGRESS for the given worker.
func (r *GenreFetchStateRepository) Claim(ctx context.Context, lockedBy string, limit int) ([]int64, error) {
	query := `
		WITH picked AS (
			SELECT genre_id
			FROM apl.rakuten_genre_fetch_state
			WHERE status IN ($1, $2)
			ORDER BY updated_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT $3
		)
		UPDATE apl.rakuten_genre_fetch_state s SET
			status = $4,
			locked_by = $5,
			locked_at = now(),
			updated_at = now()
		FROM picked
		WHERE s.genre_id = picked.genre_id
		RETURNING s.genre_id`

	rows, err := r.db.Query(ctx, query, CrawlStatePending, CrawlStateError, limit, CrawlStateInProgress, lockedBy)
	if err != nil {
		return nil, fmt.Errorf("claim crawl work: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan claimed genre id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claimed genre ids: %w", err)
	}

	return ids, nil
}

// MarkDone finishes a claimed genre and clears its error.
func (r *GenreFetchStateRepository) MarkDone(ctx context.Context, genreID int64) error {
	query := `
		UPDATE apl.rakuten_genre_fetch_state SET
			status = $1,
			last_error = NULL,
			locked_by = NULL,
			locked_at = NULL,
			updated_at = now()
		WHERE genre_id = $2`

	if _, err := r.db.Exec(ctx, query, CrawlStateDone, genreID); err != nil {
		return fmt.Errorf("mark crawl done %d: %w", genreID, err)
	}
	return nil
}

// MarkError records a failure; the genre becomes claimable again.
func (r *GenreFetchStateRepository) MarkError(ctx context.Context, genreID int64, cause string) error {
	if len(cause) > maxCrawlErrorLen {
		cause = cause[:maxCrawlErrorLen]
	}

	query := `
		UPDATE apl.rakuten_genre_fetch_state SET
			status = $1,
			try_count = try_count + 1,
			last_error = $2,
			locked_by = NULL,
			locked_at = NULL,
			updated_at = now()
		WHERE genre_id = $3`

	if _, err := r.db.Exec(ctx, query, CrawlStateError, cause, genreID); err != nil {
		return fmt.Errorf("mark crawl error %d: %w", genreID, err)
	}
	return nil
}
