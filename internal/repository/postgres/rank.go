package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/database"
)

// RankEntry is one ranked position inside a genre ranking payload.
type RankEntry struct {
	RakutenItemCode string
	Rank            int64
	Title           *string
}

// RankRepository stores genre ranking observations.
type RankRepository struct {
	db database.DBTX
}

// NewRankRepository creates a PostgreSQL-backed rank repository.
func NewRankRepository(db database.DBTX) *RankRepository {
	return &RankRepository{db: db}
}

// InsertSnapshots appends the ranking positions of one payload. collected_at
// is the upstream lastBuildDate, so re-applying the same payload lands on the
// conflict key and inserts nothing.
func (r *RankRepository) InsertSnapshots(ctx context.Context, genreID int64, lastBuildDate time.Time, entries []RankEntry) (int64, error) {
	query := `
		INSERT INTO apl.item_rank_snapshot (
			rakuten_item_code, collected_at, rakuten_genre_id, title, last_build_date, rank
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (rakuten_genre_id, rakuten_item_code, collected_at) DO NOTHING`

	var inserted int64
	for _, entry := range entries {
		ct, err := r.db.Exec(ctx, query,
			entry.RakutenItemCode,
			lastBuildDate,
			genreID,
			entry.Title,
			lastBuildDate,
			entry.Rank,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert rank snapshot %s: %w", entry.RakutenItemCode, err)
		}
		inserted += ct.RowsAffected()
	}

	return inserted, nil
}

// FetchDistinctItemCodesSince lists item codes that appeared in any ranking
// collected at or after the given time.
func (r *RankRepository) FetchDistinctItemCodesSince(ctx context.Context, since time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT rakuten_item_code
		FROM apl.item_rank_snapshot
		WHERE collected_at >= $1
		ORDER BY rakuten_item_code`

	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("fetch ranked item codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan item code: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item codes: %w", err)
	}

	return codes, nil
}
