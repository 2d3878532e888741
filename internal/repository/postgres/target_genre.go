package postgres

import (
	"context"
	"fmt"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/database"
)

// TargetGenreRepository reads the configured ranking targets.
type TargetGenreRepository struct {
	db database.DBTX
}

// NewTargetGenreRepository creates a PostgreSQL-backed target-genre reader.
func NewTargetGenreRepository(db database.DBTX) *TargetGenreRepository {
	return &TargetGenreRepository{db: db}
}

// FetchActiveGenreIDs lists the genre ids the ranking job should collect.
func (r *TargetGenreRepository) FetchActiveGenreIDs(ctx context.Context) ([]int64, error) {
	query := `
		SELECT rakuten_genre_id
		FROM apl.target_genre_config
		WHERE is_active = true
		ORDER BY rakuten_genre_id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetch target genres: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan target genre id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate target genre ids: %w", err)
	}

	return ids, nil
}
