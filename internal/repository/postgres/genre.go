package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/database"
)

// GenreNode is one genre in a root-to-leaf chain.
type GenreNode struct {
	RakutenGenreID *int64
	Name           *string
	Level          *int64
}

// GenreRepository maintains the genre tree.
type GenreRepository struct {
	db database.DBTX
}

// NewGenreRepository creates a PostgreSQL-backed genre repository.
func NewGenreRepository(db database.DBTX) *GenreRepository {
	return &GenreRepository{db: db}
}

// UpsertChain upserts a root-to-leaf genre chain inside one transaction,
// linking each node to its predecessor. A chain with any node missing its
// genre id is rejected whole: nothing is written and 0 is returned, so a
// partial tree never reaches the table.
func (r *GenreRepository) UpsertChain(ctx context.Context, chain []GenreNode) (int, error) {
	if len(chain) == 0 {
		return 0, nil
	}
	for _, node := range chain {
		if node.RakutenGenreID == nil {
			return 0, nil
		}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin genre chain: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO apl.genre (rakuten_genre_id, genre_name, level, parent_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (rakuten_genre_id) DO UPDATE SET
			genre_name = excluded.genre_name,
			level = excluded.level,
			parent_id = excluded.parent_id,
			updated_at = now()
		RETURNING id`

	var parentID *string
	var upserted int
	for _, node := range chain {
		var id string
		if err := tx.QueryRow(ctx, query, *node.RakutenGenreID, node.Name, node.Level, parentID).Scan(&id); err != nil {
			return 0, fmt.Errorf("upsert genre %d: %w", *node.RakutenGenreID, err)
		}
		parentID = &id
		upserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit genre chain: %w", err)
	}
	return upserted, nil
}

// FetchGenreNameByRakutenID returns the genre name, or nil when unknown.
func (r *GenreRepository) FetchGenreNameByRakutenID(ctx context.Context, rakutenGenreID int64) (*string, error) {
	query := `SELECT genre_name FROM apl.genre WHERE rakuten_genre_id = $1`

	var name *string
	if err := r.db.QueryRow(ctx, query, rakutenGenreID).Scan(&name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch genre name: %w", err)
	}
	return name, nil
}
