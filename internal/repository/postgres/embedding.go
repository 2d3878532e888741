package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/database"
)

// EmbeddingInput is the text material of one item, read from the source view.
type EmbeddingInput struct {
	ItemID      string
	ItemName    *string
	Catchcopy   *string
	ItemCaption *string
	GenreName   *string
	TagNames    []string
	ItemPrice   *int64
}

// EmbeddingSource is one item's composed embedding text and its hash.
type EmbeddingSource struct {
	ItemID     string
	SourceText string
	SourceHash string
}

// EmbeddingRepository maintains embedding source texts and vectors.
type EmbeddingRepository struct {
	db database.DBTX
}

// NewEmbeddingRepository creates a PostgreSQL-backed embedding repository.
func NewEmbeddingRepository(db database.DBTX) *EmbeddingRepository {
	return &EmbeddingRepository{db: db}
}

// FetchInputsSince reads the source view for items whose master row or
// feature row advanced at or after the given time.
func (r *EmbeddingRepository) FetchInputsSince(ctx context.Context, since time.Time) ([]EmbeddingInput, error) {
	query := `
		SELECT item_id, item_name, catchcopy, item_caption, genre_name, tag_names, item_price
		FROM apl.item_embedding_source_view
		WHERE item_updated_at >= $1 OR feature_updated_at >= $1
		ORDER BY item_id`

	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("fetch embedding inputs: %w", err)
	}
	defer rows.Close()

	var inputs []EmbeddingInput
	for rows.Next() {
		var in EmbeddingInput
		err := rows.Scan(&in.ItemID, &in.ItemName, &in.Catchcopy, &in.ItemCaption, &in.GenreName, &in.TagNames, &in.ItemPrice)
		if err != nil {
			return nil, fmt.Errorf("scan embedding input: %w", err)
		}
		inputs = append(inputs, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embedding inputs: %w", err)
	}

	return inputs, nil
}

// UpsertSource writes the composed text, gated by source_hash so an
// unchanged composition leaves the row untouched. Returns one of
// UpsertInserted, UpsertUpdated, or UpsertSkipped.
func (r *EmbeddingRepository) UpsertSource(ctx context.Context, src EmbeddingSource) (string, error) {
	query := `
		INSERT INTO apl.item_embedding_source (item_id, source_text, source_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (item_id) DO UPDATE SET
			source_text = excluded.source_text,
			source_hash = excluded.source_hash,
			updated_at = now()
		WHERE apl.item_embedding_source.source_hash IS DISTINCT FROM excluded.source_hash
		RETURNING (xmax = 0) AS inserted`

	var wasInserted bool
	err := r.db.QueryRow(ctx, query, src.ItemID, src.SourceText, src.SourceHash).Scan(&wasInserted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UpsertSkipped, nil
		}
		return "", fmt.Errorf("upsert embedding source for %s: %w", src.ItemID, err)
	}

	if wasInserted {
		return UpsertInserted, nil
	}
	return UpsertUpdated, nil
}

// FetchStaleSources lists sources that have no vector for the model yet, or
// whose vector was built from an older source_hash.
func (r *EmbeddingRepository) FetchStaleSources(ctx context.Context, model string) ([]EmbeddingSource, error) {
	query := `
		SELECT s.item_id, s.source_text, s.source_hash
		FROM apl.item_embedding_source s
		LEFT JOIN apl.item_embedding e ON e.item_id = s.item_id AND e.model = $1
		WHERE e.item_id IS NULL OR e.source_hash IS DISTINCT FROM s.source_hash
		ORDER BY s.item_id`

	rows, err := r.db.Query(ctx, query, model)
	if err != nil {
		return nil, fmt.Errorf("fetch stale embedding sources: %w", err)
	}
	defer rows.Close()

	var sources []EmbeddingSource
	for rows.Next() {
		var src EmbeddingSource
		if err := rows.Scan(&src.ItemID, &src.SourceText, &src.SourceHash); err != nil {
			return nil, fmt.Errorf("scan embedding source: %w", err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embedding sources: %w", err)
	}

	return sources, nil
}

// UpsertVector writes the vector for (item, model), gated by source_hash.
// Returns one of UpsertInserted, UpsertUpdated, or UpsertSkipped.
func (r *EmbeddingRepository) UpsertVector(ctx context.Context, itemID, model, sourceHash string, vector []float64) (string, error) {
	query := `
		INSERT INTO apl.item_embedding (item_id, model, source_hash, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (item_id, model) DO UPDATE SET
			source_hash = excluded.source_hash,
			embedding = excluded.embedding,
			updated_at = now()
		WHERE apl.item_embedding.source_hash IS DISTINCT FROM excluded.source_hash
		RETURNING (xmax = 0) AS inserted`

	var wasInserted bool
	err := r.db.QueryRow(ctx, query, itemID, model, sourceHash, FormatVector(vector)).Scan(&wasInserted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UpsertSkipped, nil
		}
		return "", fmt.Errorf("upsert embedding for %s: %w", itemID, err)
	}

	if wasInserted {
		return UpsertInserted, nil
	}
	return UpsertUpdated, nil
}

// FormatVector renders a pgvector literal with 8 decimal places per
// component.
func FormatVector(vector []float64) string {
	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = strconv.FormatFloat(v, 'f', 8, 64)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
