package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/database"
)

// Upsert outcomes for diff-gated writes.
const (
	UpsertInserted = "inserted"
	UpsertUpdated  = "updated"
	UpsertSkipped  = "skipped"
)

// FeatureRecord is one item's derived feature row.
type FeatureRecord struct {
	ItemID          string
	ItemPrice       *int64
	PointRate       *float64
	Availability    *int64
	ReviewAverage   *float64
	ReviewCount     *int64
	Rank            *int64
	RakutenGenreID  *int64
	RakutenTagIDs   []int64
	PriceLog        *float64
	ReviewCountLog  *float64
	PopularityScore *float64
}

// FeatureRepository maintains apl.item_features.
type FeatureRepository struct {
	db database.DBTX
}

// NewFeatureRepository creates a PostgreSQL-backed feature repository.
func NewFeatureRepository(db database.DBTX) *FeatureRepository {
	return &FeatureRepository{db: db}
}

// Upsert writes the feature row only when some column actually changed, so
// feature_updated_at moves only on real change. Returns one of
// UpsertInserted, UpsertUpdated, or UpsertSkipped.
func (r *FeatureRepository) Upsert(ctx context.Context, rec FeatureRecord) (string, error) {
	query := `
		INSERT INTO apl.item_features (
			item_id, item_price, point_rate, availability, review_average,
			review_count, rank, rakuten_genre_id, rakuten_tag_ids,
			price_log, review_count_log, popularity_score, feature_updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		ON CONFLICT (item_id) DO UPDATE SET
			item_price = excluded.item_price,
			point_rate = excluded.point_rate,
			availability = excluded.availability,
			review_average = excluded.review_average,
			review_count = excluded.review_count,
			rank = excluded.rank,
			rakuten_genre_id = excluded.rakuten_genre_id,
			rakuten_tag_ids = excluded.rakuten_tag_ids,
			price_log = excluded.price_log,
			review_count_log = excluded.review_count_log,
			popularity_score = excluded.popularity_score,
			feature_updated_at = now(),
			updated_at = now()
		WHERE apl.item_features.item_price IS DISTINCT FROM excluded.item_price
			OR apl.item_features.point_rate IS DISTINCT FROM excluded.point_rate
			OR apl.item_features.availability IS DISTINCT FROM excluded.availability
			OR apl.item_features.review_average IS DISTINCT FROM excluded.review_average
			OR apl.item_features.review_count IS DISTINCT FROM excluded.review_count
			OR apl.item_features.rank IS DISTINCT FROM excluded.rank
			OR apl.item_features.rakuten_genre_id IS DISTINCT FROM excluded.rakuten_genre_id
			OR apl.item_features.rakuten_tag_ids IS DISTINCT FROM excluded.rakuten_tag_ids
			OR apl.item_features.price_log IS DISTINCT FROM excluded.price_log
			OR apl.item_features.review_count_log IS DISTINCT FROM excluded.review_count_log
			OR apl.item_features.popularity_score IS DISTINCT FROM excluded.popularity_score
		RETURNING (xmax = 0) AS inserted`

	var wasInserted bool
	err := r.db.QueryRow(ctx, query,
		rec.ItemID,
		rec.ItemPrice,
		rec.PointRate,
		rec.Availability,
		rec.ReviewAverage,
		rec.ReviewCount,
		rec.Rank,
		rec.RakutenGenreID,
		rec.RakutenTagIDs,
		rec.PriceLog,
		rec.ReviewCountLog,
		rec.PopularityScore,
	).Scan(&wasInserted)
	if err != nil {
		// The gate matched nothing: the stored row already carries these values.
		if errors.Is(err, pgx.ErrNoRows) {
			return UpsertSkipped, nil
		}
		return "", fmt.Errorf("upsert features for %s: %w", rec.ItemID, err)
	}

	if wasInserted {
		return UpsertInserted, nil
	}
	return UpsertUpdated, nil
}

// FeatureInput is the raw material for one item's feature row: the latest
// snapshot of each signal plus the item's genre and tags.
type FeatureInput struct {
	ItemID          string
	RakutenItemCode string
	ItemPrice       *int64
	PointRate       *float64
	Availability    *int64
	ReviewAverage   *float64
	ReviewCount     *int64
	Rank            *int64
	RakutenGenreID  *int64
	RakutenTagIDs   []int64
}

// FetchInputs gathers feature inputs for the given item codes, taking the
// most recent market, review, and rank observation of each item.
func (r *FeatureRepository) FetchInputs(ctx context.Context, itemCodes []string) ([]FeatureInput, error) {
	if len(itemCodes) == 0 {
		return nil, nil
	}

	query := `
		SELECT
			i.id, i.rakuten_item_code,
			m.item_price, m.point_rate, m.availability,
			rv.review_average, rv.review_count,
			rk.rank, i.rakuten_genre_id,
			COALESCE(t.tag_ids, '{}')
		FROM apl.item i
		LEFT JOIN LATERAL (
			SELECT item_price, point_rate, availability
			FROM apl.item_market_snapshot
			WHERE item_id = i.id
			ORDER BY collected_at DESC
			LIMIT 1
		) m ON true
		LEFT JOIN LATERAL (
			SELECT review_average, review_count
			FROM apl.item_review_snapshot
			WHERE item_id = i.id
			ORDER BY collected_at DESC
			LIMIT 1
		) rv ON true
		LEFT JOIN LATERAL (
			SELECT rank
			FROM apl.item_rank_snapshot
			WHERE rakuten_item_code = i.rakuten_item_code
			ORDER BY collected_at DESC, rank ASC
			LIMIT 1
		) rk ON true
		LEFT JOIN LATERAL (
			SELECT array_agg(tg.rakuten_tag_id ORDER BY tg.rakuten_tag_id) AS tag_ids
			FROM apl.item_tag it
			JOIN apl.tag tg ON tg.id = it.tag_id
			WHERE it.item_id = i.id
		) t ON true
		WHERE i.rakuten_item_code = ANY($1)
		ORDER BY i.rakuten_item_code`

	rows, err := r.db.Query(ctx, query, itemCodes)
	if err != nil {
		return nil, fmt.Errorf("fetch feature inputs: %w", err)
	}
	defer rows.Close()

	var inputs []FeatureInput
	for rows.Next() {
		var in FeatureInput
		err := rows.Scan(
			&in.ItemID, &in.RakutenItemCode,
			&in.ItemPrice, &in.PointRate, &in.Availability,
			&in.ReviewAverage, &in.ReviewCount,
			&in.Rank, &in.RakutenGenreID,
			&in.RakutenTagIDs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan feature input: %w", err)
		}
		inputs = append(inputs, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feature inputs: %w", err)
	}

	return inputs, nil
}
