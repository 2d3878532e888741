package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/database"
)

// ShopRecord is the shop slice of an item payload.
type ShopRecord struct {
	RakutenShopCode string
	ShopName        *string
	ShopURL         *string
}

// ItemRecord is the master-table slice of an item payload. ShopID references
// the row returned by UpsertShop.
type ItemRecord struct {
	RakutenItemCode string
	ItemName        *string
	ItemURL         *string
	AffiliateURL    *string
	Catchcopy       *string
	ItemCaption     *string
	ImageFlag       *int64
	ShopID          string
	RakutenGenreID  *int64
	CreditCardFlag  *int64
	RakutenTagIDs   []int64
}

// MarketSnapshot captures the volatile commerce fields of one observation.
type MarketSnapshot struct {
	ItemID             string
	CollectedAt        time.Time
	ItemPrice          *int64
	TaxFlag            *int64
	PostageFlag        *int64
	GiftFlag           *int64
	Availability       *int64
	AsurakuFlag        *int64
	AsurakuClosingTime *string
	AsurakuArea        *string
	StartTime          *string
	EndTime            *string
	PointRate          *float64
	PointRateStartTime *string
	PointRateEndTime   *string
}

// ReviewSnapshot captures the review counters of one observation.
type ReviewSnapshot struct {
	ItemID        string
	CollectedAt   time.Time
	ReviewCount   *int64
	ReviewAverage *float64
}

// ItemRepository maintains the item master, its images, and its snapshots.
type ItemRepository struct {
	db database.DBTX
}

// NewItemRepository creates a PostgreSQL-backed item repository.
func NewItemRepository(db database.DBTX) *ItemRepository {
	return &ItemRepository{db: db}
}

// UpsertShop inserts or refreshes a shop and returns its row id.
func (r *ItemRepository) UpsertShop(ctx context.Context, shop ShopRecord) (string, error) {
	query := `
		INSERT INTO apl.shop (rakuten_shop_code, shop_name, shop_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (rakuten_shop_code) DO UPDATE SET
			shop_name = excluded.shop_name,
			shop_url = excluded.shop_url,
			updated_at = now()
		RETURNING id`

	var id string
	if err := r.db.QueryRow(ctx, query, shop.RakutenShopCode, shop.ShopName, shop.ShopURL).Scan(&id); err != nil {
		return "", fmt.Errorf("upsert shop %s: %w", shop.RakutenShopCode, err)
	}
	return id, nil
}

// UpsertItem inserts or refreshes an item master row and returns its row id.
func (r *ItemRepository) UpsertItem(ctx context.Context, item ItemRecord) (string, error) {
	query := `
		INSERT INTO apl.item (
			rakuten_item_code, item_name, item_url, affiliate_url, catchcopy,
			item_caption, image_flag, shop_id, rakuten_genre_id, credit_card_flag,
			rakuten_tag_ids
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (rakuten_item_code) DO UPDATE SET
			item_name = excluded.item_name,
			item_url = excluded.item_url,
			affiliate_url = excluded.affiliate_url,
			catchcopy = excluded.catchcopy,
			item_caption = excluded.item_caption,
			image_flag = excluded.image_flag,
			shop_id = excluded.shop_id,
			rakuten_genre_id = excluded.rakuten_genre_id,
			credit_card_flag = excluded.credit_card_flag,
			rakuten_tag_ids = excluded.rakuten_tag_ids,
			updated_at = now()
		RETURNING id`

	var id string
	err := r.db.QueryRow(ctx, query,
		item.RakutenItemCode,
		item.ItemName,
		item.ItemURL,
		item.AffiliateURL,
		item.Catchcopy,
		item.ItemCaption,
		item.ImageFlag,
		item.ShopID,
		item.RakutenGenreID,
		item.CreditCardFlag,
		item.RakutenTagIDs,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert item %s: %w", item.RakutenItemCode, err)
	}
	return id, nil
}

// SyncImages replaces the item's image set. Small images come first, each
// size numbered from 1 in payload order.
func (r *ItemRepository) SyncImages(ctx context.Context, itemID string, smallURLs, mediumURLs []string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM apl.item_image WHERE item_id = $1`, itemID); err != nil {
		return fmt.Errorf("clear item images: %w", err)
	}

	insert := `
		INSERT INTO apl.item_image (item_id, size, url, sort_order)
		VALUES ($1, $2, $3, $4)`

	for i, url := range smallURLs {
		if _, err := r.db.Exec(ctx, insert, itemID, "small", url, i+1); err != nil {
			return fmt.Errorf("insert small image %d: %w", i+1, err)
		}
	}
	for i, url := range mediumURLs {
		if _, err := r.db.Exec(ctx, insert, itemID, "medium", url, i+1); err != nil {
			return fmt.Errorf("insert medium image %d: %w", i+1, err)
		}
	}
	return nil
}

// InsertMarketSnapshot appends one market observation. Re-applying the same
// payload hits the (item_id, collected_at) key and is a no-op.
func (r *ItemRepository) InsertMarketSnapshot(ctx context.Context, snap MarketSnapshot) error {
	query := `
		INSERT INTO apl.item_market_snapshot (
			item_id, collected_at, item_price, tax_flag, postage_flag, gift_flag,
			availability, asuraku_flag, asuraku_closing_time, asuraku_area,
			start_time, end_time, point_rate, point_rate_start_time, point_rate_end_time
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (item_id, collected_at) DO NOTHING`

	_, err := r.db.Exec(ctx, query,
		snap.ItemID,
		snap.CollectedAt,
		snap.ItemPrice,
		snap.TaxFlag,
		snap.PostageFlag,
		snap.GiftFlag,
		snap.Availability,
		snap.AsurakuFlag,
		snap.AsurakuClosingTime,
		snap.AsurakuArea,
		snap.StartTime,
		snap.EndTime,
		snap.PointRate,
		snap.PointRateStartTime,
		snap.PointRateEndTime,
	)
	if err != nil {
		return fmt.Errorf("insert market snapshot: %w", err)
	}
	return nil
}

// InsertReviewSnapshot appends one review observation, idempotent on the
// (item_id, collected_at) key.
func (r *ItemRepository) InsertReviewSnapshot(ctx context.Context, snap ReviewSnapshot) error {
	query := `
		INSERT INTO apl.item_review_snapshot (item_id, collected_at, review_count, review_average)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (item_id, collected_at) DO NOTHING`

	_, err := r.db.Exec(ctx, query, snap.ItemID, snap.CollectedAt, snap.ReviewCount, snap.ReviewAverage)
	if err != nil {
		return fmt.Errorf("insert review snapshot: %w", err)
	}
	return nil
}

// FetchDistinctTagIDsSince lists tag ids seen on items updated at or after
// the given time; the tag job ingests these before the next item apply can
// link them.
func (r *ItemRepository) FetchDistinctTagIDsSince(ctx context.Context, since time.Time) ([]int64, error) {
	query := `
		SELECT DISTINCT unnest(rakuten_tag_ids) AS tag_id
		FROM apl.item
		WHERE updated_at >= $1
		ORDER BY tag_id`

	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("fetch tag ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tag id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tag ids: %w", err)
	}

	return ids, nil
}

// RefreshActiveFlags recomputes is_active from each item's latest market
// observation and returns how many rows flipped.
func (r *ItemRepository) RefreshActiveFlags(ctx context.Context) (int64, error) {
	query := `
		UPDATE apl.item i SET
			is_active = latest.active,
			updated_at = now()
		FROM (
			SELECT DISTINCT ON (item_id) item_id, (availability = 1) AS active
			FROM apl.item_market_snapshot
			ORDER BY item_id, collected_at DESC
		) latest
		WHERE latest.item_id = i.id AND i.is_active IS DISTINCT FROM latest.active`

	ct, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("refresh active flags: %w", err)
	}
	return ct.RowsAffected(), nil
}

// FetchDistinctGenreIDsBySourceIDs returns the genre ids referenced by the
// given item codes, nulls excluded, ordered ascending.
func (r *ItemRepository) FetchDistinctGenreIDsBySourceIDs(ctx context.Context, itemCodes []string) ([]int64, error) {
	if len(itemCodes) == 0 {
		return nil, nil
	}

	query := `
		SELECT DISTINCT rakuten_genre_id
		FROM apl.item
		WHERE rakuten_item_code = ANY($1) AND rakuten_genre_id IS NOT NULL
		ORDER BY rakuten_genre_id`

	rows, err := r.db.Query(ctx, query, itemCodes)
	if err != nil {
		return nil, fmt.Errorf("fetch genre ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan genre id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate genre ids: %w", err)
	}

	return ids, nil
}
