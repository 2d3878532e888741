package postgres

import (
	"context"
	"fmt"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/database"
)

// ItemTagRepository maintains the item-to-tag link table.
type ItemTagRepository struct {
	db database.DBTX
}

// NewItemTagRepository creates a PostgreSQL-backed item-tag repository.
func NewItemTagRepository(db database.DBTX) *ItemTagRepository {
	return &ItemTagRepository{db: db}
}

// ReplaceItemTags rewrites the item's tag links from the payload's tag ids.
// Tags the catalog has not ingested yet resolve to no row and are skipped.
// Returns how many links were written.
func (r *ItemTagRepository) ReplaceItemTags(ctx context.Context, itemID string, rakutenTagIDs []int64) (int64, error) {
	if _, err := r.db.Exec(ctx, `DELETE FROM apl.item_tag WHERE item_id = $1`, itemID); err != nil {
		return 0, fmt.Errorf("clear item tags: %w", err)
	}

	query := `
		INSERT INTO apl.item_tag (item_id, tag_id)
		SELECT $1, t.id
		FROM apl.tag t
		WHERE t.rakuten_tag_id = $2
		ON CONFLICT DO NOTHING`

	var linked int64
	for _, tagID := range rakutenTagIDs {
		ct, err := r.db.Exec(ctx, query, itemID, tagID)
		if err != nil {
			return linked, fmt.Errorf("link tag %d: %w", tagID, err)
		}
		linked += ct.RowsAffected()
	}

	return linked, nil
}
