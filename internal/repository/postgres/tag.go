package postgres

import (
	"context"
	"fmt"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/database"
)

// TagNode is one tag in a payload's tag group. ParentTagID 0 marks a root.
type TagNode struct {
	RakutenTagID int64
	Name         *string
	ParentTagID  int64
}

// TagRepository maintains tag groups and their tag forests.
type TagRepository struct {
	db database.DBTX
}

// NewTagRepository creates a PostgreSQL-backed tag repository.
func NewTagRepository(db database.DBTX) *TagRepository {
	return &TagRepository{db: db}
}

// UpsertGroup inserts or refreshes a tag group and returns its row id.
func (r *TagRepository) UpsertGroup(ctx context.Context, rakutenTagGroupID int64, name *string) (string, error) {
	query := `
		INSERT INTO apl.tag_group (rakuten_tag_group_id, tag_group_name)
		VALUES ($1, $2)
		ON CONFLICT (rakuten_tag_group_id) DO UPDATE SET
			tag_group_name = excluded.tag_group_name,
			updated_at = now()
		RETURNING id`

	var id string
	if err := r.db.QueryRow(ctx, query, rakutenTagGroupID, name).Scan(&id); err != nil {
		return "", fmt.Errorf("upsert tag group %d: %w", rakutenTagGroupID, err)
	}
	return id, nil
}

// UpsertForest upserts the group's tags parent-first and returns how many
// rows were newly inserted. A tag whose parent is absent from the payload, or
// that sits on a parent cycle, is unresolvable and skipped together with its
// descendants.
func (r *TagRepository) UpsertForest(ctx context.Context, groupRowID string, tags []TagNode) (int, error) {
	byID := make(map[int64]TagNode, len(tags))
	for _, tag := range tags {
		byID[tag.RakutenTagID] = tag
	}

	// visited holds the row id of an upserted tag, or nil when unresolvable.
	visited := make(map[int64]*string, len(tags))
	visiting := make(map[int64]bool, len(tags))
	inserted := 0

	query := `
		INSERT INTO apl.tag (rakuten_tag_id, tag_name, tag_group_id, parent_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (rakuten_tag_id) DO UPDATE SET
			tag_name = excluded.tag_name,
			tag_group_id = excluded.tag_group_id,
			parent_id = excluded.parent_id,
			updated_at = now()
		RETURNING id, (xmax = 0) AS inserted`

	var resolve func(id int64) (*string, error)
	resolve = func(id int64) (*string, error) {
		if rowID, ok := visited[id]; ok {
			return rowID, nil
		}
		if visiting[id] {
			visited[id] = nil
			return nil, nil
		}

		tag, ok := byID[id]
		if !ok {
			visited[id] = nil
			return nil, nil
		}

		visiting[id] = true
		defer delete(visiting, id)

		var parentRowID *string
		if tag.ParentTagID != 0 {
			resolved, err := resolve(tag.ParentTagID)
			if err != nil {
				return nil, err
			}
			if resolved == nil {
				visited[id] = nil
				return nil, nil
			}
			parentRowID = resolved
		}

		var rowID string
		var wasInserted bool
		if err := r.db.QueryRow(ctx, query, tag.RakutenTagID, tag.Name, groupRowID, parentRowID).Scan(&rowID, &wasInserted); err != nil {
			return nil, fmt.Errorf("upsert tag %d: %w", tag.RakutenTagID, err)
		}
		if wasInserted {
			inserted++
		}
		visited[id] = &rowID
		return &rowID, nil
	}

	for _, tag := range tags {
		if _, err := resolve(tag.RakutenTagID); err != nil {
			return inserted, err
		}
	}

	return inserted, nil
}
