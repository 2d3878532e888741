package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/database"
)

// vectorChunkSize bounds how many vectors one query pulls back; embedding
// rows are wide.
const vectorChunkSize = 100

// CandidateRow is one active item read from the feature view, carrying the
// scoring features plus the display fields the response needs.
type CandidateRow struct {
	ItemID           string
	ItemName         *string
	ItemURL          *string
	AffiliateURL     *string
	ItemPrice        *int64
	PointRate        *float64
	Availability     *int64
	ReviewAverage    *float64
	ReviewCount      *int64
	Rank             *int64
	RakutenGenreID   *int64
	RakutenTagIDs    []int64
	PopularityScore  *float64
	FeatureUpdatedAt time.Time
}

// CandidateRepository reads the serving-side feature view and vectors.
type CandidateRepository struct {
	db database.DBTX
}

// NewCandidateRepository creates a PostgreSQL-backed candidate reader.
func NewCandidateRepository(db database.DBTX) *CandidateRepository {
	return &CandidateRepository{db: db}
}

// FetchActiveSince returns active items whose features advanced at or after
// the given time, ordered by item id.
func (r *CandidateRepository) FetchActiveSince(ctx context.Context, since time.Time) (_ []CandidateRow, err error) {
	query := `
		SELECT
			item_id, item_name, item_url, affiliate_url, item_price,
			point_rate, availability, review_average, review_count, rank,
			rakuten_genre_id, rakuten_tag_ids, popularity_score, feature_updated_at
		FROM apl.item_feature_view
		WHERE is_active = true AND feature_updated_at >= $1
		ORDER BY item_id`

	ctx, end := database.TraceQuery(ctx, "FetchActiveCandidates", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("fetch candidates: %w", err)
	}
	defer rows.Close()

	var candidates []CandidateRow
	for rows.Next() {
		var c CandidateRow
		err := rows.Scan(
			&c.ItemID, &c.ItemName, &c.ItemURL, &c.AffiliateURL, &c.ItemPrice,
			&c.PointRate, &c.Availability, &c.ReviewAverage, &c.ReviewCount, &c.Rank,
			&c.RakutenGenreID, &c.RakutenTagIDs, &c.PopularityScore, &c.FeatureUpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}

	return candidates, nil
}

// FetchVectors loads the embedding of each item for the model, chunked so a
// large candidate set does not produce one oversized query.
func (r *CandidateRepository) FetchVectors(ctx context.Context, model string, itemIDs []string) (_ map[string][]float64, err error) {
	query := `
		SELECT item_id, embedding::text
		FROM apl.item_embedding
		WHERE model = $1 AND item_id = ANY($2)`

	ctx, end := database.TraceQuery(ctx, "FetchCandidateVectors", query)
	defer func() { end(err) }()

	vectors := make(map[string][]float64, len(itemIDs))
	for start := 0; start < len(itemIDs); start += vectorChunkSize {
		chunkEnd := start + vectorChunkSize
		if chunkEnd > len(itemIDs) {
			chunkEnd = len(itemIDs)
		}

		if err = r.fetchVectorChunk(ctx, query, model, itemIDs[start:chunkEnd], vectors); err != nil {
			return nil, err
		}
	}

	return vectors, nil
}

func (r *CandidateRepository) fetchVectorChunk(ctx context.Context, query, model string, itemIDs []string, out map[string][]float64) error {
	rows, err := r.db.Query(ctx, query, model, itemIDs)
	if err != nil {
		return fmt.Errorf("fetch vectors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var itemID, literal string
		if err := rows.Scan(&itemID, &literal); err != nil {
			return fmt.Errorf("scan vector: %w", err)
		}
		vector, err := ParseVector(literal)
		if err != nil {
			return fmt.Errorf("parse vector for %s: %w", itemID, err)
		}
		out[itemID] = vector
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate vectors: %w", err)
	}

	return nil
}

// ParseVector reads a pgvector text literal back into a float slice.
func ParseVector(literal string) ([]float64, error) {
	trimmed := strings.TrimSpace(literal)
	if len(trimmed) < 2 || trimmed[0] != '[' || trimmed[len(trimmed)-1] != ']' {
		return nil, fmt.Errorf("malformed vector literal %q", literal)
	}

	inner := trimmed[1 : len(trimmed)-1]
	if inner == "" {
		return nil, nil
	}

	parts := strings.Split(inner, ",")
	vector := make([]float64, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("vector component %d: %w", i, err)
		}
		vector[i] = v
	}

	return vector, nil
}
