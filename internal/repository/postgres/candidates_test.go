package postgres

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/database"
)

func setupCandidateRepo(t *testing.T) (*CandidateRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	repo := NewCandidateRepository(mock)
	return repo, mock
}

func TestFetchActiveSince(t *testing.T) {
	repo, mock := setupCandidateRepo(t)
	defer mock.Close()

	since := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	updatedAt := time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{
		"item_id", "item_name", "item_url", "affiliate_url", "item_price",
		"point_rate", "availability", "review_average", "review_count", "rank",
		"rakuten_genre_id", "rakuten_tag_ids", "popularity_score", "feature_updated_at",
	}).AddRow(
		"item-uuid-1", strPtr("名入れタンブラー"), strPtr("https://item.rakuten.co.jp/giftshop/10001/"), nil, int64Ptr(2980),
		float64Ptr(1.0), int64Ptr(1), float64Ptr(4.62), int64Ptr(241), int64Ptr(3),
		int64Ptr(558929), []int64{5001, 5002}, float64Ptr(5.07), updatedAt,
	)

	mock.ExpectQuery(`FROM apl\.item_feature_view`).
		WithArgs(since).
		WillReturnRows(rows)

	candidates, err := repo.FetchActiveSince(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "item-uuid-1", candidates[0].ItemID)
	assert.Equal(t, []int64{5001, 5002}, candidates[0].RakutenTagIDs)
	assert.Nil(t, candidates[0].AffiliateURL)
	assert.Equal(t, updatedAt, candidates[0].FeatureUpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchVectors_Chunked(t *testing.T) {
	repo, mock := setupCandidateRepo(t)
	defer mock.Close()

	// 150 ids cross the 100-per-query chunk boundary: two round trips.
	itemIDs := make([]string, 150)
	for i := range itemIDs {
		itemIDs[i] = "item-" + string(rune('a'+i%26)) + "-" + time.Duration(i).String()
	}

	first := pgxmock.NewRows([]string{"item_id", "embedding"}).
		AddRow(itemIDs[0], "[0.10000000,0.20000000]")
	second := pgxmock.NewRows([]string{"item_id", "embedding"}).
		AddRow(itemIDs[149], "[1.00000000,0.00000000]")

	mock.ExpectQuery(`FROM apl\.item_embedding`).
		WithArgs("text-embedding-3-small", itemIDs[:100]).
		WillReturnRows(first)
	mock.ExpectQuery(`FROM apl\.item_embedding`).
		WithArgs("text-embedding-3-small", itemIDs[100:]).
		WillReturnRows(second)

	vectors, err := repo.FetchVectors(context.Background(), "text-embedding-3-small", itemIDs)
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float64{0.1, 0.2}, vectors[itemIDs[0]])
	assert.Equal(t, []float64{1, 0}, vectors[itemIDs[149]])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParseVector(t *testing.T) {
	tests := []struct {
		name    string
		literal string
		want    []float64
		wantErr bool
	}{
		{name: "simple", literal: "[0.1,0.2]", want: []float64{0.1, 0.2}},
		{name: "spaces", literal: " [1, -2.5] ", want: []float64{1, -2.5}},
		{name: "empty", literal: "[]", want: nil},
		{name: "missing brackets", literal: "0.1,0.2", wantErr: true},
		{name: "bad component", literal: "[0.1,abc]", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVector(tt.literal)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFetchActiveGenreIDs(t *testing.T) {
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewTargetGenreRepository(mock)

	rows := pgxmock.NewRows([]string{"rakuten_genre_id"}).
		AddRow(int64(101070)).
		AddRow(int64(558929))

	mock.ExpectQuery(`FROM apl\.target_genre_config`).
		WillReturnRows(rows)

	ids, err := repo.FetchActiveGenreIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{101070, 558929}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
