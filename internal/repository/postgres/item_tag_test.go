package postgres

import (
	"context"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/database"
)

func setupItemTagRepo(t *testing.T) (*ItemTagRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	repo := NewItemTagRepository(mock)
	return repo, mock
}

func TestReplaceItemTags(t *testing.T) {
	repo, mock := setupItemTagRepo(t)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM apl\.item_tag`).
		WithArgs("item-uuid-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec(`INSERT INTO apl\.item_tag`).
		WithArgs("item-uuid-1", int64(5001)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	// Tag 9999 is not in the catalog; the SELECT matches nothing.
	mock.ExpectExec(`INSERT INTO apl\.item_tag`).
		WithArgs("item-uuid-1", int64(9999)).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	linked, err := repo.ReplaceItemTags(context.Background(), "item-uuid-1", []int64{5001, 9999})
	require.NoError(t, err)
	assert.Equal(t, int64(1), linked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceItemTags_EmptyListClearsLinks(t *testing.T) {
	repo, mock := setupItemTagRepo(t)
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM apl\.item_tag`).
		WithArgs("item-uuid-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	linked, err := repo.ReplaceItemTags(context.Background(), "item-uuid-1", nil)
	require.NoError(t, err)
	assert.Zero(t, linked)
	assert.NoError(t, mock.ExpectationsWereMet())
}
