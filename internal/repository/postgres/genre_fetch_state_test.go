package postgres

import (
	"context"
	"strings"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/database"
)

func setupCrawlRepo(t *testing.T) (*GenreFetchStateRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	repo := NewGenreFetchStateRepository(mock)
	return repo, mock
}

func TestCrawlSeed(t *testing.T) {
	repo, mock := setupCrawlRepo(t)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO apl\.rakuten_genre_fetch_state`).
		WithArgs(int64(0), CrawlStatePending).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Seed(context.Background(), 0))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCrawlEnqueue_CountsOnlyNewIDs(t *testing.T) {
	repo, mock := setupCrawlRepo(t)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO apl\.rakuten_genre_fetch_state`).
		WithArgs(int64(100533), CrawlStatePending).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO apl\.rakuten_genre_fetch_state`).
		WithArgs(int64(558929), CrawlStatePending).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	enqueued, err := repo.Enqueue(context.Background(), []int64{100533, 558929})
	require.NoError(t, err)
	assert.Equal(t, int64(1), enqueued)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCrawlClaim(t *testing.T) {
	repo, mock := setupCrawlRepo(t)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"genre_id"}).
		AddRow(int64(100533)).
		AddRow(int64(558929))

	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs(CrawlStatePending, CrawlStateError, 10, CrawlStateInProgress, "worker-1").
		WillReturnRows(rows)

	ids, err := repo.Claim(context.Background(), "worker-1", 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{100533, 558929}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCrawlClaim_QueueDrained(t *testing.T) {
	repo, mock := setupCrawlRepo(t)
	defer mock.Close()

	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs(CrawlStatePending, CrawlStateError, 10, CrawlStateInProgress, "worker-1").
		WillReturnRows(pgxmock.NewRows([]string{"genre_id"}))

	ids, err := repo.Claim(context.Background(), "worker-1", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCrawlMarkDone(t *testing.T) {
	repo, mock := setupCrawlRepo(t)
	defer mock.Close()

	mock.ExpectExec(`UPDATE apl\.rakuten_genre_fetch_state`).
		WithArgs(CrawlStateDone, int64(100533)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.MarkDone(context.Background(), 100533))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCrawlMarkError_TruncatesCause(t *testing.T) {
	repo, mock := setupCrawlRepo(t)
	defer mock.Close()

	longCause := strings.Repeat("x", 3000)
	mock.ExpectExec(`UPDATE apl\.rakuten_genre_fetch_state`).
		WithArgs(CrawlStateError, strings.Repeat("x", maxCrawlErrorLen), int64(100533)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.MarkError(context.Background(), 100533, longCause))
	assert.NoError(t, mock.ExpectationsWereMet())
}
