package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/database"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func setupStagingRepo(t *testing.T) (*StagingRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	repo := NewStagingRepository(mock)
	return repo, mock
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

// ---------------------------------------------------------------------------
// GetLatestStatus
// ---------------------------------------------------------------------------

func TestStagingGetLatestStatus(t *testing.T) {
	repo, mock := setupStagingRepo(t)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"content_hash", "applied_version"}).
		AddRow("abc123", int64Ptr(20260801))

	mock.ExpectQuery(`SELECT content_hash, applied_version`).
		WithArgs("rakuten", "item", "shop:10001").
		WillReturnRows(rows)

	status, err := repo.GetLatestStatus(context.Background(), "rakuten", "item", "shop:10001")
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, "abc123", status.ContentHash)
	require.NotNil(t, status.AppliedVersion)
	assert.Equal(t, int64(20260801), *status.AppliedVersion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStagingGetLatestStatus_NeverStaged(t *testing.T) {
	repo, mock := setupStagingRepo(t)
	defer mock.Close()

	mock.ExpectQuery(`SELECT content_hash, applied_version`).
		WithArgs("rakuten", "item", "shop:99999").
		WillReturnError(pgx.ErrNoRows)

	status, err := repo.GetLatestStatus(context.Background(), "rakuten", "item", "shop:99999")
	require.NoError(t, err)
	assert.Nil(t, status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStagingGetLatestStatus_NeverApplied(t *testing.T) {
	repo, mock := setupStagingRepo(t)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"content_hash", "applied_version"}).
		AddRow("abc123", (*int64)(nil))

	mock.ExpectQuery(`SELECT content_hash, applied_version`).
		WithArgs("rakuten", "genre", "100").
		WillReturnRows(rows)

	status, err := repo.GetLatestStatus(context.Background(), "rakuten", "genre", "100")
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Nil(t, status.AppliedVersion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// BatchUpsert
// ---------------------------------------------------------------------------

func TestStagingBatchUpsert(t *testing.T) {
	repo, mock := setupStagingRepo(t)
	defer mock.Close()

	savedAt := time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC)
	rows := []StagingRow{
		{Source: "rakuten", Entity: "item", SourceID: "shop:10001", ContentHash: "h1", S3Key: "raw/source=rakuten/entity=item/source_id=shop:10001/hash=h1.json", ETag: strPtr("etag-1"), SavedAt: savedAt},
		{Source: "rakuten", Entity: "item", SourceID: "shop:10002", ContentHash: "h2", S3Key: "raw/source=rakuten/entity=item/source_id=shop:10002/hash=h2.json", ETag: nil, SavedAt: savedAt},
	}

	for _, row := range rows {
		mock.ExpectExec(`INSERT INTO apl\.staging`).
			WithArgs(row.Source, row.Entity, row.SourceID, row.ContentHash, row.S3Key, row.ETag, row.SavedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	affected, err := repo.BatchUpsert(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStagingBatchUpsert_Empty(t *testing.T) {
	repo, mock := setupStagingRepo(t)
	defer mock.Close()

	affected, err := repo.BatchUpsert(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStagingBatchUpsert_StopsOnError(t *testing.T) {
	repo, mock := setupStagingRepo(t)
	defer mock.Close()

	savedAt := time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC)
	rows := []StagingRow{
		{Source: "rakuten", Entity: "item", SourceID: "a", ContentHash: "h1", S3Key: "k1", SavedAt: savedAt},
		{Source: "rakuten", Entity: "item", SourceID: "b", ContentHash: "h2", S3Key: "k2", SavedAt: savedAt},
	}

	mock.ExpectExec(`INSERT INTO apl\.staging`).
		WithArgs("rakuten", "item", "a", "h1", "k1", (*string)(nil), savedAt).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.BatchUpsert(context.Background(), rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rakuten/item/a")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// MarkApplied
// ---------------------------------------------------------------------------

func TestStagingMarkApplied(t *testing.T) {
	repo, mock := setupStagingRepo(t)
	defer mock.Close()

	mock.ExpectExec(`UPDATE apl\.staging SET`).
		WithArgs(int64(20260801), "rakuten", "item", "shop:10001", "h1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	affected, err := repo.MarkApplied(context.Background(), "rakuten", "item", "shop:10001", "h1", 20260801)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStagingMarkApplied_HashMovedOn(t *testing.T) {
	repo, mock := setupStagingRepo(t)
	defer mock.Close()

	// Another run replaced the content hash; the guarded update matches nothing.
	mock.ExpectExec(`UPDATE apl\.staging SET`).
		WithArgs(int64(20260801), "rakuten", "item", "shop:10001", "stale-hash").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	affected, err := repo.MarkApplied(context.Background(), "rakuten", "item", "shop:10001", "stale-hash", 20260801)
	require.NoError(t, err)
	assert.Zero(t, affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// FetchItemSourceIDsSince
// ---------------------------------------------------------------------------

func TestStagingFetchItemSourceIDsSince(t *testing.T) {
	repo, mock := setupStagingRepo(t)
	defer mock.Close()

	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"source_id"}).
		AddRow("shop:10001").
		AddRow("shop:10002")

	mock.ExpectQuery(`SELECT DISTINCT source_id`).
		WithArgs("rakuten", "item", since).
		WillReturnRows(rows)

	ids, err := repo.FetchItemSourceIDsSince(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, []string{"shop:10001", "shop:10002"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStagingFetchItemSourceIDsSince_NoRows(t *testing.T) {
	repo, mock := setupStagingRepo(t)
	defer mock.Close()

	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT DISTINCT source_id`).
		WithArgs("rakuten", "item", since).
		WillReturnRows(pgxmock.NewRows([]string{"source_id"}))

	ids, err := repo.FetchItemSourceIDsSince(context.Background(), since)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
