package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/etl"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/event"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/rawstore"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/repository/postgres"
)

// ---------------------------------------------------------------------------
// pipeline fakes
// ---------------------------------------------------------------------------

type memLedger struct {
	statuses map[string]*postgres.StagingStatus
	upserts  []postgres.StagingRow
	applied  []string
}

func newMemLedger() *memLedger {
	return &memLedger{statuses: map[string]*postgres.StagingStatus{}}
}

func (m *memLedger) GetLatestStatus(_ context.Context, _, entity, sourceID string) (*postgres.StagingStatus, error) {
	return m.statuses[entity+"/"+sourceID], nil
}

func (m *memLedger) BatchUpsert(_ context.Context, rows []postgres.StagingRow) (int64, error) {
	m.upserts = append(m.upserts, rows...)
	return int64(len(rows)), nil
}

func (m *memLedger) MarkApplied(_ context.Context, _, entity, sourceID, _ string, _ int64) (int64, error) {
	m.applied = append(m.applied, entity+"/"+sourceID)
	return 1, nil
}

type memStore struct {
	puts []string
}

func (m *memStore) PutJSON(_ context.Context, source, entity, sourceID, contentHash string, _ []byte) (rawstore.PutResult, error) {
	key := rawstore.Key(source, entity, sourceID, contentHash)
	m.puts = append(m.puts, key)
	return rawstore.PutResult{Key: key, ETag: "etag", SavedAt: time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC)}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestPipeline() *etl.Pipeline {
	return etl.NewPipeline(newMemLedger(), &memStore{}, 20260801, quietLogger())
}

func testRun(jobID string) etl.Run {
	return etl.Run{
		JobID:     jobID,
		Env:       "test",
		RunID:     "run-test",
		StartedAt: time.Date(2026, 8, 24, 3, 0, 0, 0, time.UTC),
	}
}

// noEvents is a nil producer; publishing through it is a no-op.
var noEvents = (*event.Producer)(nil)
