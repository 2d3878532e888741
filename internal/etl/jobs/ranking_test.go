package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/canonical"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/repository/postgres"
)

type fakeRankingFetcher struct {
	payloads map[int64]string
	calls    []int64
}

func (f *fakeRankingFetcher) FetchRanking(_ context.Context, genreID int64) (any, error) {
	f.calls = append(f.calls, genreID)
	return canonical.Decode([]byte(f.payloads[genreID]))
}

type fakeTargetGenres struct{ ids []int64 }

func (f *fakeTargetGenres) FetchActiveGenreIDs(context.Context) ([]int64, error) {
	return f.ids, nil
}

type fakeRankWriter struct {
	genreIDs   []int64
	buildDates []time.Time
	entries    [][]postgres.RankEntry
}

func (f *fakeRankWriter) InsertSnapshots(_ context.Context, genreID int64, buildDate time.Time, entries []postgres.RankEntry) (int64, error) {
	f.genreIDs = append(f.genreIDs, genreID)
	f.buildDates = append(f.buildDates, buildDate)
	f.entries = append(f.entries, entries)
	return int64(len(entries)), nil
}

func TestRankingJobRun(t *testing.T) {
	client := &fakeRankingFetcher{payloads: map[int64]string{
		101070: `{
			"title": "ギフトランキング",
			"lastBuildDate": "2026-08-24T10:00:00+0900",
			"Items": [
				{"rank": 1, "itemCode": "giftshop:10001"},
				{"rank": 2, "itemCode": "other:20002"},
				{"rank": 3}
			]
		}`,
	}}
	ranks := &fakeRankWriter{}

	job := NewRankingJob(client, &fakeTargetGenres{ids: []int64{101070}}, ranks, newTestPipeline(), noEvents, quietLogger())

	summary, err := job.Run(context.Background(), testRun("ranking-ingest"))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.TotalTargets)
	assert.Equal(t, 1, summary.SuccessCount)
	assert.Equal(t, []int64{101070}, client.calls)

	require.Len(t, ranks.entries, 1)
	assert.Equal(t, int64(101070), ranks.genreIDs[0])
	// 10:00 JST is 01:00 UTC.
	assert.Equal(t, time.Date(2026, 8, 24, 1, 0, 0, 0, time.UTC), ranks.buildDates[0])

	// The entry without an itemCode is dropped.
	entries := ranks.entries[0]
	require.Len(t, entries, 2)
	assert.Equal(t, postgres.RankEntry{RakutenItemCode: "giftshop:10001", Rank: 1, Title: strPtr("ギフトランキング")}, entries[0])
	assert.Equal(t, int64(2), entries[1].Rank)
}

func TestRankingJobRun_MissingBuildDateFailsTarget(t *testing.T) {
	client := &fakeRankingFetcher{payloads: map[int64]string{
		101070: `{"title": "ランキング", "Items": []}`,
	}}
	ranks := &fakeRankWriter{}

	job := NewRankingJob(client, &fakeTargetGenres{ids: []int64{101070}}, ranks, newTestPipeline(), noEvents, quietLogger())

	summary, err := job.Run(context.Background(), testRun("ranking-ingest"))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.FailureCount)
	assert.Empty(t, ranks.entries)
}

func TestRankingJobRun_WrappedItemEntries(t *testing.T) {
	// Older format versions wrap each entry in {"Item": {...}}.
	client := &fakeRankingFetcher{payloads: map[int64]string{
		101070: `{
			"lastBuildDate": "2026-08-24 10:00:00",
			"Items": [{"Item": {"rank": 1, "itemCode": "giftshop:10001"}}]
		}`,
	}}
	ranks := &fakeRankWriter{}

	job := NewRankingJob(client, &fakeTargetGenres{ids: []int64{101070}}, ranks, newTestPipeline(), noEvents, quietLogger())

	_, err := job.Run(context.Background(), testRun("ranking-ingest"))
	require.NoError(t, err)

	require.Len(t, ranks.entries, 1)
	require.Len(t, ranks.entries[0], 1)
	assert.Equal(t, "giftshop:10001", ranks.entries[0][0].RakutenItemCode)
}

func TestRankingJobRun_LowercaseItemsKey(t *testing.T) {
	// formatVersion=2 responses carry a lowercase items key; per-item titles
	// win over the enclosing one.
	client := &fakeRankingFetcher{payloads: map[int64]string{
		101070: `{
			"title": "ギフトランキング",
			"lastBuildDate": "2026-08-24T10:00:00+0900",
			"items": [
				{"rank": 1, "itemCode": "giftshop:10001", "title": "名入れタンブラー"},
				{"rank": 2, "itemCode": "other:20002"}
			]
		}`,
	}}
	ranks := &fakeRankWriter{}

	job := NewRankingJob(client, &fakeTargetGenres{ids: []int64{101070}}, ranks, newTestPipeline(), noEvents, quietLogger())

	summary, err := job.Run(context.Background(), testRun("ranking-ingest"))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SuccessCount)

	require.Len(t, ranks.entries, 1)
	entries := ranks.entries[0]
	require.Len(t, entries, 2)
	assert.Equal(t, "名入れタンブラー", *entries[0].Title, "entry keeps its own title")
	assert.Equal(t, "ギフトランキング", *entries[1].Title, "enclosing title fills the gap")
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

func float64Ptr(v float64) *float64 { return &v }
