package jobs

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/repository/postgres"
)

type fakeEmbeddingSourceStore struct {
	inputs  []postgres.EmbeddingInput
	sources []postgres.EmbeddingSource
}

func (f *fakeEmbeddingSourceStore) FetchInputsSince(context.Context, time.Time) ([]postgres.EmbeddingInput, error) {
	return f.inputs, nil
}

func (f *fakeEmbeddingSourceStore) UpsertSource(_ context.Context, src postgres.EmbeddingSource) (string, error) {
	f.sources = append(f.sources, src)
	return postgres.UpsertUpdated, nil
}

func TestBuildSourceText(t *testing.T) {
	input := postgres.EmbeddingInput{
		ItemID:      "item-1",
		ItemName:    strPtr("名入れタンブラー"),
		Catchcopy:   strPtr("  名入れ無料  "),
		ItemCaption: strPtr("<p>ステンレス製。</p>\r\n保冷  保温　対応"),
		GenreName:   strPtr("キッチン用品"),
		TagNames:    []string{"お祝い", " 誕生日 ", ""},
		ItemPrice:   int64Ptr(2980),
	}

	text := BuildSourceText(input)

	want := "商品名: 名入れタンブラー\n" +
		"キャッチコピー: 名入れ無料\n" +
		"商品説明: ステンレス製。\n保冷 保温　対応\n" +
		"\n" +
		"ジャンル: キッチン用品\n" +
		"タグ: お祝い, 誕生日\n" +
		"価格: 2980円"
	assert.Equal(t, want, text)
}

func TestBuildSourceText_SingleBlockHasNoSeparator(t *testing.T) {
	onlyProduct := BuildSourceText(postgres.EmbeddingInput{ItemName: strPtr("ギフト券")})
	assert.Equal(t, "商品名: ギフト券", onlyProduct)

	onlyMeta := BuildSourceText(postgres.EmbeddingInput{ItemPrice: int64Ptr(500)})
	assert.Equal(t, "価格: 500円", onlyMeta)

	assert.Equal(t, "", BuildSourceText(postgres.EmbeddingInput{}))
}

func TestBuildSourceText_CaptionTruncatesByRune(t *testing.T) {
	caption := strings.Repeat("あ", captionLimit+100)
	text := BuildSourceText(postgres.EmbeddingInput{ItemCaption: &caption})

	runes := []rune(strings.TrimPrefix(text, "商品説明: "))
	assert.Len(t, runes, captionLimit)
}

func TestBuildSourceText_TagListCaps(t *testing.T) {
	names := make([]string, maxTagNames+5)
	for i := range names {
		names[i] = "タグ"
	}
	text := BuildSourceText(postgres.EmbeddingInput{TagNames: names})
	assert.Equal(t, maxTagNames, strings.Count(text, "タグ")-1, "label plus capped names")
}

func TestSourceHash(t *testing.T) {
	hash := SourceHash("商品名: ギフト券")
	assert.Len(t, hash, 64)
	assert.Equal(t, hash, SourceHash("商品名: ギフト券"))
	assert.NotEqual(t, hash, SourceHash("商品名: ギフト券 "))
}

func TestEmbeddingSourceJobRun(t *testing.T) {
	store := &fakeEmbeddingSourceStore{inputs: []postgres.EmbeddingInput{
		{ItemID: "item-1", ItemName: strPtr("名入れタンブラー"), ItemPrice: int64Ptr(2980)},
		{ItemID: "item-2"},
	}}

	job := NewEmbeddingSourceJob(store, noEvents, quietLogger(), "")

	summary, err := job.Run(context.Background(), testRun("embedding-source"))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalTargets)
	assert.Equal(t, 2, summary.SuccessCount)

	require.Len(t, store.sources, 2)
	assert.Equal(t, "item-1", store.sources[0].ItemID)
	assert.Equal(t, SourceHash(store.sources[0].SourceText), store.sources[0].SourceHash)
	assert.Equal(t, "", store.sources[1].SourceText, "empty inputs still persist an empty source")
}

func TestEmbeddingSourceJobRun_DryRunWritesNothing(t *testing.T) {
	store := &fakeEmbeddingSourceStore{inputs: []postgres.EmbeddingInput{{ItemID: "item-1"}}}

	job := NewEmbeddingSourceJob(store, noEvents, quietLogger(), "")

	run := testRun("embedding-source")
	run.DryRun = true
	summary, err := job.Run(context.Background(), run)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.SuccessCount)
	assert.Empty(t, store.sources)
}
