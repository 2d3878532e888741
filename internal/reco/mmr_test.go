package reco

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJaccard(t *testing.T) {
	assert.InDelta(t, 1.0, Jaccard([]int64{1, 2}, []int64{2, 1}), 1e-9)
	assert.InDelta(t, 1.0/3, Jaccard([]int64{1, 2}, []int64{2, 3}), 1e-9)
	assert.Zero(t, Jaccard([]int64{1, 2}, []int64{3, 4}))
	assert.Zero(t, Jaccard(nil, nil))
	assert.Zero(t, Jaccard([]int64{1}, nil))
	assert.InDelta(t, 0.5, Jaccard([]int64{1, 1, 2}, []int64{1}), 1e-9, "duplicate ids count once")
}

func TestMMRSelect_SuppressesTagTwins(t *testing.T) {
	ranked := []Scored{
		{ItemID: "first", Score: 0.9, TagIDs: []int64{1, 2}},
		{ItemID: "twin", Score: 0.85, TagIDs: []int64{1, 2}},
		{ItemID: "distinct", Score: 0.8, TagIDs: []int64{3, 4}},
	}

	selected := MMRSelect(ranked, 2, 0.5)
	require.Len(t, selected, 2)
	assert.Equal(t, "first", selected[0].ItemID)
	assert.Equal(t, "distinct", selected[1].ItemID, "full tag overlap pushes the twin out")
}

func TestMMRSelect_LambdaOneIsPureRelevance(t *testing.T) {
	ranked := []Scored{
		{ItemID: "a", Score: 0.9, TagIDs: []int64{1}},
		{ItemID: "b", Score: 0.8, TagIDs: []int64{1}},
		{ItemID: "c", Score: 0.7, TagIDs: []int64{1}},
		{ItemID: "d", Score: 0.6, TagIDs: []int64{2}},
	}

	selected := MMRSelect(ranked, 3, 1.0)
	require.Len(t, selected, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{selected[0].ItemID, selected[1].ItemID, selected[2].ItemID})
}

func TestMMRSelect_MissingTagsActAsEmptySet(t *testing.T) {
	ranked := []Scored{
		{ItemID: "a", Score: 0.9, TagIDs: []int64{1, 2}},
		{ItemID: "untagged", Score: 0.5},
		{ItemID: "twin", Score: 0.85, TagIDs: []int64{1, 2}},
	}

	selected := MMRSelect(ranked, 2, 0.3)
	require.Len(t, selected, 2)
	assert.Equal(t, "a", selected[0].ItemID)
	assert.Equal(t, "untagged", selected[1].ItemID)
}

func TestMMRSelect_PoolSmallerThanTopN(t *testing.T) {
	ranked := []Scored{
		{ItemID: "a", Score: 0.9},
		{ItemID: "b", Score: 0.8},
	}

	selected := MMRSelect(ranked, 20, 0.5)
	assert.Len(t, selected, 2)
	assert.Empty(t, MMRSelect(nil, 20, 0.5))
}
