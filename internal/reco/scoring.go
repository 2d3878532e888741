package reco

import (
	"math"
	"sort"
)

// ComponentScores is the normalized per-signal breakdown attached to each
// recommended item as its reason.
type ComponentScores struct {
	SVec float64 `json:"s_vec"`
	SPop float64 `json:"s_pop"`
	SRev float64 `json:"s_rev"`
}

// Scored is one candidate after the blend.
type Scored struct {
	ItemID      string
	Score       float64
	VectorScore float64
	RerankScore float64
	TagIDs      []int64
	Scores      ComponentScores
	Row         Candidate
}

// ScoreCandidates pre-filters the pool to the top k by vector similarity and
// blends the normalized vector, popularity, and review signals with the
// resolved weights.
func ScoreCandidates(candidates []Candidate, params Resolved) []Scored {
	if len(candidates) == 0 {
		return nil
	}

	pool := make([]Candidate, len(candidates))
	copy(pool, candidates)
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].VectorScore > pool[j].VectorScore
	})
	if params.K > 0 && len(pool) > params.K {
		pool = pool[:params.K]
	}

	var maxReviewCount float64
	for _, c := range pool {
		if c.ReviewCount != nil && float64(*c.ReviewCount) > maxReviewCount {
			maxReviewCount = float64(*c.ReviewCount)
		}
	}

	vecRaw := make([]float64, len(pool))
	popRaw := make([]float64, len(pool))
	revRaw := make([]float64, len(pool))
	for i, c := range pool {
		vecRaw[i] = c.VectorScore
		popRaw[i] = popularitySignal(c)
		revRaw[i] = reviewSignal(c, maxReviewCount)
	}

	vecNorm := normalize(vecRaw)
	popNorm := normalize(popRaw)
	revNorm := normalize(revRaw)

	scored := make([]Scored, len(pool))
	for i, c := range pool {
		blend := params.WVec*vecNorm[i] + params.WPop*popNorm[i] + params.WRev*revNorm[i]
		scored[i] = Scored{
			ItemID:      c.ItemID,
			Score:       blend,
			VectorScore: vecNorm[i],
			RerankScore: blend,
			TagIDs:      c.RakutenTagIDs,
			Scores: ComponentScores{
				SVec: vecNorm[i],
				SPop: popNorm[i],
				SRev: revNorm[i],
			},
			Row: c,
		}
	}

	return scored
}

// popularitySignal prefers the precomputed popularity score; a missing score
// falls back to the rank reciprocal, and no rank means 0. Missing and zero
// are distinct here: a zero score is a real observation.
func popularitySignal(c Candidate) float64 {
	if c.PopularityScore != nil {
		return *c.PopularityScore
	}
	if c.Rank != nil {
		return 1 / (float64(*c.Rank) + 1)
	}
	return 0
}

// reviewSignal is quality times volume confidence, where quality clamps the
// average onto [0,1] and confidence scales the count against the pool
// maximum. Missing values collapse to zero.
func reviewSignal(c Candidate, maxReviewCount float64) float64 {
	var avg, count float64
	if c.ReviewAverage != nil {
		avg = *c.ReviewAverage
	}
	if c.ReviewCount != nil {
		count = float64(*c.ReviewCount)
	}

	quality := avg / 5
	if quality < 0 {
		quality = 0
	}
	if quality > 1 {
		quality = 1
	}

	if maxReviewCount <= 0 {
		return 0
	}
	confidence := math.Log(1+count) / math.Log(1+maxReviewCount)

	return quality * confidence
}

// normalize min-max scales values onto [0,1]; a constant input maps to all
// zeros.
func normalize(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}

	minV, maxV := values[0], values[0]
	for _, v := range values[1:] {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}

	out := make([]float64, len(values))
	if maxV == minV {
		return out
	}
	for i, v := range values {
		out[i] = (v - minV) / (maxV - minV)
	}
	return out
}
