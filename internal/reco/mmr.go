package reco

import (
	"math"
	"sort"
)

// Jaccard is |A∩B| / |A∪B| over tag id sets, 0 when either set is empty.
func Jaccard(a, b []int64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := make(map[int64]bool, len(a))
	for _, v := range a {
		setA[v] = true
	}

	setB := make(map[int64]bool, len(b))
	intersection := 0
	for _, v := range b {
		if setB[v] {
			continue
		}
		setB[v] = true
		if setA[v] {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// MMRSelect greedily picks up to topN candidates, balancing relevance
// against tag overlap with what is already selected.
func MMRSelect(candidates []Scored, topN int, lambda float64) []Scored {
	if len(candidates) == 0 {
		return nil
	}

	remaining := make([]Scored, len(candidates))
	copy(remaining, candidates)
	sort.SliceStable(remaining, func(i, j int) bool {
		return remaining[i].Score > remaining[j].Score
	})
	if topN >= len(remaining) {
		return remaining
	}

	selected := make([]Scored, 0, topN)
	selected = append(selected, remaining[0])
	remaining = remaining[1:]

	for len(selected) < topN && len(remaining) > 0 {
		bestIdx := 0
		bestScore := math.Inf(-1)

		for idx, cand := range remaining {
			maxSim := 0.0
			for _, s := range selected {
				if sim := Jaccard(cand.TagIDs, s.TagIDs); sim > maxSim {
					maxSim = sim
				}
			}
			mmr := lambda*cand.Score - (1-lambda)*maxSim
			if mmr > bestScore {
				bestScore = mmr
				bestIdx = idx
			}
		}

		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}
