// Package reco implements the online recommendation pipeline: resolve the
// requested mode to concrete parameters, load active candidates with their
// vectors, blend the scoring signals, and diversify the final list.
package reco

import (
	apperrors "github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/errors"
)

// User-facing recommendation modes.
const (
	ModePopular  = "popular"
	ModeBalanced = "balanced"
	ModeDiverse  = "diverse"
)

// Ranking algorithms a mode can resolve to.
const (
	AlgorithmVectorOnly      = "vector_only"
	AlgorithmVectorRanked    = "vector_ranked"
	AlgorithmVectorRankedMMR = "vector_ranked_mmr"
)

// How the algorithm was chosen.
const (
	ResolvedByMode     = "mode"
	ResolvedByOverride = "admin_override"
)

// The pool and output sizes are fixed across modes.
const (
	defaultNIn  = 50
	defaultNOut = 20
)

// Resolved carries the concrete parameters one request runs with.
type Resolved struct {
	Mode       string
	Algorithm  string
	K          int
	WVec       float64
	WPop       float64
	WRev       float64
	MMRLambda  float64
	NIn        int
	NOut       int
	ResolvedBy string
}

var modeParams = map[string]Resolved{
	ModePopular: {
		Algorithm: AlgorithmVectorRankedMMR,
		K:         120,
		WVec:      0.25,
		WPop:      0.55,
		WRev:      0.20,
		MMRLambda: 0.85,
	},
	ModeBalanced: {
		Algorithm: AlgorithmVectorRankedMMR,
		K:         120,
		WVec:      0.60,
		WPop:      0.20,
		WRev:      0.20,
		MMRLambda: 0.55,
	},
	ModeDiverse: {
		Algorithm: AlgorithmVectorRankedMMR,
		K:         220,
		WVec:      0.65,
		WPop:      0.15,
		WRev:      0.20,
		MMRLambda: 0.25,
	},
}

// ResolveMode maps a mode to its fixed parameters. A non-empty override
// replaces the algorithm and marks the resolution as an admin override.
func ResolveMode(mode, algorithmOverride string) (Resolved, error) {
	params, ok := modeParams[mode]
	if !ok {
		return Resolved{}, apperrors.InvalidInput("invalid mode: " + mode)
	}

	resolved := params
	resolved.Mode = mode
	resolved.NIn = defaultNIn
	resolved.NOut = defaultNOut
	resolved.ResolvedBy = ResolvedByMode

	if algorithmOverride != "" {
		switch algorithmOverride {
		case AlgorithmVectorOnly, AlgorithmVectorRanked, AlgorithmVectorRankedMMR:
		default:
			return Resolved{}, apperrors.InvalidInput("invalid algorithmOverride: " + algorithmOverride)
		}
		resolved.Algorithm = algorithmOverride
		resolved.ResolvedBy = ResolvedByOverride
	}

	return resolved, nil
}

// ResponseParams is the params object echoed back in the response.
func (r Resolved) ResponseParams() map[string]any {
	return map[string]any{
		"k":          r.K,
		"w_vec":      r.WVec,
		"w_pop":      r.WPop,
		"w_rev":      r.WRev,
		"mmr_lambda": r.MMRLambda,
		"n_in":       r.NIn,
		"n_out":      r.NOut,
	}
}
