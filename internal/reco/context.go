package reco

import (
	"fmt"
	"strings"
)

// emptyContextPlaceholder stands in for a request with no usable context
// fields; the embedding provider rejects empty input.
const emptyContextPlaceholder = "ギフト"

// Request holds the gift context one recommendation call scores against.
type Request struct {
	Mode                 string
	EventName            string
	RecipientDescription string
	BudgetMin            *int64
	BudgetMax            *int64
	FeaturesLike         []string
	FeaturesNotLike      []string
	FeaturesNg           []string
	AlgorithmOverride    string
}

// BuildContextText compacts the request fields into the Japanese summary the
// embedding model sees.
func BuildContextText(req Request) string {
	var parts []string

	if req.EventName != "" {
		parts = append(parts, "イベント: "+req.EventName)
	}
	if req.RecipientDescription != "" {
		parts = append(parts, "贈り先: "+req.RecipientDescription)
	}

	switch {
	case req.BudgetMin != nil && req.BudgetMax != nil:
		parts = append(parts, fmt.Sprintf("予算 %d〜%d円", *req.BudgetMin, *req.BudgetMax))
	case req.BudgetMin != nil:
		parts = append(parts, fmt.Sprintf("予算 %d円以上", *req.BudgetMin))
	case req.BudgetMax != nil:
		parts = append(parts, fmt.Sprintf("予算 %d円以下", *req.BudgetMax))
	}

	if len(req.FeaturesLike) > 0 {
		parts = append(parts, "like: "+strings.Join(req.FeaturesLike, ", "))
	}
	if len(req.FeaturesNotLike) > 0 {
		parts = append(parts, "not_like: "+strings.Join(req.FeaturesNotLike, ", "))
	}
	if len(req.FeaturesNg) > 0 {
		parts = append(parts, "ng: "+strings.Join(req.FeaturesNg, ", "))
	}

	text := strings.Join(parts, " / ")
	if strings.TrimSpace(text) == "" {
		return emptyContextPlaceholder
	}
	return text
}
