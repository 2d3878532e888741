package jobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/etl"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/event"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/repository/postgres"
)

// captionLimit bounds the description block in codepoints; captions are the
// one field shops routinely fill with kilobytes of HTML leftovers.
const captionLimit = 2000

// maxTagNames bounds the tag list in the composed text.
const maxTagNames = 30

// shortSourceThreshold flags compositions too thin to embed well.
const shortSourceThreshold = 20

type embeddingSourceStore interface {
	FetchInputsSince(ctx context.Context, since time.Time) ([]postgres.EmbeddingInput, error)
	UpsertSource(ctx context.Context, src postgres.EmbeddingSource) (string, error)
}

// EmbeddingSourceJob composes the Japanese source text of every recently
// changed item and stores it hash-gated.
type EmbeddingSourceJob struct {
	store  embeddingSourceStore
	events *event.Producer
	logger *slog.Logger
	policy string
}

// NewEmbeddingSourceJob wires the source-text composition.
func NewEmbeddingSourceJob(store embeddingSourceStore, events *event.Producer, logger *slog.Logger, policy string) *EmbeddingSourceJob {
	return &EmbeddingSourceJob{
		store:  store,
		events: events,
		logger: logger,
		policy: policy,
	}
}

// Run composes and upserts the source text of each selected item.
func (j *EmbeddingSourceJob) Run(ctx context.Context, run etl.Run) (etl.Summary, error) {
	since, err := etl.SinceForPolicy(j.policy, run.StartedAt)
	if err != nil {
		return etl.Summary{}, err
	}

	inputs, err := j.store.FetchInputsSince(ctx, since)
	if err != nil {
		return etl.Summary{}, err
	}

	summary := etl.Summary{TotalTargets: len(inputs)}

	for _, input := range inputs {
		text := BuildSourceText(input)
		if len([]rune(text)) < shortSourceThreshold {
			j.logger.WarnContext(ctx, "embedding source text very short",
				slog.String("item_id", input.ItemID),
				slog.Int("length", len([]rune(text))),
			)
		}

		if run.DryRun {
			summary.SuccessCount++
			continue
		}

		_, err := j.store.UpsertSource(ctx, postgres.EmbeddingSource{
			ItemID:     input.ItemID,
			SourceText: text,
			SourceHash: SourceHash(text),
		})
		if err != nil {
			summary.FailureCount++
			j.logger.ErrorContext(ctx, "embedding source upsert failed",
				slog.String("item_id", input.ItemID),
				slog.String("error", err.Error()),
			)
			continue
		}
		summary.SuccessCount++
	}

	summary.Finalize()
	publishCompletion(ctx, j.events, j.logger, run, summary)
	return summary, nil
}

// SourceHash is the change detector for composed source texts.
func SourceHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// BuildSourceText composes the labeled Japanese text the embedding model
// sees. Product fields form the first block, catalog metadata the second,
// separated by one blank line when both are present.
func BuildSourceText(input postgres.EmbeddingInput) string {
	var product []string
	if name := cleanText(input.ItemName); name != "" {
		product = append(product, "商品名: "+name)
	}
	if catchcopy := cleanText(input.Catchcopy); catchcopy != "" {
		product = append(product, "キャッチコピー: "+catchcopy)
	}
	if caption := truncateRunes(cleanText(input.ItemCaption), captionLimit); caption != "" {
		product = append(product, "商品説明: "+caption)
	}

	var meta []string
	if genre := cleanText(input.GenreName); genre != "" {
		meta = append(meta, "ジャンル: "+genre)
	}
	if tags := tagLine(input.TagNames); tags != "" {
		meta = append(meta, "タグ: "+tags)
	}
	if input.ItemPrice != nil {
		meta = append(meta, fmt.Sprintf("価格: %d円", *input.ItemPrice))
	}

	switch {
	case len(product) == 0:
		return strings.Join(meta, "\n")
	case len(meta) == 0:
		return strings.Join(product, "\n")
	default:
		return strings.Join(product, "\n") + "\n\n" + strings.Join(meta, "\n")
	}
}

var (
	htmlTagPattern  = regexp.MustCompile(`<[^>]+>`)
	spaceRunPattern = regexp.MustCompile(`[ \t]+`)
)

// cleanText strips HTML tags, normalizes newlines, collapses space runs per
// line, and drops blank lines.
func cleanText(s *string) string {
	if s == nil {
		return ""
	}

	text := htmlTagPattern.ReplaceAllString(*s, " ")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(spaceRunPattern.ReplaceAllString(line, " "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func tagLine(names []string) string {
	var kept []string
	for _, name := range names {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			kept = append(kept, trimmed)
		}
		if len(kept) == maxTagNames {
			break
		}
	}
	return strings.Join(kept, ", ")
}
