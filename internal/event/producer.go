// Package event publishes pipeline lifecycle events to Kafka so downstream
// consumers (cache warmers, dashboards) can react to catalog changes.
package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/pkg/kafka"
)

// Kafka topics for pipeline events.
const (
	TopicJobCompleted = "gift.job.completed"
	TopicItemApplied  = "gift.item.applied"
)

// Aggregate type constants.
const (
	AggregateTypeJob  = "etl-job"
	AggregateTypeItem = "item"
)

// Source identifier for events originating from the batch pipeline.
const SourceETL = "gift-etl"

// JobCompletedData is the payload for a job.completed event.
type JobCompletedData struct {
	JobID        string  `json:"job_id"`
	RunID        string  `json:"run_id"`
	Env          string  `json:"env"`
	DryRun       bool    `json:"dry_run"`
	TotalTargets int     `json:"total_targets"`
	SuccessCount int     `json:"success_count"`
	FailureCount int     `json:"failure_count"`
	FailureRate  float64 `json:"failure_rate"`
}

// ItemAppliedData is the payload for an item.applied event.
type ItemAppliedData struct {
	ItemID          string `json:"item_id"`
	RakutenItemCode string `json:"rakuten_item_code"`
	ContentHash     string `json:"content_hash"`
	RunID           string `json:"run_id"`
}

// Producer publishes pipeline events to Kafka. A nil *Producer is a valid
// no-op publisher, so jobs run unchanged when Kafka is not configured.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates an event producer for the batch pipeline.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

// PublishJobCompleted publishes a job.completed event.
func (p *Producer) PublishJobCompleted(ctx context.Context, data JobCompletedData) error {
	if p == nil || p.kafka == nil {
		return nil
	}

	event, err := pkgkafka.NewEvent(TopicJobCompleted, data.RunID, AggregateTypeJob, SourceETL, data)
	if err != nil {
		return fmt.Errorf("create job.completed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicJobCompleted, event); err != nil {
		return fmt.Errorf("publish job.completed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published job.completed event",
		slog.String("job_id", data.JobID),
		slog.String("run_id", data.RunID),
	)

	return nil
}

// PublishItemApplied publishes an item.applied event.
func (p *Producer) PublishItemApplied(ctx context.Context, data ItemAppliedData) error {
	if p == nil || p.kafka == nil {
		return nil
	}

	event, err := pkgkafka.NewEvent(TopicItemApplied, data.ItemID, AggregateTypeItem, SourceETL, data)
	if err != nil {
		return fmt.Errorf("create item.applied event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicItemApplied, event); err != nil {
		return fmt.Errorf("publish item.applied event: %w", err)
	}

	p.logger.DebugContext(ctx, "published item.applied event",
		slog.String("item_id", data.ItemID),
		slog.String("rakuten_item_code", data.RakutenItemCode),
	)

	return nil
}
