package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/etl"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/event"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/repository/postgres"
)

type tagFetcher interface {
	FetchTag(ctx context.Context, tagID int64) (any, error)
}

type itemTagIDSource interface {
	FetchDistinctTagIDsSince(ctx context.Context, since time.Time) ([]int64, error)
}

type tagWriter interface {
	UpsertGroup(ctx context.Context, rakutenTagGroupID int64, name *string) (string, error)
	UpsertForest(ctx context.Context, groupRowID string, tags []postgres.TagNode) (int, error)
}

// TagJob ingests the tag groups of every tag id seen on recently updated
// items. Items always carry tag ids before the tags themselves exist, so the
// item job records the raw ids and this job backfills the tag rows.
type TagJob struct {
	client   tagFetcher
	items    itemTagIDSource
	tags     tagWriter
	pipeline *etl.Pipeline
	events   *event.Producer
	logger   *slog.Logger
	policy   string
}

// NewTagJob wires the tag ingest.
func NewTagJob(client tagFetcher, items itemTagIDSource, tags tagWriter, pipeline *etl.Pipeline, events *event.Producer, logger *slog.Logger, policy string) *TagJob {
	return &TagJob{
		client:   client,
		items:    items,
		tags:     tags,
		pipeline: pipeline,
		events:   events,
		logger:   logger,
		policy:   policy,
	}
}

// Run fetches and applies the tag-group payload of each referenced tag.
func (j *TagJob) Run(ctx context.Context, run etl.Run) (etl.Summary, error) {
	since, err := etl.SinceForPolicy(j.policy, run.StartedAt)
	if err != nil {
		return etl.Summary{}, err
	}

	tagIDs, err := j.items.FetchDistinctTagIDsSince(ctx, since)
	if err != nil {
		return etl.Summary{}, err
	}

	targets := make([]etl.Target, 0, len(tagIDs))
	for _, tagID := range tagIDs {
		id := tagID
		targets = append(targets, etl.Target{
			Entity:   "tag",
			SourceID: strconv.FormatInt(id, 10),
			Fetch: func(ctx context.Context) (any, error) {
				return j.client.FetchTag(ctx, id)
			},
		})
	}

	summary := j.pipeline.Run(ctx, run, targets, j.apply)
	publishCompletion(ctx, j.events, j.logger, run, summary)
	return summary, nil
}

// apply upserts every tag group in the payload and its tag forest.
func (j *TagJob) apply(ctx context.Context, _ etl.Target, payload any) error {
	m, ok := etl.AsMap(payload)
	if !ok {
		return fmt.Errorf("tag payload is not an object")
	}

	groups := tagGroupEntries(m)
	if len(groups) == 0 {
		return fmt.Errorf("tag payload carries no tag groups")
	}

	for _, group := range groups {
		groupID := etl.PickInt64(group, "tagGroupId")
		if groupID == nil {
			continue
		}
		name := etl.PickString(group, "tagGroupName", "tagGroup", "tag_group")

		groupRowID, err := j.tags.UpsertGroup(ctx, *groupID, name)
		if err != nil {
			return err
		}

		if _, err := j.tags.UpsertForest(ctx, groupRowID, tagNodes(group["tags"])); err != nil {
			return err
		}
	}

	return nil
}

// tagGroupEntries gathers group objects from either payload form: a
// tagGroups array whose entries may be wrapped in tagGroup, or a single
// top-level tagGroup / bare tagGroupId object.
func tagGroupEntries(m map[string]any) []map[string]any {
	for _, key := range []string{"tagGroups", "tag_groups"} {
		entries, ok := etl.AsSlice(m[key])
		if !ok {
			continue
		}
		var out []map[string]any
		for _, raw := range entries {
			if group, ok := unwrapTagGroup(raw); ok {
				out = append(out, group)
			}
		}
		return out
	}

	for _, key := range []string{"tagGroup", "tag_group"} {
		if group, ok := etl.AsMap(m[key]); ok {
			return []map[string]any{group}
		}
	}
	if etl.PickInt64(m, "tagGroupId") != nil {
		return []map[string]any{m}
	}
	return nil
}

// unwrapTagGroup peels a {"tagGroup": {...}} wrapper; a bare group object
// passes through.
func unwrapTagGroup(raw any) (map[string]any, bool) {
	entry, ok := etl.AsMap(raw)
	if !ok {
		return nil, false
	}
	for _, key := range []string{"tagGroup", "tag_group"} {
		if group, ok := etl.AsMap(entry[key]); ok {
			return group, true
		}
	}
	return entry, true
}

// tagNodes flattens a payload tag list; entries may be wrapped {"tag": {...}}.
func tagNodes(v any) []postgres.TagNode {
	entries, _ := etl.AsSlice(v)

	var nodes []postgres.TagNode
	for _, raw := range entries {
		tag, ok := etl.AsMap(etl.UnwrapSingleKey(raw))
		if !ok {
			continue
		}
		id := etl.PickInt64(tag, "tagId")
		if id == nil {
			continue
		}
		node := postgres.TagNode{
			RakutenTagID: *id,
			Name:         etl.PickString(tag, "tagName"),
		}
		if parent := etl.PickInt64(tag, "parentTagId"); parent != nil {
			node.ParentTagID = *parent
		}
		nodes = append(nodes, node)
	}
	return nodes
}
