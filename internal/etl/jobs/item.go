package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/etl"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/event"
	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/repository/postgres"
)

type itemFetcher interface {
	FetchItem(ctx context.Context, itemCode string) (any, error)
}

type rankedItemSource interface {
	FetchDistinctItemCodesSince(ctx context.Context, since time.Time) ([]string, error)
}

type itemStore interface {
	UpsertShop(ctx context.Context, shop postgres.ShopRecord) (string, error)
	UpsertItem(ctx context.Context, item postgres.ItemRecord) (string, error)
	SyncImages(ctx context.Context, itemID string, smallURLs, mediumURLs []string) error
	InsertMarketSnapshot(ctx context.Context, snap postgres.MarketSnapshot) error
	InsertReviewSnapshot(ctx context.Context, snap postgres.ReviewSnapshot) error
}

type tagLinker interface {
	ReplaceItemTags(ctx context.Context, itemID string, rakutenTagIDs []int64) (int64, error)
}

// ItemJob refreshes item details for every item that appeared in a recent
// ranking.
type ItemJob struct {
	client   itemFetcher
	ranked   rankedItemSource
	items    itemStore
	itemTags tagLinker
	pipeline *etl.Pipeline
	events   *event.Producer
	logger   *slog.Logger
	policy   string

	// collectedAt stamps every snapshot of one run with the run start time.
	collectedAt time.Time
}

// NewItemJob wires the item ingest. policy selects which ranked items to
// refresh (see etl.SinceForPolicy).
func NewItemJob(client itemFetcher, ranked rankedItemSource, items itemStore, itemTags tagLinker, pipeline *etl.Pipeline, events *event.Producer, logger *slog.Logger, policy string) *ItemJob {
	return &ItemJob{
		client:   client,
		ranked:   ranked,
		items:    items,
		itemTags: itemTags,
		pipeline: pipeline,
		events:   events,
		logger:   logger,
		policy:   policy,
	}
}

// Run fetches and applies the search payload of each recently ranked item.
func (j *ItemJob) Run(ctx context.Context, run etl.Run) (etl.Summary, error) {
	since, err := etl.SinceForPolicy(j.policy, run.StartedAt)
	if err != nil {
		return etl.Summary{}, err
	}

	codes, err := j.ranked.FetchDistinctItemCodesSince(ctx, since)
	if err != nil {
		return etl.Summary{}, err
	}

	targets := make([]etl.Target, 0, len(codes))
	for _, code := range codes {
		c := code
		targets = append(targets, etl.Target{
			Entity:   "item",
			SourceID: c,
			Fetch: func(ctx context.Context) (any, error) {
				return j.client.FetchItem(ctx, c)
			},
		})
	}

	j.collectedAt = run.StartedAt
	summary := j.pipeline.Run(ctx, run, targets, j.apply)
	publishCompletion(ctx, j.events, j.logger, run, summary)
	return summary, nil
}

// apply projects one item search payload: shop, master row, images, the two
// snapshots, and the tag links. collected_at is the run start so one run
// yields one snapshot per item.
func (j *ItemJob) apply(ctx context.Context, target etl.Target, payload any) error {
	m, ok := etl.AsMap(payload)
	if !ok {
		return fmt.Errorf("item payload is not an object")
	}

	item, ok := itemEntry(m)
	if !ok {
		return fmt.Errorf("item payload carries no items")
	}

	shopCode := etl.PickString(item, "shopCode")
	if shopCode == nil {
		return fmt.Errorf("item payload missing shopCode")
	}
	shopID, err := j.items.UpsertShop(ctx, postgres.ShopRecord{
		RakutenShopCode: *shopCode,
		ShopName:        etl.PickString(item, "shopName"),
		ShopURL:         etl.PickString(item, "shopUrl"),
	})
	if err != nil {
		return err
	}

	tagIDs := etl.Int64List(item["tagIds"])

	itemID, err := j.items.UpsertItem(ctx, postgres.ItemRecord{
		RakutenItemCode: target.SourceID,
		ItemName:        etl.PickString(item, "itemName"),
		ItemURL:         etl.PickString(item, "itemUrl"),
		AffiliateURL:    etl.PickString(item, "affiliateUrl"),
		Catchcopy:       etl.PickString(item, "catchcopy"),
		ItemCaption:     etl.PickString(item, "itemCaption"),
		ImageFlag:       etl.PickInt64(item, "imageFlag"),
		ShopID:          shopID,
		RakutenGenreID:  etl.PickInt64(item, "genreId"),
		CreditCardFlag:  etl.PickInt64(item, "creditCardFlag"),
		RakutenTagIDs:   tagIDs,
	})
	if err != nil {
		return err
	}

	small := etl.StringList(item["smallImageUrls"], "imageUrl")
	medium := etl.StringList(item["mediumImageUrls"], "imageUrl")
	if err := j.items.SyncImages(ctx, itemID, small, medium); err != nil {
		return err
	}

	collectedAt := j.collectedAt
	if collectedAt.IsZero() {
		collectedAt = time.Now().UTC()
	}
	err = j.items.InsertMarketSnapshot(ctx, postgres.MarketSnapshot{
		ItemID:             itemID,
		CollectedAt:        collectedAt,
		ItemPrice:          etl.PickInt64(item, "itemPrice"),
		TaxFlag:            etl.PickInt64(item, "taxFlag"),
		PostageFlag:        etl.PickInt64(item, "postageFlag"),
		GiftFlag:           etl.PickInt64(item, "giftFlag"),
		Availability:       etl.PickInt64(item, "availability"),
		AsurakuFlag:        etl.PickInt64(item, "asurakuFlag"),
		AsurakuClosingTime: etl.PickString(item, "asurakuClosingTime"),
		AsurakuArea:        etl.PickString(item, "asurakuArea"),
		StartTime:          etl.PickString(item, "startTime"),
		EndTime:            etl.PickString(item, "endTime"),
		PointRate:          etl.PickFloat64(item, "pointRate"),
		PointRateStartTime: etl.PickString(item, "pointRateStartTime"),
		PointRateEndTime:   etl.PickString(item, "pointRateEndTime"),
	})
	if err != nil {
		return err
	}

	err = j.items.InsertReviewSnapshot(ctx, postgres.ReviewSnapshot{
		ItemID:        itemID,
		CollectedAt:   collectedAt,
		ReviewCount:   etl.PickInt64(item, "reviewCount"),
		ReviewAverage: etl.PickFloat64(item, "reviewAverage"),
	})
	if err != nil {
		return err
	}

	if _, err := j.itemTags.ReplaceItemTags(ctx, itemID, tagIDs); err != nil {
		return err
	}

	return nil
}

// itemEntry locates the item object: bare payloads carry itemCode at the top
// level, search payloads wrap the first element of an items array.
func itemEntry(m map[string]any) (map[string]any, bool) {
	if _, ok := m["itemCode"]; ok {
		return m, true
	}
	items := etl.ItemsList(m)
	if len(items) == 0 {
		return nil, false
	}
	return etl.AsMap(etl.UnwrapSingleKey(items[0]))
}
