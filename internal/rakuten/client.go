// Package rakuten is the typed facade over the Ichiba commerce API. All
// calls go through the shared retrying transport; responses are returned as
// decoded JSON trees ready for canonicalization.
package rakuten

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ryo-chan-k6/GiftRecommendAPP-MVP-CYCLE-2/internal/canonical"
)

const defaultBaseURL = "https://app.rakuten.co.jp/services/api"

const (
	rankingPath = "/IchibaItem/Ranking/20220601"
	itemPath    = "/IchibaItem/Search/20220601"
	genrePath   = "/IchibaGenre/Search/20140222"
	tagPath     = "/IchibaTag/Search/20140222"
)

// Getter is the transport surface the client needs. Both httpclient.Client
// and httpclient.CircuitBreakerClient satisfy it.
type Getter interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// Config holds the upstream API credentials.
type Config struct {
	ApplicationID string
	AffiliateID   string
	BaseURL       string
}

// Client fetches ranking, item, genre, and tag payloads.
type Client struct {
	http Getter
	cfg  Config
}

// NewClient builds a Client over the given transport.
func NewClient(cfg Config, transport Getter) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Client{http: transport, cfg: cfg}
}

// FetchRanking returns the ranking payload for one genre.
func (c *Client) FetchRanking(ctx context.Context, genreID int64) (any, error) {
	return c.getJSON(ctx, rankingPath, url.Values{
		"genreId": {strconv.FormatInt(genreID, 10)},
	})
}

// FetchItem returns the search payload for one item code.
func (c *Client) FetchItem(ctx context.Context, itemCode string) (any, error) {
	return c.getJSON(ctx, itemPath, url.Values{
		"itemCode": {itemCode},
		"hits":     {"1"},
		"page":     {"1"},
	})
}

// FetchGenre returns the genre payload including its parent chain.
func (c *Client) FetchGenre(ctx context.Context, genreID int64) (any, error) {
	return c.getJSON(ctx, genrePath, url.Values{
		"genreId": {strconv.FormatInt(genreID, 10)},
	})
}

// FetchTag returns the tag-group payload for one tag.
func (c *Client) FetchTag(ctx context.Context, tagID int64) (any, error) {
	return c.getJSON(ctx, tagPath, url.Values{
		"tagId": {strconv.FormatInt(tagID, 10)},
	})
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values) (any, error) {
	params.Set("applicationId", c.cfg.ApplicationID)
	params.Set("format", "json")
	params.Set("formatVersion", "2")
	if c.cfg.AffiliateID != "" {
		params.Set("affiliateId", c.cfg.AffiliateID)
	}

	resp, err := c.http.Get(ctx, c.cfg.BaseURL+path+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("rakuten %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("rakuten %s: read body: %w", path, err)
	}

	payload, err := canonical.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("rakuten %s: decode payload: %w", path, err)
	}
	return payload, nil
}
