// Package hackernews searches Hacker News stories through the Algolia API.
package hackernews

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"

	"github.com/Laisky/api-aggregator/library/log"
	"github.com/Laisky/api-aggregator/library/source"
)

const (
	defaultEndpoint    = "https://hn.algolia.com/"
	defaultQuery       = "technology"
	defaultHitsPerPage = 10
	httpRequestTimeout = 10 * time.Second

	untitled     = "(no title)"
	fallbackLink = "https://news.ycombinator.com/"
)

// Option configures the Client instance.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithLogger overrides the logger used when no contextual logger is present.
func WithLogger(logger logSDK.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithEndpoint overrides the API base URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(endpoint); trimmed != "" {
			c.endpoint = trimmed
		}
	}
}

// WithDefaultQuery sets the term searched when the query is empty or comma-bearing.
func WithDefaultQuery(query string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(query); trimmed != "" {
			c.defaultQuery = trimmed
		}
	}
}

// WithHitsPerPage limits how many stories one call returns.
func WithHitsPerPage(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.hitsPerPage = n
		}
	}
}

// Client is the Hacker News source.
type Client struct {
	client       *http.Client
	endpoint     string
	defaultQuery string
	hitsPerPage  int
	logger       logSDK.Logger
}

// New constructs a Hacker News source.
func New(opts ...Option) *Client {
	c := &Client{
		client:       &http.Client{Timeout: httpRequestTimeout},
		endpoint:     defaultEndpoint,
		defaultQuery: defaultQuery,
		hitsPerPage:  defaultHitsPerPage,
		logger:       log.Logger.Named("hackernews"),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// ID returns source.HackerNews.
func (c *Client) ID() source.ID {
	return source.HackerNews
}

// Fetch searches stories matching query.
// Hits without a title or link get placeholder values instead of being dropped.
func (c *Client) Fetch(ctx context.Context, query string) ([]source.Item, error) {
	q := strings.TrimSpace(query)
	if q == "" || strings.Contains(q, ",") {
		q = c.defaultQuery
	}

	base, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid hackernews endpoint %q", c.endpoint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		base.JoinPath("api", "v1", "search").String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "create hackernews request")
	}

	params := req.URL.Query()
	params.Set("query", q)
	params.Set("hitsPerPage", strconv.Itoa(c.hitsPerPage))
	req.URL.RawQuery = params.Encode()
	req.Header.Set("Accept", "application/json")

	var payload searchResponse
	logger := source.ContextLogger(ctx, c.logger, "hackernews")
	if err := source.GetJSON(c.client, logger, req, &payload); err != nil {
		return nil, errors.Wrap(err, "search hackernews")
	}

	items := make([]source.Item, 0, len(payload.Hits))
	for _, hit := range payload.Hits {
		item := source.Item{
			Title:  untitled,
			URL:    fallbackLink,
			Source: source.HackerNews,
			Score:  hit.Points,
		}
		if hit.Title != nil {
			item.Title = *hit.Title
		}
		if hit.URL != nil && strings.TrimSpace(*hit.URL) != "" {
			item.URL = *hit.URL
		}
		if hit.CreatedAtI != nil {
			date := time.Unix(*hit.CreatedAtI, 0).UTC()
			item.Date = &date
		}

		items = append(items, item)
	}

	return items, nil
}

type searchResponse struct {
	Hits []hit `json:"hits"`
}

type hit struct {
	Title      *string  `json:"title"`
	URL        *string  `json:"url"`
	CreatedAtI *int64   `json:"created_at_i"`
	Points     *float64 `json:"points"`
}
