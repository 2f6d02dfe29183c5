// Package github searches public repositories on GitHub.
package github

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
	defaultEndpoint    = "https://api.github.com/"
	defaultQuery       = "golang"
	defaultPerPage     = 10
	httpRequestTimeout = 10 * time.Second
	userAgent          = "api-aggregator/1.0"
)

// Option configures the Client instance.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used to talk to GitHub.
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

// WithEndpoint overrides the API base URL, primarily for testing.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(endpoint); trimmed != "" {
			c.endpoint = trimmed
		}
	}
}

// WithToken sends the token as a bearer credential to lift anonymous rate limits.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
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

// WithPerPage limits how many repositories one call returns.
func WithPerPage(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.perPage = n
		}
	}
}

// Client queries the GitHub repository search API ordered by stars.
type Client struct {
	client       *http.Client
	endpoint     string
	token        string
	defaultQuery string
	perPage      int
	logger       logSDK.Logger
}

// New constructs a GitHub source.
func New(opts ...Option) *Client {
	c := &Client{
		client:       &http.Client{Timeout: httpRequestTimeout},
		endpoint:     defaultEndpoint,
		defaultQuery: defaultQuery,
		perPage:      defaultPerPage,
		logger:       log.Logger.Named("github"),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// ID returns source.GitHub.
func (c *Client) ID() source.ID {
	return source.GitHub
}

// Fetch searches repositories matching query.
func (c *Client) Fetch(ctx context.Context, query string) ([]source.Item, error) {
	q := strings.TrimSpace(query)
	if q == "" || strings.Contains(q, ",") {
		q = c.defaultQuery
	}

	base, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid github endpoint %q", c.endpoint)
	}
	target := base.JoinPath("search", "repositories")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "create github request")
	}

	params := req.URL.Query()
	params.Set("q", q)
	params.Set("sort", "stars")
	params.Set("order", "desc")
	params.Set("per_page", strconv.Itoa(c.perPage))
	req.URL.RawQuery = params.Encode()
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	var payload searchResponse
	logger := source.ContextLogger(ctx, c.logger, "github")
	if err := source.GetJSON(c.client, logger, req, &payload); err != nil {
		return nil, errors.Wrap(err, "search github repositories")
	}

	items := make([]source.Item, 0, len(payload.Items))
	for _, repo := range payload.Items {
		items = append(items, source.Item{
			Title:  repo.FullName,
			URL:    repo.HTMLURL,
			Source: source.GitHub,
			Date:   repo.CreatedAt,
			Score:  repo.Score,
		})
	}

	return items, nil
}

type searchResponse struct {
	Items []repository `json:"items"`
}

type repository struct {
	FullName  string     `json:"full_name"`
	HTMLURL   string     `json:"html_url"`
	Score     *float64   `json:"score"`
	CreatedAt *time.Time `json:"created_at"`
}
