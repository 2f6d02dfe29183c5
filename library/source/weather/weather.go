// Package weather reports current conditions from the Open-Meteo forecast API.
package weather

import (
	"context"
	"fmt"
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
	defaultEndpoint    = "https://api.open-meteo.com/"
	httpRequestTimeout = 10 * time.Second
	docsLink           = "https://open-meteo.com/en/docs"

	// Athens
	defaultLatitude  = 37.98
	defaultLongitude = 23.72

	// open-meteo reports local ISO-8601 timestamps without seconds or offset.
	openMeteoTimeLayout = "2006-01-02T15:04"
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

// WithDefaultLocation sets the coordinates used when the query is not a valid "lat,lon" pair.
// Out of range coordinates are ignored.
func WithDefaultLocation(lat, lon float64) Option {
	return func(c *Client) {
		if validCoordinates(lat, lon) {
			c.defaultLat, c.defaultLon = lat, lon
		}
	}
}

// Client is the weather source.
type Client struct {
	client     *http.Client
	endpoint   string
	defaultLat float64
	defaultLon float64
	logger     logSDK.Logger
}

// New constructs a weather source.
func New(opts ...Option) *Client {
	c := &Client{
		client:     &http.Client{Timeout: httpRequestTimeout},
		endpoint:   defaultEndpoint,
		defaultLat: defaultLatitude,
		defaultLon: defaultLongitude,
		logger:     log.Logger.Named("weather"),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// ID returns source.Weather.
func (c *Client) ID() source.ID {
	return source.Weather
}

// Fetch returns a single item describing the current weather at the
// coordinates in query, or at the default location when query is not a
// "lat,lon" pair. It returns no items when the upstream omits current weather.
func (c *Client) Fetch(ctx context.Context, query string) ([]source.Item, error) {
	lat, lon := c.parseLocation(query)

	base, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid weather endpoint %q", c.endpoint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		base.JoinPath("v1", "forecast").String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "create weather request")
	}

	params := req.URL.Query()
	params.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("current_weather", "true")
	req.URL.RawQuery = params.Encode()
	req.Header.Set("Accept", "application/json")

	var payload forecastResponse
	logger := source.ContextLogger(ctx, c.logger, "weather")
	if err := source.GetJSON(c.client, logger, req, &payload); err != nil {
		return nil, errors.Wrap(err, "get current weather")
	}

	if payload.CurrentWeather == nil {
		return []source.Item{}, nil
	}

	current := payload.CurrentWeather
	observedAt, err := parseObservationTime(current.Time, payload.UTCOffsetSeconds)
	if err != nil {
		return nil, errors.Wrap(err, "parse weather observation time")
	}

	temperature := current.Temperature
	return []source.Item{{
		Title: fmt.Sprintf("Temp %s°C, Wind %s km/h",
			strconv.FormatFloat(current.Temperature, 'f', -1, 64),
			strconv.FormatFloat(current.WindSpeed, 'f', -1, 64)),
		URL:    docsLink,
		Source: source.Weather,
		Date:   &observedAt,
		Score:  &temperature,
	}}, nil
}

func (c *Client) parseLocation(query string) (float64, float64) {
	parts := strings.Split(query, ",")
	if len(parts) != 2 {
		return c.defaultLat, c.defaultLon
	}

	lat, latErr := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, lonErr := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if latErr != nil || lonErr != nil || !validCoordinates(lat, lon) {
		return c.defaultLat, c.defaultLon
	}

	return lat, lon
}

func validCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// parseObservationTime accepts the open-meteo minute-precision local time,
// shifted by the reported UTC offset, or a full RFC 3339 timestamp.
func parseObservationTime(raw string, offsetSeconds int) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return ts, nil
	}

	ts, err := time.ParseInLocation(openMeteoTimeLayout, trimmed, time.FixedZone("", offsetSeconds))
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "unsupported time %q", raw)
	}
	return ts, nil
}

type forecastResponse struct {
	UTCOffsetSeconds int             `json:"utc_offset_seconds"`
	CurrentWeather   *currentWeather `json:"current_weather"`
}

type currentWeather struct {
	Temperature float64 `json:"temperature"`
	WindSpeed   float64 `json:"windspeed"`
	Time        string  `json:"time"`
}
