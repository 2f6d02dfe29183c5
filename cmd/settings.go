package cmd

import (
	"strings"
	"time"

	gconfig "github.com/Laisky/go-config/v2"

	"github.com/Laisky/api-aggregator/library/throttle"
)

// serviceSettings is the sanitized runtime configuration of the api command.
type serviceSettings struct {
	RequestTimeout     time.Duration
	AllowedOrigins     []string
	MCPEnabled         bool
	CacheAbsoluteTTL   time.Duration
	CacheSlidingTTL    time.Duration
	CacheSweepInterval time.Duration
	SourceTimeout      time.Duration
	TotalLimit         throttle.Limit

	GitHub     textSourceSettings
	HackerNews textSourceSettings
	Weather    weatherSettings
}

type textSourceSettings struct {
	Enabled      bool
	Endpoint     string
	Token        string
	DefaultQuery string
	PerPage      int
	Limit        throttle.Limit
}

type weatherSettings struct {
	Enabled    bool
	Endpoint   string
	DefaultLat float64
	DefaultLon float64
	Limit      throttle.Limit
}

// loadServiceSettings reads the shared configuration.
func loadServiceSettings() serviceSettings {
	return loadServiceSettingsWithGetter(func(key string) any {
		return gconfig.S.Get(key)
	})
}

// loadServiceSettingsWithGetter reads settings through get, falling back to
// defaults for absent or malformed values.
func loadServiceSettingsWithGetter(get configGetter) serviceSettings {
	cfg := serviceSettings{
		RequestTimeout:     secondsFromConfig(get, "settings.web.request_timeout_sec", 30),
		AllowedOrigins:     stringsFromConfig(get, "settings.web.cors.allowed_origins"),
		MCPEnabled:         boolFromConfig(get, "settings.web.mcp.enabled", true),
		CacheAbsoluteTTL:   secondsFromConfig(get, "settings.aggregator.cache.absolute_ttl_sec", 30),
		CacheSlidingTTL:    secondsFromConfig(get, "settings.aggregator.cache.sliding_ttl_sec", 15),
		CacheSweepInterval: secondsFromConfig(get, "settings.aggregator.cache.sweep_interval_sec", 60),
		SourceTimeout:      secondsFromConfig(get, "settings.aggregator.source_timeout_sec", 10),
		TotalLimit:         limitFromConfig(get, "settings.throttle.total"),

		GitHub:     textSourceFromConfig(get, "settings.sources.github"),
		HackerNews: textSourceFromConfig(get, "settings.sources.hackernews"),
		Weather: weatherSettings{
			Enabled:    boolFromConfig(get, "settings.sources.weather.enabled", true),
			Endpoint:   stringFromConfig(get, "settings.sources.weather.endpoint"),
			DefaultLat: floatFromConfig(get, "settings.sources.weather.default_lat", 37.98),
			DefaultLon: floatFromConfig(get, "settings.sources.weather.default_lon", 23.72),
			Limit:      limitFromConfig(get, "settings.sources.weather.rate_limit"),
		},
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.CacheSweepInterval <= 0 {
		cfg.CacheSweepInterval = time.Minute
	}
	if cfg.SourceTimeout < 0 {
		cfg.SourceTimeout = 0
	}

	return cfg
}

func textSourceFromConfig(get configGetter, prefix string) textSourceSettings {
	return textSourceSettings{
		Enabled:      boolFromConfig(get, prefix+".enabled", true),
		Endpoint:     stringFromConfig(get, prefix+".endpoint"),
		Token:        stringFromConfig(get, prefix+".token"),
		DefaultQuery: stringFromConfig(get, prefix+".default_query"),
		PerPage:      intFromConfig(get, prefix+".per_page", 10),
		Limit:        limitFromConfig(get, prefix+".rate_limit"),
	}
}

func limitFromConfig(get configGetter, prefix string) throttle.Limit {
	return throttle.Limit{
		NPerSec: floatFromConfig(get, prefix+".n_per_sec", 0),
		Burst:   intFromConfig(get, prefix+".burst", 0),
	}
}

func secondsFromConfig(get configGetter, key string, def int) time.Duration {
	return time.Duration(intFromConfig(get, key, def)) * time.Second
}

func intFromConfig(get configGetter, key string, def int) int {
	raw := get(key)
	if raw == nil {
		return def
	}
	value, err := parseStrictInt(raw)
	if err != nil {
		return def
	}
	return value
}

func floatFromConfig(get configGetter, key string, def float64) float64 {
	raw := get(key)
	if raw == nil {
		return def
	}
	value, err := parseStrictFloat(raw)
	if err != nil {
		return def
	}
	return value
}

func boolFromConfig(get configGetter, key string, def bool) bool {
	raw := get(key)
	if raw == nil {
		return def
	}
	value, ok := parseStrictBool(raw)
	if !ok {
		return def
	}
	return value
}

func stringFromConfig(get configGetter, key string) string {
	value, err := parseStrictString(get(key))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}

// stringsFromConfig accepts a yaml list or a comma separated string.
func stringsFromConfig(get configGetter, key string) []string {
	var raw []string
	switch v := get(key).(type) {
	case string:
		raw = strings.Split(v, ",")
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			if text, ok := item.(string); ok {
				raw = append(raw, text)
			}
		}
	}

	values := make([]string, 0, len(raw))
	for _, item := range raw {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
