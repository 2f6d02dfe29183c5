package cmd

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	errors "github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
)

// configGetter retrieves raw configuration values by dotted key path.
type configGetter func(key string) any

// validateStartupConfig validates startup configuration from the shared config source.
// It returns an error when any configured value is malformed or violates constraints.
func validateStartupConfig() error {
	return validateStartupConfigWithGetter(func(key string) any {
		return gconfig.S.Get(key)
	})
}

// validateStartupConfigWithGetter validates startup configuration via a key-value getter.
// It accepts a value getter and returns nil when all configured values are valid.
func validateStartupConfigWithGetter(get configGetter) error {
	if get == nil {
		return errors.New("config getter is nil")
	}

	validationErrs := make([]string, 0)

	validateWebConfig(get, &validationErrs)
	validateAggregatorConfig(get, &validationErrs)
	validateLimitConfig(get, "settings.throttle.total", &validationErrs)
	validateTextSourceConfig(get, "settings.sources.github", &validationErrs)
	validateTextSourceConfig(get, "settings.sources.hackernews", &validationErrs)
	validateWeatherConfig(get, &validationErrs)

	if len(validationErrs) == 0 {
		return nil
	}

	return errors.Errorf("invalid configuration:\n - %s", strings.Join(validationErrs, "\n - "))
}

// validateWebConfig validates http server settings.
func validateWebConfig(get configGetter, errs *[]string) {
	validateOptionalIntMin(get, "settings.web.request_timeout_sec", 1, errs)
	validateOptionalBool(get, "settings.web.mcp.enabled", errs)
	validateOptionalStringList(get, "settings.web.cors.allowed_origins", errs)
}

// validateAggregatorConfig validates cache lifetimes and per-source timeout.
// The sliding lifetime may not outlive the absolute lifetime when both are set.
func validateAggregatorConfig(get configGetter, errs *[]string) {
	validateOptionalIntMin(get, "settings.aggregator.cache.absolute_ttl_sec", 0, errs)
	validateOptionalIntMin(get, "settings.aggregator.cache.sliding_ttl_sec", 0, errs)
	validateOptionalIntMin(get, "settings.aggregator.cache.sweep_interval_sec", 1, errs)
	validateOptionalIntMin(get, "settings.aggregator.source_timeout_sec", 0, errs)

	absRaw := get("settings.aggregator.cache.absolute_ttl_sec")
	slidingRaw := get("settings.aggregator.cache.sliding_ttl_sec")
	if absRaw == nil || slidingRaw == nil {
		return
	}
	absolute, absErr := parseStrictInt(absRaw)
	sliding, slidingErr := parseStrictInt(slidingRaw)
	if absErr != nil || slidingErr != nil {
		return
	}
	if absolute > 0 && sliding > absolute {
		appendValidationError(errs,
			"settings.aggregator.cache.sliding_ttl_sec must be <= settings.aggregator.cache.absolute_ttl_sec")
	}
}

// validateTextSourceConfig validates settings shared by the github and hackernews adapters.
func validateTextSourceConfig(get configGetter, prefix string, errs *[]string) {
	validateOptionalBool(get, prefix+".enabled", errs)
	validateOptionalURL(get, prefix+".endpoint", errs)
	validateOptionalStringNonEmpty(get, prefix+".default_query", errs)
	validateOptionalIntMin(get, prefix+".per_page", 1, errs)
	validateLimitConfig(get, prefix+".rate_limit", errs)
}

// validateWeatherConfig validates the open-meteo adapter settings.
func validateWeatherConfig(get configGetter, errs *[]string) {
	validateOptionalBool(get, "settings.sources.weather.enabled", errs)
	validateOptionalURL(get, "settings.sources.weather.endpoint", errs)
	validateOptionalFloatRange(get, "settings.sources.weather.default_lat", -90, 90, true, true, errs)
	validateOptionalFloatRange(get, "settings.sources.weather.default_lon", -180, 180, true, true, errs)
	validateLimitConfig(get, "settings.sources.weather.rate_limit", errs)
}

// validateLimitConfig validates a token bucket definition under prefix.
// A positive rate requires a burst of at least one second worth of tokens.
func validateLimitConfig(get configGetter, prefix string, errs *[]string) {
	rateKey := prefix + ".n_per_sec"
	burstKey := prefix + ".burst"
	validateOptionalFloatRange(get, rateKey, 0, math.MaxFloat64, true, true, errs)
	validateOptionalIntMin(get, burstKey, 0, errs)

	rateRaw := get(rateKey)
	if rateRaw == nil {
		return
	}
	rate, err := parseStrictFloat(rateRaw)
	if err != nil || rate <= 0 {
		return
	}

	burst := 0
	if burstRaw := get(burstKey); burstRaw != nil {
		if burst, err = parseStrictInt(burstRaw); err != nil {
			return
		}
	}
	if float64(burst) < rate {
		appendValidationError(errs, "%s must be >= %s", burstKey, rateKey)
	}
}

// validateOptionalStringList validates an optionally configured list of strings.
// Both yaml lists and comma separated strings are accepted.
func validateOptionalStringList(get configGetter, key string, errs *[]string) {
	switch v := get(key).(type) {
	case nil, string, []string:
	case []any:
		for i, item := range v {
			if _, ok := item.(string); !ok {
				appendValidationError(errs, "%s[%d] must be a string", key, i)
			}
		}
	default:
		appendValidationError(errs, "%s must be a list of strings", key)
	}
}

// validateOptionalBool validates an optionally configured boolean key.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalBool(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	if _, ok := parseStrictBool(raw); !ok {
		appendValidationError(errs, "%s must be a boolean", key)
	}
}

// validateOptionalIntMin validates an optionally configured integer key with a minimum constraint.
// It accepts a getter, the key, a minimum value, and an error collector pointer and appends validation errors.
func validateOptionalIntMin(get configGetter, key string, min int, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictInt(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be an integer", key)
		return
	}

	if value < min {
		appendValidationError(errs, "%s must be >= %d", key, min)
	}
}

// validateOptionalFloatRange validates an optionally configured float key against a numeric range.
// It accepts a getter, range bounds, inclusivity toggles, and an error collector pointer.
func validateOptionalFloatRange(get configGetter, key string, min float64, max float64, includeMin bool, includeMax bool, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictFloat(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a float", key)
		return
	}

	validMin := value > min
	if includeMin {
		validMin = value >= min
	}
	validMax := value < max
	if includeMax {
		validMax = value <= max
	}

	if !validMin || !validMax {
		appendValidationError(errs, "%s must be within range", key)
	}
}

// validateOptionalURL validates an optionally configured absolute URL key.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalURL(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string URL", key)
		return
	}

	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		appendValidationError(errs, "%s must not be empty", key)
		return
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		appendValidationError(errs, "%s must be a valid absolute URL", key)
	}
}

// validateOptionalStringNonEmpty validates an optionally configured non-empty string key.
// It accepts a getter, the key, and an error collector pointer and appends validation errors.
func validateOptionalStringNonEmpty(get configGetter, key string, errs *[]string) {
	raw := get(key)
	if raw == nil {
		return
	}

	value, parseErr := parseStrictString(raw)
	if parseErr != nil {
		appendValidationError(errs, "%s must be a string", key)
		return
	}

	if strings.TrimSpace(value) == "" {
		appendValidationError(errs, "%s must not be empty", key)
	}
}

// parseStrictBool parses a value as boolean using strict conversion rules.
// It accepts a raw value and returns the parsed boolean and whether parsing succeeded.
func parseStrictBool(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case int:
		return v != 0, true
	case int64:
		return v != 0, true
	case float64:
		if math.Trunc(v) != v {
			return false, false
		}
		return int64(v) != 0, true
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return false, false
		}
		switch strings.ToLower(trimmed) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		default:
			return false, false
		}
	default:
		return false, false
	}
}

// parseStrictInt parses a value as a strict integer.
// It accepts a raw value and returns the parsed int and an error when parsing fails.
func parseStrictInt(value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if math.Trunc(v) != v {
			return 0, errors.Errorf("%v is not an integer", v)
		}
		return int(v), nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, errors.New("empty integer string")
		}
		parsed, err := strconv.Atoi(trimmed)
		if err != nil {
			return 0, errors.Wrap(err, "atoi")
		}
		return parsed, nil
	default:
		return 0, errors.Errorf("unsupported int type %T", value)
	}
}

// parseStrictFloat parses a value as a strict floating-point number.
// It accepts a raw value and returns the parsed float64 and an error when parsing fails.
func parseStrictFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, errors.New("empty float string")
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, errors.Wrap(err, "parse float")
		}
		return parsed, nil
	default:
		return 0, errors.Errorf("unsupported float type %T", value)
	}
}

// parseStrictString parses a value as a strict string.
// It accepts a raw value and returns the parsed string and an error when parsing fails.
func parseStrictString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", errors.Errorf("unsupported string type %T", value)
	}
}

// appendValidationError appends a formatted validation error to the collector.
// It accepts an error slice pointer, a format string, and format arguments, and has no return value.
func appendValidationError(errs *[]string, format string, args ...any) {
	if errs == nil {
		return
	}
	*errs = append(*errs, fmt.Sprintf(format, args...))
}
