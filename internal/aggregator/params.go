package aggregator

import (
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
)

const dateLayout = "2006-01-02"

// ParseTimeBound parses an RFC 3339 timestamp or a YYYY-MM-DD date taken as
// UTC midnight. An empty value yields nil.
func ParseTimeBound(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return &ts, nil
	}

	ts, err := time.ParseInLocation(dateLayout, trimmed, time.UTC)
	if err != nil {
		return nil, errors.Errorf("invalid time %q, want RFC 3339 or YYYY-MM-DD", value)
	}
	return &ts, nil
}
