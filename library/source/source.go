// Package source defines the contract shared by every upstream data source
// and the normalized item shape they produce.
package source

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
)

// ID identifies one upstream data source.
type ID int

const (
	// GitHub is the code-hosting repository search.
	GitHub ID = iota + 1
	// Weather is the current-weather forecast API.
	Weather
	// HackerNews is the news/discussion search API.
	HackerNews
)

var idNames = map[ID]string{
	GitHub:     "GitHub",
	Weather:    "Weather",
	HackerNews: "HackerNews",
}

// All returns every known ID in declaration order.
func All() []ID {
	return []ID{GitHub, Weather, HackerNews}
}

// String returns the display name of the source, e.g. "HackerNews".
func (id ID) String() string {
	if name, ok := idNames[id]; ok {
		return name
	}
	return "Unknown"
}

// MarshalText renders the ID by its display name.
func (id ID) MarshalText() ([]byte, error) {
	if _, ok := idNames[id]; !ok {
		return nil, errors.Errorf("unknown source id %d", int(id))
	}
	return []byte(id.String()), nil
}

// UnmarshalText parses a display name case-insensitively.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, ok := ParseID(string(text))
	if !ok {
		return errors.Errorf("unknown source %q", string(text))
	}
	*id = parsed
	return nil
}

// ParseID maps a token to an ID ignoring case and surrounding whitespace.
func ParseID(token string) (ID, bool) {
	trimmed := strings.TrimSpace(token)
	for id, name := range idNames {
		if strings.EqualFold(name, trimmed) {
			return id, true
		}
	}
	return 0, false
}

// SplitTokens flattens repeated and comma-joined source parameters into
// trimmed, non-empty tokens.
func SplitTokens(raw []string) []string {
	tokens := make([]string, 0, len(raw))
	for _, value := range raw {
		for _, token := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(token); trimmed != "" {
				tokens = append(tokens, trimmed)
			}
		}
	}
	return tokens
}

// ParseIDs returns the distinct recognized IDs named by raw, sorted by
// their upper-cased display name. Unrecognized tokens are dropped.
func ParseIDs(raw []string) []ID {
	seen := map[ID]struct{}{}
	ids := make([]ID, 0, len(idNames))
	for _, token := range SplitTokens(raw) {
		id, ok := ParseID(token)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		return strings.ToUpper(ids[i].String()) < strings.ToUpper(ids[j].String())
	})
	return ids
}

// Item is one normalized result produced by a source.
// Date and Score are optional.
type Item struct {
	Title  string     `json:"title"`
	URL    string     `json:"url"`
	Source ID         `json:"source"`
	Date   *time.Time `json:"date,omitempty"`
	Score  *float64   `json:"score,omitempty"`
}

// Source fetches items for a query from one upstream API.
type Source interface {
	// ID returns the fixed identity of the source.
	ID() ID
	// Fetch runs query against the upstream and returns the normalized items.
	// Each source decides how to interpret an empty or malformed query.
	Fetch(ctx context.Context, query string) ([]Item, error)
}

// TruncateForLog limits the payload logged for debugging and reports whether truncation occurred.
func TruncateForLog(body []byte, limit int) (string, bool) {
	if len(body) <= limit {
		return string(body), false
	}
	return string(body[:limit]), true
}
