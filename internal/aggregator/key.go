package aggregator

import (
	"strings"
	"time"

	"github.com/Laisky/api-aggregator/library/source"
)

const (
	keyPrefix    = "agg"
	keySeparator = "::"
	allSources   = "ALL"

	sortByDate  = "date"
	sortByScore = "score"
	orderAsc    = "asc"
	orderDesc   = "desc"
)

// CacheKey derives the canonical cache key of q:
//
//	agg::<text>::<from>::<to>::<sortBy>::<order>::<SOURCES>
//
// Timestamps are RFC 3339 UTC or empty. Sort parameters are normalized to
// the values actually applied. Sources are the recognized names upper-cased,
// deduplicated and sorted, or ALL when none is recognized, so any spelling
// that selects the same sources maps to the same key.
func CacheKey(q Query) string {
	return strings.Join([]string{
		keyPrefix,
		q.Text,
		formatBound(q.From),
		formatBound(q.To),
		normalizeSortBy(q.SortBy),
		normalizeOrder(q.Order),
		canonicalSources(q.Sources),
	}, keySeparator)
}

func canonicalSources(raw []string) string {
	ids := source.ParseIDs(raw)
	if len(ids) == 0 {
		return allSources
	}

	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, strings.ToUpper(id.String()))
	}
	return strings.Join(names, ",")
}

func formatBound(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func normalizeSortBy(sortBy string) string {
	if strings.EqualFold(strings.TrimSpace(sortBy), sortByScore) {
		return sortByScore
	}
	return sortByDate
}

func normalizeOrder(order string) string {
	if isDescending(order) {
		return orderDesc
	}
	return orderAsc
}

func isDescending(order string) bool {
	return !strings.EqualFold(strings.TrimSpace(order), orderAsc)
}
