package aggregator

import (
	"math"
	"sort"
	"time"

	"github.com/Laisky/api-aggregator/library/source"
)

// filterByDate keeps items dated within [from, to]. Undated items survive
// only when neither bound is set.
func filterByDate(items []source.Item, from, to *time.Time) []source.Item {
	if from == nil && to == nil {
		return items
	}

	kept := make([]source.Item, 0, len(items))
	for _, item := range items {
		if item.Date == nil {
			continue
		}
		if from != nil && item.Date.Before(*from) {
			continue
		}
		if to != nil && item.Date.After(*to) {
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

// sortItems orders items in place, keeping merge order for equal keys.
// Missing values rank lowest in both directions.
func sortItems(items []source.Item, sortBy string, desc bool) {
	var less func(a, b source.Item) bool
	switch sortBy {
	case sortByScore:
		less = func(a, b source.Item) bool { return scoreKey(a) < scoreKey(b) }
	default:
		less = func(a, b source.Item) bool { return dateKey(a).Before(dateKey(b)) }
	}

	sort.SliceStable(items, func(i, j int) bool {
		if desc {
			return less(items[j], items[i])
		}
		return less(items[i], items[j])
	})
}

func scoreKey(item source.Item) float64 {
	if item.Score == nil || math.IsNaN(*item.Score) {
		return math.Inf(-1)
	}
	return *item.Score
}

// minTime is earlier than any timestamp an upstream can report.
var minTime = time.Unix(-1<<62, 0)

func dateKey(item source.Item) time.Time {
	if item.Date == nil {
		return minTime
	}
	return *item.Date
}
