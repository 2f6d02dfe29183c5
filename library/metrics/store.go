// Package metrics tracks per-source call latency.
//
// Every source invocation is recorded exactly once into a Store, which keeps
// monotonic counters per source: total calls, cumulative elapsed
// milliseconds, and one of three latency buckets.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Laisky/api-aggregator/library/source"
)

const (
	// FastThresholdMs is the exclusive upper bound of the fast bucket.
	FastThresholdMs = 100
	// SlowThresholdMs is the inclusive upper bound of the average bucket.
	SlowThresholdMs = 200
)

// Bucket classifies one call by its latency.
type Bucket string

const (
	BucketFast    Bucket = "fast"
	BucketAverage Bucket = "average"
	BucketSlow    Bucket = "slow"
)

// Classify returns the bucket for elapsedMs: below 100 is fast,
// 100 to 200 inclusive is average, above 200 is slow.
func Classify(elapsedMs int64) Bucket {
	switch {
	case elapsedMs < FastThresholdMs:
		return BucketFast
	case elapsedMs <= SlowThresholdMs:
		return BucketAverage
	default:
		return BucketSlow
	}
}

// Stats is a point-in-time view of one source's counters.
type Stats struct {
	Source        source.ID `json:"source"`
	TotalRequests int64     `json:"totalRequests"`
	AvgMs         float64   `json:"avgMs"`
	FastCount     int64     `json:"fastCount"`
	AverageCount  int64     `json:"averageCount"`
	SlowCount     int64     `json:"slowCount"`
	// TotalMs is the cumulative elapsed time, kept for exporters.
	TotalMs int64 `json:"-"`
}

type counter struct {
	total   atomic.Int64
	sumMs   atomic.Int64
	fast    atomic.Int64
	average atomic.Int64
	slow    atomic.Int64
}

// Store is a concurrency-safe table of per-source counters.
// Counters are created on first use and never reset.
type Store struct {
	mu       sync.RWMutex
	counters map[source.ID]*counter
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{counters: make(map[source.ID]*counter)}
}

// Record adds one call of elapsedMs to src. Negative durations count as zero.
func (s *Store) Record(src source.ID, elapsedMs int64) {
	if elapsedMs < 0 {
		elapsedMs = 0
	}

	c := s.counterFor(src)
	c.total.Add(1)
	c.sumMs.Add(elapsedMs)
	switch Classify(elapsedMs) {
	case BucketFast:
		c.fast.Add(1)
	case BucketAverage:
		c.average.Add(1)
	default:
		c.slow.Add(1)
	}
}

func (s *Store) counterFor(src source.ID) *counter {
	s.mu.RLock()
	c, ok := s.counters[src]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok = s.counters[src]; !ok {
		c = new(counter)
		s.counters[src] = c
	}
	return c
}

// Snapshot returns one entry per source that has been recorded, ordered by source ID.
func (s *Store) Snapshot() []Stats {
	s.mu.RLock()
	ids := make([]source.ID, 0, len(s.counters))
	counters := make(map[source.ID]*counter, len(s.counters))
	for id, c := range s.counters {
		ids = append(ids, id)
		counters[id] = c
	}
	s.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	snapshot := make([]Stats, 0, len(ids))
	for _, id := range ids {
		c := counters[id]
		stat := Stats{
			Source:        id,
			TotalRequests: c.total.Load(),
			TotalMs:       c.sumMs.Load(),
			FastCount:     c.fast.Load(),
			AverageCount:  c.average.Load(),
			SlowCount:     c.slow.Load(),
		}
		if stat.TotalRequests > 0 {
			stat.AvgMs = float64(stat.TotalMs) / float64(stat.TotalRequests)
		}
		snapshot = append(snapshot, stat)
	}

	return snapshot
}
