package aggregator

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"

	"github.com/Laisky/api-aggregator/library/metrics"
	"github.com/Laisky/api-aggregator/library/source"
)

type stubSource struct {
	id    source.ID
	items []source.Item
	err   error
	panic any
	block bool
	calls atomic.Int32
}

func (s *stubSource) ID() source.ID {
	return s.id
}

func (s *stubSource) Fetch(ctx context.Context, _ string) ([]source.Item, error) {
	s.calls.Add(1)
	if s.panic != nil {
		panic(s.panic)
	}
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.items, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func day(year int, month time.Month, d int) *time.Time {
	t := time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func score(v float64) *float64 {
	return &v
}

func titles(items []source.Item) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Title)
	}
	return out
}

func newTestEngine(t *testing.T, sources ...source.Source) (*Engine, *metrics.Store) {
	t.Helper()
	store := metrics.NewStore()
	engine, err := NewEngine(sources, store)
	require.NoError(t, err)
	return engine, store
}

func totalRequests(store *metrics.Store) int64 {
	var total int64
	for _, stat := range store.Snapshot() {
		total += stat.TotalRequests
	}
	return total
}

func TestNewEngineValidates(t *testing.T) {
	_, err := NewEngine([]source.Source{&stubSource{id: source.GitHub}}, nil)
	require.Error(t, err)

	_, err = NewEngine(nil, metrics.NewStore())
	require.Error(t, err)

	_, err = NewEngine([]source.Source{
		&stubSource{id: source.GitHub},
		&stubSource{id: source.GitHub},
	}, metrics.NewStore())
	require.Error(t, err)
	require.Contains(t, err.Error(), "twice")
}

func TestAggregateDefaultsToDateDescending(t *testing.T) {
	engine, _ := newTestEngine(t, &stubSource{
		id: source.GitHub,
		items: []source.Item{
			{Title: "old", Source: source.GitHub, Date: day(2025, 1, 1), Score: score(10)},
			{Title: "new", Source: source.GitHub, Date: day(2025, 6, 1), Score: score(20)},
		},
	})

	result, err := engine.Aggregate(context.Background(), Query{})
	require.NoError(t, err)
	require.Equal(t, []string{"new", "old"}, titles(result.Items))
	require.Empty(t, result.Errors)
	require.NotNil(t, result.Errors)
}

func TestAggregateSortsByScoreAscending(t *testing.T) {
	engine, _ := newTestEngine(t, &stubSource{
		id: source.HackerNews,
		items: []source.Item{
			{Title: "fifty", Score: score(50)},
			{Title: "ten", Score: score(10)},
		},
	})

	result, err := engine.Aggregate(context.Background(), Query{SortBy: "score", Order: "ASC"})
	require.NoError(t, err)
	require.Equal(t, []string{"ten", "fifty"}, titles(result.Items))
}

func TestAggregateMissingValuesSortLowest(t *testing.T) {
	items := []source.Item{
		{Title: "none"},
		{Title: "five", Score: score(5), Date: day(2025, 5, 1)},
		{Title: "neg", Score: score(-3), Date: day(1990, 1, 1)},
	}

	cases := []struct {
		sortBy, order string
		expected      []string
	}{
		{"score", "desc", []string{"five", "neg", "none"}},
		{"score", "asc", []string{"none", "neg", "five"}},
		{"date", "desc", []string{"five", "neg", "none"}},
		{"date", "asc", []string{"none", "neg", "five"}},
		{"bogus", "sideways", []string{"five", "neg", "none"}},
	}

	for _, tc := range cases {
		engine, _ := newTestEngine(t, &stubSource{id: source.GitHub, items: items})
		result, err := engine.Aggregate(context.Background(), Query{SortBy: tc.sortBy, Order: tc.order})
		require.NoError(t, err)
		require.Equal(t, tc.expected, titles(result.Items), "%s %s", tc.sortBy, tc.order)
	}
}

func TestAggregateSortIsStable(t *testing.T) {
	same := day(2025, 1, 1)
	engine, _ := newTestEngine(t,
		&stubSource{id: source.GitHub, items: []source.Item{{Title: "g1", Date: same}, {Title: "g2", Date: same}}},
		&stubSource{id: source.Weather, items: []source.Item{{Title: "w1", Date: same}}},
		&stubSource{id: source.HackerNews, items: []source.Item{{Title: "h1", Date: same}}},
	)

	for _, order := range []string{"asc", "desc"} {
		result, err := engine.Aggregate(context.Background(), Query{Order: order})
		require.NoError(t, err)
		require.Equal(t, []string{"g1", "g2", "w1", "h1"}, titles(result.Items))
	}
}

func TestAggregateFiltersByDateRange(t *testing.T) {
	engine, _ := newTestEngine(t, &stubSource{
		id: source.GitHub,
		items: []source.Item{
			{Title: "2024", Date: day(2024, 1, 1)},
			{Title: "2025", Date: day(2025, 5, 1)},
			{Title: "2026", Date: day(2026, 1, 1)},
			{Title: "undated"},
		},
	})

	result, err := engine.Aggregate(context.Background(), Query{From: day(2025, 1, 1), To: day(2025, 12, 31)})
	require.NoError(t, err)
	require.Equal(t, []string{"2025"}, titles(result.Items))

	result, err = engine.Aggregate(context.Background(), Query{From: day(2025, 5, 1)})
	require.NoError(t, err)
	require.Equal(t, []string{"2026", "2025"}, titles(result.Items))

	result, err = engine.Aggregate(context.Background(), Query{To: day(2024, 1, 1)})
	require.NoError(t, err)
	require.Equal(t, []string{"2024"}, titles(result.Items))

	result, err = engine.Aggregate(context.Background(), Query{Order: "asc"})
	require.NoError(t, err)
	require.Equal(t, []string{"undated", "2024", "2025", "2026"}, titles(result.Items))
}

func TestAggregateIsolatesFailures(t *testing.T) {
	healthy := &stubSource{id: source.GitHub, items: []source.Item{{Title: "ok", Source: source.GitHub}}}
	broken := &stubSource{id: source.HackerNews, err: errors.New("boom")}

	engine, store := newTestEngine(t, healthy, broken)

	result, err := engine.Aggregate(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	require.Equal(t, "ok", result.Items[0].Title)
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], "HackerNews")
	require.Contains(t, result.Errors[0], "boom")
	require.EqualValues(t, 2, totalRequests(store))
}

func TestAggregateRecoversPanickingSource(t *testing.T) {
	engine, store := newTestEngine(t,
		&stubSource{id: source.Weather, panic: "nil map"},
		&stubSource{id: source.GitHub, items: []source.Item{{Title: "ok"}}},
	)

	result, err := engine.Aggregate(context.Background(), Query{})
	require.NoError(t, err)
	require.Equal(t, []string{"ok"}, titles(result.Items))
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], "Weather")
	require.Contains(t, result.Errors[0], "nil map")
	require.EqualValues(t, 2, totalRequests(store))
}

func TestAggregateSelectsSources(t *testing.T) {
	for _, sources := range [][]string{
		{"GitHub", "HackerNews"},
		{"GitHub,HackerNews"},
		{" hackernews ", "GITHUB", "unknown"},
	} {
		gh := &stubSource{id: source.GitHub, items: []source.Item{{Title: "gh"}}}
		wx := &stubSource{id: source.Weather, items: []source.Item{{Title: "wx"}}}
		hn := &stubSource{id: source.HackerNews, items: []source.Item{{Title: "hn"}}}
		engine, _ := newTestEngine(t, gh, wx, hn)

		result, err := engine.Aggregate(context.Background(), Query{Sources: sources})
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"gh", "hn"}, titles(result.Items))
		require.EqualValues(t, 1, gh.calls.Load())
		require.EqualValues(t, 0, wx.calls.Load())
		require.EqualValues(t, 1, hn.calls.Load())
	}
}

func TestAggregateTagsItemsWithReturningSource(t *testing.T) {
	gh := &stubSource{id: source.GitHub, items: []source.Item{{Title: "gh"}}}
	hn := &stubSource{id: source.HackerNews, items: []source.Item{{Title: "hn", Source: source.Weather}}}
	engine, _ := newTestEngine(t, gh, hn)

	result, err := engine.Aggregate(context.Background(), Query{SortBy: "score"})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)

	got := map[string]source.ID{}
	for _, item := range result.Items {
		got[item.Title] = item.Source
	}
	require.Equal(t, map[string]source.ID{"gh": source.GitHub, "hn": source.HackerNews}, got)
	require.Empty(t, gh.items[0].Source, "adapter slice must not be modified")

	body, err := json.Marshal(result)
	require.NoError(t, err)
	require.Contains(t, string(body), `"source":"GitHub"`)
	require.Contains(t, string(body), `"source":"HackerNews"`)
}

func TestAggregateUnrecognizedSourcesSelectAll(t *testing.T) {
	gh := &stubSource{id: source.GitHub}
	wx := &stubSource{id: source.Weather}
	engine, _ := newTestEngine(t, gh, wx)

	_, err := engine.Aggregate(context.Background(), Query{Sources: []string{"reddit", ",,"}})
	require.NoError(t, err)
	require.EqualValues(t, 1, gh.calls.Load())
	require.EqualValues(t, 1, wx.calls.Load())
}

func TestAggregateCacheHitSkipsSources(t *testing.T) {
	gh := &stubSource{id: source.GitHub, items: []source.Item{{Title: "gh", Date: day(2025, 1, 1)}}}
	engine, store := newTestEngine(t, gh)

	first, err := engine.Aggregate(context.Background(), Query{Text: "go", Sources: []string{"GitHub"}})
	require.NoError(t, err)
	before := store.Snapshot()

	second, err := engine.Aggregate(context.Background(), Query{Text: "go", Sources: []string{"github"}})
	require.NoError(t, err)
	require.Same(t, first, second)
	require.EqualValues(t, 1, gh.calls.Load())
	require.Equal(t, before, store.Snapshot())

	_, err = engine.Aggregate(context.Background(), Query{Text: "rust"})
	require.NoError(t, err)
	require.EqualValues(t, 2, gh.calls.Load())
}

func TestAggregateCacheExpires(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	gh := &stubSource{id: source.GitHub}
	engine, err := NewEngine([]source.Source{gh}, metrics.NewStore(), WithClock(clock.Now))
	require.NoError(t, err)

	_, err = engine.Aggregate(context.Background(), Query{})
	require.NoError(t, err)

	clock.Advance(10 * time.Second)
	_, err = engine.Aggregate(context.Background(), Query{})
	require.NoError(t, err)
	require.EqualValues(t, 1, gh.calls.Load())

	clock.Advance(16 * time.Second)
	_, err = engine.Aggregate(context.Background(), Query{})
	require.NoError(t, err)
	require.EqualValues(t, 2, gh.calls.Load())

	clock.Advance(time.Minute)
	require.Equal(t, 1, engine.SweepCache())
}

func TestAggregateCancellationFailsWholeRequest(t *testing.T) {
	slow := &stubSource{id: source.GitHub, block: true}
	fast := &stubSource{id: source.Weather, items: []source.Item{{Title: "wx"}}}
	engine, store := newTestEngine(t, slow, fast)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result, err := engine.Aggregate(ctx, Query{})
	require.Error(t, err)
	require.Nil(t, result)
	require.ErrorIs(t, err, context.Canceled)
	require.EqualValues(t, 2, totalRequests(store))

	// nothing was cached for the canceled request
	slow.block = false
	result, err = engine.Aggregate(context.Background(), Query{})
	require.NoError(t, err)
	require.Equal(t, []string{"wx"}, titles(result.Items))
}

func TestAggregateSourceTimeoutIsScopedToSource(t *testing.T) {
	slow := &stubSource{id: source.GitHub, block: true}
	fast := &stubSource{id: source.HackerNews, items: []source.Item{{Title: "hn"}}}

	engine, err := NewEngine([]source.Source{slow, fast}, metrics.NewStore(),
		WithSourceTimeout(20*time.Millisecond))
	require.NoError(t, err)

	result, err := engine.Aggregate(context.Background(), Query{})
	require.NoError(t, err)
	require.Equal(t, []string{"hn"}, titles(result.Items))
	require.Len(t, result.Errors, 1)
	require.Contains(t, result.Errors[0], "GitHub")
	require.Contains(t, result.Errors[0], "deadline")
}

func TestAggregateRecordsLatencyOncePerCall(t *testing.T) {
	gh := &stubSource{id: source.GitHub}
	hn := &stubSource{id: source.HackerNews, err: errors.New("down")}
	engine, store := newTestEngine(t, gh, hn)

	for i := 0; i < 3; i++ {
		_, err := engine.Aggregate(context.Background(), Query{Text: string(rune('a' + i))})
		require.NoError(t, err)
	}

	for _, stat := range store.Snapshot() {
		require.EqualValues(t, 3, stat.TotalRequests, stat.Source.String())
		require.Equal(t, stat.TotalRequests, stat.FastCount+stat.AverageCount+stat.SlowCount)
	}
}

func TestSourcesKeepsRegistrationOrder(t *testing.T) {
	engine, _ := newTestEngine(t,
		&stubSource{id: source.HackerNews},
		&stubSource{id: source.GitHub},
	)
	require.Equal(t, []source.ID{source.HackerNews, source.GitHub}, engine.Sources())
}
