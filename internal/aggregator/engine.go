// Package aggregator fans one query out to many sources and merges the answers.
package aggregator

import (
	"context"
	"time"

	"github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Laisky/api-aggregator/library/cache"
	"github.com/Laisky/api-aggregator/library/log"
	"github.com/Laisky/api-aggregator/library/metrics"
	"github.com/Laisky/api-aggregator/library/source"
)

const (
	DefaultAbsoluteTTL = 30 * time.Second
	DefaultSlidingTTL  = 15 * time.Second
)

// Query holds the caller-supplied parameters of one aggregation.
// Every field is optional.
type Query struct {
	// Text is handed unchanged to every selected source.
	Text string
	// SortBy is "date" or "score"; anything else means "date".
	SortBy string
	// Order is "asc" or "desc"; anything other than "asc" means "desc".
	Order string
	// From and To bound item dates inclusively.
	From *time.Time
	To   *time.Time
	// Sources names the sources to query, repeated and/or comma-joined.
	// No recognized name means every registered source.
	Sources []string
}

// Result is the outcome of one aggregation. Items holds the filtered and
// sorted items of every source that succeeded; Errors holds one
// "<source>: <message>" entry per source that failed.
type Result struct {
	Items  []source.Item `json:"items"`
	Errors []string      `json:"errors"`
}

// EngineOption customises an Engine during construction.
type EngineOption func(*Engine)

// WithLogger overrides the fallback logger used when no contextual logger is available.
func WithLogger(logger logSDK.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithCacheTTL overrides the absolute and sliding expiry of cached results.
func WithCacheTTL(absolute, sliding time.Duration) EngineOption {
	return func(e *Engine) {
		e.absoluteTTL, e.slidingTTL = absolute, sliding
	}
}

// WithSourceTimeout bounds each source call. Hitting it fails only that source.
// Zero disables the bound.
func WithSourceTimeout(timeout time.Duration) EngineOption {
	return func(e *Engine) {
		if timeout >= 0 {
			e.sourceTimeout = timeout
		}
	}
}

// WithClock replaces time.Now for latency measurement and cache expiry.
func WithClock(clock func() time.Time) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// Engine runs aggregations over a fixed set of sources.
// It is safe for concurrent use.
type Engine struct {
	sources       []source.Source
	store         *metrics.Store
	cache         *cache.Cache[*Result]
	absoluteTTL   time.Duration
	slidingTTL    time.Duration
	sourceTimeout time.Duration
	clock         func() time.Time
	logger        logSDK.Logger
}

// NewEngine constructs an Engine over sources, in registration order.
// Every call to a source is recorded into store.
func NewEngine(sources []source.Source, store *metrics.Store, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, errors.New("metrics store is required")
	}

	registered := make([]source.Source, 0, len(sources))
	seen := map[source.ID]struct{}{}
	for _, src := range sources {
		if src == nil {
			continue
		}
		if _, dup := seen[src.ID()]; dup {
			return nil, errors.Errorf("source %s registered twice", src.ID())
		}
		seen[src.ID()] = struct{}{}
		registered = append(registered, src)
	}
	if len(registered) == 0 {
		return nil, errors.New("aggregator requires at least one source")
	}

	e := &Engine{
		sources:     registered,
		store:       store,
		absoluteTTL: DefaultAbsoluteTTL,
		slidingTTL:  DefaultSlidingTTL,
		clock:       time.Now,
		logger:      log.Logger.Named("aggregator"),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.cache = cache.New[*Result](e.absoluteTTL, e.slidingTTL, cache.WithClock(e.clock))
	return e, nil
}

// Sources returns the registered source IDs in registration order.
func (e *Engine) Sources() []source.ID {
	ids := make([]source.ID, 0, len(e.sources))
	for _, src := range e.sources {
		ids = append(ids, src.ID())
	}
	return ids
}

// SweepCache evicts expired results and returns how many were removed.
func (e *Engine) SweepCache() int {
	return e.cache.Sweep()
}

// Aggregate answers q from the cache or by calling the selected sources
// concurrently. A cached Result is shared and must not be modified.
//
// A failing source never fails the call; its error is reported in
// Result.Errors. Cancellation of ctx fails the whole call.
func (e *Engine) Aggregate(ctx context.Context, q Query) (*Result, error) {
	logger := e.contextLogger(ctx)
	key := CacheKey(q)

	if cached, ok := e.cache.Get(key); ok {
		logger.Debug("aggregate cache hit", zap.String("key", key))
		return cached, nil
	}

	selected := e.selectSources(q.Sources)
	startAt := e.clock()
	outcomes := e.fanOut(ctx, logger, selected, q.Text)

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "aggregate canceled")
	}

	result := &Result{
		Items:  []source.Item{},
		Errors: []string{},
	}
	for _, o := range outcomes {
		if o.err != nil {
			result.Errors = append(result.Errors, o.err.Error())
			continue
		}
		result.Items = append(result.Items, o.items...)
	}

	result.Items = filterByDate(result.Items, q.From, q.To)
	sortItems(result.Items, normalizeSortBy(q.SortBy), isDescending(q.Order))

	e.cache.Set(key, result)
	logger.Info("aggregate done",
		zap.String("key", key),
		zap.Int("sources", len(selected)),
		zap.Int("items", len(result.Items)),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("cost", e.clock().Sub(startAt)),
	)

	return result, nil
}

// outcome carries exactly one of items or err.
type outcome struct {
	items []source.Item
	err   error
}

// fanOut calls every source concurrently and waits for all of them.
// outcomes[i] belongs to sources[i].
func (e *Engine) fanOut(ctx context.Context, logger logSDK.Logger, sources []source.Source, query string) []outcome {
	outcomes := make([]outcome, len(sources))

	// the group is only a join barrier, failures travel in outcomes
	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			outcomes[i] = e.invoke(ctx, logger, src, query)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// invoke calls src once and records its latency exactly once.
func (e *Engine) invoke(ctx context.Context, logger logSDK.Logger, src source.Source, query string) (o outcome) {
	startAt := e.clock()
	defer func() {
		if r := recover(); r != nil {
			o = outcome{err: errors.Errorf("%s: panic: %v", src.ID(), r)}
		}

		elapsed := e.clock().Sub(startAt)
		e.store.Record(src.ID(), elapsed.Milliseconds())
		if o.err != nil {
			logger.Warn("source failed",
				zap.String("source", src.ID().String()),
				zap.Duration("cost", elapsed),
				zap.Error(o.err))
		}
	}()

	callCtx := ctx
	if e.sourceTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.sourceTimeout)
		defer cancel()
	}

	items, err := src.Fetch(callCtx, query)
	if err != nil {
		return outcome{err: errors.Errorf("%s: %s", src.ID(), err.Error())}
	}

	// every item is attributed to the source that returned it
	tagged := make([]source.Item, len(items))
	for i, item := range items {
		item.Source = src.ID()
		tagged[i] = item
	}
	return outcome{items: tagged}
}

// selectSources keeps registration order. No recognized name selects every source.
func (e *Engine) selectSources(raw []string) []source.Source {
	wanted := source.ParseIDs(raw)
	if len(wanted) == 0 {
		return e.sources
	}

	set := make(map[source.ID]struct{}, len(wanted))
	for _, id := range wanted {
		set[id] = struct{}{}
	}

	selected := make([]source.Source, 0, len(wanted))
	for _, src := range e.sources {
		if _, ok := set[src.ID()]; ok {
			selected = append(selected, src)
		}
	}
	return selected
}

func (e *Engine) contextLogger(ctx context.Context) logSDK.Logger {
	return source.ContextLogger(ctx, e.logger, "aggregator")
}
