// Package throttle caps how often upstream sources are called.
package throttle

import (
	"context"

	"github.com/Laisky/errors/v2"
	"golang.org/x/time/rate"

	"github.com/Laisky/api-aggregator/library/source"
)

// ErrRateLimited is returned by a throttled source when no token is available.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limit is a token bucket refilled at NPerSec with capacity Burst.
// A zero NPerSec means unlimited.
type Limit struct {
	NPerSec float64
	Burst   int
}

func (l Limit) validate() error {
	if l.NPerSec < 0 {
		return errors.Errorf("NPerSec must not be negative, got %v", l.NPerSec)
	}
	if l.NPerSec > 0 && float64(l.Burst) < l.NPerSec {
		return errors.Errorf("burst %d must not be smaller than NPerSec %v", l.Burst, l.NPerSec)
	}
	return nil
}

func (l Limit) limiter() *rate.Limiter {
	if l.NPerSec == 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(l.NPerSec), l.Burst)
}

// Throttle shares one total budget across every source it wraps, on top of
// each source's own budget.
type Throttle struct {
	total *rate.Limiter
}

// New creates a Throttle whose shared budget is total.
func New(total Limit) (*Throttle, error) {
	if err := total.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid total limit")
	}
	return &Throttle{total: total.limiter()}, nil
}

// Wrap returns src guarded by its own budget each and by the shared budget.
// The returned source keeps the identity of src.
func (t *Throttle) Wrap(src source.Source, each Limit) (source.Source, error) {
	if src == nil {
		return nil, errors.New("source is nil")
	}
	if err := each.validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid limit for %s", src.ID())
	}

	eachLimiter := each.limiter()
	if eachLimiter == nil && t.total == nil {
		return src, nil
	}

	return &throttledSource{
		Source: src,
		each:   eachLimiter,
		total:  t.total,
	}, nil
}

type throttledSource struct {
	source.Source
	each  *rate.Limiter
	total *rate.Limiter
}

func (s *throttledSource) allow() bool {
	if s.each != nil && !s.each.Allow() {
		return false
	}
	return s.total == nil || s.total.Allow()
}

// Fetch fails fast with ErrRateLimited instead of waiting for a token.
func (s *throttledSource) Fetch(ctx context.Context, query string) ([]source.Item, error) {
	if !s.allow() {
		return nil, errors.WithStack(ErrRateLimited)
	}
	return s.Source.Fetch(ctx, query)
}
