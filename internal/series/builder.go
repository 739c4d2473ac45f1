// Package series builds per-day revenue series over a date window.
package series

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/andresuchdata/salesboard/backend-go/internal/aggregate"
	"github.com/andresuchdata/salesboard/backend-go/internal/domain"
	"github.com/andresuchdata/salesboard/backend-go/internal/fetch"
	"github.com/andresuchdata/salesboard/backend-go/internal/retry"
)

const (
	defaultDayBatchSize  = 5
	defaultDayBatchDelay = 100 * time.Millisecond
	defaultZeroTTL       = 20 * time.Second
)

// Aggregator is the slice of aggregate.Aggregator the builder depends on.
type Aggregator interface {
	Aggregate(ctx context.Context, q aggregate.Query, combine aggregate.CombineFunc, hooks aggregate.Hooks) (*aggregate.Result, error)
}

// Request describes one series.
type Request struct {
	Endpoint string
	Scope    domain.Scope
	Window   domain.DateRange
	Options  []fetch.Option
}

// Series is the ordered daily revenue for a scope and window.
type Series struct {
	Scope       string                `json:"scope"`
	Window      string                `json:"window"`
	Points      []domain.DailyRevenue `json:"points"`
	Total       float64               `json:"total"`
	FailedDays  int                   `json:"failedDays"`
	PartialDays int                   `json:"partialDays"`
	ZeroData    bool                  `json:"zeroData"`
}

// ZeroDataError is returned, together with the series, when a single concrete
// branch has no revenue over the whole window.
type ZeroDataError struct {
	Branch domain.BranchID
	Window string
}

func (e *ZeroDataError) Error() string {
	return fmt.Sprintf("branch %s has no revenue for %s", e.Branch, e.Window)
}

// Options configure day batching and the zero-branch memory.
type Options struct {
	DayBatchSize  int
	DayBatchDelay time.Duration
	ZeroTTL       time.Duration
}

// Builder produces daily series and owns the ZeroBranchSet.
type Builder struct {
	agg        Aggregator
	zeros      *ZeroBranchSet
	batchSize  int
	batchDelay time.Duration
	log        zerolog.Logger
}

// NewBuilder creates a Builder over agg.
func NewBuilder(agg Aggregator, opts Options, log zerolog.Logger) *Builder {
	if opts.DayBatchSize <= 0 {
		opts.DayBatchSize = defaultDayBatchSize
	}
	if opts.DayBatchDelay < 0 {
		opts.DayBatchDelay = defaultDayBatchDelay
	}
	if opts.ZeroTTL <= 0 {
		opts.ZeroTTL = defaultZeroTTL
	}
	return &Builder{
		agg:        agg,
		zeros:      NewZeroBranchSet(opts.ZeroTTL),
		batchSize:  opts.DayBatchSize,
		batchDelay: opts.DayBatchDelay,
		log:        log.With().Str("component", "series").Logger(),
	}
}

// Zeros exposes the builder's ZeroBranchSet.
func (b *Builder) Zeros() *ZeroBranchSet { return b.zeros }

// Build fetches every day of req.Window and returns one point per day in date
// order. A day whose fetch fails is reported with a zero total. An auth error
// or context cancellation aborts the build.
func (b *Builder) Build(ctx context.Context, req Request) (*Series, error) {
	days := req.Window.Days()
	points := make([]domain.DailyRevenue, len(days))
	scopeKey := req.Scope.Key()
	windowKey := req.Window.Key()
	memo := len(req.Scope.Branches) > 1

	var mu sync.Mutex
	partialDays := 0

	for start := 0; start < len(days); start += b.batchSize {
		if start > 0 {
			if err := retry.Sleep(ctx, b.batchDelay); err != nil {
				return nil, err
			}
		}

		end := min(start+b.batchSize, len(days))
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			day := days[i]
			g.Go(func() error {
				rng := domain.SingleDay(day)
				var hooks aggregate.Hooks
				if memo {
					hooks = b.hooks(scopeKey, rng.Key())
				}
				res, err := b.agg.Aggregate(gctx, aggregate.Query{
					Endpoint: req.Endpoint,
					Branches: req.Scope.Branches,
					Range:    rng,
					Options:  req.Options,
				}, aggregate.SumSummary, hooks)
				if err != nil {
					if fetch.IsAuth(err) {
						return err
					}
					if ctx.Err() != nil {
						return ctx.Err()
					}
					b.log.Warn().
						Err(err).
						Str("scope", scopeKey).
						Str("day", day.Format(domain.ISODateLayout)).
						Msg("day fetch failed, using zero total")
					points[i] = domain.FailedDailyRevenue(day)
					return nil
				}
				if res.Partial {
					mu.Lock()
					partialDays++
					mu.Unlock()
				}
				points[i] = domain.NewDailyRevenue(day, res.Data)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	s := &Series{Scope: scopeKey, Window: windowKey, Points: points, PartialDays: partialDays}
	for _, p := range points {
		s.Total += p.Total
		if p.Failed {
			s.FailedDays++
		}
	}

	if s.Total == 0 && len(days) > 0 && s.FailedDays < len(days) {
		if req.Scope.IsSingleBranch() {
			return s, &ZeroDataError{Branch: req.Scope.Branches[0], Window: windowKey}
		}
		s.ZeroData = true
		b.log.Warn().Str("scope", scopeKey).Str("window", windowKey).Msg("no revenue in window")
	}
	return s, nil
}

// hooks wire the ZeroBranchSet into the aggregator for one day. A branch is
// only skipped on a day it was already observed to return zero for, within
// the same scope. Single-branch scopes always fetch, so a ZeroDataError is
// never raised from memoized days alone.
func (b *Builder) hooks(scopeKey, dayKey string) aggregate.Hooks {
	return aggregate.Hooks{
		Skip: func(branch domain.BranchID) bool {
			return b.zeros.Contains(scopeKey, dayKey, branch)
		},
		Observe: func(branch domain.BranchID, p domain.Payload) {
			if p.IsZeroPayment() {
				b.zeros.Add(scopeKey, dayKey, branch)
				return
			}
			b.zeros.Remove(scopeKey, dayKey, branch)
		},
	}
}
