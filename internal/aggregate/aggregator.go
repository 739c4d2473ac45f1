// Package aggregate fans one logical sales query out over a set of branches
// and merges the per-branch payloads.
package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/andresuchdata/salesboard/backend-go/internal/domain"
	"github.com/andresuchdata/salesboard/backend-go/internal/fetch"
	"github.com/andresuchdata/salesboard/backend-go/internal/retry"
)

const (
	// BranchParam is the query parameter carrying the branch id.
	BranchParam = "stockId"

	defaultBatchSize  = 10
	defaultBatchDelay = 50 * time.Millisecond
)

// Fetcher is the slice of fetch.Client the aggregator depends on.
type Fetcher interface {
	Fetch(ctx context.Context, r fetch.Request, opts ...fetch.Option) (json.RawMessage, error)
}

// Query is one logical request over a set of branches.
type Query struct {
	Endpoint string
	Branches []domain.BranchID
	Range    domain.DateRange
	Extra    url.Values
	Options  []fetch.Option
}

// Hooks let callers short-circuit or observe individual branch calls.
type Hooks struct {
	// Skip reports that branch is known to contribute nothing; no call is made
	// and a zero payload is used instead.
	Skip func(branch domain.BranchID) bool
	// Observe is called with the payload of every successful branch call.
	Observe func(branch domain.BranchID, p domain.Payload)
}

// Result is a merged payload plus bookkeeping about the branch calls.
type Result struct {
	Data           domain.Payload    `json:"data"`
	Branches       int               `json:"branches"`
	Failed         int               `json:"failed"`
	FailedBranches []domain.BranchID `json:"failedBranches,omitempty"`
	Skipped        int               `json:"skipped"`
	Partial        bool              `json:"partial"`
}

// Options configure batching.
type Options struct {
	BatchSize  int
	BatchDelay time.Duration
}

// Aggregator resolves queries against the sales API, one call per branch.
type Aggregator struct {
	fetcher    Fetcher
	batchSize  int
	batchDelay time.Duration
	log        zerolog.Logger
}

// New creates an Aggregator.
func New(fetcher Fetcher, opts Options, log zerolog.Logger) *Aggregator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.BatchDelay < 0 {
		opts.BatchDelay = defaultBatchDelay
	}
	return &Aggregator{
		fetcher:    fetcher,
		batchSize:  opts.BatchSize,
		batchDelay: opts.BatchDelay,
		log:        log.With().Str("component", "aggregate").Logger(),
	}
}

// Aggregate runs q and merges the branch payloads with combine.
//
// With no branches a single "all branches" call is made and its payload is
// returned unmodified. With one branch a single call is made and its error, if
// any, is returned. With several branches each failure is logged and replaced
// by a zero payload; the result is flagged Partial. An *fetch.AuthError always
// aborts the whole aggregation.
func (a *Aggregator) Aggregate(ctx context.Context, q Query, combine CombineFunc, hooks Hooks) (*Result, error) {
	if combine == nil {
		combine = SumSummary
	}

	switch len(q.Branches) {
	case 0:
		p, err := a.fetchBranch(ctx, q, "")
		if err != nil {
			return nil, err
		}
		return &Result{Data: p}, nil
	case 1:
		branch := q.Branches[0]
		if hooks.Skip != nil && hooks.Skip(branch) {
			return &Result{Data: domain.Payload{}, Branches: 1, Skipped: 1}, nil
		}
		p, err := a.fetchBranch(ctx, q, branch)
		if err != nil {
			return nil, err
		}
		if hooks.Observe != nil {
			hooks.Observe(branch, p)
		}
		return &Result{Data: p, Branches: 1}, nil
	}

	return a.fanOut(ctx, q, combine, hooks)
}

func (a *Aggregator) fanOut(ctx context.Context, q Query, combine CombineFunc, hooks Hooks) (*Result, error) {
	payloads := make([]domain.Payload, len(q.Branches))
	failed := make([]bool, len(q.Branches))

	var mu sync.Mutex
	skipped := 0

	for start := 0; start < len(q.Branches); start += a.batchSize {
		if start > 0 {
			if err := retry.Sleep(ctx, a.batchDelay); err != nil {
				return nil, err
			}
		}

		end := min(start+a.batchSize, len(q.Branches))
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			branch := q.Branches[i]
			g.Go(func() error {
				if hooks.Skip != nil && hooks.Skip(branch) {
					mu.Lock()
					skipped++
					mu.Unlock()
					payloads[i] = domain.Payload{}
					return nil
				}

				p, err := a.fetchBranch(gctx, q, branch)
				if err != nil {
					if fetch.IsAuth(err) {
						return err
					}
					if ctx.Err() != nil {
						return ctx.Err()
					}
					a.log.Warn().
						Err(err).
						Str("endpoint", q.Endpoint).
						Str("branch", string(branch)).
						Msg("branch fetch failed, substituting zero payload")
					payloads[i] = domain.Payload{}
					failed[i] = true
					return nil
				}
				if hooks.Observe != nil {
					hooks.Observe(branch, p)
				}
				payloads[i] = p
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	res := &Result{Data: domain.Payload{}, Branches: len(q.Branches), Skipped: skipped}
	for i, p := range payloads {
		res.Data = combine(res.Data, p)
		if failed[i] {
			res.Failed++
			res.FailedBranches = append(res.FailedBranches, q.Branches[i])
		}
	}
	res.Partial = res.Failed > 0

	if res.Partial {
		a.log.Warn().
			Str("endpoint", q.Endpoint).
			Int("failed", res.Failed).
			Int("branches", res.Branches).
			Msg("partial aggregation")
	}
	return res, nil
}

func (a *Aggregator) fetchBranch(ctx context.Context, q Query, branch domain.BranchID) (domain.Payload, error) {
	raw, err := a.fetcher.Fetch(ctx, a.request(q, branch), q.Options...)
	if err != nil {
		return nil, err
	}
	p, err := domain.DecodePayload(raw)
	if err != nil {
		return nil, fmt.Errorf("branch %q: %w", branch, err)
	}
	return p, nil
}

func (a *Aggregator) request(q Query, branch domain.BranchID) fetch.Request {
	query := q.Range.Query()
	for k, vs := range q.Extra {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	query.Set(BranchParam, string(branch))
	return fetch.Request{Endpoint: q.Endpoint, Query: query}
}

