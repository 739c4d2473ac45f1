// Package app assembles the sales dashboard backend from configuration.
package app

import (
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/andresuchdata/salesboard/backend-go/internal/aggregate"
	"github.com/andresuchdata/salesboard/backend-go/internal/api"
	"github.com/andresuchdata/salesboard/backend-go/internal/api/handlers"
	"github.com/andresuchdata/salesboard/backend-go/internal/cache"
	"github.com/andresuchdata/salesboard/backend-go/internal/config"
	"github.com/andresuchdata/salesboard/backend-go/internal/events"
	"github.com/andresuchdata/salesboard/backend-go/internal/fetch"
	"github.com/andresuchdata/salesboard/backend-go/internal/kpi"
	"github.com/andresuchdata/salesboard/backend-go/internal/repository"
	"github.com/andresuchdata/salesboard/backend-go/internal/repository/memory"
	"github.com/andresuchdata/salesboard/backend-go/internal/repository/postgres"
	"github.com/andresuchdata/salesboard/backend-go/internal/series"
	"github.com/andresuchdata/salesboard/backend-go/internal/service"
)

const (
	storeMemory   = "memory"
	storePostgres = "postgres"
)

// App holds the long-lived components. Close releases them.
type App struct {
	Bus     *events.Bus
	Client  *fetch.Client
	Sales   *service.SalesService
	Targets *service.TargetService
	Proxy   *handlers.ProxyHandler

	closers []io.Closer
	worker  *kpi.Worker
}

// New wires the request client, aggregation, series and KPI layers, and the
// target store selected by cfg.Targets.Store.
func New(cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Bus: events.NewBus(log)}

	a.Bus.Subscribe(events.AuthExpired, func(e events.Event) {
		log.Warn().Str("module", e.Module).Msg("sales API token expired or missing")
	})

	tokens := fetch.ContextTokenProvider{}
	if cfg.API.Token != "" {
		tokens.Fallback = fetch.StaticToken(cfg.API.Token)
	}
	a.Client = fetch.New(fetch.ConfigFrom(cfg.API, cfg.Fetch), tokens, a.Bus, log)

	agg := aggregate.New(a.Client, aggregate.Options{
		BatchSize:  cfg.Batch.BranchBatchSize,
		BatchDelay: cfg.Batch.BranchBatchDelay,
	}, log)
	builder := series.NewBuilder(agg, series.Options{
		DayBatchSize:  cfg.Batch.DayBatchSize,
		DayBatchDelay: cfg.Batch.DayBatchDelay,
		ZeroTTL:       cfg.Fetch.CacheTTL,
	}, log)
	a.worker = kpi.NewWorker(log)

	repo, err := a.targetRepository(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	targetCache, err := cache.NewTargetCache(cfg.Cache)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, target cache disabled")
		targetCache = cache.NewNoopTargetCache()
	}

	a.Targets = service.NewTargetService(repo, targetCache, cfg.Targets)
	a.Sales = service.NewSalesService(agg, builder, a.worker, a.Targets, cfg.Sales.Regions, cfg.Sales.SummaryEndpoint)
	a.Proxy = handlers.NewProxyHandler(cfg.API.BaseURL, cfg.API.Prefix, cfg.Fetch.ProxyTimeout)
	return a, nil
}

func (a *App) targetRepository(cfg *config.Config) (repository.TargetRepository, error) {
	switch cfg.Targets.Store {
	case "", storeMemory:
		return memory.NewTargetRepository(), nil
	case storePostgres:
		db, err := postgres.NewDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db)
		return postgres.NewTargetRepository(db), nil
	default:
		return nil, fmt.Errorf("unknown target store %q", cfg.Targets.Store)
	}
}

// Router builds the HTTP router over the wired services.
func (a *App) Router(allowedOrigins []string) http.Handler {
	return api.NewRouter(&api.Services{
		SalesService:  a.Sales,
		TargetService: a.Targets,
		Proxy:         a.Proxy,
	}, allowedOrigins)
}

// Close stops the KPI worker and closes the database pool.
func (a *App) Close() error {
	if a.worker != nil {
		a.worker.Close()
	}
	var firstErr error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
