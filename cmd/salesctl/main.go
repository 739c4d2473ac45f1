package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/urfave/cli/v2"

	"github.com/andresuchdata/salesboard/backend-go/internal/app"
	"github.com/andresuchdata/salesboard/backend-go/internal/config"
	"github.com/andresuchdata/salesboard/backend-go/internal/domain"
	"github.com/andresuchdata/salesboard/backend-go/internal/fetch"
	"github.com/andresuchdata/salesboard/backend-go/internal/repository/postgres"
	"github.com/andresuchdata/salesboard/backend-go/internal/series"
	"github.com/andresuchdata/salesboard/backend-go/internal/service"
	"github.com/andresuchdata/salesboard/backend-go/pkg/logger"
)

type appKey struct{}

func scopeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "scope", Usage: "Region name or ALL"},
		&cli.StringSliceFlag{Name: "stock-id", Usage: "Explicit branch ids, overrides --scope"},
		&cli.StringFlag{Name: "token", Usage: "Sales API bearer token", EnvVars: []string{"API_TOKEN"}},
	}
}

func initApp(c *cli.Context) error {
	cfg := config.Load()
	logger.SetLevel(c.String("log-level"))
	// stdout carries the JSON result.
	logger.Configure(os.Stderr, c.String("log-format"))

	a, err := app.New(cfg, logger.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	c.Context = context.WithValue(c.Context, appKey{}, a)
	return nil
}

func closeApp(c *cli.Context) error {
	if a, ok := c.Context.Value(appKey{}).(*app.App); ok && a != nil {
		stats := a.Client.Stats()
		logger.Log.Debug().
			Int64("cache_hits", stats.CacheHits).
			Int64("cache_misses", stats.CacheMisses).
			Int64("coalesced", stats.Coalesced).
			Int64("http_attempts", stats.HTTPAttempts).
			Int64("fallbacks", stats.Fallbacks).
			Msg("fetch stats")
		return a.Close()
	}
	return nil
}

func fromContext(c *cli.Context) (*app.App, context.Context, domain.Scope, error) {
	a, ok := c.Context.Value(appKey{}).(*app.App)
	if !ok {
		return nil, nil, domain.Scope{}, errors.New("application not initialized")
	}
	scope, err := a.Sales.ResolveScope(c.String("scope"), c.StringSlice("stock-id"))
	if err != nil {
		return nil, nil, domain.Scope{}, err
	}
	ctx := c.Context
	if token := c.String("token"); token != "" {
		ctx = fetch.WithToken(ctx, token)
	}
	return a, ctx, scope, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// zeroDataOK prints what was built before reporting a single-branch zero
// result, so the series is still visible.
func zeroDataOK(v any, err error) error {
	var zeroErr *series.ZeroDataError
	if errors.As(err, &zeroErr) {
		if perr := printJSON(v); perr != nil {
			return perr
		}
		return cli.Exit(err.Error(), 3)
	}
	return err
}

func dailyCommand(c *cli.Context) error {
	a, ctx, scope, err := fromContext(c)
	if err != nil {
		return err
	}
	rng, err := domain.ParseDateRange(c.String("from"), c.String("to"))
	if err != nil {
		return err
	}
	s, err := a.Sales.Daily(ctx, scope, rng)
	if err != nil {
		return zeroDataOK(s, err)
	}
	return printJSON(s)
}

func kpiCommand(c *cli.Context) error {
	a, ctx, scope, err := fromContext(c)
	if err != nil {
		return err
	}
	q := service.KpiQuery{Scope: scope}
	if v := c.String("end"); v != "" {
		if q.EndDate, err = domain.ParseDate(v); err != nil {
			return fmt.Errorf("invalid --end: %w", err)
		}
	}
	if v := c.String("selected"); v != "" {
		if q.SelectedDate, err = domain.ParseDate(v); err != nil {
			return fmt.Errorf("invalid --selected: %w", err)
		}
	}
	report, err := a.Sales.Kpi(ctx, q)
	if err != nil {
		return zeroDataOK(report, err)
	}
	return printJSON(report.Metrics)
}

func migrateCommand(c *cli.Context) error {
	db, err := sql.Open("pgx", c.String("db-url"))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(c.Context); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	for i, stmt := range postgres.Schema {
		if _, err := db.ExecContext(c.Context, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	logger.Log.Info().Int("statements", len(postgres.Schema)).Msg("schema applied")
	return nil
}

func main() {
	cliApp := &cli.App{
		Name:  "salesctl",
		Usage: "Query the sales API the way the dashboard does",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "warn", EnvVars: []string{"LOG_LEVEL"}},
			&cli.StringFlag{Name: "log-format", Value: "console", Usage: "console or json", EnvVars: []string{"LOG_FORMAT"}},
		},
		Commands: []*cli.Command{
			{
				Name:  "daily",
				Usage: "Print the per-day revenue series",
				Flags: append(scopeFlags(),
					&cli.StringFlag{Name: "from", Usage: "First day (yyyy-mm-dd or dd/mm/yyyy)", Required: true},
					&cli.StringFlag{Name: "to", Usage: "Last day (yyyy-mm-dd or dd/mm/yyyy)", Required: true},
				),
				Before: initApp,
				After:  closeApp,
				Action: dailyCommand,
			},
			{
				Name:  "kpi",
				Usage: "Print the month-to-date KPI metrics",
				Flags: append(scopeFlags(),
					&cli.StringFlag{Name: "end", Usage: "End date, defaults to today"},
					&cli.StringFlag{Name: "selected", Usage: "Selected date, defaults to today"},
				),
				Before: initApp,
				After:  closeApp,
				Action: kpiCommand,
			},
			{
				Name:  "migrate",
				Usage: "Create the target tables",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "db-url",
						Usage:    "Database connection string",
						Required: true,
						EnvVars:  []string{"DATABASE_URL"},
					},
				},
				Action: migrateCommand,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("salesctl failed")
	}
}
