package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/salesboard/backend-go/internal/aggregate"
	"github.com/andresuchdata/salesboard/backend-go/internal/domain"
	"github.com/andresuchdata/salesboard/backend-go/internal/series"
)

// ErrUnknownRegion is returned when a scope names a region that is not configured.
var ErrUnknownRegion = errors.New("unknown region")

const scopeAll = "ALL"

type Aggregator interface {
	Aggregate(ctx context.Context, q aggregate.Query, combine aggregate.CombineFunc, hooks aggregate.Hooks) (*aggregate.Result, error)
}

type SeriesBuilder interface {
	Build(ctx context.Context, req series.Request) (*series.Series, error)
}

type KpiComputer interface {
	Submit(ctx context.Context, in domain.KpiInput) (domain.KpiMetrics, error)
}

// KpiQuery selects the KPI view. Zero dates default to today.
type KpiQuery struct {
	Scope        domain.Scope
	SelectedDate time.Time
	EndDate      time.Time
	ActualToday  *float64
	ActualMTD    *float64
}

// KpiReport bundles the metrics with what they were computed from.
type KpiReport struct {
	Metrics domain.KpiMetrics    `json:"metrics"`
	Target  *domain.TargetConfig `json:"target"`
	Series  *series.Series       `json:"series"`
}

type SalesService struct {
	agg      Aggregator
	builder  SeriesBuilder
	kpi      KpiComputer
	targets  *TargetService
	regions  map[string][]string
	endpoint string
	now      func() time.Time
}

func NewSalesService(agg Aggregator, builder SeriesBuilder, kpi KpiComputer, targets *TargetService, regions map[string][]string, endpoint string) *SalesService {
	return &SalesService{
		agg:      agg,
		builder:  builder,
		kpi:      kpi,
		targets:  targets,
		regions:  regions,
		endpoint: endpoint,
		now:      time.Now,
	}
}

// Regions lists configured region names.
func (s *SalesService) Regions() []string {
	names := make([]string, 0, len(s.regions))
	for name := range s.regions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveScope turns a region name and/or explicit branch ids into a Scope.
// Explicit ids win; "all" or an empty name selects every branch.
func (s *SalesService) ResolveScope(name string, stockIDs []string) (domain.Scope, error) {
	name = strings.ToUpper(strings.TrimSpace(name))

	var branches []domain.BranchID
	for _, raw := range stockIDs {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				branches = append(branches, domain.BranchID(id))
			}
		}
	}
	if len(branches) > 0 {
		if name == "" {
			name = "CUSTOM"
		}
		return domain.Scope{Name: name, Branches: branches}, nil
	}

	if name == "" || name == scopeAll {
		return domain.Scope{Name: scopeAll}, nil
	}

	ids, ok := s.regions[name]
	if !ok {
		return domain.Scope{}, fmt.Errorf("%w: %s", ErrUnknownRegion, name)
	}
	scope := domain.Scope{Name: name}
	for _, id := range ids {
		scope.Branches = append(scope.Branches, domain.BranchID(id))
	}
	return scope, nil
}

// Summary aggregates the sales summary of scope over rng.
func (s *SalesService) Summary(ctx context.Context, scope domain.Scope, rng domain.DateRange) (*aggregate.Result, error) {
	return s.agg.Aggregate(ctx, aggregate.Query{
		Endpoint: s.endpoint,
		Branches: scope.Branches,
		Range:    rng,
	}, aggregate.SumSummary, aggregate.Hooks{})
}

// Daily builds the per-day revenue series of scope over rng.
func (s *SalesService) Daily(ctx context.Context, scope domain.Scope, rng domain.DateRange) (*series.Series, error) {
	return s.builder.Build(ctx, series.Request{
		Endpoint: s.endpoint,
		Scope:    scope,
		Window:   rng,
	})
}

// Kpi builds the month-to-date series for the end date's month and runs the
// KPI engine on it.
func (s *SalesService) Kpi(ctx context.Context, q KpiQuery) (*KpiReport, error) {
	today := utcDay(s.now())
	end := q.EndDate
	if end.IsZero() {
		end = today
	}
	selected := q.SelectedDate
	if selected.IsZero() {
		selected = today
	}
	end, selected = utcDay(end), utcDay(selected)

	target, err := s.targets.Get(ctx, domain.MonthKey(end))
	if err != nil {
		return nil, err
	}

	window := domain.MonthToDate(end)
	if today.Before(window.End) {
		window.End = today
	}

	report := &KpiReport{Target: target, Series: &series.Series{}}
	if !window.End.Before(window.Start) {
		report.Series, err = s.Daily(ctx, q.Scope, window)
		var zeroErr *series.ZeroDataError
		if errors.As(err, &zeroErr) {
			return report, err
		}
		if err != nil {
			return nil, err
		}
	}

	in := domain.KpiInput{
		DailySeries:         report.Series.Points,
		SelectedDate:        selected.Format(domain.ISODateLayout),
		EndDate:             end.Format(domain.ISODateLayout),
		Today:               today.Format(domain.ISODateLayout),
		SpecialHolidays:     target.SpecialHolidays,
		CompanyMonthTarget:  target.MonthlyTarget,
		WeekendTargetPerDay: target.WeekendTargetPerDay,
		HolidayTargetPerDay: target.HolidayTargetPerDay,
		ActualRevenueToday:  q.ActualToday,
		ActualRevenueMTD:    q.ActualMTD,
	}
	report.Metrics, err = s.kpi.Submit(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("compute kpi: %w", err)
	}

	log.Debug().
		Str("scope", q.Scope.Key()).
		Str("end", in.EndDate).
		Str("monthly_status", string(report.Metrics.MonthlyStatus)).
		Msg("KPI computed")
	return report, nil
}

// utcDay keeps the calendar date of t at midnight UTC so dates from the query
// string and the wall clock compare by day.
func utcDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
