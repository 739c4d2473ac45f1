package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/salesboard/backend-go/internal/aggregate"
	"github.com/andresuchdata/salesboard/backend-go/internal/config"
	"github.com/andresuchdata/salesboard/backend-go/internal/domain"
	"github.com/andresuchdata/salesboard/backend-go/internal/fetch"
	"github.com/andresuchdata/salesboard/backend-go/internal/kpi"
	"github.com/andresuchdata/salesboard/backend-go/internal/repository/memory"
	"github.com/andresuchdata/salesboard/backend-go/internal/series"
)

type stubFetcher map[string]string

func (f stubFetcher) Fetch(_ context.Context, r fetch.Request, _ ...fetch.Option) (json.RawMessage, error) {
	key := r.Query.Get(aggregate.BranchParam) + "@" + r.Query.Get("dateStart")
	if body, ok := f[key]; ok {
		return json.RawMessage(body), nil
	}
	return json.RawMessage(`{"cash":0,"transfer":0,"card":0}`), nil
}

func newSalesService(t *testing.T, f aggregate.Fetcher, now time.Time) (*SalesService, *TargetService) {
	t.Helper()
	agg := aggregate.New(f, aggregate.Options{BatchDelay: 0}, zerolog.Nop())
	builder := series.NewBuilder(agg, series.Options{DayBatchDelay: 0}, zerolog.Nop())
	worker := kpi.NewWorker(zerolog.Nop())
	t.Cleanup(worker.Close)

	targets := NewTargetService(memory.NewTargetRepository(), nil, config.TargetConfig{})
	svc := NewSalesService(agg, builder, worker, targets, map[string][]string{"HCM": {"101", "102"}}, "sales/summary")
	svc.now = func() time.Time { return now }
	return svc, targets
}

func TestResolveScope(t *testing.T) {
	svc, _ := newSalesService(t, stubFetcher{}, time.Now())

	scope, err := svc.ResolveScope("hcm", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.Scope{Name: "HCM", Branches: []domain.BranchID{"101", "102"}}, scope)

	scope, err = svc.ResolveScope("all", nil)
	require.NoError(t, err)
	assert.Empty(t, scope.Branches)

	scope, err = svc.ResolveScope("", []string{"7, 8", ""})
	require.NoError(t, err)
	assert.Equal(t, []domain.BranchID{"7", "8"}, scope.Branches)

	_, err = svc.ResolveScope("DN", nil)
	assert.ErrorIs(t, err, ErrUnknownRegion)

	assert.Equal(t, []string{"HCM"}, svc.Regions())
}

func TestSalesService_Kpi(t *testing.T) {
	f := stubFetcher{
		"@01/05/2024": `{"cash":"500.000.000"}`,
		"@02/05/2024": `{"cash":300000000,"transfer":"300.000.000"}`,
	}
	svc, targets := newSalesService(t, f, time.Date(2024, 5, 2, 15, 30, 0, 0, time.Local))

	require.NoError(t, targets.Save(context.Background(), &domain.TargetConfig{
		Month:               "2024-05",
		MonthlyTarget:       9_750_000_000,
		WeekendTargetPerDay: 500_000_000,
		HolidayTargetPerDay: 600_000_000,
	}))

	report, err := svc.Kpi(context.Background(), KpiQuery{Scope: domain.Scope{Name: "ALL"}})
	require.NoError(t, err)

	assert.Len(t, report.Series.Points, 2)
	assert.Equal(t, 1_100_000_000.0, report.Metrics.CurrentRevenue)
	assert.Equal(t, 500_000_000.0, report.Metrics.TargetUntilNow)
	assert.Equal(t, domain.StatusOver, report.Metrics.MonthlyStatus)
	assert.Equal(t, 250_000_000.0, report.Target.WeekdayImplied)
}

func TestSalesService_KpiFutureMonthHasNoSeries(t *testing.T) {
	svc, _ := newSalesService(t, stubFetcher{}, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC))

	report, err := svc.Kpi(context.Background(), KpiQuery{EndDate: time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Empty(t, report.Series.Points)
	assert.Equal(t, 0, report.Metrics.ElapsedDays)
}

func TestSalesService_KpiSingleBranchZero(t *testing.T) {
	svc, _ := newSalesService(t, stubFetcher{}, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC))

	report, err := svc.Kpi(context.Background(), KpiQuery{Scope: domain.Scope{Branches: []domain.BranchID{"101"}}})
	var zeroErr *series.ZeroDataError
	require.True(t, errors.As(err, &zeroErr))
	require.NotNil(t, report)
	assert.Len(t, report.Series.Points, 2)
}

func TestSalesService_Summary(t *testing.T) {
	f := stubFetcher{
		"101@01/05/2024": `{"cash":10,"card":"5"}`,
		"102@01/05/2024": `{"cash":1,"transfer":2}`,
	}
	svc, _ := newSalesService(t, f, time.Now())
	scope, err := svc.ResolveScope("HCM", nil)
	require.NoError(t, err)

	res, err := svc.Summary(context.Background(), scope, domain.SingleDay(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.Equal(t, "18", res.Data.PaymentTotal().String())
}

func TestTargetService_DefaultsAndSave(t *testing.T) {
	targets := NewTargetService(memory.NewTargetRepository(), nil, config.TargetConfig{
		DefaultMonthly:       9_750_000_000,
		DefaultWeekendPerDay: 500_000_000,
	})
	ctx := context.Background()

	cfg, err := targets.Get(ctx, "2024-05")
	require.NoError(t, err)
	assert.Equal(t, 9_750_000_000.0, cfg.MonthlyTarget)
	assert.InDelta(t, 5_750_000_000/23.0, cfg.WeekdayImplied, 1e-6)

	err = targets.Save(ctx, &domain.TargetConfig{Month: "2024-13"})
	assert.ErrorIs(t, err, ErrInvalidTarget)

	err = targets.Save(ctx, &domain.TargetConfig{Month: "2024-05", MonthlyTarget: -1})
	assert.ErrorIs(t, err, ErrInvalidTarget)

	require.NoError(t, targets.Save(ctx, &domain.TargetConfig{Month: "2024-05", MonthlyTarget: 100, SpecialHolidays: []int{3, 1, 3}}))
	cfg, err = targets.Get(ctx, "2024-05")
	require.NoError(t, err)
	assert.Equal(t, 100.0, cfg.MonthlyTarget)
	assert.Equal(t, []int{1, 3}, cfg.SpecialHolidays)

	_, err = targets.Get(ctx, "May")
	assert.ErrorIs(t, err, ErrInvalidTarget)
}
