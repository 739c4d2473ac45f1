// Package kpi derives revenue-to-target metrics from a daily series.
package kpi

import (
	"fmt"
	"strings"
	"time"

	"github.com/andresuchdata/salesboard/backend-go/internal/domain"
)

const (
	// monthlyTolerance is how many percentage points behind the linear
	// month pace still counts as on track.
	monthlyTolerance = 5.0
	// dailyOnTrack is the daily percentage from which a day is on track.
	dailyOnTrack = 95.0
)

// Compute maps in to KpiMetrics. It is pure: the only notion of "now" is
// in.Today, and identical inputs produce identical outputs.
//
// SelectedDate and EndDate default to Today. The month is taken from EndDate.
func Compute(in domain.KpiInput) (domain.KpiMetrics, error) {
	today, err := parseDay("todayIso", in.Today)
	if err != nil {
		return domain.KpiMetrics{}, err
	}
	endDate, err := parseDayOr("endDateIso", in.EndDate, today)
	if err != nil {
		return domain.KpiMetrics{}, err
	}
	selected, err := parseDayOr("selectedDateIso", in.SelectedDate, today)
	if err != nil {
		return domain.KpiMetrics{}, err
	}

	cal := NewCalendar(endDate, in.SpecialHolidays, in.CompanyMonthTarget, in.WeekendTargetPerDay, in.HolidayTargetPerDay)
	elapsed := lastElapsedDay(cal, endDate, today)

	m := domain.KpiMetrics{
		MonthlyTarget:       in.CompanyMonthTarget,
		WeekdayTargetPerDay: cal.WeekdayTarget(),
		ElapsedDays:         elapsed,
		DaysInMonth:         cal.Days(),
		DailyTargets:        cal.Schedule(),
		DailyKpiGrowthData:  append([]domain.DailyRevenue(nil), in.DailySeries...),
	}

	if cal.Contains(today) {
		m.DailyTargetForCurrentDay = cal.Target(today.Day())
	}
	if cal.Contains(selected) {
		m.DailyTargetForSelectedDay = cal.Target(selected.Day())
	} else {
		m.DailyTargetForSelectedDay = NewCalendar(selected, in.SpecialHolidays, in.CompanyMonthTarget, in.WeekendTargetPerDay, in.HolidayTargetPerDay).Target(selected.Day())
	}

	m.TargetUntilNow = cal.TargetThrough(elapsed)
	if in.ActualRevenueMTD != nil {
		m.CurrentRevenue = *in.ActualRevenueMTD
	} else {
		m.CurrentRevenue = revenueThrough(in.DailySeries, cal, elapsed)
	}
	m.CurrentPercentage = percentage(m.CurrentRevenue, m.TargetUntilNow)
	m.RemainingTarget = in.CompanyMonthTarget - m.CurrentRevenue
	m.MonthlyStatus = monthlyStatus(m.CurrentPercentage, m.CurrentRevenue, in.CompanyMonthTarget, elapsed, cal.Days())

	selectedISO := selected.Format(domain.ISODateLayout)
	if selectedISO == today.Format(domain.ISODateLayout) && in.ActualRevenueToday != nil {
		m.DailyKpiRevenue = *in.ActualRevenueToday
	} else {
		m.DailyKpiRevenue = revenueOn(in.DailySeries, selectedISO)
	}
	m.DailyPercentage = percentage(m.DailyKpiRevenue, m.DailyTargetForSelectedDay)
	m.DailyKpiLeft = m.DailyTargetForSelectedDay - m.DailyKpiRevenue
	m.DailyStatus = dailyStatus(m.DailyPercentage)

	return m, nil
}

// lastElapsedDay is the last day of the month counted as elapsed: the end
// date's day, capped at today when the month is the current one, and zero
// for a month that has not started yet.
func lastElapsedDay(cal *Calendar, endDate, today time.Time) int {
	monthStart := cal.Date(1)
	todayMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	switch {
	case monthStart.After(todayMonth):
		return 0
	case cal.Contains(today):
		return min(endDate.Day(), today.Day())
	default:
		return endDate.Day()
	}
}

func revenueThrough(series []domain.DailyRevenue, cal *Calendar, day int) float64 {
	total := 0.0
	for _, p := range series {
		t, err := time.Parse(domain.ISODateLayout, p.IsoDate)
		if err != nil || !cal.Contains(t) || t.Day() > day {
			continue
		}
		total += p.Total
	}
	return total
}

func revenueOn(series []domain.DailyRevenue, iso string) float64 {
	for _, p := range series {
		if p.IsoDate == iso {
			return p.Total
		}
	}
	return 0
}

func percentage(value, target float64) float64 {
	if target == 0 {
		return 0
	}
	return value / target * 100
}

func monthlyStatus(pct, revenue, monthTarget float64, elapsed, days int) domain.Status {
	if pct >= 100 {
		return domain.StatusOver
	}
	if days == 0 {
		return domain.StatusBehind
	}
	expected := 100 * float64(elapsed) / float64(days)
	if percentage(revenue, monthTarget) >= expected-monthlyTolerance {
		return domain.StatusOnTrack
	}
	return domain.StatusBehind
}

func dailyStatus(pct float64) domain.Status {
	switch {
	case pct >= 100:
		return domain.StatusOver
	case pct >= dailyOnTrack:
		return domain.StatusOnTrack
	default:
		return domain.StatusBehind
	}
}

func parseDay(field, value string) (time.Time, error) {
	t, err := time.Parse(domain.ISODateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: invalid date %q", field, value)
	}
	return t, nil
}

func parseDayOr(field, value string, fallback time.Time) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	return parseDay(field, value)
}
