package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status classifies progress against a target.
type Status string

const (
	StatusOnTrack Status = "ontrack"
	StatusBehind  Status = "behind"
	StatusOver    Status = "over"
)

const monthLayout = "2006-01"

// TargetConfig is the revenue target setup for one month.
type TargetConfig struct {
	Month               string    `json:"month" db:"month"`
	MonthlyTarget       float64   `json:"monthlyTarget" db:"monthly_target"`
	WeekdayImplied      float64   `json:"weekdayImplied" db:"weekday_implied"`
	WeekendTargetPerDay float64   `json:"weekendTargetPerDay" db:"weekend_target_per_day"`
	HolidayTargetPerDay float64   `json:"holidayTargetPerDay" db:"holiday_target_per_day"`
	SpecialHolidays     []int     `json:"specialHolidays" db:"-"`
	UpdatedAt           time.Time `json:"updatedAt" db:"updated_at"`
}

// Validate checks the month key and the target amounts.
func (c *TargetConfig) Validate() error {
	if _, err := ParseMonth(c.Month); err != nil {
		return err
	}
	if c.MonthlyTarget < 0 || c.WeekendTargetPerDay < 0 || c.HolidayTargetPerDay < 0 {
		return fmt.Errorf("targets must not be negative")
	}
	for _, d := range c.SpecialHolidays {
		if d < 1 || d > 31 {
			return fmt.Errorf("special holiday %d is not a day of month", d)
		}
	}
	return nil
}

// NormalizeHolidays sorts and de-duplicates SpecialHolidays, dropping days
// outside 1..31.
func (c *TargetConfig) NormalizeHolidays() {
	c.SpecialHolidays = NormalizeDays(c.SpecialHolidays)
}

// NormalizeDays sorts and de-duplicates day-of-month values in 1..31.
func NormalizeDays(days []int) []int {
	seen := make(map[int]struct{}, len(days))
	out := make([]int, 0, len(days))
	for _, d := range days {
		if d < 1 || d > 31 {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

// MonthKey formats t as "YYYY-MM".
func MonthKey(t time.Time) string {
	return t.Format(monthLayout)
}

// ParseMonth parses a "YYYY-MM" month key.
func ParseMonth(key string) (time.Time, error) {
	t, err := time.Parse(monthLayout, strings.TrimSpace(key))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q, expected YYYY-MM", key)
	}
	return t, nil
}

// KpiInput is the full snapshot the KPI engine computes from.
type KpiInput struct {
	DailySeries         []DailyRevenue `json:"dailySeries"`
	SelectedDate        string         `json:"selectedDateIso"`
	EndDate             string         `json:"endDateIso"`
	Today               string         `json:"todayIso"`
	SpecialHolidays     []int          `json:"specialHolidays"`
	CompanyMonthTarget  float64        `json:"companyMonthTarget"`
	WeekendTargetPerDay float64        `json:"weekendTargetPerDay"`
	HolidayTargetPerDay float64        `json:"holidayTargetPerDay"`
	ActualRevenueToday  *float64       `json:"actualRevenueToday,omitempty"`
	ActualRevenueMTD    *float64       `json:"actualRevenueMTD,omitempty"`
}

// DayTarget is the target assigned to one day of the month.
type DayTarget struct {
	IsoDate string  `json:"isoDate"`
	Kind    string  `json:"kind"`
	Target  float64 `json:"target"`
}

// Day kinds used by DayTarget.
const (
	DayKindWeekday = "weekday"
	DayKindWeekend = "weekend"
	DayKindHoliday = "holiday"
)

// KpiMetrics is recomputed wholesale on every input change.
type KpiMetrics struct {
	DailyTargetForCurrentDay  float64        `json:"dailyTargetForCurrentDay"`
	DailyTargetForSelectedDay float64        `json:"dailyTargetForSelectedDay"`
	TargetUntilNow            float64        `json:"targetUntilNow"`
	CurrentRevenue            float64        `json:"currentRevenue"`
	CurrentPercentage         float64        `json:"currentPercentage"`
	RemainingTarget           float64        `json:"remainingTarget"`
	DailyKpiRevenue           float64        `json:"dailyKpiRevenue"`
	DailyPercentage           float64        `json:"dailyPercentage"`
	DailyKpiLeft              float64        `json:"dailyKpiLeft"`
	DailyStatus               Status         `json:"dailyStatus"`
	MonthlyStatus             Status         `json:"monthlyStatus"`
	DailyKpiGrowthData        []DailyRevenue `json:"dailyKpiGrowthData"`

	MonthlyTarget       float64     `json:"monthlyTarget"`
	WeekdayTargetPerDay float64     `json:"weekdayTargetPerDay"`
	ElapsedDays         int         `json:"elapsedDays"`
	DaysInMonth         int         `json:"daysInMonth"`
	DailyTargets        []DayTarget `json:"dailyTargets"`
}
