package kpi

import (
	"time"

	"github.com/andresuchdata/salesboard/backend-go/internal/domain"
)

// Calendar assigns a target to every day of one month.
type Calendar struct {
	year     int
	month    time.Month
	days     int
	holidays map[int]bool

	weekdayTarget float64
	weekendTarget float64
	holidayTarget float64
}

// NewCalendar builds the month calendar. The implied weekday target is what
// remains of monthTarget after weekend and holiday allocations, spread over
// the ordinary weekdays of the whole month. It never goes below zero.
func NewCalendar(month time.Time, holidays []int, monthTarget, weekendPerDay, holidayPerDay float64) *Calendar {
	c := &Calendar{
		year:          month.Year(),
		month:         month.Month(),
		days:          daysIn(month.Year(), month.Month()),
		holidays:      make(map[int]bool, len(holidays)),
		weekendTarget: weekendPerDay,
		holidayTarget: holidayPerDay,
	}
	for _, d := range domain.NormalizeDays(holidays) {
		if d <= c.days {
			c.holidays[d] = true
		}
	}

	weekdays := 0
	allocated := 0.0
	for d := 1; d <= c.days; d++ {
		switch c.Kind(d) {
		case domain.DayKindHoliday:
			allocated += holidayPerDay
		case domain.DayKindWeekend:
			allocated += weekendPerDay
		default:
			weekdays++
		}
	}
	if weekdays > 0 {
		c.weekdayTarget = max(0, (monthTarget-allocated)/float64(weekdays))
	}
	return c
}

// Days is the number of days in the month.
func (c *Calendar) Days() int { return c.days }

// WeekdayTarget is the implied per-day target of an ordinary weekday.
func (c *Calendar) WeekdayTarget() float64 { return c.weekdayTarget }

// Date returns the given day of the month at midnight UTC.
func (c *Calendar) Date(day int) time.Time {
	return time.Date(c.year, c.month, day, 0, 0, 0, 0, time.UTC)
}

// Kind classifies day. Special holidays take precedence over weekends.
func (c *Calendar) Kind(day int) string {
	if c.holidays[day] {
		return domain.DayKindHoliday
	}
	switch c.Date(day).Weekday() {
	case time.Saturday, time.Sunday:
		return domain.DayKindWeekend
	}
	return domain.DayKindWeekday
}

// Target returns the target of day; zero outside the month.
func (c *Calendar) Target(day int) float64 {
	if day < 1 || day > c.days {
		return 0
	}
	switch c.Kind(day) {
	case domain.DayKindHoliday:
		return c.holidayTarget
	case domain.DayKindWeekend:
		return c.weekendTarget
	}
	return c.weekdayTarget
}

// TargetThrough sums the targets of days 1..day.
func (c *Calendar) TargetThrough(day int) float64 {
	total := 0.0
	for d := 1; d <= min(day, c.days); d++ {
		total += c.Target(d)
	}
	return total
}

// Schedule lists the target of every day in the month.
func (c *Calendar) Schedule() []domain.DayTarget {
	out := make([]domain.DayTarget, 0, c.days)
	for d := 1; d <= c.days; d++ {
		out = append(out, domain.DayTarget{
			IsoDate: c.Date(d).Format(domain.ISODateLayout),
			Kind:    c.Kind(d),
			Target:  c.Target(d),
		})
	}
	return out
}

// Contains reports whether t falls in the calendar's month.
func (c *Calendar) Contains(t time.Time) bool {
	return t.Year() == c.year && t.Month() == c.month
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
