package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	// ISODateLayout is the canonical date format used across the API.
	ISODateLayout = "2006-01-02"
	// QueryDateLayout is the dd/mm/yyyy format the sales API expects.
	QueryDateLayout = "02/01/2006"
	labelLayout     = "02/01"
)

// BranchID identifies a store location (stockId on the sales API).
type BranchID string

// Scope is a named branch selection. An empty Branches slice means
// "all branches" and is sent as an empty stockId.
type Scope struct {
	Name     string     `json:"name"`
	Branches []BranchID `json:"branches"`
}

// Key returns a stable identifier for the scope, independent of branch order.
func (s Scope) Key() string {
	ids := make([]string, 0, len(s.Branches))
	for _, b := range s.Branches {
		ids = append(ids, string(b))
	}
	sort.Strings(ids)
	name := strings.ToUpper(strings.TrimSpace(s.Name))
	if name == "" {
		name = "ALL"
	}
	return name + ":" + strings.Join(ids, ",")
}

// IsSingleBranch reports whether the selection denotes one concrete branch.
func (s Scope) IsSingleBranch() bool {
	return len(s.Branches) == 1
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange truncates both ends to midnight and orders them.
func NewDateRange(start, end time.Time) DateRange {
	start, end = TruncateDay(start), TruncateDay(end)
	if end.Before(start) {
		start, end = end, start
	}
	return DateRange{Start: start, End: end}
}

// SingleDay returns the range covering exactly one day.
func SingleDay(day time.Time) DateRange {
	return NewDateRange(day, day)
}

// MonthToDate returns [first day of today's month, today].
func MonthToDate(today time.Time) DateRange {
	today = TruncateDay(today)
	first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
	return DateRange{Start: first, End: today}
}

// ParseDateRange parses ISO or dd/mm/yyyy start and end dates.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := ParseDate(start)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid start date: %w", err)
	}
	e, err := ParseDate(end)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid end date: %w", err)
	}
	return NewDateRange(s, e), nil
}

// ParseDate accepts yyyy-mm-dd or dd/mm/yyyy.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if strings.Contains(value, "/") {
		return time.Parse(QueryDateLayout, value)
	}
	return time.Parse(ISODateLayout, value)
}

// Days enumerates every day in the range, in order.
func (r DateRange) Days() []time.Time {
	if r.End.Before(r.Start) {
		return nil
	}
	var days []time.Time
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Key identifies the window, e.g. "2024-05-01..2024-05-31".
func (r DateRange) Key() string {
	return r.Start.Format(ISODateLayout) + ".." + r.End.Format(ISODateLayout)
}

// Query returns the dateStart/dateEnd parameters for the sales API.
func (r DateRange) Query() url.Values {
	q := url.Values{}
	q.Set("dateStart", r.Start.Format(QueryDateLayout))
	q.Set("dateEnd", r.End.Format(QueryDateLayout))
	return q
}

// TruncateDay drops the clock part while keeping the location.
func TruncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Payload is a decoded JSON object returned by the sales API.
type Payload map[string]any

// DecodePayload decodes a JSON object keeping numbers as json.Number.
func DecodePayload(raw []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if p == nil {
		p = Payload{}
	}
	return p, nil
}

// DailyRevenue is one aggregated point per calendar day.
type DailyRevenue struct {
	IsoDate   string  `json:"isoDate"`
	DateLabel string  `json:"dateLabel"`
	Total     float64 `json:"total"`
	Cash      float64 `json:"cash"`
	Transfer  float64 `json:"transfer"`
	Card      float64 `json:"card"`
	Failed    bool    `json:"failed,omitempty"`
}

// NewDailyRevenue builds the point for day from an aggregated payload.
func NewDailyRevenue(day time.Time, p Payload) DailyRevenue {
	cash := p.Amount(FieldCash)
	transfer := p.Amount(FieldTransfer)
	card := p.Amount(FieldCard)
	return DailyRevenue{
		IsoDate:   day.Format(ISODateLayout),
		DateLabel: day.Format(labelLayout),
		Total:     cash.Add(transfer).Add(card).InexactFloat64(),
		Cash:      cash.InexactFloat64(),
		Transfer:  transfer.InexactFloat64(),
		Card:      card.InexactFloat64(),
	}
}

// FailedDailyRevenue is the zero point substituted for a day whose fetch failed.
func FailedDailyRevenue(day time.Time) DailyRevenue {
	return DailyRevenue{
		IsoDate:   day.Format(ISODateLayout),
		DateLabel: day.Format(labelLayout),
		Failed:    true,
	}
}
