// Package calendar holds the date arithmetic behind the month grid and the
// per-day routes. Dates are civil dates; times are normalized to midnight UTC.
package calendar

import (
	"errors"
	"regexp"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"

	GridCells = 42
)

var (
	ErrInvalidDate  = errors.New("date must be YYYY-MM-DD")
	ErrInvalidMonth = errors.New("month must be YYYY-MM")

	datePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	monthPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)
)

// ParseDate accepts only well-formed, existing dates ("2025-02-30" fails).
func ParseDate(s string) (time.Time, error) {
	if !datePattern.MatchString(s) {
		return time.Time{}, ErrInvalidDate
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

func IsDate(s string) bool {
	_, err := ParseDate(s)
	return err == nil
}

// ParseMonth parses YYYY-MM into the first day of that month.
func ParseMonth(s string) (time.Time, error) {
	if !monthPattern.MatchString(s) {
		return time.Time{}, ErrInvalidMonth
	}
	t, err := time.Parse(MonthLayout, s)
	if err != nil {
		return time.Time{}, ErrInvalidMonth
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func FormatMonth(t time.Time) string {
	return t.Format(MonthLayout)
}

// Civil drops the clock and location of t, keeping its wall date.
func Civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func FirstOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// LastOfMonth relies on day 0 of the next month normalizing to the last day
// of this one.
func LastOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC)
}

func DaysInMonth(t time.Time) int {
	return LastOfMonth(t).Day()
}

// WeekdayOffset is the number of leading cells before day 1 in a grid whose
// weeks start on Sunday.
func WeekdayOffset(t time.Time) int {
	return int(FirstOfMonth(t).Weekday())
}

// ShiftMonth moves a month cursor by n months. The cursor is pinned to day 1
// first so that Jan 31 + 1 lands in February.
func ShiftMonth(t time.Time, n int) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
}

func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
