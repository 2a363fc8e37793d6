package calendar

import "time"

// Status summarizes the completion state of one day's todos.
type Status string

const (
	StatusNone    Status = ""
	StatusPending Status = "pending"
	StatusPartial Status = "partial"
	StatusDone    Status = "done"
)

// Entry is the minimum a grid needs to know about a todo.
type Entry struct {
	Date      string
	Completed bool
}

type Cell struct {
	Date    time.Time
	Day     int
	InMonth bool
	IsToday bool
	Count   int
	Status  Status
}

func (c Cell) Key() string {
	return FormatDate(c.Date)
}

type Grid struct {
	Month time.Time
	Prev  time.Time
	Next  time.Time
	Cells []Cell
}

// Weeks splits the grid into rows of seven.
func (g Grid) Weeks() [][]Cell {
	weeks := make([][]Cell, 0, len(g.Cells)/7)
	for i := 0; i+7 <= len(g.Cells); i += 7 {
		weeks = append(weeks, g.Cells[i:i+7])
	}
	return weeks
}

func StatusFor(total, completed int) Status {
	switch {
	case total == 0:
		return StatusNone
	case completed == total:
		return StatusDone
	case completed > 0:
		return StatusPartial
	default:
		return StatusPending
	}
}

// BuildGrid lays out the 42 cells for the month containing cursor. Only
// in-month cells carry counts; the overflow cells from the neighbouring months
// are plain placeholders.
func BuildGrid(cursor time.Time, entries []Entry, today time.Time) Grid {
	first := FirstOfMonth(cursor)
	offset := WeekdayOffset(first)
	days := DaysInMonth(first)

	type tally struct{ total, completed int }
	byDate := make(map[string]*tally, len(entries))
	for _, e := range entries {
		t := byDate[e.Date]
		if t == nil {
			t = &tally{}
			byDate[e.Date] = t
		}
		t.total++
		if e.Completed {
			t.completed++
		}
	}

	cells := make([]Cell, GridCells)
	for i := range cells {
		date := first.AddDate(0, 0, i-offset)
		c := Cell{
			Date:    date,
			Day:     date.Day(),
			InMonth: i >= offset && i < offset+days,
		}
		if c.InMonth {
			c.IsToday = SameDay(date, today)
			if t := byDate[FormatDate(date)]; t != nil {
				c.Count = t.total
				c.Status = StatusFor(t.total, t.completed)
			}
		}
		cells[i] = c
	}

	return Grid{
		Month: first,
		Prev:  ShiftMonth(first, -1),
		Next:  ShiftMonth(first, 1),
		Cells: cells,
	}
}
