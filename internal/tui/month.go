package tui

import (
	"strconv"
	"strings"

	"github.com/daily-planner/planner/internal/calendar"
	"github.com/daily-planner/planner/internal/client"
	"github.com/daily-planner/planner/internal/contracts"
	"github.com/daily-planner/planner/internal/search"
)

// Status markers drawn after the day number.
const (
	markPending = "•"
	markPartial = "◐"
	markDone    = "✓"
)

var weekdays = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// RenderMonth draws the grid as rows of seven cells with a legend.
func RenderMonth(m contracts.CalendarMonth) string {
	var b strings.Builder
	title := m.Month
	if first, err := calendar.ParseMonth(m.Month); err == nil {
		title = first.Format("January 2006")
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	for _, name := range weekdays {
		b.WriteString(weekdayStyle.Render(name))
	}
	b.WriteString("\n")

	for i, d := range m.Days {
		b.WriteString(renderCell(d))
		if i%7 == 6 {
			b.WriteString("\n")
		}
	}
	b.WriteString(mutedStyle.Render(markPending + " pending  " + markPartial + " partial  " + markDone + " done"))
	b.WriteString("\n")
	return b.String()
}

func renderCell(d contracts.CalendarDay) string {
	label := strconv.Itoa(d.Day)
	if !d.InMonth {
		return outsideStyle.Render(label + " ")
	}
	switch calendar.Status(d.Status) {
	case calendar.StatusPending:
		label += pendingStyle.Render(markPending)
	case calendar.StatusPartial:
		label += partialStyle.Render(markPartial)
	case calendar.StatusDone:
		label += doneStyle.Render(markDone)
	default:
		label += " "
	}
	if d.Today {
		return todayStyle.Render(label)
	}
	return cellStyle.Render(label)
}

// RenderDay lists one day's todos with their ids so they can be toggled or
// removed from the command line.
func RenderDay(date string, list []client.Todo) string {
	var b strings.Builder
	done := 0
	for _, t := range list {
		if t.Completed {
			done++
		}
	}
	b.WriteString(titleStyle.Render(search.FormatHeading(date)))
	b.WriteString(mutedStyle.Render("  " + strconv.Itoa(done) + "/" + strconv.Itoa(len(list)) + " completed"))
	b.WriteString("\n")
	if len(list) == 0 {
		b.WriteString(mutedStyle.Render("Nothing planned for this day."))
		b.WriteString("\n")
		return b.String()
	}
	for _, t := range list {
		box := "[ ]"
		if t.Completed {
			box = doneStyle.Render("[x]")
		}
		b.WriteString(box + " " + t.Title)
		if desc := t.DescriptionText(); desc != "" {
			b.WriteString(mutedStyle.Render(" - " + desc))
		}
		b.WriteString(mutedStyle.Render("  (" + t.ID + ")"))
		b.WriteString("\n")
	}
	return b.String()
}
