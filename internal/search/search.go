// Package search holds the rules shared by the inline search panel, the
// full-page results and the terminal client: query qualification,
// highlighting, date grouping and the request state machine.
package search

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MinQueryLength = 2
	InlineLimit    = 10
	DebounceDelay  = 300 * time.Millisecond
)

// Normalize trims surrounding whitespace from a raw query.
func Normalize(query string) string {
	return strings.TrimSpace(query)
}

// Qualifies reports whether a query is long enough to be sent to the store.
func Qualifies(query string) bool {
	return utf8.RuneCountInString(Normalize(query)) >= MinQueryLength
}

type Segment struct {
	Text  string
	Match bool
}

// Highlight splits text around every case-insensitive occurrence of the
// literal query. Concatenating the segments yields text unchanged.
func Highlight(text, query string) []Segment {
	query = Normalize(query)
	if text == "" {
		return nil
	}
	if query == "" {
		return []Segment{{Text: text}}
	}
	re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(query))

	var segments []Segment
	last := 0
	for _, loc := range re.FindAllStringIndex(text, -1) {
		if loc[0] > last {
			segments = append(segments, Segment{Text: text[last:loc[0]]})
		}
		segments = append(segments, Segment{Text: text[loc[0]:loc[1]], Match: true})
		last = loc[1]
	}
	if last < len(text) {
		segments = append(segments, Segment{Text: text[last:]})
	}
	return segments
}

type Group[T any] struct {
	Date  string
	Items []T
}

// GroupByDate buckets items by date, keeping groups in the order each date is
// first seen.
func GroupByDate[T any](items []T, dateOf func(T) string) []Group[T] {
	index := map[string]int{}
	var groups []Group[T]
	for _, item := range items {
		d := dateOf(item)
		i, ok := index[d]
		if !ok {
			i = len(groups)
			index[d] = i
			groups = append(groups, Group[T]{Date: d})
		}
		groups[i].Items = append(groups[i].Items, item)
	}
	return groups
}

const (
	headingLayout = "Monday, January 2, 2006"
	shortLayout   = "Jan 2, 2006"
	isoLayout     = "2006-01-02"
)

// FormatHeading renders 2025-03-10 as "Monday, March 10, 2025". Unparseable
// input is returned as is.
func FormatHeading(date string) string {
	return reformat(date, headingLayout)
}

// FormatShort renders 2025-03-10 as "Mar 10, 2025".
func FormatShort(date string) string {
	return reformat(date, shortLayout)
}

func reformat(date, layout string) string {
	t, err := time.Parse(isoLayout, date)
	if err != nil {
		return date
	}
	return t.Format(layout)
}
