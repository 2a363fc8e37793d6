package views

import (
	"context"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/daily-planner/planner/internal/app/todos"
	"github.com/daily-planner/planner/internal/search"
)

// Hit is one search result with its highlighted fields.
type Hit struct {
	Todo        todos.Todo
	Title       []search.Segment
	Description []search.Segment
	DateLabel   string
}

func newHit(t todos.Todo, query string) Hit {
	return Hit{
		Todo:        t,
		Title:       search.Highlight(t.Title, query),
		Description: search.Highlight(t.DescriptionText(), query),
		DateLabel:   search.FormatShort(t.Date),
	}
}

// SearchPanel is the inline header search dropdown.
type SearchPanel struct {
	Query  string
	Seq    uint64
	State  search.State
	Hits   []Hit
	Notice string
}

// Open reports whether the dropdown should be visible.
func (p SearchPanel) Open() bool {
	return p.State != search.StateIdle
}

// InlineSearch answers one settled inline query. seq is echoed so the client
// can drop responses for superseded queries.
func InlineSearch(ctx context.Context, store TodoStore, logger *log.Logger, userID, query string, seq uint64, limit int) SearchPanel {
	p := SearchPanel{Query: search.Normalize(query), Seq: seq, State: search.StateIdle}
	if !search.Qualifies(query) {
		return p
	}
	if limit <= 0 {
		limit = search.InlineLimit
	}
	list, err := store.Search(ctx, userID, query, limit)
	if err != nil {
		orDiscard(logger).Error("inline search", "user_id", userID, "query", p.Query, "err", err)
		p.Notice = NoticeSearchFailed
		return p
	}
	for _, t := range list {
		p.Hits = append(p.Hits, newHit(t, p.Query))
	}
	p.State = search.StateFor(p.Query, len(p.Hits))
	return p
}

type ResultGroup struct {
	Date    string
	Heading string
	Hits    []Hit
}

// SearchPage is the full-page results screen.
type SearchPage struct {
	Query  string
	State  search.State
	Total  int
	Groups []ResultGroup
	Notice string
}

// FullSearch runs an unlimited search and groups hits by date in the order
// the store returned them.
func FullSearch(ctx context.Context, store TodoStore, logger *log.Logger, userID, query string) SearchPage {
	page := SearchPage{Query: search.Normalize(query), State: search.StateIdle}
	if !search.Qualifies(query) {
		return page
	}
	list, err := store.Search(ctx, userID, query, 0)
	if err != nil {
		orDiscard(logger).Error("search page", "user_id", userID, "query", page.Query, "err", err)
		page.Notice = NoticeSearchFailed
		return page
	}
	for _, g := range search.GroupByDate(list, func(t todos.Todo) string { return t.Date }) {
		rg := ResultGroup{Date: g.Date, Heading: search.FormatHeading(g.Date)}
		for _, t := range g.Items {
			rg.Hits = append(rg.Hits, newHit(t, page.Query))
		}
		page.Groups = append(page.Groups, rg)
	}
	page.Total = len(list)
	page.State = search.StateFor(page.Query, page.Total)
	return page
}

// Summary renders "Found 3 todos matching" style text.
func (p SearchPage) Summary() string {
	noun := "todos"
	if p.Total == 1 {
		noun = "todo"
	}
	return "Found " + strconv.Itoa(p.Total) + " " + noun + " matching"
}
