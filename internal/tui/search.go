package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/daily-planner/planner/internal/client"
	"github.com/daily-planner/planner/internal/search"
)

// Searcher is the slice of the API client the search prompt needs.
type Searcher interface {
	Search(ctx context.Context, query string, seq uint64, limit int) (client.SearchResult, error)
}

// debounceMsg fires once typing has paused; tag identifies the keystroke that
// scheduled it.
type debounceMsg struct {
	tag   int
	query string
}

type resultsMsg struct {
	seq    uint64
	result client.SearchResult
	err    error
}

// SearchModel is an interactive search prompt. Queries are sent once typing
// settles and only the latest response is shown.
type SearchModel struct {
	searcher Searcher
	input    textinput.Model
	tracker  *search.Tracker
	delay    time.Duration
	timeout  time.Duration
	limit    int

	tag    int
	hits   []client.Todo
	cursor int
	err    error
	chosen *client.Todo
}

func NewSearchModel(s Searcher) SearchModel {
	in := textinput.New()
	in.Placeholder = "search todos..."
	in.Prompt = "/ "
	in.Focus()
	return SearchModel{
		searcher: s,
		input:    in,
		tracker:  search.NewTracker(),
		delay:    search.DebounceDelay,
		timeout:  5 * time.Second,
		limit:    search.InlineLimit,
	}
}

// Chosen returns the todo picked with enter, if any.
func (m SearchModel) Chosen() (client.Todo, bool) {
	if m.chosen == nil {
		return client.Todo{}, false
	}
	return *m.chosen, true
}

func (m SearchModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m SearchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case debounceMsg:
		if msg.tag != m.tag {
			return m, nil
		}
		seq, ok := m.tracker.Begin(msg.query)
		if !ok {
			m.hits = nil
			return m, nil
		}
		return m, m.runSearch(msg.query, seq)

	case resultsMsg:
		if !m.tracker.Current(msg.seq) {
			return m, nil
		}
		if msg.err != nil {
			m.tracker.Complete(msg.seq, 0)
			m.hits, m.err = nil, msg.err
			return m, nil
		}
		if m.tracker.Complete(msg.seq, len(msg.result.Todos)) {
			m.hits, m.err, m.cursor = msg.result.Todos, nil, 0
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m SearchModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.tracker.Reset()
		return m, tea.Quit
	case "up", "ctrl+p":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "ctrl+n":
		if m.cursor < len(m.hits)-1 {
			m.cursor++
		}
		return m, nil
	case "enter":
		if len(m.hits) == 0 {
			return m, nil
		}
		chosen := m.hits[m.cursor]
		m.chosen = &chosen
		m.tracker.Reset()
		return m, tea.Quit
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	value := m.input.Value()
	if value == before {
		return m, cmd
	}

	m.tag++
	if !search.Qualifies(value) {
		m.tracker.Begin(value)
		m.hits, m.err = nil, nil
		return m, cmd
	}
	tag := m.tag
	return m, tea.Batch(cmd, tea.Tick(m.delay, func(time.Time) tea.Msg {
		return debounceMsg{tag: tag, query: value}
	}))
}

func (m SearchModel) runSearch(query string, seq uint64) tea.Cmd {
	searcher, timeout, limit := m.searcher, m.timeout, m.limit
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		res, err := searcher.Search(ctx, query, seq, limit)
		return resultsMsg{seq: seq, result: res, err: err}
	}
}

func (m SearchModel) View() string {
	var b strings.Builder
	b.WriteString(m.input.View())
	b.WriteString("\n")

	query := m.tracker.Query()
	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render("Search is unavailable right now."))
		b.WriteString("\n")
	case m.tracker.State() == search.StateSearching:
		b.WriteString(mutedStyle.Render("Searching..."))
		b.WriteString("\n")
	case m.tracker.State() == search.StateNoResults:
		b.WriteString(mutedStyle.Render("No todos match \"" + query + "\""))
		b.WriteString("\n")
	case m.tracker.State() == search.StateHasResults:
		for i, t := range m.hits {
			prefix := "  "
			if i == m.cursor {
				prefix = selectedStyle.Render("> ")
			}
			b.WriteString(prefix + highlight(t.Title, query))
			if desc := t.DescriptionText(); desc != "" {
				b.WriteString(mutedStyle.Render(" - ") + highlight(desc, query))
			}
			b.WriteString(mutedStyle.Render("  " + search.FormatShort(t.Date)))
			b.WriteString("\n")
		}
	}
	b.WriteString(mutedStyle.Render("enter open · esc close"))
	return b.String()
}

func highlight(text, query string) string {
	var b strings.Builder
	for _, seg := range search.Highlight(text, query) {
		if seg.Match {
			b.WriteString(markStyle.Render(seg.Text))
			continue
		}
		b.WriteString(seg.Text)
	}
	return b.String()
}
