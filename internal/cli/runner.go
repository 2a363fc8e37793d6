// Package cli implements the planner terminal client's subcommands on top of
// the JSON API.
package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/daily-planner/planner/internal/calendar"
	"github.com/daily-planner/planner/internal/client"
	"github.com/daily-planner/planner/internal/contracts"
	"github.com/daily-planner/planner/internal/search"
	"github.com/daily-planner/planner/internal/tui"
)

// API is the slice of the API client the subcommands use.
type API interface {
	SetSession(s client.Session)
	Register(ctx context.Context, email, password string) (client.Session, error)
	Login(ctx context.Context, email, password string) (client.Session, error)
	Logout(ctx context.Context) error
	Calendar(ctx context.Context, month string) (contracts.CalendarMonth, error)
	Day(ctx context.Context, date string) ([]client.Todo, error)
	Create(ctx context.Context, title, description, date string) (client.Todo, error)
	Update(ctx context.Context, id string, p client.Patch) (client.Todo, error)
	SetCompleted(ctx context.Context, id string, completed bool) (client.Todo, error)
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, query string, seq uint64, limit int) (client.SearchResult, error)
}

type SessionStore interface {
	Load() (client.Session, error)
	Save(s client.Session) error
	Clear() error
}

type Runner struct {
	API      API
	Sessions SessionStore
	In       io.Reader
	Out      io.Writer
	Err      io.Writer
	Now      func() time.Time
	// RunSearch drives the interactive prompt; tests replace it.
	RunSearch func(m tui.SearchModel) (tui.SearchModel, error)
}

var errUsage = errors.New("usage")

// Run dispatches one subcommand and returns the exit code: 0 ok, 1 error,
// 2 usage.
func (r *Runner) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		r.PrintHelp()
		return 2
	}
	cmd, rest := args[0], args[1:]

	var err error
	switch cmd {
	case "help", "-h", "--help":
		r.PrintHelp()
		return 0
	case "register":
		err = r.authenticate(ctx, "register", rest, r.API.Register)
	case "login":
		err = r.authenticate(ctx, "login", rest, r.API.Login)
	case "logout":
		err = r.logout(ctx)
	case "month":
		err = r.withSession(func() error { return r.month(ctx, rest) })
	case "day":
		err = r.withSession(func() error { return r.day(ctx, rest) })
	case "add":
		err = r.withSession(func() error { return r.add(ctx, rest) })
	case "edit":
		err = r.withSession(func() error { return r.edit(ctx, rest) })
	case "toggle":
		err = r.withSession(func() error { return r.toggle(ctx, rest) })
	case "rm":
		err = r.withSession(func() error { return r.remove(ctx, rest) })
	case "search":
		err = r.withSession(func() error { return r.search(ctx, rest) })
	default:
		fmt.Fprintf(r.Err, "unknown subcommand: %s\n\n", cmd)
		r.PrintHelp()
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintln(r.Err, err)
		return 2
	case errors.Is(err, client.ErrUnauthorized), errors.Is(err, client.ErrNoSession):
		fmt.Fprintln(r.Err, "not signed in: run `planner login <email>`")
		return 1
	default:
		fmt.Fprintln(r.Err, "error:", err)
		return 1
	}
}

func (r *Runner) PrintHelp() {
	fmt.Fprint(r.Out, `planner - your daily planner in the terminal

Usage:
  planner <subcommand> [args]

Subcommands:
  register <email>                 Create an account (password read from stdin)
  login <email>                    Sign in (password read from stdin)
  logout                           Sign out and forget the saved session
  month [YYYY-MM]                  Show a month with per-day status markers
  day [YYYY-MM-DD]                 List one day's todos (default today)
  add [-d text] <date> <title...>  Add a todo to a day
  edit <id> [-d text] [title...]   Rename a todo or change its description
  toggle <date> <id>               Flip a todo between done and not done
  rm <id>                          Delete a todo
  search [-i] <query...>           Search titles and descriptions

Examples:
  planner add 2025-03-10 Buy milk
  planner search milk
  planner search -i
`)
}

func usage(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errUsage}, args...)...)
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) withSession(fn func() error) error {
	sess, err := r.Sessions.Load()
	if err != nil {
		return err
	}
	r.API.SetSession(sess)
	return fn()
}

func (r *Runner) authenticate(ctx context.Context, name string, args []string, fn func(context.Context, string, string) (client.Session, error)) error {
	if len(args) != 1 {
		return usage("planner %s <email>", name)
	}
	fmt.Fprint(r.Err, "Password: ")
	password, err := bufio.NewReader(r.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	sess, err := fn(ctx, args[0], strings.TrimRight(password, "\r\n"))
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			return errors.New(apiErr.Message)
		}
		return err
	}
	if err := r.Sessions.Save(sess); err != nil {
		return err
	}
	greeting := "Welcome back"
	if name == "register" {
		greeting = "Welcome"
	}
	fmt.Fprintf(r.Out, "%s, %s\n", greeting, sess.Email)
	return nil
}

func (r *Runner) logout(ctx context.Context) error {
	sess, err := r.Sessions.Load()
	if errors.Is(err, client.ErrNoSession) {
		return nil
	}
	if err != nil {
		return err
	}
	r.API.SetSession(sess)
	logoutErr := r.API.Logout(ctx)
	if err := r.Sessions.Clear(); err != nil {
		return err
	}
	if logoutErr != nil && !errors.Is(logoutErr, client.ErrUnauthorized) {
		fmt.Fprintln(r.Err, "warning: server sign-out failed:", logoutErr)
	}
	fmt.Fprintln(r.Out, "Signed out.")
	return nil
}

func (r *Runner) month(ctx context.Context, args []string) error {
	month := ""
	switch len(args) {
	case 0:
	case 1:
		if _, err := calendar.ParseMonth(args[0]); err != nil {
			return usage("month must look like 2025-03")
		}
		month = args[0]
	default:
		return usage("planner month [YYYY-MM]")
	}
	m, err := r.API.Calendar(ctx, month)
	if err != nil {
		return err
	}
	fmt.Fprint(r.Out, tui.RenderMonth(m))
	return nil
}

func (r *Runner) dateArg(args []string, i int) (string, error) {
	if len(args) <= i {
		return calendar.FormatDate(r.now()), nil
	}
	if !calendar.IsDate(args[i]) {
		return "", usage("%q is not a valid YYYY-MM-DD date", args[i])
	}
	return args[i], nil
}

func (r *Runner) day(ctx context.Context, args []string) error {
	if len(args) > 1 {
		return usage("planner day [YYYY-MM-DD]")
	}
	date, err := r.dateArg(args, 0)
	if err != nil {
		return err
	}
	list, err := r.API.Day(ctx, date)
	if err != nil {
		return err
	}
	fmt.Fprint(r.Out, tui.RenderDay(date, list))
	return nil
}

func (r *Runner) add(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	desc := fs.String("d", "", "description")
	if err := fs.Parse(args); err != nil {
		return usage("planner add [-d text] <date> <title...>")
	}
	rest := fs.Args()
	if len(rest) < 2 {
		return usage("planner add [-d text] <date> <title...>")
	}
	date, err := r.dateArg(rest, 0)
	if err != nil {
		return err
	}
	title := strings.TrimSpace(strings.Join(rest[1:], " "))
	if title == "" {
		return usage("title is required")
	}
	t, err := r.API.Create(ctx, title, *desc, date)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.Out, "Added %q to %s (%s)\n", t.Title, search.FormatHeading(t.Date), t.ID)
	return nil
}

func (r *Runner) edit(ctx context.Context, args []string) error {
	const syntax = "planner edit <id> [-d text] [title...]"
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return usage(syntax)
	}
	id := args[0]
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	desc := fs.String("d", "", "description")
	if err := fs.Parse(args[1:]); err != nil {
		return usage(syntax)
	}

	var p client.Patch
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "d" {
			p.Description = desc
		}
	})
	if fs.NArg() > 0 {
		title := strings.TrimSpace(strings.Join(fs.Args(), " "))
		if title == "" {
			return usage("title is required")
		}
		p.Title = &title
	}
	if p.Title == nil && p.Description == nil {
		return usage(syntax)
	}

	t, err := r.API.Update(ctx, id, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.Out, "Updated %q on %s\n", t.Title, search.FormatHeading(t.Date))
	return nil
}

func (r *Runner) toggle(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("planner toggle <date> <id>")
	}
	date, err := r.dateArg(args, 0)
	if err != nil {
		return err
	}
	list, err := r.API.Day(ctx, date)
	if err != nil {
		return err
	}
	for _, t := range list {
		if t.ID != args[1] {
			continue
		}
		updated, err := r.API.SetCompleted(ctx, t.ID, !t.Completed)
		if err != nil {
			return err
		}
		state := "not done"
		if updated.Completed {
			state = "done"
		}
		fmt.Fprintf(r.Out, "Marked %q as %s\n", updated.Title, state)
		return nil
	}
	return fmt.Errorf("no todo %s on %s", args[1], date)
}

func (r *Runner) remove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("planner rm <id>")
	}
	if err := r.API.Delete(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(r.Out, "Deleted.")
	return nil
}

func (r *Runner) search(ctx context.Context, args []string) error {
	if len(args) > 0 && args[0] == "-i" {
		return r.interactiveSearch(ctx)
	}
	query := search.Normalize(strings.Join(args, " "))
	if !search.Qualifies(query) {
		return usage("type at least %d characters to search", search.MinQueryLength)
	}
	res, err := r.API.Search(ctx, query, 0, 0)
	if err != nil {
		return err
	}
	if len(res.Todos) == 0 {
		fmt.Fprintf(r.Out, "No todos match %q\n", query)
		return nil
	}
	noun := "todos"
	if len(res.Todos) == 1 {
		noun = "todo"
	}
	fmt.Fprintf(r.Out, "Found %d %s matching %q\n", len(res.Todos), noun, query)
	for _, g := range search.GroupByDate(res.Todos, func(t client.Todo) string { return t.Date }) {
		fmt.Fprintf(r.Out, "\n%s\n", search.FormatHeading(g.Date))
		for _, t := range g.Items {
			box := "[ ]"
			if t.Completed {
				box = "[x]"
			}
			fmt.Fprintf(r.Out, "  %s %s  (%s)\n", box, t.Title, t.ID)
		}
	}
	return nil
}

func (r *Runner) interactiveSearch(ctx context.Context) error {
	run := r.RunSearch
	if run == nil {
		run = func(m tui.SearchModel) (tui.SearchModel, error) {
			final, err := tea.NewProgram(m, tea.WithContext(ctx), tea.WithOutput(r.Err)).Run()
			if err != nil {
				return m, err
			}
			return final.(tui.SearchModel), nil
		}
	}
	final, err := run(tui.NewSearchModel(r.API))
	if err != nil {
		return err
	}
	chosen, ok := final.Chosen()
	if !ok {
		return nil
	}
	return r.day(ctx, []string{chosen.Date})
}
