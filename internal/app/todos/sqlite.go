package todos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/daily-planner/planner/internal/platform/sqlitedb"
)

// SQLiteRepository stores todos in the embedded database. Dates are TEXT in
// YYYY-MM-DD form, so range comparisons are plain string comparisons. Contains
// compares folded text on both sides because LIKE only folds ASCII.
type SQLiteRepository struct {
	DB    *sqlx.DB
	NewID func() string
}

func NewSQLiteRepository(db *sqlx.DB) *SQLiteRepository {
	return &SQLiteRepository{
		DB:    db,
		NewID: func() string { return uuid.New().String() },
	}
}

const sqliteTodosSchema = `
CREATE TABLE IF NOT EXISTS todos (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  title TEXT NOT NULL CHECK (trim(title) <> ''),
  description TEXT,
  completed INTEGER NOT NULL DEFAULT 0,
  date TEXT NOT NULL,
  created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS todos_user_date_idx ON todos (user_id, date);`

type todoRow struct {
	ID          string         `db:"id"`
	UserID      string         `db:"user_id"`
	Title       string         `db:"title"`
	Description sql.NullString `db:"description"`
	Completed   bool           `db:"completed"`
	Date        string         `db:"date"`
	CreatedAt   string         `db:"created_at"`
}

func (row todoRow) todo() (Todo, error) {
	createdAt, err := sqlitedb.ParseTime(row.CreatedAt)
	if err != nil {
		return Todo{}, err
	}
	t := Todo{
		ID:        row.ID,
		UserID:    row.UserID,
		Title:     row.Title,
		Completed: row.Completed,
		Date:      row.Date,
		CreatedAt: createdAt,
	}
	if row.Description.Valid {
		t.Description = stringPtr(row.Description.String)
	}
	return t, nil
}

func (r *SQLiteRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, sqliteTodosSchema); err != nil {
		return fmt.Errorf("creating todos schema: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, f Filter) ([]Todo, error) {
	where := []string{"user_id = ?"}
	args := []any{f.UserID}

	if f.Date != "" {
		where = append(where, "date = ?")
		args = append(args, f.Date)
	}
	if f.From != "" {
		where = append(where, "date >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		where = append(where, "date <= ?")
		args = append(args, f.To)
	}
	if f.Contains != "" {
		p := sqlitedb.Fold(likePattern(f.Contains))
		where = append(where, `(`+sqlitedb.FoldFunc+`(title) LIKE ? ESCAPE '\' OR `+sqlitedb.FoldFunc+`(description) LIKE ? ESCAPE '\')`)
		args = append(args, p, p)
	}

	query := "SELECT id, user_id, title, description, completed, date, created_at FROM todos WHERE " +
		strings.Join(where, " AND ") + orderClause(f.Order)
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	var rows []todoRow
	if err := r.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying todos: %w", err)
	}
	result := make([]Todo, 0, len(rows))
	for _, row := range rows {
		t, err := row.todo()
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, t Todo) (Todo, error) {
	if t.ID == "" {
		t.ID = r.NewID()
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO todos (id, user_id, title, description, completed, date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Title, t.Description, t.Completed, t.Date, sqlitedb.FormatTime(t.CreatedAt),
	)
	if err != nil {
		return Todo{}, fmt.Errorf("inserting todo: %w", err)
	}
	return r.get(ctx, t.UserID, t.ID)
}

func (r *SQLiteRepository) Update(ctx context.Context, userID, id string, p Patch) (Todo, error) {
	var set []string
	var args []any
	if p.Title != nil {
		set = append(set, "title = ?")
		args = append(args, *p.Title)
	}
	if p.Description != nil {
		if *p.Description == "" {
			set = append(set, "description = NULL")
		} else {
			set = append(set, "description = ?")
			args = append(args, *p.Description)
		}
	}
	if p.Completed != nil {
		set = append(set, "completed = ?")
		args = append(args, *p.Completed)
	}
	if len(set) == 0 {
		return Todo{}, ErrNothingToApply
	}
	args = append(args, userID, id)

	res, err := r.DB.ExecContext(ctx,
		"UPDATE todos SET "+strings.Join(set, ", ")+" WHERE user_id = ? AND id = ?",
		args...,
	)
	if err != nil {
		return Todo{}, fmt.Errorf("updating todo %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Todo{}, ErrNotFound
	}
	return r.get(ctx, userID, id)
}

func (r *SQLiteRepository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM todos WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("deleting todo %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) get(ctx context.Context, userID, id string) (Todo, error) {
	var row todoRow
	err := r.DB.GetContext(ctx, &row,
		`SELECT id, user_id, title, description, completed, date, created_at FROM todos WHERE user_id = ? AND id = ?`,
		userID, id,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Todo{}, ErrNotFound
		}
		return Todo{}, fmt.Errorf("getting todo %s: %w", id, err)
	}
	return row.todo()
}
