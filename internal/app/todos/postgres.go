package todos

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nuid"
)

type PostgresRepository struct {
	Pool  *pgxpool.Pool
	NewID func() string
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool, NewID: nuid.Next}
}

const createTodosSQL = `
CREATE TABLE IF NOT EXISTS todos (
  id text PRIMARY KEY,
  user_id text NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  title text NOT NULL CHECK (btrim(title) <> ''),
  description text,
  completed boolean NOT NULL DEFAULT false,
  date date NOT NULL,
  created_at timestamptz NOT NULL DEFAULT now()
)`

const createTodosUserDateIndexSQL = `
CREATE INDEX IF NOT EXISTS todos_user_date_idx ON todos (user_id, date)`

const selectTodoColumns = `id, user_id, title, description, completed, date::text, created_at`

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createTodosSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createTodosUserDateIndexSQL); err != nil {
		return err
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, f Filter) ([]Todo, error) {
	args := []any{f.UserID}
	where := []string{"user_id = $1"}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Date != "" {
		where = append(where, "date = "+arg(f.Date)+"::date")
	}
	if f.From != "" {
		where = append(where, "date >= "+arg(f.From)+"::date")
	}
	if f.To != "" {
		where = append(where, "date <= "+arg(f.To)+"::date")
	}
	if f.Contains != "" {
		p := arg(likePattern(f.Contains))
		where = append(where, "(title ILIKE "+p+" OR description ILIKE "+p+")")
	}

	query := "SELECT " + selectTodoColumns + " FROM todos WHERE " + strings.Join(where, " AND ") + orderClause(f.Order)
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying todos: %w", err)
	}
	defer rows.Close()

	result := make([]Todo, 0)
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, t Todo) (Todo, error) {
	if t.ID == "" {
		t.ID = r.NewID()
	}
	row := r.Pool.QueryRow(ctx,
		`INSERT INTO todos (id, user_id, title, description, completed, date, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::date, $7)
		 RETURNING `+selectTodoColumns,
		t.ID, t.UserID, t.Title, t.Description, t.Completed, t.Date, t.CreatedAt,
	)
	created, err := scanTodo(row)
	if err != nil {
		return Todo{}, fmt.Errorf("inserting todo: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) Update(ctx context.Context, userID, id string, p Patch) (Todo, error) {
	args := []any{userID, id}
	var set []string
	if p.Title != nil {
		args = append(args, *p.Title)
		set = append(set, fmt.Sprintf("title = $%d", len(args)))
	}
	if p.Description != nil {
		if *p.Description == "" {
			set = append(set, "description = NULL")
		} else {
			args = append(args, *p.Description)
			set = append(set, fmt.Sprintf("description = $%d", len(args)))
		}
	}
	if p.Completed != nil {
		args = append(args, *p.Completed)
		set = append(set, fmt.Sprintf("completed = $%d", len(args)))
	}
	if len(set) == 0 {
		return Todo{}, ErrNothingToApply
	}

	row := r.Pool.QueryRow(ctx,
		"UPDATE todos SET "+strings.Join(set, ", ")+" WHERE user_id = $1 AND id = $2 RETURNING "+selectTodoColumns,
		args...,
	)
	updated, err := scanTodo(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Todo{}, ErrNotFound
		}
		return Todo{}, fmt.Errorf("updating todo %s: %w", id, err)
	}
	return updated, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, id string) error {
	res, err := r.Pool.Exec(ctx, `DELETE FROM todos WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("deleting todo %s: %w", id, err)
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTodo(row pgx.Row) (Todo, error) {
	var t Todo
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Completed, &t.Date, &t.CreatedAt)
	if err != nil {
		return Todo{}, err
	}
	return t, nil
}
