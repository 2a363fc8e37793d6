package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/daily-planner/planner/internal/platform/sqlitedb"
)

type SQLiteRepository struct {
	DB *sqlx.DB
}

func NewSQLiteRepository(db *sqlx.DB) *SQLiteRepository {
	return &SQLiteRepository{DB: db}
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS refresh_tokens (
  token_id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  token_hash TEXT NOT NULL UNIQUE,
  expires_at TEXT NOT NULL,
  revoked_at TEXT,
  created_at TEXT NOT NULL
);`

type userRow struct {
	ID           string `db:"id"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	CreatedAt    string `db:"created_at"`
}

type refreshTokenRow struct {
	TokenID   string         `db:"token_id"`
	UserID    string         `db:"user_id"`
	TokenHash string         `db:"token_hash"`
	ExpiresAt string         `db:"expires_at"`
	RevokedAt sql.NullString `db:"revoked_at"`
	CreatedAt string         `db:"created_at"`
}

func (r *SQLiteRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("creating identity schema: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, user User) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, sqlitedb.FormatTime(user.CreatedAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrEmailTaken
	}
	return err
}

func (r *SQLiteRepository) FindUserByEmail(ctx context.Context, email string) (User, error) {
	return r.findUser(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, email)
}

func (r *SQLiteRepository) FindUserByID(ctx context.Context, userID string) (User, error) {
	return r.findUser(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE id = ?`, userID)
}

func (r *SQLiteRepository) findUser(ctx context.Context, query, arg string) (User, error) {
	var row userRow
	if err := r.DB.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	createdAt, err := sqlitedb.ParseTime(row.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return User{ID: row.ID, Email: row.Email, PasswordHash: row.PasswordHash, CreatedAt: createdAt}, nil
}

func (r *SQLiteRepository) CreateRefreshToken(ctx context.Context, token RefreshToken) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token_id, user_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		token.TokenID, token.UserID, token.TokenHash,
		sqlitedb.FormatTime(token.ExpiresAt), sqlitedb.FormatTime(token.CreatedAt),
	)
	return err
}

func (r *SQLiteRepository) FindRefreshTokenByHash(ctx context.Context, tokenHash string, now time.Time) (RefreshToken, error) {
	var row refreshTokenRow
	err := r.DB.GetContext(ctx, &row,
		`SELECT token_id, user_id, token_hash, expires_at, revoked_at, created_at
		 FROM refresh_tokens
		 WHERE token_hash = ? AND revoked_at IS NULL AND expires_at > ?`,
		tokenHash, sqlitedb.FormatTime(now),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RefreshToken{}, ErrNotFound
		}
		return RefreshToken{}, err
	}

	rt := RefreshToken{TokenID: row.TokenID, UserID: row.UserID, TokenHash: row.TokenHash}
	if rt.ExpiresAt, err = sqlitedb.ParseTime(row.ExpiresAt); err != nil {
		return RefreshToken{}, err
	}
	if rt.CreatedAt, err = sqlitedb.ParseTime(row.CreatedAt); err != nil {
		return RefreshToken{}, err
	}
	return rt, nil
}

func (r *SQLiteRepository) RevokeRefreshToken(ctx context.Context, tokenID string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE token_id = ? AND revoked_at IS NULL`,
		sqlitedb.FormatTime(at), tokenID,
	)
	return err
}
