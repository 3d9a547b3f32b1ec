package users

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PostgresDirectory implements Directory backed by PostgreSQL.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

var _ Directory = (*PostgresDirectory)(nil)

// EnsureSchema creates the users table if it does not exist.
// It is safe to call on every startup (all statements use IF NOT EXISTS).
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}

// NewPostgresDirectory returns a Directory backed by the given pgx connection pool.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

// NewPostgresDirectoryFromDSN creates a connection pool from a DSN string,
// ensures the schema exists, and returns a new Directory.
func NewPostgresDirectoryFromDSN(ctx context.Context, dsn string) (*PostgresDirectory, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewPostgresDirectory(pool), nil
}

// Close closes the underlying connection pool.
func (d *PostgresDirectory) Close() {
	d.pool.Close()
}

const selectUser = `SELECT id, name, email, password_hash, is_admin, created_at, updated_at FROM users`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (d *PostgresDirectory) Create(ctx context.Context, u *User) error {
	email := NormalizeEmail(u.Email)
	_, err := d.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, password_hash, is_admin, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Name, email, u.PasswordHash, u.IsAdmin, u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", email, ErrEmailTaken)
	}
	return err
}

func (d *PostgresDirectory) Get(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(d.pool.QueryRow(ctx, selectUser+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return u, err
}

func (d *PostgresDirectory) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(d.pool.QueryRow(ctx, selectUser+` WHERE email = $1`, NormalizeEmail(email)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", email, ErrNotFound)
	}
	return u, err
}

func (d *PostgresDirectory) Update(ctx context.Context, u *User) error {
	tag, err := d.pool.Exec(ctx,
		`UPDATE users SET name = $2, email = $3, password_hash = $4, is_admin = $5, updated_at = $6
		 WHERE id = $1`,
		u.ID, u.Name, NormalizeEmail(u.Email), u.PasswordHash, u.IsAdmin, u.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", u.Email, ErrEmailTaken)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", u.ID, ErrNotFound)
	}
	return nil
}

func (d *PostgresDirectory) List(ctx context.Context) ([]*User, error) {
	rows, err := d.pool.Query(ctx, selectUser+` ORDER BY created_at, email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
