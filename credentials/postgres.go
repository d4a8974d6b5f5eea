package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrEthical07/authgate/internal/dbx"
	"github.com/MrEthical07/authgate/permission"
)

const uniqueViolation = "23505"

const selectUser = `SELECT id, login, email, password_hash, role, registered_at FROM users`

// PostgresStore is a [Store] over the users table.
type PostgresStore struct {
	db dbx.DBTX
}

// NewPostgresStore binds a store to db.
func NewPostgresStore(db dbx.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByCredential(ctx context.Context, value string) (User, error) {
	query := selectUser + `
		WHERE lower(login) = lower($1) OR lower(email) = lower($1)
		ORDER BY id
		LIMIT 1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, value))
}

func (s *PostgresStore) FindByLoginOrEmail(ctx context.Context, login, email string) (User, error) {
	query := selectUser + `
		WHERE lower(login) = lower($1) OR lower(email) = lower($2)
		ORDER BY id
		LIMIT 1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, login, email))
}

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (User, error) {
	query := selectUser + `
		WHERE id = $1
	`
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

// Create inserts nu. A unique violation on login or email maps to ErrTaken.
func (s *PostgresStore) Create(ctx context.Context, nu NewUser) (User, error) {
	query := `
		INSERT INTO users (login, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, registered_at
	`
	u := User{
		Login:        nu.Login,
		Email:        nu.Email,
		PasswordHash: nu.PasswordHash,
		Role:         nu.Role,
	}
	err := s.db.QueryRowContext(ctx, query, nu.Login, nu.Email, nu.PasswordHash, string(nu.Role)).Scan(&u.ID, &u.RegisteredAt)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrTaken
		}
		return User{}, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) scanOne(row *sql.Row) (User, error) {
	var (
		u    User
		role string
	)
	if err := row.Scan(&u.ID, &u.Login, &u.Email, &u.PasswordHash, &role, &u.RegisteredAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("db error: %w", err)
	}
	u.Role = permission.Role(role)
	return u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolation
}
