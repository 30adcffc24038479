package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"

	"github.com/ae-platform/account-management/internal/domain"
)

const uniqueViolation = "23505"

const userColumns = `
	id, login, email, password_hash, first_name, last_name, lang_key,
	activated, activation_key, reset_key, reset_date, authorities,
	created_at, updated_at
`

// UsersRepository is the Postgres-backed UserStore. Uniqueness of login
// and email is enforced by unique indexes on lower(login) and
// lower(email); a write conflict is translated into the matching typed
// error, making the database the authoritative enforcement point.
type UsersRepository struct {
	db *sql.DB
}

// NewUsersRepository creates a new users repository.
func NewUsersRepository(db *sql.DB) *UsersRepository {
	return &UsersRepository{db: db}
}

// FindByLogin retrieves a user by login, case-insensitively.
func (r *UsersRepository) FindByLogin(ctx context.Context, login string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(login) = lower($1)`
	return r.queryOne(ctx, query, login)
}

// FindByEmail retrieves a user by email, case-insensitively.
func (r *UsersRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return r.queryOne(ctx, query, email)
}

// FindByActivationKey retrieves a user by exact activation key match.
func (r *UsersRepository) FindByActivationKey(ctx context.Context, key string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE activation_key = $1`
	return r.queryOne(ctx, query, key)
}

// FindByResetKey retrieves a user by exact reset key match.
func (r *UsersRepository) FindByResetKey(ctx context.Context, key string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE reset_key = $1`
	return r.queryOne(ctx, query, key)
}

// Create inserts a new user.
func (r *UsersRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Login, user.Email, user.PasswordHash,
		user.FirstName, user.LastName, user.LangKey,
		user.Activated, user.ActivationKey, user.ResetKey, user.ResetDate,
		pq.Array(user.Authorities), user.CreatedAt, user.UpdatedAt,
	)
	return translateUniqueViolation(err)
}

// Update persists changes to an existing user. Login is immutable and is
// not part of the update set.
func (r *UsersRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET email = $2, password_hash = $3, first_name = $4, last_name = $5,
		    lang_key = $6, activated = $7, activation_key = $8,
		    reset_key = $9, reset_date = $10, authorities = $11, updated_at = $12
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.PasswordHash,
		user.FirstName, user.LastName, user.LangKey,
		user.Activated, user.ActivationKey, user.ResetKey, user.ResetDate,
		pq.Array(user.Authorities), user.UpdatedAt,
	)
	if err != nil {
		return translateUniqueViolation(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UsersRepository) queryOne(ctx context.Context, query string, arg interface{}) (*domain.User, error) {
	user := &domain.User{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Login, &user.Email, &user.PasswordHash,
		&user.FirstName, &user.LastName, &user.LangKey,
		&user.Activated, &user.ActivationKey, &user.ResetKey, &user.ResetDate,
		pq.Array(&user.Authorities), &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// translateUniqueViolation maps Postgres unique-constraint violations onto
// the lifecycle's typed conflict errors. The index name decides which
// field collided.
func translateUniqueViolation(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}
	switch {
	case strings.Contains(pqErr.Constraint, "login"):
		return domain.ErrLoginAlreadyUsed
	case strings.Contains(pqErr.Constraint, "email"):
		return domain.ErrEmailAlreadyUsed
	default:
		return err
	}
}
