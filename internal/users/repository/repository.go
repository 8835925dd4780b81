// Package repository reads and updates setter, closer and admin accounts.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"salescrm_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opGetByID          = "users.repository.get_by_id"
	opListActiveByRole = "users.repository.list_active_by_role"
	opDeactivate       = "users.repository.deactivate"

	msgUserNotFound = "user not found"
)

const userColumns = `id, email, display_name, role, COALESCE(calendar_id, ''), is_active, created_at, updated_at`

// User is an internal account. CalendarID is the identity used against the
// primary calendar and may be empty for setters.
type User struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role"`
	CalendarID  string    `json:"calendarId,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Store is the user directory.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	ListActiveByRole(ctx context.Context, role string) ([]User, error)
	Deactivate(ctx context.Context, id uuid.UUID) (User, error)
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, apperr.NotFound(msgUserNotFound).WithOp(opGetByID)
	}
	if err != nil {
		return User{}, apperr.Internal(fmt.Sprintf("get user failed: %v", err)).WithOp(opGetByID)
	}
	return user, nil
}

func (r *Repository) ListActiveByRole(ctx context.Context, role string) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role = $1 AND is_active
		ORDER BY display_name, id
	`, role)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list users failed: %v", err)).WithOp(opListActiveByRole)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan user failed: %v", err)).WithOp(opListActiveByRole)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate users failed: %v", err)).WithOp(opListActiveByRole)
	}
	return users, nil
}

// Deactivate marks the account inactive. Deactivating an inactive account
// returns it unchanged.
func (r *Repository) Deactivate(ctx context.Context, id uuid.UUID) (User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users
		SET is_active = FALSE, updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns, id)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, apperr.NotFound(msgUserNotFound).WithOp(opDeactivate)
	}
	if err != nil {
		return User{}, apperr.Internal(fmt.Sprintf("deactivate user failed: %v", err)).WithOp(opDeactivate)
	}
	return user, nil
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Role, &u.CalendarID, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
