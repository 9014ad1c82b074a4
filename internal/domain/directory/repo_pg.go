package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUserNotFound is returned when a looked-up user does not exist.
var ErrUserNotFound = errors.New("directory: user not found")

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates a PostgreSQL-backed directory repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const userCols = `id, name, role, email, phone, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Role, &u.Email, &u.Phone, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return &u, err
}

func (r *repoPG) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *repoPG) CaregiversOf(ctx context.Context, elderID uuid.UUID) ([]*User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.name, u.role, u.email, u.phone, u.created_at
		FROM users u
		JOIN user_caregivers uc ON uc.caregiver_id = u.id
		WHERE uc.elder_id = $1 AND uc.active
		ORDER BY u.name`, elderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (r *repoPG) EldersOf(ctx context.Context, caregiverID uuid.UUID) ([]*User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.name, u.role, u.email, u.phone, u.created_at
		FROM users u
		JOIN user_caregivers uc ON uc.elder_id = u.id
		WHERE uc.caregiver_id = $1 AND uc.active
		ORDER BY u.name`, caregiverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (r *repoPG) IsCaregiverFor(ctx context.Context, caregiverID, elderID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_caregivers
			WHERE caregiver_id = $1 AND elder_id = $2 AND active
		)`, caregiverID, elderID).Scan(&exists)
	return exists, err
}

func collectUsers(rows pgx.Rows) ([]*User, error) {
	var users []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Role, &u.Email, &u.Phone, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}
