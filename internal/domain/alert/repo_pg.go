package alert

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates a PostgreSQL-backed alert repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const alertCols = `id, elder_id, status, priority, latitude, longitude, address, notes, created_at, resolved_at, resolved_by, resolution_notes`

func scanAlert(row pgx.Row) (*EmergencyAlert, error) {
	var (
		a        EmergencyAlert
		lat, lon *float64
		addr     *string
	)
	err := row.Scan(&a.ID, &a.ElderID, &a.Status, &a.Priority, &lat, &lon, &addr, &a.Notes,
		&a.CreatedAt, &a.ResolvedAt, &a.ResolvedBy, &a.ResolutionNotes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lat != nil || lon != nil || addr != nil {
		a.Location = &Location{Latitude: lat, Longitude: lon, Address: addr}
	}
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *EmergencyAlert) error {
	a.ID = uuid.New()
	a.Status = StatusActive
	a.Priority = PriorityCritical
	var (
		lat, lon *float64
		addr     *string
	)
	if a.Location != nil {
		lat, lon, addr = a.Location.Latitude, a.Location.Longitude, a.Location.Address
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO emergency_alerts (id, elder_id, status, priority, latitude, longitude, address, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		a.ID, a.ElderID, a.Status, a.Priority, lat, lon, addr, a.Notes).Scan(&a.CreatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*EmergencyAlert, error) {
	return scanAlert(r.pool.QueryRow(ctx, `SELECT `+alertCols+` FROM emergency_alerts WHERE id = $1`, id))
}

// Resolve relies on a single conditional UPDATE so concurrent attempts
// serialize in the database: the row matches WHERE status='active' for
// exactly one of them.
func (r *repoPG) Resolve(ctx context.Context, id, resolvedBy uuid.UUID, notes *string) (*EmergencyAlert, error) {
	a, err := scanAlert(r.pool.QueryRow(ctx, `
		UPDATE emergency_alerts
		SET status = $2, resolved_at = NOW(), resolved_by = $3, resolution_notes = $4
		WHERE id = $1 AND status = $5
		RETURNING `+alertCols,
		id, StatusResolved, resolvedBy, notes, StatusActive))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// No row transitioned: either the alert is unknown or someone else won.
	var status Status
	err = r.pool.QueryRow(ctx, `SELECT status FROM emergency_alerts WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return nil, ErrAlreadyResolved
}

func (r *repoPG) ListActiveByElders(ctx context.Context, elderIDs []uuid.UUID) ([]*EmergencyAlert, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+alertCols+` FROM emergency_alerts
		WHERE status = $1 AND elder_id = ANY($2)
		ORDER BY created_at DESC`, StatusActive, elderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAlerts(rows)
}

func (r *repoPG) ListByElder(ctx context.Context, elderID uuid.UUID, limit, offset int) ([]*EmergencyAlert, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM emergency_alerts WHERE elder_id = $1`, elderID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT `+alertCols+` FROM emergency_alerts
		WHERE elder_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, elderID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	alerts, err := collectAlerts(rows)
	return alerts, total, err
}

func collectAlerts(rows pgx.Rows) ([]*EmergencyAlert, error) {
	var alerts []*EmergencyAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
