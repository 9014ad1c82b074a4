package medication

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// =========== Definition Repository ===========

type definitionRepoPG struct{ pool *pgxpool.Pool }

// NewDefinitionRepoPG creates a PostgreSQL-backed definition repository.
func NewDefinitionRepoPG(pool *pgxpool.Pool) DefinitionRepository {
	return &definitionRepoPG{pool: pool}
}

const definitionCols = `id, elder_id, name, dosage, schedule_times, start_date, end_date, active, created_at, updated_at`

func scanDefinition(row pgx.Row) (*Definition, error) {
	var d Definition
	err := row.Scan(&d.ID, &d.ElderID, &d.Name, &d.Dosage, &d.ScheduleTimes,
		&d.StartDate, &d.EndDate, &d.Active, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &d, err
}

func (r *definitionRepoPG) Create(ctx context.Context, d *Definition) error {
	d.ID = uuid.New()
	d.Active = true
	return r.pool.QueryRow(ctx, `
		INSERT INTO medication_definitions (id, elder_id, name, dosage, schedule_times, start_date, end_date, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		d.ID, d.ElderID, d.Name, d.Dosage, d.ScheduleTimes, d.StartDate, d.EndDate, d.Active).
		Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *definitionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Definition, error) {
	return scanDefinition(r.pool.QueryRow(ctx,
		`SELECT `+definitionCols+` FROM medication_definitions WHERE id = $1`, id))
}

func (r *definitionRepoPG) Update(ctx context.Context, d *Definition) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE medication_definitions
		SET name = $2, dosage = $3, schedule_times = $4, start_date = $5, end_date = $6, updated_at = NOW()
		WHERE id = $1`,
		d.ID, d.Name, d.Dosage, d.ScheduleTimes, d.StartDate, d.EndDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *definitionRepoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE medication_definitions SET active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *definitionRepoPG) ListByElder(ctx context.Context, elderID uuid.UUID) ([]*Definition, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+definitionCols+` FROM medication_definitions
		WHERE elder_id = $1 AND active ORDER BY name`, elderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDefinitions(rows)
}

func (r *definitionRepoPG) ListActive(ctx context.Context) ([]*Definition, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+definitionCols+` FROM medication_definitions WHERE active ORDER BY elder_id, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDefinitions(rows)
}

func collectDefinitions(rows pgx.Rows) ([]*Definition, error) {
	var defs []*Definition
	for rows.Next() {
		var d Definition
		if err := rows.Scan(&d.ID, &d.ElderID, &d.Name, &d.Dosage, &d.ScheduleTimes,
			&d.StartDate, &d.EndDate, &d.Active, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		defs = append(defs, &d)
	}
	return defs, rows.Err()
}

// =========== Instance Repository ===========

type instanceRepoPG struct{ pool *pgxpool.Pool }

// NewInstanceRepoPG creates a PostgreSQL-backed instance repository.
func NewInstanceRepoPG(pool *pgxpool.Pool) InstanceRepository {
	return &instanceRepoPG{pool: pool}
}

const instanceCols = `id, definition_id, elder_id, scheduled_at, status, taken_at, notes, last_reminded_at, created_at`

func scanInstance(row pgx.Row) (*Instance, error) {
	var i Instance
	err := row.Scan(&i.ID, &i.DefinitionID, &i.ElderID, &i.ScheduledAt, &i.Status,
		&i.TakenAt, &i.Notes, &i.LastRemindedAt, &i.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &i, err
}

// UpsertPending leans on the UNIQUE(definition_id, scheduled_at) constraint:
// a conflicting insert is silently dropped, which is what makes a manual
// materialization run racing the daily job safe.
func (r *instanceRepoPG) UpsertPending(ctx context.Context, inst *Instance) (bool, error) {
	inst.ID = uuid.New()
	inst.Status = StatusPending
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO medication_instances (id, definition_id, elder_id, scheduled_at, status)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (definition_id, scheduled_at) DO NOTHING`,
		inst.ID, inst.DefinitionID, inst.ElderID, inst.ScheduledAt, inst.Status)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *instanceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Instance, error) {
	return scanInstance(r.pool.QueryRow(ctx,
		`SELECT `+instanceCols+` FROM medication_instances WHERE id = $1`, id))
}

const dueInstanceQuery = `
	SELECT i.id, i.definition_id, i.elder_id, i.scheduled_at, i.status,
	       i.taken_at, i.notes, i.last_reminded_at, i.created_at, d.name, d.dosage
	FROM medication_instances i
	JOIN medication_definitions d ON d.id = i.definition_id`

func (r *instanceRepoPG) ListByElderBetween(ctx context.Context, elderID uuid.UUID, from, to time.Time) ([]*DueInstance, error) {
	rows, err := r.pool.Query(ctx, dueInstanceQuery+`
		WHERE i.elder_id = $1 AND i.scheduled_at >= $2 AND i.scheduled_at < $3
		ORDER BY i.scheduled_at`, elderID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDueInstances(rows)
}

func (r *instanceRepoPG) ListDueForReminder(ctx context.Context, from, to time.Time) ([]*DueInstance, error) {
	rows, err := r.pool.Query(ctx, dueInstanceQuery+`
		WHERE i.status = $1
		  AND d.active
		  AND i.scheduled_at >= $2 AND i.scheduled_at <= $3
		  AND i.last_reminded_at IS NULL
		ORDER BY i.scheduled_at`, StatusPending, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDueInstances(rows)
}

func (r *instanceRepoPG) ListOverdue(ctx context.Context, before time.Time) ([]*DueInstance, error) {
	rows, err := r.pool.Query(ctx, dueInstanceQuery+`
		WHERE i.status = $1 AND i.scheduled_at < $2
		ORDER BY i.scheduled_at`, StatusPending, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDueInstances(rows)
}

func (r *instanceRepoPG) MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE medication_instances SET last_reminded_at = $2 WHERE id = $1`, id, at)
	return err
}

// Transition is the single-row compare-and-set that makes "mark taken"
// racing "auto-missed" resolve to exactly one winner.
func (r *instanceRepoPG) Transition(ctx context.Context, id uuid.UUID, to InstanceStatus, at time.Time, notes *string) (*Instance, error) {
	var takenAt *time.Time
	if to == StatusTaken {
		takenAt = &at
	}

	inst, err := scanInstance(r.pool.QueryRow(ctx, `
		UPDATE medication_instances
		SET status = $2, taken_at = $3, notes = COALESCE($4, notes)
		WHERE id = $1 AND status = $5
		RETURNING `+instanceCols,
		id, to, takenAt, notes, StatusPending))
	if err == nil {
		return inst, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	var status InstanceStatus
	err = r.pool.QueryRow(ctx,
		`SELECT status FROM medication_instances WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return nil, ErrAlreadyHandled
}

func (r *instanceRepoPG) Stats(ctx context.Context, elderID uuid.UUID, from, to time.Time) (*Stats, error) {
	var s Stats
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'taken'),
		       COUNT(*) FILTER (WHERE status = 'missed'),
		       COUNT(*) FILTER (WHERE status = 'skipped'),
		       COUNT(*) FILTER (WHERE status = 'pending')
		FROM medication_instances
		WHERE elder_id = $1 AND scheduled_at >= $2 AND scheduled_at < $3`,
		elderID, from, to).Scan(&s.Total, &s.Taken, &s.Missed, &s.Skipped, &s.Pending)
	if err != nil {
		return nil, err
	}
	s.AdherenceRate = adherencePercent(s.Taken, s.Total)
	return &s, nil
}

// adherencePercent rounds taken/total to a whole percentage.
func adherencePercent(taken, total int) int {
	if total == 0 {
		return 0
	}
	return int(float64(taken)/float64(total)*100 + 0.5)
}

func collectDueInstances(rows pgx.Rows) ([]*DueInstance, error) {
	var instances []*DueInstance
	for rows.Next() {
		var di DueInstance
		if err := rows.Scan(&di.ID, &di.DefinitionID, &di.ElderID, &di.ScheduledAt, &di.Status,
			&di.TakenAt, &di.Notes, &di.LastRemindedAt, &di.CreatedAt, &di.MedicationName, &di.Dosage); err != nil {
			return nil, err
		}
		instances = append(instances, &di)
	}
	return instances, rows.Err()
}
