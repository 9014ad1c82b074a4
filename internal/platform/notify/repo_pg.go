package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type recordRepoPG struct{ pool *pgxpool.Pool }

// NewRecordRepoPG creates a PostgreSQL-backed delivery record repository.
func NewRecordRepoPG(pool *pgxpool.Pool) RecordRepository { return &recordRepoPG{pool: pool} }

const recordCols = `id, event_id, event_type, recipient_id, recipient_role, channel, outcome, detail, created_at`

func scanRecord(row pgx.Row) (*DeliveryRecord, error) {
	var rec DeliveryRecord
	err := row.Scan(&rec.ID, &rec.EventID, &rec.EventType, &rec.RecipientID, &rec.RecipientRole,
		&rec.Channel, &rec.Outcome, &rec.Detail, &rec.CreatedAt)
	return &rec, err
}

func (r *recordRepoPG) Insert(ctx context.Context, rec *DeliveryRecord) error {
	rec.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO delivery_records (id, event_id, event_type, recipient_id, recipient_role, channel, outcome, detail)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.ID, rec.EventID, rec.EventType, rec.RecipientID, rec.RecipientRole,
		rec.Channel, rec.Outcome, rec.Detail)
	return err
}

func (r *recordRepoPG) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*DeliveryRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordCols+` FROM delivery_records
		WHERE event_id = $1 ORDER BY created_at`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (r *recordRepoPG) ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]*DeliveryRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordCols+` FROM delivery_records
		WHERE recipient_id = $1 ORDER BY created_at DESC LIMIT $2`, recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]*DeliveryRecord, error) {
	var records []*DeliveryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
