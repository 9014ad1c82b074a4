package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DeliveryRecord is one durable audit row per attempted channel. Rows are
// append-only; nothing ever updates them.
type DeliveryRecord struct {
	ID            uuid.UUID `json:"id"`
	EventID       uuid.UUID `json:"eventId"`
	EventType     string    `json:"eventType"`
	RecipientID   uuid.UUID `json:"recipientId"`
	RecipientRole string    `json:"recipientRole"`
	Channel       Channel   `json:"channel"`
	Outcome       Outcome   `json:"outcome"`
	Detail        string    `json:"detail,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// RecordRepository persists and queries delivery records.
type RecordRepository interface {
	Insert(ctx context.Context, rec *DeliveryRecord) error
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*DeliveryRecord, error)
	ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]*DeliveryRecord, error)
}
