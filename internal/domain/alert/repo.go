package alert

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *EmergencyAlert) error
	GetByID(ctx context.Context, id uuid.UUID) (*EmergencyAlert, error)
	// Resolve performs the compare-and-set transition from active to
	// resolved. When two resolvers race, exactly one succeeds; the loser
	// gets ErrAlreadyResolved. An unknown ID yields ErrNotFound.
	Resolve(ctx context.Context, id, resolvedBy uuid.UUID, notes *string) (*EmergencyAlert, error)
	ListActiveByElders(ctx context.Context, elderIDs []uuid.UUID) ([]*EmergencyAlert, error)
	ListByElder(ctx context.Context, elderID uuid.UUID, limit, offset int) ([]*EmergencyAlert, int, error)
}
