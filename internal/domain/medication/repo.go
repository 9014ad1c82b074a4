package medication

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type DefinitionRepository interface {
	Create(ctx context.Context, d *Definition) error
	GetByID(ctx context.Context, id uuid.UUID) (*Definition, error)
	Update(ctx context.Context, d *Definition) error
	// Deactivate soft-deletes: existing instances survive for history, no
	// new ones materialize.
	Deactivate(ctx context.Context, id uuid.UUID) error
	ListByElder(ctx context.Context, elderID uuid.UUID) ([]*Definition, error)
	ListActive(ctx context.Context) ([]*Definition, error)
}

type InstanceRepository interface {
	// UpsertPending inserts a pending instance unless one already exists
	// for the same (definition, scheduledAt). Reports whether a row was
	// created. Safe under concurrent materialization runs.
	UpsertPending(ctx context.Context, inst *Instance) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Instance, error)
	ListByElderBetween(ctx context.Context, elderID uuid.UUID, from, to time.Time) ([]*DueInstance, error)
	// ListDueForReminder returns pending, not-yet-reminded instances of
	// active definitions scheduled inside [from, to].
	ListDueForReminder(ctx context.Context, from, to time.Time) ([]*DueInstance, error)
	// ListOverdue returns pending instances scheduled before the cutoff.
	ListOverdue(ctx context.Context, before time.Time) ([]*DueInstance, error)
	MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error
	// Transition performs the compare-and-set move out of pending. A race
	// loser gets ErrAlreadyHandled; an unknown ID gets ErrNotFound.
	Transition(ctx context.Context, id uuid.UUID, to InstanceStatus, at time.Time, notes *string) (*Instance, error)
	Stats(ctx context.Context, elderID uuid.UUID, from, to time.Time) (*Stats, error)
}
