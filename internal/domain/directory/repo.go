package directory

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	// CaregiversOf returns every caregiver with an active relationship to
	// the elder.
	CaregiversOf(ctx context.Context, elderID uuid.UUID) ([]*User, error)
	// EldersOf returns every elder the caregiver is linked to.
	EldersOf(ctx context.Context, caregiverID uuid.UUID) ([]*User, error)
	// IsCaregiverFor reports whether an active relationship links the
	// caregiver to the elder.
	IsCaregiverFor(ctx context.Context, caregiverID, elderID uuid.UUID) (bool, error)
}
