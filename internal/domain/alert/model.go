// Package alert implements the emergency alert lifecycle: an elder raises an
// alert, every linked caregiver is notified across all channels, and exactly
// one caregiver resolves it.
package alert

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an alert.
type Status string

const (
	StatusActive   Status = "active"
	StatusResolved Status = "resolved" // terminal
)

// PriorityCritical is the only priority emitted today. The column exists so
// lower-urgency alert kinds can be added without a schema change.
const PriorityCritical = "critical"

var (
	// ErrNotFound is returned when the alert does not exist.
	ErrNotFound = errors.New("alert: not found")
	// ErrAlreadyResolved is returned when a resolve attempt loses the race:
	// the alert was already moved to its terminal state.
	ErrAlreadyResolved = errors.New("alert: already resolved")
	// ErrNotAuthorized is returned when the resolver has no active
	// relationship with the alert's elder.
	ErrNotAuthorized = errors.New("alert: caregiver not linked to elder")
)

// Location is the elder's position at trigger time, as reported by the
// client. Every field is optional; an alert without a location is valid.
type Location struct {
	Latitude  *float64 `json:"lat,omitempty"`
	Longitude *float64 `json:"lon,omitempty"`
	Address   *string  `json:"address,omitempty"`
}

// Display renders the location for notification text: the street address
// when known, otherwise raw coordinates, otherwise the empty string.
func (l *Location) Display() string {
	if l == nil {
		return ""
	}
	if l.Address != nil && *l.Address != "" {
		return *l.Address
	}
	if l.Latitude != nil && l.Longitude != nil {
		return fmt.Sprintf("%.5f, %.5f", *l.Latitude, *l.Longitude)
	}
	return ""
}

// EmergencyAlert maps to the emergency_alerts table. The location is stored
// as three flat columns and assembled on scan.
type EmergencyAlert struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	ElderID         uuid.UUID  `db:"elder_id" json:"elder_id"`
	Status          Status     `db:"status" json:"status"`
	Priority        string     `db:"priority" json:"priority"`
	Location        *Location  `json:"location,omitempty"`
	Notes           *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt      *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy      *uuid.UUID `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolutionNotes *string    `db:"resolution_notes" json:"resolution_notes,omitempty"`
}
