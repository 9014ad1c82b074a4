// Package medication tracks recurring medication schedules for elders: a
// definition describes what to take and when, a materializer expands it into
// dated instances, and pollers remind ahead of each dose and escalate doses
// that stay pending past the grace period.
package medication

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// InstanceStatus is the lifecycle state of one scheduled dose.
type InstanceStatus string

const (
	StatusPending InstanceStatus = "pending"
	StatusTaken   InstanceStatus = "taken"   // terminal
	StatusMissed  InstanceStatus = "missed"  // terminal
	StatusSkipped InstanceStatus = "skipped" // terminal, deliberate
)

var (
	// ErrNotFound is returned when the definition or instance does not exist.
	ErrNotFound = errors.New("medication: not found")
	// ErrAlreadyHandled is returned when a status transition loses the
	// race: the instance already left the pending state.
	ErrAlreadyHandled = errors.New("medication: dose already handled")
	// ErrNotAuthorized is returned when the caller is neither the owning
	// elder nor one of their caregivers.
	ErrNotAuthorized = errors.New("medication: not authorized for this elder")
)

// Definition maps to the medication_definitions table. ScheduleTimes are
// "HH:MM" wall-clock times, one dose per time per day. Doses exist only
// between StartDate and EndDate; a nil EndDate means open-ended.
type Definition struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	ElderID       uuid.UUID  `db:"elder_id" json:"elder_id"`
	Name          string     `db:"name" json:"name"`
	Dosage        string     `db:"dosage" json:"dosage"`
	ScheduleTimes []string   `db:"schedule_times" json:"schedule_times"`
	StartDate     time.Time  `db:"start_date" json:"start_date"`
	EndDate       *time.Time `db:"end_date" json:"end_date,omitempty"`
	Active        bool       `db:"active" json:"active"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Instance maps to the medication_instances table: one dated dose. The pair
// (definition_id, scheduled_at) is unique, which is what makes concurrent
// materialization runs idempotent.
type Instance struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	DefinitionID   uuid.UUID      `db:"definition_id" json:"definition_id"`
	ElderID        uuid.UUID      `db:"elder_id" json:"elder_id"`
	ScheduledAt    time.Time      `db:"scheduled_at" json:"scheduled_at"`
	Status         InstanceStatus `db:"status" json:"status"`
	TakenAt        *time.Time     `db:"taken_at" json:"taken_at,omitempty"`
	Notes          *string        `db:"notes" json:"notes,omitempty"`
	LastRemindedAt *time.Time     `db:"last_reminded_at" json:"last_reminded_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// DueInstance is an instance joined with its definition for notification copy.
type DueInstance struct {
	Instance
	MedicationName string `json:"medication_name"`
	Dosage         string `json:"dosage"`
}

// Stats summarizes adherence for one elder over a window. AdherenceRate is
// an integer percentage, taken over total scheduled, 0 when nothing was
// scheduled.
type Stats struct {
	Total         int `json:"total"`
	Taken         int `json:"taken"`
	Missed        int `json:"missed"`
	Skipped       int `json:"skipped"`
	Pending       int `json:"pending"`
	AdherenceRate int `json:"adherence_rate"`
}
