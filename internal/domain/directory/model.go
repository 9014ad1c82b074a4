// Package directory is the read-side user and relationship lookup used by
// the alert and medication services to resolve notification recipients.
// Account management (signup, password handling, profile edits) lives
// outside this service.
package directory

import (
	"time"

	"github.com/google/uuid"
)

// User maps to the users table.
type User struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Role      string    `db:"role" json:"role"`
	Email     *string   `db:"email" json:"email,omitempty"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// EmailOrEmpty returns the email address, or "" when none is on file.
func (u *User) EmailOrEmpty() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}

// PhoneOrEmpty returns the phone number, or "" when none is on file.
func (u *User) PhoneOrEmpty() string {
	if u.Phone == nil {
		return ""
	}
	return *u.Phone
}
