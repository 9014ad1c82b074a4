// Package notify fans a single logical event out to a recipient set across
// the push, voice, and email channels. Channels attempt independently: one
// channel failing never blocks or fails the others, and every attempted
// channel leaves a durable delivery record for audit.
package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/platform/push"
)

// Channel identifies a delivery channel.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelVoice Channel = "voice"
	ChannelEmail Channel = "email"
)

// Outcome is the result of one channel attempt for one recipient.
type Outcome string

const (
	// OutcomeSent means the channel accepted the message.
	OutcomeSent Outcome = "sent"
	// OutcomeFailed means the channel was attempted and errored.
	OutcomeFailed Outcome = "failed"
	// OutcomeSkipped means the channel was not applicable: the recipient is
	// not connected (push) or the channel is not configured. Skips are not
	// recorded as delivery records.
	OutcomeSkipped Outcome = "skipped"
)

// Logical event types recorded in delivery records.
const (
	EventEmergencyTriggered = "emergency-triggered"
	EventEmergencyResolved  = "emergency-resolved"
	EventMedicationReminder = "medication-reminder"
	EventMedicationTaken    = "medication-taken"
	EventMedicationMissed   = "medication-missed"
	EventMedicationAuto     = "medication-auto-missed"
)

// Event is one logical occurrence to deliver. Subject and Body feed the
// offline channels; PushEvent is the exact frame for connected clients.
type Event struct {
	ID        uuid.UUID
	Type      string
	Subject   string
	Body      string
	PushEvent push.Event
}

// Recipient is one delivery target. A channel applies only when its target
// is present: push always applies (presence decides at send time), voice and
// email apply when a phone number or address is on file.
type Recipient struct {
	ID          uuid.UUID
	Role        string
	VoiceTarget string
	EmailTarget string
}

// DeliveryOutcome reports how one channel attempt for one recipient ended.
type DeliveryOutcome struct {
	RecipientID uuid.UUID
	Channel     Channel
	Outcome     Outcome
	Err         string
	At          time.Time
}
