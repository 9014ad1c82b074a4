package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/push"
)

// PushSender is the live channel target. Satisfied by *push.Hub.
type PushSender interface {
	Send(userID uuid.UUID, event push.Event) error
}

// Dispatcher fans one event out to a recipient set. One goroutine runs per
// applicable recipient-channel pair; a panic or error in one attempt is
// captured as that attempt's outcome and never crosses channel boundaries.
// Notify returns only after every attempt has settled. No work is detached.
type Dispatcher struct {
	pusher  PushSender
	email   EmailSender // nil when no relay is configured
	voice   VoiceSender // nil when no gateway is configured
	records RecordRepository
	logger  zerolog.Logger
}

// NewDispatcher creates a Dispatcher. Either sender may be nil, which makes
// its channel unavailable: attempts are skipped, not failed.
func NewDispatcher(pusher PushSender, email EmailSender, voice VoiceSender, records RecordRepository, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		pusher:  pusher,
		email:   email,
		voice:   voice,
		records: records,
		logger:  logger,
	}
}

// Notify delivers the event to every recipient across all applicable
// channels concurrently and returns the settled outcomes. A delivery record
// is persisted per attempted channel (sent or failed); skipped channels
// leave no record. Record persistence failures are logged, never surfaced:
// audit loss must not fail the business transition that triggered delivery.
func (d *Dispatcher) Notify(ctx context.Context, event Event, recipients []Recipient) []DeliveryOutcome {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes []DeliveryOutcome
	)

	collect := func(o DeliveryOutcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	}

	for _, recipient := range recipients {
		recipient := recipient

		wg.Add(1)
		go func() {
			defer wg.Done()
			collect(d.attempt(ctx, event, recipient, ChannelPush))
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			collect(d.attempt(ctx, event, recipient, ChannelVoice))
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			collect(d.attempt(ctx, event, recipient, ChannelEmail))
		}()
	}

	wg.Wait()

	for _, o := range outcomes {
		if o.Outcome == OutcomeSkipped {
			continue
		}
		rec := &DeliveryRecord{
			EventID:       event.ID,
			EventType:     event.Type,
			RecipientID:   o.RecipientID,
			RecipientRole: roleOf(recipients, o.RecipientID),
			Channel:       o.Channel,
			Outcome:       o.Outcome,
			Detail:        o.Err,
		}
		if err := d.records.Insert(ctx, rec); err != nil {
			d.logger.Error().Err(err).
				Str("event_id", event.ID.String()).
				Str("channel", string(o.Channel)).
				Msg("persist delivery record")
		}
	}

	return outcomes
}

// attempt runs one channel delivery for one recipient, converting panics and
// errors into outcomes.
func (d *Dispatcher) attempt(ctx context.Context, event Event, recipient Recipient, channel Channel) (out DeliveryOutcome) {
	out = DeliveryOutcome{
		RecipientID: recipient.ID,
		Channel:     channel,
		At:          time.Now().UTC(),
	}

	defer func() {
		if r := recover(); r != nil {
			out.Outcome = OutcomeFailed
			out.Err = fmt.Sprintf("panic: %v", r)
			d.logger.Error().
				Str("event_type", event.Type).
				Str("channel", string(channel)).
				Str("recipient_id", recipient.ID.String()).
				Interface("panic", r).
				Msg("channel delivery panicked")
		}
	}()

	var err error
	switch channel {
	case ChannelPush:
		if d.pusher == nil {
			out.Outcome = OutcomeSkipped
			return out
		}
		err = d.pusher.Send(recipient.ID, event.PushEvent)
		if errors.Is(err, push.ErrNotConnected) {
			// Recipient offline; the offline channels carry the message.
			out.Outcome = OutcomeSkipped
			return out
		}
	case ChannelVoice:
		if d.voice == nil || recipient.VoiceTarget == "" {
			out.Outcome = OutcomeSkipped
			return out
		}
		err = d.voice.SendVoice(ctx, recipient.VoiceTarget, event.Body)
	case ChannelEmail:
		if d.email == nil || recipient.EmailTarget == "" {
			out.Outcome = OutcomeSkipped
			return out
		}
		err = d.email.SendEmail(ctx, recipient.EmailTarget, event.Subject, event.Body)
	}

	if err != nil {
		out.Outcome = OutcomeFailed
		out.Err = err.Error()
		d.logger.Warn().Err(err).
			Str("event_type", event.Type).
			Str("channel", string(channel)).
			Str("recipient_id", recipient.ID.String()).
			Msg("channel delivery failed")
		return out
	}

	out.Outcome = OutcomeSent
	return out
}

func roleOf(recipients []Recipient, id uuid.UUID) string {
	for _, r := range recipients {
		if r.ID == id {
			return r.Role
		}
	}
	return ""
}
