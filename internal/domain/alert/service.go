package alert

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/platform/notify"
	"github.com/carelink/carelink/internal/platform/push"
)

// Dispatcher is the slice of the notification fan-out the service needs.
type Dispatcher interface {
	Notify(ctx context.Context, event notify.Event, recipients []notify.Recipient) []notify.DeliveryOutcome
}

type Service struct {
	repo       Repository
	dir        directory.Repository
	dispatcher Dispatcher
	pusher     notify.PushSender
	logger     zerolog.Logger
}

func NewService(repo Repository, dir directory.Repository, dispatcher Dispatcher, pusher notify.PushSender, logger zerolog.Logger) *Service {
	return &Service{repo: repo, dir: dir, dispatcher: dispatcher, pusher: pusher, logger: logger}
}

// Trigger creates a new active alert and fans the emergency out to every
// linked caregiver. The alert row is durably created before any notification
// is attempted: losing the alert record is worse than missing a
// notification, so a caregiver lookup or delivery failure never rolls the
// alert back. Trigger returns only after every caregiver's channel set has
// settled.
func (s *Service) Trigger(ctx context.Context, elderID uuid.UUID, loc *Location, notes *string) (*EmergencyAlert, error) {
	if elderID == uuid.Nil {
		return nil, fmt.Errorf("elder_id is required")
	}

	a := &EmergencyAlert{
		ElderID:  elderID,
		Location: loc,
		Notes:    notes,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}

	elderName := "an elder"
	if elder, err := s.dir.GetUser(ctx, elderID); err != nil {
		s.logger.Error().Err(err).Str("elder_id", elderID.String()).Msg("lookup elder for alert notification")
	} else {
		elderName = elder.Name
	}

	caregivers, err := s.dir.CaregiversOf(ctx, elderID)
	if err != nil {
		// The alert is already durable; notification becomes best-effort.
		s.logger.Error().Err(err).Str("alert_id", a.ID.String()).Msg("lookup caregivers for alert notification")
		caregivers = nil
	}

	body := fmt.Sprintf("%s triggered an emergency alert", elderName)
	if place := loc.Display(); place != "" {
		body += " at " + place
	}
	if notes != nil && *notes != "" {
		body += ": " + *notes
	}

	event := notify.Event{
		ID:        a.ID,
		Type:      notify.EventEmergencyTriggered,
		Subject:   fmt.Sprintf("Emergency alert from %s", elderName),
		Body:      body,
		PushEvent: push.NewEvent(push.EventNewEmergency, a),
	}

	recipients := make([]notify.Recipient, 0, len(caregivers))
	for _, cg := range caregivers {
		recipients = append(recipients, notify.Recipient{
			ID:          cg.ID,
			Role:        cg.Role,
			VoiceTarget: cg.PhoneOrEmpty(),
			EmailTarget: cg.EmailOrEmpty(),
		})
	}
	if len(recipients) > 0 {
		s.dispatcher.Notify(ctx, event, recipients)
	}

	// Echo the alert back to the elder's own connected peers. Pure UX; an
	// offline elder is not an error.
	if err := s.pusher.Send(elderID, event.PushEvent); err != nil && err != push.ErrNotConnected {
		s.logger.Warn().Err(err).Str("alert_id", a.ID.String()).Msg("push alert to elder")
	}

	return a, nil
}

// Resolve moves an active alert to its terminal state. The transition is a
// compare-and-set: of two concurrent resolvers exactly one succeeds and the
// other receives ErrAlreadyResolved. Only a caregiver linked to the alert's
// elder (or an admin, enforced at the edge) may resolve.
func (s *Service) Resolve(ctx context.Context, alertID, caregiverID uuid.UUID, notes *string) (*EmergencyAlert, error) {
	a, err := s.repo.GetByID(ctx, alertID)
	if err != nil {
		return nil, err
	}

	linked, err := s.dir.IsCaregiverFor(ctx, caregiverID, a.ElderID)
	if err != nil {
		return nil, fmt.Errorf("check caregiver relationship: %w", err)
	}
	if !linked {
		return nil, ErrNotAuthorized
	}

	resolved, err := s.repo.Resolve(ctx, alertID, caregiverID, notes)
	if err != nil {
		return nil, err
	}

	// Push-only confirmation toward the elder, recorded for audit.
	event := notify.Event{
		ID:        resolved.ID,
		Type:      notify.EventEmergencyResolved,
		PushEvent: push.NewEvent(push.EventEmergencyResolved, resolved),
	}
	s.dispatcher.Notify(ctx, event, []notify.Recipient{{
		ID:   resolved.ElderID,
		Role: "elder",
	}})

	return resolved, nil
}

// Active returns the currently active alerts visible to the user: an elder
// sees their own, a caregiver sees those of every linked elder.
func (s *Service) Active(ctx context.Context, userID uuid.UUID, role string) ([]*EmergencyAlert, error) {
	elderIDs := []uuid.UUID{userID}
	if role == "caregiver" {
		elders, err := s.dir.EldersOf(ctx, userID)
		if err != nil {
			return nil, err
		}
		elderIDs = elderIDs[:0]
		for _, e := range elders {
			elderIDs = append(elderIDs, e.ID)
		}
		if len(elderIDs) == 0 {
			return []*EmergencyAlert{}, nil
		}
	}
	alerts, err := s.repo.ListActiveByElders(ctx, elderIDs)
	if err != nil {
		return nil, err
	}
	if alerts == nil {
		alerts = []*EmergencyAlert{}
	}
	return alerts, nil
}

// History returns the elder's alerts, newest first. Callers may only read
// their own history unless they are an admin or a caregiver linked to the
// elder in question.
func (s *Service) History(ctx context.Context, elderID, byUserID uuid.UUID, role string, limit, offset int) ([]*EmergencyAlert, int, error) {
	if elderID != byUserID && role != "admin" {
		linked, err := s.dir.IsCaregiverFor(ctx, byUserID, elderID)
		if err != nil {
			return nil, 0, fmt.Errorf("check caregiver relationship: %w", err)
		}
		if !linked {
			return nil, 0, ErrNotAuthorized
		}
	}
	return s.repo.ListByElder(ctx, elderID, limit, offset)
}
