package medication

import (
	"context"
	"fmt"
	"time"

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

// Windows holds the timing knobs of the adherence engine.
type Windows struct {
	ReminderLead time.Duration // how far ahead of a dose reminders fire
	GracePeriod  time.Duration // how long past due a dose may stay pending
	HorizonDays  int           // how many days ahead the materializer fills
}

type Service struct {
	defs       DefinitionRepository
	instances  InstanceRepository
	dir        directory.Repository
	dispatcher Dispatcher
	windows    Windows
	logger     zerolog.Logger
}

func NewService(defs DefinitionRepository, instances InstanceRepository, dir directory.Repository, dispatcher Dispatcher, windows Windows, logger zerolog.Logger) *Service {
	return &Service{
		defs:       defs,
		instances:  instances,
		dir:        dir,
		dispatcher: dispatcher,
		windows:    windows,
		logger:     logger,
	}
}

// -- Definitions --

// CreateDefinition stores a new schedule for an elder. The caller must be
// that elder, one of their caregivers, or an admin.
func (s *Service) CreateDefinition(ctx context.Context, d *Definition, byUserID uuid.UUID, role string) error {
	if d.ElderID == uuid.Nil {
		return fmt.Errorf("elder_id is required")
	}
	if err := s.authorize(ctx, d.ElderID, byUserID, role); err != nil {
		return err
	}
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(d.ScheduleTimes) == 0 {
		return fmt.Errorf("at least one schedule time is required")
	}
	for _, st := range d.ScheduleTimes {
		if _, err := time.Parse("15:04", st); err != nil {
			return fmt.Errorf("invalid schedule time %q, want HH:MM", st)
		}
	}
	if d.StartDate.IsZero() {
		d.StartDate = time.Now().UTC().Truncate(24 * time.Hour)
	}
	if d.EndDate != nil && d.EndDate.Before(d.StartDate) {
		return fmt.Errorf("end_date is before start_date")
	}
	if err := s.defs.Create(ctx, d); err != nil {
		return err
	}

	// Fill the schedule right away so the first dose is not a day off.
	if err := s.materializeDefinition(ctx, d, time.Now().UTC()); err != nil {
		s.logger.Error().Err(err).Str("definition_id", d.ID.String()).Msg("materialize new definition")
	}
	return nil
}

func (s *Service) GetDefinition(ctx context.Context, id uuid.UUID) (*Definition, error) {
	return s.defs.GetByID(ctx, id)
}

func (s *Service) UpdateDefinition(ctx context.Context, d *Definition, byUserID uuid.UUID, role string) error {
	if err := s.authorize(ctx, d.ElderID, byUserID, role); err != nil {
		return err
	}
	for _, st := range d.ScheduleTimes {
		if _, err := time.Parse("15:04", st); err != nil {
			return fmt.Errorf("invalid schedule time %q, want HH:MM", st)
		}
	}
	if d.EndDate != nil && d.EndDate.Before(d.StartDate) {
		return fmt.Errorf("end_date is before start_date")
	}
	if err := s.defs.Update(ctx, d); err != nil {
		return err
	}

	// An edited schedule takes effect immediately, not at the next daily run.
	if err := s.materializeDefinition(ctx, d, time.Now().UTC()); err != nil {
		s.logger.Error().Err(err).Str("definition_id", d.ID.String()).Msg("materialize updated definition")
	}
	return nil
}

// DeleteDefinition soft-deactivates a schedule, which also stops its
// materialization and reminders. Gated like every other mutation.
func (s *Service) DeleteDefinition(ctx context.Context, id, byUserID uuid.UUID, role string) error {
	d, err := s.defs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, d.ElderID, byUserID, role); err != nil {
		return err
	}
	return s.defs.Deactivate(ctx, id)
}

func (s *Service) ListDefinitions(ctx context.Context, elderID, byUserID uuid.UUID, role string) ([]*Definition, error) {
	if err := s.authorize(ctx, elderID, byUserID, role); err != nil {
		return nil, err
	}
	return s.defs.ListByElder(ctx, elderID)
}

// -- Instance queries --
//
// Reads are scoped the same way as mutations: only the elder, a linked
// caregiver, or an admin may look at an elder's doses.

// Today returns the elder's doses for the current day, server time.
func (s *Service) Today(ctx context.Context, elderID, byUserID uuid.UUID, role string, now time.Time) ([]*DueInstance, error) {
	if err := s.authorize(ctx, elderID, byUserID, role); err != nil {
		return nil, err
	}
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return s.instances.ListByElderBetween(ctx, elderID, from, from.AddDate(0, 0, 1))
}

// Logs returns the elder's doses inside [from, to).
func (s *Service) Logs(ctx context.Context, elderID, byUserID uuid.UUID, role string, from, to time.Time) ([]*DueInstance, error) {
	if err := s.authorize(ctx, elderID, byUserID, role); err != nil {
		return nil, err
	}
	return s.instances.ListByElderBetween(ctx, elderID, from, to)
}

// AdherenceStats summarizes the elder's doses over the past `days` days.
func (s *Service) AdherenceStats(ctx context.Context, elderID, byUserID uuid.UUID, role string, days int, now time.Time) (*Stats, error) {
	if err := s.authorize(ctx, elderID, byUserID, role); err != nil {
		return nil, err
	}
	if days <= 0 {
		days = 7
	}
	return s.instances.Stats(ctx, elderID, now.AddDate(0, 0, -days), now)
}

// -- Transitions --

// MarkTaken settles a pending dose as taken. The caller must be the owning
// elder or one of their caregivers. Exactly one of a concurrent mark-taken
// and auto-miss wins; the loser sees ErrAlreadyHandled.
func (s *Service) MarkTaken(ctx context.Context, instanceID, byUserID uuid.UUID, role string, notes *string) (*Instance, error) {
	return s.settle(ctx, instanceID, byUserID, role, StatusTaken, notes)
}

// MarkMissed settles a pending dose as missed by hand.
func (s *Service) MarkMissed(ctx context.Context, instanceID, byUserID uuid.UUID, role string, notes *string) (*Instance, error) {
	return s.settle(ctx, instanceID, byUserID, role, StatusMissed, notes)
}

// MarkSkipped settles a pending dose as deliberately skipped. Skips are the
// elder's own call, so nobody is notified.
func (s *Service) MarkSkipped(ctx context.Context, instanceID, byUserID uuid.UUID, role string, notes *string) (*Instance, error) {
	return s.settle(ctx, instanceID, byUserID, role, StatusSkipped, notes)
}

func (s *Service) settle(ctx context.Context, instanceID, byUserID uuid.UUID, role string, to InstanceStatus, notes *string) (*Instance, error) {
	inst, err := s.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if err := s.authorize(ctx, inst.ElderID, byUserID, role); err != nil {
		return nil, err
	}

	settled, err := s.instances.Transition(ctx, instanceID, to, time.Now().UTC(), notes)
	if err != nil {
		return nil, err
	}

	// Keep caregivers in the loop on taken and missed. Push-only: a
	// settled dose is informational, not an emergency.
	switch to {
	case StatusTaken:
		s.notifyCaregivers(ctx, settled.ElderID, notify.Event{
			ID:        settled.ID,
			Type:      notify.EventMedicationTaken,
			PushEvent: push.NewEvent(push.EventMedicationTaken, settled),
		}, false)
	case StatusMissed:
		s.notifyCaregivers(ctx, settled.ElderID, notify.Event{
			ID:        settled.ID,
			Type:      notify.EventMedicationMissed,
			PushEvent: push.NewEvent(push.EventMedicationMissed, settled),
		}, false)
	}

	return settled, nil
}

func (s *Service) authorize(ctx context.Context, elderID, byUserID uuid.UUID, role string) error {
	if byUserID == elderID {
		// Acting on your own account needs no relationship lookup.
		return nil
	}
	switch role {
	case "admin":
		return nil
	case "caregiver":
		linked, err := s.dir.IsCaregiverFor(ctx, byUserID, elderID)
		if err != nil {
			return fmt.Errorf("check caregiver relationship: %w", err)
		}
		if linked {
			return nil
		}
	}
	return ErrNotAuthorized
}

// -- Background loops --

// MaterializeAll expands every active definition into dated pending
// instances covering the horizon. Safe to re-run at any time: the unique
// (definition, scheduledAt) key makes duplicate runs no-ops.
func (s *Service) MaterializeAll(ctx context.Context, now time.Time) error {
	defs, err := s.defs.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active definitions: %w", err)
	}

	created := 0
	for _, d := range defs {
		n, err := s.materializeCount(ctx, d, now)
		if err != nil {
			// One bad definition must not starve the rest.
			s.logger.Error().Err(err).Str("definition_id", d.ID.String()).Msg("materialize definition")
			continue
		}
		created += n
	}

	s.logger.Info().Int("definitions", len(defs)).Int("instances_created", created).Msg("materialized medication schedule")
	return nil
}

func (s *Service) materializeDefinition(ctx context.Context, d *Definition, now time.Time) error {
	_, err := s.materializeCount(ctx, d, now)
	return err
}

func (s *Service) materializeCount(ctx context.Context, d *Definition, now time.Time) (int, error) {
	created := 0
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	// The window is [max(today, start), min(today+horizon, end)].
	first := startOfDay
	if d.StartDate.After(first) {
		first = time.Date(d.StartDate.Year(), d.StartDate.Month(), d.StartDate.Day(), 0, 0, 0, 0, now.Location())
	}
	last := startOfDay.AddDate(0, 0, s.windows.HorizonDays-1)
	if d.EndDate != nil && d.EndDate.Before(last) {
		last = time.Date(d.EndDate.Year(), d.EndDate.Month(), d.EndDate.Day(), 0, 0, 0, 0, now.Location())
	}

	for date := first; !date.After(last); date = date.AddDate(0, 0, 1) {
		for _, st := range d.ScheduleTimes {
			t, err := time.Parse("15:04", st)
			if err != nil {
				return created, fmt.Errorf("definition has invalid schedule time %q", st)
			}
			scheduledAt := date.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)

			// Doses already past the grace window would be auto-missed
			// the moment they exist; don't create that noise.
			if scheduledAt.Before(now.Add(-s.windows.GracePeriod)) {
				continue
			}

			wasCreated, err := s.instances.UpsertPending(ctx, &Instance{
				DefinitionID: d.ID,
				ElderID:      d.ElderID,
				ScheduledAt:  scheduledAt,
			})
			if err != nil {
				return created, err
			}
			if wasCreated {
				created++
			}
		}
	}
	return created, nil
}

// RemindDue notifies ahead of upcoming doses: the elder gets a reminder and
// every caregiver gets a companion note, push-only. Each instance is stamped
// so one dose reminds at most once per lead window; an instance that left
// pending is never reminded.
func (s *Service) RemindDue(ctx context.Context, now time.Time) error {
	due, err := s.instances.ListDueForReminder(ctx, now, now.Add(s.windows.ReminderLead))
	if err != nil {
		return fmt.Errorf("list due instances: %w", err)
	}

	for _, inst := range due {
		if err := s.instances.MarkReminded(ctx, inst.ID, now); err != nil {
			s.logger.Error().Err(err).Str("instance_id", inst.ID.String()).Msg("stamp reminder")
			continue
		}

		payload := map[string]interface{}{
			"instance_id":  inst.ID,
			"medication":   inst.MedicationName,
			"dosage":       inst.Dosage,
			"scheduled_at": inst.ScheduledAt,
		}

		s.dispatcher.Notify(ctx, notify.Event{
			ID:        inst.ID,
			Type:      notify.EventMedicationReminder,
			PushEvent: push.NewEvent(push.EventMedicationReminder, payload),
		}, []notify.Recipient{{ID: inst.ElderID, Role: "elder"}})

		s.notifyCaregivers(ctx, inst.ElderID, notify.Event{
			ID:        inst.ID,
			Type:      notify.EventMedicationReminder,
			PushEvent: push.NewEvent(push.EventCaregiverReminder, payload),
		}, false)
	}
	return nil
}

// EscalateOverdue settles doses that stayed pending past the grace period as
// missed and alerts the elder's caregivers through every channel. The
// per-instance compare-and-set means a dose marked taken between the query
// and the update is simply skipped, and two overlapping poller runs escalate
// each dose once.
func (s *Service) EscalateOverdue(ctx context.Context, now time.Time) error {
	overdue, err := s.instances.ListOverdue(ctx, now.Add(-s.windows.GracePeriod))
	if err != nil {
		return fmt.Errorf("list overdue instances: %w", err)
	}

	for _, inst := range overdue {
		settled, err := s.instances.Transition(ctx, inst.ID, StatusMissed, now, nil)
		if err != nil {
			if err == ErrAlreadyHandled || err == ErrNotFound {
				continue // lost the race to a manual transition
			}
			s.logger.Error().Err(err).Str("instance_id", inst.ID.String()).Msg("escalate overdue instance")
			continue
		}

		elderName := "the elder"
		if elder, err := s.dir.GetUser(ctx, settled.ElderID); err == nil {
			elderName = elder.Name
		}

		event := notify.Event{
			ID:      settled.ID,
			Type:    notify.EventMedicationAuto,
			Subject: fmt.Sprintf("Missed medication: %s", inst.MedicationName),
			Body: fmt.Sprintf("%s has not taken %s (%s) scheduled for %s",
				elderName, inst.MedicationName, inst.Dosage, inst.ScheduledAt.Format("15:04")),
			PushEvent: push.NewEvent(push.EventMedicationAutoMissed, settled),
		}
		// Escalations go through every channel; a missed dose must reach
		// caregivers even when their apps are closed.
		s.notifyCaregivers(ctx, settled.ElderID, event, true)
	}
	return nil
}

// notifyCaregivers fans an event out to the elder's caregivers. With
// offline=false the recipients carry no voice/email targets, making the
// fan-out effectively push-only.
func (s *Service) notifyCaregivers(ctx context.Context, elderID uuid.UUID, event notify.Event, offline bool) {
	caregivers, err := s.dir.CaregiversOf(ctx, elderID)
	if err != nil {
		s.logger.Error().Err(err).Str("elder_id", elderID.String()).Msg("lookup caregivers for medication event")
		return
	}
	if len(caregivers) == 0 {
		return
	}

	recipients := make([]notify.Recipient, 0, len(caregivers))
	for _, cg := range caregivers {
		r := notify.Recipient{ID: cg.ID, Role: cg.Role}
		if offline {
			r.VoiceTarget = cg.PhoneOrEmpty()
			r.EmailTarget = cg.EmailOrEmpty()
		}
		recipients = append(recipients, r)
	}
	s.dispatcher.Notify(ctx, event, recipients)
}
