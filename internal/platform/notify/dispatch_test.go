package notify

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/platform/push"
)

// mockPusher simulates the push hub: only users in connected deliver.
type mockPusher struct {
	mu        sync.Mutex
	connected map[uuid.UUID]bool
	sent      []uuid.UUID
	panicOn   map[uuid.UUID]bool
	dropOn    map[uuid.UUID]bool
}

func (m *mockPusher) Send(userID uuid.UUID, _ push.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicOn[userID] {
		panic("push channel blew up")
	}
	if !m.connected[userID] {
		return push.ErrNotConnected
	}
	if m.dropOn[userID] {
		return push.ErrBufferFull
	}
	m.sent = append(m.sent, userID)
	return nil
}

// mockRecordRepo records inserted delivery records in memory.
type mockRecordRepo struct {
	mu      sync.Mutex
	records []*DeliveryRecord
}

func (m *mockRecordRepo) Insert(_ context.Context, rec *DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *mockRecordRepo) ListByEvent(_ context.Context, eventID uuid.UUID) ([]*DeliveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*DeliveryRecord
	for _, r := range m.records {
		if r.EventID == eventID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRecordRepo) ListByRecipient(_ context.Context, recipientID uuid.UUID, _ int) ([]*DeliveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*DeliveryRecord
	for _, r := range m.records {
		if r.RecipientID == recipientID {
			out = append(out, r)
		}
	}
	return out, nil
}

func testEvent() Event {
	return Event{
		ID:        uuid.New(),
		Type:      EventEmergencyTriggered,
		Subject:   "Emergency alert",
		Body:      "Rose needs help",
		PushEvent: push.NewEvent(push.EventNewEmergency, nil),
	}
}

func outcomeFor(outcomes []DeliveryOutcome, id uuid.UUID, ch Channel) (DeliveryOutcome, bool) {
	for _, o := range outcomes {
		if o.RecipientID == id && o.Channel == ch {
			return o, true
		}
	}
	return DeliveryOutcome{}, false
}

func TestDispatcher_AllChannelsAttempted(t *testing.T) {
	recipientID := uuid.New()
	pusher := &mockPusher{connected: map[uuid.UUID]bool{recipientID: true}}
	email := &MockEmailSender{}
	voice := &MockVoiceSender{}
	records := &mockRecordRepo{}
	d := NewDispatcher(pusher, email, voice, records, zerolog.Nop())

	outcomes := d.Notify(context.Background(), testEvent(), []Recipient{{
		ID:          recipientID,
		Role:        "caregiver",
		VoiceTarget: "+15550001111",
		EmailTarget: "caregiver@example.com",
	}})

	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}
	for _, ch := range []Channel{ChannelPush, ChannelVoice, ChannelEmail} {
		o, ok := outcomeFor(outcomes, recipientID, ch)
		if !ok {
			t.Fatalf("no outcome for channel %s", ch)
		}
		if o.Outcome != OutcomeSent {
			t.Errorf("channel %s outcome = %s, want sent", ch, o.Outcome)
		}
	}
	if len(records.records) != 3 {
		t.Fatalf("got %d delivery records, want 3", len(records.records))
	}
}

func TestDispatcher_ChannelFailureIsIsolated(t *testing.T) {
	recipientID := uuid.New()
	pusher := &mockPusher{connected: map[uuid.UUID]bool{recipientID: true}}
	email := &MockEmailSender{}
	voice := &MockVoiceSender{ShouldFail: true, FailError: "gateway unreachable"}
	records := &mockRecordRepo{}
	d := NewDispatcher(pusher, email, voice, records, zerolog.Nop())

	outcomes := d.Notify(context.Background(), testEvent(), []Recipient{{
		ID:          recipientID,
		Role:        "caregiver",
		VoiceTarget: "+15550001111",
		EmailTarget: "caregiver@example.com",
	}})

	vo, _ := outcomeFor(outcomes, recipientID, ChannelVoice)
	if vo.Outcome != OutcomeFailed {
		t.Errorf("voice outcome = %s, want failed", vo.Outcome)
	}
	eo, _ := outcomeFor(outcomes, recipientID, ChannelEmail)
	if eo.Outcome != OutcomeSent {
		t.Errorf("email outcome = %s, want sent despite voice failure", eo.Outcome)
	}
	po, _ := outcomeFor(outcomes, recipientID, ChannelPush)
	if po.Outcome != OutcomeSent {
		t.Errorf("push outcome = %s, want sent despite voice failure", po.Outcome)
	}

	// Failed attempts are recorded too.
	if len(records.records) != 3 {
		t.Fatalf("got %d delivery records, want 3", len(records.records))
	}
	for _, rec := range records.records {
		if rec.Channel == ChannelVoice && rec.Outcome != OutcomeFailed {
			t.Errorf("voice record outcome = %s, want failed", rec.Outcome)
		}
	}
}

func TestDispatcher_PanicCapturedAsFailure(t *testing.T) {
	recipientID := uuid.New()
	pusher := &mockPusher{
		connected: map[uuid.UUID]bool{recipientID: true},
		panicOn:   map[uuid.UUID]bool{recipientID: true},
	}
	email := &MockEmailSender{}
	records := &mockRecordRepo{}
	d := NewDispatcher(pusher, email, &MockVoiceSender{}, records, zerolog.Nop())

	outcomes := d.Notify(context.Background(), testEvent(), []Recipient{{
		ID:          recipientID,
		Role:        "caregiver",
		EmailTarget: "caregiver@example.com",
	}})

	po, _ := outcomeFor(outcomes, recipientID, ChannelPush)
	if po.Outcome != OutcomeFailed {
		t.Errorf("push outcome = %s, want failed after panic", po.Outcome)
	}
	eo, _ := outcomeFor(outcomes, recipientID, ChannelEmail)
	if eo.Outcome != OutcomeSent {
		t.Errorf("email outcome = %s, want sent despite push panic", eo.Outcome)
	}
}

func TestDispatcher_OfflinePushIsSkipped(t *testing.T) {
	recipientID := uuid.New()
	pusher := &mockPusher{connected: map[uuid.UUID]bool{}}
	email := &MockEmailSender{}
	records := &mockRecordRepo{}
	d := NewDispatcher(pusher, email, &MockVoiceSender{}, records, zerolog.Nop())

	outcomes := d.Notify(context.Background(), testEvent(), []Recipient{{
		ID:          recipientID,
		Role:        "caregiver",
		EmailTarget: "caregiver@example.com",
	}})

	po, _ := outcomeFor(outcomes, recipientID, ChannelPush)
	if po.Outcome != OutcomeSkipped {
		t.Errorf("push outcome = %s, want skipped for offline recipient", po.Outcome)
	}

	// Skips leave no audit row; only the email attempt is recorded.
	if len(records.records) != 1 {
		t.Fatalf("got %d delivery records, want 1", len(records.records))
	}
	if records.records[0].Channel != ChannelEmail {
		t.Errorf("recorded channel = %s, want email", records.records[0].Channel)
	}
}

func TestDispatcher_BackloggedPushIsFailure(t *testing.T) {
	recipientID := uuid.New()
	pusher := &mockPusher{
		connected: map[uuid.UUID]bool{recipientID: true},
		dropOn:    map[uuid.UUID]bool{recipientID: true},
	}
	records := &mockRecordRepo{}
	d := NewDispatcher(pusher, &MockEmailSender{}, &MockVoiceSender{}, records, zerolog.Nop())

	outcomes := d.Notify(context.Background(), testEvent(), []Recipient{{
		ID:   recipientID,
		Role: "caregiver",
	}})

	// A connected recipient whose buffer dropped the frame did not get the
	// event; the audit trail must say failed, never sent.
	po, _ := outcomeFor(outcomes, recipientID, ChannelPush)
	if po.Outcome != OutcomeFailed {
		t.Fatalf("push outcome = %s, want failed for a dropped frame", po.Outcome)
	}
	if len(records.records) != 1 {
		t.Fatalf("got %d delivery records, want 1", len(records.records))
	}
	if records.records[0].Outcome != OutcomeFailed {
		t.Errorf("recorded outcome = %s, want failed", records.records[0].Outcome)
	}
}

func TestDispatcher_UnconfiguredChannelsSkipped(t *testing.T) {
	recipientID := uuid.New()
	pusher := &mockPusher{connected: map[uuid.UUID]bool{recipientID: true}}
	records := &mockRecordRepo{}
	// No email relay, no voice gateway.
	d := NewDispatcher(pusher, nil, nil, records, zerolog.Nop())

	outcomes := d.Notify(context.Background(), testEvent(), []Recipient{{
		ID:          recipientID,
		Role:        "caregiver",
		VoiceTarget: "+15550001111",
		EmailTarget: "caregiver@example.com",
	}})

	vo, _ := outcomeFor(outcomes, recipientID, ChannelVoice)
	if vo.Outcome != OutcomeSkipped {
		t.Errorf("voice outcome = %s, want skipped when unconfigured", vo.Outcome)
	}
	eo, _ := outcomeFor(outcomes, recipientID, ChannelEmail)
	if eo.Outcome != OutcomeSkipped {
		t.Errorf("email outcome = %s, want skipped when unconfigured", eo.Outcome)
	}
	if len(records.records) != 1 {
		t.Fatalf("got %d delivery records, want 1 (push only)", len(records.records))
	}
}

func TestDispatcher_MultipleRecipientsAllSettle(t *testing.T) {
	c1, c2 := uuid.New(), uuid.New()
	pusher := &mockPusher{connected: map[uuid.UUID]bool{c1: true}}
	email := &MockEmailSender{}
	voice := &MockVoiceSender{}
	records := &mockRecordRepo{}
	d := NewDispatcher(pusher, email, voice, records, zerolog.Nop())

	outcomes := d.Notify(context.Background(), testEvent(), []Recipient{
		{ID: c1, Role: "caregiver", VoiceTarget: "+15550001111", EmailTarget: "c1@example.com"},
		{ID: c2, Role: "caregiver", VoiceTarget: "+15550002222", EmailTarget: "c2@example.com"},
	})

	if len(outcomes) != 6 {
		t.Fatalf("got %d outcomes, want 6", len(outcomes))
	}
	if len(email.Calls()) != 2 {
		t.Errorf("got %d email calls, want 2", len(email.Calls()))
	}
	if len(voice.Calls()) != 2 {
		t.Errorf("got %d voice calls, want 2", len(voice.Calls()))
	}
}
