package push

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newTestHub() *Hub {
	return NewHub(zerolog.Nop())
}

func newHandle(userID uuid.UUID, role string) *Handle {
	return &Handle{
		ID:     uuid.NewString(),
		UserID: userID,
		Role:   role,
		Send:   make(chan []byte, 256),
	}
}

func drain(h *Handle) {
	for {
		select {
		case <-h.Send:
		default:
			return
		}
	}
}

func TestHub_RegisterCountsDistinctUsers(t *testing.T) {
	hub := newTestHub()
	elder := uuid.New()
	caregiver := uuid.New()

	hub.Register(newHandle(elder, "elder"))
	hub.Register(newHandle(caregiver, "caregiver"))

	if hub.ClientCount() != 2 {
		t.Fatalf("expected 2 connected users, got %d", hub.ClientCount())
	}

	snap := hub.Snapshot()
	if len(snap.ActiveElders) != 1 || snap.ActiveElders[0] != elder {
		t.Errorf("ActiveElders = %v, want [%s]", snap.ActiveElders, elder)
	}
	if len(snap.ActiveCaregivers) != 1 || snap.ActiveCaregivers[0] != caregiver {
		t.Errorf("ActiveCaregivers = %v, want [%s]", snap.ActiveCaregivers, caregiver)
	}
}

func TestHub_ReRegisterReplacesHandle(t *testing.T) {
	hub := newTestHub()
	userID := uuid.New()

	first := newHandle(userID, "elder")
	second := newHandle(userID, "elder")

	hub.Register(first)
	hub.Register(second)

	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 connected user after reconnect, got %d", hub.ClientCount())
	}

	// The evicted handle's send channel is closed so its write pump exits.
	closed := func() bool {
		deadline := time.After(time.Second)
		for {
			select {
			case _, ok := <-first.Send:
				if !ok {
					return true
				}
			case <-deadline:
				return false
			}
		}
	}()
	if !closed {
		t.Fatal("first handle's send channel was not closed")
	}

	// Unregistering the stale transport must not disturb the new handle.
	hub.Unregister(first.ID)
	if !hub.Connected(userID) {
		t.Fatal("user should still be connected via the newer handle")
	}

	hub.Unregister(second.ID)
	if hub.Connected(userID) {
		t.Fatal("user should be disconnected")
	}
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	hub := newTestHub()
	handle := newHandle(uuid.New(), "elder")

	hub.Register(handle)
	hub.Unregister(handle.ID)
	hub.Unregister(handle.ID) // second call must be a no-op

	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 connected users, got %d", hub.ClientCount())
	}
}

func TestHub_SendToConnectedUser(t *testing.T) {
	hub := newTestHub()
	userID := uuid.New()
	handle := newHandle(userID, "elder")
	hub.Register(handle)
	drain(handle) // discard the presence broadcast from registration

	event := NewEvent(EventMedicationReminder, map[string]string{"medication": "Aspirin"})
	if err := hub.Send(userID, event); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case msg := <-handle.Send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if received.Type != EventMedicationReminder {
			t.Fatalf("event type = %s, want %s", received.Type, EventMedicationReminder)
		}
	case <-time.After(time.Second):
		t.Fatal("handle did not receive event")
	}
}

func TestHub_SendToDisconnectedUser(t *testing.T) {
	hub := newTestHub()

	err := hub.Send(uuid.New(), NewEvent(EventNewEmergency, nil))
	if err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestHub_SendFullBufferReportsDrop(t *testing.T) {
	hub := newTestHub()
	userID := uuid.New()
	handle := &Handle{
		ID:     uuid.NewString(),
		UserID: userID,
		Role:   "elder",
		Send:   make(chan []byte, 1),
	}
	hub.Register(handle)
	drain(handle) // discard the presence broadcast from registration

	if err := hub.Send(userID, NewEvent(EventMedicationReminder, nil)); err != nil {
		t.Fatalf("send into empty buffer: %v", err)
	}
	if err := hub.Send(userID, NewEvent(EventMedicationReminder, nil)); err != ErrBufferFull {
		t.Fatalf("send into full buffer err = %v, want ErrBufferFull", err)
	}
}

func TestHub_PresenceBroadcastOnChange(t *testing.T) {
	hub := newTestHub()
	watcher := newHandle(uuid.New(), "caregiver")
	hub.Register(watcher)
	drain(watcher)

	// A new elder connecting triggers a presence update to everyone.
	elder := newHandle(uuid.New(), "elder")
	hub.Register(elder)

	select {
	case msg := <-watcher.Send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if received.Type != EventActiveUsersUpdate {
			t.Fatalf("event type = %s, want %s", received.Type, EventActiveUsersUpdate)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher did not receive presence update")
	}

	drain(watcher)

	// Disconnecting triggers another update.
	hub.Unregister(elder.ID)
	select {
	case msg := <-watcher.Send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if received.Type != EventActiveUsersUpdate {
			t.Fatalf("event type = %s, want %s", received.Type, EventActiveUsersUpdate)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher did not receive presence update after disconnect")
	}
}

func TestHub_BroadcastAll(t *testing.T) {
	hub := newTestHub()
	h1 := newHandle(uuid.New(), "elder")
	h2 := newHandle(uuid.New(), "caregiver")
	hub.Register(h1)
	hub.Register(h2)
	drain(h1)
	drain(h2)

	hub.BroadcastAll(NewEvent(EventNewEmergency, map[string]string{"elder": "Rose"}))

	for _, h := range []*Handle{h1, h2} {
		select {
		case msg := <-h.Send:
			var received Event
			if err := json.Unmarshal(msg, &received); err != nil {
				t.Fatalf("unmarshal event: %v", err)
			}
			if received.Type != EventNewEmergency {
				t.Fatalf("event type = %s, want %s", received.Type, EventNewEmergency)
			}
		case <-time.After(time.Second):
			t.Fatal("handle did not receive broadcast")
		}
	}
}
