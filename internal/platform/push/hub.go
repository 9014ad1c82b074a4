// Package push delivers real-time events to connected elder and caregiver
// apps over WebSockets. The Hub doubles as the presence registry: a user is
// "online" exactly while it holds a registered connection handle, and every
// presence change is broadcast to all connected clients.
package push

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNotConnected is returned by Send when the recipient has no active
// connection. Callers treat this as "skip", not as a delivery failure.
var ErrNotConnected = errors.New("push: user has no active connection")

// ErrBufferFull is returned by Send when the recipient is connected but its
// outbound buffer has no room. The event is dropped, so the attempt counts
// as a delivery failure, not a skip.
var ErrBufferFull = errors.New("push: client buffer full, event dropped")

// Event types pushed to clients.
const (
	EventNewEmergency         = "new-emergency"
	EventEmergencyResolved    = "emergency-resolved"
	EventMedicationReminder   = "medication-reminder"
	EventCaregiverReminder    = "medication-reminder-caregiver"
	EventMedicationTaken      = "medication-taken"
	EventMedicationMissed     = "medication-missed"
	EventMedicationAutoMissed = "medication-auto-missed"
	EventActiveUsersUpdate    = "active-users-update"
)

// Event is a single message pushed to a client.
type Event struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// NewEvent builds an event stamped with the current time.
func NewEvent(eventType string, data interface{}) Event {
	return Event{Type: eventType, Timestamp: time.Now().UTC(), Data: data}
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Handle represents one live connection for one user. A user holds at most
// one handle; reconnecting replaces the previous one.
type Handle struct {
	ID     string // transport connection ID, unique per upgrade
	UserID uuid.UUID
	Role   string
	Send   chan []byte
	conn   Conn
}

// Snapshot describes who is online at a point in time.
type Snapshot struct {
	ActiveElders     []uuid.UUID `json:"activeElders"`
	ActiveCaregivers []uuid.UUID `json:"activeCaregivers"`
	AsOf             time.Time   `json:"asOf"`
}

// Hub tracks connected users and delivers events to them. All operations are
// thread-safe via sync.RWMutex. Send channels are only closed while holding
// the write lock and after removal from both indexes, so a closed channel is
// never reachable from a delivery path.
type Hub struct {
	mu          sync.RWMutex
	byUser      map[uuid.UUID]*Handle
	byTransport map[string]*Handle
	logger      zerolog.Logger
}

// NewHub creates a Hub ready to manage client connections.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		byUser:      make(map[uuid.UUID]*Handle),
		byTransport: make(map[string]*Handle),
		logger:      logger,
	}
}

// Register adds a connection handle for a user. If the user already has a
// live handle the old one is evicted and its send channel closed, so its
// write pump shuts the stale socket down. The new presence snapshot is
// broadcast to everyone after registration.
func (h *Hub) Register(handle *Handle) {
	h.mu.Lock()
	if old, ok := h.byUser[handle.UserID]; ok {
		delete(h.byTransport, old.ID)
		close(old.Send)
	}
	h.byUser[handle.UserID] = handle
	h.byTransport[handle.ID] = handle
	h.mu.Unlock()

	h.logger.Debug().
		Str("user_id", handle.UserID.String()).
		Str("role", handle.Role).
		Str("transport_id", handle.ID).
		Msg("client connected")

	h.broadcastPresence()
}

// Unregister removes the connection with the given transport ID. It is a
// no-op when the ID is unknown, which makes disconnect handling idempotent.
// If the user reconnected in the meantime the newer handle is left in place.
func (h *Hub) Unregister(transportID string) {
	h.mu.Lock()
	handle, ok := h.byTransport[transportID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.byTransport, transportID)
	if current, ok := h.byUser[handle.UserID]; ok && current == handle {
		delete(h.byUser, handle.UserID)
	}
	close(handle.Send)
	h.mu.Unlock()

	h.logger.Debug().
		Str("user_id", handle.UserID.String()).
		Str("transport_id", transportID).
		Msg("client disconnected")

	h.broadcastPresence()
}

// Send delivers an event to a single user. Returns ErrNotConnected when the
// user has no live connection and ErrBufferFull when the connection exists
// but its send buffer has no room; either way the caller is never blocked.
func (h *Hub) Send(userID uuid.UUID, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	handle, ok := h.byUser[userID]
	if !ok {
		return ErrNotConnected
	}

	select {
	case handle.Send <- data:
		return nil
	default:
		h.logger.Warn().
			Str("user_id", userID.String()).
			Str("event_type", event.Type).
			Msg("client buffer full, dropping event")
		return ErrBufferFull
	}
}

// BroadcastAll sends an event to every connected client.
func (h *Hub) BroadcastAll(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("marshal broadcast event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, handle := range h.byUser {
		select {
		case handle.Send <- data:
		default:
			// Client buffer full; skip to avoid blocking.
		}
	}
}

// Connected reports whether the user currently holds a live connection.
func (h *Hub) Connected(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.byUser[userID]
	return ok
}

// ClientCount returns the number of distinct connected users.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser)
}

// Snapshot returns the current presence state grouped by role.
func (h *Hub) Snapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	snap := Snapshot{
		ActiveElders:     []uuid.UUID{},
		ActiveCaregivers: []uuid.UUID{},
		AsOf:             time.Now().UTC(),
	}
	for userID, handle := range h.byUser {
		switch handle.Role {
		case "elder":
			snap.ActiveElders = append(snap.ActiveElders, userID)
		case "caregiver":
			snap.ActiveCaregivers = append(snap.ActiveCaregivers, userID)
		}
	}
	return snap
}

func (h *Hub) broadcastPresence() {
	h.BroadcastAll(NewEvent(EventActiveUsersUpdate, h.Snapshot()))
}
