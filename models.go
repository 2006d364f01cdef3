package conductbridge

import "time"

// Room is a top-level grouping of panels on the ConductIP device, as returned
// by GET /rooms/info. Ids are opaque strings assigned by the device; they must
// only ever be used as matching keys.
type Room struct {
	ID     string  `json:"id"`
	Label  string  `json:"label,omitempty"`
	Panels []Panel `json:"panels,omitempty"`
}

// Panel is a routing panel inside a room. The embedded salvo list is the
// authoritative source for current salvo data.
type Panel struct {
	ID     string  `json:"id"`
	Label  string  `json:"label,omitempty"`
	Salvos []Salvo `json:"salvos,omitempty"`
}

// Salvo is a named, triggerable preset route on a panel.
type Salvo struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

// StatusState classifies the bridge's connection to the device.
type StatusState string

const (
	StateConnecting        StatusState = "CONNECTING"
	StateOk                StatusState = "OK"
	StateBadConfig         StatusState = "BAD_CONFIG"
	StateConnectionFailure StatusState = "CONNECTION_FAILURE"
	StateWarning           StatusState = "WARNING"
	StateUnknownError      StatusState = "UNKNOWN_ERROR"
)

// DeviceStatus is the latest latched connection status plus an operator-facing
// message.
type DeviceStatus struct {
	State     StatusState `json:"state"`
	Message   string      `json:"message,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// SnapshotRecord is the persisted form of the in-memory topology snapshot, so
// a restarted bridge can serve last-known-good data before its first
// successful poll.
type SnapshotRecord struct {
	Rooms          []Room    `json:"rooms"`
	ActiveSalvoIDs []string  `json:"active_salvo_ids,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Bridge event types.
const (
	EventDefinitionsChanged = "DEFINITIONS_CHANGED"
	EventFeedbackChanged    = "FEEDBACK_CHANGED"
	EventStatusChanged      = "STATUS_CHANGED"
	EventSalvoTriggered     = "SALVO_TRIGGERED"
	EventError              = "ERROR"
)

// BridgeEvent is a single entry in the append-only change log.
type BridgeEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // DEFINITIONS_CHANGED | FEEDBACK_CHANGED | STATUS_CHANGED | SALVO_TRIGGERED | ERROR
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}

type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // never expose the hash
}
