package connection

import (
	"encoding/json"
	"errors"

	"github.com/studydesk/classfeed/internal/model"
)

// Errors
var (
	ErrClosed       = errors.New("connection manager closed")
	ErrNotConnected = errors.New("not connected")
)

// State is the manager's coarse connection state.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateClosed       State = "closed"
)

// Status is a state-change notification delivered to dependents.
// PersistentFailure is set once per outage when the reconnect attempt budget
// is exhausted; the manager keeps retrying at the maximum delay afterwards,
// so a later recovery still flips the state back to connected.
type Status struct {
	State             State
	PersistentFailure bool
}

// Client → server frame (join/leave commands).
type commandFrame struct {
	Cmd  string `json:"cmd"`
	Room string `json:"room"`
}

// Server → client frame.
type serverFrame struct {
	Type      string          `json:"type"`
	Room      string          `json:"room,omitempty"`
	Seq       int64           `json:"seq,omitempty"`
	Kind      model.EventKind `json:"kind,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
