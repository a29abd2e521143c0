package relay

import (
	"encoding/json"
	"errors"

	"github.com/studydesk/classfeed/internal/model"
)

// Errors
var (
	ErrSessionClosed = errors.New("session closed")
	ErrQueueFull     = errors.New("session send queue full")
)

// Client → server frame.
type clientFrame struct {
	Cmd  string `json:"cmd"`  // "join" or "leave"
	Room string `json:"room"` // canonical room key
}

const (
	cmdJoin  = "join"
	cmdLeave = "leave"
)

// Server → client frame. Exactly one of the optional fields is populated
// depending on Type.
type serverFrame struct {
	Type string `json:"type"` // "event", "joined", "left"

	Room string `json:"room,omitempty"`

	// event fields
	Seq       int64           `json:"seq,omitempty"`
	Kind      model.EventKind `json:"kind,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

const (
	frameEvent  = "event"
	frameJoined = "joined"
	frameLeft   = "left"
)

func encodeEventFrame(ev model.FeedEvent) ([]byte, error) {
	return json.Marshal(serverFrame{
		Type:      frameEvent,
		Room:      ev.Room.String(),
		Seq:       ev.Seq,
		Kind:      ev.Kind,
		MessageID: ev.MessageID.String(),
		Payload:   ev.Payload,
	})
}

func encodeAckFrame(frameType string, room model.RoomKey) []byte {
	data, _ := json.Marshal(serverFrame{Type: frameType, Room: room.String()})
	return data
}
