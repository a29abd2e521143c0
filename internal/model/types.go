package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Rooms
// -----------------------------------------------------------------------------

// RoomKind discriminates the two broadcast scopes.
type RoomKind string

const (
	RoomChannel      RoomKind = "channel"
	RoomConversation RoomKind = "conversation"
)

// RoomKey identifies one broadcast scope: a server channel or a direct
// conversation. The canonical string form ("channel:<id>") is used on the wire
// and as a map key.
type RoomKey struct {
	Kind RoomKind
	ID   string
}

// ChannelRoom returns the RoomKey for a channel.
func ChannelRoom(id string) RoomKey {
	return RoomKey{Kind: RoomChannel, ID: id}
}

// ConversationRoom returns the RoomKey for a direct conversation.
func ConversationRoom(id string) RoomKey {
	return RoomKey{Kind: RoomConversation, ID: id}
}

// String returns the canonical "kind:id" form.
func (k RoomKey) String() string {
	return string(k.Kind) + ":" + k.ID
}

// IsZero reports whether the key is unset.
func (k RoomKey) IsZero() bool {
	return k.Kind == "" && k.ID == ""
}

// ParseRoomKey parses the canonical "kind:id" form.
func ParseRoomKey(s string) (RoomKey, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return RoomKey{}, fmt.Errorf("malformed room key %q", s)
	}
	switch RoomKind(kind) {
	case RoomChannel, RoomConversation:
		return RoomKey{Kind: RoomKind(kind), ID: id}, nil
	}
	return RoomKey{}, fmt.Errorf("unknown room kind %q", kind)
}

// MarshalJSON encodes the key in its canonical string form.
func (k RoomKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes the canonical string form.
func (k *RoomKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRoomKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// -----------------------------------------------------------------------------
// Messages
// -----------------------------------------------------------------------------

// Message is one chat message as produced by the CRUD layer. The relay treats
// it as opaque payload; the store persists it; the feed pager orders it.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Room      RoomKey   `json:"room"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	FileURL   string    `json:"file_url,omitempty"`
	Deleted   bool      `json:"deleted,omitempty"` // soft-delete tombstone
	CreatedAt int64     `json:"created_at"`        // µs since epoch
	UpdatedAt int64     `json:"updated_at"`        // µs since epoch
}

// -----------------------------------------------------------------------------
// Feed events
// -----------------------------------------------------------------------------

// EventKind is the mutation type carried by a FeedEvent.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// Valid reports whether the kind is one the relay will broadcast.
func (k EventKind) Valid() bool {
	switch k {
	case EventCreated, EventUpdated, EventDeleted:
		return true
	}
	return false
}

// FeedEvent is an immutable record of one message mutation. Seq is assigned by
// the relay at broadcast time and increases by exactly one per event within a
// room. Payload is opaque to the relay; the feed pager decodes it as a Message
// for created/updated events.
type FeedEvent struct {
	Kind      EventKind       `json:"kind"`
	Room      RoomKey         `json:"room"`
	Seq       int64           `json:"seq"`
	MessageID uuid.UUID       `json:"message_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// DecodePayload unmarshals the event payload into a Message.
func (e FeedEvent) DecodePayload() (Message, error) {
	var msg Message
	if err := json.Unmarshal(e.Payload, &msg); err != nil {
		return Message{}, fmt.Errorf("decode event payload: %w", err)
	}
	return msg, nil
}

// -----------------------------------------------------------------------------
// History pages
// -----------------------------------------------------------------------------

// Page is one historical-read result: messages ordered newest first, plus the
// cursor for the next (strictly older) page. An empty NextCursor means the
// history is exhausted.
type Page struct {
	Messages   []Message `json:"messages"`
	NextCursor string    `json:"next_cursor,omitempty"`
}
