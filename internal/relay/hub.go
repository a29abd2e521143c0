package relay

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/studydesk/classfeed/internal/model"
)

// room is one broadcast scope. Sequence numbers are assigned under the room's
// own lock, so independent rooms never contend with each other.
type room struct {
	mu      sync.Mutex
	nextSeq int64
	members map[*Session]struct{}
}

// Hub manages room membership and broadcasts feed events.
type Hub struct {
	logger *slog.Logger

	mu    sync.RWMutex
	rooms map[model.RoomKey]*room
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		rooms:  make(map[model.RoomKey]*room),
	}
}

// Join adds a session to a room, creating the room on first join. Repeated
// joins are no-ops.
func (h *Hub) Join(s *Session, key model.RoomKey) {
	// h.mu is held across the member insert so a concurrent Leave cannot
	// discard the room between lookup and insert.
	h.mu.Lock()
	r, ok := h.rooms[key]
	if !ok {
		r = &room{members: make(map[*Session]struct{})}
		h.rooms[key] = r
	}
	r.mu.Lock()
	r.members[s] = struct{}{}
	r.mu.Unlock()
	h.mu.Unlock()

	s.trackJoin(key)

	h.logger.Debug("session joined room", "session", s.ID, "room", key)
}

// Leave removes a session from a room. The room entry (and with it the
// sequence counter) is discarded when the last subscriber leaves.
func (h *Hub) Leave(s *Session, key model.RoomKey) {
	h.mu.Lock()
	r, ok := h.rooms[key]
	if !ok {
		h.mu.Unlock()
		return
	}

	r.mu.Lock()
	delete(r.members, s)
	empty := len(r.members) == 0
	r.mu.Unlock()

	if empty {
		delete(h.rooms, key)
	}
	h.mu.Unlock()

	s.trackLeave(key)

	h.logger.Debug("session left room", "session", s.ID, "room", key, "room_discarded", empty)
}

// Publish assigns the next sequence number for the room and broadcasts the
// event to every joined session. Fire-and-forget: a malformed event or an
// unknown room is logged and dropped, and a slow session is disconnected
// rather than waited on.
func (h *Hub) Publish(key model.RoomKey, kind model.EventKind, messageID uuid.UUID, payload json.RawMessage) {
	if !kind.Valid() {
		h.logger.Warn("dropping publish with unknown event kind", "room", key, "kind", kind)
		return
	}

	h.mu.RLock()
	r, ok := h.rooms[key]
	h.mu.RUnlock()
	if !ok {
		// Nobody is listening; the event is only recoverable via history.
		h.logger.Debug("publish to room with no subscribers", "room", key)
		return
	}

	r.mu.Lock()
	r.nextSeq++
	ev := model.FeedEvent{
		Kind:      kind,
		Room:      key,
		Seq:       r.nextSeq,
		MessageID: messageID,
		Payload:   payload,
	}
	members := make([]*Session, 0, len(r.members))
	for s := range r.members {
		members = append(members, s)
	}
	r.mu.Unlock()

	data, err := encodeEventFrame(ev)
	if err != nil {
		h.logger.Warn("dropping unencodable event", "room", key, "error", err)
		return
	}

	for _, s := range members {
		if err := s.trySend(data); err != nil {
			h.logger.Warn("dropping slow session",
				"session", s.ID,
				"room", key,
				"error", err,
			)
			go h.Disconnect(s)
		}
	}
}

// PublishMessage is a convenience for the CRUD collaborator: it encodes the
// message as the event payload and publishes it.
func (h *Hub) PublishMessage(kind model.EventKind, msg model.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("dropping unencodable message", "message", msg.ID, "error", err)
		return
	}
	h.Publish(msg.Room, kind, msg.ID, payload)
}

// Disconnect removes a session from every room it joined and closes it.
// Idempotent.
func (h *Hub) Disconnect(s *Session) {
	for _, key := range s.joinedRooms() {
		h.Leave(s, key)
	}
	s.close()
	h.logger.Debug("session disconnected", "session", s.ID)
}

// RoomCount returns the number of live rooms. Used by tests and stats.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Subscribers returns the number of sessions joined to a room.
func (h *Hub) Subscribers(key model.RoomKey) int {
	h.mu.RLock()
	r, ok := h.rooms[key]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}
