package relay

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/studydesk/classfeed/internal/config"
	"github.com/studydesk/classfeed/internal/model"
)

// Session is one client's attachment to the hub: a websocket connection, its
// bounded outbound queue, and the set of rooms it has joined.
type Session struct {
	ID uuid.UUID

	hub    *Hub
	cfg    config.HubConfig
	conn   *websocket.Conn
	logger *slog.Logger

	send chan []byte
	done chan struct{}

	closeOnce sync.Once

	mu    sync.Mutex
	rooms map[model.RoomKey]struct{}
}

func newSession(hub *Hub, cfg config.HubConfig, conn *websocket.Conn, logger *slog.Logger) *Session {
	id := uuid.New()
	return &Session{
		ID:     id,
		hub:    hub,
		cfg:    cfg,
		conn:   conn,
		logger: logger.With("session", id),
		send:   make(chan []byte, cfg.SessionQueueSize),
		done:   make(chan struct{}),
		rooms:  make(map[model.RoomKey]struct{}),
	}
}

// run starts the pumps and blocks until the session ends.
func (s *Session) run() {
	go s.writePump()
	s.readPump()
	s.hub.Disconnect(s)
}

// trySend queues an outbound frame without blocking. A full queue means the
// consumer is too slow to keep; the caller drops the session.
func (s *Session) trySend(data []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.send <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn == nil {
			return
		}
		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		s.conn.Close()
	})
}

// readPump consumes client frames until the connection drops or the liveness
// window expires without a pong.
func (s *Session) readPump() {
	s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	})
	// Client pings also prove liveness.
	s.conn.SetPingHandler(func(data string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
		return s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.logger.Debug("read failed", "error", err)
			}
			return
		}
		s.handleFrame(data)
	}
}

func (s *Session) handleFrame(data []byte) {
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.logger.Warn("dropping malformed frame", "error", err)
		return
	}

	key, err := model.ParseRoomKey(frame.Room)
	if err != nil {
		s.logger.Warn("dropping frame with bad room key", "room", frame.Room, "error", err)
		return
	}

	switch frame.Cmd {
	case cmdJoin:
		s.hub.Join(s, key)
		s.trySend(encodeAckFrame(frameJoined, key))
	case cmdLeave:
		s.hub.Leave(s, key)
		s.trySend(encodeAckFrame(frameLeft, key))
	default:
		s.logger.Warn("dropping frame with unknown command", "cmd", frame.Cmd)
	}
}

// writePump drains the outbound queue and keeps the connection alive with
// periodic pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return

		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("write failed", "error", err)
				s.hub.Disconnect(s)
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				s.logger.Debug("ping failed", "error", err)
				s.hub.Disconnect(s)
				return
			}
		}
	}
}

// trackJoin records room membership on the session side for onDisconnect.
func (s *Session) trackJoin(key model.RoomKey) {
	s.mu.Lock()
	s.rooms[key] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) trackLeave(key model.RoomKey) {
	s.mu.Lock()
	delete(s.rooms, key)
	s.mu.Unlock()
}

func (s *Session) joinedRooms() []model.RoomKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]model.RoomKey, 0, len(s.rooms))
	for key := range s.rooms {
		keys = append(keys, key)
	}
	return keys
}
