package connection

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/studydesk/classfeed/internal/config"
	"github.com/studydesk/classfeed/internal/model"
)

// Manager owns one persistent connection to the relay.
type Manager struct {
	cfg    *config.ClientConfig
	logger *slog.Logger

	// Outputs
	events chan model.FeedEvent
	status chan Status

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	writeMu sync.Mutex // serializes message writes on the current conn

	// Consumer-requested rooms, replayed on every reconnect. Owned by the
	// consumer via Join/Leave; the relay is not a source of durable state.
	rooms map[model.RoomKey]struct{}
}

// NewManager creates a Manager for one client session.
func NewManager(cfg *config.ClientConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		logger: logger.With("session", uuid.New()),
		events: make(chan model.FeedEvent, 256),
		status: make(chan Status, 16),
		state:  StateIdle,
		rooms:  make(map[model.RoomKey]struct{}),
	}
}

// Start activates the manager. It returns immediately; connection and
// reconnection proceed in the background.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state != StateIdle {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()

	return nil
}

// Stop tears the manager down: the transport is released, all timers stop,
// and the state becomes terminal.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return nil
	}
	m.state = StateClosed
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	if conn != nil {
		conn.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout")
	}

	close(m.events)
	m.logger.Info("connection manager stopped")
	return nil
}

// Events returns the inbound feed events, in the order the relay sent them
// on the current connection instance.
func (m *Manager) Events() <-chan model.FeedEvent {
	return m.events
}

// Status returns state-change notifications.
func (m *Manager) Status() <-chan Status {
	return m.status
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether the persistent channel is currently up.
func (m *Manager) Connected() bool {
	return m.State() == StateConnected
}

// Join records interest in a room and, if connected, subscribes immediately.
// The room is re-joined automatically after every reconnect until Leave.
func (m *Manager) Join(key model.RoomKey) {
	m.mu.Lock()
	m.rooms[key] = struct{}{}
	connected := m.state == StateConnected
	conn := m.conn
	m.mu.Unlock()

	if connected {
		if err := m.sendCommand(conn, "join", key); err != nil {
			// The read loop will notice the broken conn and reconnect;
			// the join replays then.
			m.logger.Debug("join send failed", "room", key, "error", err)
		}
	}
}

// Leave withdraws interest in a room.
func (m *Manager) Leave(key model.RoomKey) {
	m.mu.Lock()
	delete(m.rooms, key)
	connected := m.state == StateConnected
	conn := m.conn
	m.mu.Unlock()

	if connected {
		if err := m.sendCommand(conn, "leave", key); err != nil {
			m.logger.Debug("leave send failed", "room", key, "error", err)
		}
	}
}

// run drives the connect/read/reconnect cycle until shutdown.
func (m *Manager) run() {
	defer m.wg.Done()

	attempt := 0
	wait := m.cfg.ReconnectBaseDelay
	failureSignaled := false

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		m.setState(StateConnecting)

		conn, err := m.dial()
		if err != nil {
			attempt++
			m.logger.Warn("connect failed", "attempt", attempt, "error", err)

			if attempt >= m.cfg.ReconnectMaxAttempts && !failureSignaled {
				// Budget exhausted: tell dependents, then keep trying at
				// the maximum delay so a recovered relay is picked up.
				failureSignaled = true
				m.setState(StateDisconnected)
				m.notify(Status{State: StateDisconnected, PersistentFailure: true})
			} else {
				m.setState(StateDisconnected)
			}

			select {
			case <-m.ctx.Done():
				return
			case <-time.After(wait):
			}
			wait *= 2
			if wait > m.cfg.ReconnectMaxDelay {
				wait = m.cfg.ReconnectMaxDelay
			}
			continue
		}

		// Handshake success: reset the retry budget.
		attempt = 0
		wait = m.cfg.ReconnectBaseDelay
		failureSignaled = false

		m.mu.Lock()
		if m.state == StateClosed {
			m.mu.Unlock()
			conn.Close()
			return
		}
		m.conn = conn
		m.state = StateConnected
		m.mu.Unlock()
		m.notify(Status{State: StateConnected})
		m.logger.Info("connected", "url", m.cfg.RelayURL)

		m.rejoinRooms(conn)

		// Blocks until the connection drops.
		m.readLoop(conn)

		m.mu.Lock()
		closed := m.state == StateClosed
		m.conn = nil
		if !closed {
			m.state = StateDisconnected
		}
		m.mu.Unlock()

		conn.Close()
		if closed {
			return
		}
		m.notify(Status{State: StateDisconnected})
		m.logger.Warn("disconnected")

		// A dropped connection re-enters the backoff schedule from the base
		// delay; redialing immediately would hot-loop against a relay that
		// accepts and then drops.
		select {
		case <-m.ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (m *Manager) dial() (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	ctx, cancel := context.WithTimeout(m.ctx, 10*time.Second)
	defer cancel()

	conn, _, err := dialer.DialContext(ctx, m.cfg.RelayURL, nil)
	return conn, err
}

// rejoinRooms replays join commands for every room the consumer still wants.
func (m *Manager) rejoinRooms(conn *websocket.Conn) {
	m.mu.Lock()
	keys := make([]model.RoomKey, 0, len(m.rooms))
	for key := range m.rooms {
		keys = append(keys, key)
	}
	m.mu.Unlock()

	for _, key := range keys {
		if err := m.sendCommand(conn, "join", key); err != nil {
			m.logger.Warn("rejoin failed", "room", key, "error", err)
			return
		}
		m.logger.Debug("rejoined room", "room", key)
	}
}

func (m *Manager) sendCommand(conn *websocket.Conn, cmd string, key model.RoomKey) error {
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(commandFrame{Cmd: cmd, Room: key.String()})
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop consumes frames until the connection drops or liveness expires.
func (m *Manager) readLoop(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(m.cfg.LivenessTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(m.cfg.LivenessTimeout))
	})
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(m.cfg.LivenessTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	// Keepalive pings prove liveness in both directions.
	pingDone := make(chan struct{})
	defer close(pingDone)
	go m.pingLoop(conn, pingDone)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-m.ctx.Done():
			default:
				m.logger.Debug("read failed", "error", err)
			}
			return
		}
		m.handleFrame(data)
	}
}

func (m *Manager) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				m.logger.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

func (m *Manager) handleFrame(data []byte) {
	var frame serverFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		m.logger.Warn("dropping malformed frame", "error", err)
		return
	}

	switch frame.Type {
	case "event":
		room, err := model.ParseRoomKey(frame.Room)
		if err != nil {
			m.logger.Warn("dropping event with bad room key", "room", frame.Room, "error", err)
			return
		}
		msgID, err := uuid.Parse(frame.MessageID)
		if err != nil {
			m.logger.Warn("dropping event with bad message id", "message_id", frame.MessageID, "error", err)
			return
		}

		ev := model.FeedEvent{
			Kind:      frame.Kind,
			Room:      room,
			Seq:       frame.Seq,
			MessageID: msgID,
			Payload:   frame.Payload,
		}

		// Block rather than drop: ordering within one connection instance
		// is part of the contract.
		select {
		case m.events <- ev:
		case <-m.ctx.Done():
		}

	case "joined", "left":
		m.logger.Debug("room ack", "type", frame.Type, "room", frame.Room)

	default:
		m.logger.Debug("skipping frame type", "type", frame.Type)
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) notify(st Status) {
	select {
	case m.status <- st:
	default:
		// Dependents poll Connected(); a missed notification is not fatal.
	}
}
