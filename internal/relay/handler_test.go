package relay

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/studydesk/classfeed/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// dialTestRelay spins up a relay behind httptest and dials it.
func dialTestRelay(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(NewHandler(hub, testHubConfig(), discardLogger()))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) serverFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame serverFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshal frame %q: %v", data, err)
	}
	return frame
}

func sendCommand(t *testing.T, conn *websocket.Conn, cmd string, room model.RoomKey) {
	t.Helper()
	data, _ := json.Marshal(clientFrame{Cmd: cmd, Room: room.String()})
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write %s command: %v", cmd, err)
	}
}

func TestHandler_JoinReceiveLeave(t *testing.T) {
	hub := NewHub(discardLogger())
	conn := dialTestRelay(t, hub)
	room := model.ChannelRoom("general")

	sendCommand(t, conn, cmdJoin, room)
	ack := readFrame(t, conn)
	if ack.Type != frameJoined || ack.Room != room.String() {
		t.Fatalf("ack = %+v, want joined %s", ack, room)
	}

	// The join is processed before the ack is queued, so the session is
	// already a member.
	msgID := uuid.New()
	hub.Publish(room, model.EventCreated, msgID, []byte(`{"content":"hi"}`))

	ev := readFrame(t, conn)
	if ev.Type != frameEvent {
		t.Fatalf("frame.Type = %q, want %q", ev.Type, frameEvent)
	}
	if ev.Room != room.String() {
		t.Errorf("frame.Room = %q, want %q", ev.Room, room)
	}
	if ev.Seq != 1 {
		t.Errorf("frame.Seq = %d, want 1", ev.Seq)
	}
	if ev.MessageID != msgID.String() {
		t.Errorf("frame.MessageID = %q, want %q", ev.MessageID, msgID)
	}

	sendCommand(t, conn, cmdLeave, room)
	ack = readFrame(t, conn)
	if ack.Type != frameLeft || ack.Room != room.String() {
		t.Fatalf("ack = %+v, want left %s", ack, room)
	}

	deadline := time.Now().Add(time.Second)
	for hub.RoomCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("room not discarded after leave")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandler_MalformedFramesIgnored(t *testing.T) {
	hub := NewHub(discardLogger())
	conn := dialTestRelay(t, hub)
	room := model.ChannelRoom("general")

	for _, raw := range []string{
		"not json",
		`{"cmd":"join","room":"nocolon"}`,
		`{"cmd":"join","room":"group:1"}`,
		`{"cmd":"rename","room":"channel:general"}`,
	} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatalf("write %q: %v", raw, err)
		}
	}

	// The connection survives the garbage; a real join still works.
	sendCommand(t, conn, cmdJoin, room)
	ack := readFrame(t, conn)
	if ack.Type != frameJoined {
		t.Fatalf("ack.Type = %q, want %q", ack.Type, frameJoined)
	}
	if got := hub.RoomCount(); got != 1 {
		t.Errorf("RoomCount = %d, want 1", got)
	}
}

func TestHandler_DisconnectCleansUpMembership(t *testing.T) {
	hub := NewHub(discardLogger())
	conn := dialTestRelay(t, hub)
	room := model.ChannelRoom("general")

	sendCommand(t, conn, cmdJoin, room)
	readFrame(t, conn)

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.RoomCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("membership not cleaned up after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandler_RespondsToClientPing(t *testing.T) {
	hub := NewHub(discardLogger())
	conn := dialTestRelay(t, hub)

	pong := make(chan struct{}, 1)
	conn.SetPongHandler(func(string) error {
		select {
		case pong <- struct{}{}:
		default:
		}
		return nil
	})

	if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(time.Second)); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	// Control frames are only delivered during a read.
	go func() {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.ReadMessage()
	}()

	select {
	case <-pong:
	case <-time.After(2 * time.Second):
		t.Fatal("no pong received")
	}
}
