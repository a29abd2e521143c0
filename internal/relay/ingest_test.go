package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/studydesk/classfeed/internal/model"
	"github.com/studydesk/classfeed/internal/store"
)

// fakeWriter persists messages in a map.
type fakeWriter struct {
	mu   sync.Mutex
	rows map[uuid.UUID]model.Message
	err  error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{rows: make(map[uuid.UUID]model.Message)}
}

func (f *fakeWriter) Create(_ context.Context, msg *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	now := time.Now().UnixMicro()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	f.rows[msg.ID] = *msg
	return nil
}

func (f *fakeWriter) Update(_ context.Context, id uuid.UUID, content string) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.rows[id]
	if !ok || msg.Deleted {
		return nil, store.ErrNotFound
	}
	msg.Content = content
	msg.UpdatedAt = time.Now().UnixMicro()
	f.rows[id] = msg
	return &msg, nil
}

func (f *fakeWriter) SoftDelete(_ context.Context, id uuid.UUID) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	msg.Content = "This message has been deleted"
	msg.FileURL = ""
	msg.Deleted = true
	msg.UpdatedAt = time.Now().UnixMicro()
	f.rows[id] = msg
	return &msg, nil
}

func (f *fakeWriter) Delete(_ context.Context, id uuid.UUID) (*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := f.rows[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	delete(f.rows, id)
	return &msg, nil
}

// fakeBroadcaster records published mutations.
type fakeBroadcaster struct {
	mu        sync.Mutex
	published []struct {
		kind model.EventKind
		msg  model.Message
	}
}

func (f *fakeBroadcaster) PublishMessage(kind model.EventKind, msg model.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, struct {
		kind model.EventKind
		msg  model.Message
	}{kind, msg})
}

func (f *fakeBroadcaster) last(t *testing.T) (model.EventKind, model.Message) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.published) == 0 {
		t.Fatal("nothing published")
	}
	p := f.published[len(f.published)-1]
	return p.kind, p.msg
}

func newIngestServer(t *testing.T, writer *fakeWriter, hub *fakeBroadcaster) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	NewIngestHandler(writer, hub, discardLogger()).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func doRequest(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func TestIngest_CreatePersistsAndBroadcasts(t *testing.T) {
	writer := newFakeWriter()
	hub := &fakeBroadcaster{}
	srv := newIngestServer(t, writer, hub)

	resp := postJSON(t, srv.URL+"/rooms/channel/general/messages", createRequest{
		AuthorID: "student-3",
		Content:  "is the quiz tomorrow?",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var created model.Message
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if created.Room != model.ChannelRoom("general") {
		t.Errorf("room = %v, want channel:general", created.Room)
	}
	if created.CreatedAt == 0 {
		t.Error("CreatedAt not set")
	}

	writer.mu.Lock()
	_, stored := writer.rows[created.ID]
	writer.mu.Unlock()
	if !stored {
		t.Error("message not persisted")
	}

	kind, msg := hub.last(t)
	if kind != model.EventCreated {
		t.Errorf("published kind = %q, want %q", kind, model.EventCreated)
	}
	if msg.ID != created.ID {
		t.Errorf("published id = %v, want %v", msg.ID, created.ID)
	}
}

func TestIngest_CreateRejectsBadInput(t *testing.T) {
	writer := newFakeWriter()
	hub := &fakeBroadcaster{}
	srv := newIngestServer(t, writer, hub)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"unknown room kind", "/rooms/group/general/messages", `{"author_id":"a","content":"x"}`},
		{"missing author", "/rooms/channel/general/messages", `{"content":"x"}`},
		{"malformed body", "/rooms/channel/general/messages", `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+tt.path, "application/json", bytes.NewReader([]byte(tt.body)))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
			}
		})
	}

	hub.mu.Lock()
	published := len(hub.published)
	hub.mu.Unlock()
	if published != 0 {
		t.Errorf("published = %d events, want 0", published)
	}
}

func TestIngest_UpdateBroadcastsUpdated(t *testing.T) {
	writer := newFakeWriter()
	hub := &fakeBroadcaster{}
	srv := newIngestServer(t, writer, hub)

	existing := model.Message{ID: uuid.New(), Room: model.ChannelRoom("general"), AuthorID: "a"}
	writer.rows[existing.ID] = existing

	resp := doRequest(t, http.MethodPatch,
		fmt.Sprintf("%s/messages/%s", srv.URL, existing.ID),
		updateRequest{Content: "edited"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	kind, msg := hub.last(t)
	if kind != model.EventUpdated {
		t.Errorf("published kind = %q, want %q", kind, model.EventUpdated)
	}
	if msg.Content != "edited" {
		t.Errorf("published content = %q, want %q", msg.Content, "edited")
	}
}

func TestIngest_UpdateMissingMessageIs404(t *testing.T) {
	srv := newIngestServer(t, newFakeWriter(), &fakeBroadcaster{})

	resp := doRequest(t, http.MethodPatch,
		fmt.Sprintf("%s/messages/%s", srv.URL, uuid.New()),
		updateRequest{Content: "edited"})
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestIngest_DeleteTombstonesByDefault(t *testing.T) {
	writer := newFakeWriter()
	hub := &fakeBroadcaster{}
	srv := newIngestServer(t, writer, hub)

	existing := model.Message{ID: uuid.New(), Room: model.ChannelRoom("general"), AuthorID: "a", Content: "oops"}
	writer.rows[existing.ID] = existing

	resp := doRequest(t, http.MethodDelete,
		fmt.Sprintf("%s/messages/%s", srv.URL, existing.ID), nil)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	// The row survives as a tombstone and subscribers see an update.
	writer.mu.Lock()
	row, ok := writer.rows[existing.ID]
	writer.mu.Unlock()
	if !ok || !row.Deleted {
		t.Errorf("row = %+v (present %v), want tombstoned", row, ok)
	}

	kind, msg := hub.last(t)
	if kind != model.EventUpdated {
		t.Errorf("published kind = %q, want %q", kind, model.EventUpdated)
	}
	if !msg.Deleted {
		t.Error("published message not marked deleted")
	}
}

func TestIngest_PurgeDeletesAndBroadcastsDeleted(t *testing.T) {
	writer := newFakeWriter()
	hub := &fakeBroadcaster{}
	srv := newIngestServer(t, writer, hub)

	existing := model.Message{ID: uuid.New(), Room: model.ChannelRoom("general"), AuthorID: "a"}
	writer.rows[existing.ID] = existing

	resp := doRequest(t, http.MethodDelete,
		fmt.Sprintf("%s/messages/%s?purge=true", srv.URL, existing.ID), nil)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	writer.mu.Lock()
	_, ok := writer.rows[existing.ID]
	writer.mu.Unlock()
	if ok {
		t.Error("row still present after purge")
	}

	kind, msg := hub.last(t)
	if kind != model.EventDeleted {
		t.Errorf("published kind = %q, want %q", kind, model.EventDeleted)
	}
	if msg.ID != existing.ID {
		t.Errorf("published id = %v, want %v", msg.ID, existing.ID)
	}
}

func TestIngest_StoreFailureIs500(t *testing.T) {
	writer := newFakeWriter()
	writer.err = errors.New("pool exhausted")
	hub := &fakeBroadcaster{}
	srv := newIngestServer(t, writer, hub)

	resp := postJSON(t, srv.URL+"/rooms/channel/general/messages", createRequest{
		AuthorID: "a",
		Content:  "x",
	})
	resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}

	hub.mu.Lock()
	published := len(hub.published)
	hub.mu.Unlock()
	if published != 0 {
		t.Errorf("published = %d events, want 0", published)
	}
}
