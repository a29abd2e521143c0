package history

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/studydesk/classfeed/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMessage(room model.RoomKey, content string) model.Message {
	now := time.Now().UnixMicro()
	return model.Message{
		ID:        uuid.New(),
		Room:      room,
		AuthorID:  "author-1",
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestClient_GetPage(t *testing.T) {
	room := model.ChannelRoom("general")
	want := model.Page{
		Messages:   []model.Message{testMessage(room, "newest"), testMessage(room, "older")},
		NextCursor: "next-token",
	}

	var gotPath, gotCursor, gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCursor = r.URL.Query().Get("cursor")
		gotLimit = r.URL.Query().Get("limit")
		json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithLogger(discardLogger()))
	page, err := client.GetPage(context.Background(), room, GetPageOptions{Cursor: "c1", Limit: 20})
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}

	if gotPath != "/rooms/channel/general/messages" {
		t.Errorf("path = %q, want %q", gotPath, "/rooms/channel/general/messages")
	}
	if gotCursor != "c1" {
		t.Errorf("cursor = %q, want %q", gotCursor, "c1")
	}
	if gotLimit != "20" {
		t.Errorf("limit = %q, want %q", gotLimit, "20")
	}

	if len(page.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(page.Messages))
	}
	if page.Messages[0] != want.Messages[0] {
		t.Errorf("Messages[0] = %+v, want %+v", page.Messages[0], want.Messages[0])
	}
	if page.NextCursor != "next-token" {
		t.Errorf("NextCursor = %q, want %q", page.NextCursor, "next-token")
	}
}

func TestClient_GetPageOmitsEmptyParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "" {
			t.Errorf("query = %q, want empty", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(model.Page{})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithLogger(discardLogger()))
	if _, err := client.GetPage(context.Background(), model.ChannelRoom("general"), GetPageOptions{}); err != nil {
		t.Fatalf("GetPage: %v", err)
	}
}

func TestClient_GetAllMessages(t *testing.T) {
	room := model.ConversationRoom("dm-1")
	pages := map[string]model.Page{
		"":   {Messages: []model.Message{testMessage(room, "m3"), testMessage(room, "m2")}, NextCursor: "p2"},
		"p2": {Messages: []model.Message{testMessage(room, "m1")}},
	}

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(pages[r.URL.Query().Get("cursor")])
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithLogger(discardLogger()))
	all, err := client.GetAllMessages(context.Background(), room)
	if err != nil {
		t.Fatalf("GetAllMessages: %v", err)
	}

	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if len(all) != 3 {
		t.Fatalf("len(all) = %d, want 3", len(all))
	}
	if all[2].Content != "m1" {
		t.Errorf("all[2].Content = %q, want %q", all[2].Content, "m1")
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(model.Page{})
	}))
	defer srv.Close()

	client := NewClient(srv.URL,
		WithLogger(discardLogger()),
		WithRetries(3, time.Millisecond),
	)

	if _, err := client.GetPage(context.Background(), model.ChannelRoom("general"), GetPageOptions{}); err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(srv.URL,
		WithLogger(discardLogger()),
		WithRetries(3, time.Millisecond),
	)

	_, err := client.GetPage(context.Background(), model.ChannelRoom("general"), GetPageOptions{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, http.StatusBadRequest)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestClient_RetryBudgetExhausted(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL,
		WithLogger(discardLogger()),
		WithRetries(2, time.Millisecond),
	)

	_, err := client.GetPage(context.Background(), model.ChannelRoom("general"), GetPageOptions{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestClient_ContextCancelStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(srv.URL,
		WithLogger(discardLogger()),
		WithRetries(5, time.Hour),
	)

	_, err := client.GetPage(ctx, model.ChannelRoom("general"), GetPageOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestAPIError_IsRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
	}

	for _, tt := range tests {
		err := &APIError{StatusCode: tt.status}
		if got := err.IsRetryable(); got != tt.want {
			t.Errorf("IsRetryable(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
