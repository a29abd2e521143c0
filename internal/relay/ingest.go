package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/studydesk/classfeed/internal/model"
	"github.com/studydesk/classfeed/internal/store"
)

// MessageWriter persists message mutations.
type MessageWriter interface {
	Create(ctx context.Context, msg *model.Message) error
	Update(ctx context.Context, id uuid.UUID, content string) (*model.Message, error)
	SoftDelete(ctx context.Context, id uuid.UUID) (*model.Message, error)
	Delete(ctx context.Context, id uuid.UUID) (*model.Message, error)
}

// Broadcaster fans a mutation out to live subscribers.
type Broadcaster interface {
	PublishMessage(kind model.EventKind, msg model.Message)
}

// IngestHandler is the mutation surface for the CRUD collaborator: each write
// is persisted to the message store, then broadcast through the hub. The
// broadcast is best-effort; a room with no subscribers only sees the mutation
// through the history read.
type IngestHandler struct {
	writer MessageWriter
	hub    Broadcaster
	logger *slog.Logger
}

// NewIngestHandler creates the mutation endpoint handler.
func NewIngestHandler(writer MessageWriter, hub Broadcaster, logger *slog.Logger) *IngestHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestHandler{writer: writer, hub: hub, logger: logger}
}

// Register mounts the handler's routes on a mux.
func (h *IngestHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /rooms/{kind}/{id}/messages", h.handleCreate)
	mux.HandleFunc("PATCH /messages/{id}", h.handleUpdate)
	mux.HandleFunc("DELETE /messages/{id}", h.handleDelete)
}

type createRequest struct {
	AuthorID string `json:"author_id"`
	Content  string `json:"content"`
	FileURL  string `json:"file_url,omitempty"`
}

func (h *IngestHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	room, err := model.ParseRoomKey(r.PathValue("kind") + ":" + r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if req.AuthorID == "" {
		writeError(w, http.StatusBadRequest, "author_id is required")
		return
	}

	msg := model.Message{
		ID:       uuid.New(),
		Room:     room,
		AuthorID: req.AuthorID,
		Content:  req.Content,
		FileURL:  req.FileURL,
	}
	if err := h.writer.Create(r.Context(), &msg); err != nil {
		h.logger.Error("create failed", "room", room, "error", err)
		writeError(w, http.StatusInternalServerError, "create failed")
		return
	}

	h.hub.PublishMessage(model.EventCreated, msg)
	writeJSON(w, http.StatusCreated, msg)
}

type updateRequest struct {
	Content string `json:"content"`
}

func (h *IngestHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed message id")
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	msg, err := h.writer.Update(r.Context(), id, req.Content)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "message not found")
			return
		}
		h.logger.Error("update failed", "message", id, "error", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}

	h.hub.PublishMessage(model.EventUpdated, *msg)
	writeJSON(w, http.StatusOK, msg)
}

// handleDelete tombstones by default: the row stays with its content cleared,
// and subscribers receive an updated event carrying the tombstone. With
// ?purge=true the row is removed and subscribers receive a deleted event.
func (h *IngestHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed message id")
		return
	}

	var (
		msg  *model.Message
		kind model.EventKind
	)
	if r.URL.Query().Get("purge") == "true" {
		msg, err = h.writer.Delete(r.Context(), id)
		kind = model.EventDeleted
	} else {
		msg, err = h.writer.SoftDelete(r.Context(), id)
		kind = model.EventUpdated
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "message not found")
			return
		}
		h.logger.Error("delete failed", "message", id, "error", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}

	h.hub.PublishMessage(kind, *msg)
	writeJSON(w, http.StatusOK, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
