package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/studydesk/classfeed/internal/config"
	"github.com/studydesk/classfeed/internal/model"
	"github.com/studydesk/classfeed/internal/store"
)

// MessageSource serves cursor-paginated historical reads.
type MessageSource interface {
	ListPage(ctx context.Context, room model.RoomKey, cursor string, limit int) (model.Page, error)
}

// HistoryHandler exposes the paginated historical read over HTTP.
type HistoryHandler struct {
	src    MessageSource
	cfg    config.HistoryConfig
	logger *slog.Logger
}

// NewHistoryHandler creates the history endpoint handler.
func NewHistoryHandler(src MessageSource, cfg config.HistoryConfig, logger *slog.Logger) *HistoryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryHandler{src: src, cfg: cfg, logger: logger}
}

// Register mounts the handler's routes on a mux.
func (h *HistoryHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /rooms/{kind}/{id}/messages", h.handleList)
}

func (h *HistoryHandler) handleList(w http.ResponseWriter, r *http.Request) {
	room, err := model.ParseRoomKey(r.PathValue("kind") + ":" + r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := h.cfg.PageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if limit > h.cfg.MaxPageSize {
			limit = h.cfg.MaxPageSize
		}
	}

	page, err := h.src.ListPage(r.Context(), room, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		if errors.Is(err, store.ErrBadCursor) {
			writeError(w, http.StatusBadRequest, "malformed cursor")
			return
		}
		h.logger.Error("history read failed", "room", room, "error", err)
		writeError(w, http.StatusInternalServerError, "history read failed")
		return
	}

	if page.Messages == nil {
		page.Messages = []model.Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(page)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
