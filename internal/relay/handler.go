package relay

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/studydesk/classfeed/internal/config"
)

// Handler upgrades HTTP requests to websocket sessions attached to a Hub.
type Handler struct {
	hub      *Hub
	cfg      config.HubConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler for the hub.
func NewHandler(hub *Hub, cfg config.HubConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub:    hub,
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Access control is enforced upstream; the relay accepts any origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and runs the session until it ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s := newSession(h.hub, h.cfg, conn, h.logger)
	h.logger.Debug("session connected", "session", s.ID, "remote", r.RemoteAddr)
	s.run()
}
