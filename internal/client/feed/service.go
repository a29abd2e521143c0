package feed

import (
	"log/slog"

	"github.com/studydesk/classfeed/internal/client/bus"
	"github.com/studydesk/classfeed/internal/config"
	"github.com/studydesk/classfeed/internal/model"
)

// Connection is the slice of the connection manager the feed service needs.
type Connection interface {
	ConnStatus
	RoomJoiner
}

// Service creates feed pagers wired to the connection manager, the event
// bus, and the historical-read client.
type Service struct {
	cfg     *config.ClientConfig
	conn    Connection
	fetcher PageFetcher
	bus     *bus.Bus
	logger  *slog.Logger
}

// NewService creates a feed service.
func NewService(cfg *config.ClientConfig, conn Connection, fetcher PageFetcher, b *bus.Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:     cfg,
		conn:    conn,
		fetcher: fetcher,
		bus:     b,
		logger:  logger,
	}
}

// Subscribe opens a feed session for one room. The returned pager is live
// immediately: the room is joined on the relay connection and bus delivery
// is registered before this returns. Callers must Dispose the pager when
// done; disposal unregisters from the bus and leaves the room.
func (s *Service) Subscribe(room model.RoomKey) *Pager {
	p := newPager(room, s.fetcher, s.conn, s.cfg.PollInterval, s.cfg.PageSize, s.logger)

	unsubscribe := s.bus.Subscribe(room, p.ApplyLiveEvent)
	s.conn.Join(room)

	p.onDispose = func() {
		unsubscribe()
		s.conn.Leave(room)
	}

	p.start()
	return p
}
