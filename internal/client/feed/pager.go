package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studydesk/classfeed/internal/history"
	"github.com/studydesk/classfeed/internal/model"
)

// Pager is the per-room feed session handed to the consumer. It owns the
// room's FeedState and is the only writer to it.
type Pager struct {
	room    model.RoomKey
	fetcher PageFetcher
	conn    ConnStatus
	logger  *slog.Logger

	pollInterval time.Duration
	fetchTimeout time.Duration
	pageSize     int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Runs outside mu on disposal (bus unsubscribe, room leave).
	onDispose func()

	mu         sync.Mutex
	order      []uuid.UUID // display order, newest first
	byID       map[uuid.UUID]model.Message
	lastSeq    int64 // last applied live sequence, 0 = none yet
	gapSeq     int64 // highest sequence seen across a gap
	cursor     string
	exhausted  bool
	stale      bool // gap detected, refresh pending or failed
	refreshing bool
	loading    bool // LoadOlder in flight
	waiters    []chan error
	polling    bool
	lastReadAt time.Time
	disposed   bool
}

func newPager(room model.RoomKey, fetcher PageFetcher, conn ConnStatus,
	pollInterval time.Duration, pageSize int, logger *slog.Logger) *Pager {

	if logger == nil {
		logger = slog.Default()
	}
	p := &Pager{
		room:         room,
		fetcher:      fetcher,
		conn:         conn,
		logger:       logger.With("room", room),
		pollInterval: pollInterval,
		fetchTimeout: 10 * time.Second,
		pageSize:     pageSize,
		byID:         make(map[uuid.UUID]model.Message),
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p
}

// start launches the background loop: disconnected-mode polling, reconnect
// detection, and retry of a failed gap refresh.
func (p *Pager) start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()
		connected := p.conn.Connected()
		for {
			select {
			case <-p.ctx.Done():
				return
			case <-ticker.C:
				up := p.conn.Connected()
				switch {
				case up && !connected:
					p.resync()
				case up:
					p.retryRefresh()
				default:
					p.Tick()
				}
				connected = up
			}
		}
	}()
}

// resync re-baselines after the persistent channel comes back. Sequence
// numbers live only as long as the relay-side room: a relay restart or a
// room re-created after GC restarts its counter at 1, so the pre-disconnect
// baseline is meaningless and keeping it would discard every new event as a
// duplicate. The next observed sequence becomes the new baseline, and one
// newest-page refresh recovers whatever was missed while disconnected.
func (p *Pager) resync() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return
	}
	p.lastSeq = 0
	p.gapSeq = 0
	p.stale = true
	if !p.refreshing {
		p.refreshing = true
		p.wg.Add(1)
		go p.refresh()
	}
}

// retryRefresh reschedules a gap refresh that failed earlier, so a stale
// window heals without waiting for another out-of-sequence event.
func (p *Pager) retryRefresh() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed || !p.stale || p.refreshing {
		return
	}
	p.refreshing = true
	p.wg.Add(1)
	go p.refresh()
}

// Room returns the room this pager serves.
func (p *Pager) Room() model.RoomKey {
	return p.room
}

// Messages returns the current ordered message sequence, newest first.
func (p *Pager) Messages() []model.Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]model.Message, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.byID[id])
	}
	return out
}

// HasMore reports whether further history exists beyond the loaded window.
func (p *Pager) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.exhausted
}

// Stale reports whether the feed may be missing events (a sequence gap was
// detected and the closing refresh has not completed). Transient; not an
// error.
func (p *Pager) Stale() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stale
}

// LoadOlder fetches the next historical page and merges it below the loaded
// window. Once the history is exhausted further calls are no-ops. Concurrent
// calls are coalesced: at most one fetch is in flight, and late callers
// resolve with the first call's result so the cursor advances exactly once.
func (p *Pager) LoadOlder(ctx context.Context) error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return ErrDisposed
	}
	if p.exhausted {
		p.mu.Unlock()
		return nil
	}
	if p.loading {
		ch := make(chan error, 1)
		p.waiters = append(p.waiters, ch)
		p.mu.Unlock()

		select {
		case err := <-ch:
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-p.ctx.Done():
			return ErrDisposed
		}
	}
	p.loading = true
	cursor := p.cursor
	p.mu.Unlock()

	page, err := p.fetcher.GetPage(ctx, p.room, history.GetPageOptions{
		Cursor: cursor,
		Limit:  p.pageSize,
	})

	p.mu.Lock()
	p.loading = false
	waiters := p.waiters
	p.waiters = nil

	if p.disposed {
		p.mu.Unlock()
		resolve(waiters, ErrDisposed)
		return ErrDisposed
	}
	if err != nil {
		// Retryable; existing state is untouched.
		p.mu.Unlock()
		resolve(waiters, err)
		return err
	}

	p.appendOlder(page.Messages)
	p.cursor = page.NextCursor
	p.exhausted = page.NextCursor == ""
	p.lastReadAt = time.Now()
	p.mu.Unlock()

	resolve(waiters, nil)
	return nil
}

// ApplyLiveEvent applies one relay event. Never performs I/O and never
// blocks; safe to call inline from the event bus.
func (p *Pager) ApplyLiveEvent(ev model.FeedEvent) {
	if ev.Room != p.room {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.disposed {
		return
	}

	// Duplicate or stale delivery (overlapping reconnects).
	if ev.Seq <= p.lastSeq {
		return
	}

	// A gap means at least one event was lost and the relay cannot replay
	// it. No partial reconciliation: mark the window possibly incomplete
	// and re-synchronize from a fresh newest-page read.
	if p.lastSeq != 0 && ev.Seq != p.lastSeq+1 {
		if ev.Seq > p.gapSeq {
			p.gapSeq = ev.Seq
		}
		p.stale = true
		if !p.refreshing {
			p.refreshing = true
			p.wg.Add(1)
			go p.refresh()
		}
		return
	}

	p.apply(ev)
	p.lastSeq = ev.Seq
}

// apply mutates FeedState for one in-sequence event. Caller holds mu.
func (p *Pager) apply(ev model.FeedEvent) {
	switch ev.Kind {
	case model.EventCreated:
		msg, err := ev.DecodePayload()
		if err != nil {
			p.logger.Warn("skipping undecodable created event", "seq", ev.Seq, "error", err)
			return
		}
		if _, ok := p.byID[msg.ID]; ok {
			// Already present (optimistic local echo): upsert in place.
			p.byID[msg.ID] = msg
			return
		}
		p.order = append([]uuid.UUID{msg.ID}, p.order...)
		p.byID[msg.ID] = msg

	case model.EventUpdated:
		msg, err := ev.DecodePayload()
		if err != nil {
			p.logger.Warn("skipping undecodable updated event", "seq", ev.Seq, "error", err)
			return
		}
		// Replace in place, preserving position. An update for a message
		// outside the loaded window is ignored.
		if _, ok := p.byID[msg.ID]; ok {
			p.byID[msg.ID] = msg
		}

	case model.EventDeleted:
		if _, ok := p.byID[ev.MessageID]; ok {
			delete(p.byID, ev.MessageID)
			for i, id := range p.order {
				if id == ev.MessageID {
					p.order = append(p.order[:i], p.order[i+1:]...)
					break
				}
			}
		}
	}
}

// refresh closes a sequence gap with a fresh newest-page read.
func (p *Pager) refresh() {
	defer p.wg.Done()

	ctx, cancel := context.WithTimeout(p.ctx, p.fetchTimeout)
	defer cancel()

	page, err := p.fetcher.GetPage(ctx, p.room, history.GetPageOptions{Limit: p.pageSize})

	p.mu.Lock()
	defer p.mu.Unlock()

	p.refreshing = false
	if p.disposed {
		return
	}
	if err != nil {
		// Stale stays set; the next out-of-sequence event reschedules.
		p.logger.Warn("gap refresh failed", "error", err)
		return
	}

	p.mergeNewest(page.Messages)
	if p.gapSeq > p.lastSeq {
		p.lastSeq = p.gapSeq
	}
	p.stale = false
	p.lastReadAt = time.Now()
}

// Tick drives degraded-mode polling. While the connection manager reports
// disconnected and the last successful read is older than one poll interval,
// it performs one newest-page re-fetch as a substitute for live events. It
// never runs while connected and never overlaps itself.
func (p *Pager) Tick() {
	if p.conn.Connected() {
		return
	}

	p.mu.Lock()
	if p.disposed || p.polling || time.Since(p.lastReadAt) < p.pollInterval {
		p.mu.Unlock()
		return
	}
	p.polling = true
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(p.ctx, p.fetchTimeout)
	page, err := p.fetcher.GetPage(ctx, p.room, history.GetPageOptions{Limit: p.pageSize})
	cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.polling = false
	if p.disposed {
		return
	}
	if err != nil {
		p.logger.Warn("poll fetch failed", "error", err)
		return
	}

	p.mergeNewest(page.Messages)
	p.lastReadAt = time.Now()
}

// appendOlder merges a historical page below the loaded window. Messages
// already applied live keep their position and payload. Caller holds mu.
func (p *Pager) appendOlder(msgs []model.Message) {
	for _, msg := range msgs {
		if _, ok := p.byID[msg.ID]; ok {
			continue
		}
		p.order = append(p.order, msg.ID)
		p.byID[msg.ID] = msg
	}
}

// mergeNewest merges a newest-page read into the head of the window: unknown
// messages are inserted at the head in page order, known ones take the
// fetched payload in place. Caller holds mu.
func (p *Pager) mergeNewest(msgs []model.Message) {
	// Oldest first so repeated head inserts leave the newest on top.
	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]
		if _, ok := p.byID[msg.ID]; ok {
			p.byID[msg.ID] = msg
			continue
		}
		p.order = append([]uuid.UUID{msg.ID}, p.order...)
		p.byID[msg.ID] = msg
	}
}

// Dispose tears the pager down: the poll timer stops, any in-flight fetch is
// canceled and its result discarded, and the bus subscription is removed.
func (p *Pager) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	resolve(waiters, ErrDisposed)
	p.cancel()

	// Outside mu: the bus holds its own lock during dispatch.
	if p.onDispose != nil {
		p.onDispose()
	}

	p.wg.Wait()
}

func resolve(waiters []chan error, err error) {
	for _, ch := range waiters {
		ch <- err
	}
}
