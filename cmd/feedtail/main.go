// feedtail subscribes to one room and prints the merged feed to the console.
// It exercises the full client stack: connection manager, event bus, history
// client, and feed pager.
//
// Usage: go run ./cmd/feedtail --relay ws://localhost:8090/ws --history http://localhost:8091 --room channel:general
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/studydesk/classfeed/internal/client/bus"
	"github.com/studydesk/classfeed/internal/client/connection"
	"github.com/studydesk/classfeed/internal/client/feed"
	"github.com/studydesk/classfeed/internal/config"
	"github.com/studydesk/classfeed/internal/history"
	"github.com/studydesk/classfeed/internal/model"
)

func main() {
	relayURL := flag.String("relay", "ws://localhost:8090/ws", "relay websocket URL")
	historyURL := flag.String("history", "http://localhost:8091", "history endpoint URL")
	roomArg := flag.String("room", "channel:general", "room key (kind:id)")
	older := flag.Int("older", 0, "number of extra history pages to load")
	verbose := flag.Bool("verbose", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	room, err := model.ParseRoomKey(*roomArg)
	if err != nil {
		logger.Error("bad room key", "error", err)
		os.Exit(1)
	}

	cfg := config.DefaultClient(*relayURL, *historyURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	// Client stack: manager → bus → feed service.
	manager := connection.NewManager(cfg, logger)
	if err := manager.Start(ctx); err != nil {
		logger.Error("failed to start connection manager", "error", err)
		os.Exit(1)
	}

	eventBus := bus.New(logger)
	eventBus.Run(ctx, manager.Events())

	histClient := history.NewClient(cfg.HistoryURL, history.WithLogger(logger))
	service := feed.NewService(cfg, manager, histClient, eventBus, logger)

	pager := service.Subscribe(room)
	defer pager.Dispose()

	// Prime the window with history.
	loadCtx, loadCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := pager.LoadOlder(loadCtx); err != nil {
		logger.Warn("initial history load failed", "error", err)
	}
	for i := 0; i < *older && pager.HasMore(); i++ {
		if err := pager.LoadOlder(loadCtx); err != nil {
			logger.Warn("history load failed", "error", err)
			break
		}
	}
	loadCancel()

	// Watch connectivity in the background.
	go func() {
		for st := range manager.Status() {
			if st.PersistentFailure {
				logger.Warn("relay unreachable, polling for updates", "state", st.State)
				continue
			}
			logger.Info("connection state", "state", st.State)
		}
	}()

	printFeed(pager)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			manager.Stop(stopCtx)
			stopCancel()
			return
		case <-ticker.C:
			printFeed(pager)
		}
	}
}

func printFeed(p *feed.Pager) {
	msgs := p.Messages()
	fmt.Printf("--- %s: %d messages (more: %v, stale: %v)\n", p.Room(), len(msgs), p.HasMore(), p.Stale())
	// Oldest first reads naturally in a terminal.
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		ts := time.UnixMicro(m.CreatedAt).Format(time.TimeOnly)
		if m.Deleted {
			fmt.Printf("[%s] %s: (deleted)\n", ts, m.AuthorID)
			continue
		}
		fmt.Printf("[%s] %s: %s\n", ts, m.AuthorID, m.Content)
	}
}
