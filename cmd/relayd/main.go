// relayd runs the feed relay: the websocket broadcast hub and the paginated
// history endpoint, backed by the PostgreSQL message store.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/studydesk/classfeed/internal/config"
	"github.com/studydesk/classfeed/internal/relay"
	"github.com/studydesk/classfeed/internal/store"
	"github.com/studydesk/classfeed/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/relayd.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting relayd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"ws_addr", cfg.Listen.WSAddr,
		"http_addr", cfg.Listen.HTTPAddr,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to the message store
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	messages := store.New(pool, logger.With("component", "store"))
	logger.Info("database connected")

	// Relay hub + websocket endpoint
	hub := relay.NewHub(logger.With("component", "hub"))

	wsMux := http.NewServeMux()
	wsMux.Handle("/ws", relay.NewHandler(hub, cfg.Relay, logger.With("component", "ws")))

	// History + mutation endpoints share the HTTP listener
	historyMux := http.NewServeMux()
	relay.NewHistoryHandler(messages, cfg.History, logger.With("component", "history")).Register(historyMux)
	relay.NewIngestHandler(messages, hub, logger.With("component", "ingest")).Register(historyMux)

	wsServer := &http.Server{Addr: cfg.Listen.WSAddr, Handler: wsMux}
	historyServer := &http.Server{Addr: cfg.Listen.HTTPAddr, Handler: historyMux}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("websocket listener up", "addr", cfg.Listen.WSAddr)
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("history listener up", "addr", cfg.Listen.HTTPAddr)
		if err := historyServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		wsServer.Shutdown(shutdownCtx)
		historyServer.Shutdown(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("relayd failed", "error", err)
		os.Exit(1)
	}

	logger.Info("relayd stopped")
}
