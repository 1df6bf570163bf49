package app

import (
	"context"
	"log/slog"

	"depthcast/internal/book"
	"depthcast/internal/config"
	"depthcast/internal/domain"
	"depthcast/internal/feed"
	"depthcast/internal/server"
	"depthcast/internal/server/handler"
	"depthcast/internal/server/ws"
)

// Deps holds every long-lived component the supervisor runs.
type Deps struct {
	Feed      *feed.Client
	Engines   map[string]*book.Engine
	Sinks     map[string]chan domain.FeedEvent
	Recorders []*book.Recorder
	Store     *book.Store
	Server    *server.Server
}

// sinkBuffer decouples the feed reader from each engine briefly; ordering per
// pair is preserved because each pair has exactly one sink and one engine.
const sinkBuffer = 256

// Wire builds the full component graph: one engine, sink, and snapshot
// recorder per pair; one feed client; the snapshot store; the API server.
// root is the process lifetime context handed to live sessions.
func Wire(root context.Context, cfg *config.Config, logger *slog.Logger) *Deps {
	store := book.NewStore(cfg.Pairs, cfg.SnapshotInterval(), cfg.RetentionWindow())

	engines := make(map[string]*book.Engine, len(cfg.Pairs))
	sinks := make(map[string]chan domain.FeedEvent, len(cfg.Pairs))
	recorders := make([]*book.Recorder, 0, len(cfg.Pairs))

	// The feed client is created after the engines, so engines reach it
	// through this indirection when requesting a resubscribe.
	var feedClient *feed.Client
	resub := func(ticker string) {
		if feedClient != nil {
			feedClient.RequestResubscribe(ticker)
		}
	}

	for _, ticker := range cfg.Pairs {
		engine := book.NewEngine(book.EngineConfig{
			Ticker:            ticker,
			Depth:             cfg.BookDepth,
			BroadcastCapacity: cfg.BroadcastCapacity,
			Resubscribe:       resub,
		}, logger)
		engines[ticker] = engine
		sinks[ticker] = make(chan domain.FeedEvent, sinkBuffer)
		recorders = append(recorders, book.NewRecorder(engine, store, cfg.SnapshotInterval(), logger))
	}

	feedSinks := make(map[string]chan<- domain.FeedEvent, len(sinks))
	for t, ch := range sinks {
		feedSinks[t] = ch
	}
	feedClient = feed.New(feed.Config{
		URL:              cfg.UpstreamURL,
		Tickers:          cfg.Pairs,
		Depth:            cfg.BookDepth,
		HeartbeatTimeout: cfg.HeartbeatTimeout(),
		SubscribeTimeout: cfg.SubscribeTimeout(),
	}, feedSinks, logger)

	live := ws.NewHandler(root, engines, cfg.Pairs[0], ws.Config{
		InitialSnapshotTimeout: cfg.InitialSnapshotTimeout(),
	}, logger)

	srv := server.NewServer(server.Config{
		ListenAddr:     cfg.ListenAddr,
		RequestTimeout: cfg.RequestTimeout(),
	}, server.Handlers{
		Health:  handler.NewHealthHandler(engines),
		History: handler.NewHistoryHandler(store, cfg.Pairs, logger),
	}, live, logger)

	return &Deps{
		Feed:      feedClient,
		Engines:   engines,
		Sinks:     sinks,
		Recorders: recorders,
		Store:     store,
		Server:    srv,
	}
}
