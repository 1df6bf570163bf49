// Package app provides top-level lifecycle management for the depthcast
// backend: it wires the feed, the per-pair engines and snapshot timers, and
// the API server, and supervises them until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"depthcast/internal/book"
	"depthcast/internal/config"
	"depthcast/internal/domain"
)

// App is the root application object.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all components, starts the long-lived tasks, and blocks until
// the context is cancelled. Shutdown is a single cancellation: every task
// drains within the configured grace period.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting",
		slog.Any("pairs", a.cfg.Pairs),
		slog.String("listen_addr", a.cfg.ListenAddr),
		slog.String("upstream", a.cfg.UpstreamURL),
	)

	deps := Wire(ctx, a.cfg, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return deps.Feed.Run(gctx) })

	for ticker, engine := range deps.Engines {
		engine, sink := engine, deps.Sinks[ticker]
		g.Go(func() error { return a.superviseEngine(gctx, engine, sink) })
	}
	for _, rec := range deps.Recorders {
		rec := rec
		g.Go(func() error { return rec.Run(gctx) })
	}

	g.Go(deps.Server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.DrainGrace())
		defer cancel()
		return deps.Server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info("stopped")
	return nil
}

// superviseEngine restarts one pair's engine after a panic. The restarted
// engine discards its book and resubscribes; its broadcasters stay open, so
// connected sessions resume with the next fresh snapshot. Other pairs are
// unaffected.
func (a *App) superviseEngine(ctx context.Context, engine *book.Engine, sink chan domain.FeedEvent) error {
	for {
		err := runEngineOnce(ctx, engine, sink)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}
		a.logger.Error("engine crashed, restarting pair",
			slog.String("ticker", engine.Ticker()),
			slog.String("error", err.Error()),
		)
		engine.Reset()
	}
}

func runEngineOnce(ctx context.Context, engine *book.Engine, sink chan domain.FeedEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("app: engine panic: %v", r)
		}
	}()
	return engine.Run(ctx, sink)
}
