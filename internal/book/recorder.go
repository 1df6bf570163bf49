package book

import (
	"context"
	"log/slog"
	"time"
)

// Recorder captures one pair's book state into the snapshot store on a fixed
// cadence. Ticks while the engine is not Live are skipped, so the store only
// ever holds consistent books.
type Recorder struct {
	engine   *Engine
	store    *Store
	interval time.Duration
	logger   *slog.Logger
}

// NewRecorder creates a capture timer for one engine.
func NewRecorder(engine *Engine, store *Store, interval time.Duration, logger *slog.Logger) *Recorder {
	return &Recorder{
		engine:   engine,
		store:    store,
		interval: interval,
		logger: logger.With(
			slog.String("component", "recorder"),
			slog.String("ticker", engine.Ticker()),
		),
	}
}

// Run ticks until the context is cancelled.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if r.engine.State() != StateLive {
				r.logger.Debug("skipping capture, engine not live",
					slog.String("state", string(r.engine.State())),
				)
				continue
			}
			snap := r.engine.CurrentSnapshot()
			r.store.Insert(snap)
		}
	}
}
