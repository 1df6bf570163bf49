package book

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"depthcast/internal/domain"
)

// State is the engine lifecycle state.
type State string

const (
	// StateInit is the state before the first snapshot arrives.
	StateInit State = "init"
	// StateLive means the book is consistent and deltas are being applied.
	StateLive State = "live"
	// StateAwaitingSnapshot means the book was discarded after a gap,
	// crossed book, or reset; deltas are dropped until a snapshot arrives.
	StateAwaitingSnapshot State = "awaiting_snapshot"
)

// ResubscribeFunc asks the feed client to resubscribe a ticker after the
// engine detects an ordering violation.
type ResubscribeFunc func(ticker string)

// Engine owns one pair's book. Exactly one goroutine (Run) applies feed
// events; reads are served by copy-out snapshots under a short read lock, so
// the hot path takes no contended locks.
type Engine struct {
	ticker string
	depth  int
	logger *slog.Logger
	resub  ResubscribeFunc

	books *Broadcaster[domain.BookUpdate]
	ohlc  *Broadcaster[domain.OhlcBar]

	mu         sync.RWMutex
	state      State
	bids       ladder
	asks       ladder
	lastPrice  *decimal.Decimal
	sequence   uint64
	lastUpdate time.Time
}

// EngineConfig carries the per-pair engine parameters.
type EngineConfig struct {
	Ticker            string
	Depth             int // max levels per side; 0 keeps all
	BroadcastCapacity int
	Resubscribe       ResubscribeFunc
}

// NewEngine creates an engine for one pair in the Init state.
func NewEngine(cfg EngineConfig, logger *slog.Logger) *Engine {
	return &Engine{
		ticker: cfg.Ticker,
		depth:  cfg.Depth,
		resub:  cfg.Resubscribe,
		logger: logger.With(
			slog.String("component", "engine"),
			slog.String("ticker", cfg.Ticker),
		),
		books: NewBroadcaster[domain.BookUpdate](cfg.BroadcastCapacity),
		ohlc:  NewBroadcaster[domain.OhlcBar](cfg.BroadcastCapacity),
		state: StateInit,
	}
}

// Ticker returns the pair's short symbol.
func (e *Engine) Ticker() string { return e.ticker }

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// SubscribeBook returns a receiver for this pair's BookUpdate stream.
func (e *Engine) SubscribeBook() *Receiver[domain.BookUpdate] { return e.books.Subscribe() }

// SubscribeOhlc returns a receiver for this pair's OHLC stream.
func (e *Engine) SubscribeOhlc() *Receiver[domain.OhlcBar] { return e.ohlc.Subscribe() }

// Run consumes feed events until the context is cancelled. It is the single
// writer to the book. The broadcasters stay open unless the whole process is
// shutting down, so sessions survive a supervisor restart of the engine and
// simply receive the next fresh snapshot.
func (e *Engine) Run(ctx context.Context, events <-chan domain.FeedEvent) error {
	defer func() {
		if ctx.Err() != nil {
			e.books.Close()
			e.ohlc.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			e.apply(ev)
		}
	}
}

// apply routes one feed event. It is synchronous and runs to completion.
func (e *Engine) apply(ev domain.FeedEvent) {
	switch ev := ev.(type) {
	case domain.BookSnapshotEvent:
		e.applySnapshot(ev)
	case domain.BookDeltaEvent:
		e.applyDelta(ev)
	case domain.OhlcEvent:
		bar := ev.Bar
		bar.Ticker = e.ticker
		e.ohlc.Publish(bar)
	case domain.ResetEvent:
		e.logger.Info("reset requested, awaiting snapshot")
		e.reset()
	default:
		e.logger.Debug("ignoring feed event", slog.String("type", fmt.Sprintf("%T", ev)))
	}
}

// applySnapshot replaces the book wholesale and moves the engine to Live.
func (e *Engine) applySnapshot(ev domain.BookSnapshotEvent) {
	e.mu.Lock()
	e.bids.clear()
	e.asks.clear()
	for _, lv := range ev.Bids {
		if lv.Volume.IsPositive() {
			e.bids.set(lv.Price, lv.Volume)
		}
	}
	for _, lv := range ev.Asks {
		if lv.Volume.IsPositive() {
			e.asks.set(lv.Price, lv.Volume)
		}
	}
	e.bids.trimLowest(e.depth)
	e.asks.trimHighest(e.depth)
	if ev.LastPrice != nil {
		p := *ev.LastPrice
		e.lastPrice = &p
	}
	e.sequence = ev.Sequence
	e.lastUpdate = time.Now()

	if e.crossedLocked() {
		e.mu.Unlock()
		e.logger.Error("crossed book in snapshot, resubscribing",
			slog.Uint64("sequence", ev.Sequence),
		)
		e.reset()
		e.requestResubscribe()
		return
	}

	e.state = StateLive
	update := domain.BookUpdate{
		Ticker:    e.ticker,
		Kind:      domain.KindSnapshot,
		Bids:      e.bids.descending(),
		Asks:      e.asks.ascending(),
		LastPrice: e.lastPriceLocked(),
		Sequence:  e.sequence,
		Timestamp: e.lastUpdate.Unix(),
	}
	e.mu.Unlock()

	e.logger.Info("snapshot applied",
		slog.Int("bids", len(update.Bids)),
		slog.Int("asks", len(update.Asks)),
		slog.Uint64("sequence", update.Sequence),
	)
	e.books.Publish(update)
}

// applyDelta applies an incremental update. The delta must carry the next
// contiguous sequence number; anything else discards the book and forces a
// resubscribe.
func (e *Engine) applyDelta(ev domain.BookDeltaEvent) {
	e.mu.Lock()
	if e.state != StateLive {
		e.mu.Unlock()
		e.logger.Debug("dropping delta outside live state",
			slog.String("state", string(e.state)),
			slog.Uint64("sequence", ev.Sequence),
		)
		return
	}

	if ev.Sequence != e.sequence+1 {
		expected := e.sequence + 1
		e.resetLocked()
		e.mu.Unlock()
		e.logger.Warn("sequence gap, resubscribing",
			slog.Uint64("expected", expected),
			slog.Uint64("got", ev.Sequence),
		)
		e.requestResubscribe()
		return
	}

	for _, lv := range ev.Bids {
		if lv.Volume.IsZero() {
			e.bids.remove(lv.Price)
		} else {
			e.bids.set(lv.Price, lv.Volume)
		}
	}
	for _, lv := range ev.Asks {
		if lv.Volume.IsZero() {
			e.asks.remove(lv.Price)
		} else {
			e.asks.set(lv.Price, lv.Volume)
		}
	}
	e.bids.trimLowest(e.depth)
	e.asks.trimHighest(e.depth)

	if e.crossedLocked() {
		e.resetLocked()
		e.mu.Unlock()
		e.logger.Error("crossed book after delta, resubscribing",
			slog.Uint64("sequence", ev.Sequence),
		)
		e.requestResubscribe()
		return
	}

	if ev.LastPrice != nil {
		p := *ev.LastPrice
		e.lastPrice = &p
	}
	e.sequence = ev.Sequence
	e.lastUpdate = time.Now()

	update := domain.BookUpdate{
		Ticker:    e.ticker,
		Kind:      domain.KindDelta,
		Bids:      ev.Bids,
		Asks:      ev.Asks,
		LastPrice: e.lastPriceLocked(),
		Sequence:  e.sequence,
		Timestamp: e.lastUpdate.Unix(),
	}
	e.mu.Unlock()

	e.books.Publish(update)
}

// Reset discards the book out-of-band and requests a fresh subscription.
// The supervisor uses it when restarting the engine after a panic, since the
// book may have been left half-applied.
func (e *Engine) Reset() {
	e.reset()
	e.requestResubscribe()
}

// reset discards the book and waits for a fresh snapshot. The last trade
// price survives a reset; it is display state, not book state.
func (e *Engine) reset() {
	e.mu.Lock()
	e.resetLocked()
	e.mu.Unlock()
}

func (e *Engine) resetLocked() {
	e.bids.clear()
	e.asks.clear()
	e.sequence = 0
	e.state = StateAwaitingSnapshot
}

func (e *Engine) requestResubscribe() {
	if e.resub != nil {
		e.resub(e.ticker)
	}
}

// crossedLocked reports best_bid >= best_ask. Caller holds e.mu.
func (e *Engine) crossedLocked() bool {
	bb, okb := e.bids.highest()
	ba, oka := e.asks.lowest()
	return okb && oka && bb.Price.Cmp(ba.Price) >= 0
}

// lastPriceLocked returns a copy of the last trade price. Caller holds e.mu.
func (e *Engine) lastPriceLocked() *decimal.Decimal {
	if e.lastPrice == nil {
		return nil
	}
	p := *e.lastPrice
	return &p
}

// CurrentSnapshot returns a consistent copy of the book: bids descending,
// asks ascending. The timestamp is the capture wall-clock second.
func (e *Engine) CurrentSnapshot() domain.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return domain.Snapshot{
		Ticker:    e.ticker,
		Timestamp: time.Now().Unix(),
		LastPrice: e.lastPriceLocked(),
		Bids:      e.bids.descending(),
		Asks:      e.asks.ascending(),
		Sequence:  e.sequence,
	}
}
