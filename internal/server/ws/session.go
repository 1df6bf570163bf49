// Package ws implements the /live WebSocket endpoint: per-client sessions
// that stream one pair's orderbook and OHLC updates, snapshot first.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"depthcast/internal/book"
	"depthcast/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds incoming frames; clients send nothing after
	// the upgrade, so anything larger is garbage.
	maxMessageSize = 512

	// outBufferSize is the per-session outbound frame buffer. When it
	// fills, the session's broadcast receivers absorb the backpressure
	// and eventually signal Lagged.
	outBufferSize = 256
)

// Close codes used by the live endpoint.
const (
	closeShutdown        = websocket.CloseGoingAway // 1001: server shutdown
	closeInternal        = 1011                     // initial-snapshot timeout or closed engine stream
	closeNormal          = websocket.CloseNormalClosure
	closeUnsupportedPair = 1008
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The read-only feed is served to any origin.
		return true
	},
}

// Config carries the live-session parameters.
type Config struct {
	InitialSnapshotTimeout time.Duration
}

// Handler upgrades /live requests and runs one session per client.
type Handler struct {
	engines       map[string]*book.Engine
	defaultTicker string
	cfg           Config
	logger        *slog.Logger

	// root is cancelled on server shutdown; sessions then close 1001.
	root context.Context
}

// NewHandler creates the /live handler. defaultTicker is used when the
// query parameter is absent. root is the process lifetime context.
func NewHandler(root context.Context, engines map[string]*book.Engine, defaultTicker string, cfg Config, logger *slog.Logger) *Handler {
	return &Handler{
		engines:       engines,
		defaultTicker: defaultTicker,
		cfg:           cfg,
		logger:        logger.With(slog.String("component", "live")),
		root:          root,
	}
}

// HandleLive validates the pair, upgrades the connection, and streams until
// the client leaves or the server shuts down.
// GET /live?ticker={pair}
func (h *Handler) HandleLive(w http.ResponseWriter, r *http.Request) {
	ticker := r.URL.Query().Get("ticker")
	if ticker == "" {
		ticker = h.defaultTicker
	}
	engine, ok := h.engines[ticker]
	if !ok {
		http.Error(w, "unknown pair: "+ticker, http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	id := uuid.New()
	s := &session{
		id:     id,
		ticker: ticker,
		conn:   conn,
		engine: engine,
		cfg:    h.cfg,
		root:   h.root,
		out:    make(chan []byte, outBufferSize),
		logger: h.logger.With(
			slog.String("session", id.String()),
			slog.String("ticker", ticker),
		),
	}
	s.run()
}

// session is one client connection's lifetime.
type session struct {
	id     uuid.UUID
	ticker string
	conn   *websocket.Conn
	engine *book.Engine
	cfg    Config
	root   context.Context
	out    chan []byte
	logger *slog.Logger

	closeOnce sync.Once
	closeCode int
}

// setClose records the close code sent to the client; the first caller wins.
func (s *session) setClose(code int) {
	s.closeOnce.Do(func() { s.closeCode = code })
}

func (s *session) run() {
	s.logger.Info("client connected")
	defer s.logger.Info("client disconnected")

	ctx, cancel := context.WithCancel(s.root)
	defer cancel()

	bookRx := s.engine.SubscribeBook()
	defer bookRx.Close()
	ohlcRx := s.engine.SubscribeOhlc()
	defer ohlcRx.Close()

	// The first outbound message is always a full snapshot. A not-yet-live
	// engine gets a bounded wait for its next snapshot broadcast.
	if !s.sendInitialSnapshot(ctx, bookRx) {
		s.setClose(closeInternal)
		s.writeClose()
		s.conn.Close()
		return
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.readPump(ctx) })
	g.Go(func() error { return s.forwardBooks(ctx, bookRx) })
	g.Go(func() error { return s.forwardOhlc(ctx, ohlcRx) })
	g.Go(func() error { return s.writePump(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug("session ended", slog.String("error", err.Error()))
	}
	s.conn.Close()
}

// sendInitialSnapshot queues the handshake snapshot. It reports false when
// no snapshot became available within the initial snapshot timeout.
func (s *session) sendInitialSnapshot(ctx context.Context, bookRx *book.Receiver[domain.BookUpdate]) bool {
	if s.engine.State() == book.StateLive {
		s.enqueueFrame(ctx, snapshotFrame(s.engine.CurrentSnapshot()))
		return true
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.InitialSnapshotTimeout)
	defer cancel()
	for {
		update, err := bookRx.Recv(waitCtx)
		if err != nil {
			var lagged *book.LaggedError
			if errors.As(err, &lagged) {
				continue
			}
			s.logger.Warn("no snapshot within join timeout")
			return false
		}
		if update.Kind == domain.KindSnapshot {
			s.enqueueFrame(ctx, updateFrame(update))
			return true
		}
	}
}

// forwardBooks relays BookUpdates. A Lagged signal is recovered by sending
// one fresh snapshot and continuing from the current position.
func (s *session) forwardBooks(ctx context.Context, rx *book.Receiver[domain.BookUpdate]) error {
	for {
		update, err := rx.Recv(ctx)
		if err != nil {
			var lagged *book.LaggedError
			if errors.As(err, &lagged) {
				s.logger.Warn("book stream lagged, resnapshotting",
					slog.Uint64("missed", lagged.Missed),
				)
				if !s.enqueueFrame(ctx, snapshotFrame(s.engine.CurrentSnapshot())) {
					return ctx.Err()
				}
				continue
			}
			if errors.Is(err, domain.ErrClosed) {
				s.setClose(closeInternal)
				return err
			}
			return err
		}
		if !s.enqueueFrame(ctx, updateFrame(update)) {
			return ctx.Err()
		}
	}
}

// forwardOhlc relays candle updates. Missed bars are not recovered; the
// next bar supersedes them.
func (s *session) forwardOhlc(ctx context.Context, rx *book.Receiver[domain.OhlcBar]) error {
	for {
		bar, err := rx.Recv(ctx)
		if err != nil {
			var lagged *book.LaggedError
			if errors.As(err, &lagged) {
				continue
			}
			if errors.Is(err, domain.ErrClosed) {
				s.setClose(closeInternal)
				return err
			}
			return err
		}
		if !s.enqueueFrame(ctx, ohlcFrame(bar)) {
			return ctx.Err()
		}
	}
}

// enqueueFrame marshals and queues one frame. It reports false only when the
// session context ended.
func (s *session) enqueueFrame(ctx context.Context, frame liveFrame) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error("marshal frame", slog.String("error", err.Error()))
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case s.out <- data:
		return true
	}
}

// readPump discards client frames (there is no post-connect protocol) and
// detects the client going away.
func (s *session) readPump(ctx context.Context) error {
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("unexpected close", slog.String("error", err.Error()))
			}
			return domain.ErrWSDisconnect
		}
	}
}

// writePump owns all writes: queued frames, keepalive pings, and the final
// close frame. Closing the connection on exit unblocks readPump.
func (s *session) writePump(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			s.writeClose()
			return ctx.Err()
		case data := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

// writeClose sends the close frame with the recorded code. Server shutdown
// maps to 1001, everything else defaults to a normal closure.
func (s *session) writeClose() {
	code := s.closeCode
	if s.root.Err() != nil {
		code = closeShutdown
	} else if code == 0 {
		code = closeNormal
	}
	msg := websocket.FormatCloseMessage(code, "")
	s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// liveFrame is the envelope for every server→client message.
type liveFrame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// orderbookData is the wire shape of both snapshots and deltas.
type orderbookData struct {
	Timestamp int64               `json:"timestamp"`
	LastPrice *decimal.Decimal    `json:"lastPrice,omitempty"`
	Bids      []domain.PriceLevel `json:"bids"`
	Asks      []domain.PriceLevel `json:"asks"`
}

func updateFrame(u domain.BookUpdate) liveFrame {
	return liveFrame{Type: "orderbook", Data: orderbookData{
		Timestamp: u.Timestamp,
		LastPrice: u.LastPrice,
		Bids:      u.Bids,
		Asks:      u.Asks,
	}}
}

func snapshotFrame(s domain.Snapshot) liveFrame {
	return liveFrame{Type: "orderbook", Data: orderbookData{
		Timestamp: s.Timestamp,
		LastPrice: s.LastPrice,
		Bids:      s.Bids,
		Asks:      s.Asks,
	}}
}

func ohlcFrame(bar domain.OhlcBar) liveFrame {
	return liveFrame{Type: "ohlc", Data: bar}
}
