package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"depthcast/internal/domain"
)

const (
	// handshakeTimeout bounds the upstream dial.
	handshakeTimeout = 15 * time.Second

	// writeWait is the time allowed to write a message to the upstream.
	writeWait = 10 * time.Second

	// initialBackoff and maxBackoff bound the reconnect delay. The delay
	// doubles on each failure and resets once every subscription is acked.
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second

	// More than maxParseErrors within parseErrorWindow escalates to a
	// reconnect.
	maxParseErrors   = 10
	parseErrorWindow = time.Minute

	// ohlcInterval is the candle interval requested from upstream, in the
	// upstream's minutes unit.
	ohlcInterval = 1
)

// Config carries the feed client parameters.
type Config struct {
	URL              string
	Tickers          []string
	Depth            int
	HeartbeatTimeout time.Duration
	SubscribeTimeout time.Duration
}

// Client maintains a single upstream WebSocket, subscribes to the book and
// ohlc channels for every configured pair, and emits typed feed events into
// one sink per pair. On any connection loss it reconnects with exponential
// backoff and emits a Reset per pair so engines discard stale state.
type Client struct {
	cfg          Config
	pairToTicker map[string]string // "ZEC/USD" -> "ZEC"
	sinks        map[string]chan<- domain.FeedEvent
	resub        chan string
	logger       *slog.Logger

	// writeMu serializes writes on the current connection.
	writeMu sync.Mutex
}

// New creates a feed client. sinks is keyed by short ticker symbol and must
// cover every configured ticker.
func New(cfg Config, sinks map[string]chan<- domain.FeedEvent, logger *slog.Logger) *Client {
	pairToTicker := make(map[string]string, len(cfg.Tickers))
	for _, t := range cfg.Tickers {
		pairToTicker[domain.ExchangePair(t)] = t
	}
	return &Client{
		cfg:          cfg,
		pairToTicker: pairToTicker,
		sinks:        sinks,
		resub:        make(chan string, len(cfg.Tickers)),
		logger:       logger.With(slog.String("component", "feed")),
	}
}

// RequestResubscribe asks the client to resubscribe one pair's book channel.
// Engines call this out-of-band when they detect an ordering violation. Safe
// to call from any goroutine. Requests are queued without deduplication; when
// the queue (one slot per configured pair) is full, the request is dropped.
func (c *Client) RequestResubscribe(ticker string) {
	select {
	case c.resub <- ticker:
	default:
	}
}

// Run connects and consumes the upstream feed until the context is
// cancelled. It never returns on upstream failure; it backs off and retries.
func (c *Client) Run(ctx context.Context) error {
	delay := initialBackoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		subscribed, err := c.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if subscribed {
			delay = initialBackoff
		}
		c.logger.Warn("upstream disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("backoff", delay),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}
}

// runConnection performs one dial-subscribe-read cycle. It reports whether
// every subscription was acked, so the caller can reset its backoff.
func (c *Client) runConnection(ctx context.Context) (subscribed bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return false, fmt.Errorf("feed: connect %s: %w", c.cfg.URL, err)
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	// Engines discard state and wait for the fresh snapshot this
	// connection will deliver.
	for _, ticker := range c.cfg.Tickers {
		if err := c.emit(ctx, ticker, domain.ResetEvent{Ticker: ticker}); err != nil {
			return false, err
		}
	}

	pairs := make([]string, 0, len(c.cfg.Tickers))
	for _, t := range c.cfg.Tickers {
		pairs = append(pairs, domain.ExchangePair(t))
	}
	if err := c.writeJSON(conn, subscribeRequest{
		Event:        "subscribe",
		Pair:         pairs,
		Subscription: subscriptionDetails{Name: channelBook, Depth: c.cfg.Depth},
	}); err != nil {
		return false, fmt.Errorf("feed: subscribe book: %w", err)
	}
	if err := c.writeJSON(conn, subscribeRequest{
		Event:        "subscribe",
		Pair:         pairs,
		Subscription: subscriptionDetails{Name: channelOhlc, Interval: ohlcInterval},
	}); err != nil {
		return false, fmt.Errorf("feed: subscribe ohlc: %w", err)
	}

	// Pending acks, keyed pair+channel. All must arrive within the
	// subscribe timeout or the connection is abandoned.
	pending := make(map[string]bool, 2*len(pairs))
	for _, p := range pairs {
		pending[ackKey(p, channelBook)] = true
		pending[ackKey(p, channelOhlc)] = true
	}
	ackDeadline := time.Now().Add(c.cfg.SubscribeTimeout)

	// Out-of-band resubscribe requests are serviced while this
	// connection lives.
	go c.serveResubscribes(connCtx, conn)

	var parseErrs int
	windowStart := time.Now()

	for {
		deadline := time.Now().Add(c.cfg.HeartbeatTimeout)
		if len(pending) > 0 && ackDeadline.Before(deadline) {
			deadline = ackDeadline
		}
		conn.SetReadDeadline(deadline)

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if len(pending) > 0 && isTimeout(err) {
				return subscribed, fmt.Errorf("feed: %w: %d pending after %s",
					domain.ErrSubscribeTimeout, len(pending), c.cfg.SubscribeTimeout)
			}
			return subscribed, fmt.Errorf("feed: read: %w", err)
		}

		ev, parseErr := c.handleFrame(raw, pending)
		if parseErr != nil {
			if errors.Is(parseErr, errUpstream) {
				return subscribed, parseErr
			}
			if time.Since(windowStart) > parseErrorWindow {
				windowStart = time.Now()
				parseErrs = 0
			}
			parseErrs++
			c.logger.Warn("skipping unparseable frame",
				slog.String("error", parseErr.Error()),
				slog.Int("recent_errors", parseErrs),
			)
			if parseErrs > maxParseErrors {
				return subscribed, fmt.Errorf("feed: %d parse errors within %s, reconnecting",
					parseErrs, parseErrorWindow)
			}
			continue
		}
		if !subscribed && len(pending) == 0 {
			subscribed = true
			c.logger.Info("all subscriptions acked",
				slog.Int("pairs", len(pairs)),
			)
		}
		if ev == nil {
			continue
		}
		if err := c.emit(ctx, ev.ticker, ev.event); err != nil {
			return subscribed, err
		}
	}
}

// errUpstream marks upstream-reported failures that must abandon the
// connection rather than be skipped like a malformed frame.
var errUpstream = errors.New("upstream error")

// routedEvent pairs a parsed event with its destination ticker.
type routedEvent struct {
	ticker string
	event  domain.FeedEvent
}

// handleFrame parses one upstream frame. It returns a routedEvent for data
// frames and nil for frames that are consumed silently (heartbeats, acks,
// status, and any other event, including "error" events). Rejected
// subscriptions come back wrapped in errUpstream.
func (c *Client) handleFrame(raw []byte, pending map[string]bool) (*routedEvent, error) {
	frame, isData, err := parseDataFrame(raw)
	if err != nil {
		return nil, err
	}
	if isData {
		ticker, ok := c.pairToTicker[frame.Pair]
		if !ok {
			// Stale frame from an unsubscribed pair; not an error.
			return nil, nil
		}
		switch {
		case strings.HasPrefix(frame.ChannelName, channelBook):
			ev, err := parseBookEvent(ticker, frame.Payload)
			if err != nil {
				return nil, err
			}
			return &routedEvent{ticker: ticker, event: ev}, nil
		case strings.HasPrefix(frame.ChannelName, channelOhlc):
			ev, err := parseOhlcEvent(ticker, ohlcInterval*60, frame.Payload)
			if err != nil {
				return nil, err
			}
			return &routedEvent{ticker: ticker, event: ev}, nil
		default:
			return nil, nil
		}
	}

	var msg eventMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("feed: event frame: %w", err)
	}
	switch msg.Event {
	case eventHeartbeat, eventSystemStatus, "pong", "":
		return nil, nil
	case eventSubscriptionStatus:
		return c.handleSubscriptionStatus(msg, pending)
	default:
		c.logger.Debug("ignoring upstream event", slog.String("event", msg.Event))
		return nil, nil
	}
}

func (c *Client) handleSubscriptionStatus(msg eventMessage, pending map[string]bool) (*routedEvent, error) {
	name := ""
	if msg.Subscription != nil {
		name = msg.Subscription.Name
	}
	switch msg.Status {
	case statusSubscribed:
		delete(pending, ackKey(msg.Pair, name))
		c.logger.Debug("subscription acked",
			slog.String("pair", msg.Pair),
			slog.String("channel", name),
		)
		return nil, nil
	case statusUnsubscribed:
		return nil, nil
	case statusError:
		reason := msg.ErrorMessage
		if reason == "" {
			reason = "subscription rejected"
		}
		return nil, fmt.Errorf("feed: %w: %s", errUpstream, reason)
	default:
		return nil, nil
	}
}

// serveResubscribes re-issues the book subscription for single pairs on
// request. The fresh subscription makes upstream resend a full snapshot.
func (c *Client) serveResubscribes(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case ticker := <-c.resub:
			pair := domain.ExchangePair(ticker)
			c.logger.Info("resubscribing pair", slog.String("pair", pair))
			if err := c.writeJSON(conn, subscribeRequest{
				Event:        "unsubscribe",
				Pair:         []string{pair},
				Subscription: subscriptionDetails{Name: channelBook, Depth: c.cfg.Depth},
			}); err != nil {
				c.logger.Warn("resubscribe write failed", slog.String("error", err.Error()))
				return
			}
			if err := c.writeJSON(conn, subscribeRequest{
				Event:        "subscribe",
				Pair:         []string{pair},
				Subscription: subscriptionDetails{Name: channelBook, Depth: c.cfg.Depth},
			}); err != nil {
				c.logger.Warn("resubscribe write failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

// emit delivers an event to one pair's sink, preserving per-pair ordering.
func (c *Client) emit(ctx context.Context, ticker string, ev domain.FeedEvent) error {
	sink, ok := c.sinks[ticker]
	if !ok {
		return fmt.Errorf("feed: no sink for ticker %s", ticker)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case sink <- ev:
		return nil
	}
}

func (c *Client) writeJSON(conn *websocket.Conn, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func ackKey(pair, channel string) string { return pair + "|" + channel }

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
