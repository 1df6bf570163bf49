package domain

import "github.com/shopspring/decimal"

// FeedEvent is the tagged union emitted by the feed client. Engines consume
// BookSnapshotEvent, BookDeltaEvent, OhlcEvent, and ResetEvent; the remaining
// variants are handled inside the feed client itself.
type FeedEvent interface {
	feedEvent()
}

// BookSnapshotEvent carries a full book received from upstream.
type BookSnapshotEvent struct {
	Ticker    string
	Sequence  uint64
	Bids      []PriceLevel
	Asks      []PriceLevel
	LastPrice *decimal.Decimal
}

// BookDeltaEvent carries an incremental book change. Levels with zero volume
// are removals.
type BookDeltaEvent struct {
	Ticker    string
	Sequence  uint64
	Bids      []PriceLevel
	Asks      []PriceLevel
	LastPrice *decimal.Decimal
}

// OhlcEvent carries a one-minute candle update.
type OhlcEvent struct {
	Bar OhlcBar
}

// ResetEvent tells an engine to discard its book and wait for a fresh
// snapshot. The feed client emits one per pair after every (re)connect.
type ResetEvent struct {
	Ticker string
}

// HeartbeatEvent marks upstream liveness. Consumed by the feed client.
type HeartbeatEvent struct{}

// SubscriptionAckEvent confirms a (pair, channel) subscription.
type SubscriptionAckEvent struct {
	Pair    string
	Channel string
}

// FeedErrorEvent carries an upstream-reported error.
type FeedErrorEvent struct {
	Message string
}

func (BookSnapshotEvent) feedEvent()    {}
func (BookDeltaEvent) feedEvent()       {}
func (OhlcEvent) feedEvent()            {}
func (ResetEvent) feedEvent()           {}
func (HeartbeatEvent) feedEvent()       {}
func (SubscriptionAckEvent) feedEvent() {}
func (FeedErrorEvent) feedEvent()       {}
