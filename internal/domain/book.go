// Package domain defines the core market-data types shared by the feed
// consumer, the orderbook engines, and the client-facing API.
package domain

import (
	"github.com/shopspring/decimal"
)

func init() {
	// Exchange prices are exact decimals and the client protocol transmits
	// them as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// PriceLevel is a single price+volume entry in an orderbook. In a delta a
// zero volume marks the level for removal.
type PriceLevel struct {
	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`
}

// UpdateKind distinguishes full-book snapshots from incremental deltas.
type UpdateKind string

const (
	KindSnapshot UpdateKind = "snapshot"
	KindDelta    UpdateKind = "delta"
)

// BookUpdate is the event an orderbook engine emits after applying a feed
// event. A Snapshot carries the full book; a Delta carries only the levels
// that changed.
type BookUpdate struct {
	Ticker    string
	Kind      UpdateKind
	Bids      []PriceLevel // Snapshot: sorted descending by price; Delta: as received
	Asks      []PriceLevel // Snapshot: sorted ascending by price; Delta: as received
	LastPrice *decimal.Decimal
	Sequence  uint64
	Timestamp int64 // unix seconds
}

// Snapshot is an immutable full-book state at a point in time. Bids are
// sorted descending, asks ascending.
type Snapshot struct {
	Ticker    string           `json:"ticker"`
	Timestamp int64            `json:"timestamp"`
	LastPrice *decimal.Decimal `json:"lastPrice,omitempty"`
	Bids      []PriceLevel     `json:"bids"`
	Asks      []PriceLevel     `json:"asks"`
	Sequence  uint64           `json:"-"`
}

// OhlcBar is a one-minute candle as delivered by the upstream feed. Higher
// timeframes are aggregated client-side.
type OhlcBar struct {
	Ticker      string          `json:"-"`
	IntervalSec int             `json:"-"`
	Time        int64           `json:"time"`
	EndTime     int64           `json:"etime"`
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
	Vwap        decimal.Decimal `json:"vwap"`
	Volume      decimal.Decimal `json:"volume"`
	Count       uint32          `json:"count"`
}
