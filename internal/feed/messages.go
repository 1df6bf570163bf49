// Package feed implements the upstream exchange WebSocket consumer: it
// subscribes to the book and ohlc channels for the configured pairs, parses
// frames into typed feed events, and survives disconnects.
package feed

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"depthcast/internal/domain"
)

// The upstream speaks two frame shapes: JSON event objects keyed by "event"
// (subscriptionStatus, heartbeat, systemStatus, error) and JSON array data
// frames of the form [channelID, payload, channelName, pair]. Prices and
// volumes arrive as decimal strings.

// subscriptionDetails names a channel in subscribe requests and acks.
type subscriptionDetails struct {
	Name     string `json:"name"`
	Depth    int    `json:"depth,omitempty"`
	Interval int    `json:"interval,omitempty"`
}

// subscribeRequest is the client→upstream subscription command.
type subscribeRequest struct {
	Event        string              `json:"event"`
	Pair         []string            `json:"pair"`
	Subscription subscriptionDetails `json:"subscription"`
}

// eventMessage is the envelope for object-shaped upstream frames.
type eventMessage struct {
	Event        string               `json:"event"`
	Status       string               `json:"status"`
	Pair         string               `json:"pair"`
	ChannelID    *int64               `json:"channelID"`
	Subscription *subscriptionDetails `json:"subscription"`
	ErrorMessage string               `json:"errorMessage"`
}

const (
	eventHeartbeat          = "heartbeat"
	eventSystemStatus       = "systemStatus"
	eventSubscriptionStatus = "subscriptionStatus"

	statusSubscribed   = "subscribed"
	statusUnsubscribed = "unsubscribed"
	statusError        = "error"

	channelBook = "book"
	channelOhlc = "ohlc"
)

// bookPayload is the data object on the book channel. Snapshots use the
// bs/as keys, deltas b/a. Deltas carry the next contiguous sequence number
// and, when a trade moved the price, the last trade price.
type bookPayload struct {
	SnapshotBids [][]string `json:"bs"`
	SnapshotAsks [][]string `json:"as"`
	Bids         [][]string `json:"b"`
	Asks         [][]string `json:"a"`
	Sequence     uint64     `json:"sequence"`
	LastPrice    string     `json:"lastPrice"`
	Checksum     string     `json:"c"`
}

func (p *bookPayload) isSnapshot() bool {
	return len(p.SnapshotBids) > 0 || len(p.SnapshotAsks) > 0
}

// dataFrame is a decoded array frame.
type dataFrame struct {
	ChannelID   int64
	Payload     json.RawMessage
	ChannelName string
	Pair        string
}

// parseDataFrame decodes [channelID, payload, channelName, pair]. It reports
// ok=false for frames that are not array-shaped (those are event objects).
func parseDataFrame(raw []byte) (dataFrame, bool, error) {
	if len(raw) == 0 || raw[0] != '[' {
		return dataFrame{}, false, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return dataFrame{}, false, fmt.Errorf("feed: malformed array frame: %w", err)
	}
	if len(elems) < 4 {
		return dataFrame{}, false, fmt.Errorf("feed: array frame has %d elements, want >= 4", len(elems))
	}
	var f dataFrame
	if err := json.Unmarshal(elems[0], &f.ChannelID); err != nil {
		return dataFrame{}, false, fmt.Errorf("feed: frame channel id: %w", err)
	}
	f.Payload = elems[1]
	if err := json.Unmarshal(elems[len(elems)-2], &f.ChannelName); err != nil {
		return dataFrame{}, false, fmt.Errorf("feed: frame channel name: %w", err)
	}
	if err := json.Unmarshal(elems[len(elems)-1], &f.Pair); err != nil {
		return dataFrame{}, false, fmt.Errorf("feed: frame pair: %w", err)
	}
	return f, true, nil
}

// parseLevels converts upstream [price, volume, timestamp(, flag)] entries.
func parseLevels(raw [][]string) ([]domain.PriceLevel, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	levels := make([]domain.PriceLevel, 0, len(raw))
	for _, entry := range raw {
		if len(entry) < 2 {
			return nil, fmt.Errorf("feed: price level has %d elements, want >= 2", len(entry))
		}
		price, err := decimal.NewFromString(entry[0])
		if err != nil {
			return nil, fmt.Errorf("feed: level price %q: %w", entry[0], err)
		}
		volume, err := decimal.NewFromString(entry[1])
		if err != nil {
			return nil, fmt.Errorf("feed: level volume %q: %w", entry[1], err)
		}
		levels = append(levels, domain.PriceLevel{Price: price, Volume: volume})
	}
	return levels, nil
}

// parseBookEvent turns a book-channel payload into a snapshot or delta event.
func parseBookEvent(ticker string, payload json.RawMessage) (domain.FeedEvent, error) {
	var p bookPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("feed: book payload: %w", err)
	}

	var lastPrice *decimal.Decimal
	if p.LastPrice != "" {
		lp, err := decimal.NewFromString(p.LastPrice)
		if err != nil {
			return nil, fmt.Errorf("feed: last price %q: %w", p.LastPrice, err)
		}
		lastPrice = &lp
	}

	if p.isSnapshot() {
		bids, err := parseLevels(p.SnapshotBids)
		if err != nil {
			return nil, err
		}
		asks, err := parseLevels(p.SnapshotAsks)
		if err != nil {
			return nil, err
		}
		return domain.BookSnapshotEvent{
			Ticker:    ticker,
			Sequence:  p.Sequence,
			Bids:      bids,
			Asks:      asks,
			LastPrice: lastPrice,
		}, nil
	}

	bids, err := parseLevels(p.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := parseLevels(p.Asks)
	if err != nil {
		return nil, err
	}
	return domain.BookDeltaEvent{
		Ticker:    ticker,
		Sequence:  p.Sequence,
		Bids:      bids,
		Asks:      asks,
		LastPrice: lastPrice,
	}, nil
}

// parseOhlcEvent turns an ohlc-channel payload into a candle event. The
// payload is [time, etime, open, high, low, close, vwap, volume, count]
// with string-encoded decimals and a numeric trade count.
func parseOhlcEvent(ticker string, intervalSec int, payload json.RawMessage) (domain.OhlcEvent, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(payload, &elems); err != nil {
		return domain.OhlcEvent{}, fmt.Errorf("feed: ohlc payload: %w", err)
	}
	if len(elems) < 9 {
		return domain.OhlcEvent{}, fmt.Errorf("feed: ohlc payload has %d elements, want >= 9", len(elems))
	}

	times := make([]int64, 2)
	for i := 0; i < 2; i++ {
		d, err := ohlcDecimal(elems[i])
		if err != nil {
			return domain.OhlcEvent{}, fmt.Errorf("feed: ohlc time: %w", err)
		}
		times[i] = d.IntPart()
	}

	fields := make([]decimal.Decimal, 6)
	for i := 0; i < 6; i++ {
		d, err := ohlcDecimal(elems[2+i])
		if err != nil {
			return domain.OhlcEvent{}, fmt.Errorf("feed: ohlc field %d: %w", 2+i, err)
		}
		fields[i] = d
	}

	var count uint32
	if err := json.Unmarshal(elems[8], &count); err != nil {
		return domain.OhlcEvent{}, fmt.Errorf("feed: ohlc count: %w", err)
	}

	return domain.OhlcEvent{Bar: domain.OhlcBar{
		Ticker:      ticker,
		IntervalSec: intervalSec,
		Time:        times[0],
		EndTime:     times[1],
		Open:        fields[0],
		High:        fields[1],
		Low:         fields[2],
		Close:       fields[3],
		Vwap:        fields[4],
		Volume:      fields[5],
		Count:       count,
	}}, nil
}

// ohlcDecimal accepts both string-encoded and bare JSON numbers.
func ohlcDecimal(raw json.RawMessage) (decimal.Decimal, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return decimal.NewFromString(s)
	}
	var d decimal.Decimal
	if err := json.Unmarshal(raw, &d); err != nil {
		return decimal.Decimal{}, err
	}
	return d, nil
}
