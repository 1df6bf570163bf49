package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotJSONNumbersUnquoted(t *testing.T) {
	last := decimal.RequireFromString("100.5")
	snap := Snapshot{
		Ticker:    "ZEC",
		Timestamp: 1700000000,
		LastPrice: &last,
		Bids: []PriceLevel{
			{Price: decimal.RequireFromString("100"), Volume: decimal.RequireFromString("1.0")},
		},
		Asks: []PriceLevel{
			{Price: decimal.RequireFromString("101.25"), Volume: decimal.RequireFromString("0.5")},
		},
	}

	data, err := json.Marshal(snap)
	require.NoError(t, err)

	// Prices and volumes travel as JSON numbers with full precision.
	assert.Contains(t, string(data), `"lastPrice":100.5`)
	assert.Contains(t, string(data), `"price":101.25`)
	assert.NotContains(t, string(data), `"100.5"`)
}

func TestSnapshotJSONRoundTrip(t *testing.T) {
	last := decimal.RequireFromString("42000.000000001")
	snap := Snapshot{
		Ticker:    "BTC",
		Timestamp: 1700000042,
		LastPrice: &last,
		Bids: []PriceLevel{
			{Price: decimal.RequireFromString("41999.99999999"), Volume: decimal.RequireFromString("0.00000001")},
			{Price: decimal.RequireFromString("41990"), Volume: decimal.RequireFromString("2.5")},
		},
		Asks: []PriceLevel{
			{Price: decimal.RequireFromString("42000.00000001"), Volume: decimal.RequireFromString("3.1")},
		},
	}

	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var got Snapshot
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, snap.Ticker, got.Ticker)
	assert.Equal(t, snap.Timestamp, got.Timestamp)
	require.NotNil(t, got.LastPrice)
	assert.True(t, got.LastPrice.Equal(*snap.LastPrice))
	require.Len(t, got.Bids, len(snap.Bids))
	for i := range snap.Bids {
		assert.True(t, got.Bids[i].Price.Equal(snap.Bids[i].Price))
		assert.True(t, got.Bids[i].Volume.Equal(snap.Bids[i].Volume))
	}
	require.Len(t, got.Asks, len(snap.Asks))
	for i := range snap.Asks {
		assert.True(t, got.Asks[i].Price.Equal(snap.Asks[i].Price))
		assert.True(t, got.Asks[i].Volume.Equal(snap.Asks[i].Volume))
	}
}

func TestSnapshotOmitsAbsentLastPrice(t *testing.T) {
	snap := Snapshot{Ticker: "ZEC", Timestamp: 1}
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "lastPrice")
}

func TestOhlcBarWireShape(t *testing.T) {
	bar := OhlcBar{
		Ticker:      "ZEC",
		IntervalSec: 60,
		Time:        1542057314,
		EndTime:     1542057360,
		Open:        decimal.RequireFromString("3586.7"),
		High:        decimal.RequireFromString("3586.7"),
		Low:         decimal.RequireFromString("3586.6"),
		Close:       decimal.RequireFromString("3586.68894"),
		Vwap:        decimal.RequireFromString("3586.68833"),
		Volume:      decimal.RequireFromString("5"),
		Count:       2,
	}

	data, err := json.Marshal(bar)
	require.NoError(t, err)

	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &m))
	for _, key := range []string{"time", "etime", "open", "high", "low", "close", "vwap", "volume", "count"} {
		assert.Contains(t, m, key)
	}
	// Internal routing fields never reach the wire.
	assert.NotContains(t, m, "Ticker")
	assert.NotContains(t, m, "IntervalSec")
}

func TestExchangePair(t *testing.T) {
	assert.Equal(t, "ZEC/USD", ExchangePair("ZEC"))
	assert.Equal(t, "XMR/USD", ExchangePair("XMR"))
	assert.Equal(t, "DOGE/USD", ExchangePair("DOGE"))
}
