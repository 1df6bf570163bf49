package book

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depthcast/internal/domain"
)

func newTestStore(interval, retention int) *Store {
	return NewStore([]string{"ZEC", "BTC"},
		time.Duration(interval)*time.Second,
		time.Duration(retention)*time.Second,
	)
}

func snapAt(ticker string, ts int64) domain.Snapshot {
	return domain.Snapshot{
		Ticker:    ticker,
		Timestamp: ts,
		Bids:      []domain.PriceLevel{{Price: dec("100"), Volume: dec("1")}},
		Asks:      []domain.PriceLevel{{Price: dec("101"), Volume: dec("1")}},
	}
}

func TestStoreInsertAndRange(t *testing.T) {
	s := newTestStore(5, 60)

	_, _, ok := s.Range("ZEC")
	assert.False(t, ok)

	s.Insert(snapAt("ZEC", 1000))
	s.Insert(snapAt("ZEC", 1005))
	s.Insert(snapAt("ZEC", 1010))

	min, max, ok := s.Range("ZEC")
	require.True(t, ok)
	assert.Equal(t, int64(1000), min)
	assert.Equal(t, int64(1010), max)

	// Pairs are independent.
	_, _, ok = s.Range("BTC")
	assert.False(t, ok)
}

func TestStoreAlignsTimestamps(t *testing.T) {
	s := newTestStore(5, 60)
	s.Insert(snapAt("ZEC", 1003)) // aligns down to 1000

	got, ok := s.At("ZEC", 1000)
	require.True(t, ok)
	assert.Equal(t, int64(1000), got.Timestamp)
}

func TestStoreAtReturnsFloorEntry(t *testing.T) {
	s := newTestStore(5, 60)
	s.Insert(snapAt("ZEC", 1000))
	s.Insert(snapAt("ZEC", 1005))
	s.Insert(snapAt("ZEC", 1010))

	got, ok := s.At("ZEC", 1007)
	require.True(t, ok)
	assert.Equal(t, int64(1005), got.Timestamp)

	got, ok = s.At("ZEC", 1005)
	require.True(t, ok)
	assert.Equal(t, int64(1005), got.Timestamp)
}

func TestStoreAtOutsideEnvelope(t *testing.T) {
	s := newTestStore(5, 60)
	s.Insert(snapAt("ZEC", 1000))
	s.Insert(snapAt("ZEC", 1010))

	_, ok := s.At("ZEC", 999)
	assert.False(t, ok, "before min must be absent")

	// One interval past the newest entry is still served...
	_, ok = s.At("ZEC", 1015)
	assert.True(t, ok)

	// ...but anything later is not.
	_, ok = s.At("ZEC", 1016)
	assert.False(t, ok)
}

func TestStoreUnknownTicker(t *testing.T) {
	s := newTestStore(5, 60)
	s.Insert(snapAt("DOGE", 1000)) // silently ignored

	_, _, ok := s.Range("DOGE")
	assert.False(t, ok)
	_, ok = s.At("DOGE", 1000)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len("DOGE"))
}

func TestStoreSameTickReplaces(t *testing.T) {
	s := newTestStore(5, 60)
	first := snapAt("ZEC", 1000)
	second := snapAt("ZEC", 1002) // same aligned slot
	second.Bids = []domain.PriceLevel{{Price: dec("200"), Volume: dec("2")}}

	s.Insert(first)
	s.Insert(second)

	assert.Equal(t, 1, s.Len("ZEC"))
	got, ok := s.At("ZEC", 1000)
	require.True(t, ok)
	assert.Equal(t, "200", got.Bids[0].Price.String())
}

func TestStoreRetentionBound(t *testing.T) {
	// snapshot_interval=5, retention_window=60: after 100 seconds of
	// ticks the envelope spans the window and the size stays bounded.
	s := newTestStore(5, 60)
	for ts := int64(0); ts <= 100; ts += 5 {
		s.Insert(snapAt("ZEC", ts))
	}

	min, max, ok := s.Range("ZEC")
	require.True(t, ok)
	assert.Equal(t, int64(60), max-min)
	assert.LessOrEqual(t, s.Len("ZEC"), 13)
}

func TestStoreEvictionBoundary(t *testing.T) {
	s := newTestStore(5, 10)
	s.Insert(snapAt("ZEC", 1000))
	s.Insert(snapAt("ZEC", 1005))
	s.Insert(snapAt("ZEC", 1020)) // evicts 1000 and 1005

	min, max, ok := s.Range("ZEC")
	require.True(t, ok)
	assert.Equal(t, int64(1020), min)
	assert.Equal(t, int64(1020), max)

	// A reader asking at the evicted slot gets nothing, not stale data.
	_, ok = s.At("ZEC", 1004)
	assert.False(t, ok)
}
