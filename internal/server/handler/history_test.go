package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depthcast/internal/book"
	"depthcast/internal/domain"
)

func newTestMux(t *testing.T) (*http.ServeMux, *book.Store) {
	t.Helper()
	store := book.NewStore([]string{"ZEC", "BTC"}, 5*time.Second, time.Hour)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHistoryHandler(store, []string{"ZEC", "BTC"}, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /history/{ticker}", h.GetHistory)
	mux.HandleFunc("GET /snapshot/{ticker}/{ts}", h.GetSnapshot)
	return mux, store
}

func get(mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func seedStore(store *book.Store) {
	last := decimal.RequireFromString("100.5")
	for _, ts := range []int64{1000, 1005, 1010} {
		store.Insert(domain.Snapshot{
			Ticker:    "ZEC",
			Timestamp: ts,
			LastPrice: &last,
			Bids:      []domain.PriceLevel{{Price: decimal.RequireFromString("100"), Volume: decimal.RequireFromString("1")}},
			Asks:      []domain.PriceLevel{{Price: decimal.RequireFromString("101"), Volume: decimal.RequireFromString("1.5")}},
		})
	}
}

func TestGetHistoryRange(t *testing.T) {
	mux, store := newTestMux(t)
	seedStore(store)

	rec := get(mux, "/history/ZEC")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		MinTimestamp int64 `json:"minTimestamp"`
		MaxTimestamp int64 `json:"maxTimestamp"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(1000), body.MinTimestamp)
	assert.Equal(t, int64(1010), body.MaxTimestamp)
}

func TestGetHistoryEmpty(t *testing.T) {
	mux, _ := newTestMux(t)
	rec := get(mux, "/history/BTC")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetHistoryUnknownPair(t *testing.T) {
	mux, store := newTestMux(t)
	seedStore(store)
	rec := get(mux, "/history/DOGE")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSnapshotAtTimestamp(t *testing.T) {
	mux, store := newTestMux(t)
	seedStore(store)

	rec := get(mux, "/snapshot/ZEC/1007")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var snap domain.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "ZEC", snap.Ticker)
	assert.Equal(t, int64(1005), snap.Timestamp, "nearest snapshot at or before ts")
	require.Len(t, snap.Bids, 1)
	assert.True(t, snap.Bids[0].Price.Equal(decimal.RequireFromString("100")))

	// Numbers travel unquoted with full precision.
	assert.Contains(t, rec.Body.String(), `"lastPrice":100.5`)
	assert.Contains(t, rec.Body.String(), `"volume":1.5`)
}

func TestGetSnapshotMalformedTimestamp(t *testing.T) {
	mux, store := newTestMux(t)
	seedStore(store)
	rec := get(mux, "/snapshot/ZEC/yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSnapshotOutsideWindow(t *testing.T) {
	mux, store := newTestMux(t)
	seedStore(store)

	rec := get(mux, "/snapshot/ZEC/999")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(mux, "/snapshot/ZEC/99999")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSnapshotUnknownPair(t *testing.T) {
	mux, store := newTestMux(t)
	seedStore(store)
	rec := get(mux, "/snapshot/DOGE/1000")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
