package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"depthcast/internal/book"
)

// HistoryHandler serves the time-travel endpoints backed by the snapshot
// store.
type HistoryHandler struct {
	store   *book.Store
	tickers map[string]bool
	logger  *slog.Logger
}

// NewHistoryHandler creates a handler for the given store and ticker set.
func NewHistoryHandler(store *book.Store, tickers []string, logger *slog.Logger) *HistoryHandler {
	set := make(map[string]bool, len(tickers))
	for _, t := range tickers {
		set[t] = true
	}
	return &HistoryHandler{
		store:   store,
		tickers: set,
		logger:  logger.With(slog.String("component", "history_api")),
	}
}

// historyRange is the /history response body.
type historyRange struct {
	MinTimestamp int64 `json:"minTimestamp"`
	MaxTimestamp int64 `json:"maxTimestamp"`
}

// GetHistory returns the retention envelope for a ticker.
// GET /history/{ticker}
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")
	if !h.tickers[ticker] {
		writeError(w, http.StatusNotFound, "unknown pair: "+ticker)
		return
	}

	min, max, ok := h.store.Range(ticker)
	if !ok {
		writeError(w, http.StatusNotFound, "no history available for "+ticker)
		return
	}
	writeJSON(w, http.StatusOK, historyRange{MinTimestamp: min, MaxTimestamp: max})
}

// GetSnapshot returns the stored snapshot nearest at-or-before a timestamp.
// GET /snapshot/{ticker}/{ts}
func (h *HistoryHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")
	if !h.tickers[ticker] {
		writeError(w, http.StatusNotFound, "unknown pair: "+ticker)
		return
	}

	ts, err := strconv.ParseInt(r.PathValue("ts"), 10, 64)
	if err != nil {
		h.logger.Debug("rejecting malformed timestamp",
			slog.String("ticker", ticker),
			slog.String("ts", r.PathValue("ts")),
		)
		writeError(w, http.StatusBadRequest, "invalid timestamp, expected unix seconds")
		return
	}

	snap, ok := h.store.At(ticker, ts)
	if !ok {
		writeError(w, http.StatusNotFound, "no snapshot within retention window")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
