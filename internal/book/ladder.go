// Package book implements the per-pair orderbook engine, the broadcast
// fan-out, and the time-travel snapshot store.
package book

import (
	"sort"

	"github.com/shopspring/decimal"

	"depthcast/internal/domain"
)

// ladder is one side of a book: price levels kept sorted ascending by price.
// Bids are read back-to-front for best-first order, asks front-to-back.
type ladder struct {
	levels []domain.PriceLevel
}

// search returns the index of price in the ladder and whether it is present.
// When absent, the index is the insertion point that keeps the slice sorted.
func (l *ladder) search(price decimal.Decimal) (int, bool) {
	i := sort.Search(len(l.levels), func(i int) bool {
		return l.levels[i].Price.Cmp(price) >= 0
	})
	if i < len(l.levels) && l.levels[i].Price.Equal(price) {
		return i, true
	}
	return i, false
}

// set replaces the volume at price, inserting the level if absent.
func (l *ladder) set(price, volume decimal.Decimal) {
	i, ok := l.search(price)
	if ok {
		l.levels[i].Volume = volume
		return
	}
	l.levels = append(l.levels, domain.PriceLevel{})
	copy(l.levels[i+1:], l.levels[i:])
	l.levels[i] = domain.PriceLevel{Price: price, Volume: volume}
}

// remove deletes the level at price. Removing an absent price is a no-op and
// reports false.
func (l *ladder) remove(price decimal.Decimal) bool {
	i, ok := l.search(price)
	if !ok {
		return false
	}
	l.levels = append(l.levels[:i], l.levels[i+1:]...)
	return true
}

func (l *ladder) len() int { return len(l.levels) }

func (l *ladder) clear() { l.levels = l.levels[:0] }

// lowest returns the minimum-price level.
func (l *ladder) lowest() (domain.PriceLevel, bool) {
	if len(l.levels) == 0 {
		return domain.PriceLevel{}, false
	}
	return l.levels[0], true
}

// highest returns the maximum-price level.
func (l *ladder) highest() (domain.PriceLevel, bool) {
	if len(l.levels) == 0 {
		return domain.PriceLevel{}, false
	}
	return l.levels[len(l.levels)-1], true
}

// ascending returns a copy of the levels sorted ascending by price.
func (l *ladder) ascending() []domain.PriceLevel {
	out := make([]domain.PriceLevel, len(l.levels))
	copy(out, l.levels)
	return out
}

// descending returns a copy of the levels sorted descending by price.
func (l *ladder) descending() []domain.PriceLevel {
	out := make([]domain.PriceLevel, len(l.levels))
	for i, lv := range l.levels {
		out[len(l.levels)-1-i] = lv
	}
	return out
}

// trimLowest drops the lowest-price levels until at most max remain. Used to
// bound bid ladders at the configured depth (bids keep the highest prices).
func (l *ladder) trimLowest(max int) {
	if max > 0 && len(l.levels) > max {
		l.levels = append(l.levels[:0], l.levels[len(l.levels)-max:]...)
	}
}

// trimHighest drops the highest-price levels until at most max remain. Used
// to bound ask ladders at the configured depth (asks keep the lowest prices).
func (l *ladder) trimHighest(max int) {
	if max > 0 && len(l.levels) > max {
		l.levels = l.levels[:max]
	}
}
