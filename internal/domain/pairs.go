package domain

import "fmt"

// exchangePairs maps short ticker symbols to full upstream pair names.
var exchangePairs = map[string]string{
	"ZEC": "ZEC/USD",
	"BTC": "BTC/USD",
	"ETH": "ETH/USD",
	"XMR": "XMR/USD",
}

// ExchangePair returns the upstream pair name for a short ticker symbol,
// falling back to "{TICKER}/USD" for tickers outside the built-in set.
func ExchangePair(ticker string) string {
	if pair, ok := exchangePairs[ticker]; ok {
		return pair
	}
	return fmt.Sprintf("%s/USD", ticker)
}
