package types

import "time"

// Provider identifies one upstream price source.
type Provider string

const (
	ProviderNBCEX     Provider = "nbcex"
	ProviderGate      Provider = "gate"
	ProviderOKX       Provider = "okx"
	ProviderBinance   Provider = "binance"
	ProviderCoinGecko Provider = "coingecko"

	// ProviderStatic marks quotes that never touch the network (stablecoins).
	ProviderStatic Provider = "static"
	// ProviderFallback marks quotes served from the hard-coded degraded price
	// table after every live provider failed. Callers deciding whether to
	// trade must check for this source.
	ProviderFallback Provider = "fallback"
)

// Live reports whether the quote came from a live upstream rather than the
// degraded fallback table.
func (p Provider) Live() bool {
	return p != ProviderFallback
}

// PriceQuote is a single USD price observation. Produced fresh per
// reconciliation cycle and never persisted.
//
// Invariant: USDPrice is positive and finite; anything else is a fetch
// failure, not a quote.
type PriceQuote struct {
	Symbol    string    `json:"symbol"`
	USDPrice  float64   `json:"usd_price"`
	Source    Provider  `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
}
