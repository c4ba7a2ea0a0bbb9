/*

Multi-provider USD price client with ordered fallback.

Providers are tried in a fixed priority order (NBCEX first, aggregator last);
the first validated quote wins. The hard-coded static table is a last resort
that only answers when explicitly enabled, and quotes from it carry the
fallback source marker so callers can refuse to trade on stale data.

*/

package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nbcex/reward-operator/internal/config"
	"github.com/nbcex/reward-operator/internal/logger"
	"github.com/nbcex/reward-operator/internal/types"
)

const (
	requestTimeout = 15 * time.Second

	// StablecoinSymbol short-circuits to a constant $1 quote with no
	// network call.
	StablecoinSymbol = "USDT"
)

// ErrPriceUnavailable is returned once every provider has failed for a symbol
// and the static fallback is not allowed (or has no entry).
var ErrPriceUnavailable = errors.New("price unavailable from all providers")

// Asset names one symbol to price, with its per-vendor ticker aliases.
type Asset struct {
	Symbol  string
	Aliases map[types.Provider]string
}

// AssetForPool builds the price-fetch descriptor for a configured pool.
func AssetForPool(pool types.PoolConfig) Asset {
	return Asset{Symbol: pool.Symbol, Aliases: pool.ProviderSyms}
}

// alias returns the vendor ticker for a provider, defaulting to the symbol.
func (a Asset) alias(provider types.Provider) string {
	if s, ok := a.Aliases[provider]; ok {
		return s
	}
	return a.Symbol
}

// Client fetches USD prices with ordered provider fallback.
type Client struct {
	httpClient          *http.Client
	providers           []quoter
	allowStaticFallback bool
	fallbackPrices      map[string]float64
	logger              zerolog.Logger
}

// NewClient builds a client with the production provider chain. The static
// fallback table is only consulted when allowStaticFallback is set.
func NewClient(allowStaticFallback bool) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		providers: []quoter{
			nbcexQuoter{baseURL: "https://api.nbcex.com"},
			gateQuoter{baseURL: "https://api.gateio.ws"},
			okxQuoter{baseURL: "https://www.okx.com"},
			binanceQuoter{baseURL: "https://api.binance.com"},
			coingeckoQuoter{baseURL: "https://api.coingecko.com"},
		},
		allowStaticFallback: allowStaticFallback,
		fallbackPrices:      config.StaticFallbackPrices,
		logger:              logger.GetForComponent("price_oracle"),
	}
}

// GetPrice fetches one symbol's USD price, walking the provider chain in
// priority order. A provider failure of any kind falls through to the next
// provider; only total exhaustion surfaces an error.
func (c *Client) GetPrice(ctx context.Context, asset Asset) (types.PriceQuote, error) {
	if asset.Symbol == StablecoinSymbol {
		return types.PriceQuote{
			Symbol:    asset.Symbol,
			USDPrice:  1.0,
			Source:    types.ProviderStatic,
			FetchedAt: time.Now(),
		}, nil
	}

	var attemptErrs []error
	for _, q := range c.providers {
		symbol := asset.alias(q.Name())

		price, err := q.Quote(ctx, c.httpClient, symbol)
		if err != nil {
			c.logger.Debug().
				Err(err).
				Str("symbol", asset.Symbol).
				Str("provider", string(q.Name())).
				Str("providerSymbol", symbol).
				Msg("Provider quote failed, falling through")
			attemptErrs = append(attemptErrs, fmt.Errorf("%s: %w", q.Name(), err))
			continue
		}

		c.logger.Info().
			Str("symbol", asset.Symbol).
			Str("provider", string(q.Name())).
			Float64("usdPrice", price).
			Msg("Price fetched")

		return types.PriceQuote{
			Symbol:    asset.Symbol,
			USDPrice:  price,
			Source:    q.Name(),
			FetchedAt: time.Now(),
		}, nil
	}

	if c.allowStaticFallback {
		if price, ok := c.fallbackPrices[asset.Symbol]; ok && price > 0 {
			c.logger.Warn().
				Str("symbol", asset.Symbol).
				Float64("usdPrice", price).
				Msg("DEGRADED: all live providers failed, serving hard-coded fallback price")
			return types.PriceQuote{
				Symbol:    asset.Symbol,
				USDPrice:  price,
				Source:    types.ProviderFallback,
				FetchedAt: time.Now(),
			}, nil
		}
	}

	return types.PriceQuote{}, errors.Join(
		fmt.Errorf("%w: %s", ErrPriceUnavailable, asset.Symbol),
		errors.Join(attemptErrs...),
	)
}

// GetPrices fetches all assets concurrently and returns the quotes that
// succeeded, keyed by symbol. Symbols that could not be priced are simply
// absent; the caller decides whether that skips a pool or aborts the run.
func (c *Client) GetPrices(ctx context.Context, assets []Asset) map[string]types.PriceQuote {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		quotes = make(map[string]types.PriceQuote, len(assets))
	)

	for _, asset := range assets {
		wg.Add(1)
		go func(a Asset) {
			defer wg.Done()
			quote, err := c.GetPrice(ctx, a)
			if err != nil {
				c.logger.Error().
					Err(err).
					Str("symbol", a.Symbol).
					Msg("Symbol could not be priced this cycle")
				return
			}
			mu.Lock()
			quotes[a.Symbol] = quote
			mu.Unlock()
		}(asset)
	}
	wg.Wait()

	return quotes
}
