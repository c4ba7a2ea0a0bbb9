/*

One quoter per upstream vendor. Every vendor wraps its ticker in a different
JSON shape, so each quoter owns its URL format and its gjson extraction path
and hands back nothing but a validated positive price.

A quoter failure of any kind (network, non-2xx, malformed body, missing field,
non-positive value) is an error for the caller's fallback chain, never a
process-level problem.

*/

package oracle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/nbcex/reward-operator/internal/types"
)

const maxResponseBytes = 1 << 20

var (
	ErrBadStatus      = errors.New("provider returned non-success status")
	ErrMalformedQuote = errors.New("provider response is missing the expected price field")
	ErrBadPrice       = errors.New("provider returned a non-positive or non-finite price")
)

// quoter fetches one symbol's USD price from one vendor. The symbol passed in
// is already the vendor-specific alias.
type quoter interface {
	Name() types.Provider
	Quote(ctx context.Context, httpClient *http.Client, symbol string) (float64, error)
}

// fetchBody performs the GET and returns the raw body for a 2xx response.
func fetchBody(ctx context.Context, httpClient *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, errors.New("empty response body")
	}
	return body, nil
}

// extractPrice pulls a price out of a vendor body at the given gjson path and
// validates it. Vendors quote prices as JSON strings as often as numbers, so
// the value goes through an exact decimal parse rather than a float cast.
func extractPrice(body []byte, path string) (float64, error) {
	result := gjson.GetBytes(body, path)
	if !result.Exists() {
		return 0, fmt.Errorf("%w: %q", ErrMalformedQuote, path)
	}

	dec, err := decimal.NewFromString(result.String())
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrMalformedQuote, result.String(), err)
	}

	price, _ := dec.Float64()
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return 0, fmt.Errorf("%w: %f", ErrBadPrice, price)
	}
	return price, nil
}

// nbcexQuoter hits the NBCEX market ticker: {"code":0,"data":{"buy":"..."}}.
type nbcexQuoter struct {
	baseURL string
}

func (q nbcexQuoter) Name() types.Provider { return types.ProviderNBCEX }

func (q nbcexQuoter) Quote(ctx context.Context, httpClient *http.Client, symbol string) (float64, error) {
	url := fmt.Sprintf("%s/api/v1/market/ticker?symbol=%s", q.baseURL, symbol)
	body, err := fetchBody(ctx, httpClient, url)
	if err != nil {
		return 0, err
	}
	if code := gjson.GetBytes(body, "code"); code.Exists() && code.Int() != 0 {
		return 0, fmt.Errorf("%w: code %d", ErrBadStatus, code.Int())
	}
	return extractPrice(body, "data.buy")
}

// gateQuoter hits the Gate.io v4 spot ticker list: [{"last":"..."}].
type gateQuoter struct {
	baseURL string
}

func (q gateQuoter) Name() types.Provider { return types.ProviderGate }

func (q gateQuoter) Quote(ctx context.Context, httpClient *http.Client, symbol string) (float64, error) {
	url := fmt.Sprintf("%s/api/v4/spot/tickers?currency_pair=%s", q.baseURL, symbol)
	body, err := fetchBody(ctx, httpClient, url)
	if err != nil {
		return 0, err
	}
	return extractPrice(body, "0.last")
}

// okxQuoter hits the OKX v5 market ticker: {"code":"0","data":[{"last":"..."}]}.
type okxQuoter struct {
	baseURL string
}

func (q okxQuoter) Name() types.Provider { return types.ProviderOKX }

func (q okxQuoter) Quote(ctx context.Context, httpClient *http.Client, symbol string) (float64, error) {
	url := fmt.Sprintf("%s/api/v5/market/ticker?instId=%s", q.baseURL, symbol)
	body, err := fetchBody(ctx, httpClient, url)
	if err != nil {
		return 0, err
	}
	if code := gjson.GetBytes(body, "code"); code.Exists() && code.String() != "0" {
		return 0, fmt.Errorf("%w: code %s", ErrBadStatus, code.String())
	}
	return extractPrice(body, "data.0.last")
}

// binanceQuoter hits the Binance spot price ticker: {"price":"..."}.
type binanceQuoter struct {
	baseURL string
}

func (q binanceQuoter) Name() types.Provider { return types.ProviderBinance }

func (q binanceQuoter) Quote(ctx context.Context, httpClient *http.Client, symbol string) (float64, error) {
	url := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", q.baseURL, symbol)
	body, err := fetchBody(ctx, httpClient, url)
	if err != nil {
		return 0, err
	}
	return extractPrice(body, "price")
}

// coingeckoQuoter hits the simple-price aggregator: {"<id>":{"usd":123.4}}.
// The symbol here is the CoinGecko asset id, not an exchange pair.
type coingeckoQuoter struct {
	baseURL string
}

func (q coingeckoQuoter) Name() types.Provider { return types.ProviderCoinGecko }

func (q coingeckoQuoter) Quote(ctx context.Context, httpClient *http.Client, symbol string) (float64, error) {
	url := fmt.Sprintf("%s/api/v3/simple/price?ids=%s&vs_currencies=usd", q.baseURL, symbol)
	body, err := fetchBody(ctx, httpClient, url)
	if err != nil {
		return 0, err
	}
	return extractPrice(body, symbol+".usd")
}
