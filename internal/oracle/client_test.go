package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nbcex/reward-operator/internal/logger"
	"github.com/nbcex/reward-operator/internal/types"
)

func init() {
	logger.Initialize("error")
}

func testClient(allowFallback bool, providers ...quoter) *Client {
	return &Client{
		httpClient:          &http.Client{Timeout: 5 * time.Second},
		providers:           providers,
		allowStaticFallback: allowFallback,
		fallbackPrices:      map[string]float64{"BTC": 93464.0},
		logger:              logger.GetForComponent("price_oracle_test"),
	}
}

func jsonServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVendorNormalization(t *testing.T) {
	ctx := context.Background()
	httpClient := &http.Client{Timeout: 5 * time.Second}

	t.Run("nbcex", func(t *testing.T) {
		srv := jsonServer(t, 200, `{"code":0,"data":{"buy":"93464.12","sell":"93465.00"}}`)
		price, err := nbcexQuoter{baseURL: srv.URL}.Quote(ctx, httpClient, "BTCUSDT")
		require.NoError(t, err)
		require.Equal(t, 93464.12, price)
	})

	t.Run("gate", func(t *testing.T) {
		srv := jsonServer(t, 200, `[{"currency_pair":"BTC_USDT","last":"93464.5"}]`)
		price, err := gateQuoter{baseURL: srv.URL}.Quote(ctx, httpClient, "BTC_USDT")
		require.NoError(t, err)
		require.Equal(t, 93464.5, price)
	})

	t.Run("okx", func(t *testing.T) {
		srv := jsonServer(t, 200, `{"code":"0","data":[{"instId":"BTC-USDT","last":"93463.9"}]}`)
		price, err := okxQuoter{baseURL: srv.URL}.Quote(ctx, httpClient, "BTC-USDT")
		require.NoError(t, err)
		require.Equal(t, 93463.9, price)
	})

	t.Run("okx error code", func(t *testing.T) {
		srv := jsonServer(t, 200, `{"code":"51001","msg":"Instrument ID does not exist","data":[]}`)
		_, err := okxQuoter{baseURL: srv.URL}.Quote(ctx, httpClient, "NBC-USDT")
		require.ErrorIs(t, err, ErrBadStatus)
	})

	t.Run("binance", func(t *testing.T) {
		srv := jsonServer(t, 200, `{"symbol":"BTCUSDT","price":"93464.00000000"}`)
		price, err := binanceQuoter{baseURL: srv.URL}.Quote(ctx, httpClient, "BTCUSDT")
		require.NoError(t, err)
		require.Equal(t, 93464.0, price)
	})

	t.Run("coingecko", func(t *testing.T) {
		srv := jsonServer(t, 200, `{"bitcoin":{"usd":93464}}`)
		price, err := coingeckoQuoter{baseURL: srv.URL}.Quote(ctx, httpClient, "bitcoin")
		require.NoError(t, err)
		require.Equal(t, 93464.0, price)
	})
}

func TestQuoterRejectsBadPrices(t *testing.T) {
	ctx := context.Background()
	httpClient := &http.Client{Timeout: 5 * time.Second}

	cases := []struct {
		name string
		body string
	}{
		{"zero price", `{"symbol":"X","price":"0"}`},
		{"negative price", `{"symbol":"X","price":"-12.5"}`},
		{"missing field", `{"symbol":"X"}`},
		{"garbage value", `{"symbol":"X","price":"not-a-number"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := jsonServer(t, 200, tc.body)
			_, err := binanceQuoter{baseURL: srv.URL}.Quote(ctx, httpClient, "X")
			require.Error(t, err)
		})
	}

	t.Run("non-2xx", func(t *testing.T) {
		srv := jsonServer(t, 500, `{}`)
		_, err := binanceQuoter{baseURL: srv.URL}.Quote(ctx, httpClient, "X")
		require.ErrorIs(t, err, ErrBadStatus)
	})
}

func TestFallbackChainOrder(t *testing.T) {
	ctx := context.Background()

	// First provider is down, second answers: the second's quote must win
	// and be attributed to it.
	down := jsonServer(t, 503, `{}`)
	up := jsonServer(t, 200, `{"symbol":"BTCUSDT","price":"93000"}`)

	client := testClient(false,
		binanceQuoter{baseURL: down.URL},
		binanceQuoter{baseURL: up.URL},
	)

	quote, err := client.GetPrice(ctx, Asset{Symbol: "BTC"})
	require.NoError(t, err)
	require.Equal(t, 93000.0, quote.USDPrice)
	require.Equal(t, types.ProviderBinance, quote.Source)
	require.True(t, quote.Source.Live())
}

func TestZeroPriceFallsThrough(t *testing.T) {
	ctx := context.Background()

	zero := jsonServer(t, 200, `{"price":"0"}`)
	good := jsonServer(t, 200, `{"price":"42.5"}`)

	client := testClient(false,
		binanceQuoter{baseURL: zero.URL},
		binanceQuoter{baseURL: good.URL},
	)

	quote, err := client.GetPrice(ctx, Asset{Symbol: "BTC"})
	require.NoError(t, err)
	require.Equal(t, 42.5, quote.USDPrice)
}

func TestAllProvidersFail(t *testing.T) {
	ctx := context.Background()
	down := jsonServer(t, 503, `{}`)

	t.Run("without fallback", func(t *testing.T) {
		client := testClient(false, binanceQuoter{baseURL: down.URL})
		_, err := client.GetPrice(ctx, Asset{Symbol: "BTC"})
		require.ErrorIs(t, err, ErrPriceUnavailable)
	})

	t.Run("with static fallback", func(t *testing.T) {
		client := testClient(true, binanceQuoter{baseURL: down.URL})
		quote, err := client.GetPrice(ctx, Asset{Symbol: "BTC"})
		require.NoError(t, err)
		require.Equal(t, 93464.0, quote.USDPrice)
		require.Equal(t, types.ProviderFallback, quote.Source)
		require.False(t, quote.Source.Live())
	})

	t.Run("fallback has no entry", func(t *testing.T) {
		client := testClient(true, binanceQuoter{baseURL: down.URL})
		_, err := client.GetPrice(ctx, Asset{Symbol: "UNLISTED"})
		require.ErrorIs(t, err, ErrPriceUnavailable)
	})
}

func TestStablecoinShortCircuit(t *testing.T) {
	// No providers configured at all: the stablecoin must still quote.
	client := testClient(false)

	quote, err := client.GetPrice(context.Background(), Asset{Symbol: "USDT"})
	require.NoError(t, err)
	require.Equal(t, 1.0, quote.USDPrice)
	require.Equal(t, types.ProviderStatic, quote.Source)
}

func TestGetPricesFanOut(t *testing.T) {
	ctx := context.Background()
	good := jsonServer(t, 200, `{"price":"7.25"}`)
	client := testClient(false, binanceQuoter{baseURL: good.URL})

	quotes := client.GetPrices(ctx, []Asset{
		{Symbol: "BTC"},
		{Symbol: "ETH"},
		{Symbol: "USDT"},
	})

	require.Len(t, quotes, 3)
	require.Equal(t, 7.25, quotes["BTC"].USDPrice)
	require.Equal(t, 7.25, quotes["ETH"].USDPrice)
	require.Equal(t, 1.0, quotes["USDT"].USDPrice)
}

func TestGetPricesOmitsUnpricedSymbols(t *testing.T) {
	ctx := context.Background()
	down := jsonServer(t, 503, `{}`)
	client := testClient(false, binanceQuoter{baseURL: down.URL})

	quotes := client.GetPrices(ctx, []Asset{{Symbol: "BTC"}, {Symbol: "USDT"}})

	require.Len(t, quotes, 1)
	_, ok := quotes["BTC"]
	require.False(t, ok)
}
