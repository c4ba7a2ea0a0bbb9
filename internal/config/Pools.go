/*

Static reward-pool table. Pool indices must match the staking contract's pool
array; decimals must match the reward token contracts. Provider aliases cover
the vendors whose ticker format differs from the canonical symbol.

If a pool has no alias entry for a provider, the canonical symbol is used.

*/

package config

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nbcex/reward-operator/internal/types"
)

// BaseAssetSymbol is the currency stake is denominated in. APR and threshold
// calculations are all expressed in it.
const BaseAssetSymbol = "NBC"

// BaseAssetDecimals is the base asset's ERC-20 precision. The reward-rate
// math assumes this cancels against the 18-decimal conversion-rate scale.
const BaseAssetDecimals uint8 = 18

// BaseAssetAliases carries the per-provider ticker aliases for the base
// asset. NBC only trades on a subset of the provider chain; the rest fail
// through naturally.
var BaseAssetAliases = map[types.Provider]string{
	types.ProviderNBCEX:     "NBCUSDT",
	types.ProviderGate:      "NBC_USDT",
	types.ProviderCoinGecko: "nbc-token",
}

// RewardPools is the static per-reward-token descriptor table.
var RewardPools = []types.PoolConfig{
	{
		Symbol:       "BTC",
		PoolIndex:    0,
		TokenAddress: common.HexToAddress("0x7130d2A12B9BCbFAe4f2634d864A1Ee1Ce3Ead9c"),
		Decimals:     8,
		ProviderSyms: map[types.Provider]string{
			types.ProviderNBCEX:     "BTCUSDT",
			types.ProviderGate:      "BTC_USDT",
			types.ProviderOKX:       "BTC-USDT",
			types.ProviderBinance:   "BTCUSDT",
			types.ProviderCoinGecko: "bitcoin",
		},
	},
	{
		Symbol:       "ETH",
		PoolIndex:    1,
		TokenAddress: common.HexToAddress("0x2170Ed0880ac9A755fd29B2688956BD959F933F8"),
		Decimals:     18,
		ProviderSyms: map[types.Provider]string{
			types.ProviderNBCEX:     "ETHUSDT",
			types.ProviderGate:      "ETH_USDT",
			types.ProviderOKX:       "ETH-USDT",
			types.ProviderBinance:   "ETHUSDT",
			types.ProviderCoinGecko: "ethereum",
		},
	},
	{
		Symbol:       "DOGE",
		PoolIndex:    2,
		TokenAddress: common.HexToAddress("0xbA2aE424d960c26247Dd6c32edC70B295c744C43"),
		Decimals:     8,
		ProviderSyms: map[types.Provider]string{
			types.ProviderNBCEX:     "DOGEUSDT",
			types.ProviderGate:      "DOGE_USDT",
			types.ProviderOKX:       "DOGE-USDT",
			types.ProviderBinance:   "DOGEUSDT",
			types.ProviderCoinGecko: "dogecoin",
		},
	},
	{
		Symbol:       "USDT",
		PoolIndex:    3,
		TokenAddress: common.HexToAddress("0x55d398326f99059fF775485246999027B3197955"),
		Decimals:     6,
		ProviderSyms: map[types.Provider]string{
			types.ProviderCoinGecko: "tether",
		},
	},
}

// StaticFallbackPrices is the degraded last-resort price table. Only consulted
// when every live provider failed AND AllowStaticPriceFallback is set. Values
// here go stale; quotes from this table carry ProviderFallback so callers can
// refuse to trade on them.
var StaticFallbackPrices = map[string]float64{
	"BTC":           93464.0,
	"ETH":           3300.0,
	"DOGE":          0.32,
	"USDT":          1.0,
	BaseAssetSymbol: 0.11,
}

// PoolBySymbol looks up a pool config by its canonical symbol.
func PoolBySymbol(symbol string) (types.PoolConfig, error) {
	for _, p := range RewardPools {
		if p.Symbol == symbol {
			return p, nil
		}
	}
	return types.PoolConfig{}, errors.Join(ErrInvalidInput, errors.New("unknown pool symbol: "+symbol))
}
