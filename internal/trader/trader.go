// Package trader adapts the swap-aggregator gateway to the engine's Trader
// interface. Prices are quoted in ETH per whole token on both the buy and
// the revaluation path, so stop and take-profit ratios are unit-free.
package trader

import (
	"context"
	"math/big"

	"alpha-mirror/internal/exchange"
)

const wethAddress = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"

// Gateway is the slice of the aggregator client the traders need.
type Gateway interface {
	TokenPriceETH(ctx context.Context, token string) (float64, error)
	GetQuote(ctx context.Context, req exchange.QuoteRequest) (*exchange.Quote, error)
	ExecuteSwap(ctx context.Context, req exchange.SwapRequest) (*exchange.SwapResult, error)
	WaitForConfirmation(ctx context.Context, txHash string) (bool, error)
}

// ethToWei converts a whole-ETH amount to a base-unit decimal string.
func ethToWei(eth float64) string {
	wei, _ := new(big.Float).Mul(big.NewFloat(eth), big.NewFloat(1e18)).Int(nil)
	return wei.String()
}
