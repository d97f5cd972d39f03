package trader

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"alpha-mirror/internal/domain"
)

// Paper prices trades against the live aggregator but never submits them.
// Entry and exit happen at the quoted price with no slippage and no gas.
type Paper struct {
	gateway Gateway
	logger  *zap.Logger
}

// NewPaper creates a paper trader.
func NewPaper(gateway Gateway, logger *zap.Logger) *Paper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Paper{gateway: gateway, logger: logger}
}

// Buy returns the current market price as the fill. The tx hash is empty:
// nothing was submitted.
func (p *Paper) Buy(ctx context.Context, token common.Address, amount float64) (float64, string, error) {
	price, err := p.gateway.TokenPriceETH(ctx, domain.NormalizeAddress(token))
	if err != nil {
		return 0, "", fmt.Errorf("price token %s: %w", token.Hex(), err)
	}
	if price <= 0 {
		return 0, "", fmt.Errorf("no market price for token %s", token.Hex())
	}
	p.logger.Info("paper buy",
		zap.String("token", token.Hex()),
		zap.Float64("amount", amount),
		zap.Float64("price_eth", price))
	return price, "", nil
}

// Sell is a ledger-only exit; the engine books proceeds at the marked value.
func (p *Paper) Sell(_ context.Context, token common.Address) (string, error) {
	p.logger.Info("paper sell", zap.String("token", token.Hex()))
	return "", nil
}
