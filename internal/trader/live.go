package trader

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"alpha-mirror/internal/domain"
	"alpha-mirror/internal/exchange"
)

// LiveConfig tunes live execution.
type LiveConfig struct {
	// ETHPriceUSD converts the engine's capital-unit sizing into ETH spent
	// on the swap.
	ETHPriceUSD float64
	// SlippagePc is the tolerance passed to the aggregator, e.g. 0.01 for 1%.
	SlippagePc float64
}

// Live executes swaps through the aggregator. Bought token quantities are
// remembered so the whole holding can be liquidated on Sell.
type Live struct {
	gateway Gateway
	cfg     LiveConfig
	logger  *zap.Logger

	mu       sync.Mutex
	holdings map[common.Address]string // token base units, decimal string
}

// NewLive creates a live trader.
func NewLive(gateway Gateway, cfg LiveConfig, logger *zap.Logger) (*Live, error) {
	if cfg.ETHPriceUSD <= 0 {
		return nil, fmt.Errorf("eth price must be positive, got %v", cfg.ETHPriceUSD)
	}
	if cfg.SlippagePc <= 0 {
		cfg.SlippagePc = 0.01
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Live{
		gateway:  gateway,
		cfg:      cfg,
		logger:   logger,
		holdings: make(map[common.Address]string),
	}, nil
}

// Buy swaps amount (capital units) worth of ETH into token. The expected
// token quantity comes from a quote taken just before submission; it is the
// amount Sell will later liquidate. A swap that stays unconfirmed past the
// polling window is treated as filled.
func (l *Live) Buy(ctx context.Context, token common.Address, amount float64) (float64, string, error) {
	addr := domain.NormalizeAddress(token)
	amountWei := ethToWei(amount / l.cfg.ETHPriceUSD)

	quote, err := l.gateway.GetQuote(ctx, exchange.QuoteRequest{
		FromToken: wethAddress,
		ToToken:   addr,
		AmountWei: amountWei,
	})
	if err != nil {
		return 0, "", fmt.Errorf("quote buy %s: %w", token.Hex(), err)
	}

	price, err := l.gateway.TokenPriceETH(ctx, addr)
	if err != nil {
		return 0, "", fmt.Errorf("price token %s: %w", token.Hex(), err)
	}

	result, err := l.gateway.ExecuteSwap(ctx, exchange.SwapRequest{
		FromToken:  wethAddress,
		ToToken:    addr,
		AmountWei:  amountWei,
		SlippagePc: l.cfg.SlippagePc,
	})
	if err != nil {
		return 0, "", fmt.Errorf("execute buy %s: %w", token.Hex(), err)
	}

	if _, err := l.gateway.WaitForConfirmation(ctx, result.TxHash); err != nil {
		return 0, "", fmt.Errorf("buy %s tx %s: %w", token.Hex(), result.TxHash, err)
	}

	l.mu.Lock()
	l.holdings[token] = quote.ToAmountWei
	l.mu.Unlock()

	l.logger.Info("live buy filled",
		zap.String("token", token.Hex()),
		zap.Float64("amount", amount),
		zap.Float64("price_eth", price),
		zap.String("tx", result.TxHash))
	return price, result.TxHash, nil
}

// Sell liquidates the recorded holding for token back into ETH.
func (l *Live) Sell(ctx context.Context, token common.Address) (string, error) {
	l.mu.Lock()
	held, ok := l.holdings[token]
	l.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("no recorded holding for token %s", token.Hex())
	}

	result, err := l.gateway.ExecuteSwap(ctx, exchange.SwapRequest{
		FromToken:  domain.NormalizeAddress(token),
		ToToken:    wethAddress,
		AmountWei:  held,
		SlippagePc: l.cfg.SlippagePc,
	})
	if err != nil {
		return "", fmt.Errorf("execute sell %s: %w", token.Hex(), err)
	}

	if _, err := l.gateway.WaitForConfirmation(ctx, result.TxHash); err != nil {
		return "", fmt.Errorf("sell %s tx %s: %w", token.Hex(), result.TxHash, err)
	}

	l.mu.Lock()
	delete(l.holdings, token)
	l.mu.Unlock()

	l.logger.Info("live sell filled",
		zap.String("token", token.Hex()),
		zap.String("tx", result.TxHash))
	return result.TxHash, nil
}
