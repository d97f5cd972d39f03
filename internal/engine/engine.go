// Package engine owns capital and the position book. All sizing rules and
// exit rules live here; everything upstream only proposes trades.
//
// The book is guarded by one mutex, and trader I/O never runs under it.
// Throughput is bounded by the position cap anyway, so the simplicity of a
// single lock wins over finer-grained locking. The one concession is the
// reservation set: a token is reserved under the lock before its buy or
// sell leaves for the gateway, so concurrent intents for one token produce
// exactly one position and a closing token cannot be re-entered mid-flight.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"alpha-mirror/internal/domain"
	"alpha-mirror/internal/observability"
	"alpha-mirror/internal/storage"
)

// MinTradeAmount is the dust floor: buys sized below this are declined.
const MinTradeAmount = 0.01

// Decline reasons for buy attempts. All are expected outcomes, not faults.
var (
	ErrDuplicatePosition = errors.New("engine: position already open for token")
	ErrPositionLimit     = errors.New("engine: open position limit reached")
	ErrBelowMinimum      = errors.New("engine: buy size below minimum")
	ErrNoPosition        = errors.New("engine: no open position for token")
)

// Trader executes swaps against the market. The paper trader prices trades
// without touching a gateway; the live trader routes through the aggregator.
type Trader interface {
	// Buy spends amount of capital on token and returns the entry price
	// and, for live trades, the transaction hash.
	Buy(ctx context.Context, token common.Address, amount float64) (price float64, txHash string, err error)

	// Sell liquidates the holding for token and returns the transaction
	// hash for live trades.
	Sell(ctx context.Context, token common.Address) (txHash string, err error)
}

// Config holds the sizing and exit policy.
type Config struct {
	StartingCapital     float64
	MaxPositionFraction float64 // of current free capital, per buy
	MaxOpenPositions    int
	StopLossFraction    float64 // of entry price
	TakeProfitMultiple  float64 // of entry price
	MaxHold             time.Duration
	// MirrorETHPriceUSD converts a whale's ETH notional into capital units
	// when sizing the mirrored buy.
	MirrorETHPriceUSD float64
}

// Engine is the position book and capital ledger.
type Engine struct {
	mu            sync.Mutex
	capital       float64
	positions     map[common.Address]*domain.Position
	reserved      map[common.Address]struct{}
	totalTrades   int
	winningTrades int
	totalPnL      float64

	cfg       Config
	trader    Trader
	journal   storage.TradeJournal // optional
	snapshots storage.SnapshotStore
	prices    PriceSource // optional
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// PriceSource quotes the current token price when a close settles.
type PriceSource interface {
	TokenPriceETH(ctx context.Context, token string) (float64, error)
}

// Options carries optional collaborators.
type Options struct {
	Journal   storage.TradeJournal
	Snapshots storage.SnapshotStore
	// Prices refreshes the mark right before a close settles; without it
	// closes settle at the last marked value.
	Prices  PriceSource
	Metrics *observability.Metrics
	Logger  *zap.Logger
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// New creates an engine with the full starting capital free.
func New(cfg Config, trader Trader, opts *Options) (*Engine, error) {
	if cfg.StartingCapital <= 0 {
		return nil, fmt.Errorf("starting capital must be positive, got %v", cfg.StartingCapital)
	}
	if cfg.MaxPositionFraction <= 0 || cfg.MaxPositionFraction > 1 {
		return nil, fmt.Errorf("position fraction must be in (0, 1], got %v", cfg.MaxPositionFraction)
	}
	if cfg.MaxOpenPositions <= 0 {
		return nil, fmt.Errorf("position limit must be positive, got %d", cfg.MaxOpenPositions)
	}
	if trader == nil {
		return nil, fmt.Errorf("trader is required")
	}

	e := &Engine{
		capital:   cfg.StartingCapital,
		positions: make(map[common.Address]*domain.Position),
		reserved:  make(map[common.Address]struct{}),
		cfg:       cfg,
		trader:    trader,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	if opts != nil {
		e.journal = opts.Journal
		e.snapshots = opts.Snapshots
		e.prices = opts.Prices
		e.metrics = opts.Metrics
		if opts.Logger != nil {
			e.logger = opts.Logger
		}
		if opts.Clock != nil {
			e.now = opts.Clock
		}
	}
	return e, nil
}

// OpenPosition mirrors a validated buy intent. The requested size is the
// whale's ETH notional converted to capital units, then clamped to the
// per-position fraction of free capital. Exactly one of any set of
// concurrent intents for the same token wins; the rest get
// ErrDuplicatePosition.
func (e *Engine) OpenPosition(ctx context.Context, intent *domain.TradeIntent) error {
	token := intent.Token
	requested := intent.AmountETH * e.cfg.MirrorETHPriceUSD

	e.mu.Lock()
	if _, open := e.positions[token]; open {
		e.mu.Unlock()
		e.declined("duplicate")
		return ErrDuplicatePosition
	}
	if _, pending := e.reserved[token]; pending {
		e.mu.Unlock()
		e.declined("duplicate")
		return ErrDuplicatePosition
	}
	if len(e.positions)+len(e.reserved) >= e.cfg.MaxOpenPositions {
		e.mu.Unlock()
		e.declined("position_limit")
		return ErrPositionLimit
	}

	amount := math.Min(requested, e.capital*e.cfg.MaxPositionFraction)
	if amount < MinTradeAmount {
		e.mu.Unlock()
		e.declined("below_minimum")
		return fmt.Errorf("%w: %.4f", ErrBelowMinimum, amount)
	}

	// Hold the slot while the buy is in flight; gateway I/O happens
	// outside the lock.
	e.reserved[token] = struct{}{}
	e.mu.Unlock()

	price, txHash, err := e.trader.Buy(ctx, token, amount)

	e.mu.Lock()
	delete(e.reserved, token)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("execute buy: %w", err)
	}
	if price <= 0 {
		e.mu.Unlock()
		return fmt.Errorf("execute buy: non-positive entry price %v", price)
	}

	now := e.now().UTC()
	position := &domain.Position{
		Token:        token,
		WhaleWallet:  intent.Wallet,
		EntryPrice:   price,
		Amount:       amount,
		EntryTime:    now,
		StopLoss:     price * e.cfg.StopLossFraction,
		TakeProfit:   price * e.cfg.TakeProfitMultiple,
		CurrentValue: amount,
	}
	e.capital -= amount
	e.positions[token] = position
	capital := e.capital
	openCount := len(e.positions)
	e.mu.Unlock()

	e.logger.Info("position opened",
		zap.String("token", token.Hex()),
		zap.String("whale", intent.Wallet.Hex()),
		zap.Float64("amount", amount),
		zap.Float64("entry_price", price),
		zap.Int("open_positions", openCount))

	if e.metrics != nil {
		e.metrics.TradesExecuted.WithLabelValues(string(domain.TradeActionBuy)).Inc()
		e.metrics.PositionsOpen.Set(float64(openCount))
		e.metrics.Capital.Set(capital)
	}
	e.recordTrade(ctx, &domain.TradeRecord{
		Action:      domain.TradeActionBuy,
		Token:       token,
		WhaleWallet: intent.Wallet,
		Amount:      amount,
		Price:       price,
		TxHash:      txHash,
		Timestamp:   now,
	})
	return nil
}

// closeCandidate pairs a position with the exit rule that fired.
type closeCandidate struct {
	token  common.Address
	reason domain.ExitReason
}

// pendingClose is a position pulled off the book while its sell is in
// flight. The token stays in the reservation set until the close settles,
// so it cannot be re-entered and still counts against the position limit.
// Its stake sits in neither capital nor PositionsValue for that window.
type pendingClose struct {
	position *domain.Position
	reason   domain.ExitReason
	txHash   string
}

// UpdatePositions marks every open position to the given prices and closes
// the ones whose exit rule fires. The scan revalues and picks the closes
// under one lock hold, so a close can never act on a stale mark; the sells
// themselves run after the lock is released.
func (e *Engine) UpdatePositions(ctx context.Context, prices map[common.Address]float64) {
	now := e.now().UTC()

	e.mu.Lock()

	var snapshots []*domain.PositionSnapshot
	var closes []closeCandidate
	for token, position := range e.positions {
		price, ok := prices[token]
		if ok {
			position.Revalue(price)
			snapshots = append(snapshots, &domain.PositionSnapshot{
				Token:         token,
				Price:         price,
				CurrentValue:  position.CurrentValue,
				UnrealizedPnL: position.UnrealizedPnL,
				Timestamp:     now,
			})
		}

		switch {
		case ok && price <= position.StopLoss:
			closes = append(closes, closeCandidate{token, domain.ExitReasonStopLoss})
		case ok && price >= position.TakeProfit:
			closes = append(closes, closeCandidate{token, domain.ExitReasonTakeProfit})
		case position.Age(now) >= e.cfg.MaxHold:
			closes = append(closes, closeCandidate{token, domain.ExitReasonMaxHold})
		}
	}

	var pending []*pendingClose
	for _, c := range closes {
		if p := e.beginCloseLocked(c.token, c.reason); p != nil {
			pending = append(pending, p)
		}
	}
	e.mu.Unlock()

	for _, record := range e.settleCloses(ctx, pending, now) {
		e.recordTrade(ctx, record)
	}
	if len(snapshots) > 0 && e.snapshots != nil {
		if err := e.snapshots.InsertBulk(ctx, snapshots); err != nil {
			e.logger.Warn("snapshot write failed", zap.Error(err))
		}
	}
}

// ClosePosition closes one position.
func (e *Engine) ClosePosition(ctx context.Context, token common.Address, reason domain.ExitReason) error {
	now := e.now().UTC()

	e.mu.Lock()
	p := e.beginCloseLocked(token, reason)
	e.mu.Unlock()
	if p == nil {
		return ErrNoPosition
	}

	for _, record := range e.settleCloses(ctx, []*pendingClose{p}, now) {
		e.recordTrade(ctx, record)
	}
	return nil
}

// EmergencyCloseAll liquidates the whole book. Called on every termination
// path; it never fails, only logs.
func (e *Engine) EmergencyCloseAll(ctx context.Context) {
	now := e.now().UTC()

	e.mu.Lock()
	var pending []*pendingClose
	for token := range e.positions {
		if p := e.beginCloseLocked(token, domain.ExitReasonEmergency); p != nil {
			pending = append(pending, p)
		}
	}
	e.mu.Unlock()

	for _, record := range e.settleCloses(ctx, pending, now) {
		e.recordTrade(ctx, record)
	}
	if len(pending) > 0 {
		e.logger.Warn("emergency close completed", zap.Int("positions", len(pending)))
	}
}

// beginCloseLocked pulls the position off the book and reserves its token
// for the duration of the sell. Caller holds the mutex.
func (e *Engine) beginCloseLocked(token common.Address, reason domain.ExitReason) *pendingClose {
	position, open := e.positions[token]
	if !open {
		return nil
	}
	delete(e.positions, token)
	e.reserved[token] = struct{}{}
	return &pendingClose{position: position, reason: reason}
}

// settleCloses executes the sells and books the results. Runs without the
// lock while talking to the gateway; the mark is refreshed right before
// settling when a price source is configured. A failed refresh or sell is
// logged but does not put the position back; the exit decision stands and
// the ledger closes at the last marked value.
func (e *Engine) settleCloses(ctx context.Context, pending []*pendingClose, now time.Time) []*domain.TradeRecord {
	if len(pending) == 0 {
		return nil
	}

	for _, p := range pending {
		token := p.position.Token
		if e.prices != nil {
			price, err := e.prices.TokenPriceETH(ctx, domain.NormalizeAddress(token))
			switch {
			case err != nil:
				e.logger.Warn("close revaluation failed, settling at marked value",
					zap.String("token", token.Hex()), zap.Error(err))
			case price > 0:
				p.position.Revalue(price)
			}
		}

		txHash, err := e.trader.Sell(ctx, token)
		if err != nil {
			e.logger.Error("sell failed, closing at marked value",
				zap.String("token", token.Hex()),
				zap.String("reason", string(p.reason)),
				zap.Error(err))
		}
		p.txHash = txHash
	}

	e.mu.Lock()
	records := make([]*domain.TradeRecord, 0, len(pending))
	for _, p := range pending {
		position := p.position
		delete(e.reserved, position.Token)

		proceeds := position.CurrentValue
		pnl := proceeds - position.Amount
		e.capital += proceeds
		e.totalPnL += pnl
		e.totalTrades++
		if pnl > 0 {
			e.winningTrades++
		}

		exitPrice := 0.0
		if position.Amount > 0 {
			exitPrice = position.EntryPrice * (proceeds / position.Amount)
		}

		e.logger.Info("position closed",
			zap.String("token", position.Token.Hex()),
			zap.String("reason", string(p.reason)),
			zap.Float64("proceeds", proceeds),
			zap.Float64("pnl", pnl),
			zap.Duration("held", now.Sub(position.EntryTime)))

		if e.metrics != nil {
			e.metrics.TradesExecuted.WithLabelValues(string(domain.TradeActionSell)).Inc()
			e.metrics.PositionsClosed.WithLabelValues(string(p.reason)).Inc()
		}

		records = append(records, &domain.TradeRecord{
			Action:      domain.TradeActionSell,
			Token:       position.Token,
			WhaleWallet: position.WhaleWallet,
			Amount:      proceeds,
			Price:       exitPrice,
			PnL:         pnl,
			Reason:      string(p.reason),
			TxHash:      p.txHash,
			Timestamp:   now,
		})
	}
	if e.metrics != nil {
		e.metrics.PositionsOpen.Set(float64(len(e.positions)))
		e.metrics.Capital.Set(e.capital)
		e.metrics.RealizedPnL.Set(e.totalPnL)
	}
	e.mu.Unlock()
	return records
}

// Summary returns a consistent snapshot of the book.
func (e *Engine) Summary() domain.PortfolioSummary {
	e.mu.Lock()
	defer e.mu.Unlock()

	summary := domain.PortfolioSummary{
		Capital:       e.capital,
		OpenPositions: len(e.positions),
		TotalTrades:   e.totalTrades,
		WinningTrades: e.winningTrades,
		TotalPnL:      e.totalPnL,
	}
	for _, position := range e.positions {
		summary.PositionsValue += position.CurrentValue
	}
	if e.totalTrades > 0 {
		summary.WinRate = float64(e.winningTrades) / float64(e.totalTrades)
	}
	return summary
}

// Positions returns copies of all open positions.
func (e *Engine) Positions() []*domain.Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*domain.Position, 0, len(e.positions))
	for _, position := range e.positions {
		cp := *position
		out = append(out, &cp)
	}
	return out
}

// HasPosition reports whether a position is open or pending for token.
func (e *Engine) HasPosition(token common.Address) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, open := e.positions[token]
	if open {
		return true
	}
	_, pending := e.reserved[token]
	return pending
}

func (e *Engine) declined(reason string) {
	if e.metrics != nil {
		e.metrics.TradesDeclined.WithLabelValues(reason).Inc()
	}
}

func (e *Engine) recordTrade(ctx context.Context, record *domain.TradeRecord) {
	if e.journal == nil {
		return
	}
	if err := e.journal.Insert(ctx, record); err != nil {
		e.logger.Warn("journal write failed",
			zap.String("token", record.Token.Hex()),
			zap.String("action", string(record.Action)),
			zap.Error(err))
	}
}
