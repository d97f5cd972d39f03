// Package orchestrator wires the pipeline together: ingestion feeds a
// bounded intent queue, a fixed worker pool validates and mirrors buys, and
// a ticker marks open positions to market. It owns supervision: a fatal
// ingestion error ends the run, and every termination path liquidates the
// book before Run returns.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"alpha-mirror/internal/domain"
	"alpha-mirror/internal/engine"
	"alpha-mirror/internal/validation"
)

// IntentSource produces decoded trade intents. Intents must be closed when
// Run returns so the workers can drain and exit.
type IntentSource interface {
	Run(ctx context.Context) error
	Intents() <-chan *domain.TradeIntent
}

// TokenValidator gates candidate tokens before capital touches them.
type TokenValidator interface {
	Validate(ctx context.Context, token common.Address) (validation.Result, error)
}

// PositionBook is the slice of the execution engine the pipeline drives.
type PositionBook interface {
	OpenPosition(ctx context.Context, intent *domain.TradeIntent) error
	UpdatePositions(ctx context.Context, prices map[common.Address]float64)
	EmergencyCloseAll(ctx context.Context)
	Positions() []*domain.Position
	Summary() domain.PortfolioSummary
}

// PriceSource quotes current token prices for revaluation.
type PriceSource interface {
	TokenPriceETH(ctx context.Context, token string) (float64, error)
}

// Options for creating an Orchestrator.
type Options struct {
	Source    IntentSource
	Validator TokenValidator
	Book      PositionBook
	Prices    PriceSource

	// Workers sizes the validate-and-buy pool. Default 4.
	Workers int
	// RevalueInterval is the mark-to-market cadence. Default 30s.
	RevalueInterval time.Duration
	// ShutdownGrace bounds the emergency liquidation on the way out.
	// Default 1m.
	ShutdownGrace time.Duration

	Logger *zap.Logger
}

func (o *Options) applyDefaults() {
	if o.Workers == 0 {
		o.Workers = 4
	}
	if o.RevalueInterval == 0 {
		o.RevalueInterval = 30 * time.Second
	}
	if o.ShutdownGrace == 0 {
		o.ShutdownGrace = time.Minute
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Orchestrator runs the live mirror pipeline.
type Orchestrator struct {
	opts Options
}

// New creates an Orchestrator. Source, Validator, Book and Prices are
// required.
func New(opts Options) (*Orchestrator, error) {
	if opts.Source == nil || opts.Validator == nil || opts.Book == nil || opts.Prices == nil {
		return nil, errors.New("orchestrator: source, validator, book and prices are required")
	}
	opts.applyDefaults()
	return &Orchestrator{opts: opts}, nil
}

// Run operates the pipeline until ctx is cancelled or ingestion fails
// fatally. Open positions are liquidated before Run returns, on both paths.
// The liquidation uses its own deadline because the run context is already
// dead by then.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), o.opts.ShutdownGrace)
		defer cancel()
		o.opts.Book.EmergencyCloseAll(closeCtx)

		summary := o.opts.Book.Summary()
		o.opts.Logger.Info("run finished",
			zap.Float64("capital", summary.Capital),
			zap.Int("total_trades", summary.TotalTrades),
			zap.Float64("total_pnl", summary.TotalPnL),
			zap.Float64("win_rate", summary.WinRate))
	}()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return o.opts.Source.Run(ctx)
	})

	for i := 0; i < o.opts.Workers; i++ {
		g.Go(func() error {
			o.worker(ctx)
			return nil
		})
	}

	g.Go(func() error {
		o.revalueLoop(ctx)
		return nil
	})

	return g.Wait()
}

// worker drains the intent queue until the source closes it. In-flight
// intents finish even during shutdown; their network calls fail fast on the
// dead context.
func (o *Orchestrator) worker(ctx context.Context) {
	for intent := range o.opts.Source.Intents() {
		o.handleIntent(ctx, intent)
	}
}

func (o *Orchestrator) handleIntent(ctx context.Context, intent *domain.TradeIntent) {
	if intent.Direction != domain.DirectionBuy {
		// Exit-side alpha activity is signal, not something to mirror:
		// the book's own stop, take-profit and max-hold rules govern exits.
		o.opts.Logger.Info("non-buy alpha activity",
			zap.String("direction", string(intent.Direction)),
			zap.String("wallet", intent.Wallet.Hex()),
			zap.String("token", intent.Token.Hex()))
		return
	}

	result, err := o.opts.Validator.Validate(ctx, intent.Token)
	if err != nil {
		o.opts.Logger.Warn("validation aborted",
			zap.String("token", intent.Token.Hex()), zap.Error(err))
		return
	}
	if !result.Safe {
		o.opts.Logger.Info("token rejected",
			zap.String("token", intent.Token.Hex()),
			zap.String("reason", result.Reason))
		return
	}

	if err := o.opts.Book.OpenPosition(ctx, intent); err != nil {
		switch {
		case errors.Is(err, engine.ErrDuplicatePosition),
			errors.Is(err, engine.ErrPositionLimit),
			errors.Is(err, engine.ErrBelowMinimum):
			o.opts.Logger.Debug("buy declined",
				zap.String("token", intent.Token.Hex()), zap.Error(err))
		default:
			o.opts.Logger.Warn("buy failed",
				zap.String("token", intent.Token.Hex()), zap.Error(err))
		}
	}
}

// revalueLoop marks the book to market on a fixed cadence. A token whose
// price fetch fails is left out of the map; the book skips it this round.
func (o *Orchestrator) revalueLoop(ctx context.Context) {
	ticker := time.NewTicker(o.opts.RevalueInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.revalue(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) revalue(ctx context.Context) {
	positions := o.opts.Book.Positions()
	if len(positions) == 0 {
		return
	}

	prices := make(map[common.Address]float64, len(positions))
	for _, p := range positions {
		price, err := o.opts.Prices.TokenPriceETH(ctx, domain.NormalizeAddress(p.Token))
		if err != nil {
			o.opts.Logger.Warn("price fetch failed",
				zap.String("token", p.Token.Hex()), zap.Error(err))
			continue
		}
		prices[p.Token] = price
	}

	o.opts.Book.UpdatePositions(ctx, prices)
}
