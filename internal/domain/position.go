package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ExitReason explains why a position was closed.
type ExitReason string

// Exit reason constants.
const (
	ExitReasonStopLoss   ExitReason = "STOP_LOSS"
	ExitReasonTakeProfit ExitReason = "TAKE_PROFIT"
	ExitReasonMaxHold    ExitReason = "MAX_HOLD"
	ExitReasonEmergency  ExitReason = "EMERGENCY"
)

// Position is an open mirrored holding, keyed by token address. At most one
// open position exists per token at any time; a closed position frees the
// token for a later re-entry.
type Position struct {
	Token         common.Address
	WhaleWallet   common.Address
	EntryPrice    float64 // capital units per token, ETH-quoted
	Amount        float64 // capital committed at entry
	EntryTime     time.Time
	StopLoss      float64
	TakeProfit    float64
	CurrentValue  float64
	UnrealizedPnL float64
}

// Revalue updates the mark-to-market fields for the given current price.
func (p *Position) Revalue(price float64) {
	if p.EntryPrice <= 0 {
		return
	}
	p.CurrentValue = p.Amount * (price / p.EntryPrice)
	p.UnrealizedPnL = p.CurrentValue - p.Amount
}

// Age returns how long the position has been open as of now.
func (p *Position) Age(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}
