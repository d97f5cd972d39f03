package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PortfolioSummary is a read-only snapshot of engine state.
type PortfolioSummary struct {
	Capital        float64
	PositionsValue float64
	OpenPositions  int
	TotalTrades    int
	WinningTrades  int
	TotalPnL       float64
	WinRate        float64
}

// TotalValue is capital plus the summed current value of open positions.
func (s PortfolioSummary) TotalValue() float64 {
	return s.Capital + s.PositionsValue
}

// TradeAction distinguishes journal entries.
type TradeAction string

// Trade actions.
const (
	TradeActionBuy  TradeAction = "BUY"
	TradeActionSell TradeAction = "SELL"
)

// TradeRecord is one journal row, written on every executed buy and close.
type TradeRecord struct {
	Action      TradeAction
	Token       common.Address
	WhaleWallet common.Address
	Amount      float64 // capital units committed or returned
	Price       float64
	PnL         float64
	Reason      string // exit reason for sells, empty for buys
	TxHash      string
	Timestamp   time.Time
}

// PositionSnapshot is one revaluation observation for an open position.
type PositionSnapshot struct {
	Token         common.Address
	Price         float64
	CurrentValue  float64
	UnrealizedPnL float64
	Timestamp     time.Time
}
