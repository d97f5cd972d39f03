package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// AlphaWallet is one entry of the ranked wallet list produced by the offline
// scoring pass. The engine treats it as read-only reference data for the
// lifetime of a session.
type AlphaWallet struct {
	Address       string  `json:"address"`
	AvgMultiplier float64 `json:"avg_multiplier"`
	WinRate       float64 `json:"win_rate"`
	RiskScore     float64 `json:"risk_score"`
	LastActive    int64   `json:"last_active"` // unix seconds
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	Score         float64 `json:"score"`
}

// NormalizedAddress returns the wallet address lowercased, the canonical form
// used for mempool sender matching.
func (w *AlphaWallet) NormalizedAddress() string {
	return strings.ToLower(w.Address)
}

// NormalizeAddress lowercases the hex form of an address for case-insensitive
// set membership.
func NormalizeAddress(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}
