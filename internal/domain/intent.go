package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Direction classifies what an alpha wallet is doing in a decoded transaction.
type Direction string

// Direction constants.
const (
	DirectionBuy             Direction = "buy"
	DirectionSell            Direction = "sell"
	DirectionDeploy          Direction = "deploy"
	DirectionLiquidityAdd    Direction = "liquidity_add"
	DirectionLiquidityRemove Direction = "liquidity_remove"
)

// TradeIntent is the decoded form of an alpha-wallet transaction. It is
// produced by the decoder, consumed exactly once by a pipeline worker and
// never persisted.
type TradeIntent struct {
	Wallet     common.Address
	Token      common.Address
	TxHash     common.Hash
	AmountETH  float64
	GasPrice   *big.Int
	Direction  Direction
	DetectedAt time.Time
}
