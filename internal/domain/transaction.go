package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PendingTransaction is a mempool transaction resolved from a hash
// notification. It exists only between ingestion and decoding.
type PendingTransaction struct {
	Hash     common.Hash
	From     common.Address
	To       *common.Address // nil for contract creation
	Input    []byte
	Value    *big.Int // wei
	GasPrice *big.Int // wei
}

// ValueETH converts the transaction value from wei to ether.
func (tx *PendingTransaction) ValueETH() float64 {
	if tx.Value == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(tx.Value),
		big.NewFloat(1e18),
	).Float64()
	return f
}
