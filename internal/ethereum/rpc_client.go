package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"alpha-mirror/internal/domain"
)

// RPCClient resolves pending transaction bodies over JSON-RPC.
type RPCClient struct {
	client *rpc.Client
}

// DialRPC connects to the node's HTTP JSON-RPC endpoint.
func DialRPC(ctx context.Context, endpoint string) (*RPCClient, error) {
	client, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("rpc dial: %w", err)
	}
	return &RPCClient{client: client}, nil
}

// Close releases the underlying connection.
func (c *RPCClient) Close() {
	c.client.Close()
}

// rpcTransaction is the subset of eth_getTransactionByHash we consume.
type rpcTransaction struct {
	Hash     common.Hash     `json:"hash"`
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to"`
	Input    hexutil.Bytes   `json:"input"`
	Value    *hexutil.Big    `json:"value"`
	GasPrice *hexutil.Big    `json:"gasPrice"`
}

// TransactionsByHash resolves a batch of pending hashes in a single
// round-trip. Hashes the node no longer knows (dropped or already mined and
// pruned from the pool) are silently skipped, as are per-element errors;
// only a transport-level failure errors the whole batch.
func (c *RPCClient) TransactionsByHash(ctx context.Context, hashes []common.Hash) ([]*domain.PendingTransaction, error) {
	if len(hashes) == 0 {
		return nil, nil
	}

	results := make([]*rpcTransaction, len(hashes))
	batch := make([]rpc.BatchElem, len(hashes))
	for i, h := range hashes {
		batch[i] = rpc.BatchElem{
			Method: "eth_getTransactionByHash",
			Args:   []interface{}{h},
			Result: &results[i],
		}
	}

	if err := c.client.BatchCallContext(ctx, batch); err != nil {
		return nil, fmt.Errorf("batch eth_getTransactionByHash: %w", err)
	}

	out := make([]*domain.PendingTransaction, 0, len(hashes))
	for i, elem := range batch {
		if elem.Error != nil || results[i] == nil {
			continue
		}
		out = append(out, toPending(results[i]))
	}
	return out, nil
}

// Call executes a read-only eth_call against the latest block and returns
// the raw return data. A revert surfaces as an error from the node.
func (c *RPCClient) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	var result hexutil.Bytes
	call := map[string]interface{}{
		"to":   to,
		"data": hexutil.Bytes(data),
	}
	if err := c.client.CallContext(ctx, &result, "eth_call", call, "latest"); err != nil {
		return nil, fmt.Errorf("eth_call %s: %w", to, err)
	}
	return result, nil
}

// CallFrom is Call with an explicit sender, used to simulate transfers from
// a specific wallet.
func (c *RPCClient) CallFrom(ctx context.Context, from, to common.Address, data []byte) ([]byte, error) {
	var result hexutil.Bytes
	call := map[string]interface{}{
		"from": from,
		"to":   to,
		"data": hexutil.Bytes(data),
	}
	if err := c.client.CallContext(ctx, &result, "eth_call", call, "latest"); err != nil {
		return nil, fmt.Errorf("eth_call %s: %w", to, err)
	}
	return result, nil
}

func toPending(tx *rpcTransaction) *domain.PendingTransaction {
	value := new(big.Int)
	if tx.Value != nil {
		value = tx.Value.ToInt()
	}
	gasPrice := new(big.Int)
	if tx.GasPrice != nil {
		gasPrice = tx.GasPrice.ToInt()
	}
	return &domain.PendingTransaction{
		Hash:     tx.Hash,
		From:     tx.From,
		To:       tx.To,
		Input:    tx.Input,
		Value:    value,
		GasPrice: gasPrice,
	}
}
