package ethereum

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

// rpcStub answers eth_getTransactionByHash batches from a fixed hash->tx map.
// Unknown hashes get a null result, mirroring a node that dropped the tx.
func rpcStub(t *testing.T, known map[string]map[string]interface{}) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqs []struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
			Params []string        `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
			t.Errorf("decode batch: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		resps := make([]map[string]interface{}, 0, len(reqs))
		for _, req := range reqs {
			if req.Method != "eth_getTransactionByHash" {
				t.Errorf("method = %q, want eth_getTransactionByHash", req.Method)
			}
			resp := map[string]interface{}{"jsonrpc": "2.0", "id": json.RawMessage(req.ID)}
			if tx, ok := known[strings.ToLower(req.Params[0])]; ok {
				resp["result"] = tx
			} else {
				resp["result"] = nil
			}
			resps = append(resps, resp)
		}
		json.NewEncoder(w).Encode(resps)
	}))
}

func TestTransactionsByHash_SkipsUnknown(t *testing.T) {
	knownHash := "0x" + strings.Repeat("11", 32)
	droppedHash := "0x" + strings.Repeat("22", 32)
	to := "0x7a250d5630b4cf539739df2c5dacb4c659f2488d"

	server := rpcStub(t, map[string]map[string]interface{}{
		knownHash: {
			"hash":     knownHash,
			"from":     "0xae2fc483527b8ef99eb5d9b44875f005ba1fae13",
			"to":       to,
			"input":    "0x7ff36ab5",
			"value":    "0xde0b6b3a7640000", // 1 ETH
			"gasPrice": "0x3b9aca00",        // 1 gwei
		},
	})
	defer server.Close()

	client, err := DialRPC(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	txs, err := client.TransactionsByHash(context.Background(), []common.Hash{
		common.HexToHash(knownHash),
		common.HexToHash(droppedHash),
	})
	if err != nil {
		t.Fatalf("TransactionsByHash: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("resolved %d transactions, want 1", len(txs))
	}

	tx := txs[0]
	if tx.Hash != common.HexToHash(knownHash) {
		t.Errorf("hash = %s", tx.Hash)
	}
	if tx.To == nil || *tx.To != common.HexToAddress(to) {
		t.Errorf("to = %v, want %s", tx.To, to)
	}
	if got := tx.ValueETH(); got < 0.999 || got > 1.001 {
		t.Errorf("value = %v ETH, want 1", got)
	}
	if tx.GasPrice.Int64() != 1_000_000_000 {
		t.Errorf("gasPrice = %v, want 1 gwei", tx.GasPrice)
	}
	if len(tx.Input) != 4 {
		t.Errorf("input length = %d, want 4", len(tx.Input))
	}
}

func TestTransactionsByHash_ContractCreation(t *testing.T) {
	hash := "0x" + strings.Repeat("33", 32)
	server := rpcStub(t, map[string]map[string]interface{}{
		hash: {
			"hash":     hash,
			"from":     "0xae2fc483527b8ef99eb5d9b44875f005ba1fae13",
			"to":       nil,
			"input":    "0x60806040",
			"value":    "0x0",
			"gasPrice": "0x0",
		},
	})
	defer server.Close()

	client, err := DialRPC(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	txs, err := client.TransactionsByHash(context.Background(), []common.Hash{common.HexToHash(hash)})
	if err != nil {
		t.Fatalf("TransactionsByHash: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("resolved %d transactions, want 1", len(txs))
	}
	if txs[0].To != nil {
		t.Errorf("contract creation should have nil to, got %v", txs[0].To)
	}
}

func TestTransactionsByHash_EmptyBatch(t *testing.T) {
	client := &RPCClient{}
	txs, err := client.TransactionsByHash(context.Background(), nil)
	if err != nil {
		t.Fatalf("empty batch errored: %v", err)
	}
	if txs != nil {
		t.Errorf("empty batch returned %v", txs)
	}
}
