// Package ethereum provides node access: a WebSocket client for the
// pending-transaction feed and a JSON-RPC client for resolving transaction
// bodies.
package ethereum

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
)

// WSConfig configures WebSocket client behavior.
type WSConfig struct {
	// HandshakeTimeout bounds the initial dial.
	HandshakeTimeout time.Duration
	// ReadTimeout is the per-message read deadline. Server pings reset it.
	ReadTimeout time.Duration
	// WriteTimeout bounds control/subscribe writes.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for the subscription confirmation.
	SubscribeTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		SubscribeTimeout: 30 * time.Second,
	}
}

// WSClient subscribes to a node's pending-transaction hash feed.
// It runs exactly one connection per call; reconnect policy belongs to the
// caller (the ingestor retries with backoff and owns the retry ceiling).
type WSClient struct {
	endpoint string
	config   WSConfig
}

// NewWSClient creates a WebSocket client for the given endpoint.
func NewWSClient(endpoint string, config *WSConfig) *WSClient {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	return &WSClient{endpoint: endpoint, config: cfg}
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  string `json:"result"` // subscription ID
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type wsNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  *struct {
		Subscription string `json:"subscription"`
		Result       string `json:"result"` // 32-byte tx hash hex
	} `json:"params"`
}

// SubscribePendingTransactions dials the node, issues one eth_subscribe
// request and streams hash notifications to out until the connection fails,
// the server sends a close frame, or ctx is cancelled. The terminal
// condition is always returned as an error except for ctx cancellation,
// which returns ctx.Err().
//
// Sends to out block: backpressure from a full channel throttles the read
// loop by design.
func (c *WSClient) SubscribePendingTransactions(ctx context.Context, out chan<- common.Hash) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	// Unblock the read loop when the caller cancels.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	// Answer server pings and keep the read deadline moving.
	conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.config.WriteTimeout))
	})

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_subscribe",
		Params:  []interface{}{"pendingTransactions"},
	}
	conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}

	// First message must be the subscription confirmation.
	conn.SetReadDeadline(time.Now().Add(c.config.SubscribeTimeout))
	_, message, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read subscribe response: %w", err)
	}
	var resp wsSubscribeResponse
	if err := json.Unmarshal(message, &resp); err != nil {
		return fmt.Errorf("parse subscribe response: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("subscribe rejected: %d %s", resp.Error.Code, resp.Error.Message)
	}
	if resp.Result == "" {
		return fmt.Errorf("subscribe response missing subscription id")
	}

	for {
		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read notification: %w", err)
		}

		var notif wsNotification
		if err := json.Unmarshal(message, &notif); err != nil || notif.Params == nil {
			// Not a notification envelope; ignore.
			continue
		}
		if notif.Method != "eth_subscription" {
			continue
		}
		if len(notif.Params.Result) != 2+2*common.HashLength {
			continue
		}

		select {
		case out <- common.HexToHash(notif.Params.Result):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
