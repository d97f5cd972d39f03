// Package exchange is the signed HTTP client for the DEX aggregator gateway
// used to execute and monitor mirrored swaps.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"alpha-mirror/internal/observability"
)

const (
	defaultBaseURL = "https://www.okx.com"
	chainID        = "1" // Ethereum mainnet

	pathTime        = "/api/v5/public/time"
	pathLiquidity   = "/api/v5/dex/liquidity"
	pathQuote       = "/api/v5/dex/quote"
	pathSwap        = "/api/v5/dex/swap"
	pathTransaction = "/api/v5/dex/transaction"

	wethAddress = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
)

// Credentials authenticate requests to the gateway.
type Credentials struct {
	APIKey     string
	SecretKey  string
	Passphrase string
}

// Config tunes client behavior. Zero values take documented defaults.
type Config struct {
	BaseURL     string
	HTTPTimeout time.Duration
	// MaxAttempts bounds the retry loop per request. Only rate-limit
	// responses are retried; everything else fails on first sight.
	MaxAttempts int
	RetryDelay  time.Duration
	// Swap confirmation polling.
	PollInterval time.Duration
	PollTimeout  time.Duration
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.PollInterval == 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.PollTimeout == 0 {
		c.PollTimeout = 5 * time.Minute
	}
}

// Client talks to the aggregator gateway. Safe for concurrent use.
type Client struct {
	httpClient    *http.Client
	creds         Credentials
	config        Config
	walletAddress string
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

// Instrument attaches Prometheus metrics; requests made before this call
// are simply not observed.
func (c *Client) Instrument(m *observability.Metrics) {
	c.metrics = m
}

// NewClient creates a gateway client. walletAddress is the account swaps
// execute from; config may be nil for defaults.
func NewClient(creds Credentials, walletAddress string, config *Config, logger *zap.Logger) *Client {
	cfg := Config{}
	if config != nil {
		cfg = *config
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient:    &http.Client{Timeout: cfg.HTTPTimeout},
		creds:         creds,
		config:        cfg,
		walletAddress: walletAddress,
		logger:        logger,
		now:           time.Now,
	}
}

// endpointLabel strips the query string so metric labels stay low-cardinality.
func endpointLabel(requestPath string) string {
	if i := strings.IndexByte(requestPath, '?'); i >= 0 {
		return requestPath[:i]
	}
	return requestPath
}

type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// do executes one signed request with rate-limit retries and unmarshals the
// envelope's data array into out (a pointer to a slice or struct slice).
func (c *Client) do(ctx context.Context, method, requestPath string, body interface{}, out interface{}) error {
	var bodyJSON []byte
	if body != nil {
		var err error
		bodyJSON, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(c.config.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		started := time.Now()
		err := c.doOnce(ctx, method, requestPath, bodyJSON, out)
		if c.metrics != nil {
			c.metrics.GatewayRequestLatency.WithLabelValues(endpointLabel(requestPath)).
				Observe(time.Since(started).Seconds())
		}
		if err == nil {
			return nil
		}
		lastErr = err

		apiErr, ok := err.(*APIError)
		if !ok || !apiErr.RateLimited() {
			return err
		}
		if c.metrics != nil {
			c.metrics.GatewayRateLimited.Inc()
		}
		c.logger.Warn("gateway rate limited, retrying",
			zap.String("path", requestPath),
			zap.Int("attempt", attempt),
			zap.Duration("delay", c.config.RetryDelay))
	}
	return fmt.Errorf("retries exhausted: %w", lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, requestPath string, bodyJSON []byte, out interface{}) error {
	timestamp := isoTimestamp(c.now())
	signature := sign(c.creds.SecretKey, timestamp, method, requestPath, string(bodyJSON))

	var reader io.Reader
	if bodyJSON != nil {
		reader = bytes.NewReader(bodyJSON)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+requestPath, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OK-ACCESS-KEY", c.creds.APIKey)
	req.Header.Set("OK-ACCESS-SIGN", signature)
	req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.creds.Passphrase)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read gateway response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return &APIError{Code: codeRateLimited, Msg: "http 429", HTTPStatus: resp.StatusCode}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("parse gateway envelope (http %d): %w", resp.StatusCode, err)
	}
	if env.Code != codeOK {
		return &APIError{Code: env.Code, Msg: env.Msg, HTTPStatus: resp.StatusCode}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("parse gateway data: %w", err)
		}
	}
	return nil
}

// Ping checks gateway reachability and credentials.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, pathTime, nil, nil)
}

// TokenLiquidity returns the aggregator's pooled liquidity for token in USD.
func (c *Client) TokenLiquidity(ctx context.Context, token string) (float64, error) {
	query := url.Values{
		"chainId":              {chainID},
		"tokenContractAddress": {token},
	}
	var data []struct {
		LiquidityUSD string `json:"liquidityUsd"`
	}
	if err := c.do(ctx, http.MethodGet, pathLiquidity+"?"+query.Encode(), nil, &data); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	liquidity, err := strconv.ParseFloat(data[0].LiquidityUSD, 64)
	if err != nil {
		return 0, fmt.Errorf("parse liquidity %q: %w", data[0].LiquidityUSD, err)
	}
	return liquidity, nil
}

// GetQuote prices a swap without executing it.
func (c *Client) GetQuote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	query := url.Values{
		"chainId":          {chainID},
		"fromTokenAddress": {req.FromToken},
		"toTokenAddress":   {req.ToToken},
		"amount":           {req.AmountWei},
	}
	var data []Quote
	if err := c.do(ctx, http.MethodGet, pathQuote+"?"+query.Encode(), nil, &data); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty quote for %s -> %s", req.FromToken, req.ToToken)
	}
	return &data[0], nil
}

// TokenPriceETH returns the spot price of one whole token in ETH, derived
// from a quote of one token unit into WETH.
func (c *Client) TokenPriceETH(ctx context.Context, token string) (float64, error) {
	quote, err := c.GetQuote(ctx, QuoteRequest{
		FromToken: token,
		ToToken:   wethAddress,
		AmountWei: "1000000000000000000",
	})
	if err != nil {
		return 0, err
	}
	out, ok := new(big.Float).SetString(quote.ToAmountWei)
	if !ok {
		return 0, fmt.Errorf("parse quote amount %q", quote.ToAmountWei)
	}
	price, _ := new(big.Float).Quo(out, big.NewFloat(1e18)).Float64()
	return price, nil
}

// ExecuteSwap submits a swap and returns its transaction handle without
// waiting for confirmation. Use WaitForConfirmation to monitor it.
func (c *Client) ExecuteSwap(ctx context.Context, req SwapRequest) (*SwapResult, error) {
	body := map[string]interface{}{
		"chainId":           chainID,
		"fromTokenAddress":  req.FromToken,
		"toTokenAddress":    req.ToToken,
		"amount":            req.AmountWei,
		"slippage":          strconv.FormatFloat(req.SlippagePc, 'f', -1, 64),
		"userWalletAddress": c.walletAddress,
	}
	var data []SwapResult
	if err := c.do(ctx, http.MethodPost, pathSwap, body, &data); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("swap accepted but no transaction returned")
	}
	c.logger.Info("swap submitted",
		zap.String("from", req.FromToken),
		zap.String("to", req.ToToken),
		zap.String("tx", data[0].TxHash))
	return &data[0], nil
}

// OrderStatus fetches the current state of a submitted swap.
func (c *Client) OrderStatus(ctx context.Context, txHash string) (OrderState, error) {
	query := url.Values{
		"chainId": {chainID},
		"txHash":  {txHash},
	}
	var data []OrderState
	if err := c.do(ctx, http.MethodGet, pathTransaction+"?"+query.Encode(), nil, &data); err != nil {
		return OrderState{}, err
	}
	if len(data) == 0 {
		return OrderState{TxHash: txHash, Status: StatusPending}, nil
	}
	return data[0], nil
}

// WaitForConfirmation polls the swap until it reaches a terminal state or
// the poll window closes. A failed or reverted swap is an error. Running out
// of the window is not: the swap may still land, so the caller gets
// confirmed=false and no error.
func (c *Client) WaitForConfirmation(ctx context.Context, txHash string) (bool, error) {
	deadline := time.NewTimer(c.config.PollTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		state, err := c.OrderStatus(ctx, txHash)
		if err != nil {
			c.logger.Warn("order status check failed", zap.String("tx", txHash), zap.Error(err))
		} else if state.Terminal() {
			if state.Succeeded() {
				return true, nil
			}
			return false, fmt.Errorf("swap %s %s", txHash, state.Status)
		}

		select {
		case <-ticker.C:
		case <-deadline.C:
			c.logger.Warn("confirmation window elapsed, swap still pending", zap.String("tx", txHash))
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}
