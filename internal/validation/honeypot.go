package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultHoneypotBaseURL = "https://api.honeypot.is/v2/IsHoneypot"

// HoneypotClient queries the external honeypot simulation service.
type HoneypotClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewHoneypotClient creates a client; baseURL may be empty for the public
// endpoint.
func NewHoneypotClient(baseURL string) *HoneypotClient {
	if baseURL == "" {
		baseURL = defaultHoneypotBaseURL
	}
	return &HoneypotClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
	}
}

type honeypotResponse struct {
	HoneypotResult *struct {
		IsHoneypot bool `json:"isHoneypot"`
	} `json:"honeypotResult"`
}

// IsHoneypot reports whether the service flags the token. Service outages
// return an error; the caller decides the leniency policy.
func (c *HoneypotClient) IsHoneypot(ctx context.Context, address string) (bool, error) {
	query := url.Values{"address": {address}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return false, fmt.Errorf("build honeypot request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("honeypot request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, fmt.Errorf("read honeypot response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("honeypot http %d", resp.StatusCode)
	}

	var parsed honeypotResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return false, fmt.Errorf("parse honeypot response: %w", err)
	}
	if parsed.HoneypotResult == nil {
		return false, fmt.Errorf("honeypot response missing result")
	}
	return parsed.HoneypotResult.IsHoneypot, nil
}
