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

const defaultEtherscanBaseURL = "https://api.etherscan.io/api"

// ContractSource is the slice of Etherscan contract metadata the validator
// consumes.
type ContractSource struct {
	ContractName string
	SourceCode   string
	Verified     bool
}

// EtherscanClient fetches contract verification metadata.
type EtherscanClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewEtherscanClient creates a client; baseURL may be empty for the public
// endpoint.
func NewEtherscanClient(apiKey, baseURL string) *EtherscanClient {
	if baseURL == "" {
		baseURL = defaultEtherscanBaseURL
	}
	return &EtherscanClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

type etherscanEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  []struct {
		SourceCode   string `json:"SourceCode"`
		ContractName string `json:"ContractName"`
		ABI          string `json:"ABI"`
	} `json:"result"`
}

// ContractSource looks up verification status and contract name for address.
// An unverified contract is a normal answer, not an error.
func (c *EtherscanClient) ContractSource(ctx context.Context, address string) (*ContractSource, error) {
	query := url.Values{
		"module":  {"contract"},
		"action":  {"getsourcecode"},
		"address": {address},
		"apikey":  {c.apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build etherscan request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("etherscan request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read etherscan response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("etherscan http %d", resp.StatusCode)
	}

	var env etherscanEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parse etherscan response: %w", err)
	}
	if len(env.Result) == 0 {
		return nil, fmt.Errorf("etherscan empty result: %s", env.Message)
	}

	entry := env.Result[0]
	return &ContractSource{
		ContractName: entry.ContractName,
		SourceCode:   entry.SourceCode,
		Verified:     entry.SourceCode != "" && entry.ABI != "Contract source code not verified",
	}, nil
}
