package exchange

import "fmt"

// Success and retry codes in the gateway's response envelope.
const (
	codeOK          = "0"
	codeRateLimited = "50011"
)

// Order lifecycle states reported by the transaction endpoint.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusReverted  = "reverted"
)

// APIError is a non-success envelope from the gateway.
type APIError struct {
	Code       string
	Msg        string
	HTTPStatus int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange: code %s (%s), http %d", e.Code, e.Msg, e.HTTPStatus)
}

// RateLimited reports whether the error is the gateway's throttle response.
func (e *APIError) RateLimited() bool {
	return e.Code == codeRateLimited || e.HTTPStatus == 429
}

// QuoteRequest asks the aggregator to price a swap.
type QuoteRequest struct {
	FromToken string // contract address
	ToToken   string
	AmountWei string // base-unit amount as decimal string
}

// Quote is the aggregator's best route for a QuoteRequest.
type Quote struct {
	ToAmountWei     string  `json:"toTokenAmount"`
	FromAmountWei   string  `json:"fromTokenAmount"`
	EstimatedGasFee string  `json:"estimateGasFee"`
	PriceImpact     float64 `json:"priceImpactPercentage,string"`
}

// SwapRequest submits a swap for execution through the user's wallet.
type SwapRequest struct {
	FromToken  string
	ToToken    string
	AmountWei  string
	SlippagePc float64 // e.g. 0.01 for 1%
}

// SwapResult identifies a submitted swap.
type SwapResult struct {
	TxHash string `json:"txHash"`
	Router string `json:"routerAddress"`
}

// OrderState is a point-in-time view of a submitted swap.
type OrderState struct {
	TxHash string `json:"txHash"`
	Status string `json:"txStatus"`
}

// Terminal reports whether the state will not change again.
func (s OrderState) Terminal() bool {
	switch s.Status {
	case StatusConfirmed, StatusSuccess, StatusFailed, StatusReverted:
		return true
	}
	return false
}

// Succeeded reports whether a terminal state means the swap landed.
func (s OrderState) Succeeded() bool {
	return s.Status == StatusConfirmed || s.Status == StatusSuccess
}
