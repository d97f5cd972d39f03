// Package decoder turns raw router calldata into trade intents. Only
// transactions aimed at a known DEX router (or contract deployments) are
// considered; everything else is rejected cheaply before any ABI work.
package decoder

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"alpha-mirror/internal/domain"
)

// Rejection reasons. All are expected on the hot path and carry no stack.
var (
	ErrNotRouter         = errors.New("decoder: recipient is not a tracked router")
	ErrUnknownSelector   = errors.New("decoder: unrecognized function selector")
	ErrMalformedCalldata = errors.New("decoder: malformed calldata")
)

// WETH is the canonical mainnet wrapped-ether address.
var WETH = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

// Mainnet routers we follow: Uniswap V2, Uniswap V3, SushiSwap, 1inch v5.
var defaultRouters = []common.Address{
	common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"),
	common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564"),
	common.HexToAddress("0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F"),
	common.HexToAddress("0x1111111254EEB25477B68fb85Ed929f73A960582"),
}

func mustType(signature string) abi.Type {
	t, err := abi.NewType(signature, "", nil)
	if err != nil {
		panic(fmt.Sprintf("abi type %q: %v", signature, err))
	}
	return t
}

var (
	typeUint256     = mustType("uint256")
	typeAddress     = mustType("address")
	typeAddressList = mustType("address[]")
)

// Router function selectors (first 4 bytes of keccak256 of the signature).
var (
	selSwapExactETHForTokens   = [4]byte{0x7f, 0xf3, 0x6a, 0xb5}
	selSwapExactTokensForETH   = [4]byte{0x18, 0xcb, 0xaf, 0xe5}
	selSwapExactTokensForToken = [4]byte{0x38, 0xed, 0x17, 0x39}
	selSwapETHForExactTokens   = [4]byte{0xfb, 0x3b, 0xdb, 0x41}
	selAddLiquidityETH         = [4]byte{0xf3, 0x05, 0xd7, 0x19}
	selRemoveLiquidityETH      = [4]byte{0x02, 0x75, 0x1c, 0xec}
)

var (
	// amountOutMin, path, to, deadline
	argsETHForTokens = abi.Arguments{
		{Type: typeUint256}, {Type: typeAddressList}, {Type: typeAddress}, {Type: typeUint256},
	}
	// amountIn, amountOutMin, path, to, deadline
	argsTokensForETH = abi.Arguments{
		{Type: typeUint256}, {Type: typeUint256}, {Type: typeAddressList}, {Type: typeAddress}, {Type: typeUint256},
	}
	// token, amountTokenDesired, amountTokenMin, amountETHMin, to, deadline
	argsAddLiquidityETH = abi.Arguments{
		{Type: typeAddress}, {Type: typeUint256}, {Type: typeUint256}, {Type: typeUint256}, {Type: typeAddress}, {Type: typeUint256},
	}
	// token, liquidity, amountTokenMin, amountETHMin, to, deadline
	argsRemoveLiquidityETH = abi.Arguments{
		{Type: typeAddress}, {Type: typeUint256}, {Type: typeUint256}, {Type: typeUint256}, {Type: typeAddress}, {Type: typeUint256},
	}
)

// Decoder classifies pending transactions from tracked wallets.
type Decoder struct {
	routers map[common.Address]struct{}
	weth    common.Address
}

// New creates a decoder over the default mainnet router set.
func New() *Decoder {
	return NewWithRouters(defaultRouters)
}

// NewWithRouters creates a decoder over an explicit router set.
func NewWithRouters(routers []common.Address) *Decoder {
	set := make(map[common.Address]struct{}, len(routers))
	for _, r := range routers {
		set[r] = struct{}{}
	}
	return &Decoder{routers: set, weth: WETH}
}

// IsRouter reports whether addr is a tracked DEX router.
func (d *Decoder) IsRouter(addr common.Address) bool {
	_, ok := d.routers[addr]
	return ok
}

// Decode classifies tx into a trade intent attributed to wallet.
// Contract deployments produce a deploy intent with a zero token (the
// contract address is unknown until the transaction is mined). Calls to
// non-router addresses return ErrNotRouter; router calls with an unknown
// selector return ErrUnknownSelector; anything that fails ABI decoding
// returns ErrMalformedCalldata.
func (d *Decoder) Decode(tx *domain.PendingTransaction, wallet common.Address) (*domain.TradeIntent, error) {
	intent := &domain.TradeIntent{
		Wallet:     wallet,
		TxHash:     tx.Hash,
		GasPrice:   tx.GasPrice,
		DetectedAt: time.Now().UTC(),
	}

	if tx.To == nil {
		intent.Direction = domain.DirectionDeploy
		return intent, nil
	}
	if !d.IsRouter(*tx.To) {
		return nil, ErrNotRouter
	}
	if len(tx.Input) < 4 {
		return nil, fmt.Errorf("%w: calldata %d bytes", ErrMalformedCalldata, len(tx.Input))
	}

	var sel [4]byte
	copy(sel[:], tx.Input[:4])
	payload := tx.Input[4:]

	switch sel {
	case selSwapExactETHForTokens, selSwapETHForExactTokens:
		path, err := unpackPath(argsETHForTokens, payload, 1)
		if err != nil {
			return nil, err
		}
		intent.Direction = domain.DirectionBuy
		intent.Token = path[len(path)-1]
		intent.AmountETH = tx.ValueETH()

	case selSwapExactTokensForETH:
		values, err := unpack(argsTokensForETH, payload)
		if err != nil {
			return nil, err
		}
		path, err := pathAt(values, 2)
		if err != nil {
			return nil, err
		}
		intent.Direction = domain.DirectionSell
		intent.Token = path[0]
		intent.AmountETH = weiToETH(values[1].(*big.Int)) // amountOutMin

	case selSwapExactTokensForToken:
		values, err := unpack(argsTokensForETH, payload)
		if err != nil {
			return nil, err
		}
		path, err := pathAt(values, 2)
		if err != nil {
			return nil, err
		}
		intent.Direction = domain.DirectionBuy
		intent.Token = path[len(path)-1]
		// Only WETH-funded swaps carry a meaningful ETH notional.
		if path[0] == d.weth {
			intent.AmountETH = weiToETH(values[0].(*big.Int))
		}

	case selAddLiquidityETH:
		values, err := unpack(argsAddLiquidityETH, payload)
		if err != nil {
			return nil, err
		}
		intent.Direction = domain.DirectionLiquidityAdd
		intent.Token = values[0].(common.Address)
		intent.AmountETH = tx.ValueETH()

	case selRemoveLiquidityETH:
		values, err := unpack(argsRemoveLiquidityETH, payload)
		if err != nil {
			return nil, err
		}
		intent.Direction = domain.DirectionLiquidityRemove
		intent.Token = values[0].(common.Address)
		intent.AmountETH = weiToETH(values[3].(*big.Int)) // amountETHMin

	default:
		return nil, fmt.Errorf("%w: 0x%x", ErrUnknownSelector, sel)
	}

	return intent, nil
}

func unpack(args abi.Arguments, payload []byte) ([]interface{}, error) {
	values, err := args.Unpack(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCalldata, err)
	}
	return values, nil
}

func unpackPath(args abi.Arguments, payload []byte, index int) ([]common.Address, error) {
	values, err := unpack(args, payload)
	if err != nil {
		return nil, err
	}
	return pathAt(values, index)
}

func pathAt(values []interface{}, index int) ([]common.Address, error) {
	path, ok := values[index].([]common.Address)
	if !ok || len(path) == 0 {
		return nil, fmt.Errorf("%w: empty swap path", ErrMalformedCalldata)
	}
	return path, nil
}

func weiToETH(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18)).Float64()
	return f
}

// SelectorName returns a human-readable name for logging. Unknown selectors
// render as hex.
func SelectorName(input []byte) string {
	if len(input) < 4 {
		return "none"
	}
	var sel [4]byte
	copy(sel[:], input[:4])
	switch sel {
	case selSwapExactETHForTokens:
		return "swapExactETHForTokens"
	case selSwapExactTokensForETH:
		return "swapExactTokensForETH"
	case selSwapExactTokensForToken:
		return "swapExactTokensForTokens"
	case selSwapETHForExactTokens:
		return "swapETHForExactTokens"
	case selAddLiquidityETH:
		return "addLiquidityETH"
	case selRemoveLiquidityETH:
		return "removeLiquidityETH"
	}
	return fmt.Sprintf("0x%x", sel)
}
