package decoder

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"alpha-mirror/internal/domain"
)

var (
	uniswapV2 = common.HexToAddress("0x7a250d5630B4cF539739dF2C5DAcb4c659F2488D")
	whale     = common.HexToAddress("0xAe2Fc483527B8EF99EB5D9B44875F005ba1FaE13")
	tokenA    = common.HexToAddress("0x00000000000000000000000000000000000aaaa1")
	tokenB    = common.HexToAddress("0x00000000000000000000000000000000000bbbb2")
)

func eth(n float64) *big.Int {
	wei, _ := new(big.Float).Mul(big.NewFloat(n), big.NewFloat(1e18)).Int(nil)
	return wei
}

func calldata(t *testing.T, selector []byte, args abi.Arguments, values ...interface{}) []byte {
	t.Helper()
	payload, err := args.Pack(values...)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return append(append([]byte{}, selector...), payload...)
}

func pendingTx(to *common.Address, input []byte, value *big.Int) *domain.PendingTransaction {
	return &domain.PendingTransaction{
		Hash:     common.HexToHash("0x" + "01"),
		From:     whale,
		To:       to,
		Input:    input,
		Value:    value,
		GasPrice: big.NewInt(30_000_000_000),
	}
}

func TestDecode_BuyWithETH(t *testing.T) {
	d := New()
	input := calldata(t, selSwapExactETHForTokens[:], argsETHForTokens,
		big.NewInt(0), []common.Address{WETH, tokenA, tokenB}, whale, big.NewInt(1_900_000_000))

	intent, err := d.Decode(pendingTx(&uniswapV2, input, eth(2.5)), whale)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if intent.Direction != domain.DirectionBuy {
		t.Errorf("direction = %s, want buy", intent.Direction)
	}
	if intent.Token != tokenB {
		t.Errorf("token = %s, want last path entry %s", intent.Token, tokenB)
	}
	if intent.AmountETH < 2.499 || intent.AmountETH > 2.501 {
		t.Errorf("amount = %v ETH, want 2.5", intent.AmountETH)
	}
	if intent.Wallet != whale {
		t.Errorf("wallet = %s", intent.Wallet)
	}
}

func TestDecode_SellForETH(t *testing.T) {
	d := New()
	input := calldata(t, selSwapExactTokensForETH[:], argsTokensForETH,
		big.NewInt(1000), eth(0.75), []common.Address{tokenA, WETH}, whale, big.NewInt(1_900_000_000))

	intent, err := d.Decode(pendingTx(&uniswapV2, input, big.NewInt(0)), whale)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if intent.Direction != domain.DirectionSell {
		t.Errorf("direction = %s, want sell", intent.Direction)
	}
	if intent.Token != tokenA {
		t.Errorf("token = %s, want first path entry %s", intent.Token, tokenA)
	}
	if intent.AmountETH < 0.749 || intent.AmountETH > 0.751 {
		t.Errorf("amount = %v ETH, want 0.75", intent.AmountETH)
	}
}

func TestDecode_TokenForToken(t *testing.T) {
	d := New()

	t.Run("weth funded", func(t *testing.T) {
		input := calldata(t, selSwapExactTokensForToken[:], argsTokensForETH,
			eth(1.2), big.NewInt(0), []common.Address{WETH, tokenB}, whale, big.NewInt(1_900_000_000))
		intent, err := d.Decode(pendingTx(&uniswapV2, input, big.NewInt(0)), whale)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if intent.Direction != domain.DirectionBuy || intent.Token != tokenB {
			t.Errorf("intent = %+v", intent)
		}
		if intent.AmountETH < 1.199 || intent.AmountETH > 1.201 {
			t.Errorf("amount = %v ETH, want 1.2", intent.AmountETH)
		}
	})

	t.Run("no weth leg", func(t *testing.T) {
		input := calldata(t, selSwapExactTokensForToken[:], argsTokensForETH,
			eth(1.2), big.NewInt(0), []common.Address{tokenA, tokenB}, whale, big.NewInt(1_900_000_000))
		intent, err := d.Decode(pendingTx(&uniswapV2, input, big.NewInt(0)), whale)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if intent.AmountETH != 0 {
			t.Errorf("amount = %v, want 0 for non-WETH funding", intent.AmountETH)
		}
	})
}

func TestDecode_Liquidity(t *testing.T) {
	d := New()

	addInput := calldata(t, selAddLiquidityETH[:], argsAddLiquidityETH,
		tokenA, big.NewInt(1000), big.NewInt(900), eth(3), whale, big.NewInt(1_900_000_000))
	intent, err := d.Decode(pendingTx(&uniswapV2, addInput, eth(3)), whale)
	if err != nil {
		t.Fatalf("Decode add: %v", err)
	}
	if intent.Direction != domain.DirectionLiquidityAdd || intent.Token != tokenA {
		t.Errorf("add intent = %+v", intent)
	}

	removeInput := calldata(t, selRemoveLiquidityETH[:], argsRemoveLiquidityETH,
		tokenA, big.NewInt(500), big.NewInt(400), eth(1.5), whale, big.NewInt(1_900_000_000))
	intent, err = d.Decode(pendingTx(&uniswapV2, removeInput, big.NewInt(0)), whale)
	if err != nil {
		t.Fatalf("Decode remove: %v", err)
	}
	if intent.Direction != domain.DirectionLiquidityRemove || intent.Token != tokenA {
		t.Errorf("remove intent = %+v", intent)
	}
	if intent.AmountETH < 1.499 || intent.AmountETH > 1.501 {
		t.Errorf("amount = %v ETH, want 1.5", intent.AmountETH)
	}
}

func TestDecode_Deploy(t *testing.T) {
	d := New()
	intent, err := d.Decode(pendingTx(nil, []byte{0x60, 0x80, 0x60, 0x40}, big.NewInt(0)), whale)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if intent.Direction != domain.DirectionDeploy {
		t.Errorf("direction = %s, want deploy", intent.Direction)
	}
	if intent.Token != (common.Address{}) {
		t.Errorf("deploy token should be zero, got %s", intent.Token)
	}
}

func TestDecode_Rejections(t *testing.T) {
	d := New()
	random := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	valid := calldata(t, selSwapExactETHForTokens[:], argsETHForTokens,
		big.NewInt(0), []common.Address{WETH, tokenA}, whale, big.NewInt(1_900_000_000))

	cases := []struct {
		name string
		tx   *domain.PendingTransaction
		want error
	}{
		{"non router", pendingTx(&random, valid, eth(1)), ErrNotRouter},
		{"unknown selector", pendingTx(&uniswapV2, []byte{0xde, 0xad, 0xbe, 0xef}, eth(1)), ErrUnknownSelector},
		{"two byte calldata", pendingTx(&uniswapV2, []byte{0x7f, 0xf3}, eth(1)), ErrMalformedCalldata},
		{"truncated payload", pendingTx(&uniswapV2, valid[:len(valid)-40], eth(1)), ErrMalformedCalldata},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Decode(tc.tx, whale)
			if !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSelectorName(t *testing.T) {
	if got := SelectorName([]byte{0x7f, 0xf3, 0x6a, 0xb5, 0x00}); got != "swapExactETHForTokens" {
		t.Errorf("SelectorName = %q", got)
	}
	if got := SelectorName([]byte{0x01}); got != "none" {
		t.Errorf("short input name = %q", got)
	}
	if got := SelectorName([]byte{0xde, 0xad, 0xbe, 0xef}); got != "0xdeadbeef" {
		t.Errorf("unknown selector name = %q", got)
	}
}
