package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"alpha-mirror/internal/domain"
	"alpha-mirror/internal/storage"
)

func TestTradeJournal_RoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	journal := NewTradeJournal(pool)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	tokenA := common.HexToAddress("0x0000000000000000000000000000000000000a01")
	tokenB := common.HexToAddress("0x0000000000000000000000000000000000000b02")
	whale := common.HexToAddress("0xae2fc483527b8ef99eb5d9b44875f005ba1fae13")

	trades := []*domain.TradeRecord{
		{Action: domain.TradeActionBuy, Token: tokenA, WhaleWallet: whale, Amount: 100, Price: 0.002, TxHash: "0xaaa", Timestamp: base},
		{Action: domain.TradeActionBuy, Token: tokenB, WhaleWallet: whale, Amount: 50, Price: 1.5, TxHash: "0xbbb", Timestamp: base.Add(time.Minute)},
		{Action: domain.TradeActionSell, Token: tokenA, WhaleWallet: whale, Amount: 140, Price: 0.0028, PnL: 40, Reason: "TAKE_PROFIT", TxHash: "0xccc", Timestamp: base.Add(2 * time.Minute)},
	}
	for _, trade := range trades {
		require.NoError(t, journal.Insert(ctx, trade))
	}

	recent, err := journal.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, domain.TradeActionSell, recent[0].Action)
	require.Equal(t, tokenA, recent[0].Token)
	require.InDelta(t, 40.0, recent[0].PnL, 1e-9)
	require.Equal(t, tokenB, recent[1].Token)

	byToken, err := journal.ByToken(ctx, tokenA.Hex())
	require.NoError(t, err)
	require.Len(t, byToken, 2)
	require.Equal(t, domain.TradeActionBuy, byToken[0].Action)
	require.Equal(t, domain.TradeActionSell, byToken[1].Action)
	require.Equal(t, "TAKE_PROFIT", byToken[1].Reason)
	require.Equal(t, whale, byToken[1].WhaleWallet)
}

func TestTradeJournal_InvalidInput(t *testing.T) {
	journal := NewTradeJournal(nil)
	ctx := context.Background()

	err := journal.Insert(ctx, nil)
	require.ErrorIs(t, err, storage.ErrInvalidInput)

	err = journal.Insert(ctx, &domain.TradeRecord{Action: domain.TradeActionBuy})
	require.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = journal.Recent(ctx, 0)
	require.ErrorIs(t, err, storage.ErrInvalidInput)
}
