package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"alpha-mirror/internal/domain"
	"alpha-mirror/internal/storage"
)

// TradeJournal implements storage.TradeJournal using PostgreSQL.
// Rows are append-only; the serial id preserves execution order for trades
// sharing a timestamp.
type TradeJournal struct {
	pool *Pool
}

// NewTradeJournal creates a new TradeJournal.
func NewTradeJournal(pool *Pool) *TradeJournal {
	return &TradeJournal{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeJournal = (*TradeJournal)(nil)

// Insert appends one executed trade.
func (s *TradeJournal) Insert(ctx context.Context, t *domain.TradeRecord) error {
	if t == nil || t.Token == (common.Address{}) || t.Timestamp.IsZero() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trades (
			action, token, whale_wallet, amount, price, pnl, reason, tx_hash, executed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err := s.pool.Exec(ctx, query,
		string(t.Action), strings.ToLower(t.Token.Hex()), strings.ToLower(t.WhaleWallet.Hex()),
		t.Amount, t.Price, t.PnL, t.Reason, t.TxHash, t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// Recent retrieves the latest trades, newest first, at most limit rows.
func (s *TradeJournal) Recent(ctx context.Context, limit int) ([]*domain.TradeRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT action, token, whale_wallet, amount, price, pnl, reason, tx_hash, executed_at
		FROM trades
		ORDER BY executed_at DESC, id DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// ByToken retrieves all trades for a token, oldest first.
func (s *TradeJournal) ByToken(ctx context.Context, token string) ([]*domain.TradeRecord, error) {
	query := `
		SELECT action, token, whale_wallet, amount, price, pnl, reason, tx_hash, executed_at
		FROM trades
		WHERE token = $1
		ORDER BY executed_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, strings.ToLower(common.HexToAddress(token).Hex()))
	if err != nil {
		return nil, fmt.Errorf("get trades by token: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// scanTrades scans multiple rows into a slice of TradeRecord.
func scanTrades(rows pgx.Rows) ([]*domain.TradeRecord, error) {
	var trades []*domain.TradeRecord

	for rows.Next() {
		var (
			t             domain.TradeRecord
			action        string
			token, wallet string
		)
		err := rows.Scan(
			&action, &token, &wallet,
			&t.Amount, &t.Price, &t.PnL, &t.Reason, &t.TxHash, &t.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}

		t.Action = domain.TradeAction(action)
		t.Token = common.HexToAddress(token)
		t.WhaleWallet = common.HexToAddress(wallet)
		trades = append(trades, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
