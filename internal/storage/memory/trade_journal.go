package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"alpha-mirror/internal/domain"
	"alpha-mirror/internal/storage"
)

// TradeJournal is an in-memory implementation of storage.TradeJournal.
// Used for tests and for runs without a configured database.
type TradeJournal struct {
	mu     sync.RWMutex
	trades []*domain.TradeRecord // append order
}

// NewTradeJournal creates a new in-memory trade journal.
func NewTradeJournal() *TradeJournal {
	return &TradeJournal{}
}

// Compile-time interface check.
var _ storage.TradeJournal = (*TradeJournal)(nil)

// Insert appends one executed trade.
func (s *TradeJournal) Insert(_ context.Context, t *domain.TradeRecord) error {
	if t == nil || t.Token == (common.Address{}) || t.Timestamp.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *t
	s.trades = append(s.trades, &cp)
	return nil
}

// Recent retrieves the latest trades, newest first, at most limit rows.
func (s *TradeJournal) Recent(_ context.Context, limit int) ([]*domain.TradeRecord, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.trades)
	if limit > n {
		limit = n
	}
	result := make([]*domain.TradeRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		cp := *s.trades[i]
		result = append(result, &cp)
	}
	return result, nil
}

// ByToken retrieves all trades for a token, oldest first.
func (s *TradeJournal) ByToken(_ context.Context, token string) ([]*domain.TradeRecord, error) {
	addr := common.HexToAddress(token)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TradeRecord
	for _, t := range s.trades {
		if t.Token == addr {
			cp := *t
			result = append(result, &cp)
		}
	}
	return result, nil
}
