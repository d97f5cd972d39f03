// Package storage defines persistence contracts for the trade journal and
// position telemetry. Implementations live in subpackages: memory for tests
// and journal-less runs, postgres for the durable journal, clickhouse for
// analytical snapshots.
package storage

import (
	"context"

	"alpha-mirror/internal/domain"
)

// TradeJournal provides access to executed-trade storage.
type TradeJournal interface {
	// Insert appends one executed trade. Returns ErrInvalidInput when the
	// record is missing its token or timestamp.
	Insert(ctx context.Context, t *domain.TradeRecord) error

	// Recent retrieves the latest trades, newest first, at most limit rows.
	Recent(ctx context.Context, limit int) ([]*domain.TradeRecord, error)

	// ByToken retrieves all trades for a token, oldest first.
	ByToken(ctx context.Context, token string) ([]*domain.TradeRecord, error)
}

// SnapshotStore provides access to position mark-to-market telemetry.
type SnapshotStore interface {
	// InsertBulk appends a batch of revaluation observations.
	InsertBulk(ctx context.Context, snapshots []*domain.PositionSnapshot) error

	// ByToken retrieves all observations for a token, oldest first.
	ByToken(ctx context.Context, token string) ([]*domain.PositionSnapshot, error)
}
