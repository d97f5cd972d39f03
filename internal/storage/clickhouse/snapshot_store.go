package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"alpha-mirror/internal/domain"
	"alpha-mirror/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using ClickHouse.
// Snapshots are pure telemetry: MergeTree without uniqueness is fine, a
// replayed batch only duplicates observations.
type SnapshotStore struct {
	conn *Conn
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(conn *Conn) *SnapshotStore {
	return &SnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// InsertBulk appends a batch of revaluation observations.
func (s *SnapshotStore) InsertBulk(ctx context.Context, snapshots []*domain.PositionSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	for _, snap := range snapshots {
		if snap == nil || snap.Timestamp.IsZero() {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO position_snapshots (
			token, price, current_value, unrealized_pnl, observed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, snap := range snapshots {
		err = batch.Append(
			strings.ToLower(snap.Token.Hex()),
			snap.Price, snap.CurrentValue, snap.UnrealizedPnL,
			snap.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// ByToken retrieves all observations for a token, oldest first.
func (s *SnapshotStore) ByToken(ctx context.Context, token string) ([]*domain.PositionSnapshot, error) {
	query := `
		SELECT token, price, current_value, unrealized_pnl, observed_at
		FROM position_snapshots
		WHERE token = ?
		ORDER BY observed_at ASC
	`

	rows, err := s.conn.Query(ctx, query, strings.ToLower(common.HexToAddress(token).Hex()))
	if err != nil {
		return nil, fmt.Errorf("query snapshots by token: %w", err)
	}
	defer rows.Close()

	var snapshots []*domain.PositionSnapshot
	for rows.Next() {
		var (
			snap       domain.PositionSnapshot
			tokenHex   string
			observedAt time.Time
		)
		err := rows.Scan(&tokenHex, &snap.Price, &snap.CurrentValue, &snap.UnrealizedPnL, &observedAt)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snap.Token = common.HexToAddress(tokenHex)
		snap.Timestamp = observedAt
		snapshots = append(snapshots, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}

	return snapshots, nil
}
