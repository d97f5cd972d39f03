package memory

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"alpha-mirror/internal/domain"
	"alpha-mirror/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots []*domain.PositionSnapshot
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// InsertBulk appends a batch of revaluation observations.
func (s *SnapshotStore) InsertBulk(_ context.Context, snapshots []*domain.PositionSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	for _, snap := range snapshots {
		if snap == nil || snap.Timestamp.IsZero() {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, snap := range snapshots {
		cp := *snap
		s.snapshots = append(s.snapshots, &cp)
	}
	return nil
}

// ByToken retrieves all observations for a token, oldest first.
func (s *SnapshotStore) ByToken(_ context.Context, token string) ([]*domain.PositionSnapshot, error) {
	addr := common.HexToAddress(token)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PositionSnapshot
	for _, snap := range s.snapshots {
		if snap.Token == addr {
			cp := *snap
			result = append(result, &cp)
		}
	}
	return result, nil
}
