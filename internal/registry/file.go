package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"alpha-mirror/internal/domain"
)

// LoadFile populates the registry from a ranked wallet list on disk.
// A missing file is not an error: the engine starts with an empty set and
// relies on the external scoring pass to produce one later.
func (r *Registry) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read wallet list: %w", err)
	}

	var wallets []*domain.AlphaWallet
	if err := json.Unmarshal(data, &wallets); err != nil {
		return 0, fmt.Errorf("parse wallet list: %w", err)
	}

	r.ReplaceAll(wallets)
	return len(wallets), nil
}

// SaveFile writes the current wallet set as a ranked JSON array (highest
// score first). The write goes through a temp file and rename so a crash
// mid-write never truncates the previous list.
func (r *Registry) SaveFile(path string) error {
	wallets := r.Snapshot()
	sort.Slice(wallets, func(i, j int) bool {
		return wallets[i].Score > wallets[j].Score
	})

	data, err := json.MarshalIndent(wallets, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal wallet list: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create wallet list dir: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write wallet list: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace wallet list: %w", err)
	}
	return nil
}
