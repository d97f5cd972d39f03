// Package registry holds the alpha-wallet set used for mempool sender
// matching. Lookups are hot-path (one per resolved transaction), so the set
// is sharded rather than guarded by a single lock; operations are
// linearizable per key.
package registry

import (
	"hash/fnv"
	"strings"
	"sync"

	"alpha-mirror/internal/domain"
)

const shardCount = 16

type shard struct {
	mu   sync.RWMutex
	data map[string]*domain.AlphaWallet // keyed by lowercased address
}

// Registry is a sharded concurrent map of alpha wallets.
type Registry struct {
	shards [shardCount]*shard
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{data: make(map[string]*domain.AlphaWallet)}
	}
	return r
}

func (r *Registry) shardFor(addr string) *shard {
	h := fnv.New32a()
	h.Write([]byte(addr))
	return r.shards[h.Sum32()%shardCount]
}

// Put inserts or replaces a wallet entry.
func (r *Registry) Put(w *domain.AlphaWallet) {
	addr := w.NormalizedAddress()
	s := r.shardFor(addr)
	s.mu.Lock()
	cp := *w
	s.data[addr] = &cp
	s.mu.Unlock()
}

// Get returns a copy of the wallet entry for addr, or nil.
// Matching is case-insensitive.
func (r *Registry) Get(addr string) *domain.AlphaWallet {
	key := strings.ToLower(addr)
	s := r.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.data[key]
	if !ok {
		return nil
	}
	cp := *w
	return &cp
}

// Contains reports whether addr is a tracked alpha wallet.
func (r *Registry) Contains(addr string) bool {
	key := strings.ToLower(addr)
	s := r.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok
}

// Len returns the number of tracked wallets.
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.data)
		s.mu.RUnlock()
	}
	return n
}

// Snapshot returns a copy of every wallet entry. Order is unspecified.
func (r *Registry) Snapshot() []*domain.AlphaWallet {
	var out []*domain.AlphaWallet
	for _, s := range r.shards {
		s.mu.RLock()
		for _, w := range s.data {
			cp := *w
			out = append(out, &cp)
		}
		s.mu.RUnlock()
	}
	return out
}

// ReplaceAll swaps the full wallet set, used after a rescoring pass.
func (r *Registry) ReplaceAll(wallets []*domain.AlphaWallet) {
	fresh := make([]map[string]*domain.AlphaWallet, shardCount)
	for i := range fresh {
		fresh[i] = make(map[string]*domain.AlphaWallet)
	}
	for _, w := range wallets {
		addr := w.NormalizedAddress()
		h := fnv.New32a()
		h.Write([]byte(addr))
		cp := *w
		fresh[h.Sum32()%shardCount][addr] = &cp
	}
	for i, s := range r.shards {
		s.mu.Lock()
		s.data = fresh[i]
		s.mu.Unlock()
	}
}
