package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/dharsanguruparan/rwavault/internal/model"
)

// Memory is an in-process Ledger used for development and tests. It is
// guarded by an RWMutex and never hands out pointers to its own records.
type Memory struct {
	mu      sync.RWMutex
	byToken map[uint64]model.AssetRecord
	byHash  map[string][]uint64
}

// NewMemory constructs an empty Memory ledger.
func NewMemory() *Memory {
	return &Memory{
		byToken: make(map[uint64]model.AssetRecord),
		byHash:  make(map[string][]uint64),
	}
}

func (m *Memory) Insert(_ context.Context, rec *model.AssetRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byToken[rec.TokenID]; ok {
		return ErrExists
	}
	prepare(rec)
	m.byToken[rec.TokenID] = *rec
	m.byHash[rec.ContentHash] = append(m.byHash[rec.ContentHash], rec.TokenID)
	return nil
}

func (m *Memory) FindByHash(_ context.Context, contentHash string) ([]model.AssetRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byHash[contentHash]
	out := make([]model.AssetRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.byToken[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (m *Memory) GetByTokenID(_ context.Context, tokenID uint64) (*model.AssetRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byToken[tokenID]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byToken)
}
