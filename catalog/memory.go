package catalog

import (
	"context"
	"sync"

	"github.com/poiesic/filedrop/core"
)

// Memory is an in-process Index. The oldest record wins when several share a digest.
type Memory struct {
	mu      sync.RWMutex
	records map[string][]core.ExistingRecord
}

var _ Index = (*Memory)(nil)

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{records: make(map[string][]core.ExistingRecord)}
}

// Add registers record under digest.
func (m *Memory) Add(digest string, record core.ExistingRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[digest] = append(m.records[digest], record)
}

// Len returns the number of registered records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, rs := range m.records {
		n += len(rs)
	}
	return n
}

func (m *Memory) Check(ctx context.Context, digest, scopeID string) (*core.DuplicateCheck, error) {
	if digest == "" {
		return nil, ErrDigestRequired
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *core.ExistingRecord
	for _, r := range m.records[digest] {
		if scopeID != "" && r.ScopeID != scopeID {
			continue
		}
		if found == nil || r.CreatedAt.Before(found.CreatedAt) {
			rec := r
			found = &rec
		}
	}
	if found == nil {
		return NotDuplicate(), nil
	}
	return &core.DuplicateCheck{IsDuplicate: true, Existing: found}, nil
}
