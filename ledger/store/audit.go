package store

import (
	"context"
	"sync"

	"github.com/warp/clanpoints/ledger"
)

// MemoryAudit is an in-memory ledger.AuditLog that keeps the most recent
// entries up to a fixed capacity.
type MemoryAudit struct {
	mu       sync.RWMutex
	entries  []ledger.AuditEntry
	capacity int
}

var _ ledger.AuditLog = (*MemoryAudit)(nil)

// NewMemoryAudit keeps at most capacity entries (0 = unbounded).
func NewMemoryAudit(capacity int) *MemoryAudit {
	return &MemoryAudit{capacity: capacity}
}

func (a *MemoryAudit) Append(_ context.Context, e ledger.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	if a.capacity > 0 && len(a.entries) > a.capacity {
		a.entries = append([]ledger.AuditEntry(nil), a.entries[len(a.entries)-a.capacity:]...)
	}
	return nil
}

// Query returns matching entries, newest first.
func (a *MemoryAudit) Query(_ context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []ledger.AuditEntry
	for i := len(a.entries) - 1; i >= 0; i-- {
		if !f.Matches(a.entries[i]) {
			continue
		}
		out = append(out, a.entries[i])
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}
