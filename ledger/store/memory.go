// Package store provides the ledger.Store implementation.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/warp/clanpoints/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory ledger, checkpointed through a Persister
// =============================================================================

// Memory keeps the whole ledger in memory behind one mutex. Every mutation
// runs read-modify-persist under the lock; a failed checkpoint rolls the
// mutation back. With a nil Persister the store is volatile.
type Memory struct {
	mu        sync.Mutex
	records   ledger.Document
	persister ledger.Persister
	closed    bool
}

var _ ledger.Store = (*Memory)(nil)

// NewMemory returns a volatile store (nothing is persisted).
func NewMemory() *Memory {
	return NewPersistent(nil)
}

// NewPersistent returns a store that checkpoints through p.
// Call Load to restore persisted state.
func NewPersistent(p ledger.Persister) *Memory {
	return &Memory{
		records:   make(ledger.Document),
		persister: p,
	}
}

// Get returns a copy of the record, if present.
func (m *Memory) Get(ctx context.Context, c ledger.CommunityID, member ledger.MemberID) (ledger.BalanceRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(ctx); err != nil {
		return ledger.BalanceRecord{}, false, err
	}
	rec, ok := m.records.Lookup(ledger.Key{Community: c, Member: member})
	return rec.Clone(), ok, nil
}

// GetOrCreate returns the record, creating and persisting a zero record if absent.
func (m *Memory) GetOrCreate(ctx context.Context, c ledger.CommunityID, member ledger.MemberID) (ledger.BalanceRecord, error) {
	return m.Mutate(ctx, c, member, func(*ledger.BalanceRecord) error { return nil })
}

// Mutate applies fn to a copy of the record and commits it if fn succeeds
// and the checkpoint is written.
func (m *Memory) Mutate(ctx context.Context, c ledger.CommunityID, member ledger.MemberID, fn ledger.MutateFunc) (ledger.BalanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(ctx); err != nil {
		return ledger.BalanceRecord{}, err
	}

	k := ledger.Key{Community: c, Member: member}
	prev, existed := m.records.Lookup(k)
	work := prev.Clone()
	if err := fn(&work); err != nil {
		return ledger.BalanceRecord{}, err
	}

	m.put(k, work)
	if err := m.checkpoint(ctx, ledger.Checkpoint{Updated: []ledger.Key{k}}); err != nil {
		m.restore(map[ledger.Key]undo{k: {rec: prev, existed: existed}})
		return ledger.BalanceRecord{}, err
	}
	return work.Clone(), nil
}

// MutateAll visits every record of the community in member order.
func (m *Memory) MutateAll(ctx context.Context, c ledger.CommunityID, fn ledger.VisitFunc) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(ctx); err != nil {
		return 0, err
	}

	undos := make(map[ledger.Key]undo)
	var updated []ledger.Key
	for _, e := range m.records.Entries(c) {
		work := e.Record.Clone()
		if !fn(e.Member, &work) {
			continue
		}
		k := ledger.Key{Community: c, Member: e.Member}
		undos[k] = undo{rec: e.Record, existed: true}
		updated = append(updated, k)
		m.put(k, work)
	}
	return m.commit(ctx, updated, undos)
}

// MutateMany edits the listed members, creating records lazily. The first
// error from fn rolls back the records already edited.
func (m *Memory) MutateMany(ctx context.Context, c ledger.CommunityID, members []ledger.MemberID, fn ledger.EditFunc) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(ctx); err != nil {
		return 0, err
	}

	undos := make(map[ledger.Key]undo)
	var updated []ledger.Key
	for _, member := range members {
		k := ledger.Key{Community: c, Member: member}
		if _, seen := undos[k]; seen {
			continue
		}
		prev, existed := m.records.Lookup(k)
		work := prev.Clone()
		if err := fn(member, &work); err != nil {
			m.restore(undos)
			return 0, err
		}
		undos[k] = undo{rec: prev, existed: existed}
		updated = append(updated, k)
		m.put(k, work)
	}
	return m.commit(ctx, updated, undos)
}

// Delete removes the listed records.
func (m *Memory) Delete(ctx context.Context, c ledger.CommunityID, members ...ledger.MemberID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(ctx); err != nil {
		return 0, err
	}

	undos := make(map[ledger.Key]undo)
	var deleted []ledger.Key
	for _, member := range members {
		k := ledger.Key{Community: c, Member: member}
		prev, ok := m.records.Lookup(k)
		if !ok {
			continue
		}
		undos[k] = undo{rec: prev, existed: true}
		deleted = append(deleted, k)
		m.remove(k)
	}
	if len(deleted) == 0 {
		return 0, nil
	}
	if err := m.checkpoint(ctx, ledger.Checkpoint{Deleted: deleted}); err != nil {
		m.restore(undos)
		return 0, err
	}
	return len(deleted), nil
}

// Snapshot returns the community's records ordered by member ID.
func (m *Memory) Snapshot(ctx context.Context, c ledger.CommunityID) ([]ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(ctx); err != nil {
		return nil, err
	}
	return m.records.Entries(c), nil
}

// Communities lists every community with records.
func (m *Memory) Communities(ctx context.Context) ([]ledger.CommunityID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(ctx); err != nil {
		return nil, err
	}
	return m.records.Communities(), nil
}

// Document returns a deep copy of the ledger.
func (m *Memory) Document(ctx context.Context) (ledger.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(ctx); err != nil {
		return nil, err
	}
	return m.records.Clone(), nil
}

// Persist writes a full checkpoint.
func (m *Memory) Persist(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(ctx); err != nil {
		return err
	}
	return m.checkpoint(ctx, ledger.Checkpoint{Full: true})
}

// Load restores the persisted ledger. Absent state is an empty ledger.
// Corrupt state also leaves an empty ledger, and the *CorruptStoreError is
// returned so the caller can log it and carry on.
func (m *Memory) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.usable(ctx); err != nil {
		return err
	}

	m.records = make(ledger.Document)
	if m.persister == nil {
		return nil
	}
	doc, err := m.persister.Restore(ctx)
	if err != nil {
		var corrupt *ledger.CorruptStoreError
		if errors.As(err, &corrupt) {
			return err
		}
		return fmt.Errorf("restore ledger: %w", err)
	}
	for c, members := range doc {
		if len(members) == 0 {
			continue
		}
		m.records[c] = members
	}
	return nil
}

// Close closes the persister. Every committed mutation is already
// checkpointed, so nothing is written here: a store that loaded a corrupt
// ledger and was never mutated leaves the persisted state as it found it.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.persister == nil {
		return nil
	}
	return m.persister.Close()
}

// =============================================================================
// INTERNALS (callers hold m.mu)
// =============================================================================

type undo struct {
	rec     ledger.BalanceRecord
	existed bool
}

func (m *Memory) usable(ctx context.Context) error {
	if m.closed {
		return ledger.ErrClosed
	}
	return ctx.Err()
}

func (m *Memory) put(k ledger.Key, rec ledger.BalanceRecord) {
	members, ok := m.records[k.Community]
	if !ok {
		members = make(map[ledger.MemberID]ledger.BalanceRecord)
		m.records[k.Community] = members
	}
	members[k.Member] = rec
}

func (m *Memory) remove(k ledger.Key) {
	members, ok := m.records[k.Community]
	if !ok {
		return
	}
	delete(members, k.Member)
	if len(members) == 0 {
		delete(m.records, k.Community)
	}
}

func (m *Memory) restore(undos map[ledger.Key]undo) {
	for k, u := range undos {
		if u.existed {
			m.put(k, u.rec)
		} else {
			m.remove(k)
		}
	}
}

func (m *Memory) commit(ctx context.Context, updated []ledger.Key, undos map[ledger.Key]undo) (int, error) {
	if len(updated) == 0 {
		return 0, nil
	}
	if err := m.checkpoint(ctx, ledger.Checkpoint{Updated: updated}); err != nil {
		m.restore(undos)
		return 0, err
	}
	return len(updated), nil
}

func (m *Memory) checkpoint(ctx context.Context, cp ledger.Checkpoint) error {
	if m.persister == nil {
		return nil
	}
	cp.Ledger = m.records
	if err := m.persister.Persist(ctx, cp); err != nil {
		return fmt.Errorf("%w: %w", ledger.ErrPersistFailed, err)
	}
	return nil
}
