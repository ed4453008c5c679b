/*
store.go - Persistence contracts for balance records

PURPOSE:
  Defines the interface between the points logic and durable storage.
  Store owns every BalanceRecord (single writer). Persister is the
  durability backend a Store checkpoints through after every mutation.

KEY INTERFACES:
  Store:     in-memory owner of all records, atomic read-modify-write
  Persister: durable backend (JSON file, SQLite, Badger)
  AuditLog:  append-only trail of administrative mutations

ATOMICITY:
  Mutate and MutateAll run check-then-mutate-then-persist as one unit.
  A mutation whose checkpoint fails is rolled back, so no operation ever
  reports success for state that is not on disk.

CHECKPOINTS:
  Every mutation hands the Persister a Checkpoint: the full document plus
  the keys it updated or deleted. Whole-file backends rewrite everything,
  row and KV backends apply only the delta.

IMPLEMENTATIONS:
  - ledger/store/memory.go: the Store
  - store/jsonfile: whole-file JSON Persister (default)
  - store/sqlite: SQLite Persister and AuditLog
  - store/badger: Badger Persister

SEE ALSO:
  - admin.go: operations built on Store
  - claim/engine.go, sweep/sweep.go: the other writers
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Owner of all balance records
// =============================================================================

// MutateFunc edits a record in place. Returning an error aborts the
// mutation and leaves the stored record untouched.
type MutateFunc func(rec *BalanceRecord) error

// VisitFunc edits one record of a bulk mutation and reports whether it changed it.
type VisitFunc func(member MemberID, rec *BalanceRecord) bool

// EditFunc edits one record of a bulk mutation. Returning an error aborts
// the whole batch.
type EditFunc func(member MemberID, rec *BalanceRecord) error

// Store holds the ledger in memory and checkpoints it on every mutation.
// Returned records are copies; nobody outside the store holds a mutable reference.
type Store interface {
	// Get returns the record if present.
	Get(ctx context.Context, c CommunityID, m MemberID) (BalanceRecord, bool, error)

	// GetOrCreate returns the record, creating a zero record if absent.
	GetOrCreate(ctx context.Context, c CommunityID, m MemberID) (BalanceRecord, error)

	// Mutate applies fn atomically (creating the record lazily) and persists.
	Mutate(ctx context.Context, c CommunityID, m MemberID, fn MutateFunc) (BalanceRecord, error)

	// MutateAll visits every record of the community atomically and persists
	// once if anything changed. Returns the number of changed records.
	MutateAll(ctx context.Context, c CommunityID, fn VisitFunc) (int, error)

	// MutateMany applies fn to each listed member (creating records lazily)
	// atomically and persists once. An error from fn leaves every record
	// untouched. Returns the number of distinct members edited.
	MutateMany(ctx context.Context, c CommunityID, members []MemberID, fn EditFunc) (int, error)

	// Delete removes records and persists. Returns how many existed.
	Delete(ctx context.Context, c CommunityID, members ...MemberID) (int, error)

	// Snapshot returns the community's records ordered by member ID.
	Snapshot(ctx context.Context, c CommunityID) ([]Entry, error)

	// Communities lists every community with at least one record.
	Communities(ctx context.Context) ([]CommunityID, error)

	// Document returns a deep copy of the whole ledger.
	Document(ctx context.Context) (Document, error)

	// Persist writes a full checkpoint.
	Persist(ctx context.Context) error

	// Load replaces the in-memory state with the persisted one.
	// Malformed state leaves an empty store and returns *CorruptStoreError.
	Load(ctx context.Context) error

	// Close releases the backend. Mutations are already persisted.
	Close() error
}

// =============================================================================
// PERSISTER - Durable backend
// =============================================================================

// Checkpoint describes the state to make durable.
type Checkpoint struct {
	Ledger  Document // full state after the mutation; read-only
	Updated []Key
	Deleted []Key
	Full    bool // every record should be (re)written
}

// Persister makes ledger state durable.
type Persister interface {
	// Restore loads the persisted document. A missing store is an empty
	// document, not an error. Undecodable data is *CorruptStoreError.
	Restore(ctx context.Context) (Document, error)

	// Persist writes the checkpoint before returning.
	Persist(ctx context.Context, cp Checkpoint) error

	Close() error
}

// =============================================================================
// AUDIT LOG - Who moved currency, when and why
// =============================================================================

type AuditAction string

const (
	AuditGrant            AuditAction = "grant"
	AuditDeduct           AuditAction = "deduct"
	AuditResetBalances    AuditAction = "reset_balances"
	AuditResetDailyClaims AuditAction = "reset_daily_claims"
	AuditPrune            AuditAction = "prune"
)

// AuditEntry records one administrative mutation.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	Community CommunityID
	Actor     MemberID
	Action    AuditAction
	Member    MemberID // empty for community-wide actions
	Amount    int64
	Reason    string
	Affected  int
}

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	Community CommunityID
	Member    *MemberID
	Actions   []AuditAction
	Limit     int // 0 = no limit; newest entries first
}

// Matches reports whether e passes the filter (ignoring Limit).
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.Community != "" && e.Community != f.Community {
		return false
	}
	if f.Member != nil && e.Member != *f.Member {
		return false
	}
	if len(f.Actions) == 0 {
		return true
	}
	for _, a := range f.Actions {
		if a == e.Action {
			return true
		}
	}
	return false
}
