/*
Package ledger provides the core points ledger.

PURPOSE:
  This package holds the domain types and contracts of the points economy:
  one BalanceRecord per (community, member), the Store that owns them, the
  administrative operations that move currency around, and the error
  taxonomy shared by the claim engine, the sweep and the command surface.

KEY CONCEPTS IN THIS FILE (types.go):
  - BalanceRecord: balance, lifetime total, last claim day, streak
  - CommunityID / MemberID: type-safe identifiers
  - Document: the full two-level mapping, as persisted
  - Entry: one (member, record) pair of a community snapshot

INVARIANTS:
  1. Balance >= 0. Deductions fail instead of going negative, and credits
     that would overflow fail with ErrAmountTooLarge.
  2. LifetimeEarned only grows (claims and grants). Resets and deductions
     never touch it, so LifetimeEarned >= Balance is NOT guaranteed.
  3. LastClaimed is nil or a UTC day <= today.
  4. At most one successful claim per member per UTC day.

USAGE:
  rec, err := st.Mutate(ctx, "guild-1", "user-42", func(r *ledger.BalanceRecord) error {
      return r.Credit(10)
  })

SEE ALSO:
  - store.go: Store and Persister contracts
  - admin.go: grant, deduct, resets, prune
  - errors.go: error taxonomy
  - ledger/store/memory.go: the Store implementation
*/
package ledger

import (
	"math"
	"sort"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CommunityID string
type MemberID string

// =============================================================================
// BALANCE RECORD
// =============================================================================

// BalanceRecord is one member's standing within one community.
type BalanceRecord struct {
	Balance        int64 `json:"balance"`
	LifetimeEarned int64 `json:"lifetime_earned"`
	LastClaimed    *Date `json:"last_claimed,omitempty"`
	Streak         int   `json:"streak"`
}

// Clone returns a copy that shares no memory with r.
func (r BalanceRecord) Clone() BalanceRecord {
	out := r
	if r.LastClaimed != nil {
		d := *r.LastClaimed
		out.LastClaimed = &d
	}
	return out
}

// Credit adds amount to both the balance and the lifetime total. A credit
// that would overflow either total fails with ErrAmountTooLarge and leaves
// the record unchanged.
func (r *BalanceRecord) Credit(amount int64) error {
	if amount < 0 {
		return ErrNegativeAmount
	}
	if amount > math.MaxInt64-r.Balance || amount > math.MaxInt64-r.LifetimeEarned {
		return ErrAmountTooLarge
	}
	r.Balance += amount
	r.LifetimeEarned += amount
	return nil
}

// ClaimedOn reports whether the last claim happened on or after day.
func (r BalanceRecord) ClaimedOn(day Date) bool {
	return r.LastClaimed != nil && r.LastClaimed.AfterOrEqual(day)
}

// Lapsed reports whether a full day was missed since the last claim,
// i.e. the last claim is earlier than yesterday.
func (r BalanceRecord) Lapsed(today Date) bool {
	return r.LastClaimed != nil && r.LastClaimed.Before(today.AddDays(-1))
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// Entry is one member's record in a community snapshot.
type Entry struct {
	Member MemberID
	Record BalanceRecord
}

// Key addresses a single record.
type Key struct {
	Community CommunityID
	Member    MemberID
}

// Document is the full ledger: community -> member -> record.
type Document map[CommunityID]map[MemberID]BalanceRecord

// Clone deep-copies the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for c, members := range d {
		cp := make(map[MemberID]BalanceRecord, len(members))
		for m, rec := range members {
			cp[m] = rec.Clone()
		}
		out[c] = cp
	}
	return out
}

// Lookup returns the record for k, if present.
func (d Document) Lookup(k Key) (BalanceRecord, bool) {
	members, ok := d[k.Community]
	if !ok {
		return BalanceRecord{}, false
	}
	rec, ok := members[k.Member]
	return rec, ok
}

// Entries returns the community's records ordered by member ID.
func (d Document) Entries(c CommunityID) []Entry {
	members := d[c]
	out := make([]Entry, 0, len(members))
	for m, rec := range members {
		out = append(out, Entry{Member: m, Record: rec.Clone()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Member < out[j].Member })
	return out
}

// Communities returns the document's community IDs in ascending order.
func (d Document) Communities() []CommunityID {
	out := make([]CommunityID, 0, len(d))
	for c := range d {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
