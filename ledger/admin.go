/*
admin.go - Administrative ledger operations

PURPOSE:
  Grants, deductions, resets and pruning. These are the only ways besides
  the daily claim and the lapse sweep that currency or claim state changes.

RULES:
  Grant:            amount >= 0; balance and lifetime both increase
  Deduct:           amount >= 0, reason required, amount <= balance
  ResetBalances:    backup first, then balance = 0 (lifetime untouched)
  ResetDailyClaims: last claim and streak cleared for every member
  Prune:            delete records of members that left the community

Every successful mutation is appended to the audit log. An audit failure
is logged but does not fail the operation: the ledger change is already
durable at that point.

SEE ALSO:
  - bot/dispatcher.go: capability checks and notifications around these
*/
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Admin performs administrative mutations against a Store.
type Admin struct {
	Store      Store
	Audit      AuditLog // optional
	BackupPath string   // where ResetBalances writes its dump; "" disables

	Now    func() time.Time
	Logger *slog.Logger
}

// NewAdmin creates an Admin. audit may be nil.
func NewAdmin(store Store, audit AuditLog, backupPath string) *Admin {
	return &Admin{
		Store:      store,
		Audit:      audit,
		BackupPath: backupPath,
		Now:        time.Now,
		Logger:     slog.Default().With("component", "admin"),
	}
}

// =============================================================================
// REQUESTS
// =============================================================================

type GrantRequest struct {
	Community CommunityID
	Member    MemberID
	Amount    int64
	Reason    string
	Actor     MemberID
}

type GrantManyRequest struct {
	Community CommunityID
	Members   []MemberID
	Amount    int64
	Reason    string
	Actor     MemberID
}

type DeductRequest struct {
	Community CommunityID
	Member    MemberID
	Amount    int64
	Reason    string
	Actor     MemberID
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Balance returns the member's record without creating one.
func (a *Admin) Balance(ctx context.Context, c CommunityID, m MemberID) (BalanceRecord, bool, error) {
	return a.Store.Get(ctx, c, m)
}

// Grant credits a single member.
func (a *Admin) Grant(ctx context.Context, req GrantRequest) (BalanceRecord, error) {
	if req.Amount < 0 {
		return BalanceRecord{}, ErrNegativeAmount
	}
	rec, err := a.Store.Mutate(ctx, req.Community, req.Member, func(r *BalanceRecord) error {
		return r.Credit(req.Amount)
	})
	if err != nil {
		return BalanceRecord{}, err
	}
	a.audit(ctx, AuditEntry{
		Community: req.Community, Actor: req.Actor, Action: AuditGrant,
		Member: req.Member, Amount: req.Amount, Reason: req.Reason, Affected: 1,
	})
	return rec, nil
}

// GrantMany credits every listed member in one checkpoint.
func (a *Admin) GrantMany(ctx context.Context, req GrantManyRequest) (int, error) {
	if req.Amount < 0 {
		return 0, ErrNegativeAmount
	}
	n, err := a.Store.MutateMany(ctx, req.Community, req.Members, func(_ MemberID, r *BalanceRecord) error {
		return r.Credit(req.Amount)
	})
	if err != nil {
		return 0, err
	}
	a.audit(ctx, AuditEntry{
		Community: req.Community, Actor: req.Actor, Action: AuditGrant,
		Amount: req.Amount, Reason: req.Reason, Affected: n,
	})
	return n, nil
}

// Deduct debits a member. The balance never goes negative.
func (a *Admin) Deduct(ctx context.Context, req DeductRequest) (BalanceRecord, error) {
	if req.Amount < 0 {
		return BalanceRecord{}, ErrNegativeAmount
	}
	if req.Reason == "" {
		return BalanceRecord{}, ErrReasonRequired
	}
	rec, err := a.Store.Mutate(ctx, req.Community, req.Member, func(r *BalanceRecord) error {
		if req.Amount > r.Balance {
			return &InsufficientBalanceError{
				Community: req.Community,
				Member:    req.Member,
				Available: r.Balance,
				Requested: req.Amount,
			}
		}
		r.Balance -= req.Amount
		return nil
	})
	if err != nil {
		return BalanceRecord{}, err
	}
	a.audit(ctx, AuditEntry{
		Community: req.Community, Actor: req.Actor, Action: AuditDeduct,
		Member: req.Member, Amount: req.Amount, Reason: req.Reason, Affected: 1,
	})
	return rec, nil
}

// ResetBalances writes the backup dump, then zeroes every balance in the community.
func (a *Admin) ResetBalances(ctx context.Context, c CommunityID, actor MemberID) (int, error) {
	if a.BackupPath != "" {
		doc, err := a.Store.Document(ctx)
		if err != nil {
			return 0, err
		}
		if err := WriteBackupFile(a.BackupPath, doc); err != nil {
			return 0, fmt.Errorf("backup before reset: %w", err)
		}
	}
	n, err := a.Store.MutateAll(ctx, c, func(_ MemberID, r *BalanceRecord) bool {
		if r.Balance == 0 {
			return false
		}
		r.Balance = 0
		return true
	})
	if err != nil {
		return 0, err
	}
	a.audit(ctx, AuditEntry{Community: c, Actor: actor, Action: AuditResetBalances, Affected: n})
	return n, nil
}

// ResetDailyClaims reopens today's claim for everyone and clears streaks.
func (a *Admin) ResetDailyClaims(ctx context.Context, c CommunityID, actor MemberID) (int, error) {
	entries, err := a.Store.Snapshot(ctx, c)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, ErrNoLedger
	}
	n, err := a.Store.MutateAll(ctx, c, func(_ MemberID, r *BalanceRecord) bool {
		if r.LastClaimed == nil && r.Streak == 0 {
			return false
		}
		r.LastClaimed = nil
		r.Streak = 0
		return true
	})
	if err != nil {
		return 0, err
	}
	a.audit(ctx, AuditEntry{Community: c, Actor: actor, Action: AuditResetDailyClaims, Affected: n})
	return n, nil
}

// Prune deletes the records of every member for which keep returns false.
func (a *Admin) Prune(ctx context.Context, c CommunityID, keep func(MemberID) bool, actor MemberID) ([]MemberID, error) {
	entries, err := a.Store.Snapshot(ctx, c)
	if err != nil {
		return nil, err
	}
	var gone []MemberID
	for _, e := range entries {
		if !keep(e.Member) {
			gone = append(gone, e.Member)
		}
	}
	if len(gone) == 0 {
		return nil, nil
	}
	if _, err := a.Store.Delete(ctx, c, gone...); err != nil {
		return nil, err
	}
	a.audit(ctx, AuditEntry{Community: c, Actor: actor, Action: AuditPrune, Affected: len(gone)})
	return gone, nil
}

func (a *Admin) audit(ctx context.Context, e AuditEntry) {
	if a.Audit == nil {
		return
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	e.ID = uuid.NewString()
	e.Timestamp = now().UTC()
	if err := a.Audit.Append(ctx, e); err != nil {
		logger := a.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("audit append failed", "action", e.Action, "community", e.Community, "error", err)
	}
}
