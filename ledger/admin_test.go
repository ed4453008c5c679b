package ledger_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/clanpoints/ledger"
	"github.com/warp/clanpoints/ledger/store"
)

const guild ledger.CommunityID = "guild-1"

func newAdmin(t *testing.T) (*ledger.Admin, *store.Memory, *store.MemoryAudit) {
	t.Helper()
	st := store.NewMemory()
	t.Cleanup(func() { st.Close() })
	audit := store.NewMemoryAudit(0)
	a := ledger.NewAdmin(st, audit, filepath.Join(t.TempDir(), "points_backup.txt"))
	a.Now = func() time.Time { return time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC) }
	return a, st, audit
}

func TestAdmin_GrantCreatesLazilyAndAudits(t *testing.T) {
	a, _, audit := newAdmin(t)
	ctx := context.Background()

	rec, err := a.Grant(ctx, ledger.GrantRequest{Community: guild, Member: "ada", Amount: 15, Reason: "event", Actor: "admin"})

	require.NoError(t, err)
	assert.Equal(t, int64(15), rec.Balance)
	assert.Equal(t, int64(15), rec.LifetimeEarned)
	assert.Nil(t, rec.LastClaimed)

	entries, err := audit.Query(ctx, ledger.AuditFilter{Community: guild})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ID)
	assert.Equal(t, ledger.AuditGrant, entries[0].Action)
	assert.Equal(t, "event", entries[0].Reason)
	assert.Equal(t, time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC), entries[0].Timestamp)
}

func TestAdmin_NegativeAmountsRejected(t *testing.T) {
	a, st, _ := newAdmin(t)
	ctx := context.Background()

	_, err := a.Grant(ctx, ledger.GrantRequest{Community: guild, Member: "ada", Amount: -1})
	assert.ErrorIs(t, err, ledger.ErrNegativeAmount)
	_, err = a.GrantMany(ctx, ledger.GrantManyRequest{Community: guild, Members: []ledger.MemberID{"ada"}, Amount: -1})
	assert.ErrorIs(t, err, ledger.ErrNegativeAmount)
	_, err = a.Deduct(ctx, ledger.DeductRequest{Community: guild, Member: "ada", Amount: -1, Reason: "x"})
	assert.ErrorIs(t, err, ledger.ErrNegativeAmount)

	// No record was created by the rejected calls
	_, found, err := st.Get(ctx, guild, "ada")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAdmin_DeductNeverGoesNegative(t *testing.T) {
	a, _, _ := newAdmin(t)
	ctx := context.Background()
	_, err := a.Grant(ctx, ledger.GrantRequest{Community: guild, Member: "ada", Amount: 10})
	require.NoError(t, err)

	_, err = a.Deduct(ctx, ledger.DeductRequest{Community: guild, Member: "ada", Amount: 4})
	assert.ErrorIs(t, err, ledger.ErrReasonRequired)

	var short *ledger.InsufficientBalanceError
	_, err = a.Deduct(ctx, ledger.DeductRequest{Community: guild, Member: "ada", Amount: 11, Reason: "shop"})
	require.ErrorAs(t, err, &short)
	assert.Equal(t, int64(10), short.Available)
	assert.Equal(t, int64(11), short.Requested)

	rec, err := a.Deduct(ctx, ledger.DeductRequest{Community: guild, Member: "ada", Amount: 10, Reason: "shop"})
	require.NoError(t, err)
	assert.Zero(t, rec.Balance)
	assert.Equal(t, int64(10), rec.LifetimeEarned, "deductions never lower lifetime")
}

func TestAdmin_GrantNeverOverflows(t *testing.T) {
	a, st, audit := newAdmin(t)
	ctx := context.Background()
	_, err := a.Grant(ctx, ledger.GrantRequest{Community: guild, Member: "ada", Amount: math.MaxInt64})
	require.NoError(t, err)

	// WHEN: one more point is granted, alone or as part of a batch
	_, err = a.Grant(ctx, ledger.GrantRequest{Community: guild, Member: "ada", Amount: 1})
	assert.ErrorIs(t, err, ledger.ErrAmountTooLarge)
	_, err = a.GrantMany(ctx, ledger.GrantManyRequest{Community: guild, Members: []ledger.MemberID{"bob", "ada"}, Amount: 1})
	assert.ErrorIs(t, err, ledger.ErrAmountTooLarge)

	// THEN: ada keeps the maximum and bob got nothing
	rec, _, err := st.Get(ctx, guild, "ada")
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), rec.Balance)
	assert.Equal(t, int64(math.MaxInt64), rec.LifetimeEarned)
	_, found, err := st.Get(ctx, guild, "bob")
	require.NoError(t, err)
	assert.False(t, found)

	entries, err := audit.Query(ctx, ledger.AuditFilter{Community: guild})
	require.NoError(t, err)
	assert.Len(t, entries, 1, "rejected grants are not audited")
}

func TestAdmin_GrantMany(t *testing.T) {
	a, st, _ := newAdmin(t)
	ctx := context.Background()

	n, err := a.GrantMany(ctx, ledger.GrantManyRequest{Community: guild, Members: []ledger.MemberID{"ada", "bob"}, Amount: 3})

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	entries, err := st.Snapshot(ctx, guild)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, int64(3), e.Record.Balance)
	}
}

func TestAdmin_ResetBalancesBacksUpFirst(t *testing.T) {
	a, st, _ := newAdmin(t)
	ctx := context.Background()
	_, err := a.Grant(ctx, ledger.GrantRequest{Community: guild, Member: "ada", Amount: 10})
	require.NoError(t, err)
	_, err = a.Grant(ctx, ledger.GrantRequest{Community: "guild-2", Member: "cid", Amount: 4})
	require.NoError(t, err)

	n, err := a.ResetBalances(ctx, guild, "admin")

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	rec, _, err := st.Get(ctx, guild, "ada")
	require.NoError(t, err)
	assert.Zero(t, rec.Balance)
	assert.Equal(t, int64(10), rec.LifetimeEarned)

	other, _, err := st.Get(ctx, "guild-2", "cid")
	require.NoError(t, err)
	assert.Equal(t, int64(4), other.Balance, "other communities untouched")

	dump, err := os.ReadFile(a.BackupPath)
	require.NoError(t, err)
	assert.Contains(t, string(dump), "Community ID: guild-1\nMember ID: ada, Balance: 10, Lifetime: 10, Last Claimed: , Streak: 0\n")
}

func TestAdmin_ResetDailyClaims(t *testing.T) {
	a, st, _ := newAdmin(t)
	ctx := context.Background()

	_, err := a.ResetDailyClaims(ctx, guild, "admin")
	assert.ErrorIs(t, err, ledger.ErrNoLedger)

	_, err = st.Mutate(ctx, guild, "ada", func(r *ledger.BalanceRecord) error {
		if err := r.Credit(10); err != nil {
			return err
		}
		r.Streak = 5
		r.LastClaimed = ledger.NewDate(2025, 3, 10).Ptr()
		return nil
	})
	require.NoError(t, err)

	n, err := a.ResetDailyClaims(ctx, guild, "admin")

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	rec, _, err := st.Get(ctx, guild, "ada")
	require.NoError(t, err)
	assert.Nil(t, rec.LastClaimed)
	assert.Zero(t, rec.Streak)
	assert.Equal(t, int64(10), rec.Balance)
}

func TestAdmin_Prune(t *testing.T) {
	a, st, audit := newAdmin(t)
	ctx := context.Background()
	for _, m := range []ledger.MemberID{"ada", "bob", "cid"} {
		_, err := a.Grant(ctx, ledger.GrantRequest{Community: guild, Member: m, Amount: 1})
		require.NoError(t, err)
	}

	gone, err := a.Prune(ctx, guild, func(m ledger.MemberID) bool { return m != "bob" }, "admin")

	require.NoError(t, err)
	assert.Equal(t, []ledger.MemberID{"bob"}, gone)
	entries, err := st.Snapshot(ctx, guild)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	pruned, err := audit.Query(ctx, ledger.AuditFilter{Actions: []ledger.AuditAction{ledger.AuditPrune}})
	require.NoError(t, err)
	require.Len(t, pruned, 1)
	assert.Equal(t, 1, pruned[0].Affected)
}
