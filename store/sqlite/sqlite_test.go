package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/clanpoints/ledger"
	"github.com/warp/clanpoints/ledger/store"
	"github.com/warp/clanpoints/store/sqlite"
)

func TestStore_RoundTripThroughLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	// GIVEN: a ledger with two members, one of them later pruned
	s, err := sqlite.New(path)
	require.NoError(t, err)
	st := store.NewPersistent(s)
	_, err = st.Mutate(ctx, "guild-1", "ada", func(r *ledger.BalanceRecord) error {
		if err := r.Credit(25); err != nil {
			return err
		}
		r.Streak = 4
		r.LastClaimed = ledger.NewDate(2025, 3, 9).Ptr()
		return nil
	})
	require.NoError(t, err)
	_, err = st.Mutate(ctx, "guild-1", "bob", func(r *ledger.BalanceRecord) error {
		return r.Credit(5)
	})
	require.NoError(t, err)
	_, err = st.Delete(ctx, "guild-1", "bob")
	require.NoError(t, err)
	require.NoError(t, st.Close())

	// WHEN: the database is reopened
	s, err = sqlite.New(path)
	require.NoError(t, err)
	defer s.Close()
	doc, err := s.Restore(ctx)

	// THEN: the surviving record is intact
	require.NoError(t, err)
	require.Len(t, doc["guild-1"], 1)
	ada := doc["guild-1"]["ada"]
	assert.Equal(t, int64(25), ada.Balance)
	assert.Equal(t, int64(25), ada.LifetimeEarned)
	assert.Equal(t, 4, ada.Streak)
	require.NotNil(t, ada.LastClaimed)
	assert.Equal(t, "2025-03-09", ada.LastClaimed.String())
}

func TestStore_NeverClaimedIsNull(t *testing.T) {
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	doc := ledger.Document{"guild-1": {"ada": {Balance: 1, LifetimeEarned: 1}}}
	require.NoError(t, s.Persist(ctx, ledger.Checkpoint{Ledger: doc, Full: true}))

	got, err := s.Restore(ctx)
	require.NoError(t, err)
	assert.Nil(t, got["guild-1"]["ada"].LastClaimed)
}

func TestStore_AuditLog(t *testing.T) {
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	base := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	ada := ledger.MemberID("ada")
	entries := []ledger.AuditEntry{
		{ID: "1", Timestamp: base, Community: "guild-1", Actor: "admin", Action: ledger.AuditGrant, Member: ada, Amount: 10, Affected: 1},
		{ID: "2", Timestamp: base.Add(time.Minute), Community: "guild-1", Actor: "admin", Action: ledger.AuditDeduct, Member: ada, Amount: 4, Reason: "shop", Affected: 1},
		{ID: "3", Timestamp: base.Add(2 * time.Minute), Community: "guild-1", Actor: "admin", Action: ledger.AuditResetBalances, Affected: 7},
		{ID: "4", Timestamp: base.Add(3 * time.Minute), Community: "guild-2", Actor: "root", Action: ledger.AuditGrant, Member: ada, Amount: 1, Affected: 1},
	}
	for _, e := range entries {
		require.NoError(t, s.Append(ctx, e))
	}

	all, err := s.Query(ctx, ledger.AuditFilter{Community: "guild-1"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"3", "2", "1"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, base.Add(2*time.Minute), all[0].Timestamp)
	assert.Equal(t, 7, all[0].Affected)

	forAda, err := s.Query(ctx, ledger.AuditFilter{Community: "guild-1", Member: &ada, Actions: []ledger.AuditAction{ledger.AuditDeduct}})
	require.NoError(t, err)
	require.Len(t, forAda, 1)
	assert.Equal(t, "shop", forAda[0].Reason)
	assert.Equal(t, int64(4), forAda[0].Amount)

	limited, err := s.Query(ctx, ledger.AuditFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "4", limited[0].ID)
}
