package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/clanpoints/ledger"
	"github.com/warp/clanpoints/ledger/store"
)

const guild ledger.CommunityID = "guild-1"

// recordingPersister keeps the last checkpoint and can be told to fail.
type recordingPersister struct {
	restored    ledger.Document
	restoreErr  error
	fail        bool
	checkpoints []ledger.Checkpoint
	closed      bool
}

func (p *recordingPersister) Restore(context.Context) (ledger.Document, error) {
	return p.restored, p.restoreErr
}

func (p *recordingPersister) Persist(_ context.Context, cp ledger.Checkpoint) error {
	if p.fail {
		return errors.New("disk full")
	}
	cp.Ledger = cp.Ledger.Clone()
	p.checkpoints = append(p.checkpoints, cp)
	return nil
}

func (p *recordingPersister) Close() error {
	p.closed = true
	return nil
}

func credit(amount int64) ledger.MutateFunc {
	return func(r *ledger.BalanceRecord) error {
		return r.Credit(amount)
	}
}

func TestMemory_MutateCreatesLazilyAndCheckpoints(t *testing.T) {
	p := &recordingPersister{}
	st := store.NewPersistent(p)
	ctx := context.Background()

	rec, err := st.Mutate(ctx, guild, "ada", credit(10))

	require.NoError(t, err)
	assert.Equal(t, int64(10), rec.Balance)
	assert.Equal(t, int64(10), rec.LifetimeEarned)
	require.Len(t, p.checkpoints, 1)
	assert.Equal(t, []ledger.Key{{Community: guild, Member: "ada"}}, p.checkpoints[0].Updated)
	assert.False(t, p.checkpoints[0].Full)
}

func TestMemory_MutateErrorLeavesRecordUntouched(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	_, err := st.Mutate(ctx, guild, "ada", credit(10))
	require.NoError(t, err)

	_, err = st.Mutate(ctx, guild, "ada", func(r *ledger.BalanceRecord) error {
		r.Balance = 999
		return ledger.ErrInsufficientBalance
	})

	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	rec, _, err := st.Get(ctx, guild, "ada")
	require.NoError(t, err)
	assert.Equal(t, int64(10), rec.Balance)
}

func TestMemory_PersistFailureRollsBack(t *testing.T) {
	p := &recordingPersister{}
	st := store.NewPersistent(p)
	ctx := context.Background()
	_, err := st.Mutate(ctx, guild, "ada", credit(10))
	require.NoError(t, err)

	// WHEN: the backend starts failing
	p.fail = true
	_, err = st.Mutate(ctx, guild, "ada", credit(5))
	require.ErrorIs(t, err, ledger.ErrPersistFailed)
	_, err = st.Mutate(ctx, guild, "bob", credit(5))
	require.ErrorIs(t, err, ledger.ErrPersistFailed)
	n, err := st.Delete(ctx, guild, "ada")
	require.ErrorIs(t, err, ledger.ErrPersistFailed)
	assert.Zero(t, n)

	// THEN: memory still matches the last durable state
	rec, found, err := st.Get(ctx, guild, "ada")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(10), rec.Balance)
	_, found, err = st.Get(ctx, guild, "bob")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemory_BulkMutations(t *testing.T) {
	p := &recordingPersister{}
	st := store.NewPersistent(p)
	ctx := context.Background()

	n, err := st.MutateMany(ctx, guild, []ledger.MemberID{"ada", "bob", "ada"}, func(_ ledger.MemberID, r *ledger.BalanceRecord) error {
		return r.Credit(3)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n, "duplicates are visited once")
	assert.Len(t, p.checkpoints, 1)

	n, err = st.MutateAll(ctx, guild, func(m ledger.MemberID, r *ledger.BalanceRecord) bool {
		if m != "bob" {
			return false
		}
		r.Balance = 0
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, p.checkpoints, 2)

	// Nothing changed: no checkpoint
	n, err = st.MutateAll(ctx, guild, func(ledger.MemberID, *ledger.BalanceRecord) bool { return false })
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, p.checkpoints, 2)

	entries, err := st.Snapshot(ctx, guild)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.MemberID("ada"), entries[0].Member)
	assert.Equal(t, int64(3), entries[0].Record.Balance)
	assert.Equal(t, int64(0), entries[1].Record.Balance)
	assert.Equal(t, int64(3), entries[1].Record.LifetimeEarned)
}

func TestMemory_MutateManyErrorRollsBackBatch(t *testing.T) {
	p := &recordingPersister{}
	st := store.NewPersistent(p)
	ctx := context.Background()
	_, err := st.Mutate(ctx, guild, "bob", credit(5))
	require.NoError(t, err)

	// WHEN: the last member of the batch fails
	n, err := st.MutateMany(ctx, guild, []ledger.MemberID{"ada", "bob", "cid"}, func(m ledger.MemberID, r *ledger.BalanceRecord) error {
		if m == "cid" {
			return ledger.ErrAmountTooLarge
		}
		return r.Credit(1)
	})

	// THEN: nothing of the batch was applied or persisted
	require.ErrorIs(t, err, ledger.ErrAmountTooLarge)
	assert.Zero(t, n)
	assert.Len(t, p.checkpoints, 1)
	bob, _, err := st.Get(ctx, guild, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(5), bob.Balance)
	_, found, err := st.Get(ctx, guild, "ada")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemory_GetReturnsCopies(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	_, err := st.Mutate(ctx, guild, "ada", func(r *ledger.BalanceRecord) error {
		r.LastClaimed = ledger.NewDate(2025, 3, 10).Ptr()
		return nil
	})
	require.NoError(t, err)

	rec, _, err := st.Get(ctx, guild, "ada")
	require.NoError(t, err)
	*rec.LastClaimed = ledger.NewDate(2000, 1, 1)

	again, _, err := st.Get(ctx, guild, "ada")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", again.LastClaimed.String())
}

func TestMemory_LoadCorruptStartsEmpty(t *testing.T) {
	p := &recordingPersister{restoreErr: &ledger.CorruptStoreError{Source: "points.json", Err: errors.New("bad json")}}
	st := store.NewPersistent(p)

	err := st.Load(context.Background())

	assert.ErrorIs(t, err, ledger.ErrCorruptStore)
	communities, err := st.Communities(context.Background())
	require.NoError(t, err)
	assert.Empty(t, communities)
}

func TestMemory_LoadRestoresDocument(t *testing.T) {
	p := &recordingPersister{restored: ledger.Document{
		guild:     {"ada": {Balance: 7, LifetimeEarned: 9}},
		"guild-2": {},
	}}
	st := store.NewPersistent(p)

	require.NoError(t, st.Load(context.Background()))

	communities, err := st.Communities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []ledger.CommunityID{guild}, communities)
}

func TestMemory_CloseWritesNothingAndRejectsUse(t *testing.T) {
	p := &recordingPersister{}
	st := store.NewPersistent(p)
	_, err := st.Mutate(context.Background(), guild, "ada", credit(1))
	require.NoError(t, err)

	require.NoError(t, st.Close())
	require.NoError(t, st.Close())

	assert.True(t, p.closed)
	assert.Len(t, p.checkpoints, 1, "only the mutation was checkpointed")
	_, _, err = st.Get(context.Background(), guild, "ada")
	assert.ErrorIs(t, err, ledger.ErrClosed)
}

func TestMemory_CloseAfterCorruptLoadKeepsPersistedState(t *testing.T) {
	p := &recordingPersister{restoreErr: &ledger.CorruptStoreError{Source: "points.json", Err: errors.New("bad json")}}
	st := store.NewPersistent(p)
	require.ErrorIs(t, st.Load(context.Background()), ledger.ErrCorruptStore)

	require.NoError(t, st.Close())

	assert.Empty(t, p.checkpoints)
}

func TestMemoryAudit_CapacityAndFilter(t *testing.T) {
	a := store.NewMemoryAudit(2)
	ctx := context.Background()
	for i, action := range []ledger.AuditAction{ledger.AuditGrant, ledger.AuditDeduct, ledger.AuditGrant} {
		require.NoError(t, a.Append(ctx, ledger.AuditEntry{ID: string(rune('a' + i)), Community: guild, Action: action}))
	}

	all, err := a.Query(ctx, ledger.AuditFilter{Community: guild})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "c", all[0].ID, "newest first")
	assert.Equal(t, "b", all[1].ID)

	grants, err := a.Query(ctx, ledger.AuditFilter{Actions: []ledger.AuditAction{ledger.AuditGrant}})
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "c", grants[0].ID)
}
