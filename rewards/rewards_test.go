package rewards_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/clanpoints/rewards"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newStreak(t *testing.T, base int64, multiplier float64, limit int) rewards.Streak {
	t.Helper()
	p, err := rewards.NewStreak(base, multiplier, limit)
	require.NoError(t, err)
	return p
}

// =============================================================================
// FLAT POLICY
// =============================================================================

func TestFlat_IgnoresStreak(t *testing.T) {
	p := rewards.Flat{Amount: 10}

	for _, streak := range []int{0, 1, 5, 100} {
		assert.Equal(t, int64(10), p.Reward(streak), "streak %d", streak)
	}
	assert.Equal(t, rewards.KindFlat, p.Kind())
}

// =============================================================================
// STREAK POLICY
// =============================================================================

func TestStreak_Reward(t *testing.T) {
	// GIVEN: base 10, multiplier 0.1, cap 10
	p := newStreak(t, 10, 0.1, 10)

	tests := []struct {
		streak int
		want   int64
	}{
		{0, 10},
		{1, 11},
		{3, 13},
		{7, 17},
		{10, 20},
		{11, 20},
		{50, 20},
		{-4, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Reward(tt.streak), "streak %d", tt.streak)
	}
}

func TestStreak_FloorsFractionalRewards(t *testing.T) {
	// GIVEN: base 7, multiplier 0.15
	p := newStreak(t, 7, 0.15, 5)

	// WHEN/THEN: 7 * 1.45 = 10.15 floors to 10
	assert.Equal(t, int64(10), p.Reward(3))
	// 7 * 1.75 = 12.25 floors to 12 (capped at 5)
	assert.Equal(t, int64(12), p.Reward(9))
}

func TestStreak_MonotonicUntilCap(t *testing.T) {
	p := newStreak(t, 10, 0.1, 10)

	prev := p.Reward(0)
	for s := 1; s <= 15; s++ {
		got := p.Reward(s)
		assert.GreaterOrEqual(t, got, prev, "streak %d", s)
		if s > 10 {
			assert.Equal(t, p.Reward(10), got, "streak %d beyond cap", s)
		}
		prev = got
	}
}

func TestStreak_ExactDecimalMultiplier(t *testing.T) {
	// 0.1 * 7 in float64 is 0.7000000000000001; in decimal it is 0.7.
	p := rewards.Streak{Base: 10, Multiplier: decimal.RequireFromString("0.1"), Cap: 10}
	assert.Equal(t, int64(17), p.Reward(7))
}

func TestNewStreak_RejectsNegativeParameters(t *testing.T) {
	_, err := rewards.NewStreak(-1, 0.1, 10)
	assert.ErrorIs(t, err, rewards.ErrInvalidPolicy)

	_, err = rewards.NewStreak(10, -0.1, 10)
	assert.ErrorIs(t, err, rewards.ErrInvalidPolicy)

	_, err = rewards.NewStreak(10, 0.1, -1)
	assert.ErrorIs(t, err, rewards.ErrInvalidPolicy)
}

// =============================================================================
// FACTORY
// =============================================================================

func TestNewPolicy(t *testing.T) {
	p, err := rewards.NewPolicy(rewards.Options{Base: 25})
	require.NoError(t, err)
	assert.Equal(t, rewards.KindFlat, p.Kind())
	assert.Equal(t, int64(25), p.Reward(9))

	p, err = rewards.NewPolicy(rewards.Options{Kind: rewards.KindStreak, Base: 10, Multiplier: 0.1, Cap: 10})
	require.NoError(t, err)
	assert.Equal(t, rewards.KindStreak, p.Kind())
	assert.Equal(t, int64(13), p.Reward(3))

	_, err = rewards.NewPolicy(rewards.Options{Kind: "lottery"})
	assert.ErrorIs(t, err, rewards.ErrUnknownPolicy)

	_, err = rewards.NewPolicy(rewards.Options{Kind: rewards.KindFlat, Base: -3})
	assert.ErrorIs(t, err, rewards.ErrInvalidPolicy)
}

// =============================================================================
// TIERS
// =============================================================================

func TestParseTiers_TierFor(t *testing.T) {
	tiers, err := rewards.ParseTiers(map[string]string{
		"100":  "Member",
		"500":  "Veteran",
		"1000": "Elder",
	})
	require.NoError(t, err)
	require.Len(t, tiers, 3)
	assert.Equal(t, int64(1000), tiers[0].Threshold)

	_, ok := tiers.TierFor(99)
	assert.False(t, ok)

	tier, ok := tiers.TierFor(100)
	require.True(t, ok)
	assert.Equal(t, "Member", tier.Name)

	tier, ok = tiers.TierFor(999)
	require.True(t, ok)
	assert.Equal(t, "Veteran", tier.Name)

	tier, ok = tiers.TierFor(5000)
	require.True(t, ok)
	assert.Equal(t, "Elder", tier.Name)
}

func TestParseTiers_RejectsBadThresholds(t *testing.T) {
	_, err := rewards.ParseTiers(map[string]string{"lots": "Elder"})
	assert.ErrorIs(t, err, rewards.ErrInvalidTier)

	_, err = rewards.ParseTiers(map[string]string{"-5": "Elder"})
	assert.ErrorIs(t, err, rewards.ErrInvalidTier)

	_, err = rewards.ParseTiers(map[string]string{"5": " "})
	assert.ErrorIs(t, err, rewards.ErrInvalidTier)
}

func TestTiers_Empty(t *testing.T) {
	tiers, err := rewards.ParseTiers(nil)
	require.NoError(t, err)
	_, ok := tiers.TierFor(1 << 40)
	assert.False(t, ok)
}
