/*
Package rewards prices daily claims and maps balances to rank tiers.

PURPOSE:
  The claim engine asks a Policy how much a claim is worth given the
  member's current streak. Tiers turn a balance into the rank a member is
  eligible for.

POLICIES:
  flat:   every claim pays the same amount
  streak: reward = floor(base * (1 + min(streak, cap) * multiplier))

  Both policies are fed the streak; only the streak policy prices with it.
  Arithmetic is done in decimal so 10 * (1 + 7 * 0.1) is exactly 17.

EXAMPLE FLOW (streak, base 10, multiplier 0.1, cap 10):
  streak 0 -> 10
  streak 3 -> 13
  streak 10 -> 20
  streak 25 -> 20 (capped)

SEE ALSO:
  - policies.go: Flat and Streak
  - factory.go: building a Policy from configuration
  - tiers.go: rank thresholds
*/
package rewards

import "errors"

// =============================================================================
// POLICY
// =============================================================================

// Kind names a reward policy in configuration.
type Kind string

const (
	KindFlat   Kind = "flat"
	KindStreak Kind = "streak"
)

// Policy prices one claim.
type Policy interface {
	// Reward returns the points paid for a claim made with the given
	// pre-claim streak (0 for a first or post-lapse claim).
	Reward(streak int) int64

	Kind() Kind
}

var (
	ErrUnknownPolicy = errors.New("unknown reward policy")
	ErrInvalidPolicy = errors.New("invalid reward policy")
	ErrInvalidTier   = errors.New("invalid rank threshold")
)
