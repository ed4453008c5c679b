/*
Package claim implements the once-per-UTC-day currency claim.

PURPOSE:
  A member claims once per calendar day (UTC). The reward is priced by the
  configured rewards.Policy from the member's streak of consecutive days.

RULES (applied inside one Store.Mutate, atomic with the sweep):
  1. today = UTC day of now
  2. last claim on or after today -> *ledger.AlreadyClaimedError, no change
  3. last claim before yesterday -> streak resets to 0 (lazy lapse, so the
     streak is correct even if the sweep has not run yet)
  4. reward = policy.Reward(streak)
  5. balance += reward, lifetime += reward, last claim = today, streak += 1

The capability check ("eligible") belongs to the caller.

SEE ALSO:
  - rewards/: pricing
  - sweep/: eager lapses
*/
package claim

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/warp/clanpoints/ledger"
	"github.com/warp/clanpoints/metrics"
	"github.com/warp/clanpoints/rewards"
)

// Result describes a successful claim.
type Result struct {
	Reward         int64
	NewBalance     int64
	NewStreak      int
	NextEligibleAt ledger.Date
}

// Engine performs daily claims against a Store.
type Engine struct {
	Store   ledger.Store
	Policy  rewards.Policy
	Metrics *metrics.Metrics // optional
	Logger  *slog.Logger
}

// NewEngine creates an Engine. m may be nil.
func NewEngine(store ledger.Store, policy rewards.Policy, m *metrics.Metrics) *Engine {
	return &Engine{
		Store:   store,
		Policy:  policy,
		Metrics: m,
		Logger:  slog.Default().With("component", "claim"),
	}
}

// Claim awards the daily reward to member, or fails with
// *ledger.AlreadyClaimedError if they already claimed on now's UTC day.
func (e *Engine) Claim(ctx context.Context, c ledger.CommunityID, m ledger.MemberID, now time.Time) (Result, error) {
	today := ledger.DateOf(now)
	var reward int64

	rec, err := e.Store.Mutate(ctx, c, m, func(r *ledger.BalanceRecord) error {
		if r.ClaimedOn(today) {
			return &ledger.AlreadyClaimedError{
				Community:      c,
				Member:         m,
				LastClaimed:    *r.LastClaimed,
				NextEligibleAt: r.LastClaimed.AddDays(1),
			}
		}
		if r.Lapsed(today) {
			r.Streak = 0
		}
		reward = e.Policy.Reward(r.Streak)
		if err := r.Credit(reward); err != nil {
			return err
		}
		r.LastClaimed = today.Ptr()
		r.Streak++
		return nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrAlreadyClaimedToday) {
			e.Metrics.ObserveClaim(metrics.ClaimAlreadyClaimed, 0)
		} else {
			e.Metrics.ObserveClaim(metrics.ClaimError, 0)
			e.logger().Error("claim failed", "community", c, "member", m, "error", err)
		}
		return Result{}, err
	}

	e.Metrics.ObserveClaim(metrics.ClaimOK, reward)
	return Result{
		Reward:         reward,
		NewBalance:     rec.Balance,
		NewStreak:      rec.Streak,
		NextEligibleAt: today.AddDays(1),
	}, nil
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}
