/*
Package sweep lapses broken streaks.

PURPOSE:
  A member who misses a full UTC day loses their streak. The claim engine
  already applies this lazily; the sweep applies it eagerly so the ledger
  (and the leaderboard) reflect lapses without waiting for the next claim.

LAPSE MODES:
  clear   (default): streak = 0, last claim = nil
  restamp (legacy):  streak = 0, last claim = today

  Under restamp a lapsed member cannot claim again until tomorrow, as in
  the first releases. clear lets them claim immediately.

IDEMPOTENCE:
  A second sweep on the same day finds nothing to lapse: cleared records
  have no last claim, restamped ones were stamped today.

SEE ALSO:
  - scheduler.go: periodic execution
  - claim/engine.go: the lazy lapse
*/
package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/clanpoints/ledger"
)

// LapseMode selects what a lapse does to the last-claim day.
type LapseMode string

const (
	LapseClear   LapseMode = "clear"
	LapseRestamp LapseMode = "restamp"
)

// ParseLapseMode accepts "clear", "restamp" or "" (clear).
func ParseLapseMode(s string) (LapseMode, error) {
	switch LapseMode(s) {
	case "", LapseClear:
		return LapseClear, nil
	case LapseRestamp:
		return LapseRestamp, nil
	default:
		return "", fmt.Errorf("unknown lapse mode %q", s)
	}
}

// Report summarizes one community's sweep.
type Report struct {
	Community ledger.CommunityID
	Scanned   int
	Lapsed    int
	Day       ledger.Date
}

// Sweeper applies lapses to a Store.
type Sweeper struct {
	Store ledger.Store
	Mode  LapseMode
}

func NewSweeper(store ledger.Store, mode LapseMode) *Sweeper {
	return &Sweeper{Store: store, Mode: mode}
}

// Sweep lapses every record of community c whose last claim is earlier
// than yesterday. All lapses are committed in one checkpoint.
func (s *Sweeper) Sweep(ctx context.Context, c ledger.CommunityID, now time.Time) (Report, error) {
	today := ledger.DateOf(now)
	report := Report{Community: c, Day: today}

	n, err := s.Store.MutateAll(ctx, c, func(_ ledger.MemberID, r *ledger.BalanceRecord) bool {
		report.Scanned++
		if !r.Lapsed(today) {
			return false
		}
		r.Streak = 0
		if s.Mode == LapseRestamp {
			r.LastClaimed = today.Ptr()
		} else {
			r.LastClaimed = nil
		}
		return true
	})
	if err != nil {
		return report, fmt.Errorf("sweep %s: %w", c, err)
	}
	report.Lapsed = n
	return report, nil
}

// SweepAll sweeps every community. It keeps going after a failure and
// returns the reports of the communities that succeeded together with an
// *IterationError naming the ones that did not.
func (s *Sweeper) SweepAll(ctx context.Context, now time.Time) ([]Report, error) {
	communities, err := s.Store.Communities(ctx)
	if err != nil {
		return nil, &IterationError{Err: fmt.Errorf("list communities: %w", err)}
	}

	var (
		reports []Report
		failed  = make(map[ledger.CommunityID]error)
	)
	for _, c := range communities {
		report, err := s.Sweep(ctx, c, now)
		if err != nil {
			failed[c] = err
			continue
		}
		reports = append(reports, report)
	}
	if len(failed) > 0 {
		return reports, &IterationError{Failed: failed}
	}
	return reports, nil
}
