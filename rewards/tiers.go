package rewards

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// =============================================================================
// RANK TIERS
// =============================================================================

// Tier is a rank a member becomes eligible for at Threshold points.
type Tier struct {
	Threshold int64
	Name      string
}

// Tiers is ordered by descending threshold.
type Tiers []Tier

// ParseTiers builds Tiers from the configured threshold map
// ("500" -> "Veteran"). Keys must be non-negative integers.
func ParseTiers(thresholds map[string]string) (Tiers, error) {
	out := make(Tiers, 0, len(thresholds))
	for raw, name := range thresholds {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTier, raw)
		}
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("%w: empty rank name for %d", ErrInvalidTier, n)
		}
		out = append(out, Tier{Threshold: n, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Threshold > out[j].Threshold })
	return out, nil
}

// TierFor returns the highest tier whose threshold points reaches.
func (t Tiers) TierFor(points int64) (Tier, bool) {
	for _, tier := range t {
		if points >= tier.Threshold {
			return tier, true
		}
	}
	return Tier{}, false
}
