package rewards

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FLAT - Same reward every day
// =============================================================================

// Flat pays Amount for every claim regardless of streak.
type Flat struct {
	Amount int64
}

var _ Policy = Flat{}

func (f Flat) Reward(int) int64 { return f.Amount }
func (f Flat) Kind() Kind       { return KindFlat }

// =============================================================================
// STREAK - Reward grows with consecutive claims, up to a cap
// =============================================================================

// Streak pays Base scaled by the (capped) streak:
//
//	floor(Base * (1 + min(streak, Cap) * Multiplier))
type Streak struct {
	Base       int64
	Multiplier decimal.Decimal
	Cap        int
}

var _ Policy = Streak{}

// NewStreak builds a Streak policy from a float multiplier such as 0.1.
// The float is converted via its shortest decimal representation.
func NewStreak(base int64, multiplier float64, limit int) (Streak, error) {
	s := Streak{Base: base, Multiplier: decimal.NewFromFloat(multiplier), Cap: limit}
	if err := s.Validate(); err != nil {
		return Streak{}, err
	}
	return s, nil
}

func (s Streak) Reward(streak int) int64 {
	effective := min(max(streak, 0), max(s.Cap, 0))
	factor := decimal.NewFromInt(1).Add(decimal.NewFromInt(int64(effective)).Mul(s.Multiplier))
	return decimal.NewFromInt(s.Base).Mul(factor).Floor().IntPart()
}

func (s Streak) Kind() Kind { return KindStreak }

// Validate rejects parameters that could price a claim below zero.
func (s Streak) Validate() error {
	if s.Base < 0 {
		return fmt.Errorf("%w: negative base %d", ErrInvalidPolicy, s.Base)
	}
	if s.Multiplier.IsNegative() {
		return fmt.Errorf("%w: negative multiplier %s", ErrInvalidPolicy, s.Multiplier)
	}
	if s.Cap < 0 {
		return fmt.Errorf("%w: negative cap %d", ErrInvalidPolicy, s.Cap)
	}
	return nil
}
