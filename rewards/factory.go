package rewards

import "fmt"

// Options is the configuration-side description of a Policy.
type Options struct {
	Kind       Kind
	Base       int64   // flat amount, or the streak base
	Multiplier float64 // streak only
	Cap        int     // streak only
}

// NewPolicy builds the policy named by opts.Kind. An empty kind means flat.
func NewPolicy(opts Options) (Policy, error) {
	switch opts.Kind {
	case KindFlat, "":
		if opts.Base < 0 {
			return nil, fmt.Errorf("%w: negative amount %d", ErrInvalidPolicy, opts.Base)
		}
		return Flat{Amount: opts.Base}, nil
	case KindStreak:
		return NewStreak(opts.Base, opts.Multiplier, opts.Cap)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, opts.Kind)
	}
}
