package bot

import (
	"errors"
	"fmt"

	"github.com/warp/clanpoints/ledger"
)

var (
	// ErrUnauthorized is returned when the caller lacks the capability.
	// The reply never says which capability was missing.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrChannelNotAllowed is returned for commands outside the allowed channels.
	ErrChannelNotAllowed = errors.New("channel not allowed")

	// ErrRoleNotEligible is returned by grant-role for roles outside the
	// grantable set.
	ErrRoleNotEligible = errors.New("role not eligible for distribution")

	// ErrUnknownRole is returned by grant-role for a role the directory does not know.
	ErrUnknownRole = errors.New("unknown role")
)

// UserMessage converts an error into the reply shown to the caller.
// Unexpected errors get a generic message; details go to the log.
func UserMessage(err error, unit string) string {
	var (
		already *ledger.AlreadyClaimedError
		short   *ledger.InsufficientBalanceError
		usage   *UsageError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &already):
		return fmt.Sprintf("You have already claimed your daily %s for today, try again on %s (UTC).",
			unit, already.NextEligibleAt)
	case errors.As(err, &short):
		return fmt.Sprintf("Cannot deduct %d %s: the member only has %d %s.",
			short.Requested, unit, short.Available, unit)
	case errors.As(err, &usage):
		return "Usage: " + usage.Usage
	case errors.Is(err, ErrUnauthorized):
		return "You do not have permission to use this command."
	case errors.Is(err, ErrChannelNotAllowed):
		return "Commands are not available in this channel."
	case errors.Is(err, ErrUnknownCommand):
		return "Unknown command."
	case errors.Is(err, ErrRoleNotEligible):
		return fmt.Sprintf("Role is not eligible for %s distribution.", unit)
	case errors.Is(err, ErrUnknownRole):
		return "Role not found."
	case errors.Is(err, ledger.ErrNegativeAmount):
		return "Amount must not be negative."
	case errors.Is(err, ledger.ErrAmountTooLarge):
		return "That amount would push the balance past the maximum."
	case errors.Is(err, ledger.ErrReasonRequired):
		return "A reason is required."
	case errors.Is(err, ledger.ErrNoLedger):
		return "No points data found to reset."
	default:
		return "Something went wrong, please try again later."
	}
}
