/*
errors.go - Centralized error types for the points ledger

PURPOSE:
  All error types in one place. The command surface turns these into
  user-facing replies; operator-facing errors (corruption, sweep failures)
  are logged instead.

ERROR CATEGORIES:
  1. Client errors - already claimed, insufficient balance, bad amount
  2. Lookup errors - no ledger for a community
  3. Store errors - corrupt persisted state, persistence failures

USAGE:
  var already *ledger.AlreadyClaimedError
  if errors.As(err, &already) {
      fmt.Println("come back at", already.NextEligibleAt)
  }

SEE ALSO:
  - bot/messages.go: maps these errors to replies
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAlreadyClaimedToday is returned for a second claim on the same UTC day.
	ErrAlreadyClaimedToday = errors.New("already claimed today")

	// ErrInsufficientBalance is returned when a deduction exceeds the balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNegativeAmount is returned when grant/deduct is called with amount < 0.
	ErrNegativeAmount = errors.New("amount must not be negative")

	// ErrAmountTooLarge is returned when a credit would overflow a balance
	// or lifetime total.
	ErrAmountTooLarge = errors.New("amount too large")

	// ErrReasonRequired is returned when a deduction has no reason.
	ErrReasonRequired = errors.New("reason is required")

	// ErrNoLedger is returned when a community has no records at all.
	ErrNoLedger = errors.New("no ledger data for community")

	// ErrCorruptStore is returned when persisted state cannot be decoded.
	ErrCorruptStore = errors.New("corrupt ledger store")

	// ErrPersistFailed is returned when a checkpoint could not be written.
	ErrPersistFailed = errors.New("ledger persistence failed")

	// ErrClosed is returned by a store that has been closed.
	ErrClosed = errors.New("ledger store closed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// AlreadyClaimedError tells the member when the next claim opens.
type AlreadyClaimedError struct {
	Community      CommunityID
	Member         MemberID
	LastClaimed    Date
	NextEligibleAt Date
}

func (e *AlreadyClaimedError) Error() string {
	return fmt.Sprintf("already claimed on %s, next claim opens %s", e.LastClaimed, e.NextEligibleAt)
}

func (e *AlreadyClaimedError) Unwrap() error { return ErrAlreadyClaimedToday }

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	Community CommunityID
	Member    MemberID
	Available int64
	Requested int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %d, requested %d, shortfall %d",
		e.Available, e.Requested, e.Requested-e.Available)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// CorruptStoreError wraps a decode failure of persisted state.
// The store falls back to an empty ledger when it sees one.
type CorruptStoreError struct {
	Source string
	Err    error
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("corrupt ledger store %s: %v", e.Source, e.Err)
}

func (e *CorruptStoreError) Unwrap() []error { return []error{ErrCorruptStore, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid member/admin input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrAlreadyClaimedToday) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrNegativeAmount) ||
		errors.Is(err, ErrAmountTooLarge) ||
		errors.Is(err, ErrReasonRequired)
}

// IsNotFound returns true if the error indicates missing ledger data.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNoLedger)
}
