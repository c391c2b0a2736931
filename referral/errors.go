/*
errors.go - Centralized error types for the commission engine

PURPOSE:

	All domain error types in one place. Callers classify with errors.Is
	and the helpers below; the HTTP layer maps classes to status codes.

ERROR CATEGORIES:
 1. Lookup errors     - source key or record does not resolve
 2. Validation errors - malformed input (empty key, bad amount, bad category)
 3. Write errors      - the atomic credit step failed

SEE ALSO:
  - distributor.go: converts lookup failures into outcome data
  - batch/ingest.go: converts validation failures into row errors
*/
package referral

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUserNotFound is returned when a vantage key or user id does not
	// resolve. The distributor reports it as outcome data, never a crash.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmptyVantageKey is returned for a blank beneficiary key.
	ErrEmptyVantageKey = errors.New("vantage username cannot be empty")

	// ErrInvalidAmount is returned when a source amount is not positive.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrUnknownCategory is returned for a period tag outside the closed set.
	ErrUnknownCategory = errors.New("unknown income category")

	// ErrCreditFailed is returned when the atomic credit unit cannot commit.
	// No partial state remains: record insert and balance update stand or
	// fall together.
	ErrCreditFailed = errors.New("credit failed")

	// ErrInsufficientBalance is returned when a withdrawal exceeds the wallet.
	ErrInsufficientBalance = errors.New("insufficient wallet balance")

	// ErrDuplicateTransactionHash is returned when a deposit reuses an
	// on-chain transaction hash.
	ErrDuplicateTransactionHash = errors.New("duplicate transaction hash")

	// ErrInvalidRateTable is returned when a rate table config is rejected.
	ErrInvalidRateTable = errors.New("invalid rate table")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// UnknownCategoryError reports the offending period tag.
type UnknownCategoryError struct {
	Value string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown income category %q (want DAILY, WEEKLY or MONTHLY)", e.Value)
}

func (e *UnknownCategoryError) Unwrap() error { return ErrUnknownCategory }

// InsufficientBalanceError details a wallet shortfall.
type InsufficientBalanceError struct {
	UserID    UserID
	Available Money
	Requested Money
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for user %d: available %s, requested %s",
		e.UserID, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// CreditError wraps a storage failure during the atomic credit unit with the
// beneficiary and level it occurred at.
type CreditError struct {
	UserID UserID
	Level  int
	Err    error
}

func (e *CreditError) Error() string {
	return fmt.Sprintf("credit to user %d at level %d: %v", e.UserID, e.Level, e.Err)
}

func (e *CreditError) Unwrap() error { return ErrCreditFailed }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

// IsClientError reports whether the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrEmptyVantageKey) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrUnknownCategory) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrDuplicateTransactionHash)
}
