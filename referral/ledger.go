/*
ledger.go - The atomic credit primitive

PURPOSE:

	The LedgerWriter is the only path that mutates wallets during
	distribution. One credit = one immutable Income record plus a matching
	balance increase on the beneficiary. The two effects commit together or
	not at all; a crediting call must never produce a record without a balance
	change, or vice versa.

CRITICAL INVARIANTS:
 1. INCOME IS APPEND-ONLY: no update, no delete. EVER.
 2. ATOMIC PER DISTRIBUTION: all credits of one traversal are a single
    unit of work - a mid-traversal failure leaves no partial credits.
 3. MONOTONIC COUNTERS: TotalEarned only ever increases.
 4. SERIALIZED PER ACCOUNT: concurrent distributions crediting a shared
    ancestor must not lose an update (the store expresses increments
    relative to the stored value, under the writer lock).

SEE ALSO:
  - distributor.go:       plans the credits this interface applies
  - store/sqlite:         transactional implementation
  - referral/store:       in-memory implementation for tests
*/
package referral

import (
	"context"

	"github.com/shopspring/decimal"
)

// Credit is one planned payout to one ancestor at one level.
type Credit struct {
	Beneficiary UserID
	Amount      Money
	Percentage  decimal.Decimal
	Level       int
	Category    IncomeCategory
	Description string

	SourceVantageKey VantageKey
	SourceAmount     Money
	SourceRef        string
}

// LedgerWriter applies a distribution's credits atomically.
type LedgerWriter interface {
	// CreditAll inserts one Income record per credit and increments each
	// beneficiary's WalletBalance and TotalEarned by the credit amount.
	// All credits commit together or none do. An empty slice is a no-op.
	CreditAll(ctx context.Context, credits []Credit) error
}
