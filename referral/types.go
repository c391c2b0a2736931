/*
Package referral provides the commission distribution engine.

PURPOSE:

	This package contains the domain types and algorithms for propagating a
	monetary event upward through a referral tree. When a user generates
	income, a percentage of it is credited to up to five ancestor levels,
	gated per level by a qualification rule, with an immutable income record
	written per credit.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: a decimal amount (never float64 inside the domain)
  - User: a node in the referral tree (parent pointer, wallet fields)
  - Income: an immutable, append-only commission record
  - Outcome: the result of one distribution (total, affected, errors)

DESIGN PRINCIPLES:
 1. Precision: uses decimal.Decimal to avoid floating-point drift
 2. Immutability: income records are never updated or deleted
 3. Read/write separation: the Graph interface is read-only; all wallet
    mutation goes through the LedgerWriter
 4. Monotonic counters: TotalEarned and TotalWithdrawn only ever increase

SEE ALSO:
  - graph.go:       read-only view over the referral tree
  - policy.go:      level qualification and the rate table
  - ledger.go:      the atomic credit primitive
  - distributor.go: the five-level traversal
*/
package referral

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal amount
// =============================================================================

// Money is a monetary amount. Single-currency; the platform settles in USDT.
type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money {
	return Money{Value: decimal.NewFromFloat(value)}
}

func NewMoneyFromInt(value int) Money {
	return Money{Value: decimal.NewFromInt(int64(value))}
}

// MustParseMoney parses a decimal string, panicking on malformed input.
// Money columns are only ever written from decimal's String(), so a parse
// failure means a corrupted record and must not be silently zeroed.
func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("malformed money value %q: %v", s, err))
	}
	return Money{Value: d}
}

func (m Money) Add(b Money) Money              { return Money{Value: m.Value.Add(b.Value)} }
func (m Money) Sub(b Money) Money              { return Money{Value: m.Value.Sub(b.Value)} }
func (m Money) Mul(rate decimal.Decimal) Money { return Money{Value: m.Value.Mul(rate)} }
func (m Money) Neg() Money                     { return Money{Value: m.Value.Neg()} }
func (m Money) IsZero() bool                   { return m.Value.IsZero() }
func (m Money) IsPositive() bool               { return m.Value.IsPositive() }
func (m Money) IsNegative() bool               { return m.Value.IsNegative() }
func (m Money) LessThan(b Money) bool          { return m.Value.LessThan(b.Value) }
func (m Money) GreaterThan(b Money) bool       { return m.Value.GreaterThan(b.Value) }
func (m Money) Equal(b Money) bool             { return m.Value.Equal(b.Value) }
func (m Money) Float64() float64               { f, _ := m.Value.Float64(); return f }
func (m Money) String() string                 { return m.Value.String() }

func Zero() Money { return Money{Value: decimal.Zero} }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID int64

// VantageKey is the external broker-account key rows and manual triggers
// address users by. Distinct from the internal numeric ID.
type VantageKey string

// =============================================================================
// INCOME CATEGORY - Closed set of period tags
// =============================================================================

type IncomeCategory string

const (
	CategoryDaily   IncomeCategory = "DAILY"
	CategoryWeekly  IncomeCategory = "WEEKLY"
	CategoryMonthly IncomeCategory = "MONTHLY"
)

// DefaultCategory is applied when a batch row omits the category column.
const DefaultCategory = CategoryDaily

// ParseCategory normalizes and validates a period tag.
func ParseCategory(s string) (IncomeCategory, error) {
	switch IncomeCategory(s) {
	case CategoryDaily, CategoryWeekly, CategoryMonthly:
		return IncomeCategory(s), nil
	}
	return "", &UnknownCategoryError{Value: s}
}

// =============================================================================
// USER - Node in the referral tree
// =============================================================================

// User is a referral-tree node. ParentID references the direct referrer;
// many nodes may share one parent. The engine assumes, but does not enforce,
// that the parent relation is acyclic.
type User struct {
	ID         UserID
	Username   string
	VantageKey VantageKey
	ParentID   *UserID
	IsActive   bool

	// Wallet. TotalEarned and TotalWithdrawn are monotonic.
	WalletBalance  Money
	TotalEarned    Money
	TotalWithdrawn Money

	CreatedAt time.Time
}

// =============================================================================
// INCOME - Immutable commission record
// =============================================================================

// Income is one commission credit. Append-only: no update, no delete.
type Income struct {
	ID          string
	UserID      UserID
	Amount      Money
	Percentage  decimal.Decimal
	Level       int
	Category    IncomeCategory
	Description string

	// Source event that triggered the credit.
	SourceVantageKey VantageKey
	SourceAmount     Money
	// SourceRef ties the credit back to its trigger (job id + row, or
	// "manual"). Informational only; uniqueness is not enforced on it.
	SourceRef string

	CreatedAt time.Time
}

// =============================================================================
// OUTCOME - Result of one distribution
// =============================================================================

// Outcome reports what a single distribution did. A failed distribution has
// a non-empty Errors slice and zero Distributed.
type Outcome struct {
	Distributed           Money
	BeneficiariesAffected int
	Errors                []string
}

func (o Outcome) Failed() bool { return len(o.Errors) > 0 }
