/*
Package funds handles the wallet-mutating request workflows around the
commission engine: deposits into the platform and withdrawals out of it.

PURPOSE:

	Deposits and withdrawals are status-transition workflows whose terminal
	transitions move money. The money-moving transitions are atomic units of
	work performed by the store: the status change and the wallet mutation
	commit together or not at all, mirroring the commission ledger's
	guarantee.

STATE MACHINES:

	Deposit:    PENDING -> CONFIRMING -> COMPLETED | FAILED
	            PENDING -> EXPIRED (swept after the confirmation window)
	Withdrawal: PENDING -> APPROVED -> COMPLETED
	            PENDING -> REJECTED (refunds the wallet)

MONEY RULES:
  - A completed deposit credits WalletBalance and TotalEarned.
  - A withdrawal debits WalletBalance at request time; rejection refunds it;
    completion increments TotalWithdrawn.
  - TotalEarned and TotalWithdrawn only ever increase.
*/
package funds

import (
	"time"

	"github.com/brandfx/commission-engine/referral"
)

// MinWithdrawalAmount is the platform's withdrawal floor, in USDT.
var MinWithdrawalAmount = referral.NewMoney(10)

// =============================================================================
// DEPOSIT
// =============================================================================

type DepositStatus string

const (
	DepositPending    DepositStatus = "PENDING"
	DepositConfirming DepositStatus = "CONFIRMING"
	DepositCompleted  DepositStatus = "COMPLETED"
	DepositFailed     DepositStatus = "FAILED"
	DepositExpired    DepositStatus = "EXPIRED"
)

// Deposit is one USDT deposit request.
type Deposit struct {
	ID     string
	UserID referral.UserID
	Amount referral.Money
	Status DepositStatus

	USDTAddress     string
	TransactionHash string
	Screenshot      string
	Notes           string
	AdminNotes      string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	ConfirmedAt *time.Time
}

// =============================================================================
// WITHDRAWAL
// =============================================================================

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "PENDING"
	WithdrawalApproved  WithdrawalStatus = "APPROVED"
	WithdrawalRejected  WithdrawalStatus = "REJECTED"
	WithdrawalCompleted WithdrawalStatus = "COMPLETED"
)

// Withdrawal is one payout request. The requested amount is already debited
// from the wallet while the request is in flight.
type Withdrawal struct {
	ID     string
	UserID referral.UserID
	Amount referral.Money
	Status WithdrawalStatus

	ProcessedBy *referral.UserID
	AdminNotes  string

	RequestedAt time.Time
	ProcessedAt *time.Time
}
