/*
withdrawal.go - Withdrawal request workflow

PURPOSE:

	A withdrawal reserves funds up front: the wallet is debited in the same
	unit of work that creates the PENDING request, so a user cannot queue
	requests exceeding their balance. Rejection refunds the debit; completion
	increments the monotonic TotalWithdrawn counter.
*/
package funds

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brandfx/commission-engine/referral"
)

// =============================================================================
// STORE CONTRACT
// =============================================================================

// WithdrawalStore is the persistence the workflow needs. The money-moving
// methods are single atomic units of work.
type WithdrawalStore interface {
	// CreateWithdrawal inserts the PENDING request and debits the user's
	// WalletBalance by the amount, atomically. It fails with
	// ErrInsufficientBalance (no insert, no debit) when the wallet is short.
	CreateWithdrawal(ctx context.Context, w *Withdrawal) error

	GetWithdrawal(ctx context.Context, id string) (*Withdrawal, error)
	ListWithdrawals(ctx context.Context, userID referral.UserID, status WithdrawalStatus) ([]Withdrawal, error)

	// UpdateWithdrawal persists status fields without touching wallets.
	UpdateWithdrawal(ctx context.Context, w *Withdrawal) error

	// RefundWithdrawal flips the request to REJECTED and returns the amount
	// to the user's WalletBalance, atomically.
	RefundWithdrawal(ctx context.Context, w *Withdrawal) error

	// CompleteWithdrawal flips the request to COMPLETED and increments the
	// user's TotalWithdrawn, atomically.
	CompleteWithdrawal(ctx context.Context, w *Withdrawal) error
}

// =============================================================================
// PROCESSOR
// =============================================================================

type WithdrawalProcessor struct {
	store WithdrawalStore
}

func NewWithdrawalProcessor(store WithdrawalStore) *WithdrawalProcessor {
	return &WithdrawalProcessor{store: store}
}

// Request opens a PENDING withdrawal and reserves the funds.
func (p *WithdrawalProcessor) Request(ctx context.Context, userID referral.UserID, amount referral.Money) (*Withdrawal, error) {
	if amount.LessThan(MinWithdrawalAmount) {
		return nil, fmt.Errorf("minimum withdrawal amount is %s: %w", MinWithdrawalAmount, referral.ErrInvalidAmount)
	}

	w := &Withdrawal{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		Status:      WithdrawalPending,
		RequestedAt: time.Now().UTC(),
	}
	if err := p.store.CreateWithdrawal(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// Process applies an admin decision.
//
// Allowed transitions: PENDING -> APPROVED | REJECTED | COMPLETED, and
// APPROVED -> COMPLETED. REJECTED refunds the reserved amount.
func (p *WithdrawalProcessor) Process(ctx context.Context, id string, decision WithdrawalStatus, adminID referral.UserID, adminNotes string) (*Withdrawal, error) {
	w, err := p.store.GetWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}

	if !transitionAllowed(w.Status, decision) {
		return nil, fmt.Errorf("%w: withdrawal %s is %s, cannot become %s", ErrInvalidTransition, id, w.Status, decision)
	}

	now := time.Now().UTC()
	w.Status = decision
	w.AdminNotes = adminNotes
	w.ProcessedBy = &adminID
	w.ProcessedAt = &now

	switch decision {
	case WithdrawalRejected:
		err = p.store.RefundWithdrawal(ctx, w)
	case WithdrawalCompleted:
		err = p.store.CompleteWithdrawal(ctx, w)
	default:
		err = p.store.UpdateWithdrawal(ctx, w)
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func transitionAllowed(from, to WithdrawalStatus) bool {
	switch from {
	case WithdrawalPending:
		return to == WithdrawalApproved || to == WithdrawalRejected || to == WithdrawalCompleted
	case WithdrawalApproved:
		return to == WithdrawalCompleted
	}
	return false
}
