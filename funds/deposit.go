/*
deposit.go - Deposit request workflow

PURPOSE:

	Tracks a USDT deposit from request to confirmation. Completion is the
	money-moving transition: the store credits WalletBalance and TotalEarned
	by the deposit amount in the same unit of work that flips the status.

EXPIRY:

	Deposits that sit PENDING past the confirmation window are swept to
	EXPIRED by a background ticker (Sweeper). An expired deposit moved no
	money, so sweeping is a pure status change.
*/
package funds

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/brandfx/commission-engine/referral"
)

// DefaultConfirmationWindow is how long a PENDING deposit may wait before
// the sweeper expires it.
const DefaultConfirmationWindow = 24 * time.Hour

var (
	// ErrInvalidTransition is returned for a status change the state
	// machine does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDepositNotFound / ErrWithdrawalNotFound mark missing records.
	ErrDepositNotFound    = errors.New("deposit not found")
	ErrWithdrawalNotFound = errors.New("withdrawal request not found")
)

// =============================================================================
// STORE CONTRACT
// =============================================================================

// DepositStore is the persistence the workflow needs. CompleteDeposit is a
// single atomic unit: status flip plus wallet credit.
type DepositStore interface {
	CreateDeposit(ctx context.Context, d *Deposit) error
	GetDeposit(ctx context.Context, id string) (*Deposit, error)
	ListDeposits(ctx context.Context, userID referral.UserID, status DepositStatus) ([]Deposit, error)

	// UpdateDeposit persists status/detail fields without touching wallets.
	UpdateDeposit(ctx context.Context, d *Deposit) error

	// CompleteDeposit flips the deposit to COMPLETED and credits the user's
	// WalletBalance and TotalEarned by the deposit amount, atomically.
	CompleteDeposit(ctx context.Context, d *Deposit) error

	// ExpireStaleDeposits moves PENDING deposits created before cutoff to
	// EXPIRED and reports how many it swept.
	ExpireStaleDeposits(ctx context.Context, cutoff time.Time) (int, error)
}

// =============================================================================
// PROCESSOR
// =============================================================================

type DepositProcessor struct {
	store DepositStore
}

func NewDepositProcessor(store DepositStore) *DepositProcessor {
	return &DepositProcessor{store: store}
}

// Create opens a PENDING deposit request.
func (p *DepositProcessor) Create(ctx context.Context, userID referral.UserID, amount referral.Money, usdtAddress, notes string) (*Deposit, error) {
	if !amount.IsPositive() {
		return nil, referral.ErrInvalidAmount
	}
	if usdtAddress == "" {
		return nil, fmt.Errorf("usdt address is required")
	}

	now := time.Now().UTC()
	d := &Deposit{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		Status:      DepositPending,
		USDTAddress: usdtAddress,
		Notes:       notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.store.CreateDeposit(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// AttachProof records payment evidence and moves PENDING to CONFIRMING.
func (p *DepositProcessor) AttachProof(ctx context.Context, id, screenshot, txHash string) (*Deposit, error) {
	d, err := p.store.GetDeposit(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status != DepositPending {
		return nil, fmt.Errorf("%w: deposit %s is %s, want PENDING", ErrInvalidTransition, id, d.Status)
	}

	d.Screenshot = screenshot
	if txHash != "" {
		d.TransactionHash = txHash
	}
	d.Status = DepositConfirming
	d.UpdatedAt = time.Now().UTC()
	if err := p.store.UpdateDeposit(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// Process applies an admin decision. COMPLETED credits the wallet; FAILED
// is a pure status change. A deposit already settled cannot be re-decided.
func (p *DepositProcessor) Process(ctx context.Context, id string, decision DepositStatus, txHash, adminNotes string) (*Deposit, error) {
	if decision != DepositCompleted && decision != DepositFailed {
		return nil, fmt.Errorf("%w: decision must be COMPLETED or FAILED, got %s", ErrInvalidTransition, decision)
	}

	d, err := p.store.GetDeposit(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status != DepositPending && d.Status != DepositConfirming {
		return nil, fmt.Errorf("%w: deposit %s is already %s", ErrInvalidTransition, id, d.Status)
	}

	if txHash != "" {
		d.TransactionHash = txHash
	}
	if adminNotes != "" {
		d.AdminNotes = adminNotes
	}
	d.Status = decision
	d.UpdatedAt = time.Now().UTC()

	if decision == DepositCompleted {
		now := time.Now().UTC()
		d.ConfirmedAt = &now
		if err := p.store.CompleteDeposit(ctx, d); err != nil {
			return nil, err
		}
		return d, nil
	}

	if err := p.store.UpdateDeposit(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// =============================================================================
// EXPIRY SWEEPER
// =============================================================================

// Sweeper periodically expires stale PENDING deposits.
type Sweeper struct {
	store    DepositStore
	window   time.Duration
	interval time.Duration
}

func NewSweeper(store DepositStore, window, interval time.Duration) *Sweeper {
	if window <= 0 {
		window = DefaultConfirmationWindow
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{store: store, window: window, interval: interval}
}

// Run sweeps on a ticker until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce expires deposits older than the confirmation window.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.window)
	n, err := s.store.ExpireStaleDeposits(ctx, cutoff)
	if err != nil {
		log.Printf("deposit sweep: %v", err)
		return
	}
	if n > 0 {
		log.Printf("deposit sweep: expired %d stale deposit(s)", n)
	}
}
