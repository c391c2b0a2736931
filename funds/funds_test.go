package funds_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandfx/commission-engine/funds"
	"github.com/brandfx/commission-engine/referral"
	"github.com/brandfx/commission-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newUser(t *testing.T, store *sqlite.Store, username string) *referral.User {
	u := &referral.User{
		Username:   username,
		VantageKey: referral.VantageKey("VK-" + username),
		IsActive:   true,
	}
	require.NoError(t, store.CreateUser(context.Background(), u))
	return u
}

func completeDepositOf(t *testing.T, store *sqlite.Store, userID referral.UserID, amount float64) {
	p := funds.NewDepositProcessor(store)
	ctx := context.Background()

	d, err := p.Create(ctx, userID, referral.NewMoney(amount), "TDepositAddr", "")
	require.NoError(t, err)
	_, err = p.Process(ctx, d.ID, funds.DepositCompleted, "0xseed-"+d.ID, "")
	require.NoError(t, err)
}

// =============================================================================
// DEPOSIT LIFECYCLE
// =============================================================================

func TestDeposit_FullLifecycle(t *testing.T) {
	// GIVEN: A user opens a deposit and attaches payment proof
	// WHEN: An admin completes it
	// THEN: Status walks PENDING -> CONFIRMING -> COMPLETED and the wallet
	//       receives the funds

	store := newTestStore(t)
	p := funds.NewDepositProcessor(store)
	ctx := context.Background()

	u := newUser(t, store, "alice")

	d, err := p.Create(ctx, u.ID, referral.NewMoney(500), "TAddr123", "first topup")
	require.NoError(t, err)
	assert.Equal(t, funds.DepositPending, d.Status)

	d, err = p.AttachProof(ctx, d.ID, "proof.png", "0xhash1")
	require.NoError(t, err)
	assert.Equal(t, funds.DepositConfirming, d.Status)
	assert.Equal(t, "0xhash1", d.TransactionHash)

	d, err = p.Process(ctx, d.ID, funds.DepositCompleted, "", "verified on chain")
	require.NoError(t, err)
	assert.Equal(t, funds.DepositCompleted, d.Status)
	require.NotNil(t, d.ConfirmedAt)

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.WalletBalance.Equal(referral.NewMoney(500)))
	assert.True(t, got.TotalEarned.Equal(referral.NewMoney(500)))
}

func TestDeposit_Create_Validation(t *testing.T) {
	store := newTestStore(t)
	p := funds.NewDepositProcessor(store)
	ctx := context.Background()

	u := newUser(t, store, "alice")

	_, err := p.Create(ctx, u.ID, referral.Zero(), "TAddr", "")
	assert.ErrorIs(t, err, referral.ErrInvalidAmount)

	_, err = p.Create(ctx, u.ID, referral.NewMoney(-5), "TAddr", "")
	assert.ErrorIs(t, err, referral.ErrInvalidAmount)

	_, err = p.Create(ctx, u.ID, referral.NewMoney(100), "", "")
	assert.Error(t, err, "address is required")
}

func TestDeposit_Failed_DoesNotCreditWallet(t *testing.T) {
	store := newTestStore(t)
	p := funds.NewDepositProcessor(store)
	ctx := context.Background()

	u := newUser(t, store, "alice")

	d, err := p.Create(ctx, u.ID, referral.NewMoney(500), "TAddr", "")
	require.NoError(t, err)

	d, err = p.Process(ctx, d.ID, funds.DepositFailed, "", "no matching transfer found")
	require.NoError(t, err)
	assert.Equal(t, funds.DepositFailed, d.Status)
	assert.Nil(t, d.ConfirmedAt)

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.WalletBalance.IsZero())
}

func TestDeposit_SettledCannotBeRedecided(t *testing.T) {
	store := newTestStore(t)
	p := funds.NewDepositProcessor(store)
	ctx := context.Background()

	u := newUser(t, store, "alice")

	d, err := p.Create(ctx, u.ID, referral.NewMoney(500), "TAddr", "")
	require.NoError(t, err)
	_, err = p.Process(ctx, d.ID, funds.DepositCompleted, "0xh", "")
	require.NoError(t, err)

	// A second decision must not double-credit.
	_, err = p.Process(ctx, d.ID, funds.DepositCompleted, "0xh2", "")
	assert.ErrorIs(t, err, funds.ErrInvalidTransition)

	_, err = p.Process(ctx, d.ID, funds.DepositFailed, "", "")
	assert.ErrorIs(t, err, funds.ErrInvalidTransition)

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.WalletBalance.Equal(referral.NewMoney(500)))
}

func TestDeposit_AttachProof_OnlyFromPending(t *testing.T) {
	store := newTestStore(t)
	p := funds.NewDepositProcessor(store)
	ctx := context.Background()

	u := newUser(t, store, "alice")

	d, err := p.Create(ctx, u.ID, referral.NewMoney(100), "TAddr", "")
	require.NoError(t, err)
	_, err = p.AttachProof(ctx, d.ID, "proof.png", "0xh")
	require.NoError(t, err)

	_, err = p.AttachProof(ctx, d.ID, "proof2.png", "0xh2")
	assert.ErrorIs(t, err, funds.ErrInvalidTransition)
}

func TestDeposit_Process_RejectsUnknownDecision(t *testing.T) {
	store := newTestStore(t)
	p := funds.NewDepositProcessor(store)

	_, err := p.Process(context.Background(), "any", funds.DepositConfirming, "", "")
	assert.ErrorIs(t, err, funds.ErrInvalidTransition)
}

// =============================================================================
// EXPIRY SWEEPER
// =============================================================================

func TestSweeper_ExpiresOnlyStalePending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	u := newUser(t, store, "alice")

	stale := &funds.Deposit{
		ID:          "dep-stale",
		UserID:      u.ID,
		Amount:      referral.NewMoney(100),
		Status:      funds.DepositPending,
		USDTAddress: "TAddr",
		CreatedAt:   time.Now().UTC().Add(-48 * time.Hour),
		UpdatedAt:   time.Now().UTC().Add(-48 * time.Hour),
	}
	require.NoError(t, store.CreateDeposit(ctx, stale))

	p := funds.NewDepositProcessor(store)
	fresh, err := p.Create(ctx, u.ID, referral.NewMoney(200), "TAddr", "")
	require.NoError(t, err)

	sweeper := funds.NewSweeper(store, funds.DefaultConfirmationWindow, time.Minute)
	sweeper.SweepOnce(ctx)

	got, err := store.GetDeposit(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, funds.DepositExpired, got.Status)

	got, err = store.GetDeposit(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, funds.DepositPending, got.Status)
}

// =============================================================================
// WITHDRAWAL LIFECYCLE
// =============================================================================

func TestWithdrawal_RequestReservesFunds(t *testing.T) {
	store := newTestStore(t)
	p := funds.NewWithdrawalProcessor(store)
	ctx := context.Background()

	u := newUser(t, store, "bob")
	completeDepositOf(t, store, u.ID, 100)

	w, err := p.Request(ctx, u.ID, referral.NewMoney(40))
	require.NoError(t, err)
	assert.Equal(t, funds.WithdrawalPending, w.Status)

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.WalletBalance.Equal(referral.NewMoney(60)))
}

func TestWithdrawal_BelowMinimumRejected(t *testing.T) {
	store := newTestStore(t)
	p := funds.NewWithdrawalProcessor(store)
	ctx := context.Background()

	u := newUser(t, store, "bob")
	completeDepositOf(t, store, u.ID, 100)

	_, err := p.Request(ctx, u.ID, referral.NewMoney(9.99))
	assert.ErrorIs(t, err, referral.ErrInvalidAmount)

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.WalletBalance.Equal(referral.NewMoney(100)), "nothing reserved")
}

func TestWithdrawal_InsufficientBalance(t *testing.T) {
	store := newTestStore(t)
	p := funds.NewWithdrawalProcessor(store)
	ctx := context.Background()

	u := newUser(t, store, "bob")
	completeDepositOf(t, store, u.ID, 25)

	_, err := p.Request(ctx, u.ID, referral.NewMoney(40))
	require.Error(t, err)
	assert.ErrorIs(t, err, referral.ErrInsufficientBalance)

	var insufficient *referral.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Available.Equal(referral.NewMoney(25)))
	assert.True(t, insufficient.Requested.Equal(referral.NewMoney(40)))
}

func TestWithdrawal_RejectionRefunds(t *testing.T) {
	// GIVEN: A pending withdrawal holding 40 of the user's 100
	// WHEN: An admin rejects it
	// THEN: The 40 returns to the wallet and TotalWithdrawn stays zero

	store := newTestStore(t)
	p := funds.NewWithdrawalProcessor(store)
	ctx := context.Background()

	u := newUser(t, store, "bob")
	admin := newUser(t, store, "admin")
	completeDepositOf(t, store, u.ID, 100)

	w, err := p.Request(ctx, u.ID, referral.NewMoney(40))
	require.NoError(t, err)

	w, err = p.Process(ctx, w.ID, funds.WithdrawalRejected, admin.ID, "address mismatch")
	require.NoError(t, err)
	assert.Equal(t, funds.WithdrawalRejected, w.Status)

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.WalletBalance.Equal(referral.NewMoney(100)))
	assert.True(t, got.TotalWithdrawn.IsZero())
}

func TestWithdrawal_ApproveThenComplete(t *testing.T) {
	store := newTestStore(t)
	p := funds.NewWithdrawalProcessor(store)
	ctx := context.Background()

	u := newUser(t, store, "bob")
	admin := newUser(t, store, "admin")
	completeDepositOf(t, store, u.ID, 100)

	w, err := p.Request(ctx, u.ID, referral.NewMoney(40))
	require.NoError(t, err)

	w, err = p.Process(ctx, w.ID, funds.WithdrawalApproved, admin.ID, "")
	require.NoError(t, err)
	assert.Equal(t, funds.WithdrawalApproved, w.Status)

	w, err = p.Process(ctx, w.ID, funds.WithdrawalCompleted, admin.ID, "paid out")
	require.NoError(t, err)
	assert.Equal(t, funds.WithdrawalCompleted, w.Status)

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.WalletBalance.Equal(referral.NewMoney(60)))
	assert.True(t, got.TotalWithdrawn.Equal(referral.NewMoney(40)))
}

func TestWithdrawal_IllegalTransitions(t *testing.T) {
	store := newTestStore(t)
	p := funds.NewWithdrawalProcessor(store)
	ctx := context.Background()

	u := newUser(t, store, "bob")
	admin := newUser(t, store, "admin")
	completeDepositOf(t, store, u.ID, 100)

	w, err := p.Request(ctx, u.ID, referral.NewMoney(40))
	require.NoError(t, err)

	_, err = p.Process(ctx, w.ID, funds.WithdrawalRejected, admin.ID, "")
	require.NoError(t, err)

	// Settled requests cannot move again.
	_, err = p.Process(ctx, w.ID, funds.WithdrawalCompleted, admin.ID, "")
	assert.ErrorIs(t, err, funds.ErrInvalidTransition)

	_, err = p.Process(ctx, w.ID, funds.WithdrawalApproved, admin.ID, "")
	assert.ErrorIs(t, err, funds.ErrInvalidTransition)
}
