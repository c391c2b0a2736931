/*
handlers_test.go - Unit tests for API handlers

Tests for:
- Manual distribution endpoint
- Batch upload endpoint (raw CSV body)
- User endpoints (create, lookup, incomes, referrals, ancestors, toggle)
- Deposit and withdrawal workflows over HTTP
- Error status mapping
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandfx/commission-engine/referral"
	"github.com/brandfx/commission-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func setupTestHandler(t *testing.T) *Handler {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return NewHandler(store, referral.DefaultRateTable())
}

func doJSON(t *testing.T, h *Handler, method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	NewRouter(h).ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), "body: %s", rec.Body.String())
	return out
}

// seedChain creates a qualified ancestor chain above the trader key and
// returns the trader's ancestors bottom-up.
func seedChain(t *testing.T, h *Handler, depth int, traderKey string) []*referral.User {
	ctx := context.Background()

	var (
		ancestors []*referral.User
		parent    *referral.UserID
	)
	for i := 0; i < depth; i++ {
		levelFromTrader := depth - i
		u := &referral.User{
			Username:   fmt.Sprintf("anc%d", levelFromTrader),
			VantageKey: referral.VantageKey(fmt.Sprintf("vk-anc%d", levelFromTrader)),
			ParentID:   parent,
			IsActive:   true,
		}
		require.NoError(t, h.Store.CreateUser(ctx, u))
		ancestors = append([]*referral.User{u}, ancestors...)

		// Padding children so the ancestor qualifies for its level. The
		// chain itself provides one child.
		for extra := 0; extra < levelFromTrader-1; extra++ {
			pad := &referral.User{
				Username:   fmt.Sprintf("pad%d_%d", levelFromTrader, extra),
				VantageKey: referral.VantageKey(fmt.Sprintf("vk-pad%d-%d", levelFromTrader, extra)),
				ParentID:   &u.ID,
				IsActive:   true,
			}
			require.NoError(t, h.Store.CreateUser(ctx, pad))
		}
		parent = &u.ID
	}

	trader := &referral.User{
		Username:   "trader",
		VantageKey: referral.VantageKey(traderKey),
		ParentID:   parent,
		IsActive:   true,
	}
	require.NoError(t, h.Store.CreateUser(ctx, trader))
	return ancestors
}

// =============================================================================
// DISTRIBUTION ENDPOINT
// =============================================================================

func TestDistributeEndpoint_FullChain(t *testing.T) {
	// GIVEN: A trader under 5 qualified ancestors
	// WHEN: POST /api/distributions for 100 DAILY
	// THEN: 2% per level, 5 beneficiaries

	h := setupTestHandler(t)
	ancestors := seedChain(t, h, 5, "trader1")

	rec := doJSON(t, h, http.MethodPost, "/api/distributions", DistributeRequest{
		VantageUsername: "trader1",
		Amount:          100,
		IncomeType:      "DAILY",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	outcome := decode[OutcomeDTO](t, rec)
	assert.InDelta(t, 10.0, outcome.TotalDistributed, 1e-9)
	assert.Equal(t, 5, outcome.BeneficiariesAffected)
	assert.Empty(t, outcome.Errors)

	// The nearest ancestor's wallet moved.
	got, err := h.Store.GetUser(context.Background(), ancestors[0].ID)
	require.NoError(t, err)
	assert.True(t, got.WalletBalance.Equal(referral.NewMoney(2)))
}

func TestDistributeEndpoint_DefaultsToDaily(t *testing.T) {
	h := setupTestHandler(t)
	seedChain(t, h, 1, "trader1")

	rec := doJSON(t, h, http.MethodPost, "/api/distributions", DistributeRequest{
		VantageUsername: "trader1",
		Amount:          50,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	incomes, err := h.Store.ListIncomes(context.Background(), 1, sqlite.IncomeFilter{})
	require.NoError(t, err)
	require.Len(t, incomes, 1)
	assert.Equal(t, referral.CategoryDaily, incomes[0].Category)
	assert.Equal(t, "manual", incomes[0].SourceRef)
}

func TestDistributeEndpoint_UnknownUser(t *testing.T) {
	h := setupTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/distributions", DistributeRequest{
		VantageUsername: "ghost",
		Amount:          100,
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	outcome := decode[OutcomeDTO](t, rec)
	assert.Zero(t, outcome.TotalDistributed)
	require.NotEmpty(t, outcome.Errors)
	assert.Contains(t, outcome.Errors[0], "ghost")
}

func TestDistributeEndpoint_InvalidCategory(t *testing.T) {
	h := setupTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/distributions", DistributeRequest{
		VantageUsername: "trader1",
		Amount:          100,
		IncomeType:      "HOURLY",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// BATCH ENDPOINT
// =============================================================================

func TestBatchEndpoint_RawCSVUpload(t *testing.T) {
	h := setupTestHandler(t)
	seedChain(t, h, 5, "trader1")

	csv := "vantage_username,amount,income_type\ntrader1,100,DAILY\nghost,50,DAILY\n"
	req := httptest.NewRequest(http.MethodPost,
		"/api/batches?filename=payouts.csv&submitted_by=1", strings.NewReader(csv))
	rec := httptest.NewRecorder()
	NewRouter(h).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	job := decode[JobDTO](t, rec)
	assert.Equal(t, "payouts.csv", job.Filename)
	assert.Equal(t, 2, job.TotalRows)
	assert.Equal(t, 1, job.ProcessedRows)
	assert.Equal(t, 1, job.ErrorRows)
	assert.InDelta(t, 10.0, job.TotalDistributed, 1e-9)
	assert.True(t, job.IsProcessed)
	require.Len(t, job.Errors, 1)
	assert.Contains(t, job.Errors[0], "row 3")

	// The report is retrievable afterwards.
	rec = doJSON(t, h, http.MethodGet, "/api/batches/"+job.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/batches", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	jobs := decode[[]JobDTO](t, rec)
	assert.Len(t, jobs, 1)
}

func TestBatchEndpoint_MissingFilename(t *testing.T) {
	h := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/batches", strings.NewReader("a,b\n"))
	rec := httptest.NewRecorder()
	NewRouter(h).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchEndpoint_UnknownJob(t *testing.T) {
	h := setupTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/api/batches/no-such-job", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// USER ENDPOINTS
// =============================================================================

func TestUserEndpoints_CreateAndLookup(t *testing.T) {
	h := setupTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/users", CreateUserRequest{
		Username:        "root",
		VantageUsername: "vk-root",
		IsActive:        true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	root := decode[UserDTO](t, rec)
	require.NotZero(t, root.ID)

	rec = doJSON(t, h, http.MethodPost, "/api/users", CreateUserRequest{
		Username:        "child",
		VantageUsername: "vk-child",
		ParentID:        &root.ID,
		IsActive:        true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/users/vk-child", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	child := decode[UserDTO](t, rec)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, root.ID, *child.ParentID)

	rec = doJSON(t, h, http.MethodGet, "/api/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decode[[]UserDTO](t, rec)
	assert.Len(t, users, 2)

	rec = doJSON(t, h, http.MethodGet, "/api/users/vk-root/referrals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	referrals := decode[[]UserDTO](t, rec)
	require.Len(t, referrals, 1)
	assert.Equal(t, "child", referrals[0].Username)
}

func TestUserEndpoints_Validation(t *testing.T) {
	h := setupTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/users", CreateUserRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "username required")

	bogus := int64(9999)
	rec = doJSON(t, h, http.MethodPost, "/api/users", CreateUserRequest{
		Username: "orphan", ParentID: &bogus,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "parent must exist")

	rec = doJSON(t, h, http.MethodGet, "/api/users/no-such-key", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUserEndpoints_Ancestors(t *testing.T) {
	// GIVEN: A 7-deep chain
	// THEN: Ancestors are reported nearest first and capped at 5

	h := setupTestHandler(t)
	seedChain(t, h, 7, "trader1")

	rec := doJSON(t, h, http.MethodGet, "/api/users/trader1/ancestors", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	ancestors := decode[[]UserDTO](t, rec)
	require.Len(t, ancestors, 5)
	assert.Equal(t, "anc1", ancestors[0].Username)
	assert.Equal(t, "anc5", ancestors[4].Username)
}

func TestUserEndpoints_ToggleActive(t *testing.T) {
	h := setupTestHandler(t)
	seedChain(t, h, 1, "trader1")

	rec := doJSON(t, h, http.MethodPost, "/api/users/trader1/toggle-active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	u := decode[UserDTO](t, rec)
	assert.False(t, u.IsActive)

	rec = doJSON(t, h, http.MethodPost, "/api/users/trader1/toggle-active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	u = decode[UserDTO](t, rec)
	assert.True(t, u.IsActive)
}

func TestUserEndpoints_IncomeHistory(t *testing.T) {
	h := setupTestHandler(t)
	seedChain(t, h, 1, "trader1")

	for i := 0; i < 3; i++ {
		rec := doJSON(t, h, http.MethodPost, "/api/distributions", DistributeRequest{
			VantageUsername: "trader1", Amount: 100, IncomeType: "DAILY",
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doJSON(t, h, http.MethodGet, "/api/users/vk-anc1/incomes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	incomes := decode[[]IncomeDTO](t, rec)
	assert.Len(t, incomes, 3)

	rec = doJSON(t, h, http.MethodGet, "/api/users/vk-anc1/incomes?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	incomes = decode[[]IncomeDTO](t, rec)
	assert.Len(t, incomes, 2)

	rec = doJSON(t, h, http.MethodGet, "/api/users/vk-anc1/incomes?income_type=WEEKLY", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	incomes = decode[[]IncomeDTO](t, rec)
	assert.Empty(t, incomes)

	rec = doJSON(t, h, http.MethodGet, "/api/users/vk-anc1/incomes?income_type=BOGUS", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// FUNDS ENDPOINTS
// =============================================================================

func TestDepositEndpoints_Lifecycle(t *testing.T) {
	h := setupTestHandler(t)
	seedChain(t, h, 1, "trader1")

	rec := doJSON(t, h, http.MethodPost, "/api/deposits", CreateDepositRequest{
		UserID: 1, Amount: 500, USDTAddress: "TAddr123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	dep := decode[DepositDTO](t, rec)
	assert.Equal(t, "PENDING", dep.Status)

	rec = doJSON(t, h, http.MethodPost, "/api/deposits/"+dep.ID+"/screenshot", AttachProofRequest{
		Screenshot: "proof.png", TransactionHash: "0xhash",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	dep = decode[DepositDTO](t, rec)
	assert.Equal(t, "CONFIRMING", dep.Status)

	rec = doJSON(t, h, http.MethodPost, "/api/deposits/"+dep.ID+"/process", ProcessDepositRequest{
		Status: "COMPLETED",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	dep = decode[DepositDTO](t, rec)
	assert.Equal(t, "COMPLETED", dep.Status)
	assert.NotEmpty(t, dep.ConfirmedAt)

	// Re-deciding a settled deposit conflicts.
	rec = doJSON(t, h, http.MethodPost, "/api/deposits/"+dep.ID+"/process", ProcessDepositRequest{
		Status: "FAILED",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/deposits?user_id=1&status=COMPLETED", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	deposits := decode[[]DepositDTO](t, rec)
	assert.Len(t, deposits, 1)
}

func TestDepositEndpoints_Validation(t *testing.T) {
	h := setupTestHandler(t)
	seedChain(t, h, 1, "trader1")

	rec := doJSON(t, h, http.MethodPost, "/api/deposits", CreateDepositRequest{
		UserID: 1, Amount: 0, USDTAddress: "TAddr",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "zero amount")

	rec = doJSON(t, h, http.MethodPost, "/api/deposits", CreateDepositRequest{
		UserID: 1, Amount: 100,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing address")

	rec = doJSON(t, h, http.MethodPost, "/api/deposits/no-such-id/process", ProcessDepositRequest{
		Status: "COMPLETED",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDepositEndpoints_DuplicateHashConflicts(t *testing.T) {
	h := setupTestHandler(t)
	seedChain(t, h, 1, "trader1")

	for i := 0; i < 2; i++ {
		rec := doJSON(t, h, http.MethodPost, "/api/deposits", CreateDepositRequest{
			UserID: 1, Amount: 100, USDTAddress: "TAddr",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		dep := decode[DepositDTO](t, rec)

		rec = doJSON(t, h, http.MethodPost, "/api/deposits/"+dep.ID+"/screenshot", AttachProofRequest{
			Screenshot: "proof.png", TransactionHash: "0xsame",
		})
		if i == 0 {
			require.Equal(t, http.StatusOK, rec.Code)
		} else {
			assert.Equal(t, http.StatusConflict, rec.Code, "hash reuse rejected")
		}
	}
}

func TestWithdrawalEndpoints_Lifecycle(t *testing.T) {
	h := setupTestHandler(t)
	seedChain(t, h, 1, "trader1")

	// Fund the wallet through a completed deposit.
	rec := doJSON(t, h, http.MethodPost, "/api/deposits", CreateDepositRequest{
		UserID: 1, Amount: 100, USDTAddress: "TAddr",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	dep := decode[DepositDTO](t, rec)
	rec = doJSON(t, h, http.MethodPost, "/api/deposits/"+dep.ID+"/process", ProcessDepositRequest{
		Status: "COMPLETED",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/withdrawals", CreateWithdrawalRequest{
		UserID: 1, Amount: 40,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	wd := decode[WithdrawalDTO](t, rec)
	assert.Equal(t, "PENDING", wd.Status)

	rec = doJSON(t, h, http.MethodPost, "/api/withdrawals/"+wd.ID+"/process", ProcessWithdrawalRequest{
		Status: "COMPLETED", AdminID: 1, AdminNotes: "paid",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	wd = decode[WithdrawalDTO](t, rec)
	assert.Equal(t, "COMPLETED", wd.Status)

	u, err := h.Store.GetUser(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, u.WalletBalance.Equal(referral.NewMoney(60)))
	assert.True(t, u.TotalWithdrawn.Equal(referral.NewMoney(40)))
}

func TestWithdrawalEndpoints_Errors(t *testing.T) {
	h := setupTestHandler(t)
	seedChain(t, h, 1, "trader1")

	rec := doJSON(t, h, http.MethodPost, "/api/withdrawals", CreateWithdrawalRequest{
		UserID: 1, Amount: 5,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "below minimum")

	rec = doJSON(t, h, http.MethodPost, "/api/withdrawals", CreateWithdrawalRequest{
		UserID: 1, Amount: 40,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "insufficient balance")

	rec = doJSON(t, h, http.MethodPost, "/api/withdrawals/no-such-id/process", ProcessWithdrawalRequest{
		Status: "APPROVED", AdminID: 1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
