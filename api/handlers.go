/*
handlers.go - HTTP API handlers for the commission platform

PURPOSE:

	Exposes the commission engine via REST API. Handles HTTP
	request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:

	Distributions:
	  POST   /api/distributions          Manual single-event distribution

	Batches:
	  POST   /api/batches                Upload CSV/XLSX payout sheet
	  GET    /api/batches                List job reports
	  GET    /api/batches/{id}           One job report

	Users:
	  GET    /api/users                  List all users
	  POST   /api/users                  Create user node
	  GET    /api/users/{key}            User by vantage username
	  GET    /api/users/{key}/incomes    Income history
	  GET    /api/users/{key}/referrals  Direct referrals
	  GET    /api/users/{key}/ancestors  Ancestor chain (up to 5 levels)
	  POST   /api/users/{key}/toggle-active

	Funds:
	  POST   /api/deposits               Open deposit request
	  POST   /api/deposits/{id}/screenshot
	  POST   /api/deposits/{id}/process  Admin decision
	  GET    /api/deposits               List (user/status filters)
	  POST   /api/withdrawals            Open payout request
	  POST   /api/withdrawals/{id}/process
	  GET    /api/withdrawals            List (user/status filters)

	Demo:
	  POST   /api/seed/demo              Load the demo referral chain

ERROR HANDLING:

	Errors are returned as JSON with appropriate HTTP status:
	- 400: Validation errors, invalid input
	- 404: Resource not found
	- 409: Conflict (duplicate transaction hash, illegal transition)
	- 500: Internal errors

SECURITY NOTE:

	Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - seed.go: Demo data loader
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/brandfx/commission-engine/batch"
	"github.com/brandfx/commission-engine/funds"
	"github.com/brandfx/commission-engine/referral"
	"github.com/brandfx/commission-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       *sqlite.Store
	Distributor *referral.Distributor
	Ingester    *batch.Ingester
	Deposits    *funds.DepositProcessor
	Withdrawals *funds.WithdrawalProcessor
}

// NewHandler wires the domain services around one store.
func NewHandler(store *sqlite.Store, rates referral.RateTable) *Handler {
	dist := referral.NewDistributor(store, rates, store)
	return &Handler{
		Store:       store,
		Distributor: dist,
		Ingester:    batch.NewIngester(dist, store),
		Deposits:    funds.NewDepositProcessor(store),
		Withdrawals: funds.NewWithdrawalProcessor(store),
	}
}

// =============================================================================
// DISTRIBUTION HANDLERS
// =============================================================================

// Distribute triggers a single manual distribution.
// POST /api/distributions
func (h *Handler) Distribute(w http.ResponseWriter, r *http.Request) {
	var req DistributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	category := referral.DefaultCategory
	if req.IncomeType != "" {
		parsed, err := referral.ParseCategory(req.IncomeType)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid income_type", err)
			return
		}
		category = parsed
	}

	outcome := h.Distributor.Distribute(r.Context(),
		referral.VantageKey(req.VantageUsername),
		referral.NewMoney(req.Amount),
		category,
		"manual")

	status := http.StatusOK
	if outcome.Failed() {
		// The outcome carries the reason; the status hints at it.
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, toOutcomeDTO(outcome))
}

// =============================================================================
// BATCH HANDLERS
// =============================================================================

// maxPayloadBytes caps uploaded sheets at 20 MiB.
const maxPayloadBytes = 20 << 20

// RunBatch ingests an uploaded payout sheet synchronously and returns the
// finalized job report.
// POST /api/batches  (multipart field "file", or raw body + ?filename=)
func (h *Handler) RunBatch(w http.ResponseWriter, r *http.Request) {
	var (
		payload  io.Reader
		filename string
	)

	if err := r.ParseMultipartForm(maxPayloadBytes); err == nil {
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			writeError(w, http.StatusBadRequest, "Missing multipart field 'file'", ferr)
			return
		}
		defer file.Close()
		payload = file
		filename = header.Filename
	} else {
		// Raw body upload; the filename query parameter carries the extension.
		filename = r.URL.Query().Get("filename")
		if filename == "" {
			writeError(w, http.StatusBadRequest, "filename query parameter is required for raw uploads", nil)
			return
		}
		payload = http.MaxBytesReader(w, r.Body, maxPayloadBytes)
	}

	submittedBy := referral.UserID(0)
	if s := r.URL.Query().Get("submitted_by"); s != "" {
		if id, err := strconv.ParseInt(s, 10, 64); err == nil {
			submittedBy = referral.UserID(id)
		}
	}

	job := h.Ingester.Run(r.Context(), filename, payload, submittedBy)
	writeJSON(w, http.StatusOK, toJobDTO(job))
}

// ListBatches returns all job reports, newest first.
// GET /api/batches
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.Store.ListJobs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list jobs", err)
		return
	}

	dtos := make([]JobDTO, len(jobs))
	for i, j := range jobs {
		dtos[i] = toJobDTO(j)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBatch returns one job report.
// GET /api/batches/{id}
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := h.Store.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get job", err)
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "Job not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toJobDTO(*job))
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// ListUsers returns all users.
// GET /api/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users", err)
		return
	}

	dtos := make([]UserDTO, len(users))
	for i := range users {
		dtos[i] = toUserDTO(&users[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateUser creates a referral-tree node.
// POST /api/users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required", nil)
		return
	}

	u := &referral.User{
		Username:   req.Username,
		VantageKey: referral.VantageKey(req.VantageUsername),
		IsActive:   req.IsActive,
	}
	if req.ParentID != nil {
		pid := referral.UserID(*req.ParentID)
		if _, err := h.Store.GetUser(r.Context(), pid); err != nil {
			writeError(w, http.StatusBadRequest, "parent_id does not exist", err)
			return
		}
		u.ParentID = &pid
	}

	if err := h.Store.CreateUser(r.Context(), u); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(u))
}

// userByKey resolves the {key} URL parameter, writing the error response
// itself on failure.
func (h *Handler) userByKey(w http.ResponseWriter, r *http.Request) *referral.User {
	key := referral.VantageKey(chi.URLParam(r, "key"))

	u, err := h.Store.FindByVantageKey(r.Context(), key)
	if err != nil {
		if referral.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "User not found", err)
		} else {
			writeError(w, http.StatusInternalServerError, "Failed to get user", err)
		}
		return nil
	}
	return u
}

// GetUser returns a single user by vantage username.
// GET /api/users/{key}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u := h.userByKey(w, r)
	if u == nil {
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(u))
}

// GetIncomes returns a user's income history.
// GET /api/users/{key}/incomes?income_type=DAILY&limit=50
func (h *Handler) GetIncomes(w http.ResponseWriter, r *http.Request) {
	u := h.userByKey(w, r)
	if u == nil {
		return
	}

	filter := sqlite.IncomeFilter{}
	if t := r.URL.Query().Get("income_type"); t != "" {
		category, err := referral.ParseCategory(t)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid income_type", err)
			return
		}
		filter.Category = category
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		if limit, err := strconv.Atoi(l); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}

	incomes, err := h.Store.ListIncomes(r.Context(), u.ID, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list incomes", err)
		return
	}

	dtos := make([]IncomeDTO, len(incomes))
	for i, in := range incomes {
		dtos[i] = toIncomeDTO(in)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetReferrals returns a user's direct referrals.
// GET /api/users/{key}/referrals
func (h *Handler) GetReferrals(w http.ResponseWriter, r *http.Request) {
	u := h.userByKey(w, r)
	if u == nil {
		return
	}

	referrals, err := h.Store.ListDirectReferrals(r.Context(), u.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list referrals", err)
		return
	}

	dtos := make([]UserDTO, len(referrals))
	for i := range referrals {
		dtos[i] = toUserDTO(&referrals[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAncestors returns the chain of ancestors the distributor would walk,
// nearest first, capped at the maximum commission depth.
// GET /api/users/{key}/ancestors
func (h *Handler) GetAncestors(w http.ResponseWriter, r *http.Request) {
	u := h.userByKey(w, r)
	if u == nil {
		return
	}

	dtos := make([]UserDTO, 0, referral.MaxLevel)
	current := u
	for level := 1; level <= referral.MaxLevel; level++ {
		parent, err := h.Store.ParentOf(r.Context(), current)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to walk ancestors", err)
			return
		}
		if parent == nil {
			break
		}
		dtos = append(dtos, toUserDTO(parent))
		current = parent
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ToggleActive flips a user's activation flag.
// POST /api/users/{key}/toggle-active
func (h *Handler) ToggleActive(w http.ResponseWriter, r *http.Request) {
	u := h.userByKey(w, r)
	if u == nil {
		return
	}

	if err := h.Store.SetUserActive(r.Context(), u.ID, !u.IsActive); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to toggle activation", err)
		return
	}
	u.IsActive = !u.IsActive
	writeJSON(w, http.StatusOK, toUserDTO(u))
}

// =============================================================================
// DEPOSIT HANDLERS
// =============================================================================

// CreateDeposit opens a deposit request.
// POST /api/deposits
func (h *Handler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	var req CreateDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.USDTAddress == "" {
		writeError(w, http.StatusBadRequest, "usdt_address is required", nil)
		return
	}

	d, err := h.Deposits.Create(r.Context(),
		referral.UserID(req.UserID), referral.NewMoney(req.Amount), req.USDTAddress, req.Notes)
	if err != nil {
		writeDomainError(w, "Failed to create deposit", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDepositDTO(d))
}

// AttachDepositProof records payment evidence.
// POST /api/deposits/{id}/screenshot
func (h *Handler) AttachDepositProof(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req AttachProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	d, err := h.Deposits.AttachProof(r.Context(), id, req.Screenshot, req.TransactionHash)
	if err != nil {
		writeDomainError(w, "Failed to attach proof", err)
		return
	}
	writeJSON(w, http.StatusOK, toDepositDTO(d))
}

// ProcessDeposit applies an admin decision.
// POST /api/deposits/{id}/process
func (h *Handler) ProcessDeposit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ProcessDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	d, err := h.Deposits.Process(r.Context(), id,
		funds.DepositStatus(req.Status), req.TransactionHash, req.AdminNotes)
	if err != nil {
		writeDomainError(w, "Failed to process deposit", err)
		return
	}
	writeJSON(w, http.StatusOK, toDepositDTO(d))
}

// ListDeposits returns deposit requests, optionally filtered.
// GET /api/deposits?user_id=1&status=PENDING
func (h *Handler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	var userID referral.UserID
	if s := r.URL.Query().Get("user_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid user_id", err)
			return
		}
		userID = referral.UserID(id)
	}
	status := funds.DepositStatus(r.URL.Query().Get("status"))

	deposits, err := h.Store.ListDeposits(r.Context(), userID, status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list deposits", err)
		return
	}

	dtos := make([]DepositDTO, len(deposits))
	for i := range deposits {
		dtos[i] = toDepositDTO(&deposits[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// WITHDRAWAL HANDLERS
// =============================================================================

// CreateWithdrawal opens a payout request; the amount is reserved
// immediately.
// POST /api/withdrawals
func (h *Handler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req CreateWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	wd, err := h.Withdrawals.Request(r.Context(),
		referral.UserID(req.UserID), referral.NewMoney(req.Amount))
	if err != nil {
		writeDomainError(w, "Failed to create withdrawal", err)
		return
	}
	writeJSON(w, http.StatusCreated, toWithdrawalDTO(wd))
}

// ProcessWithdrawal applies an admin decision.
// POST /api/withdrawals/{id}/process
func (h *Handler) ProcessWithdrawal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ProcessWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	wd, err := h.Withdrawals.Process(r.Context(), id,
		funds.WithdrawalStatus(req.Status), referral.UserID(req.AdminID), req.AdminNotes)
	if err != nil {
		writeDomainError(w, "Failed to process withdrawal", err)
		return
	}
	writeJSON(w, http.StatusOK, toWithdrawalDTO(wd))
}

// ListWithdrawals returns payout requests, optionally filtered.
// GET /api/withdrawals?user_id=1&status=PENDING
func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	var userID referral.UserID
	if s := r.URL.Query().Get("user_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid user_id", err)
			return
		}
		userID = referral.UserID(id)
	}
	status := funds.WithdrawalStatus(r.URL.Query().Get("status"))

	withdrawals, err := h.Store.ListWithdrawals(r.Context(), userID, status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list withdrawals", err)
		return
	}

	dtos := make([]WithdrawalDTO, len(withdrawals))
	for i := range withdrawals {
		dtos[i] = toWithdrawalDTO(&withdrawals[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case referral.IsNotFound(err) || errors.Is(err, funds.ErrDepositNotFound) ||
		errors.Is(err, funds.ErrWithdrawalNotFound):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, referral.ErrDuplicateTransactionHash) ||
		errors.Is(err, funds.ErrInvalidTransition):
		writeError(w, http.StatusConflict, message, err)
	case referral.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
