/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:

	Defines the JSON structures for API communication. These types decouple
	the internal domain model from the external API contract, allowing:
	- Field renaming without breaking clients
	- API-specific validation
	- Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY AT THE BOUNDARY:

	Domain amounts are decimal; DTOs expose them as float64, which is what
	the frontend consumes. The conversion happens here and only here.

TYPES:

	Users:
	  UserDTO, CreateUserRequest

	Distribution:
	  DistributeRequest, OutcomeDTO, IncomeDTO

	Batch:
	  JobDTO

	Funds:
	  DepositDTO, CreateDepositRequest, AttachProofRequest, ProcessDepositRequest
	  WithdrawalDTO, CreateWithdrawalRequest, ProcessWithdrawalRequest

VALIDATION:

	Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/brandfx/commission-engine/batch"
	"github.com/brandfx/commission-engine/funds"
	"github.com/brandfx/commission-engine/referral"
)

// =============================================================================
// USER TYPES
// =============================================================================

// UserDTO represents a referral-tree node in API responses.
type UserDTO struct {
	ID              int64   `json:"id"`
	Username        string  `json:"username"`
	VantageUsername string  `json:"vantage_username,omitempty"`
	ParentID        *int64  `json:"parent_id,omitempty"`
	IsActive        bool    `json:"is_active"`
	WalletBalance   float64 `json:"wallet_balance"`
	TotalEarned     float64 `json:"total_earned"`
	TotalWithdrawn  float64 `json:"total_withdrawn"`
	CreatedAt       string  `json:"created_at,omitempty"`
}

func toUserDTO(u *referral.User) UserDTO {
	dto := UserDTO{
		ID:              int64(u.ID),
		Username:        u.Username,
		VantageUsername: string(u.VantageKey),
		IsActive:        u.IsActive,
		WalletBalance:   u.WalletBalance.Float64(),
		TotalEarned:     u.TotalEarned.Float64(),
		TotalWithdrawn:  u.TotalWithdrawn.Float64(),
		CreatedAt:       u.CreatedAt.Format(time.RFC3339),
	}
	if u.ParentID != nil {
		pid := int64(*u.ParentID)
		dto.ParentID = &pid
	}
	return dto
}

// CreateUserRequest is the request to create a referral-tree node.
type CreateUserRequest struct {
	Username        string `json:"username"`
	VantageUsername string `json:"vantage_username"`
	ParentID        *int64 `json:"parent_id"`
	IsActive        bool   `json:"is_active"`
}

// =============================================================================
// DISTRIBUTION TYPES
// =============================================================================

// DistributeRequest triggers a single manual distribution.
type DistributeRequest struct {
	VantageUsername string  `json:"vantage_username"`
	Amount          float64 `json:"amount"`
	IncomeType      string  `json:"income_type,omitempty"`
}

// OutcomeDTO reports what one distribution did.
type OutcomeDTO struct {
	TotalDistributed      float64  `json:"total_distributed"`
	BeneficiariesAffected int      `json:"beneficiaries_affected"`
	Errors                []string `json:"errors,omitempty"`
}

func toOutcomeDTO(o referral.Outcome) OutcomeDTO {
	return OutcomeDTO{
		TotalDistributed:      o.Distributed.Float64(),
		BeneficiariesAffected: o.BeneficiariesAffected,
		Errors:                o.Errors,
	}
}

// IncomeDTO represents one commission record.
type IncomeDTO struct {
	ID                    string  `json:"id"`
	UserID                int64   `json:"user_id"`
	Amount                float64 `json:"amount"`
	Percentage            float64 `json:"percentage"`
	Level                 int     `json:"level"`
	IncomeType            string  `json:"income_type"`
	Description           string  `json:"description,omitempty"`
	SourceVantageUsername string  `json:"source_vantage_username"`
	SourceAmount          float64 `json:"source_amount"`
	SourceRef             string  `json:"source_ref,omitempty"`
	CreatedAt             string  `json:"created_at"`
}

func toIncomeDTO(in referral.Income) IncomeDTO {
	pct, _ := in.Percentage.Float64()
	return IncomeDTO{
		ID:                    in.ID,
		UserID:                int64(in.UserID),
		Amount:                in.Amount.Float64(),
		Percentage:            pct,
		Level:                 in.Level,
		IncomeType:            string(in.Category),
		Description:           in.Description,
		SourceVantageUsername: string(in.SourceVantageKey),
		SourceAmount:          in.SourceAmount.Float64(),
		SourceRef:             in.SourceRef,
		CreatedAt:             in.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// BATCH TYPES
// =============================================================================

// JobDTO represents one batch ingestion run.
type JobDTO struct {
	ID               string   `json:"id"`
	Filename         string   `json:"filename"`
	SubmittedBy      int64    `json:"submitted_by"`
	TotalRows        int      `json:"total_rows"`
	ProcessedRows    int      `json:"processed_rows"`
	ErrorRows        int      `json:"error_rows"`
	TotalDistributed float64  `json:"total_distributed"`
	IsProcessed      bool     `json:"is_processed"`
	Errors           []string `json:"errors,omitempty"`
	SubmittedAt      string   `json:"submitted_at"`
	ProcessedAt      string   `json:"processed_at,omitempty"`
}

func toJobDTO(j batch.Job) JobDTO {
	dto := JobDTO{
		ID:               j.ID,
		Filename:         j.Filename,
		SubmittedBy:      int64(j.SubmittedBy),
		TotalRows:        j.TotalRows,
		ProcessedRows:    j.ProcessedRows,
		ErrorRows:        j.ErrorRows,
		TotalDistributed: j.TotalDistributed.Float64(),
		IsProcessed:      j.IsProcessed,
		Errors:           j.Errors,
		SubmittedAt:      j.SubmittedAt.Format(time.RFC3339),
	}
	if j.ProcessedAt != nil {
		dto.ProcessedAt = j.ProcessedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// FUNDS TYPES
// =============================================================================

// DepositDTO represents a deposit request.
type DepositDTO struct {
	ID              string  `json:"id"`
	UserID          int64   `json:"user_id"`
	Amount          float64 `json:"amount"`
	Status          string  `json:"status"`
	USDTAddress     string  `json:"usdt_address"`
	TransactionHash string  `json:"transaction_hash,omitempty"`
	Screenshot      string  `json:"screenshot,omitempty"`
	Notes           string  `json:"notes,omitempty"`
	AdminNotes      string  `json:"admin_notes,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
	ConfirmedAt     string  `json:"confirmed_at,omitempty"`
}

func toDepositDTO(d *funds.Deposit) DepositDTO {
	dto := DepositDTO{
		ID:              d.ID,
		UserID:          int64(d.UserID),
		Amount:          d.Amount.Float64(),
		Status:          string(d.Status),
		USDTAddress:     d.USDTAddress,
		TransactionHash: d.TransactionHash,
		Screenshot:      d.Screenshot,
		Notes:           d.Notes,
		AdminNotes:      d.AdminNotes,
		CreatedAt:       d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       d.UpdatedAt.Format(time.RFC3339),
	}
	if d.ConfirmedAt != nil {
		dto.ConfirmedAt = d.ConfirmedAt.Format(time.RFC3339)
	}
	return dto
}

// CreateDepositRequest opens a deposit.
type CreateDepositRequest struct {
	UserID      int64   `json:"user_id"`
	Amount      float64 `json:"amount"`
	USDTAddress string  `json:"usdt_address"`
	Notes       string  `json:"notes,omitempty"`
}

// AttachProofRequest records payment evidence on a pending deposit.
type AttachProofRequest struct {
	Screenshot      string `json:"screenshot"`
	TransactionHash string `json:"transaction_hash,omitempty"`
}

// ProcessDepositRequest carries an admin decision on a deposit.
type ProcessDepositRequest struct {
	Status          string `json:"status"`
	TransactionHash string `json:"transaction_hash,omitempty"`
	AdminNotes      string `json:"admin_notes,omitempty"`
}

// WithdrawalDTO represents a payout request.
type WithdrawalDTO struct {
	ID          string  `json:"id"`
	UserID      int64   `json:"user_id"`
	Amount      float64 `json:"amount"`
	Status      string  `json:"status"`
	ProcessedBy *int64  `json:"processed_by,omitempty"`
	AdminNotes  string  `json:"admin_notes,omitempty"`
	RequestedAt string  `json:"requested_at"`
	ProcessedAt string  `json:"processed_at,omitempty"`
}

func toWithdrawalDTO(w *funds.Withdrawal) WithdrawalDTO {
	dto := WithdrawalDTO{
		ID:          w.ID,
		UserID:      int64(w.UserID),
		Amount:      w.Amount.Float64(),
		Status:      string(w.Status),
		AdminNotes:  w.AdminNotes,
		RequestedAt: w.RequestedAt.Format(time.RFC3339),
	}
	if w.ProcessedBy != nil {
		id := int64(*w.ProcessedBy)
		dto.ProcessedBy = &id
	}
	if w.ProcessedAt != nil {
		dto.ProcessedAt = w.ProcessedAt.Format(time.RFC3339)
	}
	return dto
}

// CreateWithdrawalRequest opens a payout request.
type CreateWithdrawalRequest struct {
	UserID int64   `json:"user_id"`
	Amount float64 `json:"amount"`
}

// ProcessWithdrawalRequest carries an admin decision on a withdrawal.
type ProcessWithdrawalRequest struct {
	Status     string `json:"status"`
	AdminID    int64  `json:"admin_id"`
	AdminNotes string `json:"admin_notes,omitempty"`
}

// =============================================================================
// COMMON TYPES
// =============================================================================

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
