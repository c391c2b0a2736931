/*
Package sqlite provides the SQLite-backed implementation of the engine's
storage interfaces.

PURPOSE:

	Implements all persistence for the commission platform: the referral
	graph reads, the atomic credit primitive, batch job records, and the
	deposit/withdrawal workflows. In production the same patterns apply to
	PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:

	referral.Graph:        read-only referral tree
	referral.LedgerWriter: atomic distribution credits
	batch.JobStore:        job lifecycle records
	funds.DepositStore:    deposit workflow (incl. wallet credit on complete)
	funds.WithdrawalStore: withdrawal workflow (incl. wallet debit/refund)

APPEND-ONLY ENFORCEMENT:

	The incomes table is append-only: no UPDATE, no DELETE statements exist
	against it anywhere in this package.

MONEY REPRESENTATION:

	Monetary columns are decimal strings, never REAL. Wallet mutations read
	the stored value and rewrite it inside the same SQL transaction while the
	store-wide writer lock is held, so concurrent credits to a shared
	ancestor serialize instead of losing updates, and decimal precision is
	preserved end to end.

KEY TABLES:

	users:        referral tree nodes + wallet fields
	incomes:      immutable commission ledger
	batch_jobs:   one record per ingestion run
	deposits:     deposit requests (status machine)
	withdrawals:  withdrawal requests (status machine)

WAL MODE:

	SQLite is opened with WAL for better concurrency: readers don't block,
	single writer at a time, better crash recovery.

USAGE:

	store, err := sqlite.New("./data/commission.db")
	if err != nil {
	    log.Fatal(err)
	}
	defer store.Close()

	dist := referral.NewDistributor(store, referral.DefaultRateTable(), store)

MIGRATION:

	Schema is auto-migrated on New(). For production, use a proper migration
	tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - referral/ledger.go:  the atomicity contract CreditAll satisfies
  - referral/store:      in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/brandfx/commission-engine/batch"
	"github.com/brandfx/commission-engine/funds"
	"github.com/brandfx/commission-engine/referral"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Referral tree nodes + wallet fields
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		vantage_username TEXT UNIQUE,
		parent_id INTEGER REFERENCES users(id),
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		wallet_balance TEXT NOT NULL DEFAULT '0',
		total_earned TEXT NOT NULL DEFAULT '0',
		total_withdrawn TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_parent ON users(parent_id);
	CREATE INDEX IF NOT EXISTS idx_users_vantage
		ON users(vantage_username) WHERE vantage_username IS NOT NULL;

	-- Incomes (append-only commission ledger)
	CREATE TABLE IF NOT EXISTS incomes (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		amount TEXT NOT NULL,
		percentage TEXT NOT NULL,
		level INTEGER NOT NULL,
		category TEXT NOT NULL,
		description TEXT,
		source_vantage_username TEXT NOT NULL,
		source_amount TEXT NOT NULL,
		source_ref TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_incomes_user ON incomes(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_incomes_category ON incomes(user_id, category);
	-- For tracing a distribution back to its trigger
	CREATE INDEX IF NOT EXISTS idx_incomes_source_ref
		ON incomes(source_ref) WHERE source_ref IS NOT NULL;

	-- Batch jobs (one per ingestion run)
	CREATE TABLE IF NOT EXISTS batch_jobs (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		submitted_by INTEGER NOT NULL,
		total_rows INTEGER NOT NULL DEFAULT 0,
		processed_rows INTEGER NOT NULL DEFAULT 0,
		error_rows INTEGER NOT NULL DEFAULT 0,
		total_distributed TEXT NOT NULL DEFAULT '0',
		is_processed BOOLEAN NOT NULL DEFAULT FALSE,
		errors_json TEXT,
		submitted_at TEXT NOT NULL,
		processed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_batch_jobs_submitted ON batch_jobs(submitted_at DESC);

	-- Deposits
	CREATE TABLE IF NOT EXISTS deposits (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		usdt_address TEXT NOT NULL,
		transaction_hash TEXT UNIQUE,
		screenshot TEXT,
		notes TEXT,
		admin_notes TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		confirmed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_deposits_user ON deposits(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_deposits_status ON deposits(status);

	-- Withdrawals
	CREATE TABLE IF NOT EXISTS withdrawals (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL REFERENCES users(id),
		amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		processed_by INTEGER REFERENCES users(id),
		admin_notes TEXT,
		requested_at TEXT NOT NULL,
		processed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_withdrawals_user ON withdrawals(user_id, requested_at DESC);
	CREATE INDEX IF NOT EXISTS idx_withdrawals_status ON withdrawals(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// USERS
// =============================================================================

// CreateUser inserts a referral-tree node and assigns its ID.
func (s *Store) CreateUser(ctx context.Context, u *referral.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	var parentID any
	if u.ParentID != nil {
		parentID = int64(*u.ParentID)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, vantage_username, parent_id, is_active,
			wallet_balance, total_earned, total_withdrawn, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Username,
		nullString(string(u.VantageKey)),
		parentID,
		u.IsActive,
		u.WalletBalance.String(),
		u.TotalEarned.String(),
		u.TotalWithdrawn.String(),
		u.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = referral.UserID(id)
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const userColumns = `id, username, vantage_username, parent_id, is_active,
	wallet_balance, total_earned, total_withdrawn, created_at`

// GetUser retrieves a user by internal ID.
func (s *Store) GetUser(ctx context.Context, id referral.UserID) (*referral.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getUser(ctx, s.db, id)
}

func (s *Store) getUser(ctx context.Context, db querier, id referral.UserID) (*referral.User, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", int64(id))
	return scanUser(row)
}

// ListUsers returns all users ordered by ID.
func (s *Store) ListUsers(ctx context.Context) ([]referral.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectUsers(rows)
}

// ListDirectReferrals returns the direct children of a user, oldest first.
func (s *Store) ListDirectReferrals(ctx context.Context, id referral.UserID) ([]referral.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE parent_id = ? ORDER BY id", int64(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectUsers(rows)
}

// SetUserActive flips the activation flag.
func (s *Store) SetUserActive(ctx context.Context, id referral.UserID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET is_active = ? WHERE id = ?", active, int64(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return referral.ErrUserNotFound
	}
	return nil
}

// =============================================================================
// REFERRAL GRAPH (referral.Graph interface)
// =============================================================================

func (s *Store) FindByVantageKey(ctx context.Context, key referral.VantageKey) (*referral.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE vantage_username = ?", string(key))
	return scanUser(row)
}

func (s *Store) ParentOf(ctx context.Context, u *referral.User) (*referral.User, error) {
	if u.ParentID == nil {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getUser(ctx, s.db, *u.ParentID)
}

func (s *Store) DirectReferralCount(ctx context.Context, u *referral.User) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE parent_id = ?", int64(u.ID)).Scan(&count)
	return count, err
}

// =============================================================================
// LEDGER WRITER (referral.LedgerWriter interface)
// =============================================================================

// CreditAll applies a distribution's credits as one SQL transaction: every
// income insert and every wallet update commits together or not at all.
func (s *Store) CreditAll(ctx context.Context, credits []referral.Credit) error {
	if len(credits) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, c := range credits {
			if err := s.creditTx(ctx, tx, c); err != nil {
				return &referral.CreditError{UserID: c.Beneficiary, Level: c.Level, Err: err}
			}
		}
		return nil
	})
}

func (s *Store) creditTx(ctx context.Context, tx *sql.Tx, c referral.Credit) error {
	u, err := s.getUser(ctx, tx, c.Beneficiary)
	if err != nil {
		return err
	}

	newBalance := u.WalletBalance.Add(c.Amount)
	newEarned := u.TotalEarned.Add(c.Amount)
	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET wallet_balance = ?, total_earned = ? WHERE id = ?",
		newBalance.String(), newEarned.String(), int64(c.Beneficiary)); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO incomes (id, user_id, amount, percentage, level, category,
			description, source_vantage_username, source_amount, source_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		int64(c.Beneficiary),
		c.Amount.String(),
		c.Percentage.String(),
		c.Level,
		string(c.Category),
		nullString(c.Description),
		string(c.SourceVantageKey),
		c.SourceAmount.String(),
		nullString(c.SourceRef),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// =============================================================================
// INCOME QUERIES
// =============================================================================

// IncomeFilter narrows income history queries. Zero values mean "any".
type IncomeFilter struct {
	Category referral.IncomeCategory
	Limit    int
}

// ListIncomes returns a user's income records, newest first.
func (s *Store) ListIncomes(ctx context.Context, userID referral.UserID, filter IncomeFilter) ([]referral.Income, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, user_id, amount, percentage, level, category, description,
		       source_vantage_username, source_amount, source_ref, created_at
		FROM incomes
		WHERE user_id = ?`
	args := []any{int64(userID)}

	if filter.Category != "" {
		query += " AND category = ?"
		args = append(args, string(filter.Category))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query incomes: %w", err)
	}
	defer rows.Close()

	var incomes []referral.Income
	for rows.Next() {
		income, err := scanIncome(rows)
		if err != nil {
			return nil, err
		}
		incomes = append(incomes, income)
	}
	return incomes, rows.Err()
}

// IncomeTotal sums a user's income, optionally per category.
func (s *Store) IncomeTotal(ctx context.Context, userID referral.UserID, category referral.IncomeCategory) (referral.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT amount FROM incomes WHERE user_id = ?"
	args := []any{int64(userID)}
	if category != "" {
		query += " AND category = ?"
		args = append(args, string(category))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return referral.Zero(), err
	}
	defer rows.Close()

	// Summed in decimal, not SQL: the amount column holds decimal strings.
	total := referral.Zero()
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return referral.Zero(), err
		}
		total = total.Add(referral.MustParseMoney(amount))
	}
	return total, rows.Err()
}

// =============================================================================
// BATCH JOBS (batch.JobStore interface)
// =============================================================================

func (s *Store) CreateJob(ctx context.Context, job *batch.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batch_jobs (id, filename, submitted_by, total_distributed, submitted_at)
		VALUES (?, ?, ?, ?, ?)`,
		job.ID,
		job.Filename,
		int64(job.SubmittedBy),
		job.TotalDistributed.String(),
		job.SubmittedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *Store) FinalizeJob(ctx context.Context, job *batch.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	errorsJSON, _ := json.Marshal(job.Errors)

	var processedAt any
	if job.ProcessedAt != nil {
		processedAt = job.ProcessedAt.Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE batch_jobs
		SET total_rows = ?, processed_rows = ?, error_rows = ?,
		    total_distributed = ?, is_processed = ?, errors_json = ?, processed_at = ?
		WHERE id = ?`,
		job.TotalRows,
		job.ProcessedRows,
		job.ErrorRows,
		job.TotalDistributed.String(),
		job.IsProcessed,
		string(errorsJSON),
		processedAt,
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize job: %w", err)
	}
	return nil
}

// GetJob retrieves one job record, or nil when absent.
func (s *Store) GetJob(ctx context.Context, id string) (*batch.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs, err := s.queryJobs(ctx, "WHERE id = ?", id)
	if err != nil || len(jobs) == 0 {
		return nil, err
	}
	return &jobs[0], nil
}

// ListJobs returns job records, newest first.
func (s *Store) ListJobs(ctx context.Context) ([]batch.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryJobs(ctx, "")
}

func (s *Store) queryJobs(ctx context.Context, where string, args ...any) ([]batch.Job, error) {
	query := `
		SELECT id, filename, submitted_by, total_rows, processed_rows, error_rows,
		       total_distributed, is_processed, errors_json, submitted_at, processed_at
		FROM batch_jobs ` + where + " ORDER BY submitted_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []batch.Job
	for rows.Next() {
		var (
			job         batch.Job
			submittedBy int64
			distributed string
			errorsJSON  sql.NullString
			submittedAt string
			processedAt sql.NullString
		)
		if err := rows.Scan(&job.ID, &job.Filename, &submittedBy, &job.TotalRows,
			&job.ProcessedRows, &job.ErrorRows, &distributed, &job.IsProcessed,
			&errorsJSON, &submittedAt, &processedAt); err != nil {
			return nil, err
		}

		job.SubmittedBy = referral.UserID(submittedBy)
		job.TotalDistributed = referral.MustParseMoney(distributed)
		job.SubmittedAt, _ = time.Parse(time.RFC3339, submittedAt)
		if errorsJSON.Valid && errorsJSON.String != "" {
			json.Unmarshal([]byte(errorsJSON.String), &job.Errors)
		}
		if processedAt.Valid {
			t, _ := time.Parse(time.RFC3339, processedAt.String)
			job.ProcessedAt = &t
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// =============================================================================
// DEPOSITS (funds.DepositStore interface)
// =============================================================================

func (s *Store) CreateDeposit(ctx context.Context, d *funds.Deposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deposits (id, user_id, amount, status, usdt_address,
			transaction_hash, screenshot, notes, admin_notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID,
		int64(d.UserID),
		d.Amount.String(),
		string(d.Status),
		d.USDTAddress,
		nullString(d.TransactionHash),
		nullString(d.Screenshot),
		nullString(d.Notes),
		nullString(d.AdminNotes),
		d.CreatedAt.Format(time.RFC3339),
		d.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return referral.ErrDuplicateTransactionHash
		}
		return fmt.Errorf("failed to create deposit: %w", err)
	}
	return nil
}

const depositColumns = `id, user_id, amount, status, usdt_address, transaction_hash,
	screenshot, notes, admin_notes, created_at, updated_at, confirmed_at`

func (s *Store) GetDeposit(ctx context.Context, id string) (*funds.Deposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deposits, err := s.queryDeposits(ctx, "WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(deposits) == 0 {
		return nil, funds.ErrDepositNotFound
	}
	return &deposits[0], nil
}

func (s *Store) ListDeposits(ctx context.Context, userID referral.UserID, status funds.DepositStatus) ([]funds.Deposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		clauses []string
		args    []any
	)
	if userID != 0 {
		clauses = append(clauses, "user_id = ?")
		args = append(args, int64(userID))
	}
	if status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(status))
	}

	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	return s.queryDeposits(ctx, where, args...)
}

func (s *Store) queryDeposits(ctx context.Context, where string, args ...any) ([]funds.Deposit, error) {
	query := "SELECT " + depositColumns + " FROM deposits " + where + " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deposits []funds.Deposit
	for rows.Next() {
		var (
			d           funds.Deposit
			userID      int64
			amount      string
			txHash      sql.NullString
			screenshot  sql.NullString
			notes       sql.NullString
			adminNotes  sql.NullString
			createdAt   string
			updatedAt   string
			confirmedAt sql.NullString
		)
		if err := rows.Scan(&d.ID, &userID, &amount, &d.Status, &d.USDTAddress,
			&txHash, &screenshot, &notes, &adminNotes, &createdAt, &updatedAt, &confirmedAt); err != nil {
			return nil, err
		}

		d.UserID = referral.UserID(userID)
		d.Amount = referral.MustParseMoney(amount)
		d.TransactionHash = txHash.String
		d.Screenshot = screenshot.String
		d.Notes = notes.String
		d.AdminNotes = adminNotes.String
		d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		if confirmedAt.Valid {
			t, _ := time.Parse(time.RFC3339, confirmedAt.String)
			d.ConfirmedAt = &t
		}
		deposits = append(deposits, d)
	}
	return deposits, rows.Err()
}

func (s *Store) UpdateDeposit(ctx context.Context, d *funds.Deposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateDeposit(ctx, s.db, d)
}

func (s *Store) updateDeposit(ctx context.Context, db querier, d *funds.Deposit) error {
	var confirmedAt any
	if d.ConfirmedAt != nil {
		confirmedAt = d.ConfirmedAt.Format(time.RFC3339)
	}

	res, err := db.ExecContext(ctx, `
		UPDATE deposits
		SET status = ?, transaction_hash = ?, screenshot = ?, admin_notes = ?,
		    updated_at = ?, confirmed_at = ?
		WHERE id = ?`,
		string(d.Status),
		nullString(d.TransactionHash),
		nullString(d.Screenshot),
		nullString(d.AdminNotes),
		d.UpdatedAt.Format(time.RFC3339),
		confirmedAt,
		d.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return referral.ErrDuplicateTransactionHash
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return funds.ErrDepositNotFound
	}
	return nil
}

// CompleteDeposit flips the deposit COMPLETED and credits the wallet in one
// transaction.
func (s *Store) CompleteDeposit(ctx context.Context, d *funds.Deposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.updateDeposit(ctx, tx, d); err != nil {
			return err
		}

		u, err := s.getUser(ctx, tx, d.UserID)
		if err != nil {
			return err
		}
		newBalance := u.WalletBalance.Add(d.Amount)
		newEarned := u.TotalEarned.Add(d.Amount)
		_, err = tx.ExecContext(ctx,
			"UPDATE users SET wallet_balance = ?, total_earned = ? WHERE id = ?",
			newBalance.String(), newEarned.String(), int64(d.UserID))
		return err
	})
}

// ExpireStaleDeposits sweeps PENDING deposits older than cutoff to EXPIRED.
func (s *Store) ExpireStaleDeposits(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE deposits
		SET status = ?, updated_at = ?
		WHERE status = ? AND created_at < ?`,
		string(funds.DepositExpired),
		time.Now().UTC().Format(time.RFC3339),
		string(funds.DepositPending),
		cutoff.Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// =============================================================================
// WITHDRAWALS (funds.WithdrawalStore interface)
// =============================================================================

// CreateWithdrawal inserts the request and debits the wallet in one
// transaction. Fails when the wallet cannot cover the amount.
func (s *Store) CreateWithdrawal(ctx context.Context, w *funds.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		u, err := s.getUser(ctx, tx, w.UserID)
		if err != nil {
			return err
		}
		if u.WalletBalance.LessThan(w.Amount) {
			return &referral.InsufficientBalanceError{
				UserID:    w.UserID,
				Available: u.WalletBalance,
				Requested: w.Amount,
			}
		}

		newBalance := u.WalletBalance.Sub(w.Amount)
		if _, err := tx.ExecContext(ctx,
			"UPDATE users SET wallet_balance = ? WHERE id = ?",
			newBalance.String(), int64(w.UserID)); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO withdrawals (id, user_id, amount, status, admin_notes, requested_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			w.ID,
			int64(w.UserID),
			w.Amount.String(),
			string(w.Status),
			nullString(w.AdminNotes),
			w.RequestedAt.Format(time.RFC3339),
		)
		return err
	})
}

func (s *Store) GetWithdrawal(ctx context.Context, id string) (*funds.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	withdrawals, err := s.queryWithdrawals(ctx, "WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(withdrawals) == 0 {
		return nil, funds.ErrWithdrawalNotFound
	}
	return &withdrawals[0], nil
}

func (s *Store) ListWithdrawals(ctx context.Context, userID referral.UserID, status funds.WithdrawalStatus) ([]funds.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		clauses []string
		args    []any
	)
	if userID != 0 {
		clauses = append(clauses, "user_id = ?")
		args = append(args, int64(userID))
	}
	if status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(status))
	}

	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	return s.queryWithdrawals(ctx, where, args...)
}

func (s *Store) queryWithdrawals(ctx context.Context, where string, args ...any) ([]funds.Withdrawal, error) {
	query := `
		SELECT id, user_id, amount, status, processed_by, admin_notes, requested_at, processed_at
		FROM withdrawals ` + where + " ORDER BY requested_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var withdrawals []funds.Withdrawal
	for rows.Next() {
		var (
			w           funds.Withdrawal
			userID      int64
			amount      string
			processedBy sql.NullInt64
			adminNotes  sql.NullString
			requestedAt string
			processedAt sql.NullString
		)
		if err := rows.Scan(&w.ID, &userID, &amount, &w.Status, &processedBy,
			&adminNotes, &requestedAt, &processedAt); err != nil {
			return nil, err
		}

		w.UserID = referral.UserID(userID)
		w.Amount = referral.MustParseMoney(amount)
		w.AdminNotes = adminNotes.String
		if processedBy.Valid {
			id := referral.UserID(processedBy.Int64)
			w.ProcessedBy = &id
		}
		w.RequestedAt, _ = time.Parse(time.RFC3339, requestedAt)
		if processedAt.Valid {
			t, _ := time.Parse(time.RFC3339, processedAt.String)
			w.ProcessedAt = &t
		}
		withdrawals = append(withdrawals, w)
	}
	return withdrawals, rows.Err()
}

func (s *Store) UpdateWithdrawal(ctx context.Context, w *funds.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateWithdrawal(ctx, s.db, w)
}

func (s *Store) updateWithdrawal(ctx context.Context, db querier, w *funds.Withdrawal) error {
	var processedBy any
	if w.ProcessedBy != nil {
		processedBy = int64(*w.ProcessedBy)
	}
	var processedAt any
	if w.ProcessedAt != nil {
		processedAt = w.ProcessedAt.Format(time.RFC3339)
	}

	res, err := db.ExecContext(ctx, `
		UPDATE withdrawals
		SET status = ?, processed_by = ?, admin_notes = ?, processed_at = ?
		WHERE id = ?`,
		string(w.Status),
		processedBy,
		nullString(w.AdminNotes),
		processedAt,
		w.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return funds.ErrWithdrawalNotFound
	}
	return nil
}

// RefundWithdrawal flips the request REJECTED and returns the reserved
// amount to the wallet in one transaction.
func (s *Store) RefundWithdrawal(ctx context.Context, w *funds.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.updateWithdrawal(ctx, tx, w); err != nil {
			return err
		}

		u, err := s.getUser(ctx, tx, w.UserID)
		if err != nil {
			return err
		}
		newBalance := u.WalletBalance.Add(w.Amount)
		_, err = tx.ExecContext(ctx,
			"UPDATE users SET wallet_balance = ? WHERE id = ?",
			newBalance.String(), int64(w.UserID))
		return err
	})
}

// CompleteWithdrawal flips the request COMPLETED and increments the user's
// TotalWithdrawn in one transaction.
func (s *Store) CompleteWithdrawal(ctx context.Context, w *funds.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.updateWithdrawal(ctx, tx, w); err != nil {
			return err
		}

		u, err := s.getUser(ctx, tx, w.UserID)
		if err != nil {
			return err
		}
		newWithdrawn := u.TotalWithdrawn.Add(w.Amount)
		_, err = tx.ExecContext(ctx,
			"UPDATE users SET total_withdrawn = ? WHERE id = ?",
			newWithdrawn.String(), int64(w.UserID))
		return err
	})
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"incomes", "batch_jobs", "deposits", "withdrawals", "users"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Helper functions

func scanUser(row *sql.Row) (*referral.User, error) {
	var (
		u              referral.User
		id             int64
		vantage        sql.NullString
		parentID       sql.NullInt64
		walletBalance  string
		totalEarned    string
		totalWithdrawn string
		createdAt      string
	)

	err := row.Scan(&id, &u.Username, &vantage, &parentID, &u.IsActive,
		&walletBalance, &totalEarned, &totalWithdrawn, &createdAt)
	if err == sql.ErrNoRows {
		return nil, referral.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	u.ID = referral.UserID(id)
	u.VantageKey = referral.VantageKey(vantage.String)
	if parentID.Valid {
		pid := referral.UserID(parentID.Int64)
		u.ParentID = &pid
	}
	u.WalletBalance = referral.MustParseMoney(walletBalance)
	u.TotalEarned = referral.MustParseMoney(totalEarned)
	u.TotalWithdrawn = referral.MustParseMoney(totalWithdrawn)
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &u, nil
}

func collectUsers(rows *sql.Rows) ([]referral.User, error) {
	var users []referral.User
	for rows.Next() {
		var (
			u              referral.User
			id             int64
			vantage        sql.NullString
			parentID       sql.NullInt64
			walletBalance  string
			totalEarned    string
			totalWithdrawn string
			createdAt      string
		)
		if err := rows.Scan(&id, &u.Username, &vantage, &parentID, &u.IsActive,
			&walletBalance, &totalEarned, &totalWithdrawn, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}

		u.ID = referral.UserID(id)
		u.VantageKey = referral.VantageKey(vantage.String)
		if parentID.Valid {
			pid := referral.UserID(parentID.Int64)
			u.ParentID = &pid
		}
		u.WalletBalance = referral.MustParseMoney(walletBalance)
		u.TotalEarned = referral.MustParseMoney(totalEarned)
		u.TotalWithdrawn = referral.MustParseMoney(totalWithdrawn)
		u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanIncome(rows *sql.Rows) (referral.Income, error) {
	var (
		income      referral.Income
		userID      int64
		amount      string
		percentage  string
		description sql.NullString
		sourceKey   string
		sourceAmt   string
		sourceRef   sql.NullString
		createdAt   string
	)

	err := rows.Scan(&income.ID, &userID, &amount, &percentage, &income.Level,
		&income.Category, &description, &sourceKey, &sourceAmt, &sourceRef, &createdAt)
	if err != nil {
		return income, fmt.Errorf("failed to scan income: %w", err)
	}

	income.UserID = referral.UserID(userID)
	income.Amount = referral.MustParseMoney(amount)
	income.Percentage = referral.MustParseMoney(percentage).Value
	income.Description = description.String
	income.SourceVantageKey = referral.VantageKey(sourceKey)
	income.SourceAmount = referral.MustParseMoney(sourceAmt)
	income.SourceRef = sourceRef.String
	income.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return income, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
