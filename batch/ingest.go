/*
ingest.go - Batch ingestion pipeline

PURPOSE:

	Drives the commission distributor from tabular input: one row = one
	source event. Rows are processed strictly sequentially, in input order,
	because later rows may hit the same ancestors whose balances earlier rows
	just moved.

FAILURE SEMANTICS:
  - A malformed row is recorded as a row error; the batch continues.
  - A distribution whose outcome carries errors marks the row errored.
  - A structural failure (unreadable payload, missing columns) errs the
    whole job and counts every row as errored.
  - The job record is finalized EXACTLY ONCE in every path, with whatever
    counts were accumulated, is_processed true and a completion timestamp.
    A job is never left open-ended.

SEE ALSO:
  - rows.go:                payload decoding and the column schema
  - referral/distributor.go: what happens per row
*/
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/brandfx/commission-engine/referral"
)

// =============================================================================
// JOB - One ingestion run
// =============================================================================

// Job tracks a single batch run. Created at ingestion start, finalized at
// ingestion end whether the run succeeded or not.
type Job struct {
	ID          string
	Filename    string
	SubmittedBy referral.UserID

	TotalRows        int
	ProcessedRows    int
	ErrorRows        int
	TotalDistributed referral.Money
	IsProcessed      bool
	Errors           []string

	SubmittedAt time.Time
	ProcessedAt *time.Time
}

// JobStore persists job records.
type JobStore interface {
	// CreateJob inserts the open job record at ingestion start.
	CreateJob(ctx context.Context, job *Job) error

	// FinalizeJob writes the completed counts. Called exactly once per job.
	FinalizeJob(ctx context.Context, job *Job) error
}

// Distributor is the single-event entry point the ingester drives.
// *referral.Distributor satisfies it.
type Distributor interface {
	Distribute(ctx context.Context, key referral.VantageKey, amount referral.Money, category referral.IncomeCategory, sourceRef string) referral.Outcome
}

// =============================================================================
// INGESTER
// =============================================================================

type Ingester struct {
	dist Distributor
	jobs JobStore
}

func NewIngester(dist Distributor, jobs JobStore) *Ingester {
	return &Ingester{dist: dist, jobs: jobs}
}

// Run ingests one payload and returns the finalized job report.
func (in *Ingester) Run(ctx context.Context, filename string, payload io.Reader, submittedBy referral.UserID) Job {
	job := Job{
		ID:               uuid.NewString(),
		Filename:         filename,
		SubmittedBy:      submittedBy,
		TotalDistributed: referral.Zero(),
		SubmittedAt:      time.Now().UTC(),
	}

	if err := in.jobs.CreateJob(ctx, &job); err != nil {
		job.Errors = append(job.Errors, fmt.Sprintf("creating job record: %v", err))
	}

	// Finalization is unconditional: whatever the loop below did or failed
	// to do, the job closes with the accumulated counts.
	defer func() {
		now := time.Now().UTC()
		job.IsProcessed = true
		job.ProcessedAt = &now
		if err := in.jobs.FinalizeJob(ctx, &job); err != nil {
			log.Printf("finalizing job %s: %v", job.ID, err)
		}
	}()

	rows, err := DecodeRows(filename, payload)
	if err != nil {
		job.Errors = append(job.Errors, err.Error())
		var structural *StructuralError
		if errors.As(err, &structural) {
			job.TotalRows = structural.Rows
			job.ErrorRows = structural.Rows
		}
		return job
	}
	job.TotalRows = len(rows)

	for _, row := range rows {
		in.processRow(ctx, &job, row)
	}
	return job
}

// processRow validates and distributes one row, isolating its failures.
func (in *Ingester) processRow(ctx context.Context, job *Job, row Row) {
	key, amount, category, err := parseRow(row)
	if err != nil {
		job.ErrorRows++
		job.Errors = append(job.Errors, fmt.Sprintf("row %d: %v", row.Number, err))
		return
	}

	sourceRef := fmt.Sprintf("%s#%d", job.ID, row.Number)
	outcome := in.dist.Distribute(ctx, key, amount, category, sourceRef)
	if outcome.Failed() {
		job.ErrorRows++
		job.Errors = append(job.Errors, fmt.Sprintf("row %d: %s", row.Number, strings.Join(outcome.Errors, ", ")))
		return
	}

	job.ProcessedRows++
	job.TotalDistributed = job.TotalDistributed.Add(outcome.Distributed)
}

// parseRow converts raw cells into validated distribution input.
func parseRow(row Row) (referral.VantageKey, referral.Money, referral.IncomeCategory, error) {
	key := strings.TrimSpace(row.VantageKey)
	if key == "" {
		return "", referral.Zero(), "", referral.ErrEmptyVantageKey
	}

	value, err := decimal.NewFromString(strings.TrimSpace(row.Amount))
	if err != nil {
		return "", referral.Zero(), "", fmt.Errorf("invalid amount %q", row.Amount)
	}
	amount := referral.Money{Value: value}
	if !amount.IsPositive() {
		return "", referral.Zero(), "", referral.ErrInvalidAmount
	}

	raw := strings.ToUpper(strings.TrimSpace(row.Category))
	if raw == "" {
		return referral.VantageKey(key), amount, referral.DefaultCategory, nil
	}
	category, err := referral.ParseCategory(raw)
	if err != nil {
		return "", referral.Zero(), "", err
	}
	return referral.VantageKey(key), amount, category, nil
}
