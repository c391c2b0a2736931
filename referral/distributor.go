/*
distributor.go - Five-level upward commission traversal

PURPOSE:

	Given a source event (vantage key, amount, period tag), walk the referral
	ancestry of the source user and credit each qualifying ancestor a
	percentage of the amount, up to five levels.

ALGORITHM:
 1. Resolve the source user. Unknown key: outcome carries one error,
    nothing is credited.
 2. Start at the source's direct referrer, level 1.
 3. While an ancestor exists and level <= 5:
    - An inactive ancestor is skipped, but the level counter is still
    consumed (implemented platform behavior; see DESIGN.md).
    - Otherwise the ancestor qualifies iff its direct-referral count
    reaches the level; a qualifying ancestor earns amount * rate.
    - Advance to the ancestor's parent, increment the level.
 4. Apply all planned credits as one atomic unit.

FAILURE SEMANTICS:

	The traversal plans first and writes once. A write failure fails the
	whole distribution - no partial credits remain. Failures surface as
	outcome data (Errors non-empty, Distributed zero), never a panic; row
	isolation happens one layer up, in the batch ingester.
*/
package referral

import (
	"context"
	"fmt"
)

// =============================================================================
// DISTRIBUTOR
// =============================================================================

// Distributor orchestrates one distribution: graph reads, qualification,
// and the atomic credit step.
type Distributor struct {
	graph  Graph
	rates  RateTable
	ledger LedgerWriter
}

func NewDistributor(graph Graph, rates RateTable, ledger LedgerWriter) *Distributor {
	return &Distributor{graph: graph, rates: rates, ledger: ledger}
}

// Distribute propagates a source event upward. sourceRef ties resulting
// income records back to their trigger (job id + row number, or "manual").
func (d *Distributor) Distribute(ctx context.Context, key VantageKey, amount Money, category IncomeCategory, sourceRef string) Outcome {
	if key == "" {
		return failed(ErrEmptyVantageKey.Error())
	}
	if !amount.IsPositive() {
		return failed(ErrInvalidAmount.Error())
	}
	if _, err := ParseCategory(string(category)); err != nil {
		return failed(err.Error())
	}

	source, err := d.graph.FindByVantageKey(ctx, key)
	if err != nil {
		if IsNotFound(err) {
			return failed(fmt.Sprintf("user with vantage username '%s' not found", key))
		}
		return failed(fmt.Sprintf("resolving '%s': %v", key, err))
	}

	credits, err := d.plan(ctx, source, key, amount, category, sourceRef)
	if err != nil {
		return failed(err.Error())
	}

	if err := d.ledger.CreditAll(ctx, credits); err != nil {
		return failed(fmt.Sprintf("crediting distribution for '%s': %v", key, err))
	}

	outcome := Outcome{Distributed: Zero()}
	for _, c := range credits {
		outcome.Distributed = outcome.Distributed.Add(c.Amount)
		outcome.BeneficiariesAffected++
	}
	return outcome
}

// plan walks the ancestry and accumulates the credits to apply. Read-only.
func (d *Distributor) plan(ctx context.Context, source *User, key VantageKey, amount Money, category IncomeCategory, sourceRef string) ([]Credit, error) {
	current, err := d.graph.ParentOf(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("resolving referrer of '%s': %w", key, err)
	}

	var credits []Credit
	for level := 1; current != nil && level <= MaxLevel; level++ {
		ancestor := current
		if current, err = d.graph.ParentOf(ctx, ancestor); err != nil {
			return nil, fmt.Errorf("resolving level %d ancestor of '%s': %w", level+1, key, err)
		}

		// Inactive ancestors consume the level without earning.
		if !ancestor.IsActive {
			continue
		}

		directCount, err := d.graph.DirectReferralCount(ctx, ancestor)
		if err != nil {
			return nil, fmt.Errorf("counting referrals of user %d: %w", ancestor.ID, err)
		}

		rate := d.rates.RateFor(level, directCount)
		if !rate.IsPositive() {
			continue
		}

		credits = append(credits, Credit{
			Beneficiary:      ancestor.ID,
			Amount:           amount.Mul(rate),
			Percentage:       rate,
			Level:            level,
			Category:         category,
			Description:      fmt.Sprintf("Level %d commission from %s", level, key),
			SourceVantageKey: key,
			SourceAmount:     amount,
			SourceRef:        sourceRef,
		})
	}
	return credits, nil
}

func failed(msg string) Outcome {
	return Outcome{Distributed: Zero(), Errors: []string{msg}}
}
