/*
revision.go - Splitting a recurring rule at a date

PURPOSE:
  "From July on, rent is 150 instead of 100." A revision truncates the
  base rule just before the split date and creates a new rule that
  carries the new value from the split date to the base's original end.

  The whole revision is one store transaction:
    1. truncate base EndDate to EffectiveFrom - 1 day
    2. drop and regenerate the base rule's events, then delete any that
       a working-day shift pushed onto or past EffectiveFrom
    3. create the revision rule (BaseRuleID = base)
    4. generate its events
    5. recompute the cache from the base StartDate through
       EffectiveFrom + horizon (regeneration may move earlier events)

  A failure at any step leaves the base rule and its events untouched.

EXAMPLE:
  base:     monthly 100, 2025-01-01 .. 2025-12-31
  revise:   EffectiveFrom 2025-07-01, Value 150
  result:   base      2025-01-01 .. 2025-06-30  (6 x 100)
            revision  2025-07-01 .. 2025-12-31  (6 x 150)
*/
package cashflow

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/cashflow/logger"
)

// RevisionInput describes a split. Name and Certainty default to the
// base rule's when empty.
type RevisionInput struct {
	BaseRuleID    RuleID
	EffectiveFrom Date
	Value         decimal.Decimal
	Name          string
	Certainty     Certainty
}

// RevisionResult is the truncated base and the new revision, each with
// the events it now owns.
type RevisionResult struct {
	Base     RuleResult
	Revision RuleResult
}

// validateSplit requires StartDate < at <= EndDate.
func validateSplit(base RecurringRule, at Date) error {
	if base.EndDate.IsZero() {
		return &RuleBoundError{RuleID: base.ID}
	}
	if at.IsZero() {
		return &ValidationError{Field: "effective_from", Reason: "required", Err: ErrMissingField}
	}
	if !at.After(base.StartDate) || at.After(base.EndDate) {
		return &ValidationError{
			Field:  "effective_from",
			Reason: fmt.Sprintf("%s not within (%s, %s]", at, base.StartDate, base.EndDate),
			Err:    ErrInvalidSplitDate,
		}
	}
	return nil
}

// ReviseRule splits the base rule at in.EffectiveFrom.
func (p *Planner) ReviseRule(ctx context.Context, in RevisionInput) (RevisionResult, error) {
	var result RevisionResult
	err := p.Store.WithTx(ctx, func(s Store) error {
		base, err := s.GetRule(ctx, in.BaseRuleID)
		if err != nil {
			return err
		}
		if base == nil {
			return fmt.Errorf("%w: %s", ErrRuleNotFound, in.BaseRuleID)
		}
		if err := validateSplit(*base, in.EffectiveFrom); err != nil {
			return err
		}

		revision := RecurringRule{
			ID:             NewRuleID(),
			Name:           in.Name,
			Value:          in.Value,
			Direction:      base.Direction,
			Certainty:      in.Certainty,
			StartDate:      in.EffectiveFrom,
			EndDate:        base.EndDate,
			Frequency:      base.Frequency,
			BankAccountID:  base.BankAccountID,
			DecisionPathID: base.DecisionPathID,
			BaseRuleID:     base.ID,
		}
		if revision.Name == "" {
			revision.Name = base.Name
		}
		if revision.Certainty == "" {
			revision.Certainty = base.Certainty
		}
		if err := revision.Validate(); err != nil {
			return err
		}

		truncated := *base
		truncated.EndDate = in.EffectiveFrom.AddDays(-1)

		baseEvents, err := p.saveRuleWithEvents(ctx, s, truncated)
		if err != nil {
			return fmt.Errorf("truncate base rule: %w", err)
		}
		if _, err := s.DeleteEventsByRule(ctx, base.ID, in.EffectiveFrom); err != nil {
			return fmt.Errorf("truncate base rule: %w", err)
		}
		baseEvents = eventsBefore(baseEvents, in.EffectiveFrom)
		revEvents, err := p.saveRuleWithEvents(ctx, s, revision)
		if err != nil {
			return fmt.Errorf("create revision: %w", err)
		}

		result = RevisionResult{
			Base:     RuleResult{Rule: truncated, Events: baseEvents},
			Revision: RuleResult{Rule: revision, Events: revEvents},
		}
		r := DateRange{
			Start: MinDate(base.StartDate, in.EffectiveFrom),
			End:   HorizonFrom(in.EffectiveFrom, p.Horizon).End,
		}
		return p.recomputeRange(ctx, s, base.BankAccountID, r)
	})
	if err != nil {
		return RevisionResult{}, err
	}

	logger.FromContext(ctx).Info().
		Str("base_rule_id", string(in.BaseRuleID)).
		Str("revision_rule_id", string(result.Revision.Rule.ID)).
		Str("effective_from", in.EffectiveFrom.String()).
		Msg("recurring rule revised")
	return result, nil
}

// eventsBefore keeps the events dated strictly before at.
func eventsBefore(events []ProjectedEvent, at Date) []ProjectedEvent {
	kept := events[:0]
	for _, e := range events {
		if e.Date.Before(at) {
			kept = append(kept, e)
		}
	}
	return kept
}
