/*
planner.go - Mutations that keep the daily balance cache current

PURPOSE:
  Every change to events, rules or transaction history invalidates the
  cached balances from the affected date onward. The Planner applies the
  change and the recomputation in ONE store transaction, so a failure
  leaves neither a half-applied mutation nor a stale cache behind.

RECOMPUTE WINDOW:
  [affectedDate, affectedDate + Horizon months]. The horizon is policy
  owned by the caller (configured at startup), not by the Calculator.

OPERATIONS:
  CreateEvent / UpdateEvent / DeleteEvent
  CreateRule / UpdateRule / DeleteRule   (events regenerated from scratch)
  ReviseRule                             (split a rule at a date, see revision.go)
  ImportTransactions                     (new anchors, recompute from earliest)
  DeleteDecisionPath                     (untag events/rules, recompute)
  Refresh / Recalculate                  (scheduler and manual triggers)

SEE ALSO:
  - balance.go: Calculator
  - recurring.go: Expander
*/
package cashflow

import (
	"context"
	"fmt"

	"github.com/warp/cashflow/logger"
)

const (
	// DefaultHorizonMonths is used when a Planner is built with a non-positive horizon.
	DefaultHorizonMonths = 6

	// MaxRecalculateHorizons bounds an explicit Recalculate to this many horizons.
	MaxRecalculateHorizons = 4
)

// Planner applies mutations and recomputes the affected cache window.
type Planner struct {
	Store   TxStore
	Horizon int // months

	// NewEventID overrides event ID generation (tests).
	NewEventID func() EventID
}

func NewPlanner(store TxStore, horizonMonths int) *Planner {
	if horizonMonths <= 0 {
		horizonMonths = DefaultHorizonMonths
	}
	return &Planner{Store: store, Horizon: horizonMonths}
}

// recompute rebuilds the cache for [from, from + horizon].
func (p *Planner) recompute(ctx context.Context, s Store, accountID BankAccountID, from Date) error {
	return p.recomputeRange(ctx, s, accountID, HorizonFrom(from, p.Horizon))
}

func (p *Planner) recomputeRange(ctx context.Context, s Store, accountID BankAccountID, r DateRange) error {
	if err := NewCalculator(s).CalculateDailyBalances(ctx, accountID, r, AllPaths()); err != nil {
		return fmt.Errorf("recompute %s from %s: %w", accountID, r.Start, err)
	}
	return nil
}

func (p *Planner) expander(ctx context.Context, s Store) (*Expander, error) {
	holidays, err := s.ListHolidays(ctx)
	if err != nil {
		return nil, fmt.Errorf("load holidays: %w", err)
	}
	return &Expander{Calendar: HolidayList(holidays), NewID: p.NewEventID}, nil
}

func requireAccount(ctx context.Context, s Store, id BankAccountID) error {
	acc, err := s.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if acc == nil {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return nil
}

// requireDecisionPath accepts an empty id (unconditional).
func requireDecisionPath(ctx context.Context, s Store, id DecisionPathID) error {
	if id == "" {
		return nil
	}
	paths, err := s.ListDecisionPaths(ctx)
	if err != nil {
		return err
	}
	for _, dp := range paths {
		if dp.ID == id {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrDecisionPathNotFound, id)
}

// =============================================================================
// ONE-OFF EVENTS
// =============================================================================

func (p *Planner) CreateEvent(ctx context.Context, e ProjectedEvent) (ProjectedEvent, error) {
	if e.ID == "" {
		e.ID = NewEventID()
	}
	if err := e.Validate(); err != nil {
		return ProjectedEvent{}, err
	}

	err := p.Store.WithTx(ctx, func(s Store) error {
		if err := requireAccount(ctx, s, e.BankAccountID); err != nil {
			return err
		}
		if err := requireDecisionPath(ctx, s, e.DecisionPathID); err != nil {
			return err
		}
		if err := s.SaveEvents(ctx, []ProjectedEvent{e}); err != nil {
			return err
		}
		return p.recompute(ctx, s, e.BankAccountID, e.Date)
	})
	if err != nil {
		return ProjectedEvent{}, err
	}

	logger.FromContext(ctx).Info().
		Str("event_id", string(e.ID)).
		Str("account_id", string(e.BankAccountID)).
		Str("date", e.Date.String()).
		Msg("projected event created")
	return e, nil
}

// UpdateEvent replaces an event. The cache is recomputed from the earlier
// of the old and new dates; if the event moved accounts, both are recomputed.
func (p *Planner) UpdateEvent(ctx context.Context, e ProjectedEvent) (ProjectedEvent, error) {
	if err := e.Validate(); err != nil {
		return ProjectedEvent{}, err
	}

	err := p.Store.WithTx(ctx, func(s Store) error {
		old, err := s.GetEvent(ctx, e.ID)
		if err != nil {
			return err
		}
		if old == nil {
			return fmt.Errorf("%w: %s", ErrEventNotFound, e.ID)
		}
		if err := requireAccount(ctx, s, e.BankAccountID); err != nil {
			return err
		}
		if err := requireDecisionPath(ctx, s, e.DecisionPathID); err != nil {
			return err
		}
		e.RecurringRuleID = old.RecurringRuleID

		if err := s.SaveEvents(ctx, []ProjectedEvent{e}); err != nil {
			return err
		}
		if old.BankAccountID != e.BankAccountID {
			if err := p.recompute(ctx, s, old.BankAccountID, old.Date); err != nil {
				return err
			}
			return p.recompute(ctx, s, e.BankAccountID, e.Date)
		}
		return p.recompute(ctx, s, e.BankAccountID, MinDate(old.Date, e.Date))
	})
	if err != nil {
		return ProjectedEvent{}, err
	}
	return e, nil
}

func (p *Planner) DeleteEvent(ctx context.Context, id EventID) error {
	return p.Store.WithTx(ctx, func(s Store) error {
		old, err := s.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		if old == nil {
			return fmt.Errorf("%w: %s", ErrEventNotFound, id)
		}
		if err := s.DeleteEvent(ctx, id); err != nil {
			return err
		}
		return p.recompute(ctx, s, old.BankAccountID, old.Date)
	})
}

// =============================================================================
// RECURRING RULES
// =============================================================================

// RuleResult is a rule together with the events it currently owns.
type RuleResult struct {
	Rule   RecurringRule
	Events []ProjectedEvent
}

// CreateRule persists the rule and its expanded events.
func (p *Planner) CreateRule(ctx context.Context, rule RecurringRule) (RuleResult, error) {
	if rule.ID == "" {
		rule.ID = NewRuleID()
	}
	if err := rule.Validate(); err != nil {
		return RuleResult{}, err
	}

	var result RuleResult
	err := p.Store.WithTx(ctx, func(s Store) error {
		if err := requireAccount(ctx, s, rule.BankAccountID); err != nil {
			return err
		}
		if err := requireDecisionPath(ctx, s, rule.DecisionPathID); err != nil {
			return err
		}
		events, err := p.saveRuleWithEvents(ctx, s, rule)
		if err != nil {
			return err
		}
		result = RuleResult{Rule: rule, Events: events}
		return p.recompute(ctx, s, rule.BankAccountID, rule.StartDate)
	})
	if err != nil {
		return RuleResult{}, err
	}

	logger.FromContext(ctx).Info().
		Str("rule_id", string(rule.ID)).
		Str("frequency", string(rule.Frequency)).
		Int("events", len(result.Events)).
		Msg("recurring rule created")
	return result, nil
}

// saveRuleWithEvents saves the rule, drops all of its events and
// regenerates them from scratch.
func (p *Planner) saveRuleWithEvents(ctx context.Context, s Store, rule RecurringRule) ([]ProjectedEvent, error) {
	x, err := p.expander(ctx, s)
	if err != nil {
		return nil, err
	}
	events, err := x.Expand(rule)
	if err != nil {
		return nil, err
	}
	if err := s.SaveRule(ctx, rule); err != nil {
		return nil, err
	}
	if _, err := s.DeleteEventsByRule(ctx, rule.ID, Date{}); err != nil {
		return nil, err
	}
	if err := s.SaveEvents(ctx, events); err != nil {
		return nil, err
	}
	return events, nil
}

// UpdateRule replaces a rule and regenerates all of its events.
func (p *Planner) UpdateRule(ctx context.Context, rule RecurringRule) (RuleResult, error) {
	if err := rule.Validate(); err != nil {
		return RuleResult{}, err
	}

	var result RuleResult
	err := p.Store.WithTx(ctx, func(s Store) error {
		old, err := s.GetRule(ctx, rule.ID)
		if err != nil {
			return err
		}
		if old == nil {
			return fmt.Errorf("%w: %s", ErrRuleNotFound, rule.ID)
		}
		if err := requireAccount(ctx, s, rule.BankAccountID); err != nil {
			return err
		}
		if err := requireDecisionPath(ctx, s, rule.DecisionPathID); err != nil {
			return err
		}
		rule.BaseRuleID = old.BaseRuleID

		events, err := p.saveRuleWithEvents(ctx, s, rule)
		if err != nil {
			return err
		}
		result = RuleResult{Rule: rule, Events: events}

		if old.BankAccountID != rule.BankAccountID {
			if err := p.recompute(ctx, s, old.BankAccountID, old.StartDate); err != nil {
				return err
			}
			return p.recompute(ctx, s, rule.BankAccountID, rule.StartDate)
		}
		return p.recompute(ctx, s, rule.BankAccountID, MinDate(old.StartDate, rule.StartDate))
	})
	if err != nil {
		return RuleResult{}, err
	}
	return result, nil
}

// DeleteRule removes the rule and every event it generated.
func (p *Planner) DeleteRule(ctx context.Context, id RuleID) error {
	return p.Store.WithTx(ctx, func(s Store) error {
		old, err := s.GetRule(ctx, id)
		if err != nil {
			return err
		}
		if old == nil {
			return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
		}
		if _, err := s.DeleteEventsByRule(ctx, id, Date{}); err != nil {
			return err
		}
		if err := s.DeleteRule(ctx, id); err != nil {
			return err
		}
		return p.recompute(ctx, s, old.BankAccountID, old.StartDate)
	})
}

// =============================================================================
// TRANSACTION HISTORY
// =============================================================================

// ImportTransactions appends imported statement lines for one account and
// recomputes from the earliest imported date, since every line is a
// potential new anchor.
func (p *Planner) ImportTransactions(ctx context.Context, accountID BankAccountID, records []TransactionRecord) ([]TransactionRecord, error) {
	if len(records) == 0 {
		return records, nil
	}

	earliest := Date{}
	for i := range records {
		r := &records[i]
		if r.Date.IsZero() {
			return nil, &ValidationError{Field: "date", Reason: fmt.Sprintf("record %d has no date", i), Err: ErrMissingField}
		}
		if r.ID == "" {
			r.ID = NewTransactionID()
		}
		r.BankAccountID = accountID
		if earliest.IsZero() || r.Date.Before(earliest) {
			earliest = r.Date
		}
	}

	err := p.Store.WithTx(ctx, func(s Store) error {
		if err := requireAccount(ctx, s, accountID); err != nil {
			return err
		}
		if err := s.AppendTransactions(ctx, records); err != nil {
			return err
		}
		return p.recompute(ctx, s, accountID, earliest)
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info().
		Str("account_id", string(accountID)).
		Int("records", len(records)).
		Str("earliest", earliest.String()).
		Msg("transactions imported")
	return records, nil
}

// =============================================================================
// DECISION PATHS
// =============================================================================

// DeleteDecisionPath removes a path. Events and rules that carried it
// become unconditional, so each affected account is recomputed.
func (p *Planner) DeleteDecisionPath(ctx context.Context, id DecisionPathID) error {
	return p.Store.WithTx(ctx, func(s Store) error {
		usages, err := s.DeleteDecisionPath(ctx, id)
		if err != nil {
			return err
		}
		for _, u := range usages {
			if err := p.recompute(ctx, s, u.BankAccountID, u.Earliest); err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// EXPLICIT TRIGGERS
// =============================================================================

// Refresh recomputes [from, from + horizon] for an account.
func (p *Planner) Refresh(ctx context.Context, accountID BankAccountID, from Date) error {
	return p.recompute(ctx, p.Store, accountID, from)
}

// Recalculate recomputes an explicit range for an account. The range may
// span at most MaxRecalculateHorizons horizons.
func (p *Planner) Recalculate(ctx context.Context, accountID BankAccountID, r DateRange) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if limit := r.Start.AddMonths(MaxRecalculateHorizons * p.Horizon); r.End.After(limit) {
		return &ValidationError{
			Field:  "range",
			Reason: fmt.Sprintf("%s..%s exceeds %d months", r.Start, r.End, MaxRecalculateHorizons*p.Horizon),
			Err:    ErrRangeTooLarge,
		}
	}
	if err := requireAccount(ctx, p.Store, accountID); err != nil {
		return err
	}
	return NewCalculator(p.Store).RecalculateBalancesFrom(ctx, accountID, r.Start, r.End, AllPaths())
}
