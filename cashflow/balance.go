/*
balance.go - Starting-balance resolution and forward replay

PURPOSE:
  Computes expected daily balances for a bank account. This is the
  central calculation that answers "how much will be in the account on
  day X?".

KEY INSIGHT:
  A projection starts from the last KNOWN balance (an imported
  transaction), not from zero. When the requested window starts in the
  middle of history, replay begins at the anchor date so that events
  between the anchor and the requested start are folded in, but only
  days inside the requested window are returned.

ALGORITHM:
  1. Anchor: latest transaction on or before the start (or an override
     date). No history at all -> balance 0 on the start date.
  2. Window: [min(anchorDate, start), end].
  3. Events in the window, grouped by day.
  4. For each day ascending:
       impact  = sum of signed values of included events
       balance = previous balance + impact
     Unlikely events and events on disabled decision paths are skipped.
  5. Emit days within [start, end].

EXAMPLE:
  Last transaction: 500 on Jan 10
  Events: -50 on Jan 12 (certain), +200 on Jan 15 (likely),
          -30 on Jan 15 (unlikely)

  Jan 10..16: 500 500 450 450 450 650 650

VARIANTS:
  CalculateDailyBalances  - replay and upsert into the cache
  ComputeBalancesOnTheFly - replay and classify days true/projected, no writes
  CalculateBalanceForDay  - one day's preview from an explicit previous balance

  All three share replay(); only persistence and classification differ.

SEE ALSO:
  - filter.go: ScenarioFilter
  - planner.go: Triggers recalculation on every mutation
*/
package cashflow

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/cashflow/logger"
)

// =============================================================================
// STARTING BALANCE
// =============================================================================

// Anchor is the known balance forward replay starts from.
type Anchor struct {
	Balance decimal.Decimal
	Date    Date

	// FromHistory is false when no transaction existed and Balance is the
	// zero cold-start default.
	FromHistory bool
}

// =============================================================================
// BALANCE CALCULATOR
// =============================================================================

// Calculator replays projected events from a transaction anchor.
// It is stateless between calls; Cache is only needed by
// CalculateDailyBalances.
type Calculator struct {
	Events       EventReader
	Transactions AnchorReader
	Cache        BalanceCache
}

// NewCalculator builds a Calculator whose reads and writes all go to s.
func NewCalculator(s Store) *Calculator {
	return &Calculator{Events: s, Transactions: s, Cache: s}
}

// ResolveStartingBalance finds the balance and date to replay from.
//
// The lookup date is override when set, otherwise start. The latest
// transaction on or before it wins; with no history the anchor is a zero
// balance on start.
func (c *Calculator) ResolveStartingBalance(ctx context.Context, accountID BankAccountID, start Date, override *Date) (Anchor, error) {
	effective := start
	if override != nil && !override.IsZero() {
		effective = *override
	}

	tx, err := c.Transactions.LastTransactionOnOrBefore(ctx, accountID, effective)
	if err != nil {
		return Anchor{}, fmt.Errorf("resolve starting balance: %w", err)
	}
	if tx == nil {
		return Anchor{Balance: decimal.Zero, Date: start}, nil
	}
	return Anchor{Balance: tx.Balance, Date: tx.Date, FromHistory: true}, nil
}

// ReplayInput parameterizes a forward replay.
type ReplayInput struct {
	BankAccountID BankAccountID
	Range         DateRange
	Filter        ScenarioFilter

	// AnchorOverride forces the anchor lookup date (useTrueBalanceFromDate).
	AnchorOverride *Date

	// CoverageEnd marks the last day backed by real transactions. Days on
	// or before it are BalanceTrue; all others (or all days, when nil)
	// are BalanceProjected.
	CoverageEnd *Date
}

// replay is the single core shared by every variant.
func (c *Calculator) replay(ctx context.Context, in ReplayInput) ([]ProjectedDay, Anchor, error) {
	if err := in.Range.Validate(); err != nil {
		return nil, Anchor{}, err
	}
	start, end := in.Range.Start, in.Range.End

	anchor, err := c.ResolveStartingBalance(ctx, in.BankAccountID, start, in.AnchorOverride)
	if err != nil {
		return nil, Anchor{}, err
	}

	window := DateRange{Start: MinDate(anchor.Date, start), End: end}

	events, err := c.Events.EventsInRange(ctx, in.BankAccountID, window.Start, window.End)
	if err != nil {
		return nil, Anchor{}, fmt.Errorf("load projected events: %w", err)
	}

	byDay := make(map[string][]ProjectedEvent)
	for _, e := range events {
		byDay[e.Date.String()] = append(byDay[e.Date.String()], e)
	}

	days := make([]ProjectedDay, 0, in.Range.Len())
	current := anchor.Balance
	for day := window.Start; day.BeforeOrEqual(window.End); day = day.AddDays(1) {
		impact := decimal.Zero
		count := 0
		for _, e := range byDay[day.String()] {
			if !in.Filter.Includes(e) {
				continue
			}
			impact = impact.Add(e.SignedValue())
			count++
		}

		current = current.Add(impact)
		if day.Before(start) {
			continue
		}

		balanceType := BalanceProjected
		if in.CoverageEnd != nil && day.BeforeOrEqual(*in.CoverageEnd) {
			balanceType = BalanceTrue
		}
		days = append(days, ProjectedDay{
			Date:            day,
			ExpectedBalance: current,
			EventCount:      count,
			BalanceType:     balanceType,
		})
	}

	logger.FromContext(ctx).Debug().
		Str("account_id", string(in.BankAccountID)).
		Str("range", in.Range.String()).
		Str("anchor_date", anchor.Date.String()).
		Str("anchor_balance", anchor.Balance.String()).
		Bool("anchor_from_history", anchor.FromHistory).
		Int("events", len(events)).
		Msg("replayed balances")

	return days, anchor, nil
}

// =============================================================================
// CACHE-BACKED CALCULATION (write path)
// =============================================================================

// CalculateDailyBalances replays [start, end] and upserts one cache row per
// day, overwriting whatever was cached for those days.
func (c *Calculator) CalculateDailyBalances(ctx context.Context, accountID BankAccountID, r DateRange, filter ScenarioFilter) error {
	days, _, err := c.replay(ctx, ReplayInput{BankAccountID: accountID, Range: r, Filter: filter})
	if err != nil {
		return err
	}

	rows := make([]DailyBalance, len(days))
	for i, d := range days {
		rows[i] = DailyBalance{Date: d.Date, BankAccountID: accountID, ExpectedBalance: d.ExpectedBalance}
	}
	if err := c.Cache.UpsertDailyBalances(ctx, rows); err != nil {
		return fmt.Errorf("upsert daily balances: %w", err)
	}

	logger.FromContext(ctx).Debug().
		Str("account_id", string(accountID)).
		Int("rows", len(rows)).
		Msg("daily balance cache updated")
	return nil
}

// RecalculateBalancesFrom is the trigger form used after mutations:
// recompute [from, to] for the account.
func (c *Calculator) RecalculateBalancesFrom(ctx context.Context, accountID BankAccountID, from, to Date, filter ScenarioFilter) error {
	return c.CalculateDailyBalances(ctx, accountID, DateRange{Start: from, End: to}, filter)
}

// =============================================================================
// ON-THE-FLY COMPUTATION (read/preview path)
// =============================================================================

// OnTheFlyInput parameterizes ComputeBalancesOnTheFly.
type OnTheFlyInput struct {
	BankAccountID BankAccountID
	Range         DateRange
	Filter        ScenarioFilter

	// UseTrueBalanceFrom is the anchor lookup date. Required.
	UseTrueBalanceFrom Date

	// CoverageEnd is the last day with real transaction coverage. Optional.
	CoverageEnd *Date
}

// ComputeBalancesOnTheFly replays without touching the cache, classifying
// each day as true or projected.
func (c *Calculator) ComputeBalancesOnTheFly(ctx context.Context, in OnTheFlyInput) ([]ProjectedDay, error) {
	if in.UseTrueBalanceFrom.IsZero() {
		return nil, ErrAnchorRequired
	}
	anchorDate := in.UseTrueBalanceFrom
	days, _, err := c.replay(ctx, ReplayInput{
		BankAccountID:  in.BankAccountID,
		Range:          in.Range,
		Filter:         in.Filter,
		AnchorOverride: &anchorDate,
		CoverageEnd:    in.CoverageEnd,
	})
	return days, err
}

// =============================================================================
// SINGLE-DAY PREVIEW
// =============================================================================

// DayPreview is the outcome of applying one day's events to a balance.
type DayPreview struct {
	ExpectedBalance decimal.Decimal

	// Events that contributed (after certainty/decision-path filtering).
	Events []ProjectedEvent
}

// CalculateBalanceForDay applies the filtered events dated on day to
// previousBalance. Nothing is persisted.
func (c *Calculator) CalculateBalanceForDay(ctx context.Context, accountID BankAccountID, day Date, previousBalance decimal.Decimal, filter ScenarioFilter) (DayPreview, error) {
	if day.IsZero() {
		return DayPreview{}, &ValidationError{Field: "date", Reason: "required", Err: ErrMissingField}
	}
	events, err := c.Events.EventsInRange(ctx, accountID, day, day)
	if err != nil {
		return DayPreview{}, fmt.Errorf("load projected events: %w", err)
	}

	preview := DayPreview{ExpectedBalance: previousBalance, Events: []ProjectedEvent{}}
	for _, e := range events {
		if !filter.Includes(e) {
			continue
		}
		preview.ExpectedBalance = preview.ExpectedBalance.Add(e.SignedValue())
		preview.Events = append(preview.Events, e)
	}
	return preview, nil
}
