/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Each scenario creates an account, imports statement
	history and adds events and rules through the Planner, so the balance
	cache is filled exactly as it would be by API calls.

AVAILABLE SCENARIOS:

	worked-example:   One statement line and three events in January 2025
	household-budget: Salary, rent and bills around today, with a rent
	                  revision, mixed certainty and a what-if purchase
	cold-start:       An account with no history and a single income

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create accounts, decision paths and holidays
 3. Import transaction history
 4. Create rules and one-off events (each recomputes the cache)

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "household-budget"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Planner-backed mutations
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/cashflow/cashflow"
	"github.com/warp/cashflow/logger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "worked-example",
		Name:        "Worked Example",
		Description: "Balance 500 on 2025-01-10, rent on the 12th, a likely refund and an unlikely expense on the 15th",
	},
	{
		ID:          "household-budget",
		Name:        "Household Budget",
		Description: "Monthly salary and rent, a rent increase, bills of varying certainty and an optional laptop purchase",
	},
	{
		ID:          "cold-start",
		Name:        "Cold Start",
		Description: "New account with no statement history",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: h.currentScenario, Name: h.currentScenario})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "worked-example":
		load = h.loadWorkedExampleScenario
	case "household-budget":
		load = h.loadHouseholdBudgetScenario
	case "cold-start":
		load = h.loadColdStartScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		h.fail(w, r, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		h.fail(w, r, "Failed to load scenario", err)
		return
	}
	h.currentScenario = req.ScenarioID

	logger.FromContext(ctx).Info().Str("scenario", req.ScenarioID).Msg("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		h.fail(w, r, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadWorkedExampleScenario(ctx context.Context) error {
	const acc cashflow.BankAccountID = "acc-example"
	if err := h.createAccount(ctx, acc, "Example Checking", "Demo Bank"); err != nil {
		return err
	}

	if _, err := h.Planner.ImportTransactions(ctx, acc, []cashflow.TransactionRecord{{
		Date:        cashflow.MustParseDate("2025-01-10"),
		Description: "Opening balance",
		Balance:     decimal.NewFromInt(500),
	}}); err != nil {
		return err
	}

	return h.createEvents(ctx, []cashflow.ProjectedEvent{
		{Name: "Rent share", Value: decimal.NewFromInt(50), Direction: cashflow.DirectionExpense, Certainty: cashflow.CertaintyCertain, Date: cashflow.MustParseDate("2025-01-12"), BankAccountID: acc},
		{Name: "Tax refund", Value: decimal.NewFromInt(200), Direction: cashflow.DirectionIncoming, Certainty: cashflow.CertaintyLikely, Date: cashflow.MustParseDate("2025-01-15"), BankAccountID: acc},
		{Name: "Concert tickets", Value: decimal.NewFromInt(30), Direction: cashflow.DirectionExpense, Certainty: cashflow.CertaintyUnlikely, Date: cashflow.MustParseDate("2025-01-15"), BankAccountID: acc},
	})
}

func (h *Handler) loadHouseholdBudgetScenario(ctx context.Context) error {
	const (
		acc    cashflow.BankAccountID  = "acc-household"
		laptop cashflow.DecisionPathID = "path-new-laptop"
	)
	today := cashflow.Today()
	monthStart := cashflow.NewDate(today.Year(), today.Month(), 1)

	if err := h.createAccount(ctx, acc, "Household Checking", "Demo Bank"); err != nil {
		return err
	}
	if err := h.Store.SaveDecisionPath(ctx, cashflow.DecisionPath{
		ID:          laptop,
		Name:        "Buy a new laptop",
		Description: "Replace the work laptop next month",
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		return err
	}
	for _, hol := range []cashflow.Holiday{
		{ID: "hol-new-year", Date: cashflow.NewDate(today.Year(), time.January, 1), Name: "New Year's Day", Recurring: true},
		{ID: "hol-christmas", Date: cashflow.NewDate(today.Year(), time.December, 25), Name: "Christmas Day", Recurring: true},
	} {
		if err := h.Store.SaveHoliday(ctx, hol); err != nil {
			return err
		}
	}

	// Three months of statement history ending a few days ago.
	history := []cashflow.TransactionRecord{}
	balance := decimal.NewFromInt(2400)
	for m := -3; m < 0; m++ {
		first := monthStart.AddMonths(m)
		balance = balance.Add(decimal.NewFromInt(3200))
		history = append(history, cashflow.TransactionRecord{
			Date: first, Description: "Salary", Credit: decimal.NewNullDecimal(decimal.NewFromInt(3200)), Balance: balance,
		})
		balance = balance.Sub(decimal.NewFromInt(1400))
		history = append(history, cashflow.TransactionRecord{
			Date: first.AddDays(1), Description: "Rent", Debit: decimal.NewNullDecimal(decimal.NewFromInt(1400)), Balance: balance,
		})
		balance = balance.Sub(decimal.NewFromInt(1650))
		history = append(history, cashflow.TransactionRecord{
			Date: first.AddDays(14), Description: "Card spending", Debit: decimal.NewNullDecimal(decimal.NewFromInt(1650)), Balance: balance,
		})
	}
	if _, err := h.Planner.ImportTransactions(ctx, acc, history); err != nil {
		return err
	}

	yearEnd := monthStart.AddMonths(12).AddDays(-1)
	rules := []cashflow.RecurringRule{
		{Name: "Salary", Value: decimal.NewFromInt(3200), Direction: cashflow.DirectionIncoming, Certainty: cashflow.CertaintyCertain, StartDate: monthStart, EndDate: yearEnd, Frequency: cashflow.FrequencyMonthly, BankAccountID: acc},
		{ID: "rule-rent", Name: "Rent", Value: decimal.NewFromInt(1400), Direction: cashflow.DirectionExpense, Certainty: cashflow.CertaintyCertain, StartDate: monthStart.AddDays(1), EndDate: yearEnd, Frequency: cashflow.FrequencyMonthly, BankAccountID: acc},
		{Name: "Groceries", Value: decimal.NewFromInt(120), Direction: cashflow.DirectionExpense, Certainty: cashflow.CertaintyLikely, StartDate: monthStart.AddDays(5), EndDate: yearEnd, Frequency: cashflow.FrequencyWeekly, BankAccountID: acc},
		{Name: "Car insurance", Value: decimal.NewFromInt(480), Direction: cashflow.DirectionExpense, Certainty: cashflow.CertaintyCertain, StartDate: monthStart.AddMonths(1).AddDays(9), EndDate: yearEnd, Frequency: cashflow.FrequencyQuarterly, BankAccountID: acc},
	}
	for _, rule := range rules {
		if _, err := h.Planner.CreateRule(ctx, rule); err != nil {
			return fmt.Errorf("rule %s: %w", rule.Name, err)
		}
	}

	// The landlord raises the rent in six months.
	if _, err := h.Planner.ReviseRule(ctx, cashflow.RevisionInput{
		BaseRuleID:    "rule-rent",
		EffectiveFrom: monthStart.AddMonths(6),
		Value:         decimal.NewFromInt(1500),
	}); err != nil {
		return err
	}

	return h.createEvents(ctx, []cashflow.ProjectedEvent{
		{Name: "Car repair", Value: decimal.NewFromInt(600), Direction: cashflow.DirectionExpense, Certainty: cashflow.CertaintyPossible, Date: today.AddDays(20), BankAccountID: acc},
		{Name: "Annual bonus", Value: decimal.NewFromInt(1000), Direction: cashflow.DirectionIncoming, Certainty: cashflow.CertaintyUnlikely, Date: monthStart.AddMonths(3), BankAccountID: acc},
		{Name: "Freelance invoice", Value: decimal.NewFromInt(750), Direction: cashflow.DirectionIncoming, Certainty: cashflow.CertaintyLikely, Date: today.AddDays(35), BankAccountID: acc},
		{Name: "New laptop", Value: decimal.NewFromInt(1800), Direction: cashflow.DirectionExpense, Certainty: cashflow.CertaintyCertain, Date: monthStart.AddMonths(1).AddDays(14), BankAccountID: acc, DecisionPathID: laptop},
	})
}

func (h *Handler) loadColdStartScenario(ctx context.Context) error {
	const acc cashflow.BankAccountID = "acc-new"
	if err := h.createAccount(ctx, acc, "New Savings", ""); err != nil {
		return err
	}
	return h.createEvents(ctx, []cashflow.ProjectedEvent{
		{Name: "First deposit", Value: decimal.NewFromInt(100), Direction: cashflow.DirectionIncoming, Certainty: cashflow.CertaintyCertain, Date: cashflow.Today(), BankAccountID: acc},
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) createAccount(ctx context.Context, id cashflow.BankAccountID, name, institution string) error {
	return h.Store.SaveAccount(ctx, cashflow.BankAccount{
		ID:          id,
		Name:        name,
		Institution: institution,
		CreatedAt:   time.Now().UTC(),
	})
}

func (h *Handler) createEvents(ctx context.Context, events []cashflow.ProjectedEvent) error {
	for _, e := range events {
		if _, err := h.Planner.CreateEvent(ctx, e); err != nil {
			return fmt.Errorf("event %s: %w", e.Name, err)
		}
	}
	return nil
}
