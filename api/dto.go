/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model in package cashflow from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

FORMATS:
  Dates are "YYYY-MM-DD" strings. Money is decimal.Decimal, which encodes
  as a JSON string ("1234.56") and decodes from a string or a number.

VALIDATION:
  Validation is done in handlers and in the domain types, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/cashflow/cashflow"
)

// =============================================================================
// ACCOUNTS
// =============================================================================

type AccountDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Institution string `json:"institution,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

type CreateAccountRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Institution string `json:"institution"`
}

func toAccountDTO(a cashflow.BankAccount) AccountDTO {
	dto := AccountDTO{ID: string(a.ID), Name: a.Name, Institution: a.Institution}
	if !a.CreatedAt.IsZero() {
		dto.CreatedAt = a.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// PROJECTED EVENTS
// =============================================================================

type EventDTO struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Value           decimal.Decimal `json:"value"`
	Direction       string          `json:"direction"`
	Certainty       string          `json:"certainty"`
	Date            string          `json:"date"`
	BankAccountID   string          `json:"bank_account_id"`
	DecisionPathID  string          `json:"decision_path_id,omitempty"`
	RecurringRuleID string          `json:"recurring_rule_id,omitempty"`
}

// EventRequest creates or replaces a one-off event.
type EventRequest struct {
	Name           string          `json:"name"`
	Value          decimal.Decimal `json:"value"`
	Direction      string          `json:"direction"`
	Certainty      string          `json:"certainty"`
	Date           string          `json:"date"`
	BankAccountID  string          `json:"bank_account_id"`
	DecisionPathID string          `json:"decision_path_id,omitempty"`
}

func toEventDTO(e cashflow.ProjectedEvent) EventDTO {
	return EventDTO{
		ID:              string(e.ID),
		Name:            e.Name,
		Value:           e.Value,
		Direction:       string(e.Direction),
		Certainty:       string(e.Certainty),
		Date:            e.Date.String(),
		BankAccountID:   string(e.BankAccountID),
		DecisionPathID:  string(e.DecisionPathID),
		RecurringRuleID: string(e.RecurringRuleID),
	}
}

func toEventDTOs(events []cashflow.ProjectedEvent) []EventDTO {
	dtos := make([]EventDTO, len(events))
	for i, e := range events {
		dtos[i] = toEventDTO(e)
	}
	return dtos
}

// =============================================================================
// RECURRING RULES
// =============================================================================

type RuleDTO struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Value           decimal.Decimal `json:"value"`
	Direction       string          `json:"direction"`
	Certainty       string          `json:"certainty"`
	StartDate       string          `json:"start_date"`
	EndDate         string          `json:"end_date"`
	Frequency       string          `json:"frequency"`
	BankAccountID   string          `json:"bank_account_id"`
	DecisionPathID  string          `json:"decision_path_id,omitempty"`
	BaseRuleID      string          `json:"base_rule_id,omitempty"`
	EventsGenerated *int            `json:"events_generated,omitempty"`
}

type RuleRequest struct {
	Name           string          `json:"name"`
	Value          decimal.Decimal `json:"value"`
	Direction      string          `json:"direction"`
	Certainty      string          `json:"certainty"`
	StartDate      string          `json:"start_date"`
	EndDate        string          `json:"end_date"`
	Frequency      string          `json:"frequency"`
	BankAccountID  string          `json:"bank_account_id"`
	DecisionPathID string          `json:"decision_path_id,omitempty"`
}

// RevisionRequest splits a rule: from EffectiveFrom on, Value applies.
type RevisionRequest struct {
	EffectiveFrom string          `json:"effective_from"`
	Value         decimal.Decimal `json:"value"`
	Name          string          `json:"name,omitempty"`
	Certainty     string          `json:"certainty,omitempty"`
}

type RevisionResponse struct {
	Base     RuleDTO `json:"base"`
	Revision RuleDTO `json:"revision"`
}

func toRuleDTO(r cashflow.RecurringRule) RuleDTO {
	return RuleDTO{
		ID:             string(r.ID),
		Name:           r.Name,
		Value:          r.Value,
		Direction:      string(r.Direction),
		Certainty:      string(r.Certainty),
		StartDate:      r.StartDate.String(),
		EndDate:        r.EndDate.String(),
		Frequency:      string(r.Frequency),
		BankAccountID:  string(r.BankAccountID),
		DecisionPathID: string(r.DecisionPathID),
		BaseRuleID:     string(r.BaseRuleID),
	}
}

func toRuleResultDTO(res cashflow.RuleResult) RuleDTO {
	dto := toRuleDTO(res.Rule)
	n := len(res.Events)
	dto.EventsGenerated = &n
	return dto
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type TransactionDTO struct {
	ID          string           `json:"id"`
	Date        string           `json:"date"`
	Description string           `json:"description,omitempty"`
	Debit       *decimal.Decimal `json:"debit,omitempty"`
	Credit      *decimal.Decimal `json:"credit,omitempty"`
	Balance     decimal.Decimal  `json:"balance"`
}

type TransactionInput struct {
	ID          string           `json:"id,omitempty"`
	Date        string           `json:"date"`
	Description string           `json:"description"`
	Debit       *decimal.Decimal `json:"debit,omitempty"`
	Credit      *decimal.Decimal `json:"credit,omitempty"`
	Balance     decimal.Decimal  `json:"balance"`
}

type ImportTransactionsRequest struct {
	Transactions []TransactionInput `json:"transactions"`
}

func toTransactionDTO(r cashflow.TransactionRecord) TransactionDTO {
	dto := TransactionDTO{
		ID:          string(r.ID),
		Date:        r.Date.String(),
		Description: r.Description,
		Balance:     r.Balance,
	}
	if r.Debit.Valid {
		d := r.Debit.Decimal
		dto.Debit = &d
	}
	if r.Credit.Valid {
		c := r.Credit.Decimal
		dto.Credit = &c
	}
	return dto
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

// =============================================================================
// BALANCES AND PROJECTIONS
// =============================================================================

type DailyBalanceDTO struct {
	Date            string          `json:"date"`
	ExpectedBalance decimal.Decimal `json:"expected_balance"`
}

type ProjectedDayDTO struct {
	Date            string          `json:"date"`
	ExpectedBalance decimal.Decimal `json:"expected_balance"`
	EventCount      int             `json:"event_count"`
	BalanceType     string          `json:"balance_type"`
}

type ProjectionResponse struct {
	BankAccountID string            `json:"bank_account_id"`
	From          string            `json:"from"`
	To            string            `json:"to"`
	AnchorDate    string            `json:"anchor_date"`
	CoverageEnd   string            `json:"coverage_end,omitempty"`
	Days          []ProjectedDayDTO `json:"days"`
}

// PreviewRequest asks for one day's balance given the previous day's.
// DecisionPaths nil means every path; an empty list means none.
type PreviewRequest struct {
	Date            string          `json:"date"`
	PreviousBalance decimal.Decimal `json:"previous_balance"`
	DecisionPaths   []string        `json:"decision_paths"`
}

type PreviewResponse struct {
	Date            string          `json:"date"`
	ExpectedBalance decimal.Decimal `json:"expected_balance"`
	Events          []EventDTO      `json:"events"`
}

type RecalculateRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// =============================================================================
// DECISION PATHS AND HOLIDAYS
// =============================================================================

type DecisionPathDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type HolidayDTO struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// ERRORS
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}
