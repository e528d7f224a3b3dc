/*
Package cashflow provides the balance projection engine for bank accounts.

PURPOSE:
  Tracks projected cash events (one-off and recurring) against imported
  bank transactions and computes day-by-day expected balances. The most
  recent real transaction balance anchors every projection; projected
  events are replayed forward from there.

KEY CONCEPTS IN THIS FILE (types.go):
  - ProjectedEvent: A future expense or income with a certainty level
  - RecurringRule: A template that expands into a bounded series of events
  - TransactionRecord: An imported, immutable bank statement line
  - DailyBalance: One cached expected balance per (day, account)
  - DecisionPath: A what-if scenario tag events and rules may carry

DESIGN PRINCIPLES:
  1. Precision: Money is decimal.Decimal, never float64
  2. Magnitudes: Values are always positive; Direction carries the sign
  3. Derived cache: DailyBalance rows are always recomputable from
     events + transactions, so they can be overwritten freely
  4. Type Safety: Distinct ID types keep accounts, rules and events apart

SEE ALSO:
  - balance.go: Starting-balance resolution and forward replay
  - recurring.go: Rule expansion
  - planner.go: Mutations that trigger recomputation
*/
package cashflow

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type BankAccountID string
type EventID string
type RuleID string
type DecisionPathID string
type TransactionID string

func NewEventID() EventID               { return EventID(uuid.NewString()) }
func NewRuleID() RuleID                 { return RuleID(uuid.NewString()) }
func NewBankAccountID() BankAccountID   { return BankAccountID(uuid.NewString()) }
func NewDecisionPathID() DecisionPathID { return DecisionPathID(uuid.NewString()) }
func NewTransactionID() TransactionID   { return TransactionID(uuid.NewString()) }

// =============================================================================
// ENUMS
// =============================================================================

type Direction string

const (
	DirectionExpense  Direction = "expense"
	DirectionIncoming Direction = "incoming"
)

func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case DirectionExpense, DirectionIncoming:
		return d, nil
	}
	return "", &ValidationError{Field: "direction", Reason: "unknown direction " + s, Err: ErrInvalidDirection}
}

// Certainty is how sure we are that an event will happen.
// Unlikely events never contribute to a balance.
type Certainty string

const (
	CertaintyUnlikely Certainty = "unlikely"
	CertaintyPossible Certainty = "possible"
	CertaintyLikely   Certainty = "likely"
	CertaintyCertain  Certainty = "certain"
)

func ParseCertainty(s string) (Certainty, error) {
	c := Certainty(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case CertaintyUnlikely, CertaintyPossible, CertaintyLikely, CertaintyCertain:
		return c, nil
	}
	return "", &ValidationError{Field: "certainty", Reason: "unknown certainty " + s, Err: ErrInvalidCertainty}
}

type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyBiannual  Frequency = "biannual"
	FrequencyAnnual    Frequency = "annual"
)

func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyBiannual, FrequencyAnnual:
		return f, nil
	}
	return "", &ValidationError{Field: "frequency", Reason: "unknown frequency " + s, Err: ErrInvalidFrequency}
}

// =============================================================================
// PROJECTED EVENT - A single future cash movement
// =============================================================================

type ProjectedEvent struct {
	ID            EventID
	Name          string
	Value         decimal.Decimal // always > 0
	Direction     Direction
	Certainty     Certainty
	Date          Date
	BankAccountID BankAccountID

	// Empty means the event applies in every scenario.
	DecisionPathID DecisionPathID

	// Set when the event was generated by a recurring rule.
	RecurringRuleID RuleID
}

// SignedValue is the event's contribution to a balance: +Value for
// incoming, -Value for expenses.
func (e ProjectedEvent) SignedValue() decimal.Decimal {
	if e.Direction == DirectionExpense {
		return e.Value.Neg()
	}
	return e.Value
}

func (e ProjectedEvent) Validate() error {
	if e.BankAccountID == "" {
		return &ValidationError{Field: "bank_account_id", Reason: "required", Err: ErrMissingField}
	}
	if e.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "required", Err: ErrMissingField}
	}
	return validateAmount(e.Value, e.Direction, e.Certainty)
}

func validateAmount(value decimal.Decimal, dir Direction, cert Certainty) error {
	if !value.IsPositive() {
		return &ValidationError{Field: "value", Reason: value.String() + " is not positive", Err: ErrInvalidValue}
	}
	if _, err := ParseDirection(string(dir)); err != nil {
		return err
	}
	if _, err := ParseCertainty(string(cert)); err != nil {
		return err
	}
	return nil
}

// =============================================================================
// RECURRING RULE - Template for a bounded event series
// =============================================================================

type RecurringRule struct {
	ID             RuleID
	Name           string
	Value          decimal.Decimal
	Direction      Direction
	Certainty      Certainty
	StartDate      Date
	EndDate        Date // required; zero only on legacy rows
	Frequency      Frequency
	BankAccountID  BankAccountID
	DecisionPathID DecisionPathID

	// Set on revisions: the rule this one superseded from StartDate on.
	BaseRuleID RuleID
}

// ActiveRange returns [StartDate, EndDate].
func (r RecurringRule) ActiveRange() DateRange {
	return DateRange{Start: r.StartDate, End: r.EndDate}
}

func (r RecurringRule) Validate() error {
	if r.BankAccountID == "" {
		return &ValidationError{Field: "bank_account_id", Reason: "required", Err: ErrMissingField}
	}
	if r.StartDate.IsZero() {
		return &ValidationError{Field: "start_date", Reason: "required", Err: ErrMissingField}
	}
	if r.EndDate.IsZero() {
		return &RuleBoundError{RuleID: r.ID}
	}
	if err := r.ActiveRange().Validate(); err != nil {
		return err
	}
	if _, err := ParseFrequency(string(r.Frequency)); err != nil {
		return err
	}
	return validateAmount(r.Value, r.Direction, r.Certainty)
}

// =============================================================================
// TRANSACTION RECORD - Imported bank statement line (ground truth)
// =============================================================================

type TransactionRecord struct {
	ID            TransactionID
	BankAccountID BankAccountID
	Date          Date
	Description   string
	Debit         decimal.NullDecimal
	Credit        decimal.NullDecimal

	// Running balance reported by the bank after this line.
	Balance decimal.Decimal
}

// =============================================================================
// DAILY BALANCE - Cached projection row, keyed by (Date, BankAccountID)
// =============================================================================

type DailyBalance struct {
	Date            Date
	BankAccountID   BankAccountID
	ExpectedBalance decimal.Decimal
}

// BalanceType tells whether a projected day is covered by real transactions.
type BalanceType string

const (
	BalanceTrue      BalanceType = "true"
	BalanceProjected BalanceType = "projected"
)

// ProjectedDay is one row of an on-the-fly projection.
type ProjectedDay struct {
	Date            Date
	ExpectedBalance decimal.Decimal
	EventCount      int
	BalanceType     BalanceType
}

// =============================================================================
// ACCOUNTS AND SCENARIOS
// =============================================================================

type BankAccount struct {
	ID          BankAccountID
	Name        string
	Institution string
	CreatedAt   time.Time
}

type DecisionPath struct {
	ID          DecisionPathID
	Name        string
	Description string
	CreatedAt   time.Time
}
