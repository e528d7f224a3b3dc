/*
errors.go - Centralized error types for the projection engine

ERROR CATEGORIES:
  1. Lookup errors - a referenced event, rule, account or path doesn't exist
  2. Validation errors - malformed input (bad range, non-positive value, ...)
  3. Store errors - database failures, wrapped with %w and passed through

Missing transaction history is NOT an error: the starting balance
falls back to zero (see ResolveStartingBalance).

USAGE:
    if errors.Is(err, cashflow.ErrMissingEndDate) {
        // refuse to expand an unbounded rule
    }
*/
package cashflow

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrEventNotFound        = errors.New("projected event not found")
	ErrRuleNotFound         = errors.New("recurring rule not found")
	ErrAccountNotFound      = errors.New("bank account not found")
	ErrDecisionPathNotFound = errors.New("decision path not found")
	ErrHolidayNotFound      = errors.New("holiday not found")

	// ErrInvalidRange is returned when a date range is unset or ends before it starts.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrRangeTooLarge is returned when an explicit recalculation spans
	// more than MaxRecalculateHorizons horizons.
	ErrRangeTooLarge = errors.New("date range too large")

	// ErrInvalidValue is returned for non-positive event or rule values.
	// Values are magnitudes; the sign comes from Direction.
	ErrInvalidValue = errors.New("value must be greater than zero")

	ErrInvalidDirection = errors.New("invalid direction")
	ErrInvalidCertainty = errors.New("invalid certainty")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrMissingField     = errors.New("missing required field")

	// ErrMissingEndDate is returned when a recurring rule has no end date.
	// Expansion is refused rather than generating an unbounded series.
	ErrMissingEndDate = errors.New("recurring rule has no end date")

	// ErrInvalidSplitDate is returned when a revision date does not fall
	// strictly inside the base rule's active range.
	ErrInvalidSplitDate = errors.New("revision date outside rule range")

	// ErrAnchorRequired is returned when an on-the-fly projection is asked
	// for without an explicit true-balance anchor date.
	ErrAnchorRequired = errors.New("on-the-fly projection requires a true-balance anchor date")

	ErrDuplicateID = errors.New("duplicate id")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field and wraps the matching sentinel.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// RuleBoundError reports a rule that cannot be expanded because it is unbounded.
type RuleBoundError struct {
	RuleID RuleID
}

func (e *RuleBoundError) Error() string {
	return fmt.Sprintf("rule %s: %v", e.RuleID, ErrMissingEndDate)
}

func (e *RuleBoundError) Unwrap() error {
	return ErrMissingEndDate
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrRuleNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrDecisionPathNotFound) ||
		errors.Is(err, ErrHolidayNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrRangeTooLarge) ||
		errors.Is(err, ErrInvalidValue) ||
		errors.Is(err, ErrInvalidDirection) ||
		errors.Is(err, ErrInvalidCertainty) ||
		errors.Is(err, ErrInvalidFrequency) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrMissingEndDate) ||
		errors.Is(err, ErrInvalidSplitDate) ||
		errors.Is(err, ErrAnchorRequired) ||
		errors.Is(err, ErrDuplicateID)
}
