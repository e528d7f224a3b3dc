/*
recurring.go - Recurring rule expansion

PURPOSE:
  Turns a RecurringRule into the concrete ProjectedEvents the engine
  replays. Expansion is always bounded by the rule's EndDate; a rule
  without one is refused (RuleBoundError) rather than expanded forever.

FREQUENCIES:
  Occurrence n is StartDate stepped n times:
    daily     +1 day
    weekly    +7 days
    monthly   +1 month     (clamped: Jan 31 -> Feb 28 -> Mar 31)
    quarterly +3 months
    biannual  +6 months
    annual    +12 months

  Month stepping always restarts from StartDate, so clamping in a short
  month never drifts later occurrences.

WORKING DAYS:
  Incoming money does not land on weekends or holidays: an incoming
  occurrence is moved forward to the next working day. Expenses keep
  their scheduled date. Occurrences run while the UNADJUSTED date is
  within [StartDate, EndDate].

EXAMPLE:
  rule := RecurringRule{StartDate: 2025-01-01, EndDate: 2025-12-31,
                        Frequency: FrequencyMonthly, Value: 100, ...}
  events, _ := (&Expander{}).Expand(rule)
  // 12 events, one per month
*/
package cashflow

// Expander generates events for recurring rules.
type Expander struct {
	// Calendar supplies holidays for the working-day adjustment.
	// Nil means weekends only.
	Calendar HolidayCalendar

	// NewID generates event IDs. Defaults to NewEventID.
	NewID func() EventID
}

// Expand returns every event the rule generates, in date order.
func (x *Expander) Expand(rule RecurringRule) ([]ProjectedEvent, error) {
	if rule.EndDate.IsZero() {
		return nil, &RuleBoundError{RuleID: rule.ID}
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	newID := x.NewID
	if newID == nil {
		newID = NewEventID
	}

	var events []ProjectedEvent
	for n := 0; ; n++ {
		at := Occurrence(rule.StartDate, rule.Frequency, n)
		if at.After(rule.EndDate) {
			break
		}
		if rule.Direction == DirectionIncoming {
			at = at.NextWorkday(x.Calendar)
		}
		events = append(events, ProjectedEvent{
			ID:              newID(),
			Name:            rule.Name,
			Value:           rule.Value,
			Direction:       rule.Direction,
			Certainty:       rule.Certainty,
			Date:            at,
			BankAccountID:   rule.BankAccountID,
			DecisionPathID:  rule.DecisionPathID,
			RecurringRuleID: rule.ID,
		})
	}
	return events, nil
}

// Occurrence returns the n-th scheduled date (0-based) of a series
// starting at start, before any working-day adjustment.
func Occurrence(start Date, freq Frequency, n int) Date {
	switch freq {
	case FrequencyDaily:
		return start.AddDays(n)
	case FrequencyWeekly:
		return start.AddDays(7 * n)
	case FrequencyQuarterly:
		return start.AddMonths(3 * n)
	case FrequencyBiannual:
		return start.AddMonths(6 * n)
	case FrequencyAnnual:
		return start.AddMonths(12 * n)
	default: // monthly
		return start.AddMonths(n)
	}
}
