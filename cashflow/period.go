package cashflow

// =============================================================================
// DATE RANGE - Inclusive [Start, End] window
// =============================================================================

// DateRange is an inclusive window of calendar days.
type DateRange struct {
	Start Date
	End   Date
}

// NewDateRange validates that neither bound is unset and End is not before Start.
func NewDateRange(start, end Date) (DateRange, error) {
	r := DateRange{Start: start, End: end}
	return r, r.Validate()
}

// HorizonFrom returns [from, from + months].
func HorizonFrom(from Date, months int) DateRange {
	return DateRange{Start: from, End: from.AddMonths(months)}
}

func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return &ValidationError{Field: "range", Reason: "start and end are required", Err: ErrInvalidRange}
	}
	if r.End.Before(r.Start) {
		return &ValidationError{Field: "range", Reason: "end " + r.End.String() + " before start " + r.Start.String(), Err: ErrInvalidRange}
	}
	return nil
}

// Contains returns true if d is within [Start, End].
func (r DateRange) Contains(d Date) bool {
	return d.AfterOrEqual(r.Start) && d.BeforeOrEqual(r.End)
}

// Days returns every day in the range in ascending order.
func (r DateRange) Days() []Date {
	var days []Date
	for d := r.Start; d.BeforeOrEqual(r.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// Len is the number of days in the range.
func (r DateRange) Len() int {
	if r.End.Before(r.Start) {
		return 0
	}
	return DaysBetween(r.Start, r.End) + 1
}

func (r DateRange) String() string {
	return "[" + r.Start.String() + ", " + r.End.String() + "]"
}
