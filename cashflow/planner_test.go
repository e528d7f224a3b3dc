/*
planner_test.go - Mutations keep the cache current, atomically

CORE DESIGN:
- Every mutation recomputes [affected date, affected date + horizon]
- A failed mutation leaves events, rules and cache exactly as they were
- A rule revision truncates the base and creates the revision in one step
*/
package cashflow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cashflow/cashflow"
	"github.com/warp/cashflow/cashflow/store"
)

func newTestPlanner(t *testing.T) (*cashflow.Planner, *store.Memory) {
	t.Helper()
	s := newTestStore(t)
	p := cashflow.NewPlanner(s, 6)
	p.NewEventID = sequentialIDs()
	return p, s
}

func cachedOn(t *testing.T, s *store.Memory, day string) *cashflow.DailyBalance {
	t.Helper()
	rows, err := s.DailyBalances(context.Background(), testAccount, date(day), date(day))
	require.NoError(t, err)
	if len(rows) == 0 {
		return nil
	}
	return &rows[0]
}

func assertCachedOn(t *testing.T, s *store.Memory, day, want string) {
	t.Helper()
	row := cachedOn(t, s, day)
	require.NotNil(t, row, "no cached balance on %s", day)
	assert.Truef(t, dec(want).Equal(row.ExpectedBalance), "%s: want %s, got %s", day, want, row.ExpectedBalance)
}

func rentRule() cashflow.RecurringRule {
	return cashflow.RecurringRule{
		Name:          "Rent",
		Value:         dec("100"),
		Direction:     cashflow.DirectionExpense,
		Certainty:     cashflow.CertaintyCertain,
		StartDate:     date("2025-01-01"),
		EndDate:       date("2025-12-31"),
		Frequency:     cashflow.FrequencyMonthly,
		BankAccountID: testAccount,
	}
}

func TestNewPlanner_DefaultHorizon(t *testing.T) {
	p := cashflow.NewPlanner(store.NewMemory(), 0)
	assert.Equal(t, cashflow.DefaultHorizonMonths, p.Horizon)
}

// =============================================================================
// ONE-OFF EVENTS
// =============================================================================

func TestCreateEvent_RecomputesHorizon(t *testing.T) {
	// GIVEN: Anchor 1000 on Jan 1
	// WHEN: Creating a 100 expense on Jan 15
	// THEN: Cache covers Jan 15 .. Jul 15 at 900, nothing before or after

	ctx := context.Background()
	p, s := newTestPlanner(t)
	require.NoError(t, s.AppendTransactions(ctx, []cashflow.TransactionRecord{txRecord("t1", "2025-01-01", "1000")}))

	created, err := p.CreateEvent(ctx, event("", "2025-01-15", "100", cashflow.DirectionExpense, cashflow.CertaintyCertain))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	assert.Nil(t, cachedOn(t, s, "2025-01-14"))
	assertCachedOn(t, s, "2025-01-15", "900")
	assertCachedOn(t, s, "2025-07-15", "900")
	assert.Nil(t, cachedOn(t, s, "2025-07-16"))
}

func TestCreateEvent_UnknownAccount(t *testing.T) {
	ctx := context.Background()
	p, s := newTestPlanner(t)

	e := event("e1", "2025-01-15", "100", cashflow.DirectionExpense, cashflow.CertaintyCertain)
	e.BankAccountID = "missing"
	_, err := p.CreateEvent(ctx, e)
	assert.ErrorIs(t, err, cashflow.ErrAccountNotFound)
	assert.True(t, cashflow.IsNotFound(err))

	got, err := s.GetEvent(ctx, "e1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreateEvent_RejectsNonPositiveValue(t *testing.T) {
	p, _ := newTestPlanner(t)
	_, err := p.CreateEvent(context.Background(), event("e1", "2025-01-15", "-5", cashflow.DirectionExpense, cashflow.CertaintyCertain))
	assert.ErrorIs(t, err, cashflow.ErrInvalidValue)
}

func TestUpdateEvent_MovedEarlierRecomputesFromNewDate(t *testing.T) {
	// GIVEN: Anchor 1000 on Jan 1, 100 expense on Jan 20
	// WHEN: Moving the expense to Jan 10
	// THEN: Jan 10..19 drop to 900 as well

	ctx := context.Background()
	p, s := newTestPlanner(t)
	require.NoError(t, s.AppendTransactions(ctx, []cashflow.TransactionRecord{txRecord("t1", "2025-01-01", "1000")}))

	e, err := p.CreateEvent(ctx, event("e1", "2025-01-20", "100", cashflow.DirectionExpense, cashflow.CertaintyCertain))
	require.NoError(t, err)
	assertCachedOn(t, s, "2025-01-20", "900")

	e.Date = date("2025-01-10")
	_, err = p.UpdateEvent(ctx, e)
	require.NoError(t, err)

	assertCachedOn(t, s, "2025-01-10", "900")
	assertCachedOn(t, s, "2025-01-19", "900")
	assertCachedOn(t, s, "2025-01-20", "900")
}

func TestUpdateEvent_NotFound(t *testing.T) {
	p, _ := newTestPlanner(t)
	_, err := p.UpdateEvent(context.Background(), event("nope", "2025-01-10", "1", cashflow.DirectionExpense, cashflow.CertaintyCertain))
	assert.ErrorIs(t, err, cashflow.ErrEventNotFound)
}

func TestDeleteEvent_RestoresBalance(t *testing.T) {
	ctx := context.Background()
	p, s := newTestPlanner(t)
	require.NoError(t, s.AppendTransactions(ctx, []cashflow.TransactionRecord{txRecord("t1", "2025-01-01", "1000")}))

	e, err := p.CreateEvent(ctx, event("e1", "2025-01-20", "100", cashflow.DirectionExpense, cashflow.CertaintyCertain))
	require.NoError(t, err)
	require.NoError(t, p.DeleteEvent(ctx, e.ID))

	assertCachedOn(t, s, "2025-01-20", "1000")
	assert.ErrorIs(t, p.DeleteEvent(ctx, e.ID), cashflow.ErrEventNotFound)
}

// =============================================================================
// RECURRING RULES
// =============================================================================

func TestCreateRule_GeneratesEventsAndCache(t *testing.T) {
	ctx := context.Background()
	p, s := newTestPlanner(t)
	require.NoError(t, s.AppendTransactions(ctx, []cashflow.TransactionRecord{txRecord("t1", "2024-12-31", "1000")}))

	res, err := p.CreateRule(ctx, rentRule())
	require.NoError(t, err)
	assert.Len(t, res.Events, 12)

	stored, err := s.EventsByRule(ctx, res.Rule.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 12)

	assertCachedOn(t, s, "2025-01-01", "900")
	assertCachedOn(t, s, "2025-03-15", "700")
}

func TestCreateRule_UnboundedLeavesNothingBehind(t *testing.T) {
	ctx := context.Background()
	p, s := newTestPlanner(t)

	r := rentRule()
	r.ID = "open-ended"
	r.EndDate = cashflow.Date{}
	_, err := p.CreateRule(ctx, r)
	assert.ErrorIs(t, err, cashflow.ErrMissingEndDate)

	got, err := s.GetRule(ctx, "open-ended")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateRule_RegeneratesEvents(t *testing.T) {
	ctx := context.Background()
	p, s := newTestPlanner(t)

	res, err := p.CreateRule(ctx, rentRule())
	require.NoError(t, err)

	updated := res.Rule
	updated.Frequency = cashflow.FrequencyQuarterly
	updated.Value = dec("300")
	res, err = p.UpdateRule(ctx, updated)
	require.NoError(t, err)
	assert.Len(t, res.Events, 4)

	stored, err := s.EventsByRule(ctx, updated.ID)
	require.NoError(t, err)
	require.Len(t, stored, 4)
	for _, e := range stored {
		assert.True(t, dec("300").Equal(e.Value))
	}
	assertCachedOn(t, s, "2025-01-01", "-300")
}

func TestDeleteRule_CascadesEvents(t *testing.T) {
	ctx := context.Background()
	p, s := newTestPlanner(t)

	res, err := p.CreateRule(ctx, rentRule())
	require.NoError(t, err)
	require.NoError(t, p.DeleteRule(ctx, res.Rule.ID))

	stored, err := s.EventsByRule(ctx, res.Rule.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
	assertCachedOn(t, s, "2025-03-01", "0")

	assert.ErrorIs(t, p.DeleteRule(ctx, res.Rule.ID), cashflow.ErrRuleNotFound)
}

// =============================================================================
// REVISIONS
// =============================================================================

func TestReviseRule_SplitsAtEffectiveDate(t *testing.T) {
	// GIVEN: Monthly 100 rent for 2025
	// WHEN: Revising to 150 from Jul 1
	// THEN: Base ends Jun 30 with 6 x 100, revision has 6 x 150 from Jul 1

	ctx := context.Background()
	p, s := newTestPlanner(t)
	require.NoError(t, s.AppendTransactions(ctx, []cashflow.TransactionRecord{txRecord("t0", "2024-12-31", "0")}))

	base, err := p.CreateRule(ctx, rentRule())
	require.NoError(t, err)

	res, err := p.ReviseRule(ctx, cashflow.RevisionInput{
		BaseRuleID:    base.Rule.ID,
		EffectiveFrom: date("2025-07-01"),
		Value:         dec("150"),
	})
	require.NoError(t, err)

	assert.Equal(t, date("2025-06-30"), res.Base.Rule.EndDate)
	assert.Equal(t, base.Rule.ID, res.Revision.Rule.BaseRuleID)
	assert.Equal(t, date("2025-07-01"), res.Revision.Rule.StartDate)
	assert.Equal(t, date("2025-12-31"), res.Revision.Rule.EndDate)
	assert.Equal(t, "Rent", res.Revision.Rule.Name)
	assert.Equal(t, cashflow.CertaintyCertain, res.Revision.Rule.Certainty)

	baseEvents, err := s.EventsByRule(ctx, base.Rule.ID)
	require.NoError(t, err)
	require.Len(t, baseEvents, 6)
	for _, e := range baseEvents {
		assert.True(t, dec("100").Equal(e.Value))
		assert.True(t, e.Date.Before(date("2025-07-01")), e.Date.String())
	}

	revEvents, err := s.EventsByRule(ctx, res.Revision.Rule.ID)
	require.NoError(t, err)
	require.Len(t, revEvents, 6)
	for _, e := range revEvents {
		assert.True(t, dec("150").Equal(e.Value))
		assert.True(t, e.Date.AfterOrEqual(date("2025-07-01")), e.Date.String())
	}

	stored, err := s.GetRule(ctx, base.Rule.ID)
	require.NoError(t, err)
	assert.Equal(t, date("2025-06-30"), stored.EndDate)

	// 6 x 100 through June, then 150 on Jul 1
	assertCachedOn(t, s, "2025-07-01", "-750")
}

func salaryRule(id cashflow.RuleID, start string) cashflow.RecurringRule {
	return cashflow.RecurringRule{
		ID:            id,
		Name:          "Salary",
		Value:         dec("100"),
		Direction:     cashflow.DirectionIncoming,
		Certainty:     cashflow.CertaintyCertain,
		StartDate:     date(start),
		EndDate:       date("2025-12-31"),
		Frequency:     cashflow.FrequencyMonthly,
		BankAccountID: testAccount,
	}
}

func TestReviseRule_ShiftedBaseEventDroppedAtSplit(t *testing.T) {
	// GIVEN: Monthly 100 income on the 28th from Jan 28; Sat Jun 28 shifts to Mon Jun 30
	// WHEN: Revising to 150 from Jun 30
	// THEN: The base rule owns nothing on or after Jun 30; Jun 30 holds only the revision

	ctx := context.Background()
	p, s := newTestPlanner(t)
	require.NoError(t, s.AppendTransactions(ctx, []cashflow.TransactionRecord{txRecord("t0", "2025-01-01", "0")}))

	_, err := p.CreateRule(ctx, salaryRule("salary", "2025-01-28"))
	require.NoError(t, err)

	res, err := p.ReviseRule(ctx, cashflow.RevisionInput{
		BaseRuleID:    "salary",
		EffectiveFrom: date("2025-06-30"),
		Value:         dec("150"),
	})
	require.NoError(t, err)

	stored, err := s.EventsByRule(ctx, "salary")
	require.NoError(t, err)
	require.Len(t, stored, 5)
	for _, e := range stored {
		assert.True(t, e.Date.Before(date("2025-06-30")), e.Date.String())
	}
	require.Len(t, res.Base.Events, 5)
	for _, e := range res.Base.Events {
		assert.True(t, e.Date.Before(date("2025-06-30")), e.Date.String())
	}

	revEvents, err := s.EventsByRule(ctx, res.Revision.Rule.ID)
	require.NoError(t, err)
	require.NotEmpty(t, revEvents)
	assert.Equal(t, date("2025-06-30"), revEvents[0].Date)

	// Jan..May at 100, then 150 on Jun 30
	assertCachedOn(t, s, "2025-06-30", "650")
}

func TestReviseRule_RecomputesRegeneratedBaseEvents(t *testing.T) {
	// GIVEN: Monthly 100 income from Mon Feb 3, cached with Mar 3 at 200
	// WHEN: A holiday is added on Mar 3, then the rule is revised from Jul 1
	// THEN: The regenerated Mar 4 event is reflected in the cache before the split

	ctx := context.Background()
	p, s := newTestPlanner(t)
	require.NoError(t, s.AppendTransactions(ctx, []cashflow.TransactionRecord{txRecord("t0", "2025-01-01", "0")}))

	_, err := p.CreateRule(ctx, salaryRule("salary", "2025-02-03"))
	require.NoError(t, err)
	assertCachedOn(t, s, "2025-03-03", "200")

	require.NoError(t, s.SaveHoliday(ctx, cashflow.Holiday{ID: "h1", Date: date("2025-03-03"), Name: "Founders Day"}))

	_, err = p.ReviseRule(ctx, cashflow.RevisionInput{
		BaseRuleID:    "salary",
		EffectiveFrom: date("2025-07-01"),
		Value:         dec("150"),
	})
	require.NoError(t, err)

	assertCachedOn(t, s, "2025-03-03", "100")
	assertCachedOn(t, s, "2025-03-04", "200")

	fresh, err := cashflow.NewCalculator(s).ComputeBalancesOnTheFly(ctx, cashflow.OnTheFlyInput{
		BankAccountID:      testAccount,
		Range:              rangeOf(t, "2025-02-03", "2025-08-31"),
		Filter:             cashflow.AllPaths(),
		UseTrueBalanceFrom: date("2025-02-03"),
	})
	require.NoError(t, err)
	for _, d := range fresh {
		assertCachedOn(t, s, d.Date.String(), d.ExpectedBalance.String())
	}
}

func TestReviseRule_InvalidSplitDate(t *testing.T) {
	ctx := context.Background()
	p, s := newTestPlanner(t)

	base, err := p.CreateRule(ctx, rentRule())
	require.NoError(t, err)

	for _, at := range []string{"2025-01-01", "2024-12-01", "2026-01-01"} {
		_, err := p.ReviseRule(ctx, cashflow.RevisionInput{
			BaseRuleID:    base.Rule.ID,
			EffectiveFrom: date(at),
			Value:         dec("150"),
		})
		assert.ErrorIs(t, err, cashflow.ErrInvalidSplitDate, at)
	}

	stored, err := s.GetRule(ctx, base.Rule.ID)
	require.NoError(t, err)
	assert.Equal(t, date("2025-12-31"), stored.EndDate)
}

func TestReviseRule_FailureRollsBack(t *testing.T) {
	// GIVEN: A base rule with 12 events
	// WHEN: Revising with an invalid value
	// THEN: The base rule, its events and the cache are untouched

	ctx := context.Background()
	p, s := newTestPlanner(t)

	base, err := p.CreateRule(ctx, rentRule())
	require.NoError(t, err)
	before, err := s.EventsByRule(ctx, base.Rule.ID)
	require.NoError(t, err)

	_, err = p.ReviseRule(ctx, cashflow.RevisionInput{
		BaseRuleID:    base.Rule.ID,
		EffectiveFrom: date("2025-07-01"),
		Value:         dec("0"),
	})
	assert.ErrorIs(t, err, cashflow.ErrInvalidValue)

	stored, err := s.GetRule(ctx, base.Rule.ID)
	require.NoError(t, err)
	assert.Equal(t, base.Rule, *stored)

	after, err := s.EventsByRule(ctx, base.Rule.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	rules, err := s.ListRules(ctx, testAccount)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestReviseRule_UnknownBase(t *testing.T) {
	p, _ := newTestPlanner(t)
	_, err := p.ReviseRule(context.Background(), cashflow.RevisionInput{
		BaseRuleID:    "missing",
		EffectiveFrom: date("2025-07-01"),
		Value:         dec("150"),
	})
	assert.ErrorIs(t, err, cashflow.ErrRuleNotFound)
}

// =============================================================================
// TRANSACTIONS AND DECISION PATHS
// =============================================================================

func TestImportTransactions_ReanchorsCache(t *testing.T) {
	// GIVEN: A 100 expense on Jan 20, no history (cache at -100)
	// WHEN: Importing a 2000 balance on Jan 10
	// THEN: Jan 20 is recomputed from the new anchor to 1900

	ctx := context.Background()
	p, s := newTestPlanner(t)

	_, err := p.CreateEvent(ctx, event("e1", "2025-01-20", "100", cashflow.DirectionExpense, cashflow.CertaintyCertain))
	require.NoError(t, err)
	assertCachedOn(t, s, "2025-01-20", "-100")

	imported, err := p.ImportTransactions(ctx, testAccount, []cashflow.TransactionRecord{
		{Date: date("2025-01-10"), Description: "opening", Balance: dec("2000")},
	})
	require.NoError(t, err)
	require.Len(t, imported, 1)
	assert.NotEmpty(t, imported[0].ID)
	assert.Equal(t, testAccount, imported[0].BankAccountID)

	assertCachedOn(t, s, "2025-01-10", "2000")
	assertCachedOn(t, s, "2025-01-20", "1900")
}

func TestImportTransactions_RequiresDate(t *testing.T) {
	p, _ := newTestPlanner(t)
	_, err := p.ImportTransactions(context.Background(), testAccount, []cashflow.TransactionRecord{{Balance: dec("1")}})
	assert.ErrorIs(t, err, cashflow.ErrMissingField)
}

func TestDeleteDecisionPath_UntagsAndRecomputes(t *testing.T) {
	ctx := context.Background()
	p, s := newTestPlanner(t)
	require.NoError(t, s.SaveDecisionPath(ctx, cashflow.DecisionPath{ID: "move", Name: "Move abroad"}))

	e := event("e1", "2025-01-20", "100", cashflow.DirectionExpense, cashflow.CertaintyCertain)
	e.DecisionPathID = "move"
	_, err := p.CreateEvent(ctx, e)
	require.NoError(t, err)

	require.NoError(t, p.DeleteDecisionPath(ctx, "move"))

	got, err := s.GetEvent(ctx, "e1")
	require.NoError(t, err)
	assert.Empty(t, got.DecisionPathID)
	assertCachedOn(t, s, "2025-01-20", "-100")

	assert.ErrorIs(t, p.DeleteDecisionPath(ctx, "move"), cashflow.ErrDecisionPathNotFound)
}

func TestCreateEvent_UnknownDecisionPath(t *testing.T) {
	// GIVEN: No decision path "mvoe" is stored
	// WHEN: Creating an event or a rule tagged with it
	// THEN: Both fail with ErrDecisionPathNotFound and nothing is persisted

	ctx := context.Background()
	p, s := newTestPlanner(t)
	require.NoError(t, s.SaveDecisionPath(ctx, cashflow.DecisionPath{ID: "move", Name: "Move abroad"}))

	e := event("e1", "2025-01-20", "100", cashflow.DirectionExpense, cashflow.CertaintyCertain)
	e.DecisionPathID = "mvoe"
	_, err := p.CreateEvent(ctx, e)
	assert.ErrorIs(t, err, cashflow.ErrDecisionPathNotFound)
	got, err := s.GetEvent(ctx, "e1")
	require.NoError(t, err)
	assert.Nil(t, got)

	r := rentRule()
	r.DecisionPathID = "mvoe"
	_, err = p.CreateRule(ctx, r)
	assert.ErrorIs(t, err, cashflow.ErrDecisionPathNotFound)
	rules, err := s.ListRules(ctx, testAccount)
	require.NoError(t, err)
	assert.Empty(t, rules)

	e.DecisionPathID = "move"
	_, err = p.CreateEvent(ctx, e)
	require.NoError(t, err)

	e.DecisionPathID = "mvoe"
	_, err = p.UpdateEvent(ctx, e)
	assert.ErrorIs(t, err, cashflow.ErrDecisionPathNotFound)
	got, err = s.GetEvent(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, cashflow.DecisionPathID("move"), got.DecisionPathID)
}

func TestRecalculate_RangeTooLarge(t *testing.T) {
	// GIVEN: A planner with a 6-month horizon
	// WHEN: Recalculating 24 months and then 24 months and a day
	// THEN: The first succeeds, the second is rejected as a client error

	ctx := context.Background()
	p, s := newTestPlanner(t)
	seedExample(t, s)

	require.NoError(t, p.Recalculate(ctx, testAccount, rangeOf(t, "2025-01-10", "2027-01-10")))

	err := p.Recalculate(ctx, testAccount, rangeOf(t, "2025-01-10", "2027-01-11"))
	assert.ErrorIs(t, err, cashflow.ErrRangeTooLarge)
	assert.True(t, cashflow.IsClientError(err))
	assert.Nil(t, cachedOn(t, s, "2027-01-11"))
}

func TestRecalculate_ExplicitRange(t *testing.T) {
	ctx := context.Background()
	p, s := newTestPlanner(t)
	seedExample(t, s)

	require.NoError(t, p.Recalculate(ctx, testAccount, rangeOf(t, "2025-01-10", "2025-01-16")))
	assertCachedOn(t, s, "2025-01-16", "650")

	err := p.Recalculate(ctx, "missing", rangeOf(t, "2025-01-10", "2025-01-16"))
	assert.ErrorIs(t, err, cashflow.ErrAccountNotFound)
}
