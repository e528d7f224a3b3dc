package store

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cashflow/cashflow"
)

const acc cashflow.BankAccountID = "acc-1"

func seeded(t *testing.T) *Memory {
	t.Helper()
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.SaveAccount(ctx, cashflow.BankAccount{ID: acc, Name: "Checking"}))
	require.NoError(t, m.SaveDecisionPath(ctx, cashflow.DecisionPath{ID: "move", Name: "Move"}))
	require.NoError(t, m.SaveRule(ctx, cashflow.RecurringRule{ID: "r1", BankAccountID: acc, DecisionPathID: "move"}))
	require.NoError(t, m.SaveEvents(ctx, []cashflow.ProjectedEvent{
		{ID: "e1", BankAccountID: acc, Date: cashflow.MustParseDate("2025-02-01"), RecurringRuleID: "r1", DecisionPathID: "move"},
		{ID: "e2", BankAccountID: acc, Date: cashflow.MustParseDate("2025-01-15"), DecisionPathID: "move"},
		{ID: "e3", BankAccountID: acc, Date: cashflow.MustParseDate("2025-01-01")},
	}))
	require.NoError(t, m.AppendTransactions(ctx, []cashflow.TransactionRecord{
		{ID: "t1", BankAccountID: acc, Date: cashflow.MustParseDate("2025-01-01"), Balance: decimal.NewFromInt(100)},
	}))
	require.NoError(t, m.UpsertDailyBalances(ctx, []cashflow.DailyBalance{
		{Date: cashflow.MustParseDate("2025-01-01"), BankAccountID: acc, ExpectedBalance: decimal.NewFromInt(100)},
	}))
	return m
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	m := seeded(t)
	boom := errors.New("boom")

	err := m.WithTx(ctx, func(s cashflow.Store) error {
		require.NoError(t, s.DeleteEvent(ctx, "e1"))
		require.NoError(t, s.SaveRule(ctx, cashflow.RecurringRule{ID: "r2", BankAccountID: acc}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	e, err := m.GetEvent(ctx, "e1")
	require.NoError(t, err)
	assert.NotNil(t, e)

	r, err := m.GetRule(ctx, "r2")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	m := seeded(t)

	require.NoError(t, m.WithTx(ctx, func(s cashflow.Store) error {
		_, err := s.DeleteEventsByRule(ctx, "r1", cashflow.Date{})
		return err
	}))

	events, err := m.EventsByRule(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEventsInRange_OrderedByDate(t *testing.T) {
	m := seeded(t)
	events, err := m.EventsInRange(context.Background(), acc, cashflow.MustParseDate("2025-01-01"), cashflow.MustParseDate("2025-01-31"))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, cashflow.EventID("e3"), events[0].ID)
	assert.Equal(t, cashflow.EventID("e2"), events[1].ID)
}

func TestDeleteEventsByRule_FromDate(t *testing.T) {
	ctx := context.Background()
	m := seeded(t)

	n, err := m.DeleteEventsByRule(ctx, "r1", cashflow.MustParseDate("2025-03-01"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = m.DeleteEventsByRule(ctx, "r1", cashflow.MustParseDate("2025-02-01"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLastTransactionOnOrBefore_SameDayLatestWins(t *testing.T) {
	ctx := context.Background()
	m := seeded(t)
	require.NoError(t, m.AppendTransactions(ctx, []cashflow.TransactionRecord{
		{ID: "t2", BankAccountID: acc, Date: cashflow.MustParseDate("2025-01-01"), Balance: decimal.NewFromInt(80)},
	}))

	tx, err := m.LastTransactionOnOrBefore(ctx, acc, cashflow.MustParseDate("2025-01-05"))
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, cashflow.TransactionID("t2"), tx.ID)

	tx, err = m.LastTransactionOnOrBefore(ctx, acc, cashflow.MustParseDate("2024-12-31"))
	require.NoError(t, err)
	assert.Nil(t, tx)
}

func TestAppendTransactions_DuplicateIDRejectsBatch(t *testing.T) {
	ctx := context.Background()
	m := seeded(t)

	err := m.AppendTransactions(ctx, []cashflow.TransactionRecord{
		{ID: "t9", BankAccountID: acc, Date: cashflow.MustParseDate("2025-01-02")},
		{ID: "t1", BankAccountID: acc, Date: cashflow.MustParseDate("2025-01-03")},
	})
	assert.ErrorIs(t, err, cashflow.ErrDuplicateID)

	txs, err := m.TransactionsInRange(ctx, acc, cashflow.MustParseDate("2025-01-01"), cashflow.MustParseDate("2025-12-31"))
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestUpsertDailyBalances_OverwritesRow(t *testing.T) {
	ctx := context.Background()
	m := seeded(t)
	day := cashflow.MustParseDate("2025-01-01")

	require.NoError(t, m.UpsertDailyBalances(ctx, []cashflow.DailyBalance{
		{Date: day, BankAccountID: acc, ExpectedBalance: decimal.NewFromInt(42)},
	}))

	rows, err := m.DailyBalances(ctx, acc, day, day)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, decimal.NewFromInt(42).Equal(rows[0].ExpectedBalance))
}

func TestDeleteAccount_Cascades(t *testing.T) {
	ctx := context.Background()
	m := seeded(t)

	require.NoError(t, m.DeleteAccount(ctx, acc))

	a, err := m.GetAccount(ctx, acc)
	require.NoError(t, err)
	assert.Nil(t, a)

	from, to := cashflow.MustParseDate("2000-01-01"), cashflow.MustParseDate("2100-01-01")
	events, _ := m.EventsInRange(ctx, acc, from, to)
	assert.Empty(t, events)
	rules, _ := m.ListRules(ctx, acc)
	assert.Empty(t, rules)
	txs, _ := m.TransactionsInRange(ctx, acc, from, to)
	assert.Empty(t, txs)
	rows, _ := m.DailyBalances(ctx, acc, from, to)
	assert.Empty(t, rows)

	assert.ErrorIs(t, m.DeleteAccount(ctx, acc), cashflow.ErrAccountNotFound)
}

func TestDeleteDecisionPath_ReportsEarliestUsage(t *testing.T) {
	ctx := context.Background()
	m := seeded(t)

	usages, err := m.DeleteDecisionPath(ctx, "move")
	require.NoError(t, err)
	require.Len(t, usages, 1)
	assert.Equal(t, acc, usages[0].BankAccountID)
	assert.Equal(t, cashflow.MustParseDate("2025-01-15"), usages[0].Earliest)

	r, err := m.GetRule(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, r.DecisionPathID)

	paths, err := m.ListDecisionPaths(ctx)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	m := seeded(t)
	require.NoError(t, m.Reset(ctx))

	accounts, err := m.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)
}
