/*
Package sqlite provides a SQLite-backed implementation of cashflow.TxStore.

PURPOSE:
  Persists accounts, projected events, recurring rules, imported
  transactions, decision paths, holidays and the daily balance cache.
  The same queries run against *sql.DB and *sql.Tx, so every Store
  method is also available inside WithTx.

KEY TABLES:
  accounts:          Bank accounts
  projected_events:  One-off and rule-generated events
  recurring_rules:   Rule templates (revisions point at their base)
  transactions:      Imported statement lines (append-only)
  daily_balances:    Derived cache, UNIQUE(date, bank_account_id)
  decision_paths:    What-if scenario tags
  holidays:          Non-working days for income adjustment

STORAGE FORMATS:
  Dates are TEXT "YYYY-MM-DD" so that string order is date order.
  Money is TEXT holding the exact decimal representation.

INDEXES:
  - idx_events_account_date: EventsInRange (hot path of every replay)
  - idx_events_rule: Regenerating a rule's events
  - idx_transactions_account_date: Anchor lookup

CONCURRENCY:
  The pool is limited to one connection. Writes are serialized, a
  transaction owns the connection until it commits, and ":memory:"
  databases stay a single database.

USAGE:
  store, err := sqlite.New("./data/cashflow.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  planner := cashflow.NewPlanner(store, 6)

SEE ALSO:
  - cashflow/store.go: Interface definitions
  - cashflow/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/cashflow/cashflow"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements cashflow.Store against a dbtx.
type queries struct {
	db dbtx
}

// Store implements cashflow.TxStore using SQLite.
type Store struct {
	*queries
	conn *sql.DB
}

var _ cashflow.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: &queries{db: db}, conn: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		institution TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS decision_paths (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS recurring_rules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		direction TEXT NOT NULL,
		certainty TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		frequency TEXT NOT NULL,
		bank_account_id TEXT NOT NULL REFERENCES accounts(id),
		decision_path_id TEXT,
		base_rule_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_rules_account
		ON recurring_rules(bank_account_id, start_date);

	CREATE TABLE IF NOT EXISTS projected_events (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		direction TEXT NOT NULL,
		certainty TEXT NOT NULL,
		date TEXT NOT NULL,
		bank_account_id TEXT NOT NULL REFERENCES accounts(id),
		decision_path_id TEXT,
		recurring_rule_id TEXT
	);

	-- Hot path: every replay loads one account's events by date
	CREATE INDEX IF NOT EXISTS idx_events_account_date
		ON projected_events(bank_account_id, date);
	CREATE INDEX IF NOT EXISTS idx_events_rule
		ON projected_events(recurring_rule_id) WHERE recurring_rule_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_events_path
		ON projected_events(decision_path_id) WHERE decision_path_id IS NOT NULL;

	-- Imported statement lines (append-only, rowid orders same-day imports)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		bank_account_id TEXT NOT NULL REFERENCES accounts(id),
		date TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		debit TEXT,
		credit TEXT,
		balance TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_account_date
		ON transactions(bank_account_id, date);

	-- Derived cache, always recomputable from events + transactions
	CREATE TABLE IF NOT EXISTS daily_balances (
		date TEXT NOT NULL,
		bank_account_id TEXT NOT NULL REFERENCES accounts(id),
		expected_balance TEXT NOT NULL,
		UNIQUE(date, bank_account_id)
	);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		recurring BOOLEAN DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_holidays_unique
		ON holidays(date, name);
	`

	_, err := s.conn.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (cashflow.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(cashflow.Store) error) error {
	sqlTx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{db: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// Multi-row writes are all-or-nothing when called outside WithTx.

func (s *Store) SaveEvents(ctx context.Context, events []cashflow.ProjectedEvent) error {
	return s.WithTx(ctx, func(tx cashflow.Store) error {
		return tx.SaveEvents(ctx, events)
	})
}

func (s *Store) AppendTransactions(ctx context.Context, records []cashflow.TransactionRecord) error {
	return s.WithTx(ctx, func(tx cashflow.Store) error {
		return tx.AppendTransactions(ctx, records)
	})
}

func (s *Store) UpsertDailyBalances(ctx context.Context, rows []cashflow.DailyBalance) error {
	return s.WithTx(ctx, func(tx cashflow.Store) error {
		return tx.UpsertDailyBalances(ctx, rows)
	})
}

func (s *Store) DeleteAccount(ctx context.Context, id cashflow.BankAccountID) error {
	return s.WithTx(ctx, func(tx cashflow.Store) error {
		return tx.DeleteAccount(ctx, id)
	})
}

func (s *Store) DeleteDecisionPath(ctx context.Context, id cashflow.DecisionPathID) ([]cashflow.PathUsage, error) {
	var usages []cashflow.PathUsage
	err := s.WithTx(ctx, func(tx cashflow.Store) error {
		var err error
		usages, err = tx.DeleteDecisionPath(ctx, id)
		return err
	})
	return usages, err
}

// =============================================================================
// PROJECTED EVENTS
// =============================================================================

const eventColumns = `id, name, value, direction, certainty, date, bank_account_id, decision_path_id, recurring_rule_id`

func (q *queries) SaveEvents(ctx context.Context, events []cashflow.ProjectedEvent) error {
	query := `
		INSERT INTO projected_events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			value = excluded.value,
			direction = excluded.direction,
			certainty = excluded.certainty,
			date = excluded.date,
			bank_account_id = excluded.bank_account_id,
			decision_path_id = excluded.decision_path_id,
			recurring_rule_id = excluded.recurring_rule_id
	`
	for _, e := range events {
		_, err := q.db.ExecContext(ctx, query,
			e.ID, e.Name, e.Value.String(), e.Direction, e.Certainty,
			formatDate(e.Date), e.BankAccountID,
			nullString(string(e.DecisionPathID)),
			nullString(string(e.RecurringRuleID)),
		)
		if err != nil {
			return fmt.Errorf("failed to save event %s: %w", e.ID, err)
		}
	}
	return nil
}

func (q *queries) EventsInRange(ctx context.Context, accountID cashflow.BankAccountID, from, to cashflow.Date) ([]cashflow.ProjectedEvent, error) {
	return q.queryEvents(ctx, `
		SELECT `+eventColumns+` FROM projected_events
		WHERE bank_account_id = ? AND date >= ? AND date <= ?
		ORDER BY date, id
	`, accountID, formatDate(from), formatDate(to))
}

func (q *queries) GetEvent(ctx context.Context, id cashflow.EventID) (*cashflow.ProjectedEvent, error) {
	events, err := q.queryEvents(ctx, `SELECT `+eventColumns+` FROM projected_events WHERE id = ?`, id)
	if err != nil || len(events) == 0 {
		return nil, err
	}
	return &events[0], nil
}

func (q *queries) DeleteEvent(ctx context.Context, id cashflow.EventID) error {
	res, err := q.db.ExecContext(ctx, "DELETE FROM projected_events WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireAffected(res, fmt.Errorf("%w: %s", cashflow.ErrEventNotFound, id))
}

func (q *queries) EventsByRule(ctx context.Context, ruleID cashflow.RuleID) ([]cashflow.ProjectedEvent, error) {
	return q.queryEvents(ctx, `
		SELECT `+eventColumns+` FROM projected_events
		WHERE recurring_rule_id = ?
		ORDER BY date, id
	`, ruleID)
}

func (q *queries) DeleteEventsByRule(ctx context.Context, ruleID cashflow.RuleID, from cashflow.Date) (int, error) {
	var (
		res sql.Result
		err error
	)
	if from.IsZero() {
		res, err = q.db.ExecContext(ctx, "DELETE FROM projected_events WHERE recurring_rule_id = ?", ruleID)
	} else {
		res, err = q.db.ExecContext(ctx,
			"DELETE FROM projected_events WHERE recurring_rule_id = ? AND date >= ?",
			ruleID, formatDate(from))
	}
	if err != nil {
		return 0, fmt.Errorf("failed to delete events of rule %s: %w", ruleID, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (q *queries) queryEvents(ctx context.Context, query string, args ...any) ([]cashflow.ProjectedEvent, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []cashflow.ProjectedEvent
	for rows.Next() {
		var (
			e              cashflow.ProjectedEvent
			value, date    string
			pathID, ruleID sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Name, &value, &e.Direction, &e.Certainty, &date,
			&e.BankAccountID, &pathID, &ruleID); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if e.Value, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("event %s value: %w", e.ID, err)
		}
		if e.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		e.DecisionPathID = cashflow.DecisionPathID(pathID.String)
		e.RecurringRuleID = cashflow.RuleID(ruleID.String)
		events = append(events, e)
	}
	return events, rows.Err()
}

// =============================================================================
// RECURRING RULES
// =============================================================================

const ruleColumns = `id, name, value, direction, certainty, start_date, end_date, frequency, bank_account_id, decision_path_id, base_rule_id`

func (q *queries) SaveRule(ctx context.Context, r cashflow.RecurringRule) error {
	query := `
		INSERT INTO recurring_rules (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			value = excluded.value,
			direction = excluded.direction,
			certainty = excluded.certainty,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			frequency = excluded.frequency,
			bank_account_id = excluded.bank_account_id,
			decision_path_id = excluded.decision_path_id,
			base_rule_id = excluded.base_rule_id
	`
	_, err := q.db.ExecContext(ctx, query,
		r.ID, r.Name, r.Value.String(), r.Direction, r.Certainty,
		formatDate(r.StartDate), nullString(formatDate(r.EndDate)), r.Frequency,
		r.BankAccountID,
		nullString(string(r.DecisionPathID)),
		nullString(string(r.BaseRuleID)),
	)
	if err != nil {
		return fmt.Errorf("failed to save rule %s: %w", r.ID, err)
	}
	return nil
}

func (q *queries) GetRule(ctx context.Context, id cashflow.RuleID) (*cashflow.RecurringRule, error) {
	rules, err := q.queryRules(ctx, `SELECT `+ruleColumns+` FROM recurring_rules WHERE id = ?`, id)
	if err != nil || len(rules) == 0 {
		return nil, err
	}
	return &rules[0], nil
}

// ListRules returns an account's rules by start date. An empty accountID lists all.
func (q *queries) ListRules(ctx context.Context, accountID cashflow.BankAccountID) ([]cashflow.RecurringRule, error) {
	return q.queryRules(ctx, `
		SELECT `+ruleColumns+` FROM recurring_rules
		WHERE (? = '' OR bank_account_id = ?)
		ORDER BY start_date, id
	`, accountID, accountID)
}

func (q *queries) DeleteRule(ctx context.Context, id cashflow.RuleID) error {
	res, err := q.db.ExecContext(ctx, "DELETE FROM recurring_rules WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireAffected(res, fmt.Errorf("%w: %s", cashflow.ErrRuleNotFound, id))
}

func (q *queries) queryRules(ctx context.Context, query string, args ...any) ([]cashflow.RecurringRule, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []cashflow.RecurringRule
	for rows.Next() {
		var (
			r                   cashflow.RecurringRule
			value, start        string
			end, pathID, baseID sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Name, &value, &r.Direction, &r.Certainty,
			&start, &end, &r.Frequency, &r.BankAccountID, &pathID, &baseID); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		if r.Value, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("rule %s value: %w", r.ID, err)
		}
		if r.StartDate, err = parseDate(start); err != nil {
			return nil, err
		}
		if end.Valid {
			if r.EndDate, err = parseDate(end.String); err != nil {
				return nil, err
			}
		}
		r.DecisionPathID = cashflow.DecisionPathID(pathID.String)
		r.BaseRuleID = cashflow.RuleID(baseID.String)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// =============================================================================
// TRANSACTIONS (append-only)
// =============================================================================

const transactionColumns = `id, bank_account_id, date, description, debit, credit, balance`

func (q *queries) AppendTransactions(ctx context.Context, records []cashflow.TransactionRecord) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now().UTC().Format(time.RFC3339)
	for _, r := range records {
		_, err := q.db.ExecContext(ctx, query,
			r.ID, r.BankAccountID, formatDate(r.Date), r.Description,
			nullDecimal(r.Debit), nullDecimal(r.Credit), r.Balance.String(), now,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("%w: transaction %s", cashflow.ErrDuplicateID, r.ID)
			}
			return fmt.Errorf("failed to append transaction: %w", err)
		}
	}
	return nil
}

func (q *queries) TransactionsInRange(ctx context.Context, accountID cashflow.BankAccountID, from, to cashflow.Date) ([]cashflow.TransactionRecord, error) {
	return q.queryTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE bank_account_id = ? AND date >= ? AND date <= ?
		ORDER BY date, rowid
	`, accountID, formatDate(from), formatDate(to))
}

// LastTransactionOnOrBefore picks the most recently imported line on the
// latest date not after at.
func (q *queries) LastTransactionOnOrBefore(ctx context.Context, accountID cashflow.BankAccountID, at cashflow.Date) (*cashflow.TransactionRecord, error) {
	records, err := q.queryTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE bank_account_id = ? AND date <= ?
		ORDER BY date DESC, rowid DESC
		LIMIT 1
	`, accountID, formatDate(at))
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return &records[0], nil
}

func (q *queries) queryTransactions(ctx context.Context, query string, args ...any) ([]cashflow.TransactionRecord, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var records []cashflow.TransactionRecord
	for rows.Next() {
		var (
			r             cashflow.TransactionRecord
			date, balance string
			debit, credit sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.BankAccountID, &date, &r.Description, &debit, &credit, &balance); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if r.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		if r.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("transaction %s balance: %w", r.ID, err)
		}
		if r.Debit, err = parseNullDecimal(debit); err != nil {
			return nil, err
		}
		if r.Credit, err = parseNullDecimal(credit); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// =============================================================================
// DAILY BALANCE CACHE
// =============================================================================

func (q *queries) UpsertDailyBalances(ctx context.Context, rows []cashflow.DailyBalance) error {
	query := `
		INSERT INTO daily_balances (date, bank_account_id, expected_balance)
		VALUES (?, ?, ?)
		ON CONFLICT(date, bank_account_id) DO UPDATE SET
			expected_balance = excluded.expected_balance
	`
	for _, row := range rows {
		if _, err := q.db.ExecContext(ctx, query,
			formatDate(row.Date), row.BankAccountID, row.ExpectedBalance.String(),
		); err != nil {
			return fmt.Errorf("failed to upsert balance for %s: %w", row.Date, err)
		}
	}
	return nil
}

func (q *queries) DailyBalances(ctx context.Context, accountID cashflow.BankAccountID, from, to cashflow.Date) ([]cashflow.DailyBalance, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT date, expected_balance FROM daily_balances
		WHERE bank_account_id = ? AND date >= ? AND date <= ?
		ORDER BY date
	`, accountID, formatDate(from), formatDate(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily balances: %w", err)
	}
	defer rows.Close()

	var result []cashflow.DailyBalance
	for rows.Next() {
		var date, balance string
		if err := rows.Scan(&date, &balance); err != nil {
			return nil, err
		}
		row := cashflow.DailyBalance{BankAccountID: accountID}
		if row.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		if row.ExpectedBalance, err = decimal.NewFromString(balance); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (q *queries) SaveAccount(ctx context.Context, a cashflow.BankAccount) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, institution, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			institution = excluded.institution
	`, a.ID, a.Name, a.Institution, a.CreatedAt.Format(time.RFC3339))
	return err
}

func (q *queries) GetAccount(ctx context.Context, id cashflow.BankAccountID) (*cashflow.BankAccount, error) {
	var (
		a         cashflow.BankAccount
		createdAt string
	)
	err := q.db.QueryRowContext(ctx,
		"SELECT id, name, institution, created_at FROM accounts WHERE id = ?", id,
	).Scan(&a.ID, &a.Name, &a.Institution, &createdAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &a, nil
}

func (q *queries) ListAccounts(ctx context.Context) ([]cashflow.BankAccount, error) {
	rows, err := q.db.QueryContext(ctx, "SELECT id, name, institution, created_at FROM accounts ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []cashflow.BankAccount
	for rows.Next() {
		var (
			a         cashflow.BankAccount
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.Institution, &createdAt); err != nil {
			return nil, err
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// DeleteAccount removes dependents in order: cache, events, rules,
// transactions, then the account. Callers outside WithTx go through
// Store.DeleteAccount, which wraps this in a transaction.
func (q *queries) DeleteAccount(ctx context.Context, id cashflow.BankAccountID) error {
	for _, table := range []string{"daily_balances", "projected_events", "recurring_rules", "transactions"} {
		if _, err := q.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE bank_account_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete %s of account %s: %w", table, id, err)
		}
	}
	res, err := q.db.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireAffected(res, fmt.Errorf("%w: %s", cashflow.ErrAccountNotFound, id))
}

// =============================================================================
// DECISION PATHS
// =============================================================================

func (q *queries) SaveDecisionPath(ctx context.Context, p cashflow.DecisionPath) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO decision_paths (id, name, description, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description
	`, p.ID, p.Name, p.Description, p.CreatedAt.Format(time.RFC3339))
	return err
}

func (q *queries) ListDecisionPaths(ctx context.Context) ([]cashflow.DecisionPath, error) {
	rows, err := q.db.QueryContext(ctx, "SELECT id, name, description, created_at FROM decision_paths ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []cashflow.DecisionPath
	for rows.Next() {
		var (
			p         cashflow.DecisionPath
			createdAt string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &createdAt); err != nil {
			return nil, err
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func (q *queries) DeleteDecisionPath(ctx context.Context, id cashflow.DecisionPathID) ([]cashflow.PathUsage, error) {
	var count int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM decision_paths WHERE id = ?", id).Scan(&count); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: %s", cashflow.ErrDecisionPathNotFound, id)
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT bank_account_id, MIN(date) FROM projected_events
		WHERE decision_path_id = ?
		GROUP BY bank_account_id
		ORDER BY bank_account_id
	`, id)
	if err != nil {
		return nil, err
	}
	var usages []cashflow.PathUsage
	for rows.Next() {
		var (
			u        cashflow.PathUsage
			earliest string
		)
		if err := rows.Scan(&u.BankAccountID, &earliest); err != nil {
			rows.Close()
			return nil, err
		}
		if u.Earliest, err = parseDate(earliest); err != nil {
			rows.Close()
			return nil, err
		}
		usages = append(usages, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, stmt := range []string{
		"UPDATE projected_events SET decision_path_id = NULL WHERE decision_path_id = ?",
		"UPDATE recurring_rules SET decision_path_id = NULL WHERE decision_path_id = ?",
		"DELETE FROM decision_paths WHERE id = ?",
	} {
		if _, err := q.db.ExecContext(ctx, stmt, id); err != nil {
			return nil, fmt.Errorf("failed to delete decision path %s: %w", id, err)
		}
	}
	return usages, nil
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (q *queries) SaveHoliday(ctx context.Context, h cashflow.Holiday) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO holidays (id, date, name, recurring, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			name = excluded.name,
			recurring = excluded.recurring
	`, h.ID, formatDate(h.Date), h.Name, h.Recurring, time.Now().UTC().Format(time.RFC3339))
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: holiday %s on %s", cashflow.ErrDuplicateID, h.Name, h.Date)
	}
	return err
}

func (q *queries) DeleteHoliday(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, "DELETE FROM holidays WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireAffected(res, fmt.Errorf("%w: %s", cashflow.ErrHolidayNotFound, id))
}

func (q *queries) ListHolidays(ctx context.Context) ([]cashflow.Holiday, error) {
	rows, err := q.db.QueryContext(ctx, "SELECT id, date, name, recurring FROM holidays ORDER BY date")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holidays []cashflow.Holiday
	for rows.Next() {
		var (
			h    cashflow.Holiday
			date string
		)
		if err := rows.Scan(&h.ID, &date, &h.Name, &h.Recurring); err != nil {
			return nil, err
		}
		if h.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	sqlTx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	tables := []string{
		"daily_balances", "projected_events", "recurring_rules", "transactions",
		"decision_paths", "holidays", "accounts",
	}
	for _, table := range tables {
		if _, err := sqlTx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return sqlTx.Commit()
}

// Helper functions

func formatDate(d cashflow.Date) string {
	return d.String()
}

func parseDate(s string) (cashflow.Date, error) {
	d, err := cashflow.ParseDate(s)
	if err != nil {
		return cashflow.Date{}, fmt.Errorf("stored date: %w", err)
	}
	return d, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func parseNullDecimal(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
