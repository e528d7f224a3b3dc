/*
store.go - Persistence interfaces

PURPOSE:
  Defines the boundary between the projection engine and the database.
  The engine itself only needs three reads/writes (events in a range,
  the last transaction on or before a day, and a batch cache upsert);
  the Planner needs the full Store to apply mutations.

KEY INTERFACES:
  EventReader / AnchorReader / BalanceCache: what the engine consumes
  Store:   every table the application owns
  TxStore: Store + WithTx for atomic multi-step mutations

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - cashflow/store/memory.go: In-memory for testing

SEE ALSO:
  - balance.go: Engine using EventReader/AnchorReader/BalanceCache
  - planner.go: Uses TxStore
*/
package cashflow

import "context"

// =============================================================================
// ENGINE-FACING INTERFACES
// =============================================================================

// EventReader loads projected events for an account.
type EventReader interface {
	// EventsInRange returns events dated within [from, to], ordered by date.
	EventsInRange(ctx context.Context, accountID BankAccountID, from, to Date) ([]ProjectedEvent, error)
}

// AnchorReader looks up known-true balances from imported transactions.
type AnchorReader interface {
	// LastTransactionOnOrBefore returns the latest transaction dated <= at,
	// or nil (and no error) when the account has no such history.
	LastTransactionOnOrBefore(ctx context.Context, accountID BankAccountID, at Date) (*TransactionRecord, error)
}

// BalanceCache persists computed daily balances.
type BalanceCache interface {
	// UpsertDailyBalances writes rows keyed by (Date, BankAccountID),
	// overwriting existing rows. All-or-nothing per call.
	UpsertDailyBalances(ctx context.Context, rows []DailyBalance) error

	// DailyBalances returns cached rows within [from, to], ordered by date.
	DailyBalances(ctx context.Context, accountID BankAccountID, from, to Date) ([]DailyBalance, error)
}

// =============================================================================
// APPLICATION STORES
// =============================================================================

type EventStore interface {
	EventReader

	// SaveEvents inserts or replaces events by ID.
	SaveEvents(ctx context.Context, events []ProjectedEvent) error
	GetEvent(ctx context.Context, id EventID) (*ProjectedEvent, error)
	DeleteEvent(ctx context.Context, id EventID) error

	// EventsByRule returns all events generated by a rule, ordered by date.
	EventsByRule(ctx context.Context, ruleID RuleID) ([]ProjectedEvent, error)

	// DeleteEventsByRule removes a rule's events dated on or after from.
	// A zero from deletes all of them. Returns the number removed.
	DeleteEventsByRule(ctx context.Context, ruleID RuleID, from Date) (int, error)
}

type RuleStore interface {
	// SaveRule inserts or replaces a rule by ID.
	SaveRule(ctx context.Context, rule RecurringRule) error
	GetRule(ctx context.Context, id RuleID) (*RecurringRule, error)
	ListRules(ctx context.Context, accountID BankAccountID) ([]RecurringRule, error)
	DeleteRule(ctx context.Context, id RuleID) error
}

type TransactionStore interface {
	AnchorReader

	// AppendTransactions records imported lines. Records are immutable.
	AppendTransactions(ctx context.Context, records []TransactionRecord) error
	TransactionsInRange(ctx context.Context, accountID BankAccountID, from, to Date) ([]TransactionRecord, error)
}

type AccountStore interface {
	SaveAccount(ctx context.Context, account BankAccount) error
	GetAccount(ctx context.Context, id BankAccountID) (*BankAccount, error)
	ListAccounts(ctx context.Context) ([]BankAccount, error)

	// DeleteAccount removes the account and every dependent row in one
	// transaction: cache, events, rules, transactions, then the account.
	DeleteAccount(ctx context.Context, id BankAccountID) error
}

// PathUsage is where a deleted decision path was referenced.
type PathUsage struct {
	BankAccountID BankAccountID
	Earliest      Date
}

type DecisionPathStore interface {
	SaveDecisionPath(ctx context.Context, path DecisionPath) error
	ListDecisionPaths(ctx context.Context) ([]DecisionPath, error)

	// DeleteDecisionPath removes the path and clears it from events and
	// rules. Returns, per account, the earliest event date that changed.
	DeleteDecisionPath(ctx context.Context, id DecisionPathID) ([]PathUsage, error)
}

type HolidayStore interface {
	SaveHoliday(ctx context.Context, h Holiday) error
	DeleteHoliday(ctx context.Context, id string) error
	ListHolidays(ctx context.Context) ([]Holiday, error)
}

// Store is everything the application persists.
type Store interface {
	EventStore
	RuleStore
	TransactionStore
	BalanceCache
	AccountStore
	DecisionPathStore
	HolidayStore
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, it is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
