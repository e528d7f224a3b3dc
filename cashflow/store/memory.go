// Package store provides in-process cashflow.Store implementations.
package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/warp/cashflow/cashflow"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is a cashflow.TxStore held entirely in maps. Every method takes
// the lock; WithTx holds it for the whole callback and hands fn an
// unlocked view.
type Memory struct {
	mu sync.RWMutex
	s  *state
}

func NewMemory() *Memory {
	return &Memory{s: newState()}
}

var _ cashflow.TxStore = (*Memory)(nil)

// WithTx executes fn within a transaction.
// For the memory store this is a snapshot + restore on error.
func (m *Memory) WithTx(ctx context.Context, fn func(cashflow.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.s.clone()
	if err := fn(m.s); err != nil {
		m.s = snapshot
		return err
	}
	return nil
}

// Reset drops every row.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = newState()
	return nil
}

func (m *Memory) EventsInRange(ctx context.Context, accountID cashflow.BankAccountID, from, to cashflow.Date) ([]cashflow.ProjectedEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.EventsInRange(ctx, accountID, from, to)
}

func (m *Memory) SaveEvents(ctx context.Context, events []cashflow.ProjectedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SaveEvents(ctx, events)
}

func (m *Memory) GetEvent(ctx context.Context, id cashflow.EventID) (*cashflow.ProjectedEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetEvent(ctx, id)
}

func (m *Memory) DeleteEvent(ctx context.Context, id cashflow.EventID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.DeleteEvent(ctx, id)
}

func (m *Memory) EventsByRule(ctx context.Context, ruleID cashflow.RuleID) ([]cashflow.ProjectedEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.EventsByRule(ctx, ruleID)
}

func (m *Memory) DeleteEventsByRule(ctx context.Context, ruleID cashflow.RuleID, from cashflow.Date) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.DeleteEventsByRule(ctx, ruleID, from)
}

func (m *Memory) SaveRule(ctx context.Context, rule cashflow.RecurringRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SaveRule(ctx, rule)
}

func (m *Memory) GetRule(ctx context.Context, id cashflow.RuleID) (*cashflow.RecurringRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetRule(ctx, id)
}

func (m *Memory) ListRules(ctx context.Context, accountID cashflow.BankAccountID) ([]cashflow.RecurringRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListRules(ctx, accountID)
}

func (m *Memory) DeleteRule(ctx context.Context, id cashflow.RuleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.DeleteRule(ctx, id)
}

func (m *Memory) AppendTransactions(ctx context.Context, records []cashflow.TransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.AppendTransactions(ctx, records)
}

func (m *Memory) TransactionsInRange(ctx context.Context, accountID cashflow.BankAccountID, from, to cashflow.Date) ([]cashflow.TransactionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.TransactionsInRange(ctx, accountID, from, to)
}

func (m *Memory) LastTransactionOnOrBefore(ctx context.Context, accountID cashflow.BankAccountID, at cashflow.Date) (*cashflow.TransactionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.LastTransactionOnOrBefore(ctx, accountID, at)
}

func (m *Memory) UpsertDailyBalances(ctx context.Context, rows []cashflow.DailyBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.UpsertDailyBalances(ctx, rows)
}

func (m *Memory) DailyBalances(ctx context.Context, accountID cashflow.BankAccountID, from, to cashflow.Date) ([]cashflow.DailyBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.DailyBalances(ctx, accountID, from, to)
}

func (m *Memory) SaveAccount(ctx context.Context, account cashflow.BankAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SaveAccount(ctx, account)
}

func (m *Memory) GetAccount(ctx context.Context, id cashflow.BankAccountID) (*cashflow.BankAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetAccount(ctx, id)
}

func (m *Memory) ListAccounts(ctx context.Context) ([]cashflow.BankAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListAccounts(ctx)
}

// DeleteAccount is atomic: the cascade runs against a snapshot that is
// restored if any step fails.
func (m *Memory) DeleteAccount(ctx context.Context, id cashflow.BankAccountID) error {
	return m.WithTx(ctx, func(s cashflow.Store) error {
		return s.DeleteAccount(ctx, id)
	})
}

func (m *Memory) SaveDecisionPath(ctx context.Context, path cashflow.DecisionPath) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SaveDecisionPath(ctx, path)
}

func (m *Memory) ListDecisionPaths(ctx context.Context) ([]cashflow.DecisionPath, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListDecisionPaths(ctx)
}

func (m *Memory) DeleteDecisionPath(ctx context.Context, id cashflow.DecisionPathID) ([]cashflow.PathUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.DeleteDecisionPath(ctx, id)
}

func (m *Memory) SaveHoliday(ctx context.Context, h cashflow.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SaveHoliday(ctx, h)
}

func (m *Memory) DeleteHoliday(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.DeleteHoliday(ctx, id)
}

func (m *Memory) ListHolidays(ctx context.Context) ([]cashflow.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListHolidays(ctx)
}

// =============================================================================
// STATE - Unlocked tables; also the view handed to WithTx callbacks
// =============================================================================

type state struct {
	accounts     map[cashflow.BankAccountID]cashflow.BankAccount
	events       map[cashflow.EventID]cashflow.ProjectedEvent
	rules        map[cashflow.RuleID]cashflow.RecurringRule
	transactions map[cashflow.BankAccountID][]cashflow.TransactionRecord // sorted by date
	txIDs        map[cashflow.TransactionID]bool
	balances     map[cashflow.BankAccountID]map[string]cashflow.DailyBalance
	paths        map[cashflow.DecisionPathID]cashflow.DecisionPath
	holidays     map[string]cashflow.Holiday
}

var _ cashflow.Store = (*state)(nil)

func newState() *state {
	return &state{
		accounts:     make(map[cashflow.BankAccountID]cashflow.BankAccount),
		events:       make(map[cashflow.EventID]cashflow.ProjectedEvent),
		rules:        make(map[cashflow.RuleID]cashflow.RecurringRule),
		transactions: make(map[cashflow.BankAccountID][]cashflow.TransactionRecord),
		txIDs:        make(map[cashflow.TransactionID]bool),
		balances:     make(map[cashflow.BankAccountID]map[string]cashflow.DailyBalance),
		paths:        make(map[cashflow.DecisionPathID]cashflow.DecisionPath),
		holidays:     make(map[string]cashflow.Holiday),
	}
}

func (s *state) clone() *state {
	c := &state{
		accounts:     maps.Clone(s.accounts),
		events:       maps.Clone(s.events),
		rules:        maps.Clone(s.rules),
		transactions: make(map[cashflow.BankAccountID][]cashflow.TransactionRecord, len(s.transactions)),
		txIDs:        maps.Clone(s.txIDs),
		balances:     make(map[cashflow.BankAccountID]map[string]cashflow.DailyBalance, len(s.balances)),
		paths:        maps.Clone(s.paths),
		holidays:     maps.Clone(s.holidays),
	}
	for k, v := range s.transactions {
		c.transactions[k] = append([]cashflow.TransactionRecord{}, v...)
	}
	for k, v := range s.balances {
		c.balances[k] = maps.Clone(v)
	}
	return c
}

func inRange(d, from, to cashflow.Date) bool {
	return from.BeforeOrEqual(d) && d.BeforeOrEqual(to)
}

func sortEvents(events []cashflow.ProjectedEvent) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].Date.Equal(events[j].Date) {
			return events[i].Date.Before(events[j].Date)
		}
		return events[i].ID < events[j].ID
	})
}

// --- events ---

func (s *state) EventsInRange(_ context.Context, accountID cashflow.BankAccountID, from, to cashflow.Date) ([]cashflow.ProjectedEvent, error) {
	var result []cashflow.ProjectedEvent
	for _, e := range s.events {
		if e.BankAccountID == accountID && inRange(e.Date, from, to) {
			result = append(result, e)
		}
	}
	sortEvents(result)
	return result, nil
}

func (s *state) SaveEvents(_ context.Context, events []cashflow.ProjectedEvent) error {
	for _, e := range events {
		s.events[e.ID] = e
	}
	return nil
}

func (s *state) GetEvent(_ context.Context, id cashflow.EventID) (*cashflow.ProjectedEvent, error) {
	e, ok := s.events[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *state) DeleteEvent(_ context.Context, id cashflow.EventID) error {
	if _, ok := s.events[id]; !ok {
		return fmt.Errorf("%w: %s", cashflow.ErrEventNotFound, id)
	}
	delete(s.events, id)
	return nil
}

func (s *state) EventsByRule(_ context.Context, ruleID cashflow.RuleID) ([]cashflow.ProjectedEvent, error) {
	var result []cashflow.ProjectedEvent
	for _, e := range s.events {
		if e.RecurringRuleID == ruleID {
			result = append(result, e)
		}
	}
	sortEvents(result)
	return result, nil
}

func (s *state) DeleteEventsByRule(_ context.Context, ruleID cashflow.RuleID, from cashflow.Date) (int, error) {
	n := 0
	for id, e := range s.events {
		if e.RecurringRuleID != ruleID {
			continue
		}
		if !from.IsZero() && e.Date.Before(from) {
			continue
		}
		delete(s.events, id)
		n++
	}
	return n, nil
}

// --- rules ---

func (s *state) SaveRule(_ context.Context, rule cashflow.RecurringRule) error {
	s.rules[rule.ID] = rule
	return nil
}

func (s *state) GetRule(_ context.Context, id cashflow.RuleID) (*cashflow.RecurringRule, error) {
	r, ok := s.rules[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// ListRules returns an account's rules by start date. An empty accountID lists all.
func (s *state) ListRules(_ context.Context, accountID cashflow.BankAccountID) ([]cashflow.RecurringRule, error) {
	var result []cashflow.RecurringRule
	for _, r := range s.rules {
		if accountID == "" || r.BankAccountID == accountID {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartDate.Equal(result[j].StartDate) {
			return result[i].StartDate.Before(result[j].StartDate)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *state) DeleteRule(_ context.Context, id cashflow.RuleID) error {
	if _, ok := s.rules[id]; !ok {
		return fmt.Errorf("%w: %s", cashflow.ErrRuleNotFound, id)
	}
	delete(s.rules, id)
	return nil
}

// --- transactions ---

// AppendTransactions checks every ID before writing anything.
func (s *state) AppendTransactions(_ context.Context, records []cashflow.TransactionRecord) error {
	seen := make(map[cashflow.TransactionID]bool, len(records))
	for _, r := range records {
		if s.txIDs[r.ID] || seen[r.ID] {
			return fmt.Errorf("%w: transaction %s", cashflow.ErrDuplicateID, r.ID)
		}
		seen[r.ID] = true
	}
	for _, r := range records {
		s.appendTransaction(r)
	}
	return nil
}

func (s *state) appendTransaction(r cashflow.TransactionRecord) {
	txs := s.transactions[r.BankAccountID]

	// Insert after every record on the same day so the latest import wins ties.
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].Date.After(r.Date)
	})
	txs = append(txs, cashflow.TransactionRecord{})
	copy(txs[i+1:], txs[i:])
	txs[i] = r
	s.transactions[r.BankAccountID] = txs
	s.txIDs[r.ID] = true
}

func (s *state) TransactionsInRange(_ context.Context, accountID cashflow.BankAccountID, from, to cashflow.Date) ([]cashflow.TransactionRecord, error) {
	var result []cashflow.TransactionRecord
	for _, r := range s.transactions[accountID] {
		if inRange(r.Date, from, to) {
			result = append(result, r)
		}
	}
	return result, nil
}

func (s *state) LastTransactionOnOrBefore(_ context.Context, accountID cashflow.BankAccountID, at cashflow.Date) (*cashflow.TransactionRecord, error) {
	txs := s.transactions[accountID]
	i := sort.Search(len(txs), func(i int) bool {
		return txs[i].Date.After(at)
	})
	if i == 0 {
		return nil, nil
	}
	r := txs[i-1]
	return &r, nil
}

// --- balance cache ---

func (s *state) UpsertDailyBalances(_ context.Context, rows []cashflow.DailyBalance) error {
	for _, row := range rows {
		byDay, ok := s.balances[row.BankAccountID]
		if !ok {
			byDay = make(map[string]cashflow.DailyBalance)
			s.balances[row.BankAccountID] = byDay
		}
		byDay[row.Date.String()] = row
	}
	return nil
}

func (s *state) DailyBalances(_ context.Context, accountID cashflow.BankAccountID, from, to cashflow.Date) ([]cashflow.DailyBalance, error) {
	var result []cashflow.DailyBalance
	for _, row := range s.balances[accountID] {
		if inRange(row.Date, from, to) {
			result = append(result, row)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

// --- accounts ---

func (s *state) SaveAccount(_ context.Context, account cashflow.BankAccount) error {
	s.accounts[account.ID] = account
	return nil
}

func (s *state) GetAccount(_ context.Context, id cashflow.BankAccountID) (*cashflow.BankAccount, error) {
	a, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *state) ListAccounts(_ context.Context) ([]cashflow.BankAccount, error) {
	result := make([]cashflow.BankAccount, 0, len(s.accounts))
	for _, a := range s.accounts {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (s *state) DeleteAccount(_ context.Context, id cashflow.BankAccountID) error {
	if _, ok := s.accounts[id]; !ok {
		return fmt.Errorf("%w: %s", cashflow.ErrAccountNotFound, id)
	}
	delete(s.balances, id)
	for eid, e := range s.events {
		if e.BankAccountID == id {
			delete(s.events, eid)
		}
	}
	for rid, r := range s.rules {
		if r.BankAccountID == id {
			delete(s.rules, rid)
		}
	}
	for _, r := range s.transactions[id] {
		delete(s.txIDs, r.ID)
	}
	delete(s.transactions, id)
	delete(s.accounts, id)
	return nil
}

// --- decision paths ---

func (s *state) SaveDecisionPath(_ context.Context, path cashflow.DecisionPath) error {
	s.paths[path.ID] = path
	return nil
}

func (s *state) ListDecisionPaths(_ context.Context) ([]cashflow.DecisionPath, error) {
	result := make([]cashflow.DecisionPath, 0, len(s.paths))
	for _, p := range s.paths {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (s *state) DeleteDecisionPath(_ context.Context, id cashflow.DecisionPathID) ([]cashflow.PathUsage, error) {
	if _, ok := s.paths[id]; !ok {
		return nil, fmt.Errorf("%w: %s", cashflow.ErrDecisionPathNotFound, id)
	}

	earliest := make(map[cashflow.BankAccountID]cashflow.Date)
	for eid, e := range s.events {
		if e.DecisionPathID != id {
			continue
		}
		e.DecisionPathID = ""
		s.events[eid] = e
		if cur, ok := earliest[e.BankAccountID]; !ok || e.Date.Before(cur) {
			earliest[e.BankAccountID] = e.Date
		}
	}
	for rid, r := range s.rules {
		if r.DecisionPathID == id {
			r.DecisionPathID = ""
			s.rules[rid] = r
		}
	}
	delete(s.paths, id)

	usages := make([]cashflow.PathUsage, 0, len(earliest))
	for acc, d := range earliest {
		usages = append(usages, cashflow.PathUsage{BankAccountID: acc, Earliest: d})
	}
	sort.Slice(usages, func(i, j int) bool {
		return usages[i].BankAccountID < usages[j].BankAccountID
	})
	return usages, nil
}

// --- holidays ---

func (s *state) SaveHoliday(_ context.Context, h cashflow.Holiday) error {
	s.holidays[h.ID] = h
	return nil
}

func (s *state) DeleteHoliday(_ context.Context, id string) error {
	if _, ok := s.holidays[id]; !ok {
		return fmt.Errorf("%w: %s", cashflow.ErrHolidayNotFound, id)
	}
	delete(s.holidays, id)
	return nil
}

func (s *state) ListHolidays(_ context.Context) ([]cashflow.Holiday, error) {
	result := make([]cashflow.Holiday, 0, len(s.holidays))
	for _, h := range s.holidays {
		result = append(result, h)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}
