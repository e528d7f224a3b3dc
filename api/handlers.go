/*
handlers.go - HTTP API handlers for the balance projection engine

PURPOSE:
  Exposes the projection engine via REST API. Handles HTTP request and
  response, JSON serialization, and delegates to package cashflow.

ENDPOINTS:
  Accounts:
    GET    /api/accounts                       List accounts
    POST   /api/accounts                       Create account
    GET    /api/accounts/{id}                  Get account
    DELETE /api/accounts/{id}                  Delete account and everything it owns
    GET    /api/accounts/{id}/transactions     Imported statement lines
    POST   /api/accounts/{id}/transactions     Import statement lines
    GET    /api/accounts/{id}/balances         Cached expected balances
    GET    /api/accounts/{id}/projection       On-the-fly projection (no cache writes)
    POST   /api/accounts/{id}/preview          Single-day preview
    POST   /api/accounts/{id}/recalculate      Rebuild the cache for a range

  Events and rules:
    GET/POST        /api/events
    GET/PUT/DELETE  /api/events/{id}
    GET/POST        /api/rules
    GET/PUT/DELETE  /api/rules/{id}
    POST            /api/rules/{id}/revisions   Split a rule at a date

  Decision paths and holidays:
    GET/POST /api/decision-paths, DELETE /api/decision-paths/{id}
    GET/POST /api/holidays,       DELETE /api/holidays/{id}

  Scenarios (scenarios.go):
    GET  /api/scenarios, POST /api/scenarios/load, POST /api/scenarios/reset

REQUEST FLOW:
  1. Parse HTTP request (path, query, JSON body)
  2. Convert to domain types (parse dates, enums)
  3. Reads go to the Store or Calculator; writes go through the Planner
     so every mutation recomputes the cache in the same transaction
  4. Serialize response

QUERY CONVENTIONS:
  from/to:  YYYY-MM-DD. Balance reads default to [today, today + horizon].
  paths:    absent = every decision path; "a,b" = only those paths;
            empty = unconditional events only.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Duplicate id
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/warp/cashflow/cashflow"
	"github.com/warp/cashflow/logger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is what the handlers need from persistence.
type Store interface {
	cashflow.TxStore

	// Reset wipes every table (scenario loading).
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      Store
	Planner    *cashflow.Planner
	Calculator *cashflow.Calculator

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a handler whose mutations recompute horizonMonths ahead.
func NewHandler(store Store, horizonMonths int) *Handler {
	return &Handler{
		Store:      store,
		Planner:    cashflow.NewPlanner(store, horizonMonths),
		Calculator: cashflow.NewCalculator(store),
	}
}

// openStart and openEnd bound list queries with no from/to.
var (
	openStart = cashflow.NewDate(1900, time.January, 1)
	openEnd   = cashflow.NewDate(9999, time.December, 31)
)

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Store.ListAccounts(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}

	account := cashflow.BankAccount{
		ID:          cashflow.BankAccountID(req.ID),
		Name:        req.Name,
		Institution: req.Institution,
		CreatedAt:   time.Now().UTC(),
	}
	if account.ID == "" {
		account.ID = cashflow.NewBankAccountID()
	} else {
		existing, err := h.Store.GetAccount(r.Context(), account.ID)
		if err != nil {
			h.fail(w, r, "Failed to check account", err)
			return
		}
		if existing != nil {
			writeError(w, http.StatusConflict, "Account already exists", cashflow.ErrDuplicateID)
			return
		}
	}

	if err := h.Store.SaveAccount(r.Context(), account); err != nil {
		h.fail(w, r, "Failed to create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(account))
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, ok := h.loadAccount(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(*account))
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := cashflow.BankAccountID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteAccount(r.Context(), id); err != nil {
		h.fail(w, r, "Failed to delete account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// loadAccount resolves {id}, writing a 404 when it doesn't exist.
func (h *Handler) loadAccount(w http.ResponseWriter, r *http.Request) (*cashflow.BankAccount, bool) {
	id := cashflow.BankAccountID(chi.URLParam(r, "id"))
	account, err := h.Store.GetAccount(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to get account", err)
		return nil, false
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "Account not found", cashflow.ErrAccountNotFound)
		return nil, false
	}
	return account, true
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	account, ok := h.loadAccount(w, r)
	if !ok {
		return
	}
	rng, err := parseRange(r, openStart, openEnd)
	if err != nil {
		h.fail(w, r, "Invalid date range", err)
		return
	}

	records, err := h.Store.TransactionsInRange(r.Context(), account.ID, rng.Start, rng.End)
	if err != nil {
		h.fail(w, r, "Failed to list transactions", err)
		return
	}

	dtos := make([]TransactionDTO, len(records))
	for i, rec := range records {
		dtos[i] = toTransactionDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ImportTransactions appends statement lines and re-anchors the projection
// from the earliest imported date.
func (h *Handler) ImportTransactions(w http.ResponseWriter, r *http.Request) {
	account, ok := h.loadAccount(w, r)
	if !ok {
		return
	}

	var req ImportTransactionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Transactions) == 0 {
		writeError(w, http.StatusBadRequest, "No transactions to import", nil)
		return
	}

	records := make([]cashflow.TransactionRecord, len(req.Transactions))
	for i, in := range req.Transactions {
		date, err := parseDate("date", in.Date)
		if err != nil {
			h.fail(w, r, fmt.Sprintf("Invalid transaction %d", i), err)
			return
		}
		records[i] = cashflow.TransactionRecord{
			ID:          cashflow.TransactionID(in.ID),
			Date:        date,
			Description: in.Description,
			Debit:       nullDecimal(in.Debit),
			Credit:      nullDecimal(in.Credit),
			Balance:     in.Balance,
		}
	}

	saved, err := h.Planner.ImportTransactions(r.Context(), account.ID, records)
	if err != nil {
		h.fail(w, r, "Failed to import transactions", err)
		return
	}

	dtos := make([]TransactionDTO, len(saved))
	for i, rec := range saved {
		dtos[i] = toTransactionDTO(rec)
	}
	writeJSON(w, http.StatusCreated, dtos)
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// GetBalances returns cached expected balances.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	account, ok := h.loadAccount(w, r)
	if !ok {
		return
	}
	rng, err := h.horizonRange(r)
	if err != nil {
		h.fail(w, r, "Invalid date range", err)
		return
	}

	rows, err := h.Store.DailyBalances(r.Context(), account.ID, rng.Start, rng.End)
	if err != nil {
		h.fail(w, r, "Failed to load balances", err)
		return
	}
	writeJSON(w, http.StatusOK, toDailyBalanceDTOs(rows))
}

// GetProjection replays balances without touching the cache.
//
// anchor defaults to from; coverage_end defaults to the last transaction
// on or before to.
func (h *Handler) GetProjection(w http.ResponseWriter, r *http.Request) {
	account, ok := h.loadAccount(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	rng, err := h.horizonRange(r)
	if err != nil {
		h.fail(w, r, "Invalid date range", err)
		return
	}
	anchor, err := optionalDate(r, "anchor", rng.Start)
	if err != nil {
		h.fail(w, r, "Invalid anchor", err)
		return
	}

	var coverageEnd *cashflow.Date
	if raw := r.URL.Query().Get("coverage_end"); raw != "" {
		d, err := parseDate("coverage_end", raw)
		if err != nil {
			h.fail(w, r, "Invalid coverage_end", err)
			return
		}
		coverageEnd = &d
	} else {
		last, err := h.Store.LastTransactionOnOrBefore(ctx, account.ID, rng.End)
		if err != nil {
			h.fail(w, r, "Failed to resolve coverage", err)
			return
		}
		if last != nil {
			coverageEnd = &last.Date
		}
	}

	days, err := h.Calculator.ComputeBalancesOnTheFly(ctx, cashflow.OnTheFlyInput{
		BankAccountID:      account.ID,
		Range:              rng,
		Filter:             parsePaths(r),
		UseTrueBalanceFrom: anchor,
		CoverageEnd:        coverageEnd,
	})
	if err != nil {
		h.fail(w, r, "Failed to compute projection", err)
		return
	}

	resp := ProjectionResponse{
		BankAccountID: string(account.ID),
		From:          rng.Start.String(),
		To:            rng.End.String(),
		AnchorDate:    anchor.String(),
		Days:          make([]ProjectedDayDTO, len(days)),
	}
	if coverageEnd != nil {
		resp.CoverageEnd = coverageEnd.String()
	}
	for i, d := range days {
		resp.Days[i] = ProjectedDayDTO{
			Date:            d.Date.String(),
			ExpectedBalance: d.ExpectedBalance,
			EventCount:      d.EventCount,
			BalanceType:     string(d.BalanceType),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) PreviewDay(w http.ResponseWriter, r *http.Request) {
	account, ok := h.loadAccount(w, r)
	if !ok {
		return
	}

	var req PreviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	day, err := parseDate("date", req.Date)
	if err != nil {
		h.fail(w, r, "Invalid date", err)
		return
	}

	filter := cashflow.AllPaths()
	if req.DecisionPaths != nil {
		filter = cashflow.OnlyPaths(toPathIDs(req.DecisionPaths)...)
	}

	preview, err := h.Calculator.CalculateBalanceForDay(r.Context(), account.ID, day, req.PreviousBalance, filter)
	if err != nil {
		h.fail(w, r, "Failed to preview day", err)
		return
	}
	writeJSON(w, http.StatusOK, PreviewResponse{
		Date:            day.String(),
		ExpectedBalance: preview.ExpectedBalance,
		Events:          toEventDTOs(preview.Events),
	})
}

// Recalculate rebuilds the cache for the requested range and returns it.
// Ranges longer than cashflow.MaxRecalculateHorizons horizons get a 400.
func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	account, ok := h.loadAccount(w, r)
	if !ok {
		return
	}

	var req RecalculateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	from := cashflow.Today()
	if req.From != "" {
		d, err := parseDate("from", req.From)
		if err != nil {
			h.fail(w, r, "Invalid from", err)
			return
		}
		from = d
	}
	to := from.AddMonths(h.Planner.Horizon)
	if req.To != "" {
		d, err := parseDate("to", req.To)
		if err != nil {
			h.fail(w, r, "Invalid to", err)
			return
		}
		to = d
	}
	rng := cashflow.DateRange{Start: from, End: to}

	ctx := r.Context()
	if err := h.Planner.Recalculate(ctx, account.ID, rng); err != nil {
		h.fail(w, r, "Failed to recalculate", err)
		return
	}
	rows, err := h.Store.DailyBalances(ctx, account.ID, rng.Start, rng.End)
	if err != nil {
		h.fail(w, r, "Failed to load balances", err)
		return
	}
	writeJSON(w, http.StatusOK, toDailyBalanceDTOs(rows))
}

func toDailyBalanceDTOs(rows []cashflow.DailyBalance) []DailyBalanceDTO {
	dtos := make([]DailyBalanceDTO, len(rows))
	for i, row := range rows {
		dtos[i] = DailyBalanceDTO{Date: row.Date.String(), ExpectedBalance: row.ExpectedBalance}
	}
	return dtos
}

// =============================================================================
// EVENT HANDLERS
// =============================================================================

// ListEvents lists events for one account (?account=) or all of them.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rng, err := parseRange(r, openStart, openEnd)
	if err != nil {
		h.fail(w, r, "Invalid date range", err)
		return
	}

	accountIDs, err := h.accountFilter(r)
	if err != nil {
		h.fail(w, r, "Failed to list accounts", err)
		return
	}

	events := []cashflow.ProjectedEvent{}
	for _, id := range accountIDs {
		batch, err := h.Store.EventsInRange(ctx, id, rng.Start, rng.End)
		if err != nil {
			h.fail(w, r, "Failed to list events", err)
			return
		}
		events = append(events, batch...)
	}
	writeJSON(w, http.StatusOK, toEventDTOs(events))
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	event, err := eventFromRequest(req)
	if err != nil {
		h.fail(w, r, "Invalid event", err)
		return
	}

	created, err := h.Planner.CreateEvent(r.Context(), event)
	if err != nil {
		h.fail(w, r, "Failed to create event", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTO(created))
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id := cashflow.EventID(chi.URLParam(r, "id"))
	event, err := h.Store.GetEvent(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to get event", err)
		return
	}
	if event == nil {
		writeError(w, http.StatusNotFound, "Event not found", cashflow.ErrEventNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(*event))
}

func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	event, err := eventFromRequest(req)
	if err != nil {
		h.fail(w, r, "Invalid event", err)
		return
	}
	event.ID = cashflow.EventID(chi.URLParam(r, "id"))

	updated, err := h.Planner.UpdateEvent(r.Context(), event)
	if err != nil {
		h.fail(w, r, "Failed to update event", err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(updated))
}

func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := cashflow.EventID(chi.URLParam(r, "id"))
	if err := h.Planner.DeleteEvent(r.Context(), id); err != nil {
		h.fail(w, r, "Failed to delete event", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func eventFromRequest(req EventRequest) (cashflow.ProjectedEvent, error) {
	date, err := parseDate("date", req.Date)
	if err != nil {
		return cashflow.ProjectedEvent{}, err
	}
	dir, err := cashflow.ParseDirection(req.Direction)
	if err != nil {
		return cashflow.ProjectedEvent{}, err
	}
	cert, err := cashflow.ParseCertainty(req.Certainty)
	if err != nil {
		return cashflow.ProjectedEvent{}, err
	}
	return cashflow.ProjectedEvent{
		Name:           req.Name,
		Value:          req.Value,
		Direction:      dir,
		Certainty:      cert,
		Date:           date,
		BankAccountID:  cashflow.BankAccountID(req.BankAccountID),
		DecisionPathID: cashflow.DecisionPathID(req.DecisionPathID),
	}, nil
}

// =============================================================================
// RECURRING RULE HANDLERS
// =============================================================================

func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	account := cashflow.BankAccountID(r.URL.Query().Get("account"))
	rules, err := h.Store.ListRules(r.Context(), account)
	if err != nil {
		h.fail(w, r, "Failed to list rules", err)
		return
	}

	dtos := make([]RuleDTO, len(rules))
	for i, rule := range rules {
		dtos[i] = toRuleDTO(rule)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRule persists a rule and expands it into events.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	rule, err := ruleFromRequest(req)
	if err != nil {
		h.fail(w, r, "Invalid rule", err)
		return
	}

	res, err := h.Planner.CreateRule(r.Context(), rule)
	if err != nil {
		h.fail(w, r, "Failed to create rule", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRuleResultDTO(res))
}

func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	id := cashflow.RuleID(chi.URLParam(r, "id"))
	rule, err := h.Store.GetRule(r.Context(), id)
	if err != nil {
		h.fail(w, r, "Failed to get rule", err)
		return
	}
	if rule == nil {
		writeError(w, http.StatusNotFound, "Rule not found", cashflow.ErrRuleNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toRuleDTO(*rule))
}

// UpdateRule replaces a rule and regenerates all of its events.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	rule, err := ruleFromRequest(req)
	if err != nil {
		h.fail(w, r, "Invalid rule", err)
		return
	}
	rule.ID = cashflow.RuleID(chi.URLParam(r, "id"))

	res, err := h.Planner.UpdateRule(r.Context(), rule)
	if err != nil {
		h.fail(w, r, "Failed to update rule", err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleResultDTO(res))
}

func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id := cashflow.RuleID(chi.URLParam(r, "id"))
	if err := h.Planner.DeleteRule(r.Context(), id); err != nil {
		h.fail(w, r, "Failed to delete rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReviseRule splits a rule: the base ends the day before effective_from
// and a new rule carries the revised value from then on.
func (h *Handler) ReviseRule(w http.ResponseWriter, r *http.Request) {
	var req RevisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	at, err := parseDate("effective_from", req.EffectiveFrom)
	if err != nil {
		h.fail(w, r, "Invalid effective_from", err)
		return
	}

	in := cashflow.RevisionInput{
		BaseRuleID:    cashflow.RuleID(chi.URLParam(r, "id")),
		EffectiveFrom: at,
		Value:         req.Value,
		Name:          req.Name,
	}
	if req.Certainty != "" {
		cert, err := cashflow.ParseCertainty(req.Certainty)
		if err != nil {
			h.fail(w, r, "Invalid certainty", err)
			return
		}
		in.Certainty = cert
	}

	res, err := h.Planner.ReviseRule(r.Context(), in)
	if err != nil {
		h.fail(w, r, "Failed to revise rule", err)
		return
	}
	writeJSON(w, http.StatusCreated, RevisionResponse{
		Base:     toRuleResultDTO(res.Base),
		Revision: toRuleResultDTO(res.Revision),
	})
}

func ruleFromRequest(req RuleRequest) (cashflow.RecurringRule, error) {
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		return cashflow.RecurringRule{}, err
	}
	// An empty end date is passed through so validation reports the
	// unbounded rule.
	var end cashflow.Date
	if req.EndDate != "" {
		if end, err = parseDate("end_date", req.EndDate); err != nil {
			return cashflow.RecurringRule{}, err
		}
	}
	dir, err := cashflow.ParseDirection(req.Direction)
	if err != nil {
		return cashflow.RecurringRule{}, err
	}
	cert, err := cashflow.ParseCertainty(req.Certainty)
	if err != nil {
		return cashflow.RecurringRule{}, err
	}
	freq, err := cashflow.ParseFrequency(req.Frequency)
	if err != nil {
		return cashflow.RecurringRule{}, err
	}
	return cashflow.RecurringRule{
		Name:           req.Name,
		Value:          req.Value,
		Direction:      dir,
		Certainty:      cert,
		StartDate:      start,
		EndDate:        end,
		Frequency:      freq,
		BankAccountID:  cashflow.BankAccountID(req.BankAccountID),
		DecisionPathID: cashflow.DecisionPathID(req.DecisionPathID),
	}, nil
}

// =============================================================================
// DECISION PATH HANDLERS
// =============================================================================

func (h *Handler) ListDecisionPaths(w http.ResponseWriter, r *http.Request) {
	paths, err := h.Store.ListDecisionPaths(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list decision paths", err)
		return
	}

	dtos := make([]DecisionPathDTO, len(paths))
	for i, p := range paths {
		dtos[i] = DecisionPathDTO{ID: string(p.ID), Name: p.Name, Description: p.Description}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateDecisionPath(w http.ResponseWriter, r *http.Request) {
	var req DecisionPathDTO
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}

	path := cashflow.DecisionPath{
		ID:          cashflow.DecisionPathID(req.ID),
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   time.Now().UTC(),
	}
	if path.ID == "" {
		path.ID = cashflow.NewDecisionPathID()
	}
	if err := h.Store.SaveDecisionPath(r.Context(), path); err != nil {
		h.fail(w, r, "Failed to create decision path", err)
		return
	}
	writeJSON(w, http.StatusCreated, DecisionPathDTO{ID: string(path.ID), Name: path.Name, Description: path.Description})
}

// DeleteDecisionPath untags events and rules that used the path and
// recomputes the affected accounts.
func (h *Handler) DeleteDecisionPath(w http.ResponseWriter, r *http.Request) {
	id := cashflow.DecisionPathID(chi.URLParam(r, "id"))
	if err := h.Planner.DeleteDecisionPath(r.Context(), id); err != nil {
		h.fail(w, r, "Failed to delete decision path", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	holidays, err := h.Store.ListHolidays(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list holidays", err)
		return
	}

	dtos := make([]HolidayDTO, len(holidays))
	for i, hol := range holidays {
		dtos[i] = HolidayDTO{ID: hol.ID, Date: hol.Date.String(), Name: hol.Name, Recurring: hol.Recurring}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHoliday adds a holiday. Existing rules keep their events until
// they are next updated.
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req HolidayDTO
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		h.fail(w, r, "Invalid date", err)
		return
	}

	holiday := cashflow.Holiday{ID: req.ID, Date: date, Name: req.Name, Recurring: req.Recurring}
	if holiday.ID == "" {
		holiday.ID = uuid.NewString()
	}
	if err := h.Store.SaveHoliday(r.Context(), holiday); err != nil {
		h.fail(w, r, "Failed to create holiday", err)
		return
	}
	writeJSON(w, http.StatusCreated, HolidayDTO{ID: holiday.ID, Date: date.String(), Name: holiday.Name, Recurring: holiday.Recurring})
}

func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteHoliday(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, "Failed to delete holiday", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// REQUEST PARSING
// =============================================================================

// requestError is malformed request input that never reached the domain.
type requestError struct {
	field string
	err   error
}

func (e *requestError) Error() string { return fmt.Sprintf("%s: %v", e.field, e.err) }
func (e *requestError) Unwrap() error { return e.err }

func parseDate(field, raw string) (cashflow.Date, error) {
	if raw == "" {
		return cashflow.Date{}, &cashflow.ValidationError{Field: field, Reason: "required", Err: cashflow.ErrMissingField}
	}
	d, err := cashflow.ParseDate(raw)
	if err != nil {
		return cashflow.Date{}, &requestError{field: field, err: err}
	}
	return d, nil
}

// optionalDate reads a query date, returning def when absent.
func optionalDate(r *http.Request, name string, def cashflow.Date) (cashflow.Date, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return parseDate(name, raw)
}

// parseRange reads ?from&to with the given defaults and validates the result.
func parseRange(r *http.Request, defFrom, defTo cashflow.Date) (cashflow.DateRange, error) {
	from, err := optionalDate(r, "from", defFrom)
	if err != nil {
		return cashflow.DateRange{}, err
	}
	to, err := optionalDate(r, "to", defTo)
	if err != nil {
		return cashflow.DateRange{}, err
	}
	return cashflow.NewDateRange(from, to)
}

// horizonRange defaults to [from, from + horizon] with from = today.
func (h *Handler) horizonRange(r *http.Request) (cashflow.DateRange, error) {
	from, err := optionalDate(r, "from", cashflow.Today())
	if err != nil {
		return cashflow.DateRange{}, err
	}
	return parseRange(r, from, from.AddMonths(h.Planner.Horizon))
}

// parsePaths maps ?paths to a filter. Absent means every path; present
// but empty means unconditional events only.
func parsePaths(r *http.Request) cashflow.ScenarioFilter {
	values, ok := r.URL.Query()["paths"]
	if !ok {
		return cashflow.AllPaths()
	}
	var ids []string
	for _, v := range values {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return cashflow.OnlyPaths(toPathIDs(ids)...)
}

func toPathIDs(ids []string) []cashflow.DecisionPathID {
	out := make([]cashflow.DecisionPathID, len(ids))
	for i, id := range ids {
		out[i] = cashflow.DecisionPathID(id)
	}
	return out
}

// accountFilter returns ?account when set, otherwise every account.
func (h *Handler) accountFilter(r *http.Request) ([]cashflow.BankAccountID, error) {
	if id := r.URL.Query().Get("account"); id != "" {
		return []cashflow.BankAccountID{cashflow.BankAccountID(id)}, nil
	}
	accounts, err := h.Store.ListAccounts(r.Context())
	if err != nil {
		return nil, err
	}
	ids := make([]cashflow.BankAccountID, len(accounts))
	for i, a := range accounts {
		ids[i] = a.ID
	}
	return ids, nil
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// =============================================================================
// HELPERS
// =============================================================================

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest
	case errors.Is(err, cashflow.ErrDuplicateID):
		return http.StatusConflict
	case cashflow.IsNotFound(err):
		return http.StatusNotFound
	case cashflow.IsClientError(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// fail writes err with the status it maps to. Internal errors are logged.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg(message)
	}
	writeError(w, status, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
