/*
scheduler.go - Rolling horizon refresher

PURPOSE:
  The balance cache covers [d, d + horizon] from the last mutation date d.
  As days pass the cached window falls behind. The refresher periodically
  recomputes [today, today + horizon] for every account so reads of the
  coming months always hit fresh rows.

DESIGN:
  - Runs a background goroutine with configurable interval
  - Runs once immediately on Start, then on every tick
  - A failure for one account is logged and does not stop the others

CONFIGURATION:
  - Interval: How often to refresh (scheduler.interval, default 24h)
  - Enabled:  Whether the refresher runs (scheduler.enabled, default false)

USAGE:
  refresher := NewHorizonRefresher(planner, log)
  refresher.Start()
  // ... later
  refresher.Stop()

SEE ALSO:
  - cashflow/planner.go: Refresh
  - handlers.go: Recalculate endpoint (manual refresh)
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/cashflow/cashflow"
	"github.com/warp/cashflow/logger"
)

// HorizonRefresher keeps every account's cache window rolling forward.
type HorizonRefresher struct {
	Planner  *cashflow.Planner
	Interval time.Duration
	Enabled  bool

	// Today is the refresh start date. Defaults to cashflow.Today.
	Today func() cashflow.Date

	log    zerolog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewHorizonRefresher creates a disabled refresher with a daily interval.
func NewHorizonRefresher(planner *cashflow.Planner, log zerolog.Logger) *HorizonRefresher {
	return &HorizonRefresher{
		Planner:  planner,
		Interval: 24 * time.Hour,
		Today:    cashflow.Today,
		log:      log.With().Str("component", "horizon_refresher").Logger(),
	}
}

// Start begins the refresher.
func (hr *HorizonRefresher) Start() {
	hr.mu.Lock()
	defer hr.mu.Unlock()

	if !hr.Enabled {
		hr.log.Info().Msg("disabled, not starting")
		return
	}
	if hr.ticker != nil {
		return
	}

	hr.ticker = time.NewTicker(hr.Interval)
	hr.stop = make(chan struct{})
	hr.wg.Add(1)

	go hr.run()

	hr.log.Info().Dur("interval", hr.Interval).Msg("started")
}

// Stop stops the refresher and waits for a running pass to finish.
func (hr *HorizonRefresher) Stop() {
	hr.mu.Lock()
	defer hr.mu.Unlock()

	if hr.ticker == nil {
		return
	}
	hr.ticker.Stop()
	close(hr.stop)
	hr.wg.Wait()
	hr.ticker = nil
	hr.log.Info().Msg("stopped")
}

func (hr *HorizonRefresher) run() {
	defer hr.wg.Done()

	hr.RefreshAll(context.Background())

	for {
		select {
		case <-hr.ticker.C:
			hr.RefreshAll(context.Background())
		case <-hr.stop:
			return
		}
	}
}

// RefreshAll recomputes [today, today + horizon] for every account and
// returns how many accounts were refreshed.
func (hr *HorizonRefresher) RefreshAll(ctx context.Context) int {
	ctx = logger.WithContext(ctx, hr.log)
	today := hr.Today()

	accounts, err := hr.Planner.Store.ListAccounts(ctx)
	if err != nil {
		hr.log.Error().Err(err).Msg("list accounts")
		return 0
	}

	refreshed := 0
	for _, a := range accounts {
		if err := hr.Planner.Refresh(ctx, a.ID, today); err != nil {
			hr.log.Error().Err(err).Str("account_id", string(a.ID)).Msg("refresh failed")
			continue
		}
		refreshed++
	}

	hr.log.Info().
		Str("from", today.String()).
		Int("accounts", refreshed).
		Int("failed", len(accounts)-refreshed).
		Msg("horizon refreshed")
	return refreshed
}
