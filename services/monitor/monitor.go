// Package monitor runs the background loop that evaluates every active alert
// against a live price once per cycle.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"price_alert_backend/metrics"
	"price_alert_backend/models"
	"price_alert_backend/services/alerts"
	"price_alert_backend/services/marketdata"
)

// Defaults for Config
const (
	DefaultInterval     = 5 * time.Second
	DefaultErrorBackoff = 2.0
	DefaultStopTimeout  = 5 * time.Second
)

// PriceFetcher resolves the current price of a symbol
type PriceFetcher interface {
	Fetch(ctx context.Context, symbol string, class models.AssetClass) (*marketdata.Quote, error)
}

// PriceBroadcaster pushes price updates to symbol watchers
type PriceBroadcaster interface {
	BroadcastPriceUpdate(symbol string, price decimal.Decimal, class models.AssetClass) int
}

// Notifier fans out a committed trigger
type Notifier interface {
	Notify(ctx context.Context, alert *models.Alert, price decimal.Decimal, message string)
}

// Config holds the loop settings
type Config struct {
	Interval             time.Duration
	ErrorBackoff         float64
	StopTimeout          time.Duration
	MaxConcurrentFetches int
}

// Group is the set of alerts sharing one (symbol, asset class) price
type Group struct {
	Symbol     string
	AssetClass models.AssetClass
	Alerts     []*models.Alert
}

// CycleResult summarizes one cycle
type CycleResult struct {
	Alerts        int           `json:"alerts"`
	Groups        int           `json:"groups"`
	SkippedGroups int           `json:"skipped_groups"`
	Triggered     int           `json:"triggered"`
	Conflicts     int           `json:"conflicts"`
	Duration      time.Duration `json:"duration"`
}

// Status is a snapshot of the loop for the stats endpoint
type Status struct {
	Running     bool        `json:"running"`
	Cycles      int64       `json:"cycles"`
	LastCycleAt *time.Time  `json:"last_cycle_at,omitempty"`
	LastResult  CycleResult `json:"last_result"`
	LastError   string      `json:"last_error,omitempty"`
}

type transition struct {
	alert   *models.Alert
	price   decimal.Decimal
	at      time.Time
	message string
}

// Monitor is the monitoring cycle scheduler. At most one cycle is in flight.
type Monitor struct {
	store    alerts.Store
	prices   PriceFetcher
	hub      PriceBroadcaster
	notifier Notifier
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time

	cycleMu sync.Mutex

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	status  Status
}

func New(store alerts.Store, prices PriceFetcher, hub PriceBroadcaster, notifier Notifier, cfg Config, logger *zap.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ErrorBackoff < 1 {
		cfg.ErrorBackoff = DefaultErrorBackoff
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		store:    store,
		prices:   prices,
		hub:      hub,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.Named("monitor"),
		now:      time.Now,
	}
}

// Start launches the background loop. Calling it while running is a logged no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.logger.Warn("price_monitor_already_running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.running = true
	m.stopCh = make(chan struct{})
	m.cancel = cancel
	m.done = make(chan struct{})
	m.status.Running = true

	go m.run(ctx, m.stopCh, m.done)

	m.logger.Info("price_monitor_started", zap.Duration("interval", m.cfg.Interval))
}

// Stop asks the loop to exit after the in-flight cycle and waits for it.
// When StopTimeout elapses first the cycle is cancelled; Stop still waits for
// the goroutine to return. Stop on an idle monitor does nothing.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	done, cancel := m.done, m.cancel
	if m.stopCh != nil {
		close(m.stopCh)
		m.stopCh = nil
	}
	m.mu.Unlock()

	timer := time.NewTimer(m.cfg.StopTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		m.logger.Warn("price_monitor_stop_timeout",
			zap.Duration("timeout", m.cfg.StopTimeout),
			zap.String("action", "cancelling in-flight cycle"),
		)
		cancel()
		<-done
	}
	cancel()

	m.mu.Lock()
	if m.done == done {
		m.running = false
		m.status.Running = false
	}
	m.mu.Unlock()

	m.logger.Info("price_monitor_stopped")
}

// Running reports whether the loop is active
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Status returns the loop state and the outcome of the last cycle
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Monitor) run(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		wait := m.cfg.Interval
		if _, err := m.RunOnce(ctx); err != nil {
			wait = time.Duration(float64(m.cfg.Interval) * m.cfg.ErrorBackoff)
			m.logger.Error("price_monitor_error", zap.Error(err), zap.Duration("backoff", wait))
		}

		timer := time.NewTimer(wait)
		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RunOnce executes a single cycle. It returns an error only when the store
// fails; per-symbol fetch failures are counted in SkippedGroups.
func (m *Monitor) RunOnce(ctx context.Context) (CycleResult, error) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	start := time.Now()
	result, err := m.cycle(ctx)
	result.Duration = time.Since(start)

	metrics.MonitorCycleDuration.Observe(result.Duration.Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.MonitorCyclesTotal.WithLabelValues(outcome).Inc()

	finishedAt := m.now().UTC()
	m.mu.Lock()
	m.status.Cycles++
	m.status.LastCycleAt = &finishedAt
	m.status.LastResult = result
	m.status.LastError = ""
	if err != nil {
		m.status.LastError = err.Error()
	}
	m.mu.Unlock()

	return result, err
}

func (m *Monitor) cycle(ctx context.Context) (CycleResult, error) {
	var result CycleResult

	active, err := m.store.ListActive(ctx)
	if err != nil {
		if !errors.Is(err, alerts.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", alerts.ErrStoreUnavailable, err)
		}
		return result, err
	}
	result.Alerts = len(active)
	if len(active) == 0 {
		m.logger.Debug("no_active_alerts")
		return result, nil
	}

	groups := GroupAlerts(active)
	result.Groups = len(groups)
	m.logger.Info("monitoring_cycle",
		zap.Int("total_alerts", len(active)),
		zap.Int("unique_symbols", len(groups)),
	)

	staged, skipped := m.processGroups(ctx, groups)
	result.SkippedGroups = skipped
	if len(staged) == 0 {
		return result, nil
	}

	committed, conflicts, err := m.flush(ctx, staged)
	result.Conflicts = conflicts
	if err != nil {
		return result, err
	}
	result.Triggered = len(committed)

	for _, t := range committed {
		metrics.AlertsTriggeredTotal.WithLabelValues(string(t.alert.AssetClass), string(t.alert.Kind)).Inc()
		m.logger.Info("alert_triggered",
			zap.Uint("alert_id", t.alert.ID),
			zap.Uint("user_id", t.alert.UserID),
			zap.String("symbol", t.alert.Symbol),
			zap.String("target", t.alert.TargetPrice.String()),
			zap.String("current", t.price.String()),
		)
		if m.notifier != nil {
			m.notifier.Notify(ctx, t.alert, t.price, t.message)
		}
	}
	return result, nil
}

// processGroups fetches, broadcasts and evaluates every group concurrently.
// Each goroutine writes only its own slot, so no locking is needed.
func (m *Monitor) processGroups(ctx context.Context, groups []Group) ([]transition, int) {
	perGroup := make([][]transition, len(groups))
	failed := make([]bool, len(groups))

	var sem chan struct{}
	if m.cfg.MaxConcurrentFetches > 0 {
		sem = make(chan struct{}, m.cfg.MaxConcurrentFetches)
	}

	var wg sync.WaitGroup
	for i := range groups {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					failed[i] = true
					return
				}
			}
			perGroup[i], failed[i] = m.processGroup(ctx, &groups[i])
		}(i)
	}
	wg.Wait()

	var staged []transition
	skipped := 0
	for i, g := range groups {
		if failed[i] {
			skipped++
			metrics.MonitorSkippedGroups.WithLabelValues(string(g.AssetClass)).Inc()
			continue
		}
		staged = append(staged, perGroup[i]...)
	}
	return staged, skipped
}

func (m *Monitor) processGroup(ctx context.Context, g *Group) ([]transition, bool) {
	quote, err := m.prices.Fetch(ctx, g.Symbol, g.AssetClass)
	if err != nil {
		m.logger.Warn("price_fetch_failed",
			zap.String("symbol", g.Symbol),
			zap.String("asset_class", string(g.AssetClass)),
			zap.Int("alerts", len(g.Alerts)),
			zap.Error(err),
		)
		return nil, true
	}

	if m.hub != nil {
		m.hub.BroadcastPriceUpdate(g.Symbol, quote.Price, g.AssetClass)
	}

	m.logger.Debug("checking_symbol",
		zap.String("symbol", g.Symbol),
		zap.String("price", quote.Price.String()),
		zap.String("source", quote.Source),
		zap.Int("alert_count", len(g.Alerts)),
	)

	var staged []transition
	for _, alert := range g.Alerts {
		fire, err := alerts.Evaluate(alert, quote.Price)
		if err != nil {
			m.logger.Warn("alert_evaluation_failed", zap.Uint("alert_id", alert.ID), zap.Error(err))
			continue
		}
		if !fire {
			continue
		}

		at := m.now().UTC()
		message := alerts.TriggerMessage(alert, quote.Price)
		alert.Status = models.AlertStatusTriggered
		alert.TriggeredPrice = decimal.NewNullDecimal(quote.Price)
		alert.TriggeredAt = &at

		staged = append(staged, transition{alert: alert, price: quote.Price, at: at, message: message})
	}
	return staged, false
}

// flush commits every staged transition in one transaction. Transitions that
// lost a race with a concurrent edit are dropped.
func (m *Monitor) flush(ctx context.Context, staged []transition) ([]transition, int, error) {
	var committed []transition
	conflicts := 0

	err := m.store.Transaction(ctx, func(tx alerts.Store) error {
		committed = committed[:0]
		conflicts = 0
		for _, t := range staged {
			err := tx.MarkTriggered(ctx, t.alert.ID, t.price, t.at)
			if errors.Is(err, alerts.ErrTransitionConflict) {
				conflicts++
				m.logger.Info("alert_transition_conflict", zap.Uint("alert_id", t.alert.ID))
				continue
			}
			if err != nil {
				return err
			}
			committed = append(committed, t)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, alerts.ErrStoreUnavailable) {
			err = fmt.Errorf("%w: %w", alerts.ErrStoreUnavailable, err)
		}
		return nil, conflicts, err
	}
	return committed, conflicts, nil
}

// GroupAlerts partitions alerts by canonical symbol and asset class, keeping
// first-seen order
func GroupAlerts(active []models.Alert) []Group {
	type key struct {
		symbol string
		class  models.AssetClass
	}

	index := make(map[key]int)
	var groups []Group
	for i := range active {
		alert := &active[i]
		k := key{symbol: models.CanonicalSymbol(alert.Symbol), class: alert.AssetClass}
		pos, ok := index[k]
		if !ok {
			pos = len(groups)
			index[k] = pos
			groups = append(groups, Group{Symbol: k.symbol, AssetClass: k.class})
		}
		groups[pos].Alerts = append(groups[pos].Alerts, alert)
	}
	return groups
}
