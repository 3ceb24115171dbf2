/*

This file contains the Prometheus metrics of the vault process. Gauges mirror the vault state after
every operator cycle, counters accumulate settlement outcomes.

*/

package metrics

import (
	"net/http"

	"cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elys-network/clvault/internal/config"
	"github.com/elys-network/clvault/internal/logger"
	"github.com/elys-network/clvault/internal/types"
	"github.com/elys-network/clvault/internal/utils"
)

var metricsLogger = logger.GetForComponent("metrics")

var phases = []string{"active", "halted", "terminated"}

// Metrics holds all Prometheus metrics of a vault.
type Metrics struct {
	registry *prometheus.Registry

	// --- Vault state ---
	Supply            prometheus.Gauge
	PendingMints      prometheus.Gauge
	PendingBurns      prometheus.Gauge
	AssetsPendingMint *prometheus.GaugeVec
	LockedAssets      *prometheus.GaugeVec
	Phase             *prometheus.GaugeVec
	CapReached        prometheus.Gauge
	PositionOpen      prometheus.Gauge

	// --- Settlement ---
	Settlements      *prometheus.CounterVec
	SharesMinted     prometheus.Counter
	SharesBurned     prometheus.Counter
	DeferredDeposits prometheus.Counter
	SharePrice       prometheus.Gauge

	// --- Operator loop ---
	Cycles          prometheus.Counter
	CycleFailures   *prometheus.CounterVec
	CycleDuration   prometheus.Histogram
	EventsPublished *prometheus.CounterVec
}

// New creates the vault metrics on a dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Supply: factory.NewGauge(prometheus.GaugeOpts{
			Name: "clvault_share_supply",
			Help: "Outstanding vault shares, in whole shares",
		}),
		PendingMints: factory.NewGauge(prometheus.GaugeOpts{
			Name: "clvault_pending_mints",
			Help: "Depositors waiting for the next mint settlement",
		}),
		PendingBurns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "clvault_pending_burns",
			Help: "Redeemers waiting for the next burn settlement",
		}),
		AssetsPendingMint: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clvault_assets_pending_mint",
			Help: "Deposited assets not yet converted into shares, in whole tokens",
		}, []string{"denom"}),
		LockedAssets: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clvault_locked_assets",
			Help: "Vault assets including the open position, in whole tokens",
		}, []string{"denom"}),
		Phase: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clvault_phase",
			Help: "1 for the current state machine phase, 0 otherwise",
		}, []string{"phase"}),
		CapReached: factory.NewGauge(prometheus.GaugeOpts{
			Name: "clvault_cap_reached",
			Help: "1 when the dollar cap blocks new deposits",
		}),
		PositionOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "clvault_position_open",
			Help: "1 when the vault holds a concentrated liquidity position",
		}),

		Settlements: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clvault_settlements_total",
			Help: "Settlement batches committed",
		}, []string{"kind"}),
		SharesMinted: factory.NewCounter(prometheus.CounterOpts{
			Name: "clvault_shares_minted_total",
			Help: "Shares minted by mint settlements, in whole shares",
		}),
		SharesBurned: factory.NewCounter(prometheus.CounterOpts{
			Name: "clvault_shares_burned_total",
			Help: "Shares burned by burn settlements, in whole shares",
		}),
		DeferredDeposits: factory.NewCounter(prometheus.CounterOpts{
			Name: "clvault_deferred_deposits_total",
			Help: "Deposits left queued because their minimum shares out was not met",
		}),
		SharePrice: factory.NewGauge(prometheus.GaugeOpts{
			Name: "clvault_share_price_usd",
			Help: "Dollar value of one whole share at the last mint settlement",
		}),

		Cycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "clvault_operator_cycles_total",
			Help: "Operator settlement cycles started",
		}),
		CycleFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clvault_operator_cycle_failures_total",
			Help: "Operator cycle steps that failed",
		}, []string{"step"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "clvault_operator_cycle_duration_seconds",
			Help:    "Wall time of one operator cycle",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clvault_events_published_total",
			Help: "Vault events forwarded to the event bus",
		}, []string{"type", "result"}),
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveSnapshot refreshes the state gauges.
func (m *Metrics) ObserveSnapshot(snap types.VaultSnapshot) {
	m.Supply.Set(toFloat(snap.Supply, config.ShareDecimals))
	m.PendingMints.Set(float64(len(snap.PendingMints)))
	m.PendingBurns.Set(float64(len(snap.PendingBurns)))

	cfg := snap.Config
	m.AssetsPendingMint.WithLabelValues(cfg.Asset0.Denom).Set(toFloat(snap.AssetsPendingMint.Amount0, int(cfg.Asset0.Decimals)))
	m.AssetsPendingMint.WithLabelValues(cfg.Asset1.Denom).Set(toFloat(snap.AssetsPendingMint.Amount1, int(cfg.Asset1.Decimals)))

	current := "active"
	switch {
	case snap.Terminated:
		current = "terminated"
	case snap.Halted:
		current = "halted"
	}
	for _, phase := range phases {
		m.Phase.WithLabelValues(phase).Set(boolToFloat(phase == current))
	}
	m.CapReached.Set(boolToFloat(snap.CapReached))
	m.PositionOpen.Set(boolToFloat(snap.PositionOpen))
}

// ObserveLockedAssets sets the locked asset gauges, scaled by the asset decimals.
func (m *Metrics) ObserveLockedAssets(cfg types.Config, locked types.LockedAssets) {
	m.LockedAssets.WithLabelValues(cfg.Asset0.Denom).Set(toFloat(locked.Asset0.Amount, int(cfg.Asset0.Decimals)))
	m.LockedAssets.WithLabelValues(cfg.Asset1.Denom).Set(toFloat(locked.Asset1.Amount, int(cfg.Asset1.Decimals)))
}

// RecordSettlement accumulates the outcome of one committed settlement batch.
func (m *Metrics) RecordSettlement(report types.SettlementReport) {
	m.Settlements.WithLabelValues(string(report.Kind)).Inc()
	switch report.Kind {
	case types.SettlementMint:
		m.SharesMinted.Add(toFloat(report.Minted(), config.ShareDecimals))
		m.DeferredDeposits.Add(float64(len(report.Deferred)))
		if !report.SharePrice.IsNil() {
			// Dollars carry 18 decimals and the share price is per base unit of the share.
			m.SharePrice.Set(toFloat(report.SharePrice, 18-config.ShareDecimals))
		}
	case types.SettlementBurn:
		m.SharesBurned.Add(toFloat(report.Burned(), config.ShareDecimals))
	}
}

// RecordPublish counts one event handed to the event bus.
func (m *Metrics) RecordPublish(eventType string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.EventsPublished.WithLabelValues(eventType, result).Inc()
}

func toFloat(amount math.Int, decimals int) float64 {
	if amount.IsNil() {
		return 0
	}
	f, err := utils.ToDisplay(amount, decimals)
	if err != nil {
		metricsLogger.Warn().Err(err).Str("amount", amount.String()).Msg("Failed to convert amount for metrics")
		return 0
	}
	return f
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
