/*

This file contains the operator loop. Every cycle settles the pending burn queue and then the pending
mint queue on behalf of the operator account, persists the resulting vault state and settlement
records, and refreshes the metrics.

Burns run first so that redeemers are paid out of the balance before new deposits are priced in.

*/

package operator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/clvault/internal/logger"
	"github.com/elys-network/clvault/internal/metrics"
	"github.com/elys-network/clvault/internal/state"
	"github.com/elys-network/clvault/internal/types"
	"github.com/elys-network/clvault/internal/vault"
)

// Store persists the outcome of a cycle. DBStore is the PostgreSQL implementation.
type Store interface {
	NextCycle(ctx context.Context, vaultAddress string) (int, error)
	SaveSnapshot(ctx context.Context, cycle int, snap types.VaultSnapshot) error
	SaveSettlement(ctx context.Context, vaultAddress string, cycle int, report types.SettlementReport) error
}

// Operator drives the settlement cycles of one vault.
type Operator struct {
	logger  zerolog.Logger
	vault   *vault.Vault
	address string
	store   Store
	metrics *metrics.Metrics

	// Runtime state
	cycleCount int
}

// Config holds the configuration for creating a new Operator instance
type Config struct {
	Vault   *vault.Vault
	Address string           // Account the settlements are sent from
	Store   Store            // Optional, nothing is persisted when nil
	Metrics *metrics.Metrics // Optional
}

// CycleResult summarizes one cycle.
type CycleResult struct {
	ID     string
	Number int
	Burn   *types.SettlementReport // Nil when no burn was settled
	Mint   *types.SettlementReport // Nil when no mint was settled
	Errors []error
}

// Err joins the errors of every failed step.
func (r CycleResult) Err() error {
	return errors.Join(r.Errors...)
}

// New creates an operator with dependency injection
func New(cfg Config) (*Operator, error) {
	if cfg.Vault == nil {
		return nil, errors.New("vault is required")
	}
	if cfg.Address == "" {
		return nil, errors.New("operator address is required")
	}

	op := &Operator{
		logger:  logger.GetForComponent("operator"),
		vault:   cfg.Vault,
		address: cfg.Address,
		store:   cfg.Store,
		metrics: cfg.Metrics,
	}

	op.logger.Info().
		Str("vault", cfg.Vault.Address()).
		Str("operator", cfg.Address).
		Bool("persistence", cfg.Store != nil).
		Msg("Operator instance created")
	return op, nil
}

// RunLoop runs a cycle immediately and then on every tick until ctx is cancelled.
func (o *Operator) RunLoop(ctx context.Context, interval time.Duration) {
	o.logger.Info().
		Dur("interval", interval).
		Msg("Starting operator loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			o.logger.Info().Msg("Operator loop stopped due to context cancellation")
			return
		case <-ticker.C:
			o.RunCycle(ctx)
		}
	}
}

// RunCycle executes one settlement cycle. A failed step is logged and counted and the cycle goes on.
func (o *Operator) RunCycle(ctx context.Context) CycleResult {
	cycleStartTime := time.Now()

	// Generate unique cycle ID for tracing logs across the entire cycle
	result := CycleResult{ID: uuid.New().String()}
	cycleLogger := o.logger.With().Str("cycle_id", result.ID).Logger()
	fail := func(step string, err error) {
		result.Errors = append(result.Errors, fmt.Errorf("%s: %w", step, err))
		if o.metrics != nil {
			o.metrics.CycleFailures.WithLabelValues(step).Inc()
		}
		cycleLogger.Error().Err(err).Str("step", step).Msg("Cycle step failed")
	}

	o.cycleCount++
	result.Number = o.cycleCount
	vaultAddress := o.vault.Address()
	if o.store != nil {
		number, err := o.store.NextCycle(ctx, vaultAddress)
		if err != nil {
			fail("cycle_counter", err)
		} else {
			result.Number = number
		}
	}
	if o.metrics != nil {
		o.metrics.Cycles.Inc()
	}
	cycleLogger = cycleLogger.With().Int("cycle", result.Number).Logger()
	cycleLogger.Info().Msg("--- Starting settlement cycle ---")

	// Queues are checked first so an idle cycle does not count as operator activity.
	queued := o.vault.Snapshot()
	if len(queued.PendingBurns) > 0 {
		report, err := o.vault.ProcessBurns(ctx, o.address)
		if err != nil {
			fail("process_burns", err)
		} else {
			result.Burn = report
			// Burning the last shares terminates the vault and refunds the mint queue.
			queued = o.vault.Snapshot()
		}
	}
	if len(queued.PendingMints) > 0 && !queued.Terminated {
		report, err := o.vault.ProcessMints(ctx, o.address)
		if err != nil {
			fail("process_mints", err)
		} else {
			result.Mint = report
		}
	}

	for _, report := range []*types.SettlementReport{result.Burn, result.Mint} {
		if report == nil {
			continue
		}
		if o.metrics != nil {
			o.metrics.RecordSettlement(*report)
		}
		if o.store != nil {
			if err := o.store.SaveSettlement(ctx, vaultAddress, result.Number, *report); err != nil {
				fail("save_settlement", err)
			}
		}
	}

	snap := o.vault.Snapshot()
	if o.store != nil {
		if err := o.store.SaveSnapshot(ctx, result.Number, snap); err != nil {
			fail("save_snapshot", err)
		}
	}
	if err := o.vault.CheckInvariants(); err != nil {
		fail("invariants", err)
	}
	o.observe(ctx, snap, cycleLogger)

	duration := time.Since(cycleStartTime)
	if o.metrics != nil {
		o.metrics.CycleDuration.Observe(duration.Seconds())
	}
	cycleLogger.Info().
		Dur("duration", duration).
		Bool("burns_settled", result.Burn != nil).
		Bool("mints_settled", result.Mint != nil).
		Str("supply", snap.Supply.String()).
		Int("pending_mints", len(snap.PendingMints)).
		Int("pending_burns", len(snap.PendingBurns)).
		Int("errors", len(result.Errors)).
		Msg("--- Settlement cycle finished ---")
	return result
}

func (o *Operator) observe(ctx context.Context, snap types.VaultSnapshot, log zerolog.Logger) {
	if o.metrics == nil {
		return
	}
	o.metrics.ObserveSnapshot(snap)
	locked, err := o.vault.LockedAssets(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read locked assets for metrics")
		return
	}
	o.metrics.ObserveLockedAssets(snap.Config, locked)
}

// DBStore persists cycles through the state package.
type DBStore struct{}

func (DBStore) NextCycle(ctx context.Context, vaultAddress string) (int, error) {
	return state.IncrementCycleNumber(ctx, vaultAddress)
}

func (DBStore) SaveSnapshot(ctx context.Context, cycle int, snap types.VaultSnapshot) error {
	_, err := state.SaveVaultSnapshot(ctx, cycle, snap)
	return err
}

func (DBStore) SaveSettlement(ctx context.Context, vaultAddress string, cycle int, report types.SettlementReport) error {
	return state.SaveSettlement(ctx, vaultAddress, cycle, report)
}
