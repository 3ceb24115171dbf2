/*
This file contains the vault engine: construction, the staged execution of operations and the
authorization rules shared by every entry point.

An operation never touches the live state. It runs against a clone inside the host's atomic scope,
and the clone replaces the live state only when the operation and every host effect succeeded.
*/

package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/clvault/internal/config"
	"github.com/elys-network/clvault/internal/logger"
	"github.com/elys-network/clvault/internal/types"
)

const (
	EventTypePrefix = "clvault_"
	historyLimit    = 100
)

type Vault struct {
	mu      sync.Mutex
	host    Host
	prices  PriceOracle
	sink    EventSink
	state   *State
	history []types.SettlementReport
	logger  zerolog.Logger
}

type Option func(*Vault)

// WithEventSink forwards the events of committed operations to sink.
func WithEventSink(sink EventSink) Option {
	return func(v *Vault) { v.sink = sink }
}

// InstantiateMsg creates a new vault.
type InstantiateMsg struct {
	VaultAddress  string
	Owner         string // Sends the initial funds and receives the initial shares
	Operator      string
	Subdenom      string // Share denom becomes factory/<vault>/<subdenom>
	Config        types.Config
	Funds         sdk.Coins // Initial vault assets, subject to the minimum deposits
	InitialShares math.Int  // Defaults to config.InitialShares
}

// Instantiate validates msg against the host pool, moves the initial funds into the vault,
// creates the share denom and mints the initial supply to the owner.
func Instantiate(ctx context.Context, host Host, prices PriceOracle, msg InstantiateMsg, opts ...Option) (*Vault, error) {
	cfg := msg.Config
	if cfg.CommissionReceiver == "" {
		cfg.CommissionReceiver = msg.Owner
	}
	if err := cfg.Validate(); err != nil {
		return nil, errorsmod.Wrap(types.ErrInvalidConfig, err.Error())
	}
	if msg.VaultAddress == "" || msg.Owner == "" || msg.Operator == "" {
		return nil, errorsmod.Wrap(types.ErrInvalidConfig, "vault, owner and operator addresses are required")
	}
	if err := verifyPool(ctx, host, cfg); err != nil {
		return nil, err
	}
	funds, err := verifyMintFunds(msg.Funds, cfg)
	if err != nil {
		return nil, err
	}
	if err := verifyDepositMinimum(funds, cfg); err != nil {
		return nil, err
	}

	subdenom := msg.Subdenom
	if subdenom == "" {
		subdenom = config.DefaultShareSubdenom
	}
	initial := msg.InitialShares
	if initial.IsNil() || !initial.IsPositive() {
		initial = config.InitialShares
	}

	v := newVault(host, prices, opts...)
	s := newState()
	s.VaultAddress = msg.VaultAddress
	s.Owner = msg.Owner
	s.Operator = msg.Operator
	s.Config = cfg
	s.Supply = initial
	s.LastUpdate = host.Now()

	err = host.Atomically(ctx, func(ctx context.Context) error {
		if err := host.Send(ctx, msg.Owner, msg.VaultAddress, funds.Coins(cfg.Asset0.Denom, cfg.Asset1.Denom)); err != nil {
			return fmt.Errorf("failed to transfer initial funds: %w", err)
		}
		denom, err := host.CreateDenom(ctx, msg.VaultAddress, subdenom)
		if err != nil {
			return fmt.Errorf("failed to create share denom: %w", err)
		}
		s.Denom = denom
		return host.Mint(ctx, denom, initial, msg.Owner)
	})
	if err != nil {
		return nil, err
	}
	v.state = s

	v.logger.Info().
		Str("vault", s.VaultAddress).
		Str("denom", s.Denom).
		Str("operator", s.Operator).
		Uint64("pool_id", uint64(cfg.PoolID)).
		Str("initial_supply", initial.String()).
		Msg("Vault instantiated")
	v.publish(ctx, []sdk.Event{sdk.NewEvent(EventTypePrefix+"instantiate",
		sdk.NewAttribute("denom", s.Denom),
		sdk.NewAttribute("operator", s.Operator),
	)})
	return v, nil
}

// Restore rebuilds a vault from a persisted snapshot.
func Restore(host Host, prices PriceOracle, snap types.VaultSnapshot, opts ...Option) (*Vault, error) {
	s, err := StateFromSnapshot(snap)
	if err != nil {
		return nil, err
	}
	v := newVault(host, prices, opts...)
	v.state = s
	v.logger.Info().
		Str("vault", s.VaultAddress).
		Str("supply", s.Supply.String()).
		Int("pending_mints", s.PendingMints.Len()).
		Int("pending_burns", s.PendingBurns.Len()).
		Msg("Vault restored from snapshot")
	return v, nil
}

func newVault(host Host, prices PriceOracle, opts ...Option) *Vault {
	v := &Vault{
		host:   host,
		prices: prices,
		logger: logger.GetForComponent("vault"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// txn is one operation in flight. Everything it changes lives on the staged state.
type txn struct {
	v       *Vault
	host    Host
	state   *State
	sender  string
	now     time.Time
	events  []sdk.Event
	reports []*types.SettlementReport
	log     zerolog.Logger
}

func (tx *txn) emit(kind string, attrs ...sdk.Attribute) {
	tx.events = append(tx.events, sdk.NewEvent(EventTypePrefix+kind, attrs...))
}

// apply runs fn against a staged copy of the state inside the host's atomic scope and commits
// the copy only if fn succeeds. Events are handed to the sink after the lock is released.
func (v *Vault) apply(ctx context.Context, op, sender string, fn func(ctx context.Context, tx *txn) error) error {
	events, err := v.commit(ctx, op, sender, fn)
	if err != nil {
		return err
	}
	v.publish(ctx, events)
	return nil
}

func (v *Vault) commit(ctx context.Context, op, sender string, fn func(ctx context.Context, tx *txn) error) ([]sdk.Event, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	opLog := v.logger.With().
		Str("op", op).
		Str("op_id", uuid.New().String()).
		Str("sender", sender).
		Logger()
	tx := &txn{
		v:      v,
		host:   v.host,
		state:  v.state.Clone(),
		sender: sender,
		now:    v.host.Now(),
		log:    opLog,
	}

	err := v.host.Atomically(ctx, func(ctx context.Context) error {
		return fn(ctx, tx)
	})
	if err != nil {
		tx.log.Warn().Err(err).Msg("Operation rejected, no state change")
		return nil, err
	}

	// Only an operator call that changed something counts as a sign of life for the dead-man
	// switch. Every state change emits at least one event.
	if sender != "" && sender == tx.state.Operator && len(tx.events) > 0 {
		tx.state.LastUpdate = tx.now
	}
	v.state = tx.state
	v.record(tx.reports...)
	tx.log.Debug().Int("events", len(tx.events)).Msg("Operation committed")
	return tx.events, nil
}

func (v *Vault) publish(ctx context.Context, events []sdk.Event) {
	if v.sink == nil || len(events) == 0 {
		return
	}
	v.sink.Publish(ctx, events)
}

func (v *Vault) record(reports ...*types.SettlementReport) {
	for _, r := range reports {
		if r == nil {
			continue
		}
		v.history = append(v.history, *r)
	}
	if over := len(v.history) - historyLimit; over > 0 {
		v.history = append([]types.SettlementReport(nil), v.history[over:]...)
	}
}

// requireAdmin accepts the owner or the operator.
func (tx *txn) requireAdmin() error {
	if tx.sender == "" || (tx.sender != tx.state.Owner && tx.sender != tx.state.Operator) {
		return errorsmod.Wrapf(types.ErrUnauthorized, "%s is neither owner nor operator", tx.sender)
	}
	return nil
}

// requirePositionManager accepts only the operator of a vault that is not terminated.
func (tx *txn) requirePositionManager() error {
	if tx.sender == "" || tx.sender != tx.state.Operator {
		return errorsmod.Wrapf(types.ErrUnauthorized, "%s is not the operator", tx.sender)
	}
	if tx.state.Terminated {
		return types.ErrVaultClosed
	}
	return nil
}

func verifyPool(ctx context.Context, host PoolProtocol, cfg types.Config) error {
	pool, err := host.Pool(ctx, cfg.PoolID)
	if err != nil {
		if errors.Is(err, types.ErrPoolNotFound) {
			return err
		}
		return errorsmod.Wrapf(types.ErrPoolNotFound, "pool %d: %v", cfg.PoolID, err)
	}
	if !pool.IsConcentrated() {
		return errorsmod.Wrapf(types.ErrPoolIsNotCL, "pool %d is %s", pool.ID, pool.Type)
	}
	if cfg.Asset0.Denom != pool.Token0 {
		return errorsmod.Wrapf(types.ErrInvalidConfigAsset, "asset 0: %s, pool token0: %s", cfg.Asset0.Denom, pool.Token0)
	}
	if cfg.Asset1.Denom != pool.Token1 {
		return errorsmod.Wrapf(types.ErrInvalidConfigAsset, "asset 1: %s, pool token1: %s", cfg.Asset1.Denom, pool.Token1)
	}
	return nil
}

// Address returns the vault account.
func (v *Vault) Address() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.VaultAddress
}

// Denom returns the share denom.
func (v *Vault) Denom() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.Denom
}
