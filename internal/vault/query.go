package vault

import (
	"context"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/tidwall/btree"

	"github.com/elys-network/clvault/internal/config"
	"github.com/elys-network/clvault/internal/types"
)

// view runs a read-only function against the live state.
func (v *Vault) view(ctx context.Context, fn func(ctx context.Context, tx *txn) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	tx := &txn{v: v, host: v.host, state: v.state, now: v.host.Now(), log: v.logger}
	return fn(ctx, tx)
}

// Status reports the state machine flags, accounting aggregates and configuration.
func (v *Vault) Status(ctx context.Context) (types.VaultStatus, error) {
	var status types.VaultStatus
	err := v.view(ctx, func(ctx context.Context, tx *txn) error {
		s := tx.state
		cfg := s.Config
		status = types.VaultStatus{
			LastUpdate:            s.LastUpdate,
			CapReached:            s.CapReached,
			Halted:                s.Halted,
			Closed:                s.Terminated,
			PositionOpen:          s.PositionOpen,
			PositionID:            s.PositionID,
			Owner:                 s.Owner,
			Operator:              s.Operator,
			Denom:                 s.Denom,
			Supply:                s.Supply,
			AssetsPendingMint:     s.AssetsPendingMint.Coins(cfg.Asset0.Denom, cfg.Asset1.Denom),
			UncompoundedRewards:   s.UncompoundedRewards,
			UncollectedCommission: s.CommissionRewards.Coins(cfg.Asset0.Denom, cfg.Asset1.Denom),
			Config:                cfg,
		}
		if !s.PositionOpen {
			return nil
		}
		pos, err := tx.host.Position(ctx, s.PositionID)
		if err != nil {
			return err
		}
		joined := pos.JoinTime
		status.JoinTime = &joined
		status.UptimeLocked = !pos.ForfeitedIncentives.Empty()
		return nil
	})
	return status, err
}

// LockedAssets is everything the depositors own, including the open position.
func (v *Vault) LockedAssets(ctx context.Context) (types.LockedAssets, error) {
	var locked types.LockedAssets
	err := v.view(ctx, func(ctx context.Context, tx *txn) error {
		bal, err := tx.vaultBalances(ctx, true)
		if err != nil {
			return err
		}
		cfg := tx.state.Config
		locked = types.LockedAssets{
			Asset0: sdk.NewCoin(cfg.Asset0.Denom, bal.Amount0),
			Asset1: sdk.NewCoin(cfg.Asset1.Denom, bal.Amount1),
		}
		return nil
	})
	return locked, err
}

// AvailableLiquid is the liquid balance the operator may deploy.
func (v *Vault) AvailableLiquid(ctx context.Context) (types.AssetAmounts, error) {
	var available types.AssetAmounts
	err := v.view(ctx, func(ctx context.Context, tx *txn) error {
		var err error
		available, err = tx.availableLiquid(ctx)
		return err
	})
	return available, err
}

// PendingMint returns the queued deposit of addr.
func (v *Vault) PendingMint(addr string) (types.PendingMint, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.PendingMints.Get(addr)
}

func (v *Vault) PendingMints(page types.PageRequest) types.MintPage {
	v.mu.Lock()
	defer v.mu.Unlock()
	res := types.MintPage{Entries: []types.MintEntry{}, Total: v.state.PendingMints.Len()}
	paginate(v.state.PendingMints, page, func(addr string, pending types.PendingMint) {
		res.Entries = append(res.Entries, types.MintEntry{Address: addr, Pending: pending})
	})
	return res
}

func (v *Vault) PendingBurns(page types.PageRequest) types.BurnPage {
	v.mu.Lock()
	defer v.mu.Unlock()
	res := types.BurnPage{Entries: []types.BurnEntry{}, Total: v.state.PendingBurns.Len()}
	paginate(v.state.PendingBurns, page, func(addr string, shares math.Int) {
		res.Entries = append(res.Entries, types.BurnEntry{Address: addr, Shares: shares})
	})
	return res
}

func (v *Vault) Whitelist(page types.PageRequest) types.WhitelistPage {
	v.mu.Lock()
	defer v.mu.Unlock()
	res := types.WhitelistPage{Addresses: []string{}, Total: v.state.Whitelist.Len()}
	paginate(v.state.Whitelist, page, func(addr string, _ struct{}) {
		res.Addresses = append(res.Addresses, addr)
	})
	return res
}

// Snapshot serializes the live state.
func (v *Vault) Snapshot() types.VaultSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.Export()
}

// Settlements returns the most recent settlement reports, oldest first.
func (v *Vault) Settlements() []types.SettlementReport {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]types.SettlementReport(nil), v.history...)
}

// CheckInvariants verifies the accounting identities of the live state.
func (v *Vault) CheckInvariants() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.CheckInvariants()
}

// Phase returns the current state machine phase.
func (v *Vault) Phase() Phase {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.Phase()
}

// paginate visits up to the page limit of entries strictly after page.StartAfter.
func paginate[V any](m *btree.Map[string, V], page types.PageRequest, visit func(string, V)) {
	limit := int(page.Limit)
	if limit == 0 || limit > config.MaxPageLimit {
		limit = config.MaxPageLimit
	}
	n := 0
	m.Ascend(page.StartAfter, func(addr string, value V) bool {
		if page.StartAfter != "" && addr == page.StartAfter {
			return true
		}
		visit(addr, value)
		n++
		return n < limit
	})
}
