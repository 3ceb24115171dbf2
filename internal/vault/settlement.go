/*
This file contains the mint and burn settlement batches.

Every read a batch depends on (balances, prices, supply) is taken once, before any entry is
processed. Entries are visited in address order.
*/

package vault

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/google/uuid"
	"github.com/tidwall/btree"

	"github.com/elys-network/clvault/internal/types"
)

// processMints converts pending deposits into shares at the current share price. It returns a
// nil report when nothing is queued.
func (tx *txn) processMints(ctx context.Context) (*types.SettlementReport, error) {
	s := tx.state
	if s.PendingMints.Len() == 0 {
		return nil, nil
	}

	bal, err := tx.vaultBalances(ctx, true)
	if err != nil {
		return nil, err
	}
	p0, p1, err := tx.v.prices.Prices(ctx, s.Config, tx.now)
	if err != nil {
		return nil, err
	}

	total := dollars(bal, p0, p1)
	if !s.Supply.IsPositive() {
		return nil, errorsmod.Wrap(types.ErrDivisionByZero, "supply is zero")
	}
	sharePrice := total.Quo(s.Supply)
	if sharePrice.IsZero() {
		return nil, errorsmod.Wrapf(types.ErrDivisionByZero, "vault value %s over supply %s", total, s.Supply)
	}

	report := &types.SettlementReport{
		ID:           uuid.New().String(),
		Kind:         types.SettlementMint,
		Time:         tx.now,
		Price0:       p0,
		Price1:       p1,
		TotalDollars: total,
		SharePrice:   sharePrice,
		SupplyBefore: s.Supply,
	}

	policy := s.Config.Policy()
	minted := math.ZeroInt()
	settledDollars := math.ZeroInt()

	for _, entry := range s.mintEntries() {
		funds := entry.Pending.Funds
		value := dollars(funds, p0, p1)
		shares := value.Quo(sharePrice)

		if minOut := entry.Pending.MinSharesOut; policy == types.SlippagePolicyQueue && minOut != nil && shares.LT(*minOut) {
			tx.log.Info().
				Str("address", entry.Address).
				Str("shares", shares.String()).
				Str("min_shares_out", minOut.String()).
				Msg("Deposit left queued, minimum shares out not met")
			report.Deferred = append(report.Deferred, entry.Address)
			continue
		}

		// A zero share outcome still consumes the deposit.
		if shares.IsPositive() {
			if err := tx.host.Mint(ctx, s.Denom, shares, entry.Address); err != nil {
				return nil, err
			}
		}
		s.dequeueMint(entry.Address)

		minted = minted.Add(shares)
		settledDollars = settledDollars.Add(value)
		report.Mints = append(report.Mints, types.MintOutcome{
			Address: entry.Address,
			Funds:   funds,
			Dollars: value,
			Shares:  shares,
		})
		tx.emit("mint",
			sdk.NewAttribute("address", entry.Address),
			sdk.NewAttribute("minted", shares.String()),
			sdk.NewAttribute("deposited", funds.Coins(s.Config.Asset0.Denom, s.Config.Asset1.Denom).String()),
		)
	}

	s.Supply = s.Supply.Add(minted)
	if s.Config.DollarCap != nil {
		s.CapReached = total.Add(settledDollars).GTE(*s.Config.DollarCap)
	}

	report.SupplyAfter = s.Supply
	report.CapReached = s.CapReached
	tx.reports = append(tx.reports, report)

	tx.log.Info().
		Str("share_price", sharePrice.String()).
		Int("settled", len(report.Mints)).
		Int("deferred", len(report.Deferred)).
		Str("minted", minted.String()).
		Str("supply", s.Supply.String()).
		Bool("cap_reached", s.CapReached).
		Msg("Processed mints")
	return report, nil
}

// processBurns redeems every queued burn against one balance snapshot. The whole batch fails with
// ErrCantProcessBurn when the payouts exceed the liquid balance.
func (tx *txn) processBurns(ctx context.Context) (*types.SettlementReport, error) {
	s := tx.state
	if s.PendingBurns.Len() == 0 {
		return nil, nil
	}

	bal, err := tx.vaultBalances(ctx, true)
	if err != nil {
		return nil, err
	}
	supply := s.Supply
	entries := s.burnEntries()

	burned := math.ZeroInt()
	for _, e := range entries {
		burned = burned.Add(e.Shares)
	}
	if burned.GT(supply) {
		return nil, errorsmod.Wrapf(types.ErrCantProcessBurn, "burning %s of supply %s", burned, supply)
	}

	report := &types.SettlementReport{
		ID:           uuid.New().String(),
		Kind:         types.SettlementBurn,
		Time:         tx.now,
		SupplyBefore: supply,
	}

	distributed := types.ZeroAmounts()
	for _, e := range entries {
		payout := types.NewAssetAmounts(
			bal.Amount0.Mul(e.Shares).Quo(supply),
			bal.Amount1.Mul(e.Shares).Quo(supply),
		)
		distributed = distributed.Add(payout)
		report.Burns = append(report.Burns, types.BurnOutcome{Address: e.Address, Shares: e.Shares, Payout: payout})
	}

	liquid, err := tx.vaultBalances(ctx, false)
	if err != nil {
		return nil, err
	}
	if distributed.Amount0.GT(liquid.Amount0) || distributed.Amount1.GT(liquid.Amount1) {
		return nil, errorsmod.Wrapf(types.ErrCantProcessBurn, "payout %s/%s exceeds liquid %s/%s",
			distributed.Amount0, distributed.Amount1, liquid.Amount0, liquid.Amount1)
	}

	cfg := s.Config
	for _, b := range report.Burns {
		coins := b.Payout.Coins(cfg.Asset0.Denom, cfg.Asset1.Denom)
		if !coins.Empty() {
			if err := tx.host.Send(ctx, s.VaultAddress, b.Address, coins); err != nil {
				return nil, err
			}
		}
		tx.emit("burn",
			sdk.NewAttribute("address", b.Address),
			sdk.NewAttribute("burned", b.Shares.String()),
			sdk.NewAttribute("received", coins.String()),
		)
	}
	if burned.IsPositive() {
		if err := tx.host.Burn(ctx, s.Denom, burned, s.VaultAddress); err != nil {
			return nil, err
		}
	}

	s.Supply = supply.Sub(burned)
	s.PendingBurns = btree.NewMap[string, math.Int](0)

	if s.Supply.IsZero() {
		s.Terminated = true
		// A terminated vault never mints again, so queued deposits go back to their owners.
		refunded := 0
		for _, entry := range s.mintEntries() {
			if err := tx.refundPendingMint(ctx, entry.Address); err != nil {
				return nil, err
			}
			refunded++
		}
		tx.log.Warn().Int("refunded_mints", refunded).Msg("All shares burned, vault terminated")
	} else if cfg.DollarCap != nil && !s.Terminated {
		p0, p1, err := tx.v.prices.Prices(ctx, cfg, tx.now)
		if err != nil {
			return nil, err
		}
		s.CapReached = dollars(bal.Sub(distributed), p0, p1).GTE(*cfg.DollarCap)
		report.Price0, report.Price1 = p0, p1
	}

	report.SupplyAfter = s.Supply
	report.Terminated = s.Terminated
	report.CapReached = s.CapReached
	tx.reports = append(tx.reports, report)

	tx.log.Info().
		Int("redeemed", len(report.Burns)).
		Str("burned", burned.String()).
		Str("distributed0", distributed.Amount0.String()).
		Str("distributed1", distributed.Amount1.String()).
		Str("supply", s.Supply.String()).
		Bool("terminated", s.Terminated).
		Msg("Processed burns")
	return report, nil
}

// ProcessMints settles the pending mint queue. Owner or operator only.
func (v *Vault) ProcessMints(ctx context.Context, sender string) (*types.SettlementReport, error) {
	var report *types.SettlementReport
	err := v.apply(ctx, "process_mints", sender, func(ctx context.Context, tx *txn) error {
		if err := tx.requireAdmin(); err != nil {
			return err
		}
		var err error
		report, err = tx.processMints(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// ProcessBurns settles the pending burn queue. Owner or operator only.
func (v *Vault) ProcessBurns(ctx context.Context, sender string) (*types.SettlementReport, error) {
	var report *types.SettlementReport
	err := v.apply(ctx, "process_burns", sender, func(ctx context.Context, tx *txn) error {
		if err := tx.requireAdmin(); err != nil {
			return err
		}
		var err error
		report, err = tx.processBurns(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
