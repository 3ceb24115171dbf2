package vault

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/clvault/internal/types"
)

// RewardSplit is the outcome of collecting the open position's rewards.
type RewardSplit struct {
	Collected    sdk.Coins
	Commission   types.AssetAmounts // Reserved for the commission receiver by this collection
	Uncompounded sdk.Coins          // Non vault-asset rewards recorded by this collection
}

// collectRewards claims the position's incentives and spread rewards into the vault. Vault-asset
// rewards are split between the commission reserve and the depositors; every other denom is
// recorded in full as uncompounded. Forfeited incentives block the collection unless override
// is set.
func (tx *txn) collectRewards(ctx context.Context, override bool) (RewardSplit, error) {
	s := tx.state
	split := RewardSplit{Collected: sdk.NewCoins(), Commission: types.ZeroAmounts(), Uncompounded: sdk.NewCoins()}

	pos, err := tx.host.Position(ctx, s.PositionID)
	if err != nil {
		return split, errorsmod.Wrapf(types.ErrNoPositionsOpen, "position %d: %v", s.PositionID, err)
	}
	if !pos.ForfeitedIncentives.Empty() && !override {
		return split, errorsmod.Wrapf(types.ErrMinUptime, "would forfeit %s", pos.ForfeitedIncentives)
	}

	if !pos.ClaimableIncentives.Empty() {
		got, err := tx.host.CollectIncentives(ctx, s.VaultAddress, s.PositionID)
		if err != nil {
			return split, err
		}
		split.Collected = split.Collected.Add(got...)
	}
	if !pos.ClaimableSpreadRewards.Empty() {
		got, err := tx.host.CollectSpreadRewards(ctx, s.VaultAddress, s.PositionID)
		if err != nil {
			return split, err
		}
		split.Collected = split.Collected.Add(got...)
	}
	if split.Collected.Empty() {
		return split, nil
	}

	rate := s.Config.CommissionRate()
	for _, c := range split.Collected {
		switch c.Denom {
		case s.Config.Asset0.Denom:
			split.Commission.Amount0 = split.Commission.Amount0.Add(mulFloor(c.Amount, rate))
		case s.Config.Asset1.Denom:
			split.Commission.Amount1 = split.Commission.Amount1.Add(mulFloor(c.Amount, rate))
		default:
			// Commission on these is taken when they are distributed.
			split.Uncompounded = split.Uncompounded.Add(c)
		}
	}
	s.CommissionRewards = s.CommissionRewards.Add(split.Commission)
	s.UncompoundedRewards = s.UncompoundedRewards.Add(split.Uncompounded...)

	tx.emit("collect_rewards",
		sdk.NewAttribute("position_id", uint64String(s.PositionID)),
		sdk.NewAttribute("collected", split.Collected.String()),
		sdk.NewAttribute("commission", split.Commission.Coins(s.Config.Asset0.Denom, s.Config.Asset1.Denom).String()),
	)
	tx.log.Info().
		Uint64("position_id", s.PositionID).
		Str("collected", split.Collected.String()).
		Str("commission0", split.Commission.Amount0.String()).
		Str("commission1", split.Commission.Amount1.String()).
		Str("uncompounded", split.Uncompounded.String()).
		Msg("Collected position rewards")
	return split, nil
}

// CollectCommission pays the commission reserve to the commission receiver.
func (v *Vault) CollectCommission(ctx context.Context, sender string) (sdk.Coins, error) {
	var paid sdk.Coins
	err := v.apply(ctx, "collect_commission", sender, func(ctx context.Context, tx *txn) error {
		if err := tx.requireAdmin(); err != nil {
			return err
		}
		s := tx.state
		paid = s.CommissionRewards.Coins(s.Config.Asset0.Denom, s.Config.Asset1.Denom)
		if paid.Empty() {
			return types.ErrCannotClaim
		}
		if err := tx.host.Send(ctx, s.VaultAddress, s.Config.CommissionReceiver, paid); err != nil {
			return err
		}
		s.CommissionRewards = types.ZeroAmounts()
		tx.emit("claim_commission",
			sdk.NewAttribute("receiver", s.Config.CommissionReceiver),
			sdk.NewAttribute("amount", paid.String()),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}
