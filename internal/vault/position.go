/*
This file contains the position lifecycle. The vault holds at most one concentrated liquidity
position; every mutation of an existing position collects its rewards first.
*/

package vault

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/clvault/internal/types"
)

// CreatePosition opens the vault's position, optionally swapping first to rebalance the liquid
// assets. Operator only.
func (v *Vault) CreatePosition(ctx context.Context, sender string, req types.CreatePositionRequest) (types.PositionResult, error) {
	var result types.PositionResult
	err := v.apply(ctx, "create_position", sender, func(ctx context.Context, tx *txn) error {
		if err := tx.requirePositionManager(); err != nil {
			return err
		}
		s := tx.state
		if s.PositionOpen {
			return errorsmod.Wrapf(types.ErrPositionOpen, "position %d", s.PositionID)
		}
		if req.TokensProvided.Empty() {
			return types.ErrNoFunds
		}
		if req.Swap != nil {
			if _, err := tx.executeSwap(ctx, *req.Swap); err != nil {
				return err
			}
		}

		available, err := tx.availableLiquid(ctx)
		if err != nil {
			return err
		}
		if err := verifyAvailability(req.TokensProvided, available, s.Config); err != nil {
			return err
		}

		result, err = tx.host.CreatePosition(ctx, s.VaultAddress, s.Config.PoolID, req.LowerTick, req.UpperTick,
			req.TokensProvided, orZeroInt(req.TokenMinAmount0), orZeroInt(req.TokenMinAmount1))
		if err != nil {
			return err
		}
		s.PositionOpen = true
		s.PositionID = result.PositionID

		tx.emit("create_position",
			sdk.NewAttribute("position_id", uint64String(result.PositionID)),
			sdk.NewAttribute("tokens", req.TokensProvided.String()),
		)
		tx.log.Info().
			Uint64("position_id", result.PositionID).
			Int64("lower_tick", req.LowerTick).
			Int64("upper_tick", req.UpperTick).
			Str("amount0", result.Amount0.String()).
			Str("amount1", result.Amount1.String()).
			Msg("Position created")
		return nil
	})
	return result, err
}

// AddToPosition collects the open position's rewards, optionally swaps, and adds liquidity.
// The host reissues the position under a new id, which the vault tracks from then on.
func (v *Vault) AddToPosition(ctx context.Context, sender string, req types.AddToPositionRequest) (types.PositionResult, error) {
	var result types.PositionResult
	err := v.apply(ctx, "add_to_position", sender, func(ctx context.Context, tx *txn) error {
		if err := tx.requirePositionManager(); err != nil {
			return err
		}
		s := tx.state
		if err := tx.requireOpenPosition(req.PositionID); err != nil {
			return err
		}
		if _, err := tx.collectRewards(ctx, req.OverrideUptime); err != nil {
			return err
		}
		if req.Swap != nil {
			if _, err := tx.executeSwap(ctx, *req.Swap); err != nil {
				return err
			}
		}

		amount0, amount1 := orZeroInt(req.Amount0), orZeroInt(req.Amount1)
		if amount0.IsNegative() || amount1.IsNegative() || (amount0.IsZero() && amount1.IsZero()) {
			return types.ErrNoFunds
		}
		available, err := tx.availableLiquid(ctx)
		if err != nil {
			return err
		}
		tokens := types.NewAssetAmounts(amount0, amount1).Coins(s.Config.Asset0.Denom, s.Config.Asset1.Denom)
		if err := verifyAvailability(tokens, available, s.Config); err != nil {
			return err
		}

		previous := s.PositionID
		result, err = tx.host.AddToPosition(ctx, s.VaultAddress, previous, amount0, amount1,
			orZeroInt(req.TokenMinAmount0), orZeroInt(req.TokenMinAmount1))
		if err != nil {
			return err
		}
		s.PositionID = result.PositionID

		tx.emit("add_to_position",
			sdk.NewAttribute("previous_position_id", uint64String(previous)),
			sdk.NewAttribute("position_id", uint64String(result.PositionID)),
			sdk.NewAttribute("tokens", tokens.String()),
		)
		tx.log.Info().
			Uint64("previous_position_id", previous).
			Uint64("position_id", result.PositionID).
			Str("amount0", result.Amount0.String()).
			Str("amount1", result.Amount1.String()).
			Msg("Added to position")
		return nil
	})
	return result, err
}

// WithdrawPosition collects the position's rewards and removes liquidity from it. Withdrawing
// all of it closes the position and settles the pending burns and mints in the same call, as
// does a partial withdrawal with Settle set. Settle also makes the settlement of a full
// withdrawal mandatory, otherwise a close without a usable price leaves the queues in place.
func (v *Vault) WithdrawPosition(ctx context.Context, sender string, req types.WithdrawPositionRequest) (sdk.Coins, error) {
	var withdrawn sdk.Coins
	err := v.apply(ctx, "withdraw_position", sender, func(ctx context.Context, tx *txn) error {
		if err := tx.requirePositionManager(); err != nil {
			return err
		}
		if err := tx.requireOpenPosition(req.PositionID); err != nil {
			return err
		}
		if req.Liquidity.IsNil() || !req.Liquidity.IsPositive() {
			return errorsmod.Wrap(types.ErrInsufficientLiquidity, "liquidity must be positive")
		}
		if _, err := tx.collectRewards(ctx, req.OverrideUptime); err != nil {
			return err
		}

		closed, coins, err := tx.withdraw(ctx, req.Liquidity)
		if err != nil {
			return err
		}
		withdrawn = coins

		if req.Settle {
			return tx.settleAll(ctx)
		}
		if closed {
			return tx.settleAfterClose(ctx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return withdrawn, nil
}

// withdraw removes liquidity from the open position. It reports whether the position was closed.
func (tx *txn) withdraw(ctx context.Context, liquidity math.LegacyDec) (bool, sdk.Coins, error) {
	s := tx.state
	pos, err := tx.host.Position(ctx, s.PositionID)
	if err != nil {
		return false, nil, errorsmod.Wrapf(types.ErrNoPositionsOpen, "position %d: %v", s.PositionID, err)
	}
	if liquidity.GT(pos.Liquidity) {
		return false, nil, errorsmod.Wrapf(types.ErrInsufficientLiquidity, "requested %s, position has %s", liquidity, pos.Liquidity)
	}

	coins, err := tx.host.WithdrawPosition(ctx, s.VaultAddress, s.PositionID, liquidity)
	if err != nil {
		return false, nil, err
	}

	id := s.PositionID
	closed := liquidity.Equal(pos.Liquidity)
	if closed {
		s.PositionOpen = false
		s.PositionID = 0
	}

	tx.emit("withdraw_position",
		sdk.NewAttribute("position_id", uint64String(id)),
		sdk.NewAttribute("liquidity", liquidity.String()),
		sdk.NewAttribute("withdrawn", coins.String()),
	)
	tx.log.Info().
		Uint64("position_id", id).
		Str("liquidity", liquidity.String()).
		Str("withdrawn", coins.String()).
		Bool("closed", closed).
		Msg("Withdrew from position")
	return closed, coins, nil
}

// settleAfterClose settles the queues once the position is closed. Without a usable price the
// close still goes through and the queues wait for the next settlement.
func (tx *txn) settleAfterClose(ctx context.Context) error {
	s := tx.state
	needsPrice := s.PendingMints.Len() > 0 || (s.Config.DollarCap != nil && s.PendingBurns.Len() > 0)
	if needsPrice {
		if _, _, err := tx.v.prices.Prices(ctx, s.Config, tx.now); err != nil {
			tx.log.Warn().Err(err).
				Int("pending_mints", s.PendingMints.Len()).
				Int("pending_burns", s.PendingBurns.Len()).
				Msg("Position closed, settlement deferred until prices are available")
			return nil
		}
	}
	return tx.settleAll(ctx)
}

// settleAll processes the burn queue then the mint queue.
func (tx *txn) settleAll(ctx context.Context) error {
	if _, err := tx.processBurns(ctx); err != nil {
		return err
	}
	_, err := tx.processMints(ctx)
	return err
}

func (tx *txn) requireOpenPosition(positionID uint64) error {
	if !tx.state.PositionOpen {
		return types.ErrNoPositionsOpen
	}
	if positionID != tx.state.PositionID {
		return errorsmod.Wrapf(types.ErrPositionMismatch, "got %d, open position is %d", positionID, tx.state.PositionID)
	}
	return nil
}

func orZeroInt(i math.Int) math.Int {
	if i.IsNil() {
		return math.ZeroInt()
	}
	return i
}
