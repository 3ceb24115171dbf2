package vault

import (
	"context"
	"strconv"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/clvault/internal/types"
)

// ValidateSwap checks a swap against what the vault may spend. A vault-asset input is bounded by
// the available liquid balance of that asset, any other input by the uncompounded rewards
// recorded for it. The output must be a vault asset or a whitelisted denom.
func ValidateSwap(swap types.Swap, cfg types.Config, available types.AssetAmounts, uncompounded sdk.Coins) error {
	if len(swap.Routes) == 0 || swap.TokenInDenom == "" {
		return errorsmod.Wrap(types.ErrInvalidSwap, "no routes")
	}
	for i, r := range swap.Routes {
		if len(r.Pools) == 0 {
			return errorsmod.Wrapf(types.ErrInvalidSwap, "route %d has no pools", i)
		}
		if r.TokenInAmount.IsNil() || !r.TokenInAmount.IsPositive() {
			return errorsmod.Wrapf(types.ErrInvalidSwap, "route %d input must be positive", i)
		}
		if last := r.Pools[len(r.Pools)-1].TokenOutDenom; last != swap.TokenOutDenom() {
			return errorsmod.Wrapf(types.ErrInvalidSwap, "route %d ends in %s, expected %s", i, last, swap.TokenOutDenom())
		}
	}
	if swap.TokenOutMinAmount.IsNil() || swap.TokenOutMinAmount.IsNegative() {
		return errorsmod.Wrap(types.ErrInvalidSwap, "token out min amount must be non-negative")
	}

	out := swap.TokenOutDenom()
	if out == swap.TokenInDenom {
		return errorsmod.Wrapf(types.ErrInvalidSwap, "swap from %s into itself", out)
	}
	if !cfg.CanSwapInto(out) {
		return errorsmod.Wrapf(types.ErrSwapDenomNotAllowed, "%s", out)
	}

	in := swap.TokenInAmount()
	var limit math.Int
	switch swap.TokenInDenom {
	case cfg.Asset0.Denom:
		limit = available.Amount0
	case cfg.Asset1.Denom:
		limit = available.Amount1
	default:
		limit = uncompounded.AmountOf(swap.TokenInDenom)
	}
	if in.GT(limit) {
		return errorsmod.Wrapf(types.ErrCannotSwapMoreThanAvailable, "%s: requested %s, available %s", swap.TokenInDenom, in, limit)
	}
	return nil
}

// executeSwap validates the swap against the current reserves and runs it through the router.
// Uncompounded rewards are drained by what the swap spends of them and credited with any
// non vault-asset output.
func (tx *txn) executeSwap(ctx context.Context, swap types.Swap) (sdk.Coin, error) {
	s := tx.state
	available, err := tx.availableLiquid(ctx)
	if err != nil {
		return sdk.Coin{}, err
	}
	if err := ValidateSwap(swap, s.Config, available, s.UncompoundedRewards); err != nil {
		return sdk.Coin{}, err
	}

	out, err := tx.host.Swap(ctx, s.VaultAddress, swap)
	if err != nil {
		return sdk.Coin{}, err
	}
	if out.Denom != swap.TokenOutDenom() {
		return sdk.Coin{}, errorsmod.Wrapf(types.ErrInvalidSwap, "router returned %s, expected %s", out.Denom, swap.TokenOutDenom())
	}

	if !s.Config.IsVaultAsset(swap.TokenInDenom) {
		s.UncompoundedRewards = s.UncompoundedRewards.Sub(sdk.NewCoin(swap.TokenInDenom, swap.TokenInAmount()))
	}
	if !s.Config.IsVaultAsset(out.Denom) && out.IsPositive() {
		s.UncompoundedRewards = s.UncompoundedRewards.Add(out)
	}

	tx.emit("swap",
		sdk.NewAttribute("token_in", sdk.NewCoin(swap.TokenInDenom, swap.TokenInAmount()).String()),
		sdk.NewAttribute("token_out", out.String()),
	)
	tx.log.Info().
		Str("token_in", swap.TokenInDenom).
		Str("amount_in", swap.TokenInAmount().String()).
		Str("token_out", out.String()).
		Msg("Executed swap")
	return out, nil
}

// Swap runs a standalone operator swap, typically to compound uncompounded rewards into the
// vault assets.
func (v *Vault) Swap(ctx context.Context, sender string, swap types.Swap) (sdk.Coin, error) {
	var out sdk.Coin
	err := v.apply(ctx, "swap", sender, func(ctx context.Context, tx *txn) error {
		if err := tx.requirePositionManager(); err != nil {
			return err
		}
		var err error
		out, err = tx.executeSwap(ctx, swap)
		return err
	})
	return out, err
}

func uint64String(v uint64) string {
	return strconv.FormatUint(v, 10)
}
