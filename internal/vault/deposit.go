package vault

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/clvault/internal/config"
	"github.com/elys-network/clvault/internal/types"
)

// DepositForMint moves funds from sender into the vault and queues them for the next mint
// settlement. minSharesOut is optional and replaces any minimum already set on the entry.
func (v *Vault) DepositForMint(ctx context.Context, sender string, funds sdk.Coins, minSharesOut *math.Int) error {
	return v.apply(ctx, "deposit_for_mint", sender, func(ctx context.Context, tx *txn) error {
		s := tx.state
		if s.Terminated {
			return types.ErrVaultClosed
		}
		if s.Halted {
			return types.ErrVaultHalted
		}
		if s.CapReached && !s.isWhitelisted(sender) {
			return types.ErrCapReached
		}
		if _, pending := s.PendingBurns.Get(sender); pending {
			return errorsmod.Wrapf(types.ErrAccountPendingBurn, "address %s", sender)
		}
		amounts, err := verifyMintFunds(funds, s.Config)
		if err != nil {
			return err
		}
		if err := verifyDepositMinimum(amounts, s.Config); err != nil {
			return err
		}
		if minSharesOut != nil && (minSharesOut.IsNil() || minSharesOut.IsNegative()) {
			return errorsmod.Wrap(types.ErrInvalidConfig, "min shares out must be non-negative")
		}

		if err := tx.host.Send(ctx, sender, s.VaultAddress, amounts.Coins(s.Config.Asset0.Denom, s.Config.Asset1.Denom)); err != nil {
			return err
		}
		s.queueMint(sender, amounts, minSharesOut)

		tx.emit("deposit_for_mint",
			sdk.NewAttribute("address", sender),
			sdk.NewAttribute("amount0", amounts.Amount0.String()),
			sdk.NewAttribute("amount1", amounts.Amount1.String()),
		)
		tx.log.Info().
			Str("amount0", amounts.Amount0.String()).
			Str("amount1", amounts.Amount1.String()).
			Int("queue_len", s.PendingMints.Len()).
			Msg("Deposit queued for mint")
		return nil
	})
}

// DepositForBurn moves shares from sender into the vault and queues them for redemption.
// Any deposit still pending mint for sender is refunded immediately. On a terminated vault the
// burn settles in the same call.
func (v *Vault) DepositForBurn(ctx context.Context, sender string, funds sdk.Coins) error {
	return v.apply(ctx, "deposit_for_burn", sender, func(ctx context.Context, tx *txn) error {
		s := tx.state
		if s.Halted {
			return types.ErrVaultHalted
		}
		shares, err := verifyBurnFunds(funds, s)
		if err != nil {
			return err
		}
		if err := tx.host.Send(ctx, sender, s.VaultAddress, sdk.NewCoins(sdk.NewCoin(s.Denom, shares))); err != nil {
			return err
		}
		tx.emit("deposit_for_burn", sdk.NewAttribute("address", sender), sdk.NewAttribute("amount", shares.String()))
		return tx.enqueueBurn(ctx, sender, shares)
	})
}

// ForceBurn queues a redemption on behalf of target. The shares are burned from target and
// re-minted to the vault, where they wait for the burn settlement like any other redemption.
func (v *Vault) ForceBurn(ctx context.Context, sender, target string, amount math.Int) error {
	return v.apply(ctx, "force_burn", sender, func(ctx context.Context, tx *txn) error {
		s := tx.state
		if s.Halted {
			return types.ErrVaultHalted
		}
		if sender != s.Operator {
			return types.ErrCannotForceExit
		}
		if amount.IsNil() || !amount.IsPositive() {
			return errorsmod.Wrap(types.ErrInsufficientFundsBurn, "amount must be positive")
		}
		held, err := tx.host.Balance(ctx, target, s.Denom)
		if err != nil {
			return err
		}
		if held.LT(amount) {
			return errorsmod.Wrapf(types.ErrInsufficientFundsBurn, "%s holds %s, wanted %s", target, held, amount)
		}
		if err := tx.host.Burn(ctx, s.Denom, amount, target); err != nil {
			return err
		}
		if err := tx.host.Mint(ctx, s.Denom, amount, s.VaultAddress); err != nil {
			return err
		}
		tx.emit("force_burn", sdk.NewAttribute("address", target), sdk.NewAttribute("amount", amount.String()))
		return tx.enqueueBurn(ctx, target, amount)
	})
}

// enqueueBurn records shares already held by the vault for redemption by addr.
func (tx *txn) enqueueBurn(ctx context.Context, addr string, shares math.Int) error {
	s := tx.state
	s.queueBurn(addr, shares)

	if err := tx.refundPendingMint(ctx, addr); err != nil {
		return err
	}

	tx.log.Info().
		Str("address", addr).
		Str("shares", shares.String()).
		Int("queue_len", s.PendingBurns.Len()).
		Msg("Shares queued for burn")

	if s.Terminated {
		_, err := tx.processBurns(ctx)
		return err
	}
	return nil
}

// refundPendingMint returns addr's queued deposit, if any, and releases it from the aggregate.
func (tx *txn) refundPendingMint(ctx context.Context, addr string) error {
	s := tx.state
	entry, ok := s.dequeueMint(addr)
	if !ok {
		return nil
	}
	coins := entry.Funds.Coins(s.Config.Asset0.Denom, s.Config.Asset1.Denom)
	if !coins.Empty() {
		if err := tx.host.Send(ctx, s.VaultAddress, addr, coins); err != nil {
			return err
		}
	}
	tx.emit("refund", sdk.NewAttribute("address", addr), sdk.NewAttribute("amount", coins.String()))
	return nil
}

func verifyBurnFunds(funds sdk.Coins, s *State) (math.Int, error) {
	if funds.Empty() {
		return math.Int{}, types.ErrNoFunds
	}
	if len(funds) > 1 || funds[0].Denom != s.Denom {
		return math.Int{}, errorsmod.Wrapf(types.ErrInvalidToken, "expected %s", s.Denom)
	}
	if !funds[0].Amount.IsPositive() {
		return math.Int{}, types.ErrNoFunds
	}
	minRedemption := config.DefaultMinRedemption
	if s.Config.MinRedemption != nil {
		minRedemption = *s.Config.MinRedemption
	}
	if funds[0].Amount.LT(minRedemption) {
		return math.Int{}, errorsmod.Wrapf(types.ErrRedemptionBelowMin, "wanted %s, got %s", minRedemption, funds[0].Amount)
	}
	return funds[0].Amount, nil
}
