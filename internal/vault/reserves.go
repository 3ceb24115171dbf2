package vault

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/clvault/internal/types"
)

// onHand reads the vault's ledger balance of both assets.
func (tx *txn) onHand(ctx context.Context) (types.AssetAmounts, error) {
	cfg := tx.state.Config
	b0, err := tx.host.Balance(ctx, tx.state.VaultAddress, cfg.Asset0.Denom)
	if err != nil {
		return types.AssetAmounts{}, err
	}
	b1, err := tx.host.Balance(ctx, tx.state.VaultAddress, cfg.Asset1.Denom)
	if err != nil {
		return types.AssetAmounts{}, err
	}
	return types.NewAssetAmounts(b0, b1), nil
}

// vaultBalances is what the depositors own of each asset: the ledger balance, plus the open
// position's principal and net-of-commission claimable rewards when includePosition is set,
// minus the pending mint and commission reserves.
func (tx *txn) vaultBalances(ctx context.Context, includePosition bool) (types.AssetAmounts, error) {
	bal, err := tx.onHand(ctx)
	if err != nil {
		return types.AssetAmounts{}, err
	}

	if includePosition && tx.state.PositionOpen {
		pos, err := tx.host.Position(ctx, tx.state.PositionID)
		if err != nil {
			return types.AssetAmounts{}, err
		}
		bal = bal.Add(positionHoldings(pos, tx.state.Config))
	}

	return subtractReserves(bal, tx.state)
}

// availableLiquid is the ledger balance the operator may deploy or swap.
func (tx *txn) availableLiquid(ctx context.Context) (types.AssetAmounts, error) {
	bal, err := tx.onHand(ctx)
	if err != nil {
		return types.AssetAmounts{}, err
	}
	return subtractReserves(bal, tx.state)
}

// positionHoldings is the principal of the position plus its claimable vault-asset rewards,
// net of the commission that collecting them would reserve.
func positionHoldings(pos types.PositionInfo, cfg types.Config) types.AssetAmounts {
	cfg0, cfg1 := cfg.Asset0.Denom, cfg.Asset1.Denom
	held := types.NewAssetAmounts(
		coinAmount(cfg0, pos.Asset0, pos.Asset1),
		coinAmount(cfg1, pos.Asset0, pos.Asset1),
	)

	remainder := math.LegacyOneDec().Sub(cfg.CommissionRate())
	rewards := append(append(sdk.Coins{}, pos.ClaimableIncentives...), pos.ClaimableSpreadRewards...)
	for _, c := range rewards {
		switch c.Denom {
		case cfg0:
			held.Amount0 = held.Amount0.Add(mulFloor(c.Amount, remainder))
		case cfg1:
			held.Amount1 = held.Amount1.Add(mulFloor(c.Amount, remainder))
		}
	}
	return held
}

func subtractReserves(bal types.AssetAmounts, s *State) (types.AssetAmounts, error) {
	reserved := s.AssetsPendingMint.Add(s.CommissionRewards)
	if bal.Amount0.LT(reserved.Amount0) {
		return types.AssetAmounts{}, errorsmod.Wrapf(types.ErrReserveShortfall, "%s: holding %s, reserved %s",
			s.Config.Asset0.Denom, bal.Amount0, reserved.Amount0)
	}
	if bal.Amount1.LT(reserved.Amount1) {
		return types.AssetAmounts{}, errorsmod.Wrapf(types.ErrReserveShortfall, "%s: holding %s, reserved %s",
			s.Config.Asset1.Denom, bal.Amount1, reserved.Amount1)
	}
	return bal.Sub(reserved), nil
}

// verifyAvailability fails when any vault asset in tokens exceeds what is available.
func verifyAvailability(tokens sdk.Coins, available types.AssetAmounts, cfg types.Config) error {
	for _, t := range tokens {
		var avail math.Int
		switch t.Denom {
		case cfg.Asset0.Denom:
			avail = available.Amount0
		case cfg.Asset1.Denom:
			avail = available.Amount1
		default:
			return errorsmod.Wrapf(types.ErrInvalidPositionAssets, "%s", t.Denom)
		}
		if t.Amount.GT(avail) {
			return errorsmod.Wrapf(types.ErrCannotAddMoreThanAvailable, "%s: requested %s, available %s", t.Denom, t.Amount, avail)
		}
	}
	return nil
}

// verifyMintFunds maps deposited coins onto the two vault assets.
func verifyMintFunds(funds sdk.Coins, cfg types.Config) (types.AssetAmounts, error) {
	if funds.Empty() {
		return types.AssetAmounts{}, types.ErrNoFunds
	}
	amounts := types.ZeroAmounts()
	for _, c := range funds {
		switch c.Denom {
		case cfg.Asset0.Denom:
			amounts.Amount0 = amounts.Amount0.Add(c.Amount)
		case cfg.Asset1.Denom:
			amounts.Amount1 = amounts.Amount1.Add(c.Amount)
		default:
			return types.AssetAmounts{}, errorsmod.Wrapf(types.ErrInvalidMintAssets, "unexpected denom %s", c.Denom)
		}
	}
	if amounts.Amount0.IsNegative() || amounts.Amount1.IsNegative() {
		return types.AssetAmounts{}, errorsmod.Wrap(types.ErrInvalidMintAssets, "negative amount")
	}
	if amounts.IsZero() {
		return types.AssetAmounts{}, types.ErrNoFunds
	}
	return amounts, nil
}

// verifyDepositMinimum checks every asset that is part of the deposit against its minimum.
func verifyDepositMinimum(funds types.AssetAmounts, cfg types.Config) error {
	if funds.Amount0.IsPositive() && funds.Amount0.LT(cfg.Asset0.MinDeposit) {
		return errorsmod.Wrapf(types.ErrDepositBelowMinimum, "%s: minimum %s, got %s", cfg.Asset0.Denom, cfg.Asset0.MinDeposit, funds.Amount0)
	}
	if funds.Amount1.IsPositive() && funds.Amount1.LT(cfg.Asset1.MinDeposit) {
		return errorsmod.Wrapf(types.ErrDepositBelowMinimum, "%s: minimum %s, got %s", cfg.Asset1.Denom, cfg.Asset1.MinDeposit, funds.Amount1)
	}
	return nil
}

func coinAmount(denom string, coins ...sdk.Coin) math.Int {
	total := math.ZeroInt()
	for _, c := range coins {
		if c.Denom == denom && !c.Amount.IsNil() {
			total = total.Add(c.Amount)
		}
	}
	return total
}

func mulFloor(amount math.Int, rate math.LegacyDec) math.Int {
	return math.LegacyNewDecFromInt(amount).Mul(rate).TruncateInt()
}

// dollars values amounts at the given 18 decimal prices.
func dollars(a types.AssetAmounts, p0, p1 math.Int) math.Int {
	return a.Amount0.Mul(p0).Add(a.Amount1.Mul(p1))
}
