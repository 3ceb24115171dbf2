package vault

import (
	"testing"
	"time"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/clvault/internal/types"
)

// openPosition deploys 100 of the 101 uatom held after roundTrip.
func (e *testEnv) openPosition(t *testing.T) uint64 {
	res, err := e.vault.CreatePosition(e.ctx, operator, types.CreatePositionRequest{
		LowerTick:      -1000,
		UpperTick:      1000,
		TokensProvided: coins(100, 0),
	})
	require.NoError(t, err)
	return res.PositionID
}

func swapMsg(in string, amount int64, out string) types.Swap {
	return types.Swap{
		Routes: []types.SwapAmountInSplitRoute{{
			Pools:         []types.SwapAmountInRoute{{PoolID: 1, TokenOutDenom: out}},
			TokenInAmount: math.NewInt(amount),
		}},
		TokenInDenom:      in,
		TokenOutMinAmount: math.ZeroInt(),
	}
}

func TestCreatePositionUsesOnlyAvailableFunds(t *testing.T) {
	env := newTestEnv(t, nil)
	env.roundTrip(t)
	require.NoError(t, env.vault.DepositForMint(env.ctx, bob, coins(10, 0), nil))

	// 111 uatom on hand, 10 of it reserved for bob.
	_, err := env.vault.CreatePosition(env.ctx, operator, types.CreatePositionRequest{
		LowerTick: -1000, UpperTick: 1000, TokensProvided: coins(102, 0),
	})
	require.ErrorIs(t, err, types.ErrCannotAddMoreThanAvailable)

	_, err = env.vault.CreatePosition(env.ctx, operator, types.CreatePositionRequest{
		LowerTick: -1000, UpperTick: 1000, TokensProvided: sdk.NewCoins(sdk.NewInt64Coin("uosmo", 1)),
	})
	require.ErrorIs(t, err, types.ErrInvalidPositionAssets)

	id := env.openPosition(t)
	status, err := env.vault.Status(env.ctx)
	require.NoError(t, err)
	require.True(t, status.PositionOpen)
	require.Equal(t, id, status.PositionID)
	require.NotNil(t, status.JoinTime)

	_, err = env.vault.CreatePosition(env.ctx, operator, types.CreatePositionRequest{
		LowerTick: -1000, UpperTick: 1000, TokensProvided: coins(1, 0),
	})
	require.ErrorIs(t, err, types.ErrPositionOpen)

	// Locked assets include the position, not bob's pending deposit.
	locked, err := env.vault.LockedAssets(env.ctx)
	require.NoError(t, err)
	requireAmount(t, 101, locked.Asset0.Amount)
	requireAmount(t, 11, env.balance(t, vaultAddr, denom0))
}

func TestBurnWithInsufficientLiquidityChangesNothing(t *testing.T) {
	env := newTestEnv(t, nil)
	env.roundTrip(t)
	id := env.openPosition(t)

	require.NoError(t, env.vault.DepositForBurn(env.ctx, alice, sdk.NewCoins(sdk.NewInt64Coin(env.vault.Denom(), 50))))
	before := env.snapshotJSON(t)
	aliceBefore := env.balance(t, alice, denom0)

	// Alice is owed 50 uatom but only 1 is liquid.
	_, err := env.vault.ProcessBurns(env.ctx, operator)
	require.ErrorIs(t, err, types.ErrCantProcessBurn)

	require.Equal(t, before, env.snapshotJSON(t))
	requireAmount(t, 101, env.chain.Supply(env.vault.Denom()))
	requireAmount(t, 50, env.shares(t, vaultAddr))
	require.Equal(t, aliceBefore.String(), env.balance(t, alice, denom0).String())
	page := env.vault.PendingBurns(types.PageRequest{})
	require.Len(t, page.Entries, 1)
	requireAmount(t, 50, page.Entries[0].Shares)

	// Closing the position settles the queue in the same call.
	withdrawn, err := env.vault.WithdrawPosition(env.ctx, operator, types.WithdrawPositionRequest{
		PositionID: id,
		Liquidity:  math.LegacyNewDec(100),
	})
	require.NoError(t, err)
	requireAmount(t, 100, withdrawn.AmountOf(denom0))

	requireAmount(t, userFunds-50, env.balance(t, alice, denom0))
	requireAmount(t, 51, env.chain.Supply(env.vault.Denom()))
	require.Empty(t, env.vault.PendingBurns(types.PageRequest{}).Entries)
	require.Empty(t, env.chain.Positions(vaultAddr))

	status, err := env.vault.Status(env.ctx)
	require.NoError(t, err)
	require.False(t, status.PositionOpen)
	require.Zero(t, status.PositionID)
	require.NoError(t, env.vault.CheckInvariants())
}

func TestCloseWithStalePriceDefersSettlement(t *testing.T) {
	env := newTestEnv(t, nil)
	env.roundTrip(t)
	id := env.openPosition(t)
	require.NoError(t, env.vault.DepositForMint(env.ctx, bob, coins(10, 0), nil))
	require.NoError(t, env.vault.DepositForBurn(env.ctx, alice, sdk.NewCoins(sdk.NewInt64Coin(env.vault.Denom(), 50))))

	env.prices.SetPrice(feed0, rawPrice0, env.chain.Now().Add(-61*time.Second))
	before := env.snapshotJSON(t)

	// Asking for settlement makes a stale price fatal to the whole withdrawal.
	_, err := env.vault.WithdrawPosition(env.ctx, operator, types.WithdrawPositionRequest{
		PositionID: id,
		Liquidity:  math.LegacyNewDec(100),
		Settle:     true,
	})
	require.ErrorIs(t, err, types.ErrStalePrice)
	require.Equal(t, before, env.snapshotJSON(t))

	withdrawn, err := env.vault.WithdrawPosition(env.ctx, operator, types.WithdrawPositionRequest{
		PositionID: id,
		Liquidity:  math.LegacyNewDec(100),
	})
	require.NoError(t, err)
	requireAmount(t, 100, withdrawn.AmountOf(denom0))
	require.Empty(t, env.chain.Positions(vaultAddr))
	require.Len(t, env.vault.PendingBurns(types.PageRequest{}).Entries, 1)
	_, pending := env.vault.PendingMint(bob)
	require.True(t, pending)
	require.NoError(t, env.vault.CheckInvariants())

	env.prices.SetPrice(feed0, rawPrice0, env.chain.Now())
	_, err = env.vault.ProcessBurns(env.ctx, operator)
	require.NoError(t, err)
	_, err = env.vault.ProcessMints(env.ctx, operator)
	require.NoError(t, err)
	requireAmount(t, userFunds-50, env.balance(t, alice, denom0))
	require.True(t, env.shares(t, bob).IsPositive())
}

func TestPartialWithdrawSettlesOnRequest(t *testing.T) {
	env := newTestEnv(t, nil)
	env.roundTrip(t)
	id := env.openPosition(t)
	require.NoError(t, env.vault.DepositForBurn(env.ctx, alice, sdk.NewCoins(sdk.NewInt64Coin(env.vault.Denom(), 10))))

	_, err := env.vault.WithdrawPosition(env.ctx, operator, types.WithdrawPositionRequest{PositionID: id + 1, Liquidity: math.LegacyNewDec(1)})
	require.ErrorIs(t, err, types.ErrPositionMismatch)
	_, err = env.vault.WithdrawPosition(env.ctx, operator, types.WithdrawPositionRequest{PositionID: id, Liquidity: math.LegacyNewDec(101)})
	require.ErrorIs(t, err, types.ErrInsufficientLiquidity)
	_, err = env.vault.WithdrawPosition(env.ctx, operator, types.WithdrawPositionRequest{PositionID: id, Liquidity: math.LegacyZeroDec()})
	require.ErrorIs(t, err, types.ErrInsufficientLiquidity)

	_, err = env.vault.WithdrawPosition(env.ctx, operator, types.WithdrawPositionRequest{PositionID: id, Liquidity: math.LegacyNewDec(20)})
	require.NoError(t, err)
	require.Len(t, env.vault.PendingBurns(types.PageRequest{}).Entries, 1)

	_, err = env.vault.WithdrawPosition(env.ctx, operator, types.WithdrawPositionRequest{PositionID: id, Liquidity: math.LegacyNewDec(20), Settle: true})
	require.NoError(t, err)
	require.Empty(t, env.vault.PendingBurns(types.PageRequest{}).Entries)
	// 10 of 101 shares against 101 uatom.
	requireAmount(t, userFunds-100+10, env.balance(t, alice, denom0))

	status, err := env.vault.Status(env.ctx)
	require.NoError(t, err)
	require.True(t, status.PositionOpen)
	require.Equal(t, id, status.PositionID)
}

func TestCommissionSplit(t *testing.T) {
	env := newTestEnv(t, func(c *types.Config) {
		rate := math.LegacyNewDecWithPrec(1, 2)
		c.Commission = &rate
		c.CommissionReceiver = "osmo1treasury"
	})
	env.roundTrip(t)
	id := env.openPosition(t)
	require.NoError(t, env.chain.AccrueIncentives(id, sdk.NewCoins(sdk.NewInt64Coin(denom0, 1000)), nil))

	// Claimable rewards count toward locked assets net of commission.
	locked, err := env.vault.LockedAssets(env.ctx)
	require.NoError(t, err)
	requireAmount(t, 1+100+990, locked.Asset0.Amount)

	res, err := env.vault.AddToPosition(env.ctx, operator, types.AddToPositionRequest{
		PositionID: id,
		Amount0:    math.NewInt(1),
		Amount1:    math.ZeroInt(),
	})
	require.NoError(t, err)
	require.NotEqual(t, id, res.PositionID)

	status, err := env.vault.Status(env.ctx)
	require.NoError(t, err)
	require.Equal(t, res.PositionID, status.PositionID)
	requireAmount(t, 10, status.UncollectedCommission.AmountOf(denom0))

	available, err := env.vault.AvailableLiquid(env.ctx)
	require.NoError(t, err)
	requireAmount(t, 990, available.Amount0)

	locked, err = env.vault.LockedAssets(env.ctx)
	require.NoError(t, err)
	requireAmount(t, 1+100+990, locked.Asset0.Amount)

	paid, err := env.vault.CollectCommission(env.ctx, owner)
	require.NoError(t, err)
	requireAmount(t, 10, paid.AmountOf(denom0))
	requireAmount(t, 10, env.balance(t, "osmo1treasury", denom0))

	_, err = env.vault.CollectCommission(env.ctx, owner)
	require.ErrorIs(t, err, types.ErrCannotClaim)
}

func TestForfeitedIncentivesNeedOverride(t *testing.T) {
	env := newTestEnv(t, nil)
	env.roundTrip(t)
	id := env.openPosition(t)
	require.NoError(t, env.chain.AccrueIncentives(id,
		sdk.NewCoins(sdk.NewInt64Coin(denom0, 100)),
		sdk.NewCoins(sdk.NewInt64Coin("uosmo", 5)),
	))

	status, err := env.vault.Status(env.ctx)
	require.NoError(t, err)
	require.True(t, status.UptimeLocked)

	req := types.AddToPositionRequest{PositionID: id, Amount0: math.NewInt(1)}
	_, err = env.vault.AddToPosition(env.ctx, operator, req)
	require.ErrorIs(t, err, types.ErrMinUptime)

	req.OverrideUptime = true
	_, err = env.vault.AddToPosition(env.ctx, operator, req)
	require.NoError(t, err)

	status, err = env.vault.Status(env.ctx)
	require.NoError(t, err)
	require.False(t, status.UptimeLocked)
}

func TestSwapGuard(t *testing.T) {
	env := newTestEnv(t, func(c *types.Config) { c.SwapWhitelist = []string{"uion"} })
	env.roundTrip(t)
	id := env.openPosition(t)
	require.NoError(t, env.chain.AccrueSpreadRewards(id, sdk.NewCoins(sdk.NewInt64Coin("uosmo", 300))))
	require.NoError(t, env.vault.DepositForMint(env.ctx, bob, coins(10, 0), nil))

	// Collect the rewards through a partial withdrawal.
	_, err := env.vault.WithdrawPosition(env.ctx, operator, types.WithdrawPositionRequest{PositionID: id, Liquidity: math.LegacyNewDec(10)})
	require.NoError(t, err)
	status, err := env.vault.Status(env.ctx)
	require.NoError(t, err)
	requireAmount(t, 300, status.UncompoundedRewards.AmountOf("uosmo"))

	tests := []struct {
		name string
		swap types.Swap
		err  error
	}{
		{"more uosmo than recorded", swapMsg("uosmo", 301, denom0), types.ErrCannotSwapMoreThanAvailable},
		{"bob's deposit is reserved", swapMsg(denom0, 12, denom1), types.ErrCannotSwapMoreThanAvailable},
		{"output not allowed", swapMsg(denom0, 1, "ujunk"), types.ErrSwapDenomNotAllowed},
		{"into itself", swapMsg(denom0, 1, denom0), types.ErrInvalidSwap},
		{"no routes", types.Swap{TokenInDenom: denom0, TokenOutMinAmount: math.ZeroInt()}, types.ErrInvalidSwap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.vault.Swap(env.ctx, operator, tt.swap)
			require.ErrorIs(t, err, tt.err)
		})
	}

	_, err = env.vault.Swap(env.ctx, owner, swapMsg("uosmo", 300, denom0))
	require.ErrorIs(t, err, types.ErrUnauthorized)

	env.chain.SetSwapRate("uosmo", denom0, math.LegacyNewDecWithPrec(5, 1))
	out, err := env.vault.Swap(env.ctx, operator, swapMsg("uosmo", 300, denom0))
	require.NoError(t, err)
	requireAmount(t, 150, out.Amount)

	status, err = env.vault.Status(env.ctx)
	require.NoError(t, err)
	require.True(t, status.UncompoundedRewards.Empty())

	// 1 + 10 withdrawn + 150 swapped in, bob's 10 still reserved.
	available, err := env.vault.AvailableLiquid(env.ctx)
	require.NoError(t, err)
	requireAmount(t, 161, available.Amount0)

	out, err = env.vault.Swap(env.ctx, operator, swapMsg(denom0, 20, "uion"))
	require.NoError(t, err)
	status, err = env.vault.Status(env.ctx)
	require.NoError(t, err)
	requireAmount(t, out.Amount.Int64(), status.UncompoundedRewards.AmountOf("uion"))
	require.NoError(t, env.vault.CheckInvariants())
}

func TestValidateSwap(t *testing.T) {
	cfg := testConfig()
	available := types.NewAssetAmounts(math.NewInt(10), math.NewInt(5))

	require.NoError(t, ValidateSwap(swapMsg(denom0, 10, denom1), cfg, available, nil))
	require.ErrorIs(t, ValidateSwap(swapMsg(denom1, 6, denom0), cfg, available, nil), types.ErrCannotSwapMoreThanAvailable)
	require.ErrorIs(t, ValidateSwap(swapMsg("uosmo", 1, denom0), cfg, available, nil), types.ErrCannotSwapMoreThanAvailable)

	split := swapMsg(denom0, 4, denom1)
	split.Routes = append(split.Routes, types.SwapAmountInSplitRoute{
		Pools:         []types.SwapAmountInRoute{{PoolID: 2, TokenOutDenom: denom1}},
		TokenInAmount: math.NewInt(7),
	})
	require.ErrorIs(t, ValidateSwap(split, cfg, available, nil), types.ErrCannotSwapMoreThanAvailable)

	split.Routes[1].Pools[0].TokenOutDenom = "uosmo"
	require.ErrorIs(t, ValidateSwap(split, cfg, available, nil), types.ErrInvalidSwap)
}

func TestPositionOperationsRequireOperator(t *testing.T) {
	env := newTestEnv(t, nil)
	env.roundTrip(t)
	id := env.openPosition(t)

	_, err := env.vault.AddToPosition(env.ctx, owner, types.AddToPositionRequest{PositionID: id, Amount0: math.NewInt(1)})
	require.ErrorIs(t, err, types.ErrUnauthorized)
	_, err = env.vault.WithdrawPosition(env.ctx, alice, types.WithdrawPositionRequest{PositionID: id, Liquidity: math.LegacyNewDec(1)})
	require.ErrorIs(t, err, types.ErrUnauthorized)

	_, err = env.vault.AddToPosition(env.ctx, operator, types.AddToPositionRequest{PositionID: id})
	require.ErrorIs(t, err, types.ErrNoFunds)
}
