package vault

import (
	"testing"
	"time"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/clvault/internal/config"
	"github.com/elys-network/clvault/internal/simulations"
	"github.com/elys-network/clvault/internal/types"
)

func (e *testEnv) shareCoins(amount int64) sdk.Coins {
	return sdk.NewCoins(sdk.NewInt64Coin(e.vault.Denom(), amount))
}

func TestDeadManSwitch(t *testing.T) {
	env := newTestEnv(t, nil)
	env.roundTrip(t)
	env.openPosition(t)
	require.NoError(t, env.vault.DepositForMint(env.ctx, bob, coins(10, 0), nil))
	require.NoError(t, env.vault.DepositForBurn(env.ctx, alice, env.shareCoins(50)))

	env.chain.Advance(config.MaxUpdateInterval - time.Second)
	err := env.vault.Unlock(env.ctx, stranger)
	require.ErrorIs(t, err, types.ErrCantUnlockYet)
	require.Contains(t, err.Error(), "1 seconds remaining")
	require.Equal(t, PhaseActive, env.vault.Phase())

	env.chain.Advance(2 * time.Second)
	require.NoError(t, env.vault.Unlock(env.ctx, stranger))

	require.Equal(t, PhaseTerminated, env.vault.Phase())
	status, err := env.vault.Status(env.ctx)
	require.NoError(t, err)
	require.True(t, status.Closed)
	require.False(t, status.Halted)
	require.False(t, status.PositionOpen)
	require.Empty(t, env.chain.Positions(vaultAddr))

	// Bob is refunded, alice is paid 50 of 101 shares against 101 uatom.
	requireAmount(t, userFunds, env.balance(t, bob, denom0))
	requireAmount(t, userFunds-50, env.balance(t, alice, denom0))
	requireAmount(t, 51, env.chain.Supply(env.vault.Denom()))
	require.Empty(t, env.vault.PendingMints(types.PageRequest{}).Entries)
	require.Empty(t, env.vault.PendingBurns(types.PageRequest{}).Entries)

	require.ErrorIs(t, env.vault.Unlock(env.ctx, operator), types.ErrVaultClosed)
	require.ErrorIs(t, env.vault.DepositForMint(env.ctx, bob, coins(10, 0), nil), types.ErrVaultClosed)
	_, err = env.vault.CreatePosition(env.ctx, operator, types.CreatePositionRequest{LowerTick: -1, UpperTick: 1, TokensProvided: coins(1, 0)})
	require.ErrorIs(t, err, types.ErrVaultClosed)
	require.ErrorIs(t, env.vault.Halt(env.ctx, owner), types.ErrVaultClosed)

	// Redemptions settle immediately once terminated.
	require.NoError(t, env.vault.DepositForBurn(env.ctx, alice, env.shareCoins(10)))
	requireAmount(t, userFunds-40, env.balance(t, alice, denom0))
	requireAmount(t, 41, env.chain.Supply(env.vault.Denom()))
	require.Empty(t, env.vault.PendingBurns(types.PageRequest{}).Entries)
	require.NoError(t, env.vault.CheckInvariants())
}

func TestOperatorActivityResetsDeadManSwitch(t *testing.T) {
	env := newTestEnv(t, nil)

	env.chain.Advance(config.MaxUpdateInterval - time.Hour)
	// Owner actions do not count.
	require.NoError(t, env.vault.Halt(env.ctx, owner))
	require.NoError(t, env.vault.Resume(env.ctx, owner))
	status, err := env.vault.Status(env.ctx)
	require.NoError(t, err)
	require.True(t, status.LastUpdate.Before(env.chain.Now()))

	require.NoError(t, env.vault.DepositForMint(env.ctx, alice, coins(5, 0), nil))
	_, err = env.vault.ProcessMints(env.ctx, operator)
	require.NoError(t, err)
	status, err = env.vault.Status(env.ctx)
	require.NoError(t, err)
	require.Equal(t, env.chain.Now(), status.LastUpdate)

	env.chain.Advance(2 * time.Hour)
	require.ErrorIs(t, env.vault.Unlock(env.ctx, stranger), types.ErrCantUnlockYet)
}

func TestNoOpSettlementIsNotOperatorActivity(t *testing.T) {
	env := newTestEnv(t, nil)
	start := env.chain.Now()
	// Worth 1 share, so it stays queued forever under the queue policy.
	require.NoError(t, env.vault.DepositForMint(env.ctx, stranger, coins(1, 0), intPtr(1_000_000)))

	for elapsed := time.Duration(0); elapsed <= config.MaxUpdateInterval; elapsed += 24 * time.Hour {
		env.chain.Advance(24 * time.Hour)
		report, err := env.vault.ProcessMints(env.ctx, operator)
		require.NoError(t, err)
		require.Empty(t, report.Mints)
		require.Equal(t, []string{stranger}, report.Deferred)
		_, err = env.vault.ProcessBurns(env.ctx, operator)
		require.NoError(t, err)
	}

	status, err := env.vault.Status(env.ctx)
	require.NoError(t, err)
	require.Equal(t, start, status.LastUpdate)

	require.NoError(t, env.vault.Unlock(env.ctx, stranger))
	require.Equal(t, PhaseTerminated, env.vault.Phase())
	requireAmount(t, userFunds, env.balance(t, stranger, denom0))
	require.Empty(t, env.vault.PendingMints(types.PageRequest{}).Entries)
}

func TestOperatorCanUnlockAnyTime(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.vault.DepositForMint(env.ctx, alice, coins(5, 0), nil))

	require.ErrorIs(t, env.vault.Unlock(env.ctx, owner), types.ErrCantUnlockYet)
	require.NoError(t, env.vault.Unlock(env.ctx, operator))

	require.Equal(t, PhaseTerminated, env.vault.Phase())
	requireAmount(t, userFunds, env.balance(t, alice, denom0))
	requireAmount(t, 1, env.balance(t, vaultAddr, denom0))
	requireAmount(t, 1, env.chain.Supply(env.vault.Denom()))
}

func TestHaltBlocksDepositsAndRedemptions(t *testing.T) {
	env := newTestEnv(t, nil)
	env.roundTrip(t)

	require.NoError(t, env.vault.Halt(env.ctx, operator))
	require.Equal(t, PhaseHalted, env.vault.Phase())
	require.ErrorIs(t, env.vault.DepositForMint(env.ctx, bob, coins(10, 0), nil), types.ErrVaultHalted)
	require.ErrorIs(t, env.vault.DepositForBurn(env.ctx, alice, env.shareCoins(10)), types.ErrVaultHalted)
	require.ErrorIs(t, env.vault.ForceBurn(env.ctx, operator, alice, math.NewInt(10)), types.ErrVaultHalted)

	// The operator keeps managing the vault while halted.
	_, err := env.vault.ProcessMints(env.ctx, operator)
	require.NoError(t, err)

	require.NoError(t, env.vault.Unlock(env.ctx, operator))
	require.Equal(t, PhaseTerminated, env.vault.Phase())
	status, err := env.vault.Status(env.ctx)
	require.NoError(t, err)
	require.False(t, status.Halted)
	require.ErrorIs(t, env.vault.Resume(env.ctx, operator), types.ErrVaultClosed)
}

func TestBurningAllSharesTerminates(t *testing.T) {
	env := newTestEnv(t, nil)

	require.NoError(t, env.vault.DepositForBurn(env.ctx, owner, env.shareCoins(1)))
	report, err := env.vault.ProcessBurns(env.ctx, operator)
	require.NoError(t, err)
	require.True(t, report.Terminated)
	requireAmount(t, 1, report.Burned())

	require.Equal(t, PhaseTerminated, env.vault.Phase())
	require.True(t, env.chain.Supply(env.vault.Denom()).IsZero())
	requireAmount(t, 1, env.balance(t, owner, denom0))
	require.True(t, env.balance(t, vaultAddr, denom0).IsZero())
}

func TestBurningAllSharesRefundsQueuedMints(t *testing.T) {
	env := newTestEnv(t, nil)
	env.roundTrip(t)
	require.NoError(t, env.vault.DepositForMint(env.ctx, bob, coins(10, 5), nil))
	require.NoError(t, env.vault.DepositForBurn(env.ctx, alice, env.shareCoins(100)))
	require.NoError(t, env.vault.DepositForBurn(env.ctx, owner, env.shareCoins(1)))

	report, err := env.vault.ProcessBurns(env.ctx, operator)
	require.NoError(t, err)
	require.True(t, report.Terminated)
	require.Equal(t, PhaseTerminated, env.vault.Phase())
	require.True(t, env.chain.Supply(env.vault.Denom()).IsZero())

	// Bob's deposit was reserved, never paid out to the redeemers, and comes back in full.
	requireAmount(t, userFunds, env.balance(t, bob, denom0))
	requireAmount(t, userFunds, env.balance(t, bob, denom1))
	requireAmount(t, userFunds, env.balance(t, alice, denom0))
	_, pending := env.vault.PendingMint(bob)
	require.False(t, pending)
	require.Empty(t, env.vault.PendingMints(types.PageRequest{}).Entries)
	require.True(t, env.balance(t, vaultAddr, denom0).IsZero())
	require.True(t, env.balance(t, vaultAddr, denom1).IsZero())
	require.NoError(t, env.vault.CheckInvariants())

	mints, err := env.vault.ProcessMints(env.ctx, operator)
	require.NoError(t, err)
	require.Nil(t, mints)
}

func TestDepositForBurnValidation(t *testing.T) {
	env := newTestEnv(t, func(c *types.Config) {
		minRedemption := math.NewInt(5)
		c.MinRedemption = &minRedemption
	})
	env.roundTrip(t)
	ctx := env.ctx

	require.ErrorIs(t, env.vault.DepositForBurn(ctx, alice, sdk.NewCoins()), types.ErrNoFunds)
	require.ErrorIs(t, env.vault.DepositForBurn(ctx, alice, coins(10, 0)), types.ErrInvalidToken)
	require.ErrorIs(t, env.vault.DepositForBurn(ctx, alice, env.shareCoins(10).Add(sdk.NewInt64Coin(denom0, 1))), types.ErrInvalidToken)
	require.ErrorIs(t, env.vault.DepositForBurn(ctx, alice, env.shareCoins(4)), types.ErrRedemptionBelowMin)
	require.ErrorIs(t, env.vault.DepositForBurn(ctx, alice, env.shareCoins(101)), simulations.ErrInsufficientFunds)

	require.NoError(t, env.vault.DepositForBurn(ctx, alice, env.shareCoins(5)))
	require.NoError(t, env.vault.DepositForBurn(ctx, alice, env.shareCoins(6)))
	page := env.vault.PendingBurns(types.PageRequest{})
	require.Len(t, page.Entries, 1)
	requireAmount(t, 11, page.Entries[0].Shares)

	// A pending redemption blocks new deposits from the same address.
	require.ErrorIs(t, env.vault.DepositForMint(ctx, alice, coins(10, 0), nil), types.ErrAccountPendingBurn)
}

func TestBurnRefundsPendingMint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.roundTrip(t)

	require.NoError(t, env.vault.DepositForMint(env.ctx, alice, coins(10, 4), nil))
	requireAmount(t, userFunds-110, env.balance(t, alice, denom0))

	require.NoError(t, env.vault.DepositForBurn(env.ctx, alice, env.shareCoins(10)))
	requireAmount(t, userFunds-100, env.balance(t, alice, denom0))
	requireAmount(t, userFunds, env.balance(t, alice, denom1))
	_, ok := env.vault.PendingMint(alice)
	require.False(t, ok)
	require.True(t, env.vault.Snapshot().AssetsPendingMint.IsZero())
	require.NoError(t, env.vault.CheckInvariants())
}

func TestForceBurn(t *testing.T) {
	env := newTestEnv(t, nil)
	env.roundTrip(t)
	require.NoError(t, env.vault.DepositForMint(env.ctx, alice, coins(10, 0), nil))

	require.ErrorIs(t, env.vault.ForceBurn(env.ctx, stranger, alice, math.NewInt(40)), types.ErrCannotForceExit)
	require.ErrorIs(t, env.vault.ForceBurn(env.ctx, owner, alice, math.NewInt(40)), types.ErrCannotForceExit)
	require.ErrorIs(t, env.vault.ForceBurn(env.ctx, operator, alice, math.NewInt(101)), types.ErrInsufficientFundsBurn)
	require.ErrorIs(t, env.vault.ForceBurn(env.ctx, operator, alice, math.ZeroInt()), types.ErrInsufficientFundsBurn)

	require.NoError(t, env.vault.ForceBurn(env.ctx, operator, alice, math.NewInt(40)))
	requireAmount(t, 60, env.shares(t, alice))
	requireAmount(t, 40, env.shares(t, vaultAddr))
	requireAmount(t, 101, env.chain.Supply(env.vault.Denom()))
	requireAmount(t, userFunds-100, env.balance(t, alice, denom0))
	_, ok := env.vault.PendingMint(alice)
	require.False(t, ok)

	_, err := env.vault.ProcessBurns(env.ctx, operator)
	require.NoError(t, err)
	requireAmount(t, userFunds-60, env.balance(t, alice, denom0))
	requireAmount(t, 61, env.chain.Supply(env.vault.Denom()))
}

func TestModifyConfig(t *testing.T) {
	env := newTestEnv(t, nil)
	env.roundTrip(t)
	id := env.openPosition(t)
	current := env.vault.Snapshot().Config

	cfg := current
	cfg.Asset0.MinDeposit = math.NewInt(7)
	require.ErrorIs(t, env.vault.ModifyConfig(env.ctx, owner, cfg), types.ErrCannotChangeAssets)

	cfg = current
	cfg.PoolID = 3
	require.ErrorIs(t, env.vault.ModifyConfig(env.ctx, owner, cfg), types.ErrCannotChangePoolID)

	cfg = current
	cfg.PriceExpiry = 0
	require.ErrorIs(t, env.vault.ModifyConfig(env.ctx, owner, cfg), types.ErrInvalidConfig)
	require.ErrorIs(t, env.vault.ModifyConfig(env.ctx, stranger, current), types.ErrUnauthorized)

	_, err := env.vault.WithdrawPosition(env.ctx, operator, types.WithdrawPositionRequest{PositionID: id, Liquidity: math.LegacyNewDec(100)})
	require.NoError(t, err)

	cfg = current
	cfg.PoolID = 2
	require.ErrorIs(t, env.vault.ModifyConfig(env.ctx, owner, cfg), types.ErrPoolIsNotCL)
	cfg.PoolID = 9
	require.ErrorIs(t, env.vault.ModifyConfig(env.ctx, owner, cfg), types.ErrPoolNotFound)

	cfg.PoolID = 3
	cfg.PriceExpiry = 120
	cfg.SlippagePolicy = types.SlippagePolicySettle
	cfg.CommissionReceiver = ""
	require.NoError(t, env.vault.ModifyConfig(env.ctx, operator, cfg))

	status, err := env.vault.Status(env.ctx)
	require.NoError(t, err)
	require.Equal(t, types.PoolID(3), status.Config.PoolID)
	require.Equal(t, uint64(120), status.Config.PriceExpiry)
	require.Equal(t, types.SlippagePolicySettle, status.Config.Policy())
	require.Equal(t, owner, status.Config.CommissionReceiver)
}
