package simulations

import (
	"context"
	"errors"
	"testing"
	"time"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/clvault/internal/types"
)

func newTestChain() *Chain {
	c := NewChain(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	c.AddPool(types.Pool{ID: 1, Type: types.PoolTypeConcentrated, Token0: "uatom", Token1: "uusdc"})
	c.Fund("alice", sdk.NewCoins(sdk.NewInt64Coin("uatom", 1000), sdk.NewInt64Coin("uusdc", 1000)))
	return c
}

func TestAtomicallyRollsBack(t *testing.T) {
	c := newTestChain()
	ctx := context.Background()
	boom := errors.New("boom")

	err := c.Atomically(ctx, func(ctx context.Context) error {
		require.NoError(t, c.Send(ctx, "alice", "bob", sdk.NewCoins(sdk.NewInt64Coin("uatom", 400))))
		_, err := c.CreateDenom(ctx, "alice", "share")
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	bal, err := c.Balance(ctx, "alice", "uatom")
	require.NoError(t, err)
	require.Equal(t, "1000", bal.String())
	require.True(t, c.Balances("bob").Empty())

	// The denom creation was rolled back too.
	_, err = c.CreateDenom(ctx, "alice", "share")
	require.NoError(t, err)
	_, err = c.CreateDenom(ctx, "alice", "share")
	require.ErrorIs(t, err, ErrDenomExists)
}

func TestSendInsufficientFunds(t *testing.T) {
	c := newTestChain()
	err := c.Send(context.Background(), "alice", "bob", sdk.NewCoins(sdk.NewInt64Coin("uatom", 1001)))
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.Equal(t, "1000uatom,1000uusdc", c.Balances("alice").String())
}

func TestPositionLifecycle(t *testing.T) {
	c := newTestChain()
	ctx := context.Background()

	res, err := c.CreatePosition(ctx, "alice", 1, -10, 10,
		sdk.NewCoins(sdk.NewInt64Coin("uatom", 300), sdk.NewInt64Coin("uusdc", 100)), math.ZeroInt(), math.ZeroInt())
	require.NoError(t, err)
	require.Equal(t, "400.000000000000000000", res.Liquidity.String())

	_, err = c.CreatePosition(ctx, "alice", 1, 10, -10, sdk.NewCoins(sdk.NewInt64Coin("uatom", 1)), math.ZeroInt(), math.ZeroInt())
	require.Error(t, err)
	_, err = c.WithdrawPosition(ctx, "bob", res.PositionID, math.LegacyNewDec(1))
	require.ErrorIs(t, err, ErrNotPositionOwner)

	out, err := c.WithdrawPosition(ctx, "alice", res.PositionID, math.LegacyNewDec(100))
	require.NoError(t, err)
	require.Equal(t, "75uatom,25uusdc", out.String())

	require.NoError(t, c.AccrueIncentives(res.PositionID, sdk.NewCoins(sdk.NewInt64Coin("uosmo", 7)), sdk.NewCoins(sdk.NewInt64Coin("uosmo", 3))))
	paid, err := c.CollectIncentives(ctx, "alice", res.PositionID)
	require.NoError(t, err)
	require.Equal(t, "7uosmo", paid.String())
	pos, err := c.Position(ctx, res.PositionID)
	require.NoError(t, err)
	require.True(t, pos.ForfeitedIncentives.Empty())

	added, err := c.AddToPosition(ctx, "alice", res.PositionID, math.NewInt(10), math.ZeroInt(), math.ZeroInt(), math.ZeroInt())
	require.NoError(t, err)
	require.NotEqual(t, res.PositionID, added.PositionID)
	_, err = c.Position(ctx, res.PositionID)
	require.ErrorIs(t, err, ErrPositionNotFound)

	_, err = c.WithdrawPosition(ctx, "alice", added.PositionID, added.Liquidity)
	require.NoError(t, err)
	require.Empty(t, c.Positions("alice"))
	require.Equal(t, "1000uatom,7uosmo,1000uusdc", c.Balances("alice").String())
}

func TestSwapAndTokenFactory(t *testing.T) {
	c := newTestChain()
	ctx := context.Background()
	c.SetSwapRate("uatom", "uusdc", math.LegacyNewDec(3))

	swap := types.Swap{
		Routes: []types.SwapAmountInSplitRoute{{
			Pools:         []types.SwapAmountInRoute{{PoolID: 1, TokenOutDenom: "uusdc"}},
			TokenInAmount: math.NewInt(10),
		}},
		TokenInDenom:      "uatom",
		TokenOutMinAmount: math.NewInt(31),
	}
	_, err := c.Swap(ctx, "alice", swap)
	require.ErrorIs(t, err, ErrSlippage)

	swap.TokenOutMinAmount = math.NewInt(30)
	out, err := c.Swap(ctx, "alice", swap)
	require.NoError(t, err)
	require.Equal(t, "30uusdc", out.String())

	denom, err := c.CreateDenom(ctx, "vault", "CLV")
	require.NoError(t, err)
	require.Equal(t, "factory/vault/CLV", denom)
	require.ErrorIs(t, c.Mint(ctx, "factory/other/CLV", math.NewInt(1), "alice"), ErrUnknownDenom)
	require.NoError(t, c.Mint(ctx, denom, math.NewInt(50), "alice"))
	require.ErrorIs(t, c.Burn(ctx, denom, math.NewInt(51), "alice"), ErrInsufficientFunds)
	require.NoError(t, c.Burn(ctx, denom, math.NewInt(20), "alice"))
	require.Equal(t, "30", c.Supply(denom).String())

	c.Advance(time.Hour)
	require.Equal(t, time.Date(2025, 1, 1, 1, 0, 0, 0, time.UTC), c.Now())
}
