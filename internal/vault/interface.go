package vault

import (
	"context"
	"time"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/clvault/internal/types"
)

// Ledger moves fungible value between accounts.
type Ledger interface {
	// Balance returns the amount of denom held by addr.
	Balance(ctx context.Context, addr, denom string) (math.Int, error)

	// Send transfers coins from one account to another. It fails without side effects
	// when the sender cannot cover every coin.
	Send(ctx context.Context, from, to string, coins sdk.Coins) error
}

// PoolProtocol is the host AMM holding the vault's concentrated liquidity position.
// Every method acts on behalf of owner, which is always the vault address.
type PoolProtocol interface {
	// Pool returns the pool descriptor, failing with ErrPoolNotFound for unknown ids.
	Pool(ctx context.Context, id types.PoolID) (types.Pool, error)

	// CreatePosition supplies tokens to the pool between the two ticks.
	CreatePosition(ctx context.Context, owner string, poolID types.PoolID, lowerTick, upperTick int64, tokens sdk.Coins, min0, min1 math.Int) (types.PositionResult, error)

	// AddToPosition adds liquidity to an existing position. The host reissues the position
	// under a new id, which is returned in the result.
	AddToPosition(ctx context.Context, owner string, positionID uint64, amount0, amount1, min0, min1 math.Int) (types.PositionResult, error)

	// WithdrawPosition removes liquidity and pays the principal out to owner. Withdrawing all
	// liquidity deletes the position.
	WithdrawPosition(ctx context.Context, owner string, positionID uint64, liquidity math.LegacyDec) (sdk.Coins, error)

	// CollectIncentives pays claimable incentives to owner.
	CollectIncentives(ctx context.Context, owner string, positionID uint64) (sdk.Coins, error)

	// CollectSpreadRewards pays claimable swap fees to owner.
	CollectSpreadRewards(ctx context.Context, owner string, positionID uint64) (sdk.Coins, error)

	// Position returns the position breakdown including claimable and forfeited rewards.
	Position(ctx context.Context, positionID uint64) (types.PositionInfo, error)
}

// SwapRouter executes operator swaps.
type SwapRouter interface {
	// Swap spends the routes' input from sender and credits the output back to sender.
	Swap(ctx context.Context, sender string, swap types.Swap) (sdk.Coin, error)
}

// ShareToken is the authority over the vault's share denom.
type ShareToken interface {
	// CreateDenom registers factory/<creator>/<subdenom> and returns the full denom.
	CreateDenom(ctx context.Context, creator, subdenom string) (string, error)

	Mint(ctx context.Context, denom string, amount math.Int, to string) error

	Burn(ctx context.Context, denom string, amount math.Int, from string) error
}

// Clock is the host's monotonic clock.
type Clock interface {
	Now() time.Time
}

// Executor runs fn with all-or-nothing semantics: if fn returns an error, every host
// effect made inside it is rolled back.
type Executor interface {
	Atomically(ctx context.Context, fn func(ctx context.Context) error) error
}

// Host bundles the collaborators a vault needs.
type Host interface {
	Ledger
	PoolProtocol
	SwapRouter
	ShareToken
	Clock
	Executor
}

// PriceOracle prices the vault assets. Implemented by pricing.Service.
type PriceOracle interface {
	Prices(ctx context.Context, cfg types.Config, now time.Time) (math.Int, math.Int, error)
}

// EventSink receives the events of every committed operation.
type EventSink interface {
	Publish(ctx context.Context, events []sdk.Event)
}
