/*
This file contains an in-memory host chain: a bank, a concentrated liquidity pool module, a swap
router and a token factory. It stands in for the real chain when the vault runs in simulation mode
and in tests.

Every mutation goes through the bank, so the balances always add up. Atomically snapshots the
whole chain and restores it when the wrapped function fails.
*/

package simulations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/clvault/internal/logger"
	"github.com/elys-network/clvault/internal/types"
)

var hostLogger = logger.GetForComponent("simulated_host")

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrPositionNotFound  = errors.New("position not found")
	ErrNotPositionOwner  = errors.New("sender does not own the position")
	ErrSlippage          = errors.New("amount below requested minimum")
	ErrDenomExists       = errors.New("denom already exists")
	ErrUnknownDenom      = errors.New("denom was not created by the token factory")
)

// --- Chain State ---

type position struct {
	info types.PositionInfo
}

type pairKey struct {
	in, out string
}

type chainState struct {
	balances  map[string]sdk.Coins
	pools     map[types.PoolID]types.Pool
	positions map[uint64]position
	nextID    uint64
	denoms    map[string]string // denom -> creator
	supply    map[string]math.Int
	rates     map[pairKey]math.LegacyDec
}

func (s chainState) clone() chainState {
	c := chainState{
		balances:  make(map[string]sdk.Coins, len(s.balances)),
		pools:     make(map[types.PoolID]types.Pool, len(s.pools)),
		positions: make(map[uint64]position, len(s.positions)),
		nextID:    s.nextID,
		denoms:    make(map[string]string, len(s.denoms)),
		supply:    make(map[string]math.Int, len(s.supply)),
		rates:     make(map[pairKey]math.LegacyDec, len(s.rates)),
	}
	for k, v := range s.balances {
		c.balances[k] = append(sdk.Coins(nil), v...)
	}
	for k, v := range s.pools {
		c.pools[k] = v
	}
	for k, v := range s.positions {
		c.positions[k] = v
	}
	for k, v := range s.denoms {
		c.denoms[k] = v
	}
	for k, v := range s.supply {
		c.supply[k] = v
	}
	for k, v := range s.rates {
		c.rates[k] = v
	}
	return c
}

// Chain is the simulated host.
type Chain struct {
	mu    sync.Mutex
	now   time.Time
	state chainState
}

func NewChain(start time.Time) *Chain {
	return &Chain{
		now: start,
		state: chainState{
			balances:  make(map[string]sdk.Coins),
			pools:     make(map[types.PoolID]types.Pool),
			positions: make(map[uint64]position),
			nextID:    1,
			denoms:    make(map[string]string),
			supply:    make(map[string]math.Int),
			rates:     make(map[pairKey]math.LegacyDec),
		},
	}
}

func poolAccount(id types.PoolID) string {
	return fmt.Sprintf("pool/%d", id)
}

// --- Clock ---

func (c *Chain) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Chain) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- Executor ---

// Atomically runs fn and rolls every chain mutation back if it fails.
func (c *Chain) Atomically(ctx context.Context, fn func(ctx context.Context) error) error {
	c.mu.Lock()
	saved := c.state.clone()
	c.mu.Unlock()

	if err := fn(ctx); err != nil {
		c.mu.Lock()
		c.state = saved
		c.mu.Unlock()
		hostLogger.Debug().Err(err).Msg("Rolled back chain state")
		return err
	}
	return nil
}

// --- Bank ---

func (c *Chain) Balance(_ context.Context, addr, denom string) (math.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.balances[addr].AmountOf(denom), nil
}

// Balances returns every coin held by addr.
func (c *Chain) Balances(addr string) sdk.Coins {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append(sdk.Coins(nil), c.state.balances[addr]...)
}

// Fund credits coins to addr out of thin air.
func (c *Chain) Fund(addr string, coins sdk.Coins) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credit(addr, coins)
}

func (c *Chain) Send(_ context.Context, from, to string, coins sdk.Coins) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transfer(from, to, coins)
}

func (c *Chain) credit(addr string, coins sdk.Coins) {
	c.state.balances[addr] = c.state.balances[addr].Add(coins...)
}

func (c *Chain) debit(addr string, coins sdk.Coins) error {
	remaining, negative := c.state.balances[addr].SafeSub(coins...)
	if negative {
		return errorsmod.Wrapf(ErrInsufficientFunds, "%s has %s, needs %s", addr, c.state.balances[addr], coins)
	}
	c.state.balances[addr] = remaining
	return nil
}

func (c *Chain) transfer(from, to string, coins sdk.Coins) error {
	if !coins.IsValid() && !coins.Empty() {
		return fmt.Errorf("invalid coins %s", coins)
	}
	if err := c.debit(from, coins); err != nil {
		return err
	}
	c.credit(to, coins)
	return nil
}

// --- Pool Protocol ---

// AddPool registers a pool.
func (c *Chain) AddPool(pool types.Pool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.pools[pool.ID] = pool
}

func (c *Chain) Pool(_ context.Context, id types.PoolID) (types.Pool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pool, ok := c.state.pools[id]
	if !ok {
		return types.Pool{}, errorsmod.Wrapf(types.ErrPoolNotFound, "pool %d", id)
	}
	return pool, nil
}

func (c *Chain) CreatePosition(_ context.Context, owner string, poolID types.PoolID, lowerTick, upperTick int64, tokens sdk.Coins, min0, min1 math.Int) (types.PositionResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pool, ok := c.state.pools[poolID]
	if !ok {
		return types.PositionResult{}, errorsmod.Wrapf(types.ErrPoolNotFound, "pool %d", poolID)
	}
	if lowerTick >= upperTick {
		return types.PositionResult{}, fmt.Errorf("lower tick %d must be below upper tick %d", lowerTick, upperTick)
	}
	for _, t := range tokens {
		if t.Denom != pool.Token0 && t.Denom != pool.Token1 {
			return types.PositionResult{}, fmt.Errorf("denom %s is not in pool %d", t.Denom, poolID)
		}
	}
	amount0, amount1 := tokens.AmountOf(pool.Token0), tokens.AmountOf(pool.Token1)
	if amount0.LT(min0) || amount1.LT(min1) {
		return types.PositionResult{}, ErrSlippage
	}
	if err := c.transfer(owner, poolAccount(poolID), tokens); err != nil {
		return types.PositionResult{}, err
	}

	id := c.state.nextID
	c.state.nextID++
	liquidity := math.LegacyNewDecFromInt(amount0.Add(amount1))
	c.state.positions[id] = position{info: types.PositionInfo{
		PositionID:             id,
		PoolID:                 poolID,
		Owner:                  owner,
		LowerTick:              lowerTick,
		UpperTick:              upperTick,
		Liquidity:              liquidity,
		Asset0:                 sdk.NewCoin(pool.Token0, amount0),
		Asset1:                 sdk.NewCoin(pool.Token1, amount1),
		ClaimableIncentives:    sdk.NewCoins(),
		ClaimableSpreadRewards: sdk.NewCoins(),
		ForfeitedIncentives:    sdk.NewCoins(),
		JoinTime:               c.now,
	}}

	hostLogger.Debug().Uint64("position_id", id).Str("tokens", tokens.String()).Msg("Created position")
	return types.PositionResult{PositionID: id, Amount0: amount0, Amount1: amount1, Liquidity: liquidity}, nil
}

func (c *Chain) AddToPosition(_ context.Context, owner string, positionID uint64, amount0, amount1, min0, min1 math.Int) (types.PositionResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pos, err := c.ownedPosition(owner, positionID)
	if err != nil {
		return types.PositionResult{}, err
	}
	if amount0.LT(min0) || amount1.LT(min1) {
		return types.PositionResult{}, ErrSlippage
	}
	info := pos.info
	added := sdk.NewCoins(sdk.NewCoin(info.Asset0.Denom, amount0), sdk.NewCoin(info.Asset1.Denom, amount1))
	if err := c.transfer(owner, poolAccount(info.PoolID), added); err != nil {
		return types.PositionResult{}, err
	}

	// The pool reissues the position under a new id.
	delete(c.state.positions, positionID)
	id := c.state.nextID
	c.state.nextID++
	info.PositionID = id
	info.Asset0 = info.Asset0.AddAmount(amount0)
	info.Asset1 = info.Asset1.AddAmount(amount1)
	info.Liquidity = info.Liquidity.Add(math.LegacyNewDecFromInt(amount0.Add(amount1)))
	info.JoinTime = c.now
	c.state.positions[id] = position{info: info}

	return types.PositionResult{PositionID: id, Amount0: amount0, Amount1: amount1, Liquidity: info.Liquidity}, nil
}

func (c *Chain) WithdrawPosition(_ context.Context, owner string, positionID uint64, liquidity math.LegacyDec) (sdk.Coins, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pos, err := c.ownedPosition(owner, positionID)
	if err != nil {
		return nil, err
	}
	info := pos.info
	if liquidity.GT(info.Liquidity) || !liquidity.IsPositive() {
		return nil, fmt.Errorf("invalid liquidity %s, position has %s", liquidity, info.Liquidity)
	}

	share := liquidity.Quo(info.Liquidity)
	out0 := math.LegacyNewDecFromInt(info.Asset0.Amount).Mul(share).TruncateInt()
	out1 := math.LegacyNewDecFromInt(info.Asset1.Amount).Mul(share).TruncateInt()
	full := liquidity.Equal(info.Liquidity)
	if full {
		out0, out1 = info.Asset0.Amount, info.Asset1.Amount
	}
	out := sdk.NewCoins(sdk.NewCoin(info.Asset0.Denom, out0), sdk.NewCoin(info.Asset1.Denom, out1))
	if err := c.transfer(poolAccount(info.PoolID), owner, out); err != nil {
		return nil, err
	}

	if full {
		delete(c.state.positions, positionID)
	} else {
		info.Asset0 = info.Asset0.SubAmount(out0)
		info.Asset1 = info.Asset1.SubAmount(out1)
		info.Liquidity = info.Liquidity.Sub(liquidity)
		c.state.positions[positionID] = position{info: info}
	}
	return out, nil
}

func (c *Chain) CollectIncentives(_ context.Context, owner string, positionID uint64) (sdk.Coins, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pos, err := c.ownedPosition(owner, positionID)
	if err != nil {
		return nil, err
	}
	paid := pos.info.ClaimableIncentives
	c.credit(owner, paid)
	pos.info.ClaimableIncentives = sdk.NewCoins()
	// Incentives whose uptime was not met are lost on collection.
	pos.info.ForfeitedIncentives = sdk.NewCoins()
	c.state.positions[positionID] = pos
	return paid, nil
}

func (c *Chain) CollectSpreadRewards(_ context.Context, owner string, positionID uint64) (sdk.Coins, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pos, err := c.ownedPosition(owner, positionID)
	if err != nil {
		return nil, err
	}
	paid := pos.info.ClaimableSpreadRewards
	c.credit(owner, paid)
	pos.info.ClaimableSpreadRewards = sdk.NewCoins()
	c.state.positions[positionID] = pos
	return paid, nil
}

func (c *Chain) Position(_ context.Context, positionID uint64) (types.PositionInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos, ok := c.state.positions[positionID]
	if !ok {
		return types.PositionInfo{}, errorsmod.Wrapf(ErrPositionNotFound, "position %d", positionID)
	}
	return pos.info, nil
}

// Positions lists the positions held by owner, lowest id first.
func (c *Chain) Positions(owner string) []types.PositionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []types.PositionInfo
	for _, p := range c.state.positions {
		if p.info.Owner == owner {
			out = append(out, p.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PositionID < out[j].PositionID })
	return out
}

// AccrueIncentives makes incentives claimable on a position. Forfeited incentives are those that
// collecting now would give up because the minimum uptime is not met.
func (c *Chain) AccrueIncentives(positionID uint64, claimable, forfeited sdk.Coins) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos, ok := c.state.positions[positionID]
	if !ok {
		return errorsmod.Wrapf(ErrPositionNotFound, "position %d", positionID)
	}
	pos.info.ClaimableIncentives = pos.info.ClaimableIncentives.Add(claimable...)
	pos.info.ForfeitedIncentives = pos.info.ForfeitedIncentives.Add(forfeited...)
	c.state.positions[positionID] = pos
	return nil
}

// AccrueSpreadRewards makes swap fees claimable on a position.
func (c *Chain) AccrueSpreadRewards(positionID uint64, claimable sdk.Coins) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos, ok := c.state.positions[positionID]
	if !ok {
		return errorsmod.Wrapf(ErrPositionNotFound, "position %d", positionID)
	}
	pos.info.ClaimableSpreadRewards = pos.info.ClaimableSpreadRewards.Add(claimable...)
	c.state.positions[positionID] = pos
	return nil
}

func (c *Chain) ownedPosition(owner string, positionID uint64) (position, error) {
	pos, ok := c.state.positions[positionID]
	if !ok {
		return position{}, errorsmod.Wrapf(ErrPositionNotFound, "position %d", positionID)
	}
	if pos.info.Owner != owner {
		return position{}, ErrNotPositionOwner
	}
	return pos, nil
}

// --- Swap Router ---

// SetSwapRate sets how many units of out one unit of in buys. Unset pairs swap one for one.
func (c *Chain) SetSwapRate(in, out string, rate math.LegacyDec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.rates[pairKey{in: in, out: out}] = rate
}

func (c *Chain) Swap(_ context.Context, sender string, swap types.Swap) (sdk.Coin, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	outDenom := swap.TokenOutDenom()
	if outDenom == "" {
		return sdk.Coin{}, fmt.Errorf("swap has no output denom")
	}
	rate, ok := c.state.rates[pairKey{in: swap.TokenInDenom, out: outDenom}]
	if !ok {
		rate = math.LegacyOneDec()
	}

	amountIn := swap.TokenInAmount()
	amountOut := math.LegacyNewDecFromInt(amountIn).Mul(rate).TruncateInt()
	if !swap.TokenOutMinAmount.IsNil() && amountOut.LT(swap.TokenOutMinAmount) {
		return sdk.Coin{}, errorsmod.Wrapf(ErrSlippage, "got %s, wanted at least %s", amountOut, swap.TokenOutMinAmount)
	}
	if err := c.debit(sender, sdk.NewCoins(sdk.NewCoin(swap.TokenInDenom, amountIn))); err != nil {
		return sdk.Coin{}, err
	}
	out := sdk.NewCoin(outDenom, amountOut)
	c.credit(sender, sdk.NewCoins(out))
	return out, nil
}

// --- Token Factory ---

func (c *Chain) CreateDenom(_ context.Context, creator, subdenom string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	denom := fmt.Sprintf("factory/%s/%s", creator, subdenom)
	if err := sdk.ValidateDenom(denom); err != nil {
		return "", err
	}
	if _, ok := c.state.denoms[denom]; ok {
		return "", errorsmod.Wrapf(ErrDenomExists, "%s", denom)
	}
	c.state.denoms[denom] = creator
	c.state.supply[denom] = math.ZeroInt()
	return denom, nil
}

func (c *Chain) Mint(_ context.Context, denom string, amount math.Int, to string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.state.denoms[denom]; !ok {
		return errorsmod.Wrapf(ErrUnknownDenom, "%s", denom)
	}
	c.credit(to, sdk.NewCoins(sdk.NewCoin(denom, amount)))
	c.state.supply[denom] = c.state.supply[denom].Add(amount)
	return nil
}

func (c *Chain) Burn(_ context.Context, denom string, amount math.Int, from string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.state.denoms[denom]; !ok {
		return errorsmod.Wrapf(ErrUnknownDenom, "%s", denom)
	}
	if err := c.debit(from, sdk.NewCoins(sdk.NewCoin(denom, amount))); err != nil {
		return err
	}
	c.state.supply[denom] = c.state.supply[denom].Sub(amount)
	return nil
}

// Supply is the outstanding amount of a token factory denom.
func (c *Chain) Supply(denom string) math.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.state.supply[denom]; ok {
		return s
	}
	return math.ZeroInt()
}
