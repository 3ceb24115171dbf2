/*

This file contains the types for the single concentrated liquidity position the vault may hold,
as reported by the host AMM, and the requests the operator uses to manage it.

*/

package types

import (
	"time"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// PositionInfo is a full breakdown of a position as reported by the pool.
type PositionInfo struct {
	PositionID             uint64         `json:"position_id"`
	PoolID                 PoolID         `json:"pool_id"`
	Owner                  string         `json:"owner"`
	LowerTick              int64          `json:"lower_tick"`
	UpperTick              int64          `json:"upper_tick"`
	Liquidity              math.LegacyDec `json:"liquidity"`
	Asset0                 sdk.Coin       `json:"asset0"`
	Asset1                 sdk.Coin       `json:"asset1"`
	ClaimableIncentives    sdk.Coins      `json:"claimable_incentives"`
	ClaimableSpreadRewards sdk.Coins      `json:"claimable_spread_rewards"`
	ForfeitedIncentives    sdk.Coins      `json:"forfeited_incentives"` // Non-empty while the minimum uptime is not met
	JoinTime               time.Time      `json:"join_time"`
}

// PositionResult is what the pool returns after creating or adding to a position.
type PositionResult struct {
	PositionID uint64         `json:"position_id"`
	Amount0    math.Int       `json:"amount0"`
	Amount1    math.Int       `json:"amount1"`
	Liquidity  math.LegacyDec `json:"liquidity"`
}

// CreatePositionRequest opens the vault's position.
type CreatePositionRequest struct {
	LowerTick       int64     `json:"lower_tick"`
	UpperTick       int64     `json:"upper_tick"`
	TokensProvided  sdk.Coins `json:"tokens_provided"`
	TokenMinAmount0 math.Int  `json:"token_min_amount0"`
	TokenMinAmount1 math.Int  `json:"token_min_amount1"`
	Swap            *Swap     `json:"swap,omitempty"`
}

// AddToPositionRequest adds liquidity to the open position.
type AddToPositionRequest struct {
	PositionID      uint64   `json:"position_id"`
	Amount0         math.Int `json:"amount0"`
	Amount1         math.Int `json:"amount1"`
	TokenMinAmount0 math.Int `json:"token_min_amount0"`
	TokenMinAmount1 math.Int `json:"token_min_amount1"`
	Swap            *Swap    `json:"swap,omitempty"`
	OverrideUptime  bool     `json:"override_uptime"` // Forfeit incentives whose minimum uptime is not met
}

// WithdrawPositionRequest removes some or all liquidity from the open position.
type WithdrawPositionRequest struct {
	PositionID     uint64         `json:"position_id"`
	Liquidity      math.LegacyDec `json:"liquidity"`
	OverrideUptime bool           `json:"override_uptime"`
	Settle         bool           `json:"settle"` // Process pending burns and mints right after withdrawing
}

// PendingMint is a depositor's queued funds awaiting settlement.
type PendingMint struct {
	Funds        AssetAmounts `json:"funds"`
	MinSharesOut *math.Int    `json:"min_shares_out,omitempty"`
}
