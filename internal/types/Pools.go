/*

This is a custom type for the liquidity pool the vault deploys into, as reported by the host AMM.

*/

package types

import (
	"cosmossdk.io/math"
)

type PoolID uint64

// PoolType is the AMM model backing a pool. The vault only accepts concentrated liquidity pools.
type PoolType string

const (
	PoolTypeConcentrated PoolType = "concentrated"
	PoolTypeBalancer     PoolType = "balancer"
	PoolTypeStableswap   PoolType = "stableswap"
)

type Pool struct {
	ID           PoolID         `json:"id"`
	Type         PoolType       `json:"type"`
	Token0       string         `json:"token0"`        // e.g., "uatom"
	Token1       string         `json:"token1"`        // e.g., "uusdc"
	TickSpacing  uint64         `json:"tick_spacing"`  // Only meaningful for concentrated pools
	SpreadFactor math.LegacyDec `json:"spread_factor"` // Fee charged on swaps through the pool
}

// IsConcentrated reports whether the pool is a concentrated liquidity pool.
func (p Pool) IsConcentrated() bool {
	return p.Type == PoolTypeConcentrated
}
