/*

This file contains the swap the operator may attach to a position operation. Execution is delegated
to the host router, the vault only validates the input against what it may spend.

*/

package types

import (
	"cosmossdk.io/math"
)

// SwapAmountInSplitRoute is one leg of a split route swap.
type SwapAmountInSplitRoute struct {
	Pools         []SwapAmountInRoute `json:"pools"`
	TokenInAmount math.Int            `json:"token_in_amount"`
}

// SwapAmountInRoute is a single pool hop.
type SwapAmountInRoute struct {
	PoolID        PoolID `json:"pool_id"`
	TokenOutDenom string `json:"token_out_denom"`
}

type Swap struct {
	Routes            []SwapAmountInSplitRoute `json:"routes"`
	TokenInDenom      string                   `json:"token_in_denom"`
	TokenOutMinAmount math.Int                 `json:"token_out_min_amount"`
}

// TokenInAmount is the total input across all routes.
func (s Swap) TokenInAmount() math.Int {
	total := math.ZeroInt()
	for _, r := range s.Routes {
		total = total.Add(r.TokenInAmount)
	}
	return total
}

// TokenOutDenom is the output denom of the first route. Every route ends in the same denom.
func (s Swap) TokenOutDenom() string {
	if len(s.Routes) == 0 || len(s.Routes[0].Pools) == 0 {
		return ""
	}
	pools := s.Routes[0].Pools
	return pools[len(pools)-1].TokenOutDenom
}
