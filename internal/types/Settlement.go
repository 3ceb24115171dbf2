/*

This file contains the outcome of a settlement batch, as returned by the vault and recorded by the operator.

*/

package types

import (
	"time"

	"cosmossdk.io/math"
)

type SettlementKind string

const (
	SettlementMint SettlementKind = "mint"
	SettlementBurn SettlementKind = "burn"
)

// MintOutcome is one depositor's result in a mint batch.
type MintOutcome struct {
	Address string       `json:"address"`
	Funds   AssetAmounts `json:"funds"`
	Dollars math.Int     `json:"dollars"`
	Shares  math.Int     `json:"shares"` // May be zero, the deposit is consumed anyway
}

// BurnOutcome is one redeemer's result in a burn batch.
type BurnOutcome struct {
	Address string       `json:"address"`
	Shares  math.Int     `json:"shares"`
	Payout  AssetAmounts `json:"payout"`
}

type SettlementReport struct {
	ID           string         `json:"id"`
	Kind         SettlementKind `json:"kind"`
	Time         time.Time      `json:"time"`
	Price0       math.Int       `json:"price0,omitempty"`
	Price1       math.Int       `json:"price1,omitempty"`
	TotalDollars math.Int       `json:"total_dollars,omitempty"`
	SharePrice   math.Int       `json:"share_price,omitempty"`
	SupplyBefore math.Int       `json:"supply_before"`
	SupplyAfter  math.Int       `json:"supply_after"`
	Mints        []MintOutcome  `json:"mints,omitempty"`
	Deferred     []string       `json:"deferred,omitempty"` // Left queued by the slippage policy
	Burns        []BurnOutcome  `json:"burns,omitempty"`
	Terminated   bool           `json:"terminated"`
	CapReached   bool           `json:"cap_reached"`
}

// Minted is the total shares minted by the batch.
func (r SettlementReport) Minted() math.Int {
	total := math.ZeroInt()
	for _, m := range r.Mints {
		total = total.Add(m.Shares)
	}
	return total
}

// Burned is the total shares burned by the batch.
func (r SettlementReport) Burned() math.Int {
	total := math.ZeroInt()
	for _, b := range r.Burns {
		total = total.Add(b.Shares)
	}
	return total
}
