/*

This is a custom type for the two assets a vault holds. Each asset carries what is needed to price it
(the oracle feed identifier and the decimal exponent of its base unit) and to accept deposits of it.

*/

package types

import (
	"fmt"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

type Asset struct {
	Denom       string   `json:"denom"`         // e.g., "uatom"
	PriceFeedID string   `json:"price_feed_id"` // Hex encoded oracle feed identifier (32 bytes)
	Decimals    uint32   `json:"decimals"`      // e.g., 6 for uatom, 1 token = 10^6 base units
	MinDeposit  math.Int `json:"min_deposit"`   // Minimum base units accepted per deposit
}

// Validate checks the descriptor itself. Pool compatibility is checked by the vault.
func (a Asset) Validate() error {
	if err := sdk.ValidateDenom(a.Denom); err != nil {
		return fmt.Errorf("invalid asset denom %q: %w", a.Denom, err)
	}
	if len(a.PriceFeedID) != 64 {
		return fmt.Errorf("price feed id for %s must be 32 hex encoded bytes, got %d chars", a.Denom, len(a.PriceFeedID))
	}
	if a.Decimals > 18 {
		return fmt.Errorf("decimals for %s must be at most 18, got %d", a.Denom, a.Decimals)
	}
	if a.MinDeposit.IsNil() || a.MinDeposit.IsNegative() {
		return fmt.Errorf("min deposit for %s must be a non-negative amount", a.Denom)
	}
	return nil
}

// AssetAmounts is an amount of each of the two vault assets, in base units.
type AssetAmounts struct {
	Amount0 math.Int `json:"amount0"`
	Amount1 math.Int `json:"amount1"`
}

// ZeroAmounts returns an AssetAmounts with both amounts set to zero.
func ZeroAmounts() AssetAmounts {
	return AssetAmounts{Amount0: math.ZeroInt(), Amount1: math.ZeroInt()}
}

func NewAssetAmounts(amount0, amount1 math.Int) AssetAmounts {
	return AssetAmounts{Amount0: amount0, Amount1: amount1}
}

func (a AssetAmounts) Add(b AssetAmounts) AssetAmounts {
	return AssetAmounts{Amount0: a.Amount0.Add(b.Amount0), Amount1: a.Amount1.Add(b.Amount1)}
}

// Sub panics on negative results; callers subtract only amounts they previously added.
func (a AssetAmounts) Sub(b AssetAmounts) AssetAmounts {
	return AssetAmounts{Amount0: a.Amount0.Sub(b.Amount0), Amount1: a.Amount1.Sub(b.Amount1)}
}

func (a AssetAmounts) IsZero() bool {
	return a.Amount0.IsZero() && a.Amount1.IsZero()
}

func (a AssetAmounts) Equal(b AssetAmounts) bool {
	return a.Amount0.Equal(b.Amount0) && a.Amount1.Equal(b.Amount1)
}

// Coins returns the non-zero amounts as coins of the given denoms.
func (a AssetAmounts) Coins(denom0, denom1 string) sdk.Coins {
	return sdk.NewCoins(sdk.NewCoin(denom0, a.Amount0), sdk.NewCoin(denom1, a.Amount1))
}
