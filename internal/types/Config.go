/*

This file contains the vault configuration. The asset descriptors are fixed at instantiation,
everything else can be modified by the owner or operator through ModifyConfig.

*/

package types

import (
	"errors"
	"fmt"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// SlippagePolicy decides what happens to a queued deposit whose minimum-shares-out is not met at settlement.
type SlippagePolicy string

const (
	// SlippagePolicyQueue leaves the deposit queued for a later settlement.
	SlippagePolicyQueue SlippagePolicy = "queue"
	// SlippagePolicySettle ignores the minimum and settles the deposit anyway, even at zero shares.
	SlippagePolicySettle SlippagePolicy = "settle"
)

var (
	ErrInvalidCommission = errors.New("commission must be in [0, 1)")
	ErrInvalidReceiver   = errors.New("commission receiver is required when a commission is set")
	ErrInvalidExpiry     = errors.New("price expiry must be positive")
	ErrInvalidPolicy     = errors.New("unknown slippage policy")
	ErrSameAssets        = errors.New("vault assets must have distinct denoms")
)

type Config struct {
	Asset0 Asset  `json:"asset0"`
	Asset1 Asset  `json:"asset1"`
	PoolID PoolID `json:"pool_id"`
	// PriceExpiry is the number of seconds an oracle price stays valid.
	PriceExpiry uint64 `json:"price_expiry"`
	// DollarCap uses the same 18-decimal scale as amount x price. Nil means uncapped.
	DollarCap *math.Int `json:"dollar_cap,omitempty"`
	// Commission is the share of vault-asset rewards kept for the commission receiver.
	Commission         *math.LegacyDec `json:"commission,omitempty"`
	CommissionReceiver string          `json:"commission_receiver,omitempty"`
	// MinRedemption defaults to one whole share (10^18) when nil.
	MinRedemption *math.Int `json:"min_redemption,omitempty"`
	// SwapWhitelist lists denoms other than the vault assets a swap may output.
	SwapWhitelist  []string       `json:"swap_whitelist,omitempty"`
	SlippagePolicy SlippagePolicy `json:"slippage_policy,omitempty"`
	// Oracle is the price oracle address. The mock address selects deterministic test prices.
	Oracle string `json:"oracle"`
}

// Validate performs the checks that do not need the host: ranges, denoms and policy names.
func (c Config) Validate() error {
	var errs []error
	if err := c.Asset0.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("asset0: %w", err))
	}
	if err := c.Asset1.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("asset1: %w", err))
	}
	if c.Asset0.Denom == c.Asset1.Denom {
		errs = append(errs, ErrSameAssets)
	}
	if c.PriceExpiry == 0 {
		errs = append(errs, ErrInvalidExpiry)
	}
	if c.Commission != nil {
		if c.Commission.IsNil() || c.Commission.IsNegative() || c.Commission.GTE(math.LegacyOneDec()) {
			errs = append(errs, ErrInvalidCommission)
		} else if c.Commission.IsPositive() && c.CommissionReceiver == "" {
			errs = append(errs, ErrInvalidReceiver)
		}
	}
	if c.DollarCap != nil && (c.DollarCap.IsNil() || c.DollarCap.IsNegative()) {
		errs = append(errs, errors.New("dollar cap must be non-negative"))
	}
	if c.MinRedemption != nil && (c.MinRedemption.IsNil() || c.MinRedemption.IsNegative()) {
		errs = append(errs, errors.New("min redemption must be non-negative"))
	}
	for _, denom := range c.SwapWhitelist {
		if err := sdk.ValidateDenom(denom); err != nil {
			errs = append(errs, fmt.Errorf("swap whitelist: %w", err))
		}
	}
	switch c.SlippagePolicy {
	case "", SlippagePolicyQueue, SlippagePolicySettle:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidPolicy, c.SlippagePolicy))
	}
	return errors.Join(errs...)
}

// CommissionRate returns the configured commission, zero when unset.
func (c Config) CommissionRate() math.LegacyDec {
	if c.Commission == nil || c.Commission.IsNil() {
		return math.LegacyZeroDec()
	}
	return *c.Commission
}

// Policy returns the slippage policy, defaulting to SlippagePolicyQueue.
func (c Config) Policy() SlippagePolicy {
	if c.SlippagePolicy == "" {
		return SlippagePolicyQueue
	}
	return c.SlippagePolicy
}

// IsVaultAsset reports whether denom is one of the two vault assets.
func (c Config) IsVaultAsset(denom string) bool {
	return denom == c.Asset0.Denom || denom == c.Asset1.Denom
}

// CanSwapInto reports whether a swap may output denom.
func (c Config) CanSwapInto(denom string) bool {
	if c.IsVaultAsset(denom) {
		return true
	}
	for _, d := range c.SwapWhitelist {
		if d == denom {
			return true
		}
	}
	return false
}
