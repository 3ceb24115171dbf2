/*

This file contains the default parameters for the vault.

The dead-man interval protects depositors from an unresponsive operator: once it elapses without
an operator action, anyone may close the vault and redeem.

*/

package config

import (
	"time"

	"cosmossdk.io/math"
)

const (
	// MaxUpdateInterval is how long the operator may stay inactive before anyone can unlock the vault.
	MaxUpdateInterval = 14 * 24 * time.Hour

	// MaxPageLimit caps every paginated query.
	MaxPageLimit = 250

	// DefaultShareSubdenom is used when VAULT_SHARE_SUBDENOM is not set.
	DefaultShareSubdenom = "CLV"

	// SettlementInterval is how often the operator loop processes the queues.
	SettlementInterval = 10 * time.Minute

	// ShareDecimals is the precision of the share token.
	ShareDecimals = 18
)

var (
	// DefaultMinRedemption is one whole share.
	DefaultMinRedemption = math.NewIntWithDecimal(1, ShareDecimals)

	// InitialShares are minted to the owner at instantiation so that supply is never zero
	// while the vault is live.
	InitialShares = math.NewIntWithDecimal(1, ShareDecimals)
)
