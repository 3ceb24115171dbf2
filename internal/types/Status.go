/*

This file contains the read side of the vault: status, locked assets and the paginated queue and whitelist listings.

*/

package types

import (
	"time"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// VaultStatus is a point in time view of the vault state machine and its accounting.
type VaultStatus struct {
	JoinTime              *time.Time `json:"join_time,omitempty"` // When the open position was created
	LastUpdate            time.Time  `json:"last_update"`         // Last operator action, drives the dead-man switch
	UptimeLocked          bool       `json:"uptime_locked"`       // Open position still has forfeitable incentives
	CapReached            bool       `json:"cap_reached"`
	Halted                bool       `json:"halted"`
	Closed                bool       `json:"closed"`
	PositionOpen          bool       `json:"position_open"`
	PositionID            uint64     `json:"position_id,omitempty"`
	Owner                 string     `json:"owner"`
	Operator              string     `json:"operator"`
	Denom                 string     `json:"denom"`
	Supply                math.Int   `json:"supply"`
	AssetsPendingMint     sdk.Coins  `json:"assets_pending_mint"`
	UncompoundedRewards   sdk.Coins  `json:"uncompounded_rewards"`
	UncollectedCommission sdk.Coins  `json:"uncollected_commission"`
	Config                Config     `json:"config"`
}

// LockedAssets is everything the vault holds of its two assets, including the open position.
type LockedAssets struct {
	Asset0 sdk.Coin `json:"asset0"`
	Asset1 sdk.Coin `json:"asset1"`
}

type MintEntry struct {
	Address string      `json:"address"`
	Pending PendingMint `json:"pending"`
}

type BurnEntry struct {
	Address string   `json:"address"`
	Shares  math.Int `json:"shares"`
}

// PageRequest paginates address keyed listings. Results start strictly after StartAfter.
type PageRequest struct {
	StartAfter string `json:"start_after,omitempty"`
	Limit      uint32 `json:"limit,omitempty"`
}

type MintPage struct {
	Entries []MintEntry `json:"entries"`
	Total   int         `json:"total"`
}

type BurnPage struct {
	Entries []BurnEntry `json:"entries"`
	Total   int         `json:"total"`
}

type WhitelistPage struct {
	Addresses []string `json:"addresses"`
	Total     int      `json:"total"`
}
