/*

This file contains the serialized form of the vault state. It is what the operator persists after
every cycle and what a restarted process restores from.

*/

package types

import (
	"time"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

type VaultSnapshot struct {
	VaultAddress        string       `json:"vault_address"`
	Owner               string       `json:"owner"`
	Operator            string       `json:"operator"`
	Denom               string       `json:"denom"`
	Config              Config       `json:"config"`
	Supply              math.Int     `json:"supply"`
	PositionOpen        bool         `json:"position_open"`
	PositionID          uint64       `json:"position_id"`
	Halted              bool         `json:"halted"`
	Terminated          bool         `json:"terminated"`
	CapReached          bool         `json:"cap_reached"`
	LastUpdate          time.Time    `json:"last_update"`
	AssetsPendingMint   AssetAmounts `json:"assets_pending_mint"`
	CommissionRewards   AssetAmounts `json:"commission_rewards"`
	UncompoundedRewards sdk.Coins    `json:"uncompounded_rewards"`
	PendingMints        []MintEntry  `json:"pending_mints"` // Address order
	PendingBurns        []BurnEntry  `json:"pending_burns"` // Address order
	Whitelist           []string     `json:"whitelist"`
}
