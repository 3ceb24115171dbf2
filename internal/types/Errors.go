package types

import (
	"cosmossdk.io/errors"
)

// ModuleName is the codespace of every vault error.
const ModuleName = "clvault"

// Vault sentinel errors
var (
	// Validation
	ErrPoolNotFound          = errors.Register(ModuleName, 2, "pool not found")
	ErrPoolIsNotCL           = errors.Register(ModuleName, 3, "pool is not a concentrated liquidity pool")
	ErrNoFunds               = errors.Register(ModuleName, 4, "no funds sent")
	ErrInvalidMintAssets     = errors.Register(ModuleName, 5, "funds must only contain the vault assets")
	ErrInvalidConfigAsset    = errors.Register(ModuleName, 6, "vault asset does not match the pool")
	ErrCannotChangeAssets    = errors.Register(ModuleName, 7, "vault assets cannot be changed")
	ErrCannotChangePoolID    = errors.Register(ModuleName, 8, "pool id cannot be changed while a position is open")
	ErrDepositBelowMinimum   = errors.Register(ModuleName, 9, "deposit below minimum")
	ErrRedemptionBelowMin    = errors.Register(ModuleName, 10, "redemption below minimum")
	ErrInvalidToken          = errors.Register(ModuleName, 11, "funds must be exactly one coin of the share denom")
	ErrInvalidConfig         = errors.Register(ModuleName, 12, "invalid vault config")
	ErrCapReached            = errors.Register(ModuleName, 13, "vault cap reached")
	ErrAccountPendingBurn    = errors.Register(ModuleName, 14, "account has a pending burn")
	ErrInsufficientFundsBurn = errors.Register(ModuleName, 15, "insufficient shares to burn")
	ErrAddressInWhitelist    = errors.Register(ModuleName, 16, "address already whitelisted")
	ErrAddressNotInWhitelist = errors.Register(ModuleName, 17, "address not whitelisted")
	ErrInvalidSwap           = errors.Register(ModuleName, 18, "invalid swap")
	ErrSwapDenomNotAllowed   = errors.Register(ModuleName, 19, "swap output denom is not allowed")
	ErrCannotClaim           = errors.Register(ModuleName, 20, "nothing to claim")
	ErrInvalidPositionAssets = errors.Register(ModuleName, 21, "position tokens must be vault assets")

	// Authorization
	ErrUnauthorized    = errors.Register(ModuleName, 30, "unauthorized")
	ErrCannotForceExit = errors.Register(ModuleName, 31, "only the operator can force an exit")
	ErrCantUnlockYet   = errors.Register(ModuleName, 32, "vault cannot be unlocked yet")

	// State
	ErrVaultHalted      = errors.Register(ModuleName, 40, "vault is halted")
	ErrVaultClosed      = errors.Register(ModuleName, 41, "vault is closed")
	ErrPositionOpen     = errors.Register(ModuleName, 42, "a position is already open")
	ErrNoPositionsOpen  = errors.Register(ModuleName, 43, "no position is open")
	ErrMinUptime        = errors.Register(ModuleName, 44, "minimum uptime not met, incentives would be forfeited")
	ErrPositionMismatch = errors.Register(ModuleName, 45, "position id does not match the open position")

	// Oracle
	ErrStalePrice   = errors.Register(ModuleName, 50, "stale price")
	ErrUnknownFeed  = errors.Register(ModuleName, 51, "unknown price feed")
	ErrInvalidPrice = errors.Register(ModuleName, 52, "invalid price")

	// Liquidity
	ErrCannotAddMoreThanAvailable  = errors.Register(ModuleName, 60, "cannot add more than available")
	ErrCannotSwapMoreThanAvailable = errors.Register(ModuleName, 61, "cannot swap more than available")
	ErrCantProcessBurn             = errors.Register(ModuleName, 62, "burn distribution exceeds liquid balance")
	ErrDivisionByZero              = errors.Register(ModuleName, 63, "share price is zero")
	ErrReserveShortfall            = errors.Register(ModuleName, 64, "reserved amounts exceed vault holdings")
	ErrInsufficientLiquidity       = errors.Register(ModuleName, 65, "withdrawal exceeds position liquidity")
)
