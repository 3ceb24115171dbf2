package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/clvault/internal/types"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// VaultAddress is the account the vault holds its funds under.
	VaultAddress string
	// Owner instantiates the vault and receives the initial shares.
	Owner string
	// Operator manages the position and triggers settlement.
	Operator string
	// ShareSubdenom is the subdenom of the share token, the full denom is factory/<vault>/<subdenom>.
	ShareSubdenom string

	// PoolID is the concentrated liquidity pool the vault deploys into.
	PoolID uint64
	// Asset0 and Asset1 describe the two vault assets. They must match the pool's token0 and token1.
	Asset0 types.Asset
	Asset1 types.Asset

	// PriceExpiry is the number of seconds an oracle price stays valid.
	PriceExpiry uint64
	// DollarCap is optional. Empty means uncapped.
	DollarCap *math.Int
	// Commission is optional. Empty means no commission.
	Commission *math.LegacyDec
	// CommissionReceiver defaults to the owner.
	CommissionReceiver string
	// MinRedemption is optional. Empty means DefaultMinRedemption.
	MinRedemption *math.Int
	// SwapWhitelist is a comma separated list of extra denoms swaps may output.
	SwapWhitelist []string
	// SlippagePolicy is "queue" (default) or "settle".
	SlippagePolicy types.SlippagePolicy
	// OracleEnv selects the oracle address: "mainnet", "testnet" or "testtube".
	OracleEnv string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// Variables without a documented default are required.
func LoadConfig() error {
	log.Info().Msg("Loading vault configuration from environment variables...")

	var err error

	if VaultAddress, err = getEnv("VAULT_ADDRESS"); err != nil {
		return err
	}
	if Owner, err = getEnv("VAULT_OWNER"); err != nil {
		return err
	}
	if Operator, err = getEnv("VAULT_OPERATOR"); err != nil {
		return err
	}
	ShareSubdenom = getEnvOrDefault("VAULT_SHARE_SUBDENOM", DefaultShareSubdenom)

	if PoolID, err = getEnvAsUint64("VAULT_POOL_ID"); err != nil {
		return err
	}
	if Asset0, err = loadAsset("VAULT_ASSET0"); err != nil {
		return err
	}
	if Asset1, err = loadAsset("VAULT_ASSET1"); err != nil {
		return err
	}
	if PriceExpiry, err = getEnvAsUint64("VAULT_PRICE_EXPIRY"); err != nil {
		return err
	}

	if DollarCap, err = getOptionalEnvAsInt("VAULT_DOLLAR_CAP"); err != nil {
		return err
	}
	if MinRedemption, err = getOptionalEnvAsInt("VAULT_MIN_REDEMPTION"); err != nil {
		return err
	}
	if raw := os.Getenv("VAULT_COMMISSION"); raw != "" {
		dec, err := math.LegacyNewDecFromStr(raw)
		if err != nil {
			return errors.New("environment variable VAULT_COMMISSION must be a decimal, got: " + raw)
		}
		Commission = &dec
	}
	CommissionReceiver = getEnvOrDefault("VAULT_COMMISSION_RECEIVER", Owner)

	SwapWhitelist = nil
	for _, denom := range strings.Split(os.Getenv("VAULT_SWAP_WHITELIST"), ",") {
		if denom = strings.TrimSpace(denom); denom != "" {
			SwapWhitelist = append(SwapWhitelist, denom)
		}
	}
	SlippagePolicy = types.SlippagePolicy(getEnvOrDefault("VAULT_SLIPPAGE_POLICY", string(types.SlippagePolicyQueue)))
	OracleEnv = getEnvOrDefault("VAULT_ORACLE_ENV", OracleEnvMainnet)

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Uint64("PoolID", PoolID).
		Str("Asset0", Asset0.Denom).
		Str("Asset1", Asset1.Denom).
		Str("Operator", Operator).
		Str("OracleEnv", OracleEnv).
		Msg("Configuration loaded successfully.")

	return nil
}

// VaultConfig assembles the vault configuration from the loaded variables.
func VaultConfig() (types.Config, error) {
	oracle, err := OracleAddress(OracleEnv)
	if err != nil {
		return types.Config{}, err
	}
	cfg := types.Config{
		Asset0:             Asset0,
		Asset1:             Asset1,
		PoolID:             types.PoolID(PoolID),
		PriceExpiry:        PriceExpiry,
		DollarCap:          DollarCap,
		Commission:         Commission,
		CommissionReceiver: CommissionReceiver,
		MinRedemption:      MinRedemption,
		SwapWhitelist:      SwapWhitelist,
		SlippagePolicy:     SlippagePolicy,
		Oracle:             oracle,
	}
	return cfg, cfg.Validate()
}

// loadAsset reads <prefix>_DENOM, <prefix>_FEED, <prefix>_DECIMALS and <prefix>_MIN_DEPOSIT.
func loadAsset(prefix string) (types.Asset, error) {
	denom, err := getEnv(prefix + "_DENOM")
	if err != nil {
		return types.Asset{}, err
	}
	feed, err := getEnv(prefix + "_FEED")
	if err != nil {
		return types.Asset{}, err
	}
	decimals, err := getEnvAsUint64(prefix + "_DECIMALS")
	if err != nil {
		return types.Asset{}, err
	}
	minDeposit, err := getOptionalEnvAsInt(prefix + "_MIN_DEPOSIT")
	if err != nil {
		return types.Asset{}, err
	}
	asset := types.Asset{
		Denom:       denom,
		PriceFeedID: ResolvePriceFeedID(feed),
		Decimals:    uint32(decimals),
		MinDeposit:  math.ZeroInt(),
	}
	if minDeposit != nil {
		asset.MinDeposit = *minDeposit
	}
	return asset, nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, falling back to def when unset or empty.
func getEnvOrDefault(key, def string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return def
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getOptionalEnvAsInt retrieves an arbitrary precision integer. Returns nil if not set.
func getOptionalEnvAsInt(key string) (*math.Int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil, nil
	}
	value, ok := math.NewIntFromString(valueStr)
	if !ok || value.IsNegative() {
		return nil, errors.New("environment variable " + key + " must be a non-negative integer, got: " + valueStr)
	}
	return &value, nil
}
