/*
Pyth is used for spot prices.

This file contains the mapping of coin symbols to their Pyth USD price feed id, and the oracle
addresses per environment. An asset may be configured with either a symbol listed here or a raw
64 character feed id.

If a symbol doesnt have an entry here it is assumed to already be a feed id.
*/

package config

import (
	"fmt"
	"strings"
)

const (
	OracleEnvMainnet  = "mainnet"
	OracleEnvTestnet  = "testnet"
	OracleEnvTesttube = "testtube"

	PythMainnetAddress = "osmo13ge29x4e2s63a8ytz2px8gurtyznmue4a69n5275692v3qn3ks8q7cwck7"
	PythTestnetAddress = "osmo1hpdzqku55lmfmptpyj6wdlugqs5etr6teqf7r4yqjjrxjznjhtuqqu5kdh"
	// MockOracleAddress selects the deterministic mock price source.
	MockOracleAddress = "osmo1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqmcn030"

	DefaultHermesEndpoint = "https://hermes.pyth.network"
)

var (
	SymbolToPriceFeedID = map[string]string{
		"OSMO": "5867f5683c757393a0670ef0f701490950fe93fdb006d181c8265a831ac0c5c6",
		"ATOM": "b00b60f88b03a6a625a8d1c048c3f66653edf217439983d037e7222c4e612819",
		"ETH":  "ff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace",
		"BTC":  "e62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43",
		"USDC": "eaa020c61cc479712813461ce153894a96a6c00b21ed0cfc2798d1f9a9e9c94a",

		"WETH": "ff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace",
		"WBTC": "e62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43",
	}
)

// ResolvePriceFeedID maps a symbol to its feed id. Anything else is returned lowercased without a 0x prefix.
func ResolvePriceFeedID(symbolOrID string) string {
	if id, ok := SymbolToPriceFeedID[strings.ToUpper(symbolOrID)]; ok {
		return id
	}
	return strings.TrimPrefix(strings.ToLower(symbolOrID), "0x")
}

// OracleAddress returns the oracle address for an environment.
func OracleAddress(env string) (string, error) {
	switch env {
	case OracleEnvMainnet, "":
		return PythMainnetAddress, nil
	case OracleEnvTestnet:
		return PythTestnetAddress, nil
	case OracleEnvTesttube:
		return MockOracleAddress, nil
	default:
		return "", fmt.Errorf("unknown oracle environment %q", env)
	}
}
