package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/clvault/internal/config"
	"github.com/elys-network/clvault/internal/events"
	"github.com/elys-network/clvault/internal/logger"
	"github.com/elys-network/clvault/internal/metrics"
	"github.com/elys-network/clvault/internal/operator"
	"github.com/elys-network/clvault/internal/pricing"
	"github.com/elys-network/clvault/internal/simulations"
	"github.com/elys-network/clvault/internal/state"
	"github.com/elys-network/clvault/internal/types"
	"github.com/elys-network/clvault/internal/vault"
	"github.com/elys-network/clvault/internal/web"
)

const (
	// CLOCK_TICK is how often the simulated chain clock follows wall time.
	CLOCK_TICK = time.Second
)

// main is the entry point for the vault process.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logOpts := logger.Options{Level: os.Getenv("LOG_LEVEL"), JSON: os.Getenv("LOG_FORMAT") == "json"}
	if path := os.Getenv("LOG_FILE"); path != "" {
		fileWriter, err := logger.FileWriter(path)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("Failed to open log file")
		}
		logOpts.Out = io.MultiWriter(os.Stdout, fileWriter)
	}
	logger.InitializeWithOptions(logOpts)
	log.Info().Msg("CL Vault Starting...")

	vaultCfg, err := config.VaultConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid vault configuration")
	}

	// Only the in-memory host is available, refuse to run anything else.
	if mode := os.Getenv("VAULT_MODE"); mode != "simulation" {
		log.Fatal().Str("mode", mode).Msg("VAULT_MODE is not set to 'simulation'. Halting to prevent accidental execution.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. Optional persistence ---
	var store operator.Store
	if config.DBHost != "" {
		dbCfg := state.DBConfig{
			Host: config.DBHost, Port: config.DBPort,
			User: config.DBUser, Password: config.DBPassword,
			DBName: config.DBName, SSLMode: config.DBSSLMode,
		}
		if err := state.InitDB(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}
		store = operator.DBStore{}

		if prev, err := state.LoadLatestSnapshot(ctx, config.VaultAddress); err != nil {
			log.Warn().Err(err).Msg("Failed to load previous snapshot")
		} else if prev != nil {
			// The simulated ledger does not survive a restart, so the vault starts over.
			log.Warn().
				Str("supply", prev.Supply.String()).
				Time("last_update", prev.LastUpdate).
				Msg("Previous vault snapshot found, starting a fresh simulated vault")
		}
	} else {
		log.Warn().Msg("DB_HOST not set, running without persistence")
	}

	m := metrics.New()

	// --- 3. Optional event stream ---
	var opts []vault.Option
	if config.NatsURL != "" {
		nc, js, err := events.ConnectNATS(config.NatsURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Close()
		if err := events.EnsureStream(ctx, js); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure event stream")
		}
		opts = append(opts, vault.WithEventSink(events.NewPublisher(js, config.VaultAddress, m)))
	}

	// --- 4. Simulated chain and vault ---
	chain := simulations.NewChain(time.Now().UTC())
	chain.AddPool(types.Pool{
		ID:           vaultCfg.PoolID,
		Type:         types.PoolTypeConcentrated,
		Token0:       vaultCfg.Asset0.Denom,
		Token1:       vaultCfg.Asset1.Denom,
		TickSpacing:  uint64(mustAtoi(os.Getenv("SIM_TICK_SPACING"), 100)),
		SpreadFactor: math.LegacyZeroDec(),
	})

	initialFunds, err := sdk.ParseCoinsNormalized(os.Getenv("VAULT_INITIAL_FUNDS"))
	if err != nil || initialFunds.IsZero() {
		log.Fatal().Err(err).Msg("VAULT_INITIAL_FUNDS must hold the initial vault assets, e.g. 1000000uatom")
	}
	chain.Fund(config.Owner, initialFunds)

	prices := pricing.NewServiceForOracle(vaultCfg.Oracle, chain.Now, config.OracleHTTPEndpoint)
	v, err := vault.Instantiate(ctx, chain, prices, vault.InstantiateMsg{
		VaultAddress: config.VaultAddress,
		Owner:        config.Owner,
		Operator:     config.Operator,
		Subdenom:     config.ShareSubdenom,
		Config:       vaultCfg,
		Funds:        initialFunds,
	}, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to instantiate vault")
	}
	if state.DB != nil {
		if active, err := state.LoadActiveConfig(ctx, v.Address()); err != nil {
			log.Warn().Err(err).Msg("Failed to load active config version")
		} else if active != nil {
			log.Info().Int("version", active.Version).Time("activated_at", active.ActivatedAt).Msg("Superseding config of the previous run")
		}
		version, err := state.SaveConfigVersion(ctx, v.Address(), config.Owner, v.Snapshot().Config, true)
		if err != nil {
			log.Error().Err(err).Msg("Failed to record initial config version")
		} else {
			log.Info().Int("version", version).Msg("Config version recorded")
		}
	}

	go func() {
		ticker := time.NewTicker(CLOCK_TICK)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				chain.Advance(CLOCK_TICK)
			}
		}
	}()

	// --- 5. Servers ---
	webServer := web.NewWebServer(config.WebPort, v, m.Handler())
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting vault web dashboard")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	healthServer := web.NewHealthServer(config.GRPCHealthPort, v)
	go func() {
		if err := healthServer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gRPC health server failed")
		}
	}()

	// --- 6. Operator loop ---
	op, err := operator.New(operator.Config{
		Vault:   v,
		Address: config.Operator,
		Store:   store,
		Metrics: m,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create operator")
	}

	log.Info().Str("interval", config.SettlementInterval.String()).Msg("Starting operator loop")
	op.RunLoop(ctx, config.SettlementInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Error().Err(err).Msg("Web server shutdown failed")
	}
	log.Info().Msg("CL Vault stopped")
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
