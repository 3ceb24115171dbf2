package main

import (
	"context"
	"flag"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/clvault/internal/config"
	"github.com/elys-network/clvault/internal/logger"
	"github.com/elys-network/clvault/internal/state"
)

func main() {
	cycleVault := flag.String("cycle-vault", "", "only reset the cycle counter of this vault address")
	cycle := flag.Int("cycle", 0, "cycle number to reset to, used with -cycle-vault")
	flag.Parse()

	// Initialize logger
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logger.Initialize(logLevel)
	log.Info().Msg("Starting database reset script...")

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found or error loading .env file. Relying on OS environment variables.")
	}

	// Get database configuration from environment variables
	dbCfg := state.DBConfig{
		Host:     os.Getenv("DB_HOST"),
		Port:     5432,
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		DBName:   os.Getenv("DB_NAME"),
		SSLMode:  os.Getenv("DB_SSLMODE"),
	}

	// Set defaults for missing values
	if dbCfg.Host == "" {
		dbCfg.Host = "localhost"
	}
	if dbCfg.User == "" {
		log.Fatal().Msg("DB_USER environment variable not set.")
	}
	if dbCfg.DBName == "" {
		log.Fatal().Msg("DB_NAME environment variable not set.")
	}
	if dbCfg.SSLMode == "" {
		dbCfg.SSLMode = "disable"
	}
	if port, err := config.ParsePort(os.Getenv("DB_PORT")); err != nil {
		log.Fatal().Err(err).Msg("Invalid DB_PORT")
	} else if port != 0 {
		dbCfg.Port = port
	}

	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("user", dbCfg.User).
		Str("dbname", dbCfg.DBName).
		Msg("Connecting to database")

	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database connection")
	}
	defer state.CloseDB()

	if *cycleVault != "" {
		if err := state.ResetCycleNumber(context.Background(), *cycleVault, *cycle); err != nil {
			log.Fatal().Err(err).Msg("Failed to reset cycle counter")
		}
		log.Info().Str("vault", *cycleVault).Int("cycle", *cycle).Msg("Cycle counter reset, tables left in place")
		return
	}

	log.Info().Strs("tables", state.Tables).Msg("Connected to database. Attempting to drop all tables...")

	// Drop all tables - this is the "reset" part
	if err := state.DropSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to drop tables")
	}
	log.Info().Msg("Successfully dropped all tables")

	// Recreate the schema
	log.Info().Msg("Recreating database schema...")
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to recreate database schema")
	}
	log.Info().Msg("Database schema successfully recreated")

	log.Info().Msg("Database reset complete!")
}
