package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// ErrDatabaseNotInitialized is returned by every store function before InitDB succeeded.
var ErrDatabaseNotInitialized = errors.New("database not initialized")

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DSN renders the lib/pq connection string.
func (cfg DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	var err error
	DB, err = sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	if err := DB.Ping(); err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("db", cfg.DBName).Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// Tables lists the tables owned by this package, in drop order.
var Tables = []string{"settlements", "vault_snapshots", "config_versions", "cycle_counter"}

// schemaSQL is idempotent.
const schemaSQL = `
	CREATE TABLE IF NOT EXISTS vault_snapshots (
		snapshot_id SERIAL PRIMARY KEY,
		vault_address VARCHAR(255) NOT NULL,
		cycle_number INTEGER NOT NULL,
		snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		phase VARCHAR(20) NOT NULL,
		supply NUMERIC(78, 0) NOT NULL,
		pending_mints INTEGER NOT NULL,
		pending_burns INTEGER NOT NULL,
		state JSONB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_vault_snapshots_vault_timestamp ON vault_snapshots(vault_address, snapshot_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_vault_snapshots_cycle ON vault_snapshots(cycle_number DESC);

	CREATE TABLE IF NOT EXISTS settlements (
		settlement_id UUID PRIMARY KEY,
		vault_address VARCHAR(255) NOT NULL,
		cycle_number INTEGER NOT NULL,
		kind VARCHAR(10) NOT NULL,
		settled_at TIMESTAMPTZ NOT NULL,

		-- Prices and valuation, 18 decimal fixed point
		price0 NUMERIC(78, 0),
		price1 NUMERIC(78, 0),
		total_dollars NUMERIC(78, 0),
		share_price NUMERIC(78, 0),

		supply_before NUMERIC(78, 0) NOT NULL,
		supply_after NUMERIC(78, 0) NOT NULL,
		outcomes JSONB NOT NULL,
		deferred TEXT[],
		terminated BOOLEAN NOT NULL DEFAULT FALSE,
		cap_reached BOOLEAN NOT NULL DEFAULT FALSE
	);
	CREATE INDEX IF NOT EXISTS idx_settlements_vault_time ON settlements(vault_address, settled_at DESC);
	CREATE INDEX IF NOT EXISTS idx_settlements_kind ON settlements(kind);

	CREATE TABLE IF NOT EXISTS config_versions (
		config_id SERIAL PRIMARY KEY,
		vault_address VARCHAR(255) NOT NULL,
		version INTEGER NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		changed_by VARCHAR(255) NOT NULL,
		config JSONB NOT NULL,
		CONSTRAINT uq_config_versions_vault_version UNIQUE (vault_address, version)
	);
	CREATE INDEX IF NOT EXISTS idx_config_versions_vault_active ON config_versions(vault_address, is_active, activated_at DESC);

	-- One settlement cycle counter per vault, continuous across restarts
	CREATE TABLE IF NOT EXISTS cycle_counter (
		vault_address VARCHAR(255) PRIMARY KEY,
		current_cycle INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
`

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return ErrDatabaseNotInitialized
	}
	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Strs("tables", Tables).Msg("Database schema ensured.")
	return nil
}

// DropSchema removes every table owned by this package.
func DropSchema() error {
	if DB == nil {
		return ErrDatabaseNotInitialized
	}
	for _, table := range Tables {
		if _, err := DB.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE;", table)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
		log.Warn().Str("table", table).Msg("Dropped table")
	}
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection(ctx context.Context) error {
	if DB == nil {
		return ErrDatabaseNotInitialized
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
