package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// OracleHTTPEndpoint is the Hermes price service used by the Pyth price source.
	OracleHTTPEndpoint string
	// NatsURL is optional. Vault events are only published when it is set.
	NatsURL string
	// WebPort is the port of the HTTP API.
	WebPort string
	// GRPCHealthPort is the port of the gRPC health service.
	GRPCHealthPort string
	// DB holds the PostgreSQL connection settings. Persistence is disabled when DBHost is empty.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
)

// ParsePort parses a TCP port. An empty string yields 0.
func ParsePort(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", raw)
	}
	return port, nil
}

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	OracleHTTPEndpoint = getEnvOrDefault("ORACLE_HTTP_ENDPOINT", DefaultHermesEndpoint)
	NatsURL = os.Getenv("NATS_URL")
	WebPort = getEnvOrDefault("WEB_PORT", "8080")
	GRPCHealthPort = getEnvOrDefault("GRPC_HEALTH_PORT", "9090")

	DBHost = os.Getenv("DB_HOST")
	DBPort = 5432
	port, err := ParsePort(os.Getenv("DB_PORT"))
	if err != nil {
		return err
	}
	if port != 0 {
		DBPort = port
	}
	DBUser = os.Getenv("DB_USER")
	DBPassword = os.Getenv("DB_PASSWORD")
	DBName = os.Getenv("DB_NAME")
	DBSSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	log.Debug().
		Str("OracleHTTPEndpoint", OracleHTTPEndpoint).
		Bool("NATS", NatsURL != "").
		Str("WebPort", WebPort).
		Str("GRPCHealthPort", GRPCHealthPort).
		Bool("Database", DBHost != "").
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
