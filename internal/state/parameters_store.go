package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/clvault/internal/types"
)

// ConfigVersion is one stored revision of a vault configuration.
type ConfigVersion struct {
	ID          int64        `json:"id"`
	Version     int          `json:"version"`
	IsActive    bool         `json:"is_active"`
	ActivatedAt time.Time    `json:"activated_at"`
	ChangedBy   string       `json:"changed_by"`
	Config      types.Config `json:"config"`
}

// SaveConfigVersion stores cfg as the next version for the vault and returns its version number.
func SaveConfigVersion(ctx context.Context, vaultAddress, changedBy string, cfg types.Config, makeActive bool) (version int, err error) {
	if DB == nil {
		return 0, ErrDatabaseNotInitialized
	}

	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal vault config: %w", err)
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback() // Rollback if error occurred
		}
	}()

	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM config_versions WHERE vault_address = $1;`,
		vaultAddress,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to compute next config version for %s: %w", vaultAddress, err)
	}

	if makeActive {
		_, err = tx.ExecContext(ctx,
			`UPDATE config_versions SET is_active = FALSE WHERE vault_address = $1 AND is_active = TRUE;`,
			vaultAddress,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing config for %s: %w", vaultAddress, err)
		}
	}

	stmt := `
		INSERT INTO config_versions (vault_address, version, is_active, activated_at, changed_by, config)
		VALUES ($1, $2, $3, $4, $5, $6);`
	_, err = tx.ExecContext(ctx, stmt, vaultAddress, version, makeActive, time.Now(), changedBy, configJSON)
	if err != nil {
		return 0, fmt.Errorf("failed to insert config version: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Str("vault", vaultAddress).
		Int("version", version).
		Str("changed_by", changedBy).
		Bool("active", makeActive).
		Msg("Saved vault config version")
	return version, nil
}

// LoadActiveConfig returns the active configuration of the vault, or nil when none was stored.
func LoadActiveConfig(ctx context.Context, vaultAddress string) (*ConfigVersion, error) {
	if DB == nil {
		return nil, ErrDatabaseNotInitialized
	}

	query := `
		SELECT config_id, version, is_active, activated_at, changed_by, config
		FROM config_versions
		WHERE vault_address = $1 AND is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1;`

	cv, err := scanConfigVersion(DB.QueryRowContext(ctx, query, vaultAddress))
	if errors.Is(err, sql.ErrNoRows) {
		log.Debug().Str("vault", vaultAddress).Msg("No active vault config found")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active config for %s: %w", vaultAddress, err)
	}
	return cv, nil
}

// ListConfigVersions returns every stored revision of the vault configuration, newest first.
func ListConfigVersions(ctx context.Context, vaultAddress string) ([]ConfigVersion, error) {
	if DB == nil {
		return nil, ErrDatabaseNotInitialized
	}

	rows, err := DB.QueryContext(ctx, `
		SELECT config_id, version, is_active, activated_at, changed_by, config
		FROM config_versions
		WHERE vault_address = $1
		ORDER BY version DESC;`, vaultAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to query config versions: %w", err)
	}
	defer rows.Close()

	var versions []ConfigVersion
	for rows.Next() {
		cv, err := scanConfigVersion(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan config version row")
			continue
		}
		versions = append(versions, *cv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return versions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfigVersion(row rowScanner) (*ConfigVersion, error) {
	var (
		cv         ConfigVersion
		configJSON []byte
	)
	if err := row.Scan(&cv.ID, &cv.Version, &cv.IsActive, &cv.ActivatedAt, &cv.ChangedBy, &configJSON); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(configJSON, &cv.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vault config: %w", err)
	}
	return &cv, nil
}
