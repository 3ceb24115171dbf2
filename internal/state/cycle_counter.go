/*

This file manages the persistent settlement cycle counter of each vault.
The counter is stored in the database to ensure continuity across restarts.

*/

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// GetCurrentCycleNumber retrieves the current cycle number of the vault, zero when it never ran.
func GetCurrentCycleNumber(ctx context.Context, vaultAddress string) (int, error) {
	if DB == nil {
		return 0, ErrDatabaseNotInitialized
	}

	query := `SELECT current_cycle FROM cycle_counter WHERE vault_address = $1;`

	var currentCycle int
	err := DB.QueryRowContext(ctx, query, vaultAddress).Scan(&currentCycle)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get current cycle number: %w", err)
	}

	log.Debug().Int("currentCycle", currentCycle).Msg("Retrieved current cycle number")
	return currentCycle, nil
}

// IncrementCycleNumber increments the cycle counter and returns the new value
func IncrementCycleNumber(ctx context.Context, vaultAddress string) (int, error) {
	if DB == nil {
		return 0, ErrDatabaseNotInitialized
	}

	upsert := `
		INSERT INTO cycle_counter (vault_address, current_cycle, updated_at)
		VALUES ($1, 1, CURRENT_TIMESTAMP)
		ON CONFLICT (vault_address) DO UPDATE
		SET current_cycle = cycle_counter.current_cycle + 1,
		    updated_at = CURRENT_TIMESTAMP
		RETURNING current_cycle;`

	var newCycle int
	if err := DB.QueryRowContext(ctx, upsert, vaultAddress).Scan(&newCycle); err != nil {
		return 0, fmt.Errorf("failed to increment cycle number: %w", err)
	}

	log.Info().Int("newCycle", newCycle).Msg("Incremented cycle counter")
	return newCycle, nil
}

// ResetCycleNumber resets the cycle counter to a specific value (for testing/maintenance)
func ResetCycleNumber(ctx context.Context, vaultAddress string, cycleNumber int) error {
	if cycleNumber < 0 {
		return fmt.Errorf("cycle number cannot be negative: %d", cycleNumber)
	}
	if DB == nil {
		return ErrDatabaseNotInitialized
	}

	upsert := `
		INSERT INTO cycle_counter (vault_address, current_cycle, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (vault_address) DO UPDATE
		SET current_cycle = EXCLUDED.current_cycle,
		    updated_at = CURRENT_TIMESTAMP;`

	if _, err := DB.ExecContext(ctx, upsert, vaultAddress, cycleNumber); err != nil {
		return fmt.Errorf("failed to reset cycle number to %d: %w", cycleNumber, err)
	}

	log.Warn().Int("cycleNumber", cycleNumber).Str("vault", vaultAddress).Msg("Reset cycle counter")
	return nil
}
