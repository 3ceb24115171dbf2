package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/clvault/internal/types"
)

// SaveVaultSnapshot stores the full vault state taken at the end of a settlement cycle.
func SaveVaultSnapshot(ctx context.Context, cycle int, snap types.VaultSnapshot) (int64, error) {
	if DB == nil {
		return 0, ErrDatabaseNotInitialized
	}

	stateJSON, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal vault state: %w", err)
	}

	query := `
		INSERT INTO vault_snapshots (
			vault_address, cycle_number, snapshot_timestamp, phase, supply,
			pending_mints, pending_burns, state
		) VALUES ($1, $2, NOW(), $3, $4, $5, $6, $7)
		RETURNING snapshot_id;
	`

	var snapshotID int64
	err = DB.QueryRowContext(ctx, query,
		snap.VaultAddress, cycle, snapshotPhase(snap), numeric(snap.Supply),
		len(snap.PendingMints), len(snap.PendingBurns), stateJSON,
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to save vault snapshot: %w", err)
	}

	log.Info().
		Int64("snapshot_id", snapshotID).
		Int("cycle_number", cycle).
		Str("supply", snap.Supply.String()).
		Msg("Vault snapshot saved to database")
	return snapshotID, nil
}

// LoadLatestSnapshot returns the most recent snapshot of the vault, or nil when none was saved.
func LoadLatestSnapshot(ctx context.Context, vaultAddress string) (*types.VaultSnapshot, error) {
	if DB == nil {
		return nil, ErrDatabaseNotInitialized
	}

	query := `
		SELECT state FROM vault_snapshots
		WHERE vault_address = $1
		ORDER BY snapshot_timestamp DESC, snapshot_id DESC
		LIMIT 1;
	`

	var stateJSON []byte
	err := DB.QueryRowContext(ctx, query, vaultAddress).Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest vault snapshot: %w", err)
	}

	var snap types.VaultSnapshot
	if err := json.Unmarshal(stateJSON, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vault snapshot: %w", err)
	}
	return &snap, nil
}

func snapshotPhase(snap types.VaultSnapshot) string {
	switch {
	case snap.Terminated:
		return "terminated"
	case snap.Halted:
		return "halted"
	default:
		return "active"
	}
}

// numeric renders an integer for a NUMERIC column, NULL when unset.
func numeric(i math.Int) sql.NullString {
	if i.IsNil() {
		return sql.NullString{}
	}
	return sql.NullString{String: i.String(), Valid: true}
}

// parseNumeric is the inverse of numeric.
func parseNumeric(s sql.NullString) (math.Int, error) {
	if !s.Valid {
		return math.Int{}, nil
	}
	i, ok := math.NewIntFromString(s.String)
	if !ok {
		return math.Int{}, fmt.Errorf("invalid numeric value %q", s.String)
	}
	return i, nil
}
