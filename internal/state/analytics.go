package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cosmossdk.io/math"
	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"

	"github.com/elys-network/clvault/internal/types"
)

// SettlementSummary represents high-level settlement statistics of a vault
type SettlementSummary struct {
	TotalSettlements int        `json:"total_settlements"`
	MintSettlements  int        `json:"mint_settlements"`
	BurnSettlements  int        `json:"burn_settlements"`
	TotalCycles      int        `json:"total_cycles"`
	LatestSupply     string     `json:"latest_supply,omitempty"`
	LastSettledAt    *time.Time `json:"last_settled_at,omitempty"`
}

// settlementOutcomes is the JSONB payload of a settlement row.
type settlementOutcomes struct {
	Mints []types.MintOutcome `json:"mints,omitempty"`
	Burns []types.BurnOutcome `json:"burns,omitempty"`
}

// SaveSettlement records one settlement batch.
func SaveSettlement(ctx context.Context, vaultAddress string, cycle int, report types.SettlementReport) error {
	if DB == nil {
		return ErrDatabaseNotInitialized
	}

	outcomesJSON, err := json.Marshal(settlementOutcomes{Mints: report.Mints, Burns: report.Burns})
	if err != nil {
		return fmt.Errorf("failed to marshal settlement outcomes: %w", err)
	}

	query := `
		INSERT INTO settlements (
			settlement_id, vault_address, cycle_number, kind, settled_at,
			price0, price1, total_dollars, share_price,
			supply_before, supply_after, outcomes, deferred, terminated, cap_reached
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (settlement_id) DO NOTHING;
	`
	_, err = DB.ExecContext(ctx, query,
		report.ID, vaultAddress, cycle, string(report.Kind), report.Time,
		numeric(report.Price0), numeric(report.Price1), numeric(report.TotalDollars), numeric(report.SharePrice),
		numeric(report.SupplyBefore), numeric(report.SupplyAfter), outcomesJSON, pq.Array(report.Deferred),
		report.Terminated, report.CapReached,
	)
	if err != nil {
		return fmt.Errorf("failed to save settlement %s: %w", report.ID, err)
	}

	log.Info().
		Str("settlement_id", report.ID).
		Str("kind", string(report.Kind)).
		Int("cycle_number", cycle).
		Str("supply_after", report.SupplyAfter.String()).
		Msg("Settlement saved to database")
	return nil
}

// GetRecentSettlements retrieves the latest settlements of a vault, newest first
func GetRecentSettlements(ctx context.Context, vaultAddress string, limit int) ([]types.SettlementReport, error) {
	if DB == nil {
		return nil, ErrDatabaseNotInitialized
	}

	if limit <= 0 || limit > 100 {
		limit = 10 // Default limit
	}

	query := `
		SELECT
			settlement_id, kind, settled_at,
			price0, price1, total_dollars, share_price,
			supply_before, supply_after, outcomes, deferred, terminated, cap_reached
		FROM settlements
		WHERE vault_address = $1
		ORDER BY settled_at DESC
		LIMIT $2
	`

	rows, err := DB.QueryContext(ctx, query, vaultAddress, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent settlements")
		return nil, fmt.Errorf("failed to query recent settlements: %w", err)
	}
	defer rows.Close()

	var reports []types.SettlementReport
	for rows.Next() {
		report, err := scanSettlement(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan settlement row")
			continue // Skip this row and continue with others
		}
		reports = append(reports, report)
	}

	if err := rows.Err(); err != nil {
		log.Error().Err(err).Msg("Error occurred during row iteration")
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	log.Debug().Int("count", len(reports)).Int("limit", limit).Msg("Retrieved recent settlements")
	return reports, nil
}

func scanSettlement(rows *sql.Rows) (types.SettlementReport, error) {
	var (
		report                                   types.SettlementReport
		kind                                     string
		price0, price1, totalDollars, sharePrice sql.NullString
		supplyBefore, supplyAfter                sql.NullString
		outcomesJSON                             []byte
	)
	err := rows.Scan(
		&report.ID, &kind, &report.Time,
		&price0, &price1, &totalDollars, &sharePrice,
		&supplyBefore, &supplyAfter, &outcomesJSON, pq.Array(&report.Deferred),
		&report.Terminated, &report.CapReached,
	)
	if err != nil {
		return report, err
	}
	report.Kind = types.SettlementKind(kind)

	numerics := []struct {
		dst *math.Int
		src sql.NullString
	}{
		{&report.Price0, price0},
		{&report.Price1, price1},
		{&report.TotalDollars, totalDollars},
		{&report.SharePrice, sharePrice},
		{&report.SupplyBefore, supplyBefore},
		{&report.SupplyAfter, supplyAfter},
	}
	for _, n := range numerics {
		if *n.dst, err = parseNumeric(n.src); err != nil {
			return report, err
		}
	}

	var outcomes settlementOutcomes
	if len(outcomesJSON) > 0 {
		if err := json.Unmarshal(outcomesJSON, &outcomes); err != nil {
			return report, fmt.Errorf("failed to unmarshal settlement outcomes: %w", err)
		}
	}
	report.Mints, report.Burns = outcomes.Mints, outcomes.Burns
	return report, nil
}

// GetSettlementSummary retrieves aggregated settlement statistics of a vault
func GetSettlementSummary(ctx context.Context, vaultAddress string) (*SettlementSummary, error) {
	if DB == nil {
		return nil, ErrDatabaseNotInitialized
	}

	summary := &SettlementSummary{}

	query := `
		SELECT
			COUNT(*) AS total_settlements,
			COUNT(CASE WHEN kind = 'mint' THEN 1 END) AS mint_settlements,
			COUNT(CASE WHEN kind = 'burn' THEN 1 END) AS burn_settlements,
			MAX(settled_at) AS last_settled_at
		FROM settlements
		WHERE vault_address = $1
	`
	var lastSettled sql.NullTime
	err := DB.QueryRowContext(ctx, query, vaultAddress).Scan(
		&summary.TotalSettlements,
		&summary.MintSettlements,
		&summary.BurnSettlements,
		&lastSettled,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement summary: %w", err)
	}
	if lastSettled.Valid {
		summary.LastSettledAt = &lastSettled.Time
	}

	var supply sql.NullString
	err = DB.QueryRowContext(ctx,
		`SELECT supply FROM vault_snapshots WHERE vault_address = $1 ORDER BY snapshot_timestamp DESC LIMIT 1`,
		vaultAddress,
	).Scan(&supply)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get latest supply: %w", err)
	}
	summary.LatestSupply = supply.String

	if summary.TotalCycles, err = GetCurrentCycleNumber(ctx, vaultAddress); err != nil {
		log.Error().Err(err).Msg("Failed to get total cycle count")
	}

	log.Debug().
		Int("totalSettlements", summary.TotalSettlements).
		Int("totalCycles", summary.TotalCycles).
		Msg("Retrieved settlement summary")
	return summary, nil
}
