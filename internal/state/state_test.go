package state

import (
	"context"
	"database/sql"
	"testing"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/clvault/internal/types"
)

func TestNumericRoundTrip(t *testing.T) {
	big, ok := math.NewIntFromString("123456789012345678901234567890")
	require.True(t, ok)

	for _, in := range []math.Int{math.ZeroInt(), math.NewInt(42), big} {
		ns := numeric(in)
		require.True(t, ns.Valid)
		out, err := parseNumeric(ns)
		require.NoError(t, err)
		assert.True(t, in.Equal(out), "want %s, got %s", in, out)
	}

	ns := numeric(math.Int{})
	assert.False(t, ns.Valid)
	out, err := parseNumeric(ns)
	require.NoError(t, err)
	assert.True(t, out.IsNil())

	_, err = parseNumeric(sql.NullString{String: "1.5", Valid: true})
	assert.Error(t, err)
}

func TestSnapshotPhase(t *testing.T) {
	assert.Equal(t, "active", snapshotPhase(types.VaultSnapshot{}))
	assert.Equal(t, "halted", snapshotPhase(types.VaultSnapshot{Halted: true}))
	assert.Equal(t, "terminated", snapshotPhase(types.VaultSnapshot{Halted: true, Terminated: true}))
}

func TestDSN(t *testing.T) {
	cfg := DBConfig{Host: "localhost", Port: 5432, User: "vault", Password: "secret", DBName: "clvault", SSLMode: "disable"}
	assert.Equal(t, "host=localhost port=5432 user=vault password=secret dbname=clvault sslmode=disable", cfg.DSN())
}

func TestStoresRequireDatabase(t *testing.T) {
	require.Nil(t, DB)
	ctx := context.Background()

	_, err := SaveVaultSnapshot(ctx, 1, types.VaultSnapshot{})
	assert.ErrorIs(t, err, ErrDatabaseNotInitialized)
	_, err = LoadLatestSnapshot(ctx, "vault")
	assert.ErrorIs(t, err, ErrDatabaseNotInitialized)
	assert.ErrorIs(t, SaveSettlement(ctx, "vault", 1, types.SettlementReport{}), ErrDatabaseNotInitialized)
	_, err = GetRecentSettlements(ctx, "vault", 5)
	assert.ErrorIs(t, err, ErrDatabaseNotInitialized)
	_, err = GetSettlementSummary(ctx, "vault")
	assert.ErrorIs(t, err, ErrDatabaseNotInitialized)
	_, err = SaveConfigVersion(ctx, "vault", "owner", types.Config{}, true)
	assert.ErrorIs(t, err, ErrDatabaseNotInitialized)
	_, err = LoadActiveConfig(ctx, "vault")
	assert.ErrorIs(t, err, ErrDatabaseNotInitialized)
	_, err = ListConfigVersions(ctx, "vault")
	assert.ErrorIs(t, err, ErrDatabaseNotInitialized)
	_, err = GetCurrentCycleNumber(ctx, "vault")
	assert.ErrorIs(t, err, ErrDatabaseNotInitialized)
	_, err = IncrementCycleNumber(ctx, "vault")
	assert.ErrorIs(t, err, ErrDatabaseNotInitialized)
	assert.ErrorIs(t, ResetCycleNumber(ctx, "vault", 3), ErrDatabaseNotInitialized)
	assert.Error(t, ResetCycleNumber(ctx, "vault", -1))
	assert.ErrorIs(t, EnsureSchema(), ErrDatabaseNotInitialized)
	assert.ErrorIs(t, DropSchema(), ErrDatabaseNotInitialized)
	assert.ErrorIs(t, TestDBConnection(ctx), ErrDatabaseNotInitialized)
}
