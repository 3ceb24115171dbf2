package operator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/clvault/internal/config"
	"github.com/elys-network/clvault/internal/metrics"
	"github.com/elys-network/clvault/internal/pricing"
	"github.com/elys-network/clvault/internal/simulations"
	"github.com/elys-network/clvault/internal/types"
	"github.com/elys-network/clvault/internal/vault"
)

const (
	vaultAddr    = "osmo1vault"
	owner        = "osmo1owner"
	operatorAddr = "osmo1operator"
	alice        = "osmo1alice"
	bob          = "osmo1bob"

	feed0 = "b00b60f88b03a6a625a8d1c048c3f66653edf217439983d037e7222c4e612819"
	feed1 = "5867f5683c757393a0670ef0f701490950fe93fdb006d181c8265a831ac0c5c6"
)

type savedSettlement struct {
	cycle  int
	report types.SettlementReport
}

type memoryStore struct {
	mu          sync.Mutex
	cycle       int
	snapshots   map[int]types.VaultSnapshot
	settlements []savedSettlement
	counterErr  error
	snapshotErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{snapshots: make(map[int]types.VaultSnapshot)}
}

func (m *memoryStore) cycleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snapshots)
}

func (m *memoryStore) NextCycle(context.Context, string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counterErr != nil {
		return 0, m.counterErr
	}
	m.cycle++
	return m.cycle, nil
}

func (m *memoryStore) SaveSnapshot(_ context.Context, cycle int, snap types.VaultSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshotErr != nil {
		return m.snapshotErr
	}
	m.snapshots[cycle] = snap
	return nil
}

func (m *memoryStore) SaveSettlement(_ context.Context, _ string, cycle int, report types.SettlementReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settlements = append(m.settlements, savedSettlement{cycle: cycle, report: report})
	return nil
}

type fixture struct {
	ctx     context.Context
	chain   *simulations.Chain
	vault   *vault.Vault
	store   *memoryStore
	metrics *metrics.Metrics
	op      *Operator
}

func newFixture(t *testing.T, address string) *fixture {
	ctx := context.Background()
	chain := simulations.NewChain(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	chain.AddPool(types.Pool{ID: 1, Type: types.PoolTypeConcentrated, Token0: "uatom", Token1: "uusdc", TickSpacing: 100})
	chain.Fund(owner, sdk.NewCoins(sdk.NewInt64Coin("uatom", 1)))
	chain.Fund(alice, sdk.NewCoins(sdk.NewInt64Coin("uatom", 1000), sdk.NewInt64Coin("uusdc", 1000)))
	chain.Fund(bob, sdk.NewCoins(sdk.NewInt64Coin("uatom", 1000), sdk.NewInt64Coin("uusdc", 1000)))

	prices := pricing.NewMockSource(chain.Now)
	prices.SetPrice(feed0, 200000000, time.Time{})
	prices.SetPrice(feed1, 100000000, time.Time{})

	minRedemption := math.OneInt()
	v, err := vault.Instantiate(ctx, chain, pricing.NewService(prices), vault.InstantiateMsg{
		VaultAddress: vaultAddr,
		Owner:        owner,
		Operator:     operatorAddr,
		Config: types.Config{
			Asset0:        types.Asset{Denom: "uatom", PriceFeedID: feed0, Decimals: 8, MinDeposit: math.OneInt()},
			Asset1:        types.Asset{Denom: "uusdc", PriceFeedID: feed1, Decimals: 8, MinDeposit: math.OneInt()},
			PoolID:        1,
			PriceExpiry:   60,
			MinRedemption: &minRedemption,
			Oracle:        config.MockOracleAddress,
		},
		Funds:         sdk.NewCoins(sdk.NewInt64Coin("uatom", 1)),
		InitialShares: math.OneInt(),
	})
	require.NoError(t, err)

	store := newMemoryStore()
	m := metrics.New()
	op, err := New(Config{Vault: v, Address: address, Store: store, Metrics: m})
	require.NoError(t, err)
	return &fixture{ctx: ctx, chain: chain, vault: v, store: store, metrics: m, op: op}
}

func (f *fixture) shares(t *testing.T, addr string) math.Int {
	b, err := f.chain.Balance(f.ctx, addr, f.vault.Denom())
	require.NoError(t, err)
	return b
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{Address: operatorAddr})
	assert.Error(t, err)

	f := newFixture(t, operatorAddr)
	_, err = New(Config{Vault: f.vault})
	assert.Error(t, err)
}

func TestIdleCycleIsNotOperatorActivity(t *testing.T) {
	f := newFixture(t, operatorAddr)
	before, err := f.vault.Status(f.ctx)
	require.NoError(t, err)

	f.chain.Advance(time.Hour)
	res := f.op.RunCycle(f.ctx)
	require.NoError(t, res.Err())
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, 1, res.Number)
	assert.Nil(t, res.Burn)
	assert.Nil(t, res.Mint)

	after, err := f.vault.Status(f.ctx)
	require.NoError(t, err)
	assert.True(t, before.LastUpdate.Equal(after.LastUpdate))

	require.Contains(t, f.store.snapshots, 1)
	assert.Empty(t, f.store.settlements)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Cycles))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Phase.WithLabelValues("active")))
}

func TestCycleSettlesBurnsBeforeMints(t *testing.T) {
	f := newFixture(t, operatorAddr)

	require.NoError(t, f.vault.DepositForMint(f.ctx, alice, sdk.NewCoins(sdk.NewInt64Coin("uatom", 100)), nil))
	res := f.op.RunCycle(f.ctx)
	require.NoError(t, res.Err())
	require.NotNil(t, res.Mint)
	assert.Equal(t, "100", f.shares(t, alice).String())

	require.NoError(t, f.vault.DepositForBurn(f.ctx, alice, sdk.NewCoins(sdk.NewInt64Coin(f.vault.Denom(), 50))))
	require.NoError(t, f.vault.DepositForMint(f.ctx, bob, sdk.NewCoins(sdk.NewInt64Coin("uatom", 10)), nil))
	res = f.op.RunCycle(f.ctx)
	require.NoError(t, res.Err())
	require.NotNil(t, res.Burn)
	require.NotNil(t, res.Mint)
	assert.Equal(t, 2, res.Number)

	require.Len(t, f.store.settlements, 3)
	assert.Equal(t, types.SettlementMint, f.store.settlements[0].report.Kind)
	assert.Equal(t, 1, f.store.settlements[0].cycle)
	assert.Equal(t, types.SettlementBurn, f.store.settlements[1].report.Kind)
	assert.Equal(t, types.SettlementMint, f.store.settlements[2].report.Kind)
	assert.Equal(t, 2, f.store.settlements[2].cycle)

	snap := f.store.snapshots[2]
	assert.Empty(t, snap.PendingMints)
	assert.Empty(t, snap.PendingBurns)
	assert.Equal(t, f.chain.Supply(f.vault.Denom()).String(), snap.Supply.String())
	assert.Equal(t, "50", f.shares(t, alice).String())
	assert.True(t, f.shares(t, bob).IsPositive())

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.Settlements.WithLabelValues("mint")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Settlements.WithLabelValues("burn")))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.PendingMints))
}

func TestCycleRefundsMintsWhenBurnsTerminate(t *testing.T) {
	f := newFixture(t, operatorAddr)
	require.NoError(t, f.vault.DepositForMint(f.ctx, alice, sdk.NewCoins(sdk.NewInt64Coin("uatom", 100)), nil))
	require.NoError(t, f.op.RunCycle(f.ctx).Err())

	require.NoError(t, f.vault.DepositForBurn(f.ctx, alice, sdk.NewCoins(sdk.NewInt64Coin(f.vault.Denom(), 100))))
	require.NoError(t, f.vault.DepositForBurn(f.ctx, owner, sdk.NewCoins(sdk.NewInt64Coin(f.vault.Denom(), 1))))
	require.NoError(t, f.vault.DepositForMint(f.ctx, bob, sdk.NewCoins(sdk.NewInt64Coin("uatom", 10)), nil))

	res := f.op.RunCycle(f.ctx)
	require.NoError(t, res.Err())
	require.NotNil(t, res.Burn)
	assert.True(t, res.Burn.Terminated)
	assert.Nil(t, res.Mint)

	assert.Equal(t, vault.PhaseTerminated, f.vault.Phase())
	b, err := f.chain.Balance(f.ctx, bob, "uatom")
	require.NoError(t, err)
	assert.Equal(t, "1000", b.String())

	snap := f.store.snapshots[2]
	assert.True(t, snap.Terminated)
	assert.Empty(t, snap.PendingMints)
	assert.True(t, snap.Supply.IsZero())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Phase.WithLabelValues("terminated")))
}

func TestFailedStepsAreReportedAndCycleContinues(t *testing.T) {
	f := newFixture(t, bob)
	boom := errors.New("db down")
	f.store.counterErr = boom
	f.store.snapshotErr = boom

	require.NoError(t, f.vault.DepositForMint(f.ctx, alice, sdk.NewCoins(sdk.NewInt64Coin("uatom", 100)), nil))
	res := f.op.RunCycle(f.ctx)

	err := res.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, types.ErrUnauthorized)
	assert.Len(t, res.Errors, 3)
	assert.Equal(t, 1, res.Number)
	assert.Nil(t, res.Mint)

	_, pending := f.vault.PendingMint(alice)
	assert.True(t, pending)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CycleFailures.WithLabelValues("cycle_counter")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CycleFailures.WithLabelValues("process_mints")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CycleFailures.WithLabelValues("save_snapshot")))
}

func TestRunLoopStopsOnCancel(t *testing.T) {
	f := newFixture(t, operatorAddr)
	ctx, cancel := context.WithCancel(f.ctx)

	done := make(chan struct{})
	go func() {
		f.op.RunLoop(ctx, time.Hour)
		close(done)
	}()

	require.Eventually(t, func() bool { return f.store.cycleCount() == 1 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunLoop did not return after cancellation")
	}
}
