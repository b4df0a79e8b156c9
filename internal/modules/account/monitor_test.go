package account

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/aristath/tradeguard/internal/domain"
	testingpkg "github.com/aristath/tradeguard/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type monitorFixture struct {
	monitor *Monitor
	broker  *testingpkg.MockBrokerClient
	clock   *testingpkg.ManualClock
	db      *database.DB
	repo    *Repository
}

func newMonitorFixture(t *testing.T) *monitorFixture {
	t.Helper()

	db, cleanup := testingpkg.NewTestDB(t)
	t.Cleanup(cleanup)

	broker := testingpkg.NewMockBrokerClient()
	clock := testingpkg.NewManualClock(time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC))
	repo := NewRepository(zerolog.Nop())

	cfg := DefaultConfig()
	cfg.BrokerTimeout = 100 * time.Millisecond

	monitor, err := NewMonitor(broker, db, repo, cfg, clock, nil, zerolog.Nop())
	require.NoError(t, err)

	return &monitorFixture{monitor: monitor, broker: broker, clock: clock, db: db, repo: repo}
}

func TestNewMonitor_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Threshold = decimal.NewFromInt(-1)

	_, err := NewMonitor(testingpkg.NewMockBrokerClient(), nil, NewRepository(zerolog.Nop()), cfg, nil, nil, zerolog.Nop())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestCheckAccountBalance_CashAccountMode(t *testing.T) {
	tests := []struct {
		name     string
		balance  string
		cashMode bool
	}{
		{"below threshold", "20000", true},
		{"at threshold", "25000", false},
		{"above threshold", "50000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMonitorFixture(t)
			f.broker.SetSummary(testingpkg.NewSummaryFixture("ACC-1", tt.balance))

			state, err := f.monitor.CheckAccountBalance(context.Background(), "ACC-1")
			require.NoError(t, err)
			assert.Equal(t, tt.cashMode, state.IsCashAccountMode)
			assert.Equal(t, state.Balance.LessThan(state.Threshold), state.IsCashAccountMode)
			assert.False(t, state.Stale)
		})
	}
}

func TestCheckAccountBalance_ServesCacheWithinTTL(t *testing.T) {
	f := newMonitorFixture(t)
	f.broker.SetSummary(testingpkg.NewSummaryFixture("ACC-1", "20000"))
	ctx := context.Background()

	_, err := f.monitor.CheckAccountBalance(ctx, "ACC-1")
	require.NoError(t, err)

	f.broker.SetSummary(testingpkg.NewSummaryFixture("ACC-1", "30000"))
	f.clock.Advance(4 * time.Minute)

	state, err := f.monitor.CheckAccountBalance(ctx, "ACC-1")
	require.NoError(t, err)
	assert.True(t, state.IsCashAccountMode, "cached value should be served")
	assert.Equal(t, 1, f.broker.Calls())

	f.clock.Advance(2 * time.Minute)
	state, err = f.monitor.CheckAccountBalance(ctx, "ACC-1")
	require.NoError(t, err)
	assert.False(t, state.IsCashAccountMode, "expired entry should be refreshed")
	assert.Equal(t, 2, f.broker.Calls())
}

func TestCheckAccountBalance_PersistsState(t *testing.T) {
	f := newMonitorFixture(t)
	f.broker.SetSummary(testingpkg.NewSummaryFixture("ACC-1", "12345.67"))

	_, err := f.monitor.CheckAccountBalance(context.Background(), "ACC-1")
	require.NoError(t, err)

	persisted, err := f.repo.Get(context.Background(), f.db.Conn(), "ACC-1")
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, "12345.67", persisted.Balance.String())
	assert.True(t, persisted.IsCashAccountMode)
	assert.Equal(t, f.clock.Now().Unix(), persisted.LastCheckedAt.Unix())
}

func TestCheckAccountBalance_BrokerFailureServesStaleCache(t *testing.T) {
	f := newMonitorFixture(t)
	f.broker.SetSummary(testingpkg.NewSummaryFixture("ACC-1", "20000"))
	ctx := context.Background()

	_, err := f.monitor.CheckAccountBalance(ctx, "ACC-1")
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	f.broker.SetError(errors.New("connection refused"))

	state, err := f.monitor.CheckAccountBalance(ctx, "ACC-1")
	require.NoError(t, err)
	assert.True(t, state.Stale)
	assert.True(t, state.IsCashAccountMode)
}

func TestCheckAccountBalance_TimeoutServesStaleCache(t *testing.T) {
	f := newMonitorFixture(t)
	f.broker.SetSummary(testingpkg.NewSummaryFixture("ACC-1", "40000"))
	ctx := context.Background()

	_, err := f.monitor.CheckAccountBalance(ctx, "ACC-1")
	require.NoError(t, err)

	f.clock.Advance(10 * time.Minute)
	f.broker.SetDelay(time.Second)

	start := time.Now()
	state, err := f.monitor.CheckAccountBalance(ctx, "ACC-1")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 900*time.Millisecond, "broker call must be bounded")
	assert.True(t, state.Stale)
	assert.False(t, state.IsCashAccountMode)
}

func TestCheckAccountBalance_FallsBackToPersistedState(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()

	stored := NewAccountState("ACC-1", decimal.NewFromInt(10000), decimal.NewFromInt(25000), f.clock.Now().Add(-time.Hour))
	require.NoError(t, f.repo.Upsert(ctx, f.db.Conn(), stored))

	f.broker.SetError(errors.New("down"))

	state, err := f.monitor.CheckAccountBalance(ctx, "ACC-1")
	require.NoError(t, err)
	assert.True(t, state.Stale)
	assert.True(t, state.IsCashAccountMode)
	assert.Equal(t, "10000", state.Balance.String())
}

func TestCheckAccountBalance_NoStateIsDataUnavailable(t *testing.T) {
	f := newMonitorFixture(t)
	f.broker.SetError(errors.New("down"))

	_, err := f.monitor.CheckAccountBalance(context.Background(), "ACC-404")
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestCheckAccountBalance_EmptyAccountID(t *testing.T) {
	f := newMonitorFixture(t)
	_, err := f.monitor.CheckAccountBalance(context.Background(), " ")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCheckAccountBalance_ConcurrentCallersFetchOnce(t *testing.T) {
	f := newMonitorFixture(t)
	f.broker.SetSummary(testingpkg.NewSummaryFixture("ACC-1", "20000"))
	f.broker.SetDelay(20 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.monitor.CheckAccountBalance(context.Background(), "ACC-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.broker.Calls())
}

func TestRefresh_BypassesCacheAndReportsFailure(t *testing.T) {
	f := newMonitorFixture(t)
	f.broker.SetSummary(testingpkg.NewSummaryFixture("ACC-1", "20000"))
	ctx := context.Background()

	_, err := f.monitor.CheckAccountBalance(ctx, "ACC-1")
	require.NoError(t, err)

	f.broker.SetSummary(testingpkg.NewSummaryFixture("ACC-1", "30000"))
	state, err := f.monitor.Refresh(ctx, "ACC-1")
	require.NoError(t, err)
	assert.False(t, state.IsCashAccountMode)

	f.broker.SetError(errors.New("down"))
	_, err = f.monitor.Refresh(ctx, "ACC-1")
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestIsCashAccountMode(t *testing.T) {
	f := newMonitorFixture(t)
	f.broker.SetSummary(testingpkg.NewSummaryFixture("ACC-1", "1000"))

	cash, err := f.monitor.IsCashAccountMode(context.Background(), "ACC-1")
	require.NoError(t, err)
	assert.True(t, cash)
}

func TestGetPosition(t *testing.T) {
	f := newMonitorFixture(t)
	f.broker.SetPositions("ACC-1", []domain.BrokerPosition{
		{Symbol: "AAPL", Quantity: 12, AvgPrice: 100},
		{Symbol: "MSFT", Quantity: 0},
	})
	ctx := context.Background()

	pos, err := f.monitor.GetPosition(ctx, "ACC-1", "aapl")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, 12.0, pos.Quantity)

	pos, err = f.monitor.GetPosition(ctx, "ACC-1", "MSFT")
	require.NoError(t, err)
	assert.Nil(t, pos)

	f.broker.SetError(errors.New("down"))
	_, err = f.monitor.GetPosition(ctx, "ACC-1", "AAPL")
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestKnownAccounts(t *testing.T) {
	f := newMonitorFixture(t)
	ctx := context.Background()

	require.NoError(t, f.repo.Upsert(ctx, f.db.Conn(),
		NewAccountState("ACC-B", decimal.NewFromInt(1), decimal.NewFromInt(2), f.clock.Now())))
	f.broker.SetSummary(testingpkg.NewSummaryFixture("ACC-A", "100"))
	_, err := f.monitor.CheckAccountBalance(ctx, "ACC-A")
	require.NoError(t, err)

	ids, err := f.monitor.KnownAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ACC-A", "ACC-B"}, ids)
}
