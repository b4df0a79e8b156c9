package account

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/aristath/tradeguard/internal/domain"
	"github.com/aristath/tradeguard/internal/metrics"
	"github.com/aristath/tradeguard/internal/utils"
	"github.com/rs/zerolog"
)

// Monitor tracks account value and cash-account mode.
// It is the only component that talks to the broker.
type Monitor struct {
	broker  domain.BrokerClient
	db      *database.DB
	repo    *Repository
	cfg     Config
	clock   domain.Clock
	metrics *metrics.Collector
	locks   *utils.KeyedMutex

	mu    sync.RWMutex
	cache map[string]AccountState

	log zerolog.Logger
}

// NewMonitor creates an account monitor. Returns a ConfigurationError for invalid config.
func NewMonitor(
	broker domain.BrokerClient,
	db *database.DB,
	repo *Repository,
	cfg Config,
	clock domain.Clock,
	collector *metrics.Collector,
	log zerolog.Logger,
) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if broker == nil {
		return nil, domain.NewConfigurationError("account.broker", "broker client is required")
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}

	return &Monitor{
		broker:  broker,
		db:      db,
		repo:    repo,
		cfg:     cfg,
		clock:   clock,
		metrics: collector,
		locks:   utils.NewKeyedMutex(),
		cache:   make(map[string]AccountState),
		log:     log.With().Str("service", "account_monitor").Logger(),
	}, nil
}

// CheckAccountBalance returns the account's state, served from cache within the TTL.
// When the broker is unreachable the last known state is returned with Stale set;
// with no known state a DataUnavailableError is returned.
func (m *Monitor) CheckAccountBalance(ctx context.Context, accountID string) (AccountState, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return AccountState{}, domain.NewValidationError("account_id", "account id cannot be empty")
	}

	if state, ok := m.cached(accountID); ok {
		return state, nil
	}

	unlock := m.locks.Lock(accountID)
	defer unlock()

	// Another caller may have refreshed while we waited for the lock
	if state, ok := m.cached(accountID); ok {
		return state, nil
	}

	state, err := m.fetch(ctx, accountID)
	if err != nil {
		return m.fallback(ctx, accountID, err)
	}
	return state, nil
}

// IsCashAccountMode reports whether cash-account rules apply to the account
func (m *Monitor) IsCashAccountMode(ctx context.Context, accountID string) (bool, error) {
	state, err := m.CheckAccountBalance(ctx, accountID)
	if err != nil {
		return false, err
	}
	return state.IsCashAccountMode, nil
}

// Refresh fetches the account from the broker regardless of the cache TTL.
// Unlike CheckAccountBalance it does not fall back to stale state.
func (m *Monitor) Refresh(ctx context.Context, accountID string) (AccountState, error) {
	unlock := m.locks.Lock(accountID)
	defer unlock()

	state, err := m.fetch(ctx, accountID)
	if err != nil {
		return AccountState{}, domain.NewDataUnavailableError("broker", err)
	}
	return state, nil
}

// GetPosition returns the broker's position in symbol, or nil when none is held
func (m *Monitor) GetPosition(ctx context.Context, accountID, symbol string) (*domain.BrokerPosition, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.BrokerTimeout)
	defer cancel()

	positions, err := m.broker.GetPositions(callCtx, accountID)
	if err != nil {
		m.metrics.RecordBrokerFailure("positions")
		m.log.Warn().Err(err).Str("account_id", accountID).Msg("Failed to fetch positions")
		return nil, domain.NewDataUnavailableError("broker", err)
	}

	symbol = domain.NormalizeSymbol(symbol)
	for i := range positions {
		if domain.NormalizeSymbol(positions[i].Symbol) == symbol && positions[i].Quantity > 0 {
			position := positions[i]
			return &position, nil
		}
	}
	return nil, nil
}

// KnownAccounts returns every account that has been checked, cached or persisted
func (m *Monitor) KnownAccounts(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)

	m.mu.RLock()
	for id := range m.cache {
		seen[id] = true
	}
	m.mu.RUnlock()

	persisted, err := m.repo.ListAccountIDs(ctx, m.db.Conn())
	if err != nil {
		return nil, err
	}
	for _, id := range persisted {
		seen[id] = true
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// cached returns a cache entry that is still within the TTL
func (m *Monitor) cached(accountID string) (AccountState, bool) {
	m.mu.RLock()
	state, ok := m.cache[accountID]
	m.mu.RUnlock()

	if !ok || state.Stale {
		return AccountState{}, false
	}
	if m.clock.Now().Sub(state.LastCheckedAt) >= m.cfg.CacheTTL {
		return AccountState{}, false
	}
	return state, true
}

// fetch asks the broker for a fresh summary and stores it. Caller holds the account lock.
func (m *Monitor) fetch(ctx context.Context, accountID string) (AccountState, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.BrokerTimeout)
	defer cancel()

	summary, err := m.broker.GetAccountSummary(callCtx, accountID)
	if err != nil {
		m.metrics.RecordBrokerFailure("account_summary")
		return AccountState{}, fmt.Errorf("failed to get account summary: %w", err)
	}
	if summary == nil {
		m.metrics.RecordBrokerFailure("account_summary")
		return AccountState{}, fmt.Errorf("broker returned no summary for %s", accountID)
	}

	state := NewAccountState(accountID, summary.NetLiquidation, m.cfg.Threshold, m.clock.Now())

	previous, err := m.previous(ctx, accountID)
	if err != nil {
		m.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to load previous account state")
	}
	if previous != nil && previous.IsCashAccountMode != state.IsCashAccountMode {
		m.log.Warn().
			Str("account_id", accountID).
			Str("from", previous.Mode()).
			Str("to", state.Mode()).
			Str("balance", state.Balance.String()).
			Str("threshold", state.Threshold.String()).
			Msg("Cash-account mode changed")
	}

	err = m.db.WithTx(ctx, func(tx *sql.Tx) error {
		return m.repo.Upsert(ctx, tx, state)
	})
	if err != nil {
		// The fresh value is still served from memory
		m.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to persist account state")
	}

	m.store(state)
	m.metrics.SetAccountState(accountID, state.Balance.InexactFloat64(), state.IsCashAccountMode)
	return state, nil
}

// fallback serves the last known state, marked stale
func (m *Monitor) fallback(ctx context.Context, accountID string, cause error) (AccountState, error) {
	m.mu.RLock()
	state, ok := m.cache[accountID]
	m.mu.RUnlock()

	if !ok {
		persisted, err := m.repo.Get(ctx, m.db.Conn(), accountID)
		if err != nil {
			m.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to load persisted account state")
		}
		if persisted == nil {
			m.log.Error().Err(cause).Str("account_id", accountID).Msg("Broker unavailable and no cached account state")
			return AccountState{}, domain.NewDataUnavailableError("broker", cause)
		}
		state = *persisted
	}

	state.Stale = true
	m.store(state)

	m.log.Warn().
		Err(cause).
		Str("account_id", accountID).
		Time("last_checked_at", state.LastCheckedAt).
		Msg("Broker unavailable, serving stale account state")
	return state, nil
}

func (m *Monitor) previous(ctx context.Context, accountID string) (*AccountState, error) {
	m.mu.RLock()
	state, ok := m.cache[accountID]
	m.mu.RUnlock()
	if ok {
		return &state, nil
	}
	return m.repo.Get(ctx, m.db.Conn(), accountID)
}

func (m *Monitor) store(state AccountState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[state.AccountID] = state
}
