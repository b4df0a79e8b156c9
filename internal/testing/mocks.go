package testing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aristath/tradeguard/internal/domain"
)

// MockBrokerClient is a mock implementation of domain.BrokerClient for testing
type MockBrokerClient struct {
	mu        sync.RWMutex
	summaries map[string]*domain.AccountSummary
	positions map[string][]domain.BrokerPosition
	err       error
	delay     time.Duration
	calls     int
}

// NewMockBrokerClient creates a new mock broker client
func NewMockBrokerClient() *MockBrokerClient {
	return &MockBrokerClient{
		summaries: make(map[string]*domain.AccountSummary),
		positions: make(map[string][]domain.BrokerPosition),
	}
}

// SetSummary sets the account summary to return for an account
func (m *MockBrokerClient) SetSummary(summary domain.AccountSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[summary.AccountID] = &summary
}

// SetPositions sets the positions to return for an account
func (m *MockBrokerClient) SetPositions(accountID string, positions []domain.BrokerPosition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[accountID] = positions
}

// SetError sets the error to return
func (m *MockBrokerClient) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetDelay makes every call wait before answering, honouring ctx cancellation
func (m *MockBrokerClient) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Calls returns how many summary requests were made
func (m *MockBrokerClient) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// GetAccountSummary returns the configured summary
func (m *MockBrokerClient) GetAccountSummary(ctx context.Context, accountID string) (*domain.AccountSummary, error) {
	m.mu.Lock()
	m.calls++
	delay, err := m.delay, m.err
	summary := m.summaries[accountID]
	m.mu.Unlock()

	if err := wait(ctx, delay); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if summary == nil {
		return nil, errors.New("account not found")
	}
	result := *summary
	return &result, nil
}

// GetPositions returns the configured positions
func (m *MockBrokerClient) GetPositions(ctx context.Context, accountID string) ([]domain.BrokerPosition, error) {
	m.mu.RLock()
	delay, err := m.delay, m.err
	positions := append([]domain.BrokerPosition(nil), m.positions[accountID]...)
	m.mu.RUnlock()

	if err := wait(ctx, delay); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return positions, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// MockStrategy is a mock implementation of domain.Strategy for testing
type MockStrategy struct {
	mu          sync.RWMutex
	decision    domain.ExitDecision
	err         error
	override    float64
	hasOverride bool
	exitCalls   int
}

// NewMockStrategy creates a strategy that never exits and has no size override
func NewMockStrategy() *MockStrategy {
	return &MockStrategy{}
}

// SetExitDecision sets the decision returned by ShouldExit
func (m *MockStrategy) SetExitDecision(decision domain.ExitDecision) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decision = decision
}

// SetError sets the error returned by ShouldExit
func (m *MockStrategy) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetOverride sets the position size override percentage
func (m *MockStrategy) SetOverride(pct float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.override = pct
	m.hasOverride = true
}

// ExitCalls returns how many times ShouldExit was consulted
func (m *MockStrategy) ExitCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exitCalls
}

// ShouldExit returns the configured decision
func (m *MockStrategy) ShouldExit(_ context.Context, _ domain.BrokerPosition, _ domain.MarketData) (domain.ExitDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exitCalls++
	return m.decision, m.err
}

// PositionSizeOverride returns the configured override
func (m *MockStrategy) PositionSizeOverride(_ float64) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.override, m.hasOverride
}
