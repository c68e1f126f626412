package stats

import "github.com/stretchr/testify/mock"

// MockStatsUpdater stands in for the expvar-backed updater so tests can pin
// exactly which counters (OnlineUsers, FailedLogins, AccountLockouts, ...) a
// code path moves.
type MockStatsUpdater struct {
	mock.Mock
}

func (m *MockStatsUpdater) Incr(name string) {
	m.Called(name)
}

func (m *MockStatsUpdater) Decr(name string) {
	m.Called(name)
}

func (m *MockStatsUpdater) RegisterMetric(name string) {
	m.Called(name)
}

func (m *MockStatsUpdater) Run() {
	m.Called()
}

func (m *MockStatsUpdater) Stop() {
	m.Called()
}
