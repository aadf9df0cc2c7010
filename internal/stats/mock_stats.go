package stats

import "github.com/stretchr/testify/mock"

// MockStatsUpdater records counter changes as mock calls. Tests set an
// expectation for every metric the code under test may touch.
type MockStatsUpdater struct {
	mock.Mock
}

var _ StatsProvider = (*MockStatsUpdater)(nil)

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

// ExpectIncr allows n increments of the named counter.
func (m *MockStatsUpdater) ExpectIncr(name string, n int) *mock.Call {
	return m.On("Incr", name).Times(n)
}
