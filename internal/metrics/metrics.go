package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mutex     sync.RWMutex
	allowed   map[string]int64
	rejected  map[string]int64
	successes map[string]int64
	failures  map[string]int64
	states    map[string]string
	changedAt map[string]time.Time
	startTime time.Time
}

type Snapshot struct {
	TotalCalls    int64                     `json:"total_calls"`
	TotalRejected int64                     `json:"total_rejected"`
	Uptime        time.Duration             `json:"uptime"`
	Breakers      map[string]BreakerMetrics `json:"breakers"`
}

type BreakerMetrics struct {
	Allowed        int64     `json:"allowed"`
	Rejected       int64     `json:"rejected"`
	Successes      int64     `json:"successes"`
	Failures       int64     `json:"failures"`
	State          string    `json:"state,omitempty"`
	LastTransition time.Time `json:"last_transition,omitzero"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		allowed:   make(map[string]int64),
		rejected:  make(map[string]int64),
		successes: make(map[string]int64),
		failures:  make(map[string]int64),
		states:    make(map[string]string),
		changedAt: make(map[string]time.Time),
		startTime: time.Now(),
	}
}

func (m *Metrics) RecordOutcome(breaker string, failed bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.allowed[breaker]++
	if failed {
		m.failures[breaker]++
	} else {
		m.successes[breaker]++
	}
}

func (m *Metrics) RecordRejection(breaker string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rejected[breaker]++
}

func (m *Metrics) RecordStateChange(breaker, state string, at time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.states[breaker] = state
	m.changedAt[breaker] = at
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:   time.Since(m.startTime),
		Breakers: make(map[string]BreakerMetrics),
	}

	// Collect all breaker names seen on any path
	names := make(map[string]bool)
	for name := range m.allowed {
		names[name] = true
	}
	for name := range m.rejected {
		names[name] = true
	}
	for name := range m.states {
		names[name] = true
	}

	for name := range names {
		snap.TotalCalls += m.allowed[name]
		snap.TotalRejected += m.rejected[name]

		snap.Breakers[name] = BreakerMetrics{
			Allowed:        m.allowed[name],
			Rejected:       m.rejected[name],
			Successes:      m.successes[name],
			Failures:       m.failures[name],
			State:          m.states[name],
			LastTransition: m.changedAt[name],
		}
	}

	return snap
}
