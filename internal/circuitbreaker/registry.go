package circuitbreaker

import "sync"

// Stats is the observable state of one breaker as of the read instant.
type Stats struct {
	Status       string `json:"status"`
	FailureCount int    `json:"failure_count"`
}

// Registry owns one long-lived breaker per external dependency name.
// Breakers live for the process lifetime and are never destroyed; state is
// process-local, so multiple replicas keep independent breaker state.
type Registry struct {
	mutex    sync.RWMutex
	breakers map[string]*Breaker
	defaults []Option
}

// NewRegistry creates a registry whose defaults are applied to every breaker
// it constructs, before any per-call options.
func NewRegistry(defaults ...Option) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		defaults: defaults,
	}
}

// GetOrCreate returns the breaker registered under name, constructing it in
// the CLOSED state on first use. The same instance is returned for a given
// name across the process lifetime; opts only apply on first creation.
func (r *Registry) GetOrCreate(name string, opts ...Option) *Breaker {
	r.mutex.RLock()
	cb, exists := r.breakers[name]
	r.mutex.RUnlock()

	if exists {
		return cb
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if cb, exists = r.breakers[name]; exists {
		return cb
	}

	cb = New(name, append(append([]Option{}, r.defaults...), opts...)...)
	r.breakers[name] = cb
	return cb
}

// Get returns the breaker registered under name, if any.
func (r *Registry) Get(name string) (*Breaker, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	cb, exists := r.breakers[name]
	return cb, exists
}

// Breakers returns the currently registered breakers.
func (r *Registry) Breakers() []*Breaker {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]*Breaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		out = append(out, cb)
	}
	return out
}

// Stats returns a snapshot of every registered breaker. The snapshot is
// eventually consistent with in-flight transitions and never blocks the call
// path beyond each breaker's own mutex.
func (r *Registry) Stats() map[string]Stats {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := make(map[string]Stats, len(r.breakers))
	for name, cb := range r.breakers {
		stats[name] = cb.Snapshot()
	}
	return stats
}

// ResetAll forces every registered breaker back to CLOSED in place.
// Administrative and testing use only.
func (r *Registry) ResetAll() {
	for _, cb := range r.Breakers() {
		cb.Reset()
	}
}
