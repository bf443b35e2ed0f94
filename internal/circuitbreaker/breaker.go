package circuitbreaker

import (
	"sync"
	"time"
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Rejecting calls
	StateHalfOpen              // Probing with a single trial call
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Clock abstracts time for deterministic recovery-window tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// OnStateChangeFunc is called after the breaker transitions between states.
type OnStateChangeFunc func(name string, from, to State)

// OnCallFunc is called after an admitted call reports its outcome.
type OnCallFunc func(name string, err error)

// OnRejectFunc is called when a call is rejected because the circuit is open
// or the half-open trial slot is taken.
type OnRejectFunc func(name string)

const (
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 60 * time.Second
)

// Breaker is a per-dependency circuit breaker. Safe for concurrent use.
//
// While HALF_OPEN at most one caller holds the trial slot; everyone else is
// rejected until the trial reports an outcome. This is what keeps a herd of
// concurrent conversations from hammering a dependency that is still coming
// back up.
type Breaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	classifier       Classifier
	clock            Clock

	onStateChange OnStateChangeFunc
	onCall        OnCallFunc
	onReject      OnRejectFunc

	mutex         sync.Mutex
	state         State
	failures      int
	lastFailure   time.Time
	trialInFlight bool
	trialStarted  time.Time
}

// New creates a breaker in the CLOSED state.
func New(name string, opts ...Option) *Breaker {
	cb := &Breaker{
		name:             name,
		failureThreshold: DefaultFailureThreshold,
		recoveryTimeout:  DefaultRecoveryTimeout,
		classifier:       DefaultClasses(),
		clock:            realClock{},
		state:            StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Allow decides whether a call may proceed.
//
// CLOSED always admits. OPEN admits only once the recovery timeout has
// elapsed since the last failure; that caller atomically becomes the
// HALF_OPEN trial. HALF_OPEN admits only while no trial is in flight.
// The decision and the trial-slot claim happen in one critical section, so
// two racing callers can never both be admitted.
func (cb *Breaker) Allow() bool {
	cb.mutex.Lock()

	var allowed bool
	var change *transition

	switch cb.state {
	case StateClosed:
		allowed = true
	case StateOpen:
		if cb.clock.Now().Sub(cb.lastFailure) >= cb.recoveryTimeout {
			change = cb.setState(StateHalfOpen)
			cb.claimTrial()
			allowed = true
		}
	case StateHalfOpen:
		if !cb.trialInFlight {
			cb.claimTrial()
			allowed = true
		}
	}

	cb.mutex.Unlock()

	cb.notifyStateChange(change)
	if !allowed {
		cb.notifyReject()
	}
	return allowed
}

// RecordSuccess reports a successful call.
//
// A successful HALF_OPEN trial closes the circuit. A success while CLOSED
// resets the failure count. A success landing while OPEN is a stale result
// from a call admitted before the circuit tripped and is ignored.
func (cb *Breaker) RecordSuccess() {
	cb.mutex.Lock()

	var change *transition

	switch cb.state {
	case StateHalfOpen:
		change = cb.setState(StateClosed)
		cb.failures = 0
		cb.trialInFlight = false
	case StateClosed:
		cb.failures = 0
	}

	cb.mutex.Unlock()

	cb.notifyStateChange(change)
	cb.notifyCall(nil)
}

// RecordFailure reports a failed call.
//
// Errors outside the breaker's classified set never affect health: status and
// failure count are untouched. The trial slot is still released so the next
// Allow can admit a fresh trial. A classified failure increments the count,
// refreshes the failure time and releases the trial slot; it reopens a
// HALF_OPEN circuit unconditionally and opens a CLOSED one at the threshold.
func (cb *Breaker) RecordFailure(err error) {
	if _, classified := cb.classifier.Classify(err); !classified {
		cb.releaseTrial()
		cb.notifyCall(err)
		return
	}

	cb.mutex.Lock()

	var change *transition

	cb.failures++
	cb.lastFailure = cb.clock.Now()
	cb.trialInFlight = false

	switch {
	case cb.state == StateHalfOpen:
		change = cb.setState(StateOpen)
	case cb.state == StateClosed && cb.failures >= cb.failureThreshold:
		change = cb.setState(StateOpen)
	}

	cb.mutex.Unlock()

	cb.notifyStateChange(change)
	cb.notifyCall(err)
}

// Reset forces the breaker back to its initial CLOSED state.
// Administrative and testing use only.
func (cb *Breaker) Reset() {
	cb.mutex.Lock()
	change := cb.setState(StateClosed)
	cb.failures = 0
	cb.lastFailure = time.Time{}
	cb.trialInFlight = false
	cb.mutex.Unlock()

	cb.notifyStateChange(change)
}

// ExpireTrial reopens the circuit if a HALF_OPEN trial has been in flight
// longer than maxAge, exactly as a failed trial would. Returns true if a
// trial was expired. Used by the watchdog to recover a slot abandoned by a
// caller that died without reporting.
func (cb *Breaker) ExpireTrial(maxAge time.Duration) bool {
	cb.mutex.Lock()

	if cb.state != StateHalfOpen || !cb.trialInFlight ||
		cb.clock.Now().Sub(cb.trialStarted) < maxAge {
		cb.mutex.Unlock()
		return false
	}

	cb.failures++
	cb.lastFailure = cb.clock.Now()
	cb.trialInFlight = false
	change := cb.setState(StateOpen)

	cb.mutex.Unlock()

	cb.notifyStateChange(change)
	return true
}

// Name returns the breaker's registry key.
func (cb *Breaker) Name() string {
	return cb.name
}

// State returns the current state.
func (cb *Breaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// FailureCount returns the current consecutive classified-failure count.
func (cb *Breaker) FailureCount() int {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.failures
}

// Snapshot returns the breaker's observable state as of the read instant.
func (cb *Breaker) Snapshot() Stats {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return Stats{
		Status:       cb.state.String(),
		FailureCount: cb.failures,
	}
}

type transition struct {
	from, to State
}

// setState must be called with the mutex held. The hook fires later, outside
// the critical section, via notifyStateChange.
func (cb *Breaker) setState(to State) *transition {
	if cb.state == to {
		return nil
	}
	from := cb.state
	cb.state = to
	return &transition{from: from, to: to}
}

// claimTrial must be called with the mutex held.
func (cb *Breaker) claimTrial() {
	cb.trialInFlight = true
	cb.trialStarted = cb.clock.Now()
}

// releaseTrial frees the trial slot without touching health. Used when an
// admitted call ends without a classifiable outcome (application error,
// panic) so the slot cannot leak.
func (cb *Breaker) releaseTrial() {
	cb.mutex.Lock()
	if cb.state == StateHalfOpen {
		cb.trialInFlight = false
	}
	cb.mutex.Unlock()
}

func (cb *Breaker) notifyStateChange(change *transition) {
	if change == nil || cb.onStateChange == nil {
		return
	}
	cb.onStateChange(cb.name, change.from, change.to)
}

func (cb *Breaker) notifyCall(err error) {
	if cb.onCall == nil {
		return
	}
	cb.onCall(cb.name, err)
}

func (cb *Breaker) notifyReject() {
	if cb.onReject == nil {
		return
	}
	cb.onReject(cb.name)
}
