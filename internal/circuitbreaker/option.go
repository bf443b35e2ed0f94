package circuitbreaker

import "time"

// Option configures a Breaker at construction time.
type Option func(*Breaker)

// WithFailureThreshold sets how many consecutive classified failures open
// the circuit from CLOSED. Default is 5.
func WithFailureThreshold(n int) Option {
	return func(cb *Breaker) {
		if n > 0 {
			cb.failureThreshold = n
		}
	}
}

// WithRecoveryTimeout sets how long the circuit stays OPEN before the next
// Allow may admit a trial call. Default is 60 seconds.
func WithRecoveryTimeout(d time.Duration) Option {
	return func(cb *Breaker) {
		if d > 0 {
			cb.recoveryTimeout = d
		}
	}
}

// WithClassifier replaces the default infrastructure-failure set.
func WithClassifier(c Classifier) Option {
	return func(cb *Breaker) {
		if len(c) > 0 {
			cb.classifier = c
		}
	}
}

// WithClock sets the time source. Useful for testing recovery windows.
func WithClock(clock Clock) Option {
	return func(cb *Breaker) {
		if clock != nil {
			cb.clock = clock
		}
	}
}

// OnStateChange sets a hook fired after each state transition, outside the
// breaker's critical section.
func OnStateChange(fn OnStateChangeFunc) Option {
	return func(cb *Breaker) {
		cb.onStateChange = fn
	}
}

// OnCall sets a hook fired after each admitted call reports its outcome.
func OnCall(fn OnCallFunc) Option {
	return func(cb *Breaker) {
		cb.onCall = fn
	}
}

// OnReject sets a hook fired when a call is rejected.
func OnReject(fn OnRejectFunc) Option {
	return func(cb *Breaker) {
		cb.onReject = fn
	}
}
