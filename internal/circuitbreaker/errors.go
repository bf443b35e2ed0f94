package circuitbreaker

import (
	"errors"
	"fmt"
)

// ErrOpen is the sentinel matched by errors.Is for any open-circuit
// rejection, regardless of which breaker produced it.
var ErrOpen = errors.New("circuit open")

// OpenError is returned when a call is rejected without being attempted,
// either because the circuit is open or because the half-open trial slot is
// already taken. It never originates from the wrapped call itself.
type OpenError struct {
	Name string
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open", e.Name)
}

func (e *OpenError) Is(target error) bool {
	return target == ErrOpen
}

// IsOpen reports whether err is an open-circuit rejection. Callers treat it
// as "dependency unavailable" and apply their own fallback.
func IsOpen(err error) bool {
	return errors.Is(err, ErrOpen)
}
