package circuitbreaker

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

// Class names for the default infrastructure-failure set.
const (
	ClassTimeout       = "timeout"
	ClassConnect       = "connect-error"
	ClassReset         = "connection-reset"
	ClassRead          = "read-error"
	ClassWrite         = "write-error"
	ClassPoolExhausted = "pool-exhausted"
)

// ErrPoolExhausted is the sentinel that dependency clients wrap when a
// connection pool has no free slot, so the breaker can count it.
var ErrPoolExhausted = errors.New("connection pool exhausted")

// Class is a named predicate over errors. Only errors matching one of a
// breaker's classes count against its health; everything else is an
// application error and passes through the breaker untouched.
type Class struct {
	Name    string
	Matches func(error) bool
}

// Classifier is the fixed, per-breaker set of infrastructure-failure classes.
// It is configured once at construction and never mutated. Keep it small and
// explicit; a catch-all defeats the point of classification.
type Classifier []Class

// Classify returns the name of the first matching class.
func (c Classifier) Classify(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	for _, class := range c {
		if class.Matches(err) {
			return class.Name, true
		}
	}
	return "", false
}

// DefaultClasses covers the infrastructure failures seen when calling the
// clinic's external dependencies: timeouts, connect failures, resets, read
// and write errors, and pool exhaustion. Caller-side deadline expiry counts
// as a timeout, so an abandoned call still reports against the breaker.
func DefaultClasses() Classifier {
	return Classifier{
		{Name: ClassTimeout, Matches: isTimeout},
		{Name: ClassConnect, Matches: isConnectError},
		{Name: ClassReset, Matches: isConnectionReset},
		{Name: ClassRead, Matches: isReadError},
		{Name: ClassWrite, Matches: isWriteError},
		{Name: ClassPoolExhausted, Matches: isPoolExhausted},
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isConnectError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func isConnectionReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed)
}

func isReadError(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "read"
}

func isWriteError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "write"
}

func isPoolExhausted(err error) bool {
	return errors.Is(err, ErrPoolExhausted)
}
