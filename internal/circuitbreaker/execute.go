package circuitbreaker

import "context"

// Func is the signature of a guarded operation.
type Func func(ctx context.Context) error

// Execute runs fn under cb's protection.
//
// A rejected call fails immediately with *OpenError carrying the breaker
// name; fn is never invoked and the failure count is untouched. An admitted
// call reports exactly one outcome on every exit path: RecordSuccess on nil,
// RecordFailure otherwise (the original error is returned unchanged, never
// suppressed). If fn panics before an outcome is reported, the deferred
// guard releases the trial slot so it cannot leak, and the panic continues.
func Execute(ctx context.Context, cb *Breaker, fn Func) error {
	if !cb.Allow() {
		return &OpenError{Name: cb.name}
	}

	reported := false
	defer func() {
		if !reported {
			cb.releaseTrial()
		}
	}()

	err := fn(ctx)
	reported = true

	if err != nil {
		cb.RecordFailure(err)
		return err
	}

	cb.RecordSuccess()
	return nil
}

// Run executes fn and returns its result with breaker protection.
// Convenience wrapper for operations that return a value.
func Run[T any](ctx context.Context, cb *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Execute(ctx, cb, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	return result, err
}

// Guard wraps fn so every invocation goes through Execute. The returned
// function has the same signature as fn.
func Guard(cb *Breaker, fn Func) Func {
	return func(ctx context.Context) error {
		return Execute(ctx, cb, fn)
	}
}
