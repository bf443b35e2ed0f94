// Package circuitbreaker guards calls to failure-prone external dependencies.
//
// Each named breaker is a small state machine:
//
//   - CLOSED: Normal operation, calls pass through
//   - OPEN: Dependency failing, calls rejected immediately
//   - HALF_OPEN: Testing recovery with a single trial call
//
// Only classified infrastructure failures (timeouts, connect errors, resets,
// read/write errors, pool exhaustion) count against a breaker; application
// errors pass through without touching its health. While HALF_OPEN exactly
// one concurrent caller holds the trial slot, so a recovering dependency is
// probed by one call instead of a thundering herd.
//
// Usage:
//
//	registry := circuitbreaker.NewRegistry(
//	    circuitbreaker.WithFailureThreshold(5),
//	    circuitbreaker.WithRecoveryTimeout(60*time.Second),
//	)
//	cb := registry.GetOrCreate("evolution_api")
//
//	err := circuitbreaker.Execute(ctx, cb, func(ctx context.Context) error {
//	    return gateway.SendMessage(ctx, msg)
//	})
//	if circuitbreaker.IsOpen(err) {
//	    // Dependency unavailable, apply fallback
//	}
//
// Breaker state is process-local; replicas keep independent state.
package circuitbreaker
