// Package metrics provides cumulative observability counters for the
// circuit breakers guarding external dependencies.
//
// It uses a channel-based event pipeline to collect, per breaker:
//   - Allowed call outcomes (successes and failures)
//   - Rejections while the circuit was open
//   - State transitions with their timestamps
//
// The collector runs in a dedicated goroutine; Emit never blocks, dropping
// events if the buffer is full, so observability can never slow down a
// breaker decision. The registry's own Stats snapshot remains the source of
// truth for current breaker state; this package adds history.
//
// Example usage:
//
//	collector := metrics.NewCollector(1024, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.BreakerEvent{
//		Type:      metrics.EventCallRejected,
//		Timestamp: time.Now(),
//		Breaker:   "evolution_api",
//	})
//
//	snapshot := collector.Snapshot()
//
// The JSON handler serves the snapshot for the ops endpoint, and the
// collector drains pending events on shutdown.
package metrics
