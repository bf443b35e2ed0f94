package circuitbreaker

import (
	"context"
	"log/slog"
	"time"
)

// Watchdog sweeps the registry and expires HALF_OPEN trials whose caller
// died without reporting an outcome. Without it a wedged trial slot would
// keep every other caller rejected forever; with it the breaker falls back
// to OPEN and probes again after the recovery timeout.
type Watchdog struct {
	registry *Registry
	maxAge   time.Duration
	interval time.Duration
	logger   *slog.Logger
}

// NewWatchdog creates a watchdog that expires trials older than maxAge,
// checking every interval.
func NewWatchdog(registry *Registry, maxAge, interval time.Duration, logger *slog.Logger) *Watchdog {
	return &Watchdog{
		registry: registry,
		maxAge:   maxAge,
		interval: interval,
		logger:   logger,
	}
}

// Run sweeps until ctx is cancelled. Call it in its own goroutine.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Trial watchdog stopped")
			return

		case <-ticker.C:
			for _, cb := range w.registry.Breakers() {
				if cb.ExpireTrial(w.maxAge) {
					w.logger.Warn("Expired abandoned trial call",
						slog.String("breaker", cb.Name()),
						slog.Duration("max_age", w.maxAge))
				}
			}
		}
	}
}
