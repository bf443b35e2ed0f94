package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/clinicflow/circuitguard/config"
	"github.com/clinicflow/circuitguard/internal/circuitbreaker"
	"github.com/clinicflow/circuitguard/internal/handler"
	"github.com/clinicflow/circuitguard/internal/httpserver"
	"github.com/clinicflow/circuitguard/internal/metrics"
	"github.com/clinicflow/circuitguard/pkg/logger"
)

func main() {
	// A missing .env is fine; viper falls back to real env vars.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	collector := metrics.NewCollector(1024, log)
	collector.Start(ctx)

	registry, err := buildRegistry(cfg, log, collector)
	if err != nil {
		log.Error("Failed to build breaker registry", slog.Any("err", err))
		os.Exit(1)
	}

	if err := startWatchdog(ctx, cfg, registry, log); err != nil {
		log.Error("Failed to start trial watchdog", slog.Any("err", err))
		os.Exit(1)
	}

	opsHandler := handler.NewOpsHandler(log, registry)
	mux := setupRouter(opsHandler, collector)

	srv, err := httpserver.New(cfg.Server.Address, mux)
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	log.Info("Ops server listening", slog.String("address", cfg.Server.Address))

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting ops server", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

// buildRegistry creates the process-wide registry and one breaker per
// configured dependency, wiring state changes and call outcomes into the
// log and the metrics collector.
func buildRegistry(cfg *config.Config, log *slog.Logger, collector *metrics.Collector) (*circuitbreaker.Registry, error) {
	recoveryTimeout, err := time.ParseDuration(cfg.Breaker.RecoveryTimeout)
	if err != nil {
		return nil, err
	}

	defaults := []circuitbreaker.Option{
		circuitbreaker.WithFailureThreshold(cfg.Breaker.FailureThreshold),
		circuitbreaker.WithRecoveryTimeout(recoveryTimeout),
		circuitbreaker.OnStateChange(func(name string, from, to circuitbreaker.State) {
			log.Warn("Breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			collector.Emit(metrics.BreakerEvent{
				Type:      metrics.EventStateChanged,
				Timestamp: time.Now(),
				Breaker:   name,
				State:     to.String(),
			})
		}),
		circuitbreaker.OnCall(func(name string, err error) {
			eventType := metrics.EventCallSucceeded
			if err != nil {
				eventType = metrics.EventCallFailed
			}
			collector.Emit(metrics.BreakerEvent{
				Type:      eventType,
				Timestamp: time.Now(),
				Breaker:   name,
			})
		}),
		circuitbreaker.OnReject(func(name string) {
			collector.Emit(metrics.BreakerEvent{
				Type:      metrics.EventCallRejected,
				Timestamp: time.Now(),
				Breaker:   name,
			})
		}),
	}

	registry := circuitbreaker.NewRegistry(defaults...)

	for _, dep := range cfg.Dependencies {
		var opts []circuitbreaker.Option

		if dep.FailureThreshold > 0 {
			opts = append(opts, circuitbreaker.WithFailureThreshold(dep.FailureThreshold))
		}
		if dep.RecoveryTimeout != "" {
			d, err := time.ParseDuration(dep.RecoveryTimeout)
			if err != nil {
				return nil, err
			}
			opts = append(opts, circuitbreaker.WithRecoveryTimeout(d))
		}

		registry.GetOrCreate(dep.Name, opts...)
		log.Info("Registered breaker", slog.String("breaker", dep.Name))
	}

	return registry, nil
}

// startWatchdog launches the trial watchdog unless trial_timeout is zero.
func startWatchdog(ctx context.Context, cfg *config.Config, registry *circuitbreaker.Registry, log *slog.Logger) error {
	trialTimeout, err := time.ParseDuration(cfg.Breaker.TrialTimeout)
	if err != nil {
		return err
	}
	if trialTimeout <= 0 {
		return nil
	}

	sweepInterval, err := time.ParseDuration(cfg.Breaker.SweepInterval)
	if err != nil {
		return err
	}

	watchdog := circuitbreaker.NewWatchdog(registry, trialTimeout, sweepInterval, log)
	go watchdog.Run(ctx)

	log.Info("Trial watchdog started",
		slog.Duration("trial_timeout", trialTimeout),
		slog.Duration("sweep_interval", sweepInterval))
	return nil
}
