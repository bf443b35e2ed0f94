package handler

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/clinicflow/circuitguard/internal/circuitbreaker"
)

// OpsHandler serves the operational surface: breaker stats, administrative
// reset and liveness. It only ever reads through Registry snapshots or
// resets through the breaker's own operations, never touching call-path
// state directly.
type OpsHandler struct {
	logger   *slog.Logger
	registry *circuitbreaker.Registry
}

func NewOpsHandler(logger *slog.Logger, registry *circuitbreaker.Registry) *OpsHandler {
	return &OpsHandler{
		logger:   logger,
		registry: registry,
	}
}

// Breakers returns {name: {status, failure_count}} for every registered
// breaker as of the read instant.
func (h *OpsHandler) Breakers(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("Stats snapshot requested",
		slog.String("from", extractClientIP(r)))

	stats := h.registry.Stats()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// ResetBreaker forces one breaker back to CLOSED. Administrative use only;
// a recovering dependency is normally probed via the trial path instead.
func (h *OpsHandler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	cb, exists := h.registry.Get(name)
	if !exists {
		http.Error(w, "unknown breaker", http.StatusNotFound)
		return
	}

	cb.Reset()
	h.logger.Info("Breaker reset",
		slog.String("breaker", name),
		slog.String("from", extractClientIP(r)))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(cb.Snapshot()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Healthz is a liveness probe for the ops server itself.
func (h *OpsHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}
