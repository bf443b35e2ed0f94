package main

import (
	"net/http"

	"github.com/clinicflow/circuitguard/internal/handler"
	"github.com/clinicflow/circuitguard/internal/metrics"
)

func setupRouter(opsHandler *handler.OpsHandler, collector *metrics.Collector) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /breakers", opsHandler.Breakers)
	mux.HandleFunc("POST /breakers/{name}/reset", opsHandler.ResetBreaker)
	mux.HandleFunc("GET /healthz", opsHandler.Healthz)
	mux.HandleFunc("GET /metrics", collector.Handler())

	return mux
}
