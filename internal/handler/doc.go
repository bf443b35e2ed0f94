// Package handler provides the HTTP operational surface for the breaker
// registry: a read-only stats endpoint, an administrative per-breaker reset,
// and a liveness probe. None of its handlers sit on the guarded call path.
package handler
