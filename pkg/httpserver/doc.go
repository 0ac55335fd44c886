// Package httpserver wraps http.Server with graceful shutdown, signal
// handling and optional start/stop hooks. Server.Run blocks until the
// context is cancelled, an interrupt arrives or the listener fails.
//
// HealthCheckHandler doubles as a liveness probe (no dependency checks)
// and a readiness probe (all supplied checks must pass).
package httpserver
