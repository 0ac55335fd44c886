// Package logger builds configured slog.Logger instances with consistent
// defaults across the application: JSON output at INFO level for production,
// text output at DEBUG level for development.
//
// It also provides attribute helpers for the domain vocabulary (provider,
// transaction id, user id, amount) so log records stay uniform across the
// payment modules.
package logger
