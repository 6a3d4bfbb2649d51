// Package logging constructs the daemon's slog loggers and provides typed
// attribute helpers plus the standardized field names used across components.
package logging
