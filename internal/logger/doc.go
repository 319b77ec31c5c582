// Package logger provides structured logging built on the standard library's
// log/slog, with environment-specific presets and a small set of attribute
// helpers for the coordination engine's domain (sessions, workers, control
// actions).
//
// # Basic usage
//
//	log := logger.New(logger.WithDevelopment("pool"))
//	log.Info("worker ready", logger.WorkerID(1), logger.Action("ready"))
//
// Production favors JSON output at info level; development favors text
// output at debug level. Both write to stderr so stdout stays free for
// whatever the embedding test-runner prints.
package logger
