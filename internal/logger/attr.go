package logger

import (
	"log/slog"
	"time"
)

// Attribute helpers follow the empty-Attr pattern for nil safety: callers
// can write logger.Error(err) without a preceding nil check, since a nil
// input yields a zero-value Attr that slog silently drops.

// Error creates an attribute for a single error under the key "error".
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Duration creates a "duration" attribute.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Elapsed logs the duration since start under the key "elapsed".
func Elapsed(start time.Time) slog.Attr {
	return slog.Duration("elapsed", time.Since(start))
}

// SessionID tags a log record with the pool session identifier.
func SessionID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("session_id", id)
}

// WorkerID tags a log record with the monotonically increasing worker id.
func WorkerID(id int) slog.Attr {
	return slog.Int("worker_id", id)
}

// RequestID tags a log record with a control request id.
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

// Action tags a log record with a control action name.
func Action(action string) slog.Attr {
	return slog.String("action", action)
}

// Channel tags a log record with an envelope channel name.
func Channel(channel string) slog.Attr {
	return slog.String("channel", channel)
}

// Component names the subsystem emitting the record.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event names the lifecycle event being recorded.
func Event(name string) slog.Attr {
	return slog.String("event", name)
}
