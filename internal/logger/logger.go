package logger

import (
	"io"
	"log/slog"
	"os"
)

// Option configures a logger built by New.
type Option func(*options)

type options struct {
	level     slog.Level
	json      bool
	out       io.Writer
	attrs     []slog.Attr
	addSource bool
}

// WithLevel sets the minimum level a logger emits.
func WithLevel(level slog.Level) Option {
	return func(o *options) { o.level = level }
}

// WithJSONFormatter switches the handler to JSON output.
func WithJSONFormatter() Option {
	return func(o *options) { o.json = true }
}

// WithTextFormatter switches the handler to human-readable text output.
func WithTextFormatter() Option {
	return func(o *options) { o.json = false }
}

// WithOutput overrides the destination writer. Defaults to os.Stderr.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// WithAttr attaches a static attribute to every record emitted by the logger.
func WithAttr(attr slog.Attr) Option {
	return func(o *options) { o.attrs = append(o.attrs, attr) }
}

// WithSource enables file:line source attribution on every record.
func WithSource() Option {
	return func(o *options) { o.addSource = true }
}

// WithDevelopment configures a text-formatted, debug-level logger for the
// named component, writing to stderr.
func WithDevelopment(component string) Option {
	return func(o *options) {
		o.level = slog.LevelDebug
		o.json = false
		o.attrs = append(o.attrs, slog.String("component", component))
	}
}

// WithProduction configures a JSON-formatted, info-level logger for the
// named component, writing to stderr.
func WithProduction(component string) Option {
	return func(o *options) {
		o.level = slog.LevelInfo
		o.json = true
		o.attrs = append(o.attrs, slog.String("component", component))
	}
}

// New builds a *slog.Logger from the given options. With no options it
// returns a discard logger, so library code never panics for want of a
// logger.
func New(opts ...Option) *slog.Logger {
	o := &options{
		level: slog.LevelInfo,
		out:   os.Stderr,
	}
	for _, opt := range opts {
		opt(o)
	}
	if len(opts) == 0 {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     o.level,
		AddSource: o.addSource,
	}

	var handler slog.Handler
	if o.json {
		handler = slog.NewJSONHandler(o.out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(o.out, handlerOpts)
	}

	log := slog.New(handler)
	if len(o.attrs) > 0 {
		args := make([]any, 0, len(o.attrs))
		for _, a := range o.attrs {
			args = append(args, a)
		}
		log = log.With(args...)
	}
	return log
}

// Discard returns a logger that drops every record; used as the default
// when a caller never injects one.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
