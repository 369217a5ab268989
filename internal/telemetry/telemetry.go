// Package telemetry reports unexpected failures to Sentry.
package telemetry

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/onfert/analyst/internal/config"
	"github.com/onfert/analyst/internal/errors"
)

const flushTimeout = 2 * time.Second

// Reporter sends errors to Sentry. A Reporter without a DSN only logs.
type Reporter struct {
	hub    *sentry.Hub
	logger *slog.Logger
}

// New creates a Reporter from cfg. An empty DSN disables remote reporting.
func New(cfg config.SentryConfig, release string, logger *slog.Logger) (*Reporter, error) {
	if cfg.DSN == "" {
		return &Reporter{logger: componentLogger(logger)}, nil
	}
	return newReporter(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     release,
	}, logger)
}

func newReporter(opts sentry.ClientOptions, logger *slog.Logger) (*Reporter, error) {
	opts.SampleRate = 1.0
	opts.AttachStacktrace = false
	opts.ServerName = ""
	opts.BeforeSend = scrubEvent
	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("sentry initialization failed: %w", err)
	}
	return &Reporter{
		hub:    sentry.NewHub(client, sentry.NewScope()),
		logger: componentLogger(logger),
	}, nil
}

func componentLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", "telemetry")
}

// scrubEvent drops request and user data; analyses carry farm details.
func scrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	event.Request = nil
	event.User = sentry.User{}
	event.ServerName = ""
	return event
}

// Enabled reports whether events leave the process.
func (r *Reporter) Enabled() bool {
	return r != nil && r.hub != nil
}

// Capture reports err raised by component. Validation and not-found errors
// are user mistakes and are never sent.
func (r *Reporter) Capture(component string, err error) {
	if r == nil || err == nil {
		return
	}
	category := errors.GetCategory(err)
	if category == errors.CategoryValidation || category == errors.CategoryNotFound {
		return
	}
	r.logger.Debug("capturing error", "source", component, "category", string(category), "error", err)
	if r.hub == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		scope.SetTag("category", string(category))
		r.hub.CaptureException(err)
	})
}

// ReportFunc binds Capture to component.
func (r *Reporter) ReportFunc(component string) func(error) {
	return func(err error) { r.Capture(component, err) }
}

// Flush waits for queued events to be delivered.
func (r *Reporter) Flush() bool {
	if !r.Enabled() {
		return true
	}
	return r.hub.Flush(flushTimeout)
}
