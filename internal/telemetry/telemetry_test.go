package telemetry

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onfert/analyst/internal/config"
	"github.com/onfert/analyst/internal/errors"
)

type mockTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (t *mockTransport) Configure(sentry.ClientOptions) {}

func (t *mockTransport) SendEvent(event *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

func (t *mockTransport) Flush(time.Duration) bool { return true }

func (t *mockTransport) FlushWithContext(context.Context) bool { return true }

func (t *mockTransport) Close() {}

func (t *mockTransport) Events() []*sentry.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*sentry.Event(nil), t.events...)
}

func newTestReporter(t *testing.T) (*Reporter, *mockTransport) {
	t.Helper()
	transport := &mockTransport{}
	r, err := newReporter(sentry.ClientOptions{Transport: transport, Environment: "test"}, nil)
	require.NoError(t, err)
	return r, transport
}

func TestCaptureTagsEvent(t *testing.T) {
	r, transport := newTestReporter(t)
	require.True(t, r.Enabled())

	r.Capture("live", errors.Connection("live.dial", stderrors.New("handshake failed")))
	assert.True(t, r.Flush())

	events := transport.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "live", events[0].Tags["component"])
	assert.Equal(t, string(errors.CategoryConnection), events[0].Tags["category"])
	assert.Empty(t, events[0].ServerName)
}

func TestCaptureSkipsUserErrors(t *testing.T) {
	r, transport := newTestReporter(t)

	r.Capture("analysis", errors.Validation("analysis.analyze", "pH inválido"))
	r.Capture("analysis", errors.New(errors.CategoryNotFound, "analysis.save", "não encontrada", nil))
	r.Capture("analysis", nil)

	assert.Empty(t, transport.Events())
}

func TestReportFunc(t *testing.T) {
	r, transport := newTestReporter(t)
	report := r.ReportFunc("server")
	report(stderrors.New("boom"))

	events := transport.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "server", events[0].Tags["component"])
	assert.Equal(t, string(errors.CategoryGeneric), events[0].Tags["category"])
}

func TestDisabledReporter(t *testing.T) {
	r, err := New(config.SentryConfig{}, "test", nil)
	require.NoError(t, err)
	assert.False(t, r.Enabled())
	r.Capture("live", stderrors.New("ignored"))
	assert.True(t, r.Flush())

	var nilReporter *Reporter
	nilReporter.Capture("live", stderrors.New("ignored"))
	assert.False(t, nilReporter.Enabled())
}
