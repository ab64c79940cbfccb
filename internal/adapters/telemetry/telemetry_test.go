package telemetry_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"go.trai.ch/parablock/internal/adapters/telemetry"
)

type recordingLogger struct {
	mu    sync.Mutex
	debug []string
}

func (l *recordingLogger) Debug(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debug = append(l.debug, msg)
}
func (l *recordingLogger) Info(string) {}
func (l *recordingLogger) Warn(string) {}
func (l *recordingLogger) Error(error) {}

func TestOTelTracer_RecordsAttributesAndErrors(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := telemetry.NewProvider(recorder)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	ctx, span := provider.Tracer().Start(t.Context(), "generate")
	span.SetAttribute("identity", "example.com/demo.Greeting")
	span.SetAttribute("attempt", 2)
	span.SetAttribute("passed", false)
	span.RecordError(errors.New("assertion failed"))
	span.RecordError(nil)
	span.End()
	require.NotNil(t, ctx)

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "generate", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "assertion failed", ended[0].Status().Description)

	attrs := map[string]string{}
	for _, kv := range ended[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "example.com/demo.Greeting", attrs["identity"])
	assert.Equal(t, "2", attrs["attempt"])
	assert.Equal(t, "false", attrs["passed"])
}

func TestLogBridge_LogsEndedSpans(t *testing.T) {
	log := &recordingLogger{}
	provider := telemetry.NewProvider(telemetry.NewLogBridge(log))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	tracer := provider.Tracer()
	_, span := tracer.Start(t.Context(), "attempt")
	span.SetAttribute("attempt.number", 1)
	span.End()

	_, failed := tracer.Start(t.Context(), "sandbox")
	failed.RecordError(errors.New("timeout"))
	failed.End()

	log.mu.Lock()
	defer log.mu.Unlock()
	require.Len(t, log.debug, 2)
	assert.True(t, strings.HasPrefix(log.debug[0], "span attempt ended in "))
	assert.Contains(t, log.debug[0], "attempt.number=1")
	assert.True(t, strings.HasSuffix(log.debug[1], ": timeout"))
}

func TestNoOpTracer(t *testing.T) {
	tracer := telemetry.NewNoOpTracer()
	ctx, span := tracer.Start(t.Context(), "noop")
	assert.Equal(t, t.Context(), ctx)

	assert.NotPanics(t, func() {
		span.SetAttribute("k", "v")
		span.RecordError(errors.New("ignored"))
		span.End()
	})
}

var _ sdktrace.SpanProcessor = (*telemetry.LogBridge)(nil)
