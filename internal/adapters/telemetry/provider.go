package telemetry

import (
	"context"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// InstrumentationName names the tracer used for generation spans.
const InstrumentationName = "go.trai.ch/parablock"

// Provider owns the tracer provider and its span processors.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider creates a tracer provider that feeds every finished span to the processors.
func NewProvider(processors ...sdktrace.SpanProcessor) *Provider {
	opts := make([]sdktrace.TracerProviderOption, 0, len(processors))
	for _, p := range processors {
		opts = append(opts, sdktrace.WithSpanProcessor(p))
	}
	return &Provider{tp: sdktrace.NewTracerProvider(opts...)}
}

// Tracer returns a ports.Tracer backed by the provider.
func (p *Provider) Tracer() *OTelTracer {
	return NewOTelTracer(p.tp, InstrumentationName)
}

// Shutdown flushes and stops the span processors.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}
