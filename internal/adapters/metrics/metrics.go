// Package metrics exposes generation counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.trai.ch/zerr"

	"go.trai.ch/parablock/internal/core/domain"
	"go.trai.ch/parablock/internal/core/ports"
)

var _ ports.Metrics = (*Prometheus)(nil)

const namespace = "parablock"

// Prometheus implements ports.Metrics with counters on a private registry.
type Prometheus struct {
	registry    *prometheus.Registry
	attempts    *prometheus.CounterVec
	generations *prometheus.CounterVec
	retries     prometheus.Counter
}

// NewPrometheus creates the counters and registers them with Go runtime collectors.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Recorded generation attempts by outcome.",
		}, []string{"outcome"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Finished generation runs by final state.",
		}, []string{"state"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "service_retries_total",
			Help:      "Text-generation calls retried after a service error.",
		}),
	}
	p.registry.MustRegister(
		p.attempts,
		p.generations,
		p.retries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// AttemptRecorded counts one recorded attempt by outcome.
func (p *Prometheus) AttemptRecorded(outcome domain.Outcome) {
	p.attempts.WithLabelValues(string(outcome)).Inc()
}

// GenerationFinished counts one finished generation run by final state.
func (p *Prometheus) GenerationFinished(state domain.GenerationState) {
	p.generations.WithLabelValues(string(state)).Inc()
}

// ServiceRetried counts one retried service call.
func (p *Prometheus) ServiceRetried() {
	p.retries.Inc()
}

// Registry returns the registry holding the counters.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx ends.
func (p *Prometheus) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return zerr.With(zerr.Wrap(err, "metrics server failed"), "addr", addr)
	}
}

// NoOp discards every count.
type NoOp struct{}

// AttemptRecorded does nothing.
func (NoOp) AttemptRecorded(domain.Outcome) {}

// GenerationFinished does nothing.
func (NoOp) GenerationFinished(domain.GenerationState) {}

// ServiceRetried does nothing.
func (NoOp) ServiceRetried() {}
