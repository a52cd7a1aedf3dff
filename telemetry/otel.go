// Package telemetry wires core.Telemetry to OpenTelemetry. Components
// depend on core.Telemetry/core.Span, never on this package directly,
// mirroring the teacher's split between core's interfaces and
// telemetry's implementation to avoid a circular module dependency.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/codemusic/roverseer-gateway/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Provider implements core.Telemetry with an OpenTelemetry TracerProvider.
// Metrics are recorded through the in-process aggregators in package
// router rather than an OTel metrics pipeline, since the gateway's only
// metrics consumer is its own /status endpoint (spec.md §4.H); tracing
// still goes through OTel, and spans are written to stderr by the stdout
// exporter when New is called with export=true (cmd/gateway does so when
// ROVERSEER_ENV=production).
type Provider struct {
	tracer   trace.Tracer
	tp       *sdktrace.TracerProvider
	mu       sync.Mutex
	shutdown bool
}

// New builds a Provider for serviceName. When export is false, spans are
// still created (so SetAttribute/RecordError calls are never nil-checked
// by callers) but are dropped, since no span processor is registered.
func New(serviceName string, export bool) (*Provider, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, core.Wrap("telemetry.New", core.KindInternal, "building resource", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if export {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
		if err != nil {
			return nil, core.Wrap("telemetry.New", core.KindInternal, "building exporter", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	return &Provider{tracer: tp.Tracer(serviceName), tp: tp}, nil
}

func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	spanCtx, span := p.tracer.Start(ctx, name)
	return spanCtx, &otelSpan{span: span}
}

func (p *Provider) RecordMetric(name string, value float64, labels map[string]string) {
	// Intentionally a no-op here; see Provider doc comment.
	_ = name
	_ = value
	_ = labels
}

// Shutdown flushes pending spans. Safe to call multiple times.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown {
		return nil
	}
	p.shutdown = true
	return p.tp.Shutdown(ctx)
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", value)))
}

func (s *otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
}
