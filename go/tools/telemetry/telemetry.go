// Copyright 2025 Supabase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry sets up OpenTelemetry tracing and metrics for the
// logsafety commands.
//
// Export is off unless --otel-endpoint (or LS_OTEL_ENDPOINT) names an OTLP
// gRPC collector. To view traces and metrics locally:
//
//	$ docker run --rm -it --name jaeger-all-in-one \
//	    -e COLLECTOR_OTLP_ENABLED=true \
//	    -p 16686:16686 -p 4317:4317 \
//	    jaegertracing/all-in-one:latest
//	$ logsafety check --otel-endpoint=localhost:4317 ...
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/multigres/logsafety/go/viperutil"
)

const instrumentationName = "github.com/multigres/logsafety"

// Tracer returns the tracer of the current global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Telemetry holds OpenTelemetry configuration and state
type Telemetry struct {
	endpoint       viperutil.Value[string]
	sampleRatio    viperutil.Value[float64]
	metricInterval viperutil.Value[time.Duration]

	mu             sync.Mutex
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	initialized    bool

	// Test overrides
	testSpanExporter sdktrace.SpanExporter
	testMetricReader sdkmetric.Reader
}

func NewTelemetry(reg *viperutil.Registry) *Telemetry {
	return &Telemetry{
		endpoint: viperutil.Configure(reg, "otel-endpoint", viperutil.Options[string]{
			FlagName: "otel-endpoint",
			EnvVars:  []string{"LS_OTEL_ENDPOINT"},
		}),
		sampleRatio: viperutil.Configure(reg, "otel-sample-ratio", viperutil.Options[float64]{
			Default:  1,
			FlagName: "otel-sample-ratio",
			EnvVars:  []string{"LS_OTEL_SAMPLE_RATIO"},
		}),
		metricInterval: viperutil.Configure(reg, "otel-metric-interval", viperutil.Options[time.Duration]{
			Default:  15 * time.Second,
			FlagName: "otel-metric-interval",
		}),
	}
}

// RegisterFlags registers the telemetry flags on fs.
func (t *Telemetry) RegisterFlags(fs *pflag.FlagSet) {
	fs.String("otel-endpoint", t.endpoint.Default(), "OTLP gRPC collector address for traces and metrics; empty disables export")
	fs.Float64("otel-sample-ratio", t.sampleRatio.Default(), "Fraction of root traces to sample, between 0 and 1")
	fs.Duration("otel-metric-interval", t.metricInterval.Default(), "Interval between metric exports")
	viperutil.BindFlags(fs, t.endpoint, t.sampleRatio, t.metricInterval)
}

// WithTestExporters makes InitTelemetry export to the given exporter and
// reader instead of a collector. Must be called before InitTelemetry.
func (t *Telemetry) WithTestExporters(spanExporter sdktrace.SpanExporter, metricReader sdkmetric.Reader) *Telemetry {
	t.testSpanExporter = spanExporter
	t.testMetricReader = metricReader
	return t
}

func (t *Telemetry) enabled() bool {
	return t.endpoint.Get() != "" || t.testSpanExporter != nil || t.testMetricReader != nil
}

// InitTelemetry installs the global tracer and meter providers. The
// serviceName parameter sets the service.name resource attribute and can be
// overridden by OTEL_SERVICE_NAME. Without an endpoint the global no-op
// providers are left in place.
func (t *Telemetry) InitTelemetry(ctx context.Context, serviceName string, attrs ...attribute.KeyValue) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.initialized {
		return nil
	}
	t.initialized = true
	if !t.enabled() {
		return nil
	}

	if envServiceName := os.Getenv("OTEL_SERVICE_NAME"); envServiceName != "" {
		serviceName = envServiceName
	}
	resourceAttrs := append([]attribute.KeyValue{semconv.ServiceName(serviceName)}, attrs...)
	res := resource.NewWithAttributes(semconv.SchemaURL, resourceAttrs...)

	if err := t.initTracing(ctx, res); err != nil {
		t.initialized = false
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if err := t.initMetrics(ctx, res); err != nil {
		t.initialized = false
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	slog.DebugContext(ctx, "OpenTelemetry initialized", "service", serviceName, "endpoint", t.endpoint.Get())
	return nil
}

func (t *Telemetry) initTracing(ctx context.Context, res *resource.Resource) error {
	ratio := min(max(t.sampleRatio.Get(), 0), 1)
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	}
	if t.testSpanExporter != nil {
		// Synchronous export keeps tests free of flush timing.
		opts = append(opts, sdktrace.WithSyncer(t.testSpanExporter))
	} else {
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(t.endpoint.Get()),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("failed to create trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	t.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(t.tracerProvider)
	return nil
}

func (t *Telemetry) initMetrics(ctx context.Context, res *resource.Resource) error {
	reader := t.testMetricReader
	if reader == nil {
		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(t.endpoint.Get()),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("failed to create metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(t.metricInterval.Get()))
	}
	t.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(t.meterProvider)
	return nil
}

// WithEnvTraceparent returns ctx as a child of the W3C trace context in the
// TRACEPARENT environment variable, if set.
func (t *Telemetry) WithEnvTraceparent(ctx context.Context) context.Context {
	traceparent := os.Getenv("TRACEPARENT")
	if traceparent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{"traceparent": traceparent}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// InitForCommand initializes telemetry for a CLI command. With startSpan, a
// span named after the command is started in the command context; the
// caller ends it.
func (t *Telemetry) InitForCommand(cmd *cobra.Command, serviceName string, startSpan bool) (trace.Span, error) {
	if err := t.InitTelemetry(cmd.Context(), serviceName); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	ctx := t.WithEnvTraceparent(cmd.Context())
	var span trace.Span
	if startSpan {
		ctx, span = t.GetTracerProvider().Tracer(instrumentationName).Start(ctx, cmd.CommandPath())
	}
	cmd.SetContext(ctx)
	return span, nil
}

// GetTracerProvider returns the configured TracerProvider.
func (t *Telemetry) GetTracerProvider() trace.TracerProvider {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tracerProvider == nil {
		return otel.GetTracerProvider()
	}
	return t.tracerProvider
}

// GetMeterProvider returns the configured MeterProvider.
func (t *Telemetry) GetMeterProvider() metric.MeterProvider {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.meterProvider == nil {
		return otel.GetMeterProvider()
	}
	return t.meterProvider
}

// ShutdownTelemetry flushes and stops the providers.
func (t *Telemetry) ShutdownTelemetry(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		return nil
	}
	t.initialized = false

	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer provider: %w", err))
		}
		t.tracerProvider = nil
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %w", err))
		}
		t.meterProvider = nil
	}
	return errors.Join(errs...)
}

// WrapSlogHandler adds the trace_id and span_id of the active span to every
// record logged with a context.
func WrapSlogHandler(handler slog.Handler) slog.Handler {
	return &traceHandler{wrapped: handler}
}

type traceHandler struct {
	wrapped slog.Handler
}

func (h *traceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.wrapped.Enabled(ctx, level)
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.wrapped.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{wrapped: h.wrapped.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{wrapped: h.wrapped.WithGroup(name)}
}
