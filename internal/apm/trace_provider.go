// Package apm configures the global OpenTelemetry tracer provider.
package apm

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"

	"github.com/fd1az/chain-txqueue/internal/config"
	"github.com/fd1az/chain-txqueue/internal/logger"
)

// Exporter names a span exporter.
type Exporter string

const (
	ZipkinExporter   Exporter = "zipkin"
	OTLPGRPCExporter Exporter = "otlp-grpc"
	OTLPHTTPExporter Exporter = "otlp-http"
	ConsoleExporter  Exporter = "console"
	NoExporter       Exporter = "none"
)

type TraceProvider interface {
	Stop() error
}

type traceProvider struct {
	tp *sdktrace.TracerProvider
}

type TracerOptions struct {
	consoleWriter io.Writer
}

type TracerOption func(*TracerOptions)

// WithConsoleWriter redirects the console exporter, which otherwise writes
// to stdout.
func WithConsoleWriter(w io.Writer) TracerOption {
	return func(o *TracerOptions) {
		o.consoleWriter = w
	}
}

// NewTraceProvider installs a global tracer provider exporting to the
// configured backend. When telemetry is disabled it returns a provider
// that does nothing.
func NewTraceProvider(ctx context.Context, cfg config.TelemetryConfig, log logger.LoggerInterface, options ...TracerOption) (TraceProvider, error) {
	if !cfg.Enabled || Exporter(cfg.TraceExporter) == NoExporter {
		return NewEmptyTraceProvider(), nil
	}

	opts := &TracerOptions{consoleWriter: os.Stdout}
	for _, opt := range options {
		opt(opts)
	}

	exp, err := newExporter(ctx, cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", cfg.TraceExporter, err)
	}

	rsrc, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
			attribute.String("otel.exporter", cfg.TraceExporter),
		))
	if err != nil {
		// Schema conflicts with the default resource; keep our attributes.
		rsrc = resource.NewSchemaless(semconv.ServiceNameKey.String(cfg.ServiceName))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(rsrc),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))

	log.Info(ctx, "tracing enabled", "exporter", cfg.TraceExporter, "endpoint", cfg.OTLPEndpoint)

	return &traceProvider{tp}, nil
}

func newExporter(ctx context.Context, cfg config.TelemetryConfig, opts *TracerOptions) (sdktrace.SpanExporter, error) {
	headers, err := ParseHeaders(cfg.OTLPHeaders)
	if err != nil {
		return nil, err
	}

	switch Exporter(cfg.TraceExporter) {
	case ZipkinExporter:
		return zipkin.New(cfg.OTLPEndpoint)

	case OTLPGRPCExporter:
		grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithHeaders(headers)}
		if cfg.OTLPEndpoint != "" {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithEndpointURL(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, grpcOpts...)

	case OTLPHTTPExporter:
		httpOpts := []otlptracehttp.Option{otlptracehttp.WithHeaders(headers)}
		if cfg.OTLPEndpoint != "" {
			httpOpts = append(httpOpts, otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			httpOpts = append(httpOpts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, httpOpts...)

	case ConsoleExporter:
		return stdouttrace.New(stdouttrace.WithPrettyPrint(), stdouttrace.WithWriter(opts.consoleWriter))
	}

	return nil, fmt.Errorf("unknown trace exporter %q", cfg.TraceExporter)
}

// ParseHeaders parses "key=value,key=value" into a header map.
func ParseHeaders(raw string) (map[string]string, error) {
	headers := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return headers, nil
	}

	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q, expected key=value", pair)
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers, nil
}

func (o *traceProvider) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5) //nolint:gomnd
	defer cancel()

	return o.tp.Shutdown(ctx)
}
