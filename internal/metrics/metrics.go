// Package metrics configures the global OpenTelemetry meter provider and
// serves its Prometheus scrape endpoint.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	metric2 "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"

	"github.com/fd1az/chain-txqueue/internal/logger"
)

type MetricProvider interface {
	Meter(name string, options ...metric.MeterOption) metric.Meter
	Shutdown(ctx context.Context) error
}

// Provider is the installed meter provider plus the registry its
// Prometheus reader writes to.
type Provider struct {
	*metric2.MeterProvider
	registry *prometheus.Registry
}

var _ MetricProvider = (*Provider)(nil)

func getReaders(ctx context.Context, cfg Config, registry *prometheus.Registry) ([]metric2.Reader, error) {
	var readers []metric2.Reader

	for _, provider := range cfg.Provider {
		switch provider.Provider {
		case PrometheusProvider:
			promExporter, err := otelprom.New(otelprom.WithRegisterer(registry))
			if err != nil {
				return nil, fmt.Errorf("prometheus exporter: %w", err)
			}

			readers = append(readers, promExporter)
		case OtelCollector:
			opts := []otlpmetricgrpc.Option{
				otlpmetricgrpc.WithEndpointURL(provider.Endpoint),
				otlpmetricgrpc.WithHeaders(provider.Headers),
			}

			if provider.Insecure {
				opts = append(opts, otlpmetricgrpc.WithInsecure())
			}

			exp, err := otlpmetricgrpc.New(ctx, opts...)
			if err != nil {
				return nil, fmt.Errorf("otlp metric exporter: %w", err)
			}

			var readerOpts []metric2.PeriodicReaderOption
			if provider.Interval > 0 {
				readerOpts = append(readerOpts, metric2.WithInterval(provider.Interval))
			}

			readers = append(readers, metric2.NewPeriodicReader(exp, readerOpts...))
		default:
			return nil, fmt.Errorf("unknown metric provider %q", provider.Provider)
		}
	}

	return readers, nil
}

// NewMetricProvider builds the configured readers and installs the result
// as the global meter provider.
func NewMetricProvider(ctx context.Context, options ...OptionFn) (*Provider, error) {
	var cfg Config

	for _, opt := range options {
		cfg = opt(cfg)
	}

	registry := prometheus.NewRegistry()

	readers, err := getReaders(ctx, cfg, registry)
	if err != nil {
		return nil, err
	}

	var metricsOps []metric2.Option

	for _, reader := range readers {
		metricsOps = append(metricsOps, metric2.WithReader(reader))
	}

	metricsOps = append(metricsOps, metric2.WithResource(
		resource.NewSchemaless(semconv.ServiceNameKey.String(cfg.ServiceName)),
	))

	meterProvider := metric2.NewMeterProvider(metricsOps...)

	otel.SetMeterProvider(meterProvider)

	return &Provider{MeterProvider: meterProvider, registry: registry}, nil
}

// Handler serves the Prometheus exposition of the provider's registry.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Server exposes /metrics over HTTP.
type Server struct {
	server *http.Server
	logger logger.LoggerInterface
}

// ServePrometheusMetrics starts serving handler at /metrics in the
// background.
func ServePrometheusMetrics(handler http.Handler, log logger.LoggerInterface, opt ...PromOptionFn) *Server {
	cfg := PromServerConfig{port: "2223"}

	for _, o := range opt {
		cfg = o(cfg)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	s := &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: log,
	}

	go func() {
		log.Info(context.Background(), "serving metrics", "addr", s.server.Addr, "path", "/metrics")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(context.Background(), "metrics server stopped", "error", err)
		}
	}()

	return s
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
