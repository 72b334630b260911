package metrics

import "time"

// ProviderKind selects where meter readings are exported.
type ProviderKind string

const (
	// PrometheusProvider serves readings on the scrape handler.
	PrometheusProvider ProviderKind = "prometheus"
	// OtelCollector pushes readings to an OTLP gRPC collector.
	OtelCollector ProviderKind = "otlp-grpc"
)

// Transport security for NewOtelCollectorConfig.
const (
	InsecureOtel = true
	SecureOtel   = false
)

func NewPrometheusConfig() ProviderCfg {
	return ProviderCfg{Provider: PrometheusProvider}
}

// NewOtelCollectorConfig pushes readings to endpoint every interval. A
// non-positive interval keeps the SDK default.
func NewOtelCollectorConfig(endpoint string, headers map[string]string, insecure bool, interval time.Duration) ProviderCfg {
	return ProviderCfg{
		Provider: OtelCollector,
		Endpoint: endpoint,
		Headers:  headers,
		Insecure: insecure,
		Interval: interval,
	}
}

type Config struct {
	ServiceName string
	Provider    []ProviderCfg
}

type ProviderCfg struct {
	Provider ProviderKind
	Endpoint string
	Headers  map[string]string
	Insecure bool
	Interval time.Duration
}

type OptionFn func(config Config) Config

func WithServiceName(name string) OptionFn {
	return func(config Config) Config {
		config.ServiceName = name
		return config
	}
}

// WithProviderConfig adds an export destination. Each call adds one reader.
func WithProviderConfig(provider ProviderCfg) OptionFn {
	return func(config Config) Config {
		config.Provider = append(config.Provider, provider)
		return config
	}
}

type PromServerConfig struct {
	port string
}

type PromOptionFn func(config PromServerConfig) PromServerConfig

// WithPort sets the port the scrape server listens on.
func WithPort(port string) PromOptionFn {
	return func(config PromServerConfig) PromServerConfig {
		config.port = port
		return config
	}
}
