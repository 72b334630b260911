// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig                 `mapstructure:"app"`
	Network   NetworkConfig             `mapstructure:"network"`
	Clock     ClockConfig               `mapstructure:"clock"`
	Signer    SignerConfig              `mapstructure:"signer"`
	TxQueue   TxQueueConfig             `mapstructure:"txqueue"`
	Contracts map[string]ContractConfig `mapstructure:"contracts"`
	Telemetry TelemetryConfig           `mapstructure:"telemetry"`
	Health    HealthConfig              `mapstructure:"health"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	TUIMode     bool   `mapstructure:"-"` // Set at runtime, not from config file
}

// NetworkConfig describes the ledger endpoints and transport behavior.
type NetworkConfig struct {
	ChainID            uint64            `mapstructure:"chain_id"`
	JSONRPCURL         string            `mapstructure:"json_rpc_url"`
	WSRPCURL           string            `mapstructure:"ws_rpc_url"`
	PollingInterval    time.Duration     `mapstructure:"polling_interval"`
	InitialBlockNumber uint64            `mapstructure:"initial_block_number"`
	BackfillInterval   uint64            `mapstructure:"backfill_interval"`
	BackfillPace       time.Duration     `mapstructure:"backfill_pace"`
	HeartbeatInterval  time.Duration     `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout   time.Duration     `mapstructure:"heartbeat_timeout"`
	SkipNetworkCheck   bool              `mapstructure:"skip_network_check"`
	MaxRetries         uint              `mapstructure:"max_retries"`
	InitialBackoff     time.Duration     `mapstructure:"initial_backoff"`
	MaxBackoff         time.Duration     `mapstructure:"max_backoff"`
	MaxMessageSize     int64             `mapstructure:"max_message_size"`
	RPCTimeout         time.Duration     `mapstructure:"rpc_timeout"`
	RPCHeaders         map[string]string `mapstructure:"rpc_headers"`
}

// HasPush reports whether a push (websocket) endpoint is configured.
func (c NetworkConfig) HasPush() bool {
	return c.WSRPCURL != ""
}

// BackfillEnabled reports whether historical heights should be replayed.
func (c NetworkConfig) BackfillEnabled() bool {
	return c.InitialBlockNumber > 0 && c.BackfillInterval > 0
}

// ClockConfig controls chain clock synchronization.
type ClockConfig struct {
	SyncInterval time.Duration `mapstructure:"sync_interval"`
}

// SignerConfig holds the signing identity and fee policy.
type SignerConfig struct {
	PrivateKey        string        `mapstructure:"private_key"`
	BaseFeeMultiplier float64       `mapstructure:"base_fee_multiplier"`
	FeeCacheTTL       time.Duration `mapstructure:"fee_cache_ttl"`
	GasMarginPercent  uint64        `mapstructure:"gas_margin_percent"`
}

// BaseFeeMultiplierDecimal returns the base fee multiplier as decimal.Decimal.
func (c SignerConfig) BaseFeeMultiplierDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.BaseFeeMultiplier)
}

// TxQueueConfig controls confirmation tracking.
type TxQueueConfig struct {
	ConfirmPollInterval time.Duration `mapstructure:"confirm_poll_interval"`
	ConfirmTimeout      time.Duration `mapstructure:"confirm_timeout"`
}

// ContractConfig describes a deployed contract the queue can call.
type ContractConfig struct {
	Address string `mapstructure:"address"`
	ABIPath string `mapstructure:"abi_path"`
	ABI     string `mapstructure:"abi"`
}

// AddressHex returns the contract address as common.Address.
func (c ContractConfig) AddressHex() common.Address {
	return common.HexToAddress(c.Address)
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	TraceExporter  string `mapstructure:"trace_exporter"` // zipkin, otlp-grpc, otlp-http, console, none
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"` // key=value,key=value
	OTLPInsecure   bool   `mapstructure:"otlp_insecure"`
	PrometheusPort int    `mapstructure:"prometheus_port"`

	MetricsInterval time.Duration `mapstructure:"metrics_interval"`
}

// HealthConfig holds health server settings.
type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := newViper(configPath)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
	}

	return decode(v)
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("TXE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "TXE_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "TXE_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "TXE_LOG_LEVEL", "LOG_LEVEL")

	// Network
	v.BindEnv("network.chain_id", "TXE_CHAIN_ID", "CHAIN_ID")
	v.BindEnv("network.json_rpc_url", "TXE_JSON_RPC_URL", "JSON_RPC_URL")
	v.BindEnv("network.ws_rpc_url", "TXE_WS_RPC_URL", "WS_RPC_URL")
	v.BindEnv("network.initial_block_number", "TXE_INITIAL_BLOCK_NUMBER")

	// Signer
	v.BindEnv("signer.private_key", "TXE_PRIVATE_KEY", "PRIVATE_KEY")

	// Telemetry
	v.BindEnv("telemetry.enabled", "TXE_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "TXE_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "TXE_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("telemetry.otlp_headers", "TXE_OTEL_HEADERS", "OTEL_EXPORTER_OTLP_HEADERS")
	v.BindEnv("telemetry.trace_exporter", "TXE_TRACE_EXPORTER")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "txengine")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Network defaults
	v.SetDefault("network.chain_id", 31337)
	v.SetDefault("network.json_rpc_url", "http://127.0.0.1:8545")
	v.SetDefault("network.polling_interval", "1s")
	v.SetDefault("network.backfill_pace", "50ms")
	v.SetDefault("network.heartbeat_interval", "10s")
	v.SetDefault("network.heartbeat_timeout", "10s")
	v.SetDefault("network.max_retries", 5)
	v.SetDefault("network.initial_backoff", "500ms")
	v.SetDefault("network.max_backoff", "30s")
	v.SetDefault("network.max_message_size", 1<<20)
	v.SetDefault("network.rpc_timeout", "30s")

	// Clock defaults
	v.SetDefault("clock.sync_interval", "5s")

	// Signer defaults
	v.SetDefault("signer.base_fee_multiplier", 2)
	v.SetDefault("signer.fee_cache_ttl", "12s") // ~1 block
	v.SetDefault("signer.gas_margin_percent", 10)

	// Queue defaults
	v.SetDefault("txqueue.confirm_poll_interval", "1s")
	v.SetDefault("txqueue.confirm_timeout", "2m")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "txengine")
	v.SetDefault("telemetry.trace_exporter", "otlp-grpc")
	v.SetDefault("telemetry.prometheus_port", 9090)
	v.SetDefault("telemetry.metrics_interval", "30s")

	// Health defaults
	v.SetDefault("health.port", 8081)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Network.JSONRPCURL == "" {
		return fmt.Errorf("network.json_rpc_url is required")
	}
	if c.Network.ChainID == 0 {
		return fmt.Errorf("network.chain_id is required")
	}
	if c.Network.HeartbeatInterval <= 0 || c.Network.HeartbeatTimeout <= 0 {
		return fmt.Errorf("network heartbeat interval and timeout must be positive")
	}
	if c.Network.PollingInterval <= 0 {
		return fmt.Errorf("network.polling_interval must be positive")
	}
	if c.Clock.SyncInterval <= 0 {
		return fmt.Errorf("clock.sync_interval must be positive")
	}
	if c.TxQueue.ConfirmPollInterval <= 0 || c.TxQueue.ConfirmTimeout <= 0 {
		return fmt.Errorf("txqueue confirm_poll_interval and confirm_timeout must be positive")
	}
	if c.Signer.BaseFeeMultiplier < 1 {
		return fmt.Errorf("signer.base_fee_multiplier must be >= 1, got %v", c.Signer.BaseFeeMultiplier)
	}
	for name, contract := range c.Contracts {
		if !common.IsHexAddress(contract.Address) {
			return fmt.Errorf("invalid contracts.%s.address: %s", name, contract.Address)
		}
		if contract.ABI == "" && contract.ABIPath == "" {
			return fmt.Errorf("contracts.%s needs abi or abi_path", name)
		}
	}
	return nil
}
