// Package main is the entry point for the transaction engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/fd1az/chain-txqueue/business/blockchain"
	blockchainDI "github.com/fd1az/chain-txqueue/business/blockchain/di"
	blockchainDomain "github.com/fd1az/chain-txqueue/business/blockchain/domain"
	"github.com/fd1az/chain-txqueue/business/txqueue"
	txqueueDI "github.com/fd1az/chain-txqueue/business/txqueue/di"
	"github.com/fd1az/chain-txqueue/internal/apm"
	"github.com/fd1az/chain-txqueue/internal/config"
	"github.com/fd1az/chain-txqueue/internal/di"
	"github.com/fd1az/chain-txqueue/internal/health"
	"github.com/fd1az/chain-txqueue/internal/logger"
	"github.com/fd1az/chain-txqueue/internal/metrics"
	"github.com/fd1az/chain-txqueue/internal/monolith"
	"github.com/fd1az/chain-txqueue/pkg/ui"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file (watched for changes)")
	cliMode := flag.Bool("cli", false, "Run in CLI mode with logs (no TUI)")
	showVersion := flag.Bool("version", false, "Show version information")
	selfTest := flag.Int("selftest", 0, "Queue N concurrent zero-value self-transfers and report their receipts")
	flag.Parse()

	if *showVersion {
		fmt.Printf("txengine %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// TUI is the default, CLI is for debugging
	tuiMode := !*cliMode

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		if !tuiMode {
			fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		}
		cancel()
	}()

	if err := run(ctx, *configPath, tuiMode, *selfTest); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, tuiMode bool, selfTest int) error {
	// The watcher needs its own viper instance; without a file there is
	// nothing to watch.
	var (
		cfg     *config.Config
		watcher *config.Watcher
		err     error
	)
	if configPath != "" {
		watcher, cfg, err = config.NewWatcher(configPath, logger.New(io.Discard, logger.LevelError, "txengine", nil))
	} else {
		cfg, err = config.Load("")
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg.App.TUIMode = tuiMode

	logLevel := logger.LevelInfo
	switch cfg.App.LogLevel {
	case "debug":
		logLevel = logger.LevelDebug
	case "warn":
		logLevel = logger.LevelWarn
	case "error":
		logLevel = logger.LevelError
	}

	var log *logger.Logger
	if tuiMode {
		// In TUI mode, suppress logs (discard output)
		log = logger.New(io.Discard, logLevel, cfg.App.Name, nil)
	} else {
		log = logger.New(os.Stderr, logLevel, cfg.App.Name, nil)
		log.Info(ctx, "starting transaction engine",
			"version", version,
			"environment", cfg.App.Environment,
			"chain_id", cfg.Network.ChainID,
		)
	}

	stopTelemetry, err := startTelemetry(ctx, cfg.Telemetry, log)
	if err != nil {
		return err
	}
	defer stopTelemetry()

	mono := monolith.New(cfg, log)
	defer mono.Close()

	modules := []monolith.Module{
		&blockchain.Module{}, // Must be first - publishes transport pairs
		&txqueue.Module{},    // Binds signers to blockchain pairs
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}

	if watcher != nil {
		transport := blockchainDI.GetTransport(mono.Services())
		watcher.Watch(func(next *config.Config) {
			transport.UpdateConfig(next.Network)
		})
	}

	healthServer := health.NewServer(cfg.Health.Port, version, log)
	registerHealthChecks(healthServer, mono.Services())
	healthServer.Start()
	log.Info(ctx, "health server started", "port", cfg.Health.Port)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		healthServer.Stop(stopCtx)
	}()

	if tuiMode {
		// Modules start in the background so the TUI shows immediately
		startFunc := func() error {
			if err := mono.StartModules(ctx, modules...); err != nil {
				return fmt.Errorf("failed to start modules: %w", err)
			}
			if selfTest > 0 {
				return runSelfTest(ctx, mono.Services(), selfTest, log)
			}
			return nil
		}
		return runTUI(ctx, mono.Services(), startFunc)
	}

	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}

	if selfTest > 0 {
		return runSelfTest(ctx, mono.Services(), selfTest, log)
	}

	log.Info(ctx, "all modules started, queue accepting calls")
	<-ctx.Done()
	log.Info(ctx, "shutting down")
	return nil
}

// startTelemetry installs tracing and metrics when enabled and returns the
// matching shutdown.
func startTelemetry(ctx context.Context, cfg config.TelemetryConfig, log *logger.Logger) (func(), error) {
	traceProvider, err := apm.NewTraceProvider(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}

	if !cfg.Enabled {
		return func() { traceProvider.Stop() }, nil
	}

	opts := []metrics.OptionFn{
		metrics.WithServiceName(cfg.ServiceName),
		metrics.WithProviderConfig(metrics.NewPrometheusConfig()),
	}
	if cfg.OTLPEndpoint != "" && apm.Exporter(cfg.TraceExporter) == apm.OTLPGRPCExporter {
		headers, err := apm.ParseHeaders(cfg.OTLPHeaders)
		if err != nil {
			traceProvider.Stop()
			return nil, fmt.Errorf("failed to parse otlp headers: %w", err)
		}
		opts = append(opts, metrics.WithProviderConfig(
			metrics.NewOtelCollectorConfig(cfg.OTLPEndpoint, headers, cfg.OTLPInsecure, cfg.MetricsInterval),
		))
	}

	meterProvider, err := metrics.NewMetricProvider(ctx, opts...)
	if err != nil {
		traceProvider.Stop()
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	port := cfg.PrometheusPort
	if port == 0 {
		port = 9090
	}
	metricsServer := metrics.ServePrometheusMetrics(meterProvider.Handler(), log, metrics.WithPort(strconv.Itoa(port)))

	return func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		metricsServer.Stop(stopCtx)
		meterProvider.Shutdown(stopCtx)
		traceProvider.Stop()
	}, nil
}

func registerHealthChecks(s *health.Server, services di.ServiceRegistry) {
	s.RegisterCheck("transport", func(context.Context) (bool, string) {
		state := blockchainDI.GetBlockchainService(services).ConnectionState()
		return state == blockchainDomain.StateConnected, string(state)
	})
	s.RegisterCheck("nonce", func(context.Context) (bool, string) {
		nonce, ok := txqueueDI.GetSequence(services).Nonce()
		if !ok {
			return false, "unknown"
		}
		return true, strconv.FormatUint(nonce, 10)
	})
}

func runTUI(ctx context.Context, services di.ServiceRegistry, startFunc func() error) error {
	p := tea.NewProgram(ui.New(), tea.WithAltScreen())
	ui.Program = p

	// The startup screen follows the bridge until the first connection.
	go runBridge(ctx, services)

	errCh := make(chan error, 1)
	go func() {
		if err := startFunc(); err != nil {
			ui.Send(ui.ErrorMsg{Error: err})
			errCh <- err
			return
		}
		errCh <- nil
	}()

	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
