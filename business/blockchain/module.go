// Package blockchain implements the blockchain bounded context: the
// reconnecting transport, the block height stream and the chain clock.
package blockchain

import (
	"context"

	"github.com/fd1az/chain-txqueue/business/blockchain/app"
	blockchainDI "github.com/fd1az/chain-txqueue/business/blockchain/di"
	"github.com/fd1az/chain-txqueue/business/blockchain/domain"
	"github.com/fd1az/chain-txqueue/business/blockchain/infra/ethereum"
	"github.com/fd1az/chain-txqueue/internal/config"
	"github.com/fd1az/chain-txqueue/internal/di"
	"github.com/fd1az/chain-txqueue/internal/httpclient"
	"github.com/fd1az/chain-txqueue/internal/logger"
	"github.com/fd1az/chain-txqueue/internal/monolith"
)

// Module implements the blockchain bounded context.
type Module struct {
	// Options are applied to the transport, e.g. an external connection.
	TransportOptions []app.TransportOption
}

// RegisterServices registers all blockchain services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, blockchainDI.Dialer, func(sr di.ServiceRegistry) app.Dialer {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		httpClient, err := httpclient.New(
			httpclient.WithProviderName("json-rpc"),
			httpclient.WithRequestTimeout(cfg.Network.RPCTimeout),
			httpclient.WithHeaders(cfg.Network.RPCHeaders),
		)
		if err != nil {
			panic("failed to create rpc http client: " + err.Error())
		}
		return ethereum.NewDialer(httpClient, log)
	})

	di.RegisterToken(c, blockchainDI.Transport, func(sr di.ServiceRegistry) *app.Transport {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		t, err := app.NewTransport(cfg.Network, blockchainDI.GetDialer(sr), log, m.TransportOptions...)
		if err != nil {
			panic("failed to create transport: " + err.Error())
		}
		return t
	})

	di.RegisterToken(c, blockchainDI.BlockStream, func(sr di.ServiceRegistry) *app.BlockStream {
		log := sr.Get("logger").(logger.LoggerInterface)

		s, err := app.NewBlockStream(blockchainDI.GetTransport(sr), log)
		if err != nil {
			panic("failed to create block stream: " + err.Error())
		}
		return s
	})

	di.RegisterToken(c, blockchainDI.Clock, func(sr di.ServiceRegistry) *domain.Clock {
		return domain.NewClock()
	})

	di.RegisterToken(c, blockchainDI.ClockSync, func(sr di.ServiceRegistry) *app.ClockSync {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		cs, err := app.NewClockSync(
			blockchainDI.GetClock(sr),
			blockchainDI.GetBlockStream(sr),
			blockchainDI.GetTransport(sr),
			cfg.Clock.SyncInterval,
			log,
		)
		if err != nil {
			panic("failed to create clock sync: " + err.Error())
		}
		return cs
	})

	// Register BlockchainService (public - exposed to other modules)
	di.RegisterToken(c, blockchainDI.BlockchainService, func(sr di.ServiceRegistry) *app.BlockchainService {
		return app.NewBlockchainService(
			blockchainDI.GetTransport(sr),
			blockchainDI.GetBlockStream(sr),
			blockchainDI.GetClockSync(sr),
			blockchainDI.GetClock(sr),
		)
	})

	di.RegisterToken(c, blockchainDI.FeeOracle, func(sr di.ServiceRegistry) *ethereum.FeeOracle {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		oracleCfg := ethereum.DefaultFeeOracleConfig()
		oracleCfg.BaseFeeMultiplier = cfg.Signer.BaseFeeMultiplierDecimal()
		oracleCfg.CacheTTL = cfg.Signer.FeeCacheTTL

		oracle, err := ethereum.NewFeeOracle(oracleCfg, blockchainDI.GetBlockchainService(sr), log)
		if err != nil {
			panic("failed to create fee oracle: " + err.Error())
		}
		return oracle
	})

	return nil
}

// Startup connects the transport and starts the stream and clock.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	svc := blockchainDI.GetBlockchainService(mono.Services())
	oracle := blockchainDI.GetFeeOracle(mono.Services())

	mono.OnClose(svc)
	mono.OnClose(closerFunc(func() error { oracle.Close(); return nil }))

	if err := svc.Start(ctx); err != nil {
		// Don't fail - a config change re-triggers init
		log.Error(ctx, "initial transport connection failed", "error", err)
	}

	log.Info(ctx, "blockchain module started", "state", string(svc.ConnectionState()))
	return nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
