// Package txqueue implements the transaction queue bounded context: signer
// binding, nonce sequencing and serialized submission.
package txqueue

import (
	"context"

	blockchainApp "github.com/fd1az/chain-txqueue/business/blockchain/app"
	blockchainDI "github.com/fd1az/chain-txqueue/business/blockchain/di"
	"github.com/fd1az/chain-txqueue/business/txqueue/app"
	txqueueDI "github.com/fd1az/chain-txqueue/business/txqueue/di"
	"github.com/fd1az/chain-txqueue/business/txqueue/infra/ethereum"
	"github.com/fd1az/chain-txqueue/internal/apperror"
	"github.com/fd1az/chain-txqueue/internal/config"
	"github.com/fd1az/chain-txqueue/internal/di"
	"github.com/fd1az/chain-txqueue/internal/logger"
	"github.com/fd1az/chain-txqueue/internal/monolith"
)

// Module implements the txqueue bounded context. It depends on the
// blockchain module being registered first.
type Module struct {
	// SignerFactory replaces the private key signer, e.g. with an
	// external wallet.
	SignerFactory app.SignerFactory
}

// RegisterServices registers all txqueue services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, txqueueDI.SignerFactory, func(sr di.ServiceRegistry) app.SignerFactory {
		if m.SignerFactory != nil {
			return m.SignerFactory
		}

		cfg := sr.Get("config").(*config.Config)
		if cfg.Signer.PrivateKey == "" {
			return func(blockchainApp.Backend) (app.Signer, error) {
				return nil, apperror.New(apperror.CodeSignerUnavailable,
					apperror.WithContext("no private key configured"))
			}
		}

		factory, err := ethereum.NewKeySignerFactory(ethereum.KeySignerConfig{
			PrivateKey:       cfg.Signer.PrivateKey,
			ChainID:          cfg.Network.ChainID,
			GasMarginPercent: cfg.Signer.GasMarginPercent,
		}, blockchainDI.GetFeeOracle(sr))
		if err != nil {
			panic("failed to create signer: " + err.Error())
		}
		return factory
	})

	di.RegisterToken(c, txqueueDI.Signers, func(sr di.ServiceRegistry) *app.SignerBinding {
		log := sr.Get("logger").(logger.LoggerInterface)

		return app.NewSignerBinding(
			blockchainDI.GetBlockchainService(sr).PairValue(),
			txqueueDI.GetSignerFactory(sr),
			log,
		)
	})

	di.RegisterToken(c, txqueueDI.Sequence, func(sr di.ServiceRegistry) *app.SequenceManager {
		log := sr.Get("logger").(logger.LoggerInterface)

		seq, err := app.NewSequenceManager(txqueueDI.GetSigners(sr).Value(), log)
		if err != nil {
			panic("failed to create sequence manager: " + err.Error())
		}
		return seq
	})

	// Register Queue (public - exposed to other modules)
	di.RegisterToken(c, txqueueDI.Queue, func(sr di.ServiceRegistry) *app.Queue {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		q, err := app.NewQueue(
			app.Config{
				ConfirmPollInterval: cfg.TxQueue.ConfirmPollInterval,
				ConfirmTimeout:      cfg.TxQueue.ConfirmTimeout,
			},
			blockchainDI.GetBlockchainService(sr),
			txqueueDI.GetSigners(sr).Value(),
			txqueueDI.GetSequence(sr),
			log,
		)
		if err != nil {
			panic("failed to create queue: " + err.Error())
		}
		return q
	})

	return nil
}

// Startup binds the signer, starts nonce tracking and the submitter, and
// loads the configured contracts.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	sr := mono.Services()

	signers := txqueueDI.GetSigners(sr)
	seq := txqueueDI.GetSequence(sr)
	queue := txqueueDI.GetQueue(sr)

	contracts, err := ethereum.LoadContracts(mono.Config().Contracts)
	if err != nil {
		return err
	}
	queue.SetContracts(contracts)

	signers.Start()
	mono.OnClose(closerFunc(func() error { signers.Close(); return nil }))

	seq.Start()
	mono.OnClose(closerFunc(func() error { seq.Close(); return nil }))

	queue.Start()
	mono.OnClose(queue)

	log.Info(ctx, "txqueue module started", "contracts", len(contracts))
	return nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
