package app

import (
	"context"
	"sync"

	blockchainApp "github.com/fd1az/chain-txqueue/business/blockchain/app"
	"github.com/fd1az/chain-txqueue/internal/logger"
	"github.com/fd1az/chain-txqueue/internal/observable"
)

// BoundSigner is a signer together with the transport pair it was built on.
type BoundSigner struct {
	Signer Signer
	PairID uint64
}

// SignerBinding rebuilds the active signer whenever a new transport pair is
// published. The active signer is nil until the first pair, or when the
// factory fails.
type SignerBinding struct {
	pairs   observable.Readable[*blockchainApp.TransportPair]
	factory SignerFactory
	logger  logger.LoggerInterface

	value *observable.Value[*BoundSigner]

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSignerBinding creates a binding. Call Start to follow pairs.
func NewSignerBinding(pairs observable.Readable[*blockchainApp.TransportPair], factory SignerFactory, log logger.LoggerInterface) *SignerBinding {
	runCtx, cancel := context.WithCancel(context.Background())
	return &SignerBinding{
		pairs:   pairs,
		factory: factory,
		logger:  log,
		value:   observable.NewValue[*BoundSigner](nil),
		runCtx:  runCtx,
		cancel:  cancel,
	}
}

// Start follows published pairs until Close.
func (b *SignerBinding) Start() {
	b.wg.Add(1)
	go b.run()
}

// Value exposes the active signer for change notification.
func (b *SignerBinding) Value() observable.Readable[*BoundSigner] {
	return b.value
}

// Current returns the active signer, or nil.
func (b *SignerBinding) Current() *BoundSigner {
	return b.value.Get()
}

// Close stops following pairs.
func (b *SignerBinding) Close() {
	b.cancel()
	b.wg.Wait()
}

func (b *SignerBinding) run() {
	defer b.wg.Done()

	var current *blockchainApp.TransportPair
	for {
		changed := b.pairs.Changed()

		if pair := b.pairs.Get(); pair != nil && pair != current {
			current = pair
			b.bind(pair)
		}

		select {
		case <-b.runCtx.Done():
			return
		case <-changed:
		}
	}
}

func (b *SignerBinding) bind(pair *blockchainApp.TransportPair) {
	signer, err := b.factory(pair.Primary)
	if err != nil {
		b.logger.Error(b.runCtx, "signer unavailable", "pair_id", pair.ID, "error", err)
		b.value.Set(nil)
		return
	}

	b.value.Set(&BoundSigner{Signer: signer, PairID: pair.ID})
	b.logger.Info(b.runCtx, "signer bound", "address", signer.Address().Hex(), "pair_id", pair.ID)
}
