package app

import (
	"context"

	"github.com/ethereum/go-ethereum/event"

	"github.com/fd1az/chain-txqueue/business/blockchain/domain"
	"github.com/fd1az/chain-txqueue/internal/apperror"
	"github.com/fd1az/chain-txqueue/internal/observable"
)

// BlockchainService coordinates the transport, the block height stream
// and the chain clock.
type BlockchainService struct {
	transport *Transport
	stream    *BlockStream
	clockSync *ClockSync
	clock     *domain.Clock
}

// NewBlockchainService creates a new BlockchainService.
func NewBlockchainService(transport *Transport, stream *BlockStream, clockSync *ClockSync, clock *domain.Clock) *BlockchainService {
	return &BlockchainService{
		transport: transport,
		stream:    stream,
		clockSync: clockSync,
		clock:     clock,
	}
}

// Start connects the transport and starts the stream and clock sync. The
// stream and clock keep running even if the first connection fails; the
// transport recovers on its own triggers.
func (s *BlockchainService) Start(ctx context.Context) error {
	s.stream.Start()
	s.clockSync.Start()
	return s.transport.Start(ctx)
}

// Transport returns the underlying transport.
func (s *BlockchainService) Transport() *Transport {
	return s.transport
}

// ConnectionState returns the current connection state.
func (s *BlockchainService) ConnectionState() domain.ConnectionState {
	return s.transport.State()
}

// ConnectionStatus returns detailed connection status.
func (s *BlockchainService) ConnectionStatus() domain.ConnectionStatus {
	status := s.transport.Status()
	status.LastBlock = s.stream.Latest()
	return status
}

// StateValue exposes the connection state for change notification.
func (s *BlockchainService) StateValue() observable.Readable[domain.ConnectionState] {
	return s.transport.StateValue()
}

// PairValue exposes the published transport pair.
func (s *BlockchainService) PairValue() observable.Readable[*TransportPair] {
	return s.transport.PairValue()
}

// Backend returns the primary backend of the published pair.
func (s *BlockchainService) Backend() (Backend, error) {
	pair := s.transport.Pair()
	if pair == nil || s.transport.State() != domain.StateConnected {
		return nil, apperror.New(apperror.CodeTransportNotConnected)
	}
	return pair.Primary, nil
}

// SubscribeHeights delivers block heights to ch.
func (s *BlockchainService) SubscribeHeights(ch chan<- uint64) event.Subscription {
	return s.stream.SubscribeHeights(ch)
}

// LatestHeight returns the last emitted block height.
func (s *BlockchainService) LatestHeight() uint64 {
	return s.stream.Latest()
}

// ChainTime returns the chain clock in unix milliseconds.
func (s *BlockchainService) ChainTime() int64 {
	return s.clock.CurrentTime()
}

// Close stops everything in reverse start order.
func (s *BlockchainService) Close() error {
	s.clockSync.Close()
	s.stream.Close()
	return s.transport.Close()
}
