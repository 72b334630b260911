// Package app contains application services and port definitions for the blockchain context.
package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fd1az/chain-txqueue/internal/config"
)

// Backend is the request/response surface of a ledger node.
// *ethclient.Client satisfies it.
type Backend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// PushBackend is a Backend that can also push new heads.
type PushBackend interface {
	Backend
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// Socket reports the lifecycle of a push connection.
type Socket interface {
	// Done is closed once the connection has ended.
	Done() <-chan struct{}
	// Err is nil for a clean close.
	Err() error
	Close() error
}

// PushTransport pairs a push-capable client with its underlying socket.
type PushTransport struct {
	Client PushBackend
	Socket Socket
}

// TransportPair is the set of connections published after a successful
// initialization. Push is nil when no push endpoint is configured.
type TransportPair struct {
	ID      uint64
	Primary Backend
	Push    *PushTransport
}

// Heartbeat returns the backend used for liveness probes and the first
// height query: the push client when present, the primary otherwise.
func (p *TransportPair) Heartbeat() Backend {
	if p.Push != nil {
		return p.Push.Client
	}
	return p.Primary
}

// Dialer creates transport pairs from network configuration.
type Dialer interface {
	Dial(ctx context.Context, cfg config.NetworkConfig) (*TransportPair, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, cfg config.NetworkConfig) (*TransportPair, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, cfg config.NetworkConfig) (*TransportPair, error) {
	return f(ctx, cfg)
}
