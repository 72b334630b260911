// Package app contains the transaction queue, the nonce sequence manager
// and their port definitions.
package app

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	blockchainApp "github.com/fd1az/chain-txqueue/business/blockchain/app"
	blockchainDomain "github.com/fd1az/chain-txqueue/business/blockchain/domain"
	"github.com/fd1az/chain-txqueue/business/txqueue/domain"
	"github.com/fd1az/chain-txqueue/internal/observable"
)

// Signer submits transactions for one account over one backend.
type Signer interface {
	Address() common.Address
	// PendingNonce returns the account's transaction count including
	// pending transactions.
	PendingNonce(ctx context.Context) (uint64, error)
	EstimateGas(ctx context.Context, req domain.CallRequest) (uint64, error)
	// SendTransaction signs and broadcasts. Failures before broadcast wrap
	// domain.ErrNotSubmitted.
	SendTransaction(ctx context.Context, params domain.TxParams) (*types.Transaction, error)
	// TransactionReceipt returns ethereum.NotFound while the transaction is
	// unmined.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// SignerFactory builds a signer bound to backend.
type SignerFactory func(backend blockchainApp.Backend) (Signer, error)

// ContractHandle packs calls for one deployed contract.
type ContractHandle interface {
	Address() common.Address
	ABI() *abi.ABI
	PopulateTransaction(method string, args ...any) (domain.CallRequest, error)
}

// Connection is the part of the blockchain context the queue depends on.
type Connection interface {
	StateValue() observable.Readable[blockchainDomain.ConnectionState]
	PairValue() observable.Readable[*blockchainApp.TransportPair]
}
