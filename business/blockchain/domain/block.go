// Package domain contains the core domain types for the blockchain context.
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Block represents a ledger block header.
type Block struct {
	Number    uint64
	Hash      common.Hash
	Timestamp time.Time
	BaseFee   *big.Int
}

// BlockFromHeader converts a go-ethereum header.
func BlockFromHeader(header *types.Header) *Block {
	return &Block{
		Number:    header.Number.Uint64(),
		Hash:      header.Hash(),
		Timestamp: time.Unix(int64(header.Time), 0),
		BaseFee:   header.BaseFee,
	}
}

// TimestampMillis returns the block timestamp in unix milliseconds.
func (b *Block) TimestampMillis() int64 {
	return b.Timestamp.UnixMilli()
}

// ConnectionState represents the state of the transport.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)

// Gauge returns the numeric form recorded in metrics.
func (s ConnectionState) Gauge() int64 {
	switch s {
	case StateConnecting:
		return 1
	case StateConnected:
		return 2
	default:
		return 0
	}
}

// ConnectionStatus contains detailed connection information.
type ConnectionStatus struct {
	State      ConnectionState
	LastBlock  uint64
	LastUpdate time.Time
	Inits      int
	HasPush    bool
}
