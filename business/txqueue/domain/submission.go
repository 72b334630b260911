package domain

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Submission is a transaction that reached the network. Wait blocks until
// its confirmation outcome is known.
type Submission struct {
	Hash  common.Hash
	Nonce uint64
	Tx    *types.Transaction

	done    chan struct{}
	once    sync.Once
	receipt *types.Receipt
	err     error
}

// NewSubmission returns a submission for tx and the function that settles
// it. Only the first settle call has an effect.
func NewSubmission(tx *types.Transaction) (*Submission, func(*types.Receipt, error)) {
	s := &Submission{
		Hash:  tx.Hash(),
		Nonce: tx.Nonce(),
		Tx:    tx,
		done:  make(chan struct{}),
	}
	return s, s.settle
}

func (s *Submission) settle(receipt *types.Receipt, err error) {
	s.once.Do(func() {
		s.receipt = receipt
		s.err = err
		close(s.done)
	})
}

// Wait returns the receipt, or the confirmation error: reverted or not
// found in time. Any number of callers may wait.
func (s *Submission) Wait(ctx context.Context) (*types.Receipt, error) {
	select {
	case <-s.done:
		return s.receipt, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Settled reports whether the confirmation outcome is known.
func (s *Submission) Settled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
