package main

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	txqueueApp "github.com/fd1az/chain-txqueue/business/txqueue/app"
	txqueueDI "github.com/fd1az/chain-txqueue/business/txqueue/di"
	"github.com/fd1az/chain-txqueue/business/txqueue/domain"
	"github.com/fd1az/chain-txqueue/internal/apperror"
	"github.com/fd1az/chain-txqueue/internal/di"
	"github.com/fd1az/chain-txqueue/internal/logger"
	"github.com/fd1az/chain-txqueue/internal/observable"
	"github.com/fd1az/chain-txqueue/pkg/ui"
)

// runSelfTest queues n zero-value transfers from the signer to itself at
// once and waits for every receipt.
func runSelfTest(ctx context.Context, services di.ServiceRegistry, n int, log logger.LoggerInterface) error {
	signers := txqueueDI.GetSigners(services)
	queue := txqueueDI.GetQueue(services)

	bound, err := observable.WaitFor(ctx, func() (*txqueueApp.BoundSigner, bool) {
		b := signers.Current()
		return b, b != nil
	}, signers.Value())
	if err != nil {
		return fmt.Errorf("self-test: waiting for signer: %w", err)
	}

	self := bound.Signer.Address()
	log.Info(ctx, "self-test started", "calls", n, "address", self.Hex())

	var (
		wg     sync.WaitGroup
		failed atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			sub, err := queue.QueueCall(ctx, domain.CallRequest{To: &self, Value: new(big.Int)}, domain.CallOverrides{})
			if err != nil {
				failed.Add(1)
				log.Error(ctx, "self-test call failed", "call", i, "code", string(apperror.GetCode(err)), "error", err)
				ui.Send(ui.ErrorMsg{Error: err})
				return
			}

			hash := sub.Hash.Hex()
			log.Info(ctx, "self-test submitted", "call", i, "hash", hash, "nonce", sub.Nonce)
			ui.Send(ui.SubmissionMsg{Hash: hash, Nonce: sub.Nonce, Status: "pending"})

			receipt, err := sub.Wait(ctx)
			status := receiptStatus(err)
			if err != nil {
				failed.Add(1)
				log.Warn(ctx, "self-test not confirmed", "call", i, "hash", hash, "status", status, "error", err)
			} else {
				log.Info(ctx, "self-test confirmed", "call", i, "hash", hash, "block", receipt.BlockNumber.Uint64())
			}
			ui.Send(ui.SubmissionMsg{Hash: hash, Nonce: sub.Nonce, Status: status})
		}(i)
	}
	wg.Wait()

	if f := failed.Load(); f > 0 {
		return fmt.Errorf("self-test: %d of %d calls did not confirm", f, n)
	}
	log.Info(ctx, "self-test passed", "calls", n)
	return nil
}

func receiptStatus(err error) string {
	if err == nil {
		return "confirmed"
	}
	switch apperror.GetCode(err) {
	case apperror.CodeTxReverted:
		return "reverted"
	case apperror.CodeReceiptTimeout:
		return "timeout"
	default:
		return "failed"
	}
}
