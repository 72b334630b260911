package main

import (
	"context"
	"time"

	blockchainDI "github.com/fd1az/chain-txqueue/business/blockchain/di"
	blockchainDomain "github.com/fd1az/chain-txqueue/business/blockchain/domain"
	txqueueDI "github.com/fd1az/chain-txqueue/business/txqueue/di"
	"github.com/fd1az/chain-txqueue/internal/di"
	"github.com/fd1az/chain-txqueue/pkg/ui"
)

const statsInterval = time.Second

// runBridge forwards engine state to the TUI until ctx is done.
func runBridge(ctx context.Context, services di.ServiceRegistry) {
	svc := blockchainDI.GetBlockchainService(services)
	oracle := blockchainDI.GetFeeOracle(services)
	seq := txqueueDI.GetSequence(services)
	signers := txqueueDI.GetSigners(services)
	queue := txqueueDI.GetQueue(services)

	go func() {
		state, pairs := svc.StateValue(), svc.PairValue()
		for {
			stateChanged, pairChanged := state.Changed(), pairs.Changed()

			msg := ui.ConnectionMsg{State: string(state.Get())}
			if pair := pairs.Get(); pair != nil {
				msg.PairID = pair.ID
				msg.Push = pair.Push != nil
			}
			ui.Send(msg)

			select {
			case <-ctx.Done():
				return
			case <-stateChanged:
			case <-pairChanged:
			}
		}
	}()

	go func() {
		nonces, bound := seq.NonceValue(), signers.Value()
		for {
			nonceChanged, signerChanged := nonces.Changed(), bound.Changed()

			msg := ui.NonceMsg{}
			if n := nonces.Get(); n != nil {
				msg.Nonce, msg.Known = *n, true
			}
			if b := bound.Get(); b != nil {
				msg.Address = b.Signer.Address().Hex()
			}
			ui.Send(msg)

			select {
			case <-ctx.Done():
				return
			case <-nonceChanged:
			case <-signerChanged:
			}
		}
	}()

	go func() {
		heights := make(chan uint64, 64)
		sub := svc.SubscribeHeights(heights)
		defer sub.Unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Err():
				return
			case n := <-heights:
				ui.Send(ui.BlockMsg{Number: n})
				ui.Send(ui.ClockMsg{ChainTime: time.UnixMilli(svc.ChainTime())})
			}
		}
	}()

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		st := queue.Stats()
		ui.Send(ui.QueueStatsMsg{
			Queued:    st.Queued,
			Submitted: st.Submitted,
			Failed:    st.Failed,
			Confirmed: st.Confirmed,
			Reverted:  st.Reverted,
		})

		if svc.ConnectionState() != blockchainDomain.StateConnected {
			continue
		}
		fees, err := oracle.SuggestFees(ctx)
		if err != nil {
			continue
		}
		wei := fees.GasPrice
		if fees.Dynamic() {
			wei = fees.GasFeeCap
		}
		if wei != nil {
			ui.Send(ui.GasPriceMsg{GweiPrice: blockchainDomain.NewGasPrice(wei).Gwei()})
		}
	}
}
