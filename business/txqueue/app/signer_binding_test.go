package app

import (
	"errors"
	"sync"
	"testing"

	blockchainApp "github.com/fd1az/chain-txqueue/business/blockchain/app"
	"github.com/fd1az/chain-txqueue/internal/observable"
)

func TestSignerBinding_FollowsPairs(t *testing.T) {
	pairs := observable.NewValue[*blockchainApp.TransportPair](nil)

	var mu sync.Mutex
	var fail bool
	factory := func(blockchainApp.Backend) (Signer, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return nil, errors.New("keystore locked")
		}
		return newFakeSigner(0), nil
	}

	b := NewSignerBinding(pairs, factory, &mockLogger{})
	b.Start()
	t.Cleanup(b.Close)

	if b.Current() != nil {
		t.Fatal("signer bound before any pair")
	}

	pairs.Set(&blockchainApp.TransportPair{ID: 1})
	eventually(t, "signer for pair 1", func() bool {
		s := b.Current()
		return s != nil && s.PairID == 1
	})
	first := b.Current()

	pairs.Set(&blockchainApp.TransportPair{ID: 2})
	eventually(t, "signer for pair 2", func() bool {
		s := b.Current()
		return s != nil && s.PairID == 2
	})
	if b.Current().Signer == first.Signer {
		t.Fatal("signer not rebuilt for the new pair")
	}

	mu.Lock()
	fail = true
	mu.Unlock()

	pairs.Set(&blockchainApp.TransportPair{ID: 3})
	eventually(t, "signer cleared", func() bool { return b.Value().Get() == nil })
}
