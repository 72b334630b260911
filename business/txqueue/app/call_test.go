package app

import (
	"context"
	"errors"
	"testing"

	"github.com/fd1az/chain-txqueue/business/txqueue/domain"
)

func TestTicket_WaitPrefersResolvedOverDoneContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sub := &domain.Submission{Nonce: 4}
	resolved := newTicket()
	resolved.resolve(sub, nil)

	for i := 0; i < 100; i++ {
		got, err := resolved.Wait(ctx)
		if err != nil || got != sub {
			t.Fatalf("Wait = %v, %v, want the submission", got, err)
		}
	}

	pending := newTicket()
	if _, err := pending.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait on pending ticket = %v, want context.Canceled", err)
	}
}
