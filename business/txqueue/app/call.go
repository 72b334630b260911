package app

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fd1az/chain-txqueue/business/txqueue/domain"
)

// QueuedCall is one pending call. It is immutable once queued; the queue
// owns it until it is popped.
type QueuedCall struct {
	ID       uint64
	Priority int

	estimateGas func(ctx context.Context, s Signer) (uint64, error)
	execute     func(ctx context.Context, s Signer, a domain.Attempt) (*domain.Submission, error)
	cancel      func(err error)
	ticket      *Ticket
}

// EstimateGas returns the gas limit to submit with.
func (c *QueuedCall) EstimateGas(ctx context.Context, s Signer) (uint64, error) {
	return c.estimateGas(ctx, s)
}

// Execute submits the call with the attempt's nonce and gas. On success the
// caller has already been handed the submission.
func (c *QueuedCall) Execute(ctx context.Context, s Signer, a domain.Attempt) (*domain.Submission, error) {
	return c.execute(ctx, s, a)
}

// Cancel rejects the caller with err.
func (c *QueuedCall) Cancel(err error) {
	c.cancel(err)
}

// settle resolves the Wait of the call's submission.
func (c *QueuedCall) settle(receipt *types.Receipt, err error) {
	if c.ticket.settle != nil {
		c.ticket.settle(receipt, err)
	}
}

// Ticket tracks one enqueued call.
type Ticket struct {
	ID uint64

	done chan struct{}
	once sync.Once
	sub  *domain.Submission
	err  error

	// set by the submitter before confirmation starts
	settle func(*types.Receipt, error)
}

func newTicket() *Ticket {
	return &Ticket{done: make(chan struct{})}
}

func (t *Ticket) resolve(sub *domain.Submission, err error) {
	t.once.Do(func() {
		t.sub = sub
		t.err = err
		close(t.done)
	})
}

// Wait blocks until the call was submitted or rejected, or ctx is done. A
// resolved ticket wins over a done ctx.
func (t *Ticket) Wait(ctx context.Context) (*domain.Submission, error) {
	select {
	case <-t.done:
		return t.sub, t.err
	default:
	}

	select {
	case <-t.done:
		return t.sub, t.err
	case <-ctx.Done():
		select {
		case <-t.done:
			return t.sub, t.err
		default:
			return nil, ctx.Err()
		}
	}
}

// Done is closed once the call was submitted or rejected.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

type callOptions struct {
	priority int
}

// CallOption configures one queued call.
type CallOption func(*callOptions)

// WithPriority sets the call's priority. Higher pops first; the default
// is 0.
func WithPriority(p int) CallOption {
	return func(o *callOptions) {
		o.priority = p
	}
}
