package app

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/chain-txqueue/business/txqueue/domain"
	"github.com/fd1az/chain-txqueue/internal/apperror"
)

// BoundContract sends calls to one contract through the queue.
type BoundContract struct {
	name   string
	handle ContractHandle
	queue  *Queue
}

// Name returns the contract's logical name.
func (c *BoundContract) Name() string { return c.name }

// Address returns the deployed address.
func (c *BoundContract) Address() common.Address { return c.handle.Address() }

// ABI returns the contract interface.
func (c *BoundContract) ABI() *abi.ABI { return c.handle.ABI() }

// Handle returns the underlying handle.
func (c *BoundContract) Handle() ContractHandle { return c.handle }

// Send queues a call to method and blocks until it is submitted.
func (c *BoundContract) Send(ctx context.Context, method string, overrides domain.CallOverrides, args ...any) (*domain.Submission, error) {
	return c.queue.Invoke(ctx, c.handle, method, overrides, args...)
}

// SetContracts replaces the contract set. Bound contracts obtained earlier
// stay usable.
func (q *Queue) SetContracts(contracts map[string]ContractHandle) {
	cp := make(map[string]ContractHandle, len(contracts))
	for name, h := range contracts {
		cp[name] = h
	}
	q.contracts.Set(cp)
}

// Contract returns the bound contract registered under name.
func (q *Queue) Contract(name string) (*BoundContract, error) {
	set, version := q.contracts.Load()

	q.boundMu.Lock()
	defer q.boundMu.Unlock()

	if q.bound == nil || q.boundVersion != version {
		q.bound = make(map[string]*BoundContract, len(set))
		for n, h := range set {
			q.bound[n] = &BoundContract{name: n, handle: h, queue: q}
		}
		q.boundVersion = version
	}

	c, ok := q.bound[name]
	if !ok {
		return nil, apperror.New(apperror.CodeContractNotFound, apperror.WithContext(name))
	}
	return c, nil
}

// Invoke populates a call to method on contract and queues it.
func (q *Queue) Invoke(ctx context.Context, contract ContractHandle, method string, overrides domain.CallOverrides, args ...any) (*domain.Submission, error) {
	req, err := contract.PopulateTransaction(method, args...)
	if err != nil {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("%s.%s", contract.Address().Hex(), method)))
	}
	return q.QueueCall(ctx, req, overrides)
}
