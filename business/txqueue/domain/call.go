// Package domain contains the call, submission and failure types of the
// transaction queue.
package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CallRequest is an unsigned state-changing call.
type CallRequest struct {
	To    *common.Address
	Data  []byte
	Value *big.Int
}

// CallOverrides are caller-supplied transaction fields. Zero values mean
// "not set".
type CallOverrides struct {
	GasLimit  uint64
	Value     *big.Int
	GasPrice  *big.Int
	GasTipCap *big.Int
	GasFeeCap *big.Int
}

// Attempt holds the fields the submitter assigns to one submission.
type Attempt struct {
	Nonce    uint64
	GasLimit uint64
}

// TxParams is everything a signer needs to build and send a transaction.
// Nil fee fields are filled by the signer.
type TxParams struct {
	To        *common.Address
	Data      []byte
	Value     *big.Int
	Nonce     uint64
	GasLimit  uint64
	GasPrice  *big.Int
	GasTipCap *big.Int
	GasFeeCap *big.Int
}

// Merge layers the request, the attempt and the overrides, later layers
// winning.
func Merge(req CallRequest, attempt Attempt, o CallOverrides) TxParams {
	p := TxParams{
		To:       req.To,
		Data:     req.Data,
		Value:    req.Value,
		Nonce:    attempt.Nonce,
		GasLimit: attempt.GasLimit,
	}

	if o.GasLimit > 0 {
		p.GasLimit = o.GasLimit
	}
	if o.Value != nil {
		p.Value = o.Value
	}
	p.GasPrice = o.GasPrice
	p.GasTipCap = o.GasTipCap
	p.GasFeeCap = o.GasFeeCap

	return p
}

// WithOverrides returns the request with the override value applied, the
// form used for gas estimation.
func (r CallRequest) WithOverrides(o CallOverrides) CallRequest {
	if o.Value != nil {
		r.Value = o.Value
	}
	return r
}
