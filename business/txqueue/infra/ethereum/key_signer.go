// Package ethereum provides go-ethereum adapters for the transaction queue.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	blockchainApp "github.com/fd1az/chain-txqueue/business/blockchain/app"
	blockchainDomain "github.com/fd1az/chain-txqueue/business/blockchain/domain"
	"github.com/fd1az/chain-txqueue/business/txqueue/app"
	"github.com/fd1az/chain-txqueue/business/txqueue/domain"
	"github.com/fd1az/chain-txqueue/internal/apperror"
)

const tracerName = "github.com/fd1az/chain-txqueue/business/txqueue/infra/ethereum"

// FeeSource suggests fees for new transactions.
type FeeSource interface {
	SuggestFees(ctx context.Context) (*blockchainDomain.FeeCaps, error)
}

// KeySignerConfig configures signers built from a raw private key.
type KeySignerConfig struct {
	PrivateKey       string
	ChainID          uint64
	GasMarginPercent uint64
}

// KeySigner signs with a local private key and submits through one backend.
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	signer  types.Signer
	margin  uint64

	backend blockchainApp.Backend
	fees    FeeSource
	tracer  trace.Tracer
}

var _ app.Signer = (*KeySigner)(nil)

// NewKeySignerFactory parses the key once and returns a factory building a
// KeySigner per backend.
func NewKeySignerFactory(cfg KeySignerConfig, fees FeeSource) (app.SignerFactory, error) {
	key, err := crypto.HexToECDSA(trimHexPrefix(cfg.PrivateKey))
	if err != nil {
		// The key text never goes into the error.
		return nil, apperror.New(apperror.CodeInvalidPrivateKey)
	}

	address := crypto.PubkeyToAddress(key.PublicKey)
	signer := types.LatestSignerForChainID(new(big.Int).SetUint64(cfg.ChainID))
	tracer := otel.Tracer(tracerName)

	return func(backend blockchainApp.Backend) (app.Signer, error) {
		if backend == nil {
			return nil, apperror.New(apperror.CodeSignerUnavailable, apperror.WithContext("no backend"))
		}
		return &KeySigner{
			key:     key,
			address: address,
			signer:  signer,
			margin:  cfg.GasMarginPercent,
			backend: backend,
			fees:    fees,
			tracer:  tracer,
		}, nil
	}, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// Address returns the signing account.
func (s *KeySigner) Address() common.Address {
	return s.address
}

// PendingNonce returns the account's nonce including pending transactions.
func (s *KeySigner) PendingNonce(ctx context.Context) (uint64, error) {
	return s.backend.PendingNonceAt(ctx, s.address)
}

// EstimateGas estimates req from the signing account and adds the
// configured margin.
func (s *KeySigner) EstimateGas(ctx context.Context, req domain.CallRequest) (uint64, error) {
	gas, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  s.address,
		To:    req.To,
		Value: req.Value,
		Data:  req.Data,
	})
	if err != nil {
		return 0, err
	}
	return gas + gas*s.margin/100, nil
}

// SendTransaction fills missing fees, signs and broadcasts. Errors before
// the broadcast wrap domain.ErrNotSubmitted; broadcast errors are returned
// as the node reported them.
func (s *KeySigner) SendTransaction(ctx context.Context, p domain.TxParams) (*types.Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "signer.send",
		trace.WithAttributes(
			attribute.String("from", s.address.Hex()),
			attribute.Int64("nonce", int64(p.Nonce)),
		),
	)
	defer span.End()

	data, err := s.txData(ctx, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fees unavailable")
		return nil, fmt.Errorf("%w: %w", domain.ErrNotSubmitted, err)
	}

	tx, err := types.SignTx(types.NewTx(data), s.signer, s.key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sign failed")
		return nil, fmt.Errorf("%w: sign: %w", domain.ErrNotSubmitted, err)
	}

	if err := s.backend.SendTransaction(ctx, tx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "broadcast failed")
		return nil, err
	}

	span.SetAttributes(attribute.String("tx_hash", tx.Hash().Hex()))
	span.SetStatus(codes.Ok, "sent")
	return tx, nil
}

// TransactionReceipt returns ethereum.NotFound while hash is unmined.
func (s *KeySigner) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return s.backend.TransactionReceipt(ctx, hash)
}

// txData builds a legacy transaction when a gas price is given or the
// chain has no base fee, and a dynamic-fee transaction otherwise.
func (s *KeySigner) txData(ctx context.Context, p domain.TxParams) (types.TxData, error) {
	value := p.Value
	if value == nil {
		value = new(big.Int)
	}

	if p.GasPrice != nil {
		return s.legacy(p, value, p.GasPrice), nil
	}

	tip, feeCap := p.GasTipCap, p.GasFeeCap
	if tip == nil || feeCap == nil {
		caps, err := s.fees.SuggestFees(ctx)
		if err != nil {
			return nil, err
		}
		if !caps.Dynamic() && tip == nil && feeCap == nil {
			return s.legacy(p, value, caps.GasPrice), nil
		}
		if tip == nil {
			tip = caps.GasTipCap
			if tip == nil {
				tip = caps.GasPrice
			}
		}
		if feeCap == nil {
			feeCap = caps.GasFeeCap
			if feeCap == nil {
				feeCap = caps.GasPrice
			}
		}
	}

	if tip.Cmp(feeCap) > 0 {
		tip = feeCap
	}

	return &types.DynamicFeeTx{
		ChainID:   s.signer.ChainID(),
		Nonce:     p.Nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       p.GasLimit,
		To:        p.To,
		Value:     value,
		Data:      p.Data,
	}, nil
}

func (s *KeySigner) legacy(p domain.TxParams, value, price *big.Int) *types.LegacyTx {
	return &types.LegacyTx{
		Nonce:    p.Nonce,
		GasPrice: price,
		Gas:      p.GasLimit,
		To:       p.To,
		Value:    value,
		Data:     p.Data,
	}
}
