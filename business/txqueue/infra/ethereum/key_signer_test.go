package ethereum

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	blockchainApp "github.com/fd1az/chain-txqueue/business/blockchain/app"
	blockchainDomain "github.com/fd1az/chain-txqueue/business/blockchain/domain"
	"github.com/fd1az/chain-txqueue/business/txqueue/app"
	"github.com/fd1az/chain-txqueue/business/txqueue/domain"
	"github.com/fd1az/chain-txqueue/internal/apperror"
)

const testKey = "0xb71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

// sendBackend records broadcasts. Methods it does not override panic
// through the nil embedded interface.
type sendBackend struct {
	blockchainApp.Backend

	mu       sync.Mutex
	sent     []*types.Transaction
	sendErr  error
	estimate uint64
	lastMsg  ethereum.CallMsg
	nonce    uint64
}

func (b *sendBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, tx)
	return nil
}

func (b *sendBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastMsg = msg
	return b.estimate, nil
}

func (b *sendBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return b.nonce, nil
}

type staticFees struct {
	caps  *blockchainDomain.FeeCaps
	err   error
	calls int
}

func (f *staticFees) SuggestFees(ctx context.Context) (*blockchainDomain.FeeCaps, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.caps, nil
}

func dynamicFees() *staticFees {
	return &staticFees{caps: &blockchainDomain.FeeCaps{
		GasTipCap: big.NewInt(2),
		GasFeeCap: big.NewInt(50),
		BaseFee:   big.NewInt(24),
	}}
}

func newTestSigner(t *testing.T, backend blockchainApp.Backend, fees FeeSource) app.Signer {
	t.Helper()
	factory, err := NewKeySignerFactory(KeySignerConfig{PrivateKey: testKey, ChainID: 31337, GasMarginPercent: 10}, fees)
	if err != nil {
		t.Fatalf("NewKeySignerFactory: %v", err)
	}
	s, err := factory(backend)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	return s
}

func testParams(nonce uint64) domain.TxParams {
	to := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	return domain.TxParams{To: &to, Nonce: nonce, GasLimit: 21000, Data: []byte{0x01}}
}

func TestNewKeySignerFactory_InvalidKey(t *testing.T) {
	_, err := NewKeySignerFactory(KeySignerConfig{PrivateKey: "0xnot-a-key", ChainID: 1}, dynamicFees())
	if apperror.GetCode(err) != apperror.CodeInvalidPrivateKey {
		t.Fatalf("err = %v, want %s", err, apperror.CodeInvalidPrivateKey)
	}
}

func TestKeySigner_SendTransaction(t *testing.T) {
	tests := []struct {
		name        string
		fees        *staticFees
		params      func(domain.TxParams) domain.TxParams
		wantType    uint8
		wantPrice   int64 // legacy gas price or dynamic fee cap
		wantTip     int64
		wantFeeHits int
	}{
		{
			name:        "dynamic fees from oracle",
			fees:        dynamicFees(),
			params:      func(p domain.TxParams) domain.TxParams { return p },
			wantType:    types.DynamicFeeTxType,
			wantPrice:   50,
			wantTip:     2,
			wantFeeHits: 1,
		},
		{
			name: "legacy chain",
			fees: &staticFees{caps: &blockchainDomain.FeeCaps{GasPrice: big.NewInt(9)}},
			params: func(p domain.TxParams) domain.TxParams {
				return p
			},
			wantType:    types.LegacyTxType,
			wantPrice:   9,
			wantFeeHits: 1,
		},
		{
			name: "gas price override skips oracle",
			fees: dynamicFees(),
			params: func(p domain.TxParams) domain.TxParams {
				p.GasPrice = big.NewInt(33)
				return p
			},
			wantType:  types.LegacyTxType,
			wantPrice: 33,
		},
		{
			name: "tip clamped to overridden fee cap",
			fees: dynamicFees(),
			params: func(p domain.TxParams) domain.TxParams {
				p.GasFeeCap = big.NewInt(1)
				return p
			},
			wantType:    types.DynamicFeeTxType,
			wantPrice:   1,
			wantTip:     1,
			wantFeeHits: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &sendBackend{}
			s := newTestSigner(t, backend, tt.fees)

			tx, err := s.SendTransaction(context.Background(), tt.params(testParams(7)))
			if err != nil {
				t.Fatalf("SendTransaction: %v", err)
			}

			if len(backend.sent) != 1 || backend.sent[0].Hash() != tx.Hash() {
				t.Fatal("transaction not broadcast")
			}
			if tx.Type() != tt.wantType {
				t.Fatalf("type = %d, want %d", tx.Type(), tt.wantType)
			}
			if tx.Nonce() != 7 || tx.Gas() != 21000 {
				t.Fatalf("nonce/gas = %d/%d", tx.Nonce(), tx.Gas())
			}
			if tx.GasFeeCap().Int64() != tt.wantPrice {
				t.Errorf("fee cap = %s, want %d", tx.GasFeeCap(), tt.wantPrice)
			}
			if tt.wantType == types.DynamicFeeTxType && tx.GasTipCap().Int64() != tt.wantTip {
				t.Errorf("tip = %s, want %d", tx.GasTipCap(), tt.wantTip)
			}
			if tt.fees.calls != tt.wantFeeHits {
				t.Errorf("fee lookups = %d, want %d", tt.fees.calls, tt.wantFeeHits)
			}

			from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(31337)), tx)
			if err != nil {
				t.Fatalf("Sender: %v", err)
			}
			if from != s.Address() {
				t.Fatalf("signed by %s, want %s", from.Hex(), s.Address().Hex())
			}
		})
	}
}

func TestKeySigner_FailureMarking(t *testing.T) {
	t.Run("fee failure is local", func(t *testing.T) {
		backend := &sendBackend{}
		s := newTestSigner(t, backend, &staticFees{err: errors.New("oracle down")})

		_, err := s.SendTransaction(context.Background(), testParams(0))
		if !errors.Is(err, domain.ErrNotSubmitted) {
			t.Fatalf("err = %v, want ErrNotSubmitted", err)
		}
		if domain.Classify(err) != domain.OutcomeUntouched {
			t.Fatalf("classified as %s", domain.Classify(err))
		}
		if len(backend.sent) != 0 {
			t.Fatal("broadcast despite fee failure")
		}
	})

	t.Run("broadcast failure is raw", func(t *testing.T) {
		nodeErr := errors.New("nonce too low")
		s := newTestSigner(t, &sendBackend{sendErr: nodeErr}, dynamicFees())

		_, err := s.SendTransaction(context.Background(), testParams(0))
		if !errors.Is(err, nodeErr) || errors.Is(err, domain.ErrNotSubmitted) {
			t.Fatalf("err = %v, want the node error unchanged", err)
		}
		if domain.Classify(err) != domain.OutcomeDesync {
			t.Fatalf("classified as %s", domain.Classify(err))
		}
	})
}

func TestKeySigner_EstimateGasAddsMargin(t *testing.T) {
	backend := &sendBackend{estimate: 100_000}
	s := newTestSigner(t, backend, dynamicFees())

	to := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	gas, err := s.EstimateGas(context.Background(), domain.CallRequest{To: &to, Value: big.NewInt(3)})
	if err != nil {
		t.Fatalf("EstimateGas: %v", err)
	}
	if gas != 110_000 {
		t.Fatalf("gas = %d, want 110000", gas)
	}
	if backend.lastMsg.From != s.Address() || *backend.lastMsg.To != to || backend.lastMsg.Value.Int64() != 3 {
		t.Fatalf("unexpected call msg %+v", backend.lastMsg)
	}
}

func TestKeySigner_PendingNonce(t *testing.T) {
	s := newTestSigner(t, &sendBackend{nonce: 42}, dynamicFees())

	n, err := s.PendingNonce(context.Background())
	if err != nil || n != 42 {
		t.Fatalf("PendingNonce = %d, %v", n, err)
	}
}
