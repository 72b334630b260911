package app

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	blockchainApp "github.com/fd1az/chain-txqueue/business/blockchain/app"
	blockchainDomain "github.com/fd1az/chain-txqueue/business/blockchain/domain"
	"github.com/fd1az/chain-txqueue/business/txqueue/domain"
	"github.com/fd1az/chain-txqueue/internal/logger"
	"github.com/fd1az/chain-txqueue/internal/observable"
)

// mockLogger implements logger.LoggerInterface for testing.
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Debugc(ctx context.Context, caller int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, caller int, msg string, args ...any) {}

var _ logger.LoggerInterface = (*mockLogger)(nil)

var errEstimate = errors.New("execution reverted")

// fakeSigner records submissions and answers nonce and receipt queries.
type fakeSigner struct {
	addr common.Address

	mu          sync.Mutex
	pending     uint64        // network transaction count
	nonceErrs   int           // fail this many PendingNonce calls first
	nonceGate   chan struct{} // when set, the first PendingNonce waits for it
	nonceCalls  int
	estimates   int
	estimateErr map[string]error // keyed by call data
	sendErrs    []error          // consumed one per SendTransaction
	onSendErr   func()
	sendGate    chan struct{} // when set, the next send announces itself on it and waits for a release
	sent        []domain.TxParams
	receipts    map[common.Hash]*types.Receipt

	active    int
	maxActive int
}

func newFakeSigner(pending uint64) *fakeSigner {
	return &fakeSigner{
		addr:        common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		pending:     pending,
		estimateErr: make(map[string]error),
		receipts:    make(map[common.Hash]*types.Receipt),
	}
}

func (s *fakeSigner) Address() common.Address { return s.addr }

func (s *fakeSigner) PendingNonce(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	s.nonceCalls++
	first := s.nonceCalls == 1
	gate := s.nonceGate
	n := s.pending
	if s.nonceErrs > 0 {
		s.nonceErrs--
		s.mu.Unlock()
		return 0, errors.New("connection refused")
	}
	s.mu.Unlock()

	if first && gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return n, nil
}

// EstimateGas opens the instrumented critical section; SendTransaction
// closes it.
func (s *fakeSigner) EstimateGas(ctx context.Context, req domain.CallRequest) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.estimates++
	if err := s.estimateErr[string(req.Data)]; err != nil {
		return 0, err
	}

	s.active++
	if s.active > s.maxActive {
		s.maxActive = s.active
	}
	return 21000, nil
}

func (s *fakeSigner) SendTransaction(ctx context.Context, p domain.TxParams) (*types.Transaction, error) {
	// Widen the window a concurrent submitter would need to overlap.
	time.Sleep(time.Millisecond)

	s.mu.Lock()
	gate := s.sendGate
	s.sendGate = nil
	if gate != nil {
		// The node already counts the transaction while the call is in flight.
		s.pending = p.Nonce + 1
	}
	s.mu.Unlock()

	if gate != nil {
		gate <- struct{}{}
		<-gate
	}

	s.mu.Lock()
	s.active--

	if len(s.sendErrs) > 0 {
		err := s.sendErrs[0]
		s.sendErrs = s.sendErrs[1:]
		hook := s.onSendErr
		s.mu.Unlock()
		if hook != nil {
			hook()
		}
		return nil, err
	}

	s.sent = append(s.sent, p)
	s.pending = p.Nonce + 1
	s.mu.Unlock()

	value := p.Value
	if value == nil {
		value = new(big.Int)
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    p.Nonce,
		To:       p.To,
		Gas:      p.GasLimit,
		GasPrice: big.NewInt(1),
		Value:    value,
		Data:     p.Data,
	}), nil
}

func (s *fakeSigner) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (s *fakeSigner) setPending(n uint64) {
	s.mu.Lock()
	s.pending = n
	s.mu.Unlock()
}

func (s *fakeSigner) setReceipt(hash common.Hash, status uint64) {
	s.mu.Lock()
	s.receipts[hash] = &types.Receipt{
		TxHash:      hash,
		Status:      status,
		BlockNumber: big.NewInt(1),
		GasUsed:     21000,
	}
	s.mu.Unlock()
}

func (s *fakeSigner) sentParams() []domain.TxParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TxParams(nil), s.sent...)
}

func (s *fakeSigner) sentData() []string {
	var out []string
	for _, p := range s.sentParams() {
		out = append(out, string(p.Data))
	}
	return out
}

func (s *fakeSigner) estimateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.estimates
}

func (s *fakeSigner) peakActive() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxActive
}

func (s *fakeSigner) nonceCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonceCalls
}

// fakeConn is a controllable connection.
type fakeConn struct {
	state *observable.Value[blockchainDomain.ConnectionState]
	pair  *observable.Value[*blockchainApp.TransportPair]
}

func newFakeConn(connected bool) *fakeConn {
	state := blockchainDomain.StateConnecting
	if connected {
		state = blockchainDomain.StateConnected
	}
	return &fakeConn{
		state: observable.NewValue(state),
		pair:  observable.NewValue(&blockchainApp.TransportPair{ID: 1}),
	}
}

func (c *fakeConn) StateValue() observable.Readable[blockchainDomain.ConnectionState] {
	return c.state
}

func (c *fakeConn) PairValue() observable.Readable[*blockchainApp.TransportPair] {
	return c.pair
}

func (c *fakeConn) connect() {
	c.state.Set(blockchainDomain.StateConnected)
}

var _ Connection = (*fakeConn)(nil)

func fastFetch() SequenceOption {
	return WithFetchBackOff(func() backoff.BackOff {
		return backoff.NewConstantBackOff(time.Millisecond)
	})
}

func newTestSequence(t *testing.T, signers observable.Readable[*BoundSigner]) *SequenceManager {
	t.Helper()
	seq, err := NewSequenceManager(signers, &mockLogger{}, fastFetch())
	if err != nil {
		t.Fatalf("NewSequenceManager: %v", err)
	}
	t.Cleanup(seq.Close)
	return seq
}

// harness wires a queue to a fake connection and signer.
type harness struct {
	conn    *fakeConn
	signer  *fakeSigner
	signers *observable.Value[*BoundSigner]
	seq     *SequenceManager
	queue   *Queue
}

func testQueueConfig() Config {
	return Config{
		ConfirmPollInterval: 2 * time.Millisecond,
		ConfirmTimeout:      time.Second,
	}
}

func newHarness(t *testing.T, signer *fakeSigner, connected bool) *harness {
	t.Helper()
	return newHarnessWithConfig(t, signer, connected, testQueueConfig())
}

func newHarnessWithConfig(t *testing.T, signer *fakeSigner, connected bool, cfg Config) *harness {
	t.Helper()

	h := &harness{
		conn:    newFakeConn(connected),
		signer:  signer,
		signers: observable.NewValue(&BoundSigner{Signer: signer, PairID: 1}),
	}

	h.seq = newTestSequence(t, h.signers)
	h.seq.Start()

	q, err := NewQueue(cfg, h.conn, h.signers, h.seq, &mockLogger{})
	if err != nil {
		t.Fatalf("NewQueue: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	q.Start()
	h.queue = q

	return h
}

func call(data string) domain.CallRequest {
	to := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	return domain.CallRequest{To: &to, Data: []byte(data)}
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
