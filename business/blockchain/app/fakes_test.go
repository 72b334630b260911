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
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	"github.com/fd1az/chain-txqueue/internal/config"
	"github.com/fd1az/chain-txqueue/internal/logger"
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

var errNodeDown = errors.New("node down")

// fakeBackend answers height and header queries. Methods it does not
// override panic through the nil embedded interface.
type fakeBackend struct {
	Backend

	mu         sync.Mutex
	height     uint64
	heightErr  error
	times      map[uint64]uint64 // block number -> unix seconds
	subErr     error
	subs       []chan<- *types.Header
	closed     bool
	heightHits int
	heightGate chan struct{} // when set, BlockNumber waits for it to close
}

func newFakeBackend(height uint64) *fakeBackend {
	return &fakeBackend{height: height, times: make(map[uint64]uint64)}
}

func (b *fakeBackend) BlockNumber(ctx context.Context) (uint64, error) {
	if b.heightGate != nil {
		select {
		case <-b.heightGate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.heightHits++
	if b.heightErr != nil {
		return 0, b.heightErr
	}
	return b.height, nil
}

func (b *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ts, ok := b.times[number.Uint64()]
	if !ok {
		return nil, ethereum.NotFound
	}
	return &types.Header{Number: new(big.Int).Set(number), Time: ts}, nil
}

func (b *fakeBackend) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subErr != nil {
		return nil, b.subErr
	}
	b.subs = append(b.subs, ch)
	return event.NewSubscription(func(quit <-chan struct{}) error {
		<-quit
		return nil
	}), nil
}

func (b *fakeBackend) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

func (b *fakeBackend) setHeight(h uint64) {
	b.mu.Lock()
	b.height = h
	b.mu.Unlock()
}

func (b *fakeBackend) setHeightErr(err error) {
	b.mu.Lock()
	b.heightErr = err
	b.mu.Unlock()
}

func (b *fakeBackend) subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *fakeBackend) pushHead(n uint64) {
	b.mu.Lock()
	subs := append([]chan<- *types.Header(nil), b.subs...)
	b.mu.Unlock()
	for _, ch := range subs {
		ch <- &types.Header{Number: new(big.Int).SetUint64(n)}
	}
}

func (b *fakeBackend) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// fakeSocket is a push socket the test can close or fail.
type fakeSocket struct {
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	err    error
	closes int
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{done: make(chan struct{})}
}

func (s *fakeSocket) Done() <-chan struct{} { return s.done }

func (s *fakeSocket) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *fakeSocket) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
}

func (s *fakeSocket) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// fakeDialer builds pairs of fake backends and records every dial.
type fakeDialer struct {
	mu      sync.Mutex
	push    bool
	height  uint64
	failN   int           // fail this many dials first
	gate    chan struct{} // when set, each dial waits for a receive
	dials   int
	urls    []string
	pairs   []*TransportPair
	sockets []*fakeSocket
}

func (d *fakeDialer) Dial(ctx context.Context, cfg config.NetworkConfig) (*TransportPair, error) {
	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	d.urls = append(d.urls, cfg.JSONRPCURL)

	if d.failN > 0 {
		d.failN--
		return nil, errNodeDown
	}

	pair := &TransportPair{Primary: newFakeBackend(d.height)}
	if d.push {
		sock := newFakeSocket()
		pair.Push = &PushTransport{Client: newFakeBackend(d.height), Socket: sock}
		d.sockets = append(d.sockets, sock)
	}
	d.pairs = append(d.pairs, pair)
	return pair, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) socket(i int) *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sockets[i]
}

func (d *fakeDialer) lastURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.urls[len(d.urls)-1]
}

func testNetworkConfig() config.NetworkConfig {
	return config.NetworkConfig{
		ChainID:           1,
		JSONRPCURL:        "http://node-a:8545",
		PollingInterval:   10 * time.Millisecond,
		HeartbeatInterval: time.Hour,
		HeartbeatTimeout:  time.Second,
		MaxRetries:        3,
		BackfillPace:      time.Millisecond,
	}
}

func fastBackOff() TransportOption {
	return WithBackOff(func(config.NetworkConfig) backoff.BackOff {
		return backoff.NewConstantBackOff(time.Millisecond)
	})
}

func newTestTransport(t *testing.T, cfg config.NetworkConfig, d Dialer, opts ...TransportOption) *Transport {
	t.Helper()
	opts = append([]TransportOption{fastBackOff()}, opts...)
	tr, err := NewTransport(cfg, d, &mockLogger{}, opts...)
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
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
