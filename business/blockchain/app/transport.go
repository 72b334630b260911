package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/chain-txqueue/business/blockchain/domain"
	"github.com/fd1az/chain-txqueue/internal/apperror"
	"github.com/fd1az/chain-txqueue/internal/config"
	"github.com/fd1az/chain-txqueue/internal/logger"
	"github.com/fd1az/chain-txqueue/internal/observable"
)

const (
	tracerName = "github.com/fd1az/chain-txqueue/business/blockchain/app"
	meterName  = "github.com/fd1az/chain-txqueue/business/blockchain/app"
)

var errTransportClosed = errors.New("transport closed")

// transportMetrics holds OTEL metric instruments.
type transportMetrics struct {
	inits             metric.Int64Counter
	initFailures      metric.Int64Counter
	connectionState   metric.Int64Gauge
	heartbeatFailures metric.Int64Counter
	socketEvents      metric.Int64Counter
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithExternalConnection makes every initialization publish the given
// connections instead of dialing. The caller keeps ownership: the transport
// never closes them.
func WithExternalConnection(pair *TransportPair) TransportOption {
	return func(t *Transport) {
		t.external = true
		t.dialer = DialerFunc(func(context.Context, config.NetworkConfig) (*TransportPair, error) {
			return &TransportPair{Primary: pair.Primary, Push: pair.Push}, nil
		})
	}
}

// WithBackOff overrides the retry policy used between init attempts.
func WithBackOff(fn func(cfg config.NetworkConfig) backoff.BackOff) TransportOption {
	return func(t *Transport) {
		t.newBackOff = fn
	}
}

// Transport maintains a primary request/response connection and an optional
// push connection. It reinitializes both when the push socket fails, when a
// heartbeat probe fails, or when the network configuration changes.
//
// At most one initialization runs at a time: InitTransport is a no-op while
// the state is CONNECTING.
type Transport struct {
	dialer     Dialer
	logger     logger.LoggerInterface
	external   bool
	newBackOff func(cfg config.NetworkConfig) backoff.BackOff

	cfg   *observable.Value[config.NetworkConfig]
	state *observable.Value[domain.ConnectionState]
	pair  *observable.Value[*TransportPair]

	// mu guards the CONNECTING transition, listener detachment and shutdown.
	mu     sync.Mutex
	detach chan struct{}
	nextID uint64
	inits  atomic.Int64

	runCtx context.Context
	cancel context.CancelFunc
	closed atomic.Bool
	wg     sync.WaitGroup

	// Observability
	tracer  trace.Tracer
	metrics *transportMetrics
}

// NewTransport creates a disconnected transport. Call Start to connect.
func NewTransport(cfg config.NetworkConfig, dialer Dialer, log logger.LoggerInterface, opts ...TransportOption) (*Transport, error) {
	runCtx, cancel := context.WithCancel(context.Background())

	t := &Transport{
		dialer: dialer,
		logger: log,
		cfg:    observable.NewValue(cfg),
		state:  observable.NewValue(domain.StateDisconnected),
		pair:   observable.NewValue[*TransportPair](nil),
		runCtx: runCtx,
		cancel: cancel,
		tracer: otel.Tracer(tracerName),
		newBackOff: func(cfg config.NetworkConfig) backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			if cfg.InitialBackoff > 0 {
				b.InitialInterval = cfg.InitialBackoff
			}
			if cfg.MaxBackoff > 0 {
				b.MaxInterval = cfg.MaxBackoff
			}
			return b
		},
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.dialer == nil {
		cancel()
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("transport requires a dialer or an external connection"))
	}

	if err := t.initMetrics(); err != nil {
		cancel()
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return t, nil
}

// initMetrics initializes OTEL metric instruments.
func (t *Transport) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	t.metrics = &transportMetrics{}

	t.metrics.inits, err = meter.Int64Counter(
		"transport_inits_total",
		metric.WithDescription("Total successful transport initializations"),
		metric.WithUnit("{init}"),
	)
	if err != nil {
		return err
	}

	t.metrics.initFailures, err = meter.Int64Counter(
		"transport_init_failures_total",
		metric.WithDescription("Failed transport init attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return err
	}

	t.metrics.connectionState, err = meter.Int64Gauge(
		"transport_connection_state",
		metric.WithDescription("Transport connection state (0=disconnected, 1=connecting, 2=connected)"),
		metric.WithUnit("{state}"),
	)
	if err != nil {
		return err
	}

	t.metrics.heartbeatFailures, err = meter.Int64Counter(
		"transport_heartbeat_failures_total",
		metric.WithDescription("Failed liveness heartbeats"),
		metric.WithUnit("{probe}"),
	)
	if err != nil {
		return err
	}

	t.metrics.socketEvents, err = meter.Int64Counter(
		"transport_socket_events_total",
		metric.WithDescription("Push socket close and error events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Start begins the heartbeat and performs the first initialization.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.closed.Load() {
		t.mu.Unlock()
		return apperror.New(apperror.CodeTransportNotConnected, apperror.WithCause(errTransportClosed))
	}
	t.wg.Add(1)
	t.mu.Unlock()

	go t.runHeartbeat()

	return t.InitTransport(ctx)
}

// InitTransport tears down the current connections, dials new ones, checks
// that they answer, and publishes them. Failed attempts are retried with
// exponential backoff up to NetworkConfig.MaxRetries times.
func (t *Transport) InitTransport(ctx context.Context) error {
	if t.closed.Load() {
		return apperror.New(apperror.CodeTransportNotConnected, apperror.WithCause(errTransportClosed))
	}

	t.mu.Lock()
	if t.state.Get() == domain.StateConnecting {
		t.mu.Unlock()
		return nil
	}
	t.setState(domain.StateConnecting)
	t.mu.Unlock()

	t.teardown()

	for {
		cfg, version := t.cfg.Load()

		pair, err := t.establish(ctx, cfg)

		if !t.external && !t.closed.Load() && t.cfg.Version() != version {
			if pair != nil {
				t.closePair(pair)
			}
			t.logger.Info(ctx, "network config changed during init, restarting")
			continue
		}

		if err != nil {
			t.setState(domain.StateDisconnected)
			return err
		}

		return t.publish(ctx, pair)
	}
}

// UpdateConfig publishes a new network configuration and reinitializes.
func (t *Transport) UpdateConfig(cfg config.NetworkConfig) {
	t.cfg.Set(cfg)
	t.goReinit("config changed")
}

// establish dials and checks a new pair, retrying with backoff.
func (t *Transport) establish(ctx context.Context, cfg config.NetworkConfig) (*TransportPair, error) {
	ctx, span := t.tracer.Start(ctx, "transport.init",
		trace.WithAttributes(
			attribute.String("json_rpc_url", cfg.JSONRPCURL),
			attribute.Bool("push", cfg.HasPush()),
		),
	)
	defer span.End()

	attempt := 0
	pair, err := backoff.Retry(ctx, func() (*TransportPair, error) {
		attempt++
		if t.closed.Load() {
			return nil, backoff.Permanent(errTransportClosed)
		}

		pair, err := t.dialer.Dial(ctx, cfg)
		if err != nil {
			return nil, err
		}

		if !cfg.SkipNetworkCheck {
			if err := t.checkLiveness(ctx, cfg, pair); err != nil {
				t.closePair(pair)
				return nil, err
			}
		}

		return pair, nil
	},
		backoff.WithBackOff(t.newBackOff(cfg)),
		backoff.WithMaxTries(cfg.MaxRetries+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			t.metrics.initFailures.Add(ctx, 1)
			t.logger.Warn(ctx, "transport init attempt failed",
				"attempt", attempt, "retry_in", next.String(), "error", err)
		}),
	)
	if err != nil {
		t.metrics.initFailures.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "init failed")
		return nil, apperror.New(apperror.CodeTransportInitFailed,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("after %d attempts", attempt)))
	}

	span.SetAttributes(attribute.Int("attempts", attempt))
	span.SetStatus(codes.Ok, "connected")
	return pair, nil
}

// checkLiveness queries the block height on every connection of pair.
func (t *Transport) checkLiveness(ctx context.Context, cfg config.NetworkConfig, pair *TransportPair) error {
	probe := func(name string, b Backend) error {
		pctx, cancel := context.WithTimeout(ctx, cfg.HeartbeatTimeout)
		defer cancel()

		if _, err := b.BlockNumber(pctx); err != nil {
			return apperror.New(apperror.CodeTransportLivenessFailed,
				apperror.WithCause(err),
				apperror.WithContext(name))
		}
		return nil
	}

	if err := probe("primary", pair.Primary); err != nil {
		return err
	}
	if pair.Push != nil {
		return probe("push", pair.Push.Client)
	}
	return nil
}

// publish makes pair current and attaches its socket listener.
func (t *Transport) publish(ctx context.Context, pair *TransportPair) error {
	t.mu.Lock()
	if t.closed.Load() {
		t.mu.Unlock()
		t.closePair(pair)
		return apperror.New(apperror.CodeTransportNotConnected, apperror.WithCause(errTransportClosed))
	}

	t.nextID++
	pair.ID = t.nextID

	var stop chan struct{}
	if pair.Push != nil {
		stop = make(chan struct{})
		t.detach = stop
		t.wg.Add(1)
	}

	t.pair.Set(pair)
	t.setState(domain.StateConnected)
	t.mu.Unlock()

	if stop != nil {
		go t.watchSocket(pair, stop)
	}

	t.inits.Add(1)
	t.metrics.inits.Add(ctx, 1)
	t.logger.Info(ctx, "transport connected", "pair_id", pair.ID, "push", pair.Push != nil)

	return nil
}

// teardown detaches listeners from the current pair, then closes its push
// socket. Close errors are ignored.
func (t *Transport) teardown() {
	t.mu.Lock()
	stop := t.detach
	t.detach = nil
	old := t.pair.Get()
	t.mu.Unlock()

	if stop != nil {
		close(stop)
	}

	if old != nil && old.Push != nil && !t.external {
		_ = old.Push.Socket.Close()
		old.Push.Client.Close()
	}
}

func (t *Transport) closePair(pair *TransportPair) {
	if t.external || pair == nil {
		return
	}
	if pair.Push != nil {
		_ = pair.Push.Socket.Close()
		pair.Push.Client.Close()
	}
	if pair.Primary != nil {
		pair.Primary.Close()
	}
}

// watchSocket reacts to the first close or error of the push socket.
func (t *Transport) watchSocket(pair *TransportPair, stop <-chan struct{}) {
	defer t.wg.Done()

	select {
	case <-stop:
		return
	case <-pair.Push.Socket.Done():
	}

	// Detached while the socket was closing.
	select {
	case <-stop:
		return
	default:
	}

	ctx := t.runCtx

	if err := pair.Push.Socket.Err(); err != nil {
		t.metrics.socketEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", "error")))
		t.logger.Warn(ctx, "push socket error", "pair_id", pair.ID, "error", err)
		t.goReinit("push socket error")
		return
	}

	t.metrics.socketEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", "close")))

	if t.State() != domain.StateConnected {
		t.logger.Debug(ctx, "push socket closed while not connected, ignoring", "pair_id", pair.ID)
		return
	}

	t.logger.Warn(ctx, "push socket closed", "pair_id", pair.ID)
	t.goReinit("push socket closed")
}

// runHeartbeat probes the current pair while connected.
func (t *Transport) runHeartbeat() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.Get().HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.runCtx.Done():
			return
		case <-ticker.C:
			t.heartbeat()
			ticker.Reset(t.cfg.Get().HeartbeatInterval)
		}
	}
}

func (t *Transport) heartbeat() {
	if t.State() != domain.StateConnected {
		return
	}
	pair := t.pair.Get()
	if pair == nil {
		return
	}

	ctx, cancel := context.WithTimeout(t.runCtx, t.cfg.Get().HeartbeatTimeout)
	defer cancel()

	ctx, span := t.tracer.Start(ctx, "transport.heartbeat",
		trace.WithAttributes(attribute.Int64("pair_id", int64(pair.ID))),
	)
	defer span.End()

	height, err := pair.Heartbeat().BlockNumber(ctx)
	if err == nil {
		span.SetAttributes(attribute.Int64("height", int64(height)))
		span.SetStatus(codes.Ok, "alive")
		return
	}

	if t.runCtx.Err() != nil {
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "probe failed")

	// A newer pair may have been published while probing.
	if t.pair.Get() != pair || t.State() != domain.StateConnected {
		return
	}

	t.metrics.heartbeatFailures.Add(ctx, 1)
	t.logger.Warn(ctx, "heartbeat failed", "pair_id", pair.ID, "error", err)
	t.goReinit("heartbeat failed")
}

// goReinit runs InitTransport in the background unless the transport is closed.
func (t *Transport) goReinit(reason string) {
	t.mu.Lock()
	if t.closed.Load() {
		t.mu.Unlock()
		return
	}
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()

		ctx := t.runCtx
		t.logger.Info(ctx, "reinitializing transport", "reason", reason)

		if err := t.InitTransport(ctx); err != nil && !t.closed.Load() {
			t.logger.Error(ctx, "transport reinit failed", "reason", reason, "error", err)
		}
	}()
}

// Close stops the heartbeat, detaches listeners and force-closes the
// current connections.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed.Load() {
		t.mu.Unlock()
		return nil
	}
	t.closed.Store(true)
	stop := t.detach
	t.detach = nil
	t.mu.Unlock()

	t.logger.Info(context.Background(), "closing transport")

	t.cancel()
	if stop != nil {
		close(stop)
	}
	t.wg.Wait()

	t.closePair(t.pair.Get())
	t.setState(domain.StateDisconnected)

	return nil
}

// State returns the current connection state.
func (t *Transport) State() domain.ConnectionState {
	return t.state.Get()
}

// StateValue exposes the connection state for change notification.
func (t *Transport) StateValue() observable.Readable[domain.ConnectionState] {
	return t.state
}

// Pair returns the published pair, or nil before the first connection.
func (t *Transport) Pair() *TransportPair {
	return t.pair.Get()
}

// PairValue exposes the published pair for change notification.
func (t *Transport) PairValue() observable.Readable[*TransportPair] {
	return t.pair
}

// Config returns the active network configuration.
func (t *Transport) Config() config.NetworkConfig {
	return t.cfg.Get()
}

// Status returns detailed connection status.
func (t *Transport) Status() domain.ConnectionStatus {
	pair := t.pair.Get()
	return domain.ConnectionStatus{
		State:      t.State(),
		LastUpdate: time.Now(),
		Inits:      int(t.inits.Load()),
		HasPush:    pair != nil && pair.Push != nil,
	}
}

// setState updates the connection state and records metrics.
func (t *Transport) setState(state domain.ConnectionState) {
	t.state.Set(state)
	t.metrics.connectionState.Record(context.Background(), state.Gauge())
}
