package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/chain-txqueue/internal/circuitbreaker"
	"github.com/fd1az/chain-txqueue/internal/config"
	"github.com/fd1az/chain-txqueue/internal/logger"
	"github.com/fd1az/chain-txqueue/internal/observable"
	"github.com/fd1az/chain-txqueue/internal/ratelimit"
)

// PairSource publishes transport pairs and the config they were built from.
type PairSource interface {
	PairValue() observable.Readable[*TransportPair]
	Config() config.NetworkConfig
}

// blockStreamMetrics holds OTEL metric instruments.
type blockStreamMetrics struct {
	heightsEmitted  metric.Int64Counter
	subscribeErrors metric.Int64Counter
	pollErrors      metric.Int64Counter
}

type backfillState struct {
	next   uint64
	target uint64
	active bool
	done   bool
}

// BlockStream emits block heights for every published transport pair.
//
// For each pair it queries the current height once, then follows pushed
// heads, or polls the primary when there is no push connection. When
// backfill is configured, heights from InitialBlockNumber up to the first
// observed height are emitted first, stepping by BackfillInterval.
//
// Subscribers receive heights through an event.Feed and must drain their
// channel promptly; a blocked subscriber stalls the stream.
type BlockStream struct {
	source PairSource
	logger logger.LoggerInterface

	feed   event.Feed
	scope  event.SubscriptionScope
	latest *observable.Value[uint64]

	emitMu   sync.Mutex
	backfill backfillState
	pacer    *ratelimit.Limiter

	pollCB *circuitbreaker.CircuitBreaker[uint64]

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Observability
	tracer  trace.Tracer
	metrics *blockStreamMetrics
}

// NewBlockStream creates a stream over source. Call Start to begin.
func NewBlockStream(source PairSource, log logger.LoggerInterface) (*BlockStream, error) {
	runCtx, cancel := context.WithCancel(context.Background())

	s := &BlockStream{
		source: source,
		logger: log,
		latest: observable.NewValue[uint64](0),
		pacer:  ratelimit.NewEvery(source.Config().BackfillPace),
		runCtx: runCtx,
		cancel: cancel,
		tracer: otel.Tracer(tracerName),
	}

	if err := s.initMetrics(); err != nil {
		cancel()
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	cbCfg := circuitbreaker.DefaultConfig("block-poll")
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		s.logger.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	s.pollCB = circuitbreaker.New[uint64](cbCfg)

	return s, nil
}

// initMetrics initializes OTEL metric instruments.
func (s *BlockStream) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &blockStreamMetrics{}

	s.metrics.heightsEmitted, err = meter.Int64Counter(
		"block_heights_emitted_total",
		metric.WithDescription("Block heights delivered to subscribers"),
		metric.WithUnit("{block}"),
	)
	if err != nil {
		return err
	}

	s.metrics.subscribeErrors, err = meter.Int64Counter(
		"block_subscribe_errors_total",
		metric.WithDescription("New head subscription failures"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	s.metrics.pollErrors, err = meter.Int64Counter(
		"block_poll_errors_total",
		metric.WithDescription("Block height poll failures"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Start begins following published pairs.
func (s *BlockStream) Start() {
	s.wg.Add(1)
	go s.run()
}

// SubscribeHeights delivers every emitted height to ch.
func (s *BlockStream) SubscribeHeights(ch chan<- uint64) event.Subscription {
	return s.scope.Track(s.feed.Subscribe(ch))
}

// Latest returns the last emitted height, or 0 before the first one.
func (s *BlockStream) Latest() uint64 {
	return s.latest.Get()
}

// Close stops the stream and ends all subscriptions. It never closes the
// transport.
func (s *BlockStream) Close() {
	s.cancel()
	s.wg.Wait()
	s.scope.Close()
}

// run starts a follower for each new pair and stops the previous one.
func (s *BlockStream) run() {
	defer s.wg.Done()

	pairs := s.source.PairValue()

	var current *TransportPair
	stopCurrent := func() {}

	for {
		changed := pairs.Changed()

		if pair := pairs.Get(); pair != nil && pair != current {
			stopCurrent()
			current = pair

			ctx, cancel := context.WithCancel(s.runCtx)
			stopCurrent = cancel

			s.wg.Add(1)
			go s.follow(ctx, pair)
		}

		select {
		case <-s.runCtx.Done():
			stopCurrent()
			return
		case <-changed:
		}
	}
}

// follow emits heights from one pair until ctx is cancelled.
func (s *BlockStream) follow(ctx context.Context, pair *TransportPair) {
	defer s.wg.Done()

	if pair.Push != nil {
		if s.followPush(ctx, pair) {
			return
		}
		s.logger.Warn(ctx, "head subscription unavailable, polling primary", "pair_id", pair.ID)
	}

	height, ok := s.currentHeight(ctx, pair)
	if ok {
		s.emit(ctx, height)
	}
	s.poll(ctx, pair, height)
}

// followPush subscribes to new heads. It returns false when the
// subscription could not be established.
func (s *BlockStream) followPush(ctx context.Context, pair *TransportPair) bool {
	headers := make(chan *types.Header, 16)

	sub, err := pair.Push.Client.SubscribeNewHead(ctx, headers)
	if err != nil {
		s.metrics.subscribeErrors.Add(ctx, 1)
		s.logger.Error(ctx, "subscribe new head failed", "pair_id", pair.ID, "error", err)
		return false
	}
	defer sub.Unsubscribe()

	s.logger.Info(ctx, "subscribed to new heads", "pair_id", pair.ID)

	// The initial query is dropped if a pushed head arrives first.
	var mu sync.Mutex
	pushed := false

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		height, ok := s.currentHeight(ctx, pair)
		if !ok {
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if !pushed {
			s.emit(ctx, height)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return true
		case err := <-sub.Err():
			// The transport reinitializes on socket failure.
			if err != nil {
				s.metrics.subscribeErrors.Add(ctx, 1)
				s.logger.Error(ctx, "head subscription error", "pair_id", pair.ID, "error", err)
			}
			return true
		case header := <-headers:
			if header == nil {
				continue
			}
			mu.Lock()
			pushed = true
			s.emit(ctx, header.Number.Uint64())
			mu.Unlock()
		}
	}
}

// currentHeight queries the height once, on the push client when present.
func (s *BlockStream) currentHeight(ctx context.Context, pair *TransportPair) (uint64, bool) {
	height, err := pair.Heartbeat().BlockNumber(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn(ctx, "initial block height query failed", "pair_id", pair.ID, "error", err)
		}
		return 0, false
	}
	return height, true
}

// poll fetches the primary's height every PollingInterval.
func (s *BlockStream) poll(ctx context.Context, pair *TransportPair, last uint64) {
	interval := s.source.Config().PollingInterval
	s.logger.Info(ctx, "starting block height polling", "pair_id", pair.ID, "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			height, err := s.pollCB.Execute(func() (uint64, error) {
				return pair.Primary.BlockNumber(ctx)
			})
			if err != nil {
				if ctx.Err() == nil {
					s.metrics.pollErrors.Add(ctx, 1)
					s.logger.Warn(ctx, "block height poll failed", "pair_id", pair.ID, "error", err)
				}
				continue
			}
			if height == last {
				continue
			}
			last = height
			s.emit(ctx, height)
		}
	}
}

// emit delivers height, running the pending backfill first.
func (s *BlockStream) emit(ctx context.Context, height uint64) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	if !s.backfill.done {
		ok, delivered := s.runBackfill(ctx, height)
		if !ok || delivered {
			return
		}
	}

	s.send(ctx, height, false)
}

// runBackfill emits start, start+interval, ... below the first observed
// height and then that height, each paced by the limiter. ok is false if
// ctx ended first; the next emit resumes where it stopped. delivered
// reports whether height itself was the closing item.
func (s *BlockStream) runBackfill(ctx context.Context, height uint64) (ok, delivered bool) {
	cfg := s.source.Config()
	bf := &s.backfill

	if !bf.active {
		if !cfg.BackfillEnabled() || height <= cfg.InitialBlockNumber {
			bf.done = true
			return true, false
		}
		bf.active = true
		bf.next = cfg.InitialBlockNumber
		bf.target = height
		s.pacer.SetInterval(cfg.BackfillPace)
		s.logger.Info(ctx, "backfilling block heights",
			"from", bf.next, "to", bf.target, "step", cfg.BackfillInterval)
	}

	for bf.next < bf.target {
		if err := s.pacer.Wait(ctx); err != nil {
			return false, false
		}
		s.send(ctx, bf.next, true)
		bf.next += cfg.BackfillInterval
	}

	if err := s.pacer.Wait(ctx); err != nil {
		return false, false
	}
	s.send(ctx, bf.target, height != bf.target)

	bf.active = false
	bf.done = true
	return true, height == bf.target
}

func (s *BlockStream) send(ctx context.Context, height uint64, backfill bool) {
	s.latest.Set(height)
	s.feed.Send(height)

	s.metrics.heightsEmitted.Add(ctx, 1, metric.WithAttributes(attribute.Bool("backfill", backfill)))
	s.logger.Debug(ctx, "block height", "number", height, "backfill", backfill)
}
