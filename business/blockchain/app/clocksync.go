package app

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/chain-txqueue/business/blockchain/domain"
	"github.com/fd1az/chain-txqueue/internal/apperror"
	"github.com/fd1az/chain-txqueue/internal/logger"
)

// HeightSource reports the latest known block height; 0 means none yet.
type HeightSource interface {
	Latest() uint64
}

// ClockSync periodically rebases a chain clock on the timestamp of the
// latest block.
type ClockSync struct {
	clock    *domain.Clock
	heights  HeightSource
	pairs    PairSource
	interval time.Duration
	logger   logger.LoggerInterface

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	tracer  trace.Tracer
	updates metric.Int64Counter
	drift   metric.Int64Histogram
}

// NewClockSync creates a synchronizer for clock.
func NewClockSync(clock *domain.Clock, heights HeightSource, pairs PairSource, interval time.Duration, log logger.LoggerInterface) (*ClockSync, error) {
	runCtx, cancel := context.WithCancel(context.Background())

	c := &ClockSync{
		clock:    clock,
		heights:  heights,
		pairs:    pairs,
		interval: interval,
		logger:   log,
		runCtx:   runCtx,
		cancel:   cancel,
		tracer:   otel.Tracer(tracerName),
	}

	meter := otel.Meter(meterName)
	var err error

	c.updates, err = meter.Int64Counter(
		"chain_clock_updates_total",
		metric.WithDescription("Chain clock rebases"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	c.drift, err = meter.Int64Histogram(
		"chain_clock_drift_ms",
		metric.WithDescription("Difference between local estimate and chain time at rebase"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return c, nil
}

// Start syncs every interval until Close.
func (c *ClockSync) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-c.runCtx.Done():
				return
			case <-ticker.C:
				if _, err := c.Sync(c.runCtx); err != nil && c.runCtx.Err() == nil {
					c.logger.Warn(c.runCtx, "clock sync failed", "error", err)
				}
			}
		}
	}()
}

// Sync performs one synchronization step. It reports whether the clock was
// updated. Without a known height or a published pair it does nothing.
func (c *ClockSync) Sync(ctx context.Context) (bool, error) {
	height := c.heights.Latest()
	pair := c.pairs.PairValue().Get()
	if height == 0 || pair == nil {
		return false, nil
	}

	ctx, span := c.tracer.Start(ctx, "clock.sync",
		trace.WithAttributes(attribute.Int64("block_number", int64(height))),
	)
	defer span.End()

	header, err := pair.Primary.HeaderByNumber(ctx, new(big.Int).SetUint64(height))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "header fetch failed")
		return false, apperror.New(apperror.CodeBlockNotFound,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("block %d", height)))
	}

	ms := domain.BlockFromHeader(header).TimestampMillis()

	current := c.clock.CurrentTime()
	if ms == c.clock.LastUpdate() || ms == current {
		span.AddEvent("unchanged")
		return false, nil
	}

	c.clock.Update(ms)

	c.updates.Add(ctx, 1)
	c.drift.Record(ctx, current-ms)
	span.SetStatus(codes.Ok, "updated")

	return true, nil
}

// Close stops periodic syncing.
func (c *ClockSync) Close() {
	c.cancel()
	c.wg.Wait()
}
