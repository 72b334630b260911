package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/chain-txqueue/business/blockchain/app"
	"github.com/fd1az/chain-txqueue/business/blockchain/domain"
	"github.com/fd1az/chain-txqueue/internal/apperror"
	"github.com/fd1az/chain-txqueue/internal/cache"
	"github.com/fd1az/chain-txqueue/internal/circuitbreaker"
	"github.com/fd1az/chain-txqueue/internal/logger"
)

const feeCacheKey = "current"

// BackendSource hands out the backend of the currently published pair.
type BackendSource interface {
	Backend() (app.Backend, error)
}

// FeeOracleConfig holds configuration for the fee oracle.
type FeeOracleConfig struct {
	BaseFeeMultiplier decimal.Decimal // fee cap = base fee * multiplier + tip
	CacheTTL          time.Duration   // how long suggestions are reused
	MaxFeeCap         *big.Int        // nil disables the ceiling
}

// DefaultFeeOracleConfig returns sensible defaults.
func DefaultFeeOracleConfig() FeeOracleConfig {
	maxFee := new(big.Int)
	maxFee.SetString("500000000000", 10) // 500 gwei

	return FeeOracleConfig{
		BaseFeeMultiplier: decimal.NewFromInt(2),
		CacheTTL:          12 * time.Second, // ~1 block
		MaxFeeCap:         maxFee,
	}
}

// feeOracleMetrics holds OTEL metric instruments.
type feeOracleMetrics struct {
	fetches     metric.Int64Counter
	feeCapGwei  metric.Float64Gauge
	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
}

// FeeOracle suggests transaction fees: EIP-1559 caps when the latest block
// carries a base fee, a legacy gas price otherwise.
type FeeOracle struct {
	config   FeeOracleConfig
	backends BackendSource
	logger   logger.LoggerInterface

	feeCache *cache.Cache[string, *domain.FeeCaps]
	cb       *circuitbreaker.CircuitBreaker[*domain.FeeCaps]

	// Observability
	tracer  trace.Tracer
	metrics *feeOracleMetrics
}

// NewFeeOracle creates a new fee oracle.
func NewFeeOracle(cfg FeeOracleConfig, backends BackendSource, log logger.LoggerInterface) (*FeeOracle, error) {
	o := &FeeOracle{
		config:   cfg,
		backends: backends,
		logger:   log,
		feeCache: cache.New[string, *domain.FeeCaps](5 * time.Minute),
		tracer:   otel.Tracer(tracerName),
	}

	if err := o.initMetrics(); err != nil {
		o.feeCache.Close()
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	o.initCircuitBreaker()

	return o, nil
}

// initMetrics initializes OTEL metric instruments.
func (o *FeeOracle) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	o.metrics = &feeOracleMetrics{}

	o.metrics.fetches, err = meter.Int64Counter(
		"fee_fetches_total",
		metric.WithDescription("Total fee suggestion fetches"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return err
	}

	o.metrics.feeCapGwei, err = meter.Float64Gauge(
		"fee_cap_gwei",
		metric.WithDescription("Current suggested fee cap in gwei"),
		metric.WithUnit("gwei"),
	)
	if err != nil {
		return err
	}

	o.metrics.cacheHits, err = meter.Int64Counter(
		"fee_cache_hits_total",
		metric.WithDescription("Fee suggestion cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return err
	}

	o.metrics.cacheMisses, err = meter.Int64Counter(
		"fee_cache_misses_total",
		metric.WithDescription("Fee suggestion cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// initCircuitBreaker initializes the circuit breaker.
func (o *FeeOracle) initCircuitBreaker() {
	cfg := circuitbreaker.DefaultConfig("fee-oracle")
	cfg.OnStateChange = func(name string, from, to gobreaker.State) {
		o.logger.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	o.cb = circuitbreaker.New[*domain.FeeCaps](cfg)
}

// SuggestFees returns fee caps for a new transaction, cached for CacheTTL.
func (o *FeeOracle) SuggestFees(ctx context.Context) (*domain.FeeCaps, error) {
	ctx, span := o.tracer.Start(ctx, "fee.suggest")
	defer span.End()

	if fees, found := o.feeCache.Get(ctx, feeCacheKey); found {
		o.metrics.cacheHits.Add(ctx, 1)
		span.AddEvent("cache_hit")
		return fees, nil
	}

	o.metrics.cacheMisses.Add(ctx, 1)

	backend, err := o.backends.Backend()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no backend")
		return nil, err
	}

	o.metrics.fetches.Add(ctx, 1)

	fees, err := o.cb.Execute(func() (*domain.FeeCaps, error) {
		return o.fetch(ctx, backend)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		if apperror.GetCode(err) == apperror.CodeCircuitOpen {
			return nil, err
		}
		return nil, apperror.New(apperror.CodeFeeSuggestionFailed,
			apperror.WithCause(err))
	}

	o.feeCache.Set(ctx, feeCacheKey, fees, o.config.CacheTTL)

	capWei := fees.GasPrice
	if fees.Dynamic() {
		capWei = fees.GasFeeCap
	}
	gwei := domain.NewGasPrice(capWei).Gwei()
	o.metrics.feeCapGwei.Record(ctx, gwei)

	span.SetAttributes(
		attribute.Bool("dynamic", fees.Dynamic()),
		attribute.Float64("fee_cap_gwei", gwei),
	)
	span.SetStatus(codes.Ok, "suggested")

	return fees, nil
}

func (o *FeeOracle) fetch(ctx context.Context, backend app.Backend) (*domain.FeeCaps, error) {
	head, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}

	if head.BaseFee == nil {
		price, err := backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("gas price: %w", err)
		}
		return &domain.FeeCaps{GasPrice: o.ceil(ctx, price)}, nil
	}

	return o.dynamic(ctx, backend, head)
}

func (o *FeeOracle) dynamic(ctx context.Context, backend app.Backend, head *types.Header) (*domain.FeeCaps, error) {
	tip, err := backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas tip cap: %w", err)
	}

	feeCap := o.ceil(ctx, domain.FeeCapFor(head.BaseFee, tip, o.config.BaseFeeMultiplier))
	if tip.Cmp(feeCap) > 0 {
		tip = new(big.Int).Set(feeCap)
	}

	return &domain.FeeCaps{
		GasTipCap: tip,
		GasFeeCap: feeCap,
		BaseFee:   new(big.Int).Set(head.BaseFee),
	}, nil
}

// ceil clamps wei to MaxFeeCap.
func (o *FeeOracle) ceil(ctx context.Context, wei *big.Int) *big.Int {
	if o.config.MaxFeeCap != nil && wei.Cmp(o.config.MaxFeeCap) > 0 {
		o.logger.Warn(ctx, "suggested fee exceeds max", "wei", wei.String(), "max", o.config.MaxFeeCap.String())
		return new(big.Int).Set(o.config.MaxFeeCap)
	}
	return wei
}

// Invalidate drops the cached suggestion.
func (o *FeeOracle) Invalidate(ctx context.Context) {
	o.feeCache.Delete(ctx, feeCacheKey)
}

// Close releases the cache janitor.
func (o *FeeOracle) Close() {
	o.feeCache.Close()
}
