package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	blockchainDomain "github.com/fd1az/chain-txqueue/business/blockchain/domain"
	"github.com/fd1az/chain-txqueue/business/txqueue/domain"
	"github.com/fd1az/chain-txqueue/internal/apperror"
	"github.com/fd1az/chain-txqueue/internal/logger"
	"github.com/fd1az/chain-txqueue/internal/observable"
)

const (
	tracerName = "github.com/fd1az/chain-txqueue/business/txqueue/app"
	meterName  = "github.com/fd1az/chain-txqueue/business/txqueue/app"
)

// Config controls confirmation tracking.
type Config struct {
	ConfirmPollInterval time.Duration
	ConfirmTimeout      time.Duration
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Queued    int
	Submitted uint64
	Failed    uint64
	Confirmed uint64
	Reverted  uint64
}

// queueMetrics holds OTEL metric instruments.
type queueMetrics struct {
	queued        metric.Int64UpDownCounter
	submitted     metric.Int64Counter
	failures      metric.Int64Counter
	confirmations metric.Int64Counter
	readyWait     metric.Float64Histogram
}

// readyState is the snapshot a submission needs. It exists only while the
// transport is connected, a signer is bound to the current pair and the
// nonce is known.
type readyState struct {
	signer       Signer
	nonce        uint64
	nonceVersion uint64
}

// Queue serializes gas estimation, nonce assignment and submission of
// concurrently queued calls. A single submitter goroutine pops calls by
// priority and handles one at a time; confirmations are awaited outside
// that loop.
type Queue struct {
	cfg     Config
	conn    Connection
	signers observable.Readable[*BoundSigner]
	seq     *SequenceManager
	logger  logger.LoggerInterface

	mu     sync.Mutex
	pq     *PriorityQueue[*QueuedCall]
	nextID uint64
	closed bool
	wake   chan struct{}

	contracts    *observable.Value[map[string]ContractHandle]
	boundMu      sync.Mutex
	bound        map[string]*BoundContract
	boundVersion uint64

	submitted atomic.Uint64
	failed    atomic.Uint64
	confirmed atomic.Uint64
	reverted  atomic.Uint64

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Observability
	tracer  trace.Tracer
	metrics *queueMetrics
}

// NewQueue creates a queue. Call Start to begin submitting.
func NewQueue(cfg Config, conn Connection, signers observable.Readable[*BoundSigner], seq *SequenceManager, log logger.LoggerInterface) (*Queue, error) {
	runCtx, cancel := context.WithCancel(context.Background())

	q := &Queue{
		cfg:       cfg,
		conn:      conn,
		signers:   signers,
		seq:       seq,
		logger:    log,
		pq:        NewPriorityQueue[*QueuedCall](),
		wake:      make(chan struct{}, 1),
		contracts: observable.NewValue[map[string]ContractHandle](nil),
		runCtx:    runCtx,
		cancel:    cancel,
		tracer:    otel.Tracer(tracerName),
	}

	if err := q.initMetrics(); err != nil {
		cancel()
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return q, nil
}

// initMetrics initializes OTEL metric instruments.
func (q *Queue) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	q.metrics = &queueMetrics{}

	q.metrics.queued, err = meter.Int64UpDownCounter(
		"txqueue_queued_calls",
		metric.WithDescription("Calls waiting to be submitted"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}

	q.metrics.submitted, err = meter.Int64Counter(
		"txqueue_submitted_total",
		metric.WithDescription("Transactions that reached the network"),
		metric.WithUnit("{tx}"),
	)
	if err != nil {
		return err
	}

	q.metrics.failures, err = meter.Int64Counter(
		"txqueue_failures_total",
		metric.WithDescription("Calls that failed before or during submission"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}

	q.metrics.confirmations, err = meter.Int64Counter(
		"txqueue_confirmations_total",
		metric.WithDescription("Confirmation outcomes"),
		metric.WithUnit("{tx}"),
	)
	if err != nil {
		return err
	}

	q.metrics.readyWait, err = meter.Float64Histogram(
		"txqueue_ready_wait_ms",
		metric.WithDescription("Time a popped call waited for a ready connection, signer and nonce"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	return nil
}

// Start runs the submitter until Close.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.run()
}

// Enqueue queues req without waiting. The ticket resolves once the call is
// submitted or rejected.
func (q *Queue) Enqueue(req domain.CallRequest, overrides domain.CallOverrides, opts ...CallOption) (*Ticket, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	ticket := newTicket()

	call := &QueuedCall{
		Priority: o.priority,
		ticket:   ticket,
		estimateGas: func(ctx context.Context, s Signer) (uint64, error) {
			if overrides.GasLimit > 0 {
				return overrides.GasLimit, nil
			}
			return s.EstimateGas(ctx, req.WithOverrides(overrides))
		},
		execute: func(ctx context.Context, s Signer, a domain.Attempt) (*domain.Submission, error) {
			tx, err := s.SendTransaction(ctx, domain.Merge(req, a, overrides))
			if err != nil {
				return nil, err
			}
			sub, settle := domain.NewSubmission(tx)
			ticket.settle = settle
			ticket.resolve(sub, nil)
			return sub, nil
		},
		cancel: func(err error) {
			ticket.resolve(nil, err)
		},
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, apperror.New(apperror.CodeQueueClosed)
	}
	q.nextID++
	call.ID = q.nextID
	ticket.ID = call.ID
	q.pq.Add(call.ID, call, call.Priority)
	q.mu.Unlock()

	q.metrics.queued.Add(q.runCtx, 1)
	q.signal()

	return ticket, nil
}

// QueueCall queues req and blocks until it is submitted, rejected, or ctx
// is done. A call still queued when ctx ends is removed; once popped it
// proceeds regardless.
func (q *Queue) QueueCall(ctx context.Context, req domain.CallRequest, overrides domain.CallOverrides, opts ...CallOption) (*domain.Submission, error) {
	ticket, err := q.Enqueue(req, overrides, opts...)
	if err != nil {
		return nil, err
	}

	sub, err := ticket.Wait(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		q.Cancel(ticket.ID)
	}
	return sub, err
}

// Cancel removes a call that has not been popped yet and rejects its
// caller. It reports whether the call was removed.
func (q *Queue) Cancel(id uint64) bool {
	q.mu.Lock()
	call, ok := q.pq.Remove(id)
	q.mu.Unlock()

	if !ok {
		return false
	}

	q.metrics.queued.Add(q.runCtx, -1)
	call.Cancel(apperror.New(apperror.CodeCallCancelled,
		apperror.WithContext(fmt.Sprintf("call %d", id))))
	return true
}

// SetPriority changes the priority of a queued call.
func (q *Queue) SetPriority(id uint64, priority int) {
	q.mu.Lock()
	q.pq.SetPriority(id, priority)
	q.mu.Unlock()
}

// Stats returns the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	queued := q.pq.Size()
	q.mu.Unlock()

	return Stats{
		Queued:    queued,
		Submitted: q.submitted.Load(),
		Failed:    q.failed.Load(),
		Confirmed: q.confirmed.Load(),
		Reverted:  q.reverted.Load(),
	}
}

// Close rejects all queued calls, stops the submitter and abandons pending
// confirmations.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	pending := q.pq.Drain()
	q.mu.Unlock()

	for _, call := range pending {
		q.metrics.queued.Add(q.runCtx, -1)
		call.Cancel(apperror.New(apperror.CodeQueueClosed))
	}

	q.cancel()
	q.wg.Wait()
	return nil
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) run() {
	defer q.wg.Done()

	for {
		call, ok := q.next()
		if !ok {
			return
		}
		q.process(q.runCtx, call)
	}
}

// next blocks until a call can be popped or the queue closes.
func (q *Queue) next() (*QueuedCall, bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		call, ok := q.pq.Next()
		q.mu.Unlock()

		if ok {
			q.metrics.queued.Add(q.runCtx, -1)
			return call, true
		}

		select {
		case <-q.runCtx.Done():
			return nil, false
		case <-q.wake:
		}
	}
}

// process runs one call through ready wait, estimation and submission.
func (q *Queue) process(ctx context.Context, call *QueuedCall) {
	ctx, span := q.tracer.Start(ctx, "txqueue.process",
		trace.WithAttributes(
			attribute.Int64("call_id", int64(call.ID)),
			attribute.Int("priority", call.Priority),
		),
	)
	defer span.End()

	waitStart := time.Now()
	rs, err := q.awaitReady(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "queue closed")
		call.Cancel(apperror.New(apperror.CodeQueueClosed, apperror.WithCause(err)))
		return
	}
	q.metrics.readyWait.Record(ctx, float64(time.Since(waitStart).Milliseconds()))

	gas, err := call.EstimateGas(ctx, rs.signer)
	if err != nil {
		q.fail(ctx, span, "estimate", err)
		appErr := apperror.New(apperror.CodeGasEstimationFailed, apperror.WithCause(err))
		q.logger.Warn(ctx, "gas estimation failed", append([]any{"call_id", call.ID}, appErr.LogArgs()...)...)
		call.Cancel(appErr)
		return
	}

	attempt := domain.Attempt{Nonce: rs.nonce, GasLimit: gas}
	span.SetAttributes(
		attribute.Int64("nonce", int64(attempt.Nonce)),
		attribute.Int64("gas_limit", int64(attempt.GasLimit)),
	)

	sub, err := call.Execute(ctx, rs.signer, attempt)
	if err != nil {
		outcome := domain.Classify(err)
		q.fail(ctx, span, "submit", err, attribute.String("outcome", outcome.String()))

		switch outcome {
		case domain.OutcomeConsumed:
			q.spendNonce(ctx, rs)
		case domain.OutcomeDesync:
			q.seq.ResetNonce(ctx)
		}

		appErr := apperror.New(submissionCode(err, outcome),
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("nonce %d", attempt.Nonce)))
		q.logger.Warn(ctx, "submission failed",
			append([]any{"call_id", call.ID, "outcome", outcome.String()}, appErr.LogArgs()...)...)
		call.Cancel(appErr)
		return
	}

	// The transaction reached the network, so its nonce is spent even if
	// it later reverts.
	q.spendNonce(ctx, rs)

	q.submitted.Add(1)
	q.metrics.submitted.Add(ctx, 1)
	span.SetAttributes(attribute.String("tx_hash", sub.Hash.Hex()))
	span.SetStatus(codes.Ok, "submitted")
	q.logger.Info(ctx, "transaction submitted", "call_id", call.ID, "hash", sub.Hash.Hex(), "nonce", sub.Nonce)

	q.wg.Add(1)
	go q.confirm(call, sub, rs.signer)
}

// spendNonce advances past the nonce rs was built on.
func (q *Queue) spendNonce(ctx context.Context, rs readyState) {
	if !q.seq.AdvanceNonce(rs.nonceVersion, rs.nonce) {
		q.logger.Info(ctx, "nonce reset during submission, keeping resynced value", "spent", rs.nonce)
	}
}

func (q *Queue) fail(ctx context.Context, span trace.Span, stage string, err error, attrs ...attribute.KeyValue) {
	q.failed.Add(1)
	attrs = append(attrs, attribute.String("stage", stage))
	q.metrics.failures.Add(ctx, 1, metric.WithAttributes(attrs...))
	span.RecordError(err)
	span.SetStatus(codes.Error, stage+" failed")
}

func submissionCode(err error, outcome domain.Outcome) apperror.Code {
	switch {
	case outcome == domain.OutcomeDesync:
		return apperror.CodeNonceDesync
	case domain.IsUserRejected(err):
		return apperror.CodeUserRejected
	default:
		return apperror.CodeSubmissionFailed
	}
}

func (q *Queue) ready() (readyState, bool) {
	if q.conn.StateValue().Get() != blockchainDomain.StateConnected {
		return readyState{}, false
	}
	pair := q.conn.PairValue().Get()
	if pair == nil {
		return readyState{}, false
	}
	bound := q.signers.Get()
	if bound == nil || bound.PairID != pair.ID {
		return readyState{}, false
	}
	nonce, version, ok := q.seq.loadNonce()
	if !ok {
		return readyState{}, false
	}
	return readyState{signer: bound.Signer, nonce: nonce, nonceVersion: version}, true
}

// awaitReady blocks until a ready state exists.
func (q *Queue) awaitReady(ctx context.Context) (readyState, error) {
	return observable.WaitFor(ctx, q.ready,
		q.conn.StateValue(),
		q.conn.PairValue(),
		q.signers,
		q.seq.NonceValue(),
	)
}

// confirm polls for the receipt until found or ConfirmTimeout. It prefers
// the currently bound signer so a reconnect does not strand the poll on a
// closed backend.
func (q *Queue) confirm(call *QueuedCall, sub *domain.Submission, signer Signer) {
	defer q.wg.Done()

	ctx, cancel := context.WithTimeout(q.runCtx, q.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(q.cfg.ConfirmPollInterval)
	defer ticker.Stop()

	for {
		current := signer
		if bound := q.signers.Get(); bound != nil {
			current = bound.Signer
		}

		receipt, err := current.TransactionReceipt(ctx, sub.Hash)
		switch {
		case err == nil && receipt != nil:
			q.settleReceipt(ctx, call, sub, receipt)
			return
		case err != nil && !errors.Is(err, ethereum.NotFound) && ctx.Err() == nil:
			q.logger.Debug(ctx, "receipt lookup failed", "hash", sub.Hash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			q.settleTimeout(call, sub, ctx.Err())
			return
		case <-ticker.C:
		}
	}
}

func (q *Queue) settleReceipt(ctx context.Context, call *QueuedCall, sub *domain.Submission, receipt *types.Receipt) {
	if receipt.Status == types.ReceiptStatusFailed {
		q.reverted.Add(1)
		q.metrics.confirmations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "reverted")))
		q.logger.Warn(ctx, "transaction reverted",
			"hash", sub.Hash.Hex(), "nonce", sub.Nonce, "block", receipt.BlockNumber.String())
		call.settle(receipt, apperror.New(apperror.CodeTxReverted,
			apperror.WithContext(sub.Hash.Hex())))
		return
	}

	q.confirmed.Add(1)
	q.metrics.confirmations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "success")))
	q.logger.Info(ctx, "transaction confirmed",
		"hash", sub.Hash.Hex(), "nonce", sub.Nonce, "gas_used", receipt.GasUsed)
	call.settle(receipt, nil)
}

func (q *Queue) settleTimeout(call *QueuedCall, sub *domain.Submission, cause error) {
	ctx := context.Background()

	if q.runCtx.Err() != nil {
		call.settle(nil, apperror.New(apperror.CodeQueueClosed, apperror.WithCause(cause)))
		return
	}

	q.metrics.confirmations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "timeout")))
	q.logger.Warn(ctx, "transaction receipt not found in time", "hash", sub.Hash.Hex(), "nonce", sub.Nonce)
	call.settle(nil, apperror.New(apperror.CodeReceiptTimeout,
		apperror.WithCause(cause),
		apperror.WithContext(sub.Hash.Hex())))
}
