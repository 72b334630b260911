package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/chain-txqueue/internal/apperror"
	"github.com/fd1az/chain-txqueue/internal/logger"
	"github.com/fd1az/chain-txqueue/internal/observable"
)

var errStaleReset = errors.New("superseded by a newer reset")

// SequenceManager owns the nonce of the active signer. A nil nonce means
// unknown; no submission may happen until it is fetched.
//
// The nonce is written only by resets and by the queue's submitter through
// AdvanceNonce, which refuses to build on a value a reset has replaced.
type SequenceManager struct {
	signers observable.Readable[*BoundSigner]
	logger  logger.LoggerInterface

	nonce *observable.Value[*uint64]

	mu  sync.Mutex // orders resets against fetch results
	gen uint64

	newBackOff func() backoff.BackOff

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	resets metric.Int64Counter
}

// SequenceOption configures a SequenceManager.
type SequenceOption func(*SequenceManager)

// WithFetchBackOff overrides the retry policy for nonce fetches.
func WithFetchBackOff(fn func() backoff.BackOff) SequenceOption {
	return func(m *SequenceManager) {
		m.newBackOff = fn
	}
}

// NewSequenceManager creates a manager following signers.
func NewSequenceManager(signers observable.Readable[*BoundSigner], log logger.LoggerInterface, opts ...SequenceOption) (*SequenceManager, error) {
	runCtx, cancel := context.WithCancel(context.Background())

	m := &SequenceManager{
		signers: signers,
		logger:  log,
		nonce:   observable.NewValue[*uint64](nil),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			return b
		},
		runCtx: runCtx,
		cancel: cancel,
	}

	for _, opt := range opts {
		opt(m)
	}

	var err error
	m.resets, err = otel.Meter(meterName).Int64Counter(
		"nonce_resets_total",
		metric.WithDescription("Nonce resets"),
		metric.WithUnit("{reset}"),
	)
	if err != nil {
		cancel()
		return nil, err
	}

	return m, nil
}

// Start resets the nonce now and every time the active signer changes.
func (m *SequenceManager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		var current *BoundSigner
		first := true
		for {
			changed := m.signers.Changed()

			if s := m.signers.Get(); first || s != current {
				first = false
				current = s
				m.ResetNonce(m.runCtx)
			}

			select {
			case <-m.runCtx.Done():
				return
			case <-changed:
			}
		}
	}()
}

// ResetNonce forgets the nonce and fetches the pending transaction count of
// the active signer in the background. Results of earlier resets are
// discarded.
func (m *SequenceManager) ResetNonce(ctx context.Context) {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.nonce.Set(nil)
	m.mu.Unlock()

	m.resets.Add(ctx, 1)

	bound := m.signers.Get()
	if bound == nil {
		m.logger.Debug(ctx, "nonce reset without signer, waiting for one")
		return
	}

	m.wg.Add(1)
	go m.fetch(gen, bound)
}

// AdvanceNonce records that used was spent by a submission built on the
// nonce read at version. The nonce moves to used+1 unless a reset replaced
// it meanwhile; a resynced nonce is only moved forward, never back. It
// reports whether the nonce changed.
func (m *SequenceManager) AdvanceNonce(version, used uint64) bool {
	next := used + 1
	if m.nonce.CompareAndSet(version, &next) {
		return true
	}

	// The resync may have read the count before the transaction landed.
	n, current := m.nonce.Load()
	if n == nil || *n > used {
		return false
	}
	return m.nonce.CompareAndSet(current, &next)
}

// loadNonce returns the nonce, the version it was read at and whether it
// is known.
func (m *SequenceManager) loadNonce() (nonce, version uint64, ok bool) {
	n, version := m.nonce.Load()
	if n == nil {
		return 0, version, false
	}
	return *n, version, true
}

// Nonce returns the current nonce and whether it is known.
func (m *SequenceManager) Nonce() (uint64, bool) {
	n := m.nonce.Get()
	if n == nil {
		return 0, false
	}
	return *n, true
}

// NonceValue exposes the nonce for change notification.
func (m *SequenceManager) NonceValue() observable.Readable[*uint64] {
	return m.nonce
}

// Close stops following signers and abandons pending fetches.
func (m *SequenceManager) Close() {
	m.cancel()
	m.wg.Wait()
}

func (m *SequenceManager) stale(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen != gen
}

func (m *SequenceManager) fetch(gen uint64, bound *BoundSigner) {
	defer m.wg.Done()

	ctx := m.runCtx
	attempt := 0

	n, err := backoff.Retry(ctx, func() (uint64, error) {
		attempt++
		if m.stale(gen) {
			return 0, backoff.Permanent(errStaleReset)
		}
		return bound.Signer.PendingNonce(ctx)
	},
		backoff.WithBackOff(m.newBackOff()),
		backoff.WithNotify(func(err error, next time.Duration) {
			m.logger.Warn(ctx, "nonce fetch failed",
				"attempt", attempt, "retry_in", next.String(), "error", err)
		}),
	)
	if err != nil {
		if !errors.Is(err, errStaleReset) && ctx.Err() == nil {
			m.logger.Error(ctx, "nonce fetch gave up",
				"error", apperror.New(apperror.CodeNonceFetchFailed, apperror.WithCause(err)))
		}
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return
	}
	m.nonce.Set(&n)
	m.logger.Info(ctx, "nonce synced", "nonce", n, "address", bound.Signer.Address().Hex())
}
