package app

import (
	"context"
	"testing"
	"time"

	"github.com/fd1az/chain-txqueue/business/blockchain/domain"
	"github.com/fd1az/chain-txqueue/internal/apperror"
)

type fixedHeight uint64

func (h fixedHeight) Latest() uint64 { return uint64(h) }

func newTestClockSync(t *testing.T, clock *domain.Clock, height uint64, src PairSource) *ClockSync {
	t.Helper()
	cs, err := NewClockSync(clock, fixedHeight(height), src, time.Hour, &mockLogger{})
	if err != nil {
		t.Fatalf("NewClockSync: %v", err)
	}
	t.Cleanup(cs.Close)
	return cs
}

func TestClockSync_SkipsWithoutHeightOrPair(t *testing.T) {
	clock := domain.NewClock()

	src := newFakePairs(testNetworkConfig())
	cs := newTestClockSync(t, clock, 10, src)

	if updated, err := cs.Sync(context.Background()); updated || err != nil {
		t.Fatalf("Sync without pair = (%v, %v)", updated, err)
	}

	src.publish(&TransportPair{ID: 1, Primary: newFakeBackend(10)})
	cs = newTestClockSync(t, clock, 0, src)

	if updated, err := cs.Sync(context.Background()); updated || err != nil {
		t.Fatalf("Sync without height = (%v, %v)", updated, err)
	}
}

func TestClockSync_RebasesOnBlockTimestamp(t *testing.T) {
	now := time.UnixMilli(5_000)
	clock := domain.NewClockWithNow(func() time.Time { return now })

	primary := newFakeBackend(10)
	primary.times[10] = 1_700_000_000

	src := newFakePairs(testNetworkConfig())
	src.publish(&TransportPair{ID: 1, Primary: primary})

	cs := newTestClockSync(t, clock, 10, src)

	updated, err := cs.Sync(context.Background())
	if err != nil || !updated {
		t.Fatalf("Sync = (%v, %v), want update", updated, err)
	}
	if got := clock.CurrentTime(); got != 1_700_000_000_000 {
		t.Fatalf("CurrentTime = %d", got)
	}

	// Same block again: matches the last applied update.
	now = now.Add(3 * time.Second)
	if updated, _ := cs.Sync(context.Background()); updated {
		t.Fatal("expected no update for an unchanged timestamp")
	}
	if got := clock.CurrentTime(); got != 1_700_000_003_000 {
		t.Fatalf("CurrentTime = %d, want local advance preserved", got)
	}
}

func TestClockSync_SkipsValueEqualToCurrentTime(t *testing.T) {
	now := time.UnixMilli(2_000_000)
	clock := domain.NewClockWithNow(func() time.Time { return now })

	primary := newFakeBackend(3)
	primary.times[3] = 2_000

	src := newFakePairs(testNetworkConfig())
	src.publish(&TransportPair{ID: 1, Primary: primary})

	cs := newTestClockSync(t, clock, 3, src)

	if updated, _ := cs.Sync(context.Background()); updated {
		t.Fatal("expected no update when chain time equals the clock")
	}
	if clock.LastUpdate() != 0 {
		t.Fatalf("LastUpdate = %d, want 0", clock.LastUpdate())
	}
}

func TestClockSync_HeaderErrorIsReported(t *testing.T) {
	src := newFakePairs(testNetworkConfig())
	src.publish(&TransportPair{ID: 1, Primary: newFakeBackend(4)})

	cs := newTestClockSync(t, domain.NewClock(), 4, src)

	_, err := cs.Sync(context.Background())
	if apperror.GetCode(err) != apperror.CodeBlockNotFound {
		t.Fatalf("err = %v, want %s", err, apperror.CodeBlockNotFound)
	}
}
