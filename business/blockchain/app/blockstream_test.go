package app

import (
	"errors"
	"testing"
	"time"

	"github.com/fd1az/chain-txqueue/internal/config"
	"github.com/fd1az/chain-txqueue/internal/observable"
)

// fakePairs is a PairSource the test publishes to directly.
type fakePairs struct {
	pairs *observable.Value[*TransportPair]
	cfg   config.NetworkConfig
}

func newFakePairs(cfg config.NetworkConfig) *fakePairs {
	return &fakePairs{pairs: observable.NewValue[*TransportPair](nil), cfg: cfg}
}

func (f *fakePairs) PairValue() observable.Readable[*TransportPair] { return f.pairs }
func (f *fakePairs) Config() config.NetworkConfig                   { return f.cfg }

func (f *fakePairs) publish(p *TransportPair) { f.pairs.Set(p) }

func newTestStream(t *testing.T, src PairSource) (*BlockStream, chan uint64) {
	t.Helper()

	s, err := NewBlockStream(src, &mockLogger{})
	if err != nil {
		t.Fatalf("NewBlockStream: %v", err)
	}

	ch := make(chan uint64, 128)
	sub := s.SubscribeHeights(ch)
	s.Start()

	t.Cleanup(func() {
		sub.Unsubscribe()
		s.Close()
	})
	return s, ch
}

func receive(t *testing.T, ch <-chan uint64, n int) []uint64 {
	t.Helper()
	got := make([]uint64, 0, n)
	timeout := time.After(2 * time.Second)
	for len(got) < n {
		select {
		case h := <-ch:
			got = append(got, h)
		case <-timeout:
			t.Fatalf("received %v, wanted %d heights", got, n)
		}
	}
	return got
}

func equalHeights(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBlockStream_BackfillEndsOnObservedHeight(t *testing.T) {
	cfg := testNetworkConfig()
	cfg.InitialBlockNumber = 100
	cfg.BackfillInterval = 10

	src := newFakePairs(cfg)
	_, ch := newTestStream(t, src)

	src.publish(&TransportPair{ID: 1, Primary: newFakeBackend(137)})

	got := receive(t, ch, 5)
	want := []uint64{100, 110, 120, 130, 137}
	if !equalHeights(got, want) {
		t.Fatalf("heights = %v, want %v", got, want)
	}
}

func TestBlockStream_BackfillPacesEveryItem(t *testing.T) {
	const pace = 20 * time.Millisecond

	cfg := testNetworkConfig()
	cfg.InitialBlockNumber = 100
	cfg.BackfillInterval = 10
	cfg.BackfillPace = pace

	src := newFakePairs(cfg)
	_, ch := newTestStream(t, src)

	src.publish(&TransportPair{ID: 1, Primary: newFakeBackend(137)})

	var heights []uint64
	var at []time.Time
	timeout := time.After(2 * time.Second)
	for len(heights) < 5 {
		select {
		case h := <-ch:
			heights = append(heights, h)
			at = append(at, time.Now())
		case <-timeout:
			t.Fatalf("received %v, wanted 5 heights", heights)
		}
	}

	if want := []uint64{100, 110, 120, 130, 137}; !equalHeights(heights, want) {
		t.Fatalf("heights = %v, want %v", heights, want)
	}
	for i := 1; i < len(at); i++ {
		if gap := at[i].Sub(at[i-1]); gap < pace/2 {
			t.Errorf("height %d arrived %s after %d, want about %s", heights[i], gap, heights[i-1], pace)
		}
	}

	// The observed height closes the backfill and is not repeated live.
	select {
	case h := <-ch:
		t.Fatalf("unexpected extra height %d", h)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBlockStream_NoBackfillWhenStartIsAhead(t *testing.T) {
	cfg := testNetworkConfig()
	cfg.InitialBlockNumber = 500
	cfg.BackfillInterval = 10

	src := newFakePairs(cfg)
	_, ch := newTestStream(t, src)

	src.publish(&TransportPair{ID: 1, Primary: newFakeBackend(137)})

	if got := receive(t, ch, 1); got[0] != 137 {
		t.Fatalf("first height = %d, want 137", got[0])
	}
}

func TestBlockStream_PollingSkipsRepeats(t *testing.T) {
	src := newFakePairs(testNetworkConfig())
	_, ch := newTestStream(t, src)

	primary := newFakeBackend(7)
	src.publish(&TransportPair{ID: 1, Primary: primary})

	if got := receive(t, ch, 1); got[0] != 7 {
		t.Fatalf("first height = %d, want 7", got[0])
	}

	time.Sleep(40 * time.Millisecond)
	primary.setHeight(8)

	if got := receive(t, ch, 1); got[0] != 8 {
		t.Fatalf("next height = %d, want 8 (no repeats of 7)", got[0])
	}
}

func TestBlockStream_FollowsPushedHeads(t *testing.T) {
	src := newFakePairs(testNetworkConfig())
	s, ch := newTestStream(t, src)

	push := newFakeBackend(50)
	src.publish(&TransportPair{
		ID:      1,
		Primary: newFakeBackend(50),
		Push:    &PushTransport{Client: push, Socket: newFakeSocket()},
	})

	eventually(t, "initial height", func() bool { return s.Latest() == 50 })
	eventually(t, "head subscription", func() bool { return push.subscribers() == 1 })

	push.pushHead(51)
	push.pushHead(52)

	got := receive(t, ch, 3)
	if !equalHeights(got, []uint64{50, 51, 52}) {
		t.Fatalf("heights = %v, want [50 51 52]", got)
	}
}

func TestBlockStream_PushedHeadWinsOverInitialQuery(t *testing.T) {
	src := newFakePairs(testNetworkConfig())
	s, ch := newTestStream(t, src)

	push := newFakeBackend(55)
	push.heightGate = make(chan struct{})

	src.publish(&TransportPair{
		ID:      1,
		Primary: newFakeBackend(55),
		Push:    &PushTransport{Client: push, Socket: newFakeSocket()},
	})

	eventually(t, "head subscription", func() bool { return push.subscribers() == 1 })
	push.pushHead(60)

	if got := receive(t, ch, 1); got[0] != 60 {
		t.Fatalf("first height = %d, want 60", got[0])
	}

	close(push.heightGate)

	select {
	case h := <-ch:
		t.Fatalf("stale initial height %d emitted after a pushed head", h)
	case <-time.After(50 * time.Millisecond):
	}
	if s.Latest() != 60 {
		t.Fatalf("latest = %d, want 60", s.Latest())
	}
}

func TestBlockStream_SubscribeFailureFallsBackToPolling(t *testing.T) {
	src := newFakePairs(testNetworkConfig())
	_, ch := newTestStream(t, src)

	push := newFakeBackend(9)
	push.subErr = errors.New("notifications not supported")

	src.publish(&TransportPair{
		ID:      1,
		Primary: newFakeBackend(9),
		Push:    &PushTransport{Client: push, Socket: newFakeSocket()},
	})

	if got := receive(t, ch, 1); got[0] != 9 {
		t.Fatalf("height = %d, want 9", got[0])
	}
}

func TestBlockStream_SwitchesToNewPair(t *testing.T) {
	src := newFakePairs(testNetworkConfig())
	_, ch := newTestStream(t, src)

	src.publish(&TransportPair{ID: 1, Primary: newFakeBackend(20)})
	if got := receive(t, ch, 1); got[0] != 20 {
		t.Fatalf("height = %d, want 20", got[0])
	}

	src.publish(&TransportPair{ID: 2, Primary: newFakeBackend(25)})
	if got := receive(t, ch, 1); got[0] != 25 {
		t.Fatalf("height = %d, want 25 from the new pair", got[0])
	}
}

func TestBlockStream_CloseEndsSubscriptions(t *testing.T) {
	s, err := NewBlockStream(newFakePairs(testNetworkConfig()), &mockLogger{})
	if err != nil {
		t.Fatalf("NewBlockStream: %v", err)
	}

	sub := s.SubscribeHeights(make(chan uint64))
	s.Start()
	s.Close()

	select {
	case <-sub.Err():
	case <-time.After(time.Second):
		t.Fatal("subscription not ended by Close")
	}
}
