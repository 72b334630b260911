package observable

import "context"

// Source is anything that can report a change.
type Source interface {
	Changed() <-chan struct{}
}

// WaitFor blocks until pred reports true or ctx is done. pred is evaluated
// once up front and again after every change of any source. The change
// channels are captured before pred runs so no update can be missed.
func WaitFor[T any](ctx context.Context, pred func() (T, bool), sources ...Source) (T, error) {
	for {
		chans := make([]<-chan struct{}, len(sources))
		for i, s := range sources {
			chans[i] = s.Changed()
		}

		if v, ok := pred(); ok {
			return v, nil
		}

		if err := waitAny(ctx, chans); err != nil {
			var zero T
			return zero, err
		}
	}
}

func waitAny(ctx context.Context, chans []<-chan struct{}) error {
	if len(chans) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	done := make(chan struct{})
	fired := make(chan struct{}, len(chans))
	for _, ch := range chans {
		go func(ch <-chan struct{}) {
			select {
			case <-ch:
				fired <- struct{}{}
			case <-done:
			}
		}(ch)
	}
	defer close(done)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-fired:
		return nil
	}
}
