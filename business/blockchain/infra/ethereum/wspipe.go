package ethereum

import (
	"context"
	"io"
	"sync"

	"github.com/fd1az/chain-txqueue/internal/wsconn"
)

// wsPipe exposes a wsconn session as the byte stream the JSON-RPC client
// reads and writes. Each Write is one outbound frame; inbound frames are
// concatenated on the read side.
type wsPipe struct {
	ws *wsconn.Client
	pr *io.PipeReader
	pw *io.PipeWriter

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func newWSPipe(ws *wsconn.Client) *wsPipe {
	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	p := &wsPipe{ws: ws, pr: pr, pw: pw, ctx: ctx, cancel: cancel}

	ws.OnMessage(func(_ context.Context, msg []byte) {
		// Fails only once the pipe is closed.
		_, _ = pw.Write(msg)
	})

	go func() {
		select {
		case <-ws.Done():
			err := ws.Err()
			if err == nil {
				err = io.EOF
			}
			pw.CloseWithError(err)
		case <-ctx.Done():
		}
	}()

	return p
}

func (p *wsPipe) Read(b []byte) (int, error) {
	return p.pr.Read(b)
}

func (p *wsPipe) Write(b []byte) (int, error) {
	if err := p.ws.Send(p.ctx, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Done is closed when the websocket session ends.
func (p *wsPipe) Done() <-chan struct{} {
	return p.ws.Done()
}

// Err is nil after a clean close.
func (p *wsPipe) Err() error {
	return p.ws.Err()
}

// Close unblocks the reader before closing the socket so the close
// handshake is not held up by a pending frame.
func (p *wsPipe) Close() error {
	var err error
	p.once.Do(func() {
		p.cancel()
		p.pr.Close()
		p.pw.Close()
		err = p.ws.Close()
	})
	return err
}
