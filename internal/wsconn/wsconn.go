// Package wsconn provides a single-session WebSocket client.
//
// A Client dials once and lives until the peer closes, an error occurs, or
// Close is called. Done and Err report how the session ended; reconnecting
// is left to the owner, which dials a fresh Client.
package wsconn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/fd1az/chain-txqueue/internal/apperror"
)

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateClosed       State = "closed"
)

// Config holds WebSocket client configuration.
type Config struct {
	URL            string
	Name           string // used in errors and logs
	DialTimeout    time.Duration
	PingInterval   time.Duration // 0 disables pings
	PongTimeout    time.Duration
	MaxMessageSize int64 // 0 keeps the library default
	HTTPClient     *http.Client
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(url, name string) Config {
	return Config{
		URL:            url,
		Name:           name,
		DialTimeout:    10 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
		MaxMessageSize: 1 << 20,
	}
}

// MessageHandler receives every inbound data frame.
type MessageHandler func(ctx context.Context, msg []byte)

// Client is a WebSocket client for one session.
type Client struct {
	config Config

	conn    *websocket.Conn
	writeMu sync.Mutex

	state   State
	stateMu sync.RWMutex

	onMessage MessageHandler
	handlerMu sync.RWMutex

	done     chan struct{}
	doneOnce sync.Once
	err      error
	errMu    sync.Mutex

	cancel context.CancelFunc
}

// New creates a new WebSocket client.
func New(config Config) (*Client, error) {
	if config.URL == "" {
		return nil, apperror.New(apperror.CodeWebSocketConnectionError,
			apperror.WithContext(fmt.Sprintf("%s: url is required", config.Name)))
	}
	if config.PongTimeout <= 0 {
		config.PongTimeout = 10 * time.Second
	}

	return &Client{
		config: config,
		state:  StateDisconnected,
		done:   make(chan struct{}),
	}, nil
}

// OnMessage sets the inbound message handler. Set it before Connect.
func (c *Client) OnMessage(h MessageHandler) {
	c.handlerMu.Lock()
	c.onMessage = h
	c.handlerMu.Unlock()
}

// Connect dials the server and starts the read and ping loops.
func (c *Client) Connect(ctx context.Context) error {
	if c.State() == StateClosed {
		return apperror.New(apperror.CodeWebSocketClosed, apperror.WithContext(c.config.Name))
	}

	c.setState(StateConnecting)

	dialCtx := ctx
	if c.config.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.config.DialTimeout)
		defer cancel()
	}

	conn, _, err := websocket.Dial(dialCtx, c.config.URL, &websocket.DialOptions{
		HTTPClient: c.config.HTTPClient,
	})
	if err != nil {
		c.setState(StateDisconnected)
		return apperror.New(apperror.CodeWebSocketConnectionError,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("%s: dial %s", c.config.Name, c.config.URL)))
	}

	if c.config.MaxMessageSize > 0 {
		conn.SetReadLimit(c.config.MaxMessageSize)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.cancel = cancel

	c.setState(StateConnected)

	go c.readLoop(runCtx)
	if c.config.PingInterval > 0 {
		go c.pingLoop(runCtx)
	}

	return nil
}

// Send writes a text frame.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	if !c.IsConnected() {
		return apperror.New(apperror.CodeWebSocketSendError,
			apperror.WithContext(fmt.Sprintf("%s: not connected", c.config.Name)))
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return apperror.New(apperror.CodeWebSocketSendError,
			apperror.WithCause(err),
			apperror.WithContext(c.config.Name))
	}
	return nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// IsConnected reports whether the session is open.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Done is closed when the session ends for any reason.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the session ended. It is nil while the session is open
// and after a local Close or a normal closure by the peer.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close closes the session. It is safe to call more than once.
func (c *Client) Close() error {
	c.stateMu.Lock()
	if c.state == StateClosed {
		c.stateMu.Unlock()
		return nil
	}
	c.stateMu.Unlock()

	c.setState(StateClosed)

	if c.conn != nil {
		// Peer may already be gone.
		if err := c.conn.Close(websocket.StatusNormalClosure, ""); err != nil {
			c.conn.CloseNow()
		}
	}
	if c.cancel != nil {
		c.cancel()
	}

	c.finish(nil)
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			c.handleDisconnect(err)
			return
		}

		c.handlerMu.RLock()
		h := c.onMessage
		c.handlerMu.RUnlock()

		if h != nil {
			h(ctx, data)
		}
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.config.PongTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil && ctx.Err() == nil {
				c.conn.CloseNow()
				return
			}
		}
	}
}

func (c *Client) handleDisconnect(err error) {
	if c.State() == StateClosed {
		c.finish(nil)
		return
	}

	if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
		err = nil
	}

	if c.cancel != nil {
		c.cancel()
	}
	c.conn.CloseNow()

	c.setState(StateDisconnected)
	c.finish(err)
}

func (c *Client) finish(err error) {
	c.doneOnce.Do(func() {
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()
		close(c.done)
	})
}

// setState never leaves StateClosed.
func (c *Client) setState(state State) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.state = state
}
