// Package ethereum provides go-ethereum adapters for the blockchain context.
package ethereum

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/chain-txqueue/business/blockchain/app"
	"github.com/fd1az/chain-txqueue/internal/apperror"
	"github.com/fd1az/chain-txqueue/internal/config"
	"github.com/fd1az/chain-txqueue/internal/logger"
	"github.com/fd1az/chain-txqueue/internal/wsconn"
)

const (
	tracerName = "github.com/fd1az/chain-txqueue/business/blockchain/infra/ethereum"
	meterName  = "github.com/fd1az/chain-txqueue/business/blockchain/infra/ethereum"
)

// Dialer opens a JSON-RPC primary connection and, when a websocket URL is
// configured, a push connection carried over a wsconn session.
type Dialer struct {
	httpClient *http.Client
	logger     logger.LoggerInterface
	tracer     trace.Tracer
}

var _ app.Dialer = (*Dialer)(nil)

// NewDialer creates a dialer. httpClient may be nil.
func NewDialer(httpClient *http.Client, log logger.LoggerInterface) *Dialer {
	return &Dialer{
		httpClient: httpClient,
		logger:     log,
		tracer:     otel.Tracer(tracerName),
	}
}

// Dial connects both endpoints. On failure nothing is left open.
func (d *Dialer) Dial(ctx context.Context, cfg config.NetworkConfig) (*app.TransportPair, error) {
	ctx, span := d.tracer.Start(ctx, "eth.dial",
		trace.WithAttributes(
			attribute.String("json_rpc_url", cfg.JSONRPCURL),
			attribute.Bool("push", cfg.HasPush()),
		),
	)
	defer span.End()

	primary, err := d.dialPrimary(ctx, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "primary dial failed")
		return nil, err
	}

	pair := &app.TransportPair{Primary: primary}

	if cfg.HasPush() {
		push, err := d.dialPush(ctx, cfg)
		if err != nil {
			primary.Close()
			span.RecordError(err)
			span.SetStatus(codes.Error, "push dial failed")
			return nil, err
		}
		pair.Push = push
	}

	span.SetStatus(codes.Ok, "connected")
	d.logger.Info(ctx, "ethereum endpoints dialed", "json_rpc_url", cfg.JSONRPCURL, "push", cfg.HasPush())

	return pair, nil
}

func (d *Dialer) dialPrimary(ctx context.Context, cfg config.NetworkConfig) (*ethclient.Client, error) {
	var opts []rpc.ClientOption
	if d.httpClient != nil {
		opts = append(opts, rpc.WithHTTPClient(d.httpClient))
	}

	rc, err := rpc.DialOptions(ctx, cfg.JSONRPCURL, opts...)
	if err != nil {
		return nil, apperror.New(apperror.CodeEthereumConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext("dial "+cfg.JSONRPCURL))
	}
	return ethclient.NewClient(rc), nil
}

func (d *Dialer) dialPush(ctx context.Context, cfg config.NetworkConfig) (*app.PushTransport, error) {
	wsCfg := wsconn.DefaultConfig(cfg.WSRPCURL, "eth-push")
	wsCfg.PingInterval = 0 // liveness is owned by the transport heartbeat
	if cfg.MaxMessageSize > 0 {
		wsCfg.MaxMessageSize = cfg.MaxMessageSize
	}

	ws, err := wsconn.New(wsCfg)
	if err != nil {
		return nil, err
	}

	pipe := newWSPipe(ws)

	if err := ws.Connect(ctx); err != nil {
		pipe.Close()
		return nil, apperror.New(apperror.CodeEthereumConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext("dial "+cfg.WSRPCURL))
	}

	rc, err := rpc.DialIO(ctx, pipe, pipe)
	if err != nil {
		pipe.Close()
		return nil, apperror.New(apperror.CodeEthereumConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext("rpc over "+cfg.WSRPCURL))
	}

	return &app.PushTransport{
		Client: &pushClient{Client: ethclient.NewClient(rc), pipe: pipe},
		Socket: pipe,
	}, nil
}

// pushClient closes the websocket together with the RPC client.
type pushClient struct {
	*ethclient.Client
	pipe *wsPipe
}

func (c *pushClient) Close() {
	c.pipe.Close()
	c.Client.Close()
}
