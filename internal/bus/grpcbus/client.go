// ABOUTME: Network bus client implementing the sender and subscribe contract over gRPC
// ABOUTME: Publishes through an optional rate limiter and keeps subscriptions reconnecting

package grpcbus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/2389/pillarclient/internal/bus"
	"github.com/2389/pillarclient/internal/message"
)

const (
	defaultReconnectDelay = time.Second
	defaultReadyTimeout   = 5 * time.Second
)

// ClientConfig configures a Client.
type ClientConfig struct {
	Address string
	// PublishRate limits publishes per second. Zero means unlimited.
	PublishRate  float64
	PublishBurst int
	// ReconnectDelay is the pause before a dropped subscription reconnects.
	ReconnectDelay time.Duration
	// ReadyTimeout bounds how long Subscribe waits for the server to
	// acknowledge the subscription.
	ReadyTimeout time.Duration
	// DialOptions replace the default plaintext transport credentials.
	DialOptions []grpc.DialOption
}

// Client talks to a bus Server. It is safe for concurrent use.
type Client struct {
	conn           *grpc.ClientConn
	limiter        *rate.Limiter
	reconnectDelay time.Duration
	readyTimeout   time.Duration
	logger         *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Dial creates a client for cfg.Address. Pass nil logger for default.
func Dial(cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	opts := cfg.DialOptions
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating bus client for %s: %w", cfg.Address, err)
	}
	return NewClient(conn, cfg, logger), nil
}

// NewClient wraps an existing connection. Close closes conn.
func NewClient(conn *grpc.ClientConn, cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.PublishRate > 0 {
		burst := cfg.PublishBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.PublishRate), burst)
	}
	reconnect := cfg.ReconnectDelay
	if reconnect <= 0 {
		reconnect = defaultReconnectDelay
	}
	ready := cfg.ReadyTimeout
	if ready <= 0 {
		ready = defaultReadyTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:           conn,
		limiter:        limiter,
		reconnectDelay: reconnect,
		readyTimeout:   ready,
		logger:         logger.With("component", "grpcbus"),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Send publishes msg.
func (c *Client) Send(ctx context.Context, msg *message.Message) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("publishing %s: %w", msg, err)
	}
	data, err := message.Encode(msg)
	if err != nil {
		return err
	}
	if err := c.conn.Invoke(ctx, publishMethod, wrapperspb.Bytes(data), &emptypb.Empty{}); err != nil {
		return fmt.Errorf("publishing %s: %w", msg, err)
	}
	return nil
}

// Subscribe delivers messages for destination to l until the returned
// function is called or the client is closed. It waits for the server to
// acknowledge the first subscription, up to the ready timeout; dropped
// streams reconnect in the background.
func (c *Client) Subscribe(destination string, l bus.Listener) func() {
	ctx, cancel := context.WithCancel(c.ctx)
	ready := make(chan struct{})
	var readyOnce sync.Once

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			err := c.listen(ctx, destination, l, func() { readyOnce.Do(func() { close(ready) }) })
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("subscription dropped, reconnecting",
				"destination", destination,
				"error", err,
				"delay", c.reconnectDelay,
			)
			select {
			case <-time.After(c.reconnectDelay):
			case <-ctx.Done():
				return
			}
		}
	}()

	select {
	case <-ready:
	case <-time.After(c.readyTimeout):
		c.logger.Warn("subscription not acknowledged yet", "destination", destination)
	}
	return cancel
}

// listen runs one Subscribe stream until it fails or ctx ends.
func (c *Client) listen(ctx context.Context, destination string, l bus.Listener, onReady func()) error {
	stream, err := c.conn.NewStream(ctx, &subscribeStreamDesc, subscribeMethod)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(wrapperspb.String(destination)); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	// A failed stream yields empty headers; RecvMsg then reports the error.
	md, err := stream.Header()
	if err != nil {
		return err
	}
	if len(md.Get(subscribedHeader)) > 0 {
		onReady()
		c.logger.Debug("subscribed", "destination", destination)
	}

	for {
		envelope := new(wrapperspb.BytesValue)
		if err := stream.RecvMsg(envelope); err != nil {
			if errors.Is(err, io.EOF) {
				return errors.New("server closed the subscription")
			}
			if status.Code(err) == codes.Canceled && ctx.Err() != nil {
				return nil
			}
			return err
		}
		msg, err := message.Decode(envelope.GetValue())
		if err != nil {
			c.logger.Warn("dropping undecodable message", "destination", destination, "error", err)
			continue
		}
		l.HandleMessage(msg)
	}
}

// Close stops every subscription and closes the connection.
func (c *Client) Close() error {
	c.cancel()
	c.wg.Wait()
	return c.conn.Close()
}
