package lnmws

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Client is the public handle to one WebSocket connection's lifetime:
// subscribe/unsubscribe with venue confirmation, a fan-out event stream,
// and a way to request disconnect and observe the final outcome.
type Client struct {
	requestCh    chan requestEnvelope
	disconnectCh chan struct{}
	eventsCh     chan Event
	done         chan error
}

// Option configures a Connect call.
type Option func(*eventLoop)

// WithHeartbeatInterval overrides the default ping cadence; tests use this
// to exercise the timeout paths without waiting out the production interval.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(l *eventLoop) { l.heartbeatInterval = d }
}

// Connect dials url and starts its event loop under ctx. Cancel ctx or call
// Disconnect to end the connection; Wait reports how it ended.
func Connect(ctx context.Context, url string, log zerolog.Logger, opts ...Option) (*Client, error) {
	conn, err := dial(ctx, url)
	if err != nil {
		return nil, err
	}

	c := &Client{
		requestCh:    make(chan requestEnvelope),
		disconnectCh: make(chan struct{}, 1),
		eventsCh:     make(chan Event, 256),
		done:         make(chan error, 1),
	}

	loop := &eventLoop{
		conn:         conn,
		requestCh:    c.requestCh,
		disconnectCh: c.disconnectCh,
		eventsOut:    c.eventsCh,
		log:          log,
	}
	for _, opt := range opts {
		opt(loop)
	}
	go func() { c.done <- loop.run(ctx) }()

	return c, nil
}

func (c *Client) call(ctx context.Context, method string, channels []string) error {
	reply := make(chan bool, 1)
	id := uuid.New()
	req := Request{
		JSONRPC: "2.0",
		ID:      hex.EncodeToString(id[:]),
		Method:  method,
		Params:  channels,
	}

	select {
	case c.requestCh <- requestEnvelope{req: req, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case ok := <-reply:
		if !ok {
			return fmt.Errorf("lnmws: %s %v rejected by venue", method, channels)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe requests a set of channel subscriptions and blocks for
// confirmation. The venue must confirm exactly this channel set.
func (c *Client) Subscribe(ctx context.Context, channels []string) error {
	return c.call(ctx, MethodSubscribe, channels)
}

// Unsubscribe requests a set of channel unsubscriptions and blocks for
// confirmation.
func (c *Client) Unsubscribe(ctx context.Context, channels []string) error {
	return c.call(ctx, MethodUnsubscribe, channels)
}

// Events returns the stream of subscription pushes. Consumers that fall
// behind will have events dropped rather than stall the connection.
func (c *Client) Events() <-chan Event {
	return c.eventsCh
}

// Disconnect requests a graceful close. It is safe to call more than once.
func (c *Client) Disconnect() {
	select {
	case c.disconnectCh <- struct{}{}:
	default:
	}
}

// Wait blocks until the event loop exits and returns why: nil for a clean
// disconnect, or one of ErrNoServerPong / ErrNoServerCloseConfirmation /
// ErrServerRequestedClose / a transport error otherwise.
func (c *Client) Wait() error {
	return <-c.done
}
