package lnmws

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const defaultHeartbeatInterval = 5 * time.Second

// requestEnvelope pairs an outbound JSON-RPC request with a one-shot reply
// channel the caller blocks on for the venue's confirmation.
type requestEnvelope struct {
	req   Request
	reply chan bool
}

// eventLoop owns one connection's lifetime: subscription request/reply,
// inbound event fan-out, and the ping/pong heartbeat. It runs until the
// connection fails, the server closes it, or a disconnect is requested.
type eventLoop struct {
	conn         *connection
	requestCh    <-chan requestEnvelope
	disconnectCh <-chan struct{}
	eventsOut    chan<- Event
	log          zerolog.Logger

	// heartbeatInterval overrides defaultHeartbeatInterval when set;
	// tests use a short interval so the timeout paths don't need to wait
	// out the production cadence.
	heartbeatInterval time.Duration
}

func (l *eventLoop) run(ctx context.Context) error {
	interval := l.heartbeatInterval
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}

	pending := make(map[string]requestEnvelope)
	defer func() {
		for _, env := range pending {
			replyNonBlocking(env.reply, false)
		}
		l.conn.close()
	}()

	timer := time.NewTimer(interval)
	defer timer.Stop()
	resetTimer := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(interval)
	}

	closeInitiated := false
	waitingForPong := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-l.disconnectCh:
			closeInitiated = true
			resetTimer()
			if err := l.conn.sendClose(); err != nil {
				return err
			}

		case env := <-l.requestCh:
			if err := l.conn.sendJSONRPC(env.req); err != nil {
				return err
			}
			pending[env.req.ID] = env

		case frame := <-l.conn.frames:
			waitingForPong = false
			resetTimer()

			switch {
			case frame.err != nil:
				return frame.err

			case frame.confirmation != nil:
				env, ok := pending[frame.confirmation.ID]
				if ok {
					delete(pending, frame.confirmation.ID)
					requested, _ := env.req.Params.([]string)
					replyNonBlocking(env.reply, frame.confirmation.checkSuccess(requested))
				}

			case frame.event != nil:
				select {
				case l.eventsOut <- *frame.event:
				default:
					l.log.Warn().Str("channel", frame.event.Channel).Msg("dropping event, no receiver")
				}

			case frame.ping != nil:
				if err := l.conn.sendPong(frame.ping); err != nil {
					return err
				}

			case frame.closed:
				if closeInitiated {
					return nil
				}
				_ = l.conn.sendClose()
				return ErrServerRequestedClose

			case frame.pong:
				// heartbeat already reset above
			}

		case <-timer.C:
			if closeInitiated {
				return ErrNoServerCloseConfirmation
			}
			if waitingForPong {
				return ErrNoServerPong
			}
			if err := l.conn.sendPing(); err != nil {
				return err
			}
			waitingForPong = true
			resetTimer()
		}
	}
}

func replyNonBlocking(ch chan bool, v bool) {
	select {
	case ch <- v:
	default:
	}
}
