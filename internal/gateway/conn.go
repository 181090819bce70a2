package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chriscow/voicegw/pkg/protocol"
)

// ErrConnectionClosed is returned by Emit once the connection can no longer
// carry events.
var ErrConnectionClosed = errors.New("connection closed")

const outboundBuffer = 64

// conn serializes every outbound event through a single writer goroutine.
// It implements agent.Emitter.
type conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	logger       *slog.Logger

	out      chan protocol.Event
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	broken   atomic.Bool
}

func newConn(ws *websocket.Conn, writeTimeout time.Duration, logger *slog.Logger) *conn {
	return &conn{
		ws:           ws,
		writeTimeout: writeTimeout,
		logger:       logger,
		out:          make(chan protocol.Event, outboundBuffer),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Emit queues ev for delivery. It blocks while the outbound buffer is full.
func (c *conn) Emit(ctx context.Context, ev protocol.Event) error {
	if c.broken.Load() {
		return ErrConnectionClosed
	}
	select {
	case c.out <- ev:
		return nil
	case <-c.stop:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *conn) failed() bool {
	return c.broken.Load()
}

func (c *conn) writeLoop() {
	defer close(c.done)
	for {
		select {
		case ev := <-c.out:
			c.write(ev)
		case <-c.stop:
			// Flush what the pipeline already queued.
			for {
				select {
				case ev := <-c.out:
					c.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (c *conn) write(ev protocol.Event) {
	if c.broken.Load() {
		return
	}
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.ws.WriteJSON(ev); err != nil {
		c.broken.Store(true)
		c.logger.Warn("Write failed, closing connection",
			slog.String("event", ev.Type),
			slog.String("error", err.Error()))
		// Unblock the reader so teardown starts.
		_ = c.ws.SetReadDeadline(time.Now())
		return
	}
	c.logger.Debug("Sent event", slog.String("event", ev.Type))
}

// close flushes pending events, sends a close frame and releases the socket.
func (c *conn) close() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done

	if !c.broken.Load() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil &&
			!errors.Is(err, websocket.ErrCloseSent) {
			c.logger.Debug("Close frame not sent", slog.String("error", err.Error()))
		}
	}
	if err := c.ws.Close(); err != nil {
		c.logger.Debug("Closing socket", slog.String("error", err.Error()))
	}
}
