// Package client is a minimal gateway client used by the talk command and
// by tests: it sends a config message, streams PCM audio, and reads events.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chriscow/voicegw/pkg/protocol"
)

var ErrNotConnected = errors.New("not connected")

type Client struct {
	url    string
	logger *slog.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn
}

// ConfigMessage is the optional first message a client sends.
type ConfigMessage struct {
	Type    string            `json:"type"`
	Keys    map[string]string `json:"keys,omitempty"`
	Persona string            `json:"persona,omitempty"`
}

func New(serverURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:    serverURL,
		logger: logger.With(slog.String("component", "client")),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("invalid URL scheme %q: want ws or wss", u.Scheme)
	}

	c.logger.Debug("Connecting to gateway", slog.String("url", u.String()))

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.logger.Info("Gateway connected", slog.String("url", c.url))
	return nil
}

// SendConfig sends the config message. Call it before any audio.
func (c *Client) SendConfig(keys map[string]string, persona string) error {
	return c.write(func(conn *websocket.Conn) error {
		return conn.WriteJSON(ConfigMessage{Type: protocol.TypeConfig, Keys: keys, Persona: persona})
	})
}

// SendAudio sends one binary frame of 16 kHz mono 16-bit PCM.
func (c *Client) SendAudio(pcm []byte) error {
	return c.write(func(conn *websocket.Conn) error {
		return conn.WriteMessage(websocket.BinaryMessage, pcm)
	})
}

// StreamAudio sends chunks paced at interval, as a microphone would.
func (c *Client) StreamAudio(ctx context.Context, chunks [][]byte, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i, chunk := range chunks {
		if err := c.SendAudio(chunk); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// ReadEvent blocks until the next server event, the connection closing, or
// ctx being done.
func (c *Client) ReadEvent(ctx context.Context) (protocol.Event, error) {
	if c.conn == nil {
		return protocol.Event{}, ErrNotConnected
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
	} else {
		_ = c.conn.SetReadDeadline(time.Time{})
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	var ev protocol.Event
	if err := c.conn.ReadJSON(&ev); err != nil {
		if ctx.Err() != nil {
			return protocol.Event{}, ctx.Err()
		}
		return protocol.Event{}, fmt.Errorf("failed to read event: %w", err)
	}

	c.logger.Debug("Received event", slog.String("type", ev.Type))
	return ev, nil
}

// Close sends a close frame and releases the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}

	c.logger.Info("Closing gateway connection")
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) write(fn func(*websocket.Conn) error) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := fn(c.conn); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}
	return nil
}
