package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"

	"github.com/sweeney/pw-dashboard/internal/mqtt"
)

// SocketPath is the backend's telemetry socket.
const SocketPath = "/socket.ws"

const writeTimeout = 5 * time.Second

// ErrNotConnected is returned by Send while no socket is open.
var ErrNotConnected = errors.New("telemetry: socket not connected")

// Handler receives every raw message read from the socket, plus a
// {"result": ...} message on each connection change.
type Handler func(data []byte)

// SocketURL derives the socket address from the backend base URL: https
// maps to wss, anything else to ws.
func SocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse backend url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("backend url %q has no host", base)
	}
	if u.Scheme == "https" || u.Scheme == "wss" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + SocketPath
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// Client keeps one socket to the backend open, reconnecting with backoff.
type Client struct {
	url    string
	dialer *websocket.Dialer
	log    zerolog.Logger

	// backoff schedules reconnect attempts; only the run loop touches it.
	backoff backoff.Backoff

	mu      sync.Mutex
	conn    *websocket.Conn
	handler Handler
	cancel  context.CancelFunc
	done    chan struct{}

	writeMu sync.Mutex
}

// NewClient creates a client for the socket at socketURL.
func NewClient(socketURL string, log zerolog.Logger) *Client {
	return &Client{
		url:    socketURL,
		dialer: websocket.DefaultDialer,
		log:    log,
		backoff: backoff.Backoff{
			Min:    time.Second,
			Max:    30 * time.Second,
			Factor: 1.5,
		},
	}
}

// Subscribe installs the message handler. The last subscriber wins.
func (c *Client) Subscribe(h Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Connect starts the connection loop in the background. It is a no-op while
// a loop is already running.
func (c *Client) Connect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		c.run(ctx)
	}(c.done)
}

// Run connects and blocks until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	c.Connect(ctx)
	<-ctx.Done()
	c.Disconnect()
	return nil
}

// Disconnect closes the socket and stops reconnecting.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cancel, done, conn := c.cancel, c.done, c.conn
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if conn != nil {
		_ = conn.Close()
	}
	<-done
}

// IsConnected reports whether a socket is currently open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send writes one text frame.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("socket write: %w", err)
	}
	return nil
}

// SendCommand sends the command envelope over the socket.
func (c *Client) SendCommand(_ context.Context, cmd mqtt.Command) error {
	data, err := mqtt.FormatCommand(cmd)
	if err != nil {
		return fmt.Errorf("format command: %w", err)
	}
	return c.Send(data)
}

func (c *Client) run(ctx context.Context) {
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn().Err(err).Str("url", c.url).Msg("socket connect failed")
			c.notify(ResultFailed)
		} else {
			c.backoff.Reset()
			c.serve(ctx, conn)
			if ctx.Err() != nil {
				return
			}
		}

		wait := c.backoff.Duration()
		c.log.Debug().Dur("wait", wait).Msg("socket reconnect scheduled")
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// serve reads from conn until it fails or ctx is cancelled.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.log.Info().Str("url", c.url).Msg("socket connected")
	c.notify(ResultOpened)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()
		c.notify(ResultClosed)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn().Err(err).Msg("socket closed")
			}
			return
		}
		c.deliver(data)
	}
}

func (c *Client) notify(result string) {
	data, _ := json.Marshal(map[string]string{"result": result})
	c.deliver(data)
}

func (c *Client) deliver(data []byte) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(data)
	}
}
