// Package bridge implements game.Client over a websocket to the game client
// plugin. Calls are JSON requests matched to responses by id; the plugin also
// pushes chat lines and peer commands as events.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/linanwx/ferry/bus"
	"github.com/linanwx/ferry/internal/runtimecfg"
	"github.com/linanwx/ferry/logger"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("bridge closed")

// ErrDisconnected is returned by calls made while the connection is down and
// the client is redialing.
var ErrDisconnected = errors.New("bridge disconnected")

// RemoteError is a failure reported by the plugin.
type RemoteError struct {
	Op      string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Config holds connection settings.
type Config struct {
	URL              string
	RequestTimeout   time.Duration
	EventBuffer      int
	ReconnectBackoff time.Duration
}

// Command is a slash command a peer asked this character to run.
type Command struct {
	From string
	Text string
}

type request struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Op   string `json:"op"`
	Args any    `json:"args,omitempty"`
}

type inbound struct {
	Type   string          `json:"type"`
	ID     string          `json:"id,omitempty"`
	OK     bool            `json:"ok,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Event  string          `json:"event,omitempty"`
	From   string          `json:"from,omitempty"`
	Text   string          `json:"text,omitempty"`
}

// Client is a bridge to the plugin. When the connection drops it redials
// every ReconnectBackoff until Close, keeping the same Commands channel.
type Client struct {
	cfg Config
	bus *bus.Bus

	writeMu sync.Mutex

	mu       sync.Mutex
	conn     *websocket.Conn // nil while redialing
	pending  map[string]chan inbound
	stopping bool
	closed   bool

	commands  chan Command
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Dial connects to the plugin. Chat events are published to b when it is not
// nil.
func Dial(ctx context.Context, cfg Config, b *bus.Bus) (*Client, error) {
	if cfg.URL == "" {
		cfg.URL = runtimecfg.BridgeDefaultURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = runtimecfg.BridgeRequestTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = runtimecfg.BridgeEventBufferSize
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = runtimecfg.BridgeReconnectBackoff
	}

	conn, _, err := websocket.Dial(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("bridge dial %s: %w", cfg.URL, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:      cfg,
		conn:     conn,
		bus:      b,
		pending:  make(map[string]chan inbound),
		commands: make(chan Command, cfg.EventBuffer),
		cancel:   cancel,
	}

	c.wg.Add(1)
	go c.run(runCtx, conn)

	logger.Info("bridge connected", "url", cfg.URL)
	return c, nil
}

// Commands delivers peer commands. It stays open across reconnects and is
// closed by Close.
func (c *Client) Commands() <-chan Command {
	return c.commands
}

// Connected reports whether a connection is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close shuts the connection down, stops redialing and fails outstanding
// calls.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.stopping = true
		conn := c.conn
		c.mu.Unlock()

		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "shutdown")
		}
		c.cancel()
		c.wg.Wait()
		logger.Info("bridge closed")
	})
	return nil
}

func (c *Client) run(ctx context.Context, conn *websocket.Conn) {
	defer c.wg.Done()
	defer c.shutdown()

	for {
		err := c.readLoop(ctx, conn)
		c.detach(conn)
		_ = conn.CloseNow()
		if c.isStopping() || ctx.Err() != nil {
			return
		}

		logger.Warn("bridge connection lost, reconnecting", "err", err, "backoff", c.cfg.ReconnectBackoff)
		if conn = c.redial(ctx); conn == nil {
			return
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var msg inbound
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return err
		}

		switch msg.Type {
		case "response":
			c.deliver(msg)
		case "event":
			c.handleEvent(msg)
		default:
			logger.Debug("bridge: unknown frame", "type", msg.Type)
		}
	}
}

// redial retries until the plugin accepts a connection. It returns nil once
// the client is closing.
func (c *Client) redial(ctx context.Context) *websocket.Conn {
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.ReconnectBackoff):
		}

		conn, _, err := websocket.Dial(ctx, c.cfg.URL, nil)
		if err != nil {
			logger.Warn("bridge reconnect failed", "attempt", attempt, "err", err)
			continue
		}
		if !c.attach(conn) {
			_ = conn.CloseNow()
			return nil
		}
		logger.Info("bridge reconnected", "url", c.cfg.URL, "attempts", attempt)
		return conn
	}
}

func (c *Client) attach(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopping {
		return false
	}
	c.conn = conn
	return true
}

// detach forgets conn and fails the calls waiting on it.
func (c *Client) detach(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
	c.failPendingLocked()
}

func (c *Client) isStopping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopping
}

func (c *Client) failPendingLocked() {
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Client) deliver(msg inbound) {
	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	if ok {
		delete(c.pending, msg.ID)
	}
	c.mu.Unlock()

	if !ok {
		logger.Debug("bridge: response for unknown request", "id", msg.ID)
		return
	}
	ch <- msg
}

func (c *Client) handleEvent(msg inbound) {
	switch msg.Event {
	case "chat":
		if c.bus != nil {
			c.bus.PublishChat("bridge", msg.Text)
		}
	case "command":
		select {
		case c.commands <- Command{From: msg.From, Text: msg.Text}:
		default:
			logger.Warn("bridge: command dropped, queue full", "from", msg.From, "text", msg.Text)
		}
	default:
		logger.Debug("bridge: unknown event", "event", msg.Event)
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	c.closed = true
	c.conn = nil
	c.failPendingLocked()
	c.mu.Unlock()
	close(c.commands)
}

// call sends op and decodes the response result into out, when out is not nil.
func (c *Client) call(ctx context.Context, op string, args, out any) error {
	id := uuid.NewString()
	ch := make(chan inbound, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", op, ErrDisconnected)
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	c.writeMu.Lock()
	err := wsjson.Write(ctx, conn, request{Type: "request", ID: id, Op: op, Args: args})
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("%s: send: %w", op, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return fmt.Errorf("%s: %w", op, c.lostErr())
		}
		if !resp.OK {
			return &RemoteError{Op: op, Message: resp.Error}
		}
		if out != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, out); err != nil {
				return fmt.Errorf("%s: decode result: %w", op, err)
			}
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

// lostErr names why a pending call was failed.
func (c *Client) lostErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.stopping {
		return ErrClosed
	}
	return ErrDisconnected
}
