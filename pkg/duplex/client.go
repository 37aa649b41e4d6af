// Package duplex is the session notification channel: a websocket opened
// per checkout session over which the gateway pushes 3DS progress events.
package duplex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aussiebroadwan/checkout/pkg/slogx"
	"github.com/gorilla/websocket"
)

var (
	// ErrClosed rejects waiters still pending when the channel closes,
	// locally or remotely.
	ErrClosed = errors.New("channel closed while waiting")

	// ErrTimeout is returned when no matching event arrives in time.
	ErrTimeout = errors.New("duplex: wait timed out")

	// ErrNotOpen is returned by Send and WaitFor before Open.
	ErrNotOpen = errors.New("duplex: channel not open")
)

// Event is an inbound JSON object. Treat it as read-only; the same value
// is handed to every matching waiter.
type Event map[string]any

// Type returns the event's "type" tag.
func (e Event) Type() string { return e.String("type") }

// SessionID returns the event's "sessionId".
func (e Event) SessionID() string { return e.String("sessionId") }

// Status returns the event's "status".
func (e Event) Status() string { return e.String("status") }

// String returns e[key] if it is a string.
func (e Event) String(key string) string {
	s, _ := e[key].(string)
	return s
}

type state int

const (
	stateIdle state = iota
	stateConnecting
	stateOpen
)

type waitResult struct {
	ev  Event
	err error
}

type waiter struct {
	topic string
	match func(Event) bool
	ch    chan waitResult
	once  sync.Once
}

func (w *waiter) settle(r waitResult) {
	w.once.Do(func() { w.ch <- r })
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option { return func(c *Client) { c.dialer = d } }

// WithHeader adds headers to the opening handshake.
func WithHeader(h http.Header) Option { return func(c *Client) { c.header = h } }

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// WithRedactKeys masks keys in log previews in addition to
// DefaultRedactKeys, which always apply.
func WithRedactKeys(keys ...string) Option {
	return func(c *Client) {
		for k := range keySet(keys) {
			c.redact[k] = struct{}{}
		}
	}
}

// WithMaxLogPayload caps logged previews at n bytes.
func WithMaxLogPayload(n int) Option { return func(c *Client) { c.maxLog = n } }

// Client is a websocket client with topic waiters. It is safe for
// concurrent use.
type Client struct {
	url    string
	dialer *websocket.Dialer
	header http.Header
	logger *slog.Logger
	redact map[string]struct{}
	maxLog int

	mu      sync.Mutex
	state   state
	conn    *websocket.Conn
	opening chan struct{}
	openErr error
	waiters map[uint64]*waiter
	nextID  uint64

	writeMu sync.Mutex
}

// New creates a client for url. Nothing is dialled until Open.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:     url,
		dialer:  websocket.DefaultDialer,
		logger:  slogx.Discard(),
		redact:  keySet(DefaultRedactKeys),
		maxLog:  DefaultMaxLogPayload,
		waiters: make(map[uint64]*waiter),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL is the endpoint the client dials.
func (c *Client) URL() string { return c.url }

// Open dials the endpoint. Calling Open while a connection is open or being
// established is a no-op that reports the outcome of that attempt.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case stateOpen:
		c.mu.Unlock()
		return nil
	case stateConnecting:
		ch := c.opening
		c.mu.Unlock()
		select {
		case <-ch:
			return c.openResult()
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.state = stateConnecting
	ch := make(chan struct{})
	c.opening = ch
	c.mu.Unlock()

	c.logger.Debug("connecting", "url", c.url)
	conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)

	c.mu.Lock()
	defer close(ch)

	if err != nil {
		dialErr := fmt.Errorf("duplex: dial: %w", err)
		if c.state == stateConnecting && c.opening == ch {
			c.state = stateIdle
			c.openErr = dialErr
			// Waiters registered while connecting would otherwise sit until
			// their own timeout.
			c.failWaitersLocked(fmt.Errorf("%w: %v", ErrClosed, dialErr))
		}
		c.mu.Unlock()
		c.logger.Warn("connect failed", "error", err)
		return dialErr
	}

	if c.state != stateConnecting || c.opening != ch {
		// Closed while dialling.
		c.openErr = ErrClosed
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}

	c.conn = conn
	c.state = stateOpen
	c.openErr = nil
	c.mu.Unlock()

	c.logger.Info("open")
	go c.readLoop(conn)
	return nil
}

func (c *Client) openResult() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateOpen {
		return nil
	}
	if c.openErr != nil {
		return c.openErr
	}
	return ErrClosed
}

// IsOpen reports whether the connection is established.
func (c *Client) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateOpen
}

// Send writes payload as a text frame. Strings are sent verbatim, anything
// else is JSON encoded.
func (c *Client) Send(payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotOpen
	}

	var data []byte
	switch p := payload.(type) {
	case string:
		data = []byte(p)
	case []byte:
		data = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("duplex: encode payload: %w", err)
		}
		data = b
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("duplex: send: %w", err)
	}
	c.logger.Debug("sent", "payload", c.previewRaw(data))
	return nil
}

// WaitFor blocks until an event with type topic satisfying match arrives.
// A nil match accepts any event of that type. It fails with ErrTimeout,
// ErrClosed, ErrNotOpen or the context's error.
func (c *Client) WaitFor(ctx context.Context, topic string, match func(Event) bool, timeout time.Duration) (Event, error) {
	w := &waiter{topic: topic, match: match, ch: make(chan waitResult, 1)}

	c.mu.Lock()
	if c.state == stateIdle {
		c.mu.Unlock()
		return nil, ErrNotOpen
	}
	c.nextID++
	id := c.nextID
	c.waiters[id] = w
	c.mu.Unlock()

	defer c.removeWaiter(id)

	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case r := <-w.ch:
		return r.ev, r.err
	case <-timeoutC:
		return nil, fmt.Errorf("%w: %s", ErrTimeout, topic)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) removeWaiter(id uint64) {
	c.mu.Lock()
	delete(c.waiters, id)
	c.mu.Unlock()
}

// Pending reports how many waiters are registered.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Close closes the connection and rejects every pending waiter with
// ErrClosed. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	wasActive := c.state != stateIdle
	c.conn = nil
	c.state = stateIdle
	c.failWaitersLocked(ErrClosed)
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := conn.Close()
	if wasActive {
		c.logger.Info("closed")
	}
	return err
}

func (c *Client) failWaitersLocked(err error) {
	for id, w := range c.waiters {
		w.settle(waitResult{err: err})
		delete(c.waiters, id)
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn, err)
			return
		}
		c.handleInbound(data)
	}
}

func (c *Client) handleDisconnect(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		// Already closed locally.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = stateIdle
	c.failWaitersLocked(fmt.Errorf("%w: %v", ErrClosed, cause))
	c.mu.Unlock()

	_ = conn.Close()

	var ce *websocket.CloseError
	if errors.As(cause, &ce) {
		c.logger.Info("closed by remote", "code", ce.Code, "reason", ce.Text)
		return
	}
	c.logger.Warn("connection lost", "error", cause)
}

func (c *Client) handleInbound(data []byte) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil || ev == nil {
		c.logger.Debug("message", "text", truncate(string(data), c.maxLog))
		return
	}

	c.logger.Debug("message", "type", ev.Type(), "json", preview(map[string]any(ev), c.redact, c.maxLog))

	c.mu.Lock()
	candidates := make([]*waiter, 0, len(c.waiters))
	for _, w := range c.waiters {
		if w.topic == ev.Type() {
			candidates = append(candidates, w)
		}
	}
	c.mu.Unlock()

	for _, w := range candidates {
		if safeMatch(w.match, ev) {
			w.settle(waitResult{ev: ev})
		}
	}
}

// safeMatch treats a panicking predicate as a non-match.
func safeMatch(match func(Event) bool, ev Event) (ok bool) {
	if match == nil {
		return true
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return match(ev)
}

func (c *Client) previewRaw(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return truncate(string(data), c.maxLog)
	}
	return preview(v, c.redact, c.maxLog)
}
