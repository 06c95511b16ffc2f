package solana

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sugawarayuuta/sonnet"
)

// WSConfig configures a single WebSocket connection.
type WSConfig struct {
	// HandshakeTimeout bounds the dial.
	HandshakeTimeout time.Duration
	// SubscribeTimeout bounds waiting for the subscription id.
	SubscribeTimeout time.Duration
	// WriteTimeout is timeout for writing frames.
	WriteTimeout time.Duration
	// BufferSize is the notification channel capacity.
	BufferSize int
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		HandshakeTimeout: 5 * time.Second,
		SubscribeTimeout: 10 * time.Second,
		WriteTimeout:     2 * time.Second,
		BufferSize:       4096,
	}
}

// WSConn is one live logsSubscribe connection. It does not reconnect:
// when the socket fails, Next returns an error and the owner dials again.
type WSConn struct {
	endpoint string
	config   WSConfig

	conn      *websocket.Conn
	writeMu   sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	pendingSubs   map[uint64]chan subscribeResult
	pendingSubsMu sync.Mutex

	notifications chan LogNotification

	pingMu sync.Mutex
	pongs  chan string

	done    chan struct{}
	errOnce sync.Once
	err     error
	wg      sync.WaitGroup
}

type subscribeResult struct {
	id  int64
	err error
}

// DialWS connects to a Solana WebSocket endpoint. A non-empty token is sent as the x-token header.
func DialWS(ctx context.Context, endpoint, token string, config *WSConfig) (*WSConn, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}

	var header http.Header
	if token != "" {
		header = http.Header{}
		header.Set("x-token", token)
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c := &WSConn{
		endpoint:      endpoint,
		config:        cfg,
		conn:          conn,
		pendingSubs:   make(map[uint64]chan subscribeResult),
		notifications: make(chan LogNotification, cfg.BufferSize),
		pongs:         make(chan string, 1),
		done:          make(chan struct{}),
	}

	conn.SetPongHandler(func(payload string) error {
		select {
		case c.pongs <- payload:
		default:
		}
		return nil
	})

	c.wg.Add(1)
	go c.readLoop()

	return c, nil
}

// Endpoint returns the dialed address.
func (c *WSConn) Endpoint() string {
	return c.endpoint
}

// SubscribeLogs subscribes to program logs matching the filter and returns the subscription id.
// Notifications are delivered through Next.
func (c *WSConn) SubscribeLogs(ctx context.Context, filter LogsFilter) (int64, error) {
	if c.closed.Load() {
		return 0, ErrConnClosed
	}

	reqID := c.requestID.Add(1)

	mentionsFilter := make(map[string]interface{})
	if len(filter.Mentions) > 0 {
		mentionsFilter["mentions"] = filter.Mentions
	} else {
		mentionsFilter["all"] = nil
	}

	commitment := filter.Commitment
	if commitment == "" {
		commitment = CommitmentProcessed
	}

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params: []interface{}{
			mentionsFilter,
			map[string]string{"commitment": string(commitment)},
		},
	}

	confirmCh := make(chan subscribeResult, 1)
	c.pendingSubsMu.Lock()
	c.pendingSubs[reqID] = confirmCh
	c.pendingSubsMu.Unlock()

	defer func() {
		c.pendingSubsMu.Lock()
		delete(c.pendingSubs, reqID)
		c.pendingSubsMu.Unlock()
	}()

	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	timer := time.NewTimer(c.config.SubscribeTimeout)
	defer timer.Stop()

	select {
	case res := <-confirmCh:
		return res.id, res.err
	case <-timer.C:
		return 0, fmt.Errorf("subscription timeout after %s", c.config.SubscribeTimeout)
	case <-c.done:
		return 0, c.Err()
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Next blocks until the next log notification, the connection fails, or ctx is done.
func (c *WSConn) Next(ctx context.Context) (LogNotification, error) {
	select {
	case n := <-c.notifications:
		return n, nil
	default:
	}

	select {
	case n := <-c.notifications:
		return n, nil
	case <-c.done:
		return LogNotification{}, c.Err()
	case <-ctx.Done():
		return LogNotification{}, ctx.Err()
	}
}

// Ping sends a ping frame and waits for the matching pong, returning the round trip.
func (c *WSConn) Ping(ctx context.Context) (time.Duration, error) {
	if c.closed.Load() {
		return 0, ErrConnClosed
	}

	c.pingMu.Lock()
	defer c.pingMu.Unlock()

	// drop a stale pong from a timed-out ping
	select {
	case <-c.pongs:
	default:
	}

	payload := strconv.FormatUint(c.requestID.Add(1), 10)
	start := time.Now()

	c.writeMu.Lock()
	err := c.conn.WriteControl(websocket.PingMessage, []byte(payload), time.Now().Add(c.config.WriteTimeout))
	c.writeMu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("write ping: %w", err)
	}

	for {
		select {
		case got := <-c.pongs:
			if got == payload {
				return time.Since(start), nil
			}
		case <-c.done:
			return 0, c.Err()
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Err returns the error that terminated the connection, or nil while it is alive.
func (c *WSConn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Close closes the WebSocket connection.
func (c *WSConn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.config.WriteTimeout))
	c.writeMu.Unlock()

	err := c.conn.Close()
	c.fail(ErrConnClosed)
	c.wg.Wait()
	return err
}

func (c *WSConn) fail(err error) {
	c.errOnce.Do(func() {
		c.err = err
		close(c.done)
	})
}

// readLoop reads frames until the socket fails. Control frames (pong) are
// dispatched by gorilla/websocket from inside ReadMessage.
func (c *WSConn) readLoop() {
	defer c.wg.Done()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				c.fail(ErrConnClosed)
			} else {
				c.fail(fmt.Errorf("%w: %v", ErrConnClosed, err))
			}
			return
		}

		if !c.handleMessage(message) {
			return
		}
	}
}

// handleMessage returns false when the connection is shutting down.
func (c *WSConn) handleMessage(message []byte) bool {
	var env wsEnvelope
	if err := sonnet.Unmarshal(message, &env); err != nil {
		return true
	}

	switch {
	case env.Method == "logsNotification":
		if env.Params == nil {
			return true
		}
		value := env.Params.Result.Value
		n := LogNotification{
			Signature: value.Signature,
			Logs:      value.Logs,
			Err:       value.Err,
			Raw:       message,
		}
		if env.Params.Result.Context != nil {
			n.Slot = env.Params.Result.Context.Slot
		}
		select {
		case c.notifications <- n:
			return true
		case <-c.done:
			return false
		}

	case env.ID != 0:
		c.pendingSubsMu.Lock()
		ch, ok := c.pendingSubs[env.ID]
		c.pendingSubsMu.Unlock()
		if !ok {
			return true
		}
		res := subscribeResult{id: env.Result}
		if env.Error != nil {
			res.err = env.Error
		}
		select {
		case ch <- res:
		default:
		}
	}
	return true
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// wsEnvelope covers subscribe responses, errors, and notifications.
type wsEnvelope struct {
	JSONRPC string                `json:"jsonrpc"`
	ID      uint64                `json:"id"`
	Result  int64                 `json:"result"`
	Error   *RPCError             `json:"error"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsSubscribeResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Result  int64  `json:"result"`
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext  `json:"context"`
	Value   wsLogsValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}
