package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"evm-tx-monitor/internal/domain"
	"evm-tx-monitor/internal/observability"
)

// Config configures a WebSocket session.
type Config struct {
	// Subscription is the eth_subscribe kind.
	Subscription string
	// FullObjects asks newPendingTransactions for transaction objects
	// instead of hashes. Not every node supports it.
	FullObjects bool
	// HandshakeTimeout bounds the WebSocket handshake.
	HandshakeTimeout time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is the longest silence tolerated before the session is dropped.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// RequestTimeout bounds each request when the caller's context has no deadline.
	RequestTimeout time.Duration
	// EventBuffer absorbs notification bursts.
	EventBuffer int

	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// DefaultConfig returns default session configuration.
func DefaultConfig() Config {
	return Config{
		Subscription:     SubscribeNewPendingTransactions,
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		RequestTimeout:   10 * time.Second,
		EventBuffer:      10000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Subscription == "" {
		c.Subscription = d.Subscription
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Conn implements Session using gorilla/websocket.
type Conn struct {
	id     string
	config Config
	log    *zap.Logger

	ws      *websocket.Conn
	writeMu sync.Mutex

	requestID atomic.Uint64
	subID     atomic.Value // string

	// pending maps request ID to the channel waiting for its response
	pending   map[uint64]chan wsResponse
	pendingMu sync.Mutex

	events chan Event

	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Compile-time interface check.
var _ Session = (*Conn)(nil)

// Dial establishes a session with the endpoint. Setup failures are
// returned as *ConnectionError.
func Dial(ctx context.Context, endpoint string, config Config) (*Conn, error) {
	cfg := config.withDefaults()

	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, &ConnectionError{Kind: KindHandshakeFailure, Err: fmt.Errorf("invalid websocket url %q", endpoint)}
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()

	ws, resp, err := dialer.DialContext(dialCtx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, classifyDialError(err)
	}

	c := &Conn{
		id:      uuid.NewString(),
		config:  cfg,
		ws:      ws,
		pending: make(map[uint64]chan wsResponse),
		events:  make(chan Event, cfg.EventBuffer),
		done:    make(chan struct{}),
	}
	c.log = cfg.Logger.With(zap.String("session", c.id), zap.String("host", u.Host))
	c.subID.Store("")

	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})

	// Start reader goroutine
	c.wg.Add(1)
	go c.readLoop()

	// Start ping goroutine
	c.wg.Add(1)
	go c.pingLoop()

	c.log.Info("websocket connected")
	return c, nil
}

// WSDialer dials gorilla/websocket sessions to a fixed endpoint.
type WSDialer struct {
	URL    string
	Config Config
}

// Dial implements Dialer.
func (d WSDialer) Dial(ctx context.Context) (Session, error) {
	c, err := Dial(ctx, d.URL, d.Config)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ID returns the session id used in logs.
func (c *Conn) ID() string {
	return c.id
}

// SubscriptionID returns the id recorded by Subscribe.
func (c *Conn) SubscriptionID() string {
	return c.subID.Load().(string)
}

// Events implements Session.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// Subscribe implements Session.
func (c *Conn) Subscribe(ctx context.Context) (string, error) {
	params := []interface{}{c.config.Subscription}
	if c.config.FullObjects && c.config.Subscription == SubscribeNewPendingTransactions {
		params = append(params, true)
	}

	var subID string
	if err := c.call(ctx, "eth_subscribe", params, &subID); err != nil {
		return "", fmt.Errorf("subscribe %s: %w", c.config.Subscription, err)
	}
	if subID == "" {
		return "", fmt.Errorf("subscribe %s: empty subscription id", c.config.Subscription)
	}

	c.subID.Store(subID)
	c.log.Info("subscribed", zap.String("kind", c.config.Subscription), zap.String("subscription", subID))
	return subID, nil
}

// FetchTransaction implements Session.
func (c *Conn) FetchTransaction(ctx context.Context, hash string) (*domain.RawTransaction, error) {
	var tx *domain.RawTransaction
	if err := c.call(ctx, "eth_getTransactionByHash", []interface{}{hash}, &tx); err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrNotFound
	}
	return tx, nil
}

// FetchBlock implements Session.
func (c *Conn) FetchBlock(ctx context.Context, hash string) (*Block, error) {
	var block *Block
	if err := c.call(ctx, "eth_getBlockByHash", []interface{}{hash, true}, &block); err != nil {
		return nil, err
	}
	if block == nil {
		return nil, ErrNotFound
	}
	return block, nil
}

// FetchReceipt implements Session.
func (c *Conn) FetchReceipt(ctx context.Context, hash string) (*domain.RawReceipt, error) {
	var receipt *domain.RawReceipt
	if err := c.call(ctx, "eth_getTransactionReceipt", []interface{}{hash}, &receipt); err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, ErrNotFound
	}
	return receipt, nil
}

// Close closes the WebSocket connection and waits for its goroutines.
func (c *Conn) Close() error {
	c.shutdown()
	c.wg.Wait()
	return nil
}

// shutdown is idempotent and safe to call from readLoop.
func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)

		c.writeMu.Lock()
		c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		c.ws.Close()
	})
}

// call sends one request and waits for the matching response.
func (c *Conn) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	if c.closed.Load() {
		return &ConnectionError{Kind: KindClosed}
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if c.config.Metrics != nil {
			c.config.Metrics.RecordRPCLatency(method, time.Since(start).Seconds())
		}
	}()

	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	respCh := make(chan wsResponse, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = respCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}()

	c.writeMu.Lock()
	c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.ws.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		return classifyReadError(fmt.Errorf("write %s: %w", method, err))
	}

	select {
	case resp := <-respCh:
		if resp.err != nil {
			return resp.err
		}
		if result == nil || len(resp.result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	case <-c.done:
		return &ConnectionError{Kind: KindClosed}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readLoop reads frames until the socket fails, then emits Closed and
// closes the events channel.
func (c *Conn) readLoop() {
	defer c.wg.Done()
	defer close(c.events)

	for {
		c.ws.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := c.ws.ReadMessage()
		if err != nil {
			var cause error
			if !c.closed.Load() {
				cause = classifyReadError(err)
				c.log.Warn("websocket read failed", zap.Error(err))
			}
			c.shutdown()
			// done is closed; deliver Closed only if the buffer has room.
			select {
			case c.events <- Event{Kind: EventClosed, Err: cause}:
			default:
			}
			return
		}

		c.handleMessage(message)
	}
}

// handleMessage dispatches one frame.
func (c *Conn) handleMessage(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.log.Debug("ignoring unparsable frame", zap.Error(err))
		return
	}

	switch {
	case msg.ID != nil:
		c.handleResponse(*msg.ID, &msg)

	case msg.Method == "eth_subscription" && msg.Params != nil:
		if sub := c.SubscriptionID(); sub != "" && msg.Params.Subscription != sub {
			return
		}
		c.emit(Event{Kind: EventNotification, Result: msg.Params.Result})

	case msg.Error != nil:
		c.emit(Event{Kind: EventRPCError, Err: msg.Error})
	}
}

// handleResponse routes a response to its waiting caller. Late responses
// for abandoned requests are dropped.
func (c *Conn) handleResponse(id uint64, msg *wsMessage) {
	c.pendingMu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	if !ok {
		c.log.Debug("dropping response without waiter", zap.Uint64("id", id))
		return
	}

	result := msg.Result
	if bytes.Equal(bytes.TrimSpace(result), []byte("null")) {
		result = nil
	}
	ch <- wsResponse{result: result, err: msg.Error}
}

// emit blocks until the consumer takes ev; events are never dropped.
func (c *Conn) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *Conn) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.ws.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			err := c.ws.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				// Connection might be dead, reader will notice.
				c.log.Debug("ping failed", zap.Error(err))
			}
		}
	}
}
