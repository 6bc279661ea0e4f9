package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// fakeNode is a scripted JSON-RPC WebSocket endpoint.
type fakeNode struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	conn     *websocket.Conn
	requests []wsRequest
	handler  func(req wsRequest) (result interface{}, rpcErr *RPCError)
	ready    chan struct{}
}

func newFakeNode(t *testing.T, handler func(req wsRequest) (interface{}, *RPCError)) *fakeNode {
	n := &fakeNode{t: t, handler: handler, ready: make(chan struct{})}
	n.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		n.mu.Lock()
		n.conn = c
		n.mu.Unlock()
		close(n.ready)
		defer c.Close()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var req wsRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				t.Errorf("unmarshal request: %v", err)
				return
			}
			n.mu.Lock()
			n.requests = append(n.requests, req)
			n.mu.Unlock()

			result, rpcErr := n.handler(req)
			frame := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
			if rpcErr != nil {
				frame["error"] = rpcErr
			} else {
				frame["result"] = result
			}
			n.send(frame)
		}
	}))
	t.Cleanup(n.server.Close)
	return n
}

func (n *fakeNode) url() string {
	return "ws" + strings.TrimPrefix(n.server.URL, "http")
}

func (n *fakeNode) send(frame interface{}) {
	<-n.ready
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.conn.WriteJSON(frame); err != nil {
		n.t.Logf("write frame: %v", err)
	}
}

func (n *fakeNode) notify(sub string, result interface{}) {
	n.send(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "eth_subscription",
		"params":  map[string]interface{}{"subscription": sub, "result": result},
	})
}

func (n *fakeNode) dropConnection() {
	<-n.ready
	n.mu.Lock()
	defer n.mu.Unlock()
	n.conn.Close()
}

func (n *fakeNode) lastRequest() wsRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.requests[len(n.requests)-1]
}

func subscribeOK(req wsRequest) (interface{}, *RPCError) {
	if req.Method == "eth_subscribe" {
		return "0xsub1", nil
	}
	return nil, nil
}

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.Logger = zaptest.NewLogger(t)
	cfg.RequestTimeout = 2 * time.Second
	return cfg
}

func nextEvent(t *testing.T, c *Conn) Event {
	t.Helper()
	select {
	case ev, ok := <-c.Events():
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
		return Event{}
	}
}

func TestConn_SubscribeAndNotify(t *testing.T) {
	node := newFakeNode(t, subscribeOK)

	c, err := Dial(context.Background(), node.url(), testConfig(t))
	require.NoError(t, err)
	defer c.Close()

	sub, err := c.Subscribe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0xsub1", sub)
	assert.Equal(t, "0xsub1", c.SubscriptionID())

	req := node.lastRequest()
	assert.Equal(t, "eth_subscribe", req.Method)
	assert.Equal(t, []interface{}{"newPendingTransactions"}, req.Params)

	node.notify("0xsub1", "0xabc")
	node.notify("0xother", "0xignored")
	node.notify("0xsub1", "0xdef")

	ev := nextEvent(t, c)
	assert.Equal(t, EventNotification, ev.Kind)
	assert.JSONEq(t, `"0xabc"`, string(ev.Result))

	ev = nextEvent(t, c)
	assert.JSONEq(t, `"0xdef"`, string(ev.Result))
}

func TestConn_SubscribeFullObjects(t *testing.T) {
	node := newFakeNode(t, subscribeOK)

	cfg := testConfig(t)
	cfg.FullObjects = true
	c, err := Dial(context.Background(), node.url(), cfg)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Subscribe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"newPendingTransactions", true}, node.lastRequest().Params)
}

func TestConn_SubscribeNewHeads(t *testing.T) {
	node := newFakeNode(t, subscribeOK)

	cfg := testConfig(t)
	cfg.Subscription = SubscribeNewHeads
	cfg.FullObjects = true
	c, err := Dial(context.Background(), node.url(), cfg)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Subscribe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"newHeads"}, node.lastRequest().Params)
}

func TestConn_FetchTransaction(t *testing.T) {
	node := newFakeNode(t, func(req wsRequest) (interface{}, *RPCError) {
		if req.Params[0] == "0xmissing" {
			return nil, nil
		}
		return map[string]interface{}{
			"hash":  req.Params[0],
			"from":  "0x00000000000000000000000000000000000000a1",
			"to":    nil,
			"value": "0x10",
			"input": "0x",
			"gas":   "0x5208",
			"nonce": "0x1",
		}, nil
	})

	c, err := Dial(context.Background(), node.url(), testConfig(t))
	require.NoError(t, err)
	defer c.Close()

	tx, err := c.FetchTransaction(context.Background(), "0xaa")
	require.NoError(t, err)
	assert.Equal(t, "eth_getTransactionByHash", node.lastRequest().Method)
	assert.Equal(t, "0xaa", tx.Hash)
	assert.Equal(t, "0x10", tx.Value)
	assert.Nil(t, tx.To)
	assert.True(t, tx.Pending())

	_, err = c.FetchTransaction(context.Background(), "0xmissing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConn_FetchBlockAndReceipt(t *testing.T) {
	node := newFakeNode(t, func(req wsRequest) (interface{}, *RPCError) {
		switch req.Method {
		case "eth_getBlockByHash":
			return map[string]interface{}{
				"hash":   req.Params[0],
				"number": "0x10",
				"transactions": []interface{}{
					map[string]interface{}{"hash": "0x01", "value": "0x0", "input": "0x", "gas": "0x1", "nonce": "0x0", "blockNumber": "0x10"},
				},
			}, nil
		case "eth_getTransactionReceipt":
			return map[string]interface{}{
				"transactionHash": req.Params[0],
				"blockNumber":     "0x10",
				"status":          "0x1",
				"gasUsed":         "0x5208",
			}, nil
		}
		return nil, &RPCError{Code: -32601, Message: "method not found"}
	})

	c, err := Dial(context.Background(), node.url(), testConfig(t))
	require.NoError(t, err)
	defer c.Close()

	block, err := c.FetchBlock(context.Background(), "0xbb")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"0xbb", true}, node.lastRequest().Params)
	require.Len(t, block.Transactions, 1)
	assert.False(t, block.Transactions[0].Pending())

	receipt, err := c.FetchReceipt(context.Background(), "0x01")
	require.NoError(t, err)
	assert.Equal(t, "0x01", receipt.TransactionHash)
	require.NotNil(t, receipt.Status)
	assert.Equal(t, "0x1", *receipt.Status)
}

func TestConn_RPCErrorResponse(t *testing.T) {
	node := newFakeNode(t, func(req wsRequest) (interface{}, *RPCError) {
		return nil, &RPCError{Code: -32000, Message: "rate limited"}
	})

	c, err := Dial(context.Background(), node.url(), testConfig(t))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Subscribe(context.Background())
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, -32000, rpcErr.Code)
}

func TestConn_UnsolicitedErrorIsEvent(t *testing.T) {
	node := newFakeNode(t, subscribeOK)

	c, err := Dial(context.Background(), node.url(), testConfig(t))
	require.NoError(t, err)
	defer c.Close()

	node.send(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      nil,
		"error":   map[string]interface{}{"code": -32700, "message": "parse error"},
	})

	ev := nextEvent(t, c)
	assert.Equal(t, EventRPCError, ev.Kind)
	var rpcErr *RPCError
	require.True(t, errors.As(ev.Err, &rpcErr))
	assert.Equal(t, "parse error", rpcErr.Message)
}

func TestConn_RemoteCloseEndsEvents(t *testing.T) {
	node := newFakeNode(t, subscribeOK)

	c, err := Dial(context.Background(), node.url(), testConfig(t))
	require.NoError(t, err)
	defer c.Close()

	node.dropConnection()

	ev := nextEvent(t, c)
	assert.Equal(t, EventClosed, ev.Kind)
	assert.True(t, IsKind(ev.Err, KindClosed))

	select {
	case _, ok := <-c.Events():
		assert.False(t, ok, "events channel should be closed after Closed")
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed")
	}
}

func TestConn_CloseIsFinal(t *testing.T) {
	node := newFakeNode(t, subscribeOK)

	c, err := Dial(context.Background(), node.url(), testConfig(t))
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.Subscribe(context.Background())
	assert.True(t, IsKind(err, KindClosed))

	for range c.Events() {
	}
}

func TestConn_RequestTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	node := newFakeNode(t, func(req wsRequest) (interface{}, *RPCError) {
		<-block
		return nil, nil
	})

	c, err := Dial(context.Background(), node.url(), testConfig(t))
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.FetchTransaction(ctx, "0xaa")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
