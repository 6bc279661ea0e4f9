// Package stub provides in-process rpc.Session and rpc.Dialer
// implementations: scripted ones for tests and a synthetic feed for
// running without a node.
package stub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"evm-tx-monitor/internal/domain"
	"evm-tx-monitor/internal/rpc"
)

// Session implements rpc.Session in memory.
type Session struct {
	events chan rpc.Event

	mu       sync.RWMutex
	closed   bool
	txs      map[string]*domain.RawTransaction
	receipts map[string]*domain.RawReceipt
	blocks   map[string]*rpc.Block

	// SubscribeErr, when set, is returned by Subscribe.
	SubscribeErr error
	// FetchDelay, when set, delays FetchTransaction per hash.
	// Set it before the session is served.
	FetchDelay func(hash string) time.Duration

	subscribed atomic.Bool
	fetches    atomic.Int64
	done       chan struct{}
	once       sync.Once
}

// Compile-time interface check.
var _ rpc.Session = (*Session)(nil)

// NewSession creates a session whose event channel holds buffer events.
func NewSession(buffer int) *Session {
	if buffer < 1 {
		buffer = 1
	}
	return &Session{
		events:   make(chan rpc.Event, buffer),
		txs:      make(map[string]*domain.RawTransaction),
		receipts: make(map[string]*domain.RawReceipt),
		blocks:   make(map[string]*rpc.Block),
		done:     make(chan struct{}),
	}
}

// AddTransaction makes raw available to FetchTransaction.
func (s *Session) AddTransaction(raw domain.RawTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[raw.Hash] = &raw
}

// AddReceipt makes r available to FetchReceipt.
func (s *Session) AddReceipt(r domain.RawReceipt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts[r.TransactionHash] = &r
}

// AddBlock makes b available to FetchBlock.
func (s *Session) AddBlock(b rpc.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[b.Hash] = &b
}

// Notify pushes a notification carrying result marshalled as JSON.
// Blocks while the buffer is full. Returns false once the session is closed.
func (s *Session) Notify(result interface{}) bool {
	data, err := json.Marshal(result)
	if err != nil {
		panic(fmt.Sprintf("stub: marshal notification: %v", err))
	}
	return s.push(rpc.Event{Kind: rpc.EventNotification, Result: data})
}

// NotifyRaw pushes a notification with a verbatim JSON payload.
func (s *Session) NotifyRaw(result json.RawMessage) bool {
	return s.push(rpc.Event{Kind: rpc.EventNotification, Result: result})
}

// Fail pushes an unsolicited RPC error.
func (s *Session) Fail(err *rpc.RPCError) bool {
	return s.push(rpc.Event{Kind: rpc.EventRPCError, Err: err})
}

// Drop ends the session as if the remote side went away.
func (s *Session) Drop() {
	s.finish(&rpc.ConnectionError{Kind: rpc.KindClosed})
}

// Subscribed reports whether Subscribe succeeded.
func (s *Session) Subscribed() bool {
	return s.subscribed.Load()
}

// Fetches returns the number of lookups served.
func (s *Session) Fetches() int64 {
	return s.fetches.Load()
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Subscribe implements rpc.Session.
func (s *Session) Subscribe(context.Context) (string, error) {
	if s.isClosed() {
		return "", &rpc.ConnectionError{Kind: rpc.KindClosed}
	}
	if s.SubscribeErr != nil {
		return "", s.SubscribeErr
	}
	s.subscribed.Store(true)
	return "0xstub", nil
}

// Events implements rpc.Session.
func (s *Session) Events() <-chan rpc.Event {
	return s.events
}

// FetchTransaction implements rpc.Session.
func (s *Session) FetchTransaction(ctx context.Context, hash string) (*domain.RawTransaction, error) {
	s.fetches.Add(1)
	if s.FetchDelay != nil {
		t := time.NewTimer(s.FetchDelay(hash))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, &rpc.ConnectionError{Kind: rpc.KindClosed}
	}
	tx, ok := s.txs[hash]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	out := *tx
	return &out, nil
}

// FetchBlock implements rpc.Session.
func (s *Session) FetchBlock(_ context.Context, hash string) (*rpc.Block, error) {
	s.fetches.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[hash]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	out := *b
	return &out, nil
}

// FetchReceipt implements rpc.Session.
func (s *Session) FetchReceipt(_ context.Context, hash string) (*domain.RawReceipt, error) {
	s.fetches.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receipts[hash]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	out := *r
	return &out, nil
}

// Close implements rpc.Session.
func (s *Session) Close() error {
	s.finish(nil)
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Session) push(ev rpc.Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// finish delivers Closed when there is room and closes the event channel.
func (s *Session) finish(cause error) {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true
		select {
		case s.events <- rpc.Event{Kind: rpc.EventClosed, Err: cause}:
		default:
		}
		close(s.events)
	})
}
