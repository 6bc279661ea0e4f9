// Package rpc speaks JSON-RPC 2.0 over one WebSocket session: it subscribes
// to a transaction or head feed and serves the lookups the monitor needs.
package rpc

import (
	"context"
	"encoding/json"

	"evm-tx-monitor/internal/domain"
)

// Subscription kinds accepted by eth_subscribe.
const (
	SubscribeNewPendingTransactions = "newPendingTransactions"
	SubscribeNewHeads               = "newHeads"
)

// Session is one live, subscribed JSON-RPC session.
// A closed Session cannot be reused; dial a new one.
type Session interface {
	// Subscribe sends eth_subscribe and records the returned subscription id.
	Subscribe(ctx context.Context) (string, error)

	// Events yields notifications, unsolicited errors and a final Closed event.
	// The channel is closed right after Closed is delivered.
	Events() <-chan Event

	// FetchTransaction calls eth_getTransactionByHash.
	FetchTransaction(ctx context.Context, hash string) (*domain.RawTransaction, error)

	// FetchBlock calls eth_getBlockByHash with full transaction objects.
	FetchBlock(ctx context.Context, hash string) (*Block, error)

	// FetchReceipt calls eth_getTransactionReceipt.
	FetchReceipt(ctx context.Context, hash string) (*domain.RawReceipt, error)

	// Close closes the session.
	Close() error
}

// Dialer opens new sessions.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// EventKind discriminates Event.
type EventKind int

const (
	EventNotification EventKind = iota
	EventRPCError
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventNotification:
		return "notification"
	case EventRPCError:
		return "rpc_error"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is one item of a session's event sequence.
type Event struct {
	Kind EventKind

	// Result is the notification payload: a hash string, a transaction
	// object or a block header, depending on the subscription.
	Result json.RawMessage

	// Err is the *RPCError for EventRPCError, or the *ConnectionError that
	// ended the session for EventClosed (nil after a local Close).
	Err error
}
