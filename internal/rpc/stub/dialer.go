package stub

import (
	"context"
	"sync"

	"evm-tx-monitor/internal/rpc"
)

// Dialer implements rpc.Dialer with scripted outcomes.
// Each Dial consumes the next queued error; a nil entry or an empty queue
// succeeds and publishes the new session on Sessions.
type Dialer struct {
	mu       sync.Mutex
	failures []error
	dials    int
	buffer   int
	sessions chan *Session
	// Hook, when set, runs on every successful dial before the session is returned.
	Hook func(*Session)
}

// Compile-time interface check.
var _ rpc.Dialer = (*Dialer)(nil)

// NewDialer creates a Dialer whose sessions buffer eventBuffer events.
func NewDialer(eventBuffer int) *Dialer {
	return &Dialer{
		buffer:   eventBuffer,
		sessions: make(chan *Session, 64),
	}
}

// FailWith queues errors returned by the next dials, in order.
func (d *Dialer) FailWith(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, errs...)
}

// Dials returns how many times Dial was called.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Sessions yields every session handed out.
func (d *Dialer) Sessions() <-chan *Session {
	return d.sessions
}

// Dial implements rpc.Dialer.
func (d *Dialer) Dial(ctx context.Context) (rpc.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.dials++
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		if err != nil {
			d.mu.Unlock()
			return nil, err
		}
	}
	d.mu.Unlock()

	s := NewSession(d.buffer)
	if d.Hook != nil {
		d.Hook(s)
	}
	select {
	case d.sessions <- s:
	default:
	}
	return s, nil
}
