package ingestion

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"evm-tx-monitor/internal/domain"
	"evm-tx-monitor/internal/observability"
	"evm-tx-monitor/internal/rpc"
)

// receiptQueue bounds outstanding receipt lookups.
const receiptQueue = 16

// Reconnector supervises sessions: it dials, subscribes, hands the live
// session to the Pump, and retries with backoff when the session ends.
//
// Every connection effort runs on the goroutine calling Run, so at most one
// effort is in flight and ConnectionState transitions are strictly
// sequential. Each transition is published as an UpdateState on the same
// channel the Pump uses.
type Reconnector struct {
	dialer  rpc.Dialer
	backoff Backoff
	pump    *Pump
	updates chan<- Update
	log     *zap.Logger
	metrics *observability.Metrics

	manual   chan struct{}
	receipts chan string
	state    atomic.Pointer[domain.ConnectionState]
	now      func() time.Time
}

// NewReconnector creates a Reconnector. updates must be the channel the pump sends on.
func NewReconnector(dialer rpc.Dialer, backoff Backoff, pump *Pump, updates chan<- Update, log *zap.Logger, metrics *observability.Metrics) *Reconnector {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewMetrics("")
	}
	r := &Reconnector{
		dialer:   dialer,
		backoff:  backoff,
		pump:     pump,
		updates:  updates,
		log:      log.Named("reconnector"),
		metrics:  metrics,
		manual:   make(chan struct{}, 1),
		receipts: make(chan string, receiptQueue),
		now:      time.Now,
	}
	r.state.Store(&domain.ConnectionState{Phase: domain.PhaseDisconnected})
	return r
}

// State returns the current connection state.
func (r *Reconnector) State() domain.ConnectionState {
	return *r.state.Load()
}

// Reconnect requests a fresh connection: any pending backoff or in-flight
// effort is cancelled and the attempt counter resets. Requests made while
// one is already pending coalesce. Safe for concurrent use.
func (r *Reconnector) Reconnect() {
	select {
	case r.manual <- struct{}{}:
	default:
	}
}

// RequestReceipt queues a receipt lookup on the live session.
// Returns false if the queue is full.
func (r *Reconnector) RequestReceipt(hash string) bool {
	select {
	case r.receipts <- hash:
		return true
	default:
		return false
	}
}

// Run drives the state machine until ctx is cancelled.
func (r *Reconnector) Run(ctx context.Context) error {
	attempt := 0
	for {
		established, manual, err := r.effort(ctx)
		if ctx.Err() != nil {
			return r.stop(ctx)
		}

		if manual {
			r.log.Info("manual reconnect")
			attempt = 0
			continue
		}

		if established {
			attempt = 1
		} else {
			attempt++
		}
		kind := string(rpc.KindOf(err))
		if kind == "" {
			kind = "other"
		}
		r.metrics.RecordSessionDropped(kind)
		r.log.Warn("connection effort failed", zap.Int("attempt", attempt), zap.Error(err))

		if r.backoff.Exhausted(attempt) {
			r.setState(ctx, domain.ConnectionState{Phase: domain.PhaseFailed, Attempt: attempt, LastError: errString(err)})
			select {
			case <-ctx.Done():
				return r.stop(ctx)
			case <-r.manual:
				r.log.Info("manual reconnect")
				attempt = 0
				continue
			}
		}

		delay := r.backoff.Delay(attempt)
		r.setState(ctx, domain.ConnectionState{
			Phase:     domain.PhaseBackoff,
			Attempt:   attempt,
			NextDelay: delay,
			LastError: errString(err),
		})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return r.stop(ctx)
		case <-timer.C:
		case <-r.manual:
			timer.Stop()
			r.log.Info("manual reconnect")
			attempt = 0
		}
	}
}

// stop records the final state without publishing it; the state owner is
// shutting down too.
func (r *Reconnector) stop(ctx context.Context) error {
	s := domain.ConnectionState{Phase: domain.PhaseDisconnected, Since: r.now()}
	r.state.Store(&s)
	r.metrics.SetPhase(s.Phase)
	return ctx.Err()
}

// effort performs one connect+subscribe and serves the session until it
// ends. manual reports that a Reconnect request interrupted it.
func (r *Reconnector) effort(ctx context.Context) (established, manual bool, err error) {
	ectx, cancel := context.WithCancel(ctx)
	defer cancel()

	var interrupted atomic.Bool
	stop := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-r.manual:
			interrupted.Store(true)
			cancel()
		case <-stop:
		}
	}()
	defer func() {
		close(stop)
		<-watcherDone
		manual = interrupted.Load()
	}()

	r.setState(ctx, domain.ConnectionState{Phase: domain.PhaseConnecting})
	r.metrics.ConnectionAttempts.Inc()

	sess, err := r.dialer.Dial(ectx)
	if err != nil {
		return false, false, err
	}
	defer sess.Close()

	if _, err := sess.Subscribe(ectx); err != nil {
		return false, false, err
	}

	r.setState(ctx, domain.ConnectionState{Phase: domain.PhaseConnected})
	return true, false, r.pump.Serve(ectx, sess, r.receipts)
}

func (r *Reconnector) setState(ctx context.Context, s domain.ConnectionState) {
	s.Since = r.now()
	r.state.Store(&s)
	r.metrics.SetPhase(s.Phase)
	r.log.Debug("connection state", zap.String("phase", string(s.Phase)), zap.Int("attempt", s.Attempt), zap.Duration("next_delay", s.NextDelay))

	select {
	case r.updates <- Update{Kind: UpdateState, State: s}:
	case <-ctx.Done():
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
