package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"evm-tx-monitor/internal/domain"
	"evm-tx-monitor/internal/observability"
	"evm-tx-monitor/internal/rpc"
	"evm-tx-monitor/internal/rpc/stub"
)

func newTestReconnector(t *testing.T, dialer rpc.Dialer, b Backoff) (*Reconnector, chan Update) {
	t.Helper()
	updates := make(chan Update, 256)
	p, m := newTestPump(t, updates, PumpConfig{})
	return NewReconnector(dialer, b, p, updates, zaptest.NewLogger(t), m), updates
}

func run(t *testing.T, r *Reconnector) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel, done
}

var errRefused = &rpc.ConnectionError{Kind: rpc.KindHandshakeFailure, Err: errors.New("connection refused")}

func TestReconnector_ConnectsAndSubscribes(t *testing.T) {
	dialer := stub.NewDialer(16)
	r, updates := newTestReconnector(t, dialer, Backoff{Base: time.Millisecond, Max: 10 * time.Millisecond})
	run(t, r)

	assert.Equal(t, domain.PhaseConnecting, next(t, updates).State.Phase)
	assert.Equal(t, domain.PhaseConnected, next(t, updates).State.Phase)

	sess := <-dialer.Sessions()
	assert.True(t, sess.Subscribed())
	assert.Equal(t, domain.PhaseConnected, r.State().Phase)
}

func TestReconnector_DroppedSessionIsFirstFailure(t *testing.T) {
	dialer := stub.NewDialer(16)
	base := 5 * time.Millisecond
	r, updates := newTestReconnector(t, dialer, Backoff{Base: base, Max: time.Second, Strategy: StrategyExponential})
	run(t, r)

	waitPhase(t, updates, domain.PhaseConnected)
	(<-dialer.Sessions()).Drop()

	st := waitPhase(t, updates, domain.PhaseBackoff)
	assert.Equal(t, 1, st.Attempt)
	assert.Equal(t, base, st.NextDelay)
	assert.NotEmpty(t, st.LastError)

	waitPhase(t, updates, domain.PhaseConnected)
	assert.Equal(t, 2, dialer.Dials())
}

func TestReconnector_BackoffGrowsOnConsecutiveFailures(t *testing.T) {
	dialer := stub.NewDialer(16)
	dialer.FailWith(errRefused, errRefused, errRefused)
	r, updates := newTestReconnector(t, dialer, Backoff{Base: time.Millisecond, Max: 3 * time.Millisecond, Strategy: StrategyExponential})
	run(t, r)

	var delays []time.Duration
	for len(delays) < 3 {
		st := waitPhase(t, updates, domain.PhaseBackoff)
		assert.Equal(t, len(delays)+1, st.Attempt)
		delays = append(delays, st.NextDelay)
	}
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond}, delays)
	waitPhase(t, updates, domain.PhaseConnected)
}

func TestReconnector_MaxAttemptsThenManualReset(t *testing.T) {
	dialer := stub.NewDialer(16)
	dialer.FailWith(errRefused, errRefused, errRefused)
	r, updates := newTestReconnector(t, dialer, Backoff{Base: time.Millisecond, Max: time.Millisecond, MaxAttempts: 3})
	run(t, r)

	st := waitPhase(t, updates, domain.PhaseFailed)
	assert.Equal(t, 3, st.Attempt)
	assert.Equal(t, 3, dialer.Dials())

	// No automatic attempt while failed.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, dialer.Dials())
	assert.Equal(t, domain.PhaseFailed, r.State().Phase)

	// Manual reconnect resets the budget: one more failure is attempt 1.
	dialer.FailWith(errRefused)
	r.Reconnect()

	st = waitPhase(t, updates, domain.PhaseBackoff)
	assert.Equal(t, 1, st.Attempt)
	waitPhase(t, updates, domain.PhaseConnected)
	assert.Equal(t, 5, dialer.Dials())
}

func TestReconnector_ManualCancelsBackoff(t *testing.T) {
	dialer := stub.NewDialer(16)
	dialer.FailWith(errRefused)
	r, updates := newTestReconnector(t, dialer, Backoff{Base: time.Hour, Max: time.Hour})
	run(t, r)

	waitPhase(t, updates, domain.PhaseBackoff)
	start := time.Now()
	r.Reconnect()

	waitPhase(t, updates, domain.PhaseConnected)
	assert.Less(t, time.Since(start), time.Second)
}

func TestReconnector_ManualReplacesLiveSession(t *testing.T) {
	dialer := stub.NewDialer(16)
	r, updates := newTestReconnector(t, dialer, Backoff{Base: time.Hour, Max: time.Hour})
	run(t, r)

	waitPhase(t, updates, domain.PhaseConnected)
	first := <-dialer.Sessions()

	r.Reconnect()
	waitPhase(t, updates, domain.PhaseConnected)

	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("previous session not closed")
	}
	assert.Equal(t, 2, dialer.Dials())
}

func TestReconnector_ReconnectCoalesces(t *testing.T) {
	r, _ := newTestReconnector(t, stub.NewDialer(1), Backoff{})
	for i := 0; i < 5; i++ {
		r.Reconnect()
	}
	assert.Len(t, r.manual, 1)
}

func TestReconnector_RPCErrorTriggersBackoff(t *testing.T) {
	dialer := stub.NewDialer(16)
	r, updates := newTestReconnector(t, dialer, Backoff{Base: time.Millisecond, Max: time.Millisecond})
	run(t, r)

	waitPhase(t, updates, domain.PhaseConnected)
	(<-dialer.Sessions()).Fail(&rpc.RPCError{Code: -32000, Message: "filter not found"})

	st := waitPhase(t, updates, domain.PhaseBackoff)
	assert.Contains(t, st.LastError, "filter not found")
}

func TestReconnector_SubscribeFailureCounts(t *testing.T) {
	dialer := stub.NewDialer(16)
	calls := 0
	dialer.Hook = func(s *stub.Session) {
		calls++
		if calls == 1 {
			s.SubscribeErr = &rpc.RPCError{Code: -32601, Message: "method not found"}
		}
	}
	r, updates := newTestReconnector(t, dialer, Backoff{Base: time.Millisecond, Max: time.Millisecond, MaxAttempts: 5})
	run(t, r)

	st := waitPhase(t, updates, domain.PhaseBackoff)
	assert.Equal(t, 1, st.Attempt)
	waitPhase(t, updates, domain.PhaseConnected)
}

func TestReconnector_StopsOnCancel(t *testing.T) {
	dialer := stub.NewDialer(16)
	updates := make(chan Update, 256)
	p, _ := newTestPump(t, updates, PumpConfig{})
	r := NewReconnector(dialer, Backoff{Base: time.Millisecond}, p, updates, zaptest.NewLogger(t), observability.NewMetrics(""))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	waitPhase(t, updates, domain.PhaseConnected)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, domain.PhaseDisconnected, r.State().Phase)
}

func TestReconnector_ReceiptServedByLiveSession(t *testing.T) {
	dialer := stub.NewDialer(16)
	dialer.Hook = func(s *stub.Session) {
		s.AddReceipt(domain.RawReceipt{TransactionHash: "0xaa", BlockNumber: ptr("0x1")})
	}
	r, updates := newTestReconnector(t, dialer, Backoff{Base: time.Millisecond})
	run(t, r)

	waitPhase(t, updates, domain.PhaseConnected)
	require.True(t, r.RequestReceipt("0xaa"))

	u := next(t, updates)
	require.Equal(t, UpdateReceipt, u.Kind)
	require.NoError(t, u.Err)
	assert.Equal(t, uint64(1), *u.Receipt.BlockNumber)
}
