package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"evm-tx-monitor/internal/decoder"
	"evm-tx-monitor/internal/domain"
	"evm-tx-monitor/internal/ingestion"
	"evm-tx-monitor/internal/observability"
	"evm-tx-monitor/internal/rpc/stub"
	"evm-tx-monitor/internal/storage/memory"
)

type pipeline struct {
	state  *State
	dialer *stub.Dialer
	store  *memory.TransactionStore
	cmds   chan Command
	cancel context.CancelFunc
	done   chan error
	rcDone chan struct{}
}

// startPipeline wires a stub dialer through the reconnector and pump into a State.
func startPipeline(t *testing.T, capacity int) *pipeline {
	t.Helper()
	log := zaptest.NewLogger(t)
	m := observability.NewMetrics("")

	store, err := memory.NewTransactionStore(capacity)
	require.NoError(t, err)

	updates := make(chan ingestion.Update, 64)
	dec := decoder.New(decoder.DefaultSignatureTable(), decoder.DefaultPrecision)
	pump := ingestion.NewPump(dec, updates, nil, ingestion.PumpConfig{}, log, m)
	dialer := stub.NewDialer(16)
	rc := ingestion.NewReconnector(dialer, ingestion.Backoff{Base: time.Millisecond, Max: time.Millisecond}, pump, updates, log, m)

	state := New(store, rc, log, m)
	ctx, cancel := context.WithCancel(context.Background())
	p := &pipeline{
		state:  state,
		dialer: dialer,
		store:  store,
		cmds:   make(chan Command),
		cancel: cancel,
		done:   make(chan error, 1),
		rcDone: make(chan struct{}),
	}
	go func() {
		defer close(p.rcDone)
		rc.Run(ctx) //nolint:errcheck
	}()
	go func() { p.done <- state.Run(ctx, updates, p.cmds) }()
	return p
}

// stop ends the pipeline; afterwards the store may be read directly.
func (p *pipeline) stop(t *testing.T) {
	t.Helper()
	p.cancel()
	require.NoError(t, <-p.done)
	<-p.rcDone
}

func (p *pipeline) session(t *testing.T) *stub.Session {
	t.Helper()
	select {
	case s := <-p.dialer.Sessions():
		return s
	case <-time.After(3 * time.Second):
		t.Fatal("no session dialed")
		return nil
	}
}

func TestPipeline_OverflowKeepsLatestAndToggleReverses(t *testing.T) {
	const total, capacity = 1500, 1000
	p := startPipeline(t, capacity)
	sess := p.session(t)

	for i := uint64(0); i < total; i++ {
		require.True(t, sess.Notify(stub.SampleTransaction(i)))
	}
	require.Eventually(t, func() bool {
		return p.state.Snapshot().Received == total
	}, 10*time.Second, 10*time.Millisecond)

	snap := p.state.Snapshot()
	assert.Equal(t, capacity, snap.TotalCount)
	assert.Equal(t, domain.PhaseConnected, snap.Connection.Phase)
	require.NotEmpty(t, snap.Window)
	assert.Equal(t, stub.SampleTransaction(total-capacity).Hash, snap.Window[0].Hash.Hex())
	assert.Equal(t, uint64(total-capacity), snap.Window[0].Seq)

	p.cmds <- ToggleSort()
	require.Eventually(t, func() bool {
		return p.state.Snapshot().SortOrder == domain.SortNewestFirst
	}, 3*time.Second, 5*time.Millisecond)
	p.stop(t)

	require.Equal(t, capacity, p.store.Len())
	top := p.store.Iterate(0, 10)
	require.Len(t, top, 10)
	for i, tx := range top {
		want := uint64(total - 1 - i)
		assert.Equal(t, want, tx.Seq)
		assert.Equal(t, stub.SampleTransaction(want).Hash, tx.Hash.Hex())
	}

	p.store.SetSortOrder(false)
	all := p.store.Iterate(0, capacity)
	for i := 1; i < len(all); i++ {
		require.Less(t, all[i-1].Seq, all[i].Seq)
	}
}

func TestPipeline_HashNotificationsKeepNotificationOrder(t *testing.T) {
	const total, capacity = 1500, 1000
	p := startPipeline(t, capacity)
	sess := p.session(t)

	for i := uint64(0); i < total; i++ {
		sess.AddTransaction(stub.SampleTransaction(i))
	}
	// Lookup latency varies so later hashes often resolve first.
	sess.FetchDelay = func(hash string) time.Duration {
		return time.Duration(int(hash[len(hash)-1])%7) * time.Millisecond
	}

	for i := uint64(0); i < total; i++ {
		require.True(t, sess.Notify(stub.SampleTransaction(i).Hash))
	}
	require.Eventually(t, func() bool {
		return p.state.Snapshot().Received == total
	}, 20*time.Second, 10*time.Millisecond)
	assert.Zero(t, p.state.Snapshot().Dropped)

	p.cmds <- ToggleSort()
	require.Eventually(t, func() bool {
		return p.state.Snapshot().SortOrder == domain.SortNewestFirst
	}, 3*time.Second, 5*time.Millisecond)
	p.stop(t)

	require.Equal(t, capacity, p.store.Len())
	top := p.store.Iterate(0, 10)
	require.Len(t, top, 10)
	for i, tx := range top {
		assert.Equal(t, stub.SampleTransaction(uint64(total-1-i)).Hash, tx.Hash.Hex(), "row %d", i)
	}

	p.store.SetSortOrder(false)
	for i, tx := range p.store.Iterate(0, capacity) {
		require.Equal(t, stub.SampleTransaction(uint64(total-capacity+i)).Hash, tx.Hash.Hex(), "row %d", i)
	}
}

func TestPipeline_MalformedValueDoesNotReachStore(t *testing.T) {
	p := startPipeline(t, 10)
	sess := p.session(t)

	bad := stub.SampleTransaction(1)
	bad.Value = "0xzz"
	require.True(t, sess.Notify(bad))
	require.True(t, sess.Notify(stub.SampleTransaction(2)))

	require.Eventually(t, func() bool {
		s := p.state.Snapshot()
		return s.Received == 1 && s.Dropped == 1
	}, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, p.state.Snapshot().TotalCount)
	p.stop(t)
}

func TestPipeline_DetailsFetchReceipt(t *testing.T) {
	p := startPipeline(t, 10)
	sess := p.session(t)

	raw := stub.SampleTransaction(4)
	sess.AddReceipt(domain.RawReceipt{TransactionHash: raw.Hash, Status: ptr("0x1"), GasUsed: ptr("0x5208")})
	require.True(t, sess.Notify(raw))
	require.Eventually(t, func() bool { return p.state.Snapshot().TotalCount == 1 }, 3*time.Second, 5*time.Millisecond)

	p.cmds <- ShowDetails()
	require.Eventually(t, func() bool { return p.state.Snapshot().Receipt != nil }, 3*time.Second, 5*time.Millisecond)
	r := p.state.Snapshot().Receipt
	require.NotNil(t, r.Status)
	assert.True(t, *r.Status)
	require.NotNil(t, r.GasUsed)
	assert.Equal(t, uint64(21000), *r.GasUsed)
	p.stop(t)
}

func TestPipeline_ReconnectCommandRedials(t *testing.T) {
	p := startPipeline(t, 10)
	p.session(t)

	p.cmds <- Reconnect()
	p.session(t)
	assert.GreaterOrEqual(t, p.dialer.Dials(), 2)
	p.stop(t)
}

func ptr[T any](v T) *T {
	return &v
}
