package ingestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"evm-tx-monitor/internal/decoder"
	"evm-tx-monitor/internal/domain"
	"evm-tx-monitor/internal/observability"
)

func ptr[T any](v T) *T {
	return &v
}

func newTestPump(t *testing.T, updates chan Update, cfg PumpConfig) (*Pump, *observability.Metrics) {
	t.Helper()
	m := observability.NewMetrics("")
	dec := decoder.New(decoder.DefaultSignatureTable(), decoder.DefaultPrecision)
	return NewPump(dec, updates, nil, cfg, zaptest.NewLogger(t), m), m
}

// next reads the next update or fails after a timeout.
func next(t *testing.T, updates <-chan Update) Update {
	t.Helper()
	select {
	case u := <-updates:
		return u
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for update")
		return Update{}
	}
}

// waitPhase skips updates until a state update with the given phase.
func waitPhase(t *testing.T, updates <-chan Update, phase domain.ConnectionPhase) domain.ConnectionState {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case u := <-updates:
			if u.Kind == UpdateState && u.State.Phase == phase {
				return u.State
			}
		case <-deadline:
			require.FailNow(t, "timeout waiting for phase", string(phase))
			return domain.ConnectionState{}
		}
	}
}
