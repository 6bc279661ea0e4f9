package stub

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"evm-tx-monitor/internal/domain"
	"evm-tx-monitor/internal/rpc"
)

// simulatedCalls cycles through common selectors; every third
// transaction is a plain value transfer.
var simulatedCalls = []string{
	"0xa9059cbb", // transfer
	"0x38ed1739", // swapExactTokensForTokens
	"0x095ea7b3", // approve
	"0x40c10f19", // mint
	"0x42966c68", // burn
}

// Simulator is an rpc.Dialer producing a synthetic pending-transaction feed:
// hash notifications at a fixed interval, each resolvable through
// FetchTransaction and FetchReceipt.
type Simulator struct {
	interval time.Duration
	counter  atomic.Uint64
}

// Compile-time interface check.
var _ rpc.Dialer = (*Simulator)(nil)

// NewSimulator creates a Simulator emitting one transaction per interval.
func NewSimulator(interval time.Duration) *Simulator {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &Simulator{interval: interval}
}

// Dial implements rpc.Dialer.
func (s *Simulator) Dial(ctx context.Context) (rpc.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sess := NewSession(256)
	go s.generate(sess)
	return sess, nil
}

func (s *Simulator) generate(sess *Session) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sess.Done():
			return
		case <-ticker.C:
			if !sess.Subscribed() {
				continue
			}
			raw := SampleTransaction(s.counter.Add(1))
			sess.AddTransaction(raw)
			sess.AddReceipt(sampleReceipt(raw))
			if !sess.Notify(raw.Hash) {
				return
			}
		}
	}
}

// SampleTransaction builds the i-th synthetic pending transaction.
func SampleTransaction(i uint64) domain.RawTransaction {
	from := fmt.Sprintf("0x%040x", i*2)
	to := fmt.Sprintf("0x%040x", i*3)

	input := "0x"
	if i%3 != 0 {
		selector := simulatedCalls[i%uint64(len(simulatedCalls))]
		input = fmt.Sprintf("%s%064x%064x", selector, i*7, i*1000)
	}

	// i * 0.001 ether
	value := new(big.Int).Mul(new(big.Int).SetUint64(i), big.NewInt(1_000_000_000_000_000))
	gasPrice := hexutil.EncodeUint64((30 + i) * 1_000_000_000)

	return domain.RawTransaction{
		Hash:     fmt.Sprintf("0x%064x", i),
		From:     &from,
		To:       &to,
		Value:    hexutil.EncodeBig(value),
		Input:    input,
		Gas:      hexutil.EncodeUint64(21000 + i*100),
		GasPrice: &gasPrice,
		Nonce:    hexutil.EncodeUint64(i),
	}
}

func sampleReceipt(raw domain.RawTransaction) domain.RawReceipt {
	status := "0x1"
	return domain.RawReceipt{
		TransactionHash:   raw.Hash,
		Status:            &status,
		GasUsed:           &raw.Gas,
		EffectiveGasPrice: raw.GasPrice,
	}
}
