package domain

import (
	"fmt"
	"time"
)

// ConnectionPhase is the discrete phase of the connection state machine.
type ConnectionPhase string

const (
	PhaseDisconnected ConnectionPhase = "disconnected"
	PhaseConnecting   ConnectionPhase = "connecting"
	PhaseConnected    ConnectionPhase = "connected"
	PhaseBackoff      ConnectionPhase = "backoff"
	PhaseFailed       ConnectionPhase = "failed"
)

// ConnectionPhases lists every phase.
var ConnectionPhases = []ConnectionPhase{
	PhaseDisconnected, PhaseConnecting, PhaseConnected, PhaseBackoff, PhaseFailed,
}

// ConnectionState is a snapshot of the reconnect state machine.
// Attempt and NextDelay are meaningful only in PhaseBackoff.
type ConnectionState struct {
	Phase     ConnectionPhase
	Attempt   int
	NextDelay time.Duration
	LastError string
	Since     time.Time
}

// String returns a short human-readable description.
func (s ConnectionState) String() string {
	switch s.Phase {
	case PhaseBackoff:
		return fmt.Sprintf("reconnecting (attempt %d in %s)", s.Attempt, s.NextDelay)
	case PhaseFailed:
		return "disconnected (retries exhausted, press r)"
	case "":
		return string(PhaseDisconnected)
	default:
		return string(s.Phase)
	}
}

// SortOrder is the presentation order of stored transactions.
type SortOrder string

const (
	SortOldestFirst SortOrder = "oldest_first"
	SortNewestFirst SortOrder = "newest_first"
)

// Receipt carries post-inclusion data shown in the details view.
type Receipt struct {
	TxHash            string
	BlockNumber       *uint64
	Status            *bool // nil for pre-byzantium receipts
	GasUsed           *uint64
	EffectiveGasPrice string // wei, decimal
}

// RawReceipt is the node's eth_getTransactionReceipt result.
type RawReceipt struct {
	TransactionHash   string  `json:"transactionHash"`
	BlockNumber       *string `json:"blockNumber,omitempty"`
	Status            *string `json:"status,omitempty"`
	GasUsed           *string `json:"gasUsed,omitempty"`
	EffectiveGasPrice *string `json:"effectiveGasPrice,omitempty"`
}
