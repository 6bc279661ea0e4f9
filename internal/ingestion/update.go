package ingestion

import "evm-tx-monitor/internal/domain"

// UpdateKind discriminates Update.
type UpdateKind int

const (
	// UpdateState carries a connection state transition.
	UpdateState UpdateKind = iota
	// UpdateTransaction carries a decoded transaction.
	UpdateTransaction
	// UpdateDropped reports a transaction dropped for a malformed field.
	UpdateDropped
	// UpdateReceipt carries a receipt lookup result.
	UpdateReceipt
)

// Update is one message from the network task to the state owner.
// All updates travel on a single FIFO channel.
type Update struct {
	Kind    UpdateKind
	State   domain.ConnectionState
	Tx      domain.DecodedTransaction
	Receipt domain.Receipt
	// Hash identifies the receipt lookup; Err is set when it failed.
	Hash string
	Err  error
}
