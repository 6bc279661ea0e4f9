package storage

import (
	"context"
	"time"

	"evm-tx-monitor/internal/domain"
)

// ArchiveStore persists decoded transactions beyond the bounded display history.
type ArchiveStore interface {
	// InsertBatch stores records. Records whose hash already exists are skipped.
	// Returns the number of newly stored records.
	InsertBatch(ctx context.Context, records []ArchiveRecord) (int, error)

	// GetByHash retrieves a record by transaction hash. Returns ErrNotFound if not exists.
	GetByHash(ctx context.Context, hash string) (*ArchiveRecord, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)

	// Close releases the underlying connection.
	Close() error
}

// ArchiveRecord is the flat, storage-friendly form of a decoded transaction.
// Corresponds to the transactions table.
type ArchiveRecord struct {
	Hash        string
	FromAddr    *string
	ToAddr      *string // nil for contract creation
	ValueWei    string  // decimal string, exceeds 64 bits
	ValueEther  string  // formatted with display precision
	Function    string
	Selector    *string
	Known       bool
	Category    string
	Gas         uint64
	GasPriceWei *string
	Nonce       uint64
	TxType      uint64
	BlockNumber *uint64
	Pending     bool
	ReceivedAt  time.Time
}

// NewArchiveRecord flattens a decoded transaction.
func NewArchiveRecord(tx *domain.DecodedTransaction) ArchiveRecord {
	rec := ArchiveRecord{
		Hash:        tx.Hash.Hex(),
		ValueWei:    "0",
		ValueEther:  tx.ValueFormatted,
		Function:    tx.Function.Name,
		Known:       tx.Function.Known(),
		Category:    string(tx.Function.Category),
		Gas:         tx.Gas,
		Nonce:       tx.Nonce,
		TxType:      tx.Type,
		BlockNumber: tx.BlockNumber,
		Pending:     tx.Pending,
		ReceivedAt:  tx.ArrivedAt.UTC(),
	}
	if tx.From != nil {
		s := tx.From.Hex()
		rec.FromAddr = &s
	}
	if tx.To != nil {
		s := tx.To.Hex()
		rec.ToAddr = &s
	}
	if tx.Value != nil {
		rec.ValueWei = tx.Value.Dec()
	}
	if tx.Function.Selector != "" {
		s := tx.Function.Selector
		rec.Selector = &s
	}
	if tx.GasPrice != nil {
		s := tx.GasPrice.Dec()
		rec.GasPriceWei = &s
	}
	return rec
}
