package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5/pgtype"

	"evm-tx-monitor/internal/storage"
)

// ArchiveStore implements storage.ArchiveStore using PostgreSQL.
type ArchiveStore struct {
	pool *Pool
}

// NewArchiveStore creates a new ArchiveStore.
func NewArchiveStore(pool *Pool) *ArchiveStore {
	return &ArchiveStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ArchiveStore = (*ArchiveStore)(nil)

const insertTransactionSQL = `
	INSERT INTO transactions (
		hash, from_addr, to_addr, value_wei, value_ether, function, selector,
		known, category, gas, gas_price_wei, nonce, tx_type, block_number,
		pending, received_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (hash) DO NOTHING
`

// InsertBatch stores records in a single transaction. Existing hashes are skipped.
func (s *ArchiveStore) InsertBatch(ctx context.Context, records []storage.ArchiveRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	inserted := 0
	for i := range records {
		r := &records[i]
		if r.Hash == "" {
			return 0, storage.ErrInvalidInput
		}
		value, err := toNumeric(&r.ValueWei)
		if err != nil {
			return 0, fmt.Errorf("record %s: %w", r.Hash, err)
		}
		gasPrice, err := toNumeric(r.GasPriceWei)
		if err != nil {
			return 0, fmt.Errorf("record %s: %w", r.Hash, err)
		}

		tag, err := tx.Exec(ctx, insertTransactionSQL,
			r.Hash, r.FromAddr, r.ToAddr, value, r.ValueEther, r.Function, r.Selector,
			r.Known, r.Category, int64(r.Gas), gasPrice, int64(r.Nonce), int16(r.TxType),
			toInt8(r.BlockNumber), r.Pending, r.ReceivedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("insert transaction %s: %w", r.Hash, err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return inserted, nil
}

// GetByHash retrieves a record by transaction hash.
func (s *ArchiveStore) GetByHash(ctx context.Context, hash string) (*storage.ArchiveRecord, error) {
	query := `
		SELECT hash, from_addr, to_addr, value_wei, value_ether, function, selector,
			known, category, gas, gas_price_wei, nonce, tx_type, block_number,
			pending, received_at
		FROM transactions
		WHERE hash = $1
	`

	var (
		r           storage.ArchiveRecord
		value       pgtype.Numeric
		gasPrice    pgtype.Numeric
		gas, nonce  int64
		txType      int16
		blockNumber pgtype.Int8
	)
	err := s.pool.QueryRow(ctx, query, hash).Scan(
		&r.Hash, &r.FromAddr, &r.ToAddr, &value, &r.ValueEther, &r.Function, &r.Selector,
		&r.Known, &r.Category, &gas, &gasPrice, &nonce, &txType, &blockNumber,
		&r.Pending, &r.ReceivedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query transaction: %w", err)
	}

	r.ValueWei = fromNumeric(value)
	if gasPrice.Valid {
		gp := fromNumeric(gasPrice)
		r.GasPriceWei = &gp
	}
	r.Gas = uint64(gas)
	r.Nonce = uint64(nonce)
	r.TxType = uint64(txType)
	if blockNumber.Valid {
		n := uint64(blockNumber.Int64)
		r.BlockNumber = &n
	}
	r.ReceivedAt = r.ReceivedAt.UTC()
	return &r, nil
}

// Count returns the number of archived transactions.
func (s *ArchiveStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

// Close closes the underlying pool.
func (s *ArchiveStore) Close() error {
	s.pool.Close()
	return nil
}

// toNumeric converts a decimal wei string to NUMERIC. nil maps to SQL NULL.
func toNumeric(dec *string) (pgtype.Numeric, error) {
	if dec == nil {
		return pgtype.Numeric{}, nil
	}
	n, ok := new(big.Int).SetString(*dec, 10)
	if !ok {
		return pgtype.Numeric{}, fmt.Errorf("%w: wei amount %q", storage.ErrInvalidInput, *dec)
	}
	return pgtype.Numeric{Int: n, Exp: 0, Valid: true}, nil
}

// fromNumeric renders an integral NUMERIC as a decimal string.
func fromNumeric(n pgtype.Numeric) string {
	if !n.Valid || n.Int == nil {
		return "0"
	}
	v := new(big.Int).Set(n.Int)
	if n.Exp > 0 {
		v.Mul(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil))
	} else if n.Exp < 0 {
		v.Quo(v, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-n.Exp)), nil))
	}
	return v.String()
}

func toInt8(v *uint64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: int64(*v), Valid: true}
}
