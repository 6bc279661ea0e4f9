package clickhouse

import (
	"context"
	"fmt"
	"math/big"

	"evm-tx-monitor/internal/storage"
)

// ArchiveStore implements storage.ArchiveStore using ClickHouse.
// The table is a ReplacingMergeTree keyed by hash; InsertBatch also filters
// hashes that are already present so the returned count is exact.
type ArchiveStore struct {
	conn *Conn
}

// NewArchiveStore creates a new ArchiveStore.
func NewArchiveStore(conn *Conn) *ArchiveStore {
	return &ArchiveStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ArchiveStore = (*ArchiveStore)(nil)

// InsertBatch appends records not yet stored and sends them as one block.
func (s *ArchiveStore) InsertBatch(ctx context.Context, records []storage.ArchiveRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	hashes := make([]string, 0, len(records))
	for _, r := range records {
		if r.Hash == "" {
			return 0, storage.ErrInvalidInput
		}
		hashes = append(hashes, r.Hash)
	}

	existing, err := s.existing(ctx, hashes)
	if err != nil {
		return 0, err
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO transactions (
			hash, from_addr, to_addr, value_wei, value_ether, function, selector,
			known, category, gas, gas_price_wei, nonce, tx_type, block_number,
			pending, received_at
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare batch: %w", err)
	}

	appended := 0
	for i := range records {
		r := &records[i]
		if _, dup := existing[r.Hash]; dup {
			continue
		}
		existing[r.Hash] = struct{}{}

		value, ok := new(big.Int).SetString(r.ValueWei, 10)
		if !ok {
			_ = batch.Abort()
			return 0, fmt.Errorf("%w: wei amount %q", storage.ErrInvalidInput, r.ValueWei)
		}
		var gasPrice *big.Int
		if r.GasPriceWei != nil {
			if gasPrice, ok = new(big.Int).SetString(*r.GasPriceWei, 10); !ok {
				_ = batch.Abort()
				return 0, fmt.Errorf("%w: wei amount %q", storage.ErrInvalidInput, *r.GasPriceWei)
			}
		}

		err = batch.Append(
			r.Hash, r.FromAddr, r.ToAddr, value, r.ValueEther, r.Function, r.Selector,
			r.Known, r.Category, r.Gas, gasPrice, r.Nonce, uint8(r.TxType), r.BlockNumber,
			r.Pending, r.ReceivedAt,
		)
		if err != nil {
			_ = batch.Abort()
			return 0, fmt.Errorf("append to batch: %w", err)
		}
		appended++
	}

	if appended == 0 {
		_ = batch.Abort()
		return 0, nil
	}
	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("send batch: %w", err)
	}
	return appended, nil
}

// GetByHash retrieves a record by transaction hash.
func (s *ArchiveStore) GetByHash(ctx context.Context, hash string) (*storage.ArchiveRecord, error) {
	query := `
		SELECT hash, from_addr, to_addr, value_wei, value_ether, function, selector,
			known, category, gas, gas_price_wei, nonce, tx_type, block_number,
			pending, received_at
		FROM transactions FINAL
		WHERE hash = ?
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query, hash)
	if err != nil {
		return nil, fmt.Errorf("query transaction: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate rows: %w", err)
		}
		return nil, storage.ErrNotFound
	}

	var (
		r        storage.ArchiveRecord
		value    big.Int
		gasPrice *big.Int
		txType   uint8
	)
	if err := rows.Scan(
		&r.Hash, &r.FromAddr, &r.ToAddr, &value, &r.ValueEther, &r.Function, &r.Selector,
		&r.Known, &r.Category, &r.Gas, &gasPrice, &r.Nonce, &txType, &r.BlockNumber,
		&r.Pending, &r.ReceivedAt,
	); err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	r.ValueWei = value.String()
	if gasPrice != nil {
		gp := gasPrice.String()
		r.GasPriceWei = &gp
	}
	r.TxType = uint64(txType)
	r.ReceivedAt = r.ReceivedAt.UTC()
	return &r, nil
}

// Count returns the number of distinct archived hashes.
func (s *ArchiveStore) Count(ctx context.Context) (int64, error) {
	var n uint64
	if err := s.conn.QueryRow(ctx, `SELECT uniqExact(hash) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return int64(n), nil
}

// Close closes the connection.
func (s *ArchiveStore) Close() error {
	return s.conn.Close()
}

// existing returns the subset of hashes already stored.
func (s *ArchiveStore) existing(ctx context.Context, hashes []string) (map[string]struct{}, error) {
	rows, err := s.conn.Query(ctx, `SELECT DISTINCT hash FROM transactions WHERE hash IN (?)`, hashes)
	if err != nil {
		return nil, fmt.Errorf("check existing: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{}, len(hashes))
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan hash: %w", err)
		}
		out[h] = struct{}{}
	}
	return out, rows.Err()
}
