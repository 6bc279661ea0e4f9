package memory

import (
	"evm-tx-monitor/internal/domain"
	"evm-tx-monitor/internal/storage"
)

// TransactionStore is a bounded, arrival-ordered ring of decoded transactions.
//
// It is owned by a single goroutine and performs no locking. Sequence numbers of
// retained entries are contiguous: the oldest entry has seq nextSeq-size, the newest
// nextSeq-1, which makes lookups by seq O(1).
type TransactionStore struct {
	buf         []domain.DecodedTransaction
	head        int // index of the oldest entry
	size        int
	nextSeq     uint64
	newestFirst bool
}

// NewTransactionStore creates a store holding at most capacity entries.
func NewTransactionStore(capacity int) (*TransactionStore, error) {
	if capacity < 1 {
		return nil, storage.ErrInvalidInput
	}
	return &TransactionStore{buf: make([]domain.DecodedTransaction, capacity)}, nil
}

// Insert appends tx with the next arrival sequence number and returns the stored copy.
// When full, the oldest-arrived entry is evicted first.
func (s *TransactionStore) Insert(tx domain.DecodedTransaction) domain.DecodedTransaction {
	tx.Seq = s.nextSeq
	s.nextSeq++

	if s.size == len(s.buf) {
		s.buf[s.head] = tx
		s.head = (s.head + 1) % len(s.buf)
		return tx
	}

	s.buf[(s.head+s.size)%len(s.buf)] = tx
	s.size++
	return tx
}

// SetSortOrder sets the presentation order. Arrival order is unaffected.
func (s *TransactionStore) SetSortOrder(newestFirst bool) {
	s.newestFirst = newestFirst
}

// NewestFirst reports the presentation order.
func (s *TransactionStore) NewestFirst() bool {
	return s.newestFirst
}

// Clear empties the store and resets the arrival counter to zero.
func (s *TransactionStore) Clear() {
	for i := range s.buf {
		s.buf[i] = domain.DecodedTransaction{}
	}
	s.head = 0
	s.size = 0
	s.nextSeq = 0
}

// Len returns the number of stored transactions.
func (s *TransactionStore) Len() int {
	return s.size
}

// Cap returns the capacity.
func (s *TransactionStore) Cap() int {
	return len(s.buf)
}

// Iterate returns up to length entries starting at offset in presentation order.
// Each call is independent; the result is a fresh slice.
func (s *TransactionStore) Iterate(offset, length int) []domain.DecodedTransaction {
	if offset < 0 {
		offset = 0
	}
	if length <= 0 || offset >= s.size {
		return nil
	}
	if length > s.size-offset {
		length = s.size - offset
	}

	out := make([]domain.DecodedTransaction, length)
	for i := range out {
		out[i] = s.buf[s.physical(offset+i)]
	}
	return out
}

// At returns the entry at a presentation index.
func (s *TransactionStore) At(index int) (domain.DecodedTransaction, bool) {
	if index < 0 || index >= s.size {
		return domain.DecodedTransaction{}, false
	}
	return s.buf[s.physical(index)], true
}

// IndexOf returns the presentation index of the entry with the given seq.
func (s *TransactionStore) IndexOf(seq uint64) (int, bool) {
	if s.size == 0 {
		return 0, false
	}
	oldest := s.nextSeq - uint64(s.size)
	if seq < oldest || seq >= s.nextSeq {
		return 0, false
	}
	arrival := int(seq - oldest)
	if s.newestFirst {
		return s.size - 1 - arrival, true
	}
	return arrival, true
}

// Get returns the entry with the given seq.
func (s *TransactionStore) Get(seq uint64) (domain.DecodedTransaction, bool) {
	idx, ok := s.IndexOf(seq)
	if !ok {
		return domain.DecodedTransaction{}, false
	}
	return s.At(idx)
}

// OldestSeq returns the smallest retained sequence number.
func (s *TransactionStore) OldestSeq() (uint64, bool) {
	if s.size == 0 {
		return 0, false
	}
	return s.nextSeq - uint64(s.size), true
}

// Select returns matching entries in presentation order.
func (s *TransactionStore) Select(match func(*domain.DecodedTransaction) bool) []domain.DecodedTransaction {
	var out []domain.DecodedTransaction
	for i := 0; i < s.size; i++ {
		tx := &s.buf[s.physical(i)]
		if match(tx) {
			out = append(out, *tx)
		}
	}
	return out
}

// physical maps a presentation index to a buffer index.
func (s *TransactionStore) physical(index int) int {
	arrival := index
	if s.newestFirst {
		arrival = s.size - 1 - index
	}
	return (s.head + arrival) % len(s.buf)
}
