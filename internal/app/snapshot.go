package app

import "evm-tx-monitor/internal/domain"

// Snapshot is an immutable view of the application state for the renderer.
// A published Snapshot is never modified; the state owner builds a new one.
type Snapshot struct {
	Connection domain.ConnectionState

	// Window holds the visible rows in presentation order, starting at Offset.
	Window []domain.DecodedTransaction
	Offset int
	// SelectedIndex is the cursor position in the (filtered) list, -1 when empty.
	SelectedIndex int
	SortOrder     domain.SortOrder
	// TotalCount is the number of stored transactions; Matched counts those passing the filter.
	TotalCount int
	Matched    int
	Capacity   int
	Rows       int

	Received uint64
	Dropped  uint64
	Rate     float64 // transactions per second

	Filter string

	// Details is set while the details pane is open.
	Details    *domain.DecodedTransaction
	Receipt    *domain.Receipt
	ReceiptErr string

	ConfirmQuit bool
}

// Selected returns the transaction under the cursor.
func (s *Snapshot) Selected() (domain.DecodedTransaction, bool) {
	i := s.SelectedIndex - s.Offset
	if s.SelectedIndex < 0 || i < 0 || i >= len(s.Window) {
		return domain.DecodedTransaction{}, false
	}
	return s.Window[i], true
}
