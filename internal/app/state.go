package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"evm-tx-monitor/internal/domain"
	"evm-tx-monitor/internal/ingestion"
	"evm-tx-monitor/internal/observability"
	"evm-tx-monitor/internal/storage/memory"
)

var (
	// ErrQuit is returned by Run when the user quits.
	ErrQuit = errors.New("app: quit")
	// ErrUpdatesClosed is returned by Run when the update channel closes unexpectedly.
	ErrUpdatesClosed = errors.New("app: update channel closed")
)

const (
	defaultRows = 20
	// maxBatch bounds how many queued updates are applied before a snapshot is published.
	maxBatch     = 256
	rateInterval = time.Second
)

// Controller is the network side as seen by the state owner.
type Controller interface {
	Reconnect()
	RequestReceipt(hash string) bool
}

// view is the list the cursor moves over: the store itself or a filtered copy.
type view interface {
	Len() int
	At(index int) (domain.DecodedTransaction, bool)
}

type filtered []domain.DecodedTransaction

func (f filtered) Len() int { return len(f) }

func (f filtered) At(index int) (domain.DecodedTransaction, bool) {
	if index < 0 || index >= len(f) {
		return domain.DecodedTransaction{}, false
	}
	return f[index], true
}

// State owns the transaction store and all presentation state.
// Only the goroutine calling Run mutates it; readers use Snapshot.
type State struct {
	store   *memory.TransactionStore
	ctrl    Controller
	log     *zap.Logger
	metrics *observability.Metrics

	conn domain.ConnectionState

	// cursor tracks the selected transaction by arrival sequence.
	// pinned keeps it on the first row instead.
	cursor uint64
	pinned bool
	offset int
	rows   int

	filter Filter
	view   filtered
	stale  bool

	details    *domain.DecodedTransaction
	receipt    *domain.Receipt
	receiptErr string

	confirmQuit bool

	received     uint64
	dropped      uint64
	rate         float64
	rateMark     uint64
	rateMarkTime time.Time

	snap   atomic.Pointer[Snapshot]
	redraw chan struct{}
	now    func() time.Time
}

// New creates a State around store. ctrl may be nil when there is no network side.
func New(store *memory.TransactionStore, ctrl Controller, log *zap.Logger, metrics *observability.Metrics) *State {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewMetrics("")
	}
	s := &State{
		store:   store,
		ctrl:    ctrl,
		log:     log.Named("app"),
		metrics: metrics,
		conn:    domain.ConnectionState{Phase: domain.PhaseDisconnected},
		pinned:  true,
		rows:    defaultRows,
		redraw:  make(chan struct{}, 1),
		now:     time.Now,
	}
	s.rateMarkTime = s.now()
	s.publish()
	return s
}

// Snapshot returns the latest published snapshot. Safe for concurrent use.
func (s *State) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Redraw signals that a new snapshot was published. Signals coalesce.
func (s *State) Redraw() <-chan struct{} {
	return s.redraw
}

// Run applies updates and commands until ctx is done, the user quits,
// or the update channel closes.
func (s *State) Run(ctx context.Context, updates <-chan ingestion.Update, commands <-chan Command) error {
	ticker := time.NewTicker(rateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case u, ok := <-updates:
			if !ok {
				return ErrUpdatesClosed
			}
			s.Apply(u)
			if err := s.drain(updates); err != nil {
				return err
			}

		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			if err := s.Handle(cmd); err != nil {
				return err
			}

		case <-ticker.C:
			s.tick()
		}
		s.publish()
	}
}

// drain applies already-queued updates so bursts cost one snapshot.
func (s *State) drain(updates <-chan ingestion.Update) error {
	for i := 0; i < maxBatch; i++ {
		select {
		case u, ok := <-updates:
			if !ok {
				return ErrUpdatesClosed
			}
			s.Apply(u)
		default:
			return nil
		}
	}
	return nil
}

// Apply folds one network update into the state.
func (s *State) Apply(u ingestion.Update) {
	switch u.Kind {
	case ingestion.UpdateState:
		s.conn = u.State

	case ingestion.UpdateTransaction:
		if s.store.Len() == s.store.Cap() {
			s.metrics.StoreEvictions.Inc()
		}
		s.store.Insert(u.Tx)
		s.received++
		s.stale = true
		s.metrics.StoreSize.Set(float64(s.store.Len()))

	case ingestion.UpdateDropped:
		s.dropped++

	case ingestion.UpdateReceipt:
		if s.details == nil || s.details.Hash.Hex() != u.Hash {
			return
		}
		if u.Err != nil {
			s.receiptErr = u.Err.Error()
			s.receipt = nil
			return
		}
		r := u.Receipt
		s.receipt = &r
		s.receiptErr = ""
	}
}

// Handle applies one user command. It returns ErrQuit on Quit.
func (s *State) Handle(cmd Command) error {
	s.log.Debug("command", zap.Stringer("kind", cmd.Kind))
	switch cmd.Kind {
	case CmdScroll:
		s.moveBy(cmd.Delta)
	case CmdPageScroll:
		s.moveBy(cmd.Delta * s.rows)
	case CmdJumpFirst:
		s.moveTo(0)
	case CmdJumpLast:
		s.moveTo(s.current().Len() - 1)
	case CmdToggleSort:
		s.store.SetSortOrder(!s.store.NewestFirst())
		s.stale = true
	case CmdClear:
		s.store.Clear()
		s.log.Info("history cleared")
		s.stale = true
		s.pinned = true
		s.offset = 0
		s.metrics.StoreSize.Set(0)
	case CmdReconnect:
		if s.ctrl != nil {
			s.ctrl.Reconnect()
		}
	case CmdShowDetails:
		s.showDetails()
	case CmdHideDetails:
		s.details, s.receipt, s.receiptErr = nil, nil, ""
	case CmdResize:
		if cmd.Rows > 0 {
			s.rows = cmd.Rows
		}
	case CmdSetFilter:
		s.setFilter(ParseFilter(cmd.Query))
	case CmdClearFilter:
		s.setFilter(Filter{})
	case CmdAskQuit:
		s.confirmQuit = true
	case CmdCancelQuit:
		s.confirmQuit = false
	case CmdQuit:
		return ErrQuit
	default:
		return fmt.Errorf("app: unknown command %d", cmd.Kind)
	}
	return nil
}

func (s *State) showDetails() {
	tx, ok := s.current().At(s.selected())
	if !ok {
		return
	}
	s.details, s.receipt, s.receiptErr = &tx, nil, ""
	if s.ctrl == nil {
		s.receiptErr = "receipt unavailable"
		return
	}
	if !s.ctrl.RequestReceipt(tx.Hash.Hex()) {
		s.receiptErr = "receipt queue full"
	}
}

// setFilter changes the filter keeping the cursor on the same transaction when it still matches.
func (s *State) setFilter(f Filter) {
	if f.Query() == s.filter.Query() {
		return
	}
	s.filter = f
	s.stale = true
	s.offset = 0
}

// current returns the list the cursor moves over, rebuilding the filtered view if needed.
func (s *State) current() view {
	if s.filter.Empty() {
		s.view = nil
		return s.store
	}
	if s.stale || s.view == nil {
		s.view = s.store.Select(s.filter.Match)
		s.stale = false
	}
	return s.view
}

// selected resolves the cursor to a presentation index, or -1 when the list is empty.
// When the tracked transaction is gone the cursor lands on the next later arrival,
// or the newest one.
func (s *State) selected() int {
	v := s.current()
	n := v.Len()
	if n == 0 {
		return -1
	}
	if s.pinned {
		return 0
	}
	newestFirst := s.store.NewestFirst()
	pres := func(p int) int {
		if newestFirst {
			return n - 1 - p
		}
		return p
	}
	// Seqs increase strictly with arrival position.
	p := sort.Search(n, func(p int) bool {
		tx, _ := v.At(pres(p))
		return tx.Seq >= s.cursor
	})
	if p == n {
		p = n - 1
	}
	return pres(p)
}

func (s *State) moveBy(delta int) {
	idx := s.selected()
	if idx < 0 {
		return
	}
	s.moveTo(idx + delta)
}

func (s *State) moveTo(idx int) {
	v := s.current()
	n := v.Len()
	if n == 0 {
		s.pinned = true
		return
	}
	idx = max(0, min(idx, n-1))
	if idx == 0 {
		s.pinned = true
		return
	}
	tx, _ := v.At(idx)
	s.cursor = tx.Seq
	s.pinned = false
}

func (s *State) tick() {
	now := s.now()
	elapsed := now.Sub(s.rateMarkTime).Seconds()
	if elapsed <= 0 {
		return
	}
	s.rate = float64(s.received-s.rateMark) / elapsed
	s.rateMark = s.received
	s.rateMarkTime = now
}

// publish builds a fresh snapshot and signals the renderer.
func (s *State) publish() {
	v := s.current()
	n := v.Len()
	sel := s.selected()

	// Keep the cursor inside the viewport.
	if sel >= 0 {
		if sel < s.offset {
			s.offset = sel
		} else if sel >= s.offset+s.rows {
			s.offset = sel - s.rows + 1
		}
	}
	s.offset = max(0, min(s.offset, n-s.rows))

	var window []domain.DecodedTransaction
	if s.filter.Empty() {
		window = s.store.Iterate(s.offset, s.rows)
	} else if s.offset < n {
		end := min(n, s.offset+s.rows)
		window = append([]domain.DecodedTransaction(nil), s.view[s.offset:end]...)
	}

	order := domain.SortOldestFirst
	if s.store.NewestFirst() {
		order = domain.SortNewestFirst
	}

	snap := &Snapshot{
		Connection:    s.conn,
		Window:        window,
		Offset:        s.offset,
		SelectedIndex: sel,
		SortOrder:     order,
		TotalCount:    s.store.Len(),
		Matched:       n,
		Capacity:      s.store.Cap(),
		Rows:          s.rows,
		Received:      s.received,
		Dropped:       s.dropped,
		Rate:          s.rate,
		Filter:        s.filter.Query(),
		Details:       s.details,
		Receipt:       s.receipt,
		ReceiptErr:    s.receiptErr,
		ConfirmQuit:   s.confirmQuit,
	}
	s.snap.Store(snap)

	select {
	case s.redraw <- struct{}{}:
	default:
	}
}
