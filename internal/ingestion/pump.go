package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"evm-tx-monitor/internal/decoder"
	"evm-tx-monitor/internal/domain"
	"evm-tx-monitor/internal/observability"
	"evm-tx-monitor/internal/rpc"
)

// Archiver receives decoded transactions for durable storage.
type Archiver interface {
	Enqueue(tx *domain.DecodedTransaction) bool
}

// PumpConfig configures a Pump.
type PumpConfig struct {
	// FetchRate caps lookups per second; 0 disables the cap.
	// Lookups over the cap wait for a token.
	FetchRate int
	// FetchWorkers bounds lookups in flight. Further notifications wait.
	FetchWorkers int
}

// DefaultFetchWorkers bounds lookups in flight when PumpConfig leaves it unset.
const DefaultFetchWorkers = 32

// Pump turns session notifications into decoded transactions.
// Hash notifications are resolved with eth_getTransactionByHash, head
// notifications with eth_getBlockByHash, objects are decoded as they are.
// Lookups overlap, but results are emitted in notification order.
type Pump struct {
	decoder  *decoder.Decoder
	updates  chan<- Update
	archiver Archiver
	limiter  *rate.Limiter
	workers  int
	log      *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// lookup carries one notification's transactions. Each lookup receives
// exactly one value, nil when nothing was found.
type lookup chan []domain.RawTransaction

// NewPump creates a Pump sending to updates. archiver may be nil.
func NewPump(dec *decoder.Decoder, updates chan<- Update, archiver Archiver, cfg PumpConfig, log *zap.Logger, metrics *observability.Metrics) *Pump {
	limit := rate.Inf
	burst := 1
	if cfg.FetchRate > 0 {
		limit = rate.Limit(cfg.FetchRate)
		burst = cfg.FetchRate
	}
	if cfg.FetchWorkers <= 0 {
		cfg.FetchWorkers = DefaultFetchWorkers
	}
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewMetrics("")
	}
	return &Pump{
		decoder:  dec,
		updates:  updates,
		archiver: archiver,
		limiter:  rate.NewLimiter(limit, burst),
		workers:  cfg.FetchWorkers,
		log:      log.Named("pump"),
		metrics:  metrics,
		now:      time.Now,
	}
}

// Serve consumes sess until it ends and returns the reason. Receipt lookups
// requested on receipts are served by the same session. Notifications
// already received are emitted before Serve returns.
func (p *Pump) Serve(ctx context.Context, sess rpc.Session, receipts <-chan string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var lookups errgroup.Group
	lookups.SetLimit(p.workers)
	var receiptsWG sync.WaitGroup

	pending := make(chan lookup, p.workers)
	emitted := make(chan struct{})
	go func() {
		defer close(emitted)
		p.emit(ctx, pending)
	}()

	defer func() {
		close(pending)
		<-emitted
		cancel()
		lookups.Wait() //nolint:errcheck
		receiptsWG.Wait()
	}()

	events := sess.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case hash := <-receipts:
			receiptsWG.Add(1)
			go func() {
				defer receiptsWG.Done()
				p.fetchReceipt(ctx, sess, hash)
			}()

		case ev, ok := <-events:
			if !ok {
				return &rpc.ConnectionError{Kind: rpc.KindClosed}
			}
			switch ev.Kind {
			case rpc.EventNotification:
				p.metrics.NotificationsReceived.Inc()
				p.handleNotification(ctx, sess, pending, &lookups, ev.Result)
			case rpc.EventRPCError:
				return fmt.Errorf("unsolicited rpc error: %w", ev.Err)
			case rpc.EventClosed:
				if ev.Err != nil {
					return ev.Err
				}
				return &rpc.ConnectionError{Kind: rpc.KindClosed}
			}
		}
	}
}

// emit decodes lookups in the order they were queued. It is the only
// sender of transaction updates.
func (p *Pump) emit(ctx context.Context, pending <-chan lookup) {
	for res := range pending {
		txs := <-res
		if ctx.Err() != nil {
			continue
		}
		for i := range txs {
			p.decode(ctx, &txs[i])
		}
	}
}

// notificationProbe tells a transaction object from a block header.
type notificationProbe struct {
	Hash       string  `json:"hash"`
	ParentHash *string `json:"parentHash"`
}

func (p *Pump) handleNotification(ctx context.Context, sess rpc.Session, pending chan<- lookup, g *errgroup.Group, result json.RawMessage) {
	arrived := p.now()
	payload := bytes.TrimSpace(result)

	if len(payload) > 0 && payload[0] == '"' {
		var hash string
		if err := json.Unmarshal(payload, &hash); err != nil {
			p.log.Warn("unparsable hash notification", zap.Error(err))
			return
		}
		p.queue(ctx, pending, g, func() []domain.RawTransaction {
			return p.fetchTransaction(ctx, sess, hash, arrived)
		})
		return
	}

	var probe notificationProbe
	if err := json.Unmarshal(payload, &probe); err != nil {
		p.log.Warn("unparsable notification", zap.Error(err))
		return
	}

	if probe.ParentHash != nil {
		p.queue(ctx, pending, g, func() []domain.RawTransaction {
			return p.fetchBlock(ctx, sess, probe.Hash, arrived)
		})
		return
	}

	var raw domain.RawTransaction
	if err := json.Unmarshal(payload, &raw); err != nil {
		p.log.Warn("unparsable transaction object", zap.Error(err))
		return
	}
	raw.ReceivedAt = arrived
	p.queue(ctx, pending, nil, func() []domain.RawTransaction {
		return []domain.RawTransaction{raw}
	})
}

// queue reserves the notification's place in the emit order, then resolves
// it on g. A nil g resolves it in place. Blocks while the queue is full.
func (p *Pump) queue(ctx context.Context, pending chan<- lookup, g *errgroup.Group, resolve func() []domain.RawTransaction) {
	res := make(lookup, 1)
	select {
	case pending <- res:
	case <-ctx.Done():
		return
	}
	if g == nil {
		res <- resolve()
		return
	}
	p.metrics.LookupsInFlight.Inc()
	g.Go(func() error {
		defer p.metrics.LookupsInFlight.Dec()
		res <- resolve()
		return nil
	})
}

func (p *Pump) fetchTransaction(ctx context.Context, sess rpc.Session, hash string, arrived time.Time) []domain.RawTransaction {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil
	}
	raw, err := sess.FetchTransaction(ctx, hash)
	if err != nil {
		p.fetchFailed("eth_getTransactionByHash", hash, err)
		return nil
	}
	raw.ReceivedAt = arrived
	return []domain.RawTransaction{*raw}
}

func (p *Pump) fetchBlock(ctx context.Context, sess rpc.Session, hash string, arrived time.Time) []domain.RawTransaction {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil
	}
	block, err := sess.FetchBlock(ctx, hash)
	if err != nil {
		p.fetchFailed("eth_getBlockByHash", hash, err)
		return nil
	}
	for i := range block.Transactions {
		block.Transactions[i].ReceivedAt = arrived
	}
	return block.Transactions
}

func (p *Pump) decode(ctx context.Context, raw *domain.RawTransaction) {
	tx, err := p.decoder.Decode(raw)
	if err != nil {
		field := "unknown"
		var de *decoder.DecodeError
		if errors.As(err, &de) {
			field = de.Field
		}
		p.metrics.RecordDecodeError(field)
		p.log.Warn("dropping transaction", zap.String("hash", raw.Hash), zap.Error(err))
		p.send(ctx, Update{Kind: UpdateDropped, Hash: raw.Hash, Err: err})
		return
	}

	p.metrics.TransactionsDecoded.Inc()
	if p.send(ctx, Update{Kind: UpdateTransaction, Tx: tx}) && p.archiver != nil {
		p.archiver.Enqueue(&tx)
	}
}

func (p *Pump) fetchReceipt(ctx context.Context, sess rpc.Session, hash string) {
	raw, err := sess.FetchReceipt(ctx, hash)
	if err != nil {
		p.fetchFailed("eth_getTransactionReceipt", hash, err)
		p.send(ctx, Update{Kind: UpdateReceipt, Hash: hash, Err: err})
		return
	}
	r, err := decoder.DecodeReceipt(raw)
	if err != nil {
		p.send(ctx, Update{Kind: UpdateReceipt, Hash: hash, Err: err})
		return
	}
	p.send(ctx, Update{Kind: UpdateReceipt, Hash: hash, Receipt: r})
}

func (p *Pump) fetchFailed(method, hash string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	p.metrics.FetchErrors.WithLabelValues(method).Inc()
	if errors.Is(err, rpc.ErrNotFound) {
		// Pending transactions are often replaced or dropped before lookup.
		p.log.Debug("lookup found nothing", zap.String("method", method), zap.String("hash", hash))
		return
	}
	p.log.Warn("lookup failed", zap.String("method", method), zap.String("hash", hash), zap.Error(err))
}

func (p *Pump) send(ctx context.Context, u Update) bool {
	select {
	case p.updates <- u:
		return true
	case <-ctx.Done():
		return false
	}
}
