// Package archive copies decoded transactions to a durable store off the
// display path. Enqueue never blocks; records that do not fit are dropped.
package archive

import (
	"context"
	"time"

	"go.uber.org/zap"

	"evm-tx-monitor/internal/domain"
	"evm-tx-monitor/internal/observability"
	"evm-tx-monitor/internal/storage"
)

// Defaults for WriterConfig zero values.
const (
	DefaultBatchSize     = 200
	DefaultFlushInterval = 2 * time.Second
	DefaultQueueSize     = 4096
	flushTimeout         = 10 * time.Second
)

// WriterConfig tunes batching.
type WriterConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	QueueSize     int
}

// Writer batches records into an ArchiveStore.
type Writer struct {
	store    storage.ArchiveStore
	log      *zap.Logger
	metrics  *observability.Metrics
	queue    chan storage.ArchiveRecord
	size     int
	interval time.Duration
}

// NewWriter creates a Writer. Run must be started for records to be flushed.
func NewWriter(store storage.ArchiveStore, cfg WriterConfig, log *zap.Logger, metrics *observability.Metrics) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewMetrics("")
	}
	return &Writer{
		store:    store,
		log:      log.Named("archive"),
		metrics:  metrics,
		queue:    make(chan storage.ArchiveRecord, cfg.QueueSize),
		size:     cfg.BatchSize,
		interval: cfg.FlushInterval,
	}
}

// Enqueue queues tx for archiving without blocking.
// Returns false if the queue is full and the record was dropped.
func (w *Writer) Enqueue(tx *domain.DecodedTransaction) bool {
	select {
	case w.queue <- storage.NewArchiveRecord(tx):
		return true
	default:
		w.metrics.ArchiveRecordsDropped.Inc()
		return false
	}
}

// Run flushes whenever a batch fills or the interval elapses. On context
// cancellation it drains what is already queued, flushes, and returns nil.
func (w *Writer) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	batch := make([]storage.ArchiveRecord, 0, w.size)
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case rec := <-w.queue:
					batch = append(batch, rec)
					if len(batch) >= w.size {
						batch = w.flush(batch)
					}
				default:
					w.flush(batch)
					w.log.Info("archive writer stopped")
					return nil
				}
			}

		case rec := <-w.queue:
			batch = append(batch, rec)
			if len(batch) >= w.size {
				batch = w.flush(batch)
			}

		case <-ticker.C:
			batch = w.flush(batch)
		}
	}
}

// flush writes batch and returns it emptied for reuse. Failures are logged
// and counted; the batch is discarded either way.
func (w *Writer) flush(batch []storage.ArchiveRecord) []storage.ArchiveRecord {
	if len(batch) == 0 {
		return batch
	}

	// Detached from the run context so the final flush survives shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	start := time.Now()
	n, err := w.store.InsertBatch(ctx, batch)
	w.metrics.ArchiveFlushDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		w.metrics.ArchiveFlushErrors.Inc()
		w.metrics.ArchiveRecordsDropped.Add(float64(len(batch)))
		w.log.Warn("archive flush failed", zap.Int("records", len(batch)), zap.Error(err))
		return batch[:0]
	}

	w.metrics.ArchiveRecordsWritten.Add(float64(n))
	w.log.Debug("archive flushed", zap.Int("records", len(batch)), zap.Int("inserted", n))
	return batch[:0]
}
