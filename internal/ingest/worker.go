package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/events"
	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/pkg/retry"
)

const (
	// messageBufferSize bounds the stage between the stream reader and the
	// windowing loop. When full, reads stall instead of growing memory.
	messageBufferSize = 64
	// persistQueueSize bounds the async persistence queue.
	persistQueueSize = 128
	// drainTimeout bounds the final flush during graceful shutdown.
	drainTimeout = 5 * time.Second
)

// RawReader reads raw sensor messages from the input stream.
type RawReader interface {
	// ReadMessage reads and deserializes the next raw message. Malformed
	// payloads return an error wrapping events.ErrInvalidFormat.
	ReadMessage(ctx context.Context) (*events.RawSensorMessage, error)

	// Close closes the reader and releases resources.
	Close() error
}

// BatchPublisher publishes normalized batches to the downstream stream.
type BatchPublisher interface {
	// Publish publishes one normalized batch.
	Publish(ctx context.Context, batch *events.SensorDataBatch) error

	// Close closes the publisher and releases resources.
	Close() error
}

// BatchStore persists normalized batches for durable history.
type BatchStore interface {
	// SaveBatch persists one normalized batch idempotently.
	SaveBatch(ctx context.Context, batch *events.SensorDataBatch) error

	// Close closes the storage connection.
	Close() error
}

// Worker is the ingestion worker. It owns the accumulation window (single
// writer), an async persistence stage, and the downstream publisher.
type Worker struct {
	reader    RawReader
	publisher BatchPublisher
	store     BatchStore
	window    *Window
	metrics   MetricsRecorder
	retryCfg  retry.Config

	persistCh chan *events.SensorDataBatch
	wg        sync.WaitGroup
}

// NewWorker creates an ingestion worker with no-op metrics.
func NewWorker(reader RawReader, publisher BatchPublisher, store BatchStore, windowCfg WindowConfig) *Worker {
	return NewWorkerWithMetrics(reader, publisher, store, windowCfg, nil)
}

// NewWorkerWithMetrics creates an ingestion worker with the provided metrics
// recorder. If m is nil, a no-op implementation is used.
func NewWorkerWithMetrics(reader RawReader, publisher BatchPublisher, store BatchStore, windowCfg WindowConfig, m MetricsRecorder) *Worker {
	if m == nil {
		m = &NoOpMetrics{}
	}
	return &Worker{
		reader:    reader,
		publisher: publisher,
		store:     store,
		window:    NewWindow(windowCfg),
		metrics:   m,
		retryCfg:  retry.DefaultConfig(),
		persistCh: make(chan *events.SensorDataBatch, persistQueueSize),
	}
}

// Run consumes raw messages, accumulates them into window batches, and
// processes every flushed batch until the context is cancelled. On shutdown
// the remaining window contents are flushed and the persistence queue drained.
func (w *Worker) Run(ctx context.Context, windowDuration time.Duration) error {
	slog.Info("Starting ingestion worker loop", "window", windowDuration)

	w.wg.Add(1)
	go w.persistLoop()

	msgCh := make(chan *events.RawSensorMessage, messageBufferSize)
	w.wg.Add(1)
	go w.readLoop(ctx, msgCh)

	// Tick at a fraction of the window: a bucket opened just after a tick
	// still flushes close to its deadline instead of waiting a whole extra
	// window for the next tick.
	ticker := time.NewTicker(flushTickInterval(windowDuration))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return nil
		case now := <-ticker.C:
			for _, batch := range w.window.FlushExpired(now) {
				w.processBatch(ctx, batch)
			}
		case msg, ok := <-msgCh:
			if !ok {
				w.shutdown()
				return nil
			}
			w.handleMessage(ctx, msg, time.Now())
		}
	}
}

// flushTickInterval returns how often expired buckets are checked: a quarter
// of the window, bounding worst-case flush latency at 1.25x the window.
func flushTickInterval(windowDuration time.Duration) time.Duration {
	tick := windowDuration / 4
	if tick <= 0 {
		return windowDuration
	}
	return tick
}

// readLoop is the stream-reading stage. It forwards well-formed messages to
// the bounded windowing channel; a full channel stalls this read (backpressure).
func (w *Worker) readLoop(ctx context.Context, msgCh chan<- *events.RawSensorMessage) {
	defer w.wg.Done()
	defer close(msgCh)

	for {
		msg, err := w.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, events.ErrInvalidFormat) {
				// Malformed payloads cannot be fixed by retrying: drop + count.
				slog.Warn("Dropping malformed raw message", "error", err)
				w.metrics.RecordError(ErrKindInvalidFormat)
				continue
			}
			slog.Error("Failed to read raw message", "error", err)
			continue
		}

		select {
		case msgCh <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// handleMessage validates one raw message and feeds it to the window. Any
// size-triggered flushes are processed immediately.
func (w *Worker) handleMessage(ctx context.Context, msg *events.RawSensorMessage, now time.Time) {
	if err := msg.Validate(); err != nil {
		slog.Warn("Dropping invalid raw message",
			"sensor_id", msg.SensorID,
			"error", err,
		)
		w.metrics.RecordError(ErrKindInvalidFormat)
		for _, r := range msg.Readings {
			w.window.NoteDropped(msg.SensorID, r.Type, 1)
		}
		return
	}

	for _, batch := range w.window.Add(msg, now) {
		w.processBatch(ctx, batch)
	}
	w.metrics.RecordBufferUtilization(w.window.Utilization())
}

// processBatch validates the flushed batch, enqueues it for async
// persistence, and republishes it downstream with bounded retry. A batch
// whose publish retries are exhausted is dropped; the worker keeps running.
func (w *Worker) processBatch(ctx context.Context, batch *events.SensorDataBatch) {
	start := time.Now()

	if err := batch.Validate(); err != nil {
		slog.Warn("Dropping invalid flushed batch",
			"sensor_id", batch.SensorID,
			"error", err,
		)
		w.metrics.RecordError(ErrKindInvalidFormat)
		return
	}

	// Persistence is asynchronous so a slow or failing store never blocks the
	// stream. A full queue sheds the history write, not the publish.
	select {
	case w.persistCh <- batch:
	default:
		slog.Warn("Persistence queue full, dropping history write",
			"sensor_id", batch.SensorID,
			"timestamp_ms", batch.TimestampMs,
		)
		w.metrics.RecordError(ErrKindPersistence)
	}

	err := retry.WithRetryAll(ctx, w.retryCfg, "publish_batch", func() error {
		return w.publisher.Publish(ctx, batch)
	})
	if err != nil {
		slog.Error("Fatal pipeline error for batch: publish retries exhausted, dropping batch",
			"sensor_id", batch.SensorID,
			"session_id", batch.SessionID,
			"timestamp_ms", batch.TimestampMs,
			"error", err,
		)
		w.metrics.RecordError(ErrKindPublish)
		return
	}

	w.metrics.RecordProcessed(time.Since(start))
}

// persistLoop drains the async persistence queue.
func (w *Worker) persistLoop() {
	defer w.wg.Done()

	for batch := range w.persistCh {
		ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		if err := w.store.SaveBatch(ctx, batch); err != nil {
			slog.Error("Failed to persist sensor batch history",
				"sensor_id", batch.SensorID,
				"timestamp_ms", batch.TimestampMs,
				"error", err,
			)
			w.metrics.RecordError(ErrKindPersistence)
		}
		cancel()
	}
}

// shutdown flushes the remaining window contents and drains the persistence
// queue. Publishing uses a fresh bounded context because the run context is
// already cancelled.
func (w *Worker) shutdown() {
	slog.Info("Ingestion worker shutting down, flushing open windows")

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for _, batch := range w.window.FlushAll() {
		w.processBatch(drainCtx, batch)
	}

	close(w.persistCh)
	w.wg.Wait()
	slog.Info("Ingestion worker stopped")
}
