package alertworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/alerts"
	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/analyzer"
	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/events"
	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/pkg/breaker"
)

const (
	// DefaultConcurrency is how many partition loops run concurrently.
	DefaultConcurrency = 3
	// DefaultSubBatchSize bounds per-call memory and latency.
	DefaultSubBatchSize = 50
	// pollDrainWait is how long a partition loop keeps draining already
	// available messages into the current poll batch before processing.
	pollDrainWait = 20 * time.Millisecond
	// sessionRejoinDelay is the pause before a partition loop rejoins the
	// consumer group after a failed sub-batch left offsets uncommitted.
	sessionRejoinDelay = time.Second
)

// Config configures the alert worker.
type Config struct {
	// Concurrency is the number of partition consumer loops.
	Concurrency int
	// SubBatchSize is the fixed size poll batches are subdivided into.
	SubBatchSize int
	// Breaker configures the per-partition circuit breaker; its Timeout is
	// the authoritative per-sub-batch latency budget.
	Breaker breaker.Config
}

// DefaultWorkerConfig returns the standard alert worker configuration.
func DefaultWorkerConfig() Config {
	return Config{
		Concurrency:  DefaultConcurrency,
		SubBatchSize: DefaultSubBatchSize,
		Breaker:      breaker.DefaultConfig(),
	}
}

// FetcherFactory creates one consumer-group member per partition loop.
type FetcherFactory func() (BatchFetcher, error)

// Worker generates alerts from normalized sensor batches. Each partition
// loop owns its own fetcher and circuit breaker so a failing partition sheds
// load without tripping protection for the others.
type Worker struct {
	newFetcher  FetcherFactory
	threshold   analyzer.Analyzer
	anomaly     analyzer.Analyzer
	store       alerts.Store
	sink        AlertSink
	cfg         Config
	metrics     MetricsRecorder
	rejoinDelay time.Duration
}

// NewWorker creates an alert worker with no-op metrics.
func NewWorker(newFetcher FetcherFactory, threshold, anomaly analyzer.Analyzer, store alerts.Store, sink AlertSink, cfg Config) *Worker {
	return NewWorkerWithMetrics(newFetcher, threshold, anomaly, store, sink, cfg, nil)
}

// NewWorkerWithMetrics creates an alert worker with the provided metrics
// recorder. If m is nil, a no-op implementation is used.
func NewWorkerWithMetrics(newFetcher FetcherFactory, threshold, anomaly analyzer.Analyzer, store alerts.Store, sink AlertSink, cfg Config, m MetricsRecorder) *Worker {
	if m == nil {
		m = &NoOpMetrics{}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.SubBatchSize <= 0 {
		cfg.SubBatchSize = DefaultSubBatchSize
	}
	return &Worker{
		newFetcher:  newFetcher,
		threshold:   threshold,
		anomaly:     anomaly,
		store:       store,
		sink:        sink,
		cfg:         cfg,
		metrics:     m,
		rejoinDelay: sessionRejoinDelay,
	}
}

// Run starts the partition loops and blocks until the context is cancelled
// and every loop has drained its in-flight sub-batch.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("Starting alert worker",
		"concurrency", w.cfg.Concurrency,
		"sub_batch_size", w.cfg.SubBatchSize,
		"breaker_timeout", w.cfg.Breaker.Timeout,
	)

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(loop int) {
			defer wg.Done()
			if err := w.runPartitionLoop(ctx, loop); err != nil && ctx.Err() == nil {
				slog.Error("Partition loop terminated", "loop", loop, "error", err)
			}
		}(i)
	}
	wg.Wait()

	slog.Info("Alert worker stopped")
	return nil
}

// fetched pairs a decoded batch with its offset-tracking message.
type fetched struct {
	batch *events.SensorDataBatch
	msg   kafka.Message
}

func (w *Worker) runPartitionLoop(ctx context.Context, loop int) error {
	br := breaker.New(fmt.Sprintf("analyzers-loop-%d", loop), w.cfg.Breaker)

	for ctx.Err() == nil {
		err := w.consumeSession(ctx, loop, br)
		if err == nil || ctx.Err() != nil {
			return nil
		}

		// A failed sub-batch or commit left offsets uncommitted. Rejoin the
		// group with a fresh fetcher so it resumes from the last committed
		// offset and redelivers the failed range, instead of fetching past it.
		slog.Warn("Consumer session ended, rejoining to replay uncommitted offsets",
			"loop", loop,
			"error", err,
		)
		select {
		case <-time.After(w.rejoinDelay):
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

// consumeSession runs one consumer-group membership: poll, subdivide,
// process, commit. It returns a non-nil error when a sub-batch fails or its
// offsets cannot be committed; the caller then rejoins so the uncommitted
// range is redelivered (at-least-once).
func (w *Worker) consumeSession(ctx context.Context, loop int, br *breaker.Breaker) error {
	fetcher, err := w.newFetcher()
	if err != nil {
		return fmt.Errorf("failed to create fetcher for loop %d: %w", loop, err)
	}
	defer fetcher.Close()

	for {
		if ctx.Err() != nil {
			return nil
		}

		poll, err := w.poll(ctx, fetcher)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("Failed to poll batches", "loop", loop, "error", err)
			continue
		}
		if len(poll) == 0 {
			continue
		}

		for start := 0; start < len(poll); start += w.cfg.SubBatchSize {
			end := start + w.cfg.SubBatchSize
			if end > len(poll) {
				end = len(poll)
			}
			sub := poll[start:end]

			if _, err := w.processSubBatch(ctx, br, sub); err != nil {
				slog.Warn("Sub-batch failed, offsets not committed",
					"loop", loop,
					"size", len(sub),
					"error", err,
				)
				return fmt.Errorf("sub-batch processing failed: %w", err)
			}

			msgs := make([]kafka.Message, len(sub))
			for i, f := range sub {
				msgs[i] = f.msg
			}
			if err := fetcher.Commit(ctx, msgs...); err != nil {
				return fmt.Errorf("failed to commit sub-batch offsets: %w", err)
			}
		}
	}
}

// poll reads one blocking message, then drains whatever else is already
// available within a short wait. Malformed records are counted and carried in
// the poll batch with a nil payload, so their offsets commit in order with
// the surrounding sub-batch and never ahead of earlier unpersisted messages.
func (w *Worker) poll(ctx context.Context, fetcher BatchFetcher) ([]fetched, error) {
	var poll []fetched

	batch, msg, err := fetcher.Fetch(ctx)
	if err != nil {
		if msg == nil || !errors.Is(err, events.ErrInvalidFormat) {
			return nil, err
		}
		poll = append(poll, w.noteMalformed(*msg, err))
	} else {
		poll = append(poll, fetched{batch: batch, msg: *msg})
	}

	drainCtx, cancel := context.WithTimeout(ctx, pollDrainWait)
	defer cancel()
	for len(poll) < w.cfg.SubBatchSize {
		batch, msg, err := fetcher.Fetch(drainCtx)
		if err != nil {
			if msg != nil && errors.Is(err, events.ErrInvalidFormat) {
				poll = append(poll, w.noteMalformed(*msg, err))
				continue
			}
			break
		}
		poll = append(poll, fetched{batch: batch, msg: *msg})
	}

	return poll, nil
}

func (w *Worker) noteMalformed(msg kafka.Message, err error) fetched {
	slog.Warn("Dropping malformed normalized batch", "offset", msg.Offset, "error", err)
	w.metrics.RecordError(ErrKindValidation)
	return fetched{msg: msg}
}

// processSubBatch analyzes one sub-batch under the circuit breaker, persists
// the generated alerts, and hands them to distribution. Offsets are committed
// by the caller only when this returns nil.
func (w *Worker) processSubBatch(ctx context.Context, br *breaker.Breaker, sub []fetched) ([]alerts.Alert, error) {
	start := time.Now()

	batches := make([]*events.SensorDataBatch, 0, len(sub))
	for _, f := range sub {
		if f.batch == nil {
			// Malformed at decode time, already counted; only its offset
			// rides along for the commit.
			continue
		}
		if err := f.batch.Validate(); err != nil {
			// Invalid batches cannot be fixed by retrying: count and skip,
			// but keep the rest of the sub-batch.
			slog.Warn("Skipping invalid batch in sub-batch",
				"sensor_id", f.batch.SensorID,
				"error", err,
			)
			w.metrics.RecordError(ErrKindValidation)
			continue
		}
		batches = append(batches, f.batch)
	}
	if len(batches) == 0 {
		return nil, nil
	}

	generated, err := w.analyze(ctx, br, batches)
	if err != nil {
		if errors.Is(err, breaker.ErrOpen) {
			w.metrics.RecordError(ErrKindCircuitOpen)
		} else {
			w.metrics.RecordError(ErrKindAnalyzer)
		}
		return nil, err
	}

	// Overlapping detections can share a deterministic ID at different
	// severities. Persist most-severe first so the store's first-wins
	// conflict rule keeps the strongest row.
	sort.SliceStable(generated, func(i, j int) bool {
		return generated[i].Severity.Rank() > generated[j].Severity.Rank()
	})

	// Persist before the caller commits. A crash between persist and commit
	// replays the sub-batch; deterministic alert IDs make the replayed
	// inserts no-ops.
	for i := range generated {
		if _, err := w.store.Create(ctx, &generated[i]); err != nil {
			w.metrics.RecordError(ErrKindPersistence)
			return nil, fmt.Errorf("failed to persist alert %s: %w", generated[i].ID, err)
		}
	}

	// Distribution failures only delay notification; the persisted rows and
	// the offset commit are unaffected.
	for i := range generated {
		if err := w.sink.Publish(ctx, generated[i]); err != nil {
			slog.Warn("Failed to hand alert to distribution",
				"alert_id", generated[i].ID,
				"error", err,
			)
			w.metrics.RecordError(ErrKindDistribution)
		}
	}

	w.metrics.RecordProcessed(time.Since(start))
	w.metrics.AddAlertsGenerated(len(generated))

	return generated, nil
}

// analyze runs both analyzers concurrently over the sub-batch inside the
// breaker. Their candidate lists are concatenated without deduplication:
// overlapping detections are independent signals for downstream confidence
// aggregation, and the store's deterministic IDs already collapse true
// replays.
func (w *Worker) analyze(ctx context.Context, br *breaker.Breaker, batches []*events.SensorDataBatch) ([]alerts.Alert, error) {
	var generated []alerts.Alert

	err := br.Execute(ctx, func(callCtx context.Context) error {
		var (
			wg           sync.WaitGroup
			mu           sync.Mutex
			analyzerErrs []error
		)

		for _, a := range []analyzer.Analyzer{w.threshold, w.anomaly} {
			wg.Add(1)
			go func(a analyzer.Analyzer) {
				defer wg.Done()
				var candidates []alerts.Alert
				for _, b := range batches {
					out, err := a.Analyze(callCtx, b)
					if err != nil {
						mu.Lock()
						analyzerErrs = append(analyzerErrs, fmt.Errorf("%s analyzer: %w", a.Name(), err))
						mu.Unlock()
						return
					}
					candidates = append(candidates, out...)
				}
				mu.Lock()
				generated = append(generated, candidates...)
				mu.Unlock()
			}(a)
		}
		wg.Wait()

		return errors.Join(analyzerErrs...)
	})
	if err != nil {
		return nil, err
	}

	return generated, nil
}

// ProcessSensorData analyzes the given batches outside the streaming loop:
// candidates from both analyzers are merged, persisted, and distributed.
// Exposed for callers that already hold normalized batches (and for tests).
func (w *Worker) ProcessSensorData(ctx context.Context, batches []*events.SensorDataBatch) ([]alerts.Alert, error) {
	br := breaker.New("analyzers-direct", w.cfg.Breaker)

	sub := make([]fetched, len(batches))
	for i, b := range batches {
		sub[i] = fetched{batch: b}
	}
	return w.processSubBatch(ctx, br, sub)
}
