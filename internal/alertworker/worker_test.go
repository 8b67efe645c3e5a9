package alertworker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/alerts"
	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/analyzer"
	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/events"
	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/pkg/breaker"
)

func normalizedBatch(sensorID string, values ...float64) *events.SensorDataBatch {
	ts := time.Now().Add(-time.Second).UnixMilli()
	readings := make([]events.SensorReading, len(values))
	for i, v := range values {
		readings[i] = events.SensorReading{
			Type:        events.SensorForce,
			Values:      []float64{v},
			TimestampMs: ts + int64(i),
		}
	}
	return &events.SensorDataBatch{
		SensorID:     sensorID,
		SessionID:    "session-abc",
		SensorType:   events.SensorForce,
		TimestampMs:  ts,
		Readings:     readings,
		QualityScore: 100,
	}
}

func realAnalyzerWorker(fetcher *FakeFetcher, store *FakeStore, sink *FakeSink, m MetricsRecorder) *Worker {
	cfg := DefaultWorkerConfig()
	cfg.Concurrency = 1
	return NewWorkerWithMetrics(
		func() (BatchFetcher, error) { return fetcher, nil },
		analyzer.NewThresholdAnalyzer(nil),
		analyzer.NewAnomalyAnalyzer(),
		store,
		sink,
		cfg,
		m,
	)
}

func runBriefly(t *testing.T, w *Worker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(150 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after cancellation")
	}
}

func TestWorker_PersistThenCommit(t *testing.T) {
	fetcher := &FakeFetcher{}
	store := &FakeStore{}
	sink := &FakeSink{}
	metrics := NewFakeMetrics()

	// 900 N breaches the critical FORCE threshold; 500 N is in range.
	fetcher.QueueBatch(normalizedBatch("imu-001", 900), 10)
	fetcher.QueueBatch(normalizedBatch("imu-002", 500), 11)

	runBriefly(t, realAnalyzerWorker(fetcher, store, sink, metrics))

	created := store.CreatedAlerts()
	if len(created) != 1 {
		t.Fatalf("persisted %d alerts, want 1", len(created))
	}
	if created[0].Severity != alerts.SeverityCritical {
		t.Errorf("severity = %s, want CRITICAL", created[0].Severity)
	}
	if created[0].Status != alerts.StatusActive {
		t.Errorf("status = %s, want ACTIVE", created[0].Status)
	}

	if got := len(sink.PublishedAlerts()); got != 1 {
		t.Errorf("distributed %d alerts, want 1", got)
	}

	offsets := fetcher.CommittedOffsets()
	if len(offsets) != 2 {
		t.Fatalf("committed %d offsets, want 2", len(offsets))
	}
	if metrics.GeneratedCount() != 1 {
		t.Errorf("alerts generated = %d, want 1", metrics.GeneratedCount())
	}
}

func TestWorker_FailedPersistBlocksCommit(t *testing.T) {
	fetcher := &FakeFetcher{}
	store := &FakeStore{CreateErr: errors.New("db down")}
	sink := &FakeSink{}
	metrics := NewFakeMetrics()

	fetcher.QueueBatch(normalizedBatch("imu-001", 900), 10)

	runBriefly(t, realAnalyzerWorker(fetcher, store, sink, metrics))

	if got := len(fetcher.CommittedOffsets()); got != 0 {
		t.Errorf("committed %d offsets, want 0 when persistence fails", got)
	}
	if got := len(sink.PublishedAlerts()); got != 0 {
		t.Errorf("distributed %d alerts, want 0 when persistence fails", got)
	}
	if metrics.ErrorCount(ErrKindPersistence) == 0 {
		t.Error("expected a persistence error to be recorded")
	}
}

func TestWorker_CommitsPastMalformedRecords(t *testing.T) {
	fetcher := &FakeFetcher{}
	store := &FakeStore{}
	sink := &FakeSink{}
	metrics := NewFakeMetrics()

	fetcher.QueueMalformed(5)
	fetcher.QueueBatch(normalizedBatch("imu-001", 500), 6)

	runBriefly(t, realAnalyzerWorker(fetcher, store, sink, metrics))

	offsets := fetcher.CommittedOffsets()
	if len(offsets) != 2 {
		t.Fatalf("committed offsets = %v, want the malformed record and the valid batch", offsets)
	}
	if offsets[0] != 5 {
		t.Errorf("first committed offset = %d, want the malformed record at 5", offsets[0])
	}
	if metrics.ErrorCount(ErrKindValidation) != 1 {
		t.Errorf("validation errors = %d, want 1", metrics.ErrorCount(ErrKindValidation))
	}
}

func TestWorker_MalformedCommitWaitsForEarlierPersist(t *testing.T) {
	rec := &callRecorder{}
	fetcher := &FakeFetcher{Recorder: rec}
	store := &FakeStore{Recorder: rec}
	sink := &FakeSink{}
	metrics := NewFakeMetrics()

	// A malformed record arrives right behind a critical batch. Its offset
	// must not commit until the earlier batch's alert is persisted, or a
	// crash in between would consume the critical batch unprocessed.
	fetcher.QueueBatch(normalizedBatch("imu-001", 900), 5)
	fetcher.QueueMalformed(6)

	runBriefly(t, realAnalyzerWorker(fetcher, store, sink, metrics))

	offsets := fetcher.CommittedOffsets()
	if len(offsets) != 2 || offsets[0] != 5 || offsets[1] != 6 {
		t.Fatalf("committed offsets = %v, want [5 6] in order", offsets)
	}

	calls := rec.Calls()
	create, firstCommit := -1, -1
	for i, c := range calls {
		if create == -1 && strings.HasPrefix(c, "create:") {
			create = i
		}
		if firstCommit == -1 && strings.HasPrefix(c, "commit:") {
			firstCommit = i
		}
	}
	if create == -1 || firstCommit == -1 || firstCommit < create {
		t.Errorf("call order = %v, want the alert persisted before any commit", calls)
	}
}

func TestWorker_FailedSubBatchRedeliveredBeforeLaterOffsets(t *testing.T) {
	// The store fails the first create, so the first consumer session ends
	// with offset 10 uncommitted. The loop rejoins with a fresh fetcher;
	// the redelivered batch persists and only then do offsets move forward.
	store := &FakeStore{FailFirst: 1}
	sink := &FakeSink{}
	metrics := NewFakeMetrics()

	first := &FakeFetcher{}
	first.QueueBatch(normalizedBatch("imu-001", 900), 10)

	second := &FakeFetcher{}
	second.QueueBatch(normalizedBatch("imu-001", 900), 10)
	second.QueueBatch(normalizedBatch("imu-002", 500), 11)

	fetchers := []*FakeFetcher{first, second}
	var mu sync.Mutex
	idx := 0
	newFetcher := func() (BatchFetcher, error) {
		mu.Lock()
		defer mu.Unlock()
		f := fetchers[idx]
		if idx < len(fetchers)-1 {
			idx++
		}
		return f, nil
	}

	cfg := DefaultWorkerConfig()
	cfg.Concurrency = 1
	w := NewWorkerWithMetrics(newFetcher,
		analyzer.NewThresholdAnalyzer(nil),
		analyzer.NewAnomalyAnalyzer(),
		store, sink, cfg, metrics)
	w.rejoinDelay = time.Millisecond

	runBriefly(t, w)

	if got := len(first.CommittedOffsets()); got != 0 {
		t.Errorf("first session committed %d offsets, want 0 after the failed sub-batch", got)
	}

	offsets := second.CommittedOffsets()
	if len(offsets) != 2 || offsets[0] != 10 || offsets[1] != 11 {
		t.Fatalf("redelivery committed offsets = %v, want [10 11]", offsets)
	}

	created := store.CreatedAlerts()
	if len(created) != 1 || created[0].Severity != alerts.SeverityCritical {
		t.Errorf("persisted alerts = %+v, want the redelivered CRITICAL alert exactly once", created)
	}
	if metrics.ErrorCount(ErrKindPersistence) != 1 {
		t.Errorf("persistence errors = %d, want 1", metrics.ErrorCount(ErrKindPersistence))
	}
}

func TestWorker_SkipsInvalidBatchKeepsRest(t *testing.T) {
	fetcher := &FakeFetcher{}
	store := &FakeStore{}
	sink := &FakeSink{}
	metrics := NewFakeMetrics()

	bad := normalizedBatch("imu-001", 900)
	bad.QualityScore = 200 // out of range
	fetcher.QueueBatch(bad, 10)
	fetcher.QueueBatch(normalizedBatch("imu-002", 900), 11)

	runBriefly(t, realAnalyzerWorker(fetcher, store, sink, metrics))

	if got := len(store.CreatedAlerts()); got != 1 {
		t.Errorf("persisted %d alerts, want 1 from the valid batch", got)
	}
	if metrics.ErrorCount(ErrKindValidation) != 1 {
		t.Errorf("validation errors = %d, want 1", metrics.ErrorCount(ErrKindValidation))
	}
	// Both offsets commit: the invalid batch is dropped, not retried.
	if got := len(fetcher.CommittedOffsets()); got != 2 {
		t.Errorf("committed %d offsets, want 2", got)
	}
}

func TestProcessSensorData_DuplicatesPreserved(t *testing.T) {
	dup := alerts.Alert{
		ID:        "alert-dup",
		Type:      alerts.TypeBiomechanical,
		Severity:  alerts.SeverityHigh,
		Status:    alerts.StatusActive,
		SessionID: "session-abc",
	}

	store := &FakeStore{}
	sink := &FakeSink{}
	w := NewWorker(
		nil,
		&FakeAnalyzer{name: "threshold", Emit: map[string][]alerts.Alert{"imu-001": {dup}}},
		&FakeAnalyzer{name: "anomaly", Emit: map[string][]alerts.Alert{"imu-001": {dup}}},
		store,
		sink,
		DefaultWorkerConfig(),
	)

	got, err := w.ProcessSensorData(context.Background(), []*events.SensorDataBatch{
		normalizedBatch("imu-001", 500),
	})
	if err != nil {
		t.Fatalf("ProcessSensorData() error = %v", err)
	}

	// Both analyzers flagged the same condition: both copies flow through;
	// only the store's idempotent insert collapses them.
	if len(got) != 2 {
		t.Errorf("returned %d alerts, want 2 overlapping detections", len(got))
	}
	if len(store.CreatedAlerts()) != 2 {
		t.Errorf("store saw %d creates, want 2", len(store.CreatedAlerts()))
	}
	if len(sink.PublishedAlerts()) != 2 {
		t.Errorf("distributed %d alerts, want 2", len(sink.PublishedAlerts()))
	}
}

func TestProcessSensorData_MostSevereDetectionPersistsFirst(t *testing.T) {
	store := &FakeStore{}
	w := NewWorker(nil,
		analyzer.NewThresholdAnalyzer(nil),
		analyzer.NewAnomalyAnalyzer(),
		store, &FakeSink{}, DefaultWorkerConfig())

	// Nine in-range readings plus one 900 N spike trip both analyzers: the
	// threshold rule at CRITICAL and the outlier score at MEDIUM. They share
	// one deterministic ID, so the CRITICAL row must reach the store first
	// or the idempotent insert would keep the weaker detection.
	batch := normalizedBatch("imu-001", 500, 500, 500, 500, 500, 500, 500, 500, 500, 900)

	got, err := w.ProcessSensorData(context.Background(), []*events.SensorDataBatch{batch})
	if err != nil {
		t.Fatalf("ProcessSensorData() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("returned %d alerts, want 2 overlapping detections", len(got))
	}
	if got[0].ID != got[1].ID {
		t.Fatalf("detection IDs differ (%s, %s), want one shared deterministic ID", got[0].ID, got[1].ID)
	}

	created := store.CreatedAlerts()
	if len(created) != 2 {
		t.Fatalf("store saw %d creates, want 2", len(created))
	}
	if created[0].Severity != alerts.SeverityCritical {
		t.Errorf("first persisted severity = %s, want CRITICAL ahead of the weaker detection", created[0].Severity)
	}
	if created[1].Severity != alerts.SeverityMedium {
		t.Errorf("second persisted severity = %s, want MEDIUM", created[1].Severity)
	}
}

func TestProcessSubBatch_MeetsLatencyBudget(t *testing.T) {
	cfg := DefaultWorkerConfig()
	w := NewWorker(nil,
		analyzer.NewThresholdAnalyzer(nil),
		analyzer.NewAnomalyAnalyzer(),
		&FakeStore{}, &FakeSink{}, cfg)
	br := breaker.New("latency", cfg.Breaker)

	// A full default-size sub-batch of 20-sample batches.
	sub := make([]fetched, DefaultSubBatchSize)
	for i := range sub {
		values := make([]float64, 20)
		for j := range values {
			values[j] = 500 + float64(j%7)
		}
		sub[i] = fetched{batch: normalizedBatch(fmt.Sprintf("imu-%03d", i), values...)}
	}

	const trials = 40
	budget := cfg.Breaker.Timeout
	exceeded := 0
	for i := 0; i < trials; i++ {
		start := time.Now()
		_, err := w.processSubBatch(context.Background(), br, sub)
		if err != nil || time.Since(start) > budget {
			exceeded++
		}
	}
	if limit := trials / 20; exceeded > limit {
		t.Errorf("%d of %d trials exceeded the %s sub-batch budget, want at most %d", exceeded, trials, budget, limit)
	}
}

func TestWorker_CircuitOpensOnRepeatedAnalyzerFailure(t *testing.T) {
	metrics := NewFakeMetrics()
	w := NewWorkerWithMetrics(
		nil,
		&FakeAnalyzer{name: "threshold", AnalyzeErr: errors.New("model crashed")},
		&FakeAnalyzer{name: "anomaly"},
		&FakeStore{},
		&FakeSink{},
		DefaultWorkerConfig(),
		metrics,
	)

	br := breaker.New("test", breaker.Config{
		Timeout:        50 * time.Millisecond,
		ErrorThreshold: 0.5,
		WindowSize:     10,
		ResetTimeout:   time.Minute,
		MinCalls:       2,
	})

	ctx := context.Background()
	sub := []fetched{{batch: normalizedBatch("imu-001", 500)}}

	for i := 0; i < 2; i++ {
		if _, err := w.processSubBatch(ctx, br, sub); err == nil {
			t.Fatal("processSubBatch() expected analyzer error, got nil")
		}
	}
	if metrics.ErrorCount(ErrKindAnalyzer) != 2 {
		t.Errorf("analyzer errors = %d, want 2", metrics.ErrorCount(ErrKindAnalyzer))
	}

	// Breaker is open now: the next call fails fast without invoking analyzers.
	_, err := w.processSubBatch(ctx, br, sub)
	if !errors.Is(err, breaker.ErrOpen) {
		t.Fatalf("processSubBatch() error = %v, want ErrOpen", err)
	}
	if metrics.ErrorCount(ErrKindCircuitOpen) != 1 {
		t.Errorf("circuit open errors = %d, want 1", metrics.ErrorCount(ErrKindCircuitOpen))
	}
}

func TestProcessSensorData_SinkFailureDoesNotFail(t *testing.T) {
	dup := alerts.Alert{ID: "alert-1", SessionID: "session-abc", Status: alerts.StatusActive}
	store := &FakeStore{}
	sink := &FakeSink{PublishErr: errors.New("bus unavailable")}
	metrics := NewFakeMetrics()

	w := NewWorkerWithMetrics(
		nil,
		&FakeAnalyzer{name: "threshold", Emit: map[string][]alerts.Alert{"imu-001": {dup}}},
		&FakeAnalyzer{name: "anomaly"},
		store,
		sink,
		DefaultWorkerConfig(),
		metrics,
	)

	got, err := w.ProcessSensorData(context.Background(), []*events.SensorDataBatch{
		normalizedBatch("imu-001", 500),
	})
	if err != nil {
		t.Fatalf("ProcessSensorData() error = %v, distribution failure must not fail the batch", err)
	}
	if len(got) != 1 {
		t.Fatalf("returned %d alerts, want 1", len(got))
	}
	if len(store.CreatedAlerts()) != 1 {
		t.Errorf("store saw %d creates, want 1", len(store.CreatedAlerts()))
	}
	if metrics.ErrorCount(ErrKindDistribution) != 1 {
		t.Errorf("distribution errors = %d, want 1", metrics.ErrorCount(ErrKindDistribution))
	}
}
