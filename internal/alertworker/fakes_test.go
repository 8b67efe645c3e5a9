package alertworker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/alerts"
	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/events"
)

// callRecorder captures the interleaving of store and fetcher operations so
// tests can assert ordering, not just counts.
type callRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *callRecorder) note(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *callRecorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// FakeFetcher is a test fake for BatchFetcher. It serves queued results in
// order and then blocks until the context is cancelled.
type FakeFetcher struct {
	mu        sync.Mutex
	queue     []fetchResult
	index     int
	Committed []kafka.Message
	CommitErr error
	Recorder  *callRecorder
}

type fetchResult struct {
	batch *events.SensorDataBatch
	msg   *kafka.Message
	err   error
}

func (f *FakeFetcher) QueueBatch(batch *events.SensorDataBatch, offset int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, fetchResult{batch: batch, msg: &kafka.Message{Offset: offset}})
}

func (f *FakeFetcher) QueueMalformed(offset int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, fetchResult{
		msg: &kafka.Message{Offset: offset},
		err: events.ErrInvalidFormat,
	})
}

func (f *FakeFetcher) Fetch(ctx context.Context) (*events.SensorDataBatch, *kafka.Message, error) {
	f.mu.Lock()
	if f.index < len(f.queue) {
		r := f.queue[f.index]
		f.index++
		f.mu.Unlock()
		return r.batch, r.msg, r.err
	}
	f.mu.Unlock()

	<-ctx.Done()
	return nil, nil, ctx.Err()
}

func (f *FakeFetcher) Commit(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CommitErr != nil {
		return f.CommitErr
	}
	f.Committed = append(f.Committed, msgs...)
	if f.Recorder != nil {
		for _, m := range msgs {
			f.Recorder.note(fmt.Sprintf("commit:%d", m.Offset))
		}
	}
	return nil
}

func (f *FakeFetcher) CommittedOffsets() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.Committed))
	for i, m := range f.Committed {
		out[i] = m.Offset
	}
	return out
}

func (f *FakeFetcher) Close() error { return nil }

// FakeStore is a test fake for alerts.Store. FailFirst makes the first N
// creates fail with a transient error before the store recovers.
type FakeStore struct {
	mu        sync.Mutex
	Created   []alerts.Alert
	CreateErr error
	FailFirst int
	failed    int
	Recorder  *callRecorder
}

func (f *FakeStore) Create(ctx context.Context, alert *alerts.Alert) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	if f.failed < f.FailFirst {
		f.failed++
		return "", errors.New("transient store failure")
	}
	f.Created = append(f.Created, *alert)
	if f.Recorder != nil {
		f.Recorder.note("create:" + string(alert.Severity))
	}
	return alert.ID, nil
}

func (f *FakeStore) GetActiveByType(ctx context.Context, alertType alerts.AlertType, minSeverity alerts.Severity) ([]alerts.Alert, error) {
	return nil, errors.New("not implemented")
}

func (f *FakeStore) Transition(ctx context.Context, id string, to alerts.Status, actor string) (*alerts.Alert, error) {
	return nil, errors.New("not implemented")
}

func (f *FakeStore) Close() error { return nil }

func (f *FakeStore) CreatedAlerts() []alerts.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]alerts.Alert(nil), f.Created...)
}

// FakeSink is a test fake for AlertSink.
type FakeSink struct {
	mu         sync.Mutex
	Published  []alerts.Alert
	PublishErr error
}

func (f *FakeSink) Publish(ctx context.Context, alert alerts.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishErr != nil {
		return f.PublishErr
	}
	f.Published = append(f.Published, alert)
	return nil
}

func (f *FakeSink) PublishedAlerts() []alerts.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]alerts.Alert(nil), f.Published...)
}

// FakeAnalyzer is a test fake for analyzer.Analyzer.
type FakeAnalyzer struct {
	name       string
	AnalyzeErr error
	// Emit maps a sensor ID to the alerts returned for its batches.
	Emit  map[string][]alerts.Alert
	Delay time.Duration
}

func (f *FakeAnalyzer) Name() string { return f.name }

func (f *FakeAnalyzer) Analyze(ctx context.Context, batch *events.SensorDataBatch) ([]alerts.Alert, error) {
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.AnalyzeErr != nil {
		return nil, f.AnalyzeErr
	}
	return f.Emit[batch.SensorID], nil
}

// FakeMetrics records metric calls for assertions.
type FakeMetrics struct {
	mu        sync.Mutex
	Processed int
	Errors    map[string]int
	Generated int
}

func NewFakeMetrics() *FakeMetrics {
	return &FakeMetrics{Errors: make(map[string]int)}
}

func (f *FakeMetrics) RecordProcessed(latency time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Processed++
}

func (f *FakeMetrics) RecordError(kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[kind]++
}

func (f *FakeMetrics) AddAlertsGenerated(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Generated += n
}

func (f *FakeMetrics) ErrorCount(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Errors[kind]
}

func (f *FakeMetrics) GeneratedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Generated
}
