package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/events"
)

// FakeRawReader is a test fake for RawReader. It serves the queued messages
// and errors in order, then blocks until the context is cancelled.
type FakeRawReader struct {
	mu      sync.Mutex
	queue   []readResult
	index   int
	Reads   int
}

type readResult struct {
	msg *events.RawSensorMessage
	err error
}

func (f *FakeRawReader) QueueMessage(msg *events.RawSensorMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, readResult{msg: msg})
}

func (f *FakeRawReader) QueueError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, readResult{err: err})
}

func (f *FakeRawReader) ReadMessage(ctx context.Context) (*events.RawSensorMessage, error) {
	f.mu.Lock()
	f.Reads++
	if f.index < len(f.queue) {
		r := f.queue[f.index]
		f.index++
		f.mu.Unlock()
		return r.msg, r.err
	}
	f.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *FakeRawReader) Close() error { return nil }

// FakeBatchPublisher is a test fake for BatchPublisher.
type FakeBatchPublisher struct {
	mu         sync.Mutex
	Published  []*events.SensorDataBatch
	PublishErr error
	// FailFirst makes the first N publishes fail before succeeding.
	FailFirst int
	calls     int
}

func (f *FakeBatchPublisher) Publish(ctx context.Context, batch *events.SensorDataBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.PublishErr != nil {
		return f.PublishErr
	}
	if f.calls <= f.FailFirst {
		return context.DeadlineExceeded
	}
	f.Published = append(f.Published, batch)
	return nil
}

func (f *FakeBatchPublisher) PublishedBatches() []*events.SensorDataBatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*events.SensorDataBatch(nil), f.Published...)
}

func (f *FakeBatchPublisher) Close() error { return nil }

// FakeBatchStore is a test fake for BatchStore.
type FakeBatchStore struct {
	mu      sync.Mutex
	Saved   []*events.SensorDataBatch
	SaveErr error
}

func (f *FakeBatchStore) SaveBatch(ctx context.Context, batch *events.SensorDataBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SaveErr != nil {
		return f.SaveErr
	}
	f.Saved = append(f.Saved, batch)
	return nil
}

func (f *FakeBatchStore) SavedBatches() []*events.SensorDataBatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*events.SensorDataBatch(nil), f.Saved...)
}

func (f *FakeBatchStore) Close() error { return nil }

// FakeMetrics records metric calls for assertions.
type FakeMetrics struct {
	mu           sync.Mutex
	Processed    int
	Errors       map[string]int
	Utilizations []float64
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

func (f *FakeMetrics) RecordBufferUtilization(pct float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Utilizations = append(f.Utilizations, pct)
}

func (f *FakeMetrics) ErrorCount(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Errors[kind]
}

func (f *FakeMetrics) ProcessedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Processed
}
