package ingest

import (
	"time"

	"github.com/Caevisus/mybodyradar-test-e125zx-sub004/internal/events"
)

const (
	// DefaultWindowDuration matches the pipeline's end-to-end latency budget.
	DefaultWindowDuration = 100 * time.Millisecond
	// DefaultMaxWindowSize flushes a window early once this many readings
	// have accumulated, bounding memory regardless of the clock.
	DefaultMaxWindowSize = 200
)

// WindowConfig configures the batch accumulation window.
type WindowConfig struct {
	Duration time.Duration
	MaxSize  int
}

// DefaultWindowConfig returns the standard window configuration.
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		Duration: DefaultWindowDuration,
		MaxSize:  DefaultMaxWindowSize,
	}
}

// bucket accumulates the readings of one (sensor, reading type) pair for the
// current window.
type bucket struct {
	sensorID   string
	sessionID  string
	sensorType string
	openedAt   time.Time
	readings   []events.SensorReading
}

// Window groups incoming readings into fixed time-window batches, one batch
// per (sensor, reading type) so every flushed batch has a consistent declared
// sensor type. It is not safe for concurrent use: each partition loop owns
// its own Window (single writer per partition).
type Window struct {
	cfg     WindowConfig
	buckets map[string]*bucket
	// dropped counts readings discarded by validation, keyed like buckets by
	// (sensor, reading type); it feeds the flushed batch's quality score.
	dropped map[string]int
}

// NewWindow creates an empty accumulation window.
func NewWindow(cfg WindowConfig) *Window {
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultWindowDuration
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxWindowSize
	}
	return &Window{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		dropped: make(map[string]int),
	}
}

// Add buffers the message's readings and returns any batches flushed early
// because a bucket hit the size threshold.
func (w *Window) Add(msg *events.RawSensorMessage, now time.Time) []*events.SensorDataBatch {
	var flushed []*events.SensorDataBatch

	for _, r := range msg.Readings {
		key := msg.SensorID + "|" + r.Type
		b, ok := w.buckets[key]
		if !ok {
			b = &bucket{
				sensorID:   msg.SensorID,
				sessionID:  msg.SessionID,
				sensorType: r.Type,
				openedAt:   now,
			}
			w.buckets[key] = b
		}
		b.sessionID = msg.SessionID
		b.readings = append(b.readings, r)

		if len(b.readings) >= w.cfg.MaxSize {
			flushed = append(flushed, w.flush(key, b))
		}
	}

	return flushed
}

// NoteDropped records a reading discarded by validation, so the next flushed
// batch of the same (sensor, reading type) reflects the loss in its quality
// score without charging it to the sensor's other types.
func (w *Window) NoteDropped(sensorID, readingType string, count int) {
	w.dropped[sensorID+"|"+readingType] += count
}

// FlushExpired flushes every bucket whose window duration has elapsed.
func (w *Window) FlushExpired(now time.Time) []*events.SensorDataBatch {
	var flushed []*events.SensorDataBatch
	for key, b := range w.buckets {
		if now.Sub(b.openedAt) >= w.cfg.Duration {
			flushed = append(flushed, w.flush(key, b))
		}
	}
	return flushed
}

// FlushAll flushes every open bucket, used during graceful shutdown.
func (w *Window) FlushAll() []*events.SensorDataBatch {
	var flushed []*events.SensorDataBatch
	for key, b := range w.buckets {
		flushed = append(flushed, w.flush(key, b))
	}
	return flushed
}

// Utilization returns the fill percentage of the fullest open bucket.
func (w *Window) Utilization() float64 {
	max := 0
	for _, b := range w.buckets {
		if len(b.readings) > max {
			max = len(b.readings)
		}
	}
	return float64(max) / float64(w.cfg.MaxSize) * 100
}

func (w *Window) flush(key string, b *bucket) *events.SensorDataBatch {
	delete(w.buckets, key)

	// Batch timestamp is the earliest sample in the window, so reprocessing
	// the same data always yields the same batch identity downstream.
	ts := b.readings[0].TimestampMs
	for _, r := range b.readings[1:] {
		if r.TimestampMs < ts {
			ts = r.TimestampMs
		}
	}

	kept := len(b.readings)
	dropped := w.dropped[key]
	quality := 100.0
	if dropped > 0 {
		quality = 100 * float64(kept) / float64(kept+dropped)
		delete(w.dropped, key)
	}

	return &events.SensorDataBatch{
		SensorID:     b.sensorID,
		SessionID:    b.sessionID,
		SensorType:   b.sensorType,
		TimestampMs:  ts,
		Readings:     b.readings,
		QualityScore: quality,
	}
}
