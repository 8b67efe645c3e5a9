// Command generate-test-data streams synthetic raw sensor messages onto the
// raw input topic for local pipeline testing. Most readings sit in normal
// range; a small fraction spike past the critical thresholds and a smaller
// fraction are deliberately malformed to exercise the drop path.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

var sensorTypes = []string{"FORCE", "ACCELERATION", "EMG", "HEART_RATE", "TEMPERATURE"}

// Baseline and spike values per sensor type, tuned around the default
// analyzer thresholds.
var ranges = map[string]struct{ base, spread, spike float64 }{
	"FORCE":        {base: 450, spread: 150, spike: 950},
	"ACCELERATION": {base: 3, spread: 2, spike: 14},
	"EMG":          {base: 40, spread: 20, spike: 97},
	"HEART_RATE":   {base: 140, spread: 25, spike: 210},
	"TEMPERATURE":  {base: 37, spread: 0.5, spike: 40.5},
}

type reading struct {
	Type        string    `json:"type"`
	Values      []float64 `json:"values"`
	TimestampMs int64     `json:"timestamp_ms"`
}

type rawMessage struct {
	SensorID    string    `json:"sensor_id"`
	SessionID   string    `json:"session_id"`
	TimestampMs int64     `json:"timestamp_ms"`
	Readings    []reading `json:"readings"`
}

func main() {
	brokers := flag.String("kafka-brokers", "localhost:9092", "Kafka broker addresses (comma-separated)")
	topic := flag.String("raw-topic", "sensors.raw", "Kafka topic for raw sensor messages")
	sensors := flag.Int("sensors", 8, "Number of simulated sensors")
	rate := flag.Duration("rate", 10*time.Millisecond, "Delay between messages")
	count := flag.Int("count", 1000, "Total messages to produce (0 = run until interrupted)")
	spikePct := flag.Float64("spike-pct", 0.02, "Fraction of messages carrying a threshold-breaching spike")
	malformedPct := flag.Float64("malformed-pct", 0.01, "Fraction of deliberately malformed messages")
	flag.Parse()

	writer := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(*brokers, ",")...),
		Topic:        *topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	defer writer.Close()

	log.Printf("Producing to %s on %s (%d sensors, rate %s)", *topic, *brokers, *sensors, *rate)

	sessionID := fmt.Sprintf("session-%d", time.Now().Unix())
	ctx := context.Background()
	produced := 0

	for *count == 0 || produced < *count {
		sensorID := fmt.Sprintf("imu-%03d", rand.Intn(*sensors)+1)
		now := time.Now().UnixMilli()

		var payload []byte
		if rand.Float64() < *malformedPct {
			payload = []byte(`{"sensor_id":"` + sensorID + `","readings":"not-an-array"}`)
		} else {
			msg := rawMessage{
				SensorID:    sensorID,
				SessionID:   sessionID,
				TimestampMs: now,
				Readings:    []reading{randomReading(now, rand.Float64() < *spikePct)},
			}
			var err error
			payload, err = json.Marshal(msg)
			if err != nil {
				log.Fatalf("Failed to marshal message: %v", err)
			}
		}

		err := writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(sensorID),
			Value: payload,
		})
		if err != nil {
			log.Fatalf("Failed to write message: %v", err)
		}

		produced++
		if produced%500 == 0 {
			log.Printf("Produced %d messages", produced)
		}
		time.Sleep(*rate)
	}

	log.Printf("Done: produced %d messages", produced)
}

func randomReading(ts int64, spike bool) reading {
	t := sensorTypes[rand.Intn(len(sensorTypes))]
	r := ranges[t]

	value := r.base + (rand.Float64()*2-1)*r.spread
	if spike {
		value = r.spike
	}

	return reading{
		Type:        t,
		Values:      []float64{value},
		TimestampMs: ts,
	}
}
