package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/skymesh/fleetcore/fleet"
	"github.com/skymesh/fleetcore/util/logger"
	"github.com/skymesh/fleetcore/util/metrics"
)

const (
	DefaultFirehoseTopic = "fleetcore.events"

	firehoseWriteTimeout = 5 * time.Second
)

// FirehoseConfig configures the Kafka event exporter.
type FirehoseConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Validate checks the config and fills in defaults.
func (c *FirehoseConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("at least one kafka broker is required")
	}
	if c.Topic == "" {
		c.Topic = DefaultFirehoseTopic
	}
	return nil
}

// firehoseEvent is the wire shape of every exported event.
type firehoseEvent struct {
	Kind      string      `json:"kind"` // telemetry|alert_raised|alert_resolved
	DroneID   string      `json:"droneId"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Firehose publishes telemetry and alert lifecycle events to a Kafka
// topic for downstream consumers. Publishing is best-effort: a broker
// outage is logged and counted, never propagated to the safety
// pipeline.
type Firehose struct {
	writer *kafka.Writer
	logger *logger.Logger
}

// NewFirehose creates a firehose exporter.
func NewFirehose(config FirehoseConfig) (*Firehose, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid firehose config: %w", err)
	}
	return &Firehose{
		// Hash balancer keys partitions by drone id so per-drone
		// event order is preserved.
		writer: &kafka.Writer{
			Addr:         kafka.TCP(config.Brokers...),
			Topic:        config.Topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    100,
			BatchTimeout: 100 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		logger: logger.NewLogger("Firehose"),
	}, nil
}

// PublishTelemetry exports one validated telemetry report.
func (f *Firehose) PublishTelemetry(ctx context.Context, t *Telemetry) {
	f.publish(ctx, firehoseEvent{
		Kind:      "telemetry",
		DroneID:   t.DroneID,
		Timestamp: t.Timestamp,
		Data:      t,
	})
}

// PublishAlertRaised exports a newly raised or escalated alert.
func (f *Firehose) PublishAlertRaised(ctx context.Context, alert fleet.Alert) {
	f.publish(ctx, firehoseEvent{
		Kind:      "alert_raised",
		DroneID:   alert.DroneID,
		Timestamp: alert.Timestamp,
		Data:      alert,
	})
}

// PublishAlertResolved exports an alert resolution.
func (f *Firehose) PublishAlertResolved(ctx context.Context, alert fleet.Alert) {
	ts := alert.Timestamp
	if alert.ResolvedAt != nil {
		ts = *alert.ResolvedAt
	}
	f.publish(ctx, firehoseEvent{
		Kind:      "alert_resolved",
		DroneID:   alert.DroneID,
		Timestamp: ts,
		Data:      alert,
	})
}

func (f *Firehose) publish(ctx context.Context, ev firehoseEvent) {
	value, err := json.Marshal(ev)
	if err != nil {
		f.logger.Errorf("encode %s event: %v", ev.Kind, err)
		metrics.RecordFirehose(ev.Kind, "error")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, firehoseWriteTimeout)
	defer cancel()

	err = f.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.DroneID),
		Value: value,
	})
	if err != nil {
		f.logger.Errorf("publish %s event for %s: %v", ev.Kind, ev.DroneID, err)
		metrics.RecordFirehose(ev.Kind, "error")
		return
	}
	metrics.RecordFirehose(ev.Kind, "ok")
}

// Close flushes and closes the underlying writer.
func (f *Firehose) Close() error {
	return f.writer.Close()
}
