// Package events publishes finished check reports to Kafka for the
// downstream history and explanation services.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/giygas/ddi-engine/entities"
	"github.com/giygas/ddi-engine/interfaces"
	"github.com/giygas/ddi-engine/logging"
	"github.com/giygas/ddi-engine/metrics"
	"github.com/segmentio/kafka-go"
)

// Compile-time check to ensure KafkaPublisher implements ReportPublisher
var _ interfaces.ReportPublisher = (*KafkaPublisher)(nil)

// ErrPublisherClosed is returned by Publish after Close
var ErrPublisherClosed = errors.New("report publisher closed")

// Writer abstracts kafka.Writer for testing
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// reportEvent is the message value. The report travels unchanged so
// consumers decode it with the same JSON shape the HTTP API returns.
type reportEvent struct {
	Type        string                      `json:"type"`
	PublishedAt time.Time                   `json:"published_at"`
	Report      *entities.InteractionReport `json:"report"`
}

const reportEventType = "interaction_report"

// KafkaPublisher writes one message per report, keyed by report id
type KafkaPublisher struct {
	writer Writer
	topic  string
	closed atomic.Bool
}

// NewKafkaPublisher builds a publisher over a hash-balanced kafka.Writer
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		MaxAttempts:            3,
		AllowAutoTopicCreation: true,
	}
	return NewPublisher(w, topic), nil
}

// NewPublisher wraps an existing writer. The writer owns the topic.
func NewPublisher(w Writer, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, report *entities.InteractionReport) error {
	if p.closed.Load() {
		return ErrPublisherClosed
	}
	if report == nil || report.ID == "" {
		return errors.New("report id is required")
	}

	value, err := json.Marshal(reportEvent{
		Type:        reportEventType,
		PublishedAt: time.Now().UTC(),
		Report:      report,
	})
	if err != nil {
		return fmt.Errorf("encode report %s: %w", report.ID, err)
	}

	msg := kafka.Message{
		Key:   []byte(report.ID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(reportEventType)},
			{Key: "overall_severity", Value: []byte(report.OverallSeverity.String())},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.ReportsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("publish report %s to %s: %w", report.ID, p.topic, err)
	}
	metrics.ReportsPublished.WithLabelValues("ok").Inc()
	return nil
}

// Close flushes pending messages and releases the writer
func (p *KafkaPublisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	logging.Info("Report publisher closed", "topic", p.topic)
	return nil
}
