package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// PublisherDispatcher sends reports through a Watermill publisher. Kafka is
// used in production; any message.Publisher works.
type PublisherDispatcher struct {
	publisher message.Publisher
	topic     string
}

// NewPublisherDispatcher creates a dispatcher publishing to topic.
func NewPublisherDispatcher(publisher message.Publisher, topic string) *PublisherDispatcher {
	return &PublisherDispatcher{publisher: publisher, topic: topic}
}

// NewKafkaDispatcher connects a Kafka publisher for topic.
func NewKafkaDispatcher(brokers []string, topic string, log zerolog.Logger) (*PublisherDispatcher, error) {
	publisher, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   brokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, NewWatermillLogger(log))
	if err != nil {
		return nil, fmt.Errorf("create kafka publisher: %w", err)
	}
	return NewPublisherDispatcher(publisher, topic), nil
}

func (d *PublisherDispatcher) Name() string { return "publisher:" + d.topic }

func (d *PublisherDispatcher) Dispatch(ctx context.Context, r *model.ResultReport) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	msg := message.NewMessage(r.ReportID, data)
	msg.SetContext(ctx)
	msg.Metadata.Set("exam_id", r.ExamID)
	msg.Metadata.Set("termination_reason", string(r.Result.TerminationReason))
	msg.Metadata.Set("recipient", r.Recipient)
	msg.Metadata.Set("submitted_at", r.SubmittedAt.Format(time.RFC3339))

	if err := d.publisher.Publish(d.topic, msg); err != nil {
		return fmt.Errorf("publish report: %w", err)
	}
	return nil
}

// Close closes the underlying publisher.
func (d *PublisherDispatcher) Close() error {
	return d.publisher.Close()
}

// watermillLogger adapts zerolog to watermill.LoggerAdapter.
type watermillLogger struct {
	log zerolog.Logger
}

// NewWatermillLogger wraps log for Watermill components.
func NewWatermillLogger(log zerolog.Logger) watermill.LoggerAdapter {
	return &watermillLogger{log: log.With().Str("component", "watermill").Logger()}
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.log.Error().Err(err).Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.log.Info().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.log.Debug().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.log.Trace().Fields(map[string]interface{}(fields)).Msg(msg)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{log: l.log.With().Fields(map[string]interface{}(fields)).Logger()}
}
