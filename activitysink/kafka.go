// Package activitysink ships auth activity events to external systems.
package activitysink

import (
	"context"
	"encoding/json"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/segmentio/kafka-go"

	auth "github.com/gridtokenx/go-auth"
)

// MessageWriter is the part of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes activity events as JSON, keyed by account id so the
// events of one account stay ordered within a partition.
type KafkaSink struct {
	writer  MessageWriter
	timeout time.Duration
	channel string
}

var _ auth.ActivitySink = (*KafkaSink)(nil)

type Option func(*KafkaSink)

// WithWriteTimeout bounds each publish. Zero keeps the caller deadline only.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *KafkaSink) {
		s.timeout = d
	}
}

// WithChannel sets the channel reported in every record.
func WithChannel(channel string) Option {
	return func(s *KafkaSink) {
		s.channel = channel
	}
}

// NewKafkaSink wraps an existing writer.
func NewKafkaSink(writer MessageWriter, opts ...Option) *KafkaSink {
	s := &KafkaSink{
		writer:  writer,
		timeout: 2 * time.Second,
		channel: defaultChannel,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// NewKafkaWriter builds the writer used in production. Writes are async so
// a slow broker never delays a login.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Async:                  true,
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

// Record implements auth.ActivitySink.
func (s *KafkaSink) Record(ctx context.Context, event auth.ActivityEvent) error {
	record := Normalize(event, s.channel)
	value, err := json.Marshal(record)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode activity event")
	}

	key := record.ObjectID
	if key == "" {
		key = record.ActorID
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  record.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to publish activity event")
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
