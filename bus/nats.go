package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	// headerKey carries the producing task name on every record.
	headerKey = "Drama-Key"

	streamPrefix  = "DRAMA_TOPIC_"
	subjectPrefix = "drama.topic."

	pollInterval = 250 * time.Millisecond
)

// NATS implements Bus on JetStream: one stream per topic, all records on a
// single subject so the stream sequence is the topic order.
type NATS struct {
	js jetstream.JetStream
}

// NewNATS wraps a NATS connection in a topic bus.
func NewNATS(nc *nats.Conn) (*NATS, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("bus: jetstream: %w", err)
	}
	return &NATS{js: js}, nil
}

func streamName(topic string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, topic)
	return streamPrefix + sanitized
}

func subjectName(topic string) string {
	return subjectPrefix + topic
}

// EnsureTopic creates the topic stream if missing.
func (b *NATS) EnsureTopic(ctx context.Context, topic string) error {
	_, err := b.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName(topic),
		Subjects: []string{subjectName(topic)},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("bus: ensure topic %s: %w", topic, err)
	}
	return nil
}

// Publish appends a keyed record to the topic.
func (b *NATS) Publish(ctx context.Context, topic, key string, value []byte) error {
	if err := b.EnsureTopic(ctx, topic); err != nil {
		return err
	}

	msg := &nats.Msg{
		Subject: subjectName(topic),
		Data:    value,
		Header:  nats.Header{headerKey: []string{key}},
	}

	if _, err := b.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("bus: publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe opens an ordered reader over the topic from the earliest offset.
func (b *NATS) Subscribe(ctx context.Context, topic string) (Reader, error) {
	if err := b.EnsureTopic(ctx, topic); err != nil {
		return nil, err
	}

	stream, err := b.js.Stream(ctx, streamName(topic))
	if err != nil {
		return nil, fmt.Errorf("bus: stream for %s: %w", topic, err)
	}

	consumer, err := stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("bus: consumer for %s: %w", topic, err)
	}

	return &natsReader{topic: topic, consumer: consumer}, nil
}

type natsReader struct {
	topic    string
	consumer jetstream.Consumer
	closed   bool
}

func (r *natsReader) Next(ctx context.Context) (Record, error) {
	if r.closed {
		return Record{}, ErrClosed
	}

	for {
		if err := ctx.Err(); err != nil {
			return Record{}, err
		}

		msg, err := r.consumer.Next(jetstream.FetchMaxWait(pollInterval))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, jetstream.ErrNoMessages) {
				continue
			}
			return Record{}, fmt.Errorf("bus: next record on %s: %w", r.topic, err)
		}

		record := Record{
			Topic: r.topic,
			Key:   msg.Headers().Get(headerKey),
			Value: msg.Data(),
		}
		return record, nil
	}
}

func (r *natsReader) Close() error {
	r.closed = true
	return nil
}
