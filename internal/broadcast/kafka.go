package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/obs"
)

// headerMessageID carries the message id next to the filter attributes.
const headerMessageID = "messageId"

// messageWriter abstracts kafka.Writer for testability.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// messageReader abstracts kafka.Reader for testability.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaTopic maps the channel onto one Kafka topic. Attributes travel as
// record headers; each subscription is a consumer group named after it, so
// every subscription sees every message and filters on headers.
type KafkaTopic struct {
	topic     string
	writer    messageWriter
	newReader func(groupID string) messageReader
	retryWait time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewKafkaTopic builds a topic on the given brokers.
func NewKafkaTopic(brokers []string, topic string) *KafkaTopic {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
	return newKafkaTopicWith(topic, w, func(groupID string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
			MaxWait:  500 * time.Millisecond,
		})
	})
}

func newKafkaTopicWith(topic string, w messageWriter, newReader func(string) messageReader) *KafkaTopic {
	ctx, cancel := context.WithCancel(context.Background())
	return &KafkaTopic{
		topic:     topic,
		writer:    w,
		newReader: newReader,
		retryWait: 2 * time.Second,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Publish writes synchronously and returns once the brokers acknowledged.
func (k *KafkaTopic) Publish(ctx context.Context, body []byte, attrs map[string]string) (Ack, error) {
	id := uuid.NewString()
	headers := make([]kafka.Header, 0, len(attrs)+1)
	headers = append(headers, kafka.Header{Key: headerMessageID, Value: []byte(id)})
	for name, v := range attrs {
		headers = append(headers, kafka.Header{Key: name, Value: []byte(v)})
	}
	msg := kafka.Message{Key: []byte(id), Value: body, Headers: headers, Time: time.Now().UTC()}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return Ack{}, fmt.Errorf("kafka write %s: %w", k.topic, err)
	}
	return Ack{MessageID: id}, nil
}

// Subscribe starts a consumer loop for the subscription until cancel or Close.
func (k *KafkaTopic) Subscribe(name string, filter Filter, h Handler) (func(), error) {
	if k.ctx.Err() != nil {
		return nil, ErrClosed
	}
	r := k.newReader(name)
	ctx, cancel := context.WithCancel(k.ctx)
	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		defer r.Close()
		k.consume(ctx, name, r, filter, h)
	}()
	return cancel, nil
}

func (k *KafkaTopic) consume(ctx context.Context, name string, r messageReader, filter Filter, h Handler) {
	for {
		m, err := r.FetchMessage(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			obs.Logger.Warn("kafka_fetch_failed", "topic", k.topic, "subscription", name, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(k.retryWait):
			}
			continue
		}
		msg := fromKafka(m)
		if filter.Match(msg.Attributes) {
			if err := h(ctx, msg); err != nil {
				obs.Logger.Error("subscriber_failed",
					"topic", k.topic,
					"subscription", name,
					"message_id", msg.ID,
					"error", err,
				)
			}
		}
		if err := r.CommitMessages(ctx, m); err != nil && !errors.Is(err, context.Canceled) {
			obs.Logger.Warn("kafka_commit_failed", "topic", k.topic, "subscription", name, "error", err)
		}
	}
}

func fromKafka(m kafka.Message) Message {
	msg := Message{Body: m.Value, Attributes: make(map[string]string, len(m.Headers))}
	for _, h := range m.Headers {
		if h.Key == headerMessageID {
			msg.ID = string(h.Value)
			continue
		}
		msg.Attributes[h.Key] = string(h.Value)
	}
	if msg.ID == "" {
		msg.ID = fmt.Sprintf("%s-%d-%d", m.Topic, m.Partition, m.Offset)
	}
	return msg
}

// Close stops every subscription and closes the writer.
func (k *KafkaTopic) Close() error {
	k.cancel()
	k.wg.Wait()
	return k.writer.Close()
}
