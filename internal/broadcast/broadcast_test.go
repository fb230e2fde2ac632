package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterMatch(t *testing.T) {
	created := Filter{"eventType": {"ORDER_CREATED"}}
	cases := []struct {
		name   string
		filter Filter
		attrs  map[string]string
		want   bool
	}{
		{"empty filter accepts all", Filter{}, map[string]string{"eventType": "ORDER_DELETED"}, true},
		{"nil filter accepts missing attrs", nil, nil, true},
		{"allowlisted value", created, map[string]string{"eventType": "ORDER_CREATED"}, true},
		{"other value", created, map[string]string{"eventType": "ORDER_DELETED"}, false},
		{"missing attribute", created, map[string]string{"kind": "ORDER_CREATED"}, false},
		{"several values", Filter{"eventType": {"A", "B"}}, map[string]string{"eventType": "B"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.filter.Match(tc.attrs))
		})
	}
}

type recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *recorder) handle(_ context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func waitTopic(t *testing.T, topic *MemoryTopic) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.True(t, topic.Wait(ctx), "deliveries did not finish")
}

func TestMemoryTopicFilteredListenerSkipsOtherTypes(t *testing.T) {
	topic := NewMemoryTopic("order-events")
	defer topic.Close()
	billing := &recorder{}
	audit := &recorder{}
	_, err := topic.Subscribe("billing", Filter{"eventType": {"ORDER_CREATED"}}, billing.handle)
	require.NoError(t, err)
	_, err = topic.Subscribe("audit", nil, audit.handle)
	require.NoError(t, err)

	ack, err := topic.Publish(context.Background(), []byte(`{"eventType":"ORDER_DELETED"}`), map[string]string{"eventType": "ORDER_DELETED"})
	require.NoError(t, err)
	assert.NotEmpty(t, ack.MessageID)
	waitTopic(t, topic)

	assert.Zero(t, billing.count())
	require.Equal(t, 1, audit.count())
	assert.Equal(t, ack.MessageID, audit.msgs[0].ID)
	assert.Equal(t, "ORDER_DELETED", audit.msgs[0].Attributes["eventType"])

	_, err = topic.Publish(context.Background(), []byte(`{}`), map[string]string{"eventType": "ORDER_CREATED"})
	require.NoError(t, err)
	waitTopic(t, topic)
	assert.Equal(t, 1, billing.count())
	assert.Equal(t, 2, audit.count())
}

func TestMemoryTopicCancelAndClose(t *testing.T) {
	topic := NewMemoryTopic("t")
	r := &recorder{}
	cancel, err := topic.Subscribe("s", nil, r.handle)
	require.NoError(t, err)
	cancel()

	_, err = topic.Publish(context.Background(), []byte("x"), nil)
	require.NoError(t, err)
	waitTopic(t, topic)
	assert.Zero(t, r.count())

	require.NoError(t, topic.Close())
	_, err = topic.Publish(context.Background(), []byte("x"), nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryTopicHandlerErrorDoesNotFailPublish(t *testing.T) {
	topic := NewMemoryTopic("t")
	defer topic.Close()
	_, err := topic.Subscribe("broken", nil, func(context.Context, Message) error { return errors.New("boom") })
	require.NoError(t, err)
	_, err = topic.Publish(context.Background(), []byte("x"), nil)
	require.NoError(t, err)
	waitTopic(t, topic)
}

// fakeKafkaWriter implements messageWriter for tests.
type fakeKafkaWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	fail bool
}

func (f *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.fail {
		return errors.New("fail")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafkaWriter) Close() error { return nil }

// fakeKafkaReader serves messages from a channel.
type fakeKafkaReader struct {
	in        chan kafka.Message
	mu        sync.Mutex
	committed int
}

func (f *fakeKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-f.in:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (f *fakeKafkaReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed += len(msgs)
	return nil
}

func (f *fakeKafkaReader) Close() error { return nil }

func (f *fakeKafkaReader) commits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.committed
}

func TestKafkaTopicPublishCarriesAttributesAsHeaders(t *testing.T) {
	w := &fakeKafkaWriter{}
	topic := newKafkaTopicWith("order-events", w, nil)
	ack, err := topic.Publish(context.Background(), []byte("body"), map[string]string{"eventType": "ORDER_CREATED"})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := fromKafka(w.msgs[0])
	assert.Equal(t, ack.MessageID, msg.ID)
	assert.Equal(t, map[string]string{"eventType": "ORDER_CREATED"}, msg.Attributes)
	assert.Equal(t, "body", string(msg.Body))
}

func TestKafkaTopicPublishFailure(t *testing.T) {
	topic := newKafkaTopicWith("order-events", &fakeKafkaWriter{fail: true}, nil)
	_, err := topic.Publish(context.Background(), []byte("body"), nil)
	assert.Error(t, err)
}

func TestKafkaTopicSubscriptionFiltersAndCommits(t *testing.T) {
	w := &fakeKafkaWriter{}
	reader := &fakeKafkaReader{in: make(chan kafka.Message, 4)}
	var groups []string
	topic := newKafkaTopicWith("order-events", w, func(group string) messageReader {
		groups = append(groups, group)
		return reader
	})

	got := make(chan Message, 4)
	_, err := topic.Subscribe("billing", Filter{"eventType": {"ORDER_CREATED"}}, func(_ context.Context, m Message) error {
		got <- m
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"billing"}, groups)

	_, err = topic.Publish(context.Background(), []byte("deleted"), map[string]string{"eventType": "ORDER_DELETED"})
	require.NoError(t, err)
	_, err = topic.Publish(context.Background(), []byte("created"), map[string]string{"eventType": "ORDER_CREATED"})
	require.NoError(t, err)
	for _, m := range w.msgs {
		reader.in <- m
	}

	select {
	case m := <-got:
		assert.Equal(t, "created", string(m.Body))
	case <-time.After(2 * time.Second):
		t.Fatalf("filtered message not delivered")
	}
	assert.Eventually(t, func() bool { return reader.commits() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, got)

	require.NoError(t, topic.Close())
	_, err = topic.Subscribe("late", nil, func(context.Context, Message) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}
