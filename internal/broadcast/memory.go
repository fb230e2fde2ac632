package broadcast

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/obs"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("broadcast: topic closed")

type subscription struct {
	id     uint64
	name   string
	filter Filter
	h      Handler
}

// MemoryTopic delivers each message to every matching subscriber on its own
// goroutine. Publish returns as soon as deliveries are scheduled.
type MemoryTopic struct {
	name string

	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	closed bool

	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

func NewMemoryTopic(name string) *MemoryTopic {
	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryTopic{name: name, ctx: ctx, cancel: cancel}
}

func (t *MemoryTopic) Publish(_ context.Context, body []byte, attrs map[string]string) (Ack, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return Ack{}, ErrClosed
	}
	msg := Message{ID: uuid.NewString(), Body: append([]byte(nil), body...), Attributes: copyAttrs(attrs)}
	for _, s := range t.subs {
		if !s.filter.Match(msg.Attributes) {
			continue
		}
		s := s
		t.inflight.Add(1)
		go func() {
			defer t.inflight.Done()
			if err := s.h(t.ctx, msg); err != nil {
				obs.Logger.Error("subscriber_failed",
					"topic", t.name,
					"subscription", s.name,
					"message_id", msg.ID,
					"error", err,
				)
			}
		}()
	}
	return Ack{MessageID: msg.ID}, nil
}

func (t *MemoryTopic) Subscribe(name string, filter Filter, h Handler) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	t.nextID++
	id := t.nextID
	t.subs = append(t.subs, subscription{id: id, name: name, filter: filter, h: h})
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, s := range t.subs {
			if s.id == id {
				t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
				return
			}
		}
	}, nil
}

// Wait blocks until every scheduled delivery returned or ctx is done.
func (t *MemoryTopic) Wait(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		t.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close rejects further publishes and waits for in-flight deliveries.
func (t *MemoryTopic) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.inflight.Wait()
	t.cancel()
	return nil
}

func copyAttrs(attrs map[string]string) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
