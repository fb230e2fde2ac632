package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/broadcast"
)

// DispatchMode states whether the caller waits for the transport.
type DispatchMode int

const (
	// Async hands the event over and never observes the outcome.
	Async DispatchMode = iota + 1
	// AwaitAck waits for the delivery acknowledgment and fails with it.
	AwaitAck
)

func (m DispatchMode) String() string {
	switch m {
	case Async:
		return "async"
	case AwaitAck:
		return "await_ack"
	}
	return "unknown"
}

// modes is the per event type dispatch contract.
var modes = map[Type]DispatchMode{
	ProductCreated: Async,
	ProductUpdated: Async,
	ProductDeleted: Async,
	OrderCreated:   AwaitAck,
	OrderDeleted:   AwaitAck,
}

// Mode returns the dispatch mode of t; unknown types are AwaitAck so a
// misrouted event fails loudly.
func (t Type) Mode() DispatchMode {
	if m, ok := modes[t]; ok {
		return m
	}
	return AwaitAck
}

// Receipt identifies what the transport accepted: a message id for a
// broadcast, an invocation id for an async invoke.
type Receipt struct {
	Mode DispatchMode
	ID   string
}

// Notifier delivers envelopes over one transport.
type Notifier interface {
	Mode() DispatchMode
	Notify(ctx context.Context, env Envelope) (Receipt, error)
}

// BroadcastNotifier publishes envelopes to a topic with the event type as
// a transport attribute.
type BroadcastNotifier struct {
	topic broadcast.Publisher
}

func NewBroadcastNotifier(topic broadcast.Publisher) *BroadcastNotifier {
	return &BroadcastNotifier{topic: topic}
}

func (n *BroadcastNotifier) Mode() DispatchMode { return AwaitAck }

func (n *BroadcastNotifier) Notify(ctx context.Context, env Envelope) (Receipt, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return Receipt{}, err
	}
	ack, err := n.topic.Publish(ctx, body, map[string]string{AttrEventType: string(env.EventType)})
	if err != nil {
		return Receipt{}, fmt.Errorf("publish %s: %w", env.EventType, err)
	}
	return Receipt{Mode: AwaitAck, ID: ack.MessageID}, nil
}

// Invoker enqueues a payload for asynchronous execution by a named target.
// The returned id acknowledges the enqueue, not the execution.
type Invoker interface {
	Invoke(ctx context.Context, target string, payload []byte) (string, error)
}

// InvokeNotifier hands envelopes to a named function, fire-and-forget.
type InvokeNotifier struct {
	invoker Invoker
	target  string
}

func NewInvokeNotifier(invoker Invoker, target string) *InvokeNotifier {
	return &InvokeNotifier{invoker: invoker, target: target}
}

func (n *InvokeNotifier) Mode() DispatchMode { return Async }

func (n *InvokeNotifier) Notify(ctx context.Context, env Envelope) (Receipt, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return Receipt{}, err
	}
	id, err := n.invoker.Invoke(ctx, n.target, payload)
	if err != nil {
		return Receipt{}, fmt.Errorf("invoke %s: %w", n.target, err)
	}
	return Receipt{Mode: Async, ID: id}, nil
}
