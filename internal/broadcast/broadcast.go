// Package broadcast is the publish/subscribe channel with attribute filters.
package broadcast

import "context"

// Message is one published notification as a subscriber sees it.
type Message struct {
	ID         string
	Body       []byte
	Attributes map[string]string
}

// Ack confirms the channel accepted a message.
type Ack struct {
	MessageID string
}

// Filter is an attribute allowlist: every listed attribute must be present
// with one of the allowed values. An empty filter accepts everything.
type Filter map[string][]string

// Match reports whether attrs pass the filter.
func (f Filter) Match(attrs map[string]string) bool {
	for name, allowed := range f {
		v, ok := attrs[name]
		if !ok {
			return false
		}
		hit := false
		for _, a := range allowed {
			if a == v {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// Handler consumes a delivered message.
type Handler func(ctx context.Context, msg Message) error

type Publisher interface {
	Publish(ctx context.Context, body []byte, attrs map[string]string) (Ack, error)
}

type Subscriber interface {
	// Subscribe registers h under name; only messages passing filter reach it.
	Subscribe(name string, filter Filter, h Handler) (cancel func(), err error)
}

// Topic is both ends of a channel.
type Topic interface {
	Publisher
	Subscriber
	Close() error
}
