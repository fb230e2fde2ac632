package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/apperr"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/model"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/obs"
)

// ErrNoRoute is returned when no notifier is registered for an event type.
var ErrNoRoute = errors.New("no notifier routed for event type")

// Dispatcher turns entity mutations into envelopes and hands them to the
// notifier routed for their type. What happens on failure depends only on
// the type's DispatchMode: Async failures are logged and dropped, AwaitAck
// failures are returned wrapped in apperr.ErrDispatch.
type Dispatcher struct {
	routes  map[Type]Notifier
	metrics *obs.Metrics
}

func NewDispatcher(metrics *obs.Metrics) *Dispatcher {
	return &Dispatcher{routes: make(map[Type]Notifier), metrics: metrics}
}

// Route sends the given types through n. The notifier's mode must match the
// mode of every type.
func (d *Dispatcher) Route(n Notifier, types ...Type) error {
	for _, t := range types {
		if t.Mode() != n.Mode() {
			return fmt.Errorf("event %s needs a %s notifier, got %s", t, t.Mode(), n.Mode())
		}
		d.routes[t] = n
	}
	return nil
}

// Dispatch delivers env according to its type's mode.
func (d *Dispatcher) Dispatch(ctx context.Context, env Envelope) (Receipt, error) {
	mode := env.EventType.Mode()
	n, ok := d.routes[env.EventType]
	var (
		r   Receipt
		err error
	)
	if ok {
		r, err = n.Notify(ctx, env)
	} else {
		err = fmt.Errorf("%w: %s", ErrNoRoute, env.EventType)
	}
	if err != nil {
		d.metrics.EventsDispatched.WithLabelValues(mode.String(), string(env.EventType), "error").Inc()
		if mode == Async {
			obs.Logger.Warn("event_dispatch_dropped", "event_type", env.EventType, "error", err)
			return Receipt{Mode: Async}, nil
		}
		return Receipt{}, apperr.Dispatch(err)
	}
	d.metrics.EventsDispatched.WithLabelValues(mode.String(), string(env.EventType), "ok").Inc()
	return r, nil
}

// DispatchProduct emits a product event. It never fails: product events are
// fire-and-forget and the caller's outcome must not depend on them.
func (d *Dispatcher) DispatchProduct(ctx context.Context, t Type, p model.Product, actor, requestID string) Receipt {
	env, err := NewEnvelope(t, NewProductEvent(t, p, actor, requestID))
	if err != nil {
		obs.Logger.Warn("event_encode_failed", "event_type", t, "product_id", p.ID, "error", err)
		return Receipt{Mode: Async}
	}
	r, _ := d.Dispatch(ctx, env)
	obs.Logger.Info("product_event_sent",
		"event_type", t,
		"product_id", p.ID,
		"invocation_id", r.ID,
		"request_id", requestID,
	)
	return r
}

// DispatchOrder emits an order event and waits for the broadcast ack.
func (d *Dispatcher) DispatchOrder(ctx context.Context, t Type, o model.Order, requestID string) (Receipt, error) {
	env, err := NewEnvelope(t, NewOrderEvent(o, requestID))
	if err != nil {
		return Receipt{}, apperr.Dispatch(err)
	}
	r, err := d.Dispatch(ctx, env)
	if err != nil {
		return Receipt{}, err
	}
	obs.Logger.Info("order_event_sent",
		"event_type", t,
		"order_id", o.ID,
		"message_id", r.ID,
		"request_id", requestID,
	)
	return r, nil
}
