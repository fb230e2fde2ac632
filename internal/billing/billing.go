// Package billing consumes created orders from the order events topic.
package billing

import (
	"context"
	"sync/atomic"

	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/broadcast"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/events"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/obs"
)

// SubscriptionName is the consumer group / subscription of the billing role.
const SubscriptionName = "billing"

// Filter admits only ORDER_CREATED; deletions never reach billing.
var Filter = broadcast.Filter{events.AttrEventType: {string(events.OrderCreated)}}

// Consumer logs every created order it receives.
type Consumer struct {
	handled atomic.Uint64
}

func NewConsumer() *Consumer { return &Consumer{} }

// Handle is the broadcast handler of the billing subscription.
func (c *Consumer) Handle(_ context.Context, msg broadcast.Message) error {
	env, err := events.ParseEnvelope(msg.Body)
	if err != nil {
		return err
	}
	var ev events.OrderEvent
	if err := env.Decode(&ev); err != nil {
		return err
	}
	c.handled.Add(1)
	obs.Logger.Info("billing_order_received",
		"message_id", msg.ID,
		"event_type", env.EventType,
		"order_id", ev.OrderID,
		"email", ev.Email,
		"payment", ev.Billing.Payment,
		"total_price", ev.Billing.TotalPrice,
		"request_id", ev.RequestID,
	)
	return nil
}

// Handled is the number of orders processed so far.
func (c *Consumer) Handled() uint64 { return c.handled.Load() }

// Subscribe attaches c to topic with the billing filter.
func Subscribe(topic broadcast.Subscriber, c *Consumer) (func(), error) {
	return topic.Subscribe(SubscriptionName, Filter, c.Handle)
}
