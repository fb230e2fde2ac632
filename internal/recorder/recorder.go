// Package recorder writes lifecycle events into the events table as
// short-lived audit records.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/broadcast"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/events"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/obs"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/queue"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/store"
)

// RecordTTL is how long an audit record stays readable.
const RecordTTL = 5 * time.Minute

type productInfo struct {
	ProductID string  `json:"productId"`
	Price     float64 `json:"price"`
}

type orderInfo struct {
	OrderID      string   `json:"orderId"`
	ProductCodes []string `json:"productCodes"`
	MessageID    string   `json:"messageId"`
}

// Recorder builds one EventRecord per envelope. It never reads the table.
type Recorder struct {
	log     *store.EventLog
	metrics *obs.Metrics
	now     func() time.Time
}

func New(log *store.EventLog, metrics *obs.Metrics) *Recorder {
	return &Recorder{log: log, metrics: metrics, now: time.Now}
}

// Record writes env. messageID is the transport id of a broadcast delivery
// and is empty for invoked product events.
func (r *Recorder) Record(ctx context.Context, env events.Envelope, messageID string) (store.EventRecord, error) {
	subject, ok := env.EventType.Subject()
	if !ok {
		return store.EventRecord{}, fmt.Errorf("record: unknown event type %q", env.EventType)
	}
	rec, err := r.build(subject, env, messageID)
	if err != nil {
		r.metrics.RecordsWritten.WithLabelValues(string(subject), "error").Inc()
		return store.EventRecord{}, err
	}
	if err := r.log.Append(ctx, rec); err != nil {
		r.metrics.RecordsWritten.WithLabelValues(string(subject), "error").Inc()
		return store.EventRecord{}, err
	}
	r.metrics.RecordsWritten.WithLabelValues(string(subject), "ok").Inc()
	obs.Logger.Info("event_recorded",
		"pk", rec.PK,
		"sk", rec.SK,
		"request_id", rec.RequestID,
		"message_id", messageID,
	)
	return rec, nil
}

func (r *Recorder) build(subject events.Subject, env events.Envelope, messageID string) (store.EventRecord, error) {
	now := r.now()
	rec := store.EventRecord{
		SK:        fmt.Sprintf("%s#%d", env.EventType, now.UnixMilli()),
		CreatedAt: now.UnixMilli(),
		EventType: string(env.EventType),
		TTL:       now.Add(RecordTTL).Unix(),
	}
	var info any
	switch subject {
	case events.SubjectProduct:
		var ev events.ProductEvent
		if err := env.Decode(&ev); err != nil {
			return store.EventRecord{}, err
		}
		rec.PK = "#product_" + ev.ProductCode
		rec.Email = ev.Email
		rec.RequestID = ev.RequestID
		info = productInfo{ProductID: ev.ProductID, Price: ev.ProductPrice}
	case events.SubjectOrder:
		var ev events.OrderEvent
		if err := env.Decode(&ev); err != nil {
			return store.EventRecord{}, err
		}
		rec.PK = "#order_" + ev.OrderID
		rec.Email = ev.Email
		rec.RequestID = ev.RequestID
		info = orderInfo{OrderID: ev.OrderID, ProductCodes: ev.ProductCodes, MessageID: messageID}
	}
	b, err := json.Marshal(info)
	if err != nil {
		return store.EventRecord{}, err
	}
	rec.Info = b
	return rec, nil
}

// InvokeFunction adapts the recorder to an invoke target.
func (r *Recorder) InvokeFunction() queue.Function {
	return func(ctx context.Context, inv queue.Invocation) error {
		env, err := events.ParseEnvelope(inv.Payload)
		if err != nil {
			return err
		}
		_, err = r.Record(ctx, env, "")
		return err
	}
}

// BroadcastHandler adapts the recorder to a topic subscription.
func (r *Recorder) BroadcastHandler() broadcast.Handler {
	return func(ctx context.Context, msg broadcast.Message) error {
		env, err := events.ParseEnvelope(msg.Body)
		if err != nil {
			return err
		}
		_, err = r.Record(ctx, env, msg.ID)
		return err
	}
}
