// Package events defines the lifecycle event protocol and how events reach
// their consumers.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/model"
)

// Type is the envelope discriminant.
type Type string

const (
	ProductCreated Type = "PRODUCT_CREATED"
	ProductUpdated Type = "PRODUCT_UPDATED"
	ProductDeleted Type = "PRODUCT_DELETED"

	OrderCreated Type = "ORDER_CREATED"
	OrderDeleted Type = "ORDER_DELETED"
)

// AttrEventType is the transport attribute carrying the discriminant, so
// broadcast subscribers can filter without reading the payload.
const AttrEventType = "eventType"

// Subject is the entity family an event type belongs to.
type Subject string

const (
	SubjectProduct Subject = "product"
	SubjectOrder   Subject = "order"
)

func (t Type) Subject() (Subject, bool) {
	switch t {
	case ProductCreated, ProductUpdated, ProductDeleted:
		return SubjectProduct, true
	case OrderCreated, OrderDeleted:
		return SubjectOrder, true
	}
	return "", false
}

// Envelope wraps a serialized payload with its discriminant.
type Envelope struct {
	EventType Type   `json:"eventType"`
	Data      string `json:"data"`
}

// NewEnvelope serializes payload into Data.
func NewEnvelope(t Type, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Envelope{EventType: t, Data: string(b)}, nil
}

// Decode unmarshals Data into v.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal([]byte(e.Data), v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	return nil
}

// ParseEnvelope decodes a wire envelope and rejects unknown discriminants.
func ParseEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if _, ok := env.EventType.Subject(); !ok {
		return Envelope{}, fmt.Errorf("unknown event type %q", env.EventType)
	}
	return env, nil
}

// ProductEvent is the payload of product lifecycle events.
type ProductEvent struct {
	RequestID    string  `json:"requestId"`
	EventType    Type    `json:"eventType"`
	ProductID    string  `json:"productId"`
	ProductCode  string  `json:"productCode"`
	ProductPrice float64 `json:"productPrice"`
	Email        string  `json:"email"`
}

func NewProductEvent(t Type, p model.Product, actor, requestID string) ProductEvent {
	return ProductEvent{
		RequestID:    requestID,
		EventType:    t,
		ProductID:    p.ID,
		ProductCode:  p.Code,
		ProductPrice: p.Price,
		Email:        actor,
	}
}

// OrderEvent is the payload of order lifecycle events.
type OrderEvent struct {
	Email        string         `json:"email"`
	OrderID      string         `json:"orderId"`
	Billing      model.Billing  `json:"billing"`
	Shipping     model.Shipping `json:"shipping"`
	ProductCodes []string       `json:"productCodes"`
	RequestID    string         `json:"requestId"`
}

func NewOrderEvent(o model.Order, requestID string) OrderEvent {
	return OrderEvent{
		Email:        o.Email,
		OrderID:      o.ID,
		Billing:      o.Billing,
		Shipping:     o.Shipping,
		ProductCodes: o.ProductCodes(),
		RequestID:    requestID,
	}
}
