package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/apperr"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/kv"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/model"
)

// OrderStore is keyed by (customer email, order id). List reads return an
// empty slice when nothing matches; only point reads report ErrNotFound.
type OrderStore struct {
	table kv.Table
}

func NewOrderStore(table kv.Table) *OrderStore {
	return &OrderStore{table: table}
}

func orderKey(email, orderID string) kv.Key {
	return kv.Key{Partition: email, Sort: orderID}
}

func (s *OrderStore) Create(ctx context.Context, o model.Order) (model.Order, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return model.Order{}, err
	}
	if err := s.table.Put(ctx, orderKey(o.Email, o.ID), b); err != nil {
		return model.Order{}, fmt.Errorf("put order %s: %w", o.ID, err)
	}
	return o, nil
}

func (s *OrderStore) GetAll(ctx context.Context) ([]model.Order, error) {
	raw, err := s.table.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan orders: %w", err)
	}
	return decodeAll[model.Order](raw)
}

func (s *OrderStore) GetByEmail(ctx context.Context, email string) ([]model.Order, error) {
	raw, err := s.table.Query(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("query orders of %s: %w", email, err)
	}
	return decodeAll[model.Order](raw)
}

func (s *OrderStore) GetOne(ctx context.Context, email, orderID string) (model.Order, error) {
	raw, err := s.table.Get(ctx, orderKey(email, orderID))
	if errors.Is(err, kv.ErrNotFound) {
		return model.Order{}, apperr.NotFound("order %s of %s", orderID, email)
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("get order %s: %w", orderID, err)
	}
	var o model.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return model.Order{}, fmt.Errorf("decode order %s: %w", orderID, err)
	}
	return o, nil
}

// Delete removes the order and returns the snapshot it had, for event emission.
func (s *OrderStore) Delete(ctx context.Context, email, orderID string) (model.Order, error) {
	raw, err := s.table.Delete(ctx, orderKey(email, orderID))
	if errors.Is(err, kv.ErrNotFound) {
		return model.Order{}, apperr.NotFound("order %s of %s", orderID, email)
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("delete order %s: %w", orderID, err)
	}
	var o model.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return model.Order{}, fmt.Errorf("decode order %s: %w", orderID, err)
	}
	return o, nil
}
