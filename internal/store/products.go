// Package store adapts kv tables to the product, order and event log entities.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/apperr"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/kv"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/model"
)

// ProductReader is the read-only view of the products table. Handlers that
// must not mutate products depend on this interface only.
type ProductReader interface {
	GetAll(ctx context.Context) ([]model.Product, error)
	GetByID(ctx context.Context, id string) (model.Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]model.Product, error)
}

// ProductWriter is the mutating view used by the admin handler.
type ProductWriter interface {
	Create(ctx context.Context, p model.Product) (model.Product, error)
	Update(ctx context.Context, id string, p model.Product) (model.Product, error)
	Delete(ctx context.Context, id string) (model.Product, error)
}

// ProductStore is keyed by product id.
type ProductStore struct {
	table kv.Table
	newID func() string
}

func NewProductStore(table kv.Table) *ProductStore {
	return &ProductStore{table: table, newID: uuid.NewString}
}

func productKey(id string) kv.Key { return kv.Key{Partition: id} }

func (s *ProductStore) GetAll(ctx context.Context) ([]model.Product, error) {
	raw, err := s.table.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan products: %w", err)
	}
	return decodeAll[model.Product](raw)
}

func (s *ProductStore) GetByID(ctx context.Context, id string) (model.Product, error) {
	raw, err := s.table.Get(ctx, productKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return model.Product{}, apperr.NotFound("product %s", id)
	}
	if err != nil {
		return model.Product{}, fmt.Errorf("get product %s: %w", id, err)
	}
	var p model.Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.Product{}, fmt.Errorf("decode product %s: %w", id, err)
	}
	return p, nil
}

// GetByIDs returns only the products found; missing ids are omitted.
func (s *ProductStore) GetByIDs(ctx context.Context, ids []string) ([]model.Product, error) {
	keys := make([]kv.Key, len(ids))
	for i, id := range ids {
		keys[i] = productKey(id)
	}
	raw, err := s.table.BatchGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("batch get products: %w", err)
	}
	return decodeAll[model.Product](raw)
}

// Create assigns a fresh id, overwriting whatever the caller supplied.
func (s *ProductStore) Create(ctx context.Context, p model.Product) (model.Product, error) {
	p.ID = s.newID()
	b, err := json.Marshal(p)
	if err != nil {
		return model.Product{}, err
	}
	if err := s.table.Put(ctx, productKey(p.ID), b); err != nil {
		return model.Product{}, fmt.Errorf("put product %s: %w", p.ID, err)
	}
	return p, nil
}

// Update overwrites the product only if it still exists at write time.
// A missing product yields apperr.ErrConditionFailed, not ErrNotFound.
func (s *ProductStore) Update(ctx context.Context, id string, p model.Product) (model.Product, error) {
	p.ID = id
	b, err := json.Marshal(p)
	if err != nil {
		return model.Product{}, err
	}
	err = s.table.PutIfExists(ctx, productKey(id), b)
	if errors.Is(err, kv.ErrConditionFailed) {
		return model.Product{}, fmt.Errorf("update product %s: %w", id, apperr.ErrConditionFailed)
	}
	if err != nil {
		return model.Product{}, fmt.Errorf("update product %s: %w", id, err)
	}
	return p, nil
}

// Delete removes the product and returns the deleted snapshot.
func (s *ProductStore) Delete(ctx context.Context, id string) (model.Product, error) {
	raw, err := s.table.Delete(ctx, productKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return model.Product{}, apperr.NotFound("product %s", id)
	}
	if err != nil {
		return model.Product{}, fmt.Errorf("delete product %s: %w", id, err)
	}
	var p model.Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.Product{}, fmt.Errorf("decode product %s: %w", id, err)
	}
	return p, nil
}

func decodeAll[T any](raw [][]byte) ([]T, error) {
	out := make([]T, 0, len(raw))
	for _, b := range raw {
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, fmt.Errorf("decode item: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}
