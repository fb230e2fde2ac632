// Package products implements catalog administration. Every successful
// mutation emits a product event fire-and-forget; reads go straight to a
// store.ProductReader.
package products

import (
	"context"

	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/events"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/model"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/obs"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/store"
)

// Dispatcher emits product events. It cannot fail the caller.
type Dispatcher interface {
	DispatchProduct(ctx context.Context, t events.Type, p model.Product, actor, requestID string) events.Receipt
}

// Actor identifies who performed a mutation, for the event payload.
type Actor struct {
	Email     string
	RequestID string
}

type Service struct {
	store      store.ProductWriter
	dispatcher Dispatcher
}

func NewService(w store.ProductWriter, d Dispatcher) *Service {
	return &Service{store: w, dispatcher: d}
}

func (s *Service) Create(ctx context.Context, in model.ProductInput, a Actor) (model.Product, error) {
	if err := in.Validate(); err != nil {
		return model.Product{}, err
	}
	p, err := s.store.Create(ctx, in.Product())
	if err != nil {
		return model.Product{}, err
	}
	obs.Logger.Info("product_created", "product_id", p.ID, "code", p.Code, "request_id", a.RequestID)
	s.dispatcher.DispatchProduct(ctx, events.ProductCreated, p, a.Email, a.RequestID)
	return p, nil
}

// Update replaces the product if it still exists. A concurrent delete
// surfaces as apperr.ErrConditionFailed.
func (s *Service) Update(ctx context.Context, id string, in model.ProductInput, a Actor) (model.Product, error) {
	if err := in.Validate(); err != nil {
		return model.Product{}, err
	}
	p, err := s.store.Update(ctx, id, in.Product())
	if err != nil {
		return model.Product{}, err
	}
	obs.Logger.Info("product_updated", "product_id", p.ID, "code", p.Code, "request_id", a.RequestID)
	s.dispatcher.DispatchProduct(ctx, events.ProductUpdated, p, a.Email, a.RequestID)
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id string, a Actor) (model.Product, error) {
	p, err := s.store.Delete(ctx, id)
	if err != nil {
		return model.Product{}, err
	}
	obs.Logger.Info("product_deleted", "product_id", p.ID, "code", p.Code, "request_id", a.RequestID)
	s.dispatcher.DispatchProduct(ctx, events.ProductDeleted, p, a.Email, a.RequestID)
	return p, nil
}
