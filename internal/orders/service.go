// Package orders implements order placement, lookup and cancellation.
package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/apperr"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/events"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/model"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/obs"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/store"
)

// Repository is the order persistence the service needs.
type Repository interface {
	Create(ctx context.Context, o model.Order) (model.Order, error)
	GetAll(ctx context.Context) ([]model.Order, error)
	GetByEmail(ctx context.Context, email string) ([]model.Order, error)
	GetOne(ctx context.Context, email, orderID string) (model.Order, error)
	Delete(ctx context.Context, email, orderID string) (model.Order, error)
}

// Dispatcher publishes order lifecycle events and waits for the ack.
type Dispatcher interface {
	DispatchOrder(ctx context.Context, t events.Type, o model.Order, requestID string) (events.Receipt, error)
}

type Service struct {
	products   store.ProductReader
	orders     Repository
	dispatcher Dispatcher
	newID      func() string
	now        func() time.Time
}

func NewService(products store.ProductReader, orders Repository, dispatcher Dispatcher) *Service {
	return &Service{
		products:   products,
		orders:     orders,
		dispatcher: dispatcher,
		newID:      uuid.NewString,
		now:        time.Now,
	}
}

// Create places an order. Every requested product must exist: a partial
// match fails with apperr.ErrNotFound before anything is written. The
// order is persisted and ORDER_CREATED is published concurrently; both
// must finish before Create returns.
func (s *Service) Create(ctx context.Context, req model.OrderRequest, requestID string) (model.Order, error) {
	if err := req.Validate(); err != nil {
		return model.Order{}, err
	}
	found, err := s.products.GetByIDs(ctx, req.ProductsID)
	if err != nil {
		return model.Order{}, err
	}
	if len(found) != len(req.ProductsID) {
		return model.Order{}, apperr.NotFound("%d of %d products", len(req.ProductsID)-len(found), len(req.ProductsID))
	}
	o := s.build(req, found)

	var g errgroup.Group
	g.Go(func() error {
		_, err := s.orders.Create(ctx, o)
		return err
	})
	g.Go(func() error {
		_, err := s.dispatcher.DispatchOrder(ctx, events.OrderCreated, o, requestID)
		return err
	})
	if err := g.Wait(); err != nil {
		obs.Logger.Error("order_create_failed", "order_id", o.ID, "request_id", requestID, "error", err)
		return model.Order{}, err
	}
	obs.Logger.Info("order_created",
		"order_id", o.ID,
		"email", o.Email,
		"total_price", o.Billing.TotalPrice,
		"request_id", requestID,
	)
	return o, nil
}

// build snapshots code and price of each product in request order.
func (s *Service) build(req model.OrderRequest, found []model.Product) model.Order {
	byID := make(map[string]model.Product, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	o := model.Order{
		Email:     req.Email,
		ID:        s.newID(),
		CreatedAt: s.now().UnixMilli(),
		Billing:   model.Billing{Payment: req.Payment},
		Shipping:  req.Shipping,
		Products:  make([]model.OrderProduct, 0, len(req.ProductsID)),
	}
	for _, id := range req.ProductsID {
		p := byID[id]
		o.Products = append(o.Products, model.OrderProduct{Code: p.Code, Price: p.Price})
		o.Billing.TotalPrice += p.Price
	}
	return o
}

// Delete removes the order and publishes ORDER_DELETED with the removed
// snapshot. An absent order publishes nothing.
func (s *Service) Delete(ctx context.Context, email, orderID, requestID string) (model.Order, error) {
	if email == "" || orderID == "" {
		return model.Order{}, apperr.Validation("email and orderId are required")
	}
	o, err := s.orders.Delete(ctx, email, orderID)
	if err != nil {
		return model.Order{}, err
	}
	if _, err := s.dispatcher.DispatchOrder(ctx, events.OrderDeleted, o, requestID); err != nil {
		obs.Logger.Error("order_delete_event_failed", "order_id", o.ID, "request_id", requestID, "error", err)
		return model.Order{}, fmt.Errorf("order %s deleted: %w", o.ID, err)
	}
	obs.Logger.Info("order_deleted", "order_id", o.ID, "email", o.Email, "request_id", requestID)
	return o, nil
}

// List returns every order, or the orders of one customer when email is set.
func (s *Service) List(ctx context.Context, email string) ([]model.Order, error) {
	if email == "" {
		return s.orders.GetAll(ctx)
	}
	return s.orders.GetByEmail(ctx, email)
}

// Get returns one order of a customer.
func (s *Service) Get(ctx context.Context, email, orderID string) (model.Order, error) {
	if email == "" {
		return model.Order{}, apperr.Validation("email is required with orderId")
	}
	return s.orders.GetOne(ctx, email, orderID)
}
