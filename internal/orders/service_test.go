package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/apperr"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/events"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/kv"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/model"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/store"
)

type sentEvent struct {
	t     events.Type
	order model.Order
	reqID string
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []sentEvent
	err  error
}

func (f *fakeDispatcher) DispatchOrder(_ context.Context, t events.Type, o model.Order, reqID string) (events.Receipt, error) {
	if f.err != nil {
		return events.Receipt{}, apperr.Dispatch(f.err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEvent{t: t, order: o, reqID: reqID})
	return events.Receipt{Mode: events.AwaitAck, ID: "m"}, nil
}

type fixture struct {
	svc      *Service
	products *store.ProductStore
	orders   *store.OrderStore
	disp     *fakeDispatcher
	pr01     model.Product
	pr02     model.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		products: store.NewProductStore(kv.NewMemory()),
		orders:   store.NewOrderStore(kv.NewMemory()),
		disp:     &fakeDispatcher{},
	}
	var err error
	f.pr01, err = f.products.Create(ctx, model.Product{Code: "PR01", ProductName: "Phone", Price: 1500})
	require.NoError(t, err)
	f.pr02, err = f.products.Create(ctx, model.Product{Code: "PR02", ProductName: "Case", Price: 300})
	require.NoError(t, err)
	f.svc = NewService(f.products, f.orders, f.disp)
	f.svc.now = func() time.Time { return time.UnixMilli(1700000000123) }
	return f
}

func (f *fixture) request(ids ...string) model.OrderRequest {
	return model.OrderRequest{
		Email:      "a@x.com",
		ProductsID: ids,
		Payment:    model.PaymentCreditCard,
		Shipping:   model.Shipping{Type: model.ShippingUrgent, Carrier: model.CarrierCorreios},
	}
}

func TestCreateSnapshotsPricesAndTotals(t *testing.T) {
	f := newFixture(t)
	o, err := f.svc.Create(context.Background(), f.request(f.pr01.ID, f.pr02.ID), "req-1")
	require.NoError(t, err)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, int64(1700000000123), o.CreatedAt)
	assert.Equal(t, 1800.0, o.Billing.TotalPrice)
	assert.Equal(t, model.PaymentCreditCard, o.Billing.Payment)
	assert.Equal(t, []model.OrderProduct{{Code: "PR01", Price: 1500}, {Code: "PR02", Price: 300}}, o.Products)

	stored, err := f.orders.GetOne(context.Background(), "a@x.com", o.ID)
	require.NoError(t, err)
	assert.Equal(t, o, stored)

	require.Len(t, f.disp.sent, 1)
	assert.Equal(t, events.OrderCreated, f.disp.sent[0].t)
	assert.Equal(t, o, f.disp.sent[0].order)
	assert.Equal(t, "req-1", f.disp.sent[0].reqID)
}

func TestCreateSnapshotSurvivesPriceChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.svc.Create(ctx, f.request(f.pr01.ID), "r")
	require.NoError(t, err)

	changed := f.pr01
	changed.Price = 9999
	_, err = f.products.Update(ctx, f.pr01.ID, changed)
	require.NoError(t, err)

	stored, err := f.orders.GetOne(ctx, o.Email, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, stored.Products[0].Price)
	assert.Equal(t, 1500.0, stored.Billing.TotalPrice)
}

func TestCreatePartialResolutionWritesNothing(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), f.request(f.pr01.ID, "missing"), "r")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	all, err := f.orders.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, f.disp.sent)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	req := f.request(f.pr01.ID)
	req.Payment = "BITCOIN"
	_, err := f.svc.Create(context.Background(), req, "r")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Empty(t, f.disp.sent)
}

func TestCreateDispatchFailure(t *testing.T) {
	f := newFixture(t)
	f.disp.err = errors.New("topic down")
	_, err := f.svc.Create(context.Background(), f.request(f.pr01.ID), "r")
	assert.ErrorIs(t, err, apperr.ErrDispatch)
}

func TestDeleteMissingOrderEmitsNothing(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Delete(context.Background(), "a@x.com", "nope", "r")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Empty(t, f.disp.sent)
}

func TestDeleteEmitsSnapshotOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.svc.Create(ctx, f.request(f.pr01.ID, f.pr02.ID), "r1")
	require.NoError(t, err)

	deleted, err := f.svc.Delete(ctx, o.Email, o.ID, "r2")
	require.NoError(t, err)
	assert.Equal(t, o, deleted)

	require.Len(t, f.disp.sent, 2)
	assert.Equal(t, events.OrderDeleted, f.disp.sent[1].t)
	assert.Equal(t, o, f.disp.sent[1].order)

	_, err = f.orders.GetOne(ctx, o.Email, o.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListShapes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.svc.Create(ctx, f.request(f.pr01.ID), "r")
	require.NoError(t, err)
	req := f.request(f.pr02.ID)
	req.Email = "b@x.com"
	_, err = f.svc.Create(ctx, req, "r")
	require.NoError(t, err)

	all, err := f.svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := f.svc.List(ctx, "a@x.com")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a.ID, mine[0].ID)

	none, err := f.svc.List(ctx, "nobody@x.com")
	require.NoError(t, err)
	assert.Empty(t, none)

	one, err := f.svc.Get(ctx, "a@x.com", a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, one)

	_, err = f.svc.Get(ctx, "", a.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestConcurrentOrdersOnSameProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Create(ctx, f.request(f.pr01.ID), "r")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	all, err := f.orders.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Len(t, all, 20)
}
