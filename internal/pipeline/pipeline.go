// Package pipeline assembles stores, channels, consumers and HTTP handlers
// for the roles a process runs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/billing"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/broadcast"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/config"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/events"
	httpapi "github.com/fairyhunter13/ecommerce-event-pipeline/internal/http"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/kv"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/obs"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/orders"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/products"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/queue"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/recorder"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/store"
)

// OrderEventsSubscription is the subscription the order events recorder
// consumes from.
const OrderEventsSubscription = "order-events"

type Pipeline struct {
	cfg config.Config

	Metrics  *obs.Metrics
	Manager  *queue.Manager
	Topic    broadcast.Topic
	Products *store.ProductStore
	Orders   *store.OrderStore
	Events   kv.Table
	Billing  *billing.Consumer
	App      *httpapi.App

	recorder   *recorder.Recorder
	dispatcher *events.Dispatcher
	sweepers   []kv.Sweeper
	closers    []func() error
	unsubs     []func()
}

// New builds every backend named by cfg. Nothing runs until Start.
func New(cfg config.Config) (*Pipeline, error) {
	p := &Pipeline{cfg: cfg, Metrics: obs.NewMetrics(), Billing: billing.NewConsumer()}
	if err := p.openTables(); err != nil {
		p.Close()
		return nil, err
	}
	topic, err := openTopic(cfg)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.Topic = topic

	p.Manager = queue.NewManager(cfg, queue.New(128), p.Metrics)
	p.recorder = recorder.New(store.NewEventLog(p.Events), p.Metrics)
	p.Manager.Register(cfg.ProductEventsFunction, p.recorder.InvokeFunction())

	p.dispatcher = events.NewDispatcher(p.Metrics)
	if err := p.dispatcher.Route(events.NewInvokeNotifier(p.Manager, cfg.ProductEventsFunction),
		events.ProductCreated, events.ProductUpdated, events.ProductDeleted); err != nil {
		p.Close()
		return nil, err
	}
	if err := p.dispatcher.Route(events.NewBroadcastNotifier(p.Topic), events.OrderCreated, events.OrderDeleted); err != nil {
		p.Close()
		return nil, err
	}
	p.App = httpapi.NewApp(cfg, p.Metrics, p.Manager)
	return p, nil
}

func (p *Pipeline) openTables() error {
	var productTable, orderTable kv.Table
	switch p.cfg.StoreBackend {
	case "memory":
		ev := kv.NewMemory()
		productTable, orderTable, p.Events = kv.NewMemory(), kv.NewMemory(), ev
		p.sweepers = append(p.sweepers, ev)
	case "pebble":
		db, err := kv.OpenPebble(p.cfg.PebbleDir)
		if err != nil {
			return fmt.Errorf("open pebble %s: %w", p.cfg.PebbleDir, err)
		}
		p.closers = append(p.closers, db.Close)
		p.sweepers = append(p.sweepers, db)
		productTable, orderTable, p.Events = db.Table(p.cfg.ProductsTable), db.Table(p.cfg.OrdersTable), db.Table(p.cfg.EventsTable)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     p.cfg.RedisAddr,
			Password: p.cfg.RedisPassword,
			DB:       p.cfg.RedisDB,
		})
		p.closers = append(p.closers, client.Close)
		productTable = kv.NewRedis(client, p.cfg.ProductsTable)
		orderTable = kv.NewRedis(client, p.cfg.OrdersTable)
		p.Events = kv.NewRedis(client, p.cfg.EventsTable)
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", p.cfg.StoreBackend)
	}
	p.Products = store.NewProductStore(productTable)
	p.Orders = store.NewOrderStore(orderTable)
	return nil
}

func openTopic(cfg config.Config) (broadcast.Topic, error) {
	switch cfg.BroadcastBackend {
	case "memory":
		return broadcast.NewMemoryTopic(cfg.OrderEventsTopic), nil
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("BROADCAST_BACKEND=kafka needs KAFKA_BROKERS")
		}
		return broadcast.NewKafkaTopic(cfg.KafkaBrokers, cfg.OrderEventsTopic), nil
	}
	return nil, fmt.Errorf("unknown BROADCAST_BACKEND %q", cfg.BroadcastBackend)
}

// Start runs the invoke workers, the TTL janitors and the subscriptions of
// the configured consumer roles.
func (p *Pipeline) Start(ctx context.Context) error {
	p.Manager.Start(ctx)
	for _, s := range p.sweepers {
		go kv.RunJanitor(ctx, s, p.cfg.TTLSweepInterval)
	}
	if p.cfg.HasRole(config.RoleOrderEvents) {
		unsub, err := p.Topic.Subscribe(OrderEventsSubscription, nil, p.recorder.BroadcastHandler())
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", OrderEventsSubscription, err)
		}
		p.unsubs = append(p.unsubs, unsub)
	}
	if p.cfg.HasRole(config.RoleBilling) {
		unsub, err := billing.Subscribe(p.Topic, p.Billing)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", billing.SubscriptionName, err)
		}
		p.unsubs = append(p.unsubs, unsub)
	}
	obs.Logger.Info("pipeline_started",
		"roles", p.cfg.Roles,
		"store_backend", p.cfg.StoreBackend,
		"broadcast_backend", p.cfg.BroadcastBackend,
	)
	return nil
}

// Handler mounts the HTTP groups of the configured request roles.
func (p *Pipeline) Handler() http.Handler {
	var groups []httpapi.Mounter
	if p.cfg.HasRole(config.RoleProductsFetch) {
		groups = append(groups, httpapi.NewProductsFetchHandler(p.Products))
	}
	if p.cfg.HasRole(config.RoleProductsAdmin) {
		groups = append(groups, httpapi.NewProductsAdminHandler(products.NewService(p.Products, p.dispatcher), p.cfg.DefaultActorEmail))
	}
	if p.cfg.HasRole(config.RoleOrders) {
		groups = append(groups, httpapi.NewOrdersHandler(orders.NewService(p.Products, p.Orders, p.dispatcher)))
	}
	return httpapi.NewRouter(p.App, groups...)
}

// Drain stops intake and waits for queued invocations.
func (p *Pipeline) Drain(ctx context.Context) bool {
	p.App.StartShutdown()
	return p.Manager.DrainUntil(ctx)
}

// Close stops consumers and workers and releases the backends.
func (p *Pipeline) Close() error {
	for _, unsub := range p.unsubs {
		unsub()
	}
	if p.Manager != nil {
		p.Manager.Stop()
	}
	var errs []error
	if p.Topic != nil {
		errs = append(errs, p.Topic.Close())
	}
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i]())
	}
	return errors.Join(errs...)
}
