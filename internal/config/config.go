// Package config provides runtime configuration values for the service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Roles a single process can take. Every role maps to one handler or
// consumer of the pipeline so they can be deployed independently.
const (
	RoleProductsFetch = "products-fetch"
	RoleProductsAdmin = "products-admin"
	RoleOrders        = "orders"
	RoleOrderEvents   = "order-events"
	RoleBilling       = "billing"
)

// AllRoles is the default when SERVICE_ROLES is empty.
var AllRoles = []string{RoleProductsFetch, RoleProductsAdmin, RoleOrders, RoleOrderEvents, RoleBilling}

// Config holds configuration knobs for HTTP server, workers and backends.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogLevel        string
	Roles           []string

	InitialWorkerCount      int
	WorkerMin               int
	WorkerMax               int
	ScaleInterval           time.Duration
	ScaleUpBacklogPerWorker int
	ScaleDownIdleTicks      int
	QueueHighWatermark      int

	StoreBackend     string
	PebbleDir        string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	ProductsTable    string
	OrdersTable      string
	EventsTable      string
	TTLSweepInterval time.Duration

	BroadcastBackend      string
	KafkaBrokers          []string
	OrderEventsTopic      string
	ProductEventsFunction string

	DefaultActorEmail string
}

// HasRole reports whether the process should run the given role.
func (c Config) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durenvms(key string, defMs int) time.Duration {
	ms := atoienv(key, defMs)
	return time.Duration(ms) * time.Millisecond
}

func durenvs(key string, defSec int) time.Duration {
	sec := atoienv(key, defSec)
	return time.Duration(sec) * time.Second
}

// listenv splits a comma separated variable, dropping blanks.
func listenv(key string, def []string) []string {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// Load collects configuration from environment with defaults.
func Load() Config {
	minWorkers := atoienv("WORKER_MIN", 2)
	maxWorkers := atoienv("WORKER_MAX", 8)
	initialWorkers := atoienv("WORKER_COUNT", minWorkers)
	return Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		ShutdownTimeout: durenvs("SHUTDOWN_TIMEOUT", 15),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		Roles:           listenv("SERVICE_ROLES", AllRoles),

		InitialWorkerCount:      initialWorkers,
		WorkerMin:               minWorkers,
		WorkerMax:               maxWorkers,
		ScaleInterval:           durenvms("SCALE_INTERVAL_MS", 500),
		ScaleUpBacklogPerWorker: atoienv("SCALE_UP_BACKLOG_PER_WORKER", 50),
		ScaleDownIdleTicks:      atoienv("SCALE_DOWN_IDLE_TICKS", 6),
		QueueHighWatermark:      atoienv("QUEUE_HIGH_WATERMARK", 5000),

		StoreBackend:     strings.ToLower(getenv("STORE_BACKEND", "memory")),
		PebbleDir:        getenv("PEBBLE_DIR", "./data/ecommerce"),
		RedisAddr:        getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getenv("REDIS_PASSWORD", ""),
		RedisDB:          atoienv("REDIS_DB", 0),
		ProductsTable:    getenv("PRODUCTS_TABLE", "products"),
		OrdersTable:      getenv("ORDERS_TABLE", "orders"),
		EventsTable:      getenv("EVENTS_TABLE", "events"),
		TTLSweepInterval: durenvms("TTL_SWEEP_INTERVAL_MS", 30000),

		BroadcastBackend:      strings.ToLower(getenv("BROADCAST_BACKEND", "memory")),
		KafkaBrokers:          listenv("KAFKA_BROKERS", nil),
		OrderEventsTopic:      getenv("ORDER_EVENTS_TOPIC", "order-events"),
		ProductEventsFunction: getenv("PRODUCT_EVENTS_FUNCTION", "product-events"),

		DefaultActorEmail: getenv("DEFAULT_ACTOR_EMAIL", "admin@ecommerce.local"),
	}
}
