package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"HTTP_ADDR", "SHUTDOWN_TIMEOUT", "WORKER_MIN", "WORKER_MAX", "WORKER_COUNT",
		"SCALE_INTERVAL_MS", "SCALE_UP_BACKLOG_PER_WORKER", "SCALE_DOWN_IDLE_TICKS",
		"QUEUE_HIGH_WATERMARK", "SERVICE_ROLES", "STORE_BACKEND", "BROADCAST_BACKEND",
		"KAFKA_BROKERS", "ORDER_EVENTS_TOPIC", "PRODUCT_EVENTS_FUNCTION", "TTL_SWEEP_INTERVAL_MS",
	} {
		t.Setenv(k, "")
	}
	c := Load()
	if c.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr default")
	}
	if c.ShutdownTimeout != 15*time.Second {
		t.Fatalf("ShutdownTimeout default")
	}
	if c.WorkerMin != 2 || c.WorkerMax != 8 || c.InitialWorkerCount != 2 {
		t.Fatalf("worker bounds default")
	}
	if c.ScaleInterval != 500*time.Millisecond {
		t.Fatalf("ScaleInterval default")
	}
	if c.StoreBackend != "memory" || c.BroadcastBackend != "memory" {
		t.Fatalf("backend defaults: %q %q", c.StoreBackend, c.BroadcastBackend)
	}
	if len(c.KafkaBrokers) != 0 {
		t.Fatalf("expected no brokers, got %v", c.KafkaBrokers)
	}
	if c.OrderEventsTopic != "order-events" || c.ProductEventsFunction != "product-events" {
		t.Fatalf("channel names default")
	}
	if c.TTLSweepInterval != 30*time.Second {
		t.Fatalf("TTLSweepInterval default")
	}
	for _, r := range AllRoles {
		if !c.HasRole(r) {
			t.Fatalf("expected default role %s", r)
		}
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("SHUTDOWN_TIMEOUT", "2")
	t.Setenv("WORKER_MIN", "1")
	t.Setenv("WORKER_MAX", "3")
	t.Setenv("WORKER_COUNT", "2")
	t.Setenv("SERVICE_ROLES", " products-fetch, ,orders ")
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("REDIS_DB", "4")
	t.Setenv("BROADCAST_BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	c := Load()
	if c.HTTPAddr != ":9090" {
		t.Fatalf("HTTPAddr env")
	}
	if c.ShutdownTimeout != 2*time.Second {
		t.Fatalf("ShutdownTimeout env")
	}
	if c.WorkerMin != 1 || c.WorkerMax != 3 || c.InitialWorkerCount != 2 {
		t.Fatalf("workers env")
	}
	if len(c.Roles) != 2 || !c.HasRole(RoleProductsFetch) || !c.HasRole(RoleOrders) || c.HasRole(RoleProductsAdmin) {
		t.Fatalf("roles env: %v", c.Roles)
	}
	if c.StoreBackend != "redis" || c.RedisDB != 4 {
		t.Fatalf("store env: %q %d", c.StoreBackend, c.RedisDB)
	}
	if c.BroadcastBackend != "kafka" || len(c.KafkaBrokers) != 2 || c.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("kafka env: %v", c.KafkaBrokers)
	}
}

func TestLoadInvalidNumberFallsBack(t *testing.T) {
	t.Setenv("WORKER_MAX", "many")
	c := Load()
	if c.WorkerMax != 8 {
		t.Fatalf("expected fallback to default, got %d", c.WorkerMax)
	}
}
