package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/kv"
)

// EventRecord is one audit entry. TTL is in epoch seconds; the table drops
// the record once it elapses.
type EventRecord struct {
	PK        string          `json:"pk"`
	SK        string          `json:"sk"`
	Email     string          `json:"email"`
	CreatedAt int64           `json:"createdAt"`
	RequestID string          `json:"requestId"`
	EventType string          `json:"eventType"`
	Info      json.RawMessage `json:"info"`
	TTL       int64           `json:"ttl"`
}

// EventLog is the append-only writer of the events table.
type EventLog struct {
	table kv.Table
}

func NewEventLog(table kv.Table) *EventLog {
	return &EventLog{table: table}
}

// Append writes the record with its TTL as the item expiry.
func (l *EventLog) Append(ctx context.Context, rec EventRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := kv.Key{Partition: rec.PK, Sort: rec.SK}
	if err := l.table.Put(ctx, key, b, kv.WithExpiry(time.Unix(rec.TTL, 0))); err != nil {
		return fmt.Errorf("put event %s/%s: %w", rec.PK, rec.SK, err)
	}
	return nil
}
