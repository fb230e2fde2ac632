// Package kv is the key-value table abstraction the stores are written against.
//
// Items are addressed by a composite Key (partition + sort). Tables keyed by a
// single attribute leave Sort empty. Values are opaque bytes; the stores own
// the encoding.
package kv

import (
	"context"
	"errors"
	"time"

	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/obs"
)

var (
	// ErrNotFound is returned by point reads and deletes of absent items.
	ErrNotFound = errors.New("kv: item not found")
	// ErrConditionFailed is returned by PutIfExists when the item is absent at write time.
	ErrConditionFailed = errors.New("kv: conditional check failed")
)

// Key addresses one item.
type Key struct {
	Partition string
	Sort      string
}

// Table is a queryable, mutable table keyed by a composite key.
type Table interface {
	Get(ctx context.Context, key Key) ([]byte, error)
	// BatchGet returns the values of the keys that exist, silently omitting
	// missing ones. Callers compare cardinality themselves.
	BatchGet(ctx context.Context, keys []Key) ([][]byte, error)
	Put(ctx context.Context, key Key, value []byte, opts ...PutOption) error
	// PutIfExists overwrites an existing item, or fails with ErrConditionFailed.
	PutIfExists(ctx context.Context, key Key, value []byte) error
	// Delete removes the item and returns its last value.
	Delete(ctx context.Context, key Key) ([]byte, error)
	// Query lists every item of a partition ordered by sort key.
	Query(ctx context.Context, partition string) ([][]byte, error)
	Scan(ctx context.Context) ([][]byte, error)
}

type putOptions struct {
	expiresAt time.Time
}

// PutOption customises a Put.
type PutOption func(*putOptions)

// WithExpiry makes the item invisible from t on and lets the backend reclaim it.
func WithExpiry(t time.Time) PutOption {
	return func(o *putOptions) { o.expiresAt = t }
}

func applyPutOptions(opts []PutOption) putOptions {
	var o putOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Sweeper is implemented by backends without native expiry.
type Sweeper interface {
	Sweep(now time.Time) (int, error)
}

// RunJanitor sweeps expired items every interval until ctx is done.
func RunJanitor(ctx context.Context, s Sweeper, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := s.Sweep(now)
			if err != nil {
				obs.Logger.Warn("ttl_sweep_failed", "error", err)
				continue
			}
			if n > 0 {
				obs.Logger.Debug("ttl_sweep", "expired", n)
			}
		}
	}
}
