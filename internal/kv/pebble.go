package kv

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

// PebbleDB is one embedded pebble database hosting several tables.
type PebbleDB struct {
	db *pebble.DB
	// serialises read-modify-write operations; pebble has no conditional writes.
	mu  sync.Mutex
	now func() time.Time
}

// OpenPebble opens (or creates) the database under dir.
func OpenPebble(dir string) (*PebbleDB, error) {
	opts := &pebble.Options{
		MemTableSize:          64 << 20,
		L0CompactionThreshold: 4,
		L0StopWritesThreshold: 12,
		WALBytesPerSync:       1 << 20,
	}
	d, err := pebble.Open(filepath.Clean(dir), opts)
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleDB{db: d, now: time.Now}, nil
}

func (p *PebbleDB) Close() error { return p.db.Close() }

// Table returns a view scoped to name. Views share the database and its lock.
func (p *PebbleDB) Table(name string) *PebbleTable {
	return &PebbleTable{p: p, name: name}
}

// Sweep removes expired items of every table.
func (p *PebbleDB) Sweep(now time.Time) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	it, err := p.db.NewIter(nil)
	if err != nil {
		return 0, err
	}
	var expired [][]byte
	for it.First(); it.Valid(); it.Next() {
		if exp, _ := decodePebbleValue(it.Value()); isExpired(exp, now) {
			expired = append(expired, append([]byte(nil), it.Key()...))
		}
	}
	if err := it.Close(); err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}
	b := p.db.NewBatch()
	defer b.Close()
	for _, k := range expired {
		if err := b.Delete(k, nil); err != nil {
			return 0, err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, err
	}
	return len(expired), nil
}

// PebbleTable implements Table on a key prefix of a PebbleDB.
//
// Layout: esc(name) esc(partition) esc(sort) -> expiry(8 bytes, unix seconds, 0 = none) value,
// where esc writes every 0x00 as 0x00 0xff and ends the component with 0x00 0x01.
type PebbleTable struct {
	p    *PebbleDB
	name string
}

// appendComponent keeps components prefix-free so no partition can sort
// inside another one's range.
func appendComponent(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		dst = append(dst, s[i])
		if s[i] == 0 {
			dst = append(dst, 0xff)
		}
	}
	return append(dst, 0, 1)
}

func (t *PebbleTable) encodeKey(k Key) []byte {
	out := make([]byte, 0, len(t.name)+len(k.Partition)+len(k.Sort)+6)
	out = appendComponent(out, t.name)
	out = appendComponent(out, k.Partition)
	return appendComponent(out, k.Sort)
}

// prefixBounds covers every key starting with prefix, which ends in 0x00 0x01.
func prefixBounds(prefix []byte) (lower, upper []byte) {
	upper = append([]byte(nil), prefix...)
	upper[len(upper)-1]++
	return prefix, upper
}

func (t *PebbleTable) partitionBounds(partition string) (lower, upper []byte) {
	return prefixBounds(appendComponent(appendComponent(nil, t.name), partition))
}

func (t *PebbleTable) tableBounds() (lower, upper []byte) {
	return prefixBounds(appendComponent(nil, t.name))
}

func encodePebbleValue(value []byte, expiresAt time.Time) []byte {
	out := make([]byte, 8, 8+len(value))
	if !expiresAt.IsZero() {
		binary.BigEndian.PutUint64(out, uint64(expiresAt.Unix()))
	}
	return append(out, value...)
}

func decodePebbleValue(raw []byte) (expiresAt int64, value []byte) {
	if len(raw) < 8 {
		return 0, nil
	}
	return int64(binary.BigEndian.Uint64(raw[:8])), raw[8:]
}

func isExpired(expiresAt int64, now time.Time) bool {
	return expiresAt != 0 && now.Unix() >= expiresAt
}

// read returns the live value and its raw expiry, or ErrNotFound.
func (t *PebbleTable) read(k []byte) ([]byte, int64, error) {
	raw, closer, err := t.p.db.Get(k)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	defer closer.Close()
	exp, v := decodePebbleValue(raw)
	if isExpired(exp, t.p.now()) {
		return nil, 0, ErrNotFound
	}
	return append([]byte(nil), v...), exp, nil
}

func (t *PebbleTable) Get(_ context.Context, key Key) ([]byte, error) {
	v, _, err := t.read(t.encodeKey(key))
	return v, err
}

func (t *PebbleTable) BatchGet(_ context.Context, keys []Key) ([][]byte, error) {
	var out [][]byte
	for _, k := range keys {
		v, _, err := t.read(t.encodeKey(k))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (t *PebbleTable) Put(_ context.Context, key Key, value []byte, opts ...PutOption) error {
	o := applyPutOptions(opts)
	t.p.mu.Lock()
	defer t.p.mu.Unlock()
	return t.p.db.Set(t.encodeKey(key), encodePebbleValue(value, o.expiresAt), pebble.Sync)
}

func (t *PebbleTable) PutIfExists(_ context.Context, key Key, value []byte) error {
	k := t.encodeKey(key)
	t.p.mu.Lock()
	defer t.p.mu.Unlock()
	_, exp, err := t.read(k)
	if errors.Is(err, ErrNotFound) {
		return ErrConditionFailed
	}
	if err != nil {
		return err
	}
	var expiresAt time.Time
	if exp != 0 {
		expiresAt = time.Unix(exp, 0)
	}
	return t.p.db.Set(k, encodePebbleValue(value, expiresAt), pebble.Sync)
}

func (t *PebbleTable) Delete(_ context.Context, key Key) ([]byte, error) {
	k := t.encodeKey(key)
	t.p.mu.Lock()
	defer t.p.mu.Unlock()
	v, _, err := t.read(k)
	if err != nil {
		return nil, err
	}
	if err := t.p.db.Delete(k, pebble.Sync); err != nil {
		return nil, err
	}
	return v, nil
}

func (t *PebbleTable) Query(_ context.Context, partition string) ([][]byte, error) {
	lower, upper := t.partitionBounds(partition)
	return t.iterate(lower, upper)
}

func (t *PebbleTable) Scan(_ context.Context) ([][]byte, error) {
	lower, upper := t.tableBounds()
	return t.iterate(lower, upper)
}

func (t *PebbleTable) iterate(lower, upper []byte) ([][]byte, error) {
	it, err := t.p.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	now := t.p.now()
	out := [][]byte{}
	for it.First(); it.Valid(); it.Next() {
		exp, v := decodePebbleValue(it.Value())
		if isExpired(exp, now) {
			continue
		}
		out = append(out, append([]byte(nil), v...))
	}
	if err := it.Close(); err != nil {
		return nil, err
	}
	return out, nil
}
