package kv

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Memory is a process-local Table guarded by a RWMutex.
type Memory struct {
	mu    sync.RWMutex
	parts map[string]map[string]memEntry
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{parts: make(map[string]map[string]memEntry), now: time.Now}
}

func (m *Memory) lookup(key Key, now time.Time) (memEntry, bool) {
	e, ok := m.parts[key.Partition][key.Sort]
	if !ok || e.expired(now) {
		return memEntry{}, false
	}
	return e, true
}

func (m *Memory) Get(_ context.Context, key Key) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.lookup(key, m.now())
	if !ok {
		return nil, ErrNotFound
	}
	return clone(e.value), nil
}

func (m *Memory) BatchGet(_ context.Context, keys []Key) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	var out [][]byte
	for _, k := range keys {
		if e, ok := m.lookup(k, now); ok {
			out = append(out, clone(e.value))
		}
	}
	return out, nil
}

func (m *Memory) Put(_ context.Context, key Key, value []byte, opts ...PutOption) error {
	o := applyPutOptions(opts)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(key, memEntry{value: clone(value), expiresAt: o.expiresAt})
	return nil
}

func (m *Memory) set(key Key, e memEntry) {
	p, ok := m.parts[key.Partition]
	if !ok {
		p = make(map[string]memEntry)
		m.parts[key.Partition] = p
	}
	p[key.Sort] = e
}

func (m *Memory) PutIfExists(_ context.Context, key Key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.lookup(key, m.now())
	if !ok {
		return ErrConditionFailed
	}
	m.set(key, memEntry{value: clone(value), expiresAt: cur.expiresAt})
	return nil
}

func (m *Memory) Delete(_ context.Context, key Key) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(key, m.now())
	if !ok {
		return nil, ErrNotFound
	}
	m.remove(key)
	return e.value, nil
}

func (m *Memory) remove(key Key) {
	p := m.parts[key.Partition]
	delete(p, key.Sort)
	if len(p) == 0 {
		delete(m.parts, key.Partition)
	}
}

func (m *Memory) Query(_ context.Context, partition string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(partition, m.now()), nil
}

func (m *Memory) collect(partition string, now time.Time) [][]byte {
	p := m.parts[partition]
	sorts := make([]string, 0, len(p))
	for s, e := range p {
		if !e.expired(now) {
			sorts = append(sorts, s)
		}
	}
	sort.Strings(sorts)
	out := make([][]byte, 0, len(sorts))
	for _, s := range sorts {
		out = append(out, clone(p[s].value))
	}
	return out
}

func (m *Memory) Scan(_ context.Context) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	partitions := make([]string, 0, len(m.parts))
	for p := range m.parts {
		partitions = append(partitions, p)
	}
	sort.Strings(partitions)
	out := [][]byte{}
	for _, p := range partitions {
		out = append(out, m.collect(p, now)...)
	}
	return out, nil
}

// Sweep drops items whose expiry is at or before now.
func (m *Memory) Sweep(now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for pk, p := range m.parts {
		for sk, e := range p {
			if e.expired(now) {
				m.remove(Key{Partition: pk, Sort: sk})
				n++
			}
		}
	}
	return n, nil
}

// Len counts stored items including expired ones not yet swept.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.parts {
		n += len(p)
	}
	return n
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
