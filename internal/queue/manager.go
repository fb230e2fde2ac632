// Package queue implements an in-memory invocation queue and the worker
// manager that runs registered functions asynchronously.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/config"
	"github.com/fairyhunter13/ecommerce-event-pipeline/internal/obs"
)

var (
	// ErrUnknownTarget is returned by Invoke for an unregistered function.
	ErrUnknownTarget = errors.New("queue: unknown invoke target")
	// ErrIntakeClosed is returned by Invoke once shutdown began.
	ErrIntakeClosed = errors.New("queue: intake closed")
)

// Function is the body of an asynchronously invoked target.
type Function func(ctx context.Context, inv Invocation) error

// Manager coordinates workers running queued invocations and scaling.
type Manager struct {
	cfg     config.Config
	q       *Queue
	metrics *obs.Metrics
	seq     Sequencer
	ctx     context.Context
	cancel  context.CancelFunc

	fnMu sync.RWMutex
	fns  map[string]Function

	mu            sync.Mutex
	workerCancels []context.CancelFunc
}

// NewManager constructs a Manager with the given config, queue, and metrics.
func NewManager(cfg config.Config, q *Queue, metrics *obs.Metrics) *Manager {
	return &Manager{cfg: cfg, q: q, metrics: metrics, fns: make(map[string]Function)}
}

// Register binds a function to a target name. Later registrations replace
// earlier ones.
func (m *Manager) Register(target string, fn Function) {
	m.fnMu.Lock()
	defer m.fnMu.Unlock()
	m.fns[target] = fn
}

func (m *Manager) function(target string) (Function, bool) {
	m.fnMu.RLock()
	defer m.fnMu.RUnlock()
	fn, ok := m.fns[target]
	return fn, ok
}

// Invoke accepts payload for target and returns the invocation id. It does
// not wait for the function to run.
func (m *Manager) Invoke(_ context.Context, target string, payload []byte) (string, error) {
	if _, ok := m.function(target); !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTarget, target)
	}
	inv := Invocation{
		ID:      uuid.NewString(),
		Seq:     m.seq.Next(),
		Target:  target,
		Payload: append([]byte(nil), payload...),
	}
	if !m.q.Enqueue(inv) {
		return "", ErrIntakeClosed
	}
	m.metrics.InvokeBacklog.Set(float64(m.q.QueueDepth()))
	return inv.ID, nil
}

// Start begins processing and autoscaling in the background.
func (m *Manager) Start(parent context.Context) {
	m.ctx, m.cancel = context.WithCancel(parent)
	m.q.Start(m.ctx, m.cfg.QueueHighWatermark)
	m.addWorkers(m.cfg.InitialWorkerCount)
	go m.scaler()
}

// Stop cancels background routines and stops workers.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Lock()
	for _, c := range m.workerCancels {
		c()
	}
	m.workerCancels = nil
	m.mu.Unlock()
}

// scaler adjusts worker count based on backlog and configuration.
func (m *Manager) scaler() {
	t := time.NewTicker(m.cfg.ScaleInterval)
	defer t.Stop()
	idleTicks := 0
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-t.C:
			backlog := m.q.BacklogSize()
			wc := m.WorkerCount()
			if backlog > wc*m.cfg.ScaleUpBacklogPerWorker && wc < m.cfg.WorkerMax {
				m.addWorkers(1)
				idleTicks = 0
				continue
			}
			if backlog == 0 {
				idleTicks++
				if idleTicks >= m.cfg.ScaleDownIdleTicks && wc > m.cfg.WorkerMin {
					m.removeWorkers(1)
					idleTicks = 0
				}
			} else {
				idleTicks = 0
			}
		}
	}
}

// addWorkers spawns n workers.
func (m *Manager) addWorkers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		wctx, cancel := context.WithCancel(m.ctx)
		m.workerCancels = append(m.workerCancels, cancel)
		go m.worker(wctx)
	}
	obs.Logger.Info("workers_scaled", "worker_count", len(m.workerCancels))
}

// removeWorkers stops up to n workers.
func (m *Manager) removeWorkers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > len(m.workerCancels) {
		n = len(m.workerCancels)
	}
	for i := 0; i < n; i++ {
		c := m.workerCancels[len(m.workerCancels)-1]
		m.workerCancels = m.workerCancels[:len(m.workerCancels)-1]
		c()
	}
	obs.Logger.Info("workers_scaled", "worker_count", len(m.workerCancels))
}

// worker drains invocations from the queue and runs their function.
func (m *Manager) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case inv := <-m.q.Out():
			m.run(inv)
			m.q.MarkProcessed()
			m.metrics.InvokeBacklog.Set(float64(m.q.QueueDepth()))
		}
	}
}

// run executes one invocation on the manager context, so scaling a worker
// down does not abort the call it already picked up.
func (m *Manager) run(inv Invocation) {
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			obs.Logger.Error("invocation_panicked", "target", inv.Target, "invocation_id", inv.ID, "panic", fmt.Sprint(r))
		}
		m.metrics.Invocations.WithLabelValues(inv.Target, outcome).Inc()
	}()
	fn, ok := m.function(inv.Target)
	if !ok {
		outcome = "unknown_target"
		obs.Logger.Error("invocation_dropped", "target", inv.Target, "invocation_id", inv.ID)
		return
	}
	if err := fn(m.ctx, inv); err != nil {
		outcome = "error"
		obs.Logger.Error("invocation_failed",
			"target", inv.Target,
			"invocation_id", inv.ID,
			"seq", inv.Seq,
			"error", err,
		)
	}
}

// BacklogSize returns pending items in the queue.
func (m *Manager) BacklogSize() int { return m.q.BacklogSize() }

// QueueDepth returns backlog plus buffered output items.
func (m *Manager) QueueDepth() int { return m.q.QueueDepth() }

// WorkerCount returns the current number of workers.
func (m *Manager) WorkerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workerCancels)
}

// IsShuttingDown reports whether new invocations are rejected.
func (m *Manager) IsShuttingDown() bool { return m.q.IsShuttingDown() }

// CloseIntake disallows future invocations.
func (m *Manager) CloseIntake() { m.q.CloseIntake() }

// Stats exposes the underlying queue counters.
func (m *Manager) Stats() Stats { return m.q.Stats() }

// DrainUntil blocks until every accepted invocation ran or ctx is done.
func (m *Manager) DrainUntil(ctx context.Context) bool {
	for {
		if m.q.Stats().Drained() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}
