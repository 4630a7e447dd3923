package storage

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/cuemby/filebox/pkg/metrics"
	bolt "go.etcd.io/bbolt"
)

// Task states. A queued task is claimed exactly once, either by the drain
// (running) or by its caller giving up (abandoned).
const (
	taskQueued int32 = iota
	taskRunning
	taskAbandoned
)

// task is one buffered store operation waiting for the store to become ready
type task struct {
	kind     string
	writable bool
	fn       func(tx *bolt.Tx) error
	ctx      context.Context
	done     chan error
	state    atomic.Int32
	retried  bool
}

func newTask(ctx context.Context, kind string, writable bool, fn func(tx *bolt.Tx) error) *task {
	return &task{
		kind:     kind,
		writable: writable,
		fn:       fn,
		ctx:      ctx,
		done:     make(chan error, 1),
	}
}

// claim marks the task as running. It fails if the caller already gave up.
func (t *task) claim() bool {
	return t.state.CompareAndSwap(taskQueued, taskRunning)
}

// abandon marks the task as given up. It fails if the task already started.
func (t *task) abandon() bool {
	return t.state.CompareAndSwap(taskQueued, taskAbandoned)
}

func (t *task) complete(err error) {
	t.done <- err
}

// retry returns a fresh copy of the task for resubmission after the handle
// was released underneath it.
func (t *task) retry() *task {
	r := newTask(t.ctx, t.kind, t.writable, t.fn)
	r.retried = true
	return r
}

// wait blocks until the task completes or its caller's context ends. A task
// that has already started is always waited for, so it runs exactly once
// and its result is never lost.
func (t *task) wait() error {
	select {
	case err := <-t.done:
		return err
	case <-t.ctx.Done():
		if t.abandon() {
			return t.ctx.Err()
		}
		return <-t.done
	}
}

// drain runs the backlog captured at the Ready transition in arrival order,
// each task finishing before the next starts. If the handle is released
// part way, the rest of the backlog goes back to the head of the queue so it
// still runs before anything submitted after it.
func (m *Manager) drain(db *bolt.DB, backlog []*task) {
	for i, t := range backlog {
		if !t.claim() {
			m.logger.Debug().Str("kind", t.kind).Msg("Skipping abandoned queued operation")
			continue
		}
		err := m.exec(t, db)
		if released(t, err) {
			rest := backlog[i+1:]
			m.logger.Debug().Str("kind", t.kind).Int("remaining", len(rest)).Msg("Store closed during drain, requeueing backlog")
			r := t.retry()
			go func() { t.complete(m.await(r)) }()
			m.requeueFront(append([]*task{r}, rest...))
			return
		}
		t.complete(err)
	}
}

// requeueFront puts tasks back ahead of everything queued and starts a new
// initialization for them.
func (m *Manager) requeueFront(tasks []*task) {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		rejectAll(tasks, errManagerClosed)
		return
	}
	if m.state == StateReady {
		db := m.db
		m.mu.Unlock()
		m.drain(db, tasks)
		return
	}
	m.pending = append(tasks, m.pending...)
	metrics.QueueDepth.Set(float64(len(m.pending)))
	m.startInitLocked()
	m.mu.Unlock()
}

// await waits for a queued task and takes it off the queue if its caller gave up
func (m *Manager) await(t *task) error {
	err := t.wait()
	if t.state.Load() == taskAbandoned {
		m.dequeue(t)
	}
	return err
}

// dequeue drops an abandoned task that is still waiting for initialization
func (m *Manager) dequeue(t *task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := slices.Index(m.pending, t); i >= 0 {
		m.pending = slices.Delete(m.pending, i, i+1)
		metrics.QueueDepth.Set(float64(len(m.pending)))
	}
}

// rejectAll fails every task that has not been claimed yet with err
func rejectAll(tasks []*task, err error) {
	for _, t := range tasks {
		if t.claim() {
			t.complete(err)
		}
	}
}
