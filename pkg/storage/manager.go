package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/filebox/pkg/events"
	"github.com/cuemby/filebox/pkg/log"
	"github.com/cuemby/filebox/pkg/metrics"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
)

// DefaultFileName is the database file created inside the data directory
const DefaultFileName = "filebox.db"

// Options configures a Manager
type Options struct {
	// Path is the database file
	Path string

	// OpenTimeout bounds how long one open attempt waits for the file lock
	OpenTimeout time.Duration

	// MaxAttempts is the retry ceiling for opening and upgrading the store
	MaxAttempts int

	// RetryBackoff is the delay after the first failed attempt; it doubles after each failure
	RetryBackoff time.Duration

	// Migrations is the ordered upgrade path (DefaultMigrations when nil)
	Migrations []Migration

	// WatchReleases makes the manager give up its handle when another process
	// asks to open the store at a newer schema version
	WatchReleases bool

	// Events receives store lifecycle events (optional)
	Events *events.Broker

	openDB func(path string, mode os.FileMode, options *bolt.Options) (*bolt.DB, error)
}

// DefaultOptions returns options for the database file inside dataDir
func DefaultOptions(dataDir string) Options {
	return Options{
		Path:          filepath.Join(dataDir, DefaultFileName),
		OpenTimeout:   time.Second,
		MaxAttempts:   3,
		RetryBackoff:  100 * time.Millisecond,
		WatchReleases: true,
	}
}

// Manager owns the store handle. It opens and upgrades the database on first
// use, buffers operations submitted before the store is ready, and hands a
// transaction to each operation once it is.
type Manager struct {
	opts         Options
	target       int
	logger       zerolog.Logger
	openAttempts atomic.Int64
	ctx          context.Context
	cancel       context.CancelFunc

	mu       sync.Mutex
	state    State
	db       *bolt.DB
	pending  []*task
	inflight *initCall
	watcher  *releaseWatcher
	shutdown bool
}

// initCall is one in-flight initialization shared by every caller waiting on it
type initCall struct {
	done chan struct{}
	err  error
}

// NewManager creates a manager for the store at opts.Path. The store is not
// opened until Initialize or the first operation.
func NewManager(opts Options) (*Manager, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if opts.Migrations == nil {
		opts.Migrations = DefaultMigrations()
	}
	if err := validateMigrations(opts.Migrations); err != nil {
		return nil, err
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = time.Second
	}
	if opts.openDB == nil {
		opts.openDB = bolt.Open
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		opts:   opts,
		target: TargetVersion(opts.Migrations),
		logger: log.WithComponent("storage").With().Str("path", opts.Path).Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
	metrics.StoreState.Set(float64(StateUninitialized))
	return m, nil
}

// Path returns the database file path
func (m *Manager) Path() string {
	return m.opts.Path
}

// SchemaVersion returns the version this manager upgrades the store to
func (m *Manager) SchemaVersion() int {
	return m.target
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OpenAttempts returns how many times the database file has been opened
func (m *Manager) OpenAttempts() int64 {
	return m.openAttempts.Load()
}

// Initialize opens the store, creating or upgrading the schema as needed.
// Concurrent callers share one in-flight attempt. A ready store returns at once.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return errManagerClosed
	}
	if m.state == StateReady {
		m.mu.Unlock()
		return nil
	}
	call := m.startInitLocked()
	m.mu.Unlock()

	select {
	case <-call.done:
		return call.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startInitLocked returns the in-flight initialization, starting one if
// needed. m.mu must be held. While a call is in flight the state stays
// Initializing, so anything queued meanwhile is picked up by that call.
func (m *Manager) startInitLocked() *initCall {
	if m.inflight != nil {
		return m.inflight
	}
	call := &initCall{done: make(chan struct{})}
	m.inflight = call
	m.setStateLocked(StateInitializing)
	go m.initialize(call)
	return call
}

func (m *Manager) initialize(call *initCall) {
	timer := metrics.NewTimer()
	db, err := m.openWithRetry(m.ctx)
	timer.ObserveDuration(metrics.StoreInitDuration)

	call.err = m.finishInit(db, err)
	close(call.done)
}

// finishInit publishes the outcome of an open attempt: the backlog is either
// drained against the new handle or rejected with the same error.
func (m *Manager) finishInit(db *bolt.DB, err error) error {
	m.mu.Lock()
	m.inflight = nil
	if m.shutdown {
		m.mu.Unlock()
		if db != nil {
			_ = db.Close()
		}
		return errManagerClosed
	}

	backlog := m.pending
	m.pending = nil

	if err != nil {
		m.setStateLocked(StateUninitialized)
		m.mu.Unlock()

		metrics.QueueDepth.Set(0)
		metrics.UpdateComponent(metrics.ComponentStore, false, err.Error())
		m.logger.Error().Err(err).Int("queued", len(backlog)).Msg("Store initialization failed")
		m.opts.Events.Publish(&events.Event{Type: events.EventStoreUnavailable, Message: err.Error()})
		rejectAll(backlog, err)
		return err
	}

	m.db = db
	m.setStateLocked(StateReady)
	m.mu.Unlock()

	metrics.QueueDepth.Set(0)
	metrics.UpdateComponent(metrics.ComponentStore, true, fmt.Sprintf("schema v%d", m.target))
	m.logger.Info().Int("schema_version", m.target).Int("queued", len(backlog)).Msg("Store ready")
	m.opts.Events.Publish(&events.Event{Type: events.EventStoreReady})

	m.startWatcher()
	if len(backlog) > 0 {
		go m.drain(db, backlog)
	}
	return nil
}

func (m *Manager) openWithRetry(ctx context.Context) (*bolt.DB, error) {
	backoff := m.opts.RetryBackoff
	var lastErr error
	attempts := 0

	for attempts < m.opts.MaxAttempts {
		attempts++
		db, err := m.openOnce()
		if err == nil {
			return db, nil
		}
		lastErr = err

		if errors.Is(err, ErrVersionConflict) {
			metrics.StoreOpenFailures.WithLabelValues("version_conflict").Inc()
			break
		}
		if errors.Is(err, ErrUpgradeAborted) {
			metrics.StoreOpenFailures.WithLabelValues("upgrade").Inc()
		} else {
			metrics.StoreOpenFailures.WithLabelValues("open").Inc()
		}

		if attempts == m.opts.MaxAttempts {
			break
		}
		m.logger.Warn().Err(err).Int("attempt", attempts).Dur("backoff", backoff).Msg("Store open failed, retrying")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, ctx.Err())
		}
		backoff *= 2
	}

	return nil, fmt.Errorf("%w: after %d attempt(s): %w", ErrStoreUnavailable, attempts, lastErr)
}

// openOnce opens the database file and brings its schema up to date inside a
// single write transaction.
func (m *Manager) openOnce() (*bolt.DB, error) {
	m.openAttempts.Add(1)
	metrics.StoreOpenAttempts.Inc()

	db, err := m.opts.openDB(m.opts.Path, 0o600, &bolt.Options{Timeout: m.opts.OpenTimeout})
	if err != nil {
		if errors.Is(err, berrors.ErrTimeout) {
			// Another process holds the file; ask it to let go if we are newer
			if werr := writeReleaseRequest(m.opts.Path, m.target); werr != nil {
				m.logger.Warn().Err(werr).Msg("Failed to write release request")
			}
		}
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var applied []Migration
	err = db.Update(func(tx *bolt.Tx) error {
		var err error
		applied, err = Migrate(tx, m.opts.Migrations)
		return err
	})
	if err != nil {
		_ = db.Close()
		if errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrUpgradeAborted, err)
	}

	for _, mig := range applied {
		m.logger.Info().Int("version", mig.Version).Str("migration", mig.Name).Msg("Applied schema migration")
	}
	metrics.MigrationsApplied.Add(float64(len(applied)))
	return db, nil
}

// View runs fn in a read-only transaction once the store is ready
func (m *Manager) View(ctx context.Context, kind string, fn func(tx *bolt.Tx) error) error {
	return m.submit(newTask(ctx, kind, false, fn))
}

// Update runs fn in a read-write transaction once the store is ready. The
// transaction commits if fn returns nil and rolls back otherwise.
func (m *Manager) Update(ctx context.Context, kind string, fn func(tx *bolt.Tx) error) error {
	return m.submit(newTask(ctx, kind, true, fn))
}

// submit runs t now if the store is ready, otherwise queues it behind any
// earlier work and starts initialization.
func (m *Manager) submit(t *task) error {
	if err := t.ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return errManagerClosed
	}
	if m.state == StateReady {
		db := m.db
		m.mu.Unlock()
		return m.run(t, db)
	}
	m.pending = append(m.pending, t)
	metrics.QueueDepth.Set(float64(len(m.pending)))
	m.startInitLocked()
	m.mu.Unlock()

	return m.await(t)
}

// run executes t on the ready path. A handle released between dispatch and
// execution sends the task through the queue once more.
func (m *Manager) run(t *task, db *bolt.DB) error {
	err := m.exec(t, db)
	if released(t, err) {
		m.logger.Debug().Str("kind", t.kind).Msg("Store closed under operation, resubmitting")
		return m.submit(t.retry())
	}
	return err
}

// released reports whether err means the handle was closed under t and t
// has not been retried yet
func released(t *task, err error) bool {
	return !t.retried && errors.Is(err, berrors.ErrDatabaseNotOpen)
}

func (m *Manager) exec(t *task, db *bolt.DB) error {
	timer := metrics.NewTimer()

	var err error
	if t.writable {
		err = db.Update(t.fn)
	} else {
		err = db.View(t.fn)
	}
	if released(t, err) {
		return err
	}

	timer.ObserveDurationVec(metrics.OperationDuration, t.kind)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.OperationsTotal.WithLabelValues(t.kind, status).Inc()
	return err
}

// HandleVersionChange releases the handle when another process wants the
// store at a newer schema version. The next operation reopens from scratch.
func (m *Manager) HandleVersionChange(requested int) bool {
	m.mu.Lock()
	if m.state != StateReady || requested <= m.target {
		m.mu.Unlock()
		return false
	}
	db := m.db
	m.db = nil
	m.setStateLocked(StateClosed)
	m.mu.Unlock()

	if err := db.Close(); err != nil {
		m.logger.Warn().Err(err).Msg("Error closing released store")
	}

	msg := fmt.Sprintf("released for schema v%d", requested)
	metrics.UpdateComponent(metrics.ComponentStore, false, msg)
	m.logger.Info().Int("requested_version", requested).Msg("Store released for newer schema version")
	m.opts.Events.Publish(&events.Event{Type: events.EventStoreClosed, Message: msg})
	return true
}

// Close shuts the manager down. Queued operations are rejected and later
// operations fail with ErrStoreUnavailable.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	db := m.db
	m.db = nil
	backlog := m.pending
	m.pending = nil
	watcher := m.watcher
	m.watcher = nil
	m.setStateLocked(StateClosed)
	m.mu.Unlock()

	m.cancel()
	rejectAll(backlog, errManagerClosed)
	metrics.QueueDepth.Set(0)

	if watcher != nil {
		watcher.Close()
	}
	if db == nil {
		return nil
	}
	m.opts.Events.Publish(&events.Event{Type: events.EventStoreClosed, Message: "shutdown"})
	return db.Close()
}

var errManagerClosed = fmt.Errorf("%w: manager closed", ErrStoreUnavailable)

func (m *Manager) setStateLocked(s State) {
	if m.state != s {
		m.logger.Debug().Stringer("from", m.state).Stringer("to", s).Msg("Store state change")
	}
	m.state = s
	metrics.StoreState.Set(float64(s))
}

func (m *Manager) startWatcher() {
	if !m.opts.WatchReleases {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watcher != nil || m.shutdown {
		return
	}

	w, err := watchReleaseRequests(m.ctx, m.opts.Path, func(version int) {
		m.HandleVersionChange(version)
	}, m.logger)
	if err != nil {
		metrics.UpdateComponent(metrics.ComponentWatcher, false, err.Error())
		m.logger.Warn().Err(err).Msg("Release watcher unavailable")
		return
	}
	metrics.UpdateComponent(metrics.ComponentWatcher, true, "")
	m.watcher = w
}
