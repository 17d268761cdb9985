// Package txn allocates transaction ids and drives their status transitions
// on top of a ledger.Store.
//
// Only Begin is serialized. Commit, Abort and the status queries touch a
// single xid-addressed byte each and run without locking; callers must not
// transition the same xid from two places at once.
package txn

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/maxpert/xidledger/ledger"
	"github.com/maxpert/xidledger/telemetry"
	"github.com/rs/zerolog/log"
)

// Notifier receives every durable status change
type Notifier interface {
	Signal(xid uint64, status ledger.Status)
}

// Options tune a Manager
type Options struct {
	// StrictTransitions rejects commit/abort of an xid that is already terminal
	StrictTransitions bool
	// StatusCacheSize bounds the terminal status cache; 0 disables it
	StatusCacheSize int
	// Notifier, if set, is signalled after each successful begin/commit/abort
	Notifier Notifier
}

// Manager is the single owner of an open ledger
type Manager struct {
	store *ledger.Store
	opts  Options
	cache *lru.Cache[uint64, ledger.Status]

	mu      sync.Mutex // guards allocation: status write + header write
	counter atomic.Uint64
	fatal   atomic.Pointer[ErrFatal]
}

// Create makes a new ledger at base and returns a Manager for it
func Create(base string, opts Options) (*Manager, error) {
	store, err := ledger.Create(base)
	if err != nil {
		return nil, err
	}
	return wrap(store, opts)
}

// Open opens the ledger at base and returns a Manager for it
func Open(base string, opts Options) (*Manager, error) {
	store, err := ledger.Open(base)
	if err != nil {
		return nil, err
	}
	return wrap(store, opts)
}

func wrap(store *ledger.Store, opts Options) (*Manager, error) {
	m, err := New(store, opts)
	if err != nil {
		store.Close()
		return nil, err
	}
	return m, nil
}

// New builds a Manager over an already open store. The Manager takes
// ownership of the store.
func New(store *ledger.Store, opts Options) (*Manager, error) {
	m := &Manager{store: store, opts: opts}
	if opts.StatusCacheSize > 0 {
		cache, err := lru.New[uint64, ledger.Status](opts.StatusCacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create status cache: %w", err)
		}
		m.cache = cache
	}
	m.counter.Store(store.Header())
	telemetry.LedgerCounter.Set(float64(store.Header()))
	return m, nil
}

// Begin allocates the next xid and durably records it as active. The
// returned xid is readable as active before Begin returns.
func (m *Manager) Begin() (uint64, error) {
	xid, err := m.allocate()
	if err != nil {
		return 0, err
	}

	telemetry.XidsAllocatedTotal.Inc()
	telemetry.TransitionsTotal.With(ledger.Active.String()).Inc()
	telemetry.LedgerCounter.Set(float64(xid))
	m.notify(xid, ledger.Active)
	return xid, nil
}

func (m *Manager) allocate() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failed(); err != nil {
		return 0, err
	}

	xid := m.counter.Load() + 1
	if xid > ledger.MaxXID {
		return 0, m.fail("begin", xid, fmt.Errorf("%w: xid space exhausted", ledger.ErrInvalidXID))
	}
	if err := m.store.WriteStatus(xid, ledger.Active); err != nil {
		return 0, m.fail("begin", xid, err)
	}
	if err := m.store.WriteHeader(xid); err != nil {
		return 0, m.fail("begin", xid, err)
	}
	m.counter.Store(xid)
	return xid, nil
}

// Commit durably marks xid committed
func (m *Manager) Commit(xid uint64) error {
	return m.transition("commit", xid, ledger.Committed)
}

// Abort durably marks xid aborted
func (m *Manager) Abort(xid uint64) error {
	return m.transition("abort", xid, ledger.Aborted)
}

func (m *Manager) transition(op string, xid uint64, status ledger.Status) error {
	if err := m.failed(); err != nil {
		return err
	}
	if xid == ledger.SuperXID || xid > m.counter.Load() {
		telemetry.RejectedTransitionsTotal.With("unknown").Inc()
		return fmt.Errorf("%s: %w: %d", op, ErrUnknownXID, xid)
	}

	if m.opts.StrictTransitions {
		current, err := m.Status(xid)
		if err != nil {
			return err
		}
		if current.IsTerminal() {
			telemetry.RejectedTransitionsTotal.With("terminal").Inc()
			return fmt.Errorf("%s: %w: xid %d is already %s", op, ErrInvalidTransition, xid, current)
		}
	}

	if err := m.store.WriteStatus(xid, status); err != nil {
		return m.fail(op, xid, err)
	}
	if m.cache != nil {
		m.cache.Add(xid, status)
	}

	telemetry.TransitionsTotal.With(status.String()).Inc()
	log.Debug().Uint64("xid", xid).Str("status", status.String()).Msg("Transaction finished")
	m.notify(xid, status)
	return nil
}

// Status returns the stored status of xid. The super xid is always committed.
func (m *Manager) Status(xid uint64) (ledger.Status, error) {
	if xid == ledger.SuperXID {
		telemetry.StatusReadsTotal.With("super").Inc()
		return ledger.Committed, nil
	}
	if err := m.failed(); err != nil {
		return 0, err
	}
	if xid > m.counter.Load() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownXID, xid)
	}

	if m.cache != nil {
		if status, ok := m.cache.Get(xid); ok {
			telemetry.StatusReadsTotal.With("cache").Inc()
			return status, nil
		}
	}

	status, err := m.store.ReadStatus(xid)
	if err != nil {
		return 0, m.fail("read status", xid, err)
	}
	telemetry.StatusReadsTotal.With("ledger").Inc()

	// A concurrent write may have cached a newer value; never replace it.
	if m.cache != nil && status.IsTerminal() {
		m.cache.ContainsOrAdd(xid, status)
	}
	return status, nil
}

// IsActive reports whether xid is still running
func (m *Manager) IsActive(xid uint64) (bool, error) {
	return m.is(xid, ledger.Active)
}

// IsCommitted reports whether xid committed
func (m *Manager) IsCommitted(xid uint64) (bool, error) {
	return m.is(xid, ledger.Committed)
}

// IsAborted reports whether xid aborted
func (m *Manager) IsAborted(xid uint64) (bool, error) {
	return m.is(xid, ledger.Aborted)
}

func (m *Manager) is(xid uint64, want ledger.Status) (bool, error) {
	status, err := m.Status(xid)
	if err != nil {
		return false, err
	}
	return status == want, nil
}

// Counter returns the highest allocated xid
func (m *Manager) Counter() uint64 {
	return m.counter.Load()
}

// Path returns the ledger file path
func (m *Manager) Path() string {
	return m.store.Path()
}

// Size returns the ledger file size
func (m *Manager) Size() (int64, error) {
	return m.store.Size()
}

// Verify scans every allocated status byte. The counter and file size are
// sampled together under the allocation lock; the scan itself runs unlocked.
func (m *Manager) Verify() (ledger.VerifyReport, error) {
	if err := m.failed(); err != nil {
		return ledger.VerifyReport{}, err
	}

	m.mu.Lock()
	counter := m.counter.Load()
	size, err := m.store.Size()
	m.mu.Unlock()
	if err != nil {
		return ledger.VerifyReport{Counter: counter}, err
	}
	return m.store.VerifyAt(counter, size)
}

// Digest returns the xxhash64 of the ledger file as of the latest Begin
func (m *Manager) Digest() (uint64, error) {
	if err := m.failed(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Digest()
}

// Snapshot writes a compressed image of every allocated xid to w
func (m *Manager) Snapshot(w io.Writer) (ledger.SnapshotManifest, error) {
	if err := m.failed(); err != nil {
		return ledger.SnapshotManifest{}, err
	}
	return m.store.WriteSnapshot(w, m.counter.Load())
}

// Err returns the fatal error that stopped the manager, if any
func (m *Manager) Err() error {
	return m.failed()
}

// Close releases the ledger file. It is attempted even after a fatal error.
func (m *Manager) Close() error {
	if err := m.store.Close(); err != nil {
		return m.fail("close", 0, err)
	}
	log.Info().Str("path", m.store.Path()).Uint64("counter", m.counter.Load()).Msg("Closed transaction ledger")
	return nil
}

func (m *Manager) notify(xid uint64, status ledger.Status) {
	if m.opts.Notifier != nil {
		m.opts.Notifier.Signal(xid, status)
	}
}

func (m *Manager) failed() error {
	if f := m.fatal.Load(); f != nil {
		return *f
	}
	return nil
}

// fail records the first fatal error and returns this call's error
func (m *Manager) fail(op string, xid uint64, err error) error {
	fatal := ErrFatal{Op: op, XID: xid, Err: err}
	if m.fatal.CompareAndSwap(nil, &fatal) {
		telemetry.FatalErrorsTotal.Inc()
		log.Error().
			Err(err).
			Str("op", op).
			Uint64("xid", xid).
			Str("path", m.store.Path()).
			Msg("Ledger storage failure, refusing further work")
	}
	return fatal
}

