package txn

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/maxpert/xidledger/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, opts Options) (*Manager, string) {
	t.Helper()
	base := filepath.Join(t.TempDir(), "ledger")
	m, err := Create(base, opts)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m, base
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []struct {
		xid    uint64
		status ledger.Status
	}
}

func (r *recordingNotifier) Signal(xid uint64, status ledger.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, struct {
		xid    uint64
		status ledger.Status
	}{xid, status})
}

func TestManager_BeginCommitAbort(t *testing.T) {
	m, base := newManager(t, Options{})

	x1, err := m.Begin()
	require.NoError(t, err)
	x2, err := m.Begin()
	require.NoError(t, err)
	x3, err := m.Begin()
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{x1, x2, x3})

	require.NoError(t, m.Commit(x1))
	require.NoError(t, m.Abort(x2))

	committed, err := m.IsCommitted(x1)
	require.NoError(t, err)
	assert.True(t, committed)

	aborted, err := m.IsAborted(x2)
	require.NoError(t, err)
	assert.True(t, aborted)

	active, err := m.IsActive(x3)
	require.NoError(t, err)
	assert.True(t, active)

	raw, err := os.ReadFile(ledger.FileName(base))
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 3, 1, 2, 0}, raw)
}

func TestManager_ReopenKeepsState(t *testing.T) {
	base := filepath.Join(t.TempDir(), "ledger")

	m, err := Create(base, Options{})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := m.Begin()
		require.NoError(t, err)
	}
	require.NoError(t, m.Commit(1))
	require.NoError(t, m.Abort(2))
	require.NoError(t, m.Close())

	m, err = Open(base, Options{})
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, uint64(3), m.Counter())
	for xid, want := range map[uint64]ledger.Status{1: ledger.Committed, 2: ledger.Aborted, 3: ledger.Active} {
		got, err := m.Status(xid)
		require.NoError(t, err)
		assert.Equal(t, want, got, "xid %d", xid)
	}

	next, err := m.Begin()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), next)
}

func TestManager_SuperXID(t *testing.T) {
	m, _ := newManager(t, Options{})

	committed, err := m.IsCommitted(ledger.SuperXID)
	require.NoError(t, err)
	assert.True(t, committed)

	active, err := m.IsActive(ledger.SuperXID)
	require.NoError(t, err)
	assert.False(t, active)

	aborted, err := m.IsAborted(ledger.SuperXID)
	require.NoError(t, err)
	assert.False(t, aborted)

	assert.ErrorIs(t, m.Commit(ledger.SuperXID), ErrUnknownXID)
	assert.ErrorIs(t, m.Abort(ledger.SuperXID), ErrUnknownXID)

	size, err := m.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(ledger.HeaderLen), size)
}

func TestManager_UnknownXID(t *testing.T) {
	m, _ := newManager(t, Options{})

	_, err := m.Begin()
	require.NoError(t, err)

	err = m.Commit(2)
	assert.ErrorIs(t, err, ErrUnknownXID)
	assert.False(t, IsFatal(err))

	assert.ErrorIs(t, m.Abort(100), ErrUnknownXID)

	_, err = m.Status(2)
	assert.ErrorIs(t, err, ErrUnknownXID)

	// Rejections leave the ledger untouched.
	size, err := m.Size()
	require.NoError(t, err)
	assert.Equal(t, ledger.ExpectedSize(1), size)
	assert.NoError(t, m.Err())
}

func TestManager_LenientRetransition(t *testing.T) {
	m, _ := newManager(t, Options{})

	xid, err := m.Begin()
	require.NoError(t, err)
	require.NoError(t, m.Commit(xid))
	require.NoError(t, m.Abort(xid))

	aborted, err := m.IsAborted(xid)
	require.NoError(t, err)
	assert.True(t, aborted)
}

func TestManager_StrictTransitions(t *testing.T) {
	m, _ := newManager(t, Options{StrictTransitions: true})

	xid, err := m.Begin()
	require.NoError(t, err)
	require.NoError(t, m.Commit(xid))

	err = m.Abort(xid)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.False(t, IsFatal(err))
	assert.ErrorIs(t, m.Commit(xid), ErrInvalidTransition)

	committed, err := m.IsCommitted(xid)
	require.NoError(t, err)
	assert.True(t, committed)
}

func TestManager_StatusCache(t *testing.T) {
	m, _ := newManager(t, Options{StatusCacheSize: 2})

	for i := 0; i < 3; i++ {
		_, err := m.Begin()
		require.NoError(t, err)
	}
	// Active xids are never cached.
	_, err := m.Status(1)
	require.NoError(t, err)
	assert.Equal(t, 0, m.cache.Len())

	require.NoError(t, m.Commit(1))
	require.NoError(t, m.Abort(2))
	require.NoError(t, m.Commit(3))
	assert.Equal(t, 2, m.cache.Len())

	// Evicted entries are served from the file and cached again.
	for xid, want := range map[uint64]ledger.Status{1: ledger.Committed, 2: ledger.Aborted, 3: ledger.Committed} {
		got, err := m.Status(xid)
		require.NoError(t, err)
		assert.Equal(t, want, got, "xid %d", xid)
	}

	// A write replaces the cached value.
	require.NoError(t, m.Abort(3))
	got, err := m.Status(3)
	require.NoError(t, err)
	assert.Equal(t, ledger.Aborted, got)
}

func TestManager_Notifier(t *testing.T) {
	rec := &recordingNotifier{}
	m, _ := newManager(t, Options{Notifier: rec})

	xid, err := m.Begin()
	require.NoError(t, err)
	require.NoError(t, m.Commit(xid))
	assert.Error(t, m.Abort(42))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.events, 2)
	assert.Equal(t, ledger.Active, rec.events[0].status)
	assert.Equal(t, ledger.Committed, rec.events[1].status)
	assert.Equal(t, xid, rec.events[1].xid)
}

func TestManager_FatalPoisonsManager(t *testing.T) {
	m, _ := newManager(t, Options{})

	xid, err := m.Begin()
	require.NoError(t, err)

	// Pull the file out from under the manager.
	require.NoError(t, m.store.Close())

	err = m.Commit(xid)
	require.Error(t, err)
	assert.True(t, IsFatal(err))

	var fatal ErrFatal
	require.True(t, errors.As(err, &fatal))
	assert.Equal(t, "commit", fatal.Op)
	assert.Equal(t, xid, fatal.XID)

	var ioErr ledger.ErrLedgerIO
	assert.True(t, errors.As(err, &ioErr))

	// Every later operation reports the first failure.
	_, err = m.Begin()
	assert.Equal(t, fatal, err)
	_, err = m.Status(xid)
	assert.Equal(t, fatal, err)
	assert.Equal(t, fatal, m.Abort(xid))
	assert.Equal(t, fatal, m.Err())

	// The super xid never touches storage.
	committed, err := m.IsCommitted(ledger.SuperXID)
	require.NoError(t, err)
	assert.True(t, committed)
}

func TestManager_ConcurrentBegin(t *testing.T) {
	m, _ := newManager(t, Options{})

	const workers, perWorker = 8, 50
	results := make(chan uint64, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				xid, err := m.Begin()
				if !assert.NoError(t, err) {
					return
				}
				results <- xid
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[uint64]bool, workers*perWorker)
	for xid := range results {
		assert.False(t, seen[xid], "xid %d allocated twice", xid)
		seen[xid] = true
	}
	require.Len(t, seen, workers*perWorker)
	for xid := uint64(1); xid <= workers*perWorker; xid++ {
		assert.True(t, seen[xid], "xid %d missing", xid)
	}

	assert.Equal(t, uint64(workers*perWorker), m.Counter())
	size, err := m.Size()
	require.NoError(t, err)
	assert.Equal(t, ledger.ExpectedSize(workers*perWorker), size)
}

func TestManager_VerifyDuringBegin(t *testing.T) {
	m, _ := newManager(t, Options{})

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if _, err := m.Begin(); !assert.NoError(t, err) {
				return
			}
		}
	}()

	for i := 0; i < 300; i++ {
		report, err := m.Verify()
		require.NoError(t, err)
		assert.Equal(t, ledger.ExpectedSize(report.Counter), report.Size)
		assert.True(t, report.OK(), "healthy ledger reported corrupt: %+v", report)
	}
	close(stop)
	<-done

	report, err := m.Verify()
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, m.Counter(), report.Active)
}

func TestManager_Digest(t *testing.T) {
	m, _ := newManager(t, Options{})
	for i := 0; i < 3; i++ {
		_, err := m.Begin()
		require.NoError(t, err)
	}

	d1, err := m.Digest()
	require.NoError(t, err)

	var buf bytes.Buffer
	manifest, err := m.Snapshot(&buf)
	require.NoError(t, err)
	assert.Equal(t, d1, manifest.Digest)

	require.NoError(t, m.Commit(2))
	d2, err := m.Digest()
	require.NoError(t, err)
	assert.NotEqual(t, d1, d2)
}

// TestManager_RandomWorkload mixes begins, commits, aborts and reads from
// several goroutines and checks the final ledger against a shadow model.
func TestManager_RandomWorkload(t *testing.T) {
	base := filepath.Join(t.TempDir(), "ledger")
	m, err := Create(base, Options{StatusCacheSize: 64})
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		model  = map[uint64]ledger.Status{}
		active []uint64
	)

	const workers, ops = 6, 200
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))
			for i := 0; i < ops; i++ {
				mu.Lock()
				var xid uint64
				if len(active) > 0 && rnd.Intn(3) > 0 {
					idx := rnd.Intn(len(active))
					xid = active[idx]
					active = append(active[:idx], active[idx+1:]...)
				}
				mu.Unlock()

				if xid == 0 {
					xid, err := m.Begin()
					if !assert.NoError(t, err) {
						return
					}
					mu.Lock()
					model[xid] = ledger.Active
					active = append(active, xid)
					mu.Unlock()
					continue
				}

				status := ledger.Committed
				if rnd.Intn(2) == 0 {
					status = ledger.Aborted
				}
				if status == ledger.Committed {
					assert.NoError(t, m.Commit(xid))
				} else {
					assert.NoError(t, m.Abort(xid))
				}
				got, err := m.Status(xid)
				assert.NoError(t, err)
				assert.Equal(t, status, got)

				mu.Lock()
				model[xid] = status
				mu.Unlock()
			}
		}(time.Now().UnixNano() + int64(w))
	}
	wg.Wait()
	require.NoError(t, m.Close())

	m, err = Open(base, Options{})
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, uint64(len(model)), m.Counter())
	for xid, want := range model {
		got, err := m.Status(xid)
		require.NoError(t, err)
		assert.Equal(t, want, got, "xid %d", xid)
	}

	report, err := m.Verify()
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, uint64(len(model)), report.Active+report.Committed+report.Aborted)
}

func TestManager_OpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing"), Options{})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestManager_SnapshotRestore(t *testing.T) {
	m, _ := newManager(t, Options{})
	for i := 0; i < 4; i++ {
		_, err := m.Begin()
		require.NoError(t, err)
	}
	require.NoError(t, m.Commit(2))

	var buf bytes.Buffer
	manifest, err := m.Snapshot(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), manifest.Counter)

	base := filepath.Join(t.TempDir(), "restored")
	_, err = ledger.RestoreSnapshot(&buf, base)
	require.NoError(t, err)

	restored, err := Open(base, Options{})
	require.NoError(t, err)
	defer restored.Close()

	committed, err := restored.IsCommitted(2)
	require.NoError(t, err)
	assert.True(t, committed)
	assert.Equal(t, uint64(4), restored.Counter())
}
