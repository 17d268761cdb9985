package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/maxpert/xidledger/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectLedger_ListsStatuses(t *testing.T) {
	base := filepath.Join(t.TempDir(), "ledger")
	m, err := txn.Create(base, txn.Options{})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := m.Begin()
		require.NoError(t, err)
	}
	require.NoError(t, m.Commit(1))
	require.NoError(t, m.Abort(2))
	require.NoError(t, m.Close())

	reopened, err := txn.Open(base, txn.Options{})
	require.NoError(t, err)
	digest, err := reopened.Digest()
	require.NoError(t, err)
	require.NoError(t, reopened.Close())

	var out bytes.Buffer
	require.NoError(t, inspectLedger(&out, base, 0, 10))

	text := out.String()
	assert.Contains(t, text, "Counter:  3")
	assert.Contains(t, text, "Size:     11 bytes")
	assert.Contains(t, text, fmt.Sprintf("Digest:   %016x", digest))
	assert.Regexp(t, `\s0\s+committed`, text)
	assert.Regexp(t, `\s1\s+committed`, text)
	assert.Regexp(t, `\s2\s+aborted`, text)
	assert.Regexp(t, `\s3\s+active`, text)
	assert.NotContains(t, text, "  4  ")
}

func TestSnapshotRestoreFiles(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "ledger")
	m, err := txn.Create(base, txn.Options{})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		xid, err := m.Begin()
		require.NoError(t, err)
		if i%2 == 0 {
			require.NoError(t, m.Commit(xid))
		}
	}
	require.NoError(t, m.Close())

	snap := filepath.Join(dir, "ledger.snap")
	written, err := snapshotLedger(base, snap)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), written.Counter)

	// The snapshot file is never overwritten.
	_, err = snapshotLedger(base, snap)
	assert.Error(t, err)

	restoredBase := filepath.Join(dir, "restored")
	restored, err := restoreLedger(snap, restoredBase)
	require.NoError(t, err)
	assert.Equal(t, written, restored)

	r, err := txn.Open(restoredBase, txn.Options{})
	require.NoError(t, err)
	defer r.Close()
	committed, err := r.IsCommitted(9)
	require.NoError(t, err)
	assert.True(t, committed)
	active, err := r.IsActive(10)
	require.NoError(t, err)
	assert.True(t, active)

	var out bytes.Buffer
	require.NoError(t, printManifest(&out, restored))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, float64(10), decoded["counter"])
	assert.NotEmpty(t, decoded["created"])
}
