package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/maxpert/xidledger/ledger"
	"github.com/maxpert/xidledger/txn"
)

// inspectLedger prints the header, a full verify report and, when to >= from,
// the status of every xid in [from, to].
func inspectLedger(w io.Writer, path string, from, to uint64) error {
	m, err := txn.Open(path, txn.Options{})
	if err != nil {
		return err
	}
	defer m.Close()

	size, err := m.Size()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Path:     %s\n", m.Path())
	fmt.Fprintf(w, "Counter:  %d\n", m.Counter())
	fmt.Fprintf(w, "Size:     %d bytes\n", size)

	digest, err := m.Digest()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Digest:   %016x\n", digest)

	report, err := m.Verify()
	if err != nil {
		return err
	}
	fprintReport(w, report)

	if to < from {
		return nil
	}
	if to > m.Counter() {
		to = m.Counter()
	}
	fmt.Fprintln(w)
	for xid := from; xid <= to; xid++ {
		status, err := m.Status(xid)
		if err != nil {
			return fmt.Errorf("xid %d: %w", xid, err)
		}
		fmt.Fprintf(w, "  %12d  %s\n", xid, status)
	}
	return nil
}

func printReport(report ledger.VerifyReport) {
	fprintReport(os.Stdout, report)
}

func fprintReport(w io.Writer, report ledger.VerifyReport) {
	fmt.Fprintln(w, "Verify:")
	fmt.Fprintf(w, "  Active:    %d\n", report.Active)
	fmt.Fprintf(w, "  Committed: %d\n", report.Committed)
	fmt.Fprintf(w, "  Aborted:   %d\n", report.Aborted)
	fmt.Fprintf(w, "  Invalid:   %d\n", report.Invalid)
	if report.Invalid > 0 {
		fmt.Fprintf(w, "  First invalid xid: %d\n", report.FirstInvalidXID)
	}
	if report.OK() {
		fmt.Fprintln(w, "  Result:    OK")
	} else {
		fmt.Fprintln(w, "  Result:    CORRUPT")
	}
}

// snapshotLedger writes a snapshot of the ledger at path into out. out must
// not exist yet.
func snapshotLedger(path, out string) (ledger.SnapshotManifest, error) {
	m, err := txn.Open(path, txn.Options{})
	if err != nil {
		return ledger.SnapshotManifest{}, err
	}
	defer m.Close()

	f, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return ledger.SnapshotManifest{}, err
	}

	bw := bufio.NewWriter(f)
	manifest, err := m.Snapshot(bw)
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out)
		return ledger.SnapshotManifest{}, err
	}
	return manifest, nil
}

// restoreLedger materializes the snapshot in in as a new ledger at path.
func restoreLedger(in, path string) (ledger.SnapshotManifest, error) {
	f, err := os.Open(in)
	if err != nil {
		return ledger.SnapshotManifest{}, err
	}
	defer f.Close()

	return ledger.RestoreSnapshot(bufio.NewReader(f), path)
}

func printManifest(w io.Writer, manifest ledger.SnapshotManifest) error {
	out := struct {
		ledger.SnapshotManifest
		Created string `json:"created"`
	}{
		SnapshotManifest: manifest,
		Created:          time.Unix(0, manifest.CreatedAt).UTC().Format(time.RFC3339),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
