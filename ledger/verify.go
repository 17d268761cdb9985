package ledger

import (
	"io"

	"github.com/cespare/xxhash/v2"
)

// verifyChunk is how many status bytes Verify reads per call
const verifyChunk = 64 * 1024

// VerifyReport summarizes a full scan of the status array
type VerifyReport struct {
	Counter         uint64 `json:"counter"`
	Size            int64  `json:"size"`
	Active          uint64 `json:"active"`
	Committed       uint64 `json:"committed"`
	Aborted         uint64 `json:"aborted"`
	Invalid         uint64 `json:"invalid"`
	FirstInvalidXID uint64 `json:"first_invalid_xid,omitempty"`
}

// OK reports whether every status byte holds a valid value
func (r VerifyReport) OK() bool {
	return r.Invalid == 0 && r.Size == ExpectedSize(r.Counter)
}

// Verify scans the status bytes of xids 1..counter against the current file
// size. Callers that append concurrently must use VerifyAt.
func (s *Store) Verify(counter uint64) (VerifyReport, error) {
	size, err := s.Size()
	if err != nil {
		return VerifyReport{Counter: counter}, err
	}
	return s.VerifyAt(counter, size)
}

// VerifyAt scans the status bytes of xids 1..counter, reporting size as the
// file size observed together with counter.
func (s *Store) VerifyAt(counter uint64, size int64) (VerifyReport, error) {
	report := VerifyReport{Counter: counter, Size: size}

	buf := make([]byte, verifyChunk)
	var xid uint64 = 1
	for xid <= counter {
		n := counter - xid + 1
		if n > verifyChunk {
			n = verifyChunk
		}
		chunk := buf[:n]
		if _, err := s.file.ReadAt(chunk, Position(xid)); err != nil {
			return report, ErrLedgerIO{Op: "verify", Path: s.path, Err: err}
		}

		for i, b := range chunk {
			switch Status(b) {
			case Active:
				report.Active++
			case Committed:
				report.Committed++
			case Aborted:
				report.Aborted++
			default:
				if report.Invalid == 0 {
					report.FirstInvalidXID = xid + uint64(i)
				}
				report.Invalid++
			}
		}
		xid += n
	}

	return report, nil
}

// Digest returns the xxhash64 of the whole ledger file. For a quiescent
// ledger it equals the digest of a snapshot taken at the current header.
func (s *Store) Digest() (uint64, error) {
	size, err := s.Size()
	if err != nil {
		return 0, err
	}

	h := xxhash.New()
	if _, err := io.Copy(h, io.NewSectionReader(s.file, 0, size)); err != nil {
		return 0, ErrLedgerIO{Op: "digest", Path: s.path, Err: err}
	}
	return h.Sum64(), nil
}
