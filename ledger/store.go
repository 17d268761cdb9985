package ledger

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync/atomic"
	"time"

	"github.com/maxpert/xidledger/encoding"
	"github.com/maxpert/xidledger/telemetry"
	"github.com/rs/zerolog/log"
)

// Store is an open ledger file. Positional reads and writes on distinct xids
// may run concurrently; header writes must be serialized by the caller.
type Store struct {
	path   string
	file   *os.File
	header atomic.Uint64
}

// Create makes a new ledger at FileName(base) with a zero counter.
// The header is forced to stable storage before Create returns.
func Create(base string) (*Store, error) {
	path := FileName(base)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, openError("create", path, err)
	}

	s := &Store{path: path, file: f}
	if err := s.WriteHeader(0); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}

	log.Info().Str("path", path).Msg("Created transaction ledger")
	return s, nil
}

// Open opens an existing ledger and checks that its length matches the
// header counter. A mismatch returns ErrCorrupt; there is no repair path.
func Open(base string) (*Store, error) {
	path := FileName(base)

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, openError("open", path, err)
	}

	s := &Store{path: path, file: f}
	counter, err := s.validate()
	if err != nil {
		f.Close()
		return nil, err
	}
	s.header.Store(counter)

	log.Info().Str("path", path).Uint64("counter", counter).Msg("Opened transaction ledger")
	return s, nil
}

func openError(op, path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("%w: %s", ErrAlreadyExists, path)
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	default:
		return ErrLedgerIO{Op: op, Path: path, Err: err}
	}
}

// validate reads the header and compares the implied length with the file size
func (s *Store) validate() (uint64, error) {
	size, err := s.Size()
	if err != nil {
		return 0, err
	}
	if size < HeaderLen {
		return 0, fmt.Errorf("%w: %s is %d bytes, shorter than its header", ErrCorrupt, s.path, size)
	}

	buf := make([]byte, HeaderLen)
	if _, err := s.file.ReadAt(buf, 0); err != nil {
		return 0, ErrLedgerIO{Op: "read header", Path: s.path, Err: err}
	}

	counter := encoding.ParseUint64(buf)
	if counter > MaxXID {
		return 0, fmt.Errorf("%w: %s header counter %d out of range", ErrCorrupt, s.path, counter)
	}
	if expected := ExpectedSize(counter); expected != size {
		return 0, fmt.Errorf("%w: %s is %d bytes, header counter %d requires %d",
			ErrCorrupt, s.path, size, counter, expected)
	}
	return counter, nil
}

// Path returns the ledger file path
func (s *Store) Path() string {
	return s.path
}

// Header returns the counter most recently read from or written to the header
func (s *Store) Header() uint64 {
	return s.header.Load()
}

// Size returns the current file length
func (s *Store) Size() (int64, error) {
	info, err := s.file.Stat()
	if err != nil {
		return 0, ErrLedgerIO{Op: "stat", Path: s.path, Err: err}
	}
	return info.Size(), nil
}

// ReadStatus returns the stored status of xid. SuperXID is always Committed
// and never touches the file.
func (s *Store) ReadStatus(xid uint64) (Status, error) {
	if xid == SuperXID {
		return Committed, nil
	}
	if xid > MaxXID {
		return 0, fmt.Errorf("%w: %d", ErrInvalidXID, xid)
	}

	var b [StatusLen]byte
	if _, err := s.file.ReadAt(b[:], Position(xid)); err != nil {
		return 0, ErrLedgerIO{Op: "read status", Path: s.path, Err: err}
	}

	status := Status(b[0])
	if !status.Valid() {
		return status, fmt.Errorf("%w: xid %d has byte %d", ErrInvalidStatus, xid, b[0])
	}
	return status, nil
}

// WriteStatus overwrites the status byte of xid and forces it to stable
// storage before returning.
func (s *Store) WriteStatus(xid uint64, status Status) error {
	if xid == SuperXID || xid > MaxXID {
		return fmt.Errorf("%w: %d", ErrInvalidXID, xid)
	}
	if !status.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidStatus, status)
	}

	b := [StatusLen]byte{byte(status)}
	if _, err := s.file.WriteAt(b[:], Position(xid)); err != nil {
		return ErrLedgerIO{Op: "write status", Path: s.path, Err: err}
	}
	return s.force("status")
}

// WriteHeader rewrites the counter header and forces it to stable storage.
func (s *Store) WriteHeader(counter uint64) error {
	if _, err := s.file.WriteAt(encoding.Uint64Bytes(counter), 0); err != nil {
		return ErrLedgerIO{Op: "write header", Path: s.path, Err: err}
	}
	if err := s.force("header"); err != nil {
		return err
	}
	s.header.Store(counter)
	return nil
}

func (s *Store) force(region string) error {
	start := time.Now()
	err := s.file.Sync()
	telemetry.FsyncSeconds.With(region).Observe(time.Since(start).Seconds())
	if err != nil {
		return ErrLedgerIO{Op: "sync " + region, Path: s.path, Err: err}
	}
	return nil
}

// Close releases the file. Closing twice returns an error.
func (s *Store) Close() error {
	if err := s.file.Close(); err != nil {
		return ErrLedgerIO{Op: "close", Path: s.path, Err: err}
	}
	return nil
}
