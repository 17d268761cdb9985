package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyExists is returned by Create when the ledger file is present
	ErrAlreadyExists = errors.New("ledger already exists")
	// ErrNotFound is returned by Open when there is no ledger file
	ErrNotFound = errors.New("ledger not found")
	// ErrPermissionDenied is returned when the file cannot be opened read/write
	ErrPermissionDenied = errors.New("ledger is not readable and writable")
	// ErrCorrupt is returned when the file length disagrees with its header
	ErrCorrupt = errors.New("corrupt ledger")
	// ErrInvalidStatus is returned for a status byte outside active/committed/aborted
	ErrInvalidStatus = errors.New("invalid status")
	// ErrInvalidXID is returned when writing the super xid or an unaddressable xid
	ErrInvalidXID = errors.New("invalid xid")
)

// ErrLedgerIO wraps a failure reported by the operating system
type ErrLedgerIO struct {
	Op   string
	Path string
	Err  error
}

func (e ErrLedgerIO) Error() string {
	return fmt.Sprintf("ledger %s %s: %v", e.Op, e.Path, e.Err)
}

func (e ErrLedgerIO) Unwrap() error {
	return e.Err
}
