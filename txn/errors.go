package txn

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownXID is returned for the super xid on commit/abort and for
	// xids that have not been allocated yet
	ErrUnknownXID = errors.New("unknown xid")
	// ErrInvalidTransition is returned in strict mode when a terminal xid is
	// committed or aborted again
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ErrFatal reports a storage failure after which the ledger can no longer be
// trusted. The manager refuses further work once one has occurred; the
// process owning it is expected to exit.
type ErrFatal struct {
	Op  string
	XID uint64
	Err error
}

func (e ErrFatal) Error() string {
	return fmt.Sprintf("fatal ledger failure during %s (xid %d): %v", e.Op, e.XID, e.Err)
}

func (e ErrFatal) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err carries an ErrFatal
func IsFatal(err error) bool {
	var fatal ErrFatal
	return errors.As(err, &fatal)
}
