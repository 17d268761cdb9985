// Package ledger stores the status of every allocated transaction id in a
// single file: an 8-byte big-endian counter followed by one status byte per
// xid, in allocation order.
//
//	offset 0 : uint64 BE counter (highest allocated xid)
//	offset 8 : status of xid 1, xid 2, ... xid counter
//
// The file length is always HeaderLen + counter*StatusLen; anything else is
// treated as corruption.
package ledger

import "math"

const (
	// HeaderLen is the width of the counter header
	HeaderLen = 8
	// StatusLen is the width of a single xid status entry
	StatusLen = 1
	// Suffix is appended to the configured base path
	Suffix = ".xid"

	// SuperXID is never stored and is always committed
	SuperXID uint64 = 0
	// MaxXID is the largest xid whose offset fits in an int64
	MaxXID uint64 = math.MaxInt64 - HeaderLen
)

// Status is the lifecycle state of a transaction as stored on disk
type Status byte

const (
	Active    Status = 0
	Committed Status = 1
	Aborted   Status = 2
)

// Valid reports whether s is one of the three stored values
func (s Status) Valid() bool {
	return s <= Aborted
}

// IsTerminal reports whether s can no longer change
func (s Status) IsTerminal() bool {
	return s == Committed || s == Aborted
}

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	default:
		return "invalid"
	}
}

// FileName returns the ledger file name for a base path
func FileName(base string) string {
	return base + Suffix
}

// Position returns the file offset of xid's status byte. xid must be in
// [1, MaxXID]; SuperXID has no stored byte.
func Position(xid uint64) int64 {
	return HeaderLen + int64(xid-1)*StatusLen
}

// ExpectedSize returns the exact file length of a ledger holding counter xids
func ExpectedSize(counter uint64) int64 {
	return HeaderLen + int64(counter)*StatusLen
}
