package main

import (
	"fmt"
	"math/rand"

	"github.com/maxpert/xidledger/ledger"
)

type OpType int

const (
	OpCommit OpType = iota
	OpAbort
	OpRead
)

func (o OpType) String() string {
	switch o {
	case OpCommit:
		return "COMMIT"
	case OpAbort:
		return "ABORT"
	case OpRead:
		return "READ"
	default:
		return "UNKNOWN"
	}
}

// Ledger is the slice of *txn.Manager the benchmark drives.
type Ledger interface {
	Begin() (uint64, error)
	Commit(xid uint64) error
	Abort(xid uint64) error
	Status(xid uint64) (ledger.Status, error)
	Counter() uint64
}

// OpSelector selects operations based on workload distribution.
type OpSelector struct {
	dist       WorkloadDistribution
	thresholds [3]int // Cumulative thresholds for each op type
	rng        *rand.Rand
}

// NewOpSelector creates an operation selector.
func NewOpSelector(dist WorkloadDistribution, seed int64) *OpSelector {
	s := &OpSelector{
		dist: dist,
		rng:  rand.New(rand.NewSource(seed)),
	}

	// Build cumulative thresholds
	s.thresholds[0] = dist.Commit
	s.thresholds[1] = s.thresholds[0] + dist.Abort
	s.thresholds[2] = s.thresholds[1] + dist.Read

	return s
}

// Select returns a random operation type based on distribution.
func (s *OpSelector) Select() OpType {
	r := s.rng.Intn(100)

	if r < s.thresholds[0] {
		return OpCommit
	}
	if r < s.thresholds[1] {
		return OpAbort
	}
	return OpRead
}

// ExecuteOp runs a single operation. Commit and abort begin a fresh xid
// first; reads pick any xid allocated so far, the super xid included.
func ExecuteOp(l Ledger, op OpType, rng *rand.Rand) error {
	switch op {
	case OpCommit:
		xid, err := l.Begin()
		if err != nil {
			return err
		}
		return l.Commit(xid)
	case OpAbort:
		xid, err := l.Begin()
		if err != nil {
			return err
		}
		return l.Abort(xid)
	case OpRead:
		counter := l.Counter()
		xid := uint64(rng.Int63n(int64(counter) + 1))
		_, err := l.Status(xid)
		return err
	default:
		return fmt.Errorf("unknown operation type: %v", op)
	}
}
