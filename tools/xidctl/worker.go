package main

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/maxpert/xidledger/txn"
)

// Worker executes operations against the ledger.
type Worker struct {
	id         int
	ledger     Ledger
	opSelector *OpSelector
	stats      *Stats
	rng        *rand.Rand
	onFatal    func(error)
}

// NewWorker creates a new worker. onFatal is called once the ledger reports
// a storage failure; the worker stops after that.
func NewWorker(id int, l Ledger, opSelector *OpSelector, stats *Stats, onFatal func(error)) *Worker {
	return &Worker{
		id:         id,
		ledger:     l,
		opSelector: opSelector,
		stats:      stats,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano() + int64(id))),
		onFatal:    onFatal,
	}
}

// RunBenchmark executes the benchmark workload.
func (w *Worker) RunBenchmark(ctx context.Context, opsChan <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-opsChan:
			if !ok {
				return
			}

			opType := w.opSelector.Select()

			start := time.Now()
			err := ExecuteOp(w.ledger, opType, w.rng)
			latency := time.Since(start)

			if err != nil {
				w.stats.RecordError(opType)
				if txn.IsFatal(err) {
					w.onFatal(err)
					return
				}
				continue
			}
			w.stats.RecordOp(opType, latency)
		}
	}
}
