package main

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Stats tracks benchmark statistics using atomic operations.
type Stats struct {
	// Counters per operation type
	commitOps atomic.Uint64
	abortOps  atomic.Uint64
	readOps   atomic.Uint64

	// Error counters per operation type
	commitErrors atomic.Uint64
	abortErrors  atomic.Uint64
	readErrors   atomic.Uint64

	// Latency tracking (microseconds)
	mu        sync.Mutex
	latencies []int64
}

// NewStats creates a new stats tracker.
func NewStats() *Stats {
	return &Stats{
		latencies: make([]int64, 0, 100000),
	}
}

// RecordOp records a successful operation.
func (s *Stats) RecordOp(opType OpType, latency time.Duration) {
	switch opType {
	case OpCommit:
		s.commitOps.Add(1)
	case OpAbort:
		s.abortOps.Add(1)
	case OpRead:
		s.readOps.Add(1)
	}

	s.mu.Lock()
	s.latencies = append(s.latencies, latency.Microseconds())
	s.mu.Unlock()
}

// RecordError records a failed operation.
func (s *Stats) RecordError(opType OpType) {
	switch opType {
	case OpCommit:
		s.commitErrors.Add(1)
	case OpAbort:
		s.abortErrors.Add(1)
	case OpRead:
		s.readErrors.Add(1)
	}
}

// TotalOps returns total successful operations.
func (s *Stats) TotalOps() uint64 {
	return s.commitOps.Load() + s.abortOps.Load() + s.readOps.Load()
}

// TotalErrors returns total errors.
func (s *Stats) TotalErrors() uint64 {
	return s.commitErrors.Load() + s.abortErrors.Load() + s.readErrors.Load()
}

// GetLatencyPercentiles returns p50, p90, p95, p99 in microseconds.
func (s *Stats) GetLatencyPercentiles() (p50, p90, p95, p99 int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.latencies) == 0 {
		return 0, 0, 0, 0
	}

	sorted := make([]int64, len(s.latencies))
	copy(sorted, s.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	n := len(sorted)
	p50 = sorted[n*50/100]
	p90 = sorted[n*90/100]
	p95 = sorted[n*95/100]
	p99 = sorted[n*99/100]

	return p50, p90, p95, p99
}

// GetLatencyStats returns min, max, avg in microseconds.
func (s *Stats) GetLatencyStats() (min, max, avg int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.latencies) == 0 {
		return 0, 0, 0
	}

	min = s.latencies[0]
	max = s.latencies[0]
	var sum int64

	for _, l := range s.latencies {
		if l < min {
			min = l
		}
		if l > max {
			max = l
		}
		sum += l
	}

	avg = sum / int64(len(s.latencies))
	return min, max, avg
}

// Snapshot returns a copy of current counters.
type Snapshot struct {
	CommitOps uint64
	AbortOps  uint64
	ReadOps   uint64
	Errors    uint64
}

// Total returns all successful operations in the snapshot.
func (s Snapshot) Total() uint64 {
	return s.CommitOps + s.AbortOps + s.ReadOps
}

// GetSnapshot returns current stats snapshot.
func (s *Stats) GetSnapshot() Snapshot {
	return Snapshot{
		CommitOps: s.commitOps.Load(),
		AbortOps:  s.abortOps.Load(),
		ReadOps:   s.readOps.Load(),
		Errors:    s.TotalErrors(),
	}
}

// PrintFinal prints final statistics.
func (s *Stats) PrintFinal(elapsed time.Duration) {
	totalOps := s.TotalOps()
	totalErrors := s.TotalErrors()

	throughput := float64(totalOps) / elapsed.Seconds()

	fmt.Println()
	fmt.Printf("Total time:    %.2fs\n", elapsed.Seconds())
	fmt.Printf("Throughput:    %.2f ops/sec\n", throughput)
	fmt.Println()

	fmt.Println("Operations:")
	fmt.Printf("  COMMIT: %d\n", s.commitOps.Load())
	fmt.Printf("  ABORT:  %d\n", s.abortOps.Load())
	fmt.Printf("  READ:   %d\n", s.readOps.Load())
	fmt.Printf("  TOTAL:  %d\n", totalOps)
	fmt.Println()

	if totalErrors > 0 {
		fmt.Println("Errors:")
		if n := s.commitErrors.Load(); n > 0 {
			fmt.Printf("  COMMIT errors: %d\n", n)
		}
		if n := s.abortErrors.Load(); n > 0 {
			fmt.Printf("  ABORT errors:  %d\n", n)
		}
		if n := s.readErrors.Load(); n > 0 {
			fmt.Printf("  READ errors:   %d\n", n)
		}
		fmt.Printf("  Total errors:  %d\n", totalErrors)
		fmt.Println()
	}

	min, max, avg := s.GetLatencyStats()
	p50, p90, p95, p99 := s.GetLatencyPercentiles()

	fmt.Println("Latency (microseconds):")
	fmt.Printf("  Min:   %d\n", min)
	fmt.Printf("  Avg:   %d\n", avg)
	fmt.Printf("  Max:   %d\n", max)
	fmt.Printf("  P50:   %d\n", p50)
	fmt.Printf("  P90:   %d\n", p90)
	fmt.Printf("  P95:   %d\n", p95)
	fmt.Printf("  P99:   %d\n", p99)
}
