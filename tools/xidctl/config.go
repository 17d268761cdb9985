package main

import (
	"fmt"
	"time"
)

type Config struct {
	// Ledger
	Path              string // base path, without the ".xid" suffix
	Create            bool
	StrictTransitions bool
	CacheSize         int

	// Run options
	Workload   string
	Operations int
	Duration   time.Duration
	Threads    int

	// Workload percentages (-1 means use workload default)
	CommitPct int
	AbortPct  int
	ReadPct   int

	// Verify the whole ledger after the run
	Verify bool
}

func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	if c.Threads < 1 {
		return fmt.Errorf("threads must be at least 1")
	}

	if c.Operations < 0 {
		return fmt.Errorf("operations must be non-negative")
	}

	if c.CacheSize < 0 {
		return fmt.Errorf("cache-size must be non-negative")
	}

	// Validate workload type
	switch c.Workload {
	case "mixed", "commit-only", "abort-heavy", "read-heavy":
		// valid
	case "":
		c.Workload = "mixed"
	default:
		return fmt.Errorf("invalid workload: %s (must be mixed|commit-only|abort-heavy|read-heavy)", c.Workload)
	}

	return c.GetWorkloadDistribution().Validate()
}

func (c *Config) GetWorkloadDistribution() WorkloadDistribution {
	var dist WorkloadDistribution

	// Start with defaults based on workload type
	switch c.Workload {
	case "mixed", "":
		dist = WorkloadDistribution{Commit: 60, Abort: 10, Read: 30}
	case "commit-only":
		dist = WorkloadDistribution{Commit: 100, Abort: 0, Read: 0}
	case "abort-heavy":
		dist = WorkloadDistribution{Commit: 30, Abort: 50, Read: 20}
	case "read-heavy":
		dist = WorkloadDistribution{Commit: 15, Abort: 5, Read: 80}
	}

	// Override with explicit percentages if provided
	if c.CommitPct >= 0 {
		dist.Commit = c.CommitPct
	}
	if c.AbortPct >= 0 {
		dist.Abort = c.AbortPct
	}
	if c.ReadPct >= 0 {
		dist.Read = c.ReadPct
	}

	return dist
}

type WorkloadDistribution struct {
	Commit int
	Abort  int
	Read   int
}

func (w WorkloadDistribution) Total() int {
	return w.Commit + w.Abort + w.Read
}

func (w WorkloadDistribution) Validate() error {
	if w.Commit < 0 || w.Abort < 0 || w.Read < 0 {
		return fmt.Errorf("workload percentages must be non-negative")
	}
	total := w.Total()
	if total != 100 {
		return fmt.Errorf("workload percentages must sum to 100, got %d", total)
	}
	return nil
}
