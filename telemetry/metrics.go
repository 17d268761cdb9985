package telemetry

// FsyncBuckets covers a single forced write, from page-cache SSDs to slow disks
var FsyncBuckets = []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5}

// Ledger metrics
var (
	// XidsAllocatedTotal counts xids handed out by Begin
	XidsAllocatedTotal Counter = NoopStat{}

	// TransitionsTotal counts durable status writes by status (active, committed, aborted)
	TransitionsTotal CounterVec = noopCounterVec{}

	// RejectedTransitionsTotal counts refused commit/abort calls by reason (unknown, terminal)
	RejectedTransitionsTotal CounterVec = noopCounterVec{}

	// StatusReadsTotal counts status lookups by source (super, cache, ledger)
	StatusReadsTotal CounterVec = noopCounterVec{}

	// FsyncSeconds measures forced writes by region (header, status)
	FsyncSeconds HistogramVec = noopHistogramVec{}

	// FatalErrorsTotal counts storage failures that poisoned a manager
	FatalErrorsTotal Counter = NoopStat{}

	// LedgerCounter tracks the highest allocated xid
	LedgerCounter Gauge = NoopStat{}

	// LedgerSizeBytes tracks the on-disk ledger size
	LedgerSizeBytes Gauge = NoopStat{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	XidsAllocatedTotal = NewCounter(
		"xids_allocated_total",
		"Total number of xids allocated",
	)
	TransitionsTotal = NewCounterVec(
		"transitions_total",
		"Durable status writes by status",
		[]string{"status"},
	)
	RejectedTransitionsTotal = NewCounterVec(
		"rejected_transitions_total",
		"Commit/abort calls rejected by reason: unknown xid (any mode) or already terminal (strict mode)",
		[]string{"reason"},
	)
	StatusReadsTotal = NewCounterVec(
		"status_reads_total",
		"Status lookups by source",
		[]string{"source"},
	)
	FsyncSeconds = NewHistogramVec(
		"fsync_seconds",
		"Forced write latency in seconds",
		[]string{"region"},
		FsyncBuckets,
	)
	FatalErrorsTotal = NewCounter(
		"fatal_errors_total",
		"Storage failures that made the ledger unusable",
	)
	LedgerCounter = NewGauge(
		"counter",
		"Highest allocated xid",
	)
	LedgerSizeBytes = NewGauge(
		"size_bytes",
		"Ledger file size in bytes",
	)
}
