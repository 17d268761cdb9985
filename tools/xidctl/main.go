package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "bench":
		runBenchmark(args)
	case "inspect":
		runInspect(args)
	case "snapshot":
		runSnapshot(args)
	case "restore":
		runRestore(args)
	case "version":
		fmt.Printf("xidctl version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`xidctl - transaction ledger tool

Usage:
  xidctl <command> [options]

Commands:
  bench     Run a begin/commit/abort/read workload against a ledger
  inspect   Print the header, a verify report and optionally xid statuses
  snapshot  Write a compressed snapshot of a ledger
  restore   Create a ledger from a snapshot
  version   Print version
  help      Show this help

Bench Options:
  --path          Ledger base path, without .xid (default: ./xidledger-data/bench)
  --create        Create the ledger if missing (default: true)
  --workload      Workload type: mixed|commit-only|abort-heavy|read-heavy (default: mixed)
  --operations    Total operations to execute (default: 50000)
  --duration      Duration to run (e.g., 60s), overrides --operations
  --threads       Number of concurrent threads (default: 8)
  --commit-pct    Commit percentage (overrides workload default)
  --abort-pct     Abort percentage (overrides workload default)
  --read-pct      Read percentage (overrides workload default)
  --strict        Reject transitions of finished xids (default: false)
  --cache-size    Status cache entries, 0 disables (default: 4096)
  --verify        Verify the ledger after the run (default: true)

Inspect Options:
  --path          Ledger base path
  --from          First xid to list (default: 1)
  --to            Last xid to list (default: 0 = none)

Snapshot Options:
  --path          Ledger base path
  --out           Snapshot file to create

Restore Options:
  --in            Snapshot file to read
  --path          Ledger base path to create

Examples:
  xidctl bench --path=/tmp/ledger --threads=16 --duration=30s
  xidctl inspect --path=/tmp/ledger --from=1 --to=20
  xidctl snapshot --path=/tmp/ledger --out=/tmp/ledger.snap
  xidctl restore --in=/tmp/ledger.snap --path=/tmp/restored`)
}

// signalContext cancels the returned context on SIGINT/SIGTERM.
func signalContext(timeLimit time.Duration) (context.Context, context.CancelFunc) {
	var ctx context.Context
	var cancel context.CancelFunc
	if timeLimit > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), timeLimit)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}

	// Handle interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Println("\nInterrupted, shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

func runBenchmark(args []string) {
	cfg := &Config{}
	fs := flag.NewFlagSet("bench", flag.ExitOnError)

	var timeLimit time.Duration
	fs.DurationVar(&timeLimit, "time-limit", 0, "Maximum time to run (e.g., 30s, 1m)")
	fs.StringVar(&cfg.Path, "path", "./xidledger-data/bench", "Ledger base path")
	fs.BoolVar(&cfg.Create, "create", true, "Create the ledger if missing")
	fs.StringVar(&cfg.Workload, "workload", "mixed", "Workload type")
	fs.IntVar(&cfg.Operations, "operations", 50000, "Total operations to execute")
	fs.DurationVar(&cfg.Duration, "duration", 0, "Duration to run (overrides --operations)")
	fs.IntVar(&cfg.Threads, "threads", 8, "Number of concurrent threads")
	fs.IntVar(&cfg.CommitPct, "commit-pct", -1, "Commit percentage (overrides workload)")
	fs.IntVar(&cfg.AbortPct, "abort-pct", -1, "Abort percentage (overrides workload)")
	fs.IntVar(&cfg.ReadPct, "read-pct", -1, "Read percentage (overrides workload)")
	fs.BoolVar(&cfg.StrictTransitions, "strict", false, "Reject transitions of finished xids")
	fs.IntVar(&cfg.CacheSize, "cache-size", 4096, "Status cache entries (0 disables)")
	fs.BoolVar(&cfg.Verify, "verify", true, "Verify the ledger after the run")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signalContext(timeLimit)
	defer cancel()

	if err := executeRun(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Benchmark failed: %v\n", err)
		os.Exit(1)
	}
}

func runInspect(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)

	path := fs.String("path", "", "Ledger base path")
	from := fs.Uint64("from", 1, "First xid to list")
	to := fs.Uint64("to", 0, "Last xid to list (0 = none)")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}
	if *path == "" {
		fmt.Fprintln(os.Stderr, "Invalid configuration: path cannot be empty")
		os.Exit(1)
	}

	if err := inspectLedger(os.Stdout, *path, *from, *to); err != nil {
		fmt.Fprintf(os.Stderr, "Inspect failed: %v\n", err)
		os.Exit(1)
	}
}

func runSnapshot(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)

	path := fs.String("path", "", "Ledger base path")
	out := fs.String("out", "", "Snapshot file to create")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}
	if *path == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "Invalid configuration: path and out are required")
		os.Exit(1)
	}

	manifest, err := snapshotLedger(*path, *out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Snapshot failed: %v\n", err)
		os.Exit(1)
	}
	printManifest(os.Stdout, manifest)
}

func runRestore(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)

	in := fs.String("in", "", "Snapshot file to read")
	path := fs.String("path", "", "Ledger base path to create")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}
	if *in == "" || *path == "" {
		fmt.Fprintln(os.Stderr, "Invalid configuration: in and path are required")
		os.Exit(1)
	}

	manifest, err := restoreLedger(*in, *path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Restore failed: %v\n", err)
		os.Exit(1)
	}
	printManifest(os.Stdout, manifest)
}
