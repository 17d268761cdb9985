package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/maxpert/xidledger/ledger"
	"github.com/maxpert/xidledger/txn"
)

// openManager opens the ledger at path, creating it when allowed.
func openManager(path string, create bool, opts txn.Options) (*txn.Manager, error) {
	m, err := txn.Open(path, opts)
	if err == nil {
		return m, nil
	}
	if !create || !errors.Is(err, ledger.ErrNotFound) {
		return nil, err
	}
	return txn.Create(path, opts)
}

func executeRun(ctx context.Context, cfg *Config) error {
	m, err := openManager(cfg.Path, cfg.Create, txn.Options{
		StrictTransitions: cfg.StrictTransitions,
		StatusCacheSize:   cfg.CacheSize,
	})
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer m.Close()

	dist := cfg.GetWorkloadDistribution()
	fmt.Printf("Ledger:   %s (counter %d)\n", m.Path(), m.Counter())
	fmt.Printf("Workload: %s (commit %d%%, abort %d%%, read %d%%)\n", cfg.Workload, dist.Commit, dist.Abort, dist.Read)
	fmt.Printf("Threads:  %d\n", cfg.Threads)
	if cfg.Duration > 0 {
		fmt.Printf("Duration: %s\n\n", cfg.Duration)
	} else {
		fmt.Printf("Operations: %d\n\n", cfg.Operations)
	}

	stats, err := runWorkload(ctx, m, cfg)
	if err != nil {
		return err
	}

	if cfg.Verify {
		report, err := m.Verify()
		if err != nil {
			return fmt.Errorf("verify failed: %w", err)
		}
		printReport(report)
		if !report.OK() {
			return fmt.Errorf("ledger verification found %d invalid status bytes", report.Invalid)
		}
	}

	if stats.TotalErrors() > 0 {
		return fmt.Errorf("%d operations failed", stats.TotalErrors())
	}
	return nil
}

// runWorkload drives cfg.Threads workers against l until the operation
// budget or duration runs out. A fatal ledger error stops every worker.
func runWorkload(ctx context.Context, l Ledger, cfg *Config) (*Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Duration > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, cfg.Duration)
		defer timeoutCancel()
	}

	var (
		fatalOnce sync.Once
		fatalErr  error
	)
	onFatal := func(err error) {
		fatalOnce.Do(func() {
			fatalErr = err
			cancel()
		})
	}

	stats := NewStats()
	dist := cfg.GetWorkloadDistribution()
	opsChan := make(chan struct{}, cfg.Threads*2)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Threads; i++ {
		selector := NewOpSelector(dist, time.Now().UnixNano()+int64(i))
		worker := NewWorker(i, l, selector, stats, onFatal)
		wg.Add(1)
		go worker.RunBenchmark(ctx, opsChan, &wg)
	}

	reportCtx, reportCancel := context.WithCancel(ctx)
	go reportProgress(reportCtx, stats, l.Counter)

	start := time.Now()
	go func() {
		defer close(opsChan)
		for i := 0; cfg.Duration > 0 || i < cfg.Operations; i++ {
			select {
			case <-ctx.Done():
				return
			case opsChan <- struct{}{}:
			}
		}
	}()

	wg.Wait()
	reportCancel()
	stats.PrintFinal(time.Since(start))

	if fatalErr != nil {
		return stats, fmt.Errorf("ledger failed during benchmark: %w", fatalErr)
	}
	return stats, nil
}
