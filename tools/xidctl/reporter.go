package main

import (
	"context"
	"fmt"
	"time"
)

// reportProgress prints real-time progress every second.
func reportProgress(ctx context.Context, stats *Stats, counter func() uint64) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	var lastSnapshot Snapshot
	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := stats.GetSnapshot()
			elapsed := time.Since(startTime)

			currentTotal := snapshot.Total()
			opsSec := currentTotal - lastSnapshot.Total()
			cumThroughput := float64(currentTotal) / elapsed.Seconds()

			fmt.Printf("[%5.0fs] ops/sec: %6d | total: %8d | xid: %10d | errors: %4d | throughput: %.1f ops/sec\n",
				elapsed.Seconds(),
				opsSec,
				currentTotal,
				counter(),
				snapshot.Errors,
				cumThroughput,
			)

			lastSnapshot = snapshot
		}
	}
}
