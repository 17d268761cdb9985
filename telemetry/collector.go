package telemetry

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// StatsProvider is implemented by components that can report ledger gauges
type StatsProvider interface {
	Counter() uint64
	Size() (int64, error)
}

// MetricsCollector periodically samples a StatsProvider and updates gauges
type MetricsCollector struct {
	provider StatsProvider
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(provider StatsProvider, interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		provider: provider,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection
func (mc *MetricsCollector) Start() {
	mc.wg.Add(1)
	go mc.collectLoop()
}

// Stop stops the collector
func (mc *MetricsCollector) Stop() {
	close(mc.stopCh)
	mc.wg.Wait()
}

func (mc *MetricsCollector) collectLoop() {
	defer mc.wg.Done()

	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	mc.collect()

	for {
		select {
		case <-ticker.C:
			mc.collect()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MetricsCollector) collect() {
	if mc.provider == nil {
		return
	}

	LedgerCounter.Set(float64(mc.provider.Counter()))

	size, err := mc.provider.Size()
	if err != nil {
		log.Debug().Err(err).Msg("Failed to stat ledger for metrics")
		return
	}
	LedgerSizeBytes.Set(float64(size))
}
